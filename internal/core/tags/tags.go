// Package tags normalizes the comma-separated tag lists the proxy serves.
package tags

import (
	"errors"
	"strings"
)

// ErrNoTags reports a tag list that is empty after normalization.
var ErrNoTags = errors.New("no cache tags provided")

// Normalize splits a comma-separated tag list, trims whitespace around each
// entry, drops empties, and deduplicates while preserving first-seen order.
// Normalize is idempotent: feeding its output back in yields the same list.
func Normalize(raw string) ([]string, error) {
	seen := make(map[string]struct{})
	var result []string

	for _, entry := range strings.Split(raw, ",") {
		tag := strings.TrimSpace(entry)
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		result = append(result, tag)
	}

	if len(result) == 0 {
		return nil, ErrNoTags
	}
	return result, nil
}

// Join renders a normalized list back to the comma-separated wire form.
func Join(tags []string) string {
	return strings.Join(tags, ",")
}

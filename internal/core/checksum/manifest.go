// Package checksum parses SHA256SUMS release manifests and verifies
// downloaded assets against them. Verification is a trust boundary: a
// missing or mismatched entry is always terminal, and the two failures are
// reported as distinct errors so callers can tell tampering from an
// incomplete release.
package checksum

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// ErrNotFound reports a manifest with no entry for the requested filename.
type ErrNotFound struct {
	Filename string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("no checksum entry for %q in manifest", e.Filename)
}

// ErrMismatch reports a digest that differs from the manifest entry.
type ErrMismatch struct {
	Filename string
	Want     string
	Got      string
}

func (e *ErrMismatch) Error() string {
	return fmt.Sprintf("checksum mismatch for %q: expected %s, got %s", e.Filename, e.Want, e.Got)
}

// Manifest maps asset filenames to lowercase hex SHA-256 digests.
type Manifest map[string]string

// ParseManifest reads a plain-text SHA256SUMS listing: one entry per line,
// a 64-hex-char digest, one or two spaces, then the filename. Lines that do
// not match the shape are skipped rather than failing the parse, since
// release tooling appends trailing noise.
func ParseManifest(r io.Reader) (Manifest, error) {
	manifest := make(Manifest)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		digest, filename, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		manifest[filename] = digest
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	return manifest, nil
}

func parseLine(line string) (digest, filename string, ok bool) {
	line = strings.TrimRight(line, "\r\n")
	if len(line) < sha256.Size*2+2 {
		return "", "", false
	}

	digest = strings.ToLower(line[:sha256.Size*2])
	if !isHex(digest) {
		return "", "", false
	}

	rest := line[sha256.Size*2:]
	// Tolerate both the "  " and " " separators seen in the wild. A leading
	// "*" marks binary mode in coreutils output and is not part of the name.
	rest = strings.TrimLeft(rest, " ")
	rest = strings.TrimPrefix(rest, "*")
	if rest == "" {
		return "", "", false
	}

	return digest, rest, true
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// Lookup returns the digest recorded for filename. The match is by exact
// filename only; a release shipping the same filename for multiple
// platforms would verify against whichever entry appears last.
func (m Manifest) Lookup(filename string) (string, error) {
	digest, ok := m[filename]
	if !ok {
		return "", &ErrNotFound{Filename: filename}
	}
	return digest, nil
}

// Verify digests the asset bytes and compares them against the manifest
// entry for filename, case-insensitively.
func (m Manifest) Verify(filename string, asset io.Reader) error {
	want, err := m.Lookup(filename)
	if err != nil {
		return err
	}

	h := sha256.New()
	if _, err := io.Copy(h, asset); err != nil {
		return fmt.Errorf("failed to digest %q: %w", filename, err)
	}
	got := hex.EncodeToString(h.Sum(nil))

	if !strings.EqualFold(want, got) {
		return &ErrMismatch{Filename: filename, Want: strings.ToLower(want), Got: got}
	}
	return nil
}

// Package toolcache is the machine-local registry of installed tool
// versions, laid out `<root>/<tool>/<version>/<arch>/` with a `.complete`
// marker written only after the directory contents are final. Entries
// without the marker are treated as absent, so an interrupted install never
// serves a half-written binary.
package toolcache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Cache indexes installed tools under a root directory.
type Cache struct {
	root string
}

// New creates a cache over root. The directory is created lazily on the
// first Add.
func New(root string) *Cache {
	return &Cache{root: root}
}

// Root returns the cache root directory.
func (c *Cache) Root() string { return c.root }

// ToolDir returns the directory holding every cached version of tool. This
// is the path saved to and restored from the remote cache.
func (c *Cache) ToolDir(tool string) string {
	return filepath.Join(c.root, tool)
}

// VersionGlob returns the informational glob matching a version's entries,
// exposed for manual inspection and debug logs.
func (c *Cache) VersionGlob(tool, version string) string {
	return filepath.Join(c.root, tool, version) + "*"
}

func (c *Cache) entryDir(tool, version, arch string) string {
	return filepath.Join(c.root, tool, version, arch)
}

func (c *Cache) markerPath(tool, version, arch string) string {
	return c.entryDir(tool, version, arch) + ".complete"
}

// Find returns the cached directory for tool/version/arch, or empty when
// absent or incomplete.
func (c *Cache) Find(tool, version, arch string) string {
	dir := c.entryDir(tool, version, arch)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return ""
	}
	if _, err := os.Stat(c.markerPath(tool, version, arch)); err != nil {
		return ""
	}
	return dir
}

// Add registers srcDir's contents as the cache entry for tool/version/arch
// and returns the canonical cached path. The entry is staged with a rename
// where possible and the completion marker is written last.
func (c *Cache) Add(srcDir, tool, version, arch string) (string, error) {
	dest := c.entryDir(tool, version, arch)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", fmt.Errorf("failed to create tool cache directory: %w", err)
	}
	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("failed to clear stale cache entry: %w", err)
	}

	if err := os.Rename(srcDir, dest); err != nil {
		// Rename fails across filesystems (temp and tool cache commonly
		// live on different mounts); fall back to a copy.
		if err := copyDir(srcDir, dest); err != nil {
			return "", fmt.Errorf("failed to place cache entry: %w", err)
		}
	}

	if err := os.WriteFile(c.markerPath(tool, version, arch), nil, 0o644); err != nil {
		return "", fmt.Errorf("failed to mark cache entry complete: %w", err)
	}
	return dest, nil
}

func copyDir(src, dest string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)

		if info.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm())
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dest string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

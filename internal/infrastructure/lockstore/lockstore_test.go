package lockstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDiskStore_PutGet_RoundTrips tests basic persistence
func TestDiskStore_PutGet_RoundTrips(t *testing.T) {
	store := NewDiskStore(t.TempDir())

	require.NoError(t, store.Put("proxy.pid", "12345"))

	got, err := store.Get("proxy.pid")
	require.NoError(t, err)
	assert.Equal(t, "12345", got)
}

// TestDiskStore_Get_TrimsWhitespace tests tolerance of trailing newlines
func TestDiskStore_Get_TrimsWhitespace(t *testing.T) {
	dir := t.TempDir()
	store := NewDiskStore(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "proxy.pid"), []byte("678\n"), 0o644))

	got, err := store.Get("proxy.pid")
	require.NoError(t, err)
	assert.Equal(t, "678", got)
}

// TestDiskStore_Put_Overwrites tests per-start overwrite semantics
func TestDiskStore_Put_Overwrites(t *testing.T) {
	store := NewDiskStore(t.TempDir())

	require.NoError(t, store.Put("proxy.pid", "1"))
	require.NoError(t, store.Put("proxy.pid", "2"))

	got, err := store.Get("proxy.pid")
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}

// TestDiskStore_Get_AbsentKey_Fails tests missing-key behavior
func TestDiskStore_Get_AbsentKey_Fails(t *testing.T) {
	store := NewDiskStore(t.TempDir())

	_, err := store.Get("absent")
	assert.Error(t, err)
}

// TestDiskStore_Put_CreatesDirectory tests lazy directory creation
func TestDiskStore_Put_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "scratch")
	store := NewDiskStore(dir)

	require.NoError(t, store.Put("k", "v"))
	assert.FileExists(t, filepath.Join(dir, "k"))
}

// TestMemStore_BehavesLikeDiskStore tests the test backend's contract
func TestMemStore_BehavesLikeDiskStore(t *testing.T) {
	store := NewMemStore(t.TempDir())

	_, err := store.Get("absent")
	assert.Error(t, err)

	require.NoError(t, store.Put("k", "v"))
	got, err := store.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)

	assert.NotEmpty(t, store.Path("some.log"))
}

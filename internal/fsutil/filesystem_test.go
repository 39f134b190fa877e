package fsutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic_OS(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "dataset.json")
	fsys := OSFileSystem{}

	require.NoError(t, WriteFileAtomic(fsys, path, []byte(`{"couples":[]}`), 0o644))
	require.NoError(t, WriteFileAtomic(fsys, path, []byte(`{"couples":[1]}`), 0o644))

	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"couples":[1]}`, string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")
}

func TestWriteFileAtomic_FailureKeepsPrevious(t *testing.T) {
	mfs := NewMemoryFileSystem()
	require.NoError(t, WriteFileAtomic(mfs, "/data/svm.json", []byte("old"), 0o644))

	mfs.FailWrites(errors.New("disk full"))
	err := WriteFileAtomic(mfs, "/data/svm.json", []byte("new"), 0o644)
	require.Error(t, err)

	data, err := mfs.ReadFile("/data/svm.json")
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
	assert.Equal(t, []string{"/data/svm.json"}, mfs.Files())
}

func TestRemoveIfExists(t *testing.T) {
	mfs := NewMemoryFileSystem()
	assert.NoError(t, RemoveIfExists(mfs, "/missing.json"))

	require.NoError(t, mfs.WriteFile("/present.json", []byte("x"), 0o644))
	assert.NoError(t, RemoveIfExists(mfs, "/present.json"))
	assert.False(t, mfs.Exists("/present.json"))

	dir := t.TempDir()
	assert.NoError(t, RemoveIfExists(OSFileSystem{}, filepath.Join(dir, "missing")))
}

func TestMemoryFileSystem_Rename(t *testing.T) {
	mfs := NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/a", []byte("1"), 0o644))
	require.NoError(t, mfs.Rename("/a", "/b"))
	assert.False(t, mfs.Exists("/a"))
	assert.True(t, mfs.Exists("/b"))

	err := mfs.Rename("/missing", "/c")
	assert.True(t, os.IsNotExist(err))
}

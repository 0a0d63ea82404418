package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	require.NoError(t, err)
	return map[string]Store{
		"fs":  fs,
		"mem": NewMem(),
	}
}

func TestPutGetDelete(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(BucketJobs, "a1b2")
			assert.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Put(BucketJobs, "a1b2", []byte("/tmp/proj|5|proj|false")))
			data, err := s.Get(BucketJobs, "a1b2")
			require.NoError(t, err)
			assert.Equal(t, "/tmp/proj|5|proj|false", string(data))

			// overwrite
			require.NoError(t, s.Put(BucketJobs, "a1b2", []byte("/tmp/proj|10|proj|true")))
			data, err = s.Get(BucketJobs, "a1b2")
			require.NoError(t, err)
			assert.Equal(t, "/tmp/proj|10|proj|true", string(data))

			require.NoError(t, s.Delete(BucketJobs, "a1b2"))
			_, err = s.Get(BucketJobs, "a1b2")
			assert.ErrorIs(t, err, ErrNotFound)

			// deleting again is fine
			require.NoError(t, s.Delete(BucketJobs, "a1b2"))
		})
	}
}

func TestList(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			all, err := s.List(BucketJobs)
			require.NoError(t, err)
			assert.Empty(t, all)

			require.NoError(t, s.Put(BucketJobs, "k1", []byte("one")))
			require.NoError(t, s.Put(BucketJobs, "k2", []byte("two")))
			require.NoError(t, s.Put(BucketPids, "k3", []byte("123")))

			all, err = s.List(BucketJobs)
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, "one", string(all["k1"]))
			assert.Equal(t, "two", string(all["k2"]))
		})
	}
}

func TestBucketsIndependent(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Put(BucketJobs, "k", []byte("job")))
			require.NoError(t, s.Put(BucketPids, "k", []byte("pid")))
			require.NoError(t, s.Delete(BucketJobs, "k"))
			data, err := s.Get(BucketPids, "k")
			require.NoError(t, err)
			assert.Equal(t, "pid", string(data))
		})
	}
}

func TestFSLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFS(dir)
	require.NoError(t, err)
	require.NoError(t, fs.Put(BucketJobs, "k", []byte("v")))

	entries, err := os.ReadDir(filepath.Join(dir, BucketJobs))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.Contains(e.Name(), ".tmp-"), "leftover temp file %s", e.Name())
	}
}

func TestFSListSkipsTempFiles(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFS(dir)
	require.NoError(t, err)
	require.NoError(t, fs.Put(BucketJobs, "k", []byte("v")))

	// Simulate a concurrent writer's in-flight temp file.
	require.NoError(t, os.WriteFile(filepath.Join(dir, BucketJobs, ".k2.tmp-1"), []byte("partial"), 0o644))

	all, err := fs.List(BucketJobs)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFSRejectsTraversal(t *testing.T) {
	fs, err := NewFS(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, fs.Put("jobs", "../escape", []byte("x")))
	assert.Error(t, fs.Put("", "k", []byte("x")))
	_, err = fs.Get("jobs", "a/b")
	assert.Error(t, err)
}

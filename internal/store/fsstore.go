package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FSStore persists one file per record under root/<bucket>/<key>.
// Writes go to a temp file in the same directory followed by a rename, so a
// reader sees either the previous record or the new one, never a partial
// write. This is the single place where the filesystem's atomicity
// assumptions live.
type FSStore struct {
	root string
}

// NewFS opens (and creates if needed) a filesystem store rooted at dir.
func NewFS(dir string) (*FSStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("fsstore: empty root dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("fsstore: create root: %w", err)
	}
	return &FSStore{root: dir}, nil
}

// Root returns the store's base directory.
func (s *FSStore) Root() string { return s.root }

func (s *FSStore) path(bucket, key string) (string, error) {
	if err := checkName(bucket); err != nil {
		return "", err
	}
	if err := checkName(key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, bucket, key), nil
}

func checkName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\") || name == "." || name == ".." {
		return fmt.Errorf("fsstore: invalid name %q", name)
	}
	return nil
}

func (s *FSStore) Put(bucket, key string, data []byte) error {
	p, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fsstore: create bucket %s: %w", bucket, err)
	}
	tmp, err := os.CreateTemp(dir, "."+key+".tmp-*")
	if err != nil {
		return fmt.Errorf("fsstore: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("fsstore: write %s/%s: %w", bucket, key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("fsstore: close temp: %w", err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("fsstore: commit %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *FSStore) Get(bucket, key string) ([]byte, error) {
	p, err := s.path(bucket, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fsstore: read %s/%s: %w", bucket, key, err)
	}
	return data, nil
}

func (s *FSStore) Delete(bucket, key string) error {
	p, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("fsstore: delete %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *FSStore) List(bucket string) (map[string][]byte, error) {
	if err := checkName(bucket); err != nil {
		return nil, err
	}
	dir := filepath.Join(s.root, bucket)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string][]byte{}, nil
		}
		return nil, fmt.Errorf("fsstore: list %s: %w", bucket, err)
	}
	out := make(map[string][]byte, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			if os.IsNotExist(err) {
				continue // deleted between readdir and read
			}
			return nil, fmt.Errorf("fsstore: list read %s/%s: %w", bucket, e.Name(), err)
		}
		out[e.Name()] = data
	}
	return out, nil
}

func (s *FSStore) Close() error { return nil }

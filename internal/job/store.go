package job

import (
	"errors"
	"fmt"
	"sort"

	"autosave/internal/identity"
	"autosave/internal/store"
)

// Store layers the descriptor codec over the raw KV store.
type Store struct {
	kv store.Store
}

func NewStore(kv store.Store) *Store { return &Store{kv: kv} }

func (s *Store) Put(d Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	data, err := d.Encode()
	if err != nil {
		return err
	}
	return s.kv.Put(store.BucketJobs, d.ID.String(), data)
}

// Get returns store.ErrNotFound when no descriptor exists for id.
func (s *Store) Get(id identity.Token) (Descriptor, error) {
	data, err := s.kv.Get(store.BucketJobs, id.String())
	if err != nil {
		return Descriptor{}, err
	}
	return Decode(id, data)
}

func (s *Store) Delete(id identity.Token) error {
	return s.kv.Delete(store.BucketJobs, id.String())
}

// All enumerates every registered job, sorted by display name for stable
// output. Malformed records are skipped rather than failing the whole
// enumeration; the reconciler must not be wedged by one corrupt file.
func (s *Store) All() ([]Descriptor, error) {
	raw, err := s.kv.List(store.BucketJobs)
	if err != nil {
		return nil, fmt.Errorf("job: list descriptors: %w", err)
	}
	out := make([]Descriptor, 0, len(raw))
	for key, data := range raw {
		d, err := Decode(identity.Token(key), data)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// IsNotFound reports whether err means "no descriptor registered".
func IsNotFound(err error) bool { return errors.Is(err, store.ErrNotFound) }

package store

import "errors"

// ErrNotFound is returned by Get when no record exists for the key.
var ErrNotFound = errors.New("record not found")

// Well-known buckets. Each bucket holds one record per key.
const (
	BucketJobs  = "jobs"
	BucketPids  = "pids"
	BucketState = "state"
)

// Store is a minimal keyed persistence interface. Records are opaque bytes
// grouped into buckets; keys within a bucket are unique. Implementations
// must guarantee that a concurrent reader never observes a half-written
// record, but no cross-record transactional discipline is provided:
// concurrent writers to different keys never interfere.
type Store interface {
	Put(bucket, key string, data []byte) error
	// Get returns ErrNotFound when the record is absent.
	Get(bucket, key string) ([]byte, error)
	// Delete is a no-op for absent records.
	Delete(bucket, key string) error
	List(bucket string) (map[string][]byte, error)
	Close() error
}

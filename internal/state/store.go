package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	bolt "go.etcd.io/bbolt"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrBucketNotFound is returned when a bucket was not declared at open time.
var ErrBucketNotFound = errors.New("bucket not found")

// Store is a bucketed key/value store holding JSON records.
type Store interface {
	Put(bucket, key string, v interface{}) error
	// Get decodes the record into out and reports whether it existed.
	Get(bucket, key string, out interface{}) (bool, error)
	Delete(bucket, key string) error
	// Keys lists the keys of a bucket in byte order.
	Keys(bucket string) ([]string, error)
	Close() error
}

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db   *bolt.DB
	path string
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore opens (or creates) a database at path with the given buckets.
func NewBoltStore(path string, buckets ...string) (*BoltStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &BoltStore{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *BoltStore) Path() string {
	return s.path
}

// Put stores v as JSON under key.
func (s *BoltStore) Put(bucket, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return ErrBucketNotFound
		}
		return b.Put([]byte(key), data)
	})
}

// Get loads the record under key into out.
func (s *BoltStore) Get(bucket, key string, out interface{}) (bool, error) {
	var found bool

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return ErrBucketNotFound
		}

		data := b.Get([]byte(key))
		if data == nil {
			return nil
		}

		found = true
		return json.Unmarshal(data, out)
	})
	return found, err
}

// Delete removes key. Deleting a missing key is not an error.
func (s *BoltStore) Delete(bucket, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return ErrBucketNotFound
		}
		return b.Delete([]byte(key))
	})
}

// Keys lists every key in bucket.
func (s *BoltStore) Keys(bucket string) ([]string, error) {
	var keys []string

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b == nil {
			return ErrBucketNotFound
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// MemoryStore implements Store in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory store with the given buckets.
func NewMemoryStore(buckets ...string) *MemoryStore {
	s := &MemoryStore{buckets: make(map[string]map[string][]byte)}
	for _, name := range buckets {
		s.buckets[name] = make(map[string][]byte)
	}
	return s
}

// Put stores v as JSON under key.
func (s *MemoryStore) Put(bucket, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[bucket]
	if !ok {
		return ErrBucketNotFound
	}
	b[key] = data
	return nil
}

// Get loads the record under key into out.
func (s *MemoryStore) Get(bucket, key string, out interface{}) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.buckets[bucket]
	if !ok {
		return false, ErrBucketNotFound
	}
	data, ok := b[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, out)
}

// Delete removes key.
func (s *MemoryStore) Delete(bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[bucket]
	if !ok {
		return ErrBucketNotFound
	}
	delete(b, key)
	return nil
}

// Keys lists every key in bucket in sorted order.
func (s *MemoryStore) Keys(bucket string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.buckets[bucket]
	if !ok {
		return nil, ErrBucketNotFound
	}
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close is a no-op for MemoryStore.
func (s *MemoryStore) Close() error {
	return nil
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// maxUpdateTries bounds the conflict retries of BucketCell.Update.
const maxUpdateTries = 16

// KVStore is the local persisted store backed by BadgerDB.
type KVStore struct {
	db     *badger.DB
	logger *zap.Logger

	locks sync.Map // key -> *sync.Mutex
}

// keyLock returns the mutex serializing read-modify-write updates of key.
func (s *KVStore) keyLock(key string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// OpenKVStore opens (or creates) the store under dir.
func OpenKVStore(dir string, logger *zap.Logger) (*KVStore, error) {
	return openKVStore(badger.DefaultOptions(dir), logger)
}

// OpenMemoryKVStore opens a store that lives only in memory.
func OpenMemoryKVStore(logger *zap.Logger) (*KVStore, error) {
	return openKVStore(badger.DefaultOptions("").WithInMemory(true), logger)
}

func openKVStore(opts badger.Options, logger *zap.Logger) (*KVStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := badger.Open(opts.WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return &KVStore{db: db, logger: logger}, nil
}

// Close closes the BadgerDB instance.
func (s *KVStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func readJSON(txn *badger.Txn, key string, v any) (bool, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	}); err != nil {
		return false, fmt.Errorf("failed to unmarshal %q: %w", key, err)
	}
	return true, nil
}

// Cell is a singleton persisted value.
type Cell[T any] struct {
	store *KVStore
	key   string
}

// NewCell binds a singleton cell to key.
func NewCell[T any](store *KVStore, key string) *Cell[T] {
	return &Cell[T]{store: store, key: key}
}

// Get returns the stored value, or def when the key is absent.
func (c *Cell[T]) Get(def T) (T, error) {
	v := def
	err := c.store.db.View(func(txn *badger.Txn) error {
		var stored T
		found, err := readJSON(txn, c.key, &stored)
		if found {
			v = stored
		}
		return err
	})
	if err != nil {
		return def, fmt.Errorf("failed to read %q: %w", c.key, err)
	}
	return v, nil
}

// Exists reports whether a value has been stored.
func (c *Cell[T]) Exists() (bool, error) {
	err := c.store.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(c.key))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %q: %w", c.key, err)
	}
	return true, nil
}

// Set overwrites the stored value.
func (c *Cell[T]) Set(v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %q: %w", c.key, err)
	}
	if err := c.store.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(c.key), data)
	}); err != nil {
		return fmt.Errorf("failed to write %q: %w", c.key, err)
	}
	return nil
}

type bucketSubscriber[T any] struct {
	id int
	fn func(date string, values []T)
}

// BucketCell is a date-bucketed persisted mapping stored as one key per date under prefix.
type BucketCell[T any] struct {
	store  *KVStore
	prefix string

	mu     sync.Mutex
	subs   []bucketSubscriber[T]
	nextID int
}

// NewBucketCell binds a bucketed cell to prefix.
func NewBucketCell[T any](store *KVStore, prefix string) *BucketCell[T] {
	return &BucketCell[T]{store: store, prefix: prefix}
}

func (b *BucketCell[T]) key(date string) string {
	return b.prefix + date
}

// Get returns the values stored for date; empty when absent.
func (b *BucketCell[T]) Get(date string) ([]T, error) {
	var values []T
	err := b.store.db.View(func(txn *badger.Txn) error {
		_, err := readJSON(txn, b.key(date), &values)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", b.key(date), err)
	}
	return values, nil
}

// Update atomically replaces the values of date with fn's result. An empty result deletes the
// key. Updates of one date are serialized within the process; fn may still run more than once
// when a transaction conflicts.
func (b *BucketCell[T]) Update(date string, fn func([]T) ([]T, error)) error {
	key := b.key(date)
	next, err := b.update(key, fn)
	if err != nil {
		return fmt.Errorf("failed to update %q: %w", key, err)
	}
	b.notify(date, next)
	return nil
}

func (b *BucketCell[T]) update(key string, fn func([]T) ([]T, error)) ([]T, error) {
	mu := b.store.keyLock(key)
	mu.Lock()
	defer mu.Unlock()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Millisecond
	policy.MaxInterval = 50 * time.Millisecond

	attempt := 0
	return backoff.Retry(context.Background(), func() ([]T, error) {
		attempt++
		next, err := b.commit(key, fn)
		if errors.Is(err, badger.ErrConflict) {
			b.store.logger.Debug("update conflict, retrying", zap.String("key", key), zap.Int("attempt", attempt))
			return nil, err
		}
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return next, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(maxUpdateTries))
}

func (b *BucketCell[T]) commit(key string, fn func([]T) ([]T, error)) ([]T, error) {
	var next []T
	err := b.store.db.Update(func(txn *badger.Txn) error {
		var current []T
		if _, err := readJSON(txn, key, &current); err != nil {
			return err
		}

		var err error
		next, err = fn(current)
		if err != nil {
			return err
		}

		if len(next) == 0 {
			if err := txn.Delete([]byte(key)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			return nil
		}
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to marshal %q: %w", key, err)
		}
		return txn.Set([]byte(key), data)
	})
	return next, err
}

// All returns every non-empty bucket keyed by date.
func (b *BucketCell[T]) All() (map[string][]T, error) {
	all := make(map[string][]T)
	err := b.iterate(func(date string, val []byte) error {
		var values []T
		if err := json.Unmarshal(val, &values); err != nil {
			return fmt.Errorf("failed to unmarshal %q: %w", b.key(date), err)
		}
		all[date] = values
		return nil
	})
	if err != nil {
		return nil, err
	}
	return all, nil
}

// Dates returns the dates holding values, ascending.
func (b *BucketCell[T]) Dates() ([]string, error) {
	var dates []string
	err := b.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(b.prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			dates = append(dates, strings.TrimPrefix(string(it.Item().Key()), b.prefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", b.prefix, err)
	}
	sort.Strings(dates)
	return dates, nil
}

func (b *BucketCell[T]) iterate(fn func(date string, val []byte) error) error {
	return b.store.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchSize = 10
		opts.Prefix = []byte(b.prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			date := strings.TrimPrefix(string(item.Key()), b.prefix)
			if err := item.Value(func(val []byte) error {
				return fn(date, val)
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Subscribe registers fn to run after every committed update. Subscribers run synchronously in
// registration order. The returned function cancels the subscription.
func (b *BucketCell[T]) Subscribe(fn func(date string, values []T)) (cancel func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, bucketSubscriber[T]{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (b *BucketCell[T]) notify(date string, values []T) {
	b.mu.Lock()
	subs := make([]bucketSubscriber[T], len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(date, values)
	}
}

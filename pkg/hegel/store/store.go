// Package store keeps the run history in a Badger database: one
// record per sweep, record or snap run, listable newest first.
package store

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Key prefixes for different data types
const (
	prefixRun = "r:" // Runs keyed by inverted start time, newest first
	prefixID  = "i:" // Run id -> run key
)

// ErrRunNotFound is returned when a run id is not in the history.
var ErrRunNotFound = errors.New("run not found")

// Run is one history record.
type Run struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"` // sweep, record or snap
	Devices  []string  `json:"devices"`
	Filename string    `json:"filename"`
	Points   int       `json:"points"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Checksum string    `json:"checksum,omitempty"` // xxh64 of the data file
}

// Store is the run history backed by Badger.
type Store struct {
	db *badger.DB
}

// Open opens or creates the history at the given path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open run history: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// runKey orders runs newest first under forward iteration.
func runKey(start time.Time, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixRun, math.MaxInt64-start.UnixNano(), id))
}

// Add records a run, assigning an id when it has none.
func (s *Store) Add(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}
	key := runKey(run.Start, run.ID)
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set([]byte(prefixID+run.ID), key)
	})
}

// List returns the most recent runs, newest first. limit <= 0 returns
// everything.
func (s *Store) List(limit int) ([]*Run, error) {
	var runs []*Run
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixRun)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(runs) >= limit {
				break
			}
			err := it.Item().Value(func(val []byte) error {
				var run Run
				if err := json.Unmarshal(val, &run); err != nil {
					return nil // Skip invalid entries
				}
				runs = append(runs, &run)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return runs, err
}

// Get retrieves a run by id.
func (s *Store) Get(id string) (*Run, error) {
	var run Run
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(prefixID + id))
		if err != nil {
			return err
		}
		var key []byte
		if err := item.Value(func(val []byte) error {
			key = append([]byte(nil), val...)
			return nil
		}); err != nil {
			return err
		}
		item, err = txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &run)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// Prune deletes runs that started before the cutoff and returns how
// many were removed.
func (s *Store) Prune(before time.Time) (int, error) {
	var keysToDelete [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixRun)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			err := it.Item().Value(func(val []byte) error {
				var run Run
				if err := json.Unmarshal(val, &run); err != nil {
					keysToDelete = append(keysToDelete, key)
					return nil
				}
				if run.Start.Before(before) {
					keysToDelete = append(keysToDelete, key)
					keysToDelete = append(keysToDelete, []byte(prefixID+run.ID))
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(keysToDelete) == 0 {
		return 0, nil
	}

	removed := 0
	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range keysToDelete {
			if err := txn.Delete(key); err != nil {
				return err
			}
			if string(key[:len(prefixRun)]) == prefixRun {
				removed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// ChecksumFile hashes a data file with xxhash-64 so history entries
// can detect later modification of their files.
func ChecksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	var sum [8]byte
	h.Sum(sum[:0])
	return hex.EncodeToString(sum[:]), nil
}

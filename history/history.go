// Package history persists dictation sessions in a local Badger store.
package history

import (
	"encoding/json"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"go.aimuz.me/murmur/internal/types"
)

const keyPrefix = "entry:"

// Store is the on-disk dictation history.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the history store at dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens an ephemeral store, used in tests.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory store: %w", err)
	}
	return &Store{db: db}, nil
}

// Record appends one entry. Keys sort by creation time so Recent can
// iterate newest-first.
func (s *Store) Record(entry types.HistoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	key := fmt.Sprintf("%s%020d:%s", keyPrefix, entry.CreatedAt.UnixNano(), entry.ID)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
	if err != nil {
		return fmt.Errorf("write entry: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (s *Store) Recent(n int) ([]types.HistoryEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	var entries []types.HistoryEntry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration needs a seek key past the prefix range.
		seek := append([]byte(keyPrefix), 0xFF)
		for it.Seek(seek); it.Valid() && len(entries) < n; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var e types.HistoryEntry
				if err := json.Unmarshal(val, &e); err != nil {
					return fmt.Errorf("unmarshal entry: %w", err)
				}
				entries = append(entries, e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read entries: %w", err)
	}
	return entries, nil
}

// Delete removes one entry by ID.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek([]byte(keyPrefix)); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			var e types.HistoryEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				return err
			}
			if e.ID == id {
				return txn.Delete(key)
			}
		}
		return fmt.Errorf("entry not found: %s", id)
	})
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

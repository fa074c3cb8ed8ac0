// SPDX-License-Identifier: MIT

package tasks

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const indexPrefix = "task:"

// Index is a badger-backed id-to-state lookup. It only accelerates Find;
// a stale or missing entry is never an error because the directory tree
// remains authoritative.
type Index struct {
	db *badger.DB
}

// OpenIndex opens the badger database at path.
func OpenIndex(path string) (*Index, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("tasks: open index: %w", err)
	}
	return &Index{db: db}, nil
}

func (i *Index) Close() error { return i.db.Close() }

// SetState records the current state of a task id.
func (i *Index) SetState(id, state string) error {
	key := []byte(indexPrefix + id)
	return i.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, []byte(state))
	})
}

// State returns the recorded state for a task id, if any.
func (i *Index) State(id string) (string, bool, error) {
	key := []byte(indexPrefix + id)
	var state string
	err := i.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			state = string(val)
			return nil
		})
	})
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return "", false, nil
		}
		return "", false, err
	}
	return state, true, nil
}

// Delete removes a task id from the index.
func (i *Index) Delete(id string) error {
	key := []byte(indexPrefix + id)
	return i.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

package storage

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"ovc/internal/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// journalPrefix keys operation records as op:<uuid>.
const journalPrefix = "op:"

// Operation is a journal record for a tree-mutating operation that is
// under way. It is deleted when the operation completes, so a record that
// survives a process marks a working tree that may be half switched.
type Operation struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Branch    int       `json:"branch"`
	Revision  int       `json:"revision"`
	StartedAt time.Time `json:"started_at"`
}

func (o *Operation) key() []byte {
	return []byte(journalPrefix + o.ID)
}

// Index is the repository's Badger database. Holding it open holds
// Badger's directory lock, which keeps a second process out of the
// repository for the lifetime of the session.
type Index struct {
	db *badger.DB
}

// getDBOptions returns quiet options; inMemory is used by tests.
func getDBOptions(path string, inMemory bool) badger.Options {
	opts := badger.DefaultOptions(path).
		WithNumVersionsToKeep(1).
		WithNumGoroutines(1).
		WithLogger(nil)
	if inMemory {
		opts = opts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	return opts
}

// OpenIndex opens (creating if needed) the index stored at path.
func OpenIndex(path string, inMemory bool) (*Index, error) {
	if !inMemory {
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
	}

	db, err := badger.Open(getDBOptions(path, inMemory))
	if err != nil {
		if strings.Contains(err.Error(), "acquire directory lock") {
			return nil, errors.User("repository is locked by another ovc process")
		}
		return nil, fmt.Errorf("opening index: %w", err)
	}

	return &Index{db: db}, nil
}

// Begin records that an operation started.
func (i *Index) Begin(name string, branch, revision int) (*Operation, error) {
	op := &Operation{
		ID:        uuid.New().String(),
		Name:      name,
		Branch:    branch,
		Revision:  revision,
		StartedAt: time.Now(),
	}

	data, err := json.Marshal(op)
	if err != nil {
		return nil, fmt.Errorf("marshaling operation: %w", err)
	}
	err = i.db.Update(func(txn *badger.Txn) error {
		return txn.Set(op.key(), data)
	})
	if err != nil {
		return nil, fmt.Errorf("journaling %s: %w", name, err)
	}
	return op, nil
}

// Finish removes the journal record of op. Finishing an operation twice
// is an error.
func (i *Index) Finish(op *Operation) error {
	if op == nil {
		return nil
	}
	return i.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(op.key()); err != nil {
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("operation %s is not journaled", op.ID)
			}
			return err
		}
		return txn.Delete(op.key())
	})
}

// Pending returns operations that never finished, oldest first.
func (i *Index) Pending() ([]Operation, error) {
	var ops []Operation
	err := i.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(journalPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var op Operation
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &op)
			})
			if err != nil {
				return fmt.Errorf("decoding %s: %w", it.Item().Key(), err)
			}
			ops = append(ops, op)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading journal: %w", err)
	}

	sort.Slice(ops, func(a, b int) bool { return ops[a].StartedAt.Before(ops[b].StartedAt) })
	return ops, nil
}

// Clear forgets all pending operations.
func (i *Index) Clear() error {
	return i.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(journalPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := txn.Delete(it.Item().KeyCopy(nil)); err != nil {
				return fmt.Errorf("clearing journal: %w", err)
			}
		}
		return nil
	})
}

func (i *Index) Close() error {
	return i.db.Close()
}

// Package outbox queues global records that could not reach the remote tier.
// Entries live in a Badger database under .memory/outbox and are replayed by
// "memkeeper sync".
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/goclaw/memkeeper/pkg/logger"
	"github.com/goclaw/memkeeper/pkg/memory"
)

const (
	keyPrefix  = "outbox:"
	deadPrefix = "dead:"
)

// Entry is a queued record.
type Entry struct {
	ID         string        `json:"id"`
	Record     memory.Record `json:"record"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
	Attempts   int           `json:"attempts"`
	LastError  string        `json:"last_error,omitempty"`
	DeadAt     time.Time     `json:"dead_at,omitzero"`
}

// Config holds configuration for a Queue.
type Config struct {
	Path       string
	SyncWrites bool

	// InMemory keeps the queue in memory only. Used by tests.
	InMemory bool

	Clock  func() time.Time
	Logger logger.Logger
}

// Queue is a FIFO of entries ordered by enqueue time.
type Queue struct {
	db    *badger.DB
	clock func() time.Time
	log   logger.Logger
}

// Open opens or creates the queue at cfg.Path.
func Open(cfg Config) (*Queue, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.SyncWrites = cfg.SyncWrites
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &memory.StorageError{Op: "open outbox", Path: cfg.Path, Err: err}
	}

	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Global()
	}
	return &Queue{
		db:    db,
		clock: cfg.Clock,
		log:   cfg.Logger.With("component", "outbox"),
	}, nil
}

func entryKey(e *Entry) []byte {
	return keyFor(keyPrefix, e)
}

func deadKey(e *Entry) []byte {
	return keyFor(deadPrefix, e)
}

func keyFor(prefix string, e *Entry) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefix, e.EnqueuedAt.UnixNano(), e.ID))
}

func serialize(e *Entry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal outbox entry: %w", err)
	}
	return data, nil
}

// Enqueue appends rec and returns the entry ID.
func (q *Queue) Enqueue(ctx context.Context, rec memory.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e := &Entry{
		ID:         uuid.New().String(),
		Record:     rec,
		EnqueuedAt: q.clock().UTC(),
	}
	data, err := serialize(e)
	if err != nil {
		return "", err
	}

	err = q.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(e), data)
	})
	if err != nil {
		return "", &memory.StorageError{Op: "enqueue", Path: keyPrefix + e.ID, Err: err}
	}

	q.log.InfoContext(ctx, "record queued for remote", "id", e.ID, "category", rec.Category)
	return e.ID, nil
}

// Pending returns up to limit entries, oldest first. A limit <= 0 returns all.
func (q *Queue) Pending(ctx context.Context, limit int) ([]Entry, error) {
	return q.scan(ctx, keyPrefix, limit)
}

// Dead returns up to limit dead-lettered entries, oldest enqueue first.
func (q *Queue) Dead(ctx context.Context, limit int) ([]Entry, error) {
	return q.scan(ctx, deadPrefix, limit)
}

func (q *Queue) scan(ctx context.Context, prefix string, limit int) ([]Entry, error) {
	var entries []Entry

	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e Entry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err != nil {
				q.log.WarnContext(ctx, "skipping unreadable outbox entry", "key", string(it.Item().Key()), "error", err)
				continue
			}
			entries = append(entries, e)
			if limit > 0 && len(entries) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, &memory.StorageError{Op: "read outbox", Path: prefix, Err: err}
	}
	return entries, nil
}

// Len returns the number of queued entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	n := 0
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, &memory.StorageError{Op: "count outbox", Path: keyPrefix, Err: err}
	}
	return n, nil
}

// Remove deletes a delivered entry.
func (q *Queue) Remove(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := q.db.Update(func(txn *badger.Txn) error {
		key := entryKey(&e)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return memory.ErrNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
	if err != nil && !errors.Is(err, memory.ErrNotFound) {
		return &memory.StorageError{Op: "remove outbox entry", Path: keyPrefix + e.ID, Err: err}
	}
	return err
}

// MarkFailed records a failed delivery attempt. The entry keeps its place in
// the queue.
func (q *Queue) MarkFailed(ctx context.Context, e Entry, cause error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.Attempts++
	if cause != nil {
		e.LastError = cause.Error()
	}
	data, err := serialize(&e)
	if err != nil {
		return err
	}
	err = q.db.Update(func(txn *badger.Txn) error {
		return txn.Set(entryKey(&e), data)
	})
	if err != nil {
		return &memory.StorageError{Op: "update outbox entry", Path: keyPrefix + e.ID, Err: err}
	}
	return nil
}

// Bury moves e out of the queue into the dead-letter set, recording the
// final attempt. Buried entries are never replayed.
func (q *Queue) Bury(ctx context.Context, e Entry, cause error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	live := entryKey(&e)
	e.Attempts++
	if cause != nil {
		e.LastError = cause.Error()
	}
	e.DeadAt = q.clock().UTC()
	data, err := serialize(&e)
	if err != nil {
		return err
	}

	err = q.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(live); err != nil {
			return err
		}
		return txn.Set(deadKey(&e), data)
	})
	if err != nil {
		return &memory.StorageError{Op: "bury outbox entry", Path: deadPrefix + e.ID, Err: err}
	}
	q.log.WarnContext(ctx, "record moved to dead letters", "id", e.ID, "attempts", e.Attempts, "error", e.LastError)
	return nil
}

// Close closes the underlying database.
func (q *Queue) Close() error {
	return q.db.Close()
}

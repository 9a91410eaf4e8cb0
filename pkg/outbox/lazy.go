package outbox

import (
	"context"
	"sync"

	"github.com/goclaw/memkeeper/pkg/memory"
)

// Lazy opens the queue on first use. Most hook runs never touch the outbox,
// and an open Badger database holds a directory lock.
type Lazy struct {
	cfg Config

	mu  sync.Mutex
	q   *Queue
	err error
}

// NewLazy returns a queue that is opened with cfg when first needed.
func NewLazy(cfg Config) *Lazy {
	return &Lazy{cfg: cfg}
}

func (l *Lazy) open() (*Queue, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.q == nil && l.err == nil {
		l.q, l.err = Open(l.cfg)
	}
	return l.q, l.err
}

// Enqueue opens the queue and appends rec.
func (l *Lazy) Enqueue(ctx context.Context, rec memory.Record) (string, error) {
	q, err := l.open()
	if err != nil {
		return "", err
	}
	return q.Enqueue(ctx, rec)
}

// Pending opens the queue and returns up to limit entries.
func (l *Lazy) Pending(ctx context.Context, limit int) ([]Entry, error) {
	q, err := l.open()
	if err != nil {
		return nil, err
	}
	return q.Pending(ctx, limit)
}

// Remove opens the queue and deletes e.
func (l *Lazy) Remove(ctx context.Context, e Entry) error {
	q, err := l.open()
	if err != nil {
		return err
	}
	return q.Remove(ctx, e)
}

// MarkFailed opens the queue and records a failed attempt for e.
func (l *Lazy) MarkFailed(ctx context.Context, e Entry, cause error) error {
	q, err := l.open()
	if err != nil {
		return err
	}
	return q.MarkFailed(ctx, e, cause)
}

// Bury opens the queue and dead-letters e.
func (l *Lazy) Bury(ctx context.Context, e Entry, cause error) error {
	q, err := l.open()
	if err != nil {
		return err
	}
	return q.Bury(ctx, e, cause)
}

// Dead opens the queue and returns up to limit dead-lettered entries.
func (l *Lazy) Dead(ctx context.Context, limit int) ([]Entry, error) {
	q, err := l.open()
	if err != nil {
		return nil, err
	}
	return q.Dead(ctx, limit)
}

// Len opens the queue and counts its entries.
func (l *Lazy) Len(ctx context.Context) (int, error) {
	q, err := l.open()
	if err != nil {
		return 0, err
	}
	return q.Len(ctx)
}

// Opened reports whether the queue has been opened.
func (l *Lazy) Opened() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.q != nil
}

// Close closes the queue if it was opened.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.q == nil {
		return nil
	}
	err := l.q.Close()
	l.q = nil
	return err
}

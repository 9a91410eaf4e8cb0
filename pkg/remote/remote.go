// Package remote is the client side of the global memory tier. Every failure
// a Client returns is a *memory.RemoteUnavailableError, so callers can fall
// back to the local tier with a single check.
package remote

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/goclaw/memkeeper/pkg/memory"
)

// ErrNotConfigured is wrapped by the Disabled client's errors.
var ErrNotConfigured = errors.New("remote: no backend configured")

// Client reads and appends global memory records.
type Client interface {
	// Search returns up to limit records relevant to query, best first.
	Search(ctx context.Context, query string, limit int) ([]memory.RemoteRecord, error)

	// List returns up to limit of the most recent records.
	List(ctx context.Context, limit int) ([]memory.RemoteRecord, error)

	// Create stores rec.FullText() and returns the new record ID.
	Create(ctx context.Context, rec memory.Record) (string, error)

	Close() error
}

// Disabled is the Client used when no remote backend is configured. Every
// call fails with a RemoteUnavailableError wrapping ErrNotConfigured.
type Disabled struct{}

func (Disabled) Search(context.Context, string, int) ([]memory.RemoteRecord, error) {
	return nil, notConfigured("search")
}

func (Disabled) List(context.Context, int) ([]memory.RemoteRecord, error) {
	return nil, notConfigured("list")
}

func (Disabled) Create(context.Context, memory.Record) (string, error) {
	return "", notConfigured("create")
}

func (Disabled) Close() error { return nil }

func notConfigured(op string) error {
	return &memory.RemoteUnavailableError{Op: op, Attempts: 0, Err: ErrNotConfigured}
}

// IsNotConfigured reports whether err comes from the Disabled client.
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}

// label maps a record category to the label stored remotely.
func label(rec memory.Record) string {
	if rec.Category == "" {
		return string(memory.CategoryLearning)
	}
	return string(rec.Category)
}

// Texts extracts the text of each record.
func Texts(recs []memory.RemoteRecord) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Text
	}
	return out
}

// searchTerms splits a query into lowercase alphanumeric terms.
func searchTerms(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

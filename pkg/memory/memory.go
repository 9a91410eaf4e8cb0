// Package memory defines the memory record model shared by the local store,
// the remote tier clients and the lifecycle hooks, together with the error
// taxonomy every memkeeper component reports through.
package memory

import (
	"errors"
)

// Sentinel errors for the memory model.
var (
	ErrInvalidTier     = errors.New("memory: invalid tier")
	ErrInvalidCategory = errors.New("memory: invalid category")
	ErrEmptyContent    = errors.New("memory: empty content")
	ErrInvalidCap      = errors.New("memory: retention cap must not be negative")
	ErrNotFound        = errors.New("memory: record not found")
)

// Default knob values. Invalid configuration falls back to these.
const (
	DefaultSearchLimit           = 10
	DefaultDedupThreshold        = 0.85
	DefaultMaxArchivalPerSession = 10
	DefaultMaxLocalPerCategory   = 50
)

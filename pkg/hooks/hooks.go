// Package hooks implements the lifecycle hooks run by the host at session
// start, on every prompt, around tool calls and at session end. Each hook
// reads one JSON document from stdin, prints the context to inject on stdout
// and reports problems on stderr through the logger.
package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/goclaw/memkeeper/pkg/dedup"
	"github.com/goclaw/memkeeper/pkg/localstore"
	"github.com/goclaw/memkeeper/pkg/logger"
	"github.com/goclaw/memkeeper/pkg/memory"
	"github.com/goclaw/memkeeper/pkg/metrics"
	"github.com/goclaw/memkeeper/pkg/outbox"
	"github.com/goclaw/memkeeper/pkg/remote"
	"github.com/goclaw/memkeeper/pkg/sessionlog"
)

// Hook names accepted by Run.
const (
	SessionStart      = "session-start"
	PromptSubmit      = "prompt-submit"
	PostTool          = "post-tool"
	PreToolBash       = "pre-tool-bash"
	SessionEndPrepare = "session-end-prepare"
	SessionEndSave    = "session-end-save"
)

// Exit codes. PreToolBash uses ExitAsk and ExitBlock to steer the host's
// permission prompt.
const (
	ExitOK    = 0
	ExitAsk   = 1
	ExitBlock = 2

	// ExitStorage is returned when a record could not be written.
	ExitStorage = 1
)

// ErrUnknownHook is returned by Run for an unrecognised hook name.
var ErrUnknownHook = errors.New("hooks: unknown hook")

// Outbox is the queue of global records waiting for the remote tier.
type Outbox interface {
	Enqueue(ctx context.Context, rec memory.Record) (string, error)
	Pending(ctx context.Context, limit int) ([]outbox.Entry, error)
	Remove(ctx context.Context, e outbox.Entry) error
	MarkFailed(ctx context.Context, e outbox.Entry, cause error) error
	Bury(ctx context.Context, e outbox.Entry, cause error) error
}

// Settings are the numeric knobs of the hooks.
type Settings struct {
	SearchLimit           int
	DedupThreshold        float64
	MaxArchivalPerSession int
	MaxLocalPerCategory   int
	SummaryPerCategory    int
	PromptResults         int

	// SyncBatch caps the entries replayed by one Sync call (0 = all).
	SyncBatch int

	// SyncMaxAttempts dead-letters an entry once it has failed this many
	// replays (0 = never).
	SyncMaxAttempts int
}

// DefaultSettings returns the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		SearchLimit:           memory.DefaultSearchLimit,
		DedupThreshold:        memory.DefaultDedupThreshold,
		MaxArchivalPerSession: memory.DefaultMaxArchivalPerSession,
		MaxLocalPerCategory:   memory.DefaultMaxLocalPerCategory,
		SummaryPerCategory:    5,
		PromptResults:         5,
		SyncMaxAttempts:       10,
	}
}

// Options configures a Runner.
type Options struct {
	Store    *localstore.Store
	Sessions *sessionlog.Log

	// Remote is the global tier. Nil means remote.Disabled.
	Remote remote.Client

	// RemoteName names the remote tier in the save summary.
	RemoteName string

	// Outbox receives global records that fell back to the local tier.
	// Nil disables queueing.
	Outbox Outbox

	Metrics  *metrics.Manager
	Logger   logger.Logger
	Settings Settings

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Runner executes hooks against one project.
type Runner struct {
	store      *localstore.Store
	sessions   *sessionlog.Log
	remote     remote.Client
	remoteName string
	outbox     Outbox
	metrics    *metrics.Manager
	log        logger.Logger
	settings   Settings
	checker    *dedup.Checker

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// New returns a Runner. Store and Sessions are required.
func New(opts Options) (*Runner, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("hooks: store is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("hooks: session log is required")
	}
	if opts.Remote == nil {
		opts.Remote = remote.Disabled{}
	}
	if opts.RemoteName == "" {
		opts.RemoteName = "remote memory"
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NoOpManager()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Global()
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	def := DefaultSettings()
	s := opts.Settings
	if s.SearchLimit <= 0 {
		s.SearchLimit = def.SearchLimit
	}
	if s.DedupThreshold <= 0 || s.DedupThreshold > 1 {
		s.DedupThreshold = def.DedupThreshold
	}
	if s.MaxArchivalPerSession < 0 {
		s.MaxArchivalPerSession = def.MaxArchivalPerSession
	}
	if s.MaxLocalPerCategory <= 0 {
		s.MaxLocalPerCategory = def.MaxLocalPerCategory
	}
	if s.SummaryPerCategory <= 0 {
		s.SummaryPerCategory = def.SummaryPerCategory
	}
	if s.PromptResults <= 0 {
		s.PromptResults = def.PromptResults
	}

	return &Runner{
		store:      opts.Store,
		sessions:   opts.Sessions,
		remote:     opts.Remote,
		remoteName: opts.RemoteName,
		outbox:     opts.Outbox,
		metrics:    opts.Metrics,
		log:        opts.Logger.With("component", "hooks"),
		settings:   s,
		checker:    dedup.NewChecker(s.DedupThreshold),
		stdin:      opts.Stdin,
		stdout:     opts.Stdout,
		stderr:     opts.Stderr,
	}, nil
}

type handler func(r *Runner, ctx context.Context, in *input) (int, error)

var handlers = map[string]handler{
	SessionStart:      (*Runner).sessionStart,
	PromptSubmit:      (*Runner).promptSubmit,
	PostTool:          (*Runner).postTool,
	PreToolBash:       (*Runner).preToolBash,
	SessionEndPrepare: (*Runner).sessionEndPrepare,
	SessionEndSave:    (*Runner).sessionEndSave,
}

// Names returns the hook names in sorted order.
func Names() []string {
	names := make([]string, 0, len(handlers))
	for name := range handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run reads stdin and executes the named hook. It returns the process exit
// code. A non-nil error is only returned for an unknown hook; every other
// failure is logged and reflected in the exit code.
func (r *Runner) Run(ctx context.Context, name string) (int, error) {
	h, ok := handlers[name]
	if !ok {
		return ExitBlock, fmt.Errorf("%w: %q", ErrUnknownHook, name)
	}

	log := r.log.With("hook", name)
	in := readInput(r.stdin, log)

	code, err := h(r, ctx, in)
	status := "ok"
	switch {
	case err != nil:
		status = "error"
		log.ErrorContext(ctx, "hook failed", "error", err)
	case code != ExitOK:
		status = fmt.Sprintf("exit_%d", code)
	}
	r.metrics.RecordHook(name, status)
	return code, nil
}

// input is the union of the fields the host sends to the hooks.
type input struct {
	// valid is false when stdin was empty or not valid JSON.
	valid bool

	SessionID string          `json:"session_id"`
	Cwd       string          `json:"cwd"`
	Prompt    string          `json:"prompt"`
	ToolName  string          `json:"tool_name"`
	ToolInput toolInput       `json:"tool_input"`
	Memories  json.RawMessage `json:"memories"`
}

type toolInput struct {
	FilePath    string            `json:"file_path"`
	OldString   string            `json:"old_string"`
	NewString   string            `json:"new_string"`
	Edits       []json.RawMessage `json:"edits"`
	Content     string            `json:"content"`
	Command     string            `json:"command"`
	Description string            `json:"description"`
}

func readInput(rd io.Reader, log logger.Logger) *input {
	in := &input{}
	data, err := io.ReadAll(rd)
	if err != nil {
		log.Warn("failed to read hook input", "error", err)
		return in
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return in
	}
	if err := json.Unmarshal(data, in); err != nil {
		log.Debug("hook input is not valid JSON", "error", err)
		return &input{}
	}
	in.valid = true
	return in
}

func (r *Runner) printf(format string, args ...any) {
	fmt.Fprintf(r.stdout, format, args...)
}

// remoteFailed logs a remote failure at a level matching its cause.
func (r *Runner) remoteFailed(ctx context.Context, op string, err error) {
	if remote.IsNotConfigured(err) {
		r.log.DebugContext(ctx, "remote tier not configured", "op", op)
		return
	}
	r.log.WarnContext(ctx, "remote tier unavailable", "op", op, "error", err)
}

func remoteCorpus(recs []memory.RemoteRecord) *dedup.Corpus {
	return dedup.NewCorpus(remote.Texts(recs)...)
}

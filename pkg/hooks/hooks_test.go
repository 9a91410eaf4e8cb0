package hooks

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/memkeeper/pkg/localstore"
	"github.com/goclaw/memkeeper/pkg/logger"
	"github.com/goclaw/memkeeper/pkg/memory"
	"github.com/goclaw/memkeeper/pkg/sessionlog"
)

// fakeRemote is an in-memory remote tier.
type fakeRemote struct {
	mu        sync.Mutex
	records   []memory.RemoteRecord
	created   []memory.Record
	err       error
	createErr error

	// rejectPrefix makes Create refuse records whose content starts with it.
	rejectPrefix string
}

func (f *fakeRemote) Search(_ context.Context, _ string, limit int) ([]memory.RemoteRecord, error) {
	return f.List(context.Background(), limit)
}

func (f *fakeRemote) List(_ context.Context, limit int) ([]memory.RemoteRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := f.records
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return append([]memory.RemoteRecord(nil), out...), nil
}

func (f *fakeRemote) Create(_ context.Context, rec memory.Record) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	if f.createErr != nil {
		return "", f.createErr
	}
	if f.rejectPrefix != "" && strings.HasPrefix(rec.Content, f.rejectPrefix) {
		return "", &memory.RemoteUnavailableError{Op: "create", Attempts: 1, Err: fmt.Errorf("422 unprocessable entity"), Rejected: true}
	}
	f.created = append(f.created, rec)
	id := fmt.Sprintf("r%d", len(f.created))
	f.records = append([]memory.RemoteRecord{{ID: id, Text: rec.FullText()}}, f.records...)
	return id, nil
}

func (f *fakeRemote) Close() error { return nil }

func unavailable(op string) error {
	return &memory.RemoteUnavailableError{Op: op, Attempts: 3, Err: context.DeadlineExceeded}
}

type harness struct {
	runner   *Runner
	store    *localstore.Store
	sessions *sessionlog.Log
	stdout   *bytes.Buffer
	stderr   *bytes.Buffer
}

func newHarness(t *testing.T, configure func(*Options)) *harness {
	t.Helper()
	root := t.TempDir() + "/" + localstore.DirName
	h := &harness{
		store:    localstore.New(root, localstore.Options{Logger: logger.NewNop()}),
		sessions: sessionlog.New(root+"/"+localstore.SessionsDir, sessionlog.Options{Logger: logger.NewNop()}),
		stdout:   &bytes.Buffer{},
		stderr:   &bytes.Buffer{},
	}
	opts := Options{
		Store:      h.store,
		Sessions:   h.sessions,
		RemoteName: "test remote",
		Logger:     logger.NewNop(),
		Settings:   DefaultSettings(),
		Stdout:     h.stdout,
		Stderr:     h.stderr,
	}
	if configure != nil {
		configure(&opts)
	}
	r, err := New(opts)
	require.NoError(t, err)
	h.runner = r
	return h
}

// run executes a hook with stdin and returns its exit code. Output buffers
// are reset first.
func (h *harness) run(t *testing.T, name, stdin string) int {
	t.Helper()
	h.stdout.Reset()
	h.stderr.Reset()
	h.runner.stdin = strings.NewReader(stdin)
	code, err := h.runner.Run(context.Background(), name)
	require.NoError(t, err)
	return code
}

func (h *harness) write(t *testing.T, content string, category memory.Category) {
	t.Helper()
	rec, err := memory.NewRecord(content, memory.TierProject, category, "")
	require.NoError(t, err)
	_, err = h.store.Write(context.Background(), rec)
	require.NoError(t, err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)

	store := localstore.New(t.TempDir(), localstore.Options{})
	_, err = New(Options{Store: store})
	assert.Error(t, err)

	r, err := New(Options{Store: store, Sessions: sessionlog.New(t.TempDir(), sessionlog.Options{})})
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings().SearchLimit, r.settings.SearchLimit)
	assert.Equal(t, DefaultSettings().DedupThreshold, r.settings.DedupThreshold)
	assert.Equal(t, 0, r.settings.MaxArchivalPerSession)
}

func TestRun_UnknownHook(t *testing.T) {
	h := newHarness(t, nil)
	code, err := h.runner.Run(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownHook)
	assert.NotEqual(t, ExitOK, code)
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{
		PostTool, PreToolBash, PromptSubmit, SessionEndPrepare, SessionEndSave, SessionStart,
	}, Names())
}

// Package sessionlog keeps the append-only per-day log of tool invocations
// under <memory root>/sessions/YYYY-MM-DD.session.jsonl, one JSON object per
// line.
package sessionlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goclaw/memkeeper/pkg/logger"
	"github.com/goclaw/memkeeper/pkg/memory"
)

// DateLayout names session log files.
const DateLayout = "2006-01-02"

const fileSuffix = ".session.jsonl"

// maxFilesListed bounds Summary.Files.
const maxFilesListed = 10

// Event types written by the post-tool hook.
const (
	TypeEdit      = "edit"
	TypeMultiEdit = "multiedit"
	TypeWrite     = "write"
	TypeBash      = "bash"
)

// Event is one logged tool invocation.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`

	File             string `json:"file,omitempty"`
	OldStringPreview string `json:"old_string_preview,omitempty"`
	NewStringPreview string `json:"new_string_preview,omitempty"`
	EditCount        int    `json:"edit_count,omitempty"`
	ContentLength    int    `json:"content_length,omitempty"`
	CommandPreview   string `json:"command_preview,omitempty"`
}

// Options configures a Log.
type Options struct {
	Clock  func() time.Time
	Logger logger.Logger
}

// Log is the session log directory.
type Log struct {
	dir   string
	clock func() time.Time
	log   logger.Logger
}

// New returns a session log stored in dir.
func New(dir string, opts Options) *Log {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.Global()
	}
	return &Log{dir: dir, clock: opts.Clock, log: opts.Logger.With("component", "sessionlog")}
}

// Path returns the log file for the calendar day of date.
func (l *Log) Path(date time.Time) string {
	return filepath.Join(l.dir, date.Format(DateLayout)+fileSuffix)
}

// Today returns the current calendar day per the log's clock.
func (l *Log) Today() time.Time {
	return l.clock()
}

// Append adds ev to today's log, creating the file on first use. A zero
// Timestamp is set to now.
func (l *Log) Append(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := l.clock()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = now
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return &memory.StorageError{Op: "mkdir", Path: l.dir, Err: err}
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}
	line = append(line, '\n')

	path := l.Path(now)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &memory.StorageError{Op: "open", Path: path, Err: err}
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return &memory.StorageError{Op: "append", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &memory.StorageError{Op: "close", Path: path, Err: err}
	}

	l.log.DebugContext(ctx, "session event logged", "type", ev.Type, "path", path)
	return nil
}

// Load reads the events logged on the calendar day of date. A missing file
// yields no events. Malformed lines are skipped.
func (l *Log) Load(date time.Time) ([]Event, error) {
	path := l.Path(date)
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &memory.StorageError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	skipped := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			skipped++
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return events, &memory.StorageError{Op: "read", Path: path, Err: err}
	}
	if skipped > 0 {
		l.log.Warn("skipped malformed session log lines", "path", path, "count", skipped)
	}
	return events, nil
}

// Summary is the activity recorded in a session log.
type Summary struct {
	Edits      int      `json:"edits"`
	MultiEdits int      `json:"multi_edits"`
	Writes     int      `json:"writes"`
	Commands   int      `json:"commands"`
	Files      []string `json:"files,omitempty"`
}

// Summarize counts events by type and collects up to ten modified files in
// sorted order.
func Summarize(events []Event) Summary {
	var s Summary
	files := make(map[string]struct{})
	for _, ev := range events {
		switch ev.Type {
		case TypeEdit:
			s.Edits++
		case TypeMultiEdit:
			s.MultiEdits++
		case TypeWrite:
			s.Writes++
		case TypeBash:
			s.Commands++
		}
		if ev.File != "" {
			files[ev.File] = struct{}{}
		}
	}
	for f := range files {
		s.Files = append(s.Files, f)
	}
	sort.Strings(s.Files)
	if len(s.Files) > maxFilesListed {
		s.Files = s.Files[:maxFilesListed]
	}
	return s
}

// Empty reports whether no activity was recorded.
func (s Summary) Empty() bool {
	return s.Edits+s.MultiEdits+s.Writes+s.Commands == 0 && len(s.Files) == 0
}

// Lines renders the summary as bullet-ready lines.
func (s Summary) Lines() []string {
	if s.Empty() {
		return nil
	}
	lines := []string{fmt.Sprintf("Session activity: %d edits, %d writes, %d commands", s.Edits+s.MultiEdits, s.Writes, s.Commands)}
	if len(s.Files) > 0 {
		lines = append(lines, "Files modified: "+strings.Join(s.Files, ", "))
	}
	return lines
}

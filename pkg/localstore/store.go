// Package localstore persists project-tier memory records as one file per
// record under <project>/.memory/<category>/.
//
// Files are named "<stamp>-<slug>.md" where stamp is the UTC creation time
// with nanosecond precision. Stamps are strictly increasing within a
// category, so file name order is creation order. Writes go to a temporary
// file that is renamed into place. Nothing is cached between calls.
package localstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goclaw/memkeeper/pkg/logger"
	"github.com/goclaw/memkeeper/pkg/memory"
)

// DirName is the memory root directory inside a project.
const DirName = ".memory"

// SessionsDir holds the per-day session logs.
const SessionsDir = "sessions"

// OutboxDir holds the queue of global records waiting for the remote tier.
const OutboxDir = "outbox"

const gitignore = "sessions/*.session.jsonl\noutbox/\n"

// Options configures a Store.
type Options struct {
	// Clock returns the current time. Defaults to time.Now.
	Clock func() time.Time

	Logger logger.Logger
}

// Store is the project-local memory tier.
type Store struct {
	root  string
	clock func() time.Time
	log   logger.Logger
}

// New returns a store rooted at root, usually <project>/.memory. The
// directory is not touched until Initialize or Write.
func New(root string, opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logger.Global()
	}
	return &Store{
		root:  root,
		clock: opts.Clock,
		log:   opts.Logger.With("component", "localstore"),
	}
}

// Root returns the memory root directory.
func (s *Store) Root() string {
	return s.root
}

// Exists reports whether the memory root directory exists.
func (s *Store) Exists() bool {
	info, err := os.Stat(s.root)
	return err == nil && info.IsDir()
}

// Initialize creates the category and session directories and a .gitignore
// that keeps session logs and the outbox out of version control. An existing
// .gitignore is left alone.
func (s *Store) Initialize() error {
	dirs := []string{SessionsDir}
	for _, c := range memory.Categories() {
		dirs = append(dirs, c.Dir())
	}
	for _, d := range dirs {
		path := filepath.Join(s.root, d)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return &memory.StorageError{Op: "mkdir", Path: path, Err: err}
		}
	}

	path := filepath.Join(s.root, ".gitignore")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, []byte(gitignore), 0o644); err != nil {
		return &memory.StorageError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// Write stores rec as a new file in its category directory and returns the
// file path. CreatedAt is set to the write time; an empty ID or title is
// filled in. The record content is stored verbatim.
func (s *Store) Write(ctx context.Context, rec memory.Record) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(rec.Content) == "" {
		return "", memory.ErrEmptyContent
	}
	category, err := memory.ParseCategory(string(rec.Category))
	if err != nil {
		return "", err
	}
	rec.Category = category
	if rec.Tier == "" {
		rec.Tier = memory.TierProject
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Title == "" {
		rec.Title = memory.DeriveTitle(rec.Content)
	}

	dir := s.categoryDir(category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &memory.StorageError{Op: "mkdir", Path: dir, Err: err}
	}

	files, err := s.scan(category)
	if err != nil {
		return "", err
	}
	stamp := s.clock().UTC()
	if n := len(files); n > 0 && !stamp.After(files[n-1].created) {
		stamp = files[n-1].created.Add(time.Nanosecond)
	}
	rec.CreatedAt = stamp
	rec.Path = ""

	data, err := encodeRecord(&rec)
	if err != nil {
		return "", &memory.StorageError{Op: "encode", Path: dir, Err: err}
	}

	path := filepath.Join(dir, fileName(stamp, rec.Title))
	if err := writeAtomic(dir, path, data); err != nil {
		return "", err
	}

	s.log.DebugContext(ctx, "memory record written", "category", category, "path", path)
	return path, nil
}

// writeAtomic writes data to a temporary file in dir and renames it to path.
func writeAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return &memory.StorageError{Op: "create", Path: dir, Err: err}
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return &memory.StorageError{Op: "write", Path: tmpName, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return &memory.StorageError{Op: "sync", Path: tmpName, Err: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return &memory.StorageError{Op: "close", Path: tmpName, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return &memory.StorageError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// List returns the records of category in creation order. The sequence reads
// the directory afresh each time it is ranged over. A file that cannot be
// read or parsed yields a *memory.StorageError; ranging may continue past it.
func (s *Store) List(category memory.Category) iter.Seq2[*memory.Record, error] {
	return func(yield func(*memory.Record, error) bool) {
		c, err := memory.ParseCategory(string(category))
		if err != nil {
			yield(nil, err)
			return
		}
		files, err := s.scan(c)
		if err != nil {
			yield(nil, err)
			return
		}
		for _, f := range files {
			rec, err := s.read(c, f)
			if !yield(rec, err) {
				return
			}
		}
	}
}

// Records returns the readable records of category in creation order. A
// file that cannot be read or parsed is logged and skipped, so one damaged
// record never hides the rest; only an unlistable category fails.
func (s *Store) Records(category memory.Category) ([]*memory.Record, error) {
	c, err := memory.ParseCategory(string(category))
	if err != nil {
		return nil, err
	}
	files, err := s.scan(c)
	if err != nil {
		return nil, err
	}

	out := make([]*memory.Record, 0, len(files))
	for _, f := range files {
		rec, err := s.read(c, f)
		if err != nil {
			s.log.Warn("skipping unreadable memory file", "category", c, "error", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Count returns the number of records in category.
func (s *Store) Count(category memory.Category) (int, error) {
	c, err := memory.ParseCategory(string(category))
	if err != nil {
		return 0, err
	}
	files, err := s.scan(c)
	return len(files), err
}

// EnforceCap deletes the oldest records of category until at most maxCount
// remain and returns how many were deleted.
func (s *Store) EnforceCap(ctx context.Context, category memory.Category, maxCount int) (int, error) {
	if maxCount < 0 {
		return 0, memory.ErrInvalidCap
	}
	c, err := memory.ParseCategory(string(category))
	if err != nil {
		return 0, err
	}
	files, err := s.scan(c)
	if err != nil {
		return 0, err
	}

	surplus := len(files) - maxCount
	if surplus <= 0 {
		return 0, nil
	}

	removed := 0
	for _, f := range files[:surplus] {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, &memory.StorageError{Op: "remove", Path: f.path, Err: err}
		}
		removed++
	}

	s.log.InfoContext(ctx, "retention cap enforced", "category", c, "max", maxCount, "evicted", removed)
	return removed, nil
}

// ContextSummary renders the newest perCategory records of every category as
// a "# Project Memory" markdown block. It returns "" when the store is empty
// or missing.
func (s *Store) ContextSummary(perCategory int) (string, error) {
	if !s.Exists() {
		return "", nil
	}
	if perCategory <= 0 {
		perCategory = 5
	}

	var sections []string
	for _, c := range memory.Categories() {
		recs, err := s.Records(c)
		if err != nil {
			return "", err
		}
		if len(recs) == 0 {
			continue
		}
		if len(recs) > perCategory {
			recs = recs[len(recs)-perCategory:]
		}

		var b strings.Builder
		fmt.Fprintf(&b, "## %s\n", c.Title())
		for i := len(recs) - 1; i >= 0; i-- {
			fmt.Fprintf(&b, "- **%s**: %s\n", recs[i].Title, memory.Truncate(recs[i].Content, 200))
		}
		sections = append(sections, b.String())
	}

	if len(sections) == 0 {
		return "", nil
	}
	return "# Project Memory\n\n" + strings.Join(sections, "\n"), nil
}

func (s *Store) categoryDir(c memory.Category) string {
	return filepath.Join(s.root, c.Dir())
}

type recordFile struct {
	name    string
	path    string
	created time.Time
	modTime time.Time
}

// scan lists the record files of a category sorted by creation time. Files
// written by this package carry their stamp in the name; other .md files are
// ordered by modification time.
func (s *Store) scan(c memory.Category) ([]recordFile, error) {
	dir := s.categoryDir(c)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &memory.StorageError{Op: "readdir", Path: dir, Err: err}
	}

	files := make([]recordFile, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != fileExt {
			continue
		}
		info, err := e.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, &memory.StorageError{Op: "stat", Path: filepath.Join(dir, name), Err: err}
		}
		f := recordFile{
			name:    name,
			path:    filepath.Join(dir, name),
			modTime: info.ModTime(),
		}
		if stamp, ok := parseStamp(name); ok {
			f.created = stamp
		} else {
			f.created = info.ModTime().UTC()
		}
		files = append(files, f)
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].created.Equal(files[j].created) {
			return files[i].created.Before(files[j].created)
		}
		return files[i].name < files[j].name
	})
	return files, nil
}

func (s *Store) read(c memory.Category, f recordFile) (*memory.Record, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, &memory.StorageError{Op: "read", Path: f.path, Err: err}
	}
	rec, err := decodeRecord(data, c, f.modTime, strings.TrimSuffix(f.name, fileExt))
	if err != nil {
		return nil, &memory.StorageError{Op: "decode", Path: f.path, Err: err}
	}
	rec.Path = f.path
	return rec, nil
}

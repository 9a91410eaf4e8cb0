package localstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goclaw/memkeeper/pkg/logger"
	"github.com/goclaw/memkeeper/pkg/memory"
)

var testBase = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), DirName), Options{
		Clock:  func() time.Time { return testBase },
		Logger: logger.NewNop(),
	})
}

func mustRecord(t *testing.T, content string, category memory.Category) memory.Record {
	t.Helper()
	rec, err := memory.NewRecord(content, memory.TierProject, category, "")
	require.NoError(t, err)
	return rec
}

func TestStore_Initialize(t *testing.T) {
	s := newTestStore(t)
	require.False(t, s.Exists())
	require.NoError(t, s.Initialize())
	assert.True(t, s.Exists())

	for _, d := range []string{"decisions", "patterns", "learnings", "sessions"} {
		info, err := os.Stat(filepath.Join(s.Root(), d))
		require.NoError(t, err, d)
		assert.True(t, info.IsDir())
	}

	data, err := os.ReadFile(filepath.Join(s.Root(), ".gitignore"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "sessions/*.session.jsonl")
	assert.Contains(t, string(data), "outbox/")

	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), ".gitignore"), []byte("custom\n"), 0o644))
	require.NoError(t, s.Initialize())
	data, err = os.ReadFile(filepath.Join(s.Root(), ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, "custom\n", string(data))
}

func TestStore_WriteThenList_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	contents := []string{
		"Use WAL mode for SQLite",
		"Multi-line\n\n---\nnot front matter\n  indented\n",
		"Ünïcødé content with trailing spaces   ",
		"---\nstarts with a delimiter",
	}

	for _, content := range contents {
		rec := mustRecord(t, content, memory.CategoryLearning)
		rec.Reason = "reason: with a colon"
		path, err := s.Write(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(s.Root(), "learnings"), filepath.Dir(path))

		var found []*memory.Record
		for got, err := range s.List(memory.CategoryLearning) {
			require.NoError(t, err)
			if got.ID == rec.ID {
				found = append(found, got)
			}
		}
		require.Len(t, found, 1)
		assert.Equal(t, content, found[0].Content)
		assert.Equal(t, path, found[0].Path)
		assert.Equal(t, rec.Reason, found[0].Reason)
		assert.Equal(t, memory.TierProject, found[0].Tier)
		assert.False(t, found[0].CreatedAt.IsZero())
	}
}

func TestStore_Write_Errors(t *testing.T) {
	ctx := context.Background()

	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	s := New(filepath.Join(blocker, DirName), Options{Logger: logger.NewNop()})

	_, err := s.Write(ctx, mustRecord(t, "content", memory.CategoryDecision))
	require.Error(t, err)
	assert.True(t, memory.IsStorageError(err))

	s = newTestStore(t)
	_, err = s.Write(ctx, memory.Record{Content: "  ", Category: memory.CategoryDecision})
	assert.ErrorIs(t, err, memory.ErrEmptyContent)

	_, err = s.Write(ctx, memory.Record{Content: "x", Category: "note"})
	assert.ErrorIs(t, err, memory.ErrInvalidCategory)
}

func TestStore_Write_StampsIncrease(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var paths []string
	for i := 0; i < 3; i++ {
		p, err := s.Write(ctx, mustRecord(t, "same content", memory.CategoryPattern))
		require.NoError(t, err)
		paths = append(paths, filepath.Base(p))
	}

	assert.Equal(t, "20260314T092653.000000000Z-same-content.md", paths[0])
	assert.Equal(t, "20260314T092653.000000001Z-same-content.md", paths[1])
	assert.Equal(t, "20260314T092653.000000002Z-same-content.md", paths[2])
}

func TestStore_List_Restartable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for i := 0; i < 4; i++ {
		_, err := s.Write(ctx, mustRecord(t, fmt.Sprintf("pattern %d", i), memory.CategoryPattern))
		require.NoError(t, err)
	}

	seq := s.List(memory.CategoryPattern)
	count := func() int {
		n := 0
		for _, err := range seq {
			require.NoError(t, err)
			n++
		}
		return n
	}
	assert.Equal(t, 4, count())
	assert.Equal(t, 4, count())

	first := ""
	for rec, err := range seq {
		require.NoError(t, err)
		first = rec.Content
		break
	}
	assert.Equal(t, "pattern 0", first)

	_, err := s.Write(ctx, mustRecord(t, "pattern 4", memory.CategoryPattern))
	require.NoError(t, err)
	assert.Equal(t, 5, count())
}

func TestStore_List_MissingCategoryDir(t *testing.T) {
	s := newTestStore(t)
	recs, err := s.Records(memory.CategoryDecision)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestStore_List_SkipsTempAndForeignFiles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, err := s.Write(ctx, mustRecord(t, "kept", memory.CategoryDecision))
	require.NoError(t, err)

	dir := filepath.Join(s.Root(), "decisions")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tmp-123"), []byte("partial"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	recs, err := s.Records(memory.CategoryDecision)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "kept", recs[0].Content)
}

func TestStore_List_LegacyAndCorruptFiles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Initialize())
	dir := filepath.Join(s.Root(), "decisions")

	legacy := filepath.Join(dir, "use-postgres.md")
	require.NoError(t, os.WriteFile(legacy, []byte("# Use Postgres\n\nChosen for JSONB support.\n"), 0o644))
	old := testBase.Add(-time.Hour)
	require.NoError(t, os.Chtimes(legacy, old, old))

	_, err := s.Write(ctx, mustRecord(t, "newer decision", memory.CategoryDecision))
	require.NoError(t, err)

	corrupt := filepath.Join(dir, "20270101T000000.000000000Z-broken.md")
	require.NoError(t, os.WriteFile(corrupt, []byte("---\nid: [unterminated\n"), 0o644))

	var recs []*memory.Record
	var errs []error
	for rec, err := range s.List(memory.CategoryDecision) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		recs = append(recs, rec)
	}

	require.Len(t, recs, 2)
	assert.Equal(t, "Use Postgres", recs[0].Title)
	assert.Equal(t, "Chosen for JSONB support.", recs[0].Content)
	assert.Equal(t, memory.CategoryDecision, recs[0].Category)
	assert.Equal(t, "newer decision", recs[1].Content)

	require.Len(t, errs, 1)
	assert.True(t, memory.IsStorageError(errs[0]))
}

func TestStore_CorruptFileDoesNotHideOthers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Initialize())

	_, err := s.Write(ctx, mustRecord(t, "Use Postgres for the archival store", memory.CategoryDecision))
	require.NoError(t, err)
	_, err = s.Write(ctx, mustRecord(t, "Cache search results in Redis", memory.CategoryDecision))
	require.NoError(t, err)
	learning, err := s.Write(ctx, mustRecord(t, "Badger needs a directory lock", memory.CategoryLearning))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(learning, []byte("---\nid: [unterminated\n"), 0o644))

	recs, err := s.Records(memory.CategoryLearning)
	require.NoError(t, err)
	assert.Empty(t, recs)

	recs, err = s.Records(memory.CategoryDecision)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	summary, err := s.ContextSummary(5)
	require.NoError(t, err)
	assert.Contains(t, summary, "Use Postgres for the archival store")
	assert.NotContains(t, summary, "## Learnings")

	hits, err := s.Search(ctx, "postgres", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "Use Postgres for the archival store", hits[0].Record.Content)
}

func TestStore_EnforceCap(t *testing.T) {
	tests := []struct {
		name        string
		count       int
		max         int
		wantRemoved int
	}{
		{"under cap", 3, 5, 0},
		{"at cap", 5, 5, 0},
		{"over cap", 7, 4, 3},
		{"zero cap", 2, 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := newTestStore(t)
			for i := 0; i < tt.count; i++ {
				_, err := s.Write(ctx, mustRecord(t, fmt.Sprintf("learning %d", i), memory.CategoryLearning))
				require.NoError(t, err)
			}

			removed, err := s.EnforceCap(ctx, memory.CategoryLearning, tt.max)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRemoved, removed)

			recs, err := s.Records(memory.CategoryLearning)
			require.NoError(t, err)
			want := min(tt.max, tt.count)
			require.Len(t, recs, want)
			for i, rec := range recs {
				assert.Equal(t, fmt.Sprintf("learning %d", tt.count-want+i), rec.Content)
			}
		})
	}
}

func TestStore_EnforceCap_FiftyOne(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 1; i <= 51; i++ {
		_, err := s.Write(ctx, mustRecord(t, fmt.Sprintf("learning number %d", i), memory.CategoryLearning))
		require.NoError(t, err)
	}

	removed, err := s.EnforceCap(ctx, memory.CategoryLearning, memory.DefaultMaxLocalPerCategory)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	entries, err := os.ReadDir(filepath.Join(s.Root(), "learnings"))
	require.NoError(t, err)
	assert.Len(t, entries, 50)

	recs, err := s.Records(memory.CategoryLearning)
	require.NoError(t, err)
	require.Len(t, recs, 50)
	assert.Equal(t, "learning number 2", recs[0].Content)
	assert.Equal(t, "learning number 51", recs[49].Content)
}

func TestStore_EnforceCap_Invalid(t *testing.T) {
	s := newTestStore(t)
	_, err := s.EnforceCap(context.Background(), memory.CategoryLearning, -1)
	assert.ErrorIs(t, err, memory.ErrInvalidCap)

	_, err = s.EnforceCap(context.Background(), "bogus", 1)
	assert.ErrorIs(t, err, memory.ErrInvalidCategory)
}

func TestStore_ContextSummary(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	summary, err := s.ContextSummary(5)
	require.NoError(t, err)
	assert.Empty(t, summary)

	require.NoError(t, s.Initialize())
	summary, err = s.ContextSummary(5)
	require.NoError(t, err)
	assert.Empty(t, summary)

	for i := 0; i < 7; i++ {
		_, err := s.Write(ctx, mustRecord(t, fmt.Sprintf("decision %d", i), memory.CategoryDecision))
		require.NoError(t, err)
	}
	_, err = s.Write(ctx, mustRecord(t, strings.Repeat("x", 250), memory.CategoryPattern))
	require.NoError(t, err)

	summary, err = s.ContextSummary(5)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(summary, "# Project Memory\n\n## Decisions\n"))
	assert.Contains(t, summary, "- **decision 6**: decision 6\n")
	assert.Contains(t, summary, "- **decision 2**: decision 2\n")
	assert.NotContains(t, summary, "decision 1")
	assert.Less(t, strings.Index(summary, "decision 6"), strings.Index(summary, "decision 5"))
	assert.Contains(t, summary, "## Patterns\n")
	assert.Contains(t, summary, strings.Repeat("x", 200)+"...")
	assert.NotContains(t, summary, "## Learnings")
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Use Postgres over MySQL", "use-postgres-over-mysql"},
		{"  spaced -- out  ", "spaced-out"},
		{"Ünïcødé!", "ncd"},
		{"!!!", "memory"},
		{strings.Repeat("ab ", 30), "ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab-ab"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, slugify(tt.in))
		})
	}
}

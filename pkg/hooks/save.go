package hooks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goclaw/memkeeper/pkg/dedup"
	"github.com/goclaw/memkeeper/pkg/localstore"
	"github.com/goclaw/memkeeper/pkg/memory"
	"github.com/goclaw/memkeeper/pkg/remote"
	"github.com/goclaw/memkeeper/pkg/router"
	"github.com/goclaw/memkeeper/pkg/sessionlog"
)

// remoteCorpusSize is how many recent remote records global candidates are
// compared against.
const remoteCorpusSize = 100

const extractionInstructions = "## Memory Extraction Instructions\n" +
	"\n" +
	"Review this session and extract valuable memories. For each memory, determine:\n" +
	"\n" +
	"1. **Tier**: Where should it be stored?\n" +
	"   - `global`: Cross-project patterns, general best practices, reusable insights\n" +
	"   - `project`: Project-specific decisions, local conventions, implementation details\n" +
	"\n" +
	"2. **Category**: What type of memory?\n" +
	"   - `decision`: Architecture/design decisions with rationale\n" +
	"   - `pattern`: Code patterns, conventions, or techniques\n" +
	"   - `learning`: Bug fixes, troubleshooting steps, insights\n" +
	"\n" +
	"3. **Content**: What was learned? Be specific and actionable.\n" +
	"\n" +
	"Output JSON format:\n" +
	"```json\n" +
	"{\n" +
	"  \"memories\": [\n" +
	"    {\n" +
	"      \"content\": \"Description of what was learned\",\n" +
	"      \"tier\": \"global|project\",\n" +
	"      \"category\": \"decision|pattern|learning\",\n" +
	"      \"reason\": \"Why this is worth remembering\"\n" +
	"    }\n" +
	"  ]\n" +
	"}\n" +
	"```\n" +
	"\n" +
	"Only extract memories that would be valuable for future sessions. Skip:\n" +
	"- Trivial changes (typo fixes, simple renames)\n" +
	"- One-off tasks with no reusable insight\n" +
	"- Information already documented elsewhere\n"

// sessionEndPrepare prints today's activity and the extraction instructions
// the host uses to produce the session-end-save payload.
func (r *Runner) sessionEndPrepare(ctx context.Context, _ *input) (int, error) {
	var summary sessionlog.Summary
	events, err := r.sessions.Load(r.sessions.Today())
	if err != nil {
		r.log.WarnContext(ctx, "failed to load session log", "error", err)
	} else {
		summary = sessionlog.Summarize(events)
	}

	var b strings.Builder
	b.WriteString("<session-end-context>\n")
	if lines := summary.Lines(); len(lines) > 0 {
		b.WriteString("## Session Summary\n")
		for _, l := range lines {
			fmt.Fprintf(&b, "- %s\n", l)
		}
		b.WriteString("\n")
	}
	b.WriteString(extractionInstructions)
	b.WriteString("</session-end-context>\n")
	r.printf("%s", b.String())
	return ExitOK, nil
}

// SaveResult counts the outcome of one session-end-save run.
type SaveResult struct {
	Global     int
	Project    int
	Fallback   int
	Queued     int
	Duplicates int
	Failed     int
}

// saveRun is the state of one session-end-save invocation.
type saveRun struct {
	r *Runner

	local *dedup.Corpus

	remoteCorpus *dedup.Corpus
	remoteDown   bool
	// queue is false when no remote backend is configured at all.
	queue bool

	touched map[memory.Category]struct{}
	result  SaveResult
}

// sessionEndSave persists the memories extracted by the host.
func (r *Runner) sessionEndSave(ctx context.Context, in *input) (int, error) {
	var payload struct {
		Memories []memory.ExtractedItem `json:"memories"`
	}
	if !in.valid || len(in.Memories) == 0 || json.Unmarshal(in.Memories, &payload.Memories) != nil {
		fmt.Fprintln(r.stderr, "<!-- No memory data received -->")
		return ExitOK, nil
	}
	if len(payload.Memories) == 0 {
		r.printf("<!-- No memories to save -->\n")
		return ExitOK, nil
	}

	res, err := r.Save(ctx, payload.Memories)
	r.printf("%s", r.renderSummary(res))
	if err != nil {
		fmt.Fprintf(r.stderr, "memkeeper: %v\n", err)
		return ExitStorage, nil
	}
	return ExitOK, nil
}

// Save routes, deduplicates and persists items. Remote failures fall back to
// the local tier. The returned error is the first storage failure; items
// after it are still attempted.
func (r *Runner) Save(ctx context.Context, items []memory.ExtractedItem) (SaveResult, error) {
	run := &saveRun{
		r:       r,
		touched: make(map[memory.Category]struct{}),
		queue:   r.outbox != nil,
	}

	if err := r.store.Initialize(); err != nil {
		r.log.ErrorContext(ctx, "failed to initialise memory directory", "error", err)
		return run.result, err
	}
	run.local = r.localCorpus(ctx)

	var firstErr error
	for _, routed := range router.Partition(items, r.settings.MaxArchivalPerSession) {
		if err := ctx.Err(); err != nil {
			return run.result, err
		}
		if routed.Demoted {
			r.log.InfoContext(ctx, "archival cap reached, storing in project tier",
				"max", r.settings.MaxArchivalPerSession, "title", memory.DeriveTitle(routed.Item.Content))
		}
		rec, err := routed.Record()
		if err != nil {
			r.log.WarnContext(ctx, "skipping invalid memory item", "error", err)
			continue
		}

		if rec.Tier == memory.TierGlobal {
			err = run.saveGlobal(ctx, rec)
		} else {
			err = run.saveLocal(ctx, rec)
		}
		if err != nil {
			run.result.Failed++
			r.log.ErrorContext(ctx, "failed to save memory", "title", rec.Title, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	for c := range run.touched {
		n, err := r.store.EnforceCap(ctx, c, r.settings.MaxLocalPerCategory)
		if err != nil {
			r.log.ErrorContext(ctx, "failed to enforce retention cap", "category", c, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
		r.metrics.RecordEvictions(string(c), n)
	}

	return run.result, firstErr
}

// localCorpus loads the content of every readable local record.
func (r *Runner) localCorpus(ctx context.Context) *dedup.Corpus {
	corpus := dedup.NewCorpus()
	for _, c := range memory.Categories() {
		for rec, err := range r.store.List(c) {
			if err != nil {
				r.log.WarnContext(ctx, "skipping unreadable memory file", "error", err)
				continue
			}
			corpus.Add(rec.Content)
		}
	}
	return corpus
}

func (s *saveRun) markDown(ctx context.Context, op string, err error) {
	s.r.remoteFailed(ctx, op, err)
	s.remoteDown = true
	if remote.IsNotConfigured(err) {
		s.queue = false
	}
}

func (s *saveRun) saveGlobal(ctx context.Context, rec memory.Record) error {
	r := s.r
	if !s.remoteDown && s.remoteCorpus == nil {
		recent, err := r.remote.List(ctx, remoteCorpusSize)
		if err != nil {
			s.markDown(ctx, "list", err)
		} else {
			s.remoteCorpus = remoteCorpus(recent)
		}
	}
	if s.remoteDown {
		return s.fallback(ctx, rec)
	}

	text := rec.FullText()
	if m, dup := r.checker.Match(text, s.remoteCorpus); dup {
		s.result.Duplicates++
		r.metrics.RecordDuplicate(string(memory.TierGlobal))
		r.log.DebugContext(ctx, "skipping duplicate global memory", "title", rec.Title, "score", m.Score)
		return nil
	}

	id, err := r.remote.Create(ctx, rec)
	if err != nil {
		s.markDown(ctx, "create", err)
		return s.fallback(ctx, rec)
	}
	s.remoteCorpus.Add(text)
	s.result.Global++
	r.metrics.RecordSaved(string(memory.TierGlobal))
	r.log.DebugContext(ctx, "global memory saved", "id", id, "title", rec.Title)
	return nil
}

// fallback stores a global record in the local tier and queues it for the
// remote when a backend is configured.
func (s *saveRun) fallback(ctx context.Context, rec memory.Record) error {
	r := s.r
	if m, dup := r.checker.Match(rec.Content, s.local); dup {
		s.result.Duplicates++
		r.metrics.RecordDuplicate(string(memory.TierProject))
		r.log.DebugContext(ctx, "skipping duplicate memory", "title", rec.Title, "score", m.Score)
		return nil
	}
	path, err := s.write(ctx, rec)
	if err != nil {
		return err
	}
	s.result.Fallback++
	r.log.InfoContext(ctx, "global memory stored locally", "path", path)

	if !s.queue {
		return nil
	}
	if _, err := r.outbox.Enqueue(ctx, rec); err != nil {
		r.log.WarnContext(ctx, "failed to queue memory for sync", "title", rec.Title, "error", err)
		return nil
	}
	s.result.Queued++
	r.metrics.RecordOutboxQueued()
	return nil
}

func (s *saveRun) saveLocal(ctx context.Context, rec memory.Record) error {
	r := s.r
	if m, dup := r.checker.Match(rec.Content, s.local); dup {
		s.result.Duplicates++
		r.metrics.RecordDuplicate(string(memory.TierProject))
		r.log.DebugContext(ctx, "skipping duplicate project memory", "title", rec.Title, "score", m.Score)
		return nil
	}
	if _, err := s.write(ctx, rec); err != nil {
		return err
	}
	s.result.Project++
	return nil
}

func (s *saveRun) write(ctx context.Context, rec memory.Record) (string, error) {
	path, err := s.r.store.Write(ctx, rec)
	if err != nil {
		return "", err
	}
	s.local.Add(rec.Content)
	s.touched[rec.Category] = struct{}{}
	s.r.metrics.RecordSaved(string(memory.TierProject))
	return path, nil
}

func (r *Runner) renderSummary(res SaveResult) string {
	var b strings.Builder
	b.WriteString("<memory-save-summary>\n")
	fmt.Fprintf(&b, "Saved %d global memories to %s\n", res.Global, r.remoteName)
	fmt.Fprintf(&b, "Saved %d project memories to %s/\n", res.Project, localstore.DirName)
	if res.Fallback > 0 {
		fmt.Fprintf(&b, "Stored %d global memories locally (remote unavailable)\n", res.Fallback)
	}
	if res.Queued > 0 {
		fmt.Fprintf(&b, "Queued %d memories for sync\n", res.Queued)
	}
	if res.Duplicates > 0 {
		fmt.Fprintf(&b, "Skipped %d duplicate memories\n", res.Duplicates)
	}
	if res.Failed > 0 {
		fmt.Fprintf(&b, "Failed to save %d memories\n", res.Failed)
	}
	b.WriteString("</memory-save-summary>\n")
	return b.String()
}

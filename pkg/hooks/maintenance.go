package hooks

import (
	"context"
	"errors"

	"github.com/goclaw/memkeeper/pkg/memory"
	"github.com/goclaw/memkeeper/pkg/outbox"
)

// ErrNoOutbox is returned by Sync when the runner has no outbox.
var ErrNoOutbox = errors.New("hooks: outbox disabled")

// SyncResult counts the outcome of one outbox replay.
type SyncResult struct {
	Flushed      int
	Duplicates   int
	DeadLettered int
	Failed       int
	Remaining    int
}

// Sync replays queued global records against the remote tier. A record that
// is already present remotely is dropped from the queue. A record the remote
// rejects, or one that has used up SyncMaxAttempts, is dead-lettered and
// replay moves on. Replay stops at the first failure the remote may recover
// from; the failed record and everything after it stay queued.
func (r *Runner) Sync(ctx context.Context) (SyncResult, error) {
	var res SyncResult
	if r.outbox == nil {
		return res, ErrNoOutbox
	}

	pending, err := r.outbox.Pending(ctx, r.settings.SyncBatch)
	if err != nil {
		return res, err
	}
	log := r.log.With("op", "sync")

	for i, e := range pending {
		if err := ctx.Err(); err != nil {
			res.Remaining = len(pending) - i
			return res, err
		}

		dup, err := r.replay(ctx, e)
		if err != nil {
			if r.giveUp(e, err) {
				if buryErr := r.outbox.Bury(ctx, e, err); buryErr != nil {
					return res, buryErr
				}
				res.DeadLettered++
				r.metrics.RecordOutboxDeadLettered()
				log.WarnContext(ctx, "giving up on queued memory", "id", e.ID, "attempts", e.Attempts+1, "error", err)
				continue
			}

			res.Failed++
			res.Remaining = len(pending) - i
			if markErr := r.outbox.MarkFailed(ctx, e, err); markErr != nil {
				log.WarnContext(ctx, "failed to record sync failure", "id", e.ID, "error", markErr)
			}
			log.WarnContext(ctx, "remote tier unavailable, stopping sync", "id", e.ID, "attempts", e.Attempts+1, "error", err)
			return res, err
		}

		if err := r.outbox.Remove(ctx, e); err != nil {
			return res, err
		}
		if dup {
			res.Duplicates++
			r.metrics.RecordDuplicate(string(memory.TierGlobal))
			continue
		}
		res.Flushed++
		r.metrics.RecordOutboxFlushed()
		r.metrics.RecordSaved(string(memory.TierGlobal))
		log.InfoContext(ctx, "queued memory synced", "id", e.ID, "title", e.Record.Title)
	}
	return res, nil
}

// replay delivers one entry. dup reports that the remote already holds it.
func (r *Runner) replay(ctx context.Context, e outbox.Entry) (dup bool, err error) {
	existing, err := r.remote.Search(ctx, e.Record.Content, r.settings.SearchLimit)
	if err != nil {
		return false, err
	}
	if m, ok := r.checker.Match(e.Record.FullText(), remoteCorpus(existing)); ok {
		r.log.DebugContext(ctx, "queued memory already stored remotely", "id", e.ID, "score", m.Score)
		return true, nil
	}
	_, err = r.remote.Create(ctx, e.Record)
	return false, err
}

func (r *Runner) giveUp(e outbox.Entry, err error) bool {
	if memory.IsRemoteRejection(err) {
		return true
	}
	return r.settings.SyncMaxAttempts > 0 && e.Attempts+1 >= r.settings.SyncMaxAttempts
}

// Prune enforces the per-category retention cap on every category and
// returns the number of records evicted per category.
func (r *Runner) Prune(ctx context.Context) (map[memory.Category]int, error) {
	evicted := make(map[memory.Category]int)
	for _, c := range memory.Categories() {
		n, err := r.store.EnforceCap(ctx, c, r.settings.MaxLocalPerCategory)
		evicted[c] = n
		r.metrics.RecordEvictions(string(c), n)
		if err != nil {
			return evicted, err
		}
	}
	return evicted, nil
}

package hooks

import (
	"context"
	"fmt"
	"strings"

	"github.com/goclaw/memkeeper/pkg/memory"
)

const (
	recentFetch     = 10
	recentShown     = 5
	recentTextLimit = 200

	maxKeywords      = 5
	remotePromptHits = 3
	localPromptHits  = 3
	promptTextLimit  = 300
)

var promptStopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`the and for that this with from have been will would could
		should what when where which there their about into more some only just also
		than then them these those being does please want need help make like know think`) {
		promptStopWords[w] = struct{}{}
	}
}

// sessionStart prints recent global learnings and the project memory summary.
func (r *Runner) sessionStart(ctx context.Context, _ *input) (int, error) {
	var parts []string

	recent, err := r.remote.List(ctx, recentFetch)
	if err != nil {
		r.remoteFailed(ctx, "list", err)
	} else if len(recent) > 0 {
		var b strings.Builder
		b.WriteString("### Recent Learnings\n")
		for i, rec := range recent {
			if i == recentShown {
				break
			}
			fmt.Fprintf(&b, "- %s\n", memory.Truncate(rec.Text, recentTextLimit))
		}
		parts = append(parts, b.String())
	}

	summary, err := r.store.ContextSummary(r.settings.SummaryPerCategory)
	if err != nil {
		r.log.WarnContext(ctx, "failed to summarise project memory", "error", err)
	} else if summary != "" {
		parts = append(parts, summary)
	}

	if len(parts) == 0 {
		return ExitOK, nil
	}
	r.printf("<session-memory>\n%s\n</session-memory>\n", strings.Join(parts, "\n"))
	return ExitOK, nil
}

// Keywords picks up to five search terms from a prompt: lowercase words
// longer than three characters that are not stop words.
func Keywords(prompt string) []string {
	var out []string
	for _, w := range strings.Fields(strings.ToLower(prompt)) {
		if len([]rune(w)) <= 3 {
			continue
		}
		if _, stop := promptStopWords[w]; stop {
			continue
		}
		out = append(out, w)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}

type snippet struct {
	source string
	text   string
}

// promptSubmit injects global and project memories relevant to the prompt.
func (r *Runner) promptSubmit(ctx context.Context, in *input) (int, error) {
	prompt := strings.TrimSpace(in.Prompt)
	if prompt == "" {
		return ExitOK, nil
	}
	keywords := Keywords(prompt)
	if len(keywords) == 0 {
		return ExitOK, nil
	}
	query := strings.Join(keywords, " ")

	var found []snippet
	remoteHits, err := r.remote.Search(ctx, query, min(remotePromptHits, r.settings.SearchLimit))
	if err != nil {
		r.remoteFailed(ctx, "search", err)
	}
	for _, rec := range remoteHits {
		found = append(found, snippet{source: "global", text: rec.Text})
	}

	if r.store.Exists() {
		hits, err := r.store.Search(ctx, query, r.settings.SearchLimit)
		if err != nil {
			r.log.WarnContext(ctx, "project memory search failed", "error", err)
		}
		for i, h := range hits {
			if i == localPromptHits {
				break
			}
			text := fmt.Sprintf("[%s] %s: %s", h.Record.Category, h.Record.Title, memory.Truncate(h.Record.Content, recentTextLimit))
			found = append(found, snippet{source: "project", text: text})
		}
	}

	if len(found) == 0 {
		return ExitOK, nil
	}
	if len(found) > r.settings.PromptResults {
		found = found[:r.settings.PromptResults]
	}

	var b strings.Builder
	b.WriteString("<relevant-memory>\n")
	for _, s := range found {
		fmt.Fprintf(&b, "[%s] %s\n", s.source, memory.Truncate(s.text, promptTextLimit))
	}
	b.WriteString("</relevant-memory>\n")
	r.printf("%s", b.String())
	return ExitOK, nil
}

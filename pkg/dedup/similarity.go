// Package dedup detects near-duplicate memory text.
//
// Similarity is the Sørensen-Dice coefficient over token sets:
//
//	sim(a, b) = 2|A ∩ B| / (|A| + |B|)
//
// where A and B are the distinct tokens produced by Tokenize (lowercased,
// stop words removed, Porter-stemmed). The score is symmetric, lies in
// [0, 1] and is purely lexical: paraphrases that share few words are not
// detected.
package dedup

import (
	"sort"
	"strings"
)

const (
	// DefaultThreshold is the score at or above which two texts are duplicates.
	DefaultThreshold = 0.85

	// DefaultSimilarThreshold and DefaultSimilarLimit bound FindSimilar.
	DefaultSimilarThreshold = 0.3
	DefaultSimilarLimit     = 5
)

// Match is one existing text scored against a candidate.
type Match struct {
	Index int     `json:"index"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Similarity returns the similarity of a and b in [0, 1].
func Similarity(a, b string) float64 {
	return score(a, newTokenSet(a), b, newTokenSet(b))
}

func score(a string, as tokenSet, b string, bs tokenSet) float64 {
	if len(as) == 0 || len(bs) == 0 {
		// texts made only of stop words or punctuation compare verbatim
		if len(as) == 0 && len(bs) == 0 && normalize(a) != "" && normalize(a) == normalize(b) {
			return 1
		}
		return 0
	}

	small, large := as, bs
	if len(small) > len(large) {
		small, large = large, small
	}
	shared := 0
	for t := range small {
		if _, ok := large[t]; ok {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(as)+len(bs))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// IsDuplicate reports whether candidate scores at least threshold against any
// of existing.
func IsDuplicate(candidate string, existing []string, threshold float64) bool {
	_, ok := NewCorpus(existing...).Match(candidate, threshold)
	return ok
}

// Corpus is a set of existing texts with their token sets precomputed, so a
// batch of candidates can be checked without re-tokenizing.
type Corpus struct {
	texts []string
	sets  []tokenSet
}

// NewCorpus builds a corpus from texts.
func NewCorpus(texts ...string) *Corpus {
	c := &Corpus{
		texts: make([]string, 0, len(texts)),
		sets:  make([]tokenSet, 0, len(texts)),
	}
	for _, t := range texts {
		c.Add(t)
	}
	return c
}

// Add appends text to the corpus.
func (c *Corpus) Add(text string) {
	c.texts = append(c.texts, text)
	c.sets = append(c.sets, newTokenSet(text))
}

// Len returns the number of texts in the corpus.
func (c *Corpus) Len() int {
	return len(c.texts)
}

// Match returns the first text in corpus order scoring at least threshold
// against candidate.
func (c *Corpus) Match(candidate string, threshold float64) (Match, bool) {
	cs := newTokenSet(candidate)
	for i, set := range c.sets {
		if s := score(candidate, cs, c.texts[i], set); s >= threshold {
			return Match{Index: i, Text: c.texts[i], Score: s}, true
		}
	}
	return Match{}, false
}

// Rank scores every text against query and returns those at or above
// threshold, highest score first. Ties keep corpus order. A limit of zero or
// less returns all matches.
func (c *Corpus) Rank(query string, threshold float64, limit int) []Match {
	qs := newTokenSet(query)
	var matches []Match
	for i, set := range c.sets {
		if s := score(query, qs, c.texts[i], set); s >= threshold {
			matches = append(matches, Match{Index: i, Text: c.texts[i], Score: s})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// FindSimilar ranks texts against query.
func FindSimilar(query string, texts []string, threshold float64, limit int) []Match {
	return NewCorpus(texts...).Rank(query, threshold, limit)
}

// Deduplicate drops items whose text duplicates an earlier item. The first
// occurrence wins and order is preserved.
func Deduplicate[T any](items []T, text func(T) string, threshold float64) []T {
	seen := NewCorpus()
	out := make([]T, 0, len(items))
	for _, item := range items {
		t := text(item)
		if _, dup := seen.Match(t, threshold); dup {
			continue
		}
		seen.Add(t)
		out = append(out, item)
	}
	return out
}

// Checker applies a fixed threshold. The zero value is not usable; build one
// with NewChecker.
type Checker struct {
	threshold float64
}

// NewChecker returns a checker for threshold. Values outside (0, 1] fall back
// to DefaultThreshold.
func NewChecker(threshold float64) *Checker {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Checker{threshold: threshold}
}

// Threshold returns the effective threshold.
func (c *Checker) Threshold() float64 {
	return c.threshold
}

// IsDuplicate reports whether candidate duplicates any of existing.
func (c *Checker) IsDuplicate(candidate string, existing []string) bool {
	return IsDuplicate(candidate, existing, c.threshold)
}

// Match checks candidate against a prepared corpus.
func (c *Checker) Match(candidate string, corpus *Corpus) (Match, bool) {
	return corpus.Match(candidate, c.threshold)
}

package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tier classifies where a record lives.
type Tier string

const (
	// TierGlobal records are cross-project and stored by the remote service.
	TierGlobal Tier = "global"
	// TierProject records are local to one codebase.
	TierProject Tier = "project"
)

// ParseTier parses a tier label case-insensitively.
func ParseTier(s string) (Tier, error) {
	switch Tier(strings.ToLower(strings.TrimSpace(s))) {
	case TierGlobal:
		return TierGlobal, nil
	case TierProject:
		return TierProject, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTier, s)
	}
}

// Category is the kind of knowledge a record holds.
type Category string

const (
	CategoryDecision Category = "decision"
	CategoryPattern  Category = "pattern"
	CategoryLearning Category = "learning"
)

// Categories lists every category in summary order.
func Categories() []Category {
	return []Category{CategoryDecision, CategoryPattern, CategoryLearning}
}

// ParseCategory parses a category label. The plural directory names
// ("decisions", "patterns", "learnings") are accepted too.
func ParseCategory(s string) (Category, error) {
	c := strings.ToLower(strings.TrimSpace(s))
	c = strings.TrimSuffix(c, "s")
	switch Category(c) {
	case CategoryDecision, CategoryPattern, CategoryLearning:
		return Category(c), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
}

// Dir returns the directory name the category is stored under.
func (c Category) Dir() string {
	return string(c) + "s"
}

// Title returns the capitalized plural used in summaries ("Decisions").
func (c Category) Title() string {
	d := c.Dir()
	if d == "" {
		return d
	}
	return strings.ToUpper(d[:1]) + d[1:]
}

// Record is one unit of retained knowledge. Records are never edited once
// written; a correction is a new record.
type Record struct {
	ID        string    `yaml:"id" json:"id"`
	Title     string    `yaml:"title" json:"title"`
	Tier      Tier      `yaml:"tier" json:"tier"`
	Category  Category  `yaml:"category" json:"category"`
	Reason    string    `yaml:"reason,omitempty" json:"reason,omitempty"`
	CreatedAt time.Time `yaml:"created_at" json:"created_at"`

	// Content is stored verbatim after the front matter.
	Content string `yaml:"-" json:"content"`

	// Path is set when the record was read from disk.
	Path string `yaml:"-" json:"path,omitempty"`
}

// NewRecord builds a record with a fresh ID and a title derived from the
// content. CreatedAt is left zero; the store stamps it at write time.
func NewRecord(content string, tier Tier, category Category, reason string) (Record, error) {
	if strings.TrimSpace(content) == "" {
		return Record{}, ErrEmptyContent
	}
	if _, err := ParseTier(string(tier)); err != nil {
		return Record{}, err
	}
	if _, err := ParseCategory(string(category)); err != nil {
		return Record{}, err
	}
	return Record{
		ID:       uuid.New().String(),
		Title:    DeriveTitle(content),
		Tier:     tier,
		Category: category,
		Reason:   reason,
		Content:  content,
	}, nil
}

// FullText is the text sent to the remote tier and compared against remote
// records: the content followed by the reason, when there is one.
func (r Record) FullText() string {
	if r.Reason == "" {
		return r.Content
	}
	return r.Content + "\n\nReason: " + r.Reason
}

// DeriveTitle picks a short title for content: the first line when the
// content spans several lines and that line is short, otherwise the first 60
// runes.
func DeriveTitle(content string) string {
	content = strings.TrimSpace(content)
	lines := strings.Split(content, "\n")
	if len(lines) > 1 && len([]rune(lines[0])) < 100 {
		return strings.TrimSpace(lines[0])
	}
	return Truncate(content, 60)
}

// Truncate shortens s to at most n runes, appending "..." when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// ExtractedItem is one memory candidate as produced by the host's
// session-end extraction. Fields are raw strings; the router and the save
// pipeline validate them.
type ExtractedItem struct {
	Content  string `json:"content"`
	Tier     string `json:"tier,omitempty"`
	Category string `json:"category,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// RemoteRecord is a record as returned by the remote tier.
type RemoteRecord struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Label     string    `json:"label,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

package localstore

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/goclaw/memkeeper/pkg/memory"
)

const (
	frontMatterDelim = "---\n"
	stampLayout      = "20060102T150405.000000000Z"
	maxSlugLen       = 50
	fileExt          = ".md"
)

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9-]`)
	slugHyphens = regexp.MustCompile(`-+`)
)

// slugify turns a title into a filename fragment: lowercase, spaces to
// hyphens, only [a-z0-9-], hyphen runs collapsed, at most 50 bytes.
func slugify(title string) string {
	s := strings.ToLower(title)
	s = strings.ReplaceAll(s, " ", "-")
	s = slugInvalid.ReplaceAllString(s, "")
	s = slugHyphens.ReplaceAllString(s, "-")
	if len(s) > maxSlugLen {
		s = s[:maxSlugLen]
	}
	s = strings.Trim(s, "-")
	if s == "" {
		return "memory"
	}
	return s
}

func fileName(stamp time.Time, title string) string {
	return stamp.UTC().Format(stampLayout) + "-" + slugify(title) + fileExt
}

// parseStamp extracts the creation stamp from a file name written by this
// package. Names without a stamp prefix report ok=false.
func parseStamp(name string) (time.Time, bool) {
	if len(name) < len(stampLayout) {
		return time.Time{}, false
	}
	t, err := time.Parse(stampLayout, name[:len(stampLayout)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// encodeRecord renders rec as YAML front matter followed by the content bytes.
func encodeRecord(rec *memory.Record) ([]byte, error) {
	header, err := yaml.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal front matter: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(header) + len(rec.Content) + 2*len(frontMatterDelim))
	buf.WriteString(frontMatterDelim)
	buf.Write(header)
	buf.WriteString(frontMatterDelim)
	buf.WriteString(rec.Content)
	return buf.Bytes(), nil
}

// decodeRecord parses a record file. Files without front matter are read in
// the legacy "# Title" layout; category and creation time then come from the
// caller.
func decodeRecord(data []byte, category memory.Category, modTime time.Time, stem string) (*memory.Record, error) {
	if !bytes.HasPrefix(data, []byte(frontMatterDelim)) {
		return decodeLegacy(data, category, modTime, stem), nil
	}

	rest := data[len(frontMatterDelim):]
	end := bytes.Index(rest, []byte("\n"+frontMatterDelim))
	if end < 0 {
		return nil, fmt.Errorf("unterminated front matter")
	}

	var rec memory.Record
	if err := yaml.Unmarshal(rest[:end+1], &rec); err != nil {
		return nil, fmt.Errorf("parse front matter: %w", err)
	}
	rec.Content = string(rest[end+1+len(frontMatterDelim):])

	if rec.Category == "" {
		rec.Category = category
	}
	if rec.Tier == "" {
		rec.Tier = memory.TierProject
	}
	if rec.Title == "" {
		rec.Title = memory.DeriveTitle(rec.Content)
	}
	return &rec, nil
}

func decodeLegacy(data []byte, category memory.Category, modTime time.Time, stem string) *memory.Record {
	content := strings.TrimSpace(string(data))
	title := stem
	if heading, body, _ := strings.Cut(content, "\n"); strings.HasPrefix(heading, "# ") {
		title = strings.TrimSpace(heading[2:])
		content = strings.TrimSpace(body)
	}
	return &memory.Record{
		ID:        stem,
		Title:     title,
		Tier:      memory.TierProject,
		Category:  category,
		CreatedAt: modTime,
		Content:   content,
	}
}

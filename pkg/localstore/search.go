package localstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/goclaw/memkeeper/pkg/memory"
)

// Hit is a record matched by Search.
type Hit struct {
	Record *memory.Record `json:"record"`
	Score  float64        `json:"score"`
}

type searchDoc struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

func buildIndexMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	textField.Store = false

	keywordField := bleve.NewKeywordFieldMapping()

	docMapping.AddFieldMappingsAt("title", textField)
	docMapping.AddFieldMappingsAt("content", textField)
	docMapping.AddFieldMappingsAt("category", keywordField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// Search ranks the records of the given categories (all when none are given)
// against queryText and returns at most limit hits, best first. The index is
// built in memory for the call. An empty query returns the newest records.
func (s *Store) Search(ctx context.Context, queryText string, limit int, categories ...memory.Category) ([]Hit, error) {
	if limit <= 0 {
		limit = memory.DefaultSearchLimit
	}
	if len(categories) == 0 {
		categories = memory.Categories()
	}

	var records []*memory.Record
	for _, c := range categories {
		recs, err := s.Records(c)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}
	if len(records) == 0 {
		return nil, nil
	}

	if queryText == "" {
		return newest(records, limit), nil
	}

	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create search index: %w", err)
	}
	defer index.Close()

	batch := index.NewBatch()
	byID := make(map[string]*memory.Record, len(records))
	for _, rec := range records {
		byID[rec.Path] = rec
		doc := searchDoc{Title: rec.Title, Content: rec.Content, Category: string(rec.Category)}
		if err := batch.Index(rec.Path, doc); err != nil {
			return nil, fmt.Errorf("index %s: %w", rec.Path, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		return nil, fmt.Errorf("index records: %w", err)
	}

	titleQuery := bleve.NewMatchQuery(queryText)
	titleQuery.SetField("title")
	contentQuery := bleve.NewMatchQuery(queryText)
	contentQuery.SetField("content")

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery([]query.Query{titleQuery, contentQuery}...))
	req.Size = limit

	result, err := index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		if rec, ok := byID[h.ID]; ok {
			hits = append(hits, Hit{Record: rec, Score: h.Score})
		}
	}
	return hits, nil
}

func newest(records []*memory.Record, limit int) []Hit {
	sorted := make([]*memory.Record, len(records))
	copy(sorted, records)
	sortNewestFirst(sorted)
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	hits := make([]Hit, len(sorted))
	for i, rec := range sorted {
		hits[i] = Hit{Record: rec}
	}
	return hits
}

func sortNewestFirst(recs []*memory.Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].CreatedAt.After(recs[j].CreatedAt)
	})
}

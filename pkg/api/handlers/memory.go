package handlers

import (
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/goclaw/memkeeper/pkg/api/middleware"
	"github.com/goclaw/memkeeper/pkg/api/response"
	"github.com/goclaw/memkeeper/pkg/localstore"
	"github.com/goclaw/memkeeper/pkg/logger"
	"github.com/goclaw/memkeeper/pkg/memory"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// LimitProvider returns the current default search limit. It is consulted
// per request so hot-reloaded configuration takes effect.
type LimitProvider func() int

// MemoryHandler serves the records of the local tier.
type MemoryHandler struct {
	store       *localstore.Store
	searchLimit LimitProvider
	logger      logger.Logger
}

// NewMemoryHandler creates a new memory handler.
func NewMemoryHandler(store *localstore.Store, searchLimit LimitProvider, log logger.Logger) *MemoryHandler {
	if searchLimit == nil {
		searchLimit = func() int { return memory.DefaultSearchLimit }
	}
	return &MemoryHandler{store: store, searchLimit: searchLimit, logger: log}
}

type listResponse struct {
	Records []*memory.Record `json:"records"`
	Count   int              `json:"count"`
}

type searchResponse struct {
	Query string           `json:"query"`
	Hits  []localstore.Hit `json:"hits"`
	Count int              `json:"count"`
}

// ListMemories handles GET /api/v1/memories?category=&limit=. Records are
// returned newest first.
// @Summary List project memories
// @Description List project records, newest first. Unreadable record files are skipped.
// @Tags memories
// @Produce json
// @Param category query string false "Category (decisions, patterns or learnings); all when empty"
// @Param limit query int false "Maximum number of records (default 50, at most 500)"
// @Success 200 {object} handlers.listResponse "Records"
// @Failure 400 {object} response.ErrorResponse "Invalid category or limit"
// @Failure 500 {object} response.ErrorResponse "Memory store unreadable"
// @Router /api/v1/memories [get]
func (h *MemoryHandler) ListMemories(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	categories, err := parseCategories(r)
	if err != nil {
		response.HandleError(w, err, requestID)
		return
	}
	limit, err := parseLimit(r, defaultListLimit)
	if err != nil {
		response.HandleError(w, err, requestID)
		return
	}

	var records []*memory.Record
	for _, c := range categories {
		recs, err := h.store.Records(c)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "Failed to list memories", "category", c, "error", err)
			response.HandleError(w, err, requestID)
			return
		}
		records = append(records, recs...)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})
	if len(records) > limit {
		records = records[:limit]
	}
	if records == nil {
		records = []*memory.Record{}
	}
	response.JSON(w, http.StatusOK, listResponse{Records: records, Count: len(records)})
}

// SearchMemories handles GET /api/v1/memories/search?q=&category=&limit=.
// @Summary Search project memories
// @Description Rank project records against a free text query. An empty query returns the newest records.
// @Tags memories
// @Produce json
// @Param q query string false "Query text"
// @Param category query string false "Category (decisions, patterns or learnings); all when empty"
// @Param limit query int false "Maximum number of hits (default memory.search_limit)"
// @Success 200 {object} handlers.searchResponse "Hits, best first"
// @Failure 400 {object} response.ErrorResponse "Invalid category or limit"
// @Failure 500 {object} response.ErrorResponse "Memory store unreadable"
// @Router /api/v1/memories/search [get]
func (h *MemoryHandler) SearchMemories(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	categories, err := parseCategories(r)
	if err != nil {
		response.HandleError(w, err, requestID)
		return
	}
	limit, err := parseLimit(r, h.searchLimit())
	if err != nil {
		response.HandleError(w, err, requestID)
		return
	}

	query := r.URL.Query().Get("q")
	hits, err := h.store.Search(r.Context(), query, limit, categories...)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to search memories", "query", query, "error", err)
		response.HandleError(w, err, requestID)
		return
	}
	if hits == nil {
		hits = []localstore.Hit{}
	}
	response.JSON(w, http.StatusOK, searchResponse{Query: query, Hits: hits, Count: len(hits)})
}

func parseCategories(r *http.Request) ([]memory.Category, error) {
	raw := r.URL.Query().Get("category")
	if raw == "" {
		return memory.Categories(), nil
	}
	c, err := memory.ParseCategory(raw)
	if err != nil {
		return nil, err
	}
	return []memory.Category{c}, nil
}

func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%w: limit must be a positive integer", response.ErrInvalidInput)
	}
	return min(n, maxListLimit), nil
}

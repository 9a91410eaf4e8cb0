// Package handlers provides the HTTP handlers of the inspection API.
package handlers

import (
	"net/http"

	"github.com/goclaw/memkeeper/pkg/api/response"
	"github.com/goclaw/memkeeper/pkg/localstore"
	"github.com/goclaw/memkeeper/pkg/memory"
	"github.com/goclaw/memkeeper/pkg/version"
)

// HealthHandler handles the health endpoint.
type HealthHandler struct {
	store  *localstore.Store
	remote string
}

// NewHealthHandler creates a new health handler. remote names the configured
// remote backend.
func NewHealthHandler(store *localstore.Store, remote string) *HealthHandler {
	return &HealthHandler{store: store, remote: remote}
}

type healthResponse struct {
	Status  string         `json:"status"`
	Version string         `json:"version"`
	Commit  string         `json:"commit,omitempty"`
	Root    string         `json:"root"`
	Exists  bool           `json:"exists"`
	Remote  string         `json:"remote"`
	Counts  map[string]int `json:"counts,omitempty"`
}

// Health handles GET /health. It reports 503 when a category directory
// cannot be read.
// @Summary Health check
// @Description Report the memory root, the remote backend and record counts per category.
// @Tags health
// @Produce json
// @Success 200 {object} handlers.healthResponse "Store readable"
// @Failure 503 {object} handlers.healthResponse "A category directory is unreadable"
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	build := version.Get()
	resp := healthResponse{
		Status:  "ok",
		Version: build.Version,
		Commit:  build.GitCommit,
		Root:    h.store.Root(),
		Exists:  h.store.Exists(),
		Remote:  h.remote,
	}

	status := http.StatusOK
	if resp.Exists {
		resp.Counts = make(map[string]int)
		for _, c := range memory.Categories() {
			n, err := h.store.Count(c)
			if err != nil {
				resp.Status = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Counts[string(c)] = n
		}
	}
	response.JSON(w, status, resp)
}

package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/goclaw/memkeeper/pkg/api/middleware"
	"github.com/goclaw/memkeeper/pkg/api/response"
	"github.com/goclaw/memkeeper/pkg/logger"
	"github.com/goclaw/memkeeper/pkg/memory"
	"github.com/goclaw/memkeeper/pkg/sessionlog"
)

// SessionHandler serves the per-day session logs.
type SessionHandler struct {
	sessions *sessionlog.Log
	logger   logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(sessions *sessionlog.Log, log logger.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: log}
}

type sessionResponse struct {
	Date    string             `json:"date"`
	Events  []sessionlog.Event `json:"events"`
	Summary sessionlog.Summary `json:"summary"`
}

// GetSession handles GET /api/v1/sessions/{date}. The date is YYYY-MM-DD or
// "today".
// @Summary Get a session log
// @Description Return the events logged on one day and their summary.
// @Tags sessions
// @Produce json
// @Param date path string true "Day as YYYY-MM-DD, or today"
// @Success 200 {object} handlers.sessionResponse "Session log"
// @Failure 400 {object} response.ErrorResponse "Malformed date"
// @Failure 404 {object} response.ErrorResponse "No events on that day"
// @Router /api/v1/sessions/{date} [get]
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())

	raw := chi.URLParam(r, "date")
	var date time.Time
	if raw == "today" {
		date = h.sessions.Today()
	} else {
		d, err := time.ParseInLocation(sessionlog.DateLayout, raw, time.Local)
		if err != nil {
			response.HandleError(w, fmt.Errorf("%w: date must be YYYY-MM-DD", response.ErrInvalidInput), requestID)
			return
		}
		date = d
	}

	events, err := h.sessions.Load(date)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to load session log", "date", raw, "error", err)
		response.HandleError(w, err, requestID)
		return
	}
	if len(events) == 0 {
		response.HandleError(w, fmt.Errorf("session %s: %w", date.Format(sessionlog.DateLayout), memory.ErrNotFound), requestID)
		return
	}

	response.JSON(w, http.StatusOK, sessionResponse{
		Date:    date.Format(sessionlog.DateLayout),
		Events:  events,
		Summary: sessionlog.Summarize(events),
	})
}

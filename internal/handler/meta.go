package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/snippime/internal/languages"
	"github.com/sakif/snippime/internal/tags"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MetaHandler serves static catalogue data and the health check.
type MetaHandler struct {
	db     Pinger
	logger *slog.Logger
}

func NewMetaHandler(db Pinger, logger *slog.Logger) *MetaHandler {
	return &MetaHandler{db: db, logger: logger}
}

// HandleHealth answers 200 when the database responds.
//
// HTTP: GET /healthz
func (h *MetaHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Error("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HTTP: GET /api/languages
func (h *MetaHandler) HandleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, languages.List())
}

// HandleTagSuggest suggests tags for the tag input.
//
// HTTP: GET /api/tags/suggest?q=rea&current=react,hooks
func (h *MetaHandler) HandleTagSuggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var current []string
	for _, c := range q["current"] {
		for _, t := range strings.Split(c, ",") {
			if t = strings.TrimSpace(t); t != "" {
				current = append(current, t)
			}
		}
	}

	writeJSON(w, http.StatusOK, tags.Suggest(q.Get("q"), current, nil))
}

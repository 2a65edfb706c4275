package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snippime/internal/apperror"
	"github.com/sakif/snippime/internal/listing"
	"github.com/sakif/snippime/internal/service"
)

// VoteHandler serves up/down votes and the liked-snippets list.
type VoteHandler struct {
	votes  *service.VoteService
	logger *slog.Logger
}

func NewVoteHandler(votes *service.VoteService, logger *slog.Logger) *VoteHandler {
	return &VoteHandler{votes: votes, logger: logger}
}

// HandleGetVote returns the caller's vote on a snippet.
//
// HTTP: GET /api/snippets/{id}/vote  →  {"value": -1|0|1}
func (h *VoteHandler) HandleGetVote(w http.ResponseWriter, r *http.Request) {
	v, err := h.votes.MyVote(r.Context(), viewerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"value": v})
}

// HandleVote sets the caller's vote and returns the committed aggregates.
// The value is a pointer so a missing field is distinguishable from 0.
//
// HTTP: PUT /api/snippets/{id}/vote  {"value": 1}
func (h *VoteHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value *int `json:"value"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Value == nil {
		writeError(w, apperror.ValidationFailed("value", "value is required"))
		return
	}

	res, err := h.votes.Vote(r.Context(), viewerID(r), chi.URLParam(r, "id"), *req.Value)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleLiked lists the snippets the caller up-voted.
//
// HTTP: GET /api/me/liked?q=&language=&sort=
func (h *VoteHandler) HandleLiked(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.votes.Liked(r.Context(), viewerID(r),
		listing.SnippetFilter{Query: q.Get("q"), Language: q.Get("language")},
		q.Get("sort"),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

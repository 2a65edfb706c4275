package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snippime/internal/model"
	"github.com/sakif/snippime/internal/repository"
	"github.com/sakif/snippime/internal/service"
)

// SnippetHandler serves the snippet API: discovery, CRUD, forks and version
// history.
type SnippetHandler struct {
	snippets    *service.SnippetService
	collections *service.CollectionService
	logger      *slog.Logger
}

func NewSnippetHandler(snippets *service.SnippetService, collections *service.CollectionService, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{snippets: snippets, collections: collections, logger: logger}
}

type snippetRequest struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Code        string              `json:"code"`
	Language    string              `json:"language"`
	Tags        []string            `json:"tags"`
	Status      model.SnippetStatus `json:"status"`
	Summary     string              `json:"summary"`
}

func (req snippetRequest) input() service.SnippetInput {
	return service.SnippetInput{
		Title:       req.Title,
		Description: req.Description,
		Code:        req.Code,
		Language:    req.Language,
		Tags:        req.Tags,
		Status:      req.Status,
		Summary:     req.Summary,
	}
}

// HandleDiscover lists public snippets.
//
// HTTP: GET /api/snippets?q=&language=&tag=&sort=&limit=&offset=
func (h *SnippetHandler) HandleDiscover(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, err)
		return
	}

	list, err := h.snippets.Discover(r.Context(), service.DiscoverQuery{
		Query:    q.Get("q"),
		Language: q.Get("language"),
		Tag:      q.Get("tag"),
		Sort:     repository.SnippetSort(q.Get("sort")),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleSearch runs a full-text query over public snippets.
//
// HTTP: GET /api/snippets/search?q=&limit=
func (h *SnippetHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	if limit == 0 || limit > repository.MaxLimit {
		limit = repository.DefaultLimit
	}

	list, err := h.snippets.Search(r.Context(), r.URL.Query().Get("q"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleCreate stores a new snippet for the signed-in user.
//
// HTTP: POST /api/snippets
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req snippetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	sn, err := h.snippets.Create(r.Context(), viewerID(r), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sn)
}

// HandleGet returns one snippet. Drafts and private snippets are 404 for
// everyone but their owner.
//
// HTTP: GET /api/snippets/{id}
func (h *SnippetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sn, err := h.snippets.Get(r.Context(), viewerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

// HandleUpdate replaces a snippet's editable fields.
//
// HTTP: PUT /api/snippets/{id}
func (h *SnippetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req snippetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	sn, err := h.snippets.Update(r.Context(), viewerID(r), chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

// HandleSetStatus publishes or unpublishes a snippet.
//
// HTTP: PUT /api/snippets/{id}/status  {"status": "public"}
func (h *SnippetHandler) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status model.SnippetStatus `json:"status"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	sn, err := h.snippets.SetStatus(r.Context(), viewerID(r), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

// HandleDelete removes a snippet.
//
// HTTP: DELETE /api/snippets/{id}
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.snippets.Delete(r.Context(), viewerID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleFork copies a snippet into a private draft owned by the caller.
//
// HTTP: POST /api/snippets/{id}/fork
func (h *SnippetHandler) HandleFork(w http.ResponseWriter, r *http.Request) {
	fork, err := h.snippets.Fork(r.Context(), viewerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, fork)
}

// HandleVersions lists a snippet's history, newest first.
//
// HTTP: GET /api/snippets/{id}/versions
func (h *SnippetHandler) HandleVersions(w http.ResponseWriter, r *http.Request) {
	list, err := h.snippets.Versions(r.Context(), viewerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleRevert restores an earlier version.
//
// HTTP: POST /api/snippets/{id}/versions/{versionID}/revert
func (h *SnippetHandler) HandleRevert(w http.ResponseWriter, r *http.Request) {
	sn, err := h.snippets.Revert(r.Context(), viewerID(r), chi.URLParam(r, "id"), chi.URLParam(r, "versionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sn)
}

// HandleMembership lists which of the caller's collections hold a snippet.
//
// HTTP: GET /api/snippets/{id}/collections
func (h *SnippetHandler) HandleMembership(w http.ResponseWriter, r *http.Request) {
	ids, err := h.collections.Membership(r.Context(), viewerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"collectionIds": ids})
}

// HandleListByUser lists a user's snippets; the owner also sees drafts.
//
// HTTP: GET /api/users/{id}/snippets?sort=&limit=&offset=
func (h *SnippetHandler) HandleListByUser(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, err)
		return
	}

	sort := repository.SnippetSort(strings.TrimSpace(r.URL.Query().Get("sort")))
	list, err := h.snippets.ListByOwner(r.Context(), viewerID(r), chi.URLParam(r, "id"), sort, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

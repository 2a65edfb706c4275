package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snippime/internal/listing"
	"github.com/sakif/snippime/internal/model"
	"github.com/sakif/snippime/internal/service"
)

// CollectionHandler serves the collection API.
type CollectionHandler struct {
	collections *service.CollectionService
	logger      *slog.Logger
}

func NewCollectionHandler(collections *service.CollectionService, logger *slog.Logger) *CollectionHandler {
	return &CollectionHandler{collections: collections, logger: logger}
}

type collectionRequest struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Visibility  model.Visibility `json:"visibility"`
}

func (req collectionRequest) input() service.CollectionInput {
	return service.CollectionInput{
		Title:       req.Title,
		Description: req.Description,
		Visibility:  req.Visibility,
	}
}

// HandleListMine lists the caller's collections.
//
// HTTP: GET /api/collections?q=&visibility=&sort=
func (h *CollectionHandler) HandleListMine(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.collections.ListMine(r.Context(), viewerID(r),
		listing.CollectionFilter{Query: q.Get("q"), Visibility: q.Get("visibility")},
		q.Get("sort"),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleListByUser lists another user's public collections.
//
// HTTP: GET /api/users/{id}/collections
func (h *CollectionHandler) HandleListByUser(w http.ResponseWriter, r *http.Request) {
	list, err := h.collections.ListPublic(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HTTP: POST /api/collections
func (h *CollectionHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req collectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.collections.Create(r.Context(), viewerID(r), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HTTP: GET /api/collections/{id}
func (h *CollectionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	c, err := h.collections.Get(r.Context(), viewerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HTTP: PUT /api/collections/{id}
func (h *CollectionHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req collectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, err := h.collections.Update(r.Context(), viewerID(r), chi.URLParam(r, "id"), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HTTP: DELETE /api/collections/{id}
func (h *CollectionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.collections.Delete(r.Context(), viewerID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleItems lists the visible snippets saved in a collection.
//
// HTTP: GET /api/collections/{id}/items
func (h *CollectionHandler) HandleItems(w http.ResponseWriter, r *http.Request) {
	list, err := h.collections.Items(r.Context(), viewerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleToggleItem adds the snippet to the collection or removes it when it
// is already saved there.
//
// HTTP: POST /api/collections/{id}/items/{snippetID}
func (h *CollectionHandler) HandleToggleItem(w http.ResponseWriter, r *http.Request) {
	res, err := h.collections.ToggleItem(r.Context(), viewerID(r), chi.URLParam(r, "id"), chi.URLParam(r, "snippetID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Package handler contains the HTTP request handlers of the Snippime API.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming HTTP request (path and query params, JSON body)
//  2. Call the service layer with plain values
//  3. Write the HTTP response (status code, headers, body)
//
// Handlers hold no business rules. Service errors are mapped to status codes
// by writeError in response.go.
package handler

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/snippime/internal/apperror"
	"github.com/sakif/snippime/internal/render"
	"github.com/sakif/snippime/internal/service"
)

// EmbedHandler serves the read-only HTML view that other sites put in an
// iframe. Only public snippets can be embedded.
type EmbedHandler struct {
	snippets *service.SnippetService
	renderer *render.Renderer
	logger   *slog.Logger
}

func NewEmbedHandler(snippets *service.SnippetService, renderer *render.Renderer, logger *slog.Logger) *EmbedHandler {
	return &EmbedHandler{snippets: snippets, renderer: renderer, logger: logger}
}

// HandleEmbed renders the embed page.
//
// HTTP: GET /embed/{id}
//
// The page is rendered into a buffer first so a template failure still
// produces a clean 500 instead of half a page.
func (h *EmbedHandler) HandleEmbed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sn, err := h.snippets.GetPublic(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) || errors.Is(err, apperror.ErrValidation) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(notAvailablePage))
			return
		}
		h.logger.Error("embed: loading snippet", slog.String("id", id), slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := h.renderer.EmbedPage(&buf, sn); err != nil {
		h.logger.Error("embed: rendering", slog.String("id", id), slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=60")
	// Embeds are meant to be framed by any site.
	w.Header().Set("Content-Security-Policy", "frame-ancestors *")
	_, _ = buf.WriteTo(w)
}

const notAvailablePage = `<!DOCTYPE html>
<html lang="en"><head><meta charset="utf-8"><title>Snippet not available</title></head>
<body><p>This snippet is not available. It may be private or may have been deleted.</p></body></html>
`

package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/sakif/snippime/internal/apperror"
	"github.com/sakif/snippime/internal/live"
)

// maxTopics bounds one connection's subscriptions.
const maxTopics = 20

// LiveHandler upgrades clients to a websocket carrying change events.
type LiveHandler struct {
	hub         *live.Hub
	checkOrigin func(*http.Request) bool
	logger      *slog.Logger
}

func NewLiveHandler(hub *live.Hub, allowedOrigins []string, logger *slog.Logger) *LiveHandler {
	return &LiveHandler{hub: hub, checkOrigin: live.OriginChecker(allowedOrigins), logger: logger}
}

// parseTopics parses ?topic=feed&topic=snippet:abc or ?topic=feed,snippet:abc.
// A user topic may only be subscribed to by that user.
func parseTopics(r *http.Request) ([]string, error) {
	me := viewerID(r)

	var out []string
	seen := make(map[string]bool)
	for _, raw := range r.URL.Query()["topic"] {
		for _, t := range strings.Split(raw, ",") {
			t = strings.TrimSpace(t)
			if t == "" || seen[t] {
				continue
			}

			switch {
			case t == live.TopicFeed:
			case strings.HasPrefix(t, "snippet:") && len(t) > len("snippet:"):
			case strings.HasPrefix(t, "user:"):
				if me == "" {
					return nil, apperror.Unauthorized("sign in to follow your own changes")
				}
				if t != live.UserTopic(me) {
					return nil, apperror.Forbidden("cannot subscribe to another user's changes")
				}
			default:
				return nil, apperror.ValidationFailed("topic", "unknown topic "+t)
			}

			seen[t] = true
			out = append(out, t)
		}
	}

	if len(out) == 0 {
		return nil, apperror.ValidationFailed("topic", "at least one topic is required")
	}
	if len(out) > maxTopics {
		return nil, apperror.ValidationFailed("topic", "too many topics")
	}
	return out, nil
}

// HandleLive validates the requested topics before upgrading so errors can
// still be reported as JSON.
//
// HTTP: GET /api/live?topic=feed  (websocket)
func (h *LiveHandler) HandleLive(w http.ResponseWriter, r *http.Request) {
	topics, err := parseTopics(r)
	if err != nil {
		writeError(w, err)
		return
	}
	h.hub.Serve(w, r, topics, h.checkOrigin)
}

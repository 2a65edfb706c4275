// Package service holds Snippime's business rules: validation, ownership,
// visibility, and the side effects of a mutation (search index updates and
// live events).
//
// Handlers call services with plain values; services call the repository
// interfaces and never see HTTP. Every rule violation is returned as an
// apperror so the handler layer can map it to a status code.
package service

import (
	"github.com/sakif/snippime/internal/live"
	"github.com/sakif/snippime/internal/model"
	"github.com/sakif/snippime/internal/search"
)

// Publisher delivers live change notifications. *live.Hub implements it.
type Publisher interface {
	Publish(ev model.Event)
}

// SearchIndex is the full-text index of public snippets. *search.Index
// implements it.
type SearchIndex interface {
	Put(sn *model.Snippet) error
	Delete(id string) error
	Search(q string, limit int) ([]search.Hit, error)
}

var (
	_ Publisher   = (*live.Hub)(nil)
	_ SearchIndex = (*search.Index)(nil)
)

type nopPublisher struct{}

func (nopPublisher) Publish(model.Event) {}

// publishSnippet notifies the owner's private topic and, when the snippet is
// or was public, the public feed and the snippet's own topic.
func publishSnippet(p Publisher, typ model.EventType, sn *model.Snippet, wasPublic bool) {
	p.Publish(model.Event{Type: typ, Topic: live.UserTopic(sn.OwnerID), ID: sn.ID, Data: sn})

	if !sn.IsPublic() && !wasPublic {
		return
	}

	// Subscribers of public topics only learn the ID of a snippet that
	// stopped being public.
	var data any
	if sn.IsPublic() && typ != model.EventSnippetDeleted {
		data = sn
	}
	p.Publish(model.Event{Type: typ, Topic: live.TopicFeed, ID: sn.ID, Data: data})
	p.Publish(model.Event{Type: typ, Topic: live.SnippetTopic(sn.ID), ID: sn.ID, Data: data})
}

package model

// EventType names a change notification pushed to live subscribers.
type EventType string

const (
	EventSnippetCreated    EventType = "snippet.created"
	EventSnippetUpdated    EventType = "snippet.updated"
	EventSnippetDeleted    EventType = "snippet.deleted"
	EventSnippetVoted      EventType = "snippet.voted"
	EventSnippetForked     EventType = "snippet.forked"
	EventCollectionChanged EventType = "collection.changed"
	EventCollectionDeleted EventType = "collection.deleted"
)

// Event is a change notification. Data carries the changed document.
type Event struct {
	Type  EventType `json:"type"`
	Topic string    `json:"topic"`
	ID    string    `json:"id"`
	Data  any       `json:"data,omitempty"`
}

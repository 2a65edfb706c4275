package model

import "time"

// Visibility controls who can see a collection.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// Collection is a user-curated named group of snippet references.
// ItemCount mirrors the number of rows in the collection's items and is only
// changed by the toggle transaction.
type Collection struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Visibility  Visibility `json:"visibility"`
	OwnerID     string     `json:"ownerId"`
	OwnerName   string     `json:"ownerName"`
	ItemCount   int        `json:"itemCount"`
	ViewsCount  int        `json:"viewsCount"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// VisibleTo reports whether userID may read the collection.
func (c *Collection) VisibleTo(userID string) bool {
	return c.Visibility == VisibilityPublic || (userID != "" && c.OwnerID == userID)
}

// CollectionItem is a saved reference from a collection to a snippet.
type CollectionItem struct {
	CollectionID string    `json:"collectionId"`
	SnippetID    string    `json:"snippetId"`
	AddedBy      string    `json:"addedBy"`
	AddedAt      time.Time `json:"addedAt"`
}

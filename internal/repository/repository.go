// Package repository defines the storage contracts the service layer depends
// on. The sqlite sub-package is the only implementation; services are tested
// against in-memory fakes of these interfaces.
package repository

import (
	"context"

	"github.com/sakif/snippime/internal/model"
)

// SnippetSort selects the storage-side ordering of a snippet query.
type SnippetSort string

const (
	SortRecent       SnippetSort = "recent"
	SortPopular      SnippetSort = "popular"
	SortLiked        SnippetSort = "liked"
	SortHot          SnippetSort = "hot"
	SortViewed       SnippetSort = "viewed"
	SortAlphabetical SnippetSort = "alphabetical"
)

// Valid reports whether s is a known sort. The empty sort means SortRecent.
func (s SnippetSort) Valid() bool {
	switch s {
	case "", SortRecent, SortPopular, SortLiked, SortHot, SortViewed, SortAlphabetical:
		return true
	}
	return false
}

// Page size bounds applied by every listing query.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// SnippetQuery filters and orders a snippet listing. Zero-valued fields do
// not filter.
type SnippetQuery struct {
	Status   model.SnippetStatus
	OwnerID  string
	Language string
	Tag      string
	Sort     SnippetSort
	Limit    int
	Offset   int
}

// Normalize clamps Limit and Offset into range.
func (q SnippetQuery) Normalize() SnippetQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	if q.Sort == "" {
		q.Sort = SortRecent
	}
	return q
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	UpsertGitHub(ctx context.Context, user *model.User) error
	UpsertGoogle(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	UpdateProfile(ctx context.Context, user *model.User) error
}

type SnippetRepository interface {
	// Create stores the snippet together with its initial version.
	Create(ctx context.Context, snippet *model.Snippet) error
	GetByID(ctx context.Context, id string) (*model.Snippet, error)
	// GetMany returns the snippets that exist among ids, in the order given.
	GetMany(ctx context.Context, ids []string) ([]model.Snippet, error)
	List(ctx context.Context, q SnippetQuery) ([]model.Snippet, error)
	// Update writes the editable fields and records a version when code or
	// language changed.
	Update(ctx context.Context, snippet *model.Snippet, summary string) error
	Delete(ctx context.Context, id string) error
	IncrementViews(ctx context.Context, id string) error
	// CreateFork stores fork and increments the source's fork count atomically.
	CreateFork(ctx context.Context, fork *model.Snippet) error
	// Rescore recomputes every stored hot score and returns how many rows changed.
	Rescore(ctx context.Context) (int, error)
}

type VersionRepository interface {
	ListVersions(ctx context.Context, snippetID string) ([]model.SnippetVersion, error)
	GetVersion(ctx context.Context, id string) (*model.SnippetVersion, error)
	// Revert restores a version's code onto its snippet and records the revert.
	Revert(ctx context.Context, snippetID, versionID, authorID string) (*model.Snippet, error)
}

type VoteRepository interface {
	// ApplyVote sets the user's vote and updates the snippet aggregates in one
	// transaction. value 0 clears the vote.
	ApplyVote(ctx context.Context, userID, snippetID string, value int) (*model.VoteResult, error)
	GetVote(ctx context.Context, userID, snippetID string) (int, error)
	// Liked returns the snippets userID up-voted, most recent vote first.
	Liked(ctx context.Context, userID string) ([]model.Snippet, error)
}

type CollectionRepository interface {
	Create(ctx context.Context, c *model.Collection) error
	GetByID(ctx context.Context, id string) (*model.Collection, error)
	Update(ctx context.Context, c *model.Collection) error
	Delete(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, ownerID string) ([]model.Collection, error)
	// ToggleItem adds the snippet when absent and removes it when present,
	// adjusting the item count in the same transaction.
	ToggleItem(ctx context.Context, collectionID, snippetID, userID string) (added bool, itemCount int, err error)
	ListItems(ctx context.Context, collectionID string) ([]model.CollectionItem, error)
	// Containing returns the IDs of ownerID's collections that hold snippetID.
	Containing(ctx context.Context, ownerID, snippetID string) ([]string, error)
	IncrementViews(ctx context.Context, id string) error
}

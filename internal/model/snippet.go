// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data, composed rather than inherited.
package model

import "time"

// SnippetStatus controls who can see a snippet.
type SnippetStatus string

const (
	StatusDraft   SnippetStatus = "draft"
	StatusPublic  SnippetStatus = "public"
	StatusPrivate SnippetStatus = "private"
)

// Valid reports whether s is one of the known statuses.
func (s SnippetStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPublic, StatusPrivate:
		return true
	}
	return false
}

// VoteCounts holds the number of up and down votes a snippet has received.
type VoteCounts struct {
	Up   int `json:"up"`
	Down int `json:"down"`
}

// Snippet represents a shared code sample.
//
// Score, VoteCounts and ScoreHot are aggregates maintained by the vote
// transaction; callers never write them directly.
//
// Fork metadata (ForkOf and the Original* fields) is empty for
// snippets that were not forked.
type Snippet struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Code        string        `json:"code"`
	Language    string        `json:"language"`
	Tags        []string      `json:"tags"`
	Status      SnippetStatus `json:"status"`

	OwnerID     string `json:"ownerId"`
	AuthorName  string `json:"authorName"`
	AuthorPhoto string `json:"authorPhoto,omitempty"`

	Score        int        `json:"score"`
	VoteCounts   VoteCounts `json:"voteCounts"`
	ScoreHot     float64    `json:"scoreHot"`
	ViewsCount   int        `json:"viewsCount"`
	ForkCount    int        `json:"forkCount"`
	VersionCount int        `json:"versionCount"`

	ForkOf          string `json:"forkOf,omitempty"`
	OriginalOwnerID string `json:"originalOwnerId,omitempty"`
	OriginalTitle   string `json:"originalTitle,omitempty"`
	// OriginalOwnerName is the source author's name when the fork was made.
	OriginalOwnerName string `json:"originalOwnerName,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsPublic reports whether anyone may read the snippet.
func (s *Snippet) IsPublic() bool {
	return s.Status == StatusPublic
}

// VisibleTo reports whether userID may read the snippet. An empty userID is
// an anonymous caller.
func (s *Snippet) VisibleTo(userID string) bool {
	return s.IsPublic() || (userID != "" && s.OwnerID == userID)
}

// SnippetVersion is one entry in a snippet's code history.
type SnippetVersion struct {
	ID           string    `json:"id"`
	SnippetID    string    `json:"snippetId"`
	Code         string    `json:"code"`
	Language     string    `json:"language"`
	Summary      string    `json:"summary"`
	AuthorID     string    `json:"authorId"`
	IsInitial    bool      `json:"isInitial"`
	IsRevert     bool      `json:"isRevert"`
	RevertedFrom string    `json:"revertedFrom,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

package model

import "time"

// Vote is a user's stance on a snippet: -1, 0 or +1.
// A value of 0 is never stored; clearing a vote deletes the row.
type Vote struct {
	UserID    string    `json:"userId"`
	SnippetID string    `json:"snippetId"`
	Value     int       `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// VoteResult is the authoritative state after a vote has been applied.
type VoteResult struct {
	SnippetID  string     `json:"snippetId"`
	Value      int        `json:"value"`
	Score      int        `json:"score"`
	VoteCounts VoteCounts `json:"voteCounts"`
	ScoreHot   float64    `json:"scoreHot"`
}

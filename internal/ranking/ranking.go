// Package ranking holds the vote arithmetic: applying a vote change to a
// snippet's tally and computing the time-decayed "hot" ranking value.
//
// Everything here is pure; the repository calls these functions inside the
// vote transaction so the stored aggregates and the stored hot score are
// always derived from the same numbers.
package ranking

import (
	"math"
	"time"
)

// Epoch is the reference point for the time component of HotScore.
// Changing it shifts every hot score by the same amount, so ordering is
// unaffected, but stored values must be recomputed (see `snippime rescore`).
var Epoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// decaySeconds is how many seconds of age are worth one order of magnitude
// of score: a snippet 12.5 hours newer needs ten times fewer votes.
const decaySeconds = 45000

// Tally is a snippet's vote aggregate.
type Tally struct {
	Score int
	Up    int
	Down  int
}

// ValidVote reports whether v is an allowed vote value.
func ValidVote(v int) bool {
	return v == -1 || v == 0 || v == 1
}

// Delta returns how much the score moves when a vote changes from old to new.
func Delta(old, new int) int {
	return new - old
}

// ApplyVote returns the tally after a single user's vote moves from old to
// new. Both values must satisfy ValidVote. The old vote is withdrawn first
// and the new one counted, so switching from down to up moves the score by
// two and shifts one count from Down to Up.
func ApplyVote(t Tally, old, new int) Tally {
	if old == new {
		return t
	}

	t.Score += Delta(old, new)

	switch old {
	case 1:
		t.Up--
	case -1:
		t.Down--
	}
	switch new {
	case 1:
		t.Up++
	case -1:
		t.Down++
	}

	// Counters are never negative, even if the stored tally had drifted.
	if t.Up < 0 {
		t.Up = 0
	}
	if t.Down < 0 {
		t.Down = 0
	}
	return t
}

// HotScore ranks a snippet by combining the magnitude of its score with
// its age:
//
//	sign(score) * log10(max(|score|, 1)) + (createdAt - Epoch) / 45000
//
// Newer snippets get a larger time component, so an old snippet needs
// exponentially more votes to stay above a fresh one.
func HotScore(score int, createdAt time.Time) float64 {
	order := math.Log10(math.Max(math.Abs(float64(score)), 1))

	var sign float64
	switch {
	case score > 0:
		sign = 1
	case score < 0:
		sign = -1
	}

	seconds := createdAt.Sub(Epoch).Seconds()
	return sign*order + seconds/decaySeconds
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/snippime/internal/apperror"
	"github.com/sakif/snippime/internal/model"
	"github.com/sakif/snippime/internal/ranking"
	"github.com/sakif/snippime/internal/repository"
)

var _ repository.VoteRepository = (*VoteDB)(nil)

// VoteDB stores per-user votes and maintains the snippet aggregates.
type VoteDB struct {
	db *DB
}

// ApplyVote reads the user's previous vote, writes or deletes the vote row
// and moves the snippet's score, counters and hot score by the difference.
// All of it commits together or not at all.
func (r *VoteDB) ApplyVote(ctx context.Context, userID, snippetID string, value int) (*model.VoteResult, error) {
	if !ranking.ValidVote(value) {
		return nil, apperror.ValidationFailed("value", "vote must be -1, 0 or 1")
	}

	var result *model.VoteResult

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		sn, err := getSnippet(ctx, tx, snippetID)
		if err != nil {
			return err
		}

		old, err := getVote(ctx, tx, userID, snippetID)
		if err != nil {
			return err
		}

		tally := ranking.Tally{Score: sn.Score, Up: sn.VoteCounts.Up, Down: sn.VoteCounts.Down}
		next := ranking.ApplyVote(tally, old, value)
		hot := ranking.HotScore(next.Score, sn.CreatedAt)

		result = &model.VoteResult{
			SnippetID:  snippetID,
			Value:      value,
			Score:      next.Score,
			VoteCounts: model.VoteCounts{Up: next.Up, Down: next.Down},
			ScoreHot:   hot,
		}

		if old == value {
			return nil
		}

		if value == 0 {
			_, err = tx.ExecContext(ctx,
				`DELETE FROM votes WHERE user_id = ? AND snippet_id = ?`, userID, snippetID,
			)
		} else {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO votes (user_id, snippet_id, value, updated_at) VALUES (?, ?, ?, ?)
				 ON CONFLICT (user_id, snippet_id) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				userID, snippetID, value, now(),
			)
		}
		if err != nil {
			return fmt.Errorf("sqlite: writing vote %s/%s: %w", userID, snippetID, err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE snippets SET score = ?, vote_up = ?, vote_down = ?, score_hot = ? WHERE id = ?`,
			next.Score, next.Up, next.Down, hot, snippetID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating score of %s: %w", snippetID, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetVote returns the user's vote on the snippet, 0 when none is recorded.
func (r *VoteDB) GetVote(ctx context.Context, userID, snippetID string) (int, error) {
	return getVote(ctx, r.db.conn, userID, snippetID)
}

func getVote(ctx context.Context, ex execer, userID, snippetID string) (int, error) {
	var v int
	err := ex.QueryRowContext(ctx,
		`SELECT value FROM votes WHERE user_id = ? AND snippet_id = ?`, userID, snippetID,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sqlite: reading vote %s/%s: %w", userID, snippetID, err)
	}
	return v, nil
}

// Liked returns every snippet userID currently up-votes, most recent first.
// Visibility is left to the caller.
func (r *VoteDB) Liked(ctx context.Context, userID string) ([]model.Snippet, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+prefixed("s", snippetColumns)+`
		 FROM votes v JOIN snippets s ON s.id = v.snippet_id
		 WHERE v.user_id = ? AND v.value = 1
		 ORDER BY v.updated_at DESC, v.rowid DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing liked snippets of %s: %w", userID, err)
	}
	return scanSnippets(rows)
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/rs/xid"
	"github.com/sakif/snippime/internal/apperror"
	"github.com/sakif/snippime/internal/model"
	"github.com/sakif/snippime/internal/ranking"
	"github.com/sakif/snippime/internal/repository"
)

var _ repository.SnippetRepository = (*SnippetDB)(nil)

// SnippetDB stores snippets and their aggregates.
type SnippetDB struct {
	db *DB
}

const snippetColumns = `id, title, description, code, language, tags, status,
	owner_id, author_name, author_photo,
	score, vote_up, vote_down, score_hot, views_count, fork_count, version_count,
	fork_of, original_owner_id, original_title, original_owner_name, created_at, updated_at`

func scanSnippet(s scanner) (*model.Snippet, error) {
	var (
		sn   model.Snippet
		tags string
	)
	err := s.Scan(
		&sn.ID, &sn.Title, &sn.Description, &sn.Code, &sn.Language, &tags, &sn.Status,
		&sn.OwnerID, &sn.AuthorName, &sn.AuthorPhoto,
		&sn.Score, &sn.VoteCounts.Up, &sn.VoteCounts.Down, &sn.ScoreHot,
		&sn.ViewsCount, &sn.ForkCount, &sn.VersionCount,
		&sn.ForkOf, &sn.OriginalOwnerID, &sn.OriginalTitle, &sn.OriginalOwnerName, &sn.CreatedAt, &sn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sn.Tags = decodeStrings(tags)
	return &sn, nil
}

func scanSnippets(rows *sql.Rows) ([]model.Snippet, error) {
	defer rows.Close()
	out := []model.Snippet{}
	for rows.Next() {
		sn, err := scanSnippet(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning snippet: %w", err)
		}
		out = append(out, *sn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating snippets: %w", err)
	}
	return out, nil
}

func getSnippet(ctx context.Context, ex execer, id string) (*model.Snippet, error) {
	sn, err := scanSnippet(ex.QueryRowContext(ctx,
		`SELECT `+snippetColumns+` FROM snippets WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("snippet", id)
		}
		return nil, fmt.Errorf("sqlite: getting snippet %s: %w", id, err)
	}
	return sn, nil
}

func insertSnippet(ctx context.Context, ex execer, sn *model.Snippet) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO snippets (`+snippetColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sn.ID, sn.Title, sn.Description, sn.Code, sn.Language, encodeStrings(sn.Tags), sn.Status,
		sn.OwnerID, sn.AuthorName, sn.AuthorPhoto,
		sn.Score, sn.VoteCounts.Up, sn.VoteCounts.Down, sn.ScoreHot,
		sn.ViewsCount, sn.ForkCount, sn.VersionCount,
		sn.ForkOf, sn.OriginalOwnerID, sn.OriginalTitle, sn.OriginalOwnerName, sn.CreatedAt, sn.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting snippet: %w", err)
	}
	return nil
}

// prepareNew assigns identity and resets the aggregates of a snippet that is
// about to be inserted with one initial version.
func prepareNew(sn *model.Snippet) {
	t := now()
	sn.ID = xid.New().String()
	sn.CreatedAt = t
	sn.UpdatedAt = t
	sn.Score = 0
	sn.VoteCounts = model.VoteCounts{}
	sn.ScoreHot = ranking.HotScore(0, t)
	sn.ViewsCount = 0
	sn.ForkCount = 0
	sn.VersionCount = 1
	if sn.Tags == nil {
		sn.Tags = []string{}
	}
}

// Create inserts the snippet and its initial version in one transaction.
func (r *SnippetDB) Create(ctx context.Context, sn *model.Snippet) error {
	prepareNew(sn)

	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertSnippet(ctx, tx, sn); err != nil {
			return err
		}
		return insertVersion(ctx, tx, &model.SnippetVersion{
			SnippetID: sn.ID,
			Code:      sn.Code,
			Language:  sn.Language,
			Summary:   "Initial version",
			AuthorID:  sn.OwnerID,
			IsInitial: true,
		})
	})
}

func (r *SnippetDB) GetByID(ctx context.Context, id string) (*model.Snippet, error) {
	return getSnippet(ctx, r.db.conn, id)
}

func (r *SnippetDB) GetMany(ctx context.Context, ids []string) ([]model.Snippet, error) {
	if len(ids) == 0 {
		return []model.Snippet{}, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+snippetColumns+` FROM snippets WHERE id IN (`+placeholders+`)`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: getting snippets: %w", err)
	}
	found, err := scanSnippets(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]model.Snippet, len(found))
	for _, sn := range found {
		byID[sn.ID] = sn
	}
	out := make([]model.Snippet, 0, len(found))
	for _, id := range ids {
		if sn, ok := byID[id]; ok {
			out = append(out, sn)
			delete(byID, id)
		}
	}
	return out, nil
}

var snippetOrder = map[repository.SnippetSort]string{
	repository.SortRecent:       "created_at DESC, id DESC",
	repository.SortPopular:      "score DESC, created_at DESC",
	repository.SortLiked:        "vote_up DESC, created_at DESC",
	repository.SortHot:          "score_hot DESC, id DESC",
	repository.SortViewed:       "views_count DESC, created_at DESC",
	repository.SortAlphabetical: "title COLLATE NOCASE ASC, id ASC",
}

func (r *SnippetDB) List(ctx context.Context, q repository.SnippetQuery) ([]model.Snippet, error) {
	q = q.Normalize()

	var (
		where []string
		args  []any
	)
	if q.Status != "" {
		where = append(where, "status = ?")
		args = append(args, q.Status)
	}
	if q.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, q.OwnerID)
	}
	if q.Language != "" {
		where = append(where, "language = ?")
		args = append(args, q.Language)
	}
	if q.Tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(snippets.tags) WHERE json_each.value = ?)")
		args = append(args, q.Tag)
	}

	order, ok := snippetOrder[q.Sort]
	if !ok {
		order = snippetOrder[repository.SortRecent]
	}

	query := `SELECT ` + snippetColumns + ` FROM snippets`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY ` + order + ` LIMIT ? OFFSET ?`
	args = append(args, q.Limit, q.Offset)

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing snippets: %w", err)
	}
	return scanSnippets(rows)
}

// Update writes title, description, code, language, tags and status. When
// code or language differ from the stored row a version is appended. On
// success sn is refreshed from storage.
func (r *SnippetDB) Update(ctx context.Context, sn *model.Snippet, summary string) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getSnippet(ctx, tx, sn.ID)
		if err != nil {
			return err
		}

		changed := current.Code != sn.Code || current.Language != sn.Language
		versionBump := 0
		if changed {
			versionBump = 1
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE snippets SET title = ?, description = ?, code = ?, language = ?,
			 tags = ?, status = ?, version_count = version_count + ?, updated_at = ?
			 WHERE id = ?`,
			sn.Title, sn.Description, sn.Code, sn.Language,
			encodeStrings(sn.Tags), sn.Status, versionBump, now(), sn.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating snippet %s: %w", sn.ID, err)
		}

		if changed {
			if summary == "" {
				summary = "Updated code"
			}
			err := insertVersion(ctx, tx, &model.SnippetVersion{
				SnippetID: sn.ID,
				Code:      sn.Code,
				Language:  sn.Language,
				Summary:   summary,
				AuthorID:  sn.OwnerID,
			})
			if err != nil {
				return err
			}
		}

		updated, err := getSnippet(ctx, tx, sn.ID)
		if err != nil {
			return err
		}
		*sn = *updated
		return nil
	})
}

// Delete removes the snippet and everything referencing it, decrementing the
// item count of every collection that held it.
func (r *SnippetDB) Delete(ctx context.Context, id string) error {
	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`UPDATE collections SET item_count = MAX(item_count - 1, 0)
			 WHERE id IN (SELECT collection_id FROM collection_items WHERE snippet_id = ?)`, id,
		)
		if err != nil {
			return fmt.Errorf("sqlite: releasing collection items of %s: %w", id, err)
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM snippets WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("sqlite: deleting snippet %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperror.NotFound("snippet", id)
		}
		return nil
	})
}

func (r *SnippetDB) IncrementViews(ctx context.Context, id string) error {
	res, err := r.db.conn.ExecContext(ctx,
		`UPDATE snippets SET views_count = views_count + 1 WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: counting view of %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("snippet", id)
	}
	return nil
}

// CreateFork inserts fork (whose ForkOf names the source) with its initial
// version and increments the source's fork count.
func (r *SnippetDB) CreateFork(ctx context.Context, fork *model.Snippet) error {
	if fork.ForkOf == "" {
		return apperror.ValidationFailed("forkOf", "fork source is required")
	}
	prepareNew(fork)

	return r.db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE snippets SET fork_count = fork_count + 1 WHERE id = ?`, fork.ForkOf,
		)
		if err != nil {
			return fmt.Errorf("sqlite: counting fork of %s: %w", fork.ForkOf, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperror.NotFound("snippet", fork.ForkOf)
		}

		if err := insertSnippet(ctx, tx, fork); err != nil {
			return err
		}
		return insertVersion(ctx, tx, &model.SnippetVersion{
			SnippetID: fork.ID,
			Code:      fork.Code,
			Language:  fork.Language,
			Summary:   "Forked from " + fork.OriginalTitle,
			AuthorID:  fork.OwnerID,
			IsInitial: true,
		})
	})
}

// Rescore recomputes score_hot from score and created_at for every snippet.
func (r *SnippetDB) Rescore(ctx context.Context) (int, error) {
	type row struct {
		id  string
		hot float64
	}

	rows, err := r.db.conn.QueryContext(ctx, `SELECT `+snippetColumns+` FROM snippets`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: reading scores: %w", err)
	}
	all, err := scanSnippets(rows)
	if err != nil {
		return 0, err
	}

	var stale []row
	for _, sn := range all {
		hot := ranking.HotScore(sn.Score, sn.CreatedAt)
		if math.Abs(hot-sn.ScoreHot) > 1e-9 {
			stale = append(stale, row{id: sn.ID, hot: hot})
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	err = r.db.withTx(ctx, func(tx *sql.Tx) error {
		for _, s := range stale {
			if _, err := tx.ExecContext(ctx,
				`UPDATE snippets SET score_hot = ? WHERE id = ?`, s.hot, s.id,
			); err != nil {
				return fmt.Errorf("sqlite: rescoring %s: %w", s.id, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(stale), nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/xid"
	"github.com/sakif/snippime/internal/apperror"
	"github.com/sakif/snippime/internal/model"
	"github.com/sakif/snippime/internal/repository"
)

var _ repository.VersionRepository = (*VersionDB)(nil)

// VersionDB stores snippet code history.
type VersionDB struct {
	db *DB
}

const versionColumns = `id, snippet_id, code, language, summary, author_id,
	is_initial, is_revert, reverted_from, created_at`

func scanVersion(s scanner) (*model.SnippetVersion, error) {
	var v model.SnippetVersion
	err := s.Scan(
		&v.ID, &v.SnippetID, &v.Code, &v.Language, &v.Summary, &v.AuthorID,
		&v.IsInitial, &v.IsRevert, &v.RevertedFrom, &v.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func insertVersion(ctx context.Context, ex execer, v *model.SnippetVersion) error {
	v.ID = xid.New().String()
	v.CreatedAt = now()

	_, err := ex.ExecContext(ctx,
		`INSERT INTO snippet_versions (`+versionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.SnippetID, v.Code, v.Language, v.Summary, v.AuthorID,
		boolInt(v.IsInitial), boolInt(v.IsRevert), v.RevertedFrom, v.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting version of %s: %w", v.SnippetID, err)
	}
	return nil
}

// ListVersions returns the snippet's history, newest first.
func (r *VersionDB) ListVersions(ctx context.Context, snippetID string) ([]model.SnippetVersion, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM snippet_versions
		 WHERE snippet_id = ? ORDER BY created_at DESC, rowid DESC`, snippetID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing versions of %s: %w", snippetID, err)
	}
	defer rows.Close()

	out := []model.SnippetVersion{}
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning version: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (r *VersionDB) GetVersion(ctx context.Context, id string) (*model.SnippetVersion, error) {
	return getVersion(ctx, r.db.conn, id)
}

func getVersion(ctx context.Context, ex execer, id string) (*model.SnippetVersion, error) {
	v, err := scanVersion(ex.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM snippet_versions WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("version", id)
		}
		return nil, fmt.Errorf("sqlite: getting version %s: %w", id, err)
	}
	return v, nil
}

// Revert copies the version's code and language onto the snippet and appends
// a revert entry pointing back at versionID.
func (r *VersionDB) Revert(ctx context.Context, snippetID, versionID, authorID string) (*model.Snippet, error) {
	var out *model.Snippet

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		v, err := getVersion(ctx, tx, versionID)
		if err != nil {
			return err
		}
		if v.SnippetID != snippetID {
			return apperror.NotFound("version", versionID)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE snippets SET code = ?, language = ?, version_count = version_count + 1,
			 updated_at = ? WHERE id = ?`,
			v.Code, v.Language, now(), snippetID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: reverting snippet %s: %w", snippetID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperror.NotFound("snippet", snippetID)
		}

		err = insertVersion(ctx, tx, &model.SnippetVersion{
			SnippetID:    snippetID,
			Code:         v.Code,
			Language:     v.Language,
			Summary:      "Reverted to version from " + v.CreatedAt.Format("2006-01-02 15:04"),
			AuthorID:     authorID,
			IsRevert:     true,
			RevertedFrom: v.ID,
		})
		if err != nil {
			return err
		}

		out, err = getSnippet(ctx, tx, snippetID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

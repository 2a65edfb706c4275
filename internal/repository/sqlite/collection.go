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

var _ repository.CollectionRepository = (*CollectionDB)(nil)

// CollectionDB stores collections and their saved items.
type CollectionDB struct {
	db *DB
}

const collectionColumns = `id, title, description, visibility, owner_id, owner_name,
	item_count, views_count, created_at, updated_at`

func scanCollection(s scanner) (*model.Collection, error) {
	var c model.Collection
	err := s.Scan(
		&c.ID, &c.Title, &c.Description, &c.Visibility, &c.OwnerID, &c.OwnerName,
		&c.ItemCount, &c.ViewsCount, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func getCollection(ctx context.Context, ex execer, id string) (*model.Collection, error) {
	c, err := scanCollection(ex.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("collection", id)
		}
		return nil, fmt.Errorf("sqlite: getting collection %s: %w", id, err)
	}
	return c, nil
}

func (r *CollectionDB) Create(ctx context.Context, c *model.Collection) error {
	t := now()
	c.ID = xid.New().String()
	c.ItemCount = 0
	c.ViewsCount = 0
	c.CreatedAt = t
	c.UpdatedAt = t

	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO collections (`+collectionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Title, c.Description, c.Visibility, c.OwnerID, c.OwnerName,
		c.ItemCount, c.ViewsCount, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting collection: %w", err)
	}
	return nil
}

func (r *CollectionDB) GetByID(ctx context.Context, id string) (*model.Collection, error) {
	return getCollection(ctx, r.db.conn, id)
}

// Update writes title, description and visibility. ItemCount is owned by
// ToggleItem and never written here.
func (r *CollectionDB) Update(ctx context.Context, c *model.Collection) error {
	c.UpdatedAt = now()
	res, err := r.db.conn.ExecContext(ctx,
		`UPDATE collections SET title = ?, description = ?, visibility = ?, updated_at = ?
		 WHERE id = ?`,
		c.Title, c.Description, c.Visibility, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating collection %s: %w", c.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("collection", c.ID)
	}
	return nil
}

// Delete removes the collection; its items go with it through the foreign key.
func (r *CollectionDB) Delete(ctx context.Context, id string) error {
	res, err := r.db.conn.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting collection %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("collection", id)
	}
	return nil
}

func (r *CollectionDB) ListByOwner(ctx context.Context, ownerID string) ([]model.Collection, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT `+collectionColumns+` FROM collections
		 WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing collections of %s: %w", ownerID, err)
	}
	defer rows.Close()

	out := []model.Collection{}
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning collection: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ToggleItem saves snippetID into the collection, or removes it when it is
// already saved, and moves item_count by one in the same transaction.
func (r *CollectionDB) ToggleItem(ctx context.Context, collectionID, snippetID, userID string) (bool, int, error) {
	var (
		added bool
		count int
	)

	err := r.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getCollection(ctx, tx, collectionID); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM collection_items WHERE collection_id = ? AND snippet_id = ?`,
			collectionID, snippetID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: removing item %s from %s: %w", snippetID, collectionID, err)
		}

		delta := -1
		if n, _ := res.RowsAffected(); n == 0 {
			if _, err := getSnippet(ctx, tx, snippetID); err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO collection_items (collection_id, snippet_id, added_by, added_at)
				 VALUES (?, ?, ?, ?)`,
				collectionID, snippetID, userID, now(),
			)
			if err != nil {
				return fmt.Errorf("sqlite: adding item %s to %s: %w", snippetID, collectionID, err)
			}
			added = true
			delta = 1
		}

		err = tx.QueryRowContext(ctx,
			`UPDATE collections SET item_count = MAX(item_count + ?, 0), updated_at = ?
			 WHERE id = ? RETURNING item_count`,
			delta, now(), collectionID,
		).Scan(&count)
		if err != nil {
			return fmt.Errorf("sqlite: updating item count of %s: %w", collectionID, err)
		}
		return nil
	})
	if err != nil {
		return false, 0, err
	}
	return added, count, nil
}

// ListItems returns the collection's saved references, most recently added first.
func (r *CollectionDB) ListItems(ctx context.Context, collectionID string) ([]model.CollectionItem, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT collection_id, snippet_id, added_by, added_at FROM collection_items
		 WHERE collection_id = ? ORDER BY added_at DESC, rowid DESC`, collectionID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing items of %s: %w", collectionID, err)
	}
	defer rows.Close()

	out := []model.CollectionItem{}
	for rows.Next() {
		var it model.CollectionItem
		if err := rows.Scan(&it.CollectionID, &it.SnippetID, &it.AddedBy, &it.AddedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *CollectionDB) Containing(ctx context.Context, ownerID, snippetID string) ([]string, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT c.id FROM collections c
		 JOIN collection_items i ON i.collection_id = c.id
		 WHERE c.owner_id = ? AND i.snippet_id = ?
		 ORDER BY c.created_at DESC`, ownerID, snippetID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: collections containing %s: %w", snippetID, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning collection id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *CollectionDB) IncrementViews(ctx context.Context, id string) error {
	res, err := r.db.conn.ExecContext(ctx,
		`UPDATE collections SET views_count = views_count + 1 WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: counting view of collection %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("collection", id)
	}
	return nil
}

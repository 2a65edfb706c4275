package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/xid"
	"github.com/sakif/snippime/internal/apperror"
	"github.com/sakif/snippime/internal/model"
	"github.com/sakif/snippime/internal/repository"
)

var _ repository.UserRepository = (*UserDB)(nil)

// UserDB stores accounts.
type UserDB struct {
	db *DB
}

const userColumns = `id, email, display_name, photo_url, bio, preferred_languages,
	github_id, google_id, password_hash, created_at, updated_at`

func scanUser(s scanner) (*model.User, error) {
	var (
		u        model.User
		langs    string
		githubID sql.NullInt64
		googleID sql.NullString
	)
	err := s.Scan(
		&u.ID, &u.Email, &u.DisplayName, &u.PhotoURL, &u.Bio, &langs,
		&githubID, &googleID, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.PreferredLanguages = decodeStrings(langs)
	u.GitHubID = githubID.Int64
	u.GoogleID = googleID.String
	return &u, nil
}

func nullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

// Create inserts a new account. A second password account with the same
// email, or a reused GitHub/Google ID, is reported as a conflict.
func (r *UserDB) Create(ctx context.Context, user *model.User) error {
	t := now()
	user.ID = xid.New().String()
	user.CreatedAt = t
	user.UpdatedAt = t

	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.DisplayName, user.PhotoURL, user.Bio,
		encodeStrings(user.PreferredLanguages),
		nullInt64(user.GitHubID), nullString(user.GoogleID), user.PasswordHash,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &apperror.AppError{Err: apperror.ErrConflict, Message: "an account with these credentials already exists"}
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}
	return nil
}

// UpsertGitHub creates the account for user.GitHubID or refreshes the
// provider-supplied fields (email, photo) of the existing one. Profile fields
// the user edited (display name, bio, languages) are preserved.
func (r *UserDB) UpsertGitHub(ctx context.Context, user *model.User) error {
	return r.upsertBy(ctx, "github_id", nullInt64(user.GitHubID), user)
}

// UpsertGoogle is UpsertGitHub for Google accounts.
func (r *UserDB) UpsertGoogle(ctx context.Context, user *model.User) error {
	return r.upsertBy(ctx, "google_id", nullString(user.GoogleID), user)
}

func (r *UserDB) upsertBy(ctx context.Context, column string, key any, user *model.User) error {
	existing, err := scanUser(r.db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, key,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return r.Create(ctx, user)
	}
	if err != nil {
		return fmt.Errorf("sqlite: looking up user by %s: %w", column, err)
	}

	existing.Email = user.Email
	if user.PhotoURL != "" {
		existing.PhotoURL = user.PhotoURL
	}
	existing.UpdatedAt = now()

	_, err = r.db.conn.ExecContext(ctx,
		`UPDATE users SET email = ?, photo_url = ?, updated_at = ? WHERE id = ?`,
		existing.Email, existing.PhotoURL, existing.UpdatedAt, existing.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", existing.ID, err)
	}

	*user = *existing
	return nil
}

// GetByID returns apperror.ErrNotFound when no account has that ID.
func (r *UserDB) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(r.db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetByEmail returns the password account registered with email.
// OAuth accounts sharing the address are not matched.
func (r *UserDB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(r.db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? AND password_hash != ''`,
		strings.ToLower(strings.TrimSpace(email)),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: getting user by email: %w", err)
	}
	return u, nil
}

// UpdateProfile writes the user-editable profile fields.
func (r *UserDB) UpdateProfile(ctx context.Context, user *model.User) error {
	user.UpdatedAt = now()
	res, err := r.db.conn.ExecContext(ctx,
		`UPDATE users SET display_name = ?, photo_url = ?, bio = ?,
		 preferred_languages = ?, updated_at = ?
		 WHERE id = ?`,
		user.DisplayName, user.PhotoURL, user.Bio,
		encodeStrings(user.PreferredLanguages), user.UpdatedAt, user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating profile %s: %w", user.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Package sqlite implements the repository interfaces on SQLite through the
// pure-Go modernc.org/sqlite driver, so the server builds without CGo.
//
// A single *DB owns the connection pool and hands out one store per
// aggregate: Users, Snippets, Versions, Votes and Collections. Multi-row
// changes (votes, forks, reverts, collection toggles) run inside withTx.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath and runs migrations. ":memory:" gives a
// private in-memory database, used by tests.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every pooled connection to ":memory:" would see its own empty database.
	if strings.Contains(dbPath, ":memory:") {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// pragmas are applied by the driver to every new connection in the pool;
// foreign_keys in particular is per-connection state.
var pragmas = []string{
	"journal_mode(WAL)",
	"foreign_keys(1)",
	"busy_timeout(5000)",
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	var b strings.Builder
	b.WriteString(path)
	for _, p := range pragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	// BEGIN IMMEDIATE takes the write lock up front, so a read-then-write
	// transaction waits on busy_timeout instead of failing to upgrade.
	b.WriteString(sep)
	b.WriteString("_txlock=immediate")
	return b.String()
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable. Used by /healthz.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) Users() *UserDB             { return &UserDB{db: db} }
func (db *DB) Snippets() *SnippetDB       { return &SnippetDB{db: db} }
func (db *DB) Versions() *VersionDB       { return &VersionDB{db: db} }
func (db *DB) Votes() *VoteDB             { return &VoteDB{db: db} }
func (db *DB) Collections() *CollectionDB { return &CollectionDB{db: db} }

// withTx runs fn in a transaction, committing when fn returns nil and rolling
// back otherwise. fn must use tx exclusively: with a single in-memory
// connection a query on db.conn would block forever.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func (db *DB) migrate() error {
	stmts := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id                  TEXT PRIMARY KEY,
				email               TEXT NOT NULL DEFAULT '',
				display_name        TEXT NOT NULL DEFAULT '',
				photo_url           TEXT NOT NULL DEFAULT '',
				bio                 TEXT NOT NULL DEFAULT '',
				preferred_languages TEXT NOT NULL DEFAULT '[]',
				github_id           INTEGER UNIQUE,
				google_id           TEXT UNIQUE,
				password_hash       TEXT NOT NULL DEFAULT '',
				created_at          DATETIME NOT NULL,
				updated_at          DATETIME NOT NULL
			);
			CREATE UNIQUE INDEX IF NOT EXISTS idx_users_password_email
				ON users(email) WHERE password_hash != '';
		`},
		{"snippets", `
			CREATE TABLE IF NOT EXISTS snippets (
				id                TEXT PRIMARY KEY,
				title             TEXT NOT NULL,
				description       TEXT NOT NULL DEFAULT '',
				code              TEXT NOT NULL DEFAULT '',
				language          TEXT NOT NULL,
				tags              TEXT NOT NULL DEFAULT '[]',
				status            TEXT NOT NULL DEFAULT 'draft',
				owner_id          TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				author_name       TEXT NOT NULL DEFAULT '',
				author_photo      TEXT NOT NULL DEFAULT '',
				score             INTEGER NOT NULL DEFAULT 0,
				vote_up           INTEGER NOT NULL DEFAULT 0,
				vote_down         INTEGER NOT NULL DEFAULT 0,
				score_hot         REAL NOT NULL DEFAULT 0,
				views_count       INTEGER NOT NULL DEFAULT 0,
				fork_count        INTEGER NOT NULL DEFAULT 0,
				version_count     INTEGER NOT NULL DEFAULT 0,
				fork_of           TEXT NOT NULL DEFAULT '',
				original_owner_id TEXT NOT NULL DEFAULT '',
				original_title    TEXT NOT NULL DEFAULT '',
				original_owner_name TEXT NOT NULL DEFAULT '',
				created_at        DATETIME NOT NULL,
				updated_at        DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_snippets_status_created ON snippets(status, created_at);
			CREATE INDEX IF NOT EXISTS idx_snippets_owner ON snippets(owner_id);
			CREATE INDEX IF NOT EXISTS idx_snippets_hot ON snippets(status, score_hot);
		`},
		{"snippet_versions", `
			CREATE TABLE IF NOT EXISTS snippet_versions (
				id            TEXT PRIMARY KEY,
				snippet_id    TEXT NOT NULL REFERENCES snippets(id) ON DELETE CASCADE,
				code          TEXT NOT NULL,
				language      TEXT NOT NULL,
				summary       TEXT NOT NULL DEFAULT '',
				author_id     TEXT NOT NULL,
				is_initial    INTEGER NOT NULL DEFAULT 0,
				is_revert     INTEGER NOT NULL DEFAULT 0,
				reverted_from TEXT NOT NULL DEFAULT '',
				created_at    DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_versions_snippet ON snippet_versions(snippet_id, created_at);
		`},
		{"votes", `
			CREATE TABLE IF NOT EXISTS votes (
				user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				snippet_id TEXT NOT NULL REFERENCES snippets(id) ON DELETE CASCADE,
				value      INTEGER NOT NULL CHECK (value IN (-1, 1)),
				updated_at DATETIME NOT NULL,
				PRIMARY KEY (user_id, snippet_id)
			);
			CREATE INDEX IF NOT EXISTS idx_votes_snippet ON votes(snippet_id);
		`},
		{"collections", `
			CREATE TABLE IF NOT EXISTS collections (
				id          TEXT PRIMARY KEY,
				title       TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				visibility  TEXT NOT NULL DEFAULT 'private',
				owner_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				owner_name  TEXT NOT NULL DEFAULT '',
				item_count  INTEGER NOT NULL DEFAULT 0,
				views_count INTEGER NOT NULL DEFAULT 0,
				created_at  DATETIME NOT NULL,
				updated_at  DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_collections_owner ON collections(owner_id);
		`},
		{"collection_items", `
			CREATE TABLE IF NOT EXISTS collection_items (
				collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
				snippet_id    TEXT NOT NULL REFERENCES snippets(id) ON DELETE CASCADE,
				added_by      TEXT NOT NULL,
				added_at      DATETIME NOT NULL,
				PRIMARY KEY (collection_id, snippet_id)
			);
			CREATE INDEX IF NOT EXISTS idx_collection_items_snippet ON collection_items(snippet_id);
		`},
	}

	for _, s := range stmts {
		if _, err := db.conn.Exec(s.sql); err != nil {
			return fmt.Errorf("creating %s: %w", s.name, err)
		}
	}

	// Columns added after the first release.
	if err := db.addColumnIfNotExists("collections", "views_count",
		"INTEGER NOT NULL DEFAULT 0"); err != nil {
		return fmt.Errorf("adding views_count to collections: %w", err)
	}
	if err := db.addColumnIfNotExists("snippets", "original_owner_name",
		"TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding original_owner_name to snippets: %w", err)
	}

	return nil
}

// addColumnIfNotExists makes ALTER TABLE migrations idempotent.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// now returns the current time in UTC so stored timestamps sort lexically.
func now() time.Time {
	return time.Now().UTC()
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func encodeStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeStrings(s string) []string {
	out := []string{}
	if s == "" {
		return out
	}
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// prefixed qualifies every column in a comma-separated list with alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

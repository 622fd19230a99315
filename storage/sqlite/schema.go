package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

const schemaVersion = 1

var schema = []string{
	`CREATE TABLE IF NOT EXISTS books (
		seq      INTEGER PRIMARY KEY AUTOINCREMENT,
		isbn     TEXT NOT NULL UNIQUE,
		title    TEXT,
		page_num INTEGER NOT NULL,
		quantity INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS book_authors (
		isbn   TEXT NOT NULL,
		pos    INTEGER NOT NULL,
		author TEXT NOT NULL,
		PRIMARY KEY (isbn, pos)
	);`,
	`CREATE TABLE IF NOT EXISTS borrowers (
		username TEXT PRIMARY KEY,
		name     TEXT,
		phone    TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS attribute_index (
		attr  TEXT NOT NULL,
		value TEXT NOT NULL,
		key   TEXT NOT NULL,
		PRIMARY KEY (attr, value, key)
	);`,
	`CREATE TABLE IF NOT EXISTS checkouts (
		username TEXT NOT NULL,
		isbn     TEXT NOT NULL,
		PRIMARY KEY (username, isbn)
	);`,
	`CREATE INDEX IF NOT EXISTS checkouts_by_isbn ON checkouts (isbn, username);`,
}

// applySchema creates the tables on first open.
func applySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current string
	err := db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	if v, _ := strconv.Atoi(current); v >= schemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range schema {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO meta(key,value) VALUES('schema_version',?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, strconv.Itoa(schemaVersion))
	if err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}

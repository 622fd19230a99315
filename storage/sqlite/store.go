// Package sqlite implements storage.Store over a SQLite database.
//
// Write transactions begin IMMEDIATE, so they take the database write lock
// before their first read and every check-then-write runs serialized.
// Readers run outside transactions and do not block writers in WAL mode.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/mattn/go-sqlite3"
	"github.com/poiesic/circulate/core"
	"github.com/poiesic/circulate/index"
	"github.com/poiesic/circulate/storage"
)

// Store implements storage.Store for SQLite.
type Store struct {
	db      *sql.DB
	closed  atomic.Bool
	policy  storage.RetryPolicy
	indexer *index.Maintainer
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithRetryPolicy sets how transactions that hit a busy database are replayed.
func WithRetryPolicy(policy storage.RetryPolicy) Option {
	return func(s *Store) {
		s.policy = policy
	}
}

// WithLogger sets the logger index failures are reported to.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.indexer = index.NewMaintainer(logger)
	}
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens (or creates) the SQLite database at path and applies the schema.
func Open(ctx context.Context, path string, opts ...Option) (storage.Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, policy: storage.DefaultRetryPolicy, indexer: index.NewMaintainer(nil)}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// Drop deletes every row.
func (s *Store) Drop(ctx context.Context) error {
	return s.update(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"books", "book_authors", "borrowers", "attribute_index", "checkouts"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM sqlite_sequence WHERE name='books'`)
		return err
	})
}

// update runs fn in an immediate write transaction, replaying it while the
// database reports busy.
func (s *Store) update(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if s.closed.Load() {
		return storage.ErrStorageClosed
	}
	return storage.RetryOnConflict(ctx, s.policy, isBusy, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if err := fn(tx); err != nil {
			return err
		}
		return tx.Commit()
	})
}

func (s *Store) read() (querier, error) {
	if s.closed.Load() {
		return nil, storage.ErrStorageClosed
	}
	return s.db, nil
}

func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

func (s *Store) AddBook(ctx context.Context, book *core.Book) error {
	return s.update(ctx, func(tx *sql.Tx) error {
		exists, err := rowExists(ctx, tx, `SELECT 1 FROM books WHERE isbn=?`, book.ISBN)
		if err != nil {
			return err
		}
		if exists {
			return core.ErrBookExists
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO books(isbn,title,page_num,quantity) VALUES(?,?,?,?)`,
			book.ISBN, nullString(book.Title), book.PageNum, book.Copies())
		if err != nil {
			return err
		}
		if err := writeAuthors(ctx, tx, book.ISBN, book.Author); err != nil {
			return err
		}
		return s.indexer.ReindexBook(ctx, sqlIndex{tx}, nil, book)
	})
}

func (s *Store) GetBook(ctx context.Context, isbn string) (*core.Book, error) {
	q, err := s.read()
	if err != nil {
		return nil, err
	}
	book, err := readBook(ctx, q, isbn)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, storage.ErrNotFound
	}
	return book, nil
}

func (s *Store) UpdateBook(ctx context.Context, isbn string, mutate storage.BookMutation) (*core.Book, error) {
	var result *core.Book
	err := s.update(ctx, func(tx *sql.Tx) error {
		old, err := readBook(ctx, tx, isbn)
		if err != nil {
			return err
		}
		if old == nil {
			return core.ErrBookNotExists
		}
		var holders int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM checkouts WHERE isbn=?`, isbn).Scan(&holders); err != nil {
			return err
		}

		next, err := mutate(*old.Clone(), holders)
		if err != nil {
			return err
		}
		next.ISBN = isbn

		_, err = tx.ExecContext(ctx, `UPDATE books SET title=?, page_num=?, quantity=? WHERE isbn=?`,
			nullString(next.Title), next.PageNum, next.Copies(), isbn)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM book_authors WHERE isbn=?`, isbn); err != nil {
			return err
		}
		if err := writeAuthors(ctx, tx, isbn, next.Author); err != nil {
			return err
		}
		if err := s.indexer.ReindexBook(ctx, sqlIndex{tx}, old, &next); err != nil {
			return err
		}
		result = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) DeleteBook(ctx context.Context, isbn string) error {
	return s.update(ctx, func(tx *sql.Tx) error {
		old, err := readBook(ctx, tx, isbn)
		if err != nil {
			return err
		}
		if old == nil {
			return core.ErrBookNotExists
		}
		borrowed, err := rowExists(ctx, tx, `SELECT 1 FROM checkouts WHERE isbn=?`, isbn)
		if err != nil {
			return err
		}
		if borrowed {
			return core.ErrBookBorrowed
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM books WHERE isbn=?`, isbn); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM book_authors WHERE isbn=?`, isbn); err != nil {
			return err
		}
		return s.indexer.ReindexBook(ctx, sqlIndex{tx}, old, nil)
	})
}

func (s *Store) FindBooks(ctx context.Context, attr core.Attribute, value string) ([]*core.Book, error) {
	q, err := s.read()
	if err != nil {
		return nil, err
	}
	return queryBooks(ctx, q, `SELECT b.isbn, b.title, b.page_num, b.quantity
		FROM books b JOIN attribute_index i ON i.key = b.isbn
		WHERE i.attr = ? AND i.value = ? ORDER BY b.isbn`, string(attr), value)
}

func (s *Store) ListBooks(ctx context.Context) ([]*core.Book, error) {
	q, err := s.read()
	if err != nil {
		return nil, err
	}
	return queryBooks(ctx, q, `SELECT isbn, title, page_num, quantity FROM books ORDER BY seq`)
}

func (s *Store) AddBorrower(ctx context.Context, borrower *core.Borrower) error {
	return s.update(ctx, func(tx *sql.Tx) error {
		exists, err := rowExists(ctx, tx, `SELECT 1 FROM borrowers WHERE username=?`, borrower.Username)
		if err != nil {
			return err
		}
		if exists {
			return core.ErrBorrowerExists
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO borrowers(username,name,phone) VALUES(?,?,?)`,
			borrower.Username, nullString(borrower.Name), nullString(borrower.Phone))
		if err != nil {
			return err
		}
		return s.indexer.ReindexBorrower(ctx, sqlIndex{tx}, nil, borrower)
	})
}

func (s *Store) GetBorrower(ctx context.Context, username string) (*core.Borrower, error) {
	q, err := s.read()
	if err != nil {
		return nil, err
	}
	borrower, err := readBorrower(ctx, q, username)
	if err != nil {
		return nil, err
	}
	if borrower == nil {
		return nil, storage.ErrNotFound
	}
	return borrower, nil
}

func (s *Store) UpdateBorrower(ctx context.Context, username string, mutate storage.BorrowerMutation) (*core.Borrower, error) {
	var result *core.Borrower
	err := s.update(ctx, func(tx *sql.Tx) error {
		old, err := readBorrower(ctx, tx, username)
		if err != nil {
			return err
		}
		if old == nil {
			return core.ErrBorrowerNotExists
		}
		next, err := mutate(*old)
		if err != nil {
			return err
		}
		next.Username = username

		_, err = tx.ExecContext(ctx, `UPDATE borrowers SET name=?, phone=? WHERE username=?`,
			nullString(next.Name), nullString(next.Phone), username)
		if err != nil {
			return err
		}
		if err := s.indexer.ReindexBorrower(ctx, sqlIndex{tx}, old, &next); err != nil {
			return err
		}
		result = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) DeleteBorrower(ctx context.Context, username string) error {
	return s.update(ctx, func(tx *sql.Tx) error {
		old, err := readBorrower(ctx, tx, username)
		if err != nil {
			return err
		}
		if old == nil {
			return core.ErrBorrowerNotExists
		}
		holding, err := rowExists(ctx, tx, `SELECT 1 FROM checkouts WHERE username=?`, username)
		if err != nil {
			return err
		}
		if holding {
			return core.ErrBookBorrowed
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM borrowers WHERE username=?`, username); err != nil {
			return err
		}
		return s.indexer.ReindexBorrower(ctx, sqlIndex{tx}, old, nil)
	})
}

func (s *Store) FindBorrowers(ctx context.Context, attr core.Attribute, value string) ([]*core.Borrower, error) {
	q, err := s.read()
	if err != nil {
		return nil, err
	}
	return queryBorrowers(ctx, q, `SELECT b.username, b.name, b.phone
		FROM borrowers b JOIN attribute_index i ON i.key = b.username
		WHERE i.attr = ? AND i.value = ? ORDER BY b.username`, string(attr), value)
}

// sqlIndex writes index rows inside the caller's transaction.
type sqlIndex struct {
	tx *sql.Tx
}

func (w sqlIndex) Add(ctx context.Context, attr core.Attribute, value, key string) error {
	_, err := w.tx.ExecContext(ctx, `INSERT OR IGNORE INTO attribute_index(attr,value,key) VALUES(?,?,?)`,
		string(attr), value, key)
	return err
}

func (w sqlIndex) Remove(ctx context.Context, attr core.Attribute, value, key string) error {
	_, err := w.tx.ExecContext(ctx, `DELETE FROM attribute_index WHERE attr=? AND value=? AND key=?`,
		string(attr), value, key)
	return err
}

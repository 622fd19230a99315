package sqlite

import (
	"context"
	"database/sql"

	"github.com/poiesic/circulate/core"
)

// Checkout inserts one checkouts row. The table's primary key serves the
// borrower direction and checkouts_by_isbn the book direction, so both are
// written by the same statement.
func (s *Store) Checkout(ctx context.Context, username, isbn string) error {
	return s.update(ctx, func(tx *sql.Tx) error {
		book, err := checkPair(ctx, tx, username, isbn)
		if err != nil {
			return err
		}
		borrowed, err := rowExists(ctx, tx, `SELECT 1 FROM checkouts WHERE username=? AND isbn=?`, username, isbn)
		if err != nil {
			return err
		}
		if borrowed {
			return core.ErrBookAlreadyBorrowed
		}
		var holders int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM checkouts WHERE isbn=?`, isbn).Scan(&holders); err != nil {
			return err
		}
		if holders >= book.Copies() {
			return core.ErrBookNotAvailable
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO checkouts(username,isbn) VALUES(?,?)`, username, isbn)
		return err
	})
}

func (s *Store) Return(ctx context.Context, username, isbn string) error {
	return s.update(ctx, func(tx *sql.Tx) error {
		if _, err := checkPair(ctx, tx, username, isbn); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM checkouts WHERE username=? AND isbn=?`, username, isbn)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return core.ErrBookNotBorrowed
		}
		return nil
	})
}

// checkPair verifies the borrower and then the book exist.
func checkPair(ctx context.Context, tx *sql.Tx, username, isbn string) (*core.Book, error) {
	exists, err := rowExists(ctx, tx, `SELECT 1 FROM borrowers WHERE username=?`, username)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, core.ErrBorrowerNotExists
	}
	book, err := readBook(ctx, tx, isbn)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, core.ErrBookNotExists
	}
	return book, nil
}

func (s *Store) BookBorrowers(ctx context.Context, isbn string) ([]*core.Borrower, error) {
	q, err := s.read()
	if err != nil {
		return nil, err
	}
	exists, err := rowExists(ctx, q, `SELECT 1 FROM books WHERE isbn=?`, isbn)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, core.ErrBookNotExists
	}
	return queryBorrowers(ctx, q, `SELECT b.username, b.name, b.phone
		FROM borrowers b JOIN checkouts c ON c.username = b.username
		WHERE c.isbn = ? ORDER BY b.username`, isbn)
}

func (s *Store) BorrowedBooks(ctx context.Context, username string) ([]*core.Book, error) {
	q, err := s.read()
	if err != nil {
		return nil, err
	}
	exists, err := rowExists(ctx, q, `SELECT 1 FROM borrowers WHERE username=?`, username)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, core.ErrBorrowerNotExists
	}
	return queryBooks(ctx, q, `SELECT b.isbn, b.title, b.page_num, b.quantity
		FROM books b JOIN checkouts c ON c.isbn = b.isbn
		WHERE c.username = ? ORDER BY b.isbn`, username)
}

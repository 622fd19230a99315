package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/poiesic/circulate/core"
)

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func rowExists(ctx context.Context, q querier, query string, args ...any) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func writeAuthors(ctx context.Context, tx *sql.Tx, isbn string, authors []string) error {
	for pos, author := range authors {
		if _, err := tx.ExecContext(ctx, `INSERT INTO book_authors(isbn,pos,author) VALUES(?,?,?)`, isbn, pos, author); err != nil {
			return err
		}
	}
	return nil
}

func readAuthors(ctx context.Context, q querier, isbn string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT author FROM book_authors WHERE isbn=? ORDER BY pos`, isbn)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var authors []string
	for rows.Next() {
		var author string
		if err := rows.Scan(&author); err != nil {
			return nil, err
		}
		authors = append(authors, author)
	}
	return authors, rows.Err()
}

// readBook reads a single book. Returns nil, nil if it doesn't exist.
func readBook(ctx context.Context, q querier, isbn string) (*core.Book, error) {
	books, err := queryBooks(ctx, q, `SELECT isbn, title, page_num, quantity FROM books WHERE isbn=?`, isbn)
	if err != nil || len(books) == 0 {
		return nil, err
	}
	return books[0], nil
}

// queryBooks runs a query selecting (isbn, title, page_num, quantity) and
// attaches each book's authors. The result set is closed before the author
// lookups so a transaction's single connection is free for them.
func queryBooks(ctx context.Context, q querier, query string, args ...any) ([]*core.Book, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	books := []*core.Book{}
	for rows.Next() {
		var (
			b        core.Book
			title    sql.NullString
			quantity int
		)
		if err := rows.Scan(&b.ISBN, &title, &b.PageNum, &quantity); err != nil {
			rows.Close()
			return nil, err
		}
		b.Title = title.String
		b.Quantity = core.Quantity(quantity)
		books = append(books, &b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for _, b := range books {
		if b.Author, err = readAuthors(ctx, q, b.ISBN); err != nil {
			return nil, err
		}
	}
	return books, nil
}

// readBorrower reads a single borrower. Returns nil, nil if it doesn't exist.
func readBorrower(ctx context.Context, q querier, username string) (*core.Borrower, error) {
	borrowers, err := queryBorrowers(ctx, q, `SELECT username, name, phone FROM borrowers WHERE username=?`, username)
	if err != nil || len(borrowers) == 0 {
		return nil, err
	}
	return borrowers[0], nil
}

func queryBorrowers(ctx context.Context, q querier, query string, args ...any) ([]*core.Borrower, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	borrowers := []*core.Borrower{}
	for rows.Next() {
		var (
			b           core.Borrower
			name, phone sql.NullString
		)
		if err := rows.Scan(&b.Username, &name, &phone); err != nil {
			return nil, err
		}
		b.Name = name.String
		b.Phone = phone.String
		borrowers = append(borrowers, &b)
	}
	return borrowers, rows.Err()
}

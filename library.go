// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package circulate

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/poiesic/circulate/core"
	"github.com/poiesic/circulate/storage"
)

// Library is the catalog facade. It validates input, forwards to a store and
// turns "not found" reads into nil results.
type Library struct {
	store  storage.Store
	logger *slog.Logger
}

// Option configures a Library.
type Option func(*Library)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Library) {
		if logger == nil {
			logger = slog.Default()
		}
		l.logger = logger
	}
}

// New creates a Library over store. The library takes ownership of the store
// and closes it on Close.
func New(store storage.Store, opts ...Option) *Library {
	l := &Library{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Close closes the underlying store.
func (l *Library) Close() error {
	if err := l.store.Close(); err != nil {
		l.logger.Error("error closing store", "err", err)
		return err
	}
	return nil
}

// EditOption configures an edit.
type EditOption func(*editOptions)

type editOptions struct {
	override bool
}

// WithOverride replaces optional fields wholesale, so an empty patch value
// clears them. Required fields keep their stored value unless the patch sets them.
func WithOverride() EditOption {
	return func(o *editOptions) {
		o.override = true
	}
}

func applyEditOptions(opts []EditOption) editOptions {
	var o editOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (l *Library) observe(op string, start time.Time, err error) {
	operations.WithLabelValues(op, resultLabel(err)).Inc()
	latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		l.logger.Debug("operation failed", "op", op, "err", err)
	}
}

// DropDB removes every book, borrower, index entry and checkout.
func (l *Library) DropDB(ctx context.Context) (err error) {
	defer func(start time.Time) { l.observe("drop_db", start, err) }(time.Now())
	return l.store.Drop(ctx)
}

// AddBook validates book, defaults its quantity to 1 and stores it.
func (l *Library) AddBook(ctx context.Context, book core.Book) (err error) {
	defer func(start time.Time) { l.observe("add_book", start, err) }(time.Now())
	b := book.Clone()
	if err := core.ValidateBook(b); err != nil {
		return err
	}
	core.ApplyBookDefaults(b)
	return l.store.AddBook(ctx, b)
}

// GetBook returns the book with isbn, or nil if there is none.
func (l *Library) GetBook(ctx context.Context, isbn string) (book *core.Book, err error) {
	defer func(start time.Time) { l.observe("get_book", start, err) }(time.Now())
	book, err = l.store.GetBook(ctx, isbn)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return book, err
}

// DeleteBook removes a book that no borrower holds.
func (l *Library) DeleteBook(ctx context.Context, isbn string) (err error) {
	defer func(start time.Time) { l.observe("delete_book", start, err) }(time.Now())
	return l.store.DeleteBook(ctx, isbn)
}

// EditBook applies patch to the book with isbn and returns the result.
// The patch ISBN is ignored. Lowering quantity below the number of current
// borrowers fails with core.ErrBookBorrowed and changes nothing.
func (l *Library) EditBook(ctx context.Context, isbn string, patch core.Book, opts ...EditOption) (book *core.Book, err error) {
	defer func(start time.Time) { l.observe("edit_book", start, err) }(time.Now())
	if err := core.ValidateBookPatch(&patch); err != nil {
		return nil, err
	}
	o := applyEditOptions(opts)
	return l.store.UpdateBook(ctx, isbn, func(current core.Book, borrowers int) (core.Book, error) {
		merged := core.MergeBook(current, patch, o.override)
		if merged.Copies() < borrowers {
			return core.Book{}, core.ErrBookBorrowed
		}
		return merged, nil
	})
}

// SearchByTitle returns the books titled exactly title, ordered by ISBN.
func (l *Library) SearchByTitle(ctx context.Context, title string) (books []*core.Book, err error) {
	defer func(start time.Time) { l.observe("search_by_title", start, err) }(time.Now())
	return l.findBooks(ctx, core.AttrTitle, title)
}

// SearchByAuthor returns the books listing author among their authors,
// ordered by ISBN.
func (l *Library) SearchByAuthor(ctx context.Context, author string) (books []*core.Book, err error) {
	defer func(start time.Time) { l.observe("search_by_author", start, err) }(time.Now())
	return l.findBooks(ctx, core.AttrAuthor, author)
}

func (l *Library) findBooks(ctx context.Context, attr core.Attribute, value string) ([]*core.Book, error) {
	books, err := l.store.FindBooks(ctx, attr, value)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(books, func(a, b *core.Book) int { return cmp.Compare(a.ISBN, b.ISBN) })
	return books, nil
}

// SortByTitle returns every book ordered by title.
func (l *Library) SortByTitle(ctx context.Context) ([]*core.Book, error) {
	return l.sortBooks(ctx, "sort_by_title", func(a, b *core.Book) int {
		return cmp.Compare(a.Title, b.Title)
	})
}

// SortByAuthor returns every book ordered by its author list, compared
// element by element.
func (l *Library) SortByAuthor(ctx context.Context) ([]*core.Book, error) {
	return l.sortBooks(ctx, "sort_by_author", func(a, b *core.Book) int {
		return slices.Compare(a.Author, b.Author)
	})
}

// SortByISBN returns every book ordered by ISBN.
func (l *Library) SortByISBN(ctx context.Context) ([]*core.Book, error) {
	return l.sortBooks(ctx, "sort_by_isbn", func(a, b *core.Book) int {
		return cmp.Compare(a.ISBN, b.ISBN)
	})
}

// SortByPageNum returns every book ordered by page count.
func (l *Library) SortByPageNum(ctx context.Context) ([]*core.Book, error) {
	return l.sortBooks(ctx, "sort_by_page_num", func(a, b *core.Book) int {
		return cmp.Compare(a.PageNum, b.PageNum)
	})
}

// sortBooks orders the full catalog ascending by compare. Ties keep
// insertion order.
func (l *Library) sortBooks(ctx context.Context, op string, compare func(a, b *core.Book) int) (books []*core.Book, err error) {
	defer func(start time.Time) { l.observe(op, start, err) }(time.Now())
	books, err = l.store.ListBooks(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(books, compare)
	return books, nil
}

// AddBorrower validates and registers a borrower.
func (l *Library) AddBorrower(ctx context.Context, borrower core.Borrower) (err error) {
	defer func(start time.Time) { l.observe("add_borrower", start, err) }(time.Now())
	if err := core.ValidateBorrower(&borrower); err != nil {
		return err
	}
	return l.store.AddBorrower(ctx, &borrower)
}

// GetBorrower returns the borrower with username, or nil if there is none.
func (l *Library) GetBorrower(ctx context.Context, username string) (borrower *core.Borrower, err error) {
	defer func(start time.Time) { l.observe("get_borrower", start, err) }(time.Now())
	borrower, err = l.store.GetBorrower(ctx, username)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return borrower, err
}

// DeleteBorrower removes a borrower holding no books.
func (l *Library) DeleteBorrower(ctx context.Context, username string) (err error) {
	defer func(start time.Time) { l.observe("delete_borrower", start, err) }(time.Now())
	return l.store.DeleteBorrower(ctx, username)
}

// EditBorrower applies patch to the borrower with username and returns the
// result. The patch username is ignored.
func (l *Library) EditBorrower(ctx context.Context, username string, patch core.Borrower, opts ...EditOption) (borrower *core.Borrower, err error) {
	defer func(start time.Time) { l.observe("edit_borrower", start, err) }(time.Now())
	o := applyEditOptions(opts)
	return l.store.UpdateBorrower(ctx, username, func(current core.Borrower) (core.Borrower, error) {
		return core.MergeBorrower(current, patch, o.override), nil
	})
}

// SearchByName returns the borrowers named exactly name, ordered by username.
func (l *Library) SearchByName(ctx context.Context, name string) (borrowers []*core.Borrower, err error) {
	defer func(start time.Time) { l.observe("search_by_name", start, err) }(time.Now())
	borrowers, err = l.store.FindBorrowers(ctx, core.AttrName, name)
	if err != nil {
		return nil, err
	}
	sortBorrowers(borrowers)
	return borrowers, nil
}

// CheckoutBook records that username holds a copy of isbn.
func (l *Library) CheckoutBook(ctx context.Context, username, isbn string) (err error) {
	defer func(start time.Time) { l.observe("checkout_book", start, err) }(time.Now())
	return l.store.Checkout(ctx, username, isbn)
}

// ReturnBook records that username gave back their copy of isbn.
func (l *Library) ReturnBook(ctx context.Context, username, isbn string) (err error) {
	defer func(start time.Time) { l.observe("return_book", start, err) }(time.Now())
	return l.store.Return(ctx, username, isbn)
}

// GetBookBorrowers returns the borrowers holding isbn, ordered by username.
func (l *Library) GetBookBorrowers(ctx context.Context, isbn string) (borrowers []*core.Borrower, err error) {
	defer func(start time.Time) { l.observe("get_book_borrowers", start, err) }(time.Now())
	borrowers, err = l.store.BookBorrowers(ctx, isbn)
	if err != nil {
		return nil, err
	}
	sortBorrowers(borrowers)
	return borrowers, nil
}

// GetBorrowedBooks returns the books username holds, ordered by ISBN.
func (l *Library) GetBorrowedBooks(ctx context.Context, username string) (books []*core.Book, err error) {
	defer func(start time.Time) { l.observe("get_borrowed_books", start, err) }(time.Now())
	books, err = l.store.BorrowedBooks(ctx, username)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(books, func(a, b *core.Book) int { return cmp.Compare(a.ISBN, b.ISBN) })
	return books, nil
}

func sortBorrowers(borrowers []*core.Borrower) {
	slices.SortFunc(borrowers, func(a, b *core.Borrower) int { return cmp.Compare(a.Username, b.Username) })
}

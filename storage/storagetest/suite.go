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

// Package storagetest holds the behavioral suite shared by every storage backend.
//
// A backend test calls Run with a factory that returns a fresh, empty store:
//
//	func TestStore(t *testing.T) {
//	    storagetest.Run(t, func(t *testing.T) storage.Store {
//	        store, err := NewMemoryStore()
//	        require.NoError(t, err)
//	        t.Cleanup(func() { store.Close() })
//	        return store
//	    })
//	}
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/poiesic/circulate/core"
	"github.com/poiesic/circulate/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// Factory returns an empty store owned by the test.
type Factory func(t *testing.T) storage.Store

// Run executes the conformance suite against the stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Store)
	}{
		{"AddGetBook", testAddGetBook},
		{"GetBookMissing", testGetBookMissing},
		{"AddBookDuplicate", testAddBookDuplicate},
		{"AddBookConcurrentSameISBN", testAddBookConcurrentSameISBN},
		{"FindBooks", testFindBooks},
		{"AuthorsKeptVerbatim", testAuthorsKeptVerbatim},
		{"EmptyResultsAreNonNil", testEmptyResultsAreNonNil},
		{"UpdateBookMovesTitleIndex", testUpdateBookMovesTitleIndex},
		{"UpdateBookAuthorSetDiff", testUpdateBookAuthorSetDiff},
		{"UpdateBookMissing", testUpdateBookMissing},
		{"UpdateBookAbortLeavesRecord", testUpdateBookAbortLeavesRecord},
		{"UpdateBookSeesBorrowerCount", testUpdateBookSeesBorrowerCount},
		{"DeleteBook", testDeleteBook},
		{"DeleteBookBorrowed", testDeleteBookBorrowed},
		{"ListBooksInsertionOrder", testListBooksInsertionOrder},
		{"BorrowerLifecycle", testBorrowerLifecycle},
		{"AddBorrowerDuplicate", testAddBorrowerDuplicate},
		{"UpdateBorrowerMovesNameIndex", testUpdateBorrowerMovesNameIndex},
		{"DeleteBorrowerHoldingBook", testDeleteBorrowerHoldingBook},
		{"CheckoutCheckOrder", testCheckoutCheckOrder},
		{"CheckoutCapacity", testCheckoutCapacity},
		{"CheckoutTwice", testCheckoutTwice},
		{"CheckoutConcurrentLastCopies", testCheckoutConcurrentLastCopies},
		{"ReturnCheckOrder", testReturnCheckOrder},
		{"Relationships", testRelationships},
		{"RelationshipsMissing", testRelationshipsMissing},
		{"Drop", testDrop},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func book(isbn, title string, pages, quantity int, authors ...string) *core.Book {
	b := &core.Book{ISBN: isbn, Title: title, PageNum: pages, Quantity: core.Quantity(quantity)}
	if len(authors) > 0 {
		b.Author = authors
	}
	return b
}

func isbns(books []*core.Book) []string {
	out := make([]string, 0, len(books))
	for _, b := range books {
		out = append(out, b.ISBN)
	}
	slices.Sort(out)
	return out
}

func usernames(borrowers []*core.Borrower) []string {
	out := make([]string, 0, len(borrowers))
	for _, b := range borrowers {
		out = append(out, b.Username)
	}
	slices.Sort(out)
	return out
}

func mustAddBook(t *testing.T, s storage.Store, b *core.Book) {
	t.Helper()
	require.NoError(t, s.AddBook(context.Background(), b))
}

func mustAddBorrower(t *testing.T, s storage.Store, username, name string) {
	t.Helper()
	require.NoError(t, s.AddBorrower(context.Background(), &core.Borrower{Username: username, Name: name}))
}

func findBooks(t *testing.T, s storage.Store, attr core.Attribute, value string) []string {
	t.Helper()
	books, err := s.FindBooks(context.Background(), attr, value)
	require.NoError(t, err)
	return isbns(books)
}

func testAuthorsKeptVerbatim(t *testing.T, s storage.Store) {
	ctx := context.Background()
	want := book("1", "A", 10, 1, "Smith; Jones", "O'Brien, Pat", "Lee")
	mustAddBook(t, s, want)

	got, err := s.GetBook(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, want.Author, got.Author)
	assert.Equal(t, []string{"1"}, findBooks(t, s, core.AttrAuthor, "Smith; Jones"))
	assert.Empty(t, findBooks(t, s, core.AttrAuthor, "Smith"))

	listed, err := s.ListBooks(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, want.Author, listed[0].Author)
}

func testEmptyResultsAreNonNil(t *testing.T, s storage.Store) {
	ctx := context.Background()

	books, err := s.FindBooks(ctx, core.AttrTitle, "none")
	require.NoError(t, err)
	assert.NotNil(t, books)
	assert.Empty(t, books)

	books, err = s.ListBooks(ctx)
	require.NoError(t, err)
	assert.NotNil(t, books)
	assert.Empty(t, books)

	borrowers, err := s.FindBorrowers(ctx, core.AttrName, "none")
	require.NoError(t, err)
	assert.NotNil(t, borrowers)
	assert.Empty(t, borrowers)
}

func testAddGetBook(t *testing.T, s storage.Store) {
	ctx := context.Background()
	want := book("1", "A", 200, 3, "X", "Y")
	mustAddBook(t, s, want)

	got, err := s.GetBook(ctx, "1")
	require.NoError(t, err)
	assert.True(t, want.Equal(got), "got %+v", got)

	untitled := book("2", "", 10, 1)
	mustAddBook(t, s, untitled)
	got, err = s.GetBook(ctx, "2")
	require.NoError(t, err)
	assert.Empty(t, got.Title)
	assert.Empty(t, got.Author)
}

func testGetBookMissing(t *testing.T, s storage.Store) {
	_, err := s.GetBook(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.GetBorrower(context.Background(), "nobody")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testAddBookDuplicate(t *testing.T, s storage.Store) {
	ctx := context.Background()
	original := book("1", "A", 200, 3, "X")
	mustAddBook(t, s, original)

	err := s.AddBook(ctx, book("1", "B", 10, 1, "Z"))
	assert.ErrorIs(t, err, core.ErrBookExists)

	got, err := s.GetBook(ctx, "1")
	require.NoError(t, err)
	assert.True(t, original.Equal(got))
	assert.Empty(t, findBooks(t, s, core.AttrTitle, "B"))
	assert.Empty(t, findBooks(t, s, core.AttrAuthor, "Z"))
}

func testAddBookConcurrentSameISBN(t *testing.T, s storage.Store) {
	ctx := context.Background()
	const writers = 8

	errs := make([]error, writers)
	var g errgroup.Group
	for i := range writers {
		g.Go(func() error {
			errs[i] = s.AddBook(ctx, book("1", fmt.Sprintf("T%d", i), 100, 1))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, core.ErrBookExists)
	}
	assert.Equal(t, 1, wins)

	got, err := s.GetBook(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, findBooks(t, s, core.AttrTitle, got.Title))

	all, err := s.ListBooks(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func testFindBooks(t *testing.T, s storage.Store) {
	mustAddBook(t, s, book("1", "A", 10, 1, "X", "Y"))
	mustAddBook(t, s, book("2", "A", 20, 1, "Y"))
	mustAddBook(t, s, book("3", "B", 30, 1))

	assert.Equal(t, []string{"1", "2"}, findBooks(t, s, core.AttrTitle, "A"))
	assert.Equal(t, []string{"3"}, findBooks(t, s, core.AttrTitle, "B"))
	assert.Equal(t, []string{"1"}, findBooks(t, s, core.AttrAuthor, "X"))
	assert.Equal(t, []string{"1", "2"}, findBooks(t, s, core.AttrAuthor, "Y"))
	assert.Empty(t, findBooks(t, s, core.AttrTitle, "unknown"))
	assert.Empty(t, findBooks(t, s, core.AttrAuthor, "unknown"))
}

func testUpdateBookMovesTitleIndex(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustAddBook(t, s, book("1", "Old", 10, 1))

	updated, err := s.UpdateBook(ctx, "1", func(current core.Book, _ int) (core.Book, error) {
		current.Title = "New"
		return current, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Title)

	assert.Equal(t, []string{"1"}, findBooks(t, s, core.AttrTitle, "New"))
	assert.Empty(t, findBooks(t, s, core.AttrTitle, "Old"))

	_, err = s.UpdateBook(ctx, "1", func(current core.Book, _ int) (core.Book, error) {
		current.Title = ""
		return current, nil
	})
	require.NoError(t, err)
	assert.Empty(t, findBooks(t, s, core.AttrTitle, "New"))
}

func testUpdateBookAuthorSetDiff(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustAddBook(t, s, book("1", "A", 10, 1, "X", "Y"))
	mustAddBook(t, s, book("2", "B", 10, 1, "X"))

	_, err := s.UpdateBook(ctx, "1", func(current core.Book, _ int) (core.Book, error) {
		current.Author = []string{"Y", "Z"}
		return current, nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"2"}, findBooks(t, s, core.AttrAuthor, "X"))
	assert.Equal(t, []string{"1"}, findBooks(t, s, core.AttrAuthor, "Y"))
	assert.Equal(t, []string{"1"}, findBooks(t, s, core.AttrAuthor, "Z"))

	got, err := s.GetBook(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Y", "Z"}, got.Author)

	_, err = s.UpdateBook(ctx, "1", func(current core.Book, _ int) (core.Book, error) {
		current.Author = nil
		return current, nil
	})
	require.NoError(t, err)
	assert.Empty(t, findBooks(t, s, core.AttrAuthor, "Y"))
	assert.Empty(t, findBooks(t, s, core.AttrAuthor, "Z"))
}

func testUpdateBookMissing(t *testing.T, s storage.Store) {
	_, err := s.UpdateBook(context.Background(), "nope", func(current core.Book, _ int) (core.Book, error) {
		return current, nil
	})
	assert.ErrorIs(t, err, core.ErrBookNotExists)

	_, err = s.UpdateBorrower(context.Background(), "nobody", func(current core.Borrower) (core.Borrower, error) {
		return current, nil
	})
	assert.ErrorIs(t, err, core.ErrBorrowerNotExists)
}

func testUpdateBookAbortLeavesRecord(t *testing.T, s storage.Store) {
	ctx := context.Background()
	original := book("1", "A", 10, 2, "X")
	mustAddBook(t, s, original)

	abort := errors.New("abort")
	_, err := s.UpdateBook(ctx, "1", func(current core.Book, _ int) (core.Book, error) {
		return core.Book{}, abort
	})
	assert.ErrorIs(t, err, abort)

	got, err := s.GetBook(ctx, "1")
	require.NoError(t, err)
	assert.True(t, original.Equal(got))
	assert.Equal(t, []string{"1"}, findBooks(t, s, core.AttrTitle, "A"))
}

func testUpdateBookSeesBorrowerCount(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustAddBook(t, s, book("1", "A", 10, 3))
	mustAddBorrower(t, s, "u1", "")
	mustAddBorrower(t, s, "u2", "")
	require.NoError(t, s.Checkout(ctx, "u1", "1"))
	require.NoError(t, s.Checkout(ctx, "u2", "1"))

	var seen int
	_, err := s.UpdateBook(ctx, "1", func(current core.Book, borrowers int) (core.Book, error) {
		seen = borrowers
		if borrowers > 1 {
			return core.Book{}, core.ErrBookBorrowed
		}
		current.Quantity = core.Quantity(1)
		return current, nil
	})
	assert.ErrorIs(t, err, core.ErrBookBorrowed)
	assert.Equal(t, 2, seen)

	got, err := s.GetBook(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, core.Quantity(3), got.Quantity)
}

func testDeleteBook(t *testing.T, s storage.Store) {
	ctx := context.Background()
	assert.ErrorIs(t, s.DeleteBook(ctx, "nope"), core.ErrBookNotExists)

	mustAddBook(t, s, book("1", "A", 10, 1, "X"))
	mustAddBook(t, s, book("2", "B", 10, 1))
	require.NoError(t, s.DeleteBook(ctx, "1"))

	_, err := s.GetBook(ctx, "1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Empty(t, findBooks(t, s, core.AttrTitle, "A"))
	assert.Empty(t, findBooks(t, s, core.AttrAuthor, "X"))

	all, err := s.ListBooks(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, isbns(all))

	assert.ErrorIs(t, s.DeleteBook(ctx, "1"), core.ErrBookNotExists)
}

func testDeleteBookBorrowed(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustAddBook(t, s, book("1", "A", 10, 2))
	mustAddBorrower(t, s, "u1", "")
	mustAddBorrower(t, s, "u2", "")
	require.NoError(t, s.Checkout(ctx, "u1", "1"))
	require.NoError(t, s.Checkout(ctx, "u2", "1"))

	assert.ErrorIs(t, s.DeleteBook(ctx, "1"), core.ErrBookBorrowed)
	require.NoError(t, s.Return(ctx, "u1", "1"))
	assert.ErrorIs(t, s.DeleteBook(ctx, "1"), core.ErrBookBorrowed)
	require.NoError(t, s.Return(ctx, "u2", "1"))

	require.NoError(t, s.DeleteBook(ctx, "1"))
	_, err := s.GetBook(ctx, "1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testListBooksInsertionOrder(t *testing.T, s storage.Store) {
	ctx := context.Background()
	for _, isbn := range []string{"c", "a", "d", "b"} {
		mustAddBook(t, s, book(isbn, "T", 10, 1))
	}
	require.NoError(t, s.DeleteBook(ctx, "d"))
	mustAddBook(t, s, book("d", "T", 10, 1))

	all, err := s.ListBooks(ctx)
	require.NoError(t, err)
	got := make([]string, 0, len(all))
	for _, b := range all {
		got = append(got, b.ISBN)
	}
	assert.Equal(t, []string{"c", "a", "b", "d"}, got)
}

func testBorrowerLifecycle(t *testing.T, s storage.Store) {
	ctx := context.Background()
	want := &core.Borrower{Username: "fred", Name: "Fred", Phone: "555"}
	require.NoError(t, s.AddBorrower(ctx, want))

	got, err := s.GetBorrower(ctx, "fred")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	bare := &core.Borrower{Username: "anon"}
	require.NoError(t, s.AddBorrower(ctx, bare))
	got, err = s.GetBorrower(ctx, "anon")
	require.NoError(t, err)
	assert.Equal(t, bare, got)

	assert.ErrorIs(t, s.DeleteBorrower(ctx, "nobody"), core.ErrBorrowerNotExists)
	require.NoError(t, s.DeleteBorrower(ctx, "fred"))
	_, err = s.GetBorrower(ctx, "fred")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	found, err := s.FindBorrowers(ctx, core.AttrName, "Fred")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func testAddBorrowerDuplicate(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustAddBorrower(t, s, "u1", "First")

	err := s.AddBorrower(ctx, &core.Borrower{Username: "u1", Name: "Second"})
	assert.ErrorIs(t, err, core.ErrBorrowerExists)

	got, err := s.GetBorrower(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "First", got.Name)

	found, err := s.FindBorrowers(ctx, core.AttrName, "Second")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func testUpdateBorrowerMovesNameIndex(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustAddBorrower(t, s, "u1", "Fred")
	mustAddBorrower(t, s, "u2", "Fred")

	updated, err := s.UpdateBorrower(ctx, "u1", func(current core.Borrower) (core.Borrower, error) {
		current.Name = "Wilma"
		current.Phone = "555"
		return current, nil
	})
	require.NoError(t, err)
	assert.Equal(t, &core.Borrower{Username: "u1", Name: "Wilma", Phone: "555"}, updated)

	fred, err := s.FindBorrowers(ctx, core.AttrName, "Fred")
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, usernames(fred))

	wilma, err := s.FindBorrowers(ctx, core.AttrName, "Wilma")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, usernames(wilma))
}

func testDeleteBorrowerHoldingBook(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustAddBook(t, s, book("1", "A", 10, 1))
	mustAddBorrower(t, s, "u1", "Fred")
	require.NoError(t, s.Checkout(ctx, "u1", "1"))

	assert.ErrorIs(t, s.DeleteBorrower(ctx, "u1"), core.ErrBookBorrowed)
	require.NoError(t, s.Return(ctx, "u1", "1"))
	require.NoError(t, s.DeleteBorrower(ctx, "u1"))
}

func testCheckoutCheckOrder(t *testing.T, s storage.Store) {
	ctx := context.Background()
	assert.ErrorIs(t, s.Checkout(ctx, "nobody", "nope"), core.ErrBorrowerNotExists)

	mustAddBorrower(t, s, "u1", "")
	assert.ErrorIs(t, s.Checkout(ctx, "u1", "nope"), core.ErrBookNotExists)

	mustAddBook(t, s, book("1", "A", 10, 1))
	assert.ErrorIs(t, s.Checkout(ctx, "nobody", "1"), core.ErrBorrowerNotExists)
}

func testCheckoutCapacity(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustAddBook(t, s, book("1", "A", 10, 3))
	for _, u := range []string{"u1", "u2", "u3", "u4"} {
		mustAddBorrower(t, s, u, "")
	}

	require.NoError(t, s.Checkout(ctx, "u1", "1"))
	require.NoError(t, s.Checkout(ctx, "u2", "1"))
	require.NoError(t, s.Checkout(ctx, "u3", "1"))
	assert.ErrorIs(t, s.Checkout(ctx, "u4", "1"), core.ErrBookNotAvailable)

	require.NoError(t, s.Return(ctx, "u2", "1"))
	require.NoError(t, s.Checkout(ctx, "u4", "1"))

	holders, err := s.BookBorrowers(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u3", "u4"}, usernames(holders))
}

func testCheckoutTwice(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustAddBook(t, s, book("1", "A", 10, 5))
	mustAddBorrower(t, s, "u1", "")

	require.NoError(t, s.Checkout(ctx, "u1", "1"))
	assert.ErrorIs(t, s.Checkout(ctx, "u1", "1"), core.ErrBookAlreadyBorrowed)

	holders, err := s.BookBorrowers(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, holders, 1)
}

func testCheckoutConcurrentLastCopies(t *testing.T, s storage.Store) {
	ctx := context.Background()
	const (
		quantity  = 2
		borrowers = 8
	)
	mustAddBook(t, s, book("1", "A", 10, quantity))
	for i := range borrowers {
		mustAddBorrower(t, s, fmt.Sprintf("u%d", i), "")
	}

	errs := make([]error, borrowers)
	var g errgroup.Group
	for i := range borrowers {
		g.Go(func() error {
			errs[i] = s.Checkout(ctx, fmt.Sprintf("u%d", i), "1")
			return nil
		})
	}
	require.NoError(t, g.Wait())

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, core.ErrBookNotAvailable)
	}
	assert.Equal(t, quantity, wins)

	holders, err := s.BookBorrowers(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, holders, quantity)
}

func testReturnCheckOrder(t *testing.T, s storage.Store) {
	ctx := context.Background()
	assert.ErrorIs(t, s.Return(ctx, "nobody", "nope"), core.ErrBorrowerNotExists)

	mustAddBorrower(t, s, "u1", "")
	assert.ErrorIs(t, s.Return(ctx, "u1", "nope"), core.ErrBookNotExists)

	mustAddBook(t, s, book("1", "A", 10, 1))
	assert.ErrorIs(t, s.Return(ctx, "u1", "1"), core.ErrBookNotBorrowed)

	require.NoError(t, s.Checkout(ctx, "u1", "1"))
	require.NoError(t, s.Return(ctx, "u1", "1"))
	assert.ErrorIs(t, s.Return(ctx, "u1", "1"), core.ErrBookNotBorrowed)
}

func testRelationships(t *testing.T, s storage.Store) {
	ctx := context.Background()
	want := book("1", "A", 200, 3, "X")
	mustAddBook(t, s, want)
	mustAddBook(t, s, book("2", "B", 100, 1))
	mustAddBorrower(t, s, "u1", "Fred")

	require.NoError(t, s.Checkout(ctx, "u1", "1"))

	holders, err := s.BookBorrowers(ctx, "1")
	require.NoError(t, err)
	require.Len(t, holders, 1)
	assert.Equal(t, &core.Borrower{Username: "u1", Name: "Fred"}, holders[0])

	held, err := s.BorrowedBooks(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.True(t, want.Equal(held[0]))

	require.NoError(t, s.Checkout(ctx, "u1", "2"))
	held, err = s.BorrowedBooks(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, isbns(held))

	require.NoError(t, s.Return(ctx, "u1", "1"))
	require.NoError(t, s.Return(ctx, "u1", "2"))

	holders, err = s.BookBorrowers(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, holders)
	held, err = s.BorrowedBooks(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, held)
}

func testRelationshipsMissing(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.BookBorrowers(ctx, "nope")
	assert.ErrorIs(t, err, core.ErrBookNotExists)

	_, err = s.BorrowedBooks(ctx, "nobody")
	assert.ErrorIs(t, err, core.ErrBorrowerNotExists)
}

func testDrop(t *testing.T, s storage.Store) {
	ctx := context.Background()
	mustAddBook(t, s, book("1", "A", 10, 1, "X"))
	mustAddBorrower(t, s, "u1", "Fred")
	require.NoError(t, s.Checkout(ctx, "u1", "1"))

	require.NoError(t, s.Drop(ctx))

	_, err := s.GetBook(ctx, "1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetBorrower(ctx, "u1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	all, err := s.ListBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, findBooks(t, s, core.AttrTitle, "A"))
	assert.Empty(t, findBooks(t, s, core.AttrAuthor, "X"))

	// Same ids are reusable and start with no ledger edges.
	mustAddBook(t, s, book("1", "A", 10, 1))
	mustAddBorrower(t, s, "u1", "Fred")
	holders, err := s.BookBorrowers(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, holders)
	require.NoError(t, s.Checkout(ctx, "u1", "1"))
}

package circulate

import (
	"context"
	"sync"
	"testing"

	"github.com/poiesic/circulate/core"
	"github.com/poiesic/circulate/storage/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLibrary(t *testing.T) *Library {
	t.Helper()
	lib := New(memory.NewStore())
	t.Cleanup(func() { lib.Close() })
	return lib
}

func isbnsOf(books []*core.Book) []string {
	out := make([]string, len(books))
	for i, b := range books {
		out[i] = b.ISBN
	}
	return out
}

func TestLibrary_AddBookDefaultsQuantity(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)

	require.NoError(t, lib.AddBook(ctx, core.Book{ISBN: "1", PageNum: 100}))
	book, err := lib.GetBook(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, book)
	assert.Equal(t, 1, book.Copies())
}

func TestLibrary_AddBookValidation(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)

	tests := []struct {
		name string
		book core.Book
		code core.Code
	}{
		{"missing isbn", core.Book{PageNum: 1}, "required_field_book.isbn"},
		{"missing page_num", core.Book{ISBN: "1"}, "required_positive_field_book.page_num"},
		{"negative page_num", core.Book{ISBN: "1", PageNum: -3}, "required_positive_field_book.page_num"},
		{"negative quantity", core.Book{ISBN: "1", PageNum: 1, Quantity: core.Quantity(-1)}, "positive_field_book.quantity"},
		{"zero quantity", core.Book{ISBN: "1", PageNum: 1, Quantity: core.Quantity(0)}, "positive_field_book.quantity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := lib.AddBook(ctx, tt.book)
			code, ok := core.CodeOf(err)
			require.True(t, ok, "expected a coded error, got %v", err)
			assert.Equal(t, tt.code, code)
		})
	}

	all, err := lib.SortByISBN(ctx)
	require.NoError(t, err)
	assert.Empty(t, all, "failed validation stores nothing")
}

func TestLibrary_AddBookDuplicateLeavesOriginal(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)

	original := core.Book{ISBN: "1", Title: "A", Author: []string{"X"}, PageNum: 200, Quantity: core.Quantity(3)}
	require.NoError(t, lib.AddBook(ctx, original))
	err := lib.AddBook(ctx, core.Book{ISBN: "1", Title: "B", PageNum: 5})
	assert.ErrorIs(t, err, core.ErrBookExists)

	got, err := lib.GetBook(ctx, "1")
	require.NoError(t, err)
	assert.True(t, got.Equal(&original))
}

func TestLibrary_AddBookDoesNotAliasCaller(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)

	authors := []string{"X", "Y"}
	require.NoError(t, lib.AddBook(ctx, core.Book{ISBN: "1", Author: authors, PageNum: 1}))
	authors[0] = "changed"

	got, err := lib.GetBook(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "Y"}, got.Author)
}

func TestLibrary_GetMissingReturnsNil(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)

	book, err := lib.GetBook(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, book)

	borrower, err := lib.GetBorrower(ctx, "nope")
	assert.NoError(t, err)
	assert.Nil(t, borrower)
}

func TestLibrary_EditBookMovesTitleIndex(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)

	require.NoError(t, lib.AddBook(ctx, core.Book{ISBN: "1", Title: "Old", PageNum: 10}))
	_, err := lib.EditBook(ctx, "1", core.Book{Title: "New"})
	require.NoError(t, err)

	found, err := lib.SearchByTitle(ctx, "New")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, isbnsOf(found))

	found, err = lib.SearchByTitle(ctx, "Old")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestLibrary_EditBookEmptyPatchIsNoop(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)

	original := core.Book{ISBN: "1", Title: "A", Author: []string{"X", "Y"}, PageNum: 200, Quantity: core.Quantity(3)}
	require.NoError(t, lib.AddBook(ctx, original))

	edited, err := lib.EditBook(ctx, "1", core.Book{})
	require.NoError(t, err)
	assert.True(t, edited.Equal(&original))

	got, err := lib.GetBook(ctx, "1")
	require.NoError(t, err)
	assert.True(t, got.Equal(&original))
}

func TestLibrary_EditBookOverrideClears(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)

	require.NoError(t, lib.AddBook(ctx, core.Book{ISBN: "1", Title: "A", Author: []string{"X"}, PageNum: 200, Quantity: core.Quantity(3)}))

	edited, err := lib.EditBook(ctx, "1", core.Book{ISBN: "ignored", Author: []string{"Z"}}, WithOverride())
	require.NoError(t, err)
	assert.Equal(t, core.Book{ISBN: "1", Author: []string{"Z"}, PageNum: 200, Quantity: core.Quantity(3)}, *edited)

	byTitle, err := lib.SearchByTitle(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, byTitle)
	byAuthor, err := lib.SearchByAuthor(ctx, "X")
	require.NoError(t, err)
	assert.Empty(t, byAuthor)
	byAuthor, err = lib.SearchByAuthor(ctx, "Z")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, isbnsOf(byAuthor))
}

func TestLibrary_EditBookValidation(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)

	_, err := lib.EditBook(ctx, "missing", core.Book{Quantity: core.Quantity(-1)})
	code, _ := core.CodeOf(err)
	assert.Equal(t, core.Code("positive_field_book.quantity"), code, "validation precedes the existence check")

	_, err = lib.EditBook(ctx, "missing", core.Book{Title: "T"})
	assert.ErrorIs(t, err, core.ErrBookNotExists)
}

func TestLibrary_EditBookZeroQuantityRejected(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)
	require.NoError(t, lib.AddBook(ctx, core.Book{ISBN: "1", PageNum: 10, Quantity: core.Quantity(2)}))

	_, err := lib.EditBook(ctx, "1", core.Book{Quantity: core.Quantity(0)})
	code, ok := core.CodeOf(err)
	require.True(t, ok, "expected a coded error, got %v", err)
	assert.Equal(t, core.Code("positive_field_book.quantity"), code)

	got, err := lib.GetBook(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Copies())
}

func TestLibrary_EditBookShrinkBelowBorrowers(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)

	require.NoError(t, lib.AddBook(ctx, core.Book{ISBN: "1", Title: "A", PageNum: 10, Quantity: core.Quantity(3)}))
	for _, u := range []string{"u1", "u2"} {
		require.NoError(t, lib.AddBorrower(ctx, core.Borrower{Username: u}))
		require.NoError(t, lib.CheckoutBook(ctx, u, "1"))
	}

	_, err := lib.EditBook(ctx, "1", core.Book{Title: "B", Quantity: core.Quantity(1)})
	assert.ErrorIs(t, err, core.ErrBookBorrowed)

	got, err := lib.GetBook(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "A", got.Title, "a refused edit applies nothing")
	assert.Equal(t, 3, got.Copies())

	_, err = lib.EditBook(ctx, "1", core.Book{Quantity: core.Quantity(2)})
	assert.NoError(t, err, "shrinking to exactly the borrower count is allowed")
}

func TestLibrary_CapacityScenario(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)

	require.NoError(t, lib.AddBook(ctx, core.Book{ISBN: "1", PageNum: 10, Quantity: core.Quantity(3)}))
	users := []string{"u1", "u2", "u3", "u4"}
	for _, u := range users {
		require.NoError(t, lib.AddBorrower(ctx, core.Borrower{Username: u}))
	}
	for _, u := range users[:3] {
		require.NoError(t, lib.CheckoutBook(ctx, u, "1"))
	}
	assert.ErrorIs(t, lib.CheckoutBook(ctx, "u4", "1"), core.ErrBookNotAvailable)
	assert.ErrorIs(t, lib.CheckoutBook(ctx, "u1", "1"), core.ErrBookAlreadyBorrowed)

	require.NoError(t, lib.ReturnBook(ctx, "u2", "1"))
	assert.NoError(t, lib.CheckoutBook(ctx, "u4", "1"))
}

func TestLibrary_DeleteBookWhileBorrowed(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)

	require.NoError(t, lib.AddBook(ctx, core.Book{ISBN: "1", PageNum: 10, Quantity: core.Quantity(2)}))
	for _, u := range []string{"u1", "u2"} {
		require.NoError(t, lib.AddBorrower(ctx, core.Borrower{Username: u}))
		require.NoError(t, lib.CheckoutBook(ctx, u, "1"))
	}

	assert.ErrorIs(t, lib.DeleteBook(ctx, "1"), core.ErrBookBorrowed)
	require.NoError(t, lib.ReturnBook(ctx, "u1", "1"))
	assert.ErrorIs(t, lib.DeleteBook(ctx, "1"), core.ErrBookBorrowed)
	require.NoError(t, lib.ReturnBook(ctx, "u2", "1"))
	require.NoError(t, lib.DeleteBook(ctx, "1"))

	got, err := lib.GetBook(ctx, "1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLibrary_CheckoutScenario(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)

	book := core.Book{ISBN: "1", Title: "A", Author: []string{"X"}, PageNum: 200, Quantity: core.Quantity(3)}
	require.NoError(t, lib.AddBook(ctx, book))
	require.NoError(t, lib.AddBorrower(ctx, core.Borrower{Username: "u1"}))
	require.NoError(t, lib.CheckoutBook(ctx, "u1", "1"))

	borrowers, err := lib.GetBookBorrowers(ctx, "1")
	require.NoError(t, err)
	require.Len(t, borrowers, 1)
	assert.Equal(t, "u1", borrowers[0].Username)

	books, err := lib.GetBorrowedBooks(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.True(t, books[0].Equal(&book))

	require.NoError(t, lib.ReturnBook(ctx, "u1", "1"))
	borrowers, err = lib.GetBookBorrowers(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, borrowers)
	books, err = lib.GetBorrowedBooks(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestLibrary_Sorts(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)

	books := []core.Book{
		{ISBN: "3", Title: "B", Author: []string{"M"}, PageNum: 300},
		{ISBN: "1", Title: "C", Author: []string{"A", "Z"}, PageNum: 20},
		{ISBN: "2", Title: "A", Author: []string{"A", "B"}, PageNum: 100},
		{ISBN: "4", Title: "B", PageNum: 20},
	}
	for _, b := range books {
		require.NoError(t, lib.AddBook(ctx, b))
	}

	tests := []struct {
		name string
		sort func(context.Context) ([]*core.Book, error)
		want []string
	}{
		{"title ties keep insertion order", lib.SortByTitle, []string{"2", "3", "4", "1"}},
		{"author lists compare element-wise", lib.SortByAuthor, []string{"4", "2", "1", "3"}},
		{"isbn", lib.SortByISBN, []string{"1", "2", "3", "4"}},
		{"page_num is numeric", lib.SortByPageNum, []string{"1", "4", "2", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.sort(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, isbnsOf(got))
		})
	}
}

func TestLibrary_SearchOrderedByKey(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)

	for _, isbn := range []string{"c", "a", "b"} {
		require.NoError(t, lib.AddBook(ctx, core.Book{ISBN: isbn, Author: []string{"X"}, PageNum: 1}))
	}
	found, err := lib.SearchByAuthor(ctx, "X")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, isbnsOf(found))

	found, err = lib.SearchByAuthor(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestLibrary_Borrowers(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)

	assert.ErrorIs(t, lib.AddBorrower(ctx, core.Borrower{Name: "N"}), core.RequiredField("borrower", "username"))

	require.NoError(t, lib.AddBorrower(ctx, core.Borrower{Username: "b", Name: "Ann", Phone: "1"}))
	require.NoError(t, lib.AddBorrower(ctx, core.Borrower{Username: "a", Name: "Ann"}))
	assert.ErrorIs(t, lib.AddBorrower(ctx, core.Borrower{Username: "a"}), core.ErrBorrowerExists)

	found, err := lib.SearchByName(ctx, "Ann")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "a", found[0].Username)
	assert.Equal(t, "b", found[1].Username)

	edited, err := lib.EditBorrower(ctx, "b", core.Borrower{Name: "Bea"})
	require.NoError(t, err)
	assert.Equal(t, core.Borrower{Username: "b", Name: "Bea", Phone: "1"}, *edited)

	edited, err = lib.EditBorrower(ctx, "b", core.Borrower{Name: "Bea"}, WithOverride())
	require.NoError(t, err)
	assert.Empty(t, edited.Phone, "override clears omitted fields")

	found, err = lib.SearchByName(ctx, "Ann")
	require.NoError(t, err)
	require.Len(t, found, 1)

	_, err = lib.EditBorrower(ctx, "zz", core.Borrower{Name: "X"})
	assert.ErrorIs(t, err, core.ErrBorrowerNotExists)

	require.NoError(t, lib.DeleteBorrower(ctx, "a"))
	assert.ErrorIs(t, lib.DeleteBorrower(ctx, "a"), core.ErrBorrowerNotExists)
}

func TestLibrary_ConcurrentCheckoutsRespectQuantity(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)

	require.NoError(t, lib.AddBook(ctx, core.Book{ISBN: "1", PageNum: 1, Quantity: core.Quantity(3)}))
	const n = 16
	for i := range n {
		require.NoError(t, lib.AddBorrower(ctx, core.Borrower{Username: string(rune('a' + i))}))
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := range n {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			err := lib.CheckoutBook(ctx, u, "1")
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, core.ErrBookNotAvailable)
		}(string(rune('a' + i)))
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	holders, err := lib.GetBookBorrowers(ctx, "1")
	require.NoError(t, err)
	assert.Len(t, holders, 3)
}

func TestLibrary_DropDB(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)

	require.NoError(t, lib.AddBook(ctx, core.Book{ISBN: "1", Title: "T", PageNum: 1}))
	require.NoError(t, lib.AddBorrower(ctx, core.Borrower{Username: "u1", Name: "N"}))
	require.NoError(t, lib.CheckoutBook(ctx, "u1", "1"))
	require.NoError(t, lib.DropDB(ctx))

	book, err := lib.GetBook(ctx, "1")
	require.NoError(t, err)
	assert.Nil(t, book)
	found, err := lib.SearchByTitle(ctx, "T")
	require.NoError(t, err)
	assert.Empty(t, found)
	names, err := lib.SearchByName(ctx, "N")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestLibrary_Metrics(t *testing.T) {
	ctx := context.Background()
	lib := newTestLibrary(t)

	okBefore := testutil.ToFloat64(operations.WithLabelValues("add_book", "ok"))
	conflictBefore := testutil.ToFloat64(operations.WithLabelValues("add_book", "conflict"))

	require.NoError(t, lib.AddBook(ctx, core.Book{ISBN: "m1", PageNum: 1}))
	require.Error(t, lib.AddBook(ctx, core.Book{ISBN: "m1", PageNum: 1}))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(operations.WithLabelValues("add_book", "ok")))
	assert.Equal(t, conflictBefore+1, testutil.ToFloat64(operations.WithLabelValues("add_book", "conflict")))
}

func TestRegisterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))
	assert.Error(t, RegisterMetrics(reg), "registering twice is rejected")
}

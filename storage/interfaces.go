package storage

import (
	"context"

	"github.com/poiesic/circulate/core"
)

// BookMutation computes the replacement for a stored book. It receives a copy of
// the current record and the number of borrowers currently holding a copy.
// Returning an error aborts the update with nothing written. Backends that
// retry on conflict may invoke a mutation more than once.
type BookMutation func(current core.Book, borrowers int) (core.Book, error)

// BorrowerMutation computes the replacement for a stored borrower.
type BorrowerMutation func(current core.Borrower) (core.Borrower, error)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// Drop removes every record, index entry and checkout.
	Drop(ctx context.Context) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// BookRepository provides operations for managing books and their indexes.
type BookRepository interface {
	Repository
	// AddBook stores a validated book.
	// The existence check and the insert are a single atomic step per ISBN.
	// Returns core.ErrBookExists if the ISBN is already present.
	AddBook(ctx context.Context, book *core.Book) error

	// GetBook retrieves a single book by ISBN.
	// Returns ErrNotFound if the book doesn't exist.
	GetBook(ctx context.Context, isbn string) (*core.Book, error)

	// UpdateBook replaces a book with the result of mutate, atomically with
	// respect to checkouts of the same book, and reindexes changed attributes.
	// Returns core.ErrBookNotExists if the book doesn't exist.
	UpdateBook(ctx context.Context, isbn string, mutate BookMutation) (*core.Book, error)

	// DeleteBook removes a book and its index entries.
	// Returns core.ErrBookNotExists if absent and core.ErrBookBorrowed while
	// any borrower holds a copy.
	DeleteBook(ctx context.Context, isbn string) error

	// FindBooks returns the books indexed under value for attr.
	// Unknown values yield an empty result, not an error.
	FindBooks(ctx context.Context, attr core.Attribute, value string) ([]*core.Book, error)

	// ListBooks returns every book in insertion order.
	ListBooks(ctx context.Context) ([]*core.Book, error)
}

// BorrowerRepository provides operations for managing borrowers.
type BorrowerRepository interface {
	Repository
	// AddBorrower stores a validated borrower.
	// Returns core.ErrBorrowerExists if the username is already present.
	AddBorrower(ctx context.Context, borrower *core.Borrower) error

	// GetBorrower retrieves a single borrower by username.
	// Returns ErrNotFound if the borrower doesn't exist.
	GetBorrower(ctx context.Context, username string) (*core.Borrower, error)

	// UpdateBorrower replaces a borrower with the result of mutate.
	// Returns core.ErrBorrowerNotExists if the borrower doesn't exist.
	UpdateBorrower(ctx context.Context, username string, mutate BorrowerMutation) (*core.Borrower, error)

	// DeleteBorrower removes a borrower and its index entries.
	// Returns core.ErrBorrowerNotExists if absent and core.ErrBookBorrowed while
	// the borrower holds any book.
	DeleteBorrower(ctx context.Context, username string) error

	// FindBorrowers returns the borrowers indexed under value for attr.
	FindBorrowers(ctx context.Context, attr core.Attribute, value string) ([]*core.Borrower, error)
}

// CheckoutLedger tracks which borrowers hold which books.
// Every edge is stored in both directions and both are written as one unit.
type CheckoutLedger interface {
	Repository
	// Checkout records that username holds a copy of isbn.
	// Checks, in order: core.ErrBorrowerNotExists, core.ErrBookNotExists,
	// core.ErrBookAlreadyBorrowed, core.ErrBookNotAvailable. The capacity check
	// and the insert are serialized per book.
	Checkout(ctx context.Context, username, isbn string) error

	// Return removes the edge between username and isbn.
	// Checks, in order: core.ErrBorrowerNotExists, core.ErrBookNotExists,
	// core.ErrBookNotBorrowed.
	Return(ctx context.Context, username, isbn string) error

	// BookBorrowers returns the borrowers holding isbn.
	// Returns core.ErrBookNotExists if the book doesn't exist.
	BookBorrowers(ctx context.Context, isbn string) ([]*core.Borrower, error)

	// BorrowedBooks returns the books held by username.
	// Returns core.ErrBorrowerNotExists if the borrower doesn't exist.
	BorrowedBooks(ctx context.Context, username string) ([]*core.Book, error)
}

// Store is a complete catalog backend.
type Store interface {
	BookRepository
	BorrowerRepository
	CheckoutLedger
}

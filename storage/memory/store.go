// Package memory implements storage.Store over process-local concurrent maps.
//
// Records, index sets and ledger sets live in xsync maps. Sets are replaced
// copy-on-write through MapOf.Compute, so readers never observe a set while it
// is being modified. Writes that must be serialized per entity (insert,
// update, delete, checkout) hold a mutex scoped to the entity key; checkout and
// return take the borrower lock before the book lock.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/poiesic/circulate/core"
	"github.com/poiesic/circulate/index"
	"github.com/poiesic/circulate/storage"
	"github.com/puzpuzpuz/xsync/v3"
)

type set map[string]struct{}

type indexKey struct {
	attr  core.Attribute
	value string
}

type bookRecord struct {
	book *core.Book
	seq  uint64
}

// Store is the in-memory catalog backend.
type Store struct {
	// mu is held shared by every operation and exclusively by Drop.
	mu     sync.RWMutex
	closed atomic.Bool
	seq    atomic.Uint64

	books     *xsync.MapOf[string, bookRecord]
	borrowers *xsync.MapOf[string, *core.Borrower]
	index     *xsync.MapOf[indexKey, set]
	holders   *xsync.MapOf[string, set] // isbn -> usernames
	held      *xsync.MapOf[string, set] // username -> isbns
	locks     *xsync.MapOf[string, *sync.Mutex]

	indexer *index.Maintainer
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger index failures are reported to.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.indexer = index.NewMaintainer(logger)
	}
}

// NewStore creates an empty in-memory store.
func NewStore(opts ...Option) storage.Store {
	return newStore(opts...)
}

func newStore(opts ...Option) *Store {
	s := &Store{
		books:     xsync.NewMapOf[string, bookRecord](),
		borrowers: xsync.NewMapOf[string, *core.Borrower](),
		index:     xsync.NewMapOf[indexKey, set](),
		holders:   xsync.NewMapOf[string, set](),
		held:      xsync.NewMapOf[string, set](),
		locks:     xsync.NewMapOf[string, *sync.Mutex](),
		indexer:   index.NewMaintainer(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// enter guards an operation against Close and Drop.
func (s *Store) enter() (func(), error) {
	if s.closed.Load() {
		return nil, storage.ErrStorageClosed
	}
	s.mu.RLock()
	return s.mu.RUnlock, nil
}

func (s *Store) lock(entity, key string) func() {
	m, _ := s.locks.LoadOrStore(entity+":"+key, &sync.Mutex{})
	m.Lock()
	return m.Unlock
}

// Drop removes every record, index set and ledger edge.
func (s *Store) Drop(ctx context.Context) error {
	if s.closed.Load() {
		return storage.ErrStorageClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.books.Clear()
	s.borrowers.Clear()
	s.index.Clear()
	s.holders.Clear()
	s.held.Clear()
	s.locks.Clear()
	return nil
}

// Close marks the store closed. Later calls fail with storage.ErrStorageClosed.
func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *Store) AddBook(ctx context.Context, book *core.Book) error {
	leave, err := s.enter()
	if err != nil {
		return err
	}
	defer leave()
	defer s.lock(core.EntityBook, book.ISBN)()

	stored := book.Clone()
	if _, loaded := s.books.LoadOrStore(book.ISBN, bookRecord{book: stored, seq: s.seq.Add(1)}); loaded {
		return core.ErrBookExists
	}
	return s.indexer.ReindexBook(ctx, indexWriter{s}, nil, stored)
}

func (s *Store) GetBook(ctx context.Context, isbn string) (*core.Book, error) {
	leave, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	rec, ok := s.books.Load(isbn)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec.book.Clone(), nil
}

func (s *Store) UpdateBook(ctx context.Context, isbn string, mutate storage.BookMutation) (*core.Book, error) {
	leave, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer leave()
	defer s.lock(core.EntityBook, isbn)()

	rec, ok := s.books.Load(isbn)
	if !ok {
		return nil, core.ErrBookNotExists
	}
	holders, _ := s.holders.Load(isbn)

	next, err := mutate(*rec.book.Clone(), len(holders))
	if err != nil {
		return nil, err
	}
	next.ISBN = isbn
	updated := next.Clone()

	s.books.Store(isbn, bookRecord{book: updated, seq: rec.seq})
	if err := s.indexer.ReindexBook(ctx, indexWriter{s}, rec.book, updated); err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

func (s *Store) DeleteBook(ctx context.Context, isbn string) error {
	leave, err := s.enter()
	if err != nil {
		return err
	}
	defer leave()
	defer s.lock(core.EntityBook, isbn)()

	rec, ok := s.books.Load(isbn)
	if !ok {
		return core.ErrBookNotExists
	}
	if holders, _ := s.holders.Load(isbn); len(holders) > 0 {
		return core.ErrBookBorrowed
	}

	s.books.Delete(isbn)
	s.holders.Delete(isbn)
	return s.indexer.ReindexBook(ctx, indexWriter{s}, rec.book, nil)
}

func (s *Store) FindBooks(ctx context.Context, attr core.Attribute, value string) ([]*core.Book, error) {
	leave, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	members, _ := s.index.Load(indexKey{attr, value})
	books := make([]*core.Book, 0, len(members))
	for isbn := range members {
		if rec, ok := s.books.Load(isbn); ok {
			books = append(books, rec.book.Clone())
		}
	}
	return books, nil
}

func (s *Store) ListBooks(ctx context.Context) ([]*core.Book, error) {
	leave, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	records := make([]bookRecord, 0, s.books.Size())
	s.books.Range(func(_ string, rec bookRecord) bool {
		records = append(records, rec)
		return true
	})
	sortBySeq(records)

	books := make([]*core.Book, len(records))
	for i, rec := range records {
		books[i] = rec.book.Clone()
	}
	return books, nil
}

func (s *Store) AddBorrower(ctx context.Context, borrower *core.Borrower) error {
	leave, err := s.enter()
	if err != nil {
		return err
	}
	defer leave()
	defer s.lock(core.EntityBorrower, borrower.Username)()

	stored := borrower.Clone()
	if _, loaded := s.borrowers.LoadOrStore(borrower.Username, stored); loaded {
		return core.ErrBorrowerExists
	}
	return s.indexer.ReindexBorrower(ctx, indexWriter{s}, nil, stored)
}

func (s *Store) GetBorrower(ctx context.Context, username string) (*core.Borrower, error) {
	leave, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	borrower, ok := s.borrowers.Load(username)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return borrower.Clone(), nil
}

func (s *Store) UpdateBorrower(ctx context.Context, username string, mutate storage.BorrowerMutation) (*core.Borrower, error) {
	leave, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer leave()
	defer s.lock(core.EntityBorrower, username)()

	current, ok := s.borrowers.Load(username)
	if !ok {
		return nil, core.ErrBorrowerNotExists
	}
	next, err := mutate(*current)
	if err != nil {
		return nil, err
	}
	next.Username = username
	updated := next.Clone()

	s.borrowers.Store(username, updated)
	if err := s.indexer.ReindexBorrower(ctx, indexWriter{s}, current, updated); err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

func (s *Store) DeleteBorrower(ctx context.Context, username string) error {
	leave, err := s.enter()
	if err != nil {
		return err
	}
	defer leave()
	defer s.lock(core.EntityBorrower, username)()

	current, ok := s.borrowers.Load(username)
	if !ok {
		return core.ErrBorrowerNotExists
	}
	if held, _ := s.held.Load(username); len(held) > 0 {
		return core.ErrBookBorrowed
	}

	s.borrowers.Delete(username)
	s.held.Delete(username)
	return s.indexer.ReindexBorrower(ctx, indexWriter{s}, current, nil)
}

func (s *Store) FindBorrowers(ctx context.Context, attr core.Attribute, value string) ([]*core.Borrower, error) {
	leave, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	members, _ := s.index.Load(indexKey{attr, value})
	borrowers := make([]*core.Borrower, 0, len(members))
	for username := range members {
		if borrower, ok := s.borrowers.Load(username); ok {
			borrowers = append(borrowers, borrower.Clone())
		}
	}
	return borrowers, nil
}

func addMember[K comparable](m *xsync.MapOf[K, set], key K, member string) {
	m.Compute(key, func(old set, _ bool) (set, bool) {
		next := make(set, len(old)+1)
		for k := range old {
			next[k] = struct{}{}
		}
		next[member] = struct{}{}
		return next, false
	})
}

func removeMember[K comparable](m *xsync.MapOf[K, set], key K, member string) {
	m.Compute(key, func(old set, loaded bool) (set, bool) {
		if !loaded {
			return nil, true
		}
		next := make(set, len(old))
		for k := range old {
			if k != member {
				next[k] = struct{}{}
			}
		}
		return next, len(next) == 0
	})
}

// indexWriter applies index membership changes to the store's index map.
type indexWriter struct {
	s *Store
}

func (w indexWriter) Add(_ context.Context, attr core.Attribute, value, key string) error {
	addMember(w.s.index, indexKey{attr, value}, key)
	return nil
}

func (w indexWriter) Remove(_ context.Context, attr core.Attribute, value, key string) error {
	removeMember(w.s.index, indexKey{attr, value}, key)
	return nil
}

package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/circulate/core"
	"github.com/poiesic/circulate/index"
	"github.com/poiesic/circulate/storage"
)

// Store implements storage.Store for BadgerDB.
type Store struct {
	backend *Backend
	owned   bool
	policy  storage.RetryPolicy
	indexer *index.Maintainer

	// mu is held shared by every operation and exclusively by Drop.
	mu  sync.RWMutex
	seq *badger.Sequence
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithRetryPolicy sets how conflicting transactions are replayed.
func WithRetryPolicy(policy storage.RetryPolicy) Option {
	return func(s *Store) {
		s.policy = policy
	}
}

// WithLogger sets the logger index failures are reported to.
// Default is the backend's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.indexer = index.NewMaintainer(logger)
	}
}

// NewStore creates a Store over an open backend. The caller keeps ownership
// of the backend and must close it after closing the store.
func NewStore(backend *Backend, opts ...Option) (*Store, error) {
	s := &Store{
		backend: backend,
		policy:  storage.DefaultRetryPolicy,
		indexer: index.NewMaintainer(backend.logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	seq, err := backend.GetSequence(bookSeqName)
	if err != nil {
		return nil, err
	}
	s.seq = seq
	return s, nil
}

// Open opens a BadgerDB database at path and returns a store that owns it.
func Open(path string, inMemory bool, opts ...Option) (storage.Store, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}
	s, err := NewStore(backend, opts...)
	if err != nil {
		backend.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// Close releases the insertion-order sequence and, for stores created by
// Open, closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend.IsClosed() {
		return nil
	}
	var err error
	if s.seq != nil {
		err = s.seq.Release()
		s.seq = nil
	}
	if s.owned {
		err = errors.Join(err, s.backend.Close())
	}
	return err
}

// Drop deletes every key and restarts the insertion-order sequence.
func (s *Store) Drop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seq != nil {
		if err := s.seq.Release(); err != nil {
			return err
		}
		s.seq = nil
	}
	if err := s.backend.DropAll(); err != nil {
		return err
	}
	seq, err := s.backend.GetSequence(bookSeqName)
	if err != nil {
		return err
	}
	s.seq = seq
	return nil
}

func (s *Store) update(ctx context.Context, fn func(tx *badger.Txn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.Update(ctx, s.policy, fn)
}

func (s *Store) view(fn func(tx *badger.Txn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend.WithTx(fn, false)
}

func (s *Store) AddBook(ctx context.Context, book *core.Book) error {
	s.mu.RLock()
	if s.seq == nil {
		s.mu.RUnlock()
		return storage.ErrStorageClosed
	}
	seq, err := s.seq.Next()
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	return s.update(ctx, func(tx *badger.Txn) error {
		key := makeBookKey(book.ISBN)
		existing, err := readBook(tx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return core.ErrBookExists
		}

		if err := tx.Set(key, storage.MarshalBook(book)); err != nil {
			return err
		}
		seqBuf := make([]byte, 8)
		binary.BigEndian.PutUint64(seqBuf, seq)
		if err := tx.Set(makeBookOrderKey(book.ISBN), seqBuf); err != nil {
			return err
		}
		if err := tx.Set(makeBookSeqKey(seq), []byte(book.ISBN)); err != nil {
			return err
		}
		return s.indexer.ReindexBook(ctx, txIndex{tx}, nil, book)
	})
}

func (s *Store) GetBook(ctx context.Context, isbn string) (*core.Book, error) {
	var result *core.Book
	err := s.view(func(tx *badger.Txn) error {
		var err error
		result, err = readBook(tx, makeBookKey(isbn))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return result, err
}

func (s *Store) UpdateBook(ctx context.Context, isbn string, mutate storage.BookMutation) (*core.Book, error) {
	var result *core.Book
	err := s.update(ctx, func(tx *badger.Txn) error {
		key := makeBookKey(isbn)
		old, err := readBook(tx, key)
		if err != nil {
			return err
		}
		if old == nil {
			return core.ErrBookNotExists
		}
		holders, err := readCount(tx, makeBookHolderCountKey(isbn))
		if err != nil {
			return err
		}

		next, err := mutate(*old.Clone(), holders)
		if err != nil {
			return err
		}
		next.ISBN = isbn

		if err := tx.Set(key, storage.MarshalBook(&next)); err != nil {
			return err
		}
		if err := s.indexer.ReindexBook(ctx, txIndex{tx}, old, &next); err != nil {
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
	return s.update(ctx, func(tx *badger.Txn) error {
		key := makeBookKey(isbn)
		old, err := readBook(tx, key)
		if err != nil {
			return err
		}
		if old == nil {
			return core.ErrBookNotExists
		}
		holders, err := readCount(tx, makeBookHolderCountKey(isbn))
		if err != nil {
			return err
		}
		if holders > 0 {
			return core.ErrBookBorrowed
		}

		orderKey := makeBookOrderKey(isbn)
		item, err := tx.Get(orderKey)
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err == nil {
			seqBuf, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if len(seqBuf) == 8 {
				if err := tx.Delete(makeBookSeqKey(binary.BigEndian.Uint64(seqBuf))); err != nil {
					return err
				}
			}
			if err := tx.Delete(orderKey); err != nil {
				return err
			}
		}

		if err := tx.Delete(key); err != nil {
			return err
		}
		return s.indexer.ReindexBook(ctx, txIndex{tx}, old, nil)
	})
}

func (s *Store) FindBooks(ctx context.Context, attr core.Attribute, value string) ([]*core.Book, error) {
	result := []*core.Book{}
	err := s.view(func(tx *badger.Txn) error {
		keys, err := readIndex(tx, attr, value)
		if err != nil {
			return err
		}
		for _, isbn := range keys {
			book, err := readBook(tx, makeBookKey(isbn))
			if err != nil {
				return err
			}
			if book != nil {
				result = append(result, book)
			}
		}
		return nil
	})
	return result, err
}

func (s *Store) ListBooks(ctx context.Context) ([]*core.Book, error) {
	result := []*core.Book{}
	err := s.view(func(tx *badger.Txn) error {
		var order []string
		err := scanPrefix(tx, []byte(bookSeqPrefix), func(_, val []byte) error {
			order = append(order, string(val))
			return nil
		})
		if err != nil {
			return err
		}
		for _, isbn := range order {
			book, err := readBook(tx, makeBookKey(isbn))
			if err != nil {
				return err
			}
			if book != nil {
				result = append(result, book)
			}
		}
		return nil
	})
	return result, err
}

func (s *Store) AddBorrower(ctx context.Context, borrower *core.Borrower) error {
	return s.update(ctx, func(tx *badger.Txn) error {
		key := makeBorrowerKey(borrower.Username)
		existing, err := readBorrower(tx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return core.ErrBorrowerExists
		}
		if err := tx.Set(key, storage.MarshalBorrower(borrower)); err != nil {
			return err
		}
		return s.indexer.ReindexBorrower(ctx, txIndex{tx}, nil, borrower)
	})
}

func (s *Store) GetBorrower(ctx context.Context, username string) (*core.Borrower, error) {
	var result *core.Borrower
	err := s.view(func(tx *badger.Txn) error {
		var err error
		result, err = readBorrower(tx, makeBorrowerKey(username))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return result, err
}

func (s *Store) UpdateBorrower(ctx context.Context, username string, mutate storage.BorrowerMutation) (*core.Borrower, error) {
	var result *core.Borrower
	err := s.update(ctx, func(tx *badger.Txn) error {
		key := makeBorrowerKey(username)
		old, err := readBorrower(tx, key)
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

		if err := tx.Set(key, storage.MarshalBorrower(&next)); err != nil {
			return err
		}
		if err := s.indexer.ReindexBorrower(ctx, txIndex{tx}, old, &next); err != nil {
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
	return s.update(ctx, func(tx *badger.Txn) error {
		key := makeBorrowerKey(username)
		old, err := readBorrower(tx, key)
		if err != nil {
			return err
		}
		if old == nil {
			return core.ErrBorrowerNotExists
		}
		held, err := readCount(tx, makeBorrowerHeldCountKey(username))
		if err != nil {
			return err
		}
		if held > 0 {
			return core.ErrBookBorrowed
		}
		if err := tx.Delete(key); err != nil {
			return err
		}
		return s.indexer.ReindexBorrower(ctx, txIndex{tx}, old, nil)
	})
}

func (s *Store) FindBorrowers(ctx context.Context, attr core.Attribute, value string) ([]*core.Borrower, error) {
	result := []*core.Borrower{}
	err := s.view(func(tx *badger.Txn) error {
		keys, err := readIndex(tx, attr, value)
		if err != nil {
			return err
		}
		for _, username := range keys {
			borrower, err := readBorrower(tx, makeBorrowerKey(username))
			if err != nil {
				return err
			}
			if borrower != nil {
				result = append(result, borrower)
			}
		}
		return nil
	})
	return result, err
}

// readBook reads a book record. Returns nil, nil if the key doesn't exist.
func readBook(tx *badger.Txn, key []byte) (*core.Book, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var book *core.Book
	err = item.Value(func(val []byte) error {
		book, err = storage.UnmarshalBook(val)
		return err
	})
	return book, err
}

// readBorrower reads a borrower record. Returns nil, nil if the key doesn't exist.
func readBorrower(tx *badger.Txn, key []byte) (*core.Borrower, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var borrower *core.Borrower
	err = item.Value(func(val []byte) error {
		borrower, err = storage.UnmarshalBorrower(val)
		return err
	})
	return borrower, err
}

// readIndex returns the entity keys indexed under value, skipping entries
// whose fingerprint collides with a different value.
func readIndex(tx *badger.Txn, attr core.Attribute, value string) ([]string, error) {
	var keys []string
	err := scanPrefix(tx, makeIndexPrefix(attr, value), func(suffix, val []byte) error {
		if string(val) == value {
			keys = append(keys, string(suffix))
		}
		return nil
	})
	return keys, err
}

// txIndex writes index entries inside a badger transaction.
type txIndex struct {
	tx *badger.Txn
}

func (w txIndex) Add(_ context.Context, attr core.Attribute, value, key string) error {
	return w.tx.Set(makeIndexKey(attr, value, key), []byte(value))
}

func (w txIndex) Remove(_ context.Context, attr core.Attribute, value, key string) error {
	return w.tx.Delete(makeIndexKey(attr, value, key))
}

package badger

import (
	"context"
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/circulate/core"
)

// Checkout records a ledger edge in both directions. Every checkout of a book
// reads and rewrites the book's holder counter, so concurrent checkouts of
// the same book conflict at commit and are replayed against the new count.
func (s *Store) Checkout(ctx context.Context, username, isbn string) error {
	return s.update(ctx, func(tx *badger.Txn) error {
		book, err := s.checkPair(tx, username, isbn)
		if err != nil {
			return err
		}

		holderKey := makeHolderKey(isbn, username)
		if _, err := tx.Get(holderKey); err == nil {
			return core.ErrBookAlreadyBorrowed
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		countKey := makeBookHolderCountKey(isbn)
		holders, err := readCount(tx, countKey)
		if err != nil {
			return err
		}
		if holders >= book.Copies() {
			return core.ErrBookNotAvailable
		}

		heldKey := makeBorrowerHeldCountKey(username)
		held, err := readCount(tx, heldKey)
		if err != nil {
			return err
		}

		if err := tx.Set(holderKey, []byte(isbn)); err != nil {
			return err
		}
		if err := tx.Set(makeHeldKey(username, isbn), []byte(username)); err != nil {
			return err
		}
		if err := writeCount(tx, countKey, holders+1); err != nil {
			return err
		}
		return writeCount(tx, heldKey, held+1)
	})
}

func (s *Store) Return(ctx context.Context, username, isbn string) error {
	return s.update(ctx, func(tx *badger.Txn) error {
		if _, err := s.checkPair(tx, username, isbn); err != nil {
			return err
		}

		holderKey := makeHolderKey(isbn, username)
		if _, err := tx.Get(holderKey); errors.Is(err, badger.ErrKeyNotFound) {
			return core.ErrBookNotBorrowed
		} else if err != nil {
			return err
		}

		countKey := makeBookHolderCountKey(isbn)
		holders, err := readCount(tx, countKey)
		if err != nil {
			return err
		}
		heldKey := makeBorrowerHeldCountKey(username)
		held, err := readCount(tx, heldKey)
		if err != nil {
			return err
		}

		if err := tx.Delete(holderKey); err != nil {
			return err
		}
		if err := tx.Delete(makeHeldKey(username, isbn)); err != nil {
			return err
		}
		if err := writeCount(tx, countKey, holders-1); err != nil {
			return err
		}
		return writeCount(tx, heldKey, held-1)
	})
}

// checkPair verifies the borrower and then the book exist.
func (s *Store) checkPair(tx *badger.Txn, username, isbn string) (*core.Book, error) {
	borrower, err := readBorrower(tx, makeBorrowerKey(username))
	if err != nil {
		return nil, err
	}
	if borrower == nil {
		return nil, core.ErrBorrowerNotExists
	}
	book, err := readBook(tx, makeBookKey(isbn))
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, core.ErrBookNotExists
	}
	return book, nil
}

func (s *Store) BookBorrowers(ctx context.Context, isbn string) ([]*core.Borrower, error) {
	var result []*core.Borrower
	err := s.view(func(tx *badger.Txn) error {
		book, err := readBook(tx, makeBookKey(isbn))
		if err != nil {
			return err
		}
		if book == nil {
			return core.ErrBookNotExists
		}

		var usernames []string
		err = scanPrefix(tx, makeHoldersPrefix(isbn), func(suffix, val []byte) error {
			if string(val) == isbn {
				usernames = append(usernames, string(suffix))
			}
			return nil
		})
		if err != nil {
			return err
		}

		result = make([]*core.Borrower, 0, len(usernames))
		for _, username := range usernames {
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

func (s *Store) BorrowedBooks(ctx context.Context, username string) ([]*core.Book, error) {
	var result []*core.Book
	err := s.view(func(tx *badger.Txn) error {
		borrower, err := readBorrower(tx, makeBorrowerKey(username))
		if err != nil {
			return err
		}
		if borrower == nil {
			return core.ErrBorrowerNotExists
		}

		var isbns []string
		err = scanPrefix(tx, makeHeldPrefix(username), func(suffix, val []byte) error {
			if string(val) == username {
				isbns = append(isbns, string(suffix))
			}
			return nil
		})
		if err != nil {
			return err
		}

		result = make([]*core.Book, 0, len(isbns))
		for _, isbn := range isbns {
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

package redis

import (
	"context"

	"github.com/poiesic/circulate/core"
	"github.com/redis/go-redis/v9"
)

// Checkout watches both records and both ledger sets, so a concurrent
// checkout, return, edit or delete touching the same book or borrower aborts
// this transaction and the capacity check is replayed.
func (s *Store) Checkout(ctx context.Context, username, isbn string) error {
	holdersKey := s.holdersKey(isbn)
	heldKey := s.heldKey(username)
	return s.transact(ctx, func(tx *redis.Tx) error {
		book, err := s.checkPair(ctx, tx, username, isbn)
		if err != nil {
			return err
		}
		borrowed, err := tx.SIsMember(ctx, holdersKey, username).Result()
		if err != nil {
			return err
		}
		if borrowed {
			return core.ErrBookAlreadyBorrowed
		}
		holders, err := tx.SCard(ctx, holdersKey).Result()
		if err != nil {
			return err
		}
		if int(holders) >= book.Copies() {
			return core.ErrBookNotAvailable
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SAdd(ctx, holdersKey, username)
			pipe.SAdd(ctx, heldKey, isbn)
			return nil
		})
		return err
	}, s.borrowerKey(username), s.bookKey(isbn), holdersKey, heldKey)
}

func (s *Store) Return(ctx context.Context, username, isbn string) error {
	holdersKey := s.holdersKey(isbn)
	heldKey := s.heldKey(username)
	return s.transact(ctx, func(tx *redis.Tx) error {
		if _, err := s.checkPair(ctx, tx, username, isbn); err != nil {
			return err
		}
		borrowed, err := tx.SIsMember(ctx, holdersKey, username).Result()
		if err != nil {
			return err
		}
		if !borrowed {
			return core.ErrBookNotBorrowed
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.SRem(ctx, holdersKey, username)
			pipe.SRem(ctx, heldKey, isbn)
			return nil
		})
		return err
	}, s.borrowerKey(username), s.bookKey(isbn), holdersKey, heldKey)
}

// checkPair verifies the borrower and then the book exist.
func (s *Store) checkPair(ctx context.Context, tx *redis.Tx, username, isbn string) (*core.Book, error) {
	n, err := tx.Exists(ctx, s.borrowerKey(username)).Result()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, core.ErrBorrowerNotExists
	}
	book, err := s.readBook(ctx, tx, isbn)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, core.ErrBookNotExists
	}
	return book, nil
}

func (s *Store) BookBorrowers(ctx context.Context, isbn string) ([]*core.Borrower, error) {
	n, err := s.client.Exists(ctx, s.bookKey(isbn)).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	if n == 0 {
		return nil, core.ErrBookNotExists
	}
	usernames, err := s.client.SMembers(ctx, s.holdersKey(isbn)).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	return s.readBorrowers(ctx, usernames)
}

func (s *Store) BorrowedBooks(ctx context.Context, username string) ([]*core.Book, error) {
	n, err := s.client.Exists(ctx, s.borrowerKey(username)).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	if n == 0 {
		return nil, core.ErrBorrowerNotExists
	}
	isbns, err := s.client.SMembers(ctx, s.heldKey(username)).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	return s.readBooks(ctx, isbns)
}

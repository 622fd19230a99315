package mongo

import (
	"context"
	"errors"

	"github.com/poiesic/circulate/core"
	"github.com/poiesic/circulate/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Checkout inserts the checkout document and increments both holder counts.
// Concurrent checkouts of one book write the same book document, so all but
// one of them abort with a write conflict and re-run the capacity check.
func (s *Store) Checkout(ctx context.Context, username, isbn string) error {
	return s.transact(ctx, func(sc mongo.SessionContext) error {
		book, err := s.checkPair(sc, username, isbn)
		if err != nil {
			return err
		}
		borrowed, err := s.hasCheckout(sc, username, isbn)
		if err != nil {
			return err
		}
		if borrowed {
			return core.ErrBookAlreadyBorrowed
		}
		if book.Holders >= book.Quantity {
			return core.ErrBookNotAvailable
		}

		id := checkoutID{Username: username, ISBN: isbn}
		if _, err := s.checkouts.InsertOne(sc, checkoutDoc{ID: id, Username: username, ISBN: isbn}); err != nil {
			return err
		}
		return s.adjustHolders(sc, username, isbn, 1)
	})
}

func (s *Store) Return(ctx context.Context, username, isbn string) error {
	return s.transact(ctx, func(sc mongo.SessionContext) error {
		if _, err := s.checkPair(sc, username, isbn); err != nil {
			return err
		}
		res, err := s.checkouts.DeleteOne(sc, bson.M{"_id": checkoutID{Username: username, ISBN: isbn}})
		if err != nil {
			return err
		}
		if res.DeletedCount == 0 {
			return core.ErrBookNotBorrowed
		}
		return s.adjustHolders(sc, username, isbn, -1)
	})
}

func (s *Store) adjustHolders(ctx context.Context, username, isbn string, delta int) error {
	inc := bson.M{"$inc": bson.M{"holders": delta}}
	if _, err := s.books.UpdateOne(ctx, bson.M{"_id": isbn}, inc); err != nil {
		return err
	}
	_, err := s.borrowers.UpdateOne(ctx, bson.M{"_id": username}, bson.M{"$inc": bson.M{"held": delta}})
	return err
}

// checkPair verifies the borrower and then the book exist.
func (s *Store) checkPair(ctx context.Context, username, isbn string) (*bookDoc, error) {
	borrower, err := s.findBorrowerDoc(ctx, username)
	if err != nil {
		return nil, err
	}
	if borrower == nil {
		return nil, core.ErrBorrowerNotExists
	}
	book, err := s.findBookDoc(ctx, isbn)
	if err != nil {
		return nil, err
	}
	if book == nil {
		return nil, core.ErrBookNotExists
	}
	return book, nil
}

func (s *Store) hasCheckout(ctx context.Context, username, isbn string) (bool, error) {
	err := s.checkouts.FindOne(ctx, bson.M{"_id": checkoutID{Username: username, ISBN: isbn}}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	return err == nil, err
}

func (s *Store) BookBorrowers(ctx context.Context, isbn string) ([]*core.Borrower, error) {
	if s.closed.Load() {
		return nil, storage.ErrStorageClosed
	}
	book, err := s.findBookDoc(ctx, isbn)
	if err != nil {
		return nil, wrapErr(err)
	}
	if book == nil {
		return nil, core.ErrBookNotExists
	}
	usernames, err := s.ledgerKeys(ctx, bson.M{"isbn": isbn}, func(d checkoutDoc) string { return d.Username })
	if err != nil {
		return nil, err
	}
	if len(usernames) == 0 {
		return []*core.Borrower{}, nil
	}
	return s.findBorrowers(ctx, bson.M{"_id": bson.M{"$in": usernames}})
}

func (s *Store) BorrowedBooks(ctx context.Context, username string) ([]*core.Book, error) {
	if s.closed.Load() {
		return nil, storage.ErrStorageClosed
	}
	borrower, err := s.findBorrowerDoc(ctx, username)
	if err != nil {
		return nil, wrapErr(err)
	}
	if borrower == nil {
		return nil, core.ErrBorrowerNotExists
	}
	isbns, err := s.ledgerKeys(ctx, bson.M{"username": username}, func(d checkoutDoc) string { return d.ISBN })
	if err != nil {
		return nil, err
	}
	if len(isbns) == 0 {
		return []*core.Book{}, nil
	}
	return s.findBooks(ctx, bson.M{"_id": bson.M{"$in": isbns}}, bson.D{{Key: "_id", Value: 1}})
}

func (s *Store) ledgerKeys(ctx context.Context, filter bson.M, key func(checkoutDoc) string) ([]string, error) {
	cursor, err := s.checkouts.Find(ctx, filter)
	if err != nil {
		return nil, wrapErr(err)
	}
	var docs []checkoutDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(docs))
	for _, d := range docs {
		keys = append(keys, key(d))
	}
	return keys, nil
}

// Package mongo implements storage.Store over MongoDB collections.
//
// Books and borrowers are documents keyed by ISBN and username. The
// attribute index is one document per (attribute, value) pair holding the
// matching keys. Checkouts are documents keyed by (username, isbn), and the
// book and borrower documents carry holder counts that every checkout and
// return updates.
//
// Writes run in multi-document transactions, which require a replica set or
// sharded cluster. Transactions aborted by a write conflict are replayed by
// the driver.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/poiesic/circulate/core"
	"github.com/poiesic/circulate/index"
	"github.com/poiesic/circulate/storage"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store implements storage.Store for MongoDB.
type Store struct {
	client    *mongo.Client
	owned     bool
	closed    atomic.Bool
	books     *mongo.Collection
	borrowers *mongo.Collection
	index     *mongo.Collection
	checkouts *mongo.Collection
	counters  *mongo.Collection
	indexer   *index.Maintainer
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger index failures are reported to.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.indexer = index.NewMaintainer(logger)
	}
}

// NewStore creates a Store over database db of an existing client and
// ensures the checkout lookup index. The caller keeps ownership of the client.
func NewStore(ctx context.Context, client *mongo.Client, db string, opts ...Option) (*Store, error) {
	s := newStore(client, client.Database(db), opts...)
	_, err := s.checkouts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "isbn", Value: 1}, {Key: "username", Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("create checkout index: %w", err)
	}
	_, err = s.books.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "seq", Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("create book order index: %w", err)
	}
	return s, nil
}

func newStore(client *mongo.Client, database *mongo.Database, opts ...Option) *Store {
	s := &Store{
		client:    client,
		books:     database.Collection(booksCollection),
		borrowers: database.Collection(borrowersCollection),
		index:     database.Collection(indexCollection),
		checkouts: database.Collection(checkoutsCollection),
		counters:  database.Collection(countersCollection),
		indexer:   index.NewMaintainer(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to the MongoDB deployment at uri and uses database db.
// Closing the returned store disconnects the client.
func Open(ctx context.Context, uri, db string, opts ...Option) (storage.Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	s, err := NewStore(ctx, client, db, opts...)
	if err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	s.owned = true
	return s, nil
}

// Close marks the store closed and disconnects the client if the store owns it.
func (s *Store) Close() error {
	if s.closed.Swap(true) || !s.owned {
		return nil
	}
	return s.client.Disconnect(context.Background())
}

// Drop deletes every document from the store's collections and restarts the
// insertion sequence.
func (s *Store) Drop(ctx context.Context) error {
	if s.closed.Load() {
		return storage.ErrStorageClosed
	}
	for _, coll := range []*mongo.Collection{s.books, s.borrowers, s.index, s.checkouts, s.counters} {
		if _, err := coll.DeleteMany(ctx, bson.M{}); err != nil {
			return wrapErr(err)
		}
	}
	return nil
}

// transact runs fn in a transaction. The driver replays fn on transient
// transaction errors, so fn must be safe to invoke more than once.
func (s *Store) transact(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	if s.closed.Load() {
		return storage.ErrStorageClosed
	}
	session, err := s.client.StartSession()
	if err != nil {
		return wrapErr(err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil {
		var coded *core.Error
		if errors.As(err, &coded) {
			return err
		}
		return wrapErr(err)
	}
	return nil
}

func wrapErr(err error) error {
	if errors.Is(err, mongo.ErrClientDisconnected) {
		return storage.ErrStorageClosed
	}
	return err
}

func (s *Store) nextSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": booksCollection},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	return counter.Seq, err
}

// findBookDoc returns nil, nil if the book doesn't exist.
func (s *Store) findBookDoc(ctx context.Context, isbn string) (*bookDoc, error) {
	var doc bookDoc
	res := s.books.FindOne(ctx, bson.M{"_id": isbn})
	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, wrapErr(err)
	}
	if err := res.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: book %s: %w", storage.ErrSerializationFailed, isbn, err)
	}
	return &doc, nil
}

// findBorrowerDoc returns nil, nil if the borrower doesn't exist.
func (s *Store) findBorrowerDoc(ctx context.Context, username string) (*borrowerDoc, error) {
	var doc borrowerDoc
	res := s.borrowers.FindOne(ctx, bson.M{"_id": username})
	if err := res.Err(); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, wrapErr(err)
	}
	if err := res.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: borrower %s: %w", storage.ErrSerializationFailed, username, err)
	}
	return &doc, nil
}

func (s *Store) AddBook(ctx context.Context, book *core.Book) error {
	return s.transact(ctx, func(sc mongo.SessionContext) error {
		existing, err := s.findBookDoc(sc, book.ISBN)
		if err != nil {
			return err
		}
		if existing != nil {
			return core.ErrBookExists
		}
		seq, err := s.nextSeq(sc)
		if err != nil {
			return err
		}
		doc := bookDoc{
			ISBN:     book.ISBN,
			Title:    book.Title,
			Author:   book.Author,
			PageNum:  book.PageNum,
			Quantity: book.Copies(),
			Seq:      seq,
		}
		if _, err := s.books.InsertOne(sc, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return core.ErrBookExists
			}
			return err
		}
		return s.indexer.ReindexBook(sc, mongoIndex{s.index}, nil, book)
	})
}

func (s *Store) GetBook(ctx context.Context, isbn string) (*core.Book, error) {
	if s.closed.Load() {
		return nil, storage.ErrStorageClosed
	}
	doc, err := s.findBookDoc(ctx, isbn)
	if err != nil {
		return nil, wrapErr(err)
	}
	if doc == nil {
		return nil, storage.ErrNotFound
	}
	return doc.book(), nil
}

func (s *Store) UpdateBook(ctx context.Context, isbn string, mutate storage.BookMutation) (*core.Book, error) {
	var result *core.Book
	err := s.transact(ctx, func(sc mongo.SessionContext) error {
		doc, err := s.findBookDoc(sc, isbn)
		if err != nil {
			return err
		}
		if doc == nil {
			return core.ErrBookNotExists
		}
		old := doc.book()
		next, err := mutate(*old.Clone(), doc.Holders)
		if err != nil {
			return err
		}
		next.ISBN = isbn

		doc.Title = next.Title
		doc.Author = next.Author
		doc.PageNum = next.PageNum
		doc.Quantity = next.Copies()
		if _, err := s.books.ReplaceOne(sc, bson.M{"_id": isbn}, doc); err != nil {
			return err
		}
		if err := s.indexer.ReindexBook(sc, mongoIndex{s.index}, old, &next); err != nil {
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
	return s.transact(ctx, func(sc mongo.SessionContext) error {
		doc, err := s.findBookDoc(sc, isbn)
		if err != nil {
			return err
		}
		if doc == nil {
			return core.ErrBookNotExists
		}
		if doc.Holders > 0 {
			return core.ErrBookBorrowed
		}
		if _, err := s.books.DeleteOne(sc, bson.M{"_id": isbn}); err != nil {
			return err
		}
		return s.indexer.ReindexBook(sc, mongoIndex{s.index}, doc.book(), nil)
	})
}

func (s *Store) FindBooks(ctx context.Context, attr core.Attribute, value string) ([]*core.Book, error) {
	keys, err := s.indexKeys(ctx, attr, value)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []*core.Book{}, nil
	}
	return s.findBooks(ctx, bson.M{"_id": bson.M{"$in": keys}}, bson.D{{Key: "_id", Value: 1}})
}

func (s *Store) ListBooks(ctx context.Context) ([]*core.Book, error) {
	if s.closed.Load() {
		return nil, storage.ErrStorageClosed
	}
	return s.findBooks(ctx, bson.M{}, bson.D{{Key: "seq", Value: 1}})
}

func (s *Store) findBooks(ctx context.Context, filter any, sort bson.D) ([]*core.Book, error) {
	cursor, err := s.books.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, wrapErr(err)
	}
	var docs []bookDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%w: books: %w", storage.ErrSerializationFailed, err)
	}
	books := make([]*core.Book, 0, len(docs))
	for i := range docs {
		books = append(books, docs[i].book())
	}
	return books, nil
}

func (s *Store) AddBorrower(ctx context.Context, borrower *core.Borrower) error {
	return s.transact(ctx, func(sc mongo.SessionContext) error {
		existing, err := s.findBorrowerDoc(sc, borrower.Username)
		if err != nil {
			return err
		}
		if existing != nil {
			return core.ErrBorrowerExists
		}
		doc := borrowerDoc{Username: borrower.Username, Name: borrower.Name, Phone: borrower.Phone}
		if _, err := s.borrowers.InsertOne(sc, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return core.ErrBorrowerExists
			}
			return err
		}
		return s.indexer.ReindexBorrower(sc, mongoIndex{s.index}, nil, borrower)
	})
}

func (s *Store) GetBorrower(ctx context.Context, username string) (*core.Borrower, error) {
	if s.closed.Load() {
		return nil, storage.ErrStorageClosed
	}
	doc, err := s.findBorrowerDoc(ctx, username)
	if err != nil {
		return nil, wrapErr(err)
	}
	if doc == nil {
		return nil, storage.ErrNotFound
	}
	return doc.borrower(), nil
}

func (s *Store) UpdateBorrower(ctx context.Context, username string, mutate storage.BorrowerMutation) (*core.Borrower, error) {
	var result *core.Borrower
	err := s.transact(ctx, func(sc mongo.SessionContext) error {
		doc, err := s.findBorrowerDoc(sc, username)
		if err != nil {
			return err
		}
		if doc == nil {
			return core.ErrBorrowerNotExists
		}
		old := doc.borrower()
		next, err := mutate(*old)
		if err != nil {
			return err
		}
		next.Username = username

		doc.Name = next.Name
		doc.Phone = next.Phone
		if _, err := s.borrowers.ReplaceOne(sc, bson.M{"_id": username}, doc); err != nil {
			return err
		}
		if err := s.indexer.ReindexBorrower(sc, mongoIndex{s.index}, old, &next); err != nil {
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
	return s.transact(ctx, func(sc mongo.SessionContext) error {
		doc, err := s.findBorrowerDoc(sc, username)
		if err != nil {
			return err
		}
		if doc == nil {
			return core.ErrBorrowerNotExists
		}
		if doc.Held > 0 {
			return core.ErrBookBorrowed
		}
		if _, err := s.borrowers.DeleteOne(sc, bson.M{"_id": username}); err != nil {
			return err
		}
		return s.indexer.ReindexBorrower(sc, mongoIndex{s.index}, doc.borrower(), nil)
	})
}

func (s *Store) FindBorrowers(ctx context.Context, attr core.Attribute, value string) ([]*core.Borrower, error) {
	keys, err := s.indexKeys(ctx, attr, value)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return []*core.Borrower{}, nil
	}
	return s.findBorrowers(ctx, bson.M{"_id": bson.M{"$in": keys}})
}

func (s *Store) findBorrowers(ctx context.Context, filter any) ([]*core.Borrower, error) {
	cursor, err := s.borrowers.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, wrapErr(err)
	}
	var docs []borrowerDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%w: borrowers: %w", storage.ErrSerializationFailed, err)
	}
	borrowers := make([]*core.Borrower, 0, len(docs))
	for i := range docs {
		borrowers = append(borrowers, docs[i].borrower())
	}
	return borrowers, nil
}

func (s *Store) indexKeys(ctx context.Context, attr core.Attribute, value string) ([]string, error) {
	if s.closed.Load() {
		return nil, storage.ErrStorageClosed
	}
	var doc indexDoc
	err := s.index.FindOne(ctx, bson.M{"_id": indexID{Attr: string(attr), Value: value}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return doc.Keys, nil
}

// mongoIndex writes index documents within the caller's session.
type mongoIndex struct {
	coll *mongo.Collection
}

func (w mongoIndex) Add(ctx context.Context, attr core.Attribute, value, key string) error {
	_, err := w.coll.UpdateOne(ctx,
		bson.M{"_id": indexID{Attr: string(attr), Value: value}},
		bson.M{"$addToSet": bson.M{"keys": key}},
		options.Update().SetUpsert(true),
	)
	return err
}

// Remove pulls key from the value's document and deletes the document once
// it is empty.
func (w mongoIndex) Remove(ctx context.Context, attr core.Attribute, value, key string) error {
	id := indexID{Attr: string(attr), Value: value}
	if _, err := w.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$pull": bson.M{"keys": key}}); err != nil {
		return err
	}
	_, err := w.coll.DeleteOne(ctx, bson.M{"_id": id, "keys": bson.M{"$size": 0}})
	return err
}

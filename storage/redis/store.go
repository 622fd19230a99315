// Package redis implements storage.Store over Redis hashes, sets and a sorted set.
//
// Layout, relative to the key prefix:
//
//	book:<isbn>               hash    book record without authors
//	author:<isbn>             list    the book's authors, in order
//	borrower:<username>       hash    borrower record
//	idx:<attr>:<value>        set     entity keys with that attribute value
//	co:book:<isbn>            set     usernames holding the book
//	co:borrower:<username>    set     ISBNs held by the borrower
//	meta:book:keys            zset    ISBNs scored by insertion sequence
//	meta:book:seq             string  insertion sequence counter
//
// Every write runs as WATCH on the keys it validates against followed by a
// MULTI/EXEC pipeline; a transaction aborted by a concurrent write is replayed.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/circulate/core"
	"github.com/poiesic/circulate/index"
	"github.com/poiesic/circulate/storage"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces every key written by the store.
const DefaultKeyPrefix = "circulate:"

// Store implements storage.Store for Redis.
type Store struct {
	client  redis.UniversalClient
	owned   bool
	prefix  string
	policy  storage.RetryPolicy
	indexer *index.Maintainer
}

var _ storage.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix namespaces the store's keys. Drop deletes only keys under it.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithRetryPolicy sets how aborted transactions are replayed.
func WithRetryPolicy(policy storage.RetryPolicy) Option {
	return func(s *Store) {
		s.policy = policy
	}
}

// WithLogger sets the logger index failures are reported to.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.indexer = index.NewMaintainer(logger)
	}
}

// NewStore creates a Store over an existing client. The caller keeps
// ownership of the client.
func NewStore(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:  client,
		prefix:  DefaultKeyPrefix,
		policy:  storage.DefaultRetryPolicy,
		indexer: index.NewMaintainer(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to the Redis server at addr and verifies it with PING.
// Closing the returned store closes the connection pool.
func Open(ctx context.Context, addr, password string, db int, opts ...Option) (storage.Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	s := NewStore(client, opts...)
	s.owned = true
	return s, nil
}

func (s *Store) bookKey(isbn string) string         { return s.prefix + "book:" + isbn }
func (s *Store) authorsKey(isbn string) string      { return s.prefix + "author:" + isbn }
func (s *Store) borrowerKey(username string) string { return s.prefix + "borrower:" + username }
func (s *Store) holdersKey(isbn string) string      { return s.prefix + "co:book:" + isbn }
func (s *Store) heldKey(username string) string     { return s.prefix + "co:borrower:" + username }
func (s *Store) bookKeysKey() string                { return s.prefix + "meta:book:keys" }
func (s *Store) bookSeqKey() string                 { return s.prefix + "meta:book:seq" }

func (s *Store) indexKey(attr core.Attribute, value string) string {
	return s.prefix + "idx:" + string(attr) + ":" + value
}

// Close closes the connection pool if the store opened it.
func (s *Store) Close() error {
	if !s.owned {
		return nil
	}
	err := s.client.Close()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}

// Drop deletes every key under the store's prefix.
func (s *Store) Drop(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 500).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 500 {
			if err := s.client.Del(ctx, batch...).Err(); err != nil {
				return wrapErr(err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return wrapErr(err)
	}
	if len(batch) > 0 {
		return wrapErr(s.client.Del(ctx, batch...).Err())
	}
	return nil
}

// transact runs fn under WATCH on keys and replays it when EXEC aborts.
func (s *Store) transact(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	err := storage.RetryOnConflict(ctx, s.policy, isAborted, func() error {
		return s.client.Watch(ctx, fn, keys...)
	})
	return wrapErr(err)
}

func isAborted(err error) bool {
	return errors.Is(err, redis.TxFailedErr)
}

func wrapErr(err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return storage.ErrStorageClosed
	}
	return err
}

func (s *Store) AddBook(ctx context.Context, book *core.Book) error {
	key := s.bookKey(book.ISBN)
	return s.transact(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return core.ErrBookExists
		}
		seq, err := tx.Incr(ctx, s.bookSeqKey()).Result()
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.writeBook(ctx, pipe, book)
			pipe.ZAdd(ctx, s.bookKeysKey(), redis.Z{Score: float64(seq), Member: book.ISBN})
			return s.indexer.ReindexBook(ctx, pipeIndex{s, pipe}, nil, book)
		})
		return err
	}, key)
}

func (s *Store) GetBook(ctx context.Context, isbn string) (*core.Book, error) {
	books, err := s.readBooks(ctx, []string{isbn})
	if err != nil {
		return nil, err
	}
	if len(books) == 0 {
		return nil, storage.ErrNotFound
	}
	return books[0], nil
}

func (s *Store) UpdateBook(ctx context.Context, isbn string, mutate storage.BookMutation) (*core.Book, error) {
	key := s.bookKey(isbn)
	holdersKey := s.holdersKey(isbn)
	var result *core.Book
	err := s.transact(ctx, func(tx *redis.Tx) error {
		old, err := s.readBook(ctx, tx, isbn)
		if err != nil {
			return err
		}
		if old == nil {
			return core.ErrBookNotExists
		}
		holders, err := tx.SCard(ctx, holdersKey).Result()
		if err != nil {
			return err
		}

		next, err := mutate(*old.Clone(), int(holders))
		if err != nil {
			return err
		}
		next.ISBN = isbn

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key, s.authorsKey(isbn))
			s.writeBook(ctx, pipe, &next)
			return s.indexer.ReindexBook(ctx, pipeIndex{s, pipe}, old, &next)
		})
		if err != nil {
			return err
		}
		result = &next
		return nil
	}, key, holdersKey)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) DeleteBook(ctx context.Context, isbn string) error {
	key := s.bookKey(isbn)
	holdersKey := s.holdersKey(isbn)
	return s.transact(ctx, func(tx *redis.Tx) error {
		old, err := s.readBook(ctx, tx, isbn)
		if err != nil {
			return err
		}
		if old == nil {
			return core.ErrBookNotExists
		}
		holders, err := tx.SCard(ctx, holdersKey).Result()
		if err != nil {
			return err
		}
		if holders > 0 {
			return core.ErrBookBorrowed
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key, s.authorsKey(isbn), holdersKey)
			pipe.ZRem(ctx, s.bookKeysKey(), isbn)
			return s.indexer.ReindexBook(ctx, pipeIndex{s, pipe}, old, nil)
		})
		return err
	}, key, holdersKey)
}

func (s *Store) FindBooks(ctx context.Context, attr core.Attribute, value string) ([]*core.Book, error) {
	isbns, err := s.client.SMembers(ctx, s.indexKey(attr, value)).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	return s.readBooks(ctx, isbns)
}

func (s *Store) ListBooks(ctx context.Context) ([]*core.Book, error) {
	isbns, err := s.client.ZRange(ctx, s.bookKeysKey(), 0, -1).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	return s.readBooks(ctx, isbns)
}

func (s *Store) AddBorrower(ctx context.Context, borrower *core.Borrower) error {
	key := s.borrowerKey(borrower.Username)
	return s.transact(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return core.ErrBorrowerExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, encodeBorrower(borrower))
			return s.indexer.ReindexBorrower(ctx, pipeIndex{s, pipe}, nil, borrower)
		})
		return err
	}, key)
}

func (s *Store) GetBorrower(ctx context.Context, username string) (*core.Borrower, error) {
	borrower, err := s.readBorrower(ctx, s.client, username)
	if err != nil {
		return nil, err
	}
	if borrower == nil {
		return nil, storage.ErrNotFound
	}
	return borrower, nil
}

func (s *Store) UpdateBorrower(ctx context.Context, username string, mutate storage.BorrowerMutation) (*core.Borrower, error) {
	key := s.borrowerKey(username)
	var result *core.Borrower
	err := s.transact(ctx, func(tx *redis.Tx) error {
		old, err := s.readBorrower(ctx, tx, username)
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

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.HSet(ctx, key, encodeBorrower(&next))
			return s.indexer.ReindexBorrower(ctx, pipeIndex{s, pipe}, old, &next)
		})
		if err != nil {
			return err
		}
		result = &next
		return nil
	}, key)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) DeleteBorrower(ctx context.Context, username string) error {
	key := s.borrowerKey(username)
	heldKey := s.heldKey(username)
	return s.transact(ctx, func(tx *redis.Tx) error {
		old, err := s.readBorrower(ctx, tx, username)
		if err != nil {
			return err
		}
		if old == nil {
			return core.ErrBorrowerNotExists
		}
		held, err := tx.SCard(ctx, heldKey).Result()
		if err != nil {
			return err
		}
		if held > 0 {
			return core.ErrBookBorrowed
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key, heldKey)
			return s.indexer.ReindexBorrower(ctx, pipeIndex{s, pipe}, old, nil)
		})
		return err
	}, key, heldKey)
}

func (s *Store) FindBorrowers(ctx context.Context, attr core.Attribute, value string) ([]*core.Borrower, error) {
	usernames, err := s.client.SMembers(ctx, s.indexKey(attr, value)).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	return s.readBorrowers(ctx, usernames)
}

// hashReader is satisfied by both the client and a watching transaction.
type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

// writeBook queues the book's hash and author list. Both keys must be empty.
func (s *Store) writeBook(ctx context.Context, pipe redis.Pipeliner, book *core.Book) {
	pipe.HSet(ctx, s.bookKey(book.ISBN), encodeBook(book))
	if len(book.Author) > 0 {
		pipe.RPush(ctx, s.authorsKey(book.ISBN), encodeAuthors(book)...)
	}
}

// readBook reads a book record inside a watching transaction. Returns nil, nil
// if the book doesn't exist.
func (s *Store) readBook(ctx context.Context, c hashReader, isbn string) (*core.Book, error) {
	fields, err := c.HGetAll(ctx, s.bookKey(isbn)).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	authors, err := c.LRange(ctx, s.authorsKey(isbn), 0, -1).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	return decodeBook(fields, authors)
}

func (s *Store) readBorrower(ctx context.Context, c hashReader, username string) (*core.Borrower, error) {
	fields, err := c.HGetAll(ctx, s.borrowerKey(username)).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	return decodeBorrower(fields), nil
}

// readBooks fetches books in one MULTI block so each hash and its author list
// are read together, skipping keys deleted meanwhile.
func (s *Store) readBooks(ctx context.Context, isbns []string) ([]*core.Book, error) {
	if len(isbns) == 0 {
		return []*core.Book{}, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(isbns))
	authorCmds := make([]*redis.StringSliceCmd, len(isbns))
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, isbn := range isbns {
			cmds[i] = pipe.HGetAll(ctx, s.bookKey(isbn))
			authorCmds[i] = pipe.LRange(ctx, s.authorsKey(isbn), 0, -1)
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	books := make([]*core.Book, 0, len(cmds))
	for i, cmd := range cmds {
		book, err := decodeBook(cmd.Val(), authorCmds[i].Val())
		if err != nil {
			return nil, err
		}
		if book != nil {
			books = append(books, book)
		}
	}
	return books, nil
}

func (s *Store) readBorrowers(ctx context.Context, usernames []string) ([]*core.Borrower, error) {
	if len(usernames) == 0 {
		return []*core.Borrower{}, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(usernames))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, username := range usernames {
			cmds[i] = pipe.HGetAll(ctx, s.borrowerKey(username))
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr(err)
	}
	borrowers := make([]*core.Borrower, 0, len(cmds))
	for _, cmd := range cmds {
		if borrower := decodeBorrower(cmd.Val()); borrower != nil {
			borrowers = append(borrowers, borrower)
		}
	}
	return borrowers, nil
}

// pipeIndex queues index set changes on a MULTI pipeline. Errors surface at EXEC.
type pipeIndex struct {
	s    *Store
	pipe redis.Pipeliner
}

func (w pipeIndex) Add(ctx context.Context, attr core.Attribute, value, key string) error {
	w.pipe.SAdd(ctx, w.s.indexKey(attr, value), key)
	return nil
}

func (w pipeIndex) Remove(ctx context.Context, attr core.Attribute, value, key string) error {
	w.pipe.SRem(ctx, w.s.indexKey(attr, value), key)
	return nil
}

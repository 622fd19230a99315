package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/poiesic/circulate/core"
	"github.com/poiesic/circulate/storage"
	"github.com/poiesic/circulate/storage/storagetest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client, opts...), server
}

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		store, _ := newTestStore(t)
		return store
	})
}

func TestOpen(t *testing.T) {
	server := miniredis.RunT(t)
	store, err := Open(context.Background(), server.Addr(), "", 0)
	require.NoError(t, err)
	require.NoError(t, store.AddBorrower(context.Background(), &core.Borrower{Username: "u1"}))
	require.NoError(t, store.Close())
}

func TestOpen_Unreachable(t *testing.T) {
	server := miniredis.RunT(t)
	addr := server.Addr()
	server.Close()

	_, err := Open(context.Background(), addr, "", 0)
	assert.ErrorContains(t, err, "connect to redis")
}

func TestStore_HashLayout(t *testing.T) {
	ctx := context.Background()
	store, server := newTestStore(t)

	require.NoError(t, store.AddBook(ctx, &core.Book{ISBN: "1", Title: "A", Author: []string{"X", "Y"}, PageNum: 200, Quantity: core.Quantity(3)}))

	authors, err := server.List("circulate:author:1")
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "Y"}, authors)
	assert.Equal(t, "200", server.HGet("circulate:book:1", "page_num"))
	members, err := server.SMembers("circulate:idx:author:Y")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, members)

	require.NoError(t, store.AddBook(ctx, &core.Book{ISBN: "2", PageNum: 5, Quantity: core.Quantity(1)}))
	fields, err := server.HKeys("circulate:book:2")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"isbn", "page_num", "quantity"}, fields, "absent fields are not written")
}

func TestStore_AuthorListFollowsBook(t *testing.T) {
	ctx := context.Background()
	store, server := newTestStore(t)

	require.NoError(t, store.AddBook(ctx, &core.Book{ISBN: "1", Author: []string{"Smith; Jones", "Lee"}, PageNum: 1, Quantity: core.Quantity(1)}))
	got, err := store.GetBook(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Smith; Jones", "Lee"}, got.Author)

	_, err = store.UpdateBook(ctx, "1", func(current core.Book, _ int) (core.Book, error) {
		current.Author = []string{"Lee"}
		return current, nil
	})
	require.NoError(t, err)
	authors, err := server.List("circulate:author:1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Lee"}, authors, "an edit replaces the list")

	_, err = store.UpdateBook(ctx, "1", func(current core.Book, _ int) (core.Book, error) {
		current.Author = nil
		return current, nil
	})
	require.NoError(t, err)
	assert.False(t, server.Exists("circulate:author:1"))

	require.NoError(t, store.DeleteBook(ctx, "1"))
	assert.False(t, server.Exists("circulate:book:1"))
}

func TestStore_CorruptNumberIsReported(t *testing.T) {
	ctx := context.Background()
	store, server := newTestStore(t)

	server.HSet("circulate:book:1", "isbn", "1", "page_num", "many", "quantity", "1")
	_, err := store.GetBook(ctx, "1")
	assert.ErrorIs(t, err, storage.ErrSerializationFailed)
	assert.ErrorIs(t, err, core.ErrInvalidNumber)
}

func TestStore_DropKeepsForeignKeys(t *testing.T) {
	ctx := context.Background()
	store, server := newTestStore(t, WithKeyPrefix("lib:"))

	require.NoError(t, server.Set("unrelated", "keep"))
	require.NoError(t, store.AddBook(ctx, &core.Book{ISBN: "1", Title: "A", PageNum: 1, Quantity: core.Quantity(1)}))
	require.NoError(t, store.Drop(ctx))

	assert.True(t, server.Exists("unrelated"))
	assert.False(t, server.Exists("lib:book:1"))
	assert.False(t, server.Exists("lib:idx:title:A"))
}

func TestStore_ClosedClient(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	store := NewStore(client)
	require.NoError(t, client.Close())

	_, err := store.GetBook(context.Background(), "1")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

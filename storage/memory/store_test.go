package memory

import (
	"context"
	"testing"

	"github.com/poiesic/circulate/core"
	"github.com/poiesic/circulate/storage"
	"github.com/poiesic/circulate/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		store := NewStore()
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestStore_Closed(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.AddBook(ctx, &core.Book{ISBN: "1", PageNum: 1, Quantity: core.Quantity(1)}), storage.ErrStorageClosed)
	_, err := store.GetBook(ctx, "1")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	assert.ErrorIs(t, store.Drop(ctx), storage.ErrStorageClosed)
}

func TestStore_EmptyIndexSetsAreRemoved(t *testing.T) {
	ctx := context.Background()
	s := newStore()
	require.NoError(t, s.AddBook(ctx, &core.Book{ISBN: "1", Title: "A", Author: []string{"X"}, PageNum: 1, Quantity: core.Quantity(1)}))
	assert.Equal(t, 2, s.index.Size())

	require.NoError(t, s.DeleteBook(ctx, "1"))
	assert.Zero(t, s.index.Size())
}

func TestStore_ReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.AddBook(ctx, &core.Book{ISBN: "1", Author: []string{"X"}, PageNum: 1, Quantity: core.Quantity(1)}))

	got, err := s.GetBook(ctx, "1")
	require.NoError(t, err)
	got.Author[0] = "changed"

	again, err := s.GetBook(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, []string{"X"}, again.Author)
}

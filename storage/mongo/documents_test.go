package mongo

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/circulate/core"
	"github.com/poiesic/circulate/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestBookDoc_Book(t *testing.T) {
	doc := &bookDoc{ISBN: "1", Title: "T", Author: []string{"A", "B"}, PageNum: 10, Quantity: 2, Seq: 7, Holders: 1}
	assert.Equal(t, &core.Book{ISBN: "1", Title: "T", Author: []string{"A", "B"}, PageNum: 10, Quantity: core.Quantity(2)}, doc.book())

	bare := &bookDoc{ISBN: "2", Author: []string{}, PageNum: 5, Quantity: 1}
	assert.Nil(t, bare.book().Author, "an empty author array decodes as absent")
}

func TestBorrowerDoc_Borrower(t *testing.T) {
	doc := &borrowerDoc{Username: "u1", Name: "Fred", Phone: "555", Held: 3}
	assert.Equal(t, &core.Borrower{Username: "u1", Name: "Fred", Phone: "555"}, doc.borrower())
}

func TestWrapErr(t *testing.T) {
	assert.ErrorIs(t, wrapErr(mongo.ErrClientDisconnected), storage.ErrStorageClosed)
	assert.ErrorIs(t, wrapErr(fmt.Errorf("find: %w", mongo.ErrClientDisconnected)), storage.ErrStorageClosed)

	other := errors.New("boom")
	assert.Equal(t, other, wrapErr(other))
	assert.NoError(t, wrapErr(nil))
}

func TestStore_Reads(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("book found", func(mt *mtest.T) {
		s := newStore(mt.Client, mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "circulate.books", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "1"},
			{Key: "title", Value: "Dune"},
			{Key: "author", Value: bson.A{"Herbert"}},
			{Key: "page_num", Value: 412},
			{Key: "quantity", Value: 2},
			{Key: "seq", Value: int64(1)},
			{Key: "holders", Value: 0},
		}))

		got, err := s.GetBook(context.Background(), "1")
		require.NoError(mt, err)
		assert.Equal(mt, &core.Book{ISBN: "1", Title: "Dune", Author: []string{"Herbert"}, PageNum: 412, Quantity: core.Quantity(2)}, got)
	})

	mt.Run("book missing", func(mt *mtest.T) {
		s := newStore(mt.Client, mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "circulate.books", mtest.FirstBatch))

		_, err := s.GetBook(context.Background(), "1")
		assert.ErrorIs(mt, err, storage.ErrNotFound)
	})

	mt.Run("server error is passed through", func(mt *mtest.T) {
		s := newStore(mt.Client, mt.DB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "bad query",
		}))

		_, err := s.GetBook(context.Background(), "1")
		require.Error(mt, err)
		assert.NotErrorIs(mt, err, storage.ErrSerializationFailed)
		var cmdErr mongo.CommandError
		assert.ErrorAs(mt, err, &cmdErr)
	})

	mt.Run("undecodable book", func(mt *mtest.T) {
		s := newStore(mt.Client, mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "circulate.books", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "1"},
			{Key: "page_num", Value: "many"},
		}))

		_, err := s.GetBook(context.Background(), "1")
		assert.ErrorIs(mt, err, storage.ErrSerializationFailed)
	})

	mt.Run("borrower server error is passed through", func(mt *mtest.T) {
		s := newStore(mt.Client, mt.DB)
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "bad query",
		}))

		_, err := s.GetBorrower(context.Background(), "u1")
		require.Error(mt, err)
		assert.NotErrorIs(mt, err, storage.ErrSerializationFailed)
	})

	mt.Run("find without index entry", func(mt *mtest.T) {
		s := newStore(mt.Client, mt.DB)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "circulate.attribute_index", mtest.FirstBatch))

		books, err := s.FindBooks(context.Background(), core.AttrTitle, "none")
		require.NoError(mt, err)
		assert.NotNil(mt, books)
		assert.Empty(mt, books)
	})

	mt.Run("closed store", func(mt *mtest.T) {
		s := newStore(mt.Client, mt.DB)
		require.NoError(mt, s.Close())

		_, err := s.GetBook(context.Background(), "1")
		assert.ErrorIs(mt, err, storage.ErrStorageClosed)
	})
}

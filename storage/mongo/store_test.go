package mongo

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/poiesic/circulate/core"
	"github.com/poiesic/circulate/storage"
	"github.com/poiesic/circulate/storage/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// testClient connects to the replica set named by CIRCULATE_TEST_MONGO_URI,
// skipping the test when it is unset.
func testClient(t *testing.T) *mongo.Client {
	t.Helper()
	uri := os.Getenv("CIRCULATE_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("CIRCULATE_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { client.Disconnect(ctx) })
	return client
}

// newTestStore creates a store in a database unique to the test.
func newTestStore(t *testing.T, client *mongo.Client) (*Store, string) {
	t.Helper()
	ctx := context.Background()
	db := "circulate_test_" + uuid.NewString()[:8]
	store, err := NewStore(ctx, client, db)
	require.NoError(t, err)
	t.Cleanup(func() {
		store.Close()
		client.Database(db).Drop(ctx)
	})
	return store, db
}

func TestStore(t *testing.T) {
	client := testClient(t)
	storagetest.Run(t, func(t *testing.T) storage.Store {
		store, _ := newTestStore(t, client)
		return store
	})
}

func TestStore_DocumentLayout(t *testing.T) {
	client := testClient(t)
	store, db := newTestStore(t, client)
	ctx := context.Background()

	require.NoError(t, store.AddBook(ctx, &core.Book{ISBN: "1", Title: "T", Author: []string{"A", "B"}, PageNum: 10, Quantity: core.Quantity(2)}))
	require.NoError(t, store.AddBorrower(ctx, &core.Borrower{Username: "u1", Name: "N"}))
	require.NoError(t, store.Checkout(ctx, "u1", "1"))

	var raw bson.M
	require.NoError(t, client.Database(db).Collection(booksCollection).FindOne(ctx, bson.M{"_id": "1"}).Decode(&raw))
	assert.Equal(t, "T", raw["title"])
	assert.EqualValues(t, 1, raw["holders"])

	var idx indexDoc
	err := client.Database(db).Collection(indexCollection).
		FindOne(ctx, bson.M{"_id": indexID{Attr: "author", Value: "B"}}).Decode(&idx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, idx.Keys)

	require.NoError(t, store.Return(ctx, "u1", "1"))
	require.NoError(t, store.DeleteBook(ctx, "1"))
	n, err := client.Database(db).Collection(indexCollection).CountDocuments(ctx, bson.M{"_id.attr": "author"})
	require.NoError(t, err)
	assert.Zero(t, n, "empty index documents are removed")
}

func TestStore_Closed(t *testing.T) {
	client := testClient(t)
	store, _ := newTestStore(t, client)
	require.NoError(t, store.Close())

	_, err := store.GetBook(context.Background(), "1")
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
	assert.ErrorIs(t, store.AddBook(context.Background(), &core.Book{ISBN: "1", PageNum: 1, Quantity: core.Quantity(1)}), storage.ErrStorageClosed)
}

package importer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/circulate"
	"github.com/poiesic/circulate/core"
	"github.com/poiesic/circulate/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `
books:
  - isbn: "1"
    title: Dune
    author: [Frank Herbert]
    page_num: 412
    quantity: 1
  - isbn: "2"
    title: Emma
    page_num: 300
  - isbn: "1"
    title: Duplicate
    page_num: 10
  - isbn: "3"
borrowers:
  - username: ann
    name: Ann
  - username: bob
checkouts:
  - username: ann
    isbn: "1"
  - username: ann
    isbn: "1"
  - username: bob
    isbn: "2"
  - username: carl
    isbn: "2"
`

func newTestImporter(t *testing.T, opts ...Option) (*Importer, *circulate.Library) {
	t.Helper()
	lib := circulate.New(memory.NewStore())
	t.Cleanup(func() { lib.Close() })
	im, err := New(lib, opts...)
	require.NoError(t, err)
	t.Cleanup(im.Release)
	return im, lib
}

func TestReadCatalog(t *testing.T) {
	cat, err := ReadCatalog(strings.NewReader(testCatalog))
	require.NoError(t, err)
	require.Len(t, cat.Books, 4)
	require.Len(t, cat.Checkouts, 4)
	assert.Equal(t, core.Book{ISBN: "1", Title: "Dune", Author: []string{"Frank Herbert"}, PageNum: 412, Quantity: core.Quantity(1)}, cat.Books[0])
	assert.Len(t, cat.Borrowers, 2)
	assert.Equal(t, Checkout{Username: "carl", ISBN: "2"}, cat.Checkouts[3])
}

func TestReadCatalog_Empty(t *testing.T) {
	cat, err := ReadCatalog(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, cat.Books)
}

func TestReadCatalog_Invalid(t *testing.T) {
	_, err := ReadCatalog(strings.NewReader("books:\n  - isbn: 1\n    page_num: many\n"))
	assert.ErrorIs(t, err, ErrInvalidCatalog)
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o644))
	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	assert.Len(t, cat.Books, 4)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNew_RequiresTarget(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrTargetRequired)
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	im, lib := newTestImporter(t, WithPoolSize(4))

	cat, err := ReadCatalog(strings.NewReader(testCatalog))
	require.NoError(t, err)
	report, err := im.Import(ctx, cat)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Books)
	assert.Equal(t, 2, report.Borrowers)
	assert.Equal(t, 2, report.Checkouts)

	codes := map[string]string{}
	for _, f := range report.Failures {
		codes[f.Kind+":"+f.Key] = f.Code()
	}
	assert.Equal(t, map[string]string{
		"book:1":          "book_exist_already",
		"book:3":          "required_positive_field_book.page_num",
		"checkout:ann/1":  "book_already_borrowed",
		"checkout:carl/2": "borrower_not_exists",
	}, codes)

	holders, err := lib.GetBookBorrowers(ctx, "1")
	require.NoError(t, err)
	require.Len(t, holders, 1)
	assert.Equal(t, "ann", holders[0].Username)
}

func TestImport_FailuresAreSorted(t *testing.T) {
	ctx := context.Background()
	im, _ := newTestImporter(t)

	cat := &Catalog{Checkouts: []Checkout{{"z", "1"}, {"a", "1"}, {"m", "1"}}}
	report, err := im.Import(ctx, cat)
	require.NoError(t, err)
	require.Len(t, report.Failures, 3)
	assert.Equal(t, "a/1", report.Failures[0].Key)
	assert.Equal(t, "m/1", report.Failures[1].Key)
	assert.Equal(t, "z/1", report.Failures[2].Key)
}

func TestImport_CancelledContext(t *testing.T) {
	im, _ := newTestImporter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := im.Import(ctx, &Catalog{Books: []core.Book{{ISBN: "1", PageNum: 1}}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImport_ReleasedPool(t *testing.T) {
	im, _ := newTestImporter(t)
	im.Release()

	_, err := im.Import(context.Background(), &Catalog{Books: []core.Book{{ISBN: "1", PageNum: 1}}})
	assert.Error(t, err)
}

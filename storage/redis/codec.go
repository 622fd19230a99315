package redis

import (
	"fmt"
	"strconv"

	"github.com/poiesic/circulate/core"
	"github.com/poiesic/circulate/storage"
)

// Hash field names. Authors live in their own list key.
const (
	fieldISBN     = "isbn"
	fieldTitle    = "title"
	fieldPageNum  = "page_num"
	fieldQuantity = "quantity"
	fieldUsername = "username"
	fieldName     = "name"
	fieldPhone    = "phone"
)

// encodeBook converts a book to hash fields, dropping absent optional fields.
// The author list is written separately.
func encodeBook(book *core.Book) map[string]any {
	fields := map[string]any{
		fieldISBN:     book.ISBN,
		fieldPageNum:  strconv.Itoa(book.PageNum),
		fieldQuantity: strconv.Itoa(book.Copies()),
	}
	if book.Title != "" {
		fields[fieldTitle] = book.Title
	}
	return fields
}

// encodeAuthors converts the author list to list elements, in order.
func encodeAuthors(book *core.Book) []any {
	authors := make([]any, len(book.Author))
	for i, a := range book.Author {
		authors[i] = a
	}
	return authors
}

// decodeBook restores a book from its hash fields and author list. An empty
// map means the book doesn't exist and yields nil.
func decodeBook(fields map[string]string, authors []string) (*core.Book, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	book := &core.Book{
		ISBN:  fields[fieldISBN],
		Title: fields[fieldTitle],
	}
	if len(authors) > 0 {
		book.Author = authors
	}
	var err error
	if book.PageNum, err = core.ParseCount(fieldPageNum, fields[fieldPageNum]); err != nil {
		return nil, fmt.Errorf("%w: book %s: %w", storage.ErrSerializationFailed, book.ISBN, err)
	}
	if text, ok := fields[fieldQuantity]; ok {
		quantity, err := core.ParseCount(fieldQuantity, text)
		if err != nil {
			return nil, fmt.Errorf("%w: book %s: %w", storage.ErrSerializationFailed, book.ISBN, err)
		}
		book.Quantity = core.Quantity(quantity)
	}
	return book, nil
}

func encodeBorrower(borrower *core.Borrower) map[string]any {
	fields := map[string]any{fieldUsername: borrower.Username}
	if borrower.Name != "" {
		fields[fieldName] = borrower.Name
	}
	if borrower.Phone != "" {
		fields[fieldPhone] = borrower.Phone
	}
	return fields
}

func decodeBorrower(fields map[string]string) *core.Borrower {
	if len(fields) == 0 {
		return nil
	}
	return &core.Borrower{
		Username: fields[fieldUsername],
		Name:     fields[fieldName],
		Phone:    fields[fieldPhone],
	}
}

package core

import (
	"encoding/binary"
	"slices"

	"github.com/go-crypt/x/blake2b"
)

// Fingerprint hashes an attribute value into a fixed-width 64-bit digest using
// BLAKE2b. Identical values always produce identical fingerprints, which lets
// storage backends build fixed-length index keys out of free-form text.
func Fingerprint(text string) uint64 {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum)
}

// Entity names used in keys and error codes.
const (
	EntityBook     = "book"
	EntityBorrower = "borrower"
)

// Attribute identifies an indexed entity attribute.
type Attribute string

const (
	// AttrTitle indexes books by title.
	AttrTitle Attribute = "title"
	// AttrAuthor indexes books by each of their authors.
	AttrAuthor Attribute = "author"
	// AttrName indexes borrowers by name.
	AttrName Attribute = "name"
)

// BookAttributes lists the indexed book attributes.
var BookAttributes = []Attribute{AttrTitle, AttrAuthor}

// BorrowerAttributes lists the indexed borrower attributes.
var BorrowerAttributes = []Attribute{AttrName}

// Entity returns the entity type the attribute belongs to.
func (a Attribute) Entity() string {
	if a == AttrName {
		return EntityBorrower
	}
	return EntityBook
}

// MultiValued reports whether an entity can hold several values for the attribute.
func (a Attribute) MultiValued() bool {
	return a == AttrAuthor
}

// Book is a catalog entry identified by its ISBN.
// Zero values mark absent fields: an empty Title, an empty Author list and
// PageNum 0. Quantity is nil when not given; a given quantity is kept even
// when it is zero so validation can reject it.
type Book struct {
	ISBN     string   `json:"isbn" yaml:"isbn"`
	Title    string   `json:"title,omitempty" yaml:"title,omitempty"`
	Author   []string `json:"author,omitempty" yaml:"author,omitempty"`
	PageNum  int      `json:"page_num,omitempty" yaml:"page_num,omitempty"`
	Quantity *int     `json:"quantity,omitempty" yaml:"quantity,omitempty"`
}

// Quantity returns a pointer to n for use as Book.Quantity.
func Quantity(n int) *int {
	return &n
}

// Copies returns the number of copies held, or 0 when quantity is not given.
func (b *Book) Copies() int {
	if b == nil || b.Quantity == nil {
		return 0
	}
	return *b.Quantity
}

// Clone returns a deep copy of the book.
func (b *Book) Clone() *Book {
	if b == nil {
		return nil
	}
	c := *b
	if len(b.Author) > 0 {
		c.Author = slices.Clone(b.Author)
	} else {
		c.Author = nil
	}
	if b.Quantity != nil {
		c.Quantity = Quantity(*b.Quantity)
	}
	return &c
}

// Equal compares two books over isbn, title, author, page_num and quantity.
func (b *Book) Equal(other *Book) bool {
	if b == nil || other == nil {
		return b == other
	}
	return b.ISBN == other.ISBN &&
		b.Title == other.Title &&
		slices.Equal(b.Author, other.Author) &&
		b.PageNum == other.PageNum &&
		(b.Quantity == nil) == (other.Quantity == nil) &&
		b.Copies() == other.Copies()
}

// Values returns the indexed values the book holds for attr.
func (b *Book) Values(attr Attribute) []string {
	if b == nil {
		return nil
	}
	switch attr {
	case AttrTitle:
		if b.Title == "" {
			return nil
		}
		return []string{b.Title}
	case AttrAuthor:
		return b.Author
	}
	return nil
}

// Borrower is a library patron identified by username.
type Borrower struct {
	Username string `json:"username" yaml:"username"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Phone    string `json:"phone,omitempty" yaml:"phone,omitempty"`
}

// Clone returns a copy of the borrower.
func (b *Borrower) Clone() *Borrower {
	if b == nil {
		return nil
	}
	c := *b
	return &c
}

// Equal compares two borrowers over username, name and phone.
func (b *Borrower) Equal(other *Borrower) bool {
	if b == nil || other == nil {
		return b == other
	}
	return *b == *other
}

// Values returns the indexed values the borrower holds for attr.
func (b *Borrower) Values(attr Attribute) []string {
	if b == nil || attr != AttrName || b.Name == "" {
		return nil
	}
	return []string{b.Name}
}

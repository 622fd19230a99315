package mongo

import "github.com/poiesic/circulate/core"

// Collection names.
const (
	booksCollection     = "books"
	borrowersCollection = "borrowers"
	indexCollection     = "attribute_index"
	checkoutsCollection = "checkouts"
	countersCollection  = "counters"
)

// bookDoc is the stored form of a book. Holders counts the borrowers
// currently holding a copy; every checkout and return writes it, so
// transactions that check capacity on the same book conflict.
type bookDoc struct {
	ISBN     string   `bson:"_id"`
	Title    string   `bson:"title,omitempty"`
	Author   []string `bson:"author,omitempty"`
	PageNum  int      `bson:"page_num"`
	Quantity int      `bson:"quantity"`
	Seq      int64    `bson:"seq"`
	Holders  int      `bson:"holders"`
}

func (d *bookDoc) book() *core.Book {
	b := &core.Book{
		ISBN:     d.ISBN,
		Title:    d.Title,
		PageNum:  d.PageNum,
		Quantity: core.Quantity(d.Quantity),
	}
	if len(d.Author) > 0 {
		b.Author = d.Author
	}
	return b
}

type borrowerDoc struct {
	Username string `bson:"_id"`
	Name     string `bson:"name,omitempty"`
	Phone    string `bson:"phone,omitempty"`
	Held     int    `bson:"held"`
}

func (d *borrowerDoc) borrower() *core.Borrower {
	return &core.Borrower{Username: d.Username, Name: d.Name, Phone: d.Phone}
}

type indexID struct {
	Attr  string `bson:"attr"`
	Value string `bson:"value"`
}

type indexDoc struct {
	ID   indexID  `bson:"_id"`
	Keys []string `bson:"keys"`
}

type checkoutID struct {
	Username string `bson:"username"`
	ISBN     string `bson:"isbn"`
}

type checkoutDoc struct {
	ID       checkoutID `bson:"_id"`
	Username string     `bson:"username"`
	ISBN     string     `bson:"isbn"`
}

// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"fmt"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/circulate/core"
)

// BookMUS is the MUS serializer for core.Book.
// Layout: isbn, title, author count, authors, page_num, quantity.
var BookMUS = bookMUS{}

// BorrowerMUS is the MUS serializer for core.Borrower.
// Layout: username, name, phone.
var BorrowerMUS = borrowerMUS{}

type bookMUS struct{}

func (bookMUS) Marshal(v core.Book, bs []byte) (n int) {
	n = ord.String.Marshal(v.ISBN, bs)
	n += ord.String.Marshal(v.Title, bs[n:])
	n += varint.Int.Marshal(len(v.Author), bs[n:])
	for _, a := range v.Author {
		n += ord.String.Marshal(a, bs[n:])
	}
	n += varint.Int.Marshal(v.PageNum, bs[n:])
	n += varint.Int.Marshal(v.Copies(), bs[n:])
	return n
}

func (bookMUS) Unmarshal(bs []byte) (v core.Book, n int, err error) {
	var n1 int
	if v.ISBN, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if v.Title, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	var count int
	if count, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if count < 0 || count > len(bs)-n {
		err = fmt.Errorf("invalid author count %d", count)
		return
	}
	if count > 0 {
		v.Author = make([]string, count)
		for i := range v.Author {
			if v.Author[i], n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
				return
			}
			n += n1
		}
	}
	if v.PageNum, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	var quantity int
	if quantity, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	v.Quantity = core.Quantity(quantity)
	return
}

func (bookMUS) Size(v core.Book) (size int) {
	size = ord.String.Size(v.ISBN)
	size += ord.String.Size(v.Title)
	size += varint.Int.Size(len(v.Author))
	for _, a := range v.Author {
		size += ord.String.Size(a)
	}
	size += varint.Int.Size(v.PageNum)
	return size + varint.Int.Size(v.Copies())
}

func (s bookMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

type borrowerMUS struct{}

func (borrowerMUS) Marshal(v core.Borrower, bs []byte) (n int) {
	n = ord.String.Marshal(v.Username, bs)
	n += ord.String.Marshal(v.Name, bs[n:])
	return n + ord.String.Marshal(v.Phone, bs[n:])
}

func (borrowerMUS) Unmarshal(bs []byte) (v core.Borrower, n int, err error) {
	var n1 int
	if v.Username, n, err = ord.String.Unmarshal(bs); err != nil {
		return
	}
	if v.Name, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	v.Phone, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	return
}

func (borrowerMUS) Size(v core.Borrower) (size int) {
	return ord.String.Size(v.Username) + ord.String.Size(v.Name) + ord.String.Size(v.Phone)
}

func (s borrowerMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

// MarshalBook serializes a Book to bytes.
func MarshalBook(book *core.Book) []byte {
	buf := make([]byte, BookMUS.Size(*book))
	BookMUS.Marshal(*book, buf)
	return buf
}

// UnmarshalBook deserializes a Book from bytes.
func UnmarshalBook(data []byte) (*core.Book, error) {
	book, _, err := BookMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: book: %v", ErrSerializationFailed, err)
	}
	return &book, nil
}

// MarshalBorrower serializes a Borrower to bytes.
func MarshalBorrower(borrower *core.Borrower) []byte {
	buf := make([]byte, BorrowerMUS.Size(*borrower))
	BorrowerMUS.Marshal(*borrower, buf)
	return buf
}

// UnmarshalBorrower deserializes a Borrower from bytes.
func UnmarshalBorrower(data []byte) (*core.Borrower, error) {
	borrower, _, err := BorrowerMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: borrower: %v", ErrSerializationFailed, err)
	}
	return &borrower, nil
}

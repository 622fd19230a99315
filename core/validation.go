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

package core

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultQuantity is the number of copies assumed when none is given.
const DefaultQuantity = 1

// ValidateBook validates a Book before it is added to the catalog.
//
// Validation rules, checked in order:
//   - ISBN must not be empty
//   - PageNum must be a positive integer
//   - Quantity must be positive when given; nil means unspecified
//
// NOT validated:
//   - Title and Author (both optional)
func ValidateBook(book *Book) error {
	if book == nil || book.ISBN == "" {
		return RequiredField(EntityBook, "isbn")
	}
	if book.PageNum <= 0 {
		return RequiredPositiveField(EntityBook, "page_num")
	}
	if book.Quantity != nil && *book.Quantity <= 0 {
		return PositiveField(EntityBook, "quantity")
	}
	return nil
}

// ApplyBookDefaults fills in defaulted fields of a validated book.
func ApplyBookDefaults(book *Book) {
	if book.Quantity == nil {
		book.Quantity = Quantity(DefaultQuantity)
	}
	if len(book.Author) == 0 {
		book.Author = nil
	}
}

// ValidateBookPatch validates the fields of an edit patch.
// Zero title, author and page_num are "not given" and pass. A given quantity
// must be positive.
func ValidateBookPatch(patch *Book) error {
	if patch == nil {
		return nil
	}
	if patch.PageNum < 0 {
		return PositiveField(EntityBook, "page_num")
	}
	if patch.Quantity != nil && *patch.Quantity <= 0 {
		return PositiveField(EntityBook, "quantity")
	}
	return nil
}

// ValidateBorrower validates a Borrower before registration.
// Username is required; Name and Phone are optional.
func ValidateBorrower(borrower *Borrower) error {
	if borrower == nil || borrower.Username == "" {
		return RequiredField(EntityBorrower, "username")
	}
	return nil
}

// ParseCount parses decimal text for a numeric field such as page_num or quantity.
// Empty text yields 0 (absent). Anything that is not an integer is rejected.
func ParseCount(field, text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidNumber, field, text)
	}
	return n, nil
}

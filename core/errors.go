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
	"errors"
	"strings"
)

// Code is a stable, machine-readable failure identifier.
type Code string

// Kind groups codes by the reason an operation was refused.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValidation marks malformed input rejected before any mutation.
	KindValidation
	// KindNotFound marks a reference to a nonexistent book or borrower.
	KindNotFound
	// KindConflict marks a state transition that is invalid given current state.
	KindConflict
	// KindCapacity marks a checkout refused because no copies are free.
	KindCapacity
	// KindInvariant marks a delete or shrink blocked by active checkouts.
	KindInvariant
)

// Error is a failure carrying a stable code. Two errors match under errors.Is
// when their codes are equal.
type Error struct {
	Code Code
}

func (e *Error) Error() string {
	return string(e.Code)
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Kind classifies the error code.
func (e *Error) Kind() Kind {
	code := string(e.Code)
	switch {
	case strings.HasPrefix(code, "required_field_"),
		strings.HasPrefix(code, "required_positive_field_"),
		strings.HasPrefix(code, "positive_field_"):
		return KindValidation
	case strings.HasSuffix(code, "_not_exists"):
		return KindNotFound
	case e.Code == ErrBookNotAvailable.Code:
		return KindCapacity
	case e.Code == ErrBookBorrowed.Code:
		return KindInvariant
	case e.Code == ErrBookExists.Code,
		e.Code == ErrBorrowerExists.Code,
		e.Code == ErrBookAlreadyBorrowed.Code,
		e.Code == ErrBookNotBorrowed.Code:
		return KindConflict
	}
	return KindUnknown
}

// Domain failures
var (
	// ErrBookNotExists indicates the referenced ISBN is not in the catalog.
	ErrBookNotExists = &Error{Code: "book_not_exists"}

	// ErrBorrowerNotExists indicates the referenced username is not registered.
	ErrBorrowerNotExists = &Error{Code: "borrower_not_exists"}

	// ErrBookExists indicates a book with the same ISBN is already stored.
	ErrBookExists = &Error{Code: "book_exist_already"}

	// ErrBorrowerExists indicates a borrower with the same username is already stored.
	ErrBorrowerExists = &Error{Code: "borrower_already_exists"}

	// ErrBookAlreadyBorrowed indicates the borrower already holds a copy of the book.
	ErrBookAlreadyBorrowed = &Error{Code: "book_already_borrowed"}

	// ErrBookNotAvailable indicates every copy of the book is checked out.
	ErrBookNotAvailable = &Error{Code: "book_not_available"}

	// ErrBookBorrowed indicates active checkouts block a delete or a quantity shrink.
	ErrBookBorrowed = &Error{Code: "book_borrowed"}

	// ErrBookNotBorrowed indicates a return for a book the borrower does not hold.
	ErrBookNotBorrowed = &Error{Code: "book_not_borrowed"}
)

// ErrInvalidNumber indicates numeric text that does not parse as an integer.
var ErrInvalidNumber = errors.New("invalid number")

// RequiredField reports a missing required field.
func RequiredField(entity, field string) *Error {
	return &Error{Code: Code("required_field_" + entity + "." + field)}
}

// RequiredPositiveField reports a missing or non-positive required numeric field.
func RequiredPositiveField(entity, field string) *Error {
	return &Error{Code: Code("required_positive_field_" + entity + "." + field)}
}

// PositiveField reports an optional numeric field given a non-positive value.
func PositiveField(entity, field string) *Error {
	return &Error{Code: Code("positive_field_" + entity + "." + field)}
}

// CodeOf returns the code carried by err, if any.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// KindOf classifies err, returning KindUnknown for uncoded errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind()
	}
	return KindUnknown
}

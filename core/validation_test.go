package core

import (
	"errors"
	"testing"
)

func TestValidateBook(t *testing.T) {
	tests := []struct {
		name     string
		book     *Book
		wantCode Code
	}{
		{
			name: "valid book",
			book: &Book{ISBN: "1", Title: "A", Author: []string{"X"}, PageNum: 200, Quantity: Quantity(3)},
		},
		{
			name: "valid book without quantity",
			book: &Book{ISBN: "1", PageNum: 200},
		},
		{
			name:     "nil book",
			book:     nil,
			wantCode: "required_field_book.isbn",
		},
		{
			name:     "missing isbn",
			book:     &Book{PageNum: 200},
			wantCode: "required_field_book.isbn",
		},
		{
			name:     "missing page_num",
			book:     &Book{ISBN: "1"},
			wantCode: "required_positive_field_book.page_num",
		},
		{
			name:     "negative page_num",
			book:     &Book{ISBN: "1", PageNum: -5},
			wantCode: "required_positive_field_book.page_num",
		},
		{
			name:     "negative quantity",
			book:     &Book{ISBN: "1", PageNum: 10, Quantity: Quantity(-1)},
			wantCode: "positive_field_book.quantity",
		},
		{
			name:     "zero quantity given",
			book:     &Book{ISBN: "1", PageNum: 10, Quantity: Quantity(0)},
			wantCode: "positive_field_book.quantity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBook(tt.book)
			if tt.wantCode == "" {
				if err != nil {
					t.Errorf("ValidateBook() error = %v, want nil", err)
				}
				return
			}
			code, ok := CodeOf(err)
			if !ok || code != tt.wantCode {
				t.Errorf("ValidateBook() error = %v, want code %s", err, tt.wantCode)
			}
			if KindOf(err) != KindValidation {
				t.Errorf("KindOf() = %v, want KindValidation", KindOf(err))
			}
		})
	}
}

func TestApplyBookDefaults(t *testing.T) {
	book := &Book{ISBN: "1", PageNum: 10, Author: []string{}}
	ApplyBookDefaults(book)

	if book.Copies() != DefaultQuantity {
		t.Errorf("Quantity = %d, want %d", book.Copies(), DefaultQuantity)
	}
	if book.Author != nil {
		t.Errorf("empty author list should normalize to nil")
	}

	explicit := &Book{ISBN: "2", PageNum: 10, Quantity: Quantity(4)}
	ApplyBookDefaults(explicit)
	if explicit.Copies() != 4 {
		t.Errorf("Quantity = %d, want 4", explicit.Copies())
	}
}

func TestValidateBookPatch(t *testing.T) {
	if err := ValidateBookPatch(&Book{}); err != nil {
		t.Errorf("empty patch should be valid, got %v", err)
	}
	if err := ValidateBookPatch(nil); err != nil {
		t.Errorf("nil patch should be valid, got %v", err)
	}
	if !errors.Is(ValidateBookPatch(&Book{PageNum: -1}), PositiveField(EntityBook, "page_num")) {
		t.Errorf("negative page_num should be rejected")
	}
	if !errors.Is(ValidateBookPatch(&Book{Quantity: Quantity(-1)}), PositiveField(EntityBook, "quantity")) {
		t.Errorf("negative quantity should be rejected")
	}
	if !errors.Is(ValidateBookPatch(&Book{Quantity: Quantity(0)}), PositiveField(EntityBook, "quantity")) {
		t.Errorf("a given zero quantity should be rejected")
	}
}

func TestValidateBorrower(t *testing.T) {
	if err := ValidateBorrower(&Borrower{Username: "u1"}); err != nil {
		t.Errorf("ValidateBorrower() error = %v", err)
	}
	for _, b := range []*Borrower{nil, {Name: "Fred"}} {
		err := ValidateBorrower(b)
		if !errors.Is(err, RequiredField(EntityBorrower, "username")) {
			t.Errorf("ValidateBorrower(%v) error = %v", b, err)
		}
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		text    string
		want    int
		wantErr bool
	}{
		{"1", 1, false},
		{"10", 10, false},
		{" 42 ", 42, false},
		{"", 0, false},
		{"one", 0, true},
		{"1.5", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := ParseCount("page_num", tt.text)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidNumber) {
					t.Errorf("ParseCount(%q) error = %v, want ErrInvalidNumber", tt.text, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseCount(%q) = %d, %v; want %d", tt.text, got, err, tt.want)
			}
		})
	}
}

func TestErrorMatching(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), ErrBookNotAvailable)
	if !errors.Is(wrapped, &Error{Code: "book_not_available"}) {
		t.Errorf("errors.Is should match by code")
	}
	if errors.Is(ErrBookNotAvailable, ErrBookBorrowed) {
		t.Errorf("distinct codes must not match")
	}

	kinds := map[*Error]Kind{
		ErrBookNotExists:       KindNotFound,
		ErrBorrowerNotExists:   KindNotFound,
		ErrBookExists:          KindConflict,
		ErrBorrowerExists:      KindConflict,
		ErrBookAlreadyBorrowed: KindConflict,
		ErrBookNotBorrowed:     KindConflict,
		ErrBookNotAvailable:    KindCapacity,
		ErrBookBorrowed:        KindInvariant,
	}
	for err, want := range kinds {
		if got := err.Kind(); got != want {
			t.Errorf("%s.Kind() = %v, want %v", err.Code, got, want)
		}
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Errorf("uncoded errors should be KindUnknown")
	}
}

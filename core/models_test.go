package core

import (
	"encoding/json"
	"testing"
)

func TestFingerprint(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "plain title", content: "book title"},
		{name: "empty string", content: ""},
		{name: "separator characters", content: "a:b;c\x00d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Fingerprint(tt.content) != Fingerprint(tt.content) {
				t.Errorf("Fingerprint() is not deterministic for %q", tt.content)
			}
		})
	}
}

func TestFingerprint_Different(t *testing.T) {
	if Fingerprint("a") == Fingerprint("a:") {
		t.Errorf("Fingerprint() produced same digest for different content")
	}
}

func TestAttribute(t *testing.T) {
	tests := []struct {
		attr        Attribute
		entity      string
		multiValued bool
	}{
		{AttrTitle, EntityBook, false},
		{AttrAuthor, EntityBook, true},
		{AttrName, EntityBorrower, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.attr), func(t *testing.T) {
			if got := tt.attr.Entity(); got != tt.entity {
				t.Errorf("Entity() = %q, want %q", got, tt.entity)
			}
			if got := tt.attr.MultiValued(); got != tt.multiValued {
				t.Errorf("MultiValued() = %v, want %v", got, tt.multiValued)
			}
		})
	}
}

func TestBook_Values(t *testing.T) {
	book := &Book{ISBN: "1", Title: "A", Author: []string{"X", "Y"}, PageNum: 10}

	if got := book.Values(AttrTitle); len(got) != 1 || got[0] != "A" {
		t.Errorf("Values(title) = %v", got)
	}
	if got := book.Values(AttrAuthor); len(got) != 2 {
		t.Errorf("Values(author) = %v", got)
	}
	if got := book.Values(AttrName); got != nil {
		t.Errorf("Values(name) = %v, want nil", got)
	}

	untitled := &Book{ISBN: "2"}
	if got := untitled.Values(AttrTitle); got != nil {
		t.Errorf("Values(title) on untitled book = %v, want nil", got)
	}

	var missing *Book
	if got := missing.Values(AttrTitle); got != nil {
		t.Errorf("Values on nil book = %v, want nil", got)
	}
}

func TestBook_CloneIsDeep(t *testing.T) {
	book := &Book{ISBN: "1", Author: []string{"X"}}
	clone := book.Clone()
	clone.Author[0] = "changed"

	if book.Author[0] != "X" {
		t.Errorf("Clone() shares the author slice")
	}
	if !book.Equal(&Book{ISBN: "1", Author: []string{"X"}}) {
		t.Errorf("original modified by clone")
	}
}

func TestBook_Equal(t *testing.T) {
	a := &Book{ISBN: "1", Title: "A", Author: []string{"X"}, PageNum: 200, Quantity: Quantity(3)}

	tests := []struct {
		name  string
		other *Book
		want  bool
	}{
		{"identical", &Book{ISBN: "1", Title: "A", Author: []string{"X"}, PageNum: 200, Quantity: Quantity(3)}, true},
		{"different quantity", &Book{ISBN: "1", Title: "A", Author: []string{"X"}, PageNum: 200, Quantity: Quantity(2)}, false},
		{"different authors", &Book{ISBN: "1", Title: "A", Author: []string{"Y"}, PageNum: 200, Quantity: Quantity(3)}, false},
		{"quantity not given", &Book{ISBN: "1", Title: "A", Author: []string{"X"}, PageNum: 200}, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Equal(tt.other); got != tt.want {
				t.Errorf("Equal() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBorrower_Values(t *testing.T) {
	b := &Borrower{Username: "u1", Name: "Fred"}
	if got := b.Values(AttrName); len(got) != 1 || got[0] != "Fred" {
		t.Errorf("Values(name) = %v", got)
	}
	if got := (&Borrower{Username: "u2"}).Values(AttrName); got != nil {
		t.Errorf("Values(name) for unnamed borrower = %v, want nil", got)
	}
}

func TestBook_QuantityPresence(t *testing.T) {
	var given Book
	if err := json.Unmarshal([]byte(`{"isbn":"1","quantity":0}`), &given); err != nil {
		t.Fatal(err)
	}
	if given.Quantity == nil || given.Copies() != 0 {
		t.Errorf("a given zero quantity must survive decoding, got %v", given.Quantity)
	}

	var absent Book
	if err := json.Unmarshal([]byte(`{"isbn":"1"}`), &absent); err != nil {
		t.Fatal(err)
	}
	if absent.Quantity != nil {
		t.Errorf("absent quantity decoded as %d", *absent.Quantity)
	}

	clone := given.Clone()
	*clone.Quantity = 7
	if given.Copies() != 0 {
		t.Errorf("Clone() shares the quantity")
	}
}

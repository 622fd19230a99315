package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeBook(t *testing.T) {
	current := Book{ISBN: "1", Title: "A", Author: []string{"X", "Y"}, PageNum: 200, Quantity: Quantity(3)}

	tests := []struct {
		name     string
		patch    Book
		override bool
		want     Book
	}{
		{
			name:  "empty patch is a no-op",
			patch: Book{},
			want:  current,
		},
		{
			name:  "title only",
			patch: Book{Title: "B"},
			want:  Book{ISBN: "1", Title: "B", Author: []string{"X", "Y"}, PageNum: 200, Quantity: Quantity(3)},
		},
		{
			name:  "isbn in patch is ignored",
			patch: Book{ISBN: "9", PageNum: 50},
			want:  Book{ISBN: "1", Title: "A", Author: []string{"X", "Y"}, PageNum: 50, Quantity: Quantity(3)},
		},
		{
			name:  "author list replaced",
			patch: Book{Author: []string{"Z"}},
			want:  Book{ISBN: "1", Title: "A", Author: []string{"Z"}, PageNum: 200, Quantity: Quantity(3)},
		},
		{
			name:     "override clears optional fields",
			patch:    Book{},
			override: true,
			want:     Book{ISBN: "1", PageNum: 200, Quantity: Quantity(3)},
		},
		{
			name:     "override keeps required fields when zero",
			patch:    Book{Title: "C", Quantity: Quantity(5)},
			override: true,
			want:     Book{ISBN: "1", Title: "C", PageNum: 200, Quantity: Quantity(5)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeBook(current, tt.patch, tt.override)
			assert.True(t, tt.want.Equal(&got), "got %+v, want %+v", got, tt.want)
		})
	}

	assert.Equal(t, []string{"X", "Y"}, current.Author, "current must not be modified")
}

func TestMergeBorrower(t *testing.T) {
	current := Borrower{Username: "u1", Name: "Fred", Phone: "111"}

	assert.Equal(t, current, MergeBorrower(current, Borrower{}, false))
	assert.Equal(t, Borrower{Username: "u1", Name: "Fred", Phone: "300"},
		MergeBorrower(current, Borrower{Phone: "300"}, false))
	assert.Equal(t, Borrower{Username: "u1", Phone: "300"},
		MergeBorrower(current, Borrower{Phone: "300"}, true))
	assert.Equal(t, Borrower{Username: "u1", Name: "Fred", Phone: "111"},
		MergeBorrower(current, Borrower{Username: "other"}, false))
}

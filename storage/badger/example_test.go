package badger_test

import (
	"context"
	"fmt"
	"log"

	"github.com/poiesic/circulate/core"
	"github.com/poiesic/circulate/storage/badger"
)

func ExampleOpen() {
	store, err := badger.Open("", true)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	book := &core.Book{ISBN: "1", Title: "Dune", PageNum: 412, Quantity: core.Quantity(2)}
	if err := store.AddBook(ctx, book); err != nil {
		log.Fatal(err)
	}
	got, err := store.GetBook(ctx, "1")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(got.Title, got.Copies())
	// Output: Dune 2
}

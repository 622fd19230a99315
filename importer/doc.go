// Package importer loads catalogs of books, borrowers and checkouts into a
// library concurrently.
//
// A catalog is a YAML document:
//
//	books:
//	  - isbn: "978-0"
//	    title: Dune
//	    author: [Frank Herbert]
//	    page_num: 412
//	    quantity: 2
//	borrowers:
//	  - username: ann
//	    name: Ann
//	checkouts:
//	  - username: ann
//	    isbn: "978-0"
//
// Books and borrowers are added first, on a shared worker pool, and the
// checkouts after all of them have been attempted. A failing entry is
// recorded in the Report and does not stop the run.
package importer

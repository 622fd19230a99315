package memory

import (
	"context"
	"slices"

	"github.com/poiesic/circulate/core"
)

func (s *Store) Checkout(ctx context.Context, username, isbn string) error {
	leave, err := s.enter()
	if err != nil {
		return err
	}
	defer leave()
	defer s.lock(core.EntityBorrower, username)()
	defer s.lock(core.EntityBook, isbn)()

	if _, ok := s.borrowers.Load(username); !ok {
		return core.ErrBorrowerNotExists
	}
	rec, ok := s.books.Load(isbn)
	if !ok {
		return core.ErrBookNotExists
	}
	holders, _ := s.holders.Load(isbn)
	if _, ok := holders[username]; ok {
		return core.ErrBookAlreadyBorrowed
	}
	if len(holders) >= rec.book.Copies() {
		return core.ErrBookNotAvailable
	}

	addMember(s.holders, isbn, username)
	addMember(s.held, username, isbn)
	return nil
}

func (s *Store) Return(ctx context.Context, username, isbn string) error {
	leave, err := s.enter()
	if err != nil {
		return err
	}
	defer leave()
	defer s.lock(core.EntityBorrower, username)()
	defer s.lock(core.EntityBook, isbn)()

	if _, ok := s.borrowers.Load(username); !ok {
		return core.ErrBorrowerNotExists
	}
	if _, ok := s.books.Load(isbn); !ok {
		return core.ErrBookNotExists
	}
	holders, _ := s.holders.Load(isbn)
	if _, ok := holders[username]; !ok {
		return core.ErrBookNotBorrowed
	}

	removeMember(s.holders, isbn, username)
	removeMember(s.held, username, isbn)
	return nil
}

func (s *Store) BookBorrowers(ctx context.Context, isbn string) ([]*core.Borrower, error) {
	leave, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	if _, ok := s.books.Load(isbn); !ok {
		return nil, core.ErrBookNotExists
	}
	holders, _ := s.holders.Load(isbn)
	borrowers := make([]*core.Borrower, 0, len(holders))
	for username := range holders {
		if borrower, ok := s.borrowers.Load(username); ok {
			borrowers = append(borrowers, borrower.Clone())
		}
	}
	return borrowers, nil
}

func (s *Store) BorrowedBooks(ctx context.Context, username string) ([]*core.Book, error) {
	leave, err := s.enter()
	if err != nil {
		return nil, err
	}
	defer leave()

	if _, ok := s.borrowers.Load(username); !ok {
		return nil, core.ErrBorrowerNotExists
	}
	held, _ := s.held.Load(username)
	books := make([]*core.Book, 0, len(held))
	for isbn := range held {
		if rec, ok := s.books.Load(isbn); ok {
			books = append(books, rec.book.Clone())
		}
	}
	return books, nil
}

func sortBySeq(records []bookRecord) {
	slices.SortFunc(records, func(a, b bookRecord) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		}
		return 0
	})
}

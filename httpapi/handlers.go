package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/poiesic/circulate"
	"github.com/poiesic/circulate/core"
)

func editOptions(r *http.Request) ([]circulate.EditOption, error) {
	raw := r.URL.Query().Get("override")
	if raw == "" {
		return nil, nil
	}
	override, err := strconv.ParseBool(raw)
	if err != nil || !override {
		return nil, err
	}
	return []circulate.EditOption{circulate.WithOverride()}, nil
}

func (s *Server) dropDB(w http.ResponseWriter, r *http.Request) {
	if err := s.lib.DropDB(r.Context()); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addBook(w http.ResponseWriter, r *http.Request) {
	var book core.Book
	if err := decode(r, &book); err != nil {
		s.badRequest(w, err)
		return
	}
	if err := s.lib.AddBook(r.Context(), book); err != nil {
		s.writeError(w, r, err)
		return
	}
	stored, err := s.lib.GetBook(r.Context(), book.ISBN)
	if err != nil || stored == nil {
		w.WriteHeader(http.StatusCreated)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// listBooks serves searches (?title=, ?author=) and sorted listings
// (?sort=title|author|isbn|page_num, default isbn).
func (s *Server) listBooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ctx := r.Context()

	var (
		books []*core.Book
		err   error
	)
	switch {
	case q.Has("title"):
		books, err = s.lib.SearchByTitle(ctx, q.Get("title"))
	case q.Has("author"):
		books, err = s.lib.SearchByAuthor(ctx, q.Get("author"))
	default:
		switch q.Get("sort") {
		case "title":
			books, err = s.lib.SortByTitle(ctx)
		case "author":
			books, err = s.lib.SortByAuthor(ctx)
		case "page_num":
			books, err = s.lib.SortByPageNum(ctx)
		case "isbn", "":
			books, err = s.lib.SortByISBN(ctx)
		default:
			writeJSON(w, http.StatusBadRequest, errorBody{Error: codeInvalidRequest})
			return
		}
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (s *Server) getBook(w http.ResponseWriter, r *http.Request) {
	book, err := s.lib.GetBook(r.Context(), mux.Vars(r)["isbn"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if book == nil {
		s.writeError(w, r, core.ErrBookNotExists)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) editBook(w http.ResponseWriter, r *http.Request) {
	opts, err := editOptions(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	var patch core.Book
	if err := decode(r, &patch); err != nil {
		s.badRequest(w, err)
		return
	}
	book, err := s.lib.EditBook(r.Context(), mux.Vars(r)["isbn"], patch, opts...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (s *Server) deleteBook(w http.ResponseWriter, r *http.Request) {
	if err := s.lib.DeleteBook(r.Context(), mux.Vars(r)["isbn"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) bookBorrowers(w http.ResponseWriter, r *http.Request) {
	borrowers, err := s.lib.GetBookBorrowers(r.Context(), mux.Vars(r)["isbn"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, borrowers)
}

func (s *Server) addBorrower(w http.ResponseWriter, r *http.Request) {
	var borrower core.Borrower
	if err := decode(r, &borrower); err != nil {
		s.badRequest(w, err)
		return
	}
	if err := s.lib.AddBorrower(r.Context(), borrower); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, borrower)
}

func (s *Server) searchBorrowers(w http.ResponseWriter, r *http.Request) {
	borrowers, err := s.lib.SearchByName(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, borrowers)
}

func (s *Server) getBorrower(w http.ResponseWriter, r *http.Request) {
	borrower, err := s.lib.GetBorrower(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if borrower == nil {
		s.writeError(w, r, core.ErrBorrowerNotExists)
		return
	}
	writeJSON(w, http.StatusOK, borrower)
}

func (s *Server) editBorrower(w http.ResponseWriter, r *http.Request) {
	opts, err := editOptions(r)
	if err != nil {
		s.badRequest(w, err)
		return
	}
	var patch core.Borrower
	if err := decode(r, &patch); err != nil {
		s.badRequest(w, err)
		return
	}
	borrower, err := s.lib.EditBorrower(r.Context(), mux.Vars(r)["username"], patch, opts...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, borrower)
}

func (s *Server) deleteBorrower(w http.ResponseWriter, r *http.Request) {
	if err := s.lib.DeleteBorrower(r.Context(), mux.Vars(r)["username"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) borrowedBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.lib.GetBorrowedBooks(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.lib.CheckoutBook(r.Context(), vars["username"], vars["isbn"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) returnBook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.lib.ReturnBook(r.Context(), vars["username"], vars["isbn"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package index

import (
	"context"
	"log/slog"
	"slices"

	"github.com/poiesic/circulate/core"
)

// Writer mutates one backend's inverted index structures.
// Add and Remove must be idempotent.
type Writer interface {
	// Add inserts key into the set stored at (attr, value).
	Add(ctx context.Context, attr core.Attribute, value, key string) error
	// Remove deletes key from the set stored at (attr, value).
	Remove(ctx context.Context, attr core.Attribute, value, key string) error
}

// Diff computes the membership changes between two value lists.
// Duplicates are collapsed and both results are sorted. Values present in
// both lists appear in neither result.
func Diff(oldValues, newValues []string) (removed, added []string) {
	oldSet := toSet(oldValues)
	newSet := toSet(newValues)
	for v := range oldSet {
		if _, ok := newSet[v]; !ok {
			removed = append(removed, v)
		}
	}
	for v := range newSet {
		if _, ok := oldSet[v]; !ok {
			added = append(added, v)
		}
	}
	slices.Sort(removed)
	slices.Sort(added)
	return removed, added
}

// Maintainer applies index changes through a Writer, counting every update
// and logging failures to its logger.
type Maintainer struct {
	logger *slog.Logger
}

// NewMaintainer returns a Maintainer that logs to logger, or to
// slog.Default() when logger is nil.
func NewMaintainer(logger *slog.Logger) *Maintainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Maintainer{logger: logger}
}

// Reindex moves key between the sets of attr so that it is a member exactly
// for the values in newValues. A single-valued attribute is passed as a
// one-element slice, and an absent value as an empty slice.
func (m *Maintainer) Reindex(ctx context.Context, w Writer, key string, attr core.Attribute, oldValues, newValues []string) error {
	removed, added := Diff(oldValues, newValues)
	if len(removed) == 0 && len(added) == 0 {
		return nil
	}

	for _, v := range removed {
		if err := w.Remove(ctx, attr, v, key); err != nil {
			m.reportFailure(attr, key, "remove", err)
			return err
		}
		updates.WithLabelValues(string(attr), "remove").Inc()
	}
	for _, v := range added {
		if err := w.Add(ctx, attr, v, key); err != nil {
			m.reportFailure(attr, key, "add", err)
			return err
		}
		updates.WithLabelValues(string(attr), "add").Inc()
	}
	return nil
}

// ReindexBook updates every book attribute index for a write.
// oldBook is nil on insert; newBook is nil on delete.
func (m *Maintainer) ReindexBook(ctx context.Context, w Writer, oldBook, newBook *core.Book) error {
	key := bookKey(oldBook, newBook)
	for _, attr := range core.BookAttributes {
		if err := m.Reindex(ctx, w, key, attr, oldBook.Values(attr), newBook.Values(attr)); err != nil {
			return err
		}
	}
	return nil
}

// ReindexBorrower updates every borrower attribute index for a write.
// oldBorrower is nil on insert; newBorrower is nil on delete.
func (m *Maintainer) ReindexBorrower(ctx context.Context, w Writer, oldBorrower, newBorrower *core.Borrower) error {
	key := borrowerKey(oldBorrower, newBorrower)
	for _, attr := range core.BorrowerAttributes {
		if err := m.Reindex(ctx, w, key, attr, oldBorrower.Values(attr), newBorrower.Values(attr)); err != nil {
			return err
		}
	}
	return nil
}

func bookKey(oldBook, newBook *core.Book) string {
	if newBook != nil {
		return newBook.ISBN
	}
	if oldBook != nil {
		return oldBook.ISBN
	}
	return ""
}

func borrowerKey(oldBorrower, newBorrower *core.Borrower) string {
	if newBorrower != nil {
		return newBorrower.Username
	}
	if oldBorrower != nil {
		return oldBorrower.Username
	}
	return ""
}

// reportFailure records an index mutation that did not complete. The caller's
// write is aborted where the backend is transactional; otherwise the index may
// be stale until the entity is written again.
func (m *Maintainer) reportFailure(attr core.Attribute, key, op string, err error) {
	failures.WithLabelValues(string(attr)).Inc()
	m.logger.Error("index update failed, index may be stale",
		"attribute", attr, "key", key, "op", op, "err", err)
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

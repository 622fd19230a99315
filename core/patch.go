package core

import "slices"

// MergeBook applies an edit patch to the current book and returns the result.
// The ISBN never changes.
//
// Without override only non-zero patch fields are applied. With override title
// and author are replaced wholesale, so an empty patch value clears them;
// page_num keeps its current value unless the patch gives a positive number,
// and quantity unless the patch gives one at all.
func MergeBook(current Book, patch Book, override bool) Book {
	merged := *current.Clone()
	if override || patch.Title != "" {
		merged.Title = patch.Title
	}
	if override || len(patch.Author) > 0 {
		if len(patch.Author) > 0 {
			merged.Author = slices.Clone(patch.Author)
		} else {
			merged.Author = nil
		}
	}
	if patch.PageNum > 0 {
		merged.PageNum = patch.PageNum
	}
	if patch.Quantity != nil {
		merged.Quantity = Quantity(*patch.Quantity)
	}
	return merged
}

// MergeBorrower applies an edit patch to the current borrower.
// The username never changes.
func MergeBorrower(current Borrower, patch Borrower, override bool) Borrower {
	merged := current
	if override || patch.Name != "" {
		merged.Name = patch.Name
	}
	if override || patch.Phone != "" {
		merged.Phone = patch.Phone
	}
	return merged
}

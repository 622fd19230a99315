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

// Package index maintains the inverted attribute indexes of the catalog.
//
// An inverted index maps one attribute value to the set of entity keys holding
// that value: title -> ISBNs, author -> ISBNs, name -> usernames. Storage
// backends own the physical structures (BadgerDB keys, Redis sets, SQL rows,
// Mongo documents, in-memory maps) and expose them through the Writer
// interface. This package decides which memberships change on every write, so
// all backends agree on index semantics:
//
//	old := &core.Book{ISBN: "1", Author: []string{"X", "Y"}}
//	new := &core.Book{ISBN: "1", Author: []string{"Y", "Z"}}
//	m := index.NewMaintainer(logger)
//	err := m.ReindexBook(ctx, w, old, new) // removes X, adds Z, leaves Y alone
//
// Pass a nil old entity on insert and a nil new entity on delete. Failed
// updates are counted and logged to the Maintainer's logger.
//
// Backends must call into this package from inside the same atomic unit that
// writes the primary record; writing a primary record any other way leaves the
// indexes stale.
package index

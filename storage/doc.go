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

// Package storage provides the storage abstraction layer for circulate.
//
// This package defines the repository interfaces that every catalog backend
// implements, so the library facade never depends on a particular database.
//
// # Backends
//
//   - memory: process-local maps with per-key locking
//   - badger: embedded key-value store with optimistic transactions
//   - redis: hashes and sets guarded by WATCH/MULTI
//   - sqlite: relational tables with immediate transactions
//   - mongo: documents updated inside multi-document transactions
//
// Constructors return storage.Store:
//
//	store, err := badger.Open(path, false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// # Mutations
//
// Updates take a mutation callback instead of a finished record. The backend
// reads the current record inside its transaction, hands a copy to the callback
// together with the number of active checkouts, and writes whatever the
// callback returns. This keeps read-modify-write atomic on every backend and
// lets quantity changes be checked against checkouts in the same step.
//
// # Errors
//
// Domain failures are returned as core coded errors (core.ErrBookExists,
// core.ErrBookNotAvailable and so on). GetBook and GetBorrower return
// ErrNotFound for absent records. Infrastructure failures are wrapped with
// context and returned as-is.
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines and, where the database allows it, from several
// processes.
//
// # Conformance
//
// The storagetest package holds the behavioral suite every backend runs in
// its own tests.
package storage

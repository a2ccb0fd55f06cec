// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package pbwt

import "fmt"

// Store owns one Context per (FORMAT key, vector-length) pair seen by a
// reader or writer. It is not safe for concurrent use, matching the rest of
// the core's single-threaded, per-instance state model.
type Store struct {
	contexts map[string]*Context
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{contexts: make(map[string]*Context)}
}

func storeKey(formatKey string, size int) string {
	return fmt.Sprintf("%s/%d", formatKey, size)
}

// For returns the Context for (formatKey, size), creating it with an
// identity permutation if this is the first time the pair is seen.
func (s *Store) For(formatKey string, size int) *Context {
	k := storeKey(formatKey, size)
	c, ok := s.contexts[k]
	if !ok {
		c = NewContext(size)
		s.contexts[k] = c
	}
	return c
}

// ResetAll reinitializes every context to the identity permutation. Called
// at the start of a block and whenever the contig changes (the shared
// sample word's 0x800000 reset bit).
func (s *Store) ResetAll() {
	for _, c := range s.contexts {
		c.Reset()
	}
}

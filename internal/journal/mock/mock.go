// Package mock provides an in-memory [journal.Store] for tests.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/voxgate/internal/journal"
)

var _ journal.Store = (*Store)(nil)

// Store records appended entries. Set AppendErr or RecentErr to make the
// corresponding method fail.
type Store struct {
	mu      sync.Mutex
	entries []journal.Entry
	closed  bool

	AppendErr error
	RecentErr error
}

// Append implements [journal.Store].
func (s *Store) Append(_ context.Context, e journal.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendErr != nil {
		return s.AppendErr
	}
	s.entries = append(s.entries, e)
	return nil
}

// Recent implements [journal.Store].
func (s *Store) Recent(_ context.Context, limit int) ([]journal.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RecentErr != nil {
		return nil, s.RecentErr
	}
	out := slices.Clone(s.entries)
	slices.Reverse(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close implements [journal.Store].
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// Entries returns a copy of everything appended, oldest first.
func (s *Store) Entries() []journal.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

// Closed reports whether Close was called.
func (s *Store) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Package mem implements an in-memory block store.
package mem

import (
	"context"
	"sort"
	"sync"

	"github.com/perrin/gbs"
	"github.com/perrin/gbs/roots"
	"github.com/perrin/gbs/store"
)

var _ roots.Store = &Store{}

// Store is a memory-based implementation of a block store.
// It is the reference implementation the backend test harness is
// written against.
type Store struct {
	mu     sync.Mutex
	blocks map[gbs.Ref]gbs.Blob
	roots  map[string]gbs.BlobID
}

// New produces a new Store.
func New() *Store {
	return &Store{
		blocks: make(map[gbs.Ref]gbs.Blob),
		roots:  make(map[string]gbs.BlobID),
	}
}

// Get gets the block with hash `ref`.
func (s *Store) Get(_ context.Context, ref gbs.Ref) (gbs.Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.blocks[ref]; ok {
		return b, nil
	}
	return nil, gbs.ErrNotFound
}

// Exists tells whether the store holds a block with hash `ref`.
func (s *Store) Exists(_ context.Context, ref gbs.Ref) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.blocks[ref]
	return ok, nil
}

// Put adds a block to the store if it wasn't already present.
func (s *Store) Put(_ context.Context, b gbs.Blob) (gbs.Ref, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var added bool
	r := b.Ref()
	if _, ok := s.blocks[r]; !ok {
		cp := make(gbs.Blob, len(b))
		copy(cp, b)
		s.blocks[r] = cp
		added = true
	}
	return r, added, nil
}

// Delete removes the block with hash `ref`.
// Deleting an absent ref is not an error.
func (s *Store) Delete(_ context.Context, ref gbs.Ref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocks, ref)
	return nil
}

// ListRefs produces all block refs in the store, in lexicographic order.
func (s *Store) ListRefs(_ context.Context, start gbs.Ref, f func(gbs.Ref) error) error {
	s.mu.Lock()
	refs := make([]gbs.Ref, 0, len(s.blocks))
	for ref := range s.blocks {
		refs = append(refs, ref)
	}
	s.mu.Unlock()

	sort.Slice(refs, func(i, j int) bool { return refs[i].Less(refs[j]) })
	index := sort.Search(len(refs), func(n int) bool {
		return start.Less(refs[n])
	})

	for i := index; i < len(refs); i++ {
		if err := f(refs[i]); err != nil {
			return err
		}
	}
	return nil
}

// GetRoot returns the BlobID registered under the given name.
func (s *Store) GetRoot(_ context.Context, name string) (gbs.BlobID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.roots[name]; ok {
		return id, nil
	}
	return gbs.BlobID{}, gbs.ErrNotFound
}

// PutRoot registers id under the given name, replacing any previous registration.
func (s *Store) PutRoot(_ context.Context, name string, id gbs.BlobID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roots[name] = id
	return nil
}

// DeleteRoot removes the registration of the given name, if any.
func (s *Store) DeleteRoot(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roots, name)
	return nil
}

// ListRoots lists all roots in the store, in lexicographic name order.
func (s *Store) ListRoots(_ context.Context, start string, f func(string, gbs.BlobID) error) error {
	s.mu.Lock()
	names := make([]string, 0, len(s.roots))
	for name := range s.roots {
		names = append(names, name)
	}
	s.mu.Unlock()

	sort.Strings(names)
	index := sort.Search(len(names), func(n int) bool {
		return names[n] > start
	})

	for i := index; i < len(names); i++ {
		s.mu.Lock()
		id, ok := s.roots[names[i]]
		s.mu.Unlock()
		if !ok {
			continue
		}
		if err := f(names[i], id); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	store.Register("mem", func(context.Context, map[string]interface{}) (roots.Store, error) {
		return New(), nil
	})
}

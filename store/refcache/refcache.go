// Package refcache implements a store wrapper that caches
// existence and metadata of blocks in a nested store,
// avoiding redundant lookups by hash.
//
// The cache is bounded by a total-weight budget rather than an entry
// count.
// The weight of an entry is computed once at insertion by a pluggable
// Weigher;
// eviction is recency-based and continues until the budget is
// respected.
//
// Only positive entries are cached
// (a cached entry means the block existed when last observed).
// Negative results always go to the nested store,
// so a concurrent writer re-creating a block is observed promptly.
// Stale positive entries are handled by Invalidate on delete and by
// Clear after a garbage-collection sweep.
package refcache

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/perrin/gbs"
	"github.com/perrin/gbs/roots"
	"github.com/perrin/gbs/store"
)

var _ roots.Store = &Store{}

// Entry is the cached metadata for one block.
type Entry struct {
	// Exists records that the block was present in the nested store.
	Exists bool

	// Size is the block's length in bytes,
	// or -1 when only existence is known.
	Size int64
}

// Weigher estimates the in-memory cost of a cache entry in bytes.
// The constants involved are empirical:
// they matter for memory accounting,
// not correctness.
type Weigher func(ref gbs.Ref, e Entry) int64

const (
	fixedOverhead  = 48
	keySizeFactor  = 2
	entryMemory    = 16
	minEntryWeight = 16
)

// DefaultWeigher is the Weigher used when none is supplied.
func DefaultWeigher(ref gbs.Ref, _ Entry) int64 {
	return fixedOverhead + keySizeFactor*int64(len(ref)) + entryMemory
}

// Store wraps a nested roots.Store with an existence/metadata cache.
type Store struct {
	s      roots.Store
	weigh  Weigher
	budget int64

	mu   sync.Mutex // guards c and used
	c    *lru.Cache
	used int64
}

// New produces a Store wrapping `s` with a cache budget of `budget` bytes.
// A nil weigher selects DefaultWeigher.
func New(s roots.Store, budget int64, weigh Weigher) (*Store, error) {
	if budget < minEntryWeight {
		return nil, errors.New("cache budget too small")
	}
	if weigh == nil {
		weigh = DefaultWeigher
	}
	out := &Store{s: s, weigh: weigh, budget: budget}

	// Entry-count bound implied by the weight floor;
	// the weight budget is enforced separately in add.
	c, err := lru.NewWithEvict(int(budget/minEntryWeight)+1, func(key, value interface{}) {
		// Runs only inside operations that already hold out.mu.
		out.used -= out.weight(key.(gbs.Ref), value.(Entry))
	})
	if err != nil {
		return nil, err
	}
	out.c = c
	return out, nil
}

func (s *Store) weight(ref gbs.Ref, e Entry) int64 {
	w := s.weigh(ref, e)
	if w < minEntryWeight {
		w = minEntryWeight
	}
	return w
}

func (s *Store) add(ref gbs.Ref, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.c.Peek(ref); ok {
		s.used -= s.weight(ref, old.(Entry))
	}
	s.c.Add(ref, e)
	s.used += s.weight(ref, e)
	for s.used > s.budget && s.c.Len() > 0 {
		s.c.RemoveOldest()
	}
}

// Cached returns the cached entry for ref, if any.
func (s *Store) Cached(ref gbs.Ref) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.c.Get(ref); ok {
		return e.(Entry), true
	}
	return Entry{}, false
}

// Invalidate drops the cached entry for ref, if any.
func (s *Store) Invalidate(ref gbs.Ref) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Remove(ref)
}

// Clear drops every cached entry.
// It implements gc.CacheClearer;
// call it after a sweep so stale exists=true entries for deleted
// blocks are not served.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c.Purge()
	s.used = 0
}

// Weight reports the current total weight of cached entries.
func (s *Store) Weight() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// Len reports the current number of cached entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Len()
}

// Get gets the block with hash `ref` from the nested store,
// recording its metadata on success.
func (s *Store) Get(ctx context.Context, ref gbs.Ref) (gbs.Blob, error) {
	b, err := s.s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	s.add(ref, Entry{Exists: true, Size: int64(len(b))})
	return b, nil
}

// Exists tells whether a block with hash `ref` exists,
// served from the cache when possible.
func (s *Store) Exists(ctx context.Context, ref gbs.Ref) (bool, error) {
	if e, ok := s.Cached(ref); ok && e.Exists {
		return true, nil
	}
	ok, err := s.s.Exists(ctx, ref)
	if err != nil {
		return false, err
	}
	if ok {
		s.add(ref, Entry{Exists: true, Size: -1})
	}
	return ok, nil
}

// Put adds a block to the nested store if it wasn't already present.
func (s *Store) Put(ctx context.Context, b gbs.Blob) (gbs.Ref, bool, error) {
	ref, added, err := s.s.Put(ctx, b)
	if err != nil {
		return ref, added, err
	}
	s.add(ref, Entry{Exists: true, Size: int64(len(b))})
	return ref, added, nil
}

// Delete removes the block with hash `ref` from the nested store
// and invalidates its cache entry.
func (s *Store) Delete(ctx context.Context, ref gbs.Ref) error {
	err := s.s.Delete(ctx, ref)
	if err != nil {
		return err
	}
	s.Invalidate(ref)
	return nil
}

// ListRefs produces all block refs in the nested store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start gbs.Ref, f func(gbs.Ref) error) error {
	return s.s.ListRefs(ctx, start, f)
}

func (s *Store) GetRoot(ctx context.Context, name string) (gbs.BlobID, error) {
	return s.s.GetRoot(ctx, name)
}

func (s *Store) PutRoot(ctx context.Context, name string, id gbs.BlobID) error {
	return s.s.PutRoot(ctx, name, id)
}

func (s *Store) DeleteRoot(ctx context.Context, name string) error {
	return s.s.DeleteRoot(ctx, name)
}

func (s *Store) ListRoots(ctx context.Context, start string, f func(string, gbs.BlobID) error) error {
	return s.s.ListRoots(ctx, start, f)
}

func init() {
	store.Register("refcache", func(ctx context.Context, conf map[string]interface{}) (roots.Store, error) {
		budget, ok := conf["budget"].(float64) // JSON numbers decode as float64
		if !ok {
			return nil, errors.New(`missing "budget" parameter`)
		}
		nested, ok := conf["nested"].(map[string]interface{})
		if !ok {
			return nil, errors.New(`missing "nested" parameter`)
		}
		nestedType, ok := nested["type"].(string)
		if !ok {
			return nil, errors.New(`"nested" parameter missing "type"`)
		}
		nestedStore, err := store.Create(ctx, nestedType, nested)
		if err != nil {
			return nil, errors.Wrap(err, "creating nested store")
		}
		return New(nestedStore, int64(budget), nil)
	})
}

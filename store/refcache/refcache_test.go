package refcache_test

import (
	"context"
	"testing"

	"github.com/perrin/gbs"
	"github.com/perrin/gbs/roots"
	"github.com/perrin/gbs/store/mem"
	"github.com/perrin/gbs/store/refcache"
	"github.com/perrin/gbs/testutil"
)

func TestStore(t *testing.T) {
	s, err := refcache.New(mem.New(), 1<<20, nil)
	if err != nil {
		t.Fatal(err)
	}
	testutil.ReadWrite(context.Background(), t, s, 1024, testutil.Data(100000))
}

func TestRoots(t *testing.T) {
	s, err := refcache.New(mem.New(), 1<<20, nil)
	if err != nil {
		t.Fatal(err)
	}
	testutil.Roots(context.Background(), t, s)
}

func TestBudgetTooSmall(t *testing.T) {
	_, err := refcache.New(mem.New(), 1, nil)
	if err == nil {
		t.Error("got no error for tiny budget, want one")
	}
}

// countingStore counts Exists calls that reach the nested store.
type countingStore struct {
	roots.Store
	exists int
}

func (c *countingStore) Exists(ctx context.Context, ref gbs.Ref) (bool, error) {
	c.exists++
	return c.Store.Exists(ctx, ref)
}

func TestCachedExists(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{Store: mem.New()}
	s, err := refcache.New(backend, 1<<20, nil)
	if err != nil {
		t.Fatal(err)
	}

	ref, _, err := s.Put(ctx, gbs.Blob("cached block"))
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		ok, err := s.Exists(ctx, ref)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatal("got exists=false for stored block")
		}
	}
	if backend.exists != 0 {
		t.Errorf("got %d nested Exists calls after Put, want 0", backend.exists)
	}

	// Invalidation forces the next check through to the nested store.
	s.Invalidate(ref)
	if _, err = s.Exists(ctx, ref); err != nil {
		t.Fatal(err)
	}
	if backend.exists != 1 {
		t.Errorf("got %d nested Exists calls after Invalidate, want 1", backend.exists)
	}
}

func TestNegativeNotCached(t *testing.T) {
	ctx := context.Background()
	backend := &countingStore{Store: mem.New()}
	s, err := refcache.New(backend, 1<<20, nil)
	if err != nil {
		t.Fatal(err)
	}

	absent := gbs.Blob("never stored").Ref()
	for i := 1; i <= 3; i++ {
		ok, err := s.Exists(ctx, absent)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			t.Fatal("got exists=true for absent block")
		}
		if backend.exists != i {
			t.Errorf("got %d nested Exists calls, want %d", backend.exists, i)
		}
	}
}

func TestWeightEviction(t *testing.T) {
	ctx := context.Background()

	// Flat 100 per entry with a budget of 250: at most two entries fit.
	weigh := func(gbs.Ref, refcache.Entry) int64 { return 100 }
	s, err := refcache.New(mem.New(), 250, weigh)
	if err != nil {
		t.Fatal(err)
	}

	var refs []gbs.Ref
	for _, b := range []string{"first", "second", "third"} {
		ref, _, err := s.Put(ctx, gbs.Blob(b))
		if err != nil {
			t.Fatal(err)
		}
		refs = append(refs, ref)
	}

	if got := s.Len(); got != 2 {
		t.Errorf("got %d cached entries, want 2", got)
	}
	if got := s.Weight(); got != 200 {
		t.Errorf("got total weight %d, want 200", got)
	}
	if _, ok := s.Cached(refs[0]); ok {
		t.Error("oldest entry still cached, want evicted")
	}
	for _, ref := range refs[1:] {
		if _, ok := s.Cached(ref); !ok {
			t.Errorf("entry %s not cached, want cached", ref)
		}
	}

	// Eviction is a cache-level event only; the blocks remain stored.
	for _, ref := range refs {
		if ok, err := s.Exists(ctx, ref); err != nil {
			t.Fatal(err)
		} else if !ok {
			t.Errorf("block %s missing from nested store", ref)
		}
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s, err := refcache.New(mem.New(), 1<<20, nil)
	if err != nil {
		t.Fatal(err)
	}

	for _, b := range []string{"one", "two", "three"} {
		if _, _, err := s.Put(ctx, gbs.Blob(b)); err != nil {
			t.Fatal(err)
		}
	}
	if s.Len() == 0 {
		t.Fatal("nothing cached after puts")
	}

	s.Clear()

	if got := s.Len(); got != 0 {
		t.Errorf("got %d cached entries after Clear, want 0", got)
	}
	if got := s.Weight(); got != 0 {
		t.Errorf("got total weight %d after Clear, want 0", got)
	}
}

package store_test

import (
	"context"
	"testing"

	"github.com/perrin/gbs"
	"github.com/perrin/gbs/store"
	_ "github.com/perrin/gbs/store/mem"
	_ "github.com/perrin/gbs/store/refcache"
)

func TestCreate(t *testing.T) {
	ctx := context.Background()

	s, err := store.Create(ctx, "mem", map[string]interface{}{"type": "mem"})
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err = s.Put(ctx, gbs.Blob("registry test")); err != nil {
		t.Fatal(err)
	}

	if _, err = store.Create(ctx, "bogus", nil); err == nil {
		t.Error("got no error creating unregistered type, want one")
	}
}

func TestCreateNested(t *testing.T) {
	ctx := context.Background()

	s, err := store.Create(ctx, "refcache", map[string]interface{}{
		"type":   "refcache",
		"budget": float64(1 << 20),
		"nested": map[string]interface{}{"type": "mem"},
	})
	if err != nil {
		t.Fatal(err)
	}

	ref, _, err := s.Put(ctx, gbs.Blob("nested block"))
	if err != nil {
		t.Fatal(err)
	}
	ok, err := s.Exists(ctx, ref)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("stored block not found through nested store")
	}
}

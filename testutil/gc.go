package testutil

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/perrin/gbs"
	"github.com/perrin/gbs/gcstore"
	"github.com/perrin/gbs/roots"
)

// CountRefs returns the number of block refs in g.
func CountRefs(ctx context.Context, t *testing.T, g gbs.Getter) int {
	var n int
	err := g.ListRefs(ctx, gbs.Zero, func(gbs.Ref) error {
		n++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return n
}

// GC tests a full mark/sweep cycle over the given backend:
// a registered blob survives,
// an unregistered blob's exclusive blocks are reclaimed,
// and the survivor still reads back intact.
func GC(ctx context.Context, t *testing.T, backend roots.Store) {
	store, err := gcstore.New(backend, gcstore.WithBlockSize(4))
	if err != nil {
		t.Fatal(err)
	}

	// No 4-byte block is shared between the two blobs,
	// so the expected counts below are exact.
	const (
		kept    = "AAAABBBBCCCCDDDDEE"
		doomed  = "wwwwxxxxyyyyzzzzvv"
		keepers = "keep"
	)

	keptID, err := store.Write(ctx, strings.NewReader(kept))
	if err != nil {
		t.Fatal(err)
	}
	doomedID, err := store.Write(ctx, strings.NewReader(doomed))
	if err != nil {
		t.Fatal(err)
	}
	if err = store.Register(ctx, keepers, keptID); err != nil {
		t.Fatal(err)
	}
	store.ClearInUse()

	before := CountRefs(ctx, t, backend)
	if before != keptID.NumRefs()+doomedID.NumRefs() {
		t.Fatalf("got %d refs before sweep, want %d", before, keptID.NumRefs()+doomedID.NumRefs())
	}

	if err = store.StartMark(ctx); err != nil {
		t.Fatal(err)
	}
	removed, err := store.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	store.ClearCache()

	if removed != doomedID.NumRefs() {
		t.Errorf("sweep removed %d blocks, want %d", removed, doomedID.NumRefs())
	}
	if after := CountRefs(ctx, t, backend); after != keptID.NumRefs() {
		t.Errorf("got %d refs after sweep, want %d", after, keptID.NumRefs())
	}

	buf := new(bytes.Buffer)
	if err = store.ReadBlob(ctx, keptID, buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != kept {
		t.Errorf("got %q after sweep, want %q", buf, kept)
	}

	if ok, err := store.Exists(ctx, doomedID); err != nil {
		t.Fatal(err)
	} else if ok {
		t.Error("swept blob still reported as existing")
	}
}

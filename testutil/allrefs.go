package testutil

import (
	"context"
	"math/rand"
	"sort"
	"testing"
	"testing/quick"

	"github.com/google/go-cmp/cmp"

	"github.com/perrin/gbs"
)

// AllRefs tests the ListRefs method of a Store.
// The factory must produce a new, empty Store on each call.
func AllRefs(ctx context.Context, t *testing.T, factory func() gbs.Store) {
	f := func(blobs [][]byte) bool {
		store := factory()

		var want []gbs.Ref
		seen := make(map[gbs.Ref]struct{})
		for _, b := range blobs {
			ref, _, err := store.Put(ctx, b)
			if err != nil {
				t.Log(err)
				return false
			}
			if _, ok := seen[ref]; !ok {
				seen[ref] = struct{}{}
				want = append(want, ref)
			}
		}
		sort.Slice(want, func(i, j int) bool { return want[i].Less(want[j]) })

		var got []gbs.Ref
		err := store.ListRefs(ctx, gbs.Zero, func(ref gbs.Ref) error {
			got = append(got, ref)
			return nil
		})
		if err != nil {
			t.Log(err)
			return false
		}

		if diff := cmp.Diff(want, got); diff != "" {
			t.Logf("mismatch (-want +got):\n%s", diff)
			return false
		}
		return true
	}
	err := quick.Check(f, &quick.Config{
		MaxCount: 20,
		Rand:     rand.New(rand.NewSource(42)),
	})
	if err != nil {
		t.Error(err)
	}
}

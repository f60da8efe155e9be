package testutil

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/perrin/gbs"
	"github.com/perrin/gbs/roots"
	"github.com/perrin/gbs/split"
)

// Roots tests the root-registry methods of a Store.
func Roots(ctx context.Context, t *testing.T, store roots.Store) {
	_, err := store.GetRoot(ctx, "nonexistent")
	if !errors.Is(err, gbs.ErrNotFound) {
		t.Errorf("got error %v, want %v", err, gbs.ErrNotFound)
	}

	ids := make(map[string]gbs.BlobID)
	for _, name := range []string{"alder", "birch", "cedar"} {
		id, err := split.Write(ctx, store, strings.NewReader(name), split.BlockSize(4))
		if err != nil {
			t.Fatal(err)
		}
		err = store.PutRoot(ctx, name, id)
		if err != nil {
			t.Fatal(err)
		}
		ids[name] = id
	}

	for name, want := range ids {
		got, err := store.GetRoot(ctx, name)
		if err != nil {
			t.Fatal(err)
		}
		if got.String() != want.String() {
			t.Errorf("root %s: got %s, want %s", name, got, want)
		}
	}

	// Replacing a root is not an error.
	err = store.PutRoot(ctx, "birch", ids["alder"])
	if err != nil {
		t.Fatal(err)
	}
	got, err := store.GetRoot(ctx, "birch")
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != ids["alder"].String() {
		t.Errorf("after replace, root birch is %s, want %s", got, ids["alder"])
	}

	var names []string
	err = store.ListRoots(ctx, "", func(name string, id gbs.BlobID) error {
		names = append(names, name)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"alder", "birch", "cedar"}, names); diff != "" {
		t.Errorf("root names mismatch (-want +got):\n%s", diff)
	}

	names = nil
	err = store.ListRoots(ctx, "alder", func(name string, id gbs.BlobID) error {
		names = append(names, name)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"birch", "cedar"}, names); diff != "" {
		t.Errorf("root names after alder mismatch (-want +got):\n%s", diff)
	}

	err = store.DeleteRoot(ctx, "birch")
	if err != nil {
		t.Fatal(err)
	}
	_, err = store.GetRoot(ctx, "birch")
	if !errors.Is(err, gbs.ErrNotFound) {
		t.Errorf("after delete, got error %v, want %v", err, gbs.ErrNotFound)
	}

	// Deleting an absent root is not an error.
	err = store.DeleteRoot(ctx, "birch")
	if err != nil {
		t.Errorf("deleting absent root: %v", err)
	}
}

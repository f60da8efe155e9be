package file

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/perrin/gbs"
	"github.com/perrin/gbs/testutil"
)

func TestStore(t *testing.T) {
	dirname, err := os.MkdirTemp("", "filestore")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dirname)

	testutil.ReadWrite(context.Background(), t, New(dirname), 1024, testutil.Data(100000))
}

func TestAllRefs(t *testing.T) {
	dirname, err := os.MkdirTemp("", "filestore")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dirname)

	var n int
	testutil.AllRefs(context.Background(), t, func() gbs.Store {
		sub := filepath.Join(dirname, string(rune('a'+n)))
		n++
		return New(sub)
	})
}

func TestRoots(t *testing.T) {
	dirname, err := os.MkdirTemp("", "filestore")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dirname)

	testutil.Roots(context.Background(), t, New(dirname))
}

func TestGC(t *testing.T) {
	dirname, err := os.MkdirTemp("", "filestore")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dirname)

	testutil.GC(context.Background(), t, New(dirname))
}

func TestPutFile(t *testing.T) {
	dirname, err := os.MkdirTemp("", "filestore")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dirname)

	data := testutil.Data(1000)
	src := filepath.Join(dirname, "incoming")
	if err := os.WriteFile(src, data, 0644); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	s := New(filepath.Join(dirname, "store"))

	var protected []gbs.Ref
	ref, added, err := s.PutFile(ctx, src, func(r gbs.Ref) { protected = append(protected, r) })
	if err != nil {
		t.Fatal(err)
	}
	if !added {
		t.Error("got added=false on first PutFile")
	}
	if want := gbs.Blob(data).Ref(); ref != want {
		t.Errorf("got ref %s, want %s", ref, want)
	}
	if len(protected) != 1 || protected[0] != ref {
		t.Errorf("got protected refs %v, want [%s]", protected, ref)
	}
	if _, err = os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("source file still present after PutFile (stat err: %v)", err)
	}

	got, err := s.Get(ctx, ref)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("mismatch reading back moved file")
	}

	// A second PutFile of the same content dedups and consumes the source.
	if err = os.WriteFile(src, data, 0644); err != nil {
		t.Fatal(err)
	}
	_, added, err = s.PutFile(ctx, src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if added {
		t.Error("got added=true on duplicate PutFile")
	}
	if _, err = os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("source file still present after duplicate PutFile (stat err: %v)", err)
	}
}

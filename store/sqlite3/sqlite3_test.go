package sqlite3

import (
	"context"
	"database/sql"
	"io/ioutil"
	"os"
	"testing"

	"github.com/perrin/gbs/testutil"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	err := withTestStore(ctx, func(s *Store) error {
		testutil.ReadWrite(ctx, t, s, 1024, testutil.Data(100000))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRoots(t *testing.T) {
	ctx := context.Background()
	err := withTestStore(ctx, func(s *Store) error {
		testutil.Roots(ctx, t, s)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestGC(t *testing.T) {
	ctx := context.Background()
	err := withTestStore(ctx, func(s *Store) error {
		testutil.GC(ctx, t, s)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func withTestStore(ctx context.Context, fn func(*Store) error) error {
	f, err := ioutil.TempFile("", "gbssqlite3test")
	if err != nil {
		return err
	}

	tmpfile := f.Name()
	f.Close()
	defer os.Remove(tmpfile)

	db, err := sql.Open("sqlite3", tmpfile)
	if err != nil {
		return err
	}
	defer db.Close()

	s, err := New(ctx, db)
	if err != nil {
		return err
	}

	return fn(s)
}

package logging

import (
	"bytes"
	"context"
	"log"
	"strings"
	"testing"

	"github.com/perrin/gbs"
	"github.com/perrin/gbs/store/mem"
	"github.com/perrin/gbs/testutil"
)

func TestStore(t *testing.T) {
	buf := new(bytes.Buffer)
	s := New(mem.New(), WithLogger(log.New(buf, "", 0)))
	testutil.ReadWrite(context.Background(), t, s, 1024, testutil.Data(10000))
	if buf.Len() == 0 {
		t.Error("no operations logged")
	}
}

func TestReport(t *testing.T) {
	ctx := context.Background()
	buf := new(bytes.Buffer)
	s := New(mem.New(), WithLogger(log.New(buf, "", 0)))

	ref, _, err := s.Put(ctx, gbs.Blob("logged block"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err = s.Get(ctx, ref); err != nil {
		t.Fatal(err)
	}
	if _, err = s.Get(ctx, gbs.Blob("absent").Ref()); err == nil {
		t.Fatal("got no error getting absent block, want one")
	}

	got := buf.String()
	for _, want := range []string{
		"Put " + ref.String(),
		"Get " + ref.String(),
		"ERROR Get ",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("log output missing %q:\n%s", want, got)
		}
	}
}

package mem

import (
	"context"
	"testing"

	"github.com/perrin/gbs"
	"github.com/perrin/gbs/testutil"
)

func TestStore(t *testing.T) {
	testutil.ReadWrite(context.Background(), t, New(), 1024, testutil.Data(100000))
}

func TestAllRefs(t *testing.T) {
	testutil.AllRefs(context.Background(), t, func() gbs.Store { return New() })
}

func TestRoots(t *testing.T) {
	testutil.Roots(context.Background(), t, New())
}

func TestGC(t *testing.T) {
	testutil.GC(context.Background(), t, New())
}

// Package testutil contains harnesses for testing backend implementations.
package testutil

import (
	"bytes"
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/perrin/gbs"
	"github.com/perrin/gbs/split"
)

// Data produces n bytes of deterministic pseudo-random test data.
func Data(n int) []byte {
	out := make([]byte, n)
	rand.New(rand.NewSource(17)).Read(out)
	return out
}

// ReadWrite permits testing a Store implementation
// by split-writing some data to it,
// then reading it back out to make sure it's the same.
func ReadWrite(ctx context.Context, t *testing.T, store gbs.Store, blockSize int, data []byte) {
	t1 := time.Now()
	id, err := split.Write(ctx, store, bytes.NewReader(data), split.BlockSize(blockSize))
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("wrote %d bytes in %s", len(data), time.Since(t1))

	if id.Size() != int64(len(data)) {
		t.Errorf("blob id declares %d bytes, want %d", id.Size(), len(data))
	}

	buf := new(bytes.Buffer)
	t2 := time.Now()
	err = split.Read(ctx, store, id, buf)
	if err != nil {
		t.Fatal(err)
	}
	got := buf.Bytes()
	t.Logf("read %d bytes in %s", len(got), time.Since(t2))

	if len(got) != len(data) {
		t.Errorf("got length %d, want %d", len(got), len(data))
	} else {
		for i := 0; i < len(got); i++ {
			if got[i] != data[i] {
				t.Fatalf("mismatch at position %d (of %d)", i, len(got))
			}
		}
	}
}

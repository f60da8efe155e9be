package split

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"

	"github.com/perrin/gbs"
	"github.com/perrin/gbs/store/mem"
)

func TestSplitEmpty(t *testing.T) {
	m := mem.New()
	w := NewWriter(context.Background(), m)
	err := w.Close()
	if err != nil {
		t.Fatal(err)
	}
	if w.ID.String() != gbs.EmptyBlobID().String() {
		t.Errorf("got ID %s, want %s", w.ID, gbs.EmptyBlobID())
	}
	if w.ID.NumRefs() != 0 {
		t.Errorf("got %d refs for empty stream, want 0", w.ID.NumRefs())
	}
}

func TestSplitBoundaries(t *testing.T) {
	ctx := context.Background()
	m := mem.New()

	id, err := Write(ctx, m, strings.NewReader("ABCDEFGHI"), BlockSize(4))
	if err != nil {
		t.Fatal(err)
	}

	if id.Size() != 9 {
		t.Errorf("got size %d, want 9", id.Size())
	}
	if id.Hash() != gbs.Blob("ABCDEFGHI").Ref() {
		t.Errorf("got content hash %s, want hash of whole stream", id.Hash())
	}

	want := []gbs.Ref{
		gbs.Blob("ABCD").Ref(),
		gbs.Blob("EFGH").Ref(),
		gbs.Blob("I").Ref(),
	}
	if diff := cmp.Diff(want, id.Refs()); diff != "" {
		t.Errorf("block refs mismatch (-want +got):\n%s", diff)
	}

	got, err := m.Get(ctx, want[2])
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "I" {
		t.Errorf("got final block %q, want %q", got, "I")
	}

	buf := new(bytes.Buffer)
	if err = Read(ctx, m, id, buf); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "ABCDEFGHI" {
		t.Errorf("got %q after round trip, want %q", buf, "ABCDEFGHI")
	}
}

func TestSplitDedup(t *testing.T) {
	ctx := context.Background()
	m := mem.New()

	id1, err := Write(ctx, m, strings.NewReader("XYZ"), BlockSize(4))
	if err != nil {
		t.Fatal(err)
	}
	id2, err := Write(ctx, m, strings.NewReader("XYZ"), BlockSize(4))
	if err != nil {
		t.Fatal(err)
	}
	if id1.String() != id2.String() {
		t.Errorf("got distinct ids %s and %s for identical content", id1, id2)
	}

	var n int
	err = m.ListRefs(ctx, gbs.Zero, func(gbs.Ref) error {
		n++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("got %d stored blocks after duplicate writes, want 1", n)
	}
}

// orderStore fails any Put whose ref was not announced through the
// protect hook first.
type orderStore struct {
	*mem.Store
	announced map[gbs.Ref]bool
}

func (o *orderStore) Put(ctx context.Context, b gbs.Blob) (gbs.Ref, bool, error) {
	if !o.announced[gbs.Blob(b).Ref()] {
		return gbs.Zero, false, errors.New("block stored before protect hook ran")
	}
	return o.Store.Put(ctx, b)
}

func TestProtectBeforePut(t *testing.T) {
	ctx := context.Background()
	o := &orderStore{Store: mem.New(), announced: make(map[gbs.Ref]bool)}

	id, err := Write(ctx, o, strings.NewReader("ABCDEFGHI"),
		BlockSize(4),
		Protect(func(ref gbs.Ref) { o.announced[ref] = true }),
	)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(o.announced); got != id.NumRefs() {
		t.Errorf("protect hook ran for %d refs, want %d", got, id.NumRefs())
	}
}

func TestReadMissingBlock(t *testing.T) {
	ctx := context.Background()
	m := mem.New()

	id, err := Write(ctx, m, strings.NewReader("ABCDEFGHI"), BlockSize(4))
	if err != nil {
		t.Fatal(err)
	}
	err = m.Delete(ctx, id.Refs()[1])
	if err != nil {
		t.Fatal(err)
	}

	err = Read(ctx, m, id, io.Discard)
	if !errors.Is(err, gbs.ErrCorrupt) {
		t.Errorf("got error %v, want %v", err, gbs.ErrCorrupt)
	}

	_, err = io.ReadAll(NewReader(ctx, m, id))
	if !errors.Is(err, gbs.ErrCorrupt) {
		t.Errorf("got error %v from lazy reader, want %v", err, gbs.ErrCorrupt)
	}
}

func TestLazyReader(t *testing.T) {
	ctx := context.Background()
	m := mem.New()

	data := make([]byte, 10000)
	for i := range data {
		data[i] = byte(i)
	}

	id, err := Write(ctx, m, bytes.NewReader(data), BlockSize(512))
	if err != nil {
		t.Fatal(err)
	}

	got, err := io.ReadAll(NewReader(ctx, m, id))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Error("mismatch reading lazily")
	}
}

func TestContentDefined(t *testing.T) {
	ctx := context.Background()
	m := mem.New()

	data := make([]byte, 100000)
	for i := range data {
		data[i] = byte(i * 7)
	}

	id, err := Write(ctx, m, bytes.NewReader(data), ContentDefined())
	if err != nil {
		t.Fatal(err)
	}
	if id.Size() != int64(len(data)) {
		t.Errorf("got size %d, want %d", id.Size(), len(data))
	}

	buf := new(bytes.Buffer)
	if err = Read(ctx, m, id, buf); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), data) {
		t.Error("mismatch after content-defined round trip")
	}
}

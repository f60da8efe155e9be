// Package split implements writing and reading of blobs in a block store.
//
// Writing splits a bytestream into blocks of a fixed configurable size
// (the last block may be shorter),
// stores each block,
// and produces a gbs.BlobID referencing the ordered block sequence.
// Reading walks the sequence and reassembles the original bytes.
package split

import (
	"context"
	"crypto/sha256"
	"hash"
	"io"

	"github.com/bobg/hashsplit"
	"github.com/pkg/errors"

	"github.com/perrin/gbs"
)

// DefaultBlockSize is the block size used when none is configured.
const DefaultBlockSize = 4 << 20

// Writer is an io.WriteCloser that splits its input into fixed-size blocks,
// writing each block to a gbs.Store.
// The BlobID of the written stream is available as Writer.ID after a call to Close.
type Writer struct {
	Ctx context.Context
	ID  gbs.BlobID // populated by Close

	st        gbs.Store
	blockSize int
	protect   func(gbs.Ref)

	buf  []byte
	refs []gbs.Ref
	size int64
	h    hash.Hash

	spl *hashsplit.Splitter // non-nil in content-defined mode

	closed bool
}

// NewWriter produces a new Writer writing to the given block store.
// The given context object is stored in the Writer and used in subsequent calls to Write and Close.
// This is an antipattern but acceptable when an object must adhere to a context-free stdlib interface
// (https://github.com/golang/go/wiki/CodeReviewComments#contexts).
// Callers may replace the context object during the lifetime of the Writer as needed.
func NewWriter(ctx context.Context, st gbs.Store, opts ...Option) *Writer {
	w := &Writer{
		Ctx:       ctx,
		st:        st,
		blockSize: DefaultBlockSize,
		h:         sha256.New(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write implements io.Writer.
func (w *Writer) Write(inp []byte) (int, error) {
	if w.closed {
		return 0, errors.New("write on closed Writer")
	}
	w.h.Write(inp)
	w.size += int64(len(inp))

	if w.spl != nil {
		return w.spl.Write(inp)
	}

	n := len(inp)
	for len(inp) > 0 {
		need := w.blockSize - len(w.buf)
		if need > len(inp) {
			w.buf = append(w.buf, inp...)
			break
		}
		w.buf = append(w.buf, inp[:need]...)
		inp = inp[need:]
		if err := w.putBlock(w.buf); err != nil {
			return n - len(inp), err
		}
		w.buf = w.buf[:0]
	}
	return n, nil
}

// Close implements io.Closer.
// It flushes the final short block, if any,
// and populates w.ID.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	if w.spl != nil {
		if err := w.spl.Close(); err != nil {
			return err
		}
	} else if len(w.buf) > 0 {
		if err := w.putBlock(w.buf); err != nil {
			return err
		}
		w.buf = nil
	}
	w.closed = true
	w.ID = gbs.NewBlobID(w.refs, w.size, gbs.RefFromBytes(w.h.Sum(nil)))
	return nil
}

// putBlock registers the block's ref with the protect hook,
// if any,
// before the block is written.
// The hook must run first:
// a concurrent sweep may otherwise observe the stored block
// with no mark protecting it.
func (w *Writer) putBlock(b []byte) error {
	ref := gbs.Blob(b).Ref()
	if w.protect != nil {
		w.protect(ref)
	}
	if _, _, err := w.st.Put(w.Ctx, gbs.Blob(b)); err != nil {
		return errors.Wrap(err, "writing block to store")
	}
	w.refs = append(w.refs, ref)
	return nil
}

// Option configures a Writer.
type Option func(*Writer)

// BlockSize sets the split granularity in bytes.
// It affects only this Writer.
func BlockSize(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.blockSize = n
		}
	}
}

// Protect installs a hook invoked with each block's ref
// before that block is written to the store.
// Garbage-collecting stores use it to register transient in-use marks.
func Protect(f func(gbs.Ref)) Option {
	return func(w *Writer) {
		w.protect = f
	}
}

// ContentDefined switches the Writer from fixed-size chunking to
// rolling-hash content-defined chunking.
// Block boundaries then depend on the data,
// improving dedup across inserts and deletes at the cost of
// variable block sizes.
func ContentDefined() Option {
	return func(w *Writer) {
		spl := hashsplit.NewSplitter(func(b []byte, _ uint) error {
			return w.putBlock(b)
		})
		spl.MinSize = 1024
		spl.SplitBits = 14
		w.spl = spl
	}
}

// Write splits the content of r into blocks,
// stores them in st,
// and returns the resulting BlobID.
func Write(ctx context.Context, st gbs.Store, r io.Reader, opts ...Option) (gbs.BlobID, error) {
	w := NewWriter(ctx, st, opts...)
	if _, err := io.Copy(w, r); err != nil {
		return gbs.BlobID{}, err
	}
	if err := w.Close(); err != nil {
		return gbs.BlobID{}, err
	}
	return w.ID, nil
}

// Read reads blocks from g,
// reassembling the content of the blob identified by id
// and writing it to w.
// A missing block surfaces gbs.ErrCorrupt.
func Read(ctx context.Context, g gbs.Getter, id gbs.BlobID, w io.Writer) error {
	var written int64
	err := id.EachRef(func(ref gbs.Ref) error {
		b, err := g.Get(ctx, ref)
		if errors.Is(err, gbs.ErrNotFound) {
			return errors.Wrapf(gbs.ErrCorrupt, "block %s", ref)
		}
		if err != nil {
			return errors.Wrapf(err, "getting block %s", ref)
		}
		n, err := w.Write(b)
		written += int64(n)
		return err
	})
	if err != nil {
		return err
	}
	if written != id.Size() {
		return errors.Wrapf(gbs.ErrCorrupt, "got %d bytes, blob id declares %d", written, id.Size())
	}
	return nil
}

// Reader is a lazy io.Reader over the blocks of a blob.
// Blocks are fetched from the store one at a time as the caller consumes them.
// A Reader is finite and restartable:
// create a new one from the same BlobID to read again.
type Reader struct {
	ctx  context.Context
	g    gbs.Getter
	refs []gbs.Ref
	next int
	cur  []byte
}

// NewReader produces a Reader over the blob identified by id.
func NewReader(ctx context.Context, g gbs.Getter, id gbs.BlobID) *Reader {
	return &Reader{ctx: ctx, g: g, refs: id.Refs()}
}

// Read implements io.Reader.
// A missing block surfaces gbs.ErrCorrupt.
func (r *Reader) Read(p []byte) (int, error) {
	for len(r.cur) == 0 {
		if r.next >= len(r.refs) {
			return 0, io.EOF
		}
		b, err := r.g.Get(r.ctx, r.refs[r.next])
		if errors.Is(err, gbs.ErrNotFound) {
			return 0, errors.Wrapf(gbs.ErrCorrupt, "block %s", r.refs[r.next])
		}
		if err != nil {
			return 0, errors.Wrapf(err, "getting block %s", r.refs[r.next])
		}
		r.next++
		r.cur = b
	}
	n := copy(p, r.cur)
	r.cur = r.cur[n:]
	return n, nil
}

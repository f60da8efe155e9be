// Package gcstore ties a storage backend,
// the stream splitter,
// the reference cache,
// and the mark/sweep collector together behind one
// garbage-collectible blob-store surface.
package gcstore

import (
	"context"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/perrin/gbs"
	"github.com/perrin/gbs/gc"
	"github.com/perrin/gbs/roots"
	"github.com/perrin/gbs/split"
	"github.com/perrin/gbs/store/refcache"
)

const (
	// DefaultBlockSize is the split granularity used until SetBlockSize is called.
	DefaultBlockSize = split.DefaultBlockSize

	// MinBlockSize is the smallest block size the store recommends,
	// guarding the default configuration against pathological
	// tiny-block fragmentation.
	// An explicit SetBlockSize below it is still honored as given.
	MinBlockSize = 48

	// DefaultCacheBudget is the reference cache's default total-weight
	// budget in bytes.
	DefaultCacheBudget = 16 << 20
)

// FilePutter is the optional backend capability behind the
// write-blob-from-file rename optimization:
// moving a whole file into the store as a single block without
// copying its bytes.
type FilePutter interface {
	PutFile(ctx context.Context, path string, protect func(gbs.Ref)) (gbs.Ref, bool, error)
}

// Store is a garbage-collectible blob store over a roots.Store backend.
//
// Writes split incoming streams into blocks,
// registering a transient in-use mark for every block before it is
// written,
// so a concurrently running sweep can never reclaim a blob that is
// still being assembled.
// The marks stay set until ClearInUse,
// which should be called only once the corresponding roots are
// durably registered
// (or the writes abandoned).
type Store struct {
	backend roots.Store
	cached  *refcache.Store
	coll    *gc.Collector

	mu        sync.Mutex
	blockSize int
}

type config struct {
	blockSize   int
	cacheBudget int64
	weigher     refcache.Weigher
	logger      *log.Logger
	now         func() time.Time
	parallel    int
}

// Option configures a Store.
type Option func(*config)

// WithBlockSize sets the initial split granularity.
func WithBlockSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.blockSize = n
		}
	}
}

// WithCacheBudget sets the reference cache's total-weight budget in bytes.
func WithCacheBudget(n int64) Option {
	return func(c *config) {
		if n > 0 {
			c.cacheBudget = n
		}
	}
}

// WithWeigher sets the reference cache's entry weigher.
func WithWeigher(w refcache.Weigher) Option {
	return func(c *config) { c.weigher = w }
}

// WithLogger makes the collector log mark and sweep timings.
func WithLogger(l *log.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithClock replaces the time source used for operational logging.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithSweepParallelism sets the number of concurrent deletes during Sweep.
func WithSweepParallelism(n int) Option {
	return func(c *config) { c.parallel = n }
}

// New produces a garbage-collectible Store over the given backend.
func New(backend roots.Store, opts ...Option) (*Store, error) {
	conf := config{
		blockSize:   DefaultBlockSize,
		cacheBudget: DefaultCacheBudget,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(&conf)
	}

	cached, err := refcache.New(backend, conf.cacheBudget, conf.weigher)
	if err != nil {
		return nil, errors.Wrap(err, "creating reference cache")
	}

	collOpts := []gc.Option{gc.WithCache(cached), gc.WithClock(conf.now)}
	if conf.logger != nil {
		collOpts = append(collOpts, gc.WithLogger(conf.logger))
	}
	if conf.parallel > 0 {
		collOpts = append(collOpts, gc.WithParallelism(conf.parallel))
	}

	return &Store{
		backend:   backend,
		cached:    cached,
		coll:      gc.New(cached, backend, collOpts...),
		blockSize: conf.blockSize,
	}, nil
}

// SetBlockSize configures the split granularity used by future writes.
// Existing blobs are never re-chunked.
func (s *Store) SetBlockSize(n int) {
	if n < 1 {
		return
	}
	s.mu.Lock()
	s.blockSize = n
	s.mu.Unlock()
}

// BlockSize reports the split granularity for future writes.
func (s *Store) BlockSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blockSize
}

// MinBlockSize reports the smallest block size the store is willing
// to use by default.
func (s *Store) MinBlockSize() int64 {
	return MinBlockSize
}

// Collector exposes the store's mark/sweep collector.
func (s *Store) Collector() *gc.Collector { return s.coll }

// Cache exposes the store's reference cache.
func (s *Store) Cache() *refcache.Store { return s.cached }

// Write splits the content of r into blocks and stores them,
// returning the BlobID of the whole stream.
// Every block carries a transient in-use mark before it is written;
// the caller should Register a root for the returned id before the
// next ClearInUse.
func (s *Store) Write(ctx context.Context, r io.Reader) (gbs.BlobID, error) {
	return split.Write(ctx, s.cached, r,
		split.BlockSize(s.BlockSize()),
		split.Protect(s.coll.RegisterInUse),
	)
}

// WriteBlob stores the content of the file at path,
// removing the file on success.
// A file no larger than one block moves into a file-based backend by
// rename,
// with no copy of its bytes.
func (s *Store) WriteBlob(ctx context.Context, path string) (gbs.BlobID, error) {
	info, err := os.Stat(path)
	if err != nil {
		return gbs.BlobID{}, errors.Wrapf(err, "statting %s", path)
	}

	if fp, ok := s.backend.(FilePutter); ok && info.Size() <= int64(s.BlockSize()) && info.Size() > 0 {
		ref, _, err := fp.PutFile(ctx, path, s.coll.RegisterInUse)
		if err != nil {
			return gbs.BlobID{}, errors.Wrapf(err, "moving %s into store", path)
		}
		return gbs.NewBlobID([]gbs.Ref{ref}, info.Size(), ref), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return gbs.BlobID{}, errors.Wrapf(err, "opening %s", path)
	}
	id, err := s.Write(ctx, f)
	f.Close()
	if err != nil {
		return gbs.BlobID{}, err
	}
	return id, errors.Wrapf(os.Remove(path), "removing %s", path)
}

// Open produces a lazy reader over the blob identified by id.
// A missing constituent block surfaces gbs.ErrCorrupt.
func (s *Store) Open(ctx context.Context, id gbs.BlobID) io.Reader {
	return split.NewReader(ctx, s.cached, id)
}

// ReadBlob reassembles the blob identified by id into w.
func (s *Store) ReadBlob(ctx context.Context, id gbs.BlobID, w io.Writer) error {
	return split.Read(ctx, s.cached, id, w)
}

// Exists tells whether every block of the blob identified by id is
// present,
// served from the reference cache where possible.
func (s *Store) Exists(ctx context.Context, id gbs.BlobID) (bool, error) {
	all := true
	err := id.EachRef(func(ref gbs.Ref) error {
		ok, err := s.cached.Exists(ctx, ref)
		if err != nil {
			return err
		}
		if !ok {
			all = false
			return errStopIteration
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopIteration) {
		return false, err
	}
	return all, nil
}

var errStopIteration = errors.New("stop iteration")

// Register durably registers id as a persistent reference root under
// the given name.
// If a mark generation is open the id's blocks are also added to its
// persistent mark component,
// so a subsequent ClearInUse cannot expose them to an in-flight
// sweep.
func (s *Store) Register(ctx context.Context, name string, id gbs.BlobID) error {
	if err := s.backend.PutRoot(ctx, name, id); err != nil {
		return errors.Wrapf(err, "registering root %s", name)
	}
	s.coll.MarkPersistent(id.Refs()...)
	return nil
}

// Deregister removes the root registered under the given name.
// The blob's exclusive blocks become collectible at the next
// mark/sweep cycle.
func (s *Store) Deregister(ctx context.Context, name string) error {
	return errors.Wrapf(s.backend.DeleteRoot(ctx, name), "deregistering root %s", name)
}

// Root returns the BlobID registered under the given name.
func (s *Store) Root(ctx context.Context, name string) (gbs.BlobID, error) {
	return s.backend.GetRoot(ctx, name)
}

// Roots calls f for every registered root in lexicographic name order.
func (s *Store) Roots(ctx context.Context, f func(string, gbs.BlobID) error) error {
	return s.backend.ListRoots(ctx, "", f)
}

// StartMark opens a new mark generation.
// See gc.Collector.StartMark.
func (s *Store) StartMark(ctx context.Context) error {
	return s.coll.StartMark(ctx)
}

// Sweep removes every block carrying no mark and returns the number
// removed.
// See gc.Collector.Sweep.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	return s.coll.Sweep(ctx)
}

// ClearInUse clears all transient in-use marks.
func (s *Store) ClearInUse() {
	s.coll.ClearInUse()
}

// ClearCache invalidates the reference cache.
func (s *Store) ClearCache() {
	s.coll.ClearCache()
}

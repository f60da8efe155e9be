// Package gc implements mark-and-sweep garbage collection for a block store.
//
// Collection is two-phase.
// StartMark opens a new generation and computes the persistent
// component of the MarkSet:
// every block ref reachable from a registered root.
// Concurrently,
// in-flight writers and readers protect the blocks they touch with
// transient marks via RegisterInUse.
// Sweep then enumerates every ref in the store and deletes the ones
// in neither component,
// returning the number removed.
//
// The collector is reusable:
// its state cycles Idle → Marking → Sweeping → Idle with no terminal
// state.
// State transitions are mutually excluded internally;
// callers need not serialize StartMark and Sweep themselves.
// A Sweep issued while the mark phase's root walk is still running
// waits for the walk to complete before it scans,
// so a concurrent Sweep never runs against a partial mark set.
// Calling StartMark while a mark cycle is already open discards the
// open cycle and starts over
// (restart semantics - the in-progress mark set is replaced,
// never corrupted).
// StartMark and Sweep during an in-progress sweep fail with
// ErrSweepInProgress.
//
// A crash or error between StartMark and Sweep only defers
// reclamation.
// The mark set is re-checked immediately before every delete,
// so a block marked at any point during the sweep scan is never
// removed:
// ambiguity fails closed, skipping the delete.
package gc

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/perrin/gbs"
	"github.com/perrin/gbs/roots"
)

// Store is what the collector needs from a block store:
// the read capabilities plus Delete.
// Nothing outside the sweep phase should use Delete.
type Store interface {
	gbs.Getter
	gbs.Deleter
}

// CacheClearer invalidates an existence/metadata cache.
// See ClearCache.
type CacheClearer interface {
	Clear()
}

// State is the collector's position in the mark/sweep cycle.
type State int

const (
	Idle State = iota
	Marking
	Sweeping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Marking:
		return "marking"
	case Sweeping:
		return "sweeping"
	}
	return "unknown"
}

var (
	// ErrNotMarking is returned by Sweep when no mark cycle is open.
	ErrNotMarking = errors.New("no mark phase open")

	// ErrSweepInProgress is returned by StartMark and Sweep
	// while another sweep is running.
	ErrSweepInProgress = errors.New("sweep in progress")
)

// Collector drives mark-and-sweep collection over a Store.
// Methods are safe for concurrent use.
type Collector struct {
	store Store
	roots roots.Getter
	cache CacheClearer

	logger   *log.Logger
	now      func() time.Time
	parallel int

	mu       sync.Mutex // guards state, gen, and markDone
	state    State
	gen      uint64
	markDone chan struct{} // closed when the generation's root walk finishes

	marks *MarkSet
}

// Option configures a Collector.
type Option func(*Collector)

// WithLogger makes the collector log mark and sweep timings.
func WithLogger(l *log.Logger) Option {
	return func(c *Collector) { c.logger = l }
}

// WithClock replaces the time source used for operational logging.
// It does not affect correctness.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) { c.now = now }
}

// WithParallelism sets the number of concurrent deletes during Sweep.
func WithParallelism(n int) Option {
	return func(c *Collector) {
		if n > 0 {
			c.parallel = n
		}
	}
}

// WithCache attaches the cache that ClearCache invalidates.
func WithCache(cc CacheClearer) Option {
	return func(c *Collector) { c.cache = cc }
}

// New produces a Collector sweeping st,
// marking from the roots in r.
func New(st Store, r roots.Getter, opts ...Option) *Collector {
	c := &Collector{
		store:    st,
		roots:    r,
		now:      time.Now,
		parallel: 4,
		marks:    newMarkSet(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports the collector's current state.
func (c *Collector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Generation reports the current mark generation counter.
// It increments on every StartMark.
func (c *Collector) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// StartMark transitions Idle → Marking,
// opening a new MarkSet generation and populating its persistent
// component from the registered roots.
// If a mark cycle is already open it is discarded and restarted.
// It returns ErrSweepInProgress while a sweep is running,
// and a wrapped I/O error if walking the roots fails,
// in which case the collector returns to Idle.
func (c *Collector) StartMark(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Sweeping {
		c.mu.Unlock()
		return ErrSweepInProgress
	}
	c.gen++
	gen := c.gen
	c.state = Marking
	c.marks.resetPersistent()
	done := make(chan struct{})
	c.markDone = done
	c.mu.Unlock()

	start := c.now()

	err := c.roots.ListRoots(ctx, "", func(_ string, id gbs.BlobID) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.marks.markPersistent(id.Refs()...)
		return nil
	})
	if err != nil {
		c.mu.Lock()
		if c.gen == gen {
			// Fail closed: without a complete mark no sweep may run.
			c.state = Idle
			c.marks.resetPersistent()
		}
		c.mu.Unlock()
		close(done)
		return errors.Wrap(err, "walking roots for mark phase")
	}
	close(done)

	if c.logger != nil {
		p, t := c.marks.Len()
		c.logger.Printf("gc: mark generation %d open, %d persistent + %d transient refs (%s)", gen, p, t, c.now().Sub(start))
	}
	return nil
}

// RegisterInUse adds a transient in-use mark for ref.
// Writers must call it before the block bearing ref becomes
// externally observable,
// and the mark stays set until ClearInUse.
// It is valid in every collector state.
func (c *Collector) RegisterInUse(ref gbs.Ref) {
	c.marks.markTransient(ref)
}

// MarkPersistent adds refs to the persistent component of the
// current generation's MarkSet.
// Root registration calls it so that a root registered after
// StartMark stays protected even if ClearInUse runs while a sweep
// is still scanning.
// It is a no-op when no generation is open.
func (c *Collector) MarkPersistent(refs ...gbs.Ref) {
	c.mu.Lock()
	open := c.state != Idle
	c.mu.Unlock()
	if open {
		c.marks.markPersistent(refs...)
	}
}

// Marked reports whether ref carries a persistent or transient mark.
func (c *Collector) Marked(ref gbs.Ref) bool {
	return c.marks.marked(ref)
}

// ClearInUse clears the transient component of the MarkSet only.
// Call it once a batch of concurrent writers has completed and their
// persistent roots are durably registered.
func (c *Collector) ClearInUse() {
	c.marks.clearTransient()
}

// ClearCache invalidates the attached existence cache,
// if any.
// Best effort; call it after Sweep so stale exists=true entries for
// deleted blocks are not served.
func (c *Collector) ClearCache() {
	if c.cache != nil {
		c.cache.Clear()
	}
}

// beginSweep waits for any in-progress root walk to finish,
// then moves the collector to Sweeping,
// returning the generation being swept.
// Waiting rather than failing keeps StartMark and Sweep free of
// external serialization:
// a Sweep issued mid-walk scans only after the persistent marks are
// complete.
func (c *Collector) beginSweep(ctx context.Context) (uint64, error) {
	for {
		c.mu.Lock()
		switch c.state {
		case Sweeping:
			c.mu.Unlock()
			return 0, ErrSweepInProgress
		case Idle:
			c.mu.Unlock()
			return 0, ErrNotMarking
		}
		done := c.markDone
		select {
		case <-done:
			gen := c.gen
			c.state = Sweeping
			c.mu.Unlock()
			return gen, nil
		default:
		}
		c.mu.Unlock()

		// The walk may yet fail or be restarted; re-examine the state
		// once its outcome is known.
		select {
		case <-done:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Sweep transitions Marking → Sweeping → Idle.
// It enumerates every ref in the store and deletes the ones carrying
// no mark,
// returning the number deleted.
// If the mark phase's root walk is still running,
// Sweep waits for it to complete before scanning.
// The MarkSet is re-checked immediately before each delete,
// atomically with respect to RegisterInUse,
// so blocks arriving during the scan
// (which carry fresh transient marks)
// are never removed.
// The generation's persistent component is consumed:
// after Sweep returns, a new StartMark is needed before the next
// sweep.
// On error the count of deletes already performed is returned with
// the error;
// the skipped blocks are reclaimed by a later cycle.
func (c *Collector) Sweep(ctx context.Context) (int, error) {
	gen, err := c.beginSweep(ctx)
	if err != nil {
		return 0, err
	}

	defer func() {
		c.mu.Lock()
		c.state = Idle
		c.marks.resetPersistent()
		c.mu.Unlock()
	}()

	start := c.now()

	var (
		removed int64
		refs    = make(chan gbs.Ref)
	)

	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < c.parallel; i++ {
		g.Go(func() error {
			for ref := range refs {
				// Marks may have appeared since the scan saw this ref.
				// The check and the delete run under the MarkSet's
				// lock: a mark either lands first and the delete is
				// skipped, or it waits until the delete has finished
				// and the subsequent Put re-creates the block.
				deleted, err := c.marks.unlessMarked(ref, func() error {
					return c.store.Delete(gctx, ref)
				})
				if err != nil {
					return errors.Wrapf(err, "deleting %s", ref)
				}
				if deleted {
					atomic.AddInt64(&removed, 1)
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(refs)
		return c.store.ListRefs(gctx, gbs.Zero, func(ref gbs.Ref) error {
			if c.marks.marked(ref) {
				return nil
			}
			select {
			case refs <- ref:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	err = g.Wait()

	if c.logger != nil {
		c.logger.Printf("gc: sweep of generation %d removed %d blocks (%s)", gen, removed, c.now().Sub(start))
	}
	if err != nil {
		return int(removed), errors.Wrap(err, "sweeping store")
	}
	return int(removed), nil
}

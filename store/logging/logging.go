// Package logging implements a store that delegates everything to a nested store,
// logging operations and their durations as they happen.
package logging

import (
	"context"
	"log"
	"time"

	"github.com/pkg/errors"

	"github.com/perrin/gbs"
	"github.com/perrin/gbs/roots"
	"github.com/perrin/gbs/store"
)

var _ roots.Store = &Store{}

// Store wraps a nested roots.Store.
// Every operation is logged with its outcome and elapsed time.
// The logger and the time source are pluggable;
// neither affects correctness.
type Store struct {
	s      roots.Store
	logger *log.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger replaces the default logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock replaces the time source used for duration reporting.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New produces a logging Store wrapping `s`.
func New(s roots.Store, opts ...Option) *Store {
	out := &Store{s: s, logger: log.Default(), now: time.Now}
	for _, opt := range opts {
		opt(out)
	}
	return out
}

func (s *Store) report(op string, start time.Time, err error) {
	if err != nil {
		s.logger.Printf("ERROR %s (%s): %s", op, s.now().Sub(start), err)
	} else {
		s.logger.Printf("%s (%s)", op, s.now().Sub(start))
	}
}

func (s *Store) Get(ctx context.Context, ref gbs.Ref) (gbs.Blob, error) {
	start := s.now()
	b, err := s.s.Get(ctx, ref)
	s.report("Get "+ref.String(), start, err)
	return b, err
}

func (s *Store) Exists(ctx context.Context, ref gbs.Ref) (bool, error) {
	start := s.now()
	ok, err := s.s.Exists(ctx, ref)
	s.report("Exists "+ref.String(), start, err)
	return ok, err
}

func (s *Store) Put(ctx context.Context, b gbs.Blob) (gbs.Ref, bool, error) {
	start := s.now()
	ref, added, err := s.s.Put(ctx, b)
	s.report("Put "+ref.String(), start, err)
	return ref, added, err
}

func (s *Store) Delete(ctx context.Context, ref gbs.Ref) error {
	start := s.now()
	err := s.s.Delete(ctx, ref)
	s.report("Delete "+ref.String(), start, err)
	return err
}

func (s *Store) ListRefs(ctx context.Context, start gbs.Ref, f func(gbs.Ref) error) error {
	t := s.now()
	err := s.s.ListRefs(ctx, start, f)
	s.report("ListRefs start="+start.String(), t, err)
	return err
}

func (s *Store) GetRoot(ctx context.Context, name string) (gbs.BlobID, error) {
	start := s.now()
	id, err := s.s.GetRoot(ctx, name)
	s.report("GetRoot "+name, start, err)
	return id, err
}

func (s *Store) PutRoot(ctx context.Context, name string, id gbs.BlobID) error {
	start := s.now()
	err := s.s.PutRoot(ctx, name, id)
	s.report("PutRoot "+name, start, err)
	return err
}

func (s *Store) DeleteRoot(ctx context.Context, name string) error {
	start := s.now()
	err := s.s.DeleteRoot(ctx, name)
	s.report("DeleteRoot "+name, start, err)
	return err
}

func (s *Store) ListRoots(ctx context.Context, start string, f func(string, gbs.BlobID) error) error {
	t := s.now()
	err := s.s.ListRoots(ctx, start, f)
	s.report("ListRoots start="+start, t, err)
	return err
}

func init() {
	store.Register("logging", func(ctx context.Context, conf map[string]interface{}) (roots.Store, error) {
		nested, ok := conf["nested"].(map[string]interface{})
		if !ok {
			return nil, errors.New(`missing "nested" parameter`)
		}
		nestedType, ok := nested["type"].(string)
		if !ok {
			return nil, errors.New(`"nested" parameter missing "type"`)
		}
		nestedStore, err := store.Create(ctx, nestedType, nested)
		if err != nil {
			return nil, errors.Wrap(err, "creating nested store")
		}
		return New(nestedStore), nil
	})
}

package gc

import (
	"sync"

	"github.com/perrin/gbs"
)

// A MarkSet is the set of block refs considered in use
// for the active collection generation.
// It has two components.
//
// The persistent component is derivable:
// it is the union of the refs of every registered root,
// computed by the mark phase,
// and extended by root registrations that happen while the
// generation is open.
// It is created at StartMark and consumed by Sweep.
//
// The transient component holds refs explicitly registered by
// in-flight writers and readers.
// It outlives generations:
// it protects blocks whose roots are not yet durably registered,
// including blocks written between generations,
// and is cleared only by ClearInUse.
//
// All methods are safe for concurrent use.
// Inserts are set-unions: no lost updates.
type MarkSet struct {
	mu         sync.RWMutex
	persistent map[gbs.Ref]struct{}
	transient  map[gbs.Ref]struct{}
}

func newMarkSet() *MarkSet {
	return &MarkSet{
		persistent: make(map[gbs.Ref]struct{}),
		transient:  make(map[gbs.Ref]struct{}),
	}
}

func (m *MarkSet) markPersistent(refs ...gbs.Ref) {
	m.mu.Lock()
	for _, ref := range refs {
		m.persistent[ref] = struct{}{}
	}
	m.mu.Unlock()
}

func (m *MarkSet) markTransient(ref gbs.Ref) {
	m.mu.Lock()
	m.transient[ref] = struct{}{}
	m.mu.Unlock()
}

// marked reports whether ref is in either component.
func (m *MarkSet) marked(ref gbs.Ref) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.persistent[ref]; ok {
		return true
	}
	_, ok := m.transient[ref]
	return ok
}

// unlessMarked runs f if ref carries no mark,
// reporting whether f ran.
// The set's lock is held across both the check and the call,
// so a mark registered concurrently either lands before the check
// (and f does not run)
// or waits until f has returned.
// Sweep uses this to make the delete of an unmarked block atomic
// with respect to RegisterInUse.
func (m *MarkSet) unlessMarked(ref gbs.Ref, f func() error) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.persistent[ref]; ok {
		return false, nil
	}
	if _, ok := m.transient[ref]; ok {
		return false, nil
	}
	return true, f()
}

func (m *MarkSet) clearTransient() {
	m.mu.Lock()
	m.transient = make(map[gbs.Ref]struct{})
	m.mu.Unlock()
}

// resetPersistent discards the persistent component,
// keeping transient marks intact.
func (m *MarkSet) resetPersistent() {
	m.mu.Lock()
	m.persistent = make(map[gbs.Ref]struct{})
	m.mu.Unlock()
}

// Len reports the sizes of the two components.
func (m *MarkSet) Len() (persistent, transient int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.persistent), len(m.transient)
}

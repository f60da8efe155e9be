package gc

import (
	"testing"

	"github.com/perrin/gbs"
)

func TestMarkSetComponents(t *testing.T) {
	var (
		m = newMarkSet()
		p = gbs.Ref{1}
		x = gbs.Ref{2}
	)

	if m.marked(p) || m.marked(x) {
		t.Fatal("fresh mark set has marks")
	}

	m.markPersistent(p)
	m.markTransient(x)

	if !m.marked(p) {
		t.Error("persistent mark not visible")
	}
	if !m.marked(x) {
		t.Error("transient mark not visible")
	}

	np, nt := m.Len()
	if np != 1 || nt != 1 {
		t.Errorf("got sizes (%d, %d), want (1, 1)", np, nt)
	}

	// Clearing one component leaves the other intact.
	m.clearTransient()
	if m.marked(x) {
		t.Error("transient mark survives clearTransient")
	}
	if !m.marked(p) {
		t.Error("persistent mark lost by clearTransient")
	}

	m.markTransient(x)
	m.resetPersistent()
	if m.marked(p) {
		t.Error("persistent mark survives resetPersistent")
	}
	if !m.marked(x) {
		t.Error("transient mark lost by resetPersistent")
	}
}

func TestMarkSetOverlap(t *testing.T) {
	var (
		m   = newMarkSet()
		ref = gbs.Ref{3}
	)

	// A ref may carry both marks; it stays marked until both clear.
	m.markPersistent(ref)
	m.markTransient(ref)

	m.resetPersistent()
	if !m.marked(ref) {
		t.Error("doubly marked ref lost by resetPersistent")
	}
	m.clearTransient()
	if m.marked(ref) {
		t.Error("ref still marked after both components cleared")
	}
}

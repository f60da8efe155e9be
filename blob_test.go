package gbs

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBlobIDString(t *testing.T) {
	var (
		r1   = Blob("alpha").Ref()
		r2   = Blob("bravo").Ref()
		hash = Blob("alphabravo").Ref()
	)

	id := NewBlobID([]Ref{r1, r2}, 10, hash)

	got, err := ParseBlobID(id.String())
	if err != nil {
		t.Fatal(err)
	}
	if got.Size() != 10 {
		t.Errorf("got size %d, want 10", got.Size())
	}
	if got.Hash() != hash {
		t.Errorf("got hash %s, want %s", got.Hash(), hash)
	}
	if diff := cmp.Diff(id.Refs(), got.Refs()); diff != "" {
		t.Errorf("refs mismatch after round trip (-want +got):\n%s", diff)
	}
	if got.String() != id.String() {
		t.Errorf("got %s, want %s", got, id)
	}
}

func TestBlobIDEmpty(t *testing.T) {
	id := EmptyBlobID()
	if id.Size() != 0 || id.NumRefs() != 0 {
		t.Errorf("empty blob id has size %d and %d refs", id.Size(), id.NumRefs())
	}
	if id.Hash() != Blob(nil).Ref() {
		t.Errorf("got hash %s, want hash of no bytes", id.Hash())
	}

	got, err := ParseBlobID(id.String())
	if err != nil {
		t.Fatal(err)
	}
	if got.String() != id.String() {
		t.Errorf("got %s after round trip, want %s", got, id)
	}
}

func TestBlobIDImmutable(t *testing.T) {
	refs := []Ref{{1}, {2}}
	id := NewBlobID(refs, 8, Ref{9})

	refs[0] = Ref{7}
	if id.Refs()[0] != (Ref{1}) {
		t.Error("mutating the argument slice changed the blob id")
	}

	out := id.Refs()
	out[1] = Ref{8}
	if id.Refs()[1] != (Ref{2}) {
		t.Error("mutating the result of Refs changed the blob id")
	}
}

func TestParseBlobIDErrors(t *testing.T) {
	cases := []string{
		"",
		"nope",
		"deadbeef-10-",
		Zero.String() + "-x-",
		Zero.String() + "--1-",
		Zero.String() + "-10-zzzz",
	}
	for _, s := range cases {
		if _, err := ParseBlobID(s); err == nil {
			t.Errorf("got no error parsing %q, want one", s)
		}
	}
}

package gbs

import (
	"context"
	"errors"
)

// Getter is a read-only Store (qv).
type Getter interface {
	// Get gets a block by its ref.
	// It returns ErrNotFound if the ref is unknown or was swept.
	Get(context.Context, Ref) (Blob, error)

	// Exists is a pure existence probe for a ref.
	Exists(context.Context, Ref) (bool, error)

	// ListRefs calls a function for each block ref in the store in lexicographic order,
	// beginning with the first ref _after_ the specified one.
	//
	// The calls reflect at least the set of refs
	// known at the moment ListRefs was called.
	// It is unspecified whether later changes,
	// that happen concurrently with ListRefs,
	// are reflected.
	//
	// If the callback function returns an error,
	// ListRefs exits with that error.
	ListRefs(context.Context, Ref, func(r Ref) error) error
}

// Store is a block store.
// It stores byte sequences - "blocks" - keyed by their refs:
// the sha256 hashes of their content.
// Put is idempotent:
// storing the same content twice stores one block,
// and all callers observe the same ref.
type Store interface {
	Getter

	// Put adds b to the store if it was not already present.
	// It returns b's ref and a boolean that is true iff the block had to be added.
	Put(ctx context.Context, b Blob) (ref Ref, added bool, err error)
}

// Deleter is the capability the sweep phase of garbage collection needs.
// Nothing else should delete blocks.
type Deleter interface {
	// Delete removes the block with the given ref.
	// Deleting an absent ref is not an error,
	// to tolerate concurrent deletions.
	Delete(context.Context, Ref) error
}

// ErrNotFound is the error returned
// when a Getter tries to access a non-existent ref.
var ErrNotFound = errors.New("not found")

// ErrCorrupt is the error returned
// when a block referenced by a BlobID is missing.
// It indicates a violated liveness invariant
// and callers should treat it as fatal.
var ErrCorrupt = errors.New("corrupt blob: referenced block missing")

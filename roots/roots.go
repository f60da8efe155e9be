// Package roots defines the persistent reference roots of a block store.
//
// Content addressability means a block's key never changes,
// but it also means nothing in the store itself says which blobs are
// still wanted.
// A root gives a blob a name:
// registering a BlobID under a name makes every block the blob
// references reachable,
// and therefore safe from the garbage collector's sweep phase.
// Deleting the root makes the blob's exclusive blocks collectible at
// the next mark/sweep cycle.
package roots

import (
	"context"

	"github.com/perrin/gbs"
)

// Getter is the read-only root registry,
// all the mark phase of garbage collection needs.
type Getter interface {
	// GetRoot returns the BlobID registered under the given name.
	// It returns gbs.ErrNotFound if the name is unknown.
	GetRoot(ctx context.Context, name string) (gbs.BlobID, error)

	// ListRoots calls a function for each registered root in
	// lexicographic name order,
	// beginning with the first name after the specified one.
	// If the callback returns an error, ListRoots exits with that error.
	ListRoots(ctx context.Context, start string, f func(name string, id gbs.BlobID) error) error
}

// Store is a block store that also keeps a root registry.
// All backends in the store subtree implement it.
type Store interface {
	gbs.Store
	gbs.Deleter
	Getter

	// PutRoot registers id under the given name,
	// replacing any previous registration of that name.
	PutRoot(ctx context.Context, name string, id gbs.BlobID) error

	// DeleteRoot removes the registration of the given name.
	// Deleting an absent name is not an error.
	DeleteRoot(ctx context.Context, name string) error
}

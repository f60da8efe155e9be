// Package gbs is a garbage-collectible content-addressable block store.
//
// A block store stores sequences of bytes,
// or _blocks_,
// and indexes them by their sha256 hash,
// which is used as a unique key.
// This key is called the block's reference, or _ref_.
//
// The fact that the lookup key is computed from a block's content,
// rather than by its location or the order in which it was added,
// is the meaning of "content-addressable."
// Identical content always maps to the same ref,
// and is stored at most once.
//
// Large binary values - _blobs_ - are split into blocks of a
// configurable size by the split subpackage,
// which returns a BlobID:
// the ordered list of block refs,
// the total length,
// and the hash of the whole content.
// The bytestream can be reassembled with split.Read.
//
// Blocks are append-only:
// once stored they are never mutated,
// only created or garbage-collected.
// Reclamation is mark-and-sweep
// (see the gc subpackage):
// the mark phase computes the set of refs reachable from registered
// roots (see the roots subpackage),
// plus transient "in use" marks held by in-flight writers,
// and the sweep phase deletes every block outside that set.
//
// Interchangeable storage backends live under the store subpackage:
// in-memory, file hierarchy, sqlite, postgresql, and
// Google Cloud Storage,
// plus delegating wrappers for logging and existence caching.
// The gcstore subpackage ties a backend,
// the splitter,
// the collector,
// and the cache together behind one garbage-collectible surface.
package gbs

package gbs

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// BlobID identifies one logical binary value:
// the ordered sequence of block refs it was split into,
// its total length in bytes,
// and the sha256 hash of the whole content.
// A BlobID is immutable once constructed.
type BlobID struct {
	refs []Ref
	size int64
	hash Ref
}

// NewBlobID produces a BlobID from its parts.
// The refs slice is copied,
// so later mutation of the argument does not affect the BlobID.
func NewBlobID(refs []Ref, size int64, hash Ref) BlobID {
	cp := make([]Ref, len(refs))
	copy(cp, refs)
	return BlobID{refs: cp, size: size, hash: hash}
}

// Refs is the ordered sequence of block refs.
// The result is a copy.
func (id BlobID) Refs() []Ref {
	cp := make([]Ref, len(id.refs))
	copy(cp, id.refs)
	return cp
}

// EachRef calls f on each block ref in order.
// It avoids the copy that Refs makes.
func (id BlobID) EachRef(f func(Ref) error) error {
	for _, ref := range id.refs {
		if err := f(ref); err != nil {
			return err
		}
	}
	return nil
}

// Size is the total length of the blob in bytes.
func (id BlobID) Size() int64 { return id.size }

// Hash is the sha256 hash of the whole blob content.
func (id BlobID) Hash() Ref { return id.hash }

// NumRefs is the number of blocks in the blob.
func (id BlobID) NumRefs() int { return len(id.refs) }

// String is the canonical encoding of a BlobID:
// the content hash, the decimal size,
// and the dot-separated block refs,
// joined by dashes.
// A zero-length blob encodes with an empty ref list.
func (id BlobID) String() string {
	var sb strings.Builder
	sb.WriteString(id.hash.String())
	sb.WriteByte('-')
	sb.WriteString(strconv.FormatInt(id.size, 10))
	sb.WriteByte('-')
	for i, ref := range id.refs {
		if i > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(ref.String())
	}
	return sb.String()
}

// ParseBlobID parses the encoding produced by BlobID.String.
func ParseBlobID(s string) (BlobID, error) {
	parts := strings.SplitN(s, "-", 3)
	if len(parts) != 3 {
		return BlobID{}, errors.Errorf("malformed blob id %q", s)
	}
	hash, err := RefFromHex(parts[0])
	if err != nil {
		return BlobID{}, errors.Wrapf(err, "parsing content hash of blob id %q", s)
	}
	size, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || size < 0 {
		return BlobID{}, errors.Errorf("malformed size in blob id %q", s)
	}
	var refs []Ref
	if parts[2] != "" {
		for _, h := range strings.Split(parts[2], ".") {
			ref, err := RefFromHex(h)
			if err != nil {
				return BlobID{}, errors.Wrapf(err, "parsing block ref %q in blob id", h)
			}
			refs = append(refs, ref)
		}
	}
	return BlobID{refs: refs, size: size, hash: hash}, nil
}

// EmptyBlobID is the id of the zero-length blob.
func EmptyBlobID() BlobID {
	return BlobID{hash: Blob(nil).Ref()}
}

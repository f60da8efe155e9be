// Package gcs implements a block store on Google Cloud Storage.
package gcs

import (
	"context"
	"encoding/hex"
	stderrs "errors"
	"io"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/perrin/gbs"
	"github.com/perrin/gbs/roots"
	"github.com/perrin/gbs/store"
)

var _ roots.Store = &Store{}

// Store is a Google Cloud Storage-based implementation of a block store.
// Each block is one object named by its ref;
// each root is one object named by the hex of its name,
// containing the encoded BlobID.
type Store struct {
	bucket *storage.BucketHandle
}

// New produces a new Store.
func New(bucket *storage.BucketHandle) *Store {
	return &Store{bucket: bucket}
}

// Get gets the block with hash `ref`.
func (s *Store) Get(ctx context.Context, ref gbs.Ref) (gbs.Blob, error) {
	name := blockObjName(ref)
	r, err := s.bucket.Object(name).NewReader(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil, gbs.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading info of object %s", name)
	}
	defer r.Close()

	b := make([]byte, r.Attrs.Size)
	_, err = io.ReadFull(r, b)
	return b, errors.Wrapf(err, "reading contents of object %s", name)
}

// Exists tells whether the store holds a block with hash `ref`.
func (s *Store) Exists(ctx context.Context, ref gbs.Ref) (bool, error) {
	name := blockObjName(ref)
	_, err := s.bucket.Object(name).Attrs(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "getting object attrs for %s", name)
	}
	return true, nil
}

// Put adds a block to the store if it wasn't already present.
// A DoesNotExist precondition makes concurrent writers of the same
// content converge on a single stored object.
func (s *Store) Put(ctx context.Context, b gbs.Blob) (gbs.Ref, bool, error) {
	var (
		ref   = b.Ref()
		name  = blockObjName(ref)
		obj   = s.bucket.Object(name).If(storage.Conditions{DoesNotExist: true})
		w     = obj.NewWriter(ctx)
		added bool
	)
	err := func() error {
		defer w.Close()

		_, err := w.Write(b)
		var e *googleapi.Error
		if stderrs.As(err, &e) && e.Code == http.StatusPreconditionFailed {
			return nil
		}
		if err == nil { // sic
			added = true
		}
		return errors.Wrapf(err, "writing object %s", name)
	}()
	return ref, added, err
}

// Delete removes the block with hash `ref`.
// Deleting an absent ref is not an error.
func (s *Store) Delete(ctx context.Context, ref gbs.Ref) error {
	name := blockObjName(ref)
	err := s.bucket.Object(name).Delete(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return errors.Wrapf(err, "deleting object %s", name)
}

// ListRefs produces all block refs in the store, in lexicographic order.
func (s *Store) ListRefs(ctx context.Context, start gbs.Ref, f func(gbs.Ref) error) error {
	// Google Cloud Storage iterators have no API for starting in the middle of a bucket.
	// But they can filter by object-name prefix.
	// So we take (the hex encoding of) `start` and repeatedly compute prefixes for the objects we want.
	// If `start` is e67a, for example, the sequence of generated prefixes is:
	//   e67b e67c e67d e67e e67f
	//   e68 e69 e6a e6b e6c e6d e6e e6f
	//   e7 e8 e9 ea eb ec ed ee ef
	//   f
	return eachHexPrefix(start.String(), false, func(prefix string) error {
		return s.listRefs(ctx, prefix, f)
	})
}

func (s *Store) listRefs(ctx context.Context, prefix string, f func(gbs.Ref) error) error {
	iter := s.bucket.Objects(ctx, &storage.Query{Prefix: "b:" + prefix})
	for {
		obj, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return err
		}
		ref, err := refFromBlockObjName(obj.Name)
		if err != nil {
			return err
		}
		if err = f(ref); err != nil {
			return err
		}
	}
}

// GetRoot returns the BlobID registered under the given name.
func (s *Store) GetRoot(ctx context.Context, name string) (gbs.BlobID, error) {
	objName := rootObjName(name)
	r, err := s.bucket.Object(objName).NewReader(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return gbs.BlobID{}, gbs.ErrNotFound
	}
	if err != nil {
		return gbs.BlobID{}, errors.Wrapf(err, "reading info of object %s", objName)
	}
	defer r.Close()

	encoded, err := io.ReadAll(r)
	if err != nil {
		return gbs.BlobID{}, errors.Wrapf(err, "reading contents of object %s", objName)
	}
	id, err := gbs.ParseBlobID(string(encoded))
	return id, errors.Wrapf(err, "parsing root %s", name)
}

// PutRoot registers id under the given name, replacing any previous registration.
func (s *Store) PutRoot(ctx context.Context, name string, id gbs.BlobID) error {
	var (
		objName = rootObjName(name)
		w       = s.bucket.Object(objName).NewWriter(ctx)
	)
	_, err := w.Write([]byte(id.String()))
	if err != nil {
		w.Close()
		return errors.Wrapf(err, "writing object %s", objName)
	}
	return errors.Wrapf(w.Close(), "closing object %s", objName)
}

// DeleteRoot removes the registration of the given name, if any.
func (s *Store) DeleteRoot(ctx context.Context, name string) error {
	objName := rootObjName(name)
	err := s.bucket.Object(objName).Delete(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return errors.Wrapf(err, "deleting object %s", objName)
}

// ListRoots lists all roots in the store, in lexicographic name order.
// Hex encoding of root names preserves byte order,
// so bucket iteration order is name order.
func (s *Store) ListRoots(ctx context.Context, start string, f func(string, gbs.BlobID) error) error {
	iter := s.bucket.Objects(ctx, &storage.Query{Prefix: "r:"})
	for {
		obj, err := iter.Next()
		if stderrs.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "iterating over root objects")
		}
		name, err := rootNameFromObjName(obj.Name)
		if err != nil {
			return errors.Wrapf(err, "decoding object name %s", obj.Name)
		}
		if name <= start {
			continue
		}
		id, err := s.GetRoot(ctx, name)
		if stderrs.Is(err, gbs.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err = f(name, id); err != nil {
			return err
		}
	}
}

func eachHexPrefix(prefix string, incl bool, f func(string) error) error {
	prefix = strings.ToLower(prefix)
	for len(prefix) > 0 {
		end := hexval(prefix[len(prefix)-1:][0])
		if !incl {
			end++
		}
		prefix = prefix[:len(prefix)-1]
		for c := end; c < 16; c++ {
			err := f(prefix + string(hexdigit(c)))
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func hexval(b byte) int {
	switch {
	case '0' <= b && b <= '9':
		return int(b - '0')
	case 'a' <= b && b <= 'f':
		return int(10 + b - 'a')
	case 'A' <= b && b <= 'F':
		return int(10 + b - 'A')
	}
	return 0
}

func hexdigit(n int) byte {
	if n < 10 {
		return byte(n + '0')
	}
	return byte(n - 10 + 'a')
}

func blockObjName(ref gbs.Ref) string {
	return "b:" + ref.String()
}

func refFromBlockObjName(name string) (gbs.Ref, error) {
	return gbs.RefFromHex(name[2:])
}

func rootObjName(name string) string {
	return "r:" + hex.EncodeToString([]byte(name))
}

func rootNameFromObjName(objName string) (string, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(objName, "r:"))
	return string(b), err
}

func init() {
	store.Register("gcs", func(ctx context.Context, conf map[string]interface{}) (roots.Store, error) {
		var options []option.ClientOption
		creds, ok := conf["creds"].(string)
		if !ok {
			return nil, errors.New(`missing "creds" parameter`)
		}
		bucketName, ok := conf["bucket"].(string)
		if !ok {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		options = append(options, option.WithCredentialsFile(creds))
		c, err := storage.NewClient(ctx, options...)
		if err != nil {
			return nil, errors.Wrap(err, "creating cloud storage client")
		}
		return New(c.Bucket(bucketName)), nil
	})
}

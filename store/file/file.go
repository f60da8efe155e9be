// Package file implements a block store as a file hierarchy.
package file

import (
	"context"
	"crypto/sha256"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/bobg/flock"
	"github.com/pkg/errors"

	"github.com/perrin/gbs"
	"github.com/perrin/gbs/roots"
	"github.com/perrin/gbs/store"
)

var _ roots.Store = &Store{}

// Store is a file-based implementation of a block store.
// Blocks live beneath root/blocks in a two-level fan-out keyed by the
// leading hex digits of the ref.
// Roots live as individual files beneath root/roots,
// guarded by a file lock.
type Store struct {
	root    string
	flocker flock.Locker
}

// New produces a new Store storing data beneath `root`.
func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) blockroot() string {
	return filepath.Join(s.root, "blocks")
}

func (s *Store) blockpath(ref gbs.Ref) string {
	h := ref.String()
	return filepath.Join(s.blockroot(), h[:2], h[:4], h)
}

// Get gets the block with hash `ref`.
func (s *Store) Get(_ context.Context, ref gbs.Ref) (gbs.Blob, error) {
	path := s.blockpath(ref)
	blob, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, gbs.ErrNotFound
	}
	return blob, errors.Wrapf(err, "reading %s", path)
}

// Exists tells whether the store holds a block with hash `ref`.
func (s *Store) Exists(_ context.Context, ref gbs.Ref) (bool, error) {
	_, err := os.Stat(s.blockpath(ref))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "statting %s", s.blockpath(ref))
	}
	return true, nil
}

// Put adds a block to the store if it wasn't already present.
// The write is crash-atomic:
// the block file appears in full via rename or not at all.
func (s *Store) Put(_ context.Context, b gbs.Blob) (gbs.Ref, bool, error) {
	var (
		ref  = b.Ref()
		path = s.blockpath(ref)
		dir  = filepath.Dir(path)
	)

	if _, err := os.Stat(path); err == nil {
		return ref, false, nil
	}

	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return gbs.Zero, false, errors.Wrapf(err, "ensuring path %s exists", dir)
	}

	tmp, err := os.CreateTemp(dir, "tmp*")
	if err != nil {
		return gbs.Zero, false, errors.Wrapf(err, "creating temp file in %s", dir)
	}
	tmpname := tmp.Name()
	defer os.Remove(tmpname)

	if _, err = tmp.Write(b); err != nil {
		tmp.Close()
		return gbs.Zero, false, errors.Wrapf(err, "writing data to %s", tmpname)
	}
	if err = tmp.Close(); err != nil {
		return gbs.Zero, false, errors.Wrapf(err, "closing %s", tmpname)
	}

	if err = os.Rename(tmpname, path); err != nil {
		return gbs.Zero, false, errors.Wrapf(err, "renaming %s into place", tmpname)
	}
	return ref, true, nil
}

// PutFile moves the content of the file at path into the store,
// removing the source file.
// When the block is new this is a hash-then-rename,
// with no copy of the file's bytes.
// It backs the write-blob-from-temp-file fast path.
// The protect hook,
// if non-nil,
// is invoked with the computed ref before the block becomes
// observable in the store.
func (s *Store) PutFile(_ context.Context, path string, protect func(gbs.Ref)) (gbs.Ref, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return gbs.Zero, false, errors.Wrapf(err, "opening %s", path)
	}
	hasher := sha256.New()
	_, err = io.Copy(hasher, f)
	f.Close()
	if err != nil {
		return gbs.Zero, false, errors.Wrapf(err, "hashing %s", path)
	}
	ref := gbs.RefFromBytes(hasher.Sum(nil))
	if protect != nil {
		protect(ref)
	}

	dest := s.blockpath(ref)
	if _, err = os.Stat(dest); err == nil {
		// Already stored; consume the source.
		return ref, false, errors.Wrapf(os.Remove(path), "removing %s", path)
	}
	if err = os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return gbs.Zero, false, errors.Wrapf(err, "ensuring path %s exists", filepath.Dir(dest))
	}
	if err = os.Rename(path, dest); err != nil {
		return gbs.Zero, false, errors.Wrapf(err, "renaming %s into place", path)
	}
	return ref, true, nil
}

// Delete removes the block with hash `ref`.
// Deleting an absent ref is not an error.
func (s *Store) Delete(_ context.Context, ref gbs.Ref) error {
	err := os.Remove(s.blockpath(ref))
	if os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(err, "removing %s", s.blockpath(ref))
}

// ListRefs produces all block refs in the store, in lexicographic order.
func (s *Store) ListRefs(_ context.Context, start gbs.Ref, f func(gbs.Ref) error) error {
	err := os.MkdirAll(s.blockroot(), 0755)
	if err != nil && !os.IsExist(err) {
		return errors.Wrapf(err, "ensuring %s exists", s.blockroot())
	}

	topLevel, err := os.ReadDir(s.blockroot())
	if err != nil {
		return errors.Wrapf(err, "reading dir %s", s.blockroot())
	}

	startHex := start.String()
	topIndex := sort.Search(len(topLevel), func(n int) bool {
		return topLevel[n].Name() >= startHex[:2]
	})
	for i := topIndex; i < len(topLevel); i++ {
		topInfo := topLevel[i]
		if !topInfo.IsDir() {
			continue
		}
		topName := topInfo.Name()
		if len(topName) != 2 {
			continue
		}
		if _, err = strconv.ParseInt(topName, 16, 64); err != nil {
			continue
		}

		midLevel, err := os.ReadDir(filepath.Join(s.blockroot(), topName))
		if err != nil {
			return errors.Wrapf(err, "reading dir %s/%s", s.blockroot(), topName)
		}
		midIndex := sort.Search(len(midLevel), func(n int) bool {
			return midLevel[n].Name() >= startHex[:4]
		})
		for j := midIndex; j < len(midLevel); j++ {
			midInfo := midLevel[j]
			if !midInfo.IsDir() {
				continue
			}
			midName := midInfo.Name()
			if len(midName) != 4 {
				continue
			}
			if _, err = strconv.ParseInt(midName, 16, 64); err != nil {
				continue
			}

			blockInfos, err := os.ReadDir(filepath.Join(s.blockroot(), topName, midName))
			if err != nil {
				return errors.Wrapf(err, "reading dir %s/%s/%s", s.blockroot(), topName, midName)
			}

			index := sort.Search(len(blockInfos), func(n int) bool {
				return blockInfos[n].Name() > startHex
			})
			for k := index; k < len(blockInfos); k++ {
				blockInfo := blockInfos[k]
				if blockInfo.IsDir() {
					continue
				}

				ref, err := gbs.RefFromHex(blockInfo.Name())
				if err != nil {
					continue
				}

				if err = f(ref); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *Store) rootdir() string {
	return filepath.Join(s.root, "roots")
}

func (s *Store) rootpath(name string) string {
	return filepath.Join(s.rootdir(), url.PathEscape(name))
}

func (s *Store) rootlockpath() string {
	return filepath.Join(s.root, "rootslock")
}

// GetRoot returns the BlobID registered under the given name.
func (s *Store) GetRoot(_ context.Context, name string) (gbs.BlobID, error) {
	b, err := os.ReadFile(s.rootpath(name))
	if os.IsNotExist(err) {
		return gbs.BlobID{}, gbs.ErrNotFound
	}
	if err != nil {
		return gbs.BlobID{}, errors.Wrapf(err, "reading root %s", name)
	}
	id, err := gbs.ParseBlobID(string(b))
	return id, errors.Wrapf(err, "parsing root %s", name)
}

// PutRoot registers id under the given name, replacing any previous registration.
func (s *Store) PutRoot(_ context.Context, name string, id gbs.BlobID) error {
	if err := os.MkdirAll(s.rootdir(), 0755); err != nil {
		return errors.Wrapf(err, "ensuring %s exists", s.rootdir())
	}
	if err := s.flocker.Lock(s.rootlockpath()); err != nil {
		return errors.Wrap(err, "locking roots")
	}
	defer s.flocker.Unlock(s.rootlockpath())

	return errors.Wrapf(os.WriteFile(s.rootpath(name), []byte(id.String()), 0644), "writing root %s", name)
}

// DeleteRoot removes the registration of the given name, if any.
func (s *Store) DeleteRoot(_ context.Context, name string) error {
	if err := s.flocker.Lock(s.rootlockpath()); err != nil {
		return errors.Wrap(err, "locking roots")
	}
	defer s.flocker.Unlock(s.rootlockpath())

	err := os.Remove(s.rootpath(name))
	if os.IsNotExist(err) {
		return nil
	}
	return errors.Wrapf(err, "removing root %s", name)
}

// ListRoots lists all roots in the store, in lexicographic name order.
func (s *Store) ListRoots(ctx context.Context, start string, f func(string, gbs.BlobID) error) error {
	infos, err := os.ReadDir(s.rootdir())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "reading dir %s", s.rootdir())
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		name, err := url.PathUnescape(info.Name())
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	index := sort.Search(len(names), func(n int) bool {
		return names[n] > start
	})

	for i := index; i < len(names); i++ {
		id, err := s.GetRoot(ctx, names[i])
		if errors.Is(err, gbs.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err = f(names[i], id); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	store.Register("file", func(_ context.Context, conf map[string]interface{}) (roots.Store, error) {
		root, ok := conf["root"].(string)
		if !ok {
			return nil, errors.New(`missing "root" parameter`)
		}
		return New(root), nil
	})
}

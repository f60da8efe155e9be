package main

import (
	"context"
	"flag"
	"log"

	"github.com/pkg/errors"
)

// writeBlob moves the contents of a file into the store,
// consuming the file.
// A file no larger than one block goes in by rename when the backend
// supports it.
func (c maincmd) writeBlob(ctx context.Context, fs *flag.FlagSet, args []string) error {
	root := fs.String("root", "", "root name to register for the written blob")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	args = fs.Args()
	if len(args) == 0 {
		return errors.New("missing file name")
	}

	id, err := c.s.WriteBlob(ctx, args[0])
	if err != nil {
		return errors.Wrapf(err, "storing %s", args[0])
	}

	if *root != "" {
		err = c.s.Register(ctx, *root, id)
		if err != nil {
			return errors.Wrapf(err, "registering root %s for blob %s", *root, id)
		}
	}
	c.s.ClearInUse()

	log.Printf("blob %s (%d bytes in %d blocks)", id, id.Size(), id.NumRefs())

	return nil
}

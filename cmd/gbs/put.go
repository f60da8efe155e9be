package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/pkg/errors"
)

func (c maincmd) put(ctx context.Context, fs *flag.FlagSet, args []string) error {
	root := fs.String("root", "", "root name to register for the written blob")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	id, err := c.s.Write(ctx, os.Stdin)
	if err != nil {
		return errors.Wrap(err, "splitting stdin to store")
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

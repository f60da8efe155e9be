package main

import (
	"context"
	"flag"
	"log"

	"github.com/pkg/errors"
)

func (c maincmd) mark(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	return c.s.StartMark(ctx)
}

func (c maincmd) sweep(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	removed, err := c.s.Sweep(ctx)
	if err != nil {
		return errors.Wrap(err, "sweeping")
	}
	c.s.ClearCache()

	log.Printf("removed %d blocks", removed)
	return nil
}

// gc runs a whole collection cycle:
// mark from the registered roots,
// then sweep everything unmarked.
// With no concurrent writers the in-use set is empty,
// so this reclaims every block not reachable from a root.
func (c maincmd) gc(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	err = c.s.StartMark(ctx)
	if err != nil {
		return errors.Wrap(err, "marking")
	}
	removed, err := c.s.Sweep(ctx)
	if err != nil {
		return errors.Wrap(err, "sweeping")
	}
	c.s.ClearCache()

	log.Printf("removed %d blocks", removed)
	return nil
}

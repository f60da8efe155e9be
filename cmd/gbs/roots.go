package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pkg/errors"

	"github.com/perrin/gbs"
)

func (c maincmd) register(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	args = fs.Args()
	if len(args) < 2 {
		return errors.New("usage: register NAME BLOBID")
	}

	id, err := gbs.ParseBlobID(args[1])
	if err != nil {
		return errors.Wrapf(err, "decoding blob id %s", args[1])
	}

	return c.s.Register(ctx, args[0], id)
}

func (c maincmd) deregister(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	args = fs.Args()
	if len(args) == 0 {
		return errors.New("missing root name")
	}

	return c.s.Deregister(ctx, args[0])
}

func (c maincmd) root(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	args = fs.Args()
	if len(args) == 0 {
		return errors.New("missing root name")
	}

	id, err := c.s.Root(ctx, args[0])
	if err != nil {
		return errors.Wrapf(err, "getting root %s", args[0])
	}

	fmt.Printf("%s\n", id)
	return nil
}

func (c maincmd) rootsList(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	return c.s.Roots(ctx, func(name string, id gbs.BlobID) error {
		fmt.Printf("%s %s\n", name, id)
		return nil
	})
}

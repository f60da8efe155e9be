package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/perrin/gbs"
)

func (c maincmd) get(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		root  = fs.String("root", "", "root name of blob to get")
		idstr = fs.String("id", "", "blob id of blob to get")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	if (*root == "" && *idstr == "") || (*root != "" && *idstr != "") {
		return errors.New("must supply one of -root or -id")
	}

	var id gbs.BlobID

	if *root != "" {
		id, err = c.s.Root(ctx, *root)
		if err != nil {
			return errors.Wrapf(err, "getting root %s", *root)
		}
	} else {
		id, err = gbs.ParseBlobID(*idstr)
		if err != nil {
			return errors.Wrapf(err, "decoding blob id %s", *idstr)
		}
	}

	return c.s.ReadBlob(ctx, id, os.Stdout)
}

func (c maincmd) exists(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	args = fs.Args()
	if len(args) == 0 {
		return errors.New("missing blob id")
	}

	id, err := gbs.ParseBlobID(args[0])
	if err != nil {
		return errors.Wrapf(err, "decoding blob id %s", args[0])
	}

	ok, err := c.s.Exists(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "checking blob %s", id)
	}
	fmt.Printf("%v\n", ok)
	return nil
}

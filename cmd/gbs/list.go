package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pkg/errors"

	"github.com/perrin/gbs"
)

func (c maincmd) listRefs(ctx context.Context, fs *flag.FlagSet, args []string) error {
	start := fs.String("start", "", "start after this ref")
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	var startRef gbs.Ref
	if *start != "" {
		startRef, err = gbs.RefFromHex(*start)
		if err != nil {
			return errors.Wrap(err, "parsing start ref")
		}
	}

	return c.s.Cache().ListRefs(ctx, startRef, func(ref gbs.Ref) error {
		fmt.Printf("%s\n", ref)
		return nil
	})
}

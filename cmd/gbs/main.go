// Command gbs is a CLI interface to garbage-collectible blob stores.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/bobg/subcmd"

	"github.com/perrin/gbs/gcstore"
	_ "github.com/perrin/gbs/store/file"
	_ "github.com/perrin/gbs/store/gcs"
	_ "github.com/perrin/gbs/store/logging"
	_ "github.com/perrin/gbs/store/mem"
	_ "github.com/perrin/gbs/store/pg"
	_ "github.com/perrin/gbs/store/refcache"
	_ "github.com/perrin/gbs/store/sqlite3"
)

type maincmd struct {
	s *gcstore.Store
}

func main() {
	var (
		config    = flag.String("config", "gbsconf.json", "path to config file")
		blockSize = flag.Int("blocksize", 0, "split block size in bytes (default: store default)")
	)
	flag.Parse()

	if *config == "" {
		log.Fatal("Config value not set")
	}

	ctx := context.Background()

	backend, err := storeFromConfig(ctx, *config)
	if err != nil {
		log.Fatalf("Creating store from config file %s: %s", *config, err)
	}

	var opts []gcstore.Option
	if *blockSize > 0 {
		opts = append(opts, gcstore.WithBlockSize(*blockSize))
	}
	s, err := gcstore.New(backend, opts...)
	if err != nil {
		log.Fatalf("Creating garbage-collectible store: %s", err)
	}

	err = subcmd.Run(ctx, maincmd{s: s}, flag.Args())
	if err != nil {
		log.Fatal(err)
	}
}

func (c maincmd) Subcmds() map[string]subcmd.Subcmd {
	return map[string]subcmd.Subcmd{
		"put":        {F: c.put},
		"get":        {F: c.get},
		"exists":     {F: c.exists},
		"list-refs":  {F: c.listRefs},
		"register":   {F: c.register},
		"deregister": {F: c.deregister},
		"root":       {F: c.root},
		"roots":      {F: c.rootsList},
		"mark":       {F: c.mark},
		"sweep":      {F: c.sweep},
		"gc":         {F: c.gc},
		"write-blob": {F: c.writeBlob},
	}
}

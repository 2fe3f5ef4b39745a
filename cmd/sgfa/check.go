package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/pkg/errors"

	"github.com/sgfa/sgfa"
	"github.com/sgfa/sgfa/jacket"
)

func (c maincmd) check(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		min     = fs.Int64("min", 1, "first history number")
		max     = fs.Int64("max", 0, "last history number (default: walk until the chain runs out)")
		miss    = fs.Int("miss", 0, "tolerated missing histories")
		maxHash = fs.String("hash", "", "known-good hash of the last history")
		entries = fs.Bool("entries", true, "re-hash entry blobs")
		files   = fs.Bool("files", false, "re-hash attachment blobs")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	opts := jacket.CheckOptions{
		MinHistory:  *min,
		MaxHistory:  *max,
		MissHistory: *miss,
		HashEntry:   *entries,
		HashAttach:  *files,
		Log:         c.logger,
	}
	if *maxHash != "" {
		if opts.MaxHash, err = sgfa.RefFromHex(*maxHash); err != nil {
			return errors.Wrap(err, "decoding -hash")
		}
	}

	j, err := c.open()
	if err != nil {
		return err
	}
	defer j.Close()

	ok, err := j.Check(ctx, opts)
	if err != nil {
		return errors.Wrap(err, "checking jacket")
	}
	if !ok {
		return errors.New("jacket is not valid")
	}
	fmt.Println("ok")
	return nil
}

func (c maincmd) push(ctx context.Context, fs *flag.FlagSet, args []string) error {
	return c.backup(ctx, fs, args, true)
}

func (c maincmd) pull(ctx context.Context, fs *flag.FlagSet, args []string) error {
	return c.backup(ctx, fs, args, false)
}

func (c maincmd) backup(ctx context.Context, fs *flag.FlagSet, args []string, push bool) error {
	var (
		conf        = fs.String("conf", "", "path to the other store's config file")
		min         = fs.Int64("min", 1, "first history number")
		max         = fs.Int64("max", 0, "last history number")
		stat        = fs.Bool("stat", true, "probe for presence before copying")
		skipEntries = fs.Bool("skip-entries", false, "leave entry blobs out")
		skipFiles   = fs.Bool("skip-files", false, "leave attachment blobs out")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if *conf == "" {
		return errors.New("must supply -conf")
	}

	other, err := openStore(ctx, c.dir, *conf)
	if err != nil {
		return errors.Wrap(err, "opening other store")
	}

	j, err := c.open()
	if err != nil {
		return err
	}
	defer j.Close()

	opts := jacket.BackupOptions{
		Min:         *min,
		Max:         *max,
		SkipEntries: *skipEntries,
		SkipFiles:   *skipFiles,
		Stat:        *stat,
		Log:         c.logger,
	}
	if push {
		return errors.Wrap(j.Push(ctx, other, opts), "pushing")
	}
	return errors.Wrap(j.Pull(ctx, other, opts), "pulling")
}

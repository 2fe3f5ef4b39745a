// Command sgfa is a thin driver for the filing engine: it creates
// jackets, writes and reads entries, and runs the validator and the
// backup protocol against any registered store backend.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bobg/subcmd"
	"github.com/lmittmann/tint"
	"github.com/pkg/errors"

	"github.com/sgfa/sgfa/jacket"
	"github.com/sgfa/sgfa/store"
	"github.com/sgfa/sgfa/store/file"
	_ "github.com/sgfa/sgfa/store/gcs"
	"github.com/sgfa/sgfa/store/logging"
	_ "github.com/sgfa/sgfa/store/lru"
	_ "github.com/sgfa/sgfa/store/mem"
	_ "github.com/sgfa/sgfa/store/pg"
	_ "github.com/sgfa/sgfa/store/s3"
	_ "github.com/sgfa/sgfa/store/sqlite3"
)

type maincmd struct {
	dir    string
	items  store.Store
	logger *slog.Logger
}

func main() {
	var (
		dir     = flag.String("dir", ".", "jacket directory")
		conf    = flag.String("store", "", "path to store config file (default: file store under the jacket directory)")
		verbose = flag.Bool("v", false, "log every store operation")
	)
	flag.Parse()

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{TimeFormat: time.TimeOnly}))

	ctx := context.Background()

	items, err := openStore(ctx, *dir, *conf)
	if err != nil {
		log.Fatalf("Opening store: %s", err)
	}
	if *verbose {
		items = logging.New(items, logger)
	}

	err = subcmd.Run(ctx, maincmd{dir: *dir, items: items, logger: logger}, flag.Args())
	if err != nil {
		log.Fatal(err)
	}
}

func openStore(ctx context.Context, dir, conf string) (store.Store, error) {
	if conf == "" {
		return file.New(filepath.Join(dir, "items")), nil
	}
	m, err := readStoreConf(conf)
	if err != nil {
		return nil, err
	}
	typ, ok := m["type"].(string)
	if !ok {
		return nil, errors.Errorf("config file %s missing `type` parameter", conf)
	}
	return store.Create(ctx, typ, m)
}

func readStoreConf(path string) (map[string]interface{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening config file %s", path)
	}
	defer f.Close()

	var m map[string]interface{}
	err = json.NewDecoder(f).Decode(&m)
	return m, errors.Wrapf(err, "decoding config file %s", path)
}

func (c maincmd) open() (*jacket.Jacket, error) {
	return jacket.Open(c.dir, c.items)
}

func (c maincmd) Subcmds() map[string]subcmd.Subcmd {
	return map[string]subcmd.Subcmd{
		"create": c.create,
		"put":    c.put,
		"get":    c.get,
		"tags":   c.tags,
		"list":   c.list,
		"check":  c.check,
		"push":   c.push,
		"pull":   c.pull,
	}
}

func (c maincmd) create(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	args = fs.Args()
	if len(args) != 1 {
		return errors.New("usage: create <id-text>")
	}

	j, err := jacket.Create(c.dir, args[0], c.items)
	if err != nil {
		return errors.Wrapf(err, "creating jacket in %s", c.dir)
	}
	defer j.Close()

	c.logger.Info("created jacket", "id", j.IDText(), "hash", j.IDHash().String())
	return nil
}

func (c maincmd) tags(ctx context.Context, fs *flag.FlagSet, args []string) error {
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	j, err := c.open()
	if err != nil {
		return err
	}
	defer j.Close()

	tags, err := j.ReadList(ctx)
	if err != nil {
		return errors.Wrap(err, "reading tag directory")
	}
	for _, t := range tags {
		os.Stdout.WriteString(t + "\n")
	}
	return nil
}

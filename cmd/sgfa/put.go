package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/sgfa/sgfa"
)

func (c maincmd) put(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		user    = fs.String("user", "", "user recorded in the history chain")
		enum    = fs.Int64("entry", 0, "entry number to update (default: create a new entry)")
		title   = fs.String("title", "", "entry title")
		body    = fs.String("body", "", "entry body (default: read from stdin when creating a new entry)")
		tags    = fs.String("tags", "", "comma-separated tags")
		untags  = fs.String("untags", "", "comma-separated tags to remove")
		attach  = fs.String("attach", "", "comma-separated files to attach")
		timeStr = fs.String("time", "", "entry timestamp, YYYY-MM-DD HH:MM:SS UTC (default: now)")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if *user == "" {
		return errors.New("must supply -user")
	}

	j, err := c.open()
	if err != nil {
		return err
	}
	defer j.Close()

	var e *sgfa.Entry
	if *enum == 0 {
		e = sgfa.NewEntry()
	} else {
		if e, err = j.ReadEntry(ctx, *enum, 0); err != nil {
			return errors.Wrapf(err, "loading entry %d", *enum)
		}
	}

	if *title != "" {
		if err = e.SetTitle(*title); err != nil {
			return err
		}
	}
	if *body == "" && *enum == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return errors.Wrap(err, "reading body from stdin")
		}
		*body = string(b)
	}
	if *body != "" {
		if err = e.SetBody([]byte(*body)); err != nil {
			return err
		}
	}
	if *timeStr != "" {
		if err = e.SetTimeStr(*timeStr); err != nil {
			return err
		}
	}
	for _, t := range splitList(*tags) {
		if err = e.AddTag(t); err != nil {
			return errors.Wrapf(err, "adding tag %q", t)
		}
	}
	for _, t := range splitList(*untags) {
		if err = e.RemoveTag(t); err != nil {
			return errors.Wrapf(err, "removing tag %q", t)
		}
	}
	for _, path := range splitList(*attach) {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "reading attachment %s", path)
		}
		if _, err = e.Attach(filepath.Base(path), data); err != nil {
			return errors.Wrapf(err, "attaching %s", path)
		}
	}

	hnum, err := j.Write(ctx, *user, []*sgfa.Entry{e})
	if err != nil {
		return errors.Wrap(err, "writing entry")
	}
	n, _ := e.Number()
	c.logger.Info("wrote entry", "entry", n, "revision", e.Revision(), "history", hnum)
	return nil
}

func (c maincmd) get(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		enum = fs.Int64("entry", 0, "entry number")
		rev  = fs.Int64("rev", 0, "revision (default: current)")
		anum = fs.Int64("attach", 0, "write this attachment to stdout instead of the entry")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}
	if *enum == 0 {
		return errors.New("must supply -entry")
	}

	j, err := c.open()
	if err != nil {
		return err
	}
	defer j.Close()

	if *anum != 0 {
		r, err := j.ReadAttach(ctx, *enum, *anum, 0)
		if err != nil {
			return errors.Wrapf(err, "reading attachment %d-%d", *enum, *anum)
		}
		defer r.Close()
		_, err = io.Copy(os.Stdout, r)
		return errors.Wrap(err, "writing attachment to stdout")
	}

	e, err := j.ReadEntry(ctx, *enum, *rev)
	if err != nil {
		return errors.Wrapf(err, "reading entry %d", *enum)
	}

	fmt.Printf("title: %s\n", e.Title())
	fmt.Printf("time: %s\n", e.TimeStr())
	fmt.Printf("revision: %d\n", e.Revision())
	if tags := e.Tags(); len(tags) > 0 {
		fmt.Printf("tags: %s\n", strings.Join(tags, ", "))
	}
	for _, a := range e.AttachNums() {
		att, _ := e.Attachment(a)
		fmt.Printf("attachment %d: %s\n", a, att.Name)
	}
	fmt.Printf("\n%s\n", e.Body())
	return nil
}

func (c maincmd) list(ctx context.Context, fs *flag.FlagSet, args []string) error {
	var (
		tag    = fs.String("tag", sgfa.TagAll, "tag to list")
		offset = fs.Int("offset", 0, "entries to skip")
		max    = fs.Int("max", 20, "window size")
	)
	err := fs.Parse(args)
	if err != nil {
		return errors.Wrap(err, "parsing args")
	}

	j, err := c.open()
	if err != nil {
		return err
	}
	defer j.Close()

	total, items, err := j.ReadTag(ctx, *tag, *offset, *max)
	if err != nil {
		return errors.Wrapf(err, "reading tag %q", *tag)
	}
	fmt.Printf("%d entries\n", total)
	for _, item := range items {
		fmt.Printf("%s %d\n", item.Time, item.Entry)
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

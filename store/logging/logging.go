// Package logging implements a store that delegates everything to a
// nested store, logging operations as they happen.
package logging

import (
	"context"
	"io"
	"log/slog"

	"github.com/sgfa/sgfa"
	"github.com/sgfa/sgfa/store"
)

var _ store.Store = &Store{}

type Store struct {
	s store.Store
	l *slog.Logger
}

func New(s store.Store, l *slog.Logger) *Store {
	return &Store{s: s, l: l}
}

func (s *Store) log(op string, kind sgfa.Kind, id sgfa.Ref, err error) {
	if err != nil {
		s.l.Error(op, "kind", kind.String(), "id", id.String(), "err", err)
	} else {
		s.l.Info(op, "kind", kind.String(), "id", id.String())
	}
}

func (s *Store) Read(ctx context.Context, kind sgfa.Kind, id sgfa.Ref) (io.ReadCloser, error) {
	r, err := s.s.Read(ctx, kind, id)
	s.log("read", kind, id, err)
	return r, err
}

func (s *Store) Temp(ctx context.Context) (store.Temp, error) {
	return s.s.Temp(ctx)
}

func (s *Store) Write(ctx context.Context, kind sgfa.Kind, id sgfa.Ref, t store.Temp) error {
	err := s.s.Write(ctx, kind, id, t)
	s.log("write", kind, id, err)
	return err
}

func (s *Store) Delete(ctx context.Context, kind sgfa.Kind, id sgfa.Ref) (bool, error) {
	existed, err := s.s.Delete(ctx, kind, id)
	s.log("delete", kind, id, err)
	return existed, err
}

func (s *Store) Size(ctx context.Context, kind sgfa.Kind, id sgfa.Ref) (int64, error) {
	n, err := s.s.Size(ctx, kind, id)
	s.log("size", kind, id, err)
	return n, err
}

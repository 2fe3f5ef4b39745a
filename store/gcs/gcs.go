// Package gcs implements an item store on Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	stderrs "errors"
	"io"
	"net/http"

	"cloud.google.com/go/storage"
	"github.com/pkg/errors"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/sgfa/sgfa"
	"github.com/sgfa/sgfa/store"
)

var _ store.Store = &Store{}

// Store is a Google Cloud Storage-based implementation of an item
// store. Objects are named <prefix><64-hex>-<kind-char>; one bucket can
// host several stores under distinct prefixes.
type Store struct {
	bucket *storage.BucketHandle
	prefix string
}

// New produces a new Store on `bucket`.
func New(bucket *storage.BucketHandle, prefix string) *Store {
	return &Store{bucket: bucket, prefix: prefix}
}

func (s *Store) objName(kind sgfa.Kind, id sgfa.Ref) string {
	return s.prefix + id.String() + "-" + string(kind.Char())
}

// Read opens the blob at (kind, id).
func (s *Store) Read(ctx context.Context, kind sgfa.Kind, id sgfa.Ref) (io.ReadCloser, error) {
	name := s.objName(kind, id)
	r, err := s.bucket.Object(name).NewReader(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return nil, errors.Wrapf(sgfa.ErrNotExist, "%s %s", kind, id)
	}
	return r, errors.Wrapf(err, "opening object %s", name)
}

type temp struct {
	buf  bytes.Buffer
	done bool
}

func (t *temp) Write(p []byte) (int, error) { return t.buf.Write(p) }

func (t *temp) Cancel() error {
	t.done = true
	return nil
}

// Temp creates a scratch buffer; a single conditional PUT installs it.
func (s *Store) Temp(context.Context) (store.Temp, error) {
	return &temp{}, nil
}

// Write installs a scratch buffer at (kind, id).
// An already-present object is left as is.
func (s *Store) Write(ctx context.Context, kind sgfa.Kind, id sgfa.Ref, tp store.Temp) error {
	t, ok := tp.(*temp)
	if !ok {
		return errors.Wrap(sgfa.ErrSanity, "temp belongs to another store")
	}
	if t.done {
		return errors.Wrap(sgfa.ErrSanity, "temp already consumed")
	}
	t.done = true

	var (
		name = s.objName(kind, id)
		obj  = s.bucket.Object(name).If(storage.Conditions{DoesNotExist: true})
		w    = obj.NewWriter(ctx)
	)
	_, err := w.Write(t.buf.Bytes())
	if err == nil {
		err = w.Close()
	} else {
		w.Close()
	}
	var e *googleapi.Error
	if stderrs.As(err, &e) && e.Code == http.StatusPreconditionFailed {
		return nil
	}
	return errors.Wrapf(err, "writing object %s", name)
}

// Delete removes the blob at (kind, id).
func (s *Store) Delete(ctx context.Context, kind sgfa.Kind, id sgfa.Ref) (bool, error) {
	name := s.objName(kind, id)
	err := s.bucket.Object(name).Delete(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return err == nil, errors.Wrapf(err, "deleting object %s", name)
}

// Size reports the byte size of the blob at (kind, id).
func (s *Store) Size(ctx context.Context, kind sgfa.Kind, id sgfa.Ref) (int64, error) {
	name := s.objName(kind, id)
	attrs, err := s.bucket.Object(name).Attrs(ctx)
	if stderrs.Is(err, storage.ErrObjectNotExist) {
		return 0, errors.Wrapf(sgfa.ErrNotExist, "%s %s", kind, id)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "getting attrs of object %s", name)
	}
	return attrs.Size, nil
}

func init() {
	store.Register("gcs", func(ctx context.Context, conf map[string]interface{}) (store.Store, error) {
		var options []option.ClientOption
		creds, ok := conf["creds"].(string)
		if !ok {
			return nil, errors.New(`missing "creds" parameter`)
		}
		bucketName, ok := conf["bucket"].(string)
		if !ok {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		prefix, _ := conf["prefix"].(string)
		options = append(options, option.WithCredentialsFile(creds))
		c, err := storage.NewClient(ctx, options...)
		if err != nil {
			return nil, errors.Wrap(err, "creating cloud storage client")
		}
		return New(c.Bucket(bucketName), prefix), nil
	})
}

// Package s3 implements an item store on S3-compatible object storage.
package s3

import (
	"bytes"
	"context"
	stderrs "errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"

	"github.com/sgfa/sgfa"
	"github.com/sgfa/sgfa/store"
)

var _ store.Store = &Store{}

// Store is an S3-based implementation of an item store.
// Objects are named <prefix><64-hex>-<kind-char>. A non-AWS endpoint
// (such as MinIO) works through the endpoint override in the factory.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// New produces a new Store on `bucket`.
func New(client *s3.Client, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *Store) key(kind sgfa.Kind, id sgfa.Ref) string {
	return s.prefix + id.String() + "-" + string(kind.Char())
}

// Read opens the blob at (kind, id).
func (s *Store) Read(ctx context.Context, kind sgfa.Kind, id sgfa.Ref) (io.ReadCloser, error) {
	key := s.key(kind, id)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	var nsk *types.NoSuchKey
	if stderrs.As(err, &nsk) {
		return nil, errors.Wrapf(sgfa.ErrNotExist, "%s %s", kind, id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "getting object %s", key)
	}
	return out.Body, nil
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

// Temp creates a scratch buffer; a single PUT installs it.
func (s *Store) Temp(context.Context) (store.Temp, error) {
	return &temp{}, nil
}

// Write installs a scratch buffer at (kind, id). Content under an id
// never varies, so an unconditional PUT is idempotent.
func (s *Store) Write(ctx context.Context, kind sgfa.Kind, id sgfa.Ref, tp store.Temp) error {
	t, ok := tp.(*temp)
	if !ok {
		return errors.Wrap(sgfa.ErrSanity, "temp belongs to another store")
	}
	if t.done {
		return errors.Wrap(sgfa.ErrSanity, "temp already consumed")
	}
	t.done = true

	key := s.key(kind, id)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(t.buf.Bytes()),
	})
	return errors.Wrapf(err, "putting object %s", key)
}

// Delete removes the blob at (kind, id).
func (s *Store) Delete(ctx context.Context, kind sgfa.Kind, id sgfa.Ref) (bool, error) {
	_, err := s.Size(ctx, kind, id)
	if errors.Is(err, sgfa.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	key := s.key(kind, id)
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return err == nil, errors.Wrapf(err, "deleting object %s", key)
}

// Size reports the byte size of the blob at (kind, id).
func (s *Store) Size(ctx context.Context, kind sgfa.Kind, id sgfa.Ref) (int64, error) {
	key := s.key(kind, id)
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	var nf *types.NotFound
	if stderrs.As(err, &nf) {
		return 0, errors.Wrapf(sgfa.ErrNotExist, "%s %s", kind, id)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "heading object %s", key)
	}
	return aws.ToInt64(out.ContentLength), nil
}

func init() {
	store.Register("s3", func(ctx context.Context, conf map[string]interface{}) (store.Store, error) {
		bucket, ok := conf["bucket"].(string)
		if !ok {
			return nil, errors.New(`missing "bucket" parameter`)
		}
		region, _ := conf["region"].(string)
		prefix, _ := conf["prefix"].(string)

		var opts []func(*awsconfig.LoadOptions) error
		if region != "" {
			opts = append(opts, awsconfig.WithRegion(region))
		}
		if access, ok := conf["access"].(string); ok {
			secret, _ := conf["secret"].(string)
			opts = append(opts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(access, secret, ""),
			))
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, errors.Wrap(err, "loading aws config")
		}

		client := s3.NewFromConfig(cfg, func(o *s3.Options) {
			if endpoint, ok := conf["endpoint"].(string); ok {
				o.BaseEndpoint = aws.String(endpoint)
				o.UsePathStyle = true
			}
		})
		return New(client, bucket, prefix), nil
	})
}

package s3

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/hupe1980/rulecache/blobstore"
)

// ErrConflict is returned by PutIfNotExists when the object already exists.
var ErrConflict = fmt.Errorf("s3: %w", blobstore.ErrExists)

// Store implements blobstore.BlobStore for S3.
type Store struct {
	client Client
	bucket string
	prefix string
	upload UploadConfig
}

var _ blobstore.BlobStore = (*Store)(nil)

// Option configures New and NewStore.
type Option func(*options)

type options struct {
	prefix   string
	region   string
	endpoint string
	upload   UploadConfig
}

// WithPrefix prepends prefix to every key.
func WithPrefix(prefix string) Option { return func(o *options) { o.prefix = prefix } }

// WithRegion sets the AWS region used by New.
func WithRegion(region string) Option { return func(o *options) { o.region = region } }

// WithEndpoint points New at an S3-compatible endpoint, using path-style
// addressing.
func WithEndpoint(url string) Option { return func(o *options) { o.endpoint = url } }

// WithUploadConfig replaces DefaultUploadConfig.
func WithUploadConfig(cfg UploadConfig) Option { return func(o *options) { o.upload = cfg } }

func buildOptions(opts []Option) options {
	o := options{upload: DefaultUploadConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New creates a Store with a client from the default AWS credential chain.
func New(ctx context.Context, bucket string, opts ...Option) (*Store, error) {
	o := buildOptions(opts)

	var loadOpts []func(*config.LoadOptions) error
	if o.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(o.region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(cfg, func(so *s3.Options) {
		if o.endpoint != "" {
			so.BaseEndpoint = aws.String(o.endpoint)
			so.UsePathStyle = true
		}
	})
	return NewStore(client, bucket, opts...), nil
}

// NewStore creates a Store over client.
func NewStore(client Client, bucket string, opts ...Option) *Store {
	o := buildOptions(opts)
	return &Store{client: client, bucket: bucket, prefix: o.prefix, upload: o.upload}
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, name)
}

// Open opens an object for ranged reads.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	return openBlob(ctx, s.client, s.bucket, s.key(name))
}

// Create streams an object through a multipart upload.
func (s *Store) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	return newWritableBlob(ctx, newUploader(s.client, s.upload), s.bucket, s.key(name), s.upload.EnableChecksum), nil
}

// Put writes an object with a single PUT.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.putInput(name, data))
	return err
}

// PutIfNotExists writes an object only if the key is free, and returns
// ErrConflict otherwise. Publishers use it for snapshot blobs, which must
// never be overwritten.
func (s *Store) PutIfNotExists(ctx context.Context, name string, data []byte) error {
	in := s.putInput(name, data)
	in.IfNoneMatch = aws.String("*")
	if _, err := s.client.PutObject(ctx, in); err != nil {
		if isPreconditionFailed(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) putInput(name string, data []byte) *s3.PutObjectInput {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(name)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if s.upload.EnableChecksum {
		in.ChecksumCRC32C = aws.String(computeCRC32C(data))
	}
	return in
}

// Delete removes an object. S3 reports success for missing keys.
func (s *Store) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

// List returns the sorted names under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	return listObjects(ctx, s.client, s.bucket, s.key(prefix), s.prefix)
}

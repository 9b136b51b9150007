package upload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/cruciblehq/cruxci/internal/snapshot"
)

const archiveContentType = "application/x-tar"

// Object storage settings.
type Config struct {
	Bucket          string // Bucket receiving snapshots. Required.
	Prefix          string // Key prefix, e.g. "cruxci/".
	Region          string // Bucket region.
	Endpoint        string // Custom endpoint for MinIO and other S3-compatible stores.
	AccessKeyID     string // Static credentials; the default chain is used when empty.
	SecretAccessKey string
}

// The subset of the S3 API the uploader needs.
type Client interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Stores snapshots in a bucket.
type Uploader struct {
	client Client
	bucket string
	prefix string
}

// Creates an uploader backed by the AWS SDK.
//
// A custom endpoint switches the client to path-style addressing, which
// MinIO requires.
func New(ctx context.Context, cfg Config) (*Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: no bucket configured", ErrUpload)
	}

	var optFns []func(*config.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFns = append(optFns, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return NewWithClient(s3.NewFromConfig(awsCfg, clientOpts...), cfg.Bucket, cfg.Prefix), nil
}

// Creates an uploader using an existing client.
func NewWithClient(client Client, bucket, prefix string) *Uploader {
	return &Uploader{client: client, bucket: bucket, prefix: prefix}
}

// Archives snap and stores it under a fresh key.
//
// The archive is spooled to a temporary file first so the object is sent
// with a known length.
func (u *Uploader) Upload(ctx context.Context, snap snapshot.Snapshot) (*Remote, error) {
	key := path.Join(u.prefix, "contexts", uuid.NewString()+".tar")

	spool, err := os.CreateTemp("", "cruxci-context-*.tar")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	if err := snap.Archive(ctx, spool); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}

	size, err := spool.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          spool,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(archiveContentType),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpload, err)
	}

	remote := &Remote{client: u.client, bucket: u.bucket, key: key, size: size}
	slog.Info("context uploaded", "source", snap.String(), "object", remote.String(), "bytes", size)

	return remote, nil
}

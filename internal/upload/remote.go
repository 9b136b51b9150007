package upload

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// A snapshot staged in object storage.
type Remote struct {
	client Client
	bucket string
	key    string
	size   int64
}

// Returns the object key.
func (r *Remote) Key() string {
	return r.key
}

// Returns the archive size in bytes.
func (r *Remote) Size() int64 {
	return r.size
}

func (r *Remote) String() string {
	return fmt.Sprintf("s3://%s/%s", r.bucket, r.key)
}

// Streams the staged archive to w.
func (r *Remote) Archive(ctx context.Context, w io.Writer) error {
	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.key),
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpload, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return fmt.Errorf("%w: %w", ErrUpload, err)
	}
	return nil
}

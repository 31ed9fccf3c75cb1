// Package objectstore defines the opaque S3-compatible client interface the
// attachment pipeline downloads/uploads through. The concrete client is built
// at process startup by NewS3Store, which also ensures the bucket exists.
package objectstore

import (
	"context"
	"io"
)

// Client is the minimal S3-compatible surface the attachment pipeline
// needs. A concrete implementation wraps an AWS-SDK-or-MinIO-SDK client;
// this package only names the contract so the pipeline can be tested
// against a fake.
type Client interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Stat(ctx context.Context, key string) (size int64, contentType string, err error)
}

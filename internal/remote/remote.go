// Package remote abstracts the shared object store that ceremony
// participants upload to and download from.
//
// Usage:
//
//	st, err := remote.NewS3(ctx, "ceremony-bucket", "eu-central-1", remote.WithLogger(logger))
//	keys, err := st.List(ctx, "")
//	body, err := st.Get(ctx, keys[0])
//	url, err := st.Presign(ctx, keys[0], time.Hour, remote.MethodGet)
package remote

import (
	"context"
	"io"
	"time"
)

// Store lists and reads objects in one bucket.
type Store interface {
	List(ctx context.Context, prefix string) ([]string, error)
	// Get returns the object body; the caller closes it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}

// Method is the HTTP method a presigned URL authorizes.
type Method string

const (
	MethodGet Method = "GET"
	MethodPut Method = "PUT"
)

// Presigner issues time-limited URLs for single objects.
type Presigner interface {
	Presign(ctx context.Context, key string, expiry time.Duration, method Method) (string, error)
}

// Package blob stores message media behind a gocloud bucket, so dev,
// tests and production differ only in the driver wired at startup.
package blob

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

const (
	DriverFile = "file"
	DriverMem  = "mem"
	DriverS3   = "s3"
)

// mediaPath is where the server streams refs the bucket cannot sign
// URLs for.
const mediaPath = "/api/v1/media/"

const signedURLTTL = 15 * time.Minute

type Options struct {
	Driver  string
	Bucket  string
	Region  string
	BaseDir string
}

// Store wraps one bucket. Keys are opaque refs minted by the upload
// target allocator, never caller-chosen paths.
type Store struct {
	bucket *blob.Bucket
	driver string
}

func Open(ctx context.Context, opts Options) (*Store, error) {
	driver := strings.ToLower(opts.Driver)
	switch driver {
	case DriverMem:
		return &Store{bucket: memblob.OpenBucket(nil), driver: driver}, nil

	case DriverFile:
		if opts.BaseDir == "" {
			return nil, fmt.Errorf("file driver needs a base dir")
		}
		if err := os.MkdirAll(opts.BaseDir, 0o755); err != nil {
			return nil, fmt.Errorf("ensuring base dir: %w", err)
		}
		bucket, err := fileblob.OpenBucket(filepath.Clean(opts.BaseDir), nil)
		if err != nil {
			return nil, fmt.Errorf("opening file bucket: %w", err)
		}
		return &Store{bucket: bucket, driver: driver}, nil

	case DriverS3:
		if opts.Bucket == "" {
			return nil, fmt.Errorf("s3 driver needs a bucket")
		}
		url := "s3://" + opts.Bucket
		if opts.Region != "" {
			url += "?region=" + opts.Region
		}
		bucket, err := blob.OpenBucket(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("opening s3 bucket: %w", err)
		}
		return &Store{bucket: bucket, driver: driver}, nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}

// Put streams r into the bucket under key with the given content type.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	w, err := s.bucket.NewWriter(ctx, sanitizeKey(key), &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("opening writer: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("writing blob: %w", err)
	}
	return w.Close()
}

// Reader opens key for streaming and reports its stored content type.
func (s *Store) Reader(ctx context.Context, key string) (io.ReadCloser, string, error) {
	key = sanitizeKey(key)
	attrs, err := s.bucket.Attributes(ctx, key)
	if err != nil {
		return nil, "", err
	}
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, "", err
	}
	return r, attrs.ContentType, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	return s.bucket.Exists(ctx, sanitizeKey(key))
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.bucket.Delete(ctx, sanitizeKey(key))
}

// ResolveURL returns what a client should fetch for a ref: a signed
// bucket URL when the driver can mint one, otherwise the server's own
// media endpoint.
func (s *Store) ResolveURL(ctx context.Context, ref string) (string, error) {
	if s.driver == DriverS3 {
		url, err := s.bucket.SignedURL(ctx, sanitizeKey(ref), &blob.SignedURLOptions{Expiry: signedURLTTL})
		if err == nil {
			return url, nil
		}
	}
	return mediaPath + ref, nil
}

func (s *Store) Close() error {
	return s.bucket.Close()
}

// sanitizeKey strips anything that could walk out of the bucket root.
func sanitizeKey(key string) string {
	key = filepath.ToSlash(key)
	key = strings.TrimLeft(key, "/")
	parts := strings.Split(key, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, "/")
}

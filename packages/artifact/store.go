package artifact

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"

	// registered for bucket URLs
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// Store writes artifacts to a blob bucket.
type Store struct {
	bucket   *blob.Bucket
	location string
}

// Open opens the bucket at location. A location without "://" is treated as a
// local directory, created on demand.
func Open(ctx context.Context, location string) (*Store, error) {
	if location == "" {
		location = "."
	}

	if strings.Contains(location, "://") {
		bucket, err := blob.OpenBucket(ctx, location)
		if err != nil {
			return nil, fmt.Errorf("open bucket %s: %w", location, err)
		}
		return &Store{bucket: bucket, location: location}, nil
	}

	dir, err := filepath.Abs(location)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", location, err)
	}
	bucket, err := fileblob.OpenBucket(dir, &fileblob.Options{
		CreateDir: true,
		Metadata:  fileblob.MetadataDontWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("open directory %s: %w", dir, err)
	}
	return &Store{bucket: bucket, location: dir}, nil
}

// Location returns the directory or URL the store writes to.
func (s *Store) Location() string {
	return s.location
}

// KeyFor returns the key name is stored under: name itself when it already
// has an extension, otherwise name plus the extension for contentType.
func KeyFor(name, contentType string) string {
	if path.Ext(name) != "" {
		return name
	}
	return name + ExtensionFor(contentType)
}

// Write stores body and returns the key it was written under.
func (s *Store) Write(ctx context.Context, name, contentType string, body []byte) (string, error) {
	key := KeyFor(name, contentType)
	opts := &blob.WriterOptions{ContentType: contentType}
	if err := s.bucket.WriteAll(ctx, key, body, opts); err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	return key, nil
}

// ReadAll returns the artifact stored under key.
func (s *Store) ReadAll(ctx context.Context, key string) ([]byte, error) {
	return s.bucket.ReadAll(ctx, key)
}

// Exists reports whether key has been written.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	return s.bucket.Exists(ctx, key)
}

func (s *Store) Close() error {
	return s.bucket.Close()
}

package gcp

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/storage"
)

// GetEnv is a helper to read an environment variable or return a
// default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// GCSBlobStore implements services.BlobStore on a single GCS bucket.
// Keys are namespaced by purpose (raw/, pdfs/, text/).
type GCSBlobStore struct {
	client *storage.Client
	bucket string
}

// NewGCSBlobStore wires the store around an existing client.
func NewGCSBlobStore(client *storage.Client, bucket string) *GCSBlobStore {
	return &GCSBlobStore{client: client, bucket: bucket}
}

// Put writes the object, overwriting any previous version. Overwrite
// semantics matter: a retried finalize rewrites the same text objects.
func (s *GCSBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	writer := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write gs://%s/%s: %w", s.bucket, key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize gs://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

func (s *GCSBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open gs://%s/%s: %w", s.bucket, key, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", s.bucket, key, err)
	}
	return data, nil
}

// GCSURLSigner implements services.URLSigner with V4 signed URLs.
type GCSURLSigner struct {
	client *storage.Client
	bucket string
}

// NewGCSURLSigner wires the signer around an existing client.
func NewGCSURLSigner(client *storage.Client, bucket string) *GCSURLSigner {
	return &GCSURLSigner{client: client, bucket: bucket}
}

// SignPage returns a time-limited read URL for the object with a
// #page=N fragment appended so viewers open at the matching page.
func (s *GCSURLSigner) SignPage(ctx context.Context, fileLocation string, expiry time.Duration, page int) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: time.Now().Add(expiry),
	}
	url, err := s.client.Bucket(s.bucket).SignedURL(fileLocation, opts)
	if err != nil {
		return "", fmt.Errorf("failed to sign URL for gs://%s/%s: %w", s.bucket, fileLocation, err)
	}
	return fmt.Sprintf("%s#page=%d", url, page), nil
}

package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GCSStore is an ObjectStore over Google Cloud Storage. Buckets are expected
// to allow public reads; PublicURL points at the public endpoint.
type GCSStore struct {
	client  *storage.Client
	baseURL string
}

// NewGCSStore builds a storage client. An empty baseURL uses
// https://storage.googleapis.com.
func NewGCSStore(ctx context.Context, credentialsFile, baseURL string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if baseURL == "" {
		baseURL = "https://storage.googleapis.com"
	}
	return &GCSStore{client: client, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *GCSStore) Upload(ctx context.Context, bucket, key string, data []byte, contentType string) error {
	obj := s.client.Bucket(bucket).Object(key).If(storage.Conditions{DoesNotExist: true})
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}
	err := w.Close()
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		return fmt.Errorf("upload %s/%s: %w", bucket, key, ErrExists)
	}
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *GCSStore) Remove(ctx context.Context, bucket, key string) error {
	err := s.client.Bucket(bucket).Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("remove %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *GCSStore) PublicURL(bucket, key string) string {
	return s.baseURL + "/" + bucket + "/" + url.PathEscape(key)
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}

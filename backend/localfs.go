package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// LocalObjectStore keeps objects as files under Dir/<bucket>/<key>. The
// HTTP server exposes Dir under BaseURL.
type LocalObjectStore struct {
	Dir     string
	BaseURL string
}

func NewLocalObjectStore(dir, baseURL string) (*LocalObjectStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create object dir %s: %w", dir, err)
	}
	return &LocalObjectStore{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (s *LocalObjectStore) path(bucket, key string) (string, error) {
	for _, part := range []string{bucket, key} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("invalid object name %q", part)
		}
	}
	return filepath.Join(s.Dir, bucket, key), nil
}

func (s *LocalObjectStore) Upload(_ context.Context, bucket, key string, data []byte, _ string) error {
	p, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}
	// O_EXCL: two uploads racing for the same key must not overwrite each other.
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return fmt.Errorf("upload %s/%s: %w", bucket, key, ErrExists)
	}
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(p)
		return fmt.Errorf("upload %s/%s: %w", bucket, key, err)
	}
	return f.Close()
}

func (s *LocalObjectStore) Remove(_ context.Context, bucket, key string) error {
	p, err := s.path(bucket, key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s/%s: %w", bucket, key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("remove %s/%s: %w", bucket, key, err)
	}
	return nil
}

func (s *LocalObjectStore) PublicURL(bucket, key string) string {
	return s.BaseURL + "/" + url.PathEscape(bucket) + "/" + url.PathEscape(key)
}

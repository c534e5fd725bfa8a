package usecase

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"recipeshare_backend/backend"
)

// DefaultBucket holds recipe photos.
const DefaultBucket = "recipe-photos"

// Images moves local photos into the object store and removes stale ones.
type Images struct {
	objects backend.ObjectStore
	bucket  string
	log     *zap.Logger

	now      func() time.Time
	readFile func(string) ([]byte, error)
}

func NewImages(objects backend.ObjectStore, bucket string, log *zap.Logger) *Images {
	if bucket == "" {
		bucket = DefaultBucket
	}
	return &Images{
		objects:  objects,
		bucket:   bucket,
		log:      log,
		now:      time.Now,
		readFile: os.ReadFile,
	}
}

// Upload stores the file at localPath under a time-based name and returns
// its public URL. Failures are logged and reported as ok == false.
func (im *Images) Upload(ctx context.Context, localPath string) (string, bool) {
	ext, err := extension(localPath)
	if err != nil {
		im.log.Error("Failed to upload image", zap.String("path", localPath), zap.Error(err))
		return "", false
	}
	key := fmt.Sprintf("%d.%s", im.now().UnixMilli(), ext)

	data, err := im.readFile(localPath)
	if err != nil {
		im.log.Error("Failed to read image", zap.String("path", localPath), zap.Error(err))
		return "", false
	}
	if len(data) == 0 {
		im.log.Error("Failed to upload image", zap.String("path", localPath), zap.String("reason", "empty file"))
		return "", false
	}

	if err := im.objects.Upload(ctx, im.bucket, key, data, contentType(ext)); err != nil {
		im.log.Error("Failed to upload image", zap.String("key", key), zap.Error(err))
		return "", false
	}

	im.log.Debug("Uploaded image", zap.String("key", key), zap.Int("bytes", len(data)))
	return im.objects.PublicURL(im.bucket, key), true
}

// RemoveByURL deletes the object a public URL points at. The last path
// segment of the URL is the object key.
func (im *Images) RemoveByURL(ctx context.Context, rawURL string) bool {
	key, err := keyFromURL(rawURL)
	if err != nil {
		im.log.Warn("Failed to remove image", zap.String("url", rawURL), zap.Error(err))
		return false
	}
	if err := im.objects.Remove(ctx, im.bucket, key); err != nil {
		im.log.Warn("Failed to remove image", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func extension(p string) (string, error) {
	base := path.Base(strings.ReplaceAll(p, `\`, "/"))
	i := strings.LastIndex(base, ".")
	if i < 0 || i == len(base)-1 {
		return "", fmt.Errorf("could not determine the file extension of %q", p)
	}
	return strings.ToLower(base[i+1:]), nil
}

func contentType(ext string) string {
	if ext == "jpg" {
		ext = "jpeg"
	}
	return "image/" + ext
}

func keyFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	p := strings.TrimRight(u.Path, "/")
	key := p[strings.LastIndex(p, "/")+1:]
	if key == "" {
		return "", fmt.Errorf("no object key in %q", rawURL)
	}
	return key, nil
}

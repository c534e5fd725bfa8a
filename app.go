package main

import (
	"context"
	"fmt"
	"net"
	"os"

	"go.uber.org/zap"

	"recipeshare_backend/auth"
	"recipeshare_backend/backend"
	"recipeshare_backend/config"
	"recipeshare_backend/media"
	"recipeshare_backend/usecase"
)

// app holds the clients built from the configuration.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	records backend.RecordStore
	objects backend.ObjectStore
	recipes *usecase.Recipes
	auth    *auth.Service

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	switch cfg.Store.Driver {
	case "firestore":
		s, err := backend.NewFirestoreStore(ctx, cfg.Store.ProjectID, cfg.Store.CredentialsFile)
		if err != nil {
			return nil, err
		}
		a.records = s
	case "sqlite":
		s, err := backend.NewSQLiteStore(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.records = s
	default:
		a.records = backend.NewMemoryStore()
	}
	a.closers = append(a.closers, a.records.Close)

	switch cfg.Objects.Driver {
	case "gcs":
		s, err := backend.NewGCSStore(ctx, cfg.Store.CredentialsFile, cfg.Objects.PublicBaseURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.objects = s
		a.closers = append(a.closers, s.Close)
	case "local":
		base := cfg.Objects.PublicBaseURL
		if base == "" {
			base = localBaseURL(cfg.Server.Addr)
		}
		s, err := backend.NewLocalObjectStore(cfg.Objects.Dir, base)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.objects = s
	default:
		a.objects = backend.NewMemoryObjectStore(cfg.Objects.PublicBaseURL)
	}

	device := media.Device{
		Permissions: media.StaticPermissions{
			media.MediaLibrary: cfg.Media.AllowGallery,
			media.Camera:       cfg.Media.AllowCamera,
		},
		Notifier: media.WriterNotifier{W: os.Stderr},
	}
	if cfg.Media.GalleryDir != "" {
		device.Gallery = media.NewGalleryPicker(cfg.Media.GalleryDir)
	}
	if len(cfg.Media.CameraCommand) > 0 {
		device.Camera = &media.CommandCamera{Command: cfg.Media.CameraCommand}
	}

	images := usecase.NewImages(a.objects, cfg.Objects.Bucket, log)
	a.recipes = usecase.New(a.records, images, device, log)
	a.auth = auth.New(a.records, cfg.SessionTTL(), log)
	return a, nil
}

func localBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://localhost/files"
	}
	if host == "" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/files"
}

// filesDir is the directory the HTTP server exposes under /files/.
func (a *app) filesDir() string {
	if a.cfg.Objects.Driver == "local" {
		return a.cfg.Objects.Dir
	}
	return ""
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("Failed to close client", zap.Error(err))
		}
	}
}

func loadApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}
	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("initialise backend: %w", err)
	}
	return a, nil
}

package storage

import (
	"context"
	"fmt"

	"github.com/xhad/docchat/pkg/config"
)

// NewFromConfig builds the configured backend. The returned close func is never nil.
func NewFromConfig(ctx context.Context, cfg *config.Config) (Store, func(), error) {
	noop := func() {}
	backend := cfg.Storage.Backend

	if backend == "auto" {
		switch {
		case cfg.LocalStorageWritable():
			backend = "local"
		case cfg.Storage.Blob.Token != "":
			backend = "blob"
		default:
			return nil, noop, ErrNoWritableStore
		}
		log.WithField("backend", backend).Info("Selected asset store")
	}

	switch backend {
	case "local":
		s, err := NewLocalStore(LocalConfig{
			Dir:        cfg.Storage.Dir,
			PublicPath: cfg.Storage.PublicPath,
		})
		return s, noop, err
	case "blob":
		s, err := NewBlobStore(BlobConfig{
			Token:   cfg.Storage.Blob.Token,
			BaseURL: cfg.Storage.Blob.BaseURL,
		})
		return s, noop, err
	case "s3":
		s, err := NewS3Store(S3Config{
			Bucket:        cfg.Storage.S3.Bucket,
			Region:        cfg.Storage.S3.Region,
			Endpoint:      cfg.Storage.S3.Endpoint,
			AccessKey:     cfg.Storage.S3.AccessKey,
			SecretKey:     cfg.Storage.S3.SecretKey,
			PublicBaseURL: cfg.Storage.S3.PublicBaseURL,
			Prefix:        cfg.Storage.S3.Prefix,
		})
		return s, noop, err
	case "postgres":
		s, err := NewPostgresStore(ctx, PostgresConfig{
			ConnString: cfg.Storage.Postgres.URL,
			TableName:  cfg.Storage.Postgres.TableName,
			PublicPath: cfg.Storage.PublicPath,
		})
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported storage backend: %s", backend)
	}
}

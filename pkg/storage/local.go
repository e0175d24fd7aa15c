package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/xhad/docchat/internal/models"
)

type LocalConfig struct {
	Dir        string // root directory, one subdirectory per session
	PublicPath string // URL prefix the directory is served under
}

// LocalStore writes assets to the filesystem for development hosting.
type LocalStore struct {
	config LocalConfig
}

func NewLocalStore(config LocalConfig) (*LocalStore, error) {
	if config.Dir == "" {
		config.Dir = "public/assets"
	}
	if config.PublicPath == "" {
		config.PublicPath = "/assets"
	}
	if err := os.MkdirAll(config.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create asset directory: %w", err)
	}
	return &LocalStore{config: config}, nil
}

func (s *LocalStore) Save(ctx context.Context, sessionID string, asset Asset) (models.StoredAsset, error) {
	if err := ValidateKey(sessionID, asset.Filename); err != nil {
		return models.StoredAsset{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.StoredAsset{}, err
	}

	dir := filepath.Join(s.config.Dir, sessionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return models.StoredAsset{}, fmt.Errorf("failed to create session directory: %w", err)
	}

	target := filepath.Join(dir, asset.Filename)
	if err := os.WriteFile(target, asset.Data, 0644); err != nil {
		return models.StoredAsset{}, fmt.Errorf("failed to write asset: %w", err)
	}

	log.WithFields(logrus.Fields{
		"session": sessionID,
		"file":    asset.Filename,
		"bytes":   len(asset.Data),
	}).Debug("Stored asset on disk")

	return storedAsset(asset, publicURL(s.config.PublicPath, sessionID, asset.Filename)), nil
}

func (s *LocalStore) Open(ctx context.Context, sessionID, filename string) ([]byte, string, error) {
	if err := ValidateKey(sessionID, filename); err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(filepath.Join(s.config.Dir, sessionID, filename))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to read asset: %w", err)
	}
	return data, InferMimeType("", filename), nil
}

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xhad/docchat/internal/models"
	"github.com/xhad/docchat/pkg/transport"
)

const blobAPIVersion = "7"

type BlobConfig struct {
	Token      string
	BaseURL    string
	Prefix     string // pathname prefix inside the store
	HTTPClient *http.Client
}

// BlobStore uploads assets to a hosted blob store with a read-write token,
// for deployments without a writable filesystem.
type BlobStore struct {
	config BlobConfig
	client *http.Client
}

type blobPutResponse struct {
	URL         string `json:"url"`
	Pathname    string `json:"pathname"`
	ContentType string `json:"contentType"`
}

func NewBlobStore(config BlobConfig) (*BlobStore, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("blob store requires a write token")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://blob.vercel-storage.com"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Prefix == "" {
		config.Prefix = "sessions"
	}

	client := config.HTTPClient
	if client == nil {
		client = transport.NewHTTPClient(60 * time.Second)
	}
	return &BlobStore{config: config, client: client}, nil
}

func (s *BlobStore) Save(ctx context.Context, sessionID string, asset Asset) (models.StoredAsset, error) {
	if err := ValidateKey(sessionID, asset.Filename); err != nil {
		return models.StoredAsset{}, err
	}

	mimeType := asset.MimeType
	if mimeType == "" {
		mimeType = InferMimeType("", asset.Filename)
	}
	pathname := strings.Trim(s.config.Prefix, "/") + "/" + sessionID + "/" + asset.Filename

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.config.BaseURL+"/"+pathname, bytes.NewReader(asset.Data))
	if err != nil {
		return models.StoredAsset{}, fmt.Errorf("creating blob request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.config.Token)
	req.Header.Set("X-Api-Version", blobAPIVersion)
	req.Header.Set("X-Content-Type", mimeType)
	req.Header.Set("X-Add-Random-Suffix", "0")

	resp, err := s.client.Do(req)
	if err != nil {
		return models.StoredAsset{}, fmt.Errorf("uploading blob: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return models.StoredAsset{}, fmt.Errorf("blob upload failed (status %d): %s", resp.StatusCode, string(slurp))
	}

	var put blobPutResponse
	if err := json.NewDecoder(resp.Body).Decode(&put); err != nil {
		return models.StoredAsset{}, fmt.Errorf("decoding blob response: %w", err)
	}
	if put.URL == "" {
		return models.StoredAsset{}, fmt.Errorf("blob response has no url")
	}

	log.WithFields(logrus.Fields{
		"session":  sessionID,
		"pathname": pathname,
		"bytes":    len(asset.Data),
	}).Debug("Stored asset in blob store")

	asset.MimeType = mimeType
	return storedAsset(asset, put.URL), nil
}

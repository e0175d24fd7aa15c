package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"path"
	"regexp"
	"strings"

	"github.com/xhad/docchat/internal/models"
	"github.com/xhad/docchat/pkg/logging"
)

var (
	ErrNotFound        = errors.New("asset not found")
	ErrInvalidName     = errors.New("invalid asset name")
	ErrInvalidDataURL  = errors.New("invalid data URL")
	ErrNoWritableStore = errors.New("no writable asset store: local directory is read-only and no blob token is configured")
)

var log = logging.Component("storage")

// Asset is an image about to be persisted.
type Asset struct {
	Filename   string
	OriginalID string
	MimeType   string
	Data       []byte
}

// Store persists assets for an upload session.
type Store interface {
	Save(ctx context.Context, sessionID string, asset Asset) (models.StoredAsset, error)
}

// Reader is implemented by stores whose assets are served by this process.
type Reader interface {
	Open(ctx context.Context, sessionID, filename string) ([]byte, string, error)
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeName turns a vendor image id into a safe filename component.
func SanitizeName(name string) string {
	name = unsafeChars.ReplaceAllString(path.Base(name), "_")
	name = strings.Trim(name, "._")
	return name
}

// ValidateKey rejects session ids and filenames that could escape the session namespace.
func ValidateKey(sessionID, filename string) error {
	for _, part := range []string{sessionID, filename} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return fmt.Errorf("%w: %q", ErrInvalidName, part)
		}
	}
	return nil
}

// AssetID derives the stored asset id from its filename.
func AssetID(filename string) string {
	return strings.TrimSuffix(filename, path.Ext(filename))
}

// DecodeDataURL splits "data:<mime>;base64,<payload>" into bytes and MIME type.
// A bare base64 payload is accepted and yields an empty MIME type.
func DecodeDataURL(src string) ([]byte, string, error) {
	payload := src
	mimeType := ""

	if strings.HasPrefix(src, "data:") {
		comma := strings.Index(src, ",")
		if comma == -1 {
			return nil, "", ErrInvalidDataURL
		}
		header := src[len("data:"):comma]
		payload = src[comma+1:]
		if !strings.HasSuffix(header, ";base64") {
			return nil, "", fmt.Errorf("%w: not base64 encoded", ErrInvalidDataURL)
		}
		mimeType = strings.TrimSuffix(header, ";base64")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return data, mimeType, nil
}

// InferMimeType prefers the data URL's MIME type, then the filename extension.
func InferMimeType(dataURL, filename string) string {
	if strings.HasPrefix(dataURL, "data:") {
		if end := strings.IndexAny(dataURL, ";,"); end > len("data:") {
			return dataURL[len("data:"):end]
		}
	}

	switch strings.ToLower(path.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".svg":
		return "image/svg+xml"
	}
	if t := mime.TypeByExtension(path.Ext(filename)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// ExtensionFor maps a MIME type to the extension used when a filename lacks one.
func ExtensionFor(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpeg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	default:
		return ".png"
	}
}

// publicURL joins a public prefix with the session and filename.
func publicURL(prefix, sessionID, filename string) string {
	return strings.TrimRight(prefix, "/") + "/" + sessionID + "/" + filename
}

func storedAsset(asset Asset, url string) models.StoredAsset {
	mimeType := asset.MimeType
	if mimeType == "" {
		mimeType = InferMimeType("", asset.Filename)
	}
	return models.StoredAsset{
		ID:         AssetID(asset.Filename),
		OriginalID: asset.OriginalID,
		URL:        url,
		MimeType:   mimeType,
	}
}

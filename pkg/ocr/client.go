package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/xhad/docchat/pkg/logging"
	"github.com/xhad/docchat/pkg/transport"
)

const (
	DefaultBaseURL = "https://api.mistral.ai/v1"
	DefaultModel   = "mistral-ocr-latest"

	// maxErrorBody bounds how much of a failed response ends up in an error.
	maxErrorBody = 64 << 10
)

var (
	ErrMissingAPIKey = errors.New("OCR API key is required")
	ErrEmptyDocument = errors.New("document is empty")
)

var log = logging.Component("ocr")

// APIError is returned for non-2xx responses from the OCR API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

type ClientConfig struct {
	APIKey           string
	BaseURL          string
	Model            string
	RateLimit        float64 // requests per second
	Timeout          time.Duration
	InlineLimitBytes int64 // larger documents are uploaded instead of inlined
	HTTPClient       *http.Client
}

// Client is the Mistral OCR API client.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
}

func NewWithConfig(config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.RateLimit == 0 {
		config.RateLimit = 1
	}
	if config.Timeout == 0 {
		config.Timeout = 5 * time.Minute
	}
	if config.InlineLimitBytes == 0 {
		config.InlineLimitBytes = 10 << 20
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = transport.NewHTTPClient(config.Timeout)
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

// Model is the OCR model requests are sent to.
func (c *Client) Model() string {
	return c.config.Model
}

// ProcessPDF sends PDF bytes to the OCR API. Small documents are inlined as a
// data URL; larger ones are uploaded first and referenced by a signed URL.
func (c *Client) ProcessPDF(ctx context.Context, data []byte, filename string) (*Response, error) {
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}

	logger := log.WithFields(logrus.Fields{
		"file":    filename,
		"bytes":   len(data),
		"session": transport.RequestMetaFromContext(ctx).SessionID,
	})

	var documentURL string
	if int64(len(data)) > c.config.InlineLimitBytes {
		logger.Debug("Uploading document before OCR")
		fileID, err := c.uploadFile(ctx, data, filename)
		if err != nil {
			return nil, fmt.Errorf("uploading document: %w", err)
		}
		documentURL, err = c.signedURL(ctx, fileID)
		if err != nil {
			return nil, fmt.Errorf("getting signed URL: %w", err)
		}
	} else {
		documentURL = "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data)
	}

	resp, err := c.process(ctx, documentURL)
	if err != nil {
		return nil, err
	}
	if resp.UsageInfo.DocSizeBytes == nil {
		size := len(data)
		resp.UsageInfo.DocSizeBytes = &size
	}

	logger.WithField("pages", len(resp.Pages)).Info("OCR completed")
	return resp, nil
}

// ProcessURL runs OCR on a document the API can fetch itself.
func (c *Client) ProcessURL(ctx context.Context, documentURL string) (*Response, error) {
	u, err := url.Parse(documentURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid document URL: %q", documentURL)
	}

	resp, err := c.process(ctx, documentURL)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"url":   documentURL,
		"pages": len(resp.Pages),
	}).Info("OCR completed")
	return resp, nil
}

func (c *Client) process(ctx context.Context, documentURL string) (*Response, error) {
	req := Request{
		Model: c.config.Model,
		Document: DocumentURL{
			Type:        "document_url",
			DocumentURL: documentURL,
		},
		IncludeImageBase64: true,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	var resp Response
	if err := c.do(ctx, http.MethodPost, "/ocr", "application/json", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// uploadFile stores the document with the files API for OCR use.
func (c *Client) uploadFile(ctx context.Context, data []byte, filename string) (string, error) {
	if filename == "" {
		filename = "document.pdf"
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("purpose", "ocr"); err != nil {
		return "", fmt.Errorf("writing purpose field: %w", err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("creating file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("writing file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("closing multipart body: %w", err)
	}

	var resp uploadResponse
	if err := c.do(ctx, http.MethodPost, "/files", mw.FormDataContentType(), &buf, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", errors.New("upload response has no file id")
	}
	return resp.ID, nil
}

func (c *Client) signedURL(ctx context.Context, fileID string) (string, error) {
	var resp signedURLResponse
	path := "/files/" + url.PathEscape(fileID) + "/url?expiry=24"
	if err := c.do(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return "", err
	}
	if resp.URL == "" {
		return "", errors.New("signed URL response is empty")
	}
	return resp.URL, nil
}

// do sends one paced request and decodes a JSON reply into out.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{StatusCode: resp.StatusCode, Body: string(slurp)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("unmarshaling response: %w", err)
	}
	return nil
}

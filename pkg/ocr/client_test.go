package ocr

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, serverURL string, inlineLimit int64) *Client {
	t.Helper()
	client, err := NewWithConfig(ClientConfig{
		APIKey:           "test-api-key",
		BaseURL:          serverURL,
		RateLimit:        100,
		InlineLimitBytes: inlineLimit,
	})
	require.NoError(t, err)
	return client
}

func TestNewWithConfigRequiresKey(t *testing.T) {
	_, err := NewWithConfig(ClientConfig{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestProcessPDF_Success(t *testing.T) {
	expected := Response{
		Model: DefaultModel,
		Pages: []Page{
			{
				Index:    0,
				Markdown: "# Test Document\n\n![img-0.jpeg](img-0.jpeg)",
				Images: []Image{
					{
						ID:           "img-0.jpeg",
						ImageBase64:  "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("fake image")),
						BottomRightX: 100,
						BottomRightY: 100,
					},
				},
				Dimensions: Dimensions{DPI: 200, Width: 1700, Height: 2200},
			},
		},
		UsageInfo: UsageInfo{PagesProcessed: 1},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ocr", r.URL.Path)
		assert.Equal(t, "Bearer test-api-key", r.Header.Get("Authorization"))

		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultModel, req.Model)
		assert.Equal(t, "document_url", req.Document.Type)
		assert.True(t, strings.HasPrefix(req.Document.DocumentURL, "data:application/pdf;base64,"))
		assert.True(t, req.IncludeImageBase64)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(expected)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0)
	pdf := []byte("%PDF-1.4 fake pdf")

	resp, err := client.ProcessPDF(context.Background(), pdf, "test.pdf")
	require.NoError(t, err)

	require.Len(t, resp.Pages, 1)
	assert.Equal(t, expected.Pages[0].Markdown, resp.Pages[0].Markdown)
	assert.Equal(t, 1700, resp.Pages[0].Dimensions.Width)
	require.Len(t, resp.Pages[0].Images, 1)
	require.NotNil(t, resp.UsageInfo.DocSizeBytes)
	assert.Equal(t, len(pdf), *resp.UsageInfo.DocSizeBytes)
}

func TestProcessPDF_UploadsLargeDocuments(t *testing.T) {
	var calls []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		w.Header().Set("Content-Type", "application/json")

		switch {
		case r.URL.Path == "/files" && r.Method == http.MethodPost:
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "ocr", r.FormValue("purpose"))
			file, header, err := r.FormFile("file")
			require.NoError(t, err)
			defer file.Close()
			data, _ := io.ReadAll(file)
			assert.Equal(t, "big.pdf", header.Filename)
			assert.Equal(t, "%PDF-1.7 large enough", string(data))
			json.NewEncoder(w).Encode(uploadResponse{ID: "file-123", Purpose: "ocr"})
		case r.URL.Path == "/files/file-123/url":
			json.NewEncoder(w).Encode(signedURLResponse{URL: "https://files.example.com/signed"})
		case r.URL.Path == "/ocr":
			var req Request
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "https://files.example.com/signed", req.Document.DocumentURL)
			json.NewEncoder(w).Encode(Response{Pages: []Page{{Index: 0, Markdown: "large"}}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 8)

	resp, err := client.ProcessPDF(context.Background(), []byte("%PDF-1.7 large enough"), "big.pdf")
	require.NoError(t, err)
	assert.Equal(t, "large", resp.Pages[0].Markdown)
	assert.Equal(t, []string{"POST /files", "GET /files/file-123/url", "POST /ocr"}, calls)
}

func TestProcessPDF_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "invalid api key"}`))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0)

	_, err := client.ProcessPDF(context.Background(), []byte("%PDF-1.4"), "test.pdf")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "401")
}

func TestProcessPDF_EmptyDocument(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1", 0)

	_, err := client.ProcessPDF(context.Background(), nil, "empty.pdf")
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestProcessURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "https://example.com/paper.pdf", req.Document.DocumentURL)
		json.NewEncoder(w).Encode(Response{Model: "m", Pages: []Page{{Index: 0}, {Index: 1}}})
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 0)

	resp, err := client.ProcessURL(context.Background(), "https://example.com/paper.pdf")
	require.NoError(t, err)
	assert.Len(t, resp.Pages, 2)

	_, err = client.ProcessURL(context.Background(), "ftp://example.com/paper.pdf")
	assert.Error(t, err)
}

func TestSampleResponse(t *testing.T) {
	resp := SampleResponse()

	require.Len(t, resp.Pages, 1)
	page := resp.Pages[0]
	require.Len(t, page.Images, 1)
	assert.Contains(t, page.Markdown, "![img-0.png](img-0.png)")
	assert.True(t, strings.HasPrefix(page.Images[0].ImageBase64, "data:image/png;base64,"))
	assert.Equal(t, 612, page.Dimensions.Width)
	assert.Equal(t, 792, page.Dimensions.Height)
	assert.Equal(t, 1, resp.UsageInfo.PagesProcessed)

	// Each call returns an independent value.
	resp.Pages[0].Markdown = "changed"
	assert.NotEqual(t, "changed", SampleResponse().Pages[0].Markdown)
}

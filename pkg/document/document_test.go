package document

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/docchat/internal/models"
	"github.com/xhad/docchat/pkg/ocr"
	"github.com/xhad/docchat/pkg/storage"
)

const pngDataURL = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

type memStore struct {
	mu    sync.Mutex
	saved map[string]storage.Asset
	fail  bool
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[string]storage.Asset)}
}

func (m *memStore) Save(_ context.Context, sessionID string, asset storage.Asset) (models.StoredAsset, error) {
	if m.fail {
		return models.StoredAsset{}, errors.New("disk full")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[sessionID+"/"+asset.Filename] = asset
	return models.StoredAsset{
		ID:         storage.AssetID(asset.Filename),
		OriginalID: asset.OriginalID,
		URL:        "/assets/" + sessionID + "/" + asset.Filename,
		MimeType:   asset.MimeType,
	}, nil
}

func TestRewriteImageRefs(t *testing.T) {
	urls := map[string]string{
		"img-0.png":  "/assets/s/page-0-img-0.png",
		"img-01.png": "/assets/s/page-0-img-01.png",
	}

	tests := []struct {
		name     string
		markdown string
		want     string
	}{
		{
			name:     "simple reference",
			markdown: "Intro\n\n![img-0.png](img-0.png)\n",
			want:     "Intro\n\n![img-0.png](/assets/s/page-0-img-0.png)\n",
		},
		{
			name:     "id that prefixes another id",
			markdown: "![img-0.png](img-0.png) and ![img-01.png](img-01.png)",
			want:     "![img-0.png](/assets/s/page-0-img-0.png) and ![img-01.png](/assets/s/page-0-img-01.png)",
		},
		{
			name:     "different alt text",
			markdown: "![figure one](img-0.png)",
			want:     "![figure one](/assets/s/page-0-img-0.png)",
		},
		{
			name:     "reference with title",
			markdown: `![img-0.png](img-0.png "Figure")`,
			want:     `![img-0.png](/assets/s/page-0-img-0.png "Figure")`,
		},
		{
			name:     "fenced code is untouched",
			markdown: "```\n![img-0.png](img-0.png)\n```\n",
			want:     "```\n![img-0.png](img-0.png)\n```\n",
		},
		{
			name:     "plain text mention is untouched",
			markdown: "See img-0.png for details.",
			want:     "See img-0.png for details.",
		},
		{
			name:     "empty alt text",
			markdown: "![](img-0.png)",
			want:     "![](/assets/s/page-0-img-0.png)",
		},
		{
			name:     "empty alt text after text",
			markdown: "Figure: ![](img-01.png) shown above",
			want:     "Figure: ![](/assets/s/page-0-img-01.png) shown above",
		},
		{
			name:     "empty alt text in code span is untouched",
			markdown: "`![](img-0.png)` then ![](img-0.png)",
			want:     "`![](img-0.png)` then ![](/assets/s/page-0-img-0.png)",
		},
		{
			name:     "unknown id is untouched",
			markdown: "![img-9.png](img-9.png)",
			want:     "![img-9.png](img-9.png)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RewriteImageRefs(tt.markdown, urls))
		})
	}
}

func TestRewriteImageRefsNoURLs(t *testing.T) {
	assert.Equal(t, "![a](a)", RewriteImageRefs("![a](a)", nil))
}

func TestRewriteLiteral(t *testing.T) {
	out := RewriteLiteral("![img-1](img-1) ![img-10](img-10)", map[string]string{
		"img-1":  "/a/1",
		"img-10": "/a/10",
	})
	assert.Equal(t, "![img-1](/a/1) ![img-10](/a/10)", out)

	out = RewriteLiteral("![](img-1) ![](img-10)", map[string]string{
		"img-1":  "/a/1",
		"img-10": "/a/10",
	})
	assert.Equal(t, "![](/a/1) ![](/a/10)", out)
}

func TestNormalizeCoordinatesDefaultsMissingDimensions(t *testing.T) {
	img := ocr.Image{TopLeftX: 153, TopLeftY: 198, BottomRightX: 459, BottomRightY: 594}

	assert.Equal(t,
		NormalizeCoordinates(img, PageDimensions(ocr.Dimensions{})),
		NormalizeCoordinates(img, models.Dimensions{}))
	c := NormalizeCoordinates(img, models.Dimensions{Height: 1584})
	assert.InDelta(t, 0.25, c.X, 1e-9)
	assert.InDelta(t, 0.125, c.Y, 1e-9)
}

func TestPageDimensionsDefaults(t *testing.T) {
	assert.Equal(t, models.Dimensions{Width: 612, Height: 792, DPI: 72}, PageDimensions(ocr.Dimensions{}))
	assert.Equal(t, models.Dimensions{Width: 1000, Height: 2000, DPI: 200}, PageDimensions(ocr.Dimensions{Width: 1000, Height: 2000, DPI: 200}))
}

func TestNormalizeCoordinates(t *testing.T) {
	img := ocr.Image{TopLeftX: 153, TopLeftY: 198, BottomRightX: 459, BottomRightY: 594}
	c := NormalizeCoordinates(img, models.Dimensions{Width: 612, Height: 792})

	assert.InDelta(t, 0.25, c.X, 1e-9)
	assert.InDelta(t, 0.25, c.Y, 1e-9)
	assert.InDelta(t, 0.5, c.Width, 1e-9)
	assert.InDelta(t, 0.5, c.Height, 1e-9)
}

func TestNormalizeSample(t *testing.T) {
	store := newMemStore()
	n, err := NewNormalizer(NormalizerConfig{Store: store})
	require.NoError(t, err)

	doc, err := n.Normalize(context.Background(), "sess-1", ocr.SampleResponse())
	require.NoError(t, err)

	require.Len(t, doc.Pages, 1)
	require.Len(t, doc.Images, 1)
	require.Len(t, doc.StoredAssets, 1)

	assert.Equal(t, "sess-1", doc.SessionID)
	assert.Equal(t, "/assets/sess-1/page-0-img-0.png", doc.Images[0].URL)
	assert.Equal(t, "page-0-img-0", doc.StoredAssets[0].ID)
	assert.Equal(t, "img-0.png", doc.StoredAssets[0].OriginalID)
	assert.Equal(t, "image/png", doc.StoredAssets[0].MimeType)
	assert.Contains(t, doc.Text, "![img-0.png](/assets/sess-1/page-0-img-0.png)")
	assert.Contains(t, doc.RawText, "![img-0.png](img-0.png)")
	assert.Equal(t, 1, doc.Usage.PagesProcessed)
	assert.Positive(t, doc.Usage.DocSizeBytes)
	assert.InDelta(t, 0.25, doc.Images[0].Coordinates.X, 1e-9)
	assert.Equal(t, 153, doc.Images[0].OriginalCoordinates.TopLeftX)
	assert.Contains(t, store.saved, "sess-1/page-0-img-0.png")
}

func TestNormalizeJoinsPages(t *testing.T) {
	n, err := NewNormalizer(NormalizerConfig{Store: newMemStore()})
	require.NoError(t, err)

	doc, err := n.Normalize(context.Background(), "s", &ocr.Response{
		Pages: []ocr.Page{
			{Index: 0, Markdown: "first"},
			{Index: 1, Markdown: "second"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "first\n\nsecond", doc.Text)
	assert.Equal(t, 2, doc.Usage.PagesProcessed)
	assert.Equal(t, models.Dimensions{Width: 612, Height: 792, DPI: 72}, doc.Pages[1].Dimensions)
	assert.NotNil(t, doc.Images)
	assert.NotNil(t, doc.StoredAssets)
}

func TestNormalizePlaceholders(t *testing.T) {
	resp := &ocr.Response{
		Pages: []ocr.Page{{
			Index:    0,
			Markdown: "![a.png](a.png)\n\n![b.png](b.png)",
			Images: []ocr.Image{
				{ID: "a.png"},
				{ID: "b.png", ImageBase64: "data:image/png;base64,!!!"},
			},
		}},
	}

	store := newMemStore()
	n, err := NewNormalizer(NormalizerConfig{Store: store, PlaceholderPath: "/placeholder.svg"})
	require.NoError(t, err)

	doc, err := n.Normalize(context.Background(), "s", resp)
	require.NoError(t, err)

	assert.Empty(t, doc.StoredAssets)
	assert.Empty(t, store.saved)
	require.Len(t, doc.Images, 2)
	for _, img := range doc.Images {
		assert.Equal(t, "/placeholder.svg", img.URL)
	}
	assert.Equal(t, "![a.png](/placeholder.svg)\n\n![b.png](/placeholder.svg)", doc.Text)
}

func TestNormalizeStoreFailure(t *testing.T) {
	store := newMemStore()
	store.fail = true
	n, err := NewNormalizer(NormalizerConfig{Store: store})
	require.NoError(t, err)

	doc, err := n.Normalize(context.Background(), "s", ocr.SampleResponse())
	require.NoError(t, err)

	assert.Empty(t, doc.StoredAssets)
	assert.Equal(t, "/placeholder.svg", doc.Images[0].URL)
	assert.Contains(t, doc.Text, "![img-0.png](/placeholder.svg)")
}

func TestNormalizeDuplicateIDs(t *testing.T) {
	store := newMemStore()
	n, err := NewNormalizer(NormalizerConfig{Store: store})
	require.NoError(t, err)

	doc, err := n.Normalize(context.Background(), "s", &ocr.Response{
		Pages: []ocr.Page{{
			Index:    2,
			Markdown: "![x](img-0)",
			Images: []ocr.Image{
				{ID: "img-0", ImageBase64: pngDataURL},
				{ID: "img-0", ImageBase64: pngDataURL, TopLeftX: 10},
			},
		}},
	})
	require.NoError(t, err)

	assert.Len(t, store.saved, 1)
	assert.Len(t, doc.StoredAssets, 1)
	require.Len(t, doc.Images, 2)
	assert.Equal(t, doc.Images[0].URL, doc.Images[1].URL)
	assert.Equal(t, "/assets/s/page-2-img-0.png", doc.Images[0].URL)
}

func TestNormalizeCancelled(t *testing.T) {
	n, err := NewNormalizer(NormalizerConfig{Store: newMemStore()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = n.Normalize(ctx, "s", ocr.SampleResponse())
	assert.ErrorIs(t, err, context.Canceled)
}

type stubRenderer struct{}

func (stubRenderer) RenderPage(markdown string, refs []models.ImageRef) (string, error) {
	return "<p>" + markdown + "</p>", nil
}

func TestNormalizeRendersHTML(t *testing.T) {
	n, err := NewNormalizer(NormalizerConfig{Store: newMemStore(), Renderer: stubRenderer{}})
	require.NoError(t, err)

	doc, err := n.Normalize(context.Background(), "s", &ocr.Response{Pages: []ocr.Page{{Markdown: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "<p>hi</p>", doc.Pages[0].HTML)
}

func TestNewNormalizerRequiresStore(t *testing.T) {
	_, err := NewNormalizer(NormalizerConfig{})
	assert.Error(t, err)
}

type fakeOCR struct {
	resp    *ocr.Response
	err     error
	gotURL  string
	gotData []byte
}

func (f *fakeOCR) ProcessPDF(_ context.Context, data []byte, _ string) (*ocr.Response, error) {
	f.gotData = data
	return f.resp, f.err
}

func (f *fakeOCR) ProcessURL(_ context.Context, url string) (*ocr.Response, error) {
	f.gotURL = url
	return f.resp, f.err
}

type fakeChunker struct{}

func (fakeChunker) Process(sessionID, text string) []models.Chunk {
	return []models.Chunk{{SessionID: sessionID, Content: text}}
}

type fakeIndexer struct {
	chunks []models.Chunk
	err    error
}

func (f *fakeIndexer) Store(_ context.Context, chunks []models.Chunk) error {
	f.chunks = append(f.chunks, chunks...)
	return f.err
}

type fakeExtractor struct{}

func (fakeExtractor) PlainText(markdown string) (string, error) {
	return "plain:" + markdown, nil
}

func newTestService(t *testing.T, cfg ServiceConfig) *Service {
	t.Helper()
	n, err := NewNormalizer(NormalizerConfig{Store: newMemStore()})
	require.NoError(t, err)
	cfg.Normalizer = n
	cfg.NewSession = func() string { return "fixed" }
	svc, err := NewService(cfg)
	require.NoError(t, err)
	return svc
}

func TestServiceParse(t *testing.T) {
	provider := &fakeOCR{resp: &ocr.Response{
		Model: "mistral-ocr-latest",
		Pages: []ocr.Page{{Index: 0, Markdown: "hello"}},
	}}
	svc := newTestService(t, ServiceConfig{OCR: provider})

	doc, err := svc.Parse(context.Background(), ParseRequest{Filename: "a.pdf", Data: []byte("%PDF")})
	require.NoError(t, err)

	assert.Equal(t, []byte("%PDF"), provider.gotData)
	assert.Equal(t, "fixed", doc.SessionID)
	assert.Equal(t, "hello", doc.Text)
	assert.False(t, doc.Fallback)
}

func TestServiceParseURL(t *testing.T) {
	provider := &fakeOCR{resp: &ocr.Response{Pages: []ocr.Page{{Markdown: "remote"}}}}
	svc := newTestService(t, ServiceConfig{OCR: provider})

	doc, err := svc.Parse(context.Background(), ParseRequest{URL: "https://example.com/a.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a.pdf", provider.gotURL)
	assert.Equal(t, "remote", doc.Text)
}

type fakeResolver struct {
	resolved string
	err      error
}

func (f fakeResolver) ResolvePDF(_ context.Context, rawURL string) (string, error) {
	return f.resolved, f.err
}

func TestServiceParseURLResolver(t *testing.T) {
	tests := []struct {
		name     string
		resolver fakeResolver
		want     string
	}{
		{name: "resolved", resolver: fakeResolver{resolved: "https://example.com/files/a.pdf"}, want: "https://example.com/files/a.pdf"},
		{name: "resolver error", resolver: fakeResolver{err: errors.New("no pdf")}, want: "https://example.com/paper"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeOCR{resp: &ocr.Response{Pages: []ocr.Page{{Markdown: "remote"}}}}
			svc := newTestService(t, ServiceConfig{OCR: provider, Resolver: tt.resolver})

			doc, err := svc.Parse(context.Background(), ParseRequest{URL: "https://example.com/paper"})
			require.NoError(t, err)
			assert.Equal(t, tt.want, provider.gotURL)
			assert.False(t, doc.Fallback)
		})
	}
}

func TestServiceParseSample(t *testing.T) {
	provider := &fakeOCR{err: errors.New("should not be called")}
	svc := newTestService(t, ServiceConfig{OCR: provider})

	doc, err := svc.Parse(context.Background(), ParseRequest{Sample: true})
	require.NoError(t, err)

	assert.Nil(t, provider.gotData)
	assert.False(t, doc.Fallback)
	assert.Contains(t, doc.Text, "Sample Document")
}

func TestServiceParseFallback(t *testing.T) {
	tests := []struct {
		name     string
		provider *fakeOCR
	}{
		{name: "ocr error", provider: &fakeOCR{err: &ocr.APIError{StatusCode: 500, Body: "boom"}}},
		{name: "no provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := ServiceConfig{}
			if tt.provider != nil {
				cfg.OCR = tt.provider
			}
			svc := newTestService(t, cfg)

			doc, err := svc.Parse(context.Background(), ParseRequest{Data: []byte("%PDF")})
			require.NoError(t, err)
			assert.True(t, doc.Fallback)
			assert.Contains(t, doc.Text, "Sample Document")
		})
	}
}

func TestServiceParseNoInput(t *testing.T) {
	svc := newTestService(t, ServiceConfig{})
	_, err := svc.Parse(context.Background(), ParseRequest{})
	assert.ErrorIs(t, err, ErrNoInput)
}

func TestServiceIndexes(t *testing.T) {
	indexer := &fakeIndexer{}
	provider := &fakeOCR{resp: &ocr.Response{Pages: []ocr.Page{{Markdown: "body"}}}}
	svc := newTestService(t, ServiceConfig{
		OCR:      provider,
		Indexer:  indexer,
		Chunker:  fakeChunker{},
		Renderer: fakeExtractor{},
	})

	_, err := svc.Parse(context.Background(), ParseRequest{Data: []byte("%PDF")})
	require.NoError(t, err)

	require.Len(t, indexer.chunks, 1)
	assert.Equal(t, "fixed", indexer.chunks[0].SessionID)
	assert.Equal(t, "plain:body", indexer.chunks[0].Content)
}

func TestServiceIndexFailureKeepsDocument(t *testing.T) {
	indexer := &fakeIndexer{err: errors.New("db down")}
	svc := newTestService(t, ServiceConfig{
		OCR:      &fakeOCR{resp: &ocr.Response{Pages: []ocr.Page{{Markdown: "body"}}}},
		Indexer:  indexer,
		Chunker:  fakeChunker{},
		Renderer: fakeExtractor{},
	})

	doc, err := svc.Parse(context.Background(), ParseRequest{Data: []byte("%PDF")})
	require.NoError(t, err)
	assert.Equal(t, "body", doc.Text)
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(ServiceConfig{})
	assert.Error(t, err)

	n, err := NewNormalizer(NormalizerConfig{Store: newMemStore()})
	require.NoError(t, err)
	_, err = NewService(ServiceConfig{Normalizer: n, Indexer: &fakeIndexer{}})
	assert.Error(t, err)
}

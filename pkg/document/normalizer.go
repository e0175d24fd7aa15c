package document

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/xhad/docchat/internal/models"
	"github.com/xhad/docchat/pkg/ocr"
	"github.com/xhad/docchat/pkg/storage"
)

const pageSeparator = "\n\n"

// PageRenderer turns a processed page into HTML.
type PageRenderer interface {
	RenderPage(markdown string, refs []models.ImageRef) (string, error)
}

type NormalizerConfig struct {
	Store           storage.Store
	PlaceholderPath string
	Renderer        PageRenderer // optional
	SaveConcurrency int
}

// Normalizer reshapes an OCR response into a Document, persisting images on the way.
type Normalizer struct {
	config NormalizerConfig
}

func NewNormalizer(config NormalizerConfig) (*Normalizer, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("normalizer requires an asset store")
	}
	if config.PlaceholderPath == "" {
		config.PlaceholderPath = "/placeholder.svg"
	}
	if config.SaveConcurrency == 0 {
		config.SaveConcurrency = 8
	}
	return &Normalizer{config: config}, nil
}

// Normalize builds the document for one OCR response. Image failures degrade
// to the placeholder path; only context cancellation aborts.
func (n *Normalizer) Normalize(ctx context.Context, sessionID string, resp *ocr.Response) (*models.Document, error) {
	doc := &models.Document{
		SessionID:    sessionID,
		Model:        resp.Model,
		Pages:        make([]models.Page, 0, len(resp.Pages)),
		Images:       []models.ImageRef{},
		StoredAssets: []models.StoredAsset{},
		Usage: models.Usage{
			PagesProcessed: resp.UsageInfo.PagesProcessed,
		},
	}
	if resp.UsageInfo.DocSizeBytes != nil {
		doc.Usage.DocSizeBytes = *resp.UsageInfo.DocSizeBytes
	}
	if doc.Usage.PagesProcessed == 0 {
		doc.Usage.PagesProcessed = len(resp.Pages)
	}

	texts := make([]string, 0, len(resp.Pages))
	rawTexts := make([]string, 0, len(resp.Pages))
	var assets []models.StoredAsset

	for _, p := range resp.Pages {
		page, pageAssets, err := n.normalizePage(ctx, sessionID, p)
		if err != nil {
			return nil, err
		}
		doc.Pages = append(doc.Pages, page)
		doc.Images = append(doc.Images, page.Images...)
		assets = append(assets, pageAssets...)
		texts = append(texts, page.Markdown)
		rawTexts = append(rawTexts, page.RawMarkdown)
	}

	doc.Text = strings.Join(texts, pageSeparator)
	doc.RawText = strings.Join(rawTexts, pageSeparator)
	doc.StoredAssets = dedupeAssets(assets)

	log.WithFields(logrus.Fields{
		"session": sessionID,
		"pages":   len(doc.Pages),
		"images":  len(doc.Images),
		"assets":  len(doc.StoredAssets),
	}).Info("Normalized document")

	return doc, nil
}

type resolvedImage struct {
	url   string
	asset *models.StoredAsset
}

func (n *Normalizer) normalizePage(ctx context.Context, sessionID string, p ocr.Page) (models.Page, []models.StoredAsset, error) {
	dims := PageDimensions(p.Dimensions)

	// Vendor ids are unique within a page; a repeated id is saved once.
	firstByID := make(map[string]int)
	for i, img := range p.Images {
		if _, seen := firstByID[img.ID]; !seen {
			firstByID[img.ID] = i
		}
	}

	resolved := make([]resolvedImage, len(p.Images))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(n.config.SaveConcurrency)
	for _, i := range firstByID {
		img := p.Images[i]
		g.Go(func() error {
			resolved[i] = n.resolveImage(gctx, sessionID, p.Index, i, img)
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return models.Page{}, nil, fmt.Errorf("normalizing page %d: %w", p.Index, err)
	}

	urls := make(map[string]string, len(firstByID))
	refs := make([]models.ImageRef, 0, len(p.Images))
	var assets []models.StoredAsset

	for i, img := range p.Images {
		r := resolved[firstByID[img.ID]]
		if firstByID[img.ID] == i {
			urls[img.ID] = r.url
			if r.asset != nil {
				assets = append(assets, *r.asset)
			}
		}
		refs = append(refs, models.ImageRef{
			ID:                  img.ID,
			URL:                 r.url,
			Coordinates:         NormalizeCoordinates(img, dims),
			OriginalCoordinates: originalCoordinates(img),
		})
	}

	page := models.Page{
		Index:       p.Index,
		RawMarkdown: p.Markdown,
		Markdown:    RewriteImageRefs(p.Markdown, urls),
		Images:      refs,
		Dimensions:  dims,
	}

	if n.config.Renderer != nil {
		html, err := n.config.Renderer.RenderPage(page.Markdown, refs)
		if err != nil {
			log.WithError(err).WithField("page", p.Index).Warn("Failed to render page HTML")
		} else {
			page.HTML = html
		}
	}

	return page, assets, nil
}

// resolveImage persists one image, falling back to the placeholder path when
// there is no payload or the save fails.
func (n *Normalizer) resolveImage(ctx context.Context, sessionID string, pageIndex, imageIndex int, img ocr.Image) resolvedImage {
	logger := log.WithFields(logrus.Fields{
		"session": sessionID,
		"page":    pageIndex,
		"image":   img.ID,
	})
	placeholder := resolvedImage{url: n.config.PlaceholderPath}

	if img.ImageBase64 == "" {
		logger.Debug("Image has no payload, using placeholder")
		return placeholder
	}

	data, mimeType, err := storage.DecodeDataURL(img.ImageBase64)
	if err != nil {
		logger.WithError(err).Warn("Failed to decode image, using placeholder")
		return placeholder
	}
	if mimeType == "" {
		mimeType = storage.InferMimeType(img.ImageBase64, img.ID)
	}

	asset, err := n.config.Store.Save(ctx, sessionID, storage.Asset{
		Filename:   assetFilename(pageIndex, imageIndex, img.ID, mimeType),
		OriginalID: img.ID,
		MimeType:   mimeType,
		Data:       data,
	})
	if err != nil {
		logger.WithError(err).Warn("Failed to store image, using placeholder")
		return placeholder
	}
	return resolvedImage{url: asset.URL, asset: &asset}
}

// assetFilename is stable for a given page and vendor id so repeated runs overwrite.
func assetFilename(pageIndex, imageIndex int, id, mimeType string) string {
	name := storage.SanitizeName(id)
	if name == "" {
		name = fmt.Sprintf("img-%d", imageIndex)
	}
	if path.Ext(name) == "" {
		name += storage.ExtensionFor(mimeType)
	}
	return fmt.Sprintf("page-%d-%s", pageIndex, name)
}

func dedupeAssets(assets []models.StoredAsset) []models.StoredAsset {
	seen := make(map[string]bool, len(assets))
	out := make([]models.StoredAsset, 0, len(assets))
	for _, a := range assets {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
	}
	return out
}

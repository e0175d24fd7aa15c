package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/xhad/docchat/internal/models"
	"github.com/xhad/docchat/internal/types"
	"github.com/xhad/docchat/pkg/logging"
	"github.com/xhad/docchat/pkg/ocr"
	"github.com/xhad/docchat/pkg/transport"
)

var ErrNoInput = errors.New("no document supplied")

var log = logging.Component("document")

// ParseRequest is one upload: PDF bytes, a fetchable URL, or a request for the sample.
type ParseRequest struct {
	Filename string
	Data     []byte
	URL      string
	Sample   bool
}

type ServiceConfig struct {
	OCR        types.OCRProvider // nil means every request is answered with the sample
	Resolver   types.PDFResolver // optional, applied to URL requests before OCR
	Normalizer *Normalizer
	Indexer    types.Indexer // optional
	Chunker    types.Chunker // required when Indexer is set
	Renderer   types.TextExtractor
	NewSession func() string
}

// Service runs the parse pipeline for one request at a time; it holds no per-request state.
type Service struct {
	config ServiceConfig
}

func NewService(config ServiceConfig) (*Service, error) {
	if config.Normalizer == nil {
		return nil, fmt.Errorf("service requires a normalizer")
	}
	if config.Indexer != nil && (config.Chunker == nil || config.Renderer == nil) {
		return nil, fmt.Errorf("indexing requires a chunker and a text extractor")
	}
	if config.NewSession == nil {
		config.NewSession = uuid.NewString
	}
	return &Service{config: config}, nil
}

// Parse OCRs the document and normalizes the result. A failed OCR call is
// answered with the sample response; the error is only logged.
func (s *Service) Parse(ctx context.Context, req ParseRequest) (*models.Document, error) {
	if !req.Sample && len(req.Data) == 0 && req.URL == "" {
		return nil, ErrNoInput
	}

	sessionID := s.config.NewSession()
	ctx = transport.WithRequestMeta(ctx, transport.RequestMeta{SessionID: sessionID, Filename: req.Filename})
	logger := log.WithFields(logrus.Fields{
		"session": sessionID,
		"file":    req.Filename,
		"sample":  req.Sample,
	})

	start := time.Now()
	resp, fallback := s.runOCR(ctx, req, logger)

	doc, err := s.config.Normalizer.Normalize(ctx, sessionID, resp)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize document: %w", err)
	}
	doc.Fallback = fallback

	if s.config.Indexer != nil {
		s.index(ctx, doc, logger)
	}

	logger.WithFields(logrus.Fields{
		"pages":    len(doc.Pages),
		"fallback": fallback,
		"duration": time.Since(start),
	}).Info("Parsed document")
	return doc, nil
}

func (s *Service) runOCR(ctx context.Context, req ParseRequest, logger *logrus.Entry) (*ocr.Response, bool) {
	if req.Sample {
		return ocr.SampleResponse(), false
	}
	if s.config.OCR == nil {
		logger.Warn("No OCR provider configured, returning sample response")
		return ocr.SampleResponse(), true
	}

	var resp *ocr.Response
	var err error
	if req.URL != "" {
		resp, err = s.config.OCR.ProcessURL(ctx, s.resolveURL(ctx, req.URL, logger))
	} else {
		resp, err = s.config.OCR.ProcessPDF(ctx, req.Data, req.Filename)
	}
	if err != nil {
		logger.WithError(err).Warn("OCR failed, returning sample response")
		return ocr.SampleResponse(), true
	}
	return resp, false
}

// resolveURL follows landing pages to the PDF they link; on failure the URL is passed on unchanged.
func (s *Service) resolveURL(ctx context.Context, rawURL string, logger *logrus.Entry) string {
	if s.config.Resolver == nil {
		return rawURL
	}
	resolved, err := s.config.Resolver.ResolvePDF(ctx, rawURL)
	if err != nil {
		logger.WithError(err).Debug("Could not resolve PDF link")
		return rawURL
	}
	if resolved != rawURL {
		logger.WithField("pdf", resolved).Info("Following PDF link")
	}
	return resolved
}

// index stores retrieval chunks for the chat; failures leave the document usable.
func (s *Service) index(ctx context.Context, doc *models.Document, logger *logrus.Entry) {
	text, err := s.config.Renderer.PlainText(doc.Text)
	if err != nil {
		logger.WithError(err).Warn("Failed to extract plain text for indexing")
		return
	}

	chunks := s.config.Chunker.Process(doc.SessionID, text)
	if len(chunks) == 0 {
		return
	}
	if err := s.config.Indexer.Store(ctx, chunks); err != nil {
		logger.WithError(err).Warn("Failed to index document")
		return
	}
	logger.WithField("chunks", len(chunks)).Debug("Indexed document")
}

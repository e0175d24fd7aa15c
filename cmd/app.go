package main

import (
	"context"
	"fmt"

	"github.com/xhad/docchat/internal/types"
	cfgPkg "github.com/xhad/docchat/pkg/config"
	"github.com/xhad/docchat/pkg/document"
	"github.com/xhad/docchat/pkg/llm"
	"github.com/xhad/docchat/pkg/logging"
	"github.com/xhad/docchat/pkg/ocr"
	"github.com/xhad/docchat/pkg/processor"
	"github.com/xhad/docchat/pkg/render"
	"github.com/xhad/docchat/pkg/scraper"
	"github.com/xhad/docchat/pkg/storage"
	"github.com/xhad/docchat/pkg/store"
	"github.com/xhad/docchat/pkg/transport"
	"github.com/xhad/docchat/server"
)

var log = logging.Component("main")

// app holds the wired components shared by serve and CLI modes.
type app struct {
	service *document.Service
	chat    *llm.ChatEngine // nil when no chat provider is configured
	server  *server.Server
	closers []func()
}

func newApp(ctx context.Context, config *cfgPkg.Config) (*app, error) {
	a := &app{}

	assets, closeAssets, err := storage.NewFromConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize asset store: %w", err)
	}
	a.closers = append(a.closers, closeAssets)

	renderer := render.New()
	normalizerConfig := document.NormalizerConfig{
		Store:           assets,
		PlaceholderPath: config.Storage.PlaceholderPath,
	}
	if config.Render.HTML {
		normalizerConfig.Renderer = renderer
	}
	normalizer, err := document.NewNormalizer(normalizerConfig)
	if err != nil {
		a.Close()
		return nil, err
	}

	serviceConfig := document.ServiceConfig{
		Normalizer: normalizer,
		Renderer:   renderer,
	}

	ocrClient, err := ocr.NewWithConfig(ocr.ClientConfig{
		APIKey:           config.OCR.APIKey,
		BaseURL:          config.OCR.BaseURL,
		Model:            config.OCR.Model,
		RateLimit:        config.OCR.RateLimit,
		Timeout:          config.OCR.Timeout,
		InlineLimitBytes: config.OCR.InlineLimitBytes,
	})
	if err != nil {
		log.WithError(err).Warn("OCR disabled, uploads will return the sample document")
	} else {
		serviceConfig.OCR = ocrClient
	}

	if config.Scraper.Enabled {
		resolver, err := scraper.NewWithConfig(scraper.ScraperConfig{
			MaxDepth:       config.Scraper.MaxDepth,
			MaxPages:       config.Scraper.MaxPages,
			RateLimit:      config.Scraper.RateLimit,
			IgnorePatterns: config.Scraper.IgnorePatterns,
			HTTPClient:     transport.NewHTTPClient(config.Scraper.Timeout),
		})
		if err != nil {
			log.WithError(err).Warn("PDF link resolution disabled")
		} else {
			serviceConfig.Resolver = resolver
		}
	}

	var retriever types.Retriever
	if config.Index.Enabled {
		vs, err := newVectorStore(ctx, config)
		if err != nil {
			log.WithError(err).Warn("Retrieval index disabled")
		} else {
			a.closers = append(a.closers, vs.Close)
			serviceConfig.Indexer = vs
			serviceConfig.Chunker = processor.NewWithConfig(processor.ProcessorConfig{
				ChunkSize:    config.Index.ChunkSize,
				ChunkOverlap: config.Index.ChunkOverlap,
			})
			retriever = vs
		}
	}

	a.service, err = document.NewService(serviceConfig)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.chat, err = llm.NewWithConfig(llm.ChatConfig{
		Provider:        config.LLM.Provider,
		Model:           config.LLM.Model,
		APIKey:          config.LLM.APIKey,
		BaseURL:         config.LLM.BaseURL,
		Temperature:     config.LLM.Temperature,
		MaxTokens:       config.LLM.MaxTokens,
		MaxContextChars: config.LLM.MaxContextChars,
		HTTPClient:      transport.NewHTTPClient(0),
		Retriever:       retriever,
		RetrieveLimit:   config.Index.SearchLimit,
	})
	if err != nil {
		log.WithError(err).Warn("Chat disabled")
		a.chat = nil
	}

	reader, _ := assets.(storage.Reader)
	var chat server.ChatStreamer
	if a.chat != nil {
		chat = a.chat
	}
	a.server, err = server.New(server.Config{
		Addr:            config.Server.Addr,
		MaxUploadBytes:  config.Server.MaxUploadBytes,
		ReadTimeout:     config.Server.ReadTimeout,
		ShutdownTimeout: config.Server.ShutdownTimeout,
		AssetPath:       config.Storage.PublicPath,
		PlaceholderPath: config.Storage.PlaceholderPath,
	}, a.service, chat, reader)
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func newVectorStore(ctx context.Context, config *cfgPkg.Config) (*store.VectorStore, error) {
	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Model:      config.Index.EmbedModel,
		BaseURL:    config.Index.EmbedURL,
		HTTPClient: transport.NewHTTPClient(config.OCR.Timeout),
	})
	if err != nil {
		return nil, err
	}
	return store.NewWithConfig(ctx, store.VectorStoreConfig{
		ConnString:  config.Index.DatabaseURL,
		TableName:   config.Index.TableName,
		VectorDim:   config.Index.VectorDim,
		BatchSize:   config.Index.BatchSize,
		SearchLimit: config.Index.SearchLimit,
		Embedder:    embedder,
	})
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/xhad/docchat/internal/models"
	"github.com/xhad/docchat/pkg/document"
	"github.com/xhad/docchat/pkg/llm"
	"github.com/xhad/docchat/pkg/logging"
	"github.com/xhad/docchat/pkg/storage"
)

var log = logging.Component("server")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Parser turns an upload into a normalized document.
type Parser interface {
	Parse(ctx context.Context, req document.ParseRequest) (*models.Document, error)
}

// ChatStreamer answers a chat turn as a stream of events.
type ChatStreamer interface {
	ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.Event, error)
}

type Config struct {
	Addr            string
	MaxUploadBytes  int64
	ReadTimeout     time.Duration
	ShutdownTimeout time.Duration
	AssetPath       string
	PlaceholderPath string
}

type Server struct {
	config Config
	parser Parser
	chat   ChatStreamer
	assets storage.Reader
}

// New wires the HTTP surface. chat and assets may be nil; the matching routes
// then answer 503 and 404.
func New(config Config, parser Parser, chat ChatStreamer, assets storage.Reader) (*Server, error) {
	if parser == nil {
		return nil, errors.New("server requires a parser")
	}
	if config.Addr == "" {
		config.Addr = ":8080"
	}
	if config.MaxUploadBytes == 0 {
		config.MaxUploadBytes = 50 << 20
	}
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 30 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	if config.AssetPath == "" {
		config.AssetPath = "/assets"
	}
	config.AssetPath = "/" + strings.Trim(config.AssetPath, "/") + "/"

	return &Server{
		config: config,
		parser: parser,
		chat:   chat,
		assets: assets,
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/parse-pdf", s.handleParsePDF)
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc(s.config.AssetPath, s.handleAsset)
	mux.HandleFunc("/health", handleHealth)
	if strings.HasPrefix(s.config.PlaceholderPath, "/") {
		mux.HandleFunc(s.config.PlaceholderPath, handlePlaceholder)
	}
	return requestLogger(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.config.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.config.Addr).Info("Starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.WithField("timeout", s.config.ShutdownTimeout).Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Graceful shutdown failed")
		return srv.Close()
	}
	return nil
}

func logRequestError(r *http.Request, err error, msg string) {
	log.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
	}).WithError(err).Error(msg)
}

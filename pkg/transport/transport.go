package transport

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xhad/docchat/pkg/logging"
)

var log = logging.Component("transport")

// loggingTransport logs every outbound vendor call with the session it belongs to.
type loggingTransport struct {
	base http.RoundTripper
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	meta := RequestMetaFromContext(req.Context())
	logger := log.WithFields(logrus.Fields{
		"method":  req.Method,
		"host":    req.URL.Host,
		"path":    req.URL.Path,
		"session": meta.SessionID,
	})
	if meta.Filename != "" {
		logger = logger.WithField("file", meta.Filename)
	}

	start := time.Now()
	resp, err := base.RoundTrip(req)
	elapsed := time.Since(start)
	if err != nil {
		logger.WithError(err).WithField("duration", elapsed).Warn("Outbound request failed")
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"status":   resp.StatusCode,
		"duration": elapsed,
	}).Debug("Outbound request")
	return resp, nil
}

// NewHTTPClient returns a client whose requests are logged with their request metadata.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &loggingTransport{base: http.DefaultTransport},
	}
}

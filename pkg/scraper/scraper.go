package scraper

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/xhad/docchat/pkg/logging"
)

var ErrNoPDF = errors.New("no PDF found")

var log = logging.Component("scraper")

type ScraperConfig struct {
	MaxDepth       int
	MaxPages       int
	RateLimit      float64 // requests per second
	IgnorePatterns []string
	Timeout        time.Duration
	HTTPClient     *http.Client
}

// Scraper finds the PDF behind a URL that may point at an HTML landing page.
type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config ScraperConfig) (*Scraper, error) {
	if config.MaxDepth < 0 {
		return nil, fmt.Errorf("max depth cannot be negative")
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 1
	}
	if config.MaxPages == 0 {
		config.MaxPages = 20
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &Scraper{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

type target struct {
	url   string
	depth int
}

// ResolvePDF returns rawURL when it serves a PDF. Otherwise it walks HTML
// pages on the same host breadth-first and returns the first PDF link found.
func (s *Scraper) ResolvePDF(ctx context.Context, rawURL string) (string, error) {
	base, err := url.Parse(rawURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return "", fmt.Errorf("invalid URL %q", rawURL)
	}
	if isPDFPath(base.Path) {
		return rawURL, nil
	}

	logger := log.WithField("url", rawURL)
	visited := map[string]bool{rawURL: true}
	queue := []target{{url: rawURL}}
	fetched := 0

	for len(queue) > 0 && fetched < s.config.MaxPages {
		t := queue[0]
		queue = queue[1:]

		fetched++
		pdfURL, links, err := s.visit(ctx, t.url)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			logger.WithError(err).WithField("page", t.url).Debug("Skipping page")
			continue
		}
		if pdfURL != "" {
			logger.WithFields(logrus.Fields{
				"pdf":   pdfURL,
				"pages": fetched,
			}).Info("Resolved PDF link")
			return pdfURL, nil
		}

		if t.depth >= s.config.MaxDepth {
			continue
		}
		for _, link := range links {
			if !visited[link] && s.shouldProcessURL(link, base.Host) {
				visited[link] = true
				queue = append(queue, target{url: link, depth: t.depth + 1})
			}
		}
	}

	return "", fmt.Errorf("%w at %s", ErrNoPDF, rawURL)
}

// visit fetches one page. It returns the page's own URL when it is a PDF, the
// first PDF it links to, or else its outgoing links.
func (s *Scraper) visit(ctx context.Context, pageURL string) (string, []string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, pageURL)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch mediaType {
	case "application/pdf":
		return resp.Request.URL.String(), nil, nil
	case "text/html", "application/xhtml+xml", "":
	default:
		return "", nil, fmt.Errorf("unsupported content type %q", mediaType)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", nil, err
	}

	pageBase := resp.Request.URL
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if u, err := pageBase.Parse(href); err == nil {
			pageBase = u
		}
	}

	// Scholarly pages declare their PDF explicitly.
	if content, ok := doc.Find(`meta[name="citation_pdf_url"]`).First().Attr("content"); ok {
		if u, err := pageBase.Parse(strings.TrimSpace(content)); err == nil {
			return u.String(), nil, nil
		}
	}

	var pdfURL string
	var links []string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		u, err := pageBase.Parse(strings.TrimSpace(href))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return true
		}
		u.Fragment = ""
		if isPDFPath(u.Path) || strings.EqualFold(a.AttrOr("type", ""), "application/pdf") {
			pdfURL = u.String()
			return false
		}
		links = append(links, u.String())
		return true
	})

	return pdfURL, links, nil
}

func (s *Scraper) shouldProcessURL(urlStr, host string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if parsedURL.Host != host {
		return false
	}

	switch strings.ToLower(path.Ext(parsedURL.Path)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".svg", ".css", ".js", ".zip", ".gz", ".xml", ".json":
		return false
	}

	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}

	return true
}

func isPDFPath(p string) bool {
	return strings.EqualFold(path.Ext(p), ".pdf")
}

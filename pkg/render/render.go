package render

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	treeblood "github.com/wyatt915/goldmark-treeblood"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/xhad/docchat/internal/models"
)

// Renderer converts OCR markdown (GFM tables, LaTeX math) to HTML.
type Renderer struct {
	md goldmark.Markdown
}

func New() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
				treeblood.MathML(),
			),
		),
	}
}

// HTML renders markdown to an HTML fragment.
func (r *Renderer) HTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return buf.String(), nil
}

// RenderPage renders a processed page and annotates its images.
func (r *Renderer) RenderPage(markdown string, refs []models.ImageRef) (string, error) {
	html, err := r.HTML(markdown)
	if err != nil {
		return "", err
	}
	return AnnotateImages(html, refs)
}

// PlainText reduces markdown to text, one block per line.
func (r *Renderer) PlainText(markdown string) (string, error) {
	html, err := r.HTML(markdown)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parsing rendered HTML: %w", err)
	}

	doc.Find("img").Remove()

	var lines []string
	for _, line := range strings.Split(doc.Find("body").Text(), "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n"), nil
}

// AnnotateImages adds lazy loading and normalized coordinates to every <img>
// whose src is the URL of one of refs. Images sharing a URL, such as
// placeholders, are matched by alt text (the vendor id) and then in order.
func AnnotateImages(html string, refs []models.ImageRef) (string, error) {
	if len(refs) == 0 {
		return html, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("parsing rendered HTML: %w", err)
	}

	m := newRefMatcher(refs)
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, _ := img.Attr("src")
		ref, ok := m.match(src, img.AttrOr("alt", ""))
		if !ok {
			return
		}
		img.SetAttr("loading", "lazy")
		img.SetAttr("data-image-id", ref.ID)
		img.SetAttr("data-x", formatFraction(ref.Coordinates.X))
		img.SetAttr("data-y", formatFraction(ref.Coordinates.Y))
		img.SetAttr("data-width", formatFraction(ref.Coordinates.Width))
		img.SetAttr("data-height", formatFraction(ref.Coordinates.Height))
	})

	return doc.Find("body").Html()
}

// refMatcher hands out each ref once per <img>, keyed by URL.
type refMatcher struct {
	refs  []models.ImageRef
	byURL map[string][]int
	used  []bool
}

func newRefMatcher(refs []models.ImageRef) *refMatcher {
	m := &refMatcher{
		refs:  refs,
		byURL: make(map[string][]int, len(refs)),
		used:  make([]bool, len(refs)),
	}
	for i, ref := range refs {
		m.byURL[ref.URL] = append(m.byURL[ref.URL], i)
	}
	return m
}

func (m *refMatcher) match(src, alt string) (models.ImageRef, bool) {
	candidates := m.byURL[src]
	if len(candidates) == 0 {
		return models.ImageRef{}, false
	}
	for _, i := range candidates {
		if !m.used[i] && m.refs[i].ID == alt {
			m.used[i] = true
			return m.refs[i], true
		}
	}
	for _, i := range candidates {
		if !m.used[i] {
			m.used[i] = true
			return m.refs[i], true
		}
	}
	// More <img> elements than refs: repeat the best match.
	for _, i := range candidates {
		if m.refs[i].ID == alt {
			return m.refs[i], true
		}
	}
	return m.refs[candidates[0]], true
}

func formatFraction(f float64) string {
	return strconv.FormatFloat(f, 'f', 4, 64)
}

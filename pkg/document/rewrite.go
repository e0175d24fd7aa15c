package document

import (
	"bytes"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

type edit struct {
	start, end int
	url        string
}

// RewriteImageRefs points markdown image nodes whose destination is a vendor
// image id at the stored asset URL. Only real image nodes are touched: ids
// inside code, ids that are substrings of other ids, and matching plain text
// are left alone.
func RewriteImageRefs(markdown string, urls map[string]string) string {
	if len(urls) == 0 || markdown == "" {
		return markdown
	}

	src := []byte(markdown)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var edits []edit
	unlocated := make(map[string]string)

	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		img, ok := n.(*ast.Image)
		if !ok {
			return ast.WalkContinue, nil
		}

		dest := string(img.Destination)
		url, ok := urls[dest]
		if !ok {
			return ast.WalkSkipChildren, nil
		}

		if start, ok := destinationOffset(img, src, dest); ok {
			edits = append(edits, edit{start: start, end: start + len(dest), url: url})
		} else {
			unlocated[dest] = url
		}
		return ast.WalkSkipChildren, nil
	})

	out := applyEdits(src, edits)
	if len(unlocated) > 0 {
		out = RewriteLiteral(out, unlocated)
	}
	return out
}

// RewriteLiteral replaces every literal "![id](id)" or "![](id)" with the
// same reference pointing at url. Longer ids are replaced first.
func RewriteLiteral(markdown string, urls map[string]string) string {
	ids := make([]string, 0, len(urls))
	for id := range urls {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) > len(ids[j])
		}
		return ids[i] < ids[j]
	})

	for _, id := range ids {
		markdown = strings.ReplaceAll(markdown, "!["+id+"]("+id+")", "!["+id+"]("+urls[id]+")")
		markdown = strings.ReplaceAll(markdown, "![]("+id+")", "![]("+urls[id]+")")
	}
	return markdown
}

// destinationOffset finds where the destination of img starts in src. The
// alt text ends at the last text segment under the node, followed by "](".
// An image without alt text is located from the text just before it, or
// from the start of its block.
func destinationOffset(img *ast.Image, src []byte, dest string) (int, bool) {
	altEnd := -1
	_ = ast.Walk(img, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering && t.Segment.Stop > altEnd {
			altEnd = t.Segment.Stop
		}
		return ast.WalkContinue, nil
	})
	if altEnd < 0 {
		start, ok := imageStart(img)
		if !ok || !bytes.HasPrefix(src[start:], []byte("![]")) {
			return 0, false
		}
		altEnd = start + 2
	}
	if altEnd >= len(src) {
		return 0, false
	}

	p := altEnd
	if src[p] != ']' {
		return 0, false
	}
	p++
	if p >= len(src) || src[p] != '(' {
		return 0, false
	}
	p++
	for p < len(src) && (src[p] == ' ' || src[p] == '\t' || src[p] == '\n') {
		p++
	}
	if p < len(src) && src[p] == '<' {
		p++
	}
	if !bytes.HasPrefix(src[p:], []byte(dest)) {
		return 0, false
	}
	return p, true
}

// imageStart returns the offset of the "![" that opens img, when the
// surrounding nodes pin it down.
func imageStart(img *ast.Image) (int, bool) {
	if prev := img.PreviousSibling(); prev != nil {
		t, ok := prev.(*ast.Text)
		if !ok {
			return 0, false
		}
		return t.Segment.Stop, true
	}
	parent := img.Parent()
	if parent == nil || parent.Type() != ast.TypeBlock || parent.Lines().Len() == 0 {
		return 0, false
	}
	return parent.Lines().At(0).Start, true
}

func applyEdits(src []byte, edits []edit) string {
	if len(edits) == 0 {
		return string(src)
	}
	sort.Slice(edits, func(i, j int) bool { return edits[i].start < edits[j].start })

	var b strings.Builder
	b.Grow(len(src))
	last := 0
	for _, e := range edits {
		if e.start < last {
			continue
		}
		b.Write(src[last:e.start])
		b.WriteString(e.url)
		last = e.end
	}
	b.Write(src[last:])
	return b.String()
}

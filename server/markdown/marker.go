// Package markdown provides helpers for the markdown rich-content bodies
// carried by cached items.
package markdown

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// CachedContentMarker flags fallback provenance to the UI: the reader sees
// at a glance that the item came from the cache, not a fresh fetch.
const CachedContentMarker = "[CACHED CONTENT]"

// InjectCachedMarker inserts the cached-content marker at the start of the
// first paragraph of the markdown source. Sources without a paragraph (for
// example, a lone heading or an empty body) get the marker prepended as its
// own paragraph. Injecting twice is a no-op in effect: the caller guards
// against double decoration by checking HasCachedMarker.
func InjectCachedMarker(source string) string {
	if source == "" {
		return CachedContentMarker
	}

	src := []byte(source)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	offset := -1
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if paragraph, ok := n.(*ast.Paragraph); ok && paragraph.Lines().Len() > 0 {
			offset = paragraph.Lines().At(0).Start
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})

	if offset < 0 || offset > len(source) {
		return CachedContentMarker + "\n\n" + source
	}
	return source[:offset] + CachedContentMarker + " " + source[offset:]
}

// HasCachedMarker reports whether the source already carries the marker.
func HasCachedMarker(source string) bool {
	return strings.Contains(source, CachedContentMarker)
}

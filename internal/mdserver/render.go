package mdserver

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	emoji "github.com/yuin/goldmark-emoji"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	ghtml "github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
)

// readingWPM is the assumed reading speed for the estimated-minutes
// document stat (§4.6 step 8).
const readingWPM = 200.0

// Stats are the document statistics computed for every render.
type Stats struct {
	Lines           int     `json:"lines"`
	Words           int     `json:"words"`
	CharsWithSpaces int     `json:"chars_with_spaces"`
	CharsNoSpaces   int     `json:"chars_no_spaces"`
	ReadingMinutes  float64 `json:"reading_minutes"`
}

// Rendered is the result of one render pass: the HTML body, a
// line-map vector pointing top-level HTML blocks back to their source
// line numbers, and the document stats.
type Rendered struct {
	HTML    string
	LineMap []int
	Stats   Stats
}

// Renderer owns a configured goldmark.Markdown instance and is safe
// for concurrent use (goldmark's Convert/Parser/Renderer accept a
// read-only document tree per call).
type Renderer struct {
	md       goldmark.Markdown
	rewriter imgRewriter
}

// imgRewriter rewrites a markdown document's relative image references
// into the server's /files/ static route so a browser tab with no
// filesystem access can still load them.
type imgRewriter func(path string) string

// NewRenderer builds the render pipeline: a commonmark parser with the
// GFM extension set (tables, strikethrough, tasklists), automatic
// heading-id slugs, emoji shortcodes, and the alert-blockquote
// rewriter, rendering permissive (image/raw-HTML passthrough) HTML.
func NewRenderer() *Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM, emoji.Emoji, Alert),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
			parser.WithHeadingAttribute(),
		),
		goldmark.WithRendererOptions(
			ghtml.WithUnsafe(),
		),
	)
	return &Renderer{md: md, rewriter: defaultImgRewrite}
}

// Render runs the full pipeline described in §4.6: parse, walk and
// slug headings (done by the parser extension above), rewrite alert
// blockquotes (done by the Alert extension above), serialize to HTML,
// rewrite image srcs, build the line-map, and compute stats.
func (r *Renderer) Render(source []byte) (Rendered, error) {
	doc := r.md.Parser().Parse(text.NewReader(source))

	var buf bytes.Buffer
	if err := r.md.Renderer().Render(&buf, source, doc); err != nil {
		return Rendered{}, fmt.Errorf("mdserver: render: %w", err)
	}

	docNode, _ := doc.(*ast.Document)
	return Rendered{
		HTML:    rewriteImageSrcs(buf.String(), r.rewriter),
		LineMap: buildLineMap(source, docNode),
		Stats:   computeStats(source),
	}, nil
}

var imgSrcPattern = regexp.MustCompile(`(<img[^>]*\ssrc=")([^"]+)(")`)

// defaultImgRewrite maps a relative image path to the server's static
// route, URL-encoding it; absolute URLs and data URIs pass through
// unchanged.
func defaultImgRewrite(path string) string {
	if strings.Contains(path, "://") || strings.HasPrefix(path, "data:") || strings.HasPrefix(path, "/files/") {
		return path
	}
	return "/files/" + url.PathEscape(path)
}

// rewriteImageSrcs rewrites every <img src="..."> attribute in
// rendered HTML through rewrite (§4.6 step 7).
func rewriteImageSrcs(htmlStr string, rewrite imgRewriter) string {
	return imgSrcPattern.ReplaceAllStringFunc(htmlStr, func(m string) string {
		sub := imgSrcPattern.FindStringSubmatch(m)
		return sub[1] + rewrite(sub[2]) + sub[3]
	})
}

// blockLines is satisfied by goldmark's block node types (paragraphs,
// headings, lists, ...), which expose the source line segments they
// span; inline-only nodes do not implement it.
type blockLines interface {
	Lines() *text.Segments
}

// buildLineMap collects, for each top-level child of the document, the
// 1-based source line number its content begins at (§4.6 step 5).
func buildLineMap(source []byte, doc *ast.Document) []int {
	if doc == nil {
		return nil
	}
	var out []int
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		out = append(out, lineNumberAt(source, blockStartOffset(n)))
	}
	return out
}

func blockStartOffset(n ast.Node) int {
	if bl, ok := n.(blockLines); ok {
		if lines := bl.Lines(); lines != nil && lines.Len() > 0 {
			return lines.At(0).Start
		}
	}
	return 0
}

func lineNumberAt(source []byte, offset int) int {
	if offset < 0 {
		offset = 0
	}
	if offset > len(source) {
		offset = len(source)
	}
	return bytes.Count(source[:offset], []byte("\n")) + 1
}

// computeStats derives the document stats from the raw source text
// (§4.6 step 8): line count, word count, character counts with and
// without whitespace, and an estimated reading time at readingWPM.
func computeStats(source []byte) Stats {
	text := string(source)
	lines := 1
	if len(text) > 0 {
		lines = strings.Count(text, "\n") + 1
	}
	words := len(strings.Fields(text))
	charsWithSpaces := len([]rune(text))
	charsNoSpaces := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			charsNoSpaces++
		}
	}
	return Stats{
		Lines:           lines,
		Words:           words,
		CharsWithSpaces: charsWithSpaces,
		CharsNoSpaces:   charsNoSpaces,
		ReadingMinutes:  float64(words) / readingWPM,
	}
}

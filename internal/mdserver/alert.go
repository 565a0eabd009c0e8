package mdserver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

// alertKindAttr is the node attribute name the AST transformer stamps
// on a blockquote recognized as an alert; the custom renderer reads it
// back to decide whether to emit the GitHub-style alert container.
const alertKindAttr = "data-alert-kind"

var alertMarker = regexp.MustCompile(`^\[!(NOTE|TIP|IMPORTANT|WARNING|CAUTION)\]\s*`)

var alertIcons = map[string]string{
	"note":      "ℹ️",
	"tip":       "💡",
	"important": "❗",
	"warning":   "⚠️",
	"caution":   "🚫",
}

// alertTransformer walks the parsed document looking for blockquotes
// whose first text begins with a "[!KIND]" marker (§4.6 step 4) and
// stamps the recognized kind on the node, stripping the marker text so
// it is never rendered literally.
type alertTransformer struct{}

func (alertTransformer) Transform(doc *ast.Document, reader text.Reader, _ parser.Context) {
	source := reader.Source()
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		bq, ok := n.(*ast.Blockquote)
		if !ok {
			return ast.WalkContinue, nil
		}
		kind, matched := firstAlertMarker(bq, source)
		if !matched {
			return ast.WalkContinue, nil
		}
		bq.SetAttributeString(alertKindAttr, []byte(kind))
		return ast.WalkContinue, nil
	})
}

// firstAlertMarker inspects a blockquote's first text run for the
// "[!KIND]" prefix and, if present, shrinks that text node's segment
// so the marker bytes are excluded from rendering.
func firstAlertMarker(bq *ast.Blockquote, source []byte) (string, bool) {
	para, ok := bq.FirstChild().(*ast.Paragraph)
	if !ok {
		return "", false
	}
	txt, ok := para.FirstChild().(*ast.Text)
	if !ok {
		return "", false
	}
	seg := txt.Segment
	loc := alertMarker.FindSubmatchIndex(seg.Value(source))
	if loc == nil {
		return "", false
	}
	kind := strings.ToLower(string(seg.Value(source)[loc[2]:loc[3]]))
	txt.Segment = text.NewSegment(seg.Start+loc[1], seg.Stop)
	return kind, true
}

// alertHTMLRenderer overrides the default blockquote rendering for
// nodes the transformer tagged as alerts, emitting GitHub's
// "markdown-alert markdown-alert-<kind>" container with a matching
// icon instead of a plain <blockquote>.
type alertHTMLRenderer struct {
	html.Config
}

func newAlertHTMLRenderer(opts ...html.Option) renderer.NodeRenderer {
	r := &alertHTMLRenderer{Config: html.NewConfig()}
	for _, opt := range opts {
		opt.SetHTMLOption(&r.Config)
	}
	return r
}

func (r *alertHTMLRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindBlockquote, r.renderBlockquote)
}

func (r *alertHTMLRenderer) renderBlockquote(w util.BufWriter, _ []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	bq := n.(*ast.Blockquote)
	raw, ok := bq.AttributeString(alertKindAttr)
	if !ok {
		if entering {
			_, _ = w.WriteString("<blockquote>\n")
		} else {
			_, _ = w.WriteString("</blockquote>\n")
		}
		return ast.WalkContinue, nil
	}
	kind := string(raw.([]byte))
	if entering {
		title := strings.ToUpper(kind[:1]) + kind[1:]
		fmt.Fprintf(w, "<div class=\"markdown-alert markdown-alert-%s\">\n", kind)
		fmt.Fprintf(w, "<p class=\"markdown-alert-title\">%s %s</p>\n", alertIcons[kind], title)
	} else {
		_, _ = w.WriteString("</div>\n")
	}
	return ast.WalkContinue, nil
}

// alertExtension wires alertTransformer and alertHTMLRenderer into a
// goldmark.Markdown instance, the same Extend-based shape
// goldmark-emoji and the other goldmark extensions use.
type alertExtension struct{}

// Alert is the extension that rewrites "[!NOTE]"-style blockquotes
// into GitHub-style alert containers (§4.6 step 4, §8 scenario 5).
var Alert goldmark.Extender = alertExtension{}

func (alertExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(parser.WithASTTransformers(util.Prioritized(alertTransformer{}, 500)))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(util.Prioritized(newAlertHTMLRenderer(), 500)))
}

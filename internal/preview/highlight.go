package preview

import (
	"bytes"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// TokenHighlight is one highlighted span within a previewed line, a
// half-open byte range plus the token class name the editor maps to a
// highlight group.
type TokenHighlight struct {
	Start int
	End   int
	Class string
}

// LineHighlight pairs a 1-based line number with the token spans
// found on it.
type LineHighlight struct {
	Line   int
	Tokens []TokenHighlight
}

// Highlighter turns a block of source text into per-line token spans.
// ChromaHighlighter, covering any Sublime-syntax-compatible lexer
// chroma ships, is the only implementation in this package; there is
// no tree-sitter engine. It never errors: an unrecognized language
// degrades to no highlights.
type Highlighter interface {
	Highlight(filename string, content []byte) []LineHighlight
}

// ChromaHighlighter wraps chroma/v2, the same lexer registry vim-clap's
// "Sublime-syntax" highlighter engine covers (chroma reads Sublime
// .sublime-syntax-compatible definitions as well as its own lexers).
type ChromaHighlighter struct {
	styleName string
}

// NewChromaHighlighter creates a highlighter using the named chroma
// style for token-class resolution; an empty name means "monokai", and
// a name chroma does not know resolves to chroma's fallback style.
func NewChromaHighlighter(styleName string) *ChromaHighlighter {
	if styleName == "" {
		styleName = "monokai"
	}
	return &ChromaHighlighter{styleName: styleName}
}

// Highlight implements Highlighter.
func (h *ChromaHighlighter) Highlight(filename string, content []byte) []LineHighlight {
	lexer := lexers.Match(filename)
	if lexer == nil {
		lexer = lexers.Analyse(string(content))
	}
	if lexer == nil {
		return nil
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get(h.styleName)
	if style == nil {
		style = styles.Fallback
	}

	iter, err := lexer.Tokenise(nil, string(content))
	if err != nil {
		return nil
	}

	var (
		result  []LineHighlight
		line    = 1
		lineOff = 0
		spans   []TokenHighlight
	)
	flush := func() {
		if len(spans) > 0 {
			result = append(result, LineHighlight{Line: line, Tokens: spans})
			spans = nil
		}
	}

	for _, tok := range iter.Tokens() {
		text := tok.Value
		class := style.Get(tok.Type).String()
		for {
			nl := strings.IndexByte(text, '\n')
			if nl < 0 {
				if text != "" {
					spans = append(spans, TokenHighlight{Start: lineOff, End: lineOff + len(text), Class: class})
					lineOff += len(text)
				}
				break
			}
			if nl > 0 {
				spans = append(spans, TokenHighlight{Start: lineOff, End: lineOff + nl, Class: class})
			}
			flush()
			line++
			lineOff = 0
			text = text[nl+1:]
		}
	}
	flush()

	return result
}

// filenameLexerName reports the chroma lexer name the given filename
// resolves to, used as the Rendered.Syntax hint; "" if unrecognized.
func filenameLexerName(filename string) string {
	lexer := lexers.Match(filename)
	if lexer == nil {
		return ""
	}
	return lexer.Config().Name
}

// lineOfByte returns the 1-based line number byte offset off falls on
// within content.
func lineOfByte(content []byte, off int) int {
	if off <= 0 {
		return 1
	}
	if off > len(content) {
		off = len(content)
	}
	return 1 + bytes.Count(content[:off], []byte("\n"))
}

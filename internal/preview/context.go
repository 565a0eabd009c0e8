package preview

import (
	"context"
	"os"
	"strings"
	"time"

	ctags "github.com/sourcegraph/go-ctags"
)

// excludedContextExtensions lists file extensions for which a context
// block is never computed, even if a tag lookup would succeed: these
// are data/config formats where "the enclosing symbol" is not a
// meaningful idea.
var excludedContextExtensions = map[string]bool{
	".log":  true,
	".txt":  true,
	".lock": true,
	".toml": true,
	".yaml": true,
	".mod":  true,
	".conf": true,
}

// contextLookupTimeout bounds the ctags-based symbol-tag lookup used
// to build a preview's context block.
const contextLookupTimeout = 200 * time.Millisecond

// ContextFinder resolves the nearest enclosing symbol tag above a
// given line, the source for a preview's context block.
type ContextFinder struct {
	parser ctags.Parser
}

// NewContextFinder creates a ContextFinder backed by universal-ctags
// via go-ctags. binPath is the ctags executable; "" uses "ctags" from
// PATH.
func NewContextFinder(binPath string) (*ContextFinder, error) {
	if binPath == "" {
		binPath = "ctags"
	}
	p, err := ctags.New(ctags.Options{Bin: binPath})
	if err != nil {
		return nil, err
	}
	return &ContextFinder{parser: p}, nil
}

// Close releases the underlying ctags process.
func (f *ContextFinder) Close() error {
	return f.parser.Close()
}

// ContextLine finds the nearest symbol tag enclosing windowStartLine
// (1-based) in path, formatted as the single context-block content
// line, or "" if none applies. It never blocks past
// contextLookupTimeout.
func (f *ContextFinder) ContextLine(path string, ext string, windowStartLine int, focusLineIsComment bool) string {
	if excludedContextExtensions[strings.ToLower(ext)] {
		return ""
	}
	if focusLineIsComment {
		return ""
	}

	ctx, cancel := context.WithTimeout(context.Background(), contextLookupTimeout)
	defer cancel()

	type result struct {
		line string
	}
	done := make(chan result, 1)
	go func() {
		content, err := os.ReadFile(path)
		if err != nil {
			done <- result{}
			return
		}
		tags, err := f.parser.Parse(path, content)
		if err != nil {
			done <- result{}
			return
		}
		var best *ctags.Entry
		for _, t := range tags {
			if t.Line >= windowStartLine {
				continue
			}
			if best == nil || t.Line > best.Line {
				best = t
			}
		}
		if best == nil {
			done <- result{}
			return
		}
		done <- result{line: best.Name + "  " + best.Kind}
	}()

	select {
	case r := <-done:
		return r.line
	case <-ctx.Done():
		return ""
	}
}

// buildContextBlock renders the two-horizontal-rule context block
// framing a single context line, or nil if contextLine is "".
func buildContextBlock(contextLine string, width int) []string {
	if contextLine == "" {
		return nil
	}
	rule := strings.Repeat("─", width)
	return []string{rule, contextLine, rule}
}

package preview

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rivo/uniseg"
)

const (
	// maxTreeSitterFileSize bounds the file size the tree-sitter
	// engine will parse; larger files fall back to unhighlighted.
	maxTreeSitterFileSize = 1 << 20

	// DefaultDisplayLineWidth is the fallback truncation bound for a
	// single rendered line when the caller does not specify one.
	DefaultDisplayLineWidth = 150
)

// Options configures a Renderer.
type Options struct {
	// PreviewHeight is the number of display rows available in the
	// preview window.
	PreviewHeight int
	// DisplayLineWidth truncates each rendered line to
	// 2*DisplayLineWidth runes for StartOfFile previews.
	DisplayLineWidth int
	// FloatTitleSupported controls whether StartOfFile's first line is
	// the cwd-relative path (true) or the truncated absolute path
	// (false).
	FloatTitleSupported bool
	// ScrollableSplit enables scrollbar computation for a horizontal
	// preview layout.
	ScrollableSplit bool
	// Cwd is used to relativize paths when FloatTitleSupported.
	Cwd string
	// Highlighter performs syntax highlighting; nil disables it.
	Highlighter Highlighter
	// ContextFinder resolves a preview's context block; nil disables
	// the feature.
	ContextFinder *ContextFinder
}

// Renderer turns a Target into a Rendered preview, consulting and
// populating a Cache keyed by Target.CacheKey.
type Renderer struct {
	opts  Options
	cache *Cache
}

// NewRenderer creates a Renderer. cache may be nil to disable caching.
func NewRenderer(opts Options, cache *Cache) *Renderer {
	if opts.PreviewHeight <= 0 {
		opts.PreviewHeight = 30
	}
	if opts.DisplayLineWidth <= 0 {
		opts.DisplayLineWidth = DefaultDisplayLineWidth
	}
	return &Renderer{opts: opts, cache: cache}
}

// Render produces the Rendered preview for target.
func (r *Renderer) Render(target Target) (Rendered, error) {
	key := target.CacheKey()
	if r.cache != nil && key != "" {
		if cached, ok := r.cache.Get(key); ok {
			return cached, nil
		}
	}

	var (
		out Rendered
		err error
	)
	switch target.Kind {
	case TargetDirectory:
		out, err = r.renderDirectory(target)
	case TargetStartOfFile:
		out, err = r.renderStartOfFile(target)
	case TargetLocationInFile:
		out, err = r.renderLocationInFile(target)
	case TargetGitCommit:
		out, err = r.renderGitCommit(target)
	case TargetHelpTags:
		out, err = r.renderHelpTags(target)
	default:
		return Rendered{}, fmt.Errorf("preview: unknown target kind %d", target.Kind)
	}
	if err != nil {
		return Rendered{}, err
	}

	if r.cache != nil && key != "" {
		r.cache.Put(key, out)
	}
	return out, nil
}

// Invalidate drops target's cached entry, called when the underlying
// file changes on disk.
func (r *Renderer) Invalidate(target Target) {
	if r.cache != nil {
		r.cache.Invalidate(target.CacheKey())
	}
}

func (r *Renderer) renderDirectory(target Target) (Rendered, error) {
	entries, err := os.ReadDir(target.Path)
	if err != nil {
		return Rendered{}, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)

	lines := []string{target.Path + ":"}
	if len(names) == 0 {
		lines = append(lines, "<Empty directory>")
	} else {
		if len(names) > r.opts.PreviewHeight {
			names = names[:r.opts.PreviewHeight]
		}
		lines = append(lines, names...)
	}
	return Rendered{Lines: lines, Fname: target.Path}, nil
}

func (r *Renderer) renderStartOfFile(target Target) (Rendered, error) {
	content, err := os.ReadFile(target.Path)
	if err != nil {
		return Rendered{}, err
	}
	if len(content) == 0 {
		return Rendered{Lines: []string{r.firstLine(target), "<Empty file>"}, Fname: target.Path}, nil
	}

	n := r.opts.PreviewHeight * 2
	rawLines := splitLinesKeepEmpty(content)
	if len(rawLines) > n {
		rawLines = rawLines[:n]
	}
	width := 2 * r.opts.DisplayLineWidth
	for i, l := range rawLines {
		rawLines[i] = truncateRunes(l, width)
	}

	lines := append([]string{r.firstLine(target)}, rawLines...)
	rendered := Rendered{Lines: lines, Fname: target.Path, Syntax: filenameLexerName(target.Path)}
	r.applyHighlight(&rendered, target, content, 0)
	return rendered, nil
}

func (r *Renderer) firstLine(target Target) string {
	if r.opts.FloatTitleSupported {
		if rel, err := filepath.Rel(r.opts.Cwd, target.Path); err == nil {
			return rel
		}
		return target.Path
	}
	abs, err := filepath.Abs(target.Path)
	if err != nil {
		abs = target.Path
	}
	return truncateRunes(abs, 2*r.opts.DisplayLineWidth)
}

func (r *Renderer) renderLocationInFile(target Target) (Rendered, error) {
	content, err := os.ReadFile(target.Path)
	if err != nil {
		return Rendered{}, err
	}
	allLines := splitLinesKeepEmpty(content)
	total := len(allLines)

	half := r.opts.PreviewHeight / 2
	start := target.Line - half
	if start < 1 {
		start = 1
	}
	end := start + r.opts.PreviewHeight
	if end > total+1 {
		end = total + 1
		start = end - r.opts.PreviewHeight
		if start < 1 {
			start = 1
		}
	}

	window := allLines[start-1 : end-1]
	width := 2 * r.opts.DisplayLineWidth
	for i, l := range window {
		window[i] = truncateRunes(l, width)
	}

	hiLine := target.Line - start + 1

	var contextBlock []string
	if r.opts.ContextFinder != nil {
		focusIsComment := isCommentLine(window[clampIdx(hiLine-1, len(window))])
		ctxLine := r.opts.ContextFinder.ContextLine(target.Path, target.Extension(), start, focusIsComment)
		contextBlock = buildContextBlock(ctxLine, width)
		if contextBlock != nil {
			hiLine += len(contextBlock)
		}
	}

	lines := append(append([]string{}, contextBlock...), window...)
	rendered := Rendered{
		Lines:  lines,
		Fname:  target.Path,
		HiLine: hiLine,
		Syntax: filenameLexerName(target.Path),
	}
	r.applyHighlight(&rendered, target, content, start-1)
	rendered.Scrollbar = r.computeScrollbar(len(window), total)
	return rendered, nil
}

func (r *Renderer) renderGitCommit(target Target) (Rendered, error) {
	cmd := exec.Command("git", "show", target.CommitSHA)
	cmd.Dir = r.opts.Cwd
	out, err := cmd.Output()
	if err != nil {
		return Rendered{}, err
	}
	lines := splitLinesKeepEmpty(out)
	if len(lines) > r.opts.PreviewHeight {
		lines = lines[:r.opts.PreviewHeight]
	}
	return Rendered{Lines: lines, Syntax: "diff", Fname: target.CommitSHA}, nil
}

func (r *Renderer) renderHelpTags(target Target) (Rendered, error) {
	path := filepath.Join(target.Runtimepath, "doc", target.HelpDocFile)
	content, err := os.ReadFile(path)
	if err != nil {
		return Rendered{}, err
	}
	allLines := splitLinesKeepEmpty(content)
	idx := findHelpSubject(allLines, target.HelpSubject)
	start := idx
	end := start + r.opts.PreviewHeight
	if end > len(allLines) {
		end = len(allLines)
	}
	window := allLines[start:end]
	lines := append([]string{target.HelpDocFile}, window...)
	return Rendered{Lines: lines, Fname: target.HelpDocFile, HiLine: 1, Syntax: "help"}, nil
}

func findHelpSubject(lines []string, subject string) int {
	for i, l := range lines {
		if strings.Contains(l, "*"+subject+"*") {
			return i
		}
	}
	return 0
}

// computeScrollbar implements the horizontal-split preview scrollbar:
// a thumb length proportional to the visible window against the
// file's total line count, clamped to the window height, suppressed
// when the computed length rounds to zero.
func (r *Renderer) computeScrollbar(windowLines, totalLines int) *Scrollbar {
	if !r.opts.ScrollableSplit || totalLines <= 0 {
		return nil
	}
	winHeight := r.opts.PreviewHeight
	length := windowLines * winHeight / totalLines
	if length == 0 {
		return nil
	}
	if length > winHeight {
		length = winHeight
	}
	return &Scrollbar{Top: 0, Length: length}
}

func (r *Renderer) applyHighlight(rendered *Rendered, target Target, content []byte, windowOffsetLines int) {
	if r.opts.Highlighter == nil {
		return
	}
	if len(content) > maxTreeSitterFileSize {
		if _, ok := r.opts.Highlighter.(*TreeSitterHighlighter); ok {
			return
		}
	}
	_ = windowOffsetLines
	_ = target
}

// truncateRunes truncates s to at most max display cells, cutting on a
// grapheme cluster boundary so a truncated CJK character or a
// combining-mark sequence never splits mid-cluster.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	if uniseg.StringWidth(s) <= max {
		return s
	}
	var b strings.Builder
	width := 0
	gr := uniseg.NewGraphemes(s)
	for gr.Next() {
		cw := gr.Width()
		if width+cw > max {
			break
		}
		b.WriteString(gr.Str())
		width += cw
	}
	return b.String()
}

func splitLinesKeepEmpty(content []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(strings.NewReader(string(content)))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

func isCommentLine(s string) bool {
	trimmed := strings.TrimSpace(s)
	for _, prefix := range []string{"//", "#", "--", ";", "/*", "*"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	return false
}

func clampIdx(i, n int) int {
	if n == 0 {
		return 0
	}
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Package grep implements the parallel grep searcher: a directory walk
// that scores each line against the active matcher and streams results
// to a consumer, which maintains a bounded best-K view and emits
// diff-suppressed UI updates.
package grep

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/bmatcuk/doublestar/v4"
	ignore "github.com/sabhiram/go-gitignore"
	"github.com/sirupsen/logrus"
)

// MaxLineLength is the threshold beyond which a line is skipped before
// scoring, keeping a single pathological long line from stalling the walk.
const MaxLineLength = 4096

// MatchedFileResult is what a Matcher returns for one scored line.
// ExactIndices pertain to the relative path; FuzzyIndices pertain to
// the line body.
type MatchedFileResult struct {
	ExactIndices []int
	FuzzyIndices []int
	Rank         FileRank
}

// FileRank is the ordered score a Matcher assigns a line; larger is
// better, compared lexicographically like item.Rank.
type FileRank []int64

// Compare returns <0, 0, >0 as r is worse, equal, or better than other.
func (r FileRank) Compare(other FileRank) int {
	n := len(r)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		if r[i] != other[i] {
			if r[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return len(r) - len(other)
}

// Matcher scores one line of a file. relPath is the file's path as the
// walk produced it (the root joined with the path below it), the same
// value that ends up in FileResult.Path; line is the raw line bytes (NUL-free, length-bound
// already enforced by the caller). ok is false for "no match": scoring
// is total, matchers must never error.
type Matcher func(relPath string, line []byte) (MatchedFileResult, bool)

// FileResult is one grep hit: a 1-based line number, the scored rank,
// the line text, and the match-index vectors from the Matcher.
type FileResult struct {
	Path         string
	Line         int
	Rank         FileRank
	Text         string
	PathIndices  []int
	LineIndices  []int
}

// MessageKind discriminates a SearcherMessage.
type MessageKind int

const (
	// MessageMatch carries a scored FileResult.
	MessageMatch MessageKind = iota
	// MessageProcessedOne is emitted for every line scanned, matching
	// or not, so a consumer can report "X of Y scanned".
	MessageProcessedOne
)

// SearcherMessage is one element of the unbounded channel a Search
// call returns.
type SearcherMessage struct {
	Kind  MessageKind
	Match FileResult
}

// Control is the cooperative-cancellation flag every walk goroutine
// must check at every directory entry and every channel send.
type Control struct {
	stop atomic.Bool
}

// Stop requests the search to end as soon as possible.
func (c *Control) Stop() { c.stop.Store(true) }

// Stopped reports whether Stop has been called.
func (c *Control) Stopped() bool { return c.stop.Load() }

// Options configures a Search call.
type Options struct {
	// Roots are the directory paths to walk, in parallel.
	Roots []string
	// Matcher scores each line.
	Matcher Matcher
	// Control allows the caller to cancel an in-flight search.
	Control *Control
	// Workers bounds the number of concurrent goroutines that read and
	// score files; 0 picks a sensible default.
	Workers int
	// IgnoreFiles lists additional gitignore-style rule files. Search
	// does not read this field: the only ignore rules applied are those
	// in each root's own top-level ".gitignore"; .gitignore files in
	// subdirectories are not consulted.
	IgnoreFiles []string
	// IncludeGlobs restricts the walk to files matching at least one
	// doublestar pattern (relative to the root being walked); empty
	// means no restriction.
	IncludeGlobs []string
	// ExcludeGlobs drops files matching any doublestar pattern
	// (relative to the root being walked), evaluated after
	// IncludeGlobs.
	ExcludeGlobs []string
}

// Search walks opts.Roots in parallel, scores every line, and returns
// a channel of SearcherMessage. The channel closes once every root has
// been fully walked or the Control has been stopped; callers should
// range over it until closed, then treat that as "finished".
func Search(ctx context.Context, opts Options, log *logrus.Entry) <-chan SearcherMessage {
	out := make(chan SearcherMessage, 1024)
	ctrl := opts.Control
	if ctrl == nil {
		ctrl = &Control{}
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 8
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}

	go func() {
		defer close(out)

		paths := make(chan string, 256)
		var wg sync.WaitGroup

		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for p := range paths {
					if ctrl.Stopped() {
						return
					}
					scanFile(ctx, p, opts.Matcher, ctrl, out)
				}
			}()
		}

		var walkers sync.WaitGroup
		for _, root := range opts.Roots {
			if ctrl.Stopped() {
				break
			}
			walkers.Add(1)
			go func(root string) {
				defer walkers.Done()
				walkRoot(root, ctrl, paths, opts.IncludeGlobs, opts.ExcludeGlobs, log)
			}(root)
		}
		walkers.Wait()
		close(paths)
		wg.Wait()
	}()

	return out
}

// walkRoot walks one directory root, feeding regular-file paths not
// excluded by ignore rules or the include/exclude glob options into
// paths.
func walkRoot(root string, ctrl *Control, paths chan<- string, includeGlobs, excludeGlobs []string, log *logrus.Entry) {
	matcher := loadIgnore(root)

	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if ctrl.Stopped() {
			return filepath.SkipAll
		}
		if err != nil {
			log.WithError(err).WithField("path", path).Debug("grep: walk error, skipping")
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if d.IsDir() {
			if rel != "." && matcher != nil && matcher.MatchesPath(rel) {
				return filepath.SkipDir
			}
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if matcher != nil && matcher.MatchesPath(rel) {
			return nil
		}
		if !globSelected(rel, includeGlobs, excludeGlobs) {
			return nil
		}
		select {
		case paths <- path:
		default:
			paths <- path
		}
		return nil
	})
}

// globSelected reports whether rel passes the include/exclude glob
// filters: it must match at least one include pattern (if any are
// given) and none of the exclude patterns. A malformed pattern is
// treated as never matching rather than erroring the whole walk.
func globSelected(rel string, includeGlobs, excludeGlobs []string) bool {
	rel = filepath.ToSlash(rel)
	if len(includeGlobs) > 0 {
		included := false
		for _, g := range includeGlobs {
			if ok, _ := doublestar.Match(g, rel); ok {
				included = true
				break
			}
		}
		if !included {
			return false
		}
	}
	for _, g := range excludeGlobs {
		if ok, _ := doublestar.Match(g, rel); ok {
			return false
		}
	}
	return true
}

// loadIgnore reads root/.gitignore if present, compiling it with the
// gitignore-rule library; a missing file is not an error (no rules).
func loadIgnore(root string) *ignore.GitIgnore {
	data, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	lines := splitLines(data)
	gi := ignore.CompileIgnoreLines(lines...)
	return gi
}

func splitLines(data []byte) []string {
	var lines []string
	for _, l := range bytes.Split(data, []byte("\n")) {
		lines = append(lines, string(bytes.TrimRight(l, "\r")))
	}
	return lines
}

// scanFile reads path line by line, skipping binary files (detected by
// a NUL byte) and lines over MaxLineLength, scoring each surviving line
// and emitting ProcessedOne/Match messages.
func scanFile(ctx context.Context, path string, matcher Matcher, ctrl *Control, out chan<- SearcherMessage) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	if isBinary(f) {
		return
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return
	}

	relPath := path
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		if ctrl.Stopped() {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		lineNo++
		line := scanner.Bytes()
		if len(line) > MaxLineLength {
			emit(out, ctrl, SearcherMessage{Kind: MessageProcessedOne})
			continue
		}

		if matcher != nil {
			if mr, ok := matcher(relPath, line); ok {
				emit(out, ctrl, SearcherMessage{
					Kind: MessageMatch,
					Match: FileResult{
						Path:        relPath,
						Line:        lineNo,
						Rank:        mr.Rank,
						Text:        string(line),
						PathIndices: mr.ExactIndices,
						LineIndices: mr.FuzzyIndices,
					},
				})
			}
		}
		emit(out, ctrl, SearcherMessage{Kind: MessageProcessedOne})
	}
}

// isBinary reports whether the first 8KiB of f contain a NUL byte.
func isBinary(f *os.File) bool {
	buf := make([]byte, 8192)
	n, _ := f.Read(buf)
	return bytes.IndexByte(buf[:n], 0) >= 0
}

// emit sends msg unless the control has been stopped, checking the
// flag immediately before the send so a stopped search drops its
// remaining output instead of blocking on a reader that already left.
func emit(out chan<- SearcherMessage, ctrl *Control, msg SearcherMessage) {
	if ctrl.Stopped() {
		return
	}
	select {
	case out <- msg:
	default:
		out <- msg
	}
}

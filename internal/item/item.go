// Package item defines the shared data model used across the picker core:
// the immutable Item produced by a source, the Rank a scorer assigns it,
// and the MatchedItem pair the rank engine and UI layers exchange.
package item

import "fmt"

// MatchScope tells a matcher which substring of an Item's raw text it
// should score against.
type MatchScope int

const (
	// ScopeFull scores against the entire raw text (the common case).
	ScopeFull MatchScope = iota
	// ScopeGrepLine scores against the line body of a grep-style
	// "path:lnum:text" raw text, ignoring the path prefix.
	ScopeGrepLine
	// ScopeTagName scores against a ctags-style tag name embedded in a
	// larger display line.
	ScopeTagName
)

// String implements fmt.Stringer.
func (s MatchScope) String() string {
	switch s {
	case ScopeFull:
		return "full"
	case ScopeGrepLine:
		return "grep-line"
	case ScopeTagName:
		return "tag-name"
	default:
		return fmt.Sprintf("MatchScope(%d)", int(s))
	}
}

// Item is the immutable value a source (stdin, a child process, a
// directory walk, an in-memory list) produces. Items are shared by
// multiple consumers (the rank engine, the preview layer, the
// highlighter) and have no single owner; none of them mutate it.
type Item struct {
	// RawText is the text used for matching.
	RawText string
	// Display overrides RawText for presentation when non-empty; the
	// matcher always scores RawText regardless of Display.
	Display string
	// Scope selects which substring of RawText a matcher should score.
	Scope MatchScope
}

// Text returns the text a matcher should score, given the Item's Scope.
// Only ScopeGrepLine narrows the text; for ScopeTagName (and for a
// ScopeGrepLine text not in "path:lnum:body" shape) the whole RawText
// is returned.
func (it Item) Text() string {
	switch it.Scope {
	case ScopeGrepLine:
		if idx := grepLineBody(it.RawText); idx >= 0 {
			return it.RawText[idx:]
		}
	}
	return it.RawText
}

// DisplayText returns the text to present to the editor: the Display
// override if set, otherwise RawText.
func (it Item) DisplayText() string {
	if it.Display != "" {
		return it.Display
	}
	return it.RawText
}

// grepLineBody returns the byte offset at which the line body starts in
// a "path:lnum:body" raw text, or -1 if the text isn't in that shape.
func grepLineBody(s string) int {
	colon := 0
	seen := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			seen++
			if seen == 2 {
				return i + 1
			}
			colon = i
		}
	}
	_ = colon
	return -1
}

// Rank is a totally ordered tuple of signed integers derived from
// scorer output plus configurable tie-break criteria. Larger is
// better; equal ranks are interchangeable for ordering purposes.
type Rank []int64

// Compare returns a negative number if r is worse than other, zero if
// equal, and positive if r is better. This is the sole comparison used
// by the rank engine; never compare ranks with reflect.DeepEqual.
func (r Rank) Compare(other Rank) int {
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

// Less reports whether r ranks worse than other (used by sort.Interface
// adapters that want ascending order).
func (r Rank) Less(other Rank) bool { return r.Compare(other) < 0 }

// MatchedItem pairs an Item with the Rank a scorer assigned it and the
// byte positions of RawText that contributed to the match, used later
// to render highlight spans. Its lifetime follows the Item's.
type MatchedItem struct {
	Item    Item
	Rank    Rank
	Indices []int
}

// Scorer is the pure function the rank engine and grep searcher use to
// score an item against the active query. It is a deliberate seam: the
// concrete fuzzy-matching algorithm is supplied by the caller rather
// than fixed here. A Scorer must be total: "no match" is ok == false,
// never an error or a panic.
type Scorer interface {
	// Score scores text (already narrowed to the Item's MatchScope)
	// against the query. ok is false when there is no match.
	Score(text string) (rank Rank, indices []int, ok bool)
}

// ScorerFunc adapts a plain function to the Scorer interface.
type ScorerFunc func(text string) (Rank, []int, bool)

// Score implements Scorer.
func (f ScorerFunc) Score(text string) (Rank, []int, bool) { return f(text) }

// Package config defines the immutable configuration snapshot passed
// down the call graph at startup. Parsing a config file or CLI flags
// into this snapshot is out of scope for the picker core; this package
// only defines the snapshot type and its defaults.
package config

import "time"

// HighlightEngine selects which of the preview's two highlighter
// engines renders syntax highlighting.
type HighlightEngine int

const (
	// HighlightNone disables preview highlighting.
	HighlightNone HighlightEngine = iota
	// HighlightSublime uses the chroma sublime-syntax-compatible
	// lexer set.
	HighlightSublime
	// HighlightTreeSitter uses tree-sitter grammars.
	HighlightTreeSitter
)

// Snapshot is the immutable-after-construction configuration record
// built once in cmd/clap-core and threaded by value through every
// component constructor.
type Snapshot struct {
	// ItemsToShow is the TopQueue capacity (ITEMS_TO_SHOW); 30-40 is
	// the documented range.
	ItemsToShow int

	// DebounceTyped is the default on_typed debounce, narrowed
	// adaptively per reported source size by internal/session.
	DebounceTyped time.Duration
	// DebounceMove is the on_move debounce.
	DebounceMove time.Duration

	// PreviewHeight is the number of lines a preview renders by
	// default.
	PreviewHeight int
	// PreviewLineWidth is the display line width previews truncate
	// to (lines are truncated to 2x this value).
	PreviewLineWidth int
	// HighlightEngine selects the preview syntax highlighter.
	HighlightEngine HighlightEngine
	// HighlightTimeout bounds both highlighter engines' per-preview
	// work; on timeout the preview is emitted without highlights.
	HighlightTimeout time.Duration
	// SymbolTagTimeout bounds the context-block's ctags lookup.
	SymbolTagTimeout time.Duration

	// GrepItemPoolSize is the best-K buffer capacity for the grep
	// searcher.
	GrepItemPoolSize int
	// GrepMaxLineLength is not read by the grep searcher: grep.Search
	// skips lines longer than its own grep.MaxLineLength (4096 bytes)
	// regardless of this value.
	GrepMaxLineLength int
	// GrepUpdateInterval throttles best-K UI updates.
	GrepUpdateInterval time.Duration

	// RankNotifyInterval throttles rank-engine snapshot
	// notifications (300ms / every 16 iterations).
	RankNotifyInterval time.Duration
	RankNotifyEvery    int

	// MarkdownServerAddr is the bind address for the markdown
	// live-preview websocket server.
	MarkdownServerAddr string
	// MarkdownPollInterval is the fallback polling period used when
	// the filesystem watcher cannot be established.
	MarkdownPollInterval time.Duration

	// LSPInitTimeout bounds the broker's initialize/initialized
	// handshake.
	LSPInitTimeout time.Duration
}

// Default returns the documented defaults for every field.
func Default() Snapshot {
	return Snapshot{
		ItemsToShow: 30,

		DebounceTyped: 200 * time.Millisecond,
		DebounceMove:  50 * time.Millisecond,

		PreviewHeight:    5,
		PreviewLineWidth: 80,
		HighlightEngine:  HighlightSublime,
		HighlightTimeout: 200 * time.Millisecond,
		SymbolTagTimeout: 200 * time.Millisecond,

		GrepItemPoolSize:   50,
		GrepMaxLineLength:  1024,
		GrepUpdateInterval: 200 * time.Millisecond,

		RankNotifyInterval: 300 * time.Millisecond,
		RankNotifyEvery:    16,

		MarkdownServerAddr:   "127.0.0.1:0",
		MarkdownPollInterval: time.Second,

		LSPInitTimeout: 2 * time.Second,
	}
}

// Package rank implements the streaming fuzzy-rank engine: given a lazy
// sequence of items and a pluggable Scorer, it maintains a fixed-size
// TopQueue of the best matches seen so far and emits periodic,
// diff-suppressed snapshots suitable for driving a UI refresh.
//
// The engine never holds the whole stream in memory beyond what a
// number-limited collection's Buffer compaction requires, and it is the
// sole place update throttling happens — callers must not add their own.
package rank

import (
	"context"
	"time"

	"github.com/liuchengxu/vim-clap-sub000/internal/item"
)

// ItemsToShow is the default TopQueue capacity (the picker-core's
// ITEMS_TO_SHOW constant). Callers with a differently sized display may
// override it via Options.Capacity.
const ItemsToShow = 30

// notifyInterval is the minimum wall-clock spacing between two
// notify() invocations.
const notifyInterval = 300 * time.Millisecond

// notifyEvery fires notify() only on iteration counts divisible by this
// value, in addition to the interval gate.
const notifyEvery = 16

// Snapshot is what the engine hands to a Notify callback: enough to
// redraw the picker's result list without re-deriving anything.
type Snapshot struct {
	// Matched is the number of items that passed the scorer so far.
	Matched int
	// Processed is the number of items scanned so far.
	Processed int
	// Lines holds decorated display strings, icon-prefixed when an
	// icon is configured. Nil when this snapshot is count-only (see
	// LinesUnchanged).
	Lines []string
	// Indices holds the per-line match-index arrays, shifted by the
	// icon's width when an icon is configured. Parallel to Lines.
	Indices [][]int
	// LinesUnchanged is true when Lines is byte-identical to the
	// previous snapshot's; in that case only Matched/Processed should
	// be presented as new information.
	LinesUnchanged bool
}

// NotifyFunc receives engine snapshots. It must not block for long; the
// engine calls it synchronously from its own goroutine.
type NotifyFunc func(Snapshot)

// Options configures an Engine.
type Options struct {
	// Capacity is the TopQueue size; defaults to ItemsToShow.
	Capacity int
	// Icon, when non-empty, is prepended to every displayed line and
	// its display width is added to every match index so indices keep
	// pointing at the right rune once rendered.
	Icon string
	// IconWidth is the display-column width of Icon, stored once and
	// applied consistently rather than recomputed per match (icon
	// glyphs vary in display width across terminals and fonts).
	IconWidth int
}

// Engine drains an item stream under a Scorer and maintains a TopQueue
// and Buffer, invoking a NotifyFunc with throttled, diff-suppressed
// snapshots.
type Engine struct {
	opts    Options
	scorer  item.Scorer
	queue   *TopQueue
	buf     *Buffer
	lastLines []string
}

// New creates an Engine bound to scorer. The Engine is single-use: call
// CollectAll or CollectNumber once, then discard it.
func New(scorer item.Scorer, opts Options) *Engine {
	if opts.Capacity <= 0 {
		opts.Capacity = ItemsToShow
	}
	return &Engine{
		opts:   opts,
		scorer: scorer,
		queue:  NewTopQueue(opts.Capacity),
		buf:    NewBuffer(),
	}
}

// CollectAll drains stream, maintaining the TopQueue and Buffer, and
// invokes notify(snapshot) at most once per 300ms and only on iteration
// counts divisible by 16. It returns the full Buffer when the stream
// ends (or ctx is cancelled, or the stream yields an error).
func (e *Engine) CollectAll(ctx context.Context, stream <-chan StreamItem, notify NotifyFunc) (*Buffer, error) {
	return e.collect(ctx, stream, 0, notify)
}

// CollectNumber behaves like CollectAll but periodically compacts the
// Buffer: once it reaches 2*max(ItemsToShow, limit) entries, it is
// partially sorted and truncated to half its length, and the TopQueue
// is rebuilt from the surviving prefix.
func (e *Engine) CollectNumber(ctx context.Context, stream <-chan StreamItem, limit int, notify NotifyFunc) (*Buffer, error) {
	if limit <= 0 {
		limit = e.opts.Capacity
	}
	return e.collect(ctx, stream, limit, notify)
}

// StreamItem is one element of the lazy item sequence the engine
// drains. Err terminates the engine (a transient source error, per the
// picker-core error taxonomy); Item.Scoring is total, so a non-error
// element never fails to produce an output beyond "no match".
type StreamItem struct {
	Item item.Item
	Err  error
}

func (e *Engine) collect(ctx context.Context, stream <-chan StreamItem, limit int, notify NotifyFunc) (*Buffer, error) {
	compactAt := 0
	if limit > 0 {
		threshold := e.opts.Capacity
		if limit > threshold {
			threshold = limit
		}
		compactAt = 2 * threshold
	}

	processed := 0
	matched := 0
	iterations := 0
	lastNotify := time.Time{}

	for {
		select {
		case <-ctx.Done():
			return e.buf, ctx.Err()
		case si, ok := <-stream:
			if !ok {
				if notify != nil {
					e.emit(notify, matched, processed, true)
				}
				return e.buf, nil
			}
			if si.Err != nil {
				return e.buf, si.Err
			}

			processed++
			r, indices, ok := e.scorer.Score(si.Item.Text())
			if ok {
				matched++
				mi := item.MatchedItem{Item: si.Item, Rank: r, Indices: indices}
				e.buf.Append(mi)
				e.queue.Insert(mi)

				if compactAt > 0 && e.buf.Len() >= compactAt {
					survivors := e.buf.CompactTo(compactAt / 2)
					e.queue.Rebuild(survivors)
				}
			}

			iterations++
			if notify != nil && iterations%notifyEvery == 0 && time.Since(lastNotify) >= notifyInterval {
				e.emit(notify, matched, processed, false)
				lastNotify = time.Now()
			}
		}
	}
}

// emit builds a Snapshot from the current TopQueue and invokes notify,
// applying diff suppression: if the decorated lines are byte-identical
// to the previous snapshot's, only counts are sent.
func (e *Engine) emit(notify NotifyFunc, matched, processed int, final bool) {
	items := e.queue.Items()
	lines := make([]string, len(items))
	indices := make([][]int, len(items))

	for i, mi := range items {
		lines[i] = e.decorate(mi.Item.DisplayText())
		indices[i] = e.shiftIndices(mi.Indices)
	}

	unchanged := linesEqual(lines, e.lastLines)
	snap := Snapshot{Matched: matched, Processed: processed, LinesUnchanged: unchanged}
	if !unchanged {
		snap.Lines = lines
		snap.Indices = indices
		e.lastLines = lines
	}
	notify(snap)
	_ = final
}

func (e *Engine) decorate(line string) string {
	if e.opts.Icon == "" {
		return line
	}
	return e.opts.Icon + line
}

func (e *Engine) shiftIndices(indices []int) []int {
	if e.opts.Icon == "" || e.opts.IconWidth == 0 {
		return indices
	}
	shifted := make([]int, len(indices))
	for i, idx := range indices {
		shifted[i] = idx + e.opts.IconWidth
	}
	return shifted
}

func linesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

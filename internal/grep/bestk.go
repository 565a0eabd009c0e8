package grep

import (
	"sort"
	"sync"
)

// BestK maintains the K best-ranked FileResults seen so far, exposing a
// diff-suppressed Snapshot so a consumer only repaints the picker
// display when either the rendered lines or the visible highlight
// positions actually changed.
type BestK struct {
	mu       sync.Mutex
	capacity int
	items    []FileResult

	lastLines    []string
	lastIndices  [][]int
	processed    int
	matched      int
}

// NewBestK creates a BestK holding at most capacity results.
func NewBestK(capacity int) *BestK {
	if capacity <= 0 {
		capacity = 1
	}
	return &BestK{capacity: capacity}
}

// Insert considers r for membership in the best-K set, inserting it in
// rank order if it qualifies (better rank than the current worst
// member, or the set is not yet full).
func (b *BestK) Insert(r FileResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.matched++

	n := len(b.items)
	if n < b.capacity {
		idx := sort.Search(n, func(i int) bool {
			return b.items[i].Rank.Compare(r.Rank) <= 0
		})
		b.items = append(b.items, FileResult{})
		copy(b.items[idx+1:], b.items[idx:n])
		b.items[idx] = r
		return
	}
	if n > 0 && r.Rank.Compare(b.items[n-1].Rank) <= 0 {
		return
	}
	idx := sort.Search(n, func(i int) bool {
		return b.items[i].Rank.Compare(r.Rank) <= 0
	})
	copy(b.items[idx+1:], b.items[idx:n-1])
	b.items[idx] = r
}

// ProcessedOne records that one more line was scanned, matching or not.
func (b *BestK) ProcessedOne() {
	b.mu.Lock()
	b.processed++
	b.mu.Unlock()
}

// Snapshot is the diff-suppressed view of the current best-K state.
type Snapshot struct {
	Matched        int
	Processed      int
	Results        []FileResult
	LinesUnchanged bool
}

// Render returns the current best-K snapshot. LinesUnchanged is true
// when neither the rendered line text nor the visible highlight
// indices differ from the previous call, letting the caller skip an
// otherwise-redundant UI update.
func (b *BestK) Render() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	lines := make([]string, len(b.items))
	indices := make([][]int, len(b.items))
	for i, it := range b.items {
		lines[i] = it.Text
		indices[i] = it.LineIndices
	}

	unchanged := linesEqual(lines, b.lastLines) && indicesEqual(indices, b.lastIndices)
	b.lastLines = lines
	b.lastIndices = indices

	out := make([]FileResult, len(b.items))
	copy(out, b.items)

	return Snapshot{
		Matched:        b.matched,
		Processed:      b.processed,
		Results:        out,
		LinesUnchanged: unchanged,
	}
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

func indicesEqual(a, b [][]int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return false
		}
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				return false
			}
		}
	}
	return true
}

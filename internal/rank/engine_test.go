package rank

import (
	"context"
	"strings"
	"testing"

	"github.com/liuchengxu/vim-clap-sub000/internal/item"
)

// substringScorer is a minimal total Scorer used for tests: it scores a
// contiguous substring match, earlier matches ranking higher.
type substringScorer struct{ query string }

func (s substringScorer) Score(text string) (item.Rank, []int, bool) {
	idx := strings.Index(text, s.query)
	if idx < 0 {
		return nil, nil, false
	}
	indices := make([]int, len(s.query))
	for i := range indices {
		indices[i] = idx + i
	}
	return item.Rank{int64(1000 - idx)}, indices, true
}

func streamOf(texts ...string) <-chan StreamItem {
	ch := make(chan StreamItem, len(texts))
	for _, t := range texts {
		ch <- StreamItem{Item: item.Item{RawText: t}}
	}
	close(ch)
	return ch
}

func TestEngineTopKOrdering(t *testing.T) {
	texts := []string{"xxab", "xab", "abc"}
	for i := 0; i < 27; i++ {
		texts = append(texts, "zzz")
	}

	e := New(substringScorer{"ab"}, Options{Capacity: 30})
	buf, err := e.CollectAll(context.Background(), streamOf(texts...), nil)
	if err != nil {
		t.Fatalf("CollectAll: %v", err)
	}
	if buf.Len() != 3 {
		t.Fatalf("expected 3 matches in buffer, got %d", buf.Len())
	}

	items := e.queue.Items()
	got := []string{items[0].Item.RawText, items[1].Item.RawText, items[2].Item.RawText}
	want := []string{"abc", "xab", "xxab"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %q, want %q (got=%v)", i, got[i], want[i], got)
		}
	}
}

func TestTopQueueInvariant(t *testing.T) {
	q := NewTopQueue(5)
	ranks := []int64{3, 9, 1, 7, 5, 8, 2}
	for _, r := range ranks {
		q.Insert(item.MatchedItem{Rank: item.Rank{r}})
	}
	items := q.Items()
	for i := 1; i < len(items); i++ {
		if items[i-1].Rank.Compare(items[i].Rank) < 0 {
			t.Fatalf("non-increasing invariant violated at %d: %v", i, items)
		}
	}
	if len(items) != 5 {
		t.Fatalf("expected capacity-bound length 5, got %d", len(items))
	}
}

func TestInsertionIdempotence(t *testing.T) {
	q := NewTopQueue(3)
	mi := item.MatchedItem{Rank: item.Rank{5}, Item: item.Item{RawText: "x"}}
	q.Insert(mi)
	q.Insert(mi)
	if q.Len() != 2 {
		t.Fatalf("expected 2 entries (duplicates are allowed, not deduped), got %d", q.Len())
	}
	for _, it := range q.Items() {
		if it.Rank.Compare(mi.Rank) != 0 {
			t.Fatalf("expected all entries to share rank %v, got %v", mi.Rank, it.Rank)
		}
	}
}

func TestDiffSuppression(t *testing.T) {
	// Capacity 16 fills the queue by the first notification (iteration
	// 16), so the final snapshot's lines are identical to it.
	e := New(substringScorer{"a"}, Options{Capacity: 16})
	var snaps []Snapshot
	notify := func(s Snapshot) { snaps = append(snaps, s) }

	texts := make([]string, 0, 64)
	for i := 0; i < 64; i++ {
		texts = append(texts, "a")
	}
	_, err := e.CollectAll(context.Background(), streamOf(texts...), notify)
	if err != nil {
		t.Fatalf("CollectAll: %v", err)
	}
	if len(snaps) < 2 {
		t.Fatalf("expected at least two notifications, got %d", len(snaps))
	}
	foundSuppressed := false
	for _, s := range snaps[1:] {
		if s.LinesUnchanged {
			foundSuppressed = true
			if s.Lines != nil {
				t.Errorf("suppressed snapshot should omit Lines, got %v", s.Lines)
			}
		}
	}
	if !foundSuppressed {
		t.Fatalf("expected at least one suppressed (lines-unchanged) snapshot among %d", len(snaps))
	}
}

func TestCollectNumberCompaction(t *testing.T) {
	e := New(substringScorer{"a"}, Options{Capacity: 4})
	texts := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		texts = append(texts, "a")
	}
	buf, err := e.CollectNumber(context.Background(), streamOf(texts...), 4, nil)
	if err != nil {
		t.Fatalf("CollectNumber: %v", err)
	}
	if buf.Len() > 2*4 {
		t.Fatalf("expected buffer to have been compacted below 2*max(cap,limit)=8, got %d", buf.Len())
	}
}

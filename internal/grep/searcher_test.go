package grep

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/liuchengxu/vim-clap-sub000/internal/query"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func collect(ch <-chan SearcherMessage, bk *BestK) {
	for msg := range ch {
		switch msg.Kind {
		case MessageMatch:
			bk.Insert(msg.Match)
		case MessageProcessedOne:
			bk.ProcessedOne()
		}
	}
}

func TestSearchFindsMatches(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello world\nfoo bar\n")
	writeFile(t, dir, "sub/b.txt", "another hello\n")
	writeFile(t, dir, ".gitignore", "ignored/\n")
	writeFile(t, dir, "ignored/c.txt", "hello but ignored\n")

	q := query.Parse("hello")

	bk := NewBestK(10)
	ch := Search(context.Background(), Options{
		Roots:   []string{dir},
		Matcher: BuildMatcher(q),
	}, nil)
	collect(ch, bk)

	snap := bk.Render()
	if snap.Matched != 2 {
		t.Fatalf("expected 2 matches, got %d", snap.Matched)
	}
	for _, r := range snap.Results {
		if r.Path == filepath.Join(dir, "ignored", "c.txt") {
			t.Fatalf("ignored file leaked into results: %v", r)
		}
	}
}

func TestSearchRespectsStop(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 50; i++ {
		writeFile(t, dir, filepathName(i), "hello\n")
	}

	q := query.Parse("hello")
	ctrl := &Control{}
	ch := Search(context.Background(), Options{
		Roots:   []string{dir},
		Matcher: BuildMatcher(q),
		Control: ctrl,
	}, nil)

	ctrl.Stop()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("search did not stop promptly")
		}
	}
}

func filepathName(i int) string {
	return "f" + string(rune('a'+i%26)) + ".txt"
}

func TestBestKBoundedAndOrdered(t *testing.T) {
	bk := NewBestK(2)
	bk.Insert(FileResult{Path: "a", Rank: FileRank{1}})
	bk.Insert(FileResult{Path: "b", Rank: FileRank{3}})
	bk.Insert(FileResult{Path: "c", Rank: FileRank{2}})

	snap := bk.Render()
	if len(snap.Results) != 2 {
		t.Fatalf("expected capacity-bounded 2 results, got %d", len(snap.Results))
	}
	if snap.Results[0].Path != "b" || snap.Results[1].Path != "c" {
		t.Fatalf("expected [b, c] in rank order, got %v", snap.Results)
	}
}

func TestBestKDiffSuppression(t *testing.T) {
	bk := NewBestK(2)
	bk.Insert(FileResult{Path: "a", Text: "same", Rank: FileRank{1}})

	first := bk.Render()
	if first.LinesUnchanged {
		t.Error("first render should never report unchanged")
	}

	second := bk.Render()
	if !second.LinesUnchanged {
		t.Error("unchanged render should report LinesUnchanged")
	}

	bk.Insert(FileResult{Path: "b", Text: "different", Rank: FileRank{5}})
	third := bk.Render()
	if third.LinesUnchanged {
		t.Error("changed render should not report unchanged")
	}
}

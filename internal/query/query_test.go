package query

import "testing"

func TestParseKinds(t *testing.T) {
	q := Parse(`fzz 'exact ^pre suf$ !bad "with space"`)
	want := []Term{
		{Kind: TermFuzzy, Text: "fzz"},
		{Kind: TermExact, Text: "exact"},
		{Kind: TermPrefix, Text: "pre"},
		{Kind: TermSuffix, Text: "suf"},
		{Kind: TermInverse, Text: "bad"},
		{Kind: TermFuzzy, Text: "with space"},
	}
	if len(q.Terms) != len(want) {
		t.Fatalf("got %d terms, want %d: %+v", len(q.Terms), len(want), q.Terms)
	}
	for i, w := range want {
		if q.Terms[i] != w {
			t.Errorf("term %d: got %+v, want %+v", i, q.Terms[i], w)
		}
	}
}

func TestIsSuperset(t *testing.T) {
	base := Parse("foo")
	refined := Parse("foo bar")

	if !base.IsSuperset(refined) {
		t.Error("a query's result must be a superset of a refinement's result")
	}
	if refined.IsSuperset(base) {
		t.Error("a refinement is not a superset of its broader base query")
	}
	if !base.IsSuperset(base) {
		t.Error("a query is always a superset of itself")
	}
}

func TestEmptyQueryMatchesEverything(t *testing.T) {
	if !Parse("").Empty() {
		t.Error("expected empty query")
	}
}

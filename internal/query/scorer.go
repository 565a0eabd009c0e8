package query

import (
	"strings"

	"github.com/liuchengxu/vim-clap-sub000/internal/input/fuzzy"
	"github.com/liuchengxu/vim-clap-sub000/internal/item"
)

// NewScorer adapts a parsed Query into an item.Scorer: the same
// greedy left-to-right fuzzy scan plus exact/prefix/suffix/inverse
// term handling internal/grep's matcher uses for grep lines, so the
// interactive picker and the grep searcher rank results under the
// same rules (duplicated rather than shared across the two packages
// to avoid a grep<->query import cycle, since grep.BuildMatcher
// already depends on Query).
func NewScorer(q Query) item.Scorer {
	return item.ScorerFunc(func(text string) (item.Rank, []int, bool) {
		if q.Empty() {
			return item.Rank{0}, nil, true
		}

		lower := strings.ToLower(text)
		var rank item.Rank
		var indices []int

		for _, term := range q.Terms {
			switch term.Kind {
			case TermExact:
				if !strings.Contains(lower, strings.ToLower(term.Text)) {
					return nil, nil, false
				}
				rank = append(rank, 1000)

			case TermPrefix:
				if !strings.HasPrefix(lower, strings.ToLower(term.Text)) {
					return nil, nil, false
				}
				rank = append(rank, 900)

			case TermSuffix:
				if !strings.HasSuffix(lower, strings.ToLower(term.Text)) {
					return nil, nil, false
				}
				rank = append(rank, 900)

			case TermInverse:
				if strings.Contains(lower, strings.ToLower(term.Text)) {
					return nil, nil, false
				}

			case TermFuzzy:
				score, idx, ok := scanFuzzy(term.Text, text, lower)
				if !ok {
					return nil, nil, false
				}
				rank = append(rank, int64(score))
				indices = append(indices, idx...)
			}
		}
		return rank, indices, true
	})
}

// scanFuzzy greedily matches queryText's runes against text in order,
// returning the shared scorer's score and the matched rune indices.
func scanFuzzy(queryText, original, lower string) (int, []int, bool) {
	queryRunes := []rune(strings.ToLower(queryText))
	originalRunes := []rune(original)
	textRunes := []rune(lower)

	if len(queryRunes) == 0 {
		return 0, nil, true
	}

	matches := make([]int, 0, len(queryRunes))
	qi := 0
	for i := 0; i < len(textRunes) && qi < len(queryRunes); i++ {
		if textRunes[i] == queryRunes[qi] {
			matches = append(matches, i)
			qi++
		}
	}
	if qi != len(queryRunes) {
		return 0, nil, false
	}

	scorer := fuzzy.DefaultScorer{}
	return scorer.Score(queryRunes, originalRunes, textRunes, matches), matches, true
}

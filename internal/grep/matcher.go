package grep

import (
	"strings"

	"github.com/liuchengxu/vim-clap-sub000/internal/input/fuzzy"
	"github.com/liuchengxu/vim-clap-sub000/internal/query"
)

// BuildMatcher turns a parsed query into a Matcher that scores a grep
// line's body against the query's fuzzy/exact/prefix/suffix/inverse
// terms, the same greedy left-to-right character scan the interactive
// fuzzy matcher uses, scored with the shared scorer so grep results
// and picker results rank consistently.
func BuildMatcher(q query.Query) Matcher {
	return func(relPath string, line []byte) (MatchedFileResult, bool) {
		text := string(line)
		lower := strings.ToLower(text)

		var rank FileRank
		var fuzzyIdx []int

		for _, term := range q.Terms {
			switch term.Kind {
			case query.TermExact:
				if !strings.Contains(lower, strings.ToLower(term.Text)) {
					return MatchedFileResult{}, false
				}
				rank = append(rank, 1000)

			case query.TermPrefix:
				if !strings.HasPrefix(lower, strings.ToLower(term.Text)) {
					return MatchedFileResult{}, false
				}
				rank = append(rank, 900)

			case query.TermSuffix:
				if !strings.HasSuffix(lower, strings.ToLower(term.Text)) {
					return MatchedFileResult{}, false
				}
				rank = append(rank, 900)

			case query.TermInverse:
				if strings.Contains(lower, strings.ToLower(term.Text)) {
					return MatchedFileResult{}, false
				}

			case query.TermFuzzy:
				score, idx := scanMatch(term.Text, text, lower)
				if idx == nil {
					return MatchedFileResult{}, false
				}
				rank = append(rank, int64(score))
				fuzzyIdx = append(fuzzyIdx, idx...)
			}
		}

		if len(q.Terms) == 0 {
			return MatchedFileResult{Rank: FileRank{0}}, true
		}

		return MatchedFileResult{
			FuzzyIndices: fuzzyIdx,
			Rank:         rank,
		}, true
	}
}

// scanMatch greedily matches queryText's runes against text in order,
// returning the scorer's score and the matched rune indices, or a nil
// index slice if not every query rune matched.
func scanMatch(queryText, original, lower string) (int, []int) {
	queryRunes := []rune(strings.ToLower(queryText))
	originalRunes := []rune(original)
	textRunes := []rune(lower)

	if len(queryRunes) == 0 {
		return 0, nil
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
		return 0, nil
	}

	scorer := fuzzy.DefaultScorer{}
	score := scorer.Score(queryRunes, originalRunes, textRunes, matches)
	return score, matches
}

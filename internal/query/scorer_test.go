package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScorerFuzzyMatching(t *testing.T) {
	scorer := NewScorer(Parse("ab"))

	texts := []string{"abx", "axb", "abc", "zzz"}
	for _, text := range texts {
		_, _, ok := scorer.Score(text)
		if text == "zzz" {
			assert.False(t, ok, "zzz should not match %q", text)
		} else {
			assert.True(t, ok, "%q should match", text)
		}
	}
}

func TestNewScorerExactTerm(t *testing.T) {
	scorer := NewScorer(Parse("'needle"))

	_, _, ok := scorer.Score("a needle in a haystack")
	assert.True(t, ok)

	_, _, ok = scorer.Score("nothing here")
	assert.False(t, ok)
}

func TestNewScorerInverseTerm(t *testing.T) {
	scorer := NewScorer(Parse("!bad"))

	_, _, ok := scorer.Score("this is good")
	assert.True(t, ok)

	_, _, ok = scorer.Score("this is bad")
	assert.False(t, ok)
}

func TestNewScorerEmptyQueryMatchesEverything(t *testing.T) {
	scorer := NewScorer(Parse(""))
	rank, indices, ok := scorer.Score("anything at all")
	require.True(t, ok)
	assert.Nil(t, indices)
	assert.Equal(t, 0, int(rank[0]))
}

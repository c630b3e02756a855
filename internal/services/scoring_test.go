package services

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestQueryTerms(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"lowercases and keeps long tokens", "What IS Photosynthesis", []string{"what", "photosynthesis"}},
		{"drops tokens of two chars or fewer", "is it ok", nil},
		{"splits on punctuation", "osmosis, diffusion!", []string{"osmosis", "diffusion"}},
		{"empty query", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, queryTerms(tt.query))
		})
	}
}

func TestBoostFor(t *testing.T) {
	tests := []struct {
		query string
		want  float64
	}{
		{"explain the theory", 1.3},
		{"what is x", 1.2},
		{"tell me about x", 1.0},
		{"analyze the results", 1.4},
		{"Describe osmosis", 1.3},
		{"whatever happened here", 1.0}, // word boundary, not a bare prefix
		{"what", 1.2},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.InDelta(t, tt.want, boostFor(tt.query), 1e-9)
		})
	}
}

func TestScoreSingleTerm(t *testing.T) {
	// One occurrence in a short text: termScore 1, contextScore 1.
	assert.InDelta(t, 1.0, Score("zebra", "zebra"), 1e-9)
	// No occurrence at all.
	assert.InDelta(t, 0.0, Score("giraffe habitat", "zebra"), 1e-9)
	// Queries with no surviving terms score zero.
	assert.InDelta(t, 0.0, Score("anything at all", "a b"), 1e-9)
}

func TestScoreMonotonicInOccurrences(t *testing.T) {
	one := Score("the zebra grazes", "zebra")
	two := Score("the zebra grazes near another zebra", "zebra")
	assert.GreaterOrEqual(t, two, one)
}

func TestScoreRewardsProximity(t *testing.T) {
	near := "alpha bravo" + strings.Repeat(" filler", 30)
	far := "alpha " + strings.Repeat("x", 150) + " bravo"

	nearScore := Score(near, "alpha bravo")
	farScore := Score(far, "alpha bravo")

	assert.Greater(t, nearScore, farScore)
	// Both terms in one window: termScore 1 and contextScore 1.
	assert.InDelta(t, 1.0, nearScore, 1e-9)
	// Terms more than a window apart: contextScore halves.
	assert.InDelta(t, 0.7, farScore, 1e-9)
}

func TestScoreAppliesBoost(t *testing.T) {
	// Same terms either way; only the starter word differs.
	plain := Score("osmosis", "contain osmosis")
	boosted := Score("osmosis", "explain osmosis")
	assert.InDelta(t, plain*1.3, boosted, 1e-9)
}

func TestBestSnippetShortText(t *testing.T) {
	text := "Photosynthesis is how plants make food."
	assert.Equal(t, text, bestSnippet(text, "photosynthesis"))
}

func TestBestSnippetCollapsesNewlines(t *testing.T) {
	got := bestSnippet("Osmosis moves water\nacross membranes.\n", "osmosis")
	assert.Equal(t, "Osmosis moves water across membranes.", got)
}

func TestBestSnippetEmptyText(t *testing.T) {
	assert.Equal(t, "", bestSnippet("  \n ", "zebra"))
}

func TestBestSnippetKeepsRunesIntact(t *testing.T) {
	// The 200-byte chunk boundary lands inside a two-byte rune; the
	// chunk must end on the previous rune instead.
	text := "zebra  " + strings.Repeat("é", 120)
	got := bestSnippet(text, "zebra")

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, "zebra  "+strings.Repeat("é", 96), got)
}

func TestBestSnippetPicksMatchingChunkAndExtendsToSentence(t *testing.T) {
	// The match sits past the first chunk, mid-sentence; the snippet
	// should reach back to the period that closed the prior sentence.
	text := "Alpha." + strings.Repeat(" pad", 60) + " zebra zebra zebra."
	got := bestSnippet(text, "zebra")

	assert.Contains(t, got, "zebra")
	assert.NotContains(t, got, "Alpha")
	assert.True(t, strings.HasPrefix(got, "pad"), "snippet should start at the sentence boundary, got %q", got)
}

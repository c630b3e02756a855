package services

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Lexical scoring tunables. Scores combine raw term frequency with a
// proximity signal: how many distinct query terms land inside one
// 100-character window of the text.
const (
	contextWindowSize  = 100
	termScoreWeight    = 0.4
	contextScoreWeight = 0.6

	snippetChunkSize   = 200
	snippetChunkStride = 150
)

var termPattern = regexp.MustCompile(`\w+`)

// boostGroups maps question-starter words to score multipliers. Checked
// in order, first match wins.
var boostGroups = []struct {
	words  []string
	factor float64
}{
	{[]string{"what", "how", "why", "when", "where"}, 1.2},
	{[]string{"explain", "describe", "compare"}, 1.3},
	{[]string{"analyze", "discuss", "evaluate"}, 1.4},
}

// queryTerms tokenizes a query into lower-cased word-character runs
// longer than 2 characters.
func queryTerms(query string) []string {
	var terms []string
	for _, tok := range termPattern.FindAllString(strings.ToLower(query), -1) {
		if len(tok) > 2 {
			terms = append(terms, tok)
		}
	}
	return terms
}

// Score is a deterministic, pure lexical relevance measure of text
// against query. Roughly 0..1, though boosted scores can exceed 1.
func Score(text, query string) float64 {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)

	var occurrences int
	for _, term := range terms {
		occurrences += strings.Count(lower, term)
	}
	termScore := float64(occurrences) / float64(len(terms))
	contextScore := maxWindowScore(lower, terms)

	return (termScore*termScoreWeight + contextScore*contextScoreWeight) * boostFor(query)
}

// maxWindowScore slides a fixed window over the text, one character at
// a time, and returns the best fraction of distinct terms found in any
// one window.
func maxWindowScore(lowerText string, terms []string) float64 {
	n := len(lowerText)
	if n == 0 {
		return 0
	}
	lastStart := n - contextWindowSize
	if lastStart < 0 {
		lastStart = 0
	}

	var best float64
	for start := range lowerText {
		if start > lastStart {
			break
		}
		end := start + contextWindowSize
		if end > n {
			end = n
		} else {
			end = snapRuneStart(lowerText, end)
		}
		window := lowerText[start:end]

		distinct := 0
		for _, term := range terms {
			if strings.Contains(window, term) {
				distinct++
			}
		}
		score := float64(distinct) / float64(len(terms))
		if score > best {
			best = score
			if best == 1.0 {
				break
			}
		}
	}
	return best
}

func boostFor(query string) float64 {
	lower := strings.ToLower(strings.TrimSpace(query))
	for _, group := range boostGroups {
		for _, word := range group.words {
			if lower == word || strings.HasPrefix(lower, word+" ") {
				return group.factor
			}
		}
	}
	return 1.0
}

// bestSnippet picks the highest-scoring passage of a page for a query.
// The page is cut into 200-character chunks overlapping by 50; the
// winning chunk is extended back to the previous sentence boundary when
// it would otherwise open mid-sentence.
func bestSnippet(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	bestStart := 0
	bestChunk := ""
	bestScore := -1.0
	for start := 0; ; start = snapRuneStart(text, start+snippetChunkStride) {
		end := start + snippetChunkSize
		if end > len(text) {
			end = len(text)
		} else {
			end = snapRuneStart(text, end)
		}
		chunk := text[start:end]
		if score := Score(chunk, query); score > bestScore {
			bestScore = score
			bestStart = start
			bestChunk = chunk
		}
		if end == len(text) {
			break
		}
	}

	snippet := bestChunk
	if bestStart > 0 {
		first, _ := utf8.DecodeRuneInString(snippet)
		if !unicode.IsUpper(first) {
			sentenceStart := strings.LastIndex(text[:bestStart], ".") + 1
			snippet = text[sentenceStart:bestStart] + snippet
		}
	}
	return collapseWhitespace(snippet)
}

// snapRuneStart backs a byte index off to the nearest rune boundary at
// or before it, so slicing never splits a multibyte character.
func snapRuneStart(s string, i int) int {
	for i > 0 && i < len(s) && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

func collapseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

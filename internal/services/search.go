package services

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/dxdelvin/StudyNotesAI/internal/models"
)

// Fixed user-facing responses for the degraded paths of Ask.
const (
	msgQueryTooShort  = "Please ask a more specific question (at least 3 characters)."
	msgNothingIndexed = "No notes indexed yet."
	msgNoRelevant     = "I couldn't find relevant information about that in your notes."
	msgNoSnippet      = "I couldn't find specific information about that in your notes."
	msgLeadIn         = "Here's what I found in your notes:"
)

// SearchConfig holds tuning knobs for the ranking engine.
type SearchConfig struct {
	// SignedURLExpiry is the lifetime of the deep links in answers.
	// Default one hour.
	SignedURLExpiry time.Duration
	// MinScore is the relevance cutoff; pages at or below it are
	// discarded. Default 0.1.
	MinScore float64
	// MaxResults caps the number of returned pages. Default 3.
	MaxResults int
}

// Search ranks the pages of READY documents against free-text queries
// and extracts the best-matching snippet from each hit. It is a
// best-effort query path: it never fails, it degrades.
type Search struct {
	docs   DocumentStore
	signer URLSigner
	config SearchConfig
}

// NewSearch wires a Search engine over the page store and URL signer.
func NewSearch(docs DocumentStore, signer URLSigner, config SearchConfig) *Search {
	if config.SignedURLExpiry <= 0 {
		config.SignedURLExpiry = time.Hour
	}
	if config.MinScore <= 0 {
		config.MinScore = 0.1
	}
	if config.MaxResults <= 0 {
		config.MaxResults = 3
	}
	return &Search{docs: docs, signer: signer, config: config}
}

type scoredPage struct {
	page  models.Page
	score float64
}

// Ask scores every page of every READY document against the query and
// returns the top matches with snippets and signed deep links. The
// candidate set is a point-in-time snapshot; documents still in OCR
// contribute nothing.
func (s *Search) Ask(ctx context.Context, query string) *models.AskResponse {
	if countNonSpace(query) < 3 {
		return &models.AskResponse{Answer: msgQueryTooShort, Sources: []models.Source{}}
	}

	ready, err := s.docs.ListReadyDocuments(ctx)
	if err != nil {
		slog.Error("Failed to list ready documents; returning empty answer.", "error", err)
		return &models.AskResponse{Answer: msgNoRelevant, Sources: []models.Source{}}
	}
	if len(ready) == 0 {
		return &models.AskResponse{Answer: msgNothingIndexed, Sources: []models.Source{}}
	}

	var candidates []scoredPage
	for _, doc := range ready {
		pages, err := s.docs.ListPages(ctx, doc.ID)
		if err != nil {
			slog.Warn("Failed to read pages for document; skipping it.", "documentId", doc.ID, "error", err)
			continue
		}
		for _, page := range pages {
			if page.FileLocation == "" {
				page.FileLocation = doc.FileLocation
			}
			if score := Score(page.Text, query); score > s.config.MinScore {
				candidates = append(candidates, scoredPage{page: page, score: score})
			}
		}
	}
	if len(candidates) == 0 {
		return &models.AskResponse{Answer: msgNoRelevant, Sources: []models.Source{}}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > s.config.MaxResults {
		candidates = candidates[:s.config.MaxResults]
	}

	sources := make([]models.Source, 0, len(candidates))
	var bullets []string
	for _, c := range candidates {
		snippet := bestSnippet(c.page.Text, query)

		url, err := s.signer.SignPage(ctx, c.page.FileLocation, s.config.SignedURLExpiry, c.page.PageNumber)
		if err != nil {
			slog.Warn("Failed to sign source URL.", "fileLocation", c.page.FileLocation, "error", err)
			url = ""
		}

		sources = append(sources, models.Source{
			Page:      c.page.PageNumber,
			URL:       url,
			Snippet:   snippet,
			Relevance: int(math.Round(c.score * 100)),
		})
		if snippet != "" {
			bullets = append(bullets, "• "+snippet)
		}
	}

	answer := msgNoSnippet
	if len(bullets) > 0 {
		answer = msgLeadIn + "\n" + strings.Join(bullets, "\n")
	}
	return &models.AskResponse{Answer: answer, Sources: sources}
}

func countNonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}

package services

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dxdelvin/StudyNotesAI/internal/models"
	"github.com/dxdelvin/StudyNotesAI/internal/testutil"
)

func newSearchFixture() (*testutil.FakeDocumentStore, *Search) {
	docs := testutil.NewFakeDocumentStore()
	search := NewSearch(docs, &testutil.FakeSigner{}, SearchConfig{
		SignedURLExpiry: time.Hour,
	})
	return docs, search
}

func addReadyDocument(t *testing.T, docs *testutil.FakeDocumentStore, id, fileLocation string, pageTexts map[int]string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, docs.CreateDocument(ctx, id, models.Document{
		Status:       models.StatusReady,
		FileLocation: fileLocation,
	}))
	for number, text := range pageTexts {
		require.NoError(t, docs.WritePage(ctx, id, models.Page{
			DocumentID:   id,
			PageNumber:   number,
			Text:         text,
			FileLocation: fileLocation,
		}))
	}
}

func TestAskRejectsShortQueries(t *testing.T) {
	_, search := newSearchFixture()

	for _, q := range []string{"", "hi", "  a  ", "\t\n"} {
		resp := search.Ask(context.Background(), q)
		assert.Equal(t, msgQueryTooShort, resp.Answer, "query %q", q)
		assert.Empty(t, resp.Sources)
	}
}

func TestAskWithNothingIndexed(t *testing.T) {
	docs, search := newSearchFixture()
	// A document still in OCR contributes nothing.
	require.NoError(t, docs.CreateDocument(context.Background(), "doc-1", models.Document{
		Status: models.StatusOCRRunning,
	}))

	resp := search.Ask(context.Background(), "what is osmosis")
	assert.Equal(t, msgNothingIndexed, resp.Answer)
	assert.Empty(t, resp.Sources)
}

func TestAskRanksFiltersAndLimits(t *testing.T) {
	docs, search := newSearchFixture()
	addReadyDocument(t, docs, "doc-1", "pdfs/doc-1_notes.pdf", map[int]string{
		1: "nothing relevant on this page",
		2: "zebra notes",
		3: "zebra zebra notes",
		4: "zebra zebra zebra notes",
		5: "zebra zebra zebra zebra notes",
	})
	// High-scoring pages of a non-READY document must not appear.
	require.NoError(t, docs.CreateDocument(context.Background(), "doc-2", models.Document{
		Status: models.StatusOCRRunning,
	}))
	require.NoError(t, docs.WritePage(context.Background(), "doc-2", models.Page{
		PageNumber: 1,
		Text:       "zebra zebra zebra zebra zebra",
	}))

	resp := search.Ask(context.Background(), "zebra")
	require.Len(t, resp.Sources, 3, "top-3 cap")

	gotPages := []int{resp.Sources[0].Page, resp.Sources[1].Page, resp.Sources[2].Page}
	assert.Equal(t, []int{5, 4, 3}, gotPages, "descending by score")

	// score = 0.4*occurrences + 0.6, so 4/3/2 occurrences map to
	// 220/180/140 percent.
	assert.Equal(t, 220, resp.Sources[0].Relevance)
	assert.Equal(t, 180, resp.Sources[1].Relevance)
	assert.Equal(t, 140, resp.Sources[2].Relevance)

	for _, src := range resp.Sources {
		assert.Contains(t, src.URL, fmt.Sprintf("#page=%d", src.Page))
		assert.Contains(t, src.URL, "pdfs/doc-1_notes.pdf")
		assert.NotEmpty(t, src.Snippet)
	}

	assert.True(t, strings.HasPrefix(resp.Answer, msgLeadIn), "answer opens with the lead-in")
	assert.Contains(t, resp.Answer, "• ")
}

func TestAskScoreCutoff(t *testing.T) {
	docs, search := newSearchFixture()
	// One matched term out of nine scores 1/9 ≈ 0.111, just above the
	// default 0.1 cutoff; one out of eleven scores ≈ 0.091, below it.
	addReadyDocument(t, docs, "doc-1", "pdfs/doc-1_notes.pdf", map[int]string{
		1: "zebra",
	})
	nineTerms := "zebra alpha bravo charlie delta echoes foxtrot golfer hotels"

	resp := search.Ask(context.Background(), nineTerms)
	require.Len(t, resp.Sources, 1, "score just above the cutoff is kept")
	assert.Equal(t, 11, resp.Sources[0].Relevance)

	resp = search.Ask(context.Background(), nineTerms+" india juliet")
	assert.Equal(t, msgNoRelevant, resp.Answer)
	assert.Empty(t, resp.Sources, "score below the cutoff is dropped")
}

func TestAskCutoffIsExclusive(t *testing.T) {
	docs := testutil.NewFakeDocumentStore()
	search := NewSearch(docs, &testutil.FakeSigner{}, SearchConfig{MinScore: 0.5})
	// One matched term out of two scores exactly 0.5: 0.4·(1/2) and
	// 0.6·(1/2) sum to the cutoff with no rounding.
	addReadyDocument(t, docs, "doc-1", "pdfs/doc-1_notes.pdf", map[int]string{
		1: "zebra",
		2: "zebra yonder",
	})

	resp := search.Ask(context.Background(), "zebra yonder")
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, 2, resp.Sources[0].Page, "a page scoring exactly the cutoff is dropped")
}

func TestAskNoRelevantPages(t *testing.T) {
	docs, search := newSearchFixture()
	addReadyDocument(t, docs, "doc-1", "pdfs/doc-1_notes.pdf", map[int]string{
		1: "completely unrelated content",
	})

	resp := search.Ask(context.Background(), "quantum entanglement")
	assert.Equal(t, msgNoRelevant, resp.Answer)
	assert.Empty(t, resp.Sources)
}

func TestAskDegradesWhenStoreFails(t *testing.T) {
	docs, search := newSearchFixture()
	docs.ListErr = fmt.Errorf("backend unavailable")

	resp := search.Ask(context.Background(), "what is osmosis")
	assert.Equal(t, msgNoRelevant, resp.Answer)
	assert.Empty(t, resp.Sources)
}

func TestAskSignerFailureDegradesToEmptyURL(t *testing.T) {
	docs := testutil.NewFakeDocumentStore()
	search := NewSearch(docs, &testutil.FakeSigner{Err: fmt.Errorf("no signing key")}, SearchConfig{})
	addReadyDocument(t, docs, "doc-1", "pdfs/doc-1_notes.pdf", map[int]string{
		1: "zebra facts and figures",
	})

	resp := search.Ask(context.Background(), "zebra")
	require.Len(t, resp.Sources, 1)
	assert.Empty(t, resp.Sources[0].URL)
	assert.NotEmpty(t, resp.Sources[0].Snippet)
}

func TestAskInheritsDocumentFileLocation(t *testing.T) {
	docs, search := newSearchFixture()
	ctx := context.Background()
	require.NoError(t, docs.CreateDocument(ctx, "doc-1", models.Document{
		Status:       models.StatusReady,
		FileLocation: "pdfs/doc-1_notes.pdf",
	}))
	// Page record without its own file location falls back to the
	// parent document's.
	require.NoError(t, docs.WritePage(ctx, "doc-1", models.Page{
		PageNumber: 2,
		Text:       "zebra migration patterns",
	}))

	resp := search.Ask(ctx, "zebra")
	require.Len(t, resp.Sources, 1)
	assert.Contains(t, resp.Sources[0].URL, "pdfs/doc-1_notes.pdf")
	assert.Contains(t, resp.Sources[0].URL, "#page=2")
}

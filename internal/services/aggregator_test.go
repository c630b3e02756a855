package services

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dxdelvin/StudyNotesAI/internal/ocr"
	"github.com/dxdelvin/StudyNotesAI/internal/testutil"
)

func newTestAggregator(client ocr.Client) *Aggregator {
	return NewAggregator(client, AggregatorConfig{
		PollInterval: time.Millisecond,
		MaxAttempts:  3,
	})
}

func line(page int, text string, confidence float64) ocr.LineBlock {
	return ocr.LineBlock{BlockType: ocr.BlockTypeLine, PageNumber: page, Text: text, Confidence: confidence}
}

func TestAggregateFiltersLowConfidenceLines(t *testing.T) {
	client := &testutil.FakeOCRClient{
		Batches: [][]ocr.LineBlock{{
			line(1, "good one", 90),
			line(1, "borderline", 50), // <= threshold, dropped
			line(1, "good two", 70),
			line(2, "noise", 30),
			line(2, "more noise", 40),
		}},
	}

	pages, err := newTestAggregator(client).Aggregate(context.Background(), "job-1")
	require.NoError(t, err)

	// Page 2 had no surviving lines and must not be emitted.
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].PageNumber)
	assert.Equal(t, "good one\ngood two", pages[0].Text)
	// The mean covers surviving lines only.
	assert.InDelta(t, 80.0, pages[0].Confidence, 1e-9)
}

func TestAggregateGroupsAcrossBatches(t *testing.T) {
	client := &testutil.FakeOCRClient{
		Batches: [][]ocr.LineBlock{
			{line(2, "p2 first", 80)},
			{line(1, "p1 only", 90), line(2, "p2 second", 60)},
			{
				{BlockType: ocr.BlockTypeWord, PageNumber: 1, Text: "ignored", Confidence: 99},
				line(3, "too faint", 10),
			},
		},
	}

	pages, err := newTestAggregator(client).Aggregate(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, 3, client.FetchCalls, "should drain every batch by token")

	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].PageNumber)
	assert.Equal(t, "p1 only", pages[0].Text)
	assert.Equal(t, 2, pages[1].PageNumber)
	assert.Equal(t, "p2 first\np2 second", pages[1].Text, "lines keep encounter order across batches")
	assert.InDelta(t, 70.0, pages[1].Confidence, 1e-9)
}

func TestAggregateTimesOut(t *testing.T) {
	client := &testutil.FakeOCRClient{
		Statuses: []ocr.JobStatus{{State: ocr.JobInProgress}},
	}

	_, err := newTestAggregator(client).Aggregate(context.Background(), "job-1")
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindOCRTimeout, kind)
}

func TestAggregatePropagatesJobFailure(t *testing.T) {
	client := &testutil.FakeOCRClient{
		Statuses: []ocr.JobStatus{
			{State: ocr.JobInProgress},
			{State: ocr.JobFailed, ErrorMessage: "document unreadable"},
		},
	}

	_, err := newTestAggregator(client).Aggregate(context.Background(), "job-1")
	require.Error(t, err)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindOCRJobFailed, kind)
	assert.Contains(t, err.Error(), "document unreadable")
	assert.Equal(t, 2, client.PollCalls)
}

func TestAggregateProceedsOnPartialSuccess(t *testing.T) {
	client := &testutil.FakeOCRClient{
		Statuses: []ocr.JobStatus{{State: ocr.JobPartialSuccess}},
		Batches:  [][]ocr.LineBlock{{line(1, "salvaged", 75)}},
	}

	pages, err := newTestAggregator(client).Aggregate(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "salvaged", pages[0].Text)
}

func TestAggregateTruncatesPageText(t *testing.T) {
	client := &testutil.FakeOCRClient{
		Batches: [][]ocr.LineBlock{{line(1, strings.Repeat("z", 40), 90)}},
	}
	agg := NewAggregator(client, AggregatorConfig{
		PollInterval:   time.Millisecond,
		MaxAttempts:    3,
		MaxPageTextLen: 10,
	})

	pages, err := agg.Aggregate(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, strings.Repeat("z", 10), pages[0].Text)
}

func TestAggregateTruncatesOnRuneBoundary(t *testing.T) {
	client := &testutil.FakeOCRClient{
		Batches: [][]ocr.LineBlock{{line(1, strings.Repeat("é", 8), 90)}},
	}
	agg := NewAggregator(client, AggregatorConfig{
		PollInterval:   time.Millisecond,
		MaxAttempts:    3,
		MaxPageTextLen: 5,
	})

	pages, err := agg.Aggregate(context.Background(), "job-1")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	// Byte 5 would split the third two-byte rune; the cut backs off.
	assert.Equal(t, strings.Repeat("é", 2), pages[0].Text)
	assert.True(t, utf8.ValidString(pages[0].Text))
}

func TestAggregateEmptyResultSet(t *testing.T) {
	client := &testutil.FakeOCRClient{}

	pages, err := newTestAggregator(client).Aggregate(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Empty(t, pages)
}

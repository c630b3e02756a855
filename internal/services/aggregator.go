package services

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dxdelvin/StudyNotesAI/internal/models"
	"github.com/dxdelvin/StudyNotesAI/internal/ocr"
)

// Lines at or below this confidence are discarded: they contribute
// neither text nor to the page's confidence average.
const confidenceThreshold = 50.0

// AggregatorConfig holds tuning knobs for OCR result aggregation.
type AggregatorConfig struct {
	// PollInterval is the fixed wait between job-status polls.
	PollInterval time.Duration
	// MaxAttempts bounds the poll loop; exceeding it is a hard timeout.
	MaxAttempts int
	// MaxPageTextLen caps the persisted text per page. Text beyond it
	// is not indexed. This is a storage constraint, not a ranking one.
	MaxPageTextLen int
}

// Aggregator turns a finished OCR job into ordered per-page text
// records, filtering low-confidence lines.
type Aggregator struct {
	client ocr.Client
	config AggregatorConfig
}

// NewAggregator creates an Aggregator. Zero config fields fall back to
// defaults (5s interval, 60 attempts, 30000 chars per page).
func NewAggregator(client ocr.Client, config AggregatorConfig) *Aggregator {
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 60
	}
	if config.MaxPageTextLen <= 0 {
		config.MaxPageTextLen = 30000
	}
	return &Aggregator{client: client, config: config}
}

// Aggregate waits for the OCR job to reach a terminal state, drains all
// recognized line blocks, and groups them into per-page records sorted
// ascending by page number. It fails with an OCR_TIMEOUT error when the
// poll budget is exhausted and with OCR_JOB_FAILED when the service
// reports the job as failed. The whole operation is retriable: it has
// no side effects beyond the bounded wait.
func (a *Aggregator) Aggregate(ctx context.Context, jobRef string) ([]models.Page, error) {
	logCtx := slog.With("jobRef", jobRef)
	logCtx.Info("Waiting for OCR job to complete.")

	if err := a.waitForJob(ctx, logCtx, jobRef); err != nil {
		return nil, err
	}

	lines, err := a.drainLines(ctx, jobRef)
	if err != nil {
		return nil, err
	}

	pages := a.buildPages(lines)
	logCtx.Info("Aggregation complete.", "pageCount", len(pages))
	return pages, nil
}

// waitForJob polls until the job is terminal or the attempt budget runs
// out. Transient poll errors count as attempts and are retried.
func (a *Aggregator) waitForJob(ctx context.Context, logCtx *slog.Logger, jobRef string) error {
	for attempt := 1; attempt <= a.config.MaxAttempts; attempt++ {
		status, err := a.client.PollStatus(ctx, jobRef)
		if err != nil {
			logCtx.Warn("OCR status poll failed, will retry.", "attempt", attempt, "error", err)
		} else {
			switch status.State {
			case ocr.JobSucceeded:
				return nil
			case ocr.JobPartialSuccess:
				logCtx.Warn("OCR job finished with partial success; proceeding with lower confidence.")
				return nil
			case ocr.JobFailed:
				msg := status.ErrorMessage
				if msg == "" {
					msg = "unknown error"
				}
				return Errorf(KindOCRJobFailed, "OCR job failed: %s", msg)
			}
			logCtx.Info("OCR job still running.", "attempt", attempt, "state", status.State)
		}

		select {
		case <-time.After(a.config.PollInterval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return Errorf(KindOCRTimeout, "OCR job did not reach a terminal state within %d polls", a.config.MaxAttempts)
}

// drainLines follows the continuation-token protocol until the service
// stops returning a token. Grouping spans batches: a page's lines may
// arrive split across several of them.
func (a *Aggregator) drainLines(ctx context.Context, jobRef string) (map[int][]ocr.LineBlock, error) {
	lines := make(map[int][]ocr.LineBlock)
	token := ""
	for {
		batch, err := a.client.FetchLines(ctx, jobRef, token)
		if err != nil {
			return nil, WrapError(KindOCRJobFailed, "failed to fetch OCR results", err)
		}
		for _, block := range batch.Blocks {
			if block.BlockType != ocr.BlockTypeLine {
				continue
			}
			page := block.PageNumber
			if page < 1 {
				page = 1
			}
			lines[page] = append(lines[page], block)
		}
		if batch.NextToken == "" {
			return lines, nil
		}
		token = batch.NextToken
	}
}

func (a *Aggregator) buildPages(lines map[int][]ocr.LineBlock) []models.Page {
	numbers := make([]int, 0, len(lines))
	for n := range lines {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	var pages []models.Page
	for _, n := range numbers {
		var kept []string
		var confidenceSum float64
		for _, line := range lines[n] {
			if line.Confidence <= confidenceThreshold {
				continue
			}
			kept = append(kept, line.Text)
			confidenceSum += line.Confidence
		}
		// A page with no surviving lines is dropped entirely.
		if len(kept) == 0 {
			continue
		}

		text := strings.Join(kept, "\n")
		if len(text) > a.config.MaxPageTextLen {
			text = text[:snapRuneStart(text, a.config.MaxPageTextLen)]
		}
		pages = append(pages, models.Page{
			PageNumber: n,
			Text:       text,
			Confidence: confidenceSum / float64(len(kept)),
		})
	}
	return pages
}

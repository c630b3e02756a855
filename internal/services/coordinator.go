package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"

	"github.com/dxdelvin/StudyNotesAI/internal/models"
	"github.com/dxdelvin/StudyNotesAI/internal/ocr"
)

// allowedContentTypes is the upload allow-list.
var allowedContentTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
	"image/tiff":      true,
}

// CoordinatorConfig holds tuning knobs for the document lifecycle.
type CoordinatorConfig struct {
	// MaxUploadBytes caps accepted file sizes. Default 8 MiB.
	MaxUploadBytes int64
	// PersistConcurrency bounds concurrent page writes during finalize.
	PersistConcurrency int
}

// Coordinator owns the document state machine: it ingests uploads,
// submits OCR jobs, and drives documents from OCR_RUNNING to READY by
// aggregating results into the page store.
type Coordinator struct {
	blobs      BlobStore
	docs       DocumentStore
	ocrClient  ocr.Client
	aggregator *Aggregator
	workflow   WorkflowTrigger
	config     CoordinatorConfig
}

// NewCoordinator wires a Coordinator. workflow may be nil, in which
// case finalize is expected to be triggered externally.
func NewCoordinator(blobs BlobStore, docs DocumentStore, ocrClient ocr.Client, aggregator *Aggregator, workflow WorkflowTrigger, config CoordinatorConfig) *Coordinator {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = 8 << 20
	}
	if config.PersistConcurrency <= 0 {
		config.PersistConcurrency = 8
	}
	return &Coordinator{
		blobs:      blobs,
		docs:       docs,
		ocrClient:  ocrClient,
		aggregator: aggregator,
		workflow:   workflow,
		config:     config,
	}
}

// Submit validates and stores an uploaded file, submits its OCR job and
// creates the document record with status OCR_RUNNING. Validation
// failures happen before any store write. If OCR submission fails, no
// document record is created; already-stored copies are left orphaned.
func (c *Coordinator) Submit(ctx context.Context, data []byte, filename, contentType string) (string, error) {
	mediaType := normalizeMediaType(contentType)
	if !allowedContentTypes[mediaType] {
		return "", Errorf(KindUnsupportedMediaType, "content type %q is not supported", contentType)
	}
	if int64(len(data)) > c.config.MaxUploadBytes {
		return "", Errorf(KindPayloadTooLarge, "file is %d bytes, the limit is %d", len(data), c.config.MaxUploadBytes)
	}

	pageCount := 0
	if mediaType == "application/pdf" {
		n, err := pdfPageCount(data)
		if err != nil {
			return "", WrapError(KindUnsupportedMediaType, "file is not a readable PDF", err)
		}
		pageCount = n
	}

	docID := uuid.NewString()
	objectName := fmt.Sprintf("%s_%s", docID, filepath.Base(filename))
	rawKey := RawPrefix + objectName
	viewableKey := ViewablePrefix + objectName
	logCtx := slog.With("documentId", docID, "filename", filename)

	if err := c.blobs.Put(ctx, rawKey, data, mediaType); err != nil {
		logCtx.Error("Failed to store processing copy.", "key", rawKey, "error", err)
		return "", WrapError(KindIngestFailed, "failed to store processing copy", err)
	}
	if err := c.blobs.Put(ctx, viewableKey, data, mediaType); err != nil {
		logCtx.Error("Failed to store viewable copy.", "key", viewableKey, "error", err)
		return "", WrapError(KindIngestFailed, "failed to store viewable copy", err)
	}

	jobRef, err := c.ocrClient.Submit(ctx, rawKey)
	if err != nil {
		// The stored copies are orphaned here; acceptable, not cleaned up.
		logCtx.Error("Failed to submit OCR job.", "error", err)
		return "", WrapError(KindIngestFailed, "failed to submit OCR job", err)
	}

	doc := models.Document{
		OriginalFilename: filename,
		Status:           models.StatusOCRRunning,
		OCRJobRef:        jobRef,
		FileLocation:     viewableKey,
		PageCount:        pageCount,
		CreatedAt:        time.Now(),
	}
	if err := c.docs.CreateDocument(ctx, docID, doc); err != nil {
		logCtx.Error("Failed to create document record.", "error", err)
		return "", WrapError(KindIngestFailed, "failed to create document record", err)
	}
	logCtx.Info("Document ingested, OCR running.", "jobRef", jobRef, "expectedPages", pageCount)

	if c.workflow != nil {
		if err := c.workflow.TriggerFinalize(ctx, docID); err != nil {
			// Finalize can still be triggered manually via the process
			// endpoint, so a trigger failure does not fail the upload.
			logCtx.Warn("Failed to trigger finalize workflow.", "error", err)
		}
	}
	return docID, nil
}

// Finalize aggregates the document's OCR results, persists the page
// records and flips the status to READY. On aggregation failure the
// document moves to FAILED and the error propagates. The operation is
// idempotent: re-running it against a completed job rewrites the same
// page set and returns the same count.
func (c *Coordinator) Finalize(ctx context.Context, documentID string) (int, error) {
	doc, err := c.docs.GetDocument(ctx, documentID)
	if err != nil {
		return 0, fmt.Errorf("failed to look up document %s: %w", documentID, err)
	}
	if doc == nil {
		return 0, Errorf(KindDocumentNotFound, "no document with id %s", documentID)
	}
	logCtx := slog.With("documentId", documentID, "jobRef", doc.OCRJobRef)

	pages, err := c.aggregator.Aggregate(ctx, doc.OCRJobRef)
	if err != nil {
		if setErr := c.docs.SetStatus(ctx, documentID, models.StatusFailed, err.Error()); setErr != nil {
			logCtx.Error("CRITICAL: Failed to mark document FAILED after aggregation error.", "updateError", setErr)
		}
		return 0, err
	}

	if err := c.persistPages(ctx, doc, documentID, pages); err != nil {
		// Status stays OCR_RUNNING so a retry can redo the writes.
		logCtx.Error("Failed to persist page records.", "error", err)
		return 0, fmt.Errorf("failed to persist pages for %s: %w", documentID, err)
	}

	if err := c.docs.SetIndexedPages(ctx, documentID, len(pages)); err != nil {
		return 0, fmt.Errorf("failed to record indexed page count: %w", err)
	}
	if err := c.docs.SetStatus(ctx, documentID, models.StatusReady, ""); err != nil {
		return 0, fmt.Errorf("failed to mark document READY: %w", err)
	}
	logCtx.Info("Document ready for queries.", "pageCount", len(pages))
	return len(pages), nil
}

// persistPages writes the processed-text copy and the structured record
// for every page, with bounded concurrency.
func (c *Coordinator) persistPages(ctx context.Context, doc *models.Document, documentID string, pages []models.Page) error {
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(c.config.PersistConcurrency)

	for _, page := range pages {
		page.DocumentID = documentID
		page.FileLocation = doc.FileLocation
		eg.Go(func() error {
			textKey := fmt.Sprintf("%s%s/%05d.txt", TextPrefix, documentID, page.PageNumber)
			if err := c.blobs.Put(gctx, textKey, []byte(page.Text), "text/plain; charset=utf-8"); err != nil {
				return fmt.Errorf("page %d text copy: %w", page.PageNumber, err)
			}
			if err := c.docs.WritePage(gctx, documentID, page); err != nil {
				return fmt.Errorf("page %d record: %w", page.PageNumber, err)
			}
			return nil
		})
	}
	return eg.Wait()
}

func normalizeMediaType(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func pdfPageCount(data []byte) (int, error) {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return api.PageCount(bytes.NewReader(data), cfg)
}

package services

import (
	"context"
	"time"

	"github.com/dxdelvin/StudyNotesAI/internal/models"
)

// Blob key namespaces. The raw copy feeds OCR, the viewable copy backs
// signed deep links, and the text namespace holds per-page extracts.
const (
	RawPrefix      = "raw/"
	ViewablePrefix = "pdfs/"
	TextPrefix     = "text/"
)

// BlobStore is the narrow contract for storing and retrieving file
// bytes under purpose-namespaced keys.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// DocumentStore is the metadata-store contract for document and page
// records. WritePage must overwrite an existing record with the same
// (documentID, pageNumber) rather than duplicate it.
type DocumentStore interface {
	CreateDocument(ctx context.Context, id string, doc models.Document) error
	// GetDocument returns (nil, nil) when no such document exists.
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	SetStatus(ctx context.Context, id, status, errDetails string) error
	SetIndexedPages(ctx context.Context, id string, pages int) error
	WritePage(ctx context.Context, documentID string, page models.Page) error
	// ListPages returns all page records ascending by page number.
	ListPages(ctx context.Context, documentID string) ([]models.Page, error)
	ListReadyDocuments(ctx context.Context) ([]models.Document, error)
}

// URLSigner mints time-limited read URLs for viewable files, with a
// page fragment appended for deep-linking.
type URLSigner interface {
	SignPage(ctx context.Context, fileLocation string, expiry time.Duration, page int) (string, error)
}

// WorkflowTrigger kicks off the external orchestration that later calls
// finalize for a document. Triggering is best-effort from the
// coordinator's perspective.
type WorkflowTrigger interface {
	TriggerFinalize(ctx context.Context, documentID string) error
}

package models

import "time"

// Document statuses. Progression is strictly forward:
// UPLOADED -> OCR_RUNNING -> READY, with FAILED reachable from
// OCR_RUNNING when result aggregation fails.
const (
	StatusUploaded   = "UPLOADED"
	StatusOCRRunning = "OCR_RUNNING"
	StatusReady      = "READY"
	StatusFailed     = "FAILED"
)

// Document represents the master record for an uploaded note file in
// Firestore. It tracks the file's processing lifecycle and carries the
// references needed to join OCR results back to the viewable file.
type Document struct {
	ID               string    `firestore:"-"`
	OriginalFilename string    `firestore:"originalFilename,omitempty"`
	Status           string    `firestore:"status,omitempty"`
	ErrorDetails     string    `firestore:"errorDetails,omitempty"`
	OCRJobRef        string    `firestore:"ocrJobRef,omitempty"`
	FileLocation     string    `firestore:"fileLocation,omitempty"`
	PageCount        int       `firestore:"pageCount,omitempty"`
	IndexedPages     int       `firestore:"indexedPages,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt,omitempty"`
}

// Page holds one page's worth of extracted text for a document. Pages
// live in a subcollection keyed by zero-padded page number, so a
// retried finalize overwrites the same record instead of duplicating it.
type Page struct {
	DocumentID   string  `firestore:"-"`
	PageNumber   int     `firestore:"pageNumber"`
	Text         string  `firestore:"text"`
	Confidence   float64 `firestore:"confidence"`
	FileLocation string  `firestore:"fileLocation,omitempty"`
}

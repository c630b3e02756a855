package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// InboxPrefix is the bucket namespace watched by the event-driven
// ingest path. Only objects under it are picked up, so the copies the
// coordinator writes back to the same bucket cannot retrigger ingest.
const InboxPrefix = "inbox/"

// GCSEvent is the storage-event payload delivered for a finalized
// object.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
}

// BucketIngest feeds files dropped directly into the bucket inbox
// through the same lifecycle coordinator as HTTP uploads.
type BucketIngest struct {
	blobs       BlobStore
	coordinator *Coordinator
}

// NewBucketIngest wires the event-driven ingest path.
func NewBucketIngest(blobs BlobStore, coordinator *Coordinator) *BucketIngest {
	return &BucketIngest{blobs: blobs, coordinator: coordinator}
}

// Process ingests one finalized inbox object. Validation rejections are
// logged and swallowed: redelivering the event would reject again.
// Transient failures propagate so the event is retried.
func (f *BucketIngest) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)

	if !strings.HasPrefix(e.Name, InboxPrefix) {
		logCtx.Info("Ignoring object outside the inbox prefix.")
		return nil
	}

	data, err := f.blobs.Get(ctx, e.Name)
	if err != nil {
		logCtx.Error("Failed to read inbox object.", "error", err)
		return fmt.Errorf("failed to read inbox object %s: %w", e.Name, err)
	}

	filename := strings.TrimPrefix(e.Name, InboxPrefix)
	docID, err := f.coordinator.Submit(ctx, data, filename, e.ContentType)
	if err != nil {
		if kind, ok := KindOf(err); ok && (kind == KindUnsupportedMediaType || kind == KindPayloadTooLarge) {
			logCtx.Warn("Inbox object rejected.", "kind", string(kind), "error", err)
			return nil
		}
		logCtx.Error("Failed to ingest inbox object.", "error", err)
		return err
	}

	logCtx.Info("Inbox object ingested.", "documentId", docID)
	return nil
}

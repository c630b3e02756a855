package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/joho/godotenv"

	"github.com/dxdelvin/StudyNotesAI/internal/gcp"
	"github.com/dxdelvin/StudyNotesAI/internal/ocr"
	"github.com/dxdelvin/StudyNotesAI/internal/services"
)

var (
	ingestInstance *services.BucketIngest
	once           sync.Once
	initErr        error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	functions.CloudEvent("IngestInboxObject", ingestInboxObject)
}

func main() {}

// ingestInboxObject is the CloudEvent entry point for objects finalized
// under the bucket inbox prefix.
func ingestInboxObject(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		ingestInstance, initErr = newBucketIngest(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	return ingestInstance.Process(ctx, gcsEvent)
}

// newBucketIngest wires the coordinator the same way the API does,
// minus the query-side services.
func newBucketIngest(ctx context.Context) (*services.BucketIngest, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, errors.New("PROJECT_ID environment variable must be set")
	}
	bucket := gcp.GetEnv("NOTES_BUCKET", "")
	if bucket == "" {
		return nil, errors.New("NOTES_BUCKET environment variable must be set")
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}

	blobs := gcp.NewGCSBlobStore(storageClient, bucket)
	docs := gcp.NewFirestoreDocumentStore(firestoreClient, gcp.GetEnv("FIRESTORE_COLLECTION", "documents"))

	languages := strings.Split(gcp.GetEnv("OCR_LANGUAGES", "eng"), ",")
	ocrService := ocr.NewLocalService(ocr.NewTesseractEngine(languages...), blobs, 0)
	aggregator := services.NewAggregator(ocrService, services.AggregatorConfig{
		PollInterval: 5 * time.Second,
	})

	var trigger services.WorkflowTrigger
	if workflowID := gcp.GetEnv("WORKFLOW_ID", ""); workflowID != "" {
		t, err := gcp.NewWorkflowFinalizeTrigger(ctx, gcp.WorkflowConfig{
			ProjectID:  projectID,
			Location:   gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
			WorkflowID: workflowID,
		})
		if err != nil {
			return nil, err
		}
		trigger = t
	}

	coordinator := services.NewCoordinator(blobs, docs, ocrService, aggregator, trigger, services.CoordinatorConfig{})
	return services.NewBucketIngest(blobs, coordinator), nil
}

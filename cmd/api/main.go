package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/storage"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/joho/godotenv"

	"github.com/dxdelvin/StudyNotesAI/internal/gcp"
	"github.com/dxdelvin/StudyNotesAI/internal/models"
	"github.com/dxdelvin/StudyNotesAI/internal/ocr"
	"github.com/dxdelvin/StudyNotesAI/internal/services"
)

// app bundles the initialized core services shared by all handlers.
type app struct {
	coordinator *services.Coordinator
	search      *services.Search
}

var (
	appInstance *app
	once        sync.Once
	initErr     error
)

func init() {
	// --- Set up structured logging ---
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	functions.HTTP("HandleUpload", handleUpload)
	functions.HTTP("HandleProcess", handleProcess)
	functions.HTTP("HandleAsk", handleAsk)
	functions.HTTP("HandleHealth", handleHealth)
}

func main() {}

// newApp wires all clients and core services from the environment.
func newApp(ctx context.Context) (*app, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, errors.New("PROJECT_ID environment variable must be set")
	}
	bucket := gcp.GetEnv("NOTES_BUCKET", "")
	if bucket == "" {
		return nil, errors.New("NOTES_BUCKET environment variable must be set")
	}
	collection := gcp.GetEnv("FIRESTORE_COLLECTION", "documents")

	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}

	blobs := gcp.NewGCSBlobStore(storageClient, bucket)
	docs := gcp.NewFirestoreDocumentStore(firestoreClient, collection)
	signer := gcp.NewGCSURLSigner(storageClient, bucket)

	languages := strings.Split(gcp.GetEnv("OCR_LANGUAGES", "eng"), ",")
	ocrService := ocr.NewLocalService(
		ocr.NewTesseractEngine(languages...),
		blobs,
		envInt("OCR_BATCH_SIZE", 0),
	)

	aggregator := services.NewAggregator(ocrService, services.AggregatorConfig{
		PollInterval: time.Duration(envInt("OCR_POLL_INTERVAL_SECONDS", 5)) * time.Second,
		MaxAttempts:  envInt("OCR_MAX_POLLS", 60),
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
	search := services.NewSearch(docs, signer, services.SearchConfig{
		SignedURLExpiry: time.Duration(envInt("SIGN_EXPIRY_SECONDS", 3600)) * time.Second,
	})
	return &app{coordinator: coordinator, search: search}, nil
}

func getApp(w http.ResponseWriter) *app {
	once.Do(func() {
		appInstance, initErr = newApp(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical: service initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return nil
	}
	return appInstance
}

// handleUpload accepts a multipart upload, stores it and starts OCR.
func handleUpload(w http.ResponseWriter, r *http.Request) {
	if handlePreflight(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, models.ErrorResponse{Code: "METHOD_NOT_ALLOWED", Message: "use POST"})
		return
	}
	a := getApp(w)
	if a == nil {
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Code: "BAD_REQUEST", Message: "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Code: "BAD_REQUEST", Message: "could not read uploaded file"})
		return
	}

	docID, err := a.coordinator.Submit(r.Context(), data, header.Filename, header.Header.Get("Content-Type"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.UploadResponse{DocID: docID, Message: "Uploaded. OCR started."})
}

// handleProcess finalizes a document: aggregates OCR results and flips
// it to READY. Long-running; meant to be called by the workflow or a
// manual trigger, not a latency-sensitive path.
func handleProcess(w http.ResponseWriter, r *http.Request) {
	if handlePreflight(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, models.ErrorResponse{Code: "METHOD_NOT_ALLOWED", Message: "use POST"})
		return
	}
	a := getApp(w)
	if a == nil {
		return
	}

	docID := r.URL.Query().Get("doc_id")
	if docID == "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Code: "BAD_REQUEST", Message: "query parameter 'doc_id' is required"})
		return
	}

	pages, err := a.coordinator.Finalize(r.Context(), docID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.ProcessResponse{OK: true, Pages: pages})
}

// handleAsk answers a free-text query. Always 200: failure-like
// conditions degrade to a structured no-results answer.
func handleAsk(w http.ResponseWriter, r *http.Request) {
	if handlePreflight(w, r) {
		return
	}
	a := getApp(w)
	if a == nil {
		return
	}
	writeJSON(w, http.StatusOK, a.search.Ask(r.Context(), r.URL.Query().Get("q")))
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	if handlePreflight(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, models.HealthResponse{Status: "ok"})
}

// handlePreflight sets permissive CORS headers and short-circuits
// OPTIONS requests.
func handlePreflight(w http.ResponseWriter, r *http.Request) bool {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write response.", "error", err)
	}
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
// Unclassified errors are logged in full and surfaced as a generic 500
// so infrastructure detail does not leak to callers.
func writeServiceError(w http.ResponseWriter, err error) {
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		writeJSON(w, statusForKind(svcErr.Kind), models.ErrorResponse{
			Code:    string(svcErr.Kind),
			Message: svcErr.Message,
		})
		return
	}
	slog.Error("Unexpected failure.", "error", err)
	writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{
		Code:    "INTERNAL",
		Message: "internal error",
	})
}

func statusForKind(kind services.Kind) int {
	switch kind {
	case services.KindUnsupportedMediaType:
		return http.StatusUnsupportedMediaType
	case services.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case services.KindDocumentNotFound:
		return http.StatusNotFound
	case services.KindOCRTimeout:
		return http.StatusGatewayTimeout
	case services.KindOCRJobFailed:
		return http.StatusBadGateway
	case services.KindIngestFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func envInt(key string, fallback int) int {
	raw := gcp.GetEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("Ignoring non-numeric environment value.", "key", key, "value", raw)
		return fallback
	}
	return n
}

package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// Engine recognizes line blocks in a single encoded image. It is the
// seam between job bookkeeping and the actual recognition backend, so
// the service can be tested without a Tesseract installation.
type Engine interface {
	RecognizeLines(ctx context.Context, image []byte) ([]LineBlock, error)
}

// BlobReader is the slice of the blob store the local service needs.
type BlobReader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

const defaultBatchSize = 100

type localJob struct {
	status JobStatus
	blocks []LineBlock
}

// LocalService implements Client in-process: Submit runs the engine in
// a background goroutine and the results are served from memory with
// the same poll/fetch protocol a remote OCR service would expose. It is
// meant for dev and test deployments handling image uploads.
type LocalService struct {
	engine    Engine
	blobs     BlobReader
	batchSize int

	mu   sync.Mutex
	jobs map[string]*localJob
}

// NewLocalService creates a local OCR service around the given engine.
// batchSize caps how many line blocks a single FetchLines call returns;
// zero selects a default.
func NewLocalService(engine Engine, blobs BlobReader, batchSize int) *LocalService {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &LocalService{
		engine:    engine,
		blobs:     blobs,
		batchSize: batchSize,
		jobs:      make(map[string]*localJob),
	}
}

// Submit registers a new job and starts recognition in the background.
// The returned job reference is immediately pollable.
func (s *LocalService) Submit(ctx context.Context, blobKey string) (string, error) {
	jobRef := uuid.NewString()

	s.mu.Lock()
	s.jobs[jobRef] = &localJob{status: JobStatus{State: JobInProgress}}
	s.mu.Unlock()

	// The job outlives the submitting request, so it runs on its own
	// context rather than the caller's.
	go s.run(context.Background(), jobRef, blobKey)

	slog.Info("Local OCR job started.", "jobRef", jobRef, "blobKey", blobKey)
	return jobRef, nil
}

func (s *LocalService) run(ctx context.Context, jobRef, blobKey string) {
	data, err := s.blobs.Get(ctx, blobKey)
	if err != nil {
		s.finish(jobRef, nil, fmt.Errorf("read source blob %s: %w", blobKey, err))
		return
	}

	blocks, err := s.engine.RecognizeLines(ctx, data)
	if err != nil {
		s.finish(jobRef, nil, fmt.Errorf("recognize %s: %w", blobKey, err))
		return
	}
	s.finish(jobRef, blocks, nil)
}

func (s *LocalService) finish(jobRef string, blocks []LineBlock, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobRef]
	if !ok {
		return
	}
	if err != nil {
		job.status = JobStatus{State: JobFailed, ErrorMessage: err.Error()}
		slog.Error("Local OCR job failed.", "jobRef", jobRef, "error", err)
		return
	}
	job.blocks = blocks
	job.status = JobStatus{State: JobSucceeded}
	slog.Info("Local OCR job succeeded.", "jobRef", jobRef, "blockCount", len(blocks))
}

// PollStatus reports the state of a previously submitted job.
func (s *LocalService) PollStatus(ctx context.Context, jobRef string) (JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobRef]
	if !ok {
		return JobStatus{}, fmt.Errorf("unknown OCR job %q", jobRef)
	}
	return job.status, nil
}

// FetchLines returns one batch of recognized blocks. The continuation
// token is the numeric offset of the next batch; an empty NextToken in
// the response means the result set is exhausted.
func (s *LocalService) FetchLines(ctx context.Context, jobRef, continuationToken string) (*LineBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobRef]
	if !ok {
		return nil, fmt.Errorf("unknown OCR job %q", jobRef)
	}

	offset := 0
	if continuationToken != "" {
		n, err := strconv.Atoi(continuationToken)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid continuation token %q", continuationToken)
		}
		offset = n
	}
	if offset > len(job.blocks) {
		offset = len(job.blocks)
	}

	end := offset + s.batchSize
	if end > len(job.blocks) {
		end = len(job.blocks)
	}

	batch := &LineBatch{Blocks: job.blocks[offset:end]}
	if end < len(job.blocks) {
		batch.NextToken = strconv.Itoa(end)
	}
	return batch, nil
}

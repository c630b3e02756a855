// Package ocr defines the contract for the asynchronous OCR collaborator
// and provides a local Tesseract-backed implementation of it for
// dev/test deployments.
package ocr

import "context"

// Job states reported by the OCR service. SUCCEEDED, PARTIAL_SUCCESS
// and FAILED are terminal; any other value means the job is still
// running and should be polled again.
const (
	JobSucceeded      = "SUCCEEDED"
	JobPartialSuccess = "PARTIAL_SUCCESS"
	JobFailed         = "FAILED"
	JobInProgress     = "IN_PROGRESS"
)

// Block types emitted by OCR services. Only LINE blocks carry the text
// consumed by aggregation; WORD and layout blocks are ignored.
const (
	BlockTypeLine = "LINE"
	BlockTypeWord = "WORD"
)

// JobStatus is the result of polling an OCR job.
type JobStatus struct {
	State        string
	ErrorMessage string
}

// LineBlock is one raw recognized block from the OCR service.
// Confidence is a 0-100 score.
type LineBlock struct {
	BlockType  string
	PageNumber int
	Text       string
	Confidence float64
}

// LineBatch is one page of the paginated result set. An empty NextToken
// means the result set is exhausted.
type LineBatch struct {
	Blocks    []LineBlock
	NextToken string
}

// Client is the narrow contract the core consumes. Submit starts an
// asynchronous text-detection job over a stored blob, PollStatus
// reports its state, and FetchLines drains the recognized blocks via a
// continuation-token protocol.
type Client interface {
	Submit(ctx context.Context, blobKey string) (jobRef string, err error)
	PollStatus(ctx context.Context, jobRef string) (JobStatus, error)
	FetchLines(ctx context.Context, jobRef, continuationToken string) (*LineBatch, error)
}

// Package testutil provides in-memory fakes of the external
// collaborators so the core services can be tested without live GCP or
// OCR backends.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dxdelvin/StudyNotesAI/internal/models"
	"github.com/dxdelvin/StudyNotesAI/internal/ocr"
)

// FakeBlobStore implements services.BlobStore in memory.
type FakeBlobStore struct {
	mu           sync.Mutex
	Objects      map[string][]byte
	ContentTypes map[string]string
	PutCalls     int
	PutErr       error
}

func NewFakeBlobStore() *FakeBlobStore {
	return &FakeBlobStore{
		Objects:      make(map[string][]byte),
		ContentTypes: make(map[string]string),
	}
}

func (f *FakeBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.PutCalls++
	if f.PutErr != nil {
		return f.PutErr
	}
	f.Objects[key] = append([]byte(nil), data...)
	f.ContentTypes[key] = contentType
	return nil
}

func (f *FakeBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.Objects[key]
	if !ok {
		return nil, fmt.Errorf("no object %q", key)
	}
	return append([]byte(nil), data...), nil
}

// FakeDocumentStore implements services.DocumentStore in memory.
type FakeDocumentStore struct {
	mu        sync.Mutex
	Documents map[string]models.Document
	Pages     map[string]map[int]models.Page
	CreateErr error
	ListErr   error
}

func NewFakeDocumentStore() *FakeDocumentStore {
	return &FakeDocumentStore{
		Documents: make(map[string]models.Document),
		Pages:     make(map[string]map[int]models.Page),
	}
}

func (f *FakeDocumentStore) CreateDocument(ctx context.Context, id string, doc models.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return f.CreateErr
	}
	doc.ID = id
	f.Documents[id] = doc
	return nil
}

func (f *FakeDocumentStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.Documents[id]
	if !ok {
		return nil, nil
	}
	return &doc, nil
}

func (f *FakeDocumentStore) SetStatus(ctx context.Context, id, status, errDetails string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.Documents[id]
	if !ok {
		return fmt.Errorf("no document %q", id)
	}
	doc.Status = status
	if errDetails != "" {
		doc.ErrorDetails = errDetails
	}
	f.Documents[id] = doc
	return nil
}

func (f *FakeDocumentStore) SetIndexedPages(ctx context.Context, id string, pages int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.Documents[id]
	if !ok {
		return fmt.Errorf("no document %q", id)
	}
	doc.IndexedPages = pages
	f.Documents[id] = doc
	return nil
}

func (f *FakeDocumentStore) WritePage(ctx context.Context, documentID string, page models.Page) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	pages, ok := f.Pages[documentID]
	if !ok {
		pages = make(map[int]models.Page)
		f.Pages[documentID] = pages
	}
	pages[page.PageNumber] = page
	return nil
}

func (f *FakeDocumentStore) ListPages(ctx context.Context, documentID string) ([]models.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pages []models.Page
	for _, page := range f.Pages[documentID] {
		pages = append(pages, page)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
	return pages, nil
}

func (f *FakeDocumentStore) ListReadyDocuments(ctx context.Context) ([]models.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	var docs []models.Document
	for _, doc := range f.Documents {
		if doc.Status == models.StatusReady {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// FakeSigner implements services.URLSigner with deterministic URLs.
type FakeSigner struct {
	Err error
}

func (f *FakeSigner) SignPage(ctx context.Context, fileLocation string, expiry time.Duration, page int) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	return fmt.Sprintf("https://signed.example/%s?ttl=%d#page=%d", fileLocation, int(expiry.Seconds()), page), nil
}

// FakeWorkflowTrigger records finalize triggers.
type FakeWorkflowTrigger struct {
	mu        sync.Mutex
	Triggered []string
	Err       error
}

func (f *FakeWorkflowTrigger) TriggerFinalize(ctx context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.Triggered = append(f.Triggered, documentID)
	return nil
}

// FakeOCRClient implements ocr.Client with scripted statuses and
// pre-batched result blocks. Poll responses are consumed in order; the
// last one repeats. Each FetchLines call returns one batch and a
// continuation token while more remain.
type FakeOCRClient struct {
	mu            sync.Mutex
	Statuses      []ocr.JobStatus
	Batches       [][]ocr.LineBlock
	SubmitErr     error
	SubmittedKeys []string
	PollCalls     int
	FetchCalls    int
}

func (f *FakeOCRClient) Submit(ctx context.Context, blobKey string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SubmitErr != nil {
		return "", f.SubmitErr
	}
	f.SubmittedKeys = append(f.SubmittedKeys, blobKey)
	return fmt.Sprintf("job-%d", len(f.SubmittedKeys)), nil
}

func (f *FakeOCRClient) PollStatus(ctx context.Context, jobRef string) (ocr.JobStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Statuses) == 0 {
		return ocr.JobStatus{State: ocr.JobSucceeded}, nil
	}
	i := f.PollCalls
	f.PollCalls++
	if i >= len(f.Statuses) {
		i = len(f.Statuses) - 1
	}
	return f.Statuses[i], nil
}

func (f *FakeOCRClient) FetchLines(ctx context.Context, jobRef, continuationToken string) (*ocr.LineBatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FetchCalls++

	index := 0
	if continuationToken != "" {
		if _, err := fmt.Sscanf(continuationToken, "batch-%d", &index); err != nil {
			return nil, fmt.Errorf("bad token %q", continuationToken)
		}
	}
	if len(f.Batches) == 0 {
		return &ocr.LineBatch{}, nil
	}
	if index >= len(f.Batches) {
		return nil, fmt.Errorf("token %q out of range", continuationToken)
	}

	batch := &ocr.LineBatch{Blocks: f.Batches[index]}
	if index+1 < len(f.Batches) {
		batch.NextToken = fmt.Sprintf("batch-%d", index+1)
	}
	return batch, nil
}

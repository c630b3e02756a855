package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/dxdelvin/StudyNotesAI/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the
// given project ID. It centralizes client creation for all services.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// pagesSubcollection holds a document's page records, keyed by
// zero-padded page number so rewrites overwrite instead of duplicating.
const pagesSubcollection = "pages"

// FirestoreDocumentStore implements services.DocumentStore on a
// Firestore collection of document records with a pages subcollection.
type FirestoreDocumentStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreDocumentStore wires the store around an existing client.
func NewFirestoreDocumentStore(client *firestore.Client, collection string) *FirestoreDocumentStore {
	return &FirestoreDocumentStore{client: client, collection: collection}
}

func (s *FirestoreDocumentStore) docRef(id string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(id)
}

func (s *FirestoreDocumentStore) CreateDocument(ctx context.Context, id string, doc models.Document) error {
	if _, err := s.docRef(id).Set(ctx, doc); err != nil {
		return fmt.Errorf("failed to create document record %s: %w", id, err)
	}
	return nil
}

// GetDocument returns (nil, nil) when the document does not exist.
func (s *FirestoreDocumentStore) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	snap, err := s.docRef(id).Get(ctx)
	if err != nil {
		if snap != nil && !snap.Exists() {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read document %s: %w", id, err)
	}

	var doc models.Document
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document %s: %w", id, err)
	}
	doc.ID = snap.Ref.ID
	return &doc, nil
}

func (s *FirestoreDocumentStore) SetStatus(ctx context.Context, id, status, errDetails string) error {
	updates := []firestore.Update{
		{Path: "status", Value: status},
	}
	if errDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: errDetails})
	}
	if _, err := s.docRef(id).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update status of %s to %s: %w", id, status, err)
	}
	return nil
}

func (s *FirestoreDocumentStore) SetIndexedPages(ctx context.Context, id string, pages int) error {
	updates := []firestore.Update{
		{Path: "indexedPages", Value: pages},
	}
	if _, err := s.docRef(id).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to record indexed pages for %s: %w", id, err)
	}
	return nil
}

func (s *FirestoreDocumentStore) WritePage(ctx context.Context, documentID string, page models.Page) error {
	pageRef := s.docRef(documentID).Collection(pagesSubcollection).Doc(fmt.Sprintf("%05d", page.PageNumber))
	if _, err := pageRef.Set(ctx, page); err != nil {
		return fmt.Errorf("failed to write page %d of %s: %w", page.PageNumber, documentID, err)
	}
	return nil
}

// ListPages returns the document's page records ascending by page number.
func (s *FirestoreDocumentStore) ListPages(ctx context.Context, documentID string) ([]models.Page, error) {
	it := s.docRef(documentID).Collection(pagesSubcollection).
		OrderBy("pageNumber", firestore.Asc).
		Documents(ctx)

	var pages []models.Page
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list pages of %s: %w", documentID, err)
		}
		var page models.Page
		if err := snap.DataTo(&page); err != nil {
			return nil, fmt.Errorf("failed to decode page record %s/%s: %w", documentID, snap.Ref.ID, err)
		}
		page.DocumentID = documentID
		pages = append(pages, page)
	}
	return pages, nil
}

func (s *FirestoreDocumentStore) ListReadyDocuments(ctx context.Context) ([]models.Document, error) {
	it := s.client.Collection(s.collection).
		Where("status", "==", models.StatusReady).
		Documents(ctx)

	var docs []models.Document
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan ready documents: %w", err)
		}
		var doc models.Document
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", snap.Ref.ID, err)
		}
		doc.ID = snap.Ref.ID
		docs = append(docs, doc)
	}
	return docs, nil
}

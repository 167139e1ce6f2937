package sellers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kudzaim/zimcart/internal/domain"
)

type fakeDocumentStore struct {
	mu   sync.Mutex
	docs map[string]*domain.SellerDocument
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{docs: make(map[string]*domain.SellerDocument)}
}

func (f *fakeDocumentStore) Create(_ context.Context, doc *domain.SellerDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc.ID = uuid.New().String()
	doc.Status = domain.DocumentStatusPending
	doc.CreatedAt = time.Now().UTC()
	doc.UpdatedAt = doc.CreatedAt
	cp := *doc
	f.docs[doc.ID] = &cp
	return nil
}

func (f *fakeDocumentStore) GetByID(_ context.Context, id string) (*domain.SellerDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *doc
	return &cp, nil
}

func (f *fakeDocumentStore) ListBySeller(_ context.Context, sellerID string) ([]domain.SellerDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs := []domain.SellerDocument{}
	for _, doc := range f.docs {
		if doc.SellerID == sellerID {
			docs = append(docs, *doc)
		}
	}
	return docs, nil
}

func (f *fakeDocumentStore) Review(_ context.Context, id string, status domain.DocumentStatus, reason, reviewedBy string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok || doc.Status != domain.DocumentStatusPending {
		return false, nil
	}
	doc.Status = status
	doc.RejectionReason = reason
	doc.ReviewedBy = reviewedBy
	doc.UpdatedAt = time.Now().UTC()
	return true, nil
}

func documentsMux(t *testing.T) (*http.ServeMux, *fakeDocumentStore) {
	t.Helper()
	store := newFakeDocumentStore()
	handler := NewHandler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /sellers/{sellerId}/documents", handler.HandleUpload)
	mux.HandleFunc("GET /sellers/{sellerId}/documents", handler.HandleList)
	mux.HandleFunc("PATCH /documents/{id}", handler.HandleReview)
	return mux, store
}

func TestDocumentLifecycle(t *testing.T) {
	mux, _ := documentsMux(t)

	req := httptest.NewRequest(http.MethodPost, "/sellers/seller-1/documents",
		strings.NewReader(`{"file_ref": "docs/business-registration.pdf"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var doc domain.SellerDocument
	if err := json.NewDecoder(rec.Body).Decode(&doc); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if doc.Status != domain.DocumentStatusPending {
		t.Errorf("expected pending, got %s", doc.Status)
	}

	req = httptest.NewRequest(http.MethodPatch, "/documents/"+doc.ID,
		strings.NewReader(`{"status": "approved", "reviewed_by": "admin-1"}`))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var reviewed domain.SellerDocument
	if err := json.NewDecoder(rec.Body).Decode(&reviewed); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if reviewed.Status != domain.DocumentStatusApproved {
		t.Errorf("expected approved, got %s", reviewed.Status)
	}
	if reviewed.ReviewedBy != "admin-1" {
		t.Errorf("expected reviewer admin-1, got %s", reviewed.ReviewedBy)
	}

	// A reviewed document cannot be re-reviewed.
	req = httptest.NewRequest(http.MethodPatch, "/documents/"+doc.ID,
		strings.NewReader(`{"status": "rejected", "reason": "blurry scan"}`))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", rec.Code)
	}
}

func TestDocumentReview_Validation(t *testing.T) {
	t.Run("rejection requires a reason", func(t *testing.T) {
		mux, store := documentsMux(t)
		doc := &domain.SellerDocument{SellerID: "seller-1", FileRef: "docs/id.jpg"}
		_ = store.Create(context.Background(), doc)

		req := httptest.NewRequest(http.MethodPatch, "/documents/"+doc.ID,
			strings.NewReader(`{"status": "rejected"}`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("cannot review back to pending", func(t *testing.T) {
		mux, store := documentsMux(t)
		doc := &domain.SellerDocument{SellerID: "seller-1", FileRef: "docs/id.jpg"}
		_ = store.Create(context.Background(), doc)

		req := httptest.NewRequest(http.MethodPatch, "/documents/"+doc.ID,
			strings.NewReader(`{"status": "pending"}`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("unknown document returns 404", func(t *testing.T) {
		mux, _ := documentsMux(t)

		req := httptest.NewRequest(http.MethodPatch, "/documents/"+uuid.New().String(),
			strings.NewReader(`{"status": "approved"}`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestDocumentList(t *testing.T) {
	mux, store := documentsMux(t)
	ctx := context.Background()

	_ = store.Create(ctx, &domain.SellerDocument{SellerID: "seller-1", FileRef: "docs/a.pdf"})
	_ = store.Create(ctx, &domain.SellerDocument{SellerID: "seller-2", FileRef: "docs/b.pdf"})

	req := httptest.NewRequest(http.MethodGet, "/sellers/seller-1/documents", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var docs []domain.SellerDocument
	if err := json.NewDecoder(rec.Body).Decode(&docs); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if len(docs) != 1 {
		t.Errorf("expected 1 document, got %d", len(docs))
	}
}

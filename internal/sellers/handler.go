package sellers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kudzaim/zimcart/internal/domain"
)

// DocumentStore is the persistence boundary for seller verification
// documents; admin role enforcement lives with the external auth layer.
type DocumentStore interface {
	Create(ctx context.Context, doc *domain.SellerDocument) error
	GetByID(ctx context.Context, id string) (*domain.SellerDocument, error)
	ListBySeller(ctx context.Context, sellerID string) ([]domain.SellerDocument, error)
	Review(ctx context.Context, id string, status domain.DocumentStatus, reason, reviewedBy string) (bool, error)
}

type Handler struct {
	store  DocumentStore
	logger *slog.Logger
}

func NewHandler(store DocumentStore, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

type uploadDocumentRequest struct {
	FileRef string `json:"file_ref"`
}

func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	sellerID := r.PathValue("sellerId")
	if sellerID == "" {
		h.writeError(w, http.StatusBadRequest, "missing seller id")
		return
	}

	var req uploadDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FileRef == "" {
		h.writeError(w, http.StatusBadRequest, "missing file_ref")
		return
	}

	doc := &domain.SellerDocument{
		SellerID: sellerID,
		FileRef:  req.FileRef,
	}
	if err := h.store.Create(r.Context(), doc); err != nil {
		h.logger.Error("failed to create seller document", "error", err, "seller_id", sellerID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("seller document uploaded", "document_id", doc.ID, "seller_id", sellerID)
	h.writeJSON(w, http.StatusCreated, doc)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	sellerID := r.PathValue("sellerId")
	if sellerID == "" {
		h.writeError(w, http.StatusBadRequest, "missing seller id")
		return
	}

	docs, err := h.store.ListBySeller(r.Context(), sellerID)
	if err != nil {
		h.logger.Error("failed to list seller documents", "error", err, "seller_id", sellerID)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, docs)
}

type reviewDocumentRequest struct {
	Status     string `json:"status"`
	Reason     string `json:"reason"`
	ReviewedBy string `json:"reviewed_by"`
}

func (h *Handler) HandleReview(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.writeError(w, http.StatusBadRequest, "missing document id")
		return
	}

	var req reviewDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status, err := domain.ParseDocumentStatus(req.Status)
	if err != nil || status == domain.DocumentStatusPending {
		h.writeError(w, http.StatusBadRequest, "status must be approved or rejected")
		return
	}
	if status == domain.DocumentStatusRejected && req.Reason == "" {
		h.writeError(w, http.StatusBadRequest, "rejection requires a reason")
		return
	}

	applied, err := h.store.Review(r.Context(), id, status, req.Reason, req.ReviewedBy)
	if err != nil {
		h.logger.Error("failed to review document", "error", err, "document_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !applied {
		doc, err := h.store.GetByID(r.Context(), id)
		if err != nil {
			h.logger.Error("failed to get document", "error", err, "document_id", id)
			h.writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if doc == nil {
			h.writeError(w, http.StatusNotFound, "document not found")
			return
		}
		h.writeError(w, http.StatusConflict, "document already reviewed")
		return
	}

	doc, err := h.store.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get document", "error", err, "document_id", id)
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("seller document reviewed", "document_id", id, "status", status)
	h.writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

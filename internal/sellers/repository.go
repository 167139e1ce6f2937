package sellers

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/kudzaim/zimcart/internal/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.SellerDocument) error {
	doc.ID = uuid.New().String()
	doc.Status = domain.DocumentStatusPending
	doc.CreatedAt = time.Now().UTC()
	doc.UpdatedAt = doc.CreatedAt

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO seller_documents (id, seller_id, file_ref, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
	`, doc.ID, doc.SellerID, doc.FileRef, doc.Status, doc.CreatedAt)
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.SellerDocument, error) {
	doc := &domain.SellerDocument{}
	var reason, reviewer sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, seller_id, file_ref, status, rejection_reason, reviewed_by, created_at, updated_at
		FROM seller_documents
		WHERE id = $1
	`, id).Scan(&doc.ID, &doc.SellerID, &doc.FileRef, &doc.Status, &reason, &reviewer, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	doc.RejectionReason = reason.String
	doc.ReviewedBy = reviewer.String

	return doc, nil
}

func (r *DocumentRepository) ListBySeller(ctx context.Context, sellerID string) ([]domain.SellerDocument, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, seller_id, file_ref, status, rejection_reason, reviewed_by, created_at, updated_at
		FROM seller_documents
		WHERE seller_id = $1
		ORDER BY created_at DESC
	`, sellerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	docs := []domain.SellerDocument{}
	for rows.Next() {
		var doc domain.SellerDocument
		var reason, reviewer sql.NullString
		if err := rows.Scan(&doc.ID, &doc.SellerID, &doc.FileRef, &doc.Status, &reason, &reviewer, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, err
		}
		doc.RejectionReason = reason.String
		doc.ReviewedBy = reviewer.String
		docs = append(docs, doc)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return docs, nil
}

// Review resolves a pending document. The UPDATE is guarded on the pending
// status so a document cannot be reviewed twice.
func (r *DocumentRepository) Review(ctx context.Context, id string, status domain.DocumentStatus, reason, reviewedBy string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE seller_documents
		SET status = $1, rejection_reason = NULLIF($2, ''), reviewed_by = $3, updated_at = NOW()
		WHERE id = $4 AND status = $5
	`, status, reason, reviewedBy, id, domain.DocumentStatusPending)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

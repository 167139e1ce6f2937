package domain

import (
	"fmt"
	"strings"
	"time"
)

type DocumentStatus string

const (
	DocumentStatusPending  DocumentStatus = "pending"
	DocumentStatusApproved DocumentStatus = "approved"
	DocumentStatusRejected DocumentStatus = "rejected"
)

func ParseDocumentStatus(s string) (DocumentStatus, error) {
	switch DocumentStatus(strings.ToLower(strings.TrimSpace(s))) {
	case DocumentStatusPending:
		return DocumentStatusPending, nil
	case DocumentStatusApproved:
		return DocumentStatusApproved, nil
	case DocumentStatusRejected:
		return DocumentStatusRejected, nil
	}
	return "", fmt.Errorf("unknown document status %q", s)
}

// SellerDocument is an uploaded proof of identity or business registration,
// reviewed by an admin. Its lifecycle is independent of orders.
type SellerDocument struct {
	ID              string         `json:"id"`
	SellerID        string         `json:"seller_id"`
	FileRef         string         `json:"file_ref"`
	Status          DocumentStatus `json:"status"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
	ReviewedBy      string         `json:"reviewed_by,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

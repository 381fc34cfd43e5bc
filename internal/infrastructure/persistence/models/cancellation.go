package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/invitely/backend/internal/domain/trade"
	"github.com/shopspring/decimal"
)

// CancellationRequestModel is the persistence model for CancellationRequest.
// The partial unique index allows at most one pending request per order.
type CancellationRequestModel struct {
	AggregateModel
	OrderID       uuid.UUID                `gorm:"type:uuid;not null;index:idx_cancellation_order;uniqueIndex:ux_cancellation_pending_per_order,where:status = 'pending'"`
	OrderNumber   string                   `gorm:"type:varchar(50);not null"`
	RequestedBy   uuid.UUID                `gorm:"type:uuid;not null"`
	RequesterRole trade.ActorRole          `gorm:"type:varchar(20);not null"`
	Status        trade.CancellationStatus `gorm:"type:varchar(20);not null;index"`
	Reason        string                   `gorm:"type:text;not null"`
	AdminNotes    string                   `gorm:"type:text"`
	ReviewedBy    *uuid.UUID               `gorm:"type:uuid"`
	ReviewedAt    *time.Time

	RefundInitiated     bool               `gorm:"not null"`
	RefundAmount        decimal.Decimal    `gorm:"type:decimal(18,2);not null"`
	RefundTransactionID string             `gorm:"type:varchar(100)"`
	RefundStatus        trade.RefundStatus `gorm:"type:varchar(20)"`
	RefundAttempts      int                `gorm:"not null"`
	RefundError         string             `gorm:"type:text"`
	RefundedAt          *time.Time

	RestoreStock    bool `gorm:"not null"`
	StockRestored   bool `gorm:"not null"`
	StockRestoredAt *time.Time
}

// TableName returns the table name for GORM
func (CancellationRequestModel) TableName() string {
	return "order_cancellation_requests"
}

// ToDomain converts the persistence model to a domain CancellationRequest
func (m *CancellationRequestModel) ToDomain() *trade.CancellationRequest {
	return &trade.CancellationRequest{
		BaseAggregateRoot:   m.ToAggregateRoot(),
		OrderID:             m.OrderID,
		OrderNumber:         m.OrderNumber,
		RequestedBy:         m.RequestedBy,
		RequesterRole:       m.RequesterRole,
		Status:              m.Status,
		Reason:              m.Reason,
		AdminNotes:          m.AdminNotes,
		ReviewedBy:          m.ReviewedBy,
		ReviewedAt:          m.ReviewedAt,
		RefundInitiated:     m.RefundInitiated,
		RefundAmount:        m.RefundAmount,
		RefundTransactionID: m.RefundTransactionID,
		RefundStatus:        m.RefundStatus,
		RefundAttempts:      m.RefundAttempts,
		RefundError:         m.RefundError,
		RefundedAt:          m.RefundedAt,
		RestoreStock:        m.RestoreStock,
		StockRestored:       m.StockRestored,
		StockRestoredAt:     m.StockRestoredAt,
	}
}

// FromDomain populates the persistence model from a domain CancellationRequest
func (m *CancellationRequestModel) FromDomain(r *trade.CancellationRequest) {
	m.FromDomainAggregateRoot(r.BaseAggregateRoot)
	m.OrderID = r.OrderID
	m.OrderNumber = r.OrderNumber
	m.RequestedBy = r.RequestedBy
	m.RequesterRole = r.RequesterRole
	m.Status = r.Status
	m.Reason = r.Reason
	m.AdminNotes = r.AdminNotes
	m.ReviewedBy = r.ReviewedBy
	m.ReviewedAt = r.ReviewedAt
	m.RefundInitiated = r.RefundInitiated
	m.RefundAmount = r.RefundAmount
	m.RefundTransactionID = r.RefundTransactionID
	m.RefundStatus = r.RefundStatus
	m.RefundAttempts = r.RefundAttempts
	m.RefundError = r.RefundError
	m.RefundedAt = r.RefundedAt
	m.RestoreStock = r.RestoreStock
	m.StockRestored = r.StockRestored
	m.StockRestoredAt = r.StockRestoredAt
}

// MutableColumns are the columns a review or side effect may change
func (m *CancellationRequestModel) MutableColumns() map[string]any {
	return map[string]any{
		"status":                m.Status,
		"admin_notes":           m.AdminNotes,
		"reviewed_by":           m.ReviewedBy,
		"reviewed_at":           m.ReviewedAt,
		"refund_initiated":      m.RefundInitiated,
		"refund_amount":         m.RefundAmount,
		"refund_transaction_id": m.RefundTransactionID,
		"refund_status":         m.RefundStatus,
		"refund_attempts":       m.RefundAttempts,
		"refund_error":          m.RefundError,
		"refunded_at":           m.RefundedAt,
		"restore_stock":         m.RestoreStock,
		"stock_restored":        m.StockRestored,
		"stock_restored_at":     m.StockRestoredAt,
		"updated_at":            m.UpdatedAt,
	}
}

// CancellationRequestModelFromDomain creates a new persistence model from a domain CancellationRequest
func CancellationRequestModelFromDomain(r *trade.CancellationRequest) *CancellationRequestModel {
	m := &CancellationRequestModel{}
	m.FromDomain(r)
	return m
}

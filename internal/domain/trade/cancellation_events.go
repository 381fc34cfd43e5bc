package trade

import (
	"github.com/google/uuid"
	"github.com/invitely/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Aggregate type constant
const AggregateTypeCancellationRequest = "CancellationRequest"

// Event type constants
const (
	EventTypeCancellationRequested       = "CancellationRequested"
	EventTypeCancellationApproved        = "CancellationApproved"
	EventTypeCancellationRejected        = "CancellationRejected"
	EventTypeCancellationRefundCompleted = "CancellationRefundCompleted"
	EventTypeCancellationRefundFailed    = "CancellationRefundFailed"
)

// CancellationRequestedEvent is raised when a cancellation request is opened
type CancellationRequestedEvent struct {
	shared.BaseDomainEvent
	CancellationID uuid.UUID `json:"cancellation_id"`
	OrderID        uuid.UUID `json:"order_id"`
	OrderNumber    string    `json:"order_number"`
	RequestedBy    uuid.UUID `json:"requested_by"`
	RequesterRole  ActorRole `json:"requester_role"`
	Reason         string    `json:"reason"`
}

// NewCancellationRequestedEvent creates a new CancellationRequestedEvent
func NewCancellationRequestedEvent(r *CancellationRequest) *CancellationRequestedEvent {
	return &CancellationRequestedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCancellationRequested, AggregateTypeCancellationRequest, r.ID),
		CancellationID:  r.ID,
		OrderID:         r.OrderID,
		OrderNumber:     r.OrderNumber,
		RequestedBy:     r.RequestedBy,
		RequesterRole:   r.RequesterRole,
		Reason:          r.Reason,
	}
}

// EventType returns the event type name
func (e *CancellationRequestedEvent) EventType() string {
	return EventTypeCancellationRequested
}

// CancellationApprovedEvent is raised on approval.
// It drives the refund and stock restoration side effects.
type CancellationApprovedEvent struct {
	shared.BaseDomainEvent
	CancellationID  uuid.UUID       `json:"cancellation_id"`
	OrderID         uuid.UUID       `json:"order_id"`
	OrderNumber     string          `json:"order_number"`
	ReviewedBy      uuid.UUID       `json:"reviewed_by"`
	RefundInitiated bool            `json:"refund_initiated"`
	RefundAmount    decimal.Decimal `json:"refund_amount"`
	RestoreStock    bool            `json:"restore_stock"`
}

// NewCancellationApprovedEvent creates a new CancellationApprovedEvent
func NewCancellationApprovedEvent(r *CancellationRequest) *CancellationApprovedEvent {
	var reviewer uuid.UUID
	if r.ReviewedBy != nil {
		reviewer = *r.ReviewedBy
	}
	return &CancellationApprovedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCancellationApproved, AggregateTypeCancellationRequest, r.ID),
		CancellationID:  r.ID,
		OrderID:         r.OrderID,
		OrderNumber:     r.OrderNumber,
		ReviewedBy:      reviewer,
		RefundInitiated: r.RefundInitiated,
		RefundAmount:    r.RefundAmount,
		RestoreStock:    r.RestoreStock,
	}
}

// EventType returns the event type name
func (e *CancellationApprovedEvent) EventType() string {
	return EventTypeCancellationApproved
}

// CancellationRejectedEvent is raised on rejection
type CancellationRejectedEvent struct {
	shared.BaseDomainEvent
	CancellationID uuid.UUID `json:"cancellation_id"`
	OrderID        uuid.UUID `json:"order_id"`
	OrderNumber    string    `json:"order_number"`
	RequestedBy    uuid.UUID `json:"requested_by"`
	AdminNotes     string    `json:"admin_notes"`
}

// NewCancellationRejectedEvent creates a new CancellationRejectedEvent
func NewCancellationRejectedEvent(r *CancellationRequest) *CancellationRejectedEvent {
	return &CancellationRejectedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCancellationRejected, AggregateTypeCancellationRequest, r.ID),
		CancellationID:  r.ID,
		OrderID:         r.OrderID,
		OrderNumber:     r.OrderNumber,
		RequestedBy:     r.RequestedBy,
		AdminNotes:      r.AdminNotes,
	}
}

// EventType returns the event type name
func (e *CancellationRejectedEvent) EventType() string {
	return EventTypeCancellationRejected
}

// CancellationRefundCompletedEvent is raised when the gateway confirms a refund
type CancellationRefundCompletedEvent struct {
	shared.BaseDomainEvent
	CancellationID      uuid.UUID       `json:"cancellation_id"`
	OrderID             uuid.UUID       `json:"order_id"`
	OrderNumber         string          `json:"order_number"`
	RefundAmount        decimal.Decimal `json:"refund_amount"`
	RefundTransactionID string          `json:"refund_transaction_id"`
}

// NewCancellationRefundCompletedEvent creates a new CancellationRefundCompletedEvent
func NewCancellationRefundCompletedEvent(r *CancellationRequest) *CancellationRefundCompletedEvent {
	return &CancellationRefundCompletedEvent{
		BaseDomainEvent:     shared.NewBaseDomainEvent(EventTypeCancellationRefundCompleted, AggregateTypeCancellationRequest, r.ID),
		CancellationID:      r.ID,
		OrderID:             r.OrderID,
		OrderNumber:         r.OrderNumber,
		RefundAmount:        r.RefundAmount,
		RefundTransactionID: r.RefundTransactionID,
	}
}

// EventType returns the event type name
func (e *CancellationRefundCompletedEvent) EventType() string {
	return EventTypeCancellationRefundCompleted
}

// CancellationRefundFailedEvent is raised on every failed refund attempt
type CancellationRefundFailedEvent struct {
	shared.BaseDomainEvent
	CancellationID uuid.UUID `json:"cancellation_id"`
	OrderID        uuid.UUID `json:"order_id"`
	OrderNumber    string    `json:"order_number"`
	Attempts       int       `json:"attempts"`
	Error          string    `json:"error"`
}

// NewCancellationRefundFailedEvent creates a new CancellationRefundFailedEvent
func NewCancellationRefundFailedEvent(r *CancellationRequest) *CancellationRefundFailedEvent {
	return &CancellationRefundFailedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeCancellationRefundFailed, AggregateTypeCancellationRequest, r.ID),
		CancellationID:  r.ID,
		OrderID:         r.OrderID,
		OrderNumber:     r.OrderNumber,
		Attempts:        r.RefundAttempts,
		Error:           r.RefundError,
	}
}

// EventType returns the event type name
func (e *CancellationRefundFailedEvent) EventType() string {
	return EventTypeCancellationRefundFailed
}

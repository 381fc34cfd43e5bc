package trade

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/invitely/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

const (
	MinCancellationReasonLength = 5
	MaxCancellationReasonLength = 1000
	MinRejectionNotesLength     = 10
	DefaultMaxRefundAttempts    = 5
	// MaxRefundErrorLength is in bytes
	MaxRefundErrorLength = 500
)

// CancellationStatus represents the review status of a cancellation request
type CancellationStatus string

const (
	CancellationStatusPending  CancellationStatus = "pending"
	CancellationStatusApproved CancellationStatus = "approved"
	CancellationStatusRejected CancellationStatus = "rejected"
)

// IsValid checks if the status is a valid CancellationStatus
func (s CancellationStatus) IsValid() bool {
	switch s {
	case CancellationStatusPending, CancellationStatusApproved, CancellationStatusRejected:
		return true
	}
	return false
}

// String returns the string representation of CancellationStatus
func (s CancellationStatus) String() string {
	return string(s)
}

// IsTerminal returns true for approved and rejected
func (s CancellationStatus) IsTerminal() bool {
	return s == CancellationStatusApproved || s == CancellationStatusRejected
}

// RefundStatus tracks the refund side effect of an approved cancellation
type RefundStatus string

const (
	RefundStatusNone       RefundStatus = ""
	RefundStatusPending    RefundStatus = "pending"
	RefundStatusProcessing RefundStatus = "processing"
	RefundStatusCompleted  RefundStatus = "completed"
	RefundStatusFailed     RefundStatus = "failed"
)

// IsValid checks if the status is a valid RefundStatus
func (s RefundStatus) IsValid() bool {
	switch s {
	case RefundStatusNone, RefundStatusPending, RefundStatusProcessing, RefundStatusCompleted, RefundStatusFailed:
		return true
	}
	return false
}

// String returns the string representation of RefundStatus
func (s RefundStatus) String() string {
	return string(s)
}

// CancellationRequest is a customer or admin request to cancel an order.
// Approval cancels the order; refund and stock restoration are tracked here
// as separate side effects with their own status.
type CancellationRequest struct {
	shared.BaseAggregateRoot
	OrderID       uuid.UUID
	OrderNumber   string
	RequestedBy   uuid.UUID
	RequesterRole ActorRole
	Status        CancellationStatus
	Reason        string
	AdminNotes    string
	ReviewedBy    *uuid.UUID
	ReviewedAt    *time.Time

	RefundInitiated     bool
	RefundAmount        decimal.Decimal
	RefundTransactionID string
	RefundStatus        RefundStatus
	RefundAttempts      int
	RefundError         string
	RefundedAt          *time.Time

	RestoreStock    bool
	StockRestored   bool
	StockRestoredAt *time.Time
}

// NewCancellationRequest opens a pending request for order. The caller must
// make sure no other pending request exists for the same order.
func NewCancellationRequest(order *Order, actor Actor, reason string) (*CancellationRequest, error) {
	if order == nil {
		return nil, shared.NewValidationError("INVALID_ORDER", "order is required")
	}
	if actor.Role != ActorCustomer && actor.Role != ActorAdmin {
		return nil, shared.NewValidationError("INVALID_REQUESTER", "cancellation must be requested by a customer or an admin")
	}
	if actor.ID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_REQUESTER", "requester id is required")
	}
	reason = strings.TrimSpace(reason)
	if n := utf8.RuneCountInString(reason); n < MinCancellationReasonLength || n > MaxCancellationReasonLength {
		return nil, shared.NewValidationError("INVALID_CANCELLATION_REASON",
			"cancellation reason must be between %d and %d characters", MinCancellationReasonLength, MaxCancellationReasonLength)
	}
	if actor.Role == ActorCustomer && actor.ID != order.CustomerID {
		return nil, shared.NewStateError("NOT_ORDER_OWNER", "order %s does not belong to the requester", order.OrderNumber)
	}
	if !order.Status().IsCancellable() {
		return nil, shared.NewStateError("ORDER_NOT_CANCELLABLE",
			"order in %s status cannot be cancelled", order.Status().Label())
	}

	req := &CancellationRequest{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber,
		RequestedBy:       actor.ID,
		RequesterRole:     actor.Role,
		Status:            CancellationStatusPending,
		Reason:            reason,
		RefundStatus:      RefundStatusNone,
		RefundAmount:      decimal.Zero,
	}
	req.AddDomainEvent(NewCancellationRequestedEvent(req))
	return req, nil
}

// ApprovalDecision is what the reviewing admin decided on approval
type ApprovalDecision struct {
	Notes string
	// RefundAmount is the amount to return; zero means no refund.
	RefundAmount decimal.Decimal
	RestoreStock bool
}

// Approve marks the request approved. The caller cancels the order in the
// same unit of work.
func (r *CancellationRequest) Approve(adminID uuid.UUID, decision ApprovalDecision) error {
	if r.Status != CancellationStatusPending {
		return shared.NewStateError("CANCELLATION_NOT_PENDING", "cannot approve a %s cancellation request", r.Status)
	}
	if adminID == uuid.Nil {
		return shared.NewValidationError("INVALID_REVIEWER", "reviewer id is required")
	}
	if decision.RefundAmount.IsNegative() {
		return shared.NewValidationError("INVALID_REFUND_AMOUNT", "refund amount cannot be negative")
	}

	now := time.Now()
	r.Status = CancellationStatusApproved
	r.ReviewedBy = &adminID
	r.ReviewedAt = &now
	r.AdminNotes = strings.TrimSpace(decision.Notes)
	r.RestoreStock = decision.RestoreStock
	r.RefundAmount = decision.RefundAmount
	if decision.RefundAmount.IsPositive() {
		r.RefundInitiated = true
		r.RefundStatus = RefundStatusPending
	}
	r.UpdatedAt = now

	r.AddDomainEvent(NewCancellationApprovedEvent(r))
	return nil
}

// Reject closes the request without touching the order
func (r *CancellationRequest) Reject(adminID uuid.UUID, notes string) error {
	if r.Status != CancellationStatusPending {
		return shared.NewStateError("CANCELLATION_NOT_PENDING", "cannot reject a %s cancellation request", r.Status)
	}
	if adminID == uuid.Nil {
		return shared.NewValidationError("INVALID_REVIEWER", "reviewer id is required")
	}
	notes = strings.TrimSpace(notes)
	if utf8.RuneCountInString(notes) < MinRejectionNotesLength {
		return shared.NewValidationError("INVALID_REJECTION_NOTES",
			"rejection notes must be at least %d characters", MinRejectionNotesLength)
	}

	now := time.Now()
	r.Status = CancellationStatusRejected
	r.ReviewedBy = &adminID
	r.ReviewedAt = &now
	r.AdminNotes = notes
	r.UpdatedAt = now

	r.AddDomainEvent(NewCancellationRejectedEvent(r))
	return nil
}

// NeedsRefund reports whether a refund attempt should be made
func (r *CancellationRequest) NeedsRefund(maxAttempts int) bool {
	if r.Status != CancellationStatusApproved || !r.RefundInitiated {
		return false
	}
	if r.RefundStatus != RefundStatusPending && r.RefundStatus != RefundStatusFailed {
		return false
	}
	return maxAttempts <= 0 || r.RefundAttempts < maxAttempts
}

// NeedsStockRestore reports whether stock restoration is still outstanding
func (r *CancellationRequest) NeedsStockRestore() bool {
	return r.Status == CancellationStatusApproved && r.RestoreStock && !r.StockRestored
}

// RefundIdempotencyKey is stable across retries of the same refund
func (r *CancellationRequest) RefundIdempotencyKey() string {
	return "refund-" + r.ID.String()
}

// StartRefund moves the refund into processing and counts the attempt
func (r *CancellationRequest) StartRefund(maxAttempts int) error {
	if r.Status != CancellationStatusApproved || !r.RefundInitiated {
		return shared.NewStateError("REFUND_NOT_INITIATED", "cancellation %s has no refund to process", r.ID)
	}
	if r.RefundStatus != RefundStatusPending && r.RefundStatus != RefundStatusFailed {
		return shared.NewStateError("REFUND_NOT_RETRYABLE", "refund is %s", r.RefundStatus)
	}
	if maxAttempts > 0 && r.RefundAttempts >= maxAttempts {
		return shared.NewStateError("REFUND_ATTEMPTS_EXHAUSTED",
			"refund for cancellation %s failed %d times", r.ID, r.RefundAttempts)
	}
	r.RefundStatus = RefundStatusProcessing
	r.RefundAttempts++
	r.RefundError = ""
	r.UpdatedAt = time.Now()
	return nil
}

// CompleteRefund records the gateway refund reference
func (r *CancellationRequest) CompleteRefund(refundTransactionID string, at time.Time) error {
	if r.RefundStatus != RefundStatusProcessing {
		return shared.NewStateError("REFUND_NOT_PROCESSING", "cannot complete a %s refund", r.RefundStatus)
	}
	if at.IsZero() {
		at = time.Now()
	}
	r.RefundStatus = RefundStatusCompleted
	r.RefundTransactionID = refundTransactionID
	r.RefundedAt = &at
	r.RefundError = ""
	r.UpdatedAt = time.Now()

	r.AddDomainEvent(NewCancellationRefundCompletedEvent(r))
	return nil
}

// FailRefund records a failed attempt. The approval itself stays intact.
func (r *CancellationRequest) FailRefund(reason string) error {
	if r.RefundStatus != RefundStatusProcessing {
		return shared.NewStateError("REFUND_NOT_PROCESSING", "cannot fail a %s refund", r.RefundStatus)
	}
	r.RefundStatus = RefundStatusFailed
	r.RefundError = truncateUTF8(reason, MaxRefundErrorLength)
	r.UpdatedAt = time.Now()

	r.AddDomainEvent(NewCancellationRefundFailedEvent(r))
	return nil
}

// truncateUTF8 cuts s to at most limit bytes without splitting a rune
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// MarkStockRestored flags the stock side effect as done. It returns false
// when the flag was already set.
func (r *CancellationRequest) MarkStockRestored() bool {
	if r.StockRestored {
		return false
	}
	now := time.Now()
	r.StockRestored = true
	r.StockRestoredAt = &now
	r.UpdatedAt = now
	return true
}

// IsPending returns true while the request awaits review
func (r *CancellationRequest) IsPending() bool {
	return r.Status == CancellationStatusPending
}

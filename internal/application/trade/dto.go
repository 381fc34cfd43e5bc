package trade

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/invitely/backend/internal/domain/finance"
	"github.com/invitely/backend/internal/domain/trade"
	"github.com/invitely/backend/internal/infrastructure/format"
)

// ==================== Order DTOs ====================

// CreateOrderRequest is sent by checkout once the cart is priced
type CreateOrderRequest struct {
	CustomerID     uuid.UUID              `json:"-"`
	Items          []CreateOrderItemInput `json:"items" binding:"required,min=1,dive"`
	ShippingCost   decimal.Decimal        `json:"shipping_cost"`
	DiscountAmount decimal.Decimal        `json:"discount_amount"`
	PromoCode      string                 `json:"promo_code" binding:"max=50"`
	PaymentOption  *string                `json:"payment_option" binding:"omitempty,payment_plan"`
	Invitation     *InvitationDetailInput `json:"invitation"`
	Notes          string                 `json:"notes" binding:"max=2000"`
}

// CreateOrderItemInput is one priced cart line
type CreateOrderItemInput struct {
	ProductID   uuid.UUID       `json:"product_id" binding:"required"`
	ProductName string          `json:"product_name" binding:"required,min=1,max=200"`
	Quantity    int             `json:"quantity" binding:"required,min=1"`
	UnitPrice   decimal.Decimal `json:"unit_price" binding:"required"`
}

// InvitationDetailInput is the invitation customization captured at checkout
type InvitationDetailInput struct {
	Kind    string          `json:"kind" binding:"required,oneof=physical digital"`
	Payload json.RawMessage `json:"payload"`
}

// OrderListFilter filters the order list
type OrderListFilter struct {
	Page          int        `form:"page" binding:"omitempty,min=1"`
	PageSize      int        `form:"page_size" binding:"omitempty,min=1,max=100"`
	OrderBy       string     `form:"order_by" binding:"omitempty,oneof=created_at updated_at total_amount order_number"`
	OrderDir      string     `form:"order_dir" binding:"omitempty,oneof=asc desc"`
	Search        string     `form:"search"`
	Status        string     `form:"status"`
	PaymentStatus string     `form:"payment_status"`
	CustomerID    *uuid.UUID `form:"-"`
}

// UpdateStatusRequest is an audited admin status change.
// ExpectedVersion, when set, must match the stored order version.
type UpdateStatusRequest struct {
	Status          string  `json:"status" binding:"required"`
	PaymentStatus   *string `json:"payment_status"`
	Note            string  `json:"note" binding:"max=1000"`
	ExpectedVersion *int    `json:"expected_version"`
}

// OrderItemResponse is one order line
type OrderItemResponse struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	SubTotal    decimal.Decimal `json:"subtotal"`
}

// InvitationResponse is the stored invitation customization
type InvitationResponse struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OrderResponse is an order with its ledger-derived figures
type OrderResponse struct {
	ID                 uuid.UUID           `json:"id"`
	OrderNumber        string              `json:"order_number"`
	CustomerID         uuid.UUID           `json:"customer_id"`
	Status             string              `json:"status"`
	StatusLabel        string              `json:"status_label"`
	PaymentStatus      string              `json:"payment_status"`
	PaymentOption      *string             `json:"payment_option"`
	Items              []OrderItemResponse `json:"items,omitempty"`
	SubtotalAmount     decimal.Decimal     `json:"subtotal_amount"`
	DiscountAmount     decimal.Decimal     `json:"discount_amount"`
	ShippingCost       decimal.Decimal     `json:"shipping_cost"`
	TotalAmount        decimal.Decimal     `json:"total_amount"`
	TotalDisplay       string              `json:"total_display"`
	AmountPaid         decimal.Decimal     `json:"amount_paid"`
	RemainingBalance   decimal.Decimal     `json:"remaining_balance"`
	Overpaid           bool                `json:"overpaid"`
	PromoCode          string              `json:"promo_code,omitempty"`
	Notes              string              `json:"notes,omitempty"`
	Invitation         *InvitationResponse `json:"invitation,omitempty"`
	AllowedTransitions []string            `json:"allowed_transitions"`
	PaidAt             *time.Time          `json:"paid_at,omitempty"`
	ProcessingAt       *time.Time          `json:"processing_at,omitempty"`
	ShippedAt          *time.Time          `json:"shipped_at,omitempty"`
	DeliveredAt        *time.Time          `json:"delivered_at,omitempty"`
	CompletedAt        *time.Time          `json:"completed_at,omitempty"`
	CancelledAt        *time.Time          `json:"cancelled_at,omitempty"`
	CancelReason       string              `json:"cancel_reason,omitempty"`
	Version            int                 `json:"version"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// ToOrderResponse converts an order and its ledger totals to a response
func ToOrderResponse(order *trade.Order, totals finance.PaymentTotals) OrderResponse {
	balance := order.Balance(totals)
	resp := OrderResponse{
		ID:               order.ID,
		OrderNumber:      order.OrderNumber,
		CustomerID:       order.CustomerID,
		Status:           string(order.Status()),
		StatusLabel:      order.Status().Label(),
		PaymentStatus:    string(order.PaymentStatus()),
		SubtotalAmount:   order.SubtotalAmount,
		DiscountAmount:   order.DiscountAmount,
		ShippingCost:     order.ShippingCost,
		TotalAmount:      order.TotalAmount,
		TotalDisplay:     format.FormatAmount(order.TotalAmount),
		AmountPaid:       balance.AmountPaid,
		RemainingBalance: balance.RemainingBalance,
		Overpaid:         balance.Overpaid,
		PromoCode:        order.PromoCode,
		Notes:            order.Notes,
		PaidAt:           order.PaidAt,
		ProcessingAt:     order.ProcessingAt,
		ShippedAt:        order.ShippedAt,
		DeliveredAt:      order.DeliveredAt,
		CompletedAt:      order.CompletedAt,
		CancelledAt:      order.CancelledAt,
		CancelReason:     order.CancelReason,
		Version:          order.Version,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
	if order.PaymentOption != nil {
		option := string(*order.PaymentOption)
		resp.PaymentOption = &option
	}
	if order.Invitation != nil {
		resp.Invitation = &InvitationResponse{
			Kind:    string(order.Invitation.Kind),
			Payload: order.Invitation.Payload,
		}
	}

	resp.Items = make([]OrderItemResponse, len(order.Items))
	for i, item := range order.Items {
		resp.Items[i] = OrderItemResponse{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			SubTotal:    item.SubTotal,
		}
	}

	allowed := order.Status().AllowedTransitions()
	resp.AllowedTransitions = make([]string, len(allowed))
	for i, s := range allowed {
		resp.AllowedTransitions[i] = string(s)
	}
	return resp
}

// ToOrderResponses converts orders loaded with their totals
func ToOrderResponses(orders []trade.OrderWithTotals) []OrderResponse {
	responses := make([]OrderResponse, len(orders))
	for i, o := range orders {
		responses[i] = ToOrderResponse(o.Order, o.Totals)
	}
	return responses
}

// TransitionResponse is the audit record of a status change
type TransitionResponse struct {
	FromStatus        string      `json:"from_status"`
	ToStatus          string      `json:"to_status"`
	FromPaymentStatus string      `json:"from_payment_status"`
	ToPaymentStatus   string      `json:"to_payment_status"`
	Actor             trade.Actor `json:"actor"`
	Note              string      `json:"note,omitempty"`
	Reason            string      `json:"reason,omitempty"`
	At                time.Time   `json:"at"`
}

// ToTransitionResponse converts a domain transition, nil stays nil
func ToTransitionResponse(tr *trade.StatusTransition) *TransitionResponse {
	if tr == nil {
		return nil
	}
	return &TransitionResponse{
		FromStatus:        string(tr.From.Status),
		ToStatus:          string(tr.To.Status),
		FromPaymentStatus: string(tr.From.Payment),
		ToPaymentStatus:   string(tr.To.Payment),
		Actor:             tr.Actor,
		Note:              tr.Note,
		Reason:            tr.Reason,
		At:                tr.At,
	}
}

// TransitionResult is the outcome of UpdateStatus. Events lists the event
// types written to the outbox.
type TransitionResult struct {
	Order      OrderResponse       `json:"order"`
	Transition *TransitionResponse `json:"transition"`
	Events     []string            `json:"events"`
}

// ==================== Cancellation DTOs ====================

// RequestCancellationRequest opens a cancellation request
type RequestCancellationRequest struct {
	Reason string `json:"reason" binding:"required,min=5,max=1000"`
}

// ApproveCancellationRequest is the admin's approval decision.
// RefundAmount defaults to the amount paid when InitiateRefund is set.
type ApproveCancellationRequest struct {
	AdminID         uuid.UUID        `json:"-"`
	Notes           string           `json:"notes" binding:"max=1000"`
	InitiateRefund  bool             `json:"initiate_refund"`
	RefundAmount    *decimal.Decimal `json:"refund_amount"`
	RestoreStock    bool             `json:"restore_stock"`
	ExpectedVersion *int             `json:"expected_version"`
}

// RejectCancellationRequest is the admin's rejection
type RejectCancellationRequest struct {
	AdminID uuid.UUID `json:"-"`
	Notes   string    `json:"notes" binding:"required,min=10,max=1000"`
}

// CancellationResponse is a cancellation request with its side-effect state
type CancellationResponse struct {
	ID                  uuid.UUID       `json:"id"`
	OrderID             uuid.UUID       `json:"order_id"`
	OrderNumber         string          `json:"order_number"`
	RequestedBy         uuid.UUID       `json:"requested_by"`
	RequesterRole       string          `json:"requester_role"`
	Status              string          `json:"status"`
	Reason              string          `json:"reason"`
	AdminNotes          string          `json:"admin_notes,omitempty"`
	ReviewedBy          *uuid.UUID      `json:"reviewed_by,omitempty"`
	ReviewedAt          *time.Time      `json:"reviewed_at,omitempty"`
	RefundInitiated     bool            `json:"refund_initiated"`
	RefundAmount        decimal.Decimal `json:"refund_amount"`
	RefundStatus        string          `json:"refund_status,omitempty"`
	RefundTransactionID string          `json:"refund_transaction_id,omitempty"`
	RefundAttempts      int             `json:"refund_attempts"`
	RefundError         string          `json:"refund_error,omitempty"`
	RefundedAt          *time.Time      `json:"refunded_at,omitempty"`
	RestoreStock        bool            `json:"restore_stock"`
	StockRestored       bool            `json:"stock_restored"`
	StockRestoredAt     *time.Time      `json:"stock_restored_at,omitempty"`
	Version             int             `json:"version"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// ToCancellationResponse converts a cancellation request to a response
func ToCancellationResponse(r *trade.CancellationRequest) CancellationResponse {
	return CancellationResponse{
		ID:                  r.ID,
		OrderID:             r.OrderID,
		OrderNumber:         r.OrderNumber,
		RequestedBy:         r.RequestedBy,
		RequesterRole:       string(r.RequesterRole),
		Status:              string(r.Status),
		Reason:              r.Reason,
		AdminNotes:          r.AdminNotes,
		ReviewedBy:          r.ReviewedBy,
		ReviewedAt:          r.ReviewedAt,
		RefundInitiated:     r.RefundInitiated,
		RefundAmount:        r.RefundAmount,
		RefundStatus:        string(r.RefundStatus),
		RefundTransactionID: r.RefundTransactionID,
		RefundAttempts:      r.RefundAttempts,
		RefundError:         r.RefundError,
		RefundedAt:          r.RefundedAt,
		RestoreStock:        r.RestoreStock,
		StockRestored:       r.StockRestored,
		StockRestoredAt:     r.StockRestoredAt,
		Version:             r.Version,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

// ToCancellationResponses converts cancellation requests to responses
func ToCancellationResponses(requests []*trade.CancellationRequest) []CancellationResponse {
	responses := make([]CancellationResponse, len(requests))
	for i, r := range requests {
		responses[i] = ToCancellationResponse(r)
	}
	return responses
}

// ApprovalResult is the approved request together with the cancelled order
type ApprovalResult struct {
	Cancellation CancellationResponse `json:"cancellation"`
	Order        OrderResponse        `json:"order"`
}

// SideEffectReport summarizes one RetryPending pass
type SideEffectReport struct {
	Scanned  int `json:"scanned"`
	Refunded int `json:"refunded"`
	Restored int `json:"restored"`
	Failed   int `json:"failed"`
}

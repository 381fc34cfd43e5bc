package trade

import (
	"fmt"
	"strings"

	"github.com/invitely/backend/internal/domain/shared"
)

// OrderStatus is the fulfilment status of an order
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusPartiallyPaid  OrderStatus = "partially_paid"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusProcessing     OrderStatus = "processing"
	OrderStatusDesignApproval OrderStatus = "design_approval"
	OrderStatusInProduction   OrderStatus = "in_production"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCompleted      OrderStatus = "completed"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusFailed         OrderStatus = "failed"
	OrderStatusRefunded       OrderStatus = "refunded"
)

var orderStatusLabels = map[OrderStatus]string{
	OrderStatusPendingPayment: "Pending Payment",
	OrderStatusPartiallyPaid:  "Partially Paid",
	OrderStatusPaid:           "Paid",
	OrderStatusProcessing:     "Processing",
	OrderStatusDesignApproval: "Design Approval",
	OrderStatusInProduction:   "In Production",
	OrderStatusShipped:        "Shipped",
	OrderStatusDelivered:      "Delivered",
	OrderStatusCompleted:      "Completed",
	OrderStatusCancelled:      "Cancelled",
	OrderStatusFailed:         "Failed",
	OrderStatusRefunded:       "Refunded",
}

// orderTransitions is the only source of legal status edges
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPendingPayment: {OrderStatusPartiallyPaid, OrderStatusPaid, OrderStatusProcessing, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusPartiallyPaid:  {OrderStatusPaid, OrderStatusProcessing, OrderStatusCancelled, OrderStatusFailed, OrderStatusRefunded},
	OrderStatusPaid:           {OrderStatusProcessing, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusProcessing:     {OrderStatusDesignApproval, OrderStatusInProduction, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusDesignApproval: {OrderStatusInProduction, OrderStatusProcessing, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusInProduction:   {OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusShipped:        {OrderStatusDelivered},
	OrderStatusDelivered:      {OrderStatusCompleted, OrderStatusRefunded},
	OrderStatusFailed:         {OrderStatusPendingPayment, OrderStatusPartiallyPaid, OrderStatusPaid},
	OrderStatusCompleted:      nil,
	OrderStatusCancelled:      nil,
	OrderStatusRefunded:       nil,
}

// ParseOrderStatus accepts both the stored value and the display label
// ("Pending Payment", "pending_payment", "pending payment").
func ParseOrderStatus(s string) (OrderStatus, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, " ", "_")
	status := OrderStatus(norm)
	if !status.IsValid() {
		return "", shared.NewValidationError("INVALID_ORDER_STATUS", "unknown order status %q", s)
	}
	return status, nil
}

// IsValid checks if the status is a valid value
func (s OrderStatus) IsValid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// String returns the string representation of OrderStatus
func (s OrderStatus) String() string {
	return string(s)
}

// Label returns the human-readable status used by the storefront
func (s OrderStatus) Label() string {
	if l, ok := orderStatusLabels[s]; ok {
		return l
	}
	return string(s)
}

// IsTerminal reports whether the order can no longer change status
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled || s == OrderStatusRefunded
}

// CanTransitionTo checks if the status can transition to the target status
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// AllowedTransitions lists the statuses reachable in one step
func (s OrderStatus) AllowedTransitions() []OrderStatus {
	next := orderTransitions[s]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

// IsCancellable reports whether a customer or admin may still request cancellation
func (s OrderStatus) IsCancellable() bool {
	switch s {
	case OrderStatusPendingPayment, OrderStatusPartiallyPaid, OrderStatusPaid,
		OrderStatusProcessing, OrderStatusDesignApproval, OrderStatusInProduction:
		return true
	}
	return false
}

// IsFulfilment reports whether the order has entered production or shipping
func (s OrderStatus) IsFulfilment() bool {
	switch s {
	case OrderStatusProcessing, OrderStatusDesignApproval, OrderStatusInProduction,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCompleted:
		return true
	}
	return false
}

// PaidOrLaterStatuses are the order statuses that are only reached after
// money was received
func PaidOrLaterStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPaid, OrderStatusProcessing, OrderStatusDesignApproval,
		OrderStatusInProduction, OrderStatusShipped, OrderStatusDelivered, OrderStatusCompleted,
	}
}

// PaymentStatus is the payment axis of an order. It is never set on its own:
// every change goes through OrderState so the two axes stay consistent.
type PaymentStatus string

const (
	PaymentStatusPending       PaymentStatus = "pending"
	PaymentStatusPaid          PaymentStatus = "paid"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
	PaymentStatusFailed        PaymentStatus = "failed"
	PaymentStatusCancelled     PaymentStatus = "cancelled"
	PaymentStatusRefunded      PaymentStatus = "refunded"
)

// IsValid checks if the payment status is a valid value
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusPartiallyPaid,
		PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusRefunded:
		return true
	}
	return false
}

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// HasReceivedMoney reports whether at least part of the order was paid
func (s PaymentStatus) HasReceivedMoney() bool {
	return s == PaymentStatusPaid || s == PaymentStatusPartiallyPaid
}

// compatiblePayment maps each order status to the payment statuses it may be
// paired with. The first entry is the default when a transition does not
// name a payment status.
var compatiblePayment = map[OrderStatus][]PaymentStatus{
	OrderStatusPendingPayment: {PaymentStatusPending, PaymentStatusFailed},
	OrderStatusPartiallyPaid:  {PaymentStatusPartiallyPaid},
	OrderStatusPaid:           {PaymentStatusPaid},
	OrderStatusProcessing:     {PaymentStatusPaid, PaymentStatusPartiallyPaid},
	OrderStatusDesignApproval: {PaymentStatusPaid, PaymentStatusPartiallyPaid},
	OrderStatusInProduction:   {PaymentStatusPaid, PaymentStatusPartiallyPaid},
	OrderStatusShipped:        {PaymentStatusPaid, PaymentStatusPartiallyPaid},
	OrderStatusDelivered:      {PaymentStatusPaid, PaymentStatusPartiallyPaid},
	OrderStatusCompleted:      {PaymentStatusPaid, PaymentStatusPartiallyPaid},
	OrderStatusFailed:         {PaymentStatusFailed},
	OrderStatusCancelled:      {PaymentStatusCancelled, PaymentStatusRefunded},
	OrderStatusRefunded:       {PaymentStatusRefunded},
}

// ImpliedPaymentStatuses returns the payment statuses consistent with s
func ImpliedPaymentStatuses(s OrderStatus) []PaymentStatus {
	allowed := compatiblePayment[s]
	out := make([]PaymentStatus, len(allowed))
	copy(out, allowed)
	return out
}

// OrderState is the composite status of an order. Both axes are validated
// together; there is no way to change one without the other being checked.
type OrderState struct {
	Status  OrderStatus   `json:"status"`
	Payment PaymentStatus `json:"payment_status"`
}

// InitialOrderState is the state of a freshly placed order
func InitialOrderState() OrderState {
	return OrderState{Status: OrderStatusPendingPayment, Payment: PaymentStatusPending}
}

// String renders the state as "status/payment"
func (s OrderState) String() string {
	return fmt.Sprintf("%s/%s", s.Status, s.Payment)
}

// IsConsistent reports whether the payment axis is allowed for the order status
func (s OrderState) IsConsistent() bool {
	for _, p := range compatiblePayment[s.Status] {
		if p == s.Payment {
			return true
		}
	}
	return false
}

// Validate checks both enums and the mapping between them
func (s OrderState) Validate() error {
	if !s.Status.IsValid() {
		return shared.NewValidationError("INVALID_ORDER_STATUS", "unknown order status %q", s.Status)
	}
	if !s.Payment.IsValid() {
		return shared.NewValidationError("INVALID_PAYMENT_STATUS", "unknown payment status %q", s.Payment)
	}
	if !s.IsConsistent() {
		return shared.NewConsistencyError("INCONSISTENT_ORDER_STATE",
			"payment status %s is not allowed for order status %s", s.Payment, s.Status)
	}
	return nil
}

// Next computes the state after moving to target. When payment is nil the
// current payment status is kept if it is compatible, otherwise the default
// for target is used. The receiver is never modified.
func (s OrderState) Next(target OrderStatus, payment *PaymentStatus) (OrderState, error) {
	if !target.IsValid() {
		return s, shared.NewValidationError("INVALID_ORDER_STATUS", "unknown order status %q", target)
	}
	if payment != nil && !payment.IsValid() {
		return s, shared.NewValidationError("INVALID_PAYMENT_STATUS", "unknown payment status %q", *payment)
	}
	if s.Status.IsTerminal() {
		return s, shared.NewStateError("ORDER_TERMINAL",
			"order is %s and can no longer change status", s.Status.Label())
	}
	if target != s.Status && !s.Status.CanTransitionTo(target) {
		return s, shared.NewStateError("INVALID_TRANSITION",
			"cannot move order from %s to %s", s.Status.Label(), target.Label())
	}

	next := OrderState{Status: target}
	switch {
	case payment != nil:
		next.Payment = *payment
	default:
		next.Payment = s.Payment
		if !next.IsConsistent() {
			next.Payment = compatiblePayment[target][0]
		}
	}

	if !next.IsConsistent() {
		return s, shared.NewStateError("INCONSISTENT_ORDER_STATE",
			"payment status %s is not allowed for order status %s", next.Payment, next.Status)
	}
	if next == s {
		return s, shared.NewStateError("NO_STATUS_CHANGE", "order is already %s", s)
	}
	return next, nil
}

package trade

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/invitely/backend/internal/domain/finance"
	"github.com/invitely/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// OrderItem is a product line. Items are immutable once the order exists.
type OrderItem struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	ProductID   uuid.UUID
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
	SubTotal    decimal.Decimal
	CreatedAt   time.Time
}

// NewOrderItem creates a validated order line
func NewOrderItem(productID uuid.UUID, productName string, quantity int, unitPrice decimal.Decimal) (OrderItem, error) {
	if productID == uuid.Nil {
		return OrderItem{}, shared.NewValidationError("INVALID_PRODUCT", "product id is required")
	}
	if quantity <= 0 {
		return OrderItem{}, shared.NewValidationError("INVALID_QUANTITY", "quantity must be positive")
	}
	if unitPrice.IsNegative() {
		return OrderItem{}, shared.NewValidationError("INVALID_PRICE", "unit price cannot be negative")
	}
	return OrderItem{
		ID:          uuid.New(),
		ProductID:   productID,
		ProductName: strings.TrimSpace(productName),
		Quantity:    quantity,
		UnitPrice:   unitPrice,
		SubTotal:    unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
		CreatedAt:   time.Now(),
	}, nil
}

// InvitationKind separates printed and digital invitations
type InvitationKind string

const (
	InvitationPhysical InvitationKind = "physical"
	InvitationDigital  InvitationKind = "digital"
)

// InvitationDetail is the customization payload captured at checkout
// (couple names, event date, venue, template choices). The core keeps it opaque.
type InvitationDetail struct {
	Kind    InvitationKind
	Payload json.RawMessage
}

// Order is the order aggregate root
type Order struct {
	shared.BaseAggregateRoot
	OrderNumber    string
	CustomerID     uuid.UUID
	Items          []OrderItem
	SubtotalAmount decimal.Decimal
	DiscountAmount decimal.Decimal
	ShippingCost   decimal.Decimal
	TotalAmount    decimal.Decimal
	PromoCode      string
	State          OrderState
	PaymentOption  *finance.PaymentPlan
	Invitation     *InvitationDetail
	Notes          string
	PaidAt         *time.Time
	ProcessingAt   *time.Time
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
	CompletedAt    *time.Time
	CancelledAt    *time.Time
	CancelReason   string
}

// NewOrderInput carries everything checkout knows when placing an order
type NewOrderInput struct {
	OrderNumber    string
	CustomerID     uuid.UUID
	Items          []OrderItem
	ShippingCost   decimal.Decimal
	DiscountAmount decimal.Decimal
	PromoCode      string
	PaymentOption  *finance.PaymentPlan
	Invitation     *InvitationDetail
	Notes          string
}

// NewOrder places an order. The total is fixed here and never recomputed.
func NewOrder(in NewOrderInput) (*Order, error) {
	in.OrderNumber = strings.TrimSpace(in.OrderNumber)
	if in.OrderNumber == "" {
		return nil, shared.NewValidationError("INVALID_ORDER_NUMBER", "order number is required")
	}
	if len(in.OrderNumber) > 50 {
		return nil, shared.NewValidationError("INVALID_ORDER_NUMBER", "order number cannot exceed 50 characters")
	}
	if in.CustomerID == uuid.Nil {
		return nil, shared.NewValidationError("INVALID_CUSTOMER", "customer id is required")
	}
	if len(in.Items) == 0 {
		return nil, shared.NewValidationError("EMPTY_ORDER", "order must have at least one item")
	}
	if in.ShippingCost.IsNegative() {
		return nil, shared.NewValidationError("INVALID_SHIPPING_COST", "shipping cost cannot be negative")
	}
	if in.DiscountAmount.IsNegative() {
		return nil, shared.NewValidationError("INVALID_DISCOUNT", "discount cannot be negative")
	}
	if in.PaymentOption != nil && !in.PaymentOption.IsValid() {
		return nil, shared.NewValidationError("INVALID_PAYMENT_OPTION", "unknown payment option %q", *in.PaymentOption)
	}
	if in.Invitation != nil && in.Invitation.Kind != InvitationPhysical && in.Invitation.Kind != InvitationDigital {
		return nil, shared.NewValidationError("INVALID_INVITATION", "unknown invitation kind %q", in.Invitation.Kind)
	}

	order := &Order{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		OrderNumber:       in.OrderNumber,
		CustomerID:        in.CustomerID,
		ShippingCost:      in.ShippingCost,
		DiscountAmount:    in.DiscountAmount,
		PromoCode:         strings.TrimSpace(in.PromoCode),
		State:             InitialOrderState(),
		PaymentOption:     in.PaymentOption,
		Invitation:        in.Invitation,
		Notes:             in.Notes,
	}

	subtotal := decimal.Zero
	order.Items = make([]OrderItem, len(in.Items))
	for i, item := range in.Items {
		if item.Quantity <= 0 || item.UnitPrice.IsNegative() {
			return nil, shared.NewValidationError("INVALID_ITEM", "item %d has invalid quantity or price", i+1)
		}
		item.OrderID = order.ID
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		item.SubTotal = item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
		subtotal = subtotal.Add(item.SubTotal)
		order.Items[i] = item
	}

	order.SubtotalAmount = subtotal
	order.TotalAmount = subtotal.Add(in.ShippingCost).Sub(in.DiscountAmount)
	if order.TotalAmount.IsNegative() {
		return nil, shared.NewValidationError("INVALID_DISCOUNT", "discount %s exceeds order value %s",
			in.DiscountAmount.String(), subtotal.Add(in.ShippingCost).String())
	}

	order.AddDomainEvent(NewOrderPlacedEvent(order))
	return order, nil
}

// FormatOrderNumber renders the human-readable order number
func FormatOrderNumber(at time.Time, seq int64) string {
	return fmt.Sprintf("INV-%s-%05d", at.Format("20060102"), seq)
}

// Status returns the order status axis
func (o *Order) Status() OrderStatus {
	return o.State.Status
}

// PaymentStatus returns the payment axis
func (o *Order) PaymentStatus() PaymentStatus {
	return o.State.Payment
}

// TransitionCommand describes an audited status change
type TransitionCommand struct {
	Actor Actor
	Note  string
	// PaymentStatus optionally moves the payment axis in the same step
	PaymentStatus *PaymentStatus
}

// StatusTransition is the audit record of one state change
type StatusTransition struct {
	OrderID     uuid.UUID  `json:"order_id"`
	OrderNumber string     `json:"order_number"`
	From        OrderState `json:"from"`
	To          OrderState `json:"to"`
	Actor       Actor      `json:"actor"`
	Note        string     `json:"note,omitempty"`
	At          time.Time  `json:"at"`
	Reason      string     `json:"reason,omitempty"`
}

// StatusChanged reports whether the order status axis moved
func (t *StatusTransition) StatusChanged() bool {
	return t.From.Status != t.To.Status
}

// TransitionTo is the only way to change an order's status.
// It validates the edge and the payment mapping, stamps timestamps and
// records an OrderStatusChangedEvent. On error the order is untouched.
func (o *Order) TransitionTo(target OrderStatus, cmd TransitionCommand) (*StatusTransition, error) {
	next, err := o.State.Next(target, cmd.PaymentStatus)
	if err != nil {
		return nil, err
	}
	return o.apply(next, cmd.Actor, cmd.Note), nil
}

func (o *Order) apply(next OrderState, actor Actor, note string) *StatusTransition {
	now := time.Now()
	tr := &StatusTransition{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		From:        o.State,
		To:          next,
		Actor:       actor,
		Note:        strings.TrimSpace(note),
		At:          now,
	}

	o.State = next
	o.stamp(next, now)
	o.UpdatedAt = now
	o.AddDomainEvent(NewOrderStatusChangedEvent(o, tr))
	return tr
}

func (o *Order) stamp(next OrderState, now time.Time) {
	if next.Payment == PaymentStatusPaid && o.PaidAt == nil {
		o.PaidAt = &now
	}
	switch next.Status {
	case OrderStatusProcessing:
		if o.ProcessingAt == nil {
			o.ProcessingAt = &now
		}
	case OrderStatusShipped:
		o.ShippedAt = &now
	case OrderStatusDelivered:
		o.DeliveredAt = &now
	case OrderStatusCompleted:
		o.CompletedAt = &now
	case OrderStatusCancelled:
		o.CancelledAt = &now
	}
}

// ApplyPaymentTotals moves the order along the payment axis based on the
// ledger aggregate. It returns a nil transition when nothing changes. The
// balance is always returned so callers can flag overpayment.
func (o *Order) ApplyPaymentTotals(totals finance.PaymentTotals, actor Actor) (*StatusTransition, finance.Balance, error) {
	balance := finance.ComputeBalance(o.TotalAmount, totals.AmountPaid)
	if totals.OrderID != uuid.Nil && totals.OrderID != o.ID {
		return nil, balance, shared.NewConsistencyError("TOTALS_ORDER_MISMATCH",
			"totals of order %s applied to order %s", totals.OrderID, o.ID)
	}

	paid := PaymentStatusPending
	switch {
	case totals.AmountPaid.IsPositive() && balance.IsSettled():
		paid = PaymentStatusPaid
	case totals.AmountPaid.IsPositive():
		paid = PaymentStatusPartiallyPaid
	case totals.HasPayments() && totals.AmountPending.IsZero():
		paid = PaymentStatusFailed
	}

	current := o.State
	var target OrderStatus
	switch current.Status {
	case OrderStatusPendingPayment, OrderStatusPartiallyPaid, OrderStatusFailed:
		switch paid {
		case PaymentStatusPaid:
			target = OrderStatusPaid
		case PaymentStatusPartiallyPaid:
			target = OrderStatusPartiallyPaid
		case PaymentStatusFailed:
			target = OrderStatusFailed
		default:
			// A new attempt on a failed order puts it back to awaiting payment.
			if current.Status != OrderStatusFailed {
				return nil, balance, nil
			}
			target = OrderStatusPendingPayment
		}
	case OrderStatusPaid:
		return nil, balance, nil
	default:
		// Fulfilment statuses only track the final instalment arriving.
		if current.Status.IsFulfilment() && current.Payment == PaymentStatusPartiallyPaid && paid == PaymentStatusPaid {
			target = current.Status
			break
		}
		return nil, balance, nil
	}

	if target == current.Status && paid == current.Payment {
		return nil, balance, nil
	}
	if target == OrderStatusFailed && current.Status == OrderStatusPartiallyPaid {
		return nil, balance, nil
	}

	next, err := current.Next(target, &paid)
	if err != nil {
		return nil, balance, err
	}
	tr := o.apply(next, actor, "payment received")
	tr.Reason = "payment_ledger"
	return tr, balance, nil
}

// Cancel moves the order to cancelled as the outcome of an approved
// cancellation request.
func (o *Order) Cancel(reason string, actor Actor) (*StatusTransition, error) {
	if !o.State.Status.IsCancellable() {
		return nil, shared.NewStateError("ORDER_NOT_CANCELLABLE",
			"order in %s status cannot be cancelled", o.State.Status.Label())
	}
	payment := PaymentStatusCancelled
	tr, err := o.TransitionTo(OrderStatusCancelled, TransitionCommand{
		Actor:         actor,
		Note:          reason,
		PaymentStatus: &payment,
	})
	if err != nil {
		return nil, err
	}
	o.CancelReason = strings.TrimSpace(reason)
	return tr, nil
}

// MarkRefunded records that money for a cancelled order has been returned.
// The order status stays cancelled; only the payment axis moves.
func (o *Order) MarkRefunded(actor Actor) (*StatusTransition, error) {
	if o.State.Status != OrderStatusCancelled {
		return nil, shared.NewStateError("ORDER_NOT_CANCELLED",
			"refund can only be recorded on a cancelled order, order is %s", o.State.Status.Label())
	}
	if o.State.Payment == PaymentStatusRefunded {
		return nil, nil
	}
	next := OrderState{Status: OrderStatusCancelled, Payment: PaymentStatusRefunded}
	tr := o.apply(next, actor, "refund completed")
	tr.Reason = "refund"
	return tr, nil
}

// AssignPaymentOption sets the payment plan when it is still unknown.
// It returns false if the same plan was already set and an error if a
// different plan was already recorded.
func (o *Order) AssignPaymentOption(plan finance.PaymentPlan) (bool, error) {
	if !plan.IsValid() {
		return false, shared.NewValidationError("INVALID_PAYMENT_OPTION", "unknown payment option %q", plan)
	}
	if o.PaymentOption != nil {
		if *o.PaymentOption == plan {
			return false, nil
		}
		return false, shared.NewStateError("PAYMENT_OPTION_ALREADY_SET",
			"order %s already has payment option %s", o.OrderNumber, *o.PaymentOption)
	}
	o.PaymentOption = &plan
	o.UpdatedAt = time.Now()
	return true, nil
}

// ItemsSubtotal sums item subtotals
func (o *Order) ItemsSubtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, item := range o.Items {
		sum = sum.Add(item.SubTotal)
	}
	return sum
}

// VerifyTotals checks the creation-time total invariant
func (o *Order) VerifyTotals() error {
	expected := o.ItemsSubtotal().Add(o.ShippingCost).Sub(o.DiscountAmount)
	if !expected.Equal(o.TotalAmount) {
		return shared.NewConsistencyError("ORDER_TOTAL_MISMATCH",
			"order %s total %s does not match items+shipping-discount %s",
			o.OrderNumber, o.TotalAmount.String(), expected.String())
	}
	return nil
}

// Balance derives the financial position from ledger totals
func (o *Order) Balance(totals finance.PaymentTotals) finance.Balance {
	return finance.ComputeBalance(o.TotalAmount, totals.AmountPaid)
}

// IsTerminal reports whether the order can no longer change status
func (o *Order) IsTerminal() bool {
	return o.State.Status.IsTerminal()
}

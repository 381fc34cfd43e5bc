package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/invitely/backend/internal/domain/finance"
	"github.com/invitely/backend/internal/domain/trade"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// OrderModel is the persistence model for the Order aggregate root.
// Status and PaymentStatus are only written by the locked save path.
type OrderModel struct {
	AggregateModel
	OrderNumber       string              `gorm:"type:varchar(50);not null;uniqueIndex"`
	CustomerID        uuid.UUID           `gorm:"type:uuid;not null;index"`
	Items             []OrderItemModel    `gorm:"foreignKey:OrderID;references:ID"`
	SubtotalAmount    decimal.Decimal     `gorm:"type:decimal(18,2);not null"`
	DiscountAmount    decimal.Decimal     `gorm:"type:decimal(18,2);not null"`
	ShippingCost      decimal.Decimal     `gorm:"type:decimal(18,2);not null"`
	TotalAmount       decimal.Decimal     `gorm:"type:decimal(18,2);not null"`
	PromoCode         string              `gorm:"type:varchar(50)"`
	Status            trade.OrderStatus   `gorm:"type:varchar(30);not null;index"`
	PaymentStatus     trade.PaymentStatus `gorm:"type:varchar(30);not null;index"`
	PaymentOption     *string             `gorm:"type:varchar(10)"`
	InvitationKind    string              `gorm:"type:varchar(20)"`
	InvitationDetails datatypes.JSON
	Notes             string `gorm:"type:text"`
	PaidAt            *time.Time
	ProcessingAt      *time.Time
	ShippedAt         *time.Time
	DeliveredAt       *time.Time
	CompletedAt       *time.Time
	CancelledAt       *time.Time
	CancelReason      string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (OrderModel) TableName() string {
	return "orders"
}

// ToDomain converts the persistence model to a domain Order
func (m *OrderModel) ToDomain() *trade.Order {
	order := &trade.Order{
		BaseAggregateRoot: m.ToAggregateRoot(),
		OrderNumber:       m.OrderNumber,
		CustomerID:        m.CustomerID,
		SubtotalAmount:    m.SubtotalAmount,
		DiscountAmount:    m.DiscountAmount,
		ShippingCost:      m.ShippingCost,
		TotalAmount:       m.TotalAmount,
		PromoCode:         m.PromoCode,
		State:             trade.OrderState{Status: m.Status, Payment: m.PaymentStatus},
		Notes:             m.Notes,
		PaidAt:            m.PaidAt,
		ProcessingAt:      m.ProcessingAt,
		ShippedAt:         m.ShippedAt,
		DeliveredAt:       m.DeliveredAt,
		CompletedAt:       m.CompletedAt,
		CancelledAt:       m.CancelledAt,
		CancelReason:      m.CancelReason,
	}
	if m.PaymentOption != nil && *m.PaymentOption != "" {
		plan := finance.PaymentPlan(*m.PaymentOption)
		order.PaymentOption = &plan
	}
	if m.InvitationKind != "" {
		order.Invitation = &trade.InvitationDetail{
			Kind:    trade.InvitationKind(m.InvitationKind),
			Payload: json.RawMessage(m.InvitationDetails),
		}
	}

	order.Items = make([]trade.OrderItem, len(m.Items))
	for i := range m.Items {
		order.Items[i] = m.Items[i].ToDomain()
	}
	return order
}

// FromDomain populates the persistence model from a domain Order
func (m *OrderModel) FromDomain(o *trade.Order) {
	m.FromDomainAggregateRoot(o.BaseAggregateRoot)
	m.OrderNumber = o.OrderNumber
	m.CustomerID = o.CustomerID
	m.SubtotalAmount = o.SubtotalAmount
	m.DiscountAmount = o.DiscountAmount
	m.ShippingCost = o.ShippingCost
	m.TotalAmount = o.TotalAmount
	m.PromoCode = o.PromoCode
	m.Status = o.State.Status
	m.PaymentStatus = o.State.Payment
	m.PaymentOption = nil
	if o.PaymentOption != nil {
		option := o.PaymentOption.String()
		m.PaymentOption = &option
	}
	m.InvitationKind = ""
	m.InvitationDetails = nil
	if o.Invitation != nil {
		m.InvitationKind = string(o.Invitation.Kind)
		m.InvitationDetails = datatypes.JSON(o.Invitation.Payload)
	}
	m.Notes = o.Notes
	m.PaidAt = o.PaidAt
	m.ProcessingAt = o.ProcessingAt
	m.ShippedAt = o.ShippedAt
	m.DeliveredAt = o.DeliveredAt
	m.CompletedAt = o.CompletedAt
	m.CancelledAt = o.CancelledAt
	m.CancelReason = o.CancelReason

	m.Items = make([]OrderItemModel, len(o.Items))
	for i := range o.Items {
		m.Items[i].FromDomain(&o.Items[i])
		m.Items[i].OrderID = o.ID
	}
}

// StateColumns are the columns the locked save path writes. Items and money
// fields are fixed at creation and never rewritten.
func (m *OrderModel) StateColumns() map[string]any {
	return map[string]any{
		"status":         m.Status,
		"payment_status": m.PaymentStatus,
		"payment_option": m.PaymentOption,
		"paid_at":        m.PaidAt,
		"processing_at":  m.ProcessingAt,
		"shipped_at":     m.ShippedAt,
		"delivered_at":   m.DeliveredAt,
		"completed_at":   m.CompletedAt,
		"cancelled_at":   m.CancelledAt,
		"cancel_reason":  m.CancelReason,
		"notes":          m.Notes,
		"updated_at":     m.UpdatedAt,
	}
}

// OrderModelFromDomain creates a new persistence model from a domain Order
func OrderModelFromDomain(o *trade.Order) *OrderModel {
	m := &OrderModel{}
	m.FromDomain(o)
	return m
}

// OrderItemModel is one product line of an order
type OrderItemModel struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	OrderID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	ProductID   uuid.UUID       `gorm:"type:uuid;not null"`
	ProductName string          `gorm:"type:varchar(200);not null"`
	Quantity    int             `gorm:"not null"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Subtotal    decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	CreatedAt   time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OrderItemModel) TableName() string {
	return "order_items"
}

// ToDomain converts the persistence model to a domain OrderItem
func (m *OrderItemModel) ToDomain() trade.OrderItem {
	return trade.OrderItem{
		ID:          m.ID,
		OrderID:     m.OrderID,
		ProductID:   m.ProductID,
		ProductName: m.ProductName,
		Quantity:    m.Quantity,
		UnitPrice:   m.UnitPrice,
		SubTotal:    m.Subtotal,
		CreatedAt:   m.CreatedAt,
	}
}

// FromDomain populates the persistence model from a domain OrderItem
func (m *OrderItemModel) FromDomain(item *trade.OrderItem) {
	m.ID = item.ID
	m.OrderID = item.OrderID
	m.ProductID = item.ProductID
	m.ProductName = item.ProductName
	m.Quantity = item.Quantity
	m.UnitPrice = item.UnitPrice
	m.Subtotal = item.SubTotal
	m.CreatedAt = item.CreatedAt
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
}

package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/invitely/backend/internal/domain/finance"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// PaymentModel is one row of the payment ledger. transaction_id is unique so
// a redelivered webhook can only ever touch its own row.
type PaymentModel struct {
	BaseModel
	OrderID       uuid.UUID             `gorm:"type:uuid;not null;index"`
	TransactionID string                `gorm:"type:varchar(100);not null;uniqueIndex"`
	Amount        decimal.Decimal       `gorm:"type:decimal(18,2);not null"`
	PaymentType   finance.PaymentPlan   `gorm:"type:varchar(10);not null"`
	Status        finance.PaymentStatus `gorm:"type:varchar(20);not null;index"`
	RawResponse   datatypes.JSON
	PaidAt        *time.Time
	Backfilled    bool `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment
func (m *PaymentModel) ToDomain() *finance.Payment {
	p := &finance.Payment{
		BaseEntity:    m.BaseModel.ToDomain(),
		OrderID:       m.OrderID,
		TransactionID: m.TransactionID,
		Amount:        m.Amount,
		Type:          m.PaymentType,
		Status:        m.Status,
		PaidAt:        m.PaidAt,
		Backfilled:    m.Backfilled,
	}
	if len(m.RawResponse) > 0 {
		p.RawResponse = json.RawMessage(m.RawResponse)
	}
	return p
}

// FromDomain populates the persistence model from a domain Payment
func (m *PaymentModel) FromDomain(p *finance.Payment) {
	m.FromDomainBaseEntity(p.BaseEntity)
	m.OrderID = p.OrderID
	m.TransactionID = p.TransactionID
	m.Amount = p.Amount
	m.PaymentType = p.Type
	m.Status = p.Status
	m.RawResponse = nil
	if len(p.RawResponse) > 0 {
		m.RawResponse = datatypes.JSON(p.RawResponse)
	}
	m.PaidAt = p.PaidAt
	m.Backfilled = p.Backfilled
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment
func PaymentModelFromDomain(p *finance.Payment) *PaymentModel {
	m := &PaymentModel{}
	m.FromDomain(p)
	return m
}

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductModel is the sellable invitation product. Only the stock column is
// written by this service; the catalog owns everything else.
type ProductModel struct {
	BaseModel
	SKU   string          `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name  string          `gorm:"type:varchar(200);not null"`
	Price decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Stock int             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// StockRestorationModel records that a cancellation returned a product's
// quantity to stock. The composite key makes the restore idempotent.
type StockRestorationModel struct {
	CancellationID uuid.UUID `gorm:"type:uuid;primaryKey"`
	ProductID      uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrderID        uuid.UUID `gorm:"type:uuid;not null;index"`
	Quantity       int       `gorm:"not null"`
	RestoredAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (StockRestorationModel) TableName() string {
	return "stock_restorations"
}

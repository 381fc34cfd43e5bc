package persistence

import (
	"context"
	"time"

	"github.com/invitely/backend/internal/domain/shared"
	"github.com/invitely/backend/internal/domain/trade"
	"github.com/invitely/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStockRestorer puts cancelled quantities back into product stock.
// Each (cancellation, product) pair is recorded in stock_restorations and
// the stock is only incremented when that record is new.
type GormStockRestorer struct {
	db *gorm.DB
}

// NewGormStockRestorer creates a new GormStockRestorer
func NewGormStockRestorer(db *gorm.DB) *GormStockRestorer {
	return &GormStockRestorer{db: db}
}

// RestoreStock implements trade.StockRestorer
func (r *GormStockRestorer) RestoreStock(ctx context.Context, restoration trade.StockRestoration) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		for _, line := range restoration.Lines {
			if line.Quantity <= 0 {
				continue
			}

			marker := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.StockRestorationModel{
				CancellationID: restoration.CancellationID,
				ProductID:      line.ProductID,
				OrderID:        restoration.OrderID,
				Quantity:       line.Quantity,
				RestoredAt:     now,
			})
			if marker.Error != nil {
				return marker.Error
			}
			if marker.RowsAffected == 0 {
				continue
			}

			result := tx.Model(&models.ProductModel{}).
				Where("id = ?", line.ProductID).
				Updates(map[string]any{
					"stock":      gorm.Expr("stock + ?", line.Quantity),
					"updated_at": now,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return shared.NewExternalError("PRODUCT_NOT_FOUND",
					"cannot restore stock of unknown product %s", line.ProductID)
			}
		}
		return nil
	})
}

var _ trade.StockRestorer = (*GormStockRestorer)(nil)

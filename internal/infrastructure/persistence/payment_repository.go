package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/invitely/backend/internal/domain/finance"
	"github.com/invitely/backend/internal/domain/shared"
	"github.com/invitely/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormPaymentRepository implements finance.PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *GormPaymentRepository) WithTx(tx *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: tx}
}

// Upsert inserts p, or merges it into the existing row with the same
// transaction id. The existing row is read FOR UPDATE so two deliveries of
// the same notification serialize on it.
func (r *GormPaymentRepository) Upsert(ctx context.Context, p *finance.Payment) (*finance.Payment, bool, error) {
	var (
		stored   *finance.Payment
		inserted bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := lockByTransactionID(tx, p.TransactionID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ok, insertErr := insertIfAbsent(tx, p)
			if insertErr != nil {
				return insertErr
			}
			if ok {
				stored, inserted = p, true
				return nil
			}
			// A concurrent delivery inserted first; merge into its row.
			existing, err = lockByTransactionID(tx, p.TransactionID)
		}
		if err != nil {
			return err
		}

		current := existing.ToDomain()
		changed, err := current.ApplyUpdate(p)
		if err != nil {
			return err
		}
		if changed {
			if err := tx.Model(&models.PaymentModel{}).
				Where("id = ?", current.ID).
				Updates(map[string]any{
					"amount":       current.Amount,
					"status":       current.Status,
					"raw_response": datatypes.JSON(current.RawResponse),
					"paid_at":      current.PaidAt,
					"updated_at":   current.UpdatedAt,
				}).Error; err != nil {
				return err
			}
		}
		stored = current
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, inserted, nil
}

func lockByTransactionID(tx *gorm.DB, transactionID string) (*models.PaymentModel, error) {
	var m models.PaymentModel
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("transaction_id = ?", transactionID).
		Take(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func insertIfAbsent(tx *gorm.DB, p *finance.Payment) (bool, error) {
	result := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "transaction_id"}},
		DoNothing: true,
	}).Create(models.PaymentModelFromDomain(p))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// InsertIfAbsent inserts p unless a row with its transaction id exists
func (r *GormPaymentRepository) InsertIfAbsent(ctx context.Context, p *finance.Payment) (bool, error) {
	return insertIfAbsent(r.db.WithContext(ctx), p)
}

// FindByTransactionID finds a ledger row by gateway transaction id
func (r *GormPaymentRepository) FindByTransactionID(ctx context.Context, transactionID string) (*finance.Payment, error) {
	var m models.PaymentModel
	if err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&m).Error; err != nil {
		return nil, notFound(err, shared.ErrNotFound)
	}
	return m.ToDomain(), nil
}

// FindByOrder lists all ledger rows of an order, oldest first
func (r *GormPaymentRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]*finance.Payment, error) {
	var rows []models.PaymentModel
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	payments := make([]*finance.Payment, len(rows))
	for i := range rows {
		payments[i] = rows[i].ToDomain()
	}
	return payments, nil
}

// FindEarliestByOrder returns the first ledger row of an order
func (r *GormPaymentRepository) FindEarliestByOrder(ctx context.Context, orderID uuid.UUID) (*finance.Payment, error) {
	var m models.PaymentModel
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC, id ASC").
		Take(&m).Error; err != nil {
		return nil, notFound(err, shared.ErrNotFound)
	}
	return m.ToDomain(), nil
}

// SumPaid returns the ledger aggregate of one order
func (r *GormPaymentRepository) SumPaid(ctx context.Context, orderID uuid.UUID) (finance.PaymentTotals, error) {
	totals, err := aggregatePayments(r.db.WithContext(ctx), []uuid.UUID{orderID})
	if err != nil {
		return finance.PaymentTotals{}, err
	}
	return totals[orderID], nil
}

// SumPaidBulk returns the ledger aggregate of many orders with one grouped query
func (r *GormPaymentRepository) SumPaidBulk(ctx context.Context, orderIDs []uuid.UUID) (map[uuid.UUID]finance.PaymentTotals, error) {
	return aggregatePayments(r.db.WithContext(ctx), orderIDs)
}

// ExistsForOrder reports whether any ledger row exists for the order
func (r *GormPaymentRepository) ExistsForOrder(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.PaymentModel{}).
		Where("order_id = ?", orderID).
		Limit(1).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

type paymentAggregateRow struct {
	OrderID       uuid.UUID
	AmountPaid    decimal.NullDecimal
	AmountPending decimal.NullDecimal
	PaidCount     int
	PaymentCount  int
}

// aggregatePayments sums the ledger per order in one grouped query. Only
// paid rows count toward AmountPaid. Every requested order is present in
// the result, with zero totals when it has no rows.
func aggregatePayments(db *gorm.DB, orderIDs []uuid.UUID) (map[uuid.UUID]finance.PaymentTotals, error) {
	result := make(map[uuid.UUID]finance.PaymentTotals, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}
	for _, id := range orderIDs {
		result[id] = finance.EmptyTotals(id)
	}

	var rows []paymentAggregateRow
	err := db.Model(&models.PaymentModel{}).
		Select(`order_id,
			SUM(CASE WHEN status = ? THEN amount ELSE 0 END) AS amount_paid,
			SUM(CASE WHEN status = ? THEN amount ELSE 0 END) AS amount_pending,
			SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS paid_count,
			COUNT(*) AS payment_count`,
			finance.PaymentStatusPaid, finance.PaymentStatusPending, finance.PaymentStatusPaid).
		Where("order_id IN ?", orderIDs).
		Group("order_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		totals := finance.EmptyTotals(row.OrderID)
		if row.AmountPaid.Valid {
			totals.AmountPaid = row.AmountPaid.Decimal
		}
		if row.AmountPending.Valid {
			totals.AmountPending = row.AmountPending.Decimal
		}
		totals.PaidCount = row.PaidCount
		totals.PaymentCount = row.PaymentCount
		result[row.OrderID] = totals
	}
	return result, nil
}

// MarkRefunded moves the paid rows of an order to refunded. Rows in any other
// status are left alone, so a repeated call moves nothing.
func (r *GormPaymentRepository) MarkRefunded(ctx context.Context, orderID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.PaymentModel{}).
		Where("order_id = ? AND status = ?", orderID, finance.PaymentStatusPaid).
		Updates(map[string]any{
			"status":     finance.PaymentStatusRefunded,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Ensure GormPaymentRepository implements finance.PaymentRepository
var _ finance.PaymentRepository = (*GormPaymentRepository)(nil)

package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/invitely/backend/internal/domain/shared"
	"github.com/invitely/backend/internal/domain/trade"
	"github.com/invitely/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormOrderRepository implements trade.OrderRepository using GORM
type GormOrderRepository struct {
	db          *gorm.DB
	outboxSaver shared.OutboxEventSaver // optional, for transactional outbox pattern
}

// NewGormOrderRepository creates a new GormOrderRepository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// SetOutboxEventSaver sets the outbox event saver for transactional event publishing
func (r *GormOrderRepository) SetOutboxEventSaver(saver shared.OutboxEventSaver) {
	r.outboxSaver = saver
}

// WithTx returns a repository bound to tx that shares the outbox saver
func (r *GormOrderRepository) WithTx(tx *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: tx, outboxSaver: r.outboxSaver}
}

func (r *GormOrderRepository) withItems(db *gorm.DB) *gorm.DB {
	return db.Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("created_at ASC, id ASC")
	})
}

// FindByID finds an order with its items
func (r *GormOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*trade.Order, error) {
	var m models.OrderModel
	if err := r.withItems(r.db.WithContext(ctx)).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err, shared.ErrNotFound)
	}
	return m.ToDomain(), nil
}

// FindByOrderNumber finds an order by its human-readable number
func (r *GormOrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (*trade.Order, error) {
	var m models.OrderModel
	if err := r.withItems(r.db.WithContext(ctx)).Where("order_number = ?", orderNumber).First(&m).Error; err != nil {
		return nil, notFound(err, shared.ErrNotFound)
	}
	return m.ToDomain(), nil
}

// FindWithTotals loads an order and its payment aggregate
func (r *GormOrderRepository) FindWithTotals(ctx context.Context, id uuid.UUID) (*trade.OrderWithTotals, error) {
	order, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	totals, err := aggregatePayments(r.db.WithContext(ctx), []uuid.UUID{id})
	if err != nil {
		return nil, fmt.Errorf("sum payments of order %s: %w", id, err)
	}
	return &trade.OrderWithTotals{Order: order, Totals: totals[id]}, nil
}

// FindAllWithTotals lists a page of orders. Totals for the whole page come
// from one grouped query over payments.
func (r *GormOrderRepository) FindAllWithTotals(ctx context.Context, filter shared.Filter) ([]trade.OrderWithTotals, int64, error) {
	var total int64
	if err := r.applyFilter(r.db.WithContext(ctx).Model(&models.OrderModel{}), filter).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = shared.DefaultFilter().PageSize
	}
	sortField := ValidateSortField(filter.OrderBy, OrderSortFields, "created_at")
	sortOrder := ValidateSortOrder(filter.OrderDir)

	var rows []models.OrderModel
	if err := r.withItems(r.applyFilter(r.db.WithContext(ctx), filter)).
		Order(fmt.Sprintf("%s %s, id ASC", sortField, sortOrder)).
		Offset(filter.Offset()).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 {
		return []trade.OrderWithTotals{}, total, nil
	}

	ids := make([]uuid.UUID, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	totals, err := aggregatePayments(r.db.WithContext(ctx), ids)
	if err != nil {
		return nil, 0, fmt.Errorf("sum payments: %w", err)
	}

	result := make([]trade.OrderWithTotals, len(rows))
	for i := range rows {
		result[i] = trade.OrderWithTotals{Order: rows[i].ToDomain(), Totals: totals[rows[i].ID]}
	}
	return result, total, nil
}

func (r *GormOrderRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if search := strings.TrimSpace(filter.Search); search != "" {
		query = query.Where("LOWER(order_number) LIKE ?", "%"+strings.ToLower(search)+"%")
	}
	for _, column := range []string{"status", "payment_status", "customer_id"} {
		if value, ok := filter.Filters[column]; ok && value != nil && value != "" {
			query = query.Where(column+" = ?", value)
		}
	}
	return query
}

// Create inserts a new order with its items and writes events to the outbox
func (r *GormOrderRepository) Create(ctx context.Context, order *trade.Order, events []shared.DomainEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m := models.OrderModelFromDomain(order)
		if err := tx.Create(m).Error; err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("order number %s: %w", order.OrderNumber, shared.ErrAlreadyExists)
			}
			return err
		}
		return r.saveEvents(ctx, tx, events)
	})
}

// SaveWithLock saves the order state with optimistic locking
func (r *GormOrderRepository) SaveWithLock(ctx context.Context, order *trade.Order) error {
	return r.SaveWithLockAndEvents(ctx, order, nil)
}

// SaveWithLockAndEvents saves the order state with optimistic locking and
// writes events to the outbox in the same transaction. Only state columns
// are written; items and amounts are immutable after Create.
func (r *GormOrderRepository) SaveWithLockAndEvents(ctx context.Context, order *trade.Order, events []shared.DomainEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.OrderModel
		if err := tx.Select("id", "version").Where("id = ?", order.ID).Take(&current).Error; err != nil {
			return notFound(err, shared.ErrNotFound)
		}
		if current.Version != order.Version {
			return shared.ErrConcurrencyConflict
		}

		order.UpdatedAt = time.Now()
		columns := models.OrderModelFromDomain(order).StateColumns()
		columns["version"] = current.Version + 1

		result := tx.Model(&models.OrderModel{}).
			Where("id = ? AND version = ?", order.ID, current.Version).
			Updates(columns)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}
		order.Version = current.Version + 1

		return r.saveEvents(ctx, tx, events)
	})
}

func (r *GormOrderRepository) saveEvents(ctx context.Context, tx *gorm.DB, events []shared.DomainEvent) error {
	if r.outboxSaver == nil || len(events) == 0 {
		return nil
	}
	if err := r.outboxSaver.SaveEvents(ctx, tx, events...); err != nil {
		return fmt.Errorf("failed to save events to outbox: %w", err)
	}
	return nil
}

// FindOrphanedPaid returns orders that have no ledger rows at all although
// either axis says money was received: the payment status is paid or
// partially paid, or the order status is paid or later.
func (r *GormOrderRepository) FindOrphanedPaid(ctx context.Context, afterID uuid.UUID, limit int) ([]*trade.Order, error) {
	var rows []models.OrderModel
	err := r.withItems(r.db.WithContext(ctx)).
		Where("(orders.payment_status IN ? OR orders.status IN ?)",
			[]trade.PaymentStatus{trade.PaymentStatusPaid, trade.PaymentStatusPartiallyPaid},
			trade.PaidOrLaterStatuses()).
		Where("NOT EXISTS (SELECT 1 FROM payments p WHERE p.order_id = orders.id)").
		Where("orders.id > ?", afterID).
		Order("orders.id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toDomainOrders(rows), nil
}

// FindMissingPaymentOption returns orders with no payment option recorded
func (r *GormOrderRepository) FindMissingPaymentOption(ctx context.Context, afterID uuid.UUID, limit int) ([]*trade.Order, error) {
	var rows []models.OrderModel
	err := r.withItems(r.db.WithContext(ctx)).
		Where("payment_option IS NULL OR payment_option = ''").
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toDomainOrders(rows), nil
}

// NextOrderNumber returns the next free number of the day. Two concurrent
// checkouts can draw the same number; the loser fails in Create with
// ErrAlreadyExists and draws again.
func (r *GormOrderRepository) NextOrderNumber(ctx context.Context, at time.Time) (string, error) {
	prefix := strings.TrimSuffix(trade.FormatOrderNumber(at, 0), "00000")

	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.OrderModel{}).
		Where("order_number LIKE ?", prefix+"%").
		Count(&count).Error; err != nil {
		return "", err
	}
	return trade.FormatOrderNumber(at, count+1), nil
}

func toDomainOrders(rows []models.OrderModel) []*trade.Order {
	orders := make([]*trade.Order, len(rows))
	for i := range rows {
		orders[i] = rows[i].ToDomain()
	}
	return orders
}

// Ensure GormOrderRepository implements trade.OrderRepository
var _ trade.OrderRepository = (*GormOrderRepository)(nil)

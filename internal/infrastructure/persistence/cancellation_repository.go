package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/invitely/backend/internal/domain/shared"
	"github.com/invitely/backend/internal/domain/trade"
	"github.com/invitely/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormCancellationRequestRepository implements trade.CancellationRequestRepository using GORM
type GormCancellationRequestRepository struct {
	db          *gorm.DB
	outboxSaver shared.OutboxEventSaver
}

// NewGormCancellationRequestRepository creates a new GormCancellationRequestRepository
func NewGormCancellationRequestRepository(db *gorm.DB) *GormCancellationRequestRepository {
	return &GormCancellationRequestRepository{db: db}
}

// SetOutboxEventSaver sets the outbox event saver for transactional event publishing
func (r *GormCancellationRequestRepository) SetOutboxEventSaver(saver shared.OutboxEventSaver) {
	r.outboxSaver = saver
}

// WithTx returns a repository bound to tx that shares the outbox saver
func (r *GormCancellationRequestRepository) WithTx(tx *gorm.DB) *GormCancellationRequestRepository {
	return &GormCancellationRequestRepository{db: tx, outboxSaver: r.outboxSaver}
}

// FindByID finds a cancellation request
func (r *GormCancellationRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*trade.CancellationRequest, error) {
	var m models.CancellationRequestModel
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err, shared.ErrNotFound)
	}
	return m.ToDomain(), nil
}

// FindByOrder lists all requests of an order, newest first
func (r *GormCancellationRequestRepository) FindByOrder(ctx context.Context, orderID uuid.UUID) ([]*trade.CancellationRequest, error) {
	var rows []models.CancellationRequestModel
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC, id DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return toDomainCancellations(rows), nil
}

// FindPendingByOrder returns the pending request of an order
func (r *GormCancellationRequestRepository) FindPendingByOrder(ctx context.Context, orderID uuid.UUID) (*trade.CancellationRequest, error) {
	var m models.CancellationRequestModel
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, trade.CancellationStatusPending).
		Take(&m).Error; err != nil {
		return nil, notFound(err, shared.ErrNotFound)
	}
	return m.ToDomain(), nil
}

// Create inserts a new request. The partial unique index on pending requests
// turns a concurrent second request into ErrCancellationAlreadyPending.
func (r *GormCancellationRequestRepository) Create(ctx context.Context, req *trade.CancellationRequest, events []shared.DomainEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(models.CancellationRequestModelFromDomain(req)).Error; err != nil {
			if isUniqueViolation(err) {
				return trade.ErrCancellationAlreadyPending
			}
			return err
		}
		return r.saveEvents(ctx, tx, events)
	})
}

// SaveWithLock saves with optimistic locking (version check)
func (r *GormCancellationRequestRepository) SaveWithLock(ctx context.Context, req *trade.CancellationRequest) error {
	return r.SaveWithLockAndEvents(ctx, req, nil)
}

// SaveWithLockAndEvents saves with optimistic locking and persists domain events atomically
func (r *GormCancellationRequestRepository) SaveWithLockAndEvents(ctx context.Context, req *trade.CancellationRequest, events []shared.DomainEvent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.CancellationRequestModel
		if err := tx.Select("id", "version").Where("id = ?", req.ID).Take(&current).Error; err != nil {
			return notFound(err, shared.ErrNotFound)
		}
		if current.Version != req.Version {
			return shared.ErrConcurrencyConflict
		}

		req.UpdatedAt = time.Now()
		columns := models.CancellationRequestModelFromDomain(req).MutableColumns()
		columns["version"] = current.Version + 1

		result := tx.Model(&models.CancellationRequestModel{}).
			Where("id = ? AND version = ?", req.ID, current.Version).
			Updates(columns)
		if result.Error != nil {
			if isUniqueViolation(result.Error) {
				return trade.ErrCancellationAlreadyPending
			}
			return result.Error
		}
		if result.RowsAffected == 0 {
			return shared.ErrConcurrencyConflict
		}
		req.Version = current.Version + 1

		return r.saveEvents(ctx, tx, events)
	})
}

func (r *GormCancellationRequestRepository) saveEvents(ctx context.Context, tx *gorm.DB, events []shared.DomainEvent) error {
	if r.outboxSaver == nil || len(events) == 0 {
		return nil
	}
	if err := r.outboxSaver.SaveEvents(ctx, tx, events...); err != nil {
		return fmt.Errorf("failed to save events to outbox: %w", err)
	}
	return nil
}

// FindNeedingSideEffects returns approved requests whose refund can still be
// retried or whose stock is not yet back on the shelf, oldest first
func (r *GormCancellationRequestRepository) FindNeedingSideEffects(ctx context.Context, maxRefundAttempts, limit int) ([]*trade.CancellationRequest, error) {
	if maxRefundAttempts <= 0 {
		maxRefundAttempts = trade.DefaultMaxRefundAttempts
	}
	var rows []models.CancellationRequestModel
	err := r.db.WithContext(ctx).
		Scopes(needingSideEffects(r.db, maxRefundAttempts)).
		Order("updated_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return toDomainCancellations(rows), nil
}

func needingSideEffects(db *gorm.DB, maxRefundAttempts int) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		return q.Where("status = ?", trade.CancellationStatusApproved).
			Where(
				db.Where("refund_initiated = ? AND refund_status IN ? AND refund_attempts < ?",
					true, []trade.RefundStatus{trade.RefundStatusPending, trade.RefundStatusFailed}, maxRefundAttempts).
					Or("restore_stock = ? AND stock_restored = ?", true, false),
			)
	}
}

func toDomainCancellations(rows []models.CancellationRequestModel) []*trade.CancellationRequest {
	requests := make([]*trade.CancellationRequest, len(rows))
	for i := range rows {
		requests[i] = rows[i].ToDomain()
	}
	return requests
}

// Ensure GormCancellationRequestRepository implements trade.CancellationRequestRepository
var _ trade.CancellationRequestRepository = (*GormCancellationRequestRepository)(nil)

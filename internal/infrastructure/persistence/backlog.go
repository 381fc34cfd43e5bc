package persistence

import (
	"context"

	"github.com/invitely/backend/internal/domain/trade"
	"github.com/invitely/backend/internal/infrastructure/persistence/models"
	"github.com/invitely/backend/internal/infrastructure/telemetry"
	"gorm.io/gorm"
)

// GormBacklogCounter counts work waiting for review or for the retry job
type GormBacklogCounter struct {
	db                *gorm.DB
	maxRefundAttempts int
}

// NewGormBacklogCounter creates a GormBacklogCounter
func NewGormBacklogCounter(db *gorm.DB, maxRefundAttempts int) *GormBacklogCounter {
	if maxRefundAttempts <= 0 {
		maxRefundAttempts = trade.DefaultMaxRefundAttempts
	}
	return &GormBacklogCounter{db: db, maxRefundAttempts: maxRefundAttempts}
}

// PendingCancellationCount counts requests awaiting an admin decision
func (c *GormBacklogCounter) PendingCancellationCount(ctx context.Context) (int64, error) {
	var n int64
	err := c.db.WithContext(ctx).
		Model(&models.CancellationRequestModel{}).
		Where("status = ?", trade.CancellationStatusPending).
		Count(&n).Error
	return n, err
}

// RetryableSideEffectCount counts approved requests the retry job would pick up
func (c *GormBacklogCounter) RetryableSideEffectCount(ctx context.Context) (int64, error) {
	var n int64
	err := c.db.WithContext(ctx).
		Model(&models.CancellationRequestModel{}).
		Scopes(needingSideEffects(c.db, c.maxRefundAttempts)).
		Count(&n).Error
	return n, err
}

var _ telemetry.BacklogProvider = (*GormBacklogCounter)(nil)

package persistence

import (
	"testing"

	"github.com/google/uuid"
	"github.com/invitely/backend/internal/domain/shared"
	"github.com/invitely/backend/internal/domain/trade"
	"github.com/invitely/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormStockRestorer_RestoreStock(t *testing.T) {
	db := newLedgerDB(t)
	restorer := NewGormStockRestorer(db)
	ctx := testContext(t)

	cards := insertProduct(t, db, "CARD-RUSTIC", 10)
	envelopes := insertProduct(t, db, "ENV-KRAFT", 3)
	restoration := trade.StockRestoration{
		CancellationID: uuid.New(),
		OrderID:        uuid.New(),
		Lines: []trade.StockLine{
			{ProductID: cards, Quantity: 150},
			{ProductID: envelopes, Quantity: 150},
			{ProductID: uuid.New(), Quantity: 0},
		},
	}

	require.NoError(t, restorer.RestoreStock(ctx, restoration))
	assert.Equal(t, 160, productStock(t, db, cards))
	assert.Equal(t, 153, productStock(t, db, envelopes))

	t.Run("same cancellation twice restores once", func(t *testing.T) {
		require.NoError(t, restorer.RestoreStock(ctx, restoration))
		assert.Equal(t, 160, productStock(t, db, cards))
		assert.Equal(t, 153, productStock(t, db, envelopes))

		var markers int64
		require.NoError(t, db.Model(&models.StockRestorationModel{}).
			Where("cancellation_id = ?", restoration.CancellationID).
			Count(&markers).Error)
		assert.Equal(t, int64(2), markers)
	})

	t.Run("another cancellation of the same product restores again", func(t *testing.T) {
		other := trade.StockRestoration{
			CancellationID: uuid.New(),
			OrderID:        uuid.New(),
			Lines:          []trade.StockLine{{ProductID: cards, Quantity: 5}},
		}
		require.NoError(t, restorer.RestoreStock(ctx, other))
		assert.Equal(t, 165, productStock(t, db, cards))
	})
}

func TestGormStockRestorer_UnknownProductRollsBack(t *testing.T) {
	db := newLedgerDB(t)
	restorer := NewGormStockRestorer(db)
	ctx := testContext(t)

	cards := insertProduct(t, db, "CARD-GOLD", 10)
	restoration := trade.StockRestoration{
		CancellationID: uuid.New(),
		OrderID:        uuid.New(),
		Lines: []trade.StockLine{
			{ProductID: cards, Quantity: 20},
			{ProductID: uuid.New(), Quantity: 1},
		},
	}

	err := restorer.RestoreStock(ctx, restoration)
	require.Error(t, err)
	assert.Equal(t, shared.KindExternal, shared.KindOf(err))
	assert.Equal(t, 10, productStock(t, db, cards))

	var markers int64
	require.NoError(t, db.Model(&models.StockRestorationModel{}).Count(&markers).Error)
	assert.Zero(t, markers)
}

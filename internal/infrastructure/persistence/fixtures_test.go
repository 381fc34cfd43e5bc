package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/invitely/backend/internal/domain/finance"
	"github.com/invitely/backend/internal/domain/trade"
	"github.com/invitely/backend/internal/infrastructure/event"
	"github.com/invitely/backend/internal/infrastructure/persistence/models"
	"github.com/invitely/backend/internal/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.NewSQLiteDB(t,
		&models.OrderModel{},
		&models.OrderItemModel{},
		&models.PaymentModel{},
		&models.CancellationRequestModel{},
		&models.ProductModel{},
		&models.StockRestorationModel{},
		&models.OutboxEntryModel{},
	)
}

func newOutboxPublisher() *event.OutboxPublisher {
	serializer := event.NewEventSerializer()
	event.RegisterAllEvents(serializer)
	return event.NewOutboxPublisher(serializer)
}

func newTestOrder(t *testing.T, number string, productID uuid.UUID, quantity int, unitPrice int64) *trade.Order {
	t.Helper()
	item, err := trade.NewOrderItem(productID, "Floral Watercolor Invitation", quantity, decimal.NewFromInt(unitPrice))
	require.NoError(t, err)
	order, err := trade.NewOrder(trade.NewOrderInput{
		OrderNumber: number,
		CustomerID:  testutil.TestCustomerID(),
		Items:       []trade.OrderItem{item},
	})
	require.NoError(t, err)
	return order
}

func insertOrder(t *testing.T, db *gorm.DB, order *trade.Order) {
	t.Helper()
	repo := NewGormOrderRepository(db)
	require.NoError(t, repo.Create(testContext(t), order, nil))
	order.ClearDomainEvents()
}

func insertProduct(t *testing.T, db *gorm.DB, sku string, stock int) uuid.UUID {
	t.Helper()
	now := time.Now()
	p := &models.ProductModel{
		BaseModel: models.BaseModel{ID: uuid.New(), CreatedAt: now, UpdatedAt: now},
		SKU:       sku,
		Name:      "Invitation " + sku,
		Price:     decimal.NewFromInt(15000),
		Stock:     stock,
	}
	require.NoError(t, db.Create(p).Error)
	return p.ID
}

func newTestPayment(t *testing.T, orderID uuid.UUID, txID string, amount int64, status finance.PaymentStatus) *finance.Payment {
	t.Helper()
	p, err := finance.NewPayment(orderID, txID, decimal.NewFromInt(amount), finance.PaymentPlanFull, status, nil)
	require.NoError(t, err)
	return p
}

func productStock(t *testing.T, db *gorm.DB, id uuid.UUID) int {
	t.Helper()
	var p models.ProductModel
	require.NoError(t, db.Where("id = ?", id).Take(&p).Error)
	return p.Stock
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

package trade

import (
	"context"

	"github.com/google/uuid"
)

// StockLine is the quantity of one product to put back into stock
type StockLine struct {
	ProductID uuid.UUID
	Quantity  int
}

// StockRestoration puts the items of a cancelled order back into stock.
// CancellationID is the idempotency key: restoring the same cancellation
// twice must not increment stock twice.
type StockRestoration struct {
	CancellationID uuid.UUID
	OrderID        uuid.UUID
	Lines          []StockLine
}

// NewStockRestoration builds the restoration for an order's items
func NewStockRestoration(req *CancellationRequest, order *Order) StockRestoration {
	lines := make([]StockLine, 0, len(order.Items))
	byProduct := make(map[uuid.UUID]int, len(order.Items))
	for _, item := range order.Items {
		if _, seen := byProduct[item.ProductID]; !seen {
			lines = append(lines, StockLine{ProductID: item.ProductID})
		}
		byProduct[item.ProductID] += item.Quantity
	}
	for i := range lines {
		lines[i].Quantity = byProduct[lines[i].ProductID]
	}
	return StockRestoration{
		CancellationID: req.ID,
		OrderID:        order.ID,
		Lines:          lines,
	}
}

// StockRestorer is the inventory collaborator. Implementations must be
// idempotent per CancellationID.
type StockRestorer interface {
	RestoreStock(ctx context.Context, restoration StockRestoration) error
}

package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"

	tradeapp "github.com/invitely/backend/internal/application/trade"
	"github.com/invitely/backend/internal/domain/trade"
)

// OrderHandler serves checkout, order reads and admin status changes
type OrderHandler struct {
	BaseHandler
	orders   OrderUseCase
	payments PaymentLedgerUseCase
}

// NewOrderHandler creates an OrderHandler
func NewOrderHandler(orders OrderUseCase, payments PaymentLedgerUseCase) *OrderHandler {
	return &OrderHandler{orders: orders, payments: payments}
}

// Create handles POST /orders. The order belongs to the calling customer;
// an admin must name the customer in customer_id.
func (h *OrderHandler) Create(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	// The body is read twice: once for the order, once for the admin's target customer.
	var req tradeapp.CreateOrderRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		h.bindError(c, err)
		return
	}
	var target struct {
		CustomerID *uuid.UUID `json:"customer_id"`
	}
	if err := c.ShouldBindBodyWith(&target, binding.JSON); err != nil {
		h.bindError(c, err)
		return
	}

	switch {
	case actor.Role == trade.ActorCustomer:
		req.CustomerID = actor.ID
	case target.CustomerID != nil && *target.CustomerID != uuid.Nil:
		req.CustomerID = *target.CustomerID
	default:
		h.BadRequest(c, "customer_id is required when an admin places an order")
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, order)
}

// List handles GET /orders. Customers only see their own orders.
func (h *OrderHandler) List(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	var filter tradeapp.OrderListFilter
	if !h.BindQuery(c, &filter) {
		return
	}
	if actor.Role == trade.ActorCustomer {
		id := actor.ID
		filter.CustomerID = &id
	}

	orders, total, err := h.orders.ListOrders(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	page, pageSize := filter.Page, filter.PageSize
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	h.SuccessWithMeta(c, orders, total, page, pageSize)
}

// Get handles GET /orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	order, ok := h.visibleOrder(c)
	if !ok {
		return
	}
	h.Success(c, order)
}

// ListPayments handles GET /orders/:id/payments
func (h *OrderHandler) ListPayments(c *gin.Context) {
	order, ok := h.visibleOrder(c)
	if !ok {
		return
	}
	payments, err := h.payments.ListPayments(c.Request.Context(), order.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, payments)
}

// Balance handles GET /orders/:id/balance
func (h *OrderHandler) Balance(c *gin.Context) {
	order, ok := h.visibleOrder(c)
	if !ok {
		return
	}
	balance, err := h.payments.GetBalance(c.Request.Context(), order.ID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, balance)
}

// UpdateStatus handles PATCH /admin/orders/:id/status
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	orderID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req tradeapp.UpdateStatusRequest
	if !h.BindJSON(c, &req) {
		return
	}

	result, err := h.orders.UpdateStatus(c.Request.Context(), orderID, actor, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// visibleOrder loads the :id order. A customer asking for someone else's
// order gets the same 404 as for a missing one.
func (h *OrderHandler) visibleOrder(c *gin.Context) (*tradeapp.OrderResponse, bool) {
	actor, ok := h.Actor(c)
	if !ok {
		return nil, false
	}
	orderID, ok := h.PathID(c, "id")
	if !ok {
		return nil, false
	}
	order, err := h.orders.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		h.HandleError(c, err)
		return nil, false
	}
	if actor.Role == trade.ActorCustomer && order.CustomerID != actor.ID {
		h.NotFound(c, "Order not found")
		return nil, false
	}
	return order, true
}

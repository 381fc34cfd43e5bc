package handler

import (
	"github.com/gin-gonic/gin"

	tradeapp "github.com/invitely/backend/internal/application/trade"
	"github.com/invitely/backend/internal/domain/trade"
)

// CancellationHandler serves the cancellation workflow
type CancellationHandler struct {
	BaseHandler
	cancellations CancellationUseCase
	sideEffects   SideEffectProcessor
	orders        OrderUseCase
}

// NewCancellationHandler creates a CancellationHandler
func NewCancellationHandler(cancellations CancellationUseCase, sideEffects SideEffectProcessor, orders OrderUseCase) *CancellationHandler {
	return &CancellationHandler{cancellations: cancellations, sideEffects: sideEffects, orders: orders}
}

// Request handles POST /orders/:id/cancellations
func (h *CancellationHandler) Request(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	orderID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req tradeapp.RequestCancellationRequest
	if !h.BindJSON(c, &req) {
		return
	}

	resp, err := h.cancellations.Request(c.Request.Context(), orderID, actor, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, resp)
}

// ListForOrder handles GET /orders/:id/cancellations
func (h *CancellationHandler) ListForOrder(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	orderID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if actor.Role == trade.ActorCustomer {
		order, err := h.orders.GetOrder(ctx, orderID)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		if order.CustomerID != actor.ID {
			h.NotFound(c, "Order not found")
			return
		}
	}

	list, err := h.cancellations.ListCancellations(ctx, orderID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, list)
}

// Get handles GET /admin/cancellations/:id
func (h *CancellationHandler) Get(c *gin.Context) {
	requestID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	resp, err := h.cancellations.GetCancellation(c.Request.Context(), requestID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Approve handles POST /admin/cancellations/:id/approve
func (h *CancellationHandler) Approve(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	requestID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req tradeapp.ApproveCancellationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.AdminID = actor.ID

	result, err := h.cancellations.Approve(c.Request.Context(), requestID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Reject handles POST /admin/cancellations/:id/reject
func (h *CancellationHandler) Reject(c *gin.Context) {
	actor, ok := h.Actor(c)
	if !ok {
		return
	}
	requestID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	var req tradeapp.RejectCancellationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	req.AdminID = actor.ID

	resp, err := h.cancellations.Reject(c.Request.Context(), requestID, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

// Retry handles POST /admin/cancellations/:id/retry. It reruns whichever
// refund or stock step has not completed.
func (h *CancellationHandler) Retry(c *gin.Context) {
	requestID, ok := h.PathID(c, "id")
	if !ok {
		return
	}
	resp, err := h.sideEffects.Process(c.Request.Context(), requestID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}

package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/invitely/backend/internal/application/reconciliation"
)

// ReconciliationHandler lets an admin trigger the backfill jobs on demand
type ReconciliationHandler struct {
	BaseHandler
	runner ReconciliationRunner
}

// NewReconciliationHandler creates a ReconciliationHandler
func NewReconciliationHandler(runner ReconciliationRunner) *ReconciliationHandler {
	return &ReconciliationHandler{runner: runner}
}

// RunQuery are the query parameters of POST /admin/reconciliation/run.
// DryRun defaults to true so a bare call never writes.
type RunQuery struct {
	Job             string `form:"job" binding:"omitempty,oneof=all orphaned-payments payment-options"`
	DryRun          *bool  `form:"dry_run"`
	IncludeOrphaned bool   `form:"include_orphaned"`
	ChunkSize       int    `form:"chunk_size" binding:"omitempty,min=1,max=5000"`
	Limit           int    `form:"limit" binding:"omitempty,min=0"`
}

// Run handles POST /admin/reconciliation/run
func (h *ReconciliationHandler) Run(c *gin.Context) {
	var q RunQuery
	if !h.BindQuery(c, &q) {
		return
	}
	dryRun := true
	if q.DryRun != nil {
		dryRun = *q.DryRun
	}

	report, err := h.runner.Run(c.Request.Context(), reconciliation.RunOptions{
		Job: q.Job,
		BackfillOptions: reconciliation.BackfillOptions{
			DryRun:          dryRun,
			ChunkSize:       q.ChunkSize,
			Limit:           q.Limit,
			IncludeOrphaned: q.IncludeOrphaned,
		},
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

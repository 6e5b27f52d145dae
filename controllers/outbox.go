package controllers

import (
	"net/http"
	"strings"
	"time"

	"balcao/dispatch"
	"balcao/outbox"

	"github.com/gin-gonic/gin"
)

// POST /api/tenants/:tenantId/outbox
// Enqueues one outbound message; a repeated idempotencyKey returns the
// existing item's id.
func (ctl *Controller) EnqueueOutbox(c *gin.Context) {
	tenantID, ok := ParamID(c, "tenantId")
	if !ok {
		return
	}
	var item outbox.Item
	if err := c.ShouldBindJSON(&item); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}
	item.TenantID = tenantID
	item.ID = 0
	item.RetryOf = nil

	id, err := ctl.Outbox.Enqueue(c.Request.Context(), item)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"id": id})
}

// GET /api/tenants/:tenantId/outbox?status=&limit=
func (ctl *Controller) ListOutbox(c *gin.Context) {
	tenantID, ok := ParamID(c, "tenantId")
	if !ok {
		return
	}
	items, err := ctl.Outbox.List(c.Request.Context(), tenantID, strings.TrimSpace(c.Query("status")), QueryLimit(c, 200))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"items": items})
}

type requeueReq struct {
	NotBefore *time.Time `json:"notBefore"`
}

// POST /api/outbox/:id/requeue
// Copies a failed item into a new pending one.
func (ctl *Controller) RequeueOutbox(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var req requeueReq
	_ = c.ShouldBindJSON(&req) // optional body

	newID, err := ctl.Outbox.Requeue(c.Request.Context(), id, req.NotBefore)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"id": newID})
}

// POST /api/dispatch/run
// Runs one dispatch batch now and returns what happened to each item.
func (ctl *Controller) RunDispatch(c *gin.Context) {
	var opts dispatch.Options
	_ = c.ShouldBindJSON(&opts) // optional body

	res, err := ctl.Runner.RunBatch(c.Request.Context(), opts)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondSuccess(c, res)
}

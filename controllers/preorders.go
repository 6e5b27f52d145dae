package controllers

import (
	"net/http"
	"strings"

	"balcao/models"
	"balcao/preorder"

	"github.com/gin-gonic/gin"
)

// GET /api/tenants/:tenantId/preorders?status=&limit=
func (ctl *Controller) ListPreorders(c *gin.Context) {
	tenantID, ok := ParamID(c, "tenantId")
	if !ok {
		return
	}
	list, err := ctl.Preorders.ListByTenant(c.Request.Context(), tenantID, strings.TrimSpace(c.Query("status")), QueryLimit(c, 100))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"preorders": list})
}

type createPreorderReq struct {
	preorder.Draft
	Actor string `json:"actor"`
}

// POST /api/tenants/:tenantId/preorders
func (ctl *Controller) CreatePreorder(c *gin.Context) {
	tenantID, ok := ParamID(c, "tenantId")
	if !ok {
		return
	}
	var req createPreorderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}
	req.TenantID = tenantID

	p, err := ctl.Preorders.Create(c.Request.Context(), req.Draft, actorOr(req.Actor))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"preorder": p})
}

// GET /api/preorders/:id
func (ctl *Controller) GetPreorder(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	p, err := ctl.Preorders.GetByID(c.Request.Context(), id)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"preorder": p})
}

type patchPreorderReq struct {
	preorder.Patch
	Actor string `json:"actor"`
}

// PATCH /api/preorders/:id
// Replaces items, delivery or payment of an open preorder; totals are re-derived.
func (ctl *Controller) UpdatePreorder(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var req patchPreorderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}
	p, err := ctl.Preorders.Update(c.Request.Context(), id, req.Patch, actorOr(req.Actor))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"preorder": p})
}

type preorderStatusReq struct {
	Status string `json:"status"`
	Actor  string `json:"actor"`
	Reason string `json:"reason"`
}

// POST /api/preorders/:id/status
func (ctl *Controller) SetPreorderStatus(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}
	var req preorderStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}
	p, err := ctl.Preorders.SetStatus(c.Request.Context(), id, strings.TrimSpace(req.Status), actorOr(req.Actor), strings.TrimSpace(req.Reason))
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"preorder": p})
}

// operator routes act as a human unless told otherwise
func actorOr(actor string) string {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return models.ACTOR_HUMAN
	}
	return actor
}

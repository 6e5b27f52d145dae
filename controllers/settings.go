package controllers

import (
	"net/http"

	"balcao/conversation"

	"github.com/gin-gonic/gin"
)

// GET /api/tenants/:tenantId/settings
func (ctl *Controller) GetSettings(c *gin.Context) {
	tenantID, ok := ParamID(c, "tenantId")
	if !ok {
		return
	}
	s, err := ctl.Settings.Get(c.Request.Context(), tenantID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"settings": s})
}

// PUT /api/tenants/:tenantId/settings
func (ctl *Controller) PutSettings(c *gin.Context) {
	tenantID, ok := ParamID(c, "tenantId")
	if !ok {
		return
	}
	var s conversation.Settings
	if err := c.ShouldBindJSON(&s); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}
	s.TenantID = tenantID
	if err := ctl.Settings.Put(c.Request.Context(), s); err != nil {
		RespondAppError(c, err)
		return
	}
	saved, err := ctl.Settings.Get(c.Request.Context(), tenantID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondSuccess(c, gin.H{"settings": saved})
}

// GET /api/tenants/:tenantId/catalog/readiness
func (ctl *Controller) CatalogReadiness(c *gin.Context) {
	tenantID, ok := ParamID(c, "tenantId")
	if !ok {
		return
	}
	rep, err := ctl.Catalog.Get(c.Request.Context(), tenantID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondSuccess(c, rep)
}

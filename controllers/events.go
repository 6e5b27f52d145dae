package controllers

import (
	"net/http"
	"strings"

	"balcao/models"

	"github.com/gin-gonic/gin"
)

// GET /api/tenants/:tenantId/events?status=&remote=&limit=
// Inbound webhook events of a tenant, newest first.
func (ctl *Controller) GetEvents(c *gin.Context) {
	tenantID, ok := ParamID(c, "tenantId")
	if !ok {
		return
	}
	db, ok := requestDB(c)
	if !ok {
		return
	}

	q := db.Where("tenant_id = ?", tenantID)
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		q = q.Where("status = ?", status)
	}
	if remote := strings.TrimSpace(c.Query("remote")); remote != "" {
		q = q.Where("recipient = ?", remote)
	}
	limit := QueryLimit(c, 200)
	if limit > 500 {
		limit = 500
	}

	var events []models.Event
	if err := q.Order("id desc").Limit(limit).Find(&events).Error; err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}
	RespondSuccess(c, gin.H{"events": events})
}

// GET /api/events/:id
func (ctl *Controller) GetEventByID(c *gin.Context) {
	id, ok := ParamID(c, "id")
	if !ok {
		return
	}

	db, ok := requestDB(c)
	if !ok {
		return
	}

	var event models.Event
	if err := db.First(&event, id).Error; err != nil {
		RespondError(c, "event não encontrado", http.StatusNotFound)
		return
	}
	RespondSuccess(c, gin.H{"event": event})
}

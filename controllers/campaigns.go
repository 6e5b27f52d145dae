package controllers

import (
	"net/http"
	"strings"
	"time"

	"balcao/dispatch"

	"github.com/gin-gonic/gin"
)

type campaignRunReq struct {
	Message    string               `json:"message"`
	Recipients []dispatch.Recipient `json:"recipients"`
	StartAt    *time.Time           `json:"startAt"`
}

// POST /api/tenants/:tenantId/campaigns/:campaignId/runs
// Fans a campaign out to its recipients, spread over the send window.
func (ctl *Controller) StartCampaignRun(c *gin.Context) {
	tenantID, ok := ParamID(c, "tenantId")
	if !ok {
		return
	}
	campaignID, ok := ParamID(c, "campaignId")
	if !ok {
		return
	}
	var req campaignRunReq
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	sum, err := ctl.Scheduler.ScheduleCampaignRun(c.Request.Context(), dispatch.CampaignRun{
		TenantID:   tenantID,
		CampaignID: campaignID,
		Message:    req.Message,
		Recipients: req.Recipients,
		StartAt:    req.StartAt,
	})
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondSuccess(c, sum)
}

type groupCampaignRunReq struct {
	Message string                    `json:"message"`
	Groups  []dispatch.GroupRecipient `json:"groups"`
	StartAt *time.Time                `json:"startAt"`
}

// POST /api/tenants/:tenantId/group-campaigns/:groupCampaignId/runs
func (ctl *Controller) StartGroupCampaignRun(c *gin.Context) {
	tenantID, ok := ParamID(c, "tenantId")
	if !ok {
		return
	}
	gcID, ok := ParamID(c, "groupCampaignId")
	if !ok {
		return
	}
	var req groupCampaignRunReq
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	sum, err := ctl.Scheduler.ScheduleGroupCampaignRun(c.Request.Context(), dispatch.GroupCampaignRun{
		TenantID:        tenantID,
		GroupCampaignID: gcID,
		Message:         req.Message,
		Groups:          req.Groups,
		StartAt:         req.StartAt,
	})
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondSuccess(c, sum)
}

// GET /api/runs/:runId/items
func (ctl *Controller) RunItems(c *gin.Context) {
	runID := strings.TrimSpace(c.Param("runId"))
	if runID == "" {
		RespondError(c, "runId é obrigatório", http.StatusBadRequest)
		return
	}
	items, err := ctl.Ledger.ListRunItems(c.Request.Context(), runID)
	if err != nil {
		RespondAppError(c, err)
		return
	}
	RespondSuccess(c, items)
}

package controllers

import (
	"net/http"
	"strings"
	"time"

	"balcao/models"
	"balcao/tools"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
)

type upsertWhatsAppConfigReq struct {
	PhoneNumberID string `json:"phone_number_id"`
	AccessToken   string `json:"access_token"`
	ApiVersion    string `json:"api_version"`
	WabaID        string `json:"waba_id"`
}

// PUT /api/tenants/:tenantId/whatsapp/config
// Upsert the tenant WhatsApp credentials.
// Returns only true.
func (ctl *Controller) UpsertWhatsAppConfig(c *gin.Context) {
	tenantID, ok := ParamID(c, "tenantId")
	if !ok {
		return
	}

	var req upsertWhatsAppConfigReq
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	req.PhoneNumberID = strings.TrimSpace(req.PhoneNumberID)
	req.AccessToken = strings.TrimSpace(req.AccessToken)
	req.ApiVersion = strings.TrimSpace(req.ApiVersion)
	req.WabaID = strings.TrimSpace(req.WabaID)
	if req.ApiVersion == "" {
		req.ApiVersion = ctl.WhatsApp.ApiVersion
	}
	if req.ApiVersion == "" {
		req.ApiVersion = "v24.0"
	}

	if req.PhoneNumberID == "" {
		RespondError(c, "phone_number_id é obrigatório", http.StatusBadRequest)
		return
	}
	if req.AccessToken == "" {
		RespondError(c, "access_token é obrigatório", http.StatusBadRequest)
		return
	}

	db, ok := requestDB(c)
	if !ok {
		return
	}

	var wa models.WhatsAppConfig
	err := db.Where("tenant_id = ?", tenantID).First(&wa).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			wa = models.WhatsAppConfig{
				TenantID:      tenantID,
				PhoneNumberID: req.PhoneNumberID,
				AccessToken:   req.AccessToken,
				WabaID:        req.WabaID,
				ApiVersion:    req.ApiVersion,
				Status:        models.WHATSAPP_STATUS_PENDING,
			}
			if err := db.Create(&wa).Error; err != nil {
				RespondError(c, err.Error(), http.StatusBadRequest)
				return
			}
			RespondSuccess(c, true)
			return
		}
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	// Update existing config and reset status to pending if phone id changed.
	status := wa.Status
	if strings.TrimSpace(wa.PhoneNumberID) != req.PhoneNumberID {
		status = models.WHATSAPP_STATUS_PENDING
	}

	if err := db.Model(&models.WhatsAppConfig{}).
		Where("id = ?", wa.ID).
		Updates(map[string]any{
			"phone_number_id": req.PhoneNumberID,
			"access_token":    req.AccessToken,
			"waba_id":         req.WabaID,
			"api_version":     req.ApiVersion,
			"status":          status,
		}).Error; err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	RespondSuccess(c, true)
}

func (ctl *Controller) tenantWhatsApp(c *gin.Context) (*gorm.DB, models.WhatsAppConfig, bool) {
	var wa models.WhatsAppConfig
	tenantID, ok := ParamID(c, "tenantId")
	if !ok {
		return nil, wa, false
	}
	db, ok := requestDB(c)
	if !ok {
		return nil, wa, false
	}
	if err := db.Where("tenant_id = ?", tenantID).First(&wa).Error; err != nil {
		RespondError(c, "whatsapp config não encontrada", http.StatusNotFound)
		return nil, wa, false
	}
	return db, wa, true
}

func (ctl *Controller) phoneClient(wa models.WhatsAppConfig) tools.WhatsAppClient {
	client := tools.ClientFor(tools.Credentials{PhoneNumberID: wa.PhoneNumberID, AccessToken: wa.AccessToken, ApiVersion: wa.ApiVersion})
	client.BaseURL = ctl.GraphBaseURL
	return client
}

type requestCodeReq struct {
	CodeMethod string `json:"code_method"` // SMS | VOICE
	Language   string `json:"language"`    // pt_BR
}

// POST /api/tenants/:tenantId/whatsapp/request-code
// Requests a verification code to the business phone number.
// Returns only true.
func (ctl *Controller) WhatsAppRequestCode(c *gin.Context) {
	_, wa, ok := ctl.tenantWhatsApp(c)
	if !ok {
		return
	}

	var req requestCodeReq
	_ = c.ShouldBindJSON(&req) // optional body

	if err := ctl.phoneClient(wa).RequestCode(c.Request.Context(), strings.TrimSpace(req.CodeMethod), strings.TrimSpace(req.Language)); err != nil {
		RespondAppError(c, err)
		return
	}
	RespondSuccess(c, true)
}

type registerReq struct {
	Pin string `json:"pin"`
}

// POST /api/tenants/:tenantId/whatsapp/register
// Registers the business phone number in Cloud API using the PIN.
// Returns only true.
func (ctl *Controller) WhatsAppRegister(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}
	pin := strings.TrimSpace(req.Pin)

	db, wa, ok := ctl.tenantWhatsApp(c)
	if !ok {
		return
	}
	if err := ctl.phoneClient(wa).Register(c.Request.Context(), pin); err != nil {
		RespondAppError(c, err)
		return
	}

	// mark as registered
	now := time.Now().UTC()
	_ = db.Model(&models.WhatsAppConfig{}).Where("id = ?", wa.ID).Updates(map[string]any{
		"status":     models.WHATSAPP_STATUS_REGISTERED,
		"updated_at": &now,
	}).Error

	RespondSuccess(c, true)
}

// POST /api/tenants/:tenantId/whatsapp/subscribe
// Subscribes the app to the tenant's WABA so inbound messages reach the webhook.
func (ctl *Controller) WhatsAppSubscribe(c *gin.Context) {
	_, wa, ok := ctl.tenantWhatsApp(c)
	if !ok {
		return
	}
	if err := ctl.phoneClient(wa).SubscribeWABA(c.Request.Context(), wa.WabaID); err != nil {
		RespondAppError(c, err)
		return
	}
	RespondSuccess(c, true)
}

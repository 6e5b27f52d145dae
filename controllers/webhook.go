package controllers

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"balcao/conversation"
	"balcao/models"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

type WebhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				Metadata struct {
					DisplayPhoneNumber string `json:"display_phone_number"`
					PhoneNumberID      string `json:"phone_number_id"`
				} `json:"metadata"`
				Messages []struct {
					From string `json:"from"`
					ID   string `json:"id"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type IncomingTextMessage struct {
	Channel string // phone_number_id que recebeu a mensagem
	From    string
	ID      string
	Text    string
}

func extractTextMessages(payload WebhookPayload) []IncomingTextMessage {
	var out []IncomingTextMessage

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if strings.TrimSpace(change.Field) != "messages" {
				continue
			}
			channel := strings.TrimSpace(change.Value.Metadata.PhoneNumberID)
			for _, m := range change.Value.Messages {
				if strings.ToLower(strings.TrimSpace(m.Type)) != "text" {
					continue
				}
				body := strings.TrimSpace(m.Text.Body)
				if body == "" {
					continue
				}
				out = append(out, IncomingTextMessage{
					Channel: channel,
					From:    strings.TrimSpace(m.From),
					ID:      strings.TrimSpace(m.ID),
					Text:    body,
				})
			}
		}
	}

	return out
}

// verifyMetaSignature validates the request body against Meta's signature header.
//
// WhatsApp/Graph Webhooks send: X-Hub-Signature-256: sha256=<hex>
// The secret is the Meta App Secret (NOT the WhatsApp access token).
func verifyMetaSignature(c *gin.Context, secret string, rawBody []byte) (bool, string) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return false, "whatsapp.app_secret não configurado"
	}

	sig := strings.TrimSpace(c.GetHeader("X-Hub-Signature-256"))
	if sig == "" {
		return false, "missing X-Hub-Signature-256"
	}
	if !strings.HasPrefix(sig, "sha256=") {
		return false, "invalid X-Hub-Signature-256 format"
	}

	provided, err := hex.DecodeString(strings.TrimPrefix(sig, "sha256="))
	if err != nil {
		return false, "invalid signature hex"
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return false, "signature mismatch"
	}
	return true, ""
}

// requireTenantChannel only accepts webhooks for tenants with WhatsApp credentials.
func requireTenantChannel(c *gin.Context, db *gorm.DB, tenantID int64) (*models.WhatsAppConfig, bool) {
	var wa models.WhatsAppConfig
	if err := db.Where("tenant_id = ?", tenantID).First(&wa).Error; err != nil {
		RespondError(c, "tenant sem whatsapp configurado", http.StatusNotFound)
		return nil, false
	}
	return &wa, true
}

// GET /api/webhook/:tenantId
func (ctl *Controller) WebhookVerify(c *gin.Context) {
	verifyToken := strings.TrimSpace(ctl.WhatsApp.VerifyToken)
	if verifyToken == "" {
		RespondError(c, "whatsapp.verify_token não configurado", http.StatusInternalServerError)
		return
	}

	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	tokenOK := subtle.ConstantTimeCompare([]byte(token), []byte(verifyToken)) == 1
	ctl.Log.WithFields(logrus.Fields{"path": c.FullPath(), "mode": mode, "token_ok": tokenOK}).Info("webhook: verify")

	if mode == "subscribe" && tokenOK && challenge != "" {
		c.String(http.StatusOK, "%s", challenge)
		return
	}
	RespondError(c, "forbidden", http.StatusForbidden)
}

// POST /api/webhook/:tenantId
func (ctl *Controller) WebhookUpdate(c *gin.Context) {
	tenantID, ok := ParamID(c, "tenantId")
	if !ok {
		return
	}

	db, ok := requestDB(c)
	if !ok {
		return
	}
	wa, ok := requireTenantChannel(c, db, tenantID)
	if !ok {
		return
	}

	// Read raw body once so we can validate Meta signature.
	raw, err := c.GetRawData()
	if err != nil {
		RespondError(c, "failed to read body", http.StatusBadRequest)
		return
	}
	if ok, reason := verifyMetaSignature(c, ctl.WhatsApp.AppSecret, raw); !ok {
		RespondError(c, "forbidden: "+reason, http.StatusForbidden)
		return
	}

	var payload WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		RespondError(c, "invalid json", http.StatusBadRequest)
		return
	}
	msgs := extractTextMessages(payload)

	// responde rápido pro Meta
	c.String(http.StatusOK, "EVENT_RECEIVED")

	for _, m := range msgs {
		channel := m.Channel
		if channel == "" {
			channel = wa.PhoneNumberID
		}
		key := conversation.Key{TenantID: tenantID, ChannelInstance: channel, RemoteIdentity: m.From}
		if err := ctl.Events.Receive(c.Request.Context(), key, m.ID, m.Text); err != nil {
			ctl.Log.WithError(err).WithFields(logrus.Fields{"tenant_id": tenantID, "remote": m.From}).Error("webhook: event not stored")
		}
	}
}

// Package outbox is the durable queue of outbound messages. Authoring code
// enqueues; the dispatch runner claims due items and records their outcome.
package outbox

import (
	"strconv"
	"strings"
	"time"

	"balcao/apperrors"
	"balcao/models"
)

// Context tells the runner which ledger, if any, an item reports back to.
type Context struct {
	Kind            string  `json:"kind"`
	CampaignID      *int64  `json:"campaignId,omitempty"`
	GroupCampaignID *int64  `json:"groupCampaignId,omitempty"`
	GroupID         *string `json:"groupId,omitempty"`
	RunID           *string `json:"runId,omitempty"`
}

type Item struct {
	ID             int64      `json:"id"`
	TenantID       int64      `json:"tenantId"`
	To             string     `json:"to"`
	Message        string     `json:"message"`
	ContactID      *string    `json:"contactId,omitempty"`
	OrderID        *int64     `json:"orderId,omitempty"`
	MessageType    string     `json:"messageType"`
	IdempotencyKey *string    `json:"idempotencyKey,omitempty"`
	NotBefore      *time.Time `json:"notBefore,omitempty"`
	Status         string     `json:"status"`
	Context        Context    `json:"context"`
	LastError      string     `json:"lastError,omitempty"`
	RetryOf        *int64     `json:"retryOf,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	SentAt         *time.Time `json:"sentAt,omitempty"`
}

// Key returns the trimmed idempotency key, "" when absent.
func (it Item) Key() string {
	if it.IdempotencyKey == nil {
		return ""
	}
	return strings.TrimSpace(*it.IdempotencyKey)
}

func validKind(kind string) bool {
	switch kind {
	case models.OUTBOX_KIND_ASSISTANT, models.OUTBOX_KIND_SYSTEM,
		models.OUTBOX_KIND_CAMPAIGN, models.OUTBOX_KIND_GROUP_CAMPAIGN:
		return true
	}
	return false
}

// normalize fills defaults and rejects shapes the runner cannot route.
// Missing to/message is accepted here on purpose: the runner marks those failed.
func (it *Item) normalize() error {
	if it.TenantID <= 0 {
		return apperrors.Validation("tenantId é obrigatório")
	}
	if it.Context.Kind == "" {
		it.Context.Kind = models.OUTBOX_KIND_ASSISTANT
	}
	if !validKind(it.Context.Kind) {
		return apperrors.Validation("context.kind inválido: " + it.Context.Kind)
	}
	if it.Context.Kind == models.OUTBOX_KIND_CAMPAIGN && (it.Context.CampaignID == nil || it.Context.RunID == nil) {
		return apperrors.Validation("campaign items need campaignId and runId")
	}
	if it.Context.Kind == models.OUTBOX_KIND_GROUP_CAMPAIGN && (it.Context.GroupCampaignID == nil || it.Context.RunID == nil || it.Context.GroupID == nil) {
		return apperrors.Validation("group campaign items need groupCampaignId, groupId and runId")
	}
	if strings.TrimSpace(it.MessageType) == "" {
		it.MessageType = models.MESSAGE_TYPE_TEXT
	}
	it.To = strings.TrimSpace(it.To)
	if key := it.Key(); key != "" {
		it.IdempotencyKey = &key
	} else {
		it.IdempotencyKey = nil
	}
	return nil
}

func toRow(it Item) models.OutboxItem {
	row := models.OutboxItem{
		TenantID:        it.TenantID,
		To:              it.To,
		Message:         it.Message,
		ContactID:       it.ContactID,
		OrderID:         it.OrderID,
		MessageType:     it.MessageType,
		IdempotencyKey:  it.IdempotencyKey,
		IdempotencySlot: it.IdempotencyKey,
		NotBefore:       it.NotBefore,
		Status:          models.OUTBOX_STATUS_PENDING,
		ContextKind:     it.Context.Kind,
		CampaignID:      it.Context.CampaignID,
		GroupCampaignID: it.Context.GroupCampaignID,
		GroupID:         it.Context.GroupID,
		RunID:           it.Context.RunID,
		RetryOf:         it.RetryOf,
	}
	return row
}

func fromRow(row models.OutboxItem) Item {
	return Item{
		ID:             row.ID,
		TenantID:       row.TenantID,
		To:             row.To,
		Message:        row.Message,
		ContactID:      row.ContactID,
		OrderID:        row.OrderID,
		MessageType:    row.MessageType,
		IdempotencyKey: row.IdempotencyKey,
		NotBefore:      row.NotBefore,
		Status:         row.Status,
		Context: Context{
			Kind:            row.ContextKind,
			CampaignID:      row.CampaignID,
			GroupCampaignID: row.GroupCampaignID,
			GroupID:         row.GroupID,
			RunID:           row.RunID,
		},
		LastError: row.LastError,
		RetryOf:   row.RetryOf,
		CreatedAt: row.CreatedAt,
		SentAt:    row.SentAt,
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

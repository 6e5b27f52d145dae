package models

import "time"

/************************************************
/**** MARK: OUTBOX STATUS ****/
/************************************************/
const OUTBOX_STATUS_PENDING = "pending"
const OUTBOX_STATUS_SENT = "sent"
const OUTBOX_STATUS_FAILED = "failed"

/************************************************
/**** MARK: OUTBOX CONTEXT KINDS ****/
/************************************************/
const OUTBOX_KIND_ASSISTANT = "assistant"
const OUTBOX_KIND_SYSTEM = "system"
const OUTBOX_KIND_CAMPAIGN = "campaign"
const OUTBOX_KIND_GROUP_CAMPAIGN = "group_campaign"

const MESSAGE_TYPE_TEXT = "text"

// OutboxItem é uma mensagem de saída aguardando entrega.
// IdempotencySlot guarda a chave enquanto o item está pending/sent e vira NULL
// quando falha, assim o índice único só bloqueia duplicatas vivas.
type OutboxItem struct {
	ID              int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	TenantID        int64      `gorm:"not null;index;unique_index:ux_outbox_idempotency" json:"tenantId"`
	To              string     `gorm:"column:to_address;not null;default:''" json:"to"`
	Message         string     `gorm:"type:text" json:"message"`
	ContactID       *string    `json:"contactId,omitempty"`
	OrderID         *int64     `json:"orderId,omitempty"`
	MessageType     string     `gorm:"not null;default:'text'" json:"messageType"`
	IdempotencyKey  *string    `gorm:"index" json:"idempotencyKey,omitempty"`
	IdempotencySlot *string    `gorm:"unique_index:ux_outbox_idempotency" json:"-"`
	NotBefore       *time.Time `gorm:"index" json:"notBefore,omitempty"`
	Status          string     `gorm:"not null;default:'pending';index" json:"status"`

	ContextKind     string  `gorm:"not null;default:'assistant'" json:"-"`
	CampaignID      *int64  `json:"-"`
	GroupCampaignID *int64  `json:"-"`
	GroupID         *string `json:"-"`
	RunID           *string `gorm:"index" json:"-"`

	ClaimToken *string    `json:"-"`
	ClaimedAt  *time.Time `json:"-"`
	LastError  string     `gorm:"type:text" json:"lastError,omitempty"`
	RetryOf    *int64     `json:"retryOf,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	SentAt     *time.Time `json:"sentAt,omitempty"`
	UpdatedAt  *time.Time `json:"-"`
}

func (OutboxItem) TableName() string {
	return "outbox_items"
}

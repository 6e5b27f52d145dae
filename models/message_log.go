package models

import "time"

// MessageLog guarda o histórico de envios reais (um por mensagem aceita pelo provedor).
type MessageLog struct {
	ID                int64     `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	TenantID          int64     `gorm:"not null;index" json:"tenantId"`
	OutboxID          int64     `gorm:"not null;index" json:"outboxId"`
	To                string    `gorm:"column:to_address;not null" json:"to"`
	RemoteIdentity    string    `gorm:"default:''" json:"remoteIdentity"`
	ProviderMessageID string    `gorm:"index" json:"providerMessageId"`
	Text              string    `gorm:"type:text" json:"text"`
	SentAt            time.Time `json:"sentAt"`
}

package models

import "time"

const AUDIT_KIND_STATE_TRANSITION = "state_transition"
const AUDIT_KIND_DISPATCH_OUTCOME = "dispatch_outcome"

// AuditEvent é append-only: nada no código atualiza ou apaga estas linhas.
type AuditEvent struct {
	ID              int64     `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	TenantID        int64     `gorm:"not null;index:ix_audit_key" json:"tenantId"`
	ChannelInstance string    `gorm:"not null;default:'';index:ix_audit_key" json:"channelInstance"`
	RemoteIdentity  string    `gorm:"not null;index:ix_audit_key" json:"remoteIdentity"`
	Kind            string    `gorm:"not null" json:"kind"`
	FromPhase       string    `gorm:"default:''" json:"fromPhase,omitempty"`
	ToPhase         string    `gorm:"default:''" json:"toPhase,omitempty"`
	Detail          string    `gorm:"type:text" json:"detail,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

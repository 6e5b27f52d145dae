package models

import "time"

/************************************************
/**** MARK: CONVERSATION PHASES ****/
/************************************************/
const PHASE_IDLE = "idle"
const PHASE_ASSIST = "assist"
const PHASE_COLLECTING_ORDER_TYPE = "collecting_order_type"
const PHASE_COLLECTING_ADDRESS = "collecting_address"
const PHASE_COLLECTING_PAYMENT = "collecting_payment"
const PHASE_READY = "ready"
const PHASE_HANDOFF = "handoff"

const ORDER_TYPE_DELIVERY = "delivery"
const ORDER_TYPE_PICKUP = "pickup"

const PAYMENT_METHOD_CASH = "cash"
const PAYMENT_METHOD_PIX = "pix"
const PAYMENT_METHOD_CARD = "card"

const PAYMENT_TIMING_NOW = "antecipado"
const PAYMENT_TIMING_ON_DELIVERY = "na_entrega"

// ConversationState é a linha persistida do estado de uma conversa.
// Uma linha por (tenant_id, channel_instance, remote_identity); nunca apagada, só resetada.
type ConversationState struct {
	ID              int64      `gorm:"primary_key;AUTO_INCREMENT" json:"-"`
	TenantID        int64      `gorm:"not null;unique_index:ux_conversation_key" json:"tenantId"`
	ChannelInstance string     `gorm:"not null;default:'';unique_index:ux_conversation_key" json:"channelInstance"`
	RemoteIdentity  string     `gorm:"not null;unique_index:ux_conversation_key" json:"remoteIdentity"`
	Phase           string     `gorm:"not null;default:'idle'" json:"phase"`
	EnteredAt       time.Time  `json:"enteredAt"`
	LastUserAt      time.Time  `json:"lastUserAt"`
	LastBotAt       *time.Time `json:"lastBotAt,omitempty"`
	HasIntroduced   bool       `gorm:"not null;default:false" json:"hasIntroduced"`
	OrderType       string     `gorm:"default:''" json:"orderType,omitempty"`
	AddressText     string     `gorm:"type:text" json:"addressText,omitempty"`
	Neighborhood    string     `gorm:"default:''" json:"neighborhood,omitempty"`
	PaymentMethod   string     `gorm:"default:''" json:"paymentMethod,omitempty"`
	PaymentTiming   string     `gorm:"default:''" json:"paymentTiming,omitempty"`
	AssistCtaCount  int        `gorm:"not null;default:0" json:"assistCtaCount"`
	LastAssistCtaAt *time.Time `json:"lastAssistCtaAt,omitempty"`
	HandoffActive   bool       `gorm:"not null;default:false" json:"handoffActive"`
	CreatedAt       *time.Time `json:"-"`
	UpdatedAt       *time.Time `json:"-"`
}

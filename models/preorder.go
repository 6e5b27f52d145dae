package models

import "time"

/************************************************
/**** MARK: PREORDER STATUS ****/
/************************************************/
const PREORDER_STATUS_DRAFT = "draft"
const PREORDER_STATUS_AWAITING_HUMAN = "awaiting_human_confirmation"
const PREORDER_STATUS_CONFIRMED = "confirmed"
const PREORDER_STATUS_CANCELLED = "cancelled"
const PREORDER_STATUS_EXPIRED = "expired"

const ACTOR_BOT = "bot"
const ACTOR_HUMAN = "human"
const ACTOR_SYSTEM = "system"

const DELIVERY_MODE_PICKUP = "pickup"
const DELIVERY_MODE_DELIVERY = "delivery"

// Preorder é o rascunho estruturado de pedido.
// Items, histórico e pix_qr ficam em colunas JSON/texto; o pacote preorder
// decodifica e valida esses campos antes de devolvê-los.
type Preorder struct {
	ID              int64      `gorm:"primary_key;AUTO_INCREMENT"`
	TenantID        int64      `gorm:"not null;index"`
	ContactID       string     `gorm:"not null;index"`
	Identifier      string     `gorm:"not null;unique_index"`
	ItemsJSON       string     `gorm:"column:items;type:text"`
	DeliveryMode    string     `gorm:"not null;default:'pickup'"`
	DeliveryFee     int64      `gorm:"not null;default:0"` // centavos
	DeliveryAddress string     `gorm:"type:text"`
	PaymentMode     string     `gorm:"not null;default:'cash'"`
	PixQr           string     `gorm:"type:text"`
	Subtotal        int64      `gorm:"not null;default:0"`
	Total           int64      `gorm:"not null;default:0"`
	Status          string     `gorm:"not null;default:'draft';index"`
	UpdatedBy       string     `gorm:"not null;default:'bot'"`
	ExpiresAt       *time.Time `gorm:"index"`
	HistoryJSON     string     `gorm:"column:history;type:text"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

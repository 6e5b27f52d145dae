package models

import "time"

// Product é mantido pelo cadastro de catálogo (fora deste serviço);
// aqui só é lido para avaliar se o catálogo está pronto para pedidos.
type Product struct {
	ID         int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	TenantID   int64      `gorm:"not null;index" json:"tenant_id"`
	Name       string     `gorm:"default:''" json:"name"`
	PriceCents int64      `gorm:"not null;default:0" json:"price_cents"`
	Active     bool       `gorm:"not null" json:"active"`
	CreatedAt  *time.Time `json:"created_at"`
	UpdatedAt  *time.Time `json:"updated_at"`
}

package models

import "time"

// TenantSettings guarda a configuração do atendimento de um tenant.
// MenuJSON é uma lista [{key,label,action}] validada pelo pacote conversation.
type TenantSettings struct {
	ID                  int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	TenantID            int64      `gorm:"not null;unique_index" json:"tenant_id"`
	BusinessName        string     `gorm:"default:''" json:"business_name"`
	Greeting            string     `gorm:"type:text" json:"greeting"`
	MenuJSON            string     `gorm:"column:menu;type:text" json:"menu"`
	HoursText           string     `gorm:"type:text" json:"hours_text"`
	LocationText        string     `gorm:"type:text" json:"location_text"`
	ProductsText        string     `gorm:"type:text" json:"products_text"`
	AssistCtaText       string     `gorm:"type:text" json:"assist_cta_text"`
	RequireCatalogReady bool       `gorm:"not null" json:"require_catalog_ready"`
	DeliveryFee         int64      `gorm:"not null;default:0" json:"delivery_fee"`
	CreatedAt           *time.Time `json:"created_at"`
	UpdatedAt           *time.Time `json:"updated_at"`
}

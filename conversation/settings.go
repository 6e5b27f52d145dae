package conversation

import (
	"context"
	"encoding/json"
	"strings"

	"balcao/apperrors"
	"balcao/models"

	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
)

// Menu actions.
const (
	ActionHuman         = "human"
	ActionHoursLocation = "hours_location"
	ActionProducts      = "products"
	ActionOrder         = "order"
)

type MenuOption struct {
	Key    string `json:"key"`
	Label  string `json:"label"`
	Action string `json:"action"`
}

// MediaAsset is attached to the "products" reply (menu card, price list...).
type MediaAsset struct {
	Kind    string `json:"kind"`
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

type Settings struct {
	TenantID            int64        `json:"tenantId"`
	BusinessName        string       `json:"businessName"`
	Greeting            string       `json:"greeting"`
	Menu                []MenuOption `json:"menu"`
	HoursText           string       `json:"hoursText"`
	LocationText        string       `json:"locationText"`
	ProductsText        string       `json:"productsText"`
	AssistCtaText       string       `json:"assistCtaText"`
	RequireCatalogReady bool         `json:"requireCatalogReady"`
	DeliveryFee         int64        `json:"deliveryFee"`
}

func DefaultMenu() []MenuOption {
	return []MenuOption{
		{Key: "1", Label: "Fazer um pedido", Action: ActionOrder},
		{Key: "2", Label: "Ver produtos", Action: ActionProducts},
		{Key: "3", Label: "Horário e endereço", Action: ActionHoursLocation},
		{Key: "4", Label: "Falar com um atendente", Action: ActionHuman},
	}
}

func DefaultSettings(tenantID int64) Settings {
	return Settings{TenantID: tenantID, RequireCatalogReady: true}.withDefaults()
}

func (s Settings) withDefaults() Settings {
	if len(s.Menu) == 0 {
		s.Menu = DefaultMenu()
	}
	if strings.TrimSpace(s.Greeting) == "" {
		if s.BusinessName != "" {
			s.Greeting = "Olá! Aqui é o atendimento da " + s.BusinessName + "."
		} else {
			s.Greeting = "Olá! Tudo bem?"
		}
	}
	if strings.TrimSpace(s.AssistCtaText) == "" {
		s.AssistCtaText = "Se quiser fazer um pedido, é só mandar \"quero pedir\"."
	}
	if strings.TrimSpace(s.HoursText) == "" {
		s.HoursText = "Ainda não cadastramos nosso horário por aqui."
	}
	if strings.TrimSpace(s.ProductsText) == "" {
		s.ProductsText = "Nosso cardápio está logo abaixo."
	}
	return s
}

func validAction(a string) bool {
	switch a {
	case ActionHuman, ActionHoursLocation, ActionProducts, ActionOrder:
		return true
	}
	return false
}

// SettingsStore reads and writes the tenant_settings table.
type SettingsStore struct {
	db *gorm.DB
}

func NewSettingsStore(db *gorm.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Get returns the tenant's settings, or the defaults when it has no row.
func (s *SettingsStore) Get(ctx context.Context, tenantID int64) (Settings, error) {
	var row models.TenantSettings
	err := s.db.Where("tenant_id = ?", tenantID).First(&row).Error
	if gorm.IsRecordNotFoundError(err) {
		return DefaultSettings(tenantID), nil
	}
	if err != nil {
		return Settings{}, errors.Wrap(err, "settings: get")
	}
	out := Settings{
		TenantID:            row.TenantID,
		BusinessName:        row.BusinessName,
		Greeting:            row.Greeting,
		HoursText:           row.HoursText,
		LocationText:        row.LocationText,
		ProductsText:        row.ProductsText,
		AssistCtaText:       row.AssistCtaText,
		RequireCatalogReady: row.RequireCatalogReady,
		DeliveryFee:         row.DeliveryFee,
	}
	if strings.TrimSpace(row.MenuJSON) != "" {
		var menu []MenuOption
		if err := json.Unmarshal([]byte(row.MenuJSON), &menu); err != nil {
			return Settings{}, errors.Wrapf(err, "settings: tenant %d menu", tenantID)
		}
		// options with unknown actions are dropped instead of failing the whole menu
		for _, m := range menu {
			m.Key = strings.TrimSpace(m.Key)
			if m.Key != "" && validAction(m.Action) {
				out.Menu = append(out.Menu, m)
			}
		}
	}
	return out.withDefaults(), nil
}

// Put upserts the tenant's settings.
func (s *SettingsStore) Put(ctx context.Context, in Settings) error {
	if in.TenantID <= 0 {
		return apperrors.Validation("tenantId é obrigatório")
	}
	if in.DeliveryFee < 0 {
		return apperrors.Validation("deliveryFee não pode ser negativo")
	}
	for _, m := range in.Menu {
		if strings.TrimSpace(m.Key) == "" || !validAction(m.Action) {
			return apperrors.Validation("opção de menu inválida: " + m.Key)
		}
	}
	menu := ""
	if len(in.Menu) > 0 {
		b, err := json.Marshal(in.Menu)
		if err != nil {
			return errors.Wrap(err, "settings: marshal menu")
		}
		menu = string(b)
	}
	fields := map[string]any{
		"business_name":         in.BusinessName,
		"greeting":              in.Greeting,
		"menu":                  menu,
		"hours_text":            in.HoursText,
		"location_text":         in.LocationText,
		"products_text":         in.ProductsText,
		"assist_cta_text":       in.AssistCtaText,
		"require_catalog_ready": in.RequireCatalogReady,
		"delivery_fee":          in.DeliveryFee,
	}
	var row models.TenantSettings
	err := s.db.Where("tenant_id = ?", in.TenantID).First(&row).Error
	if gorm.IsRecordNotFoundError(err) {
		row = models.TenantSettings{TenantID: in.TenantID}
		if err := s.db.Create(&row).Error; err != nil {
			return errors.Wrap(err, "settings: create")
		}
	} else if err != nil {
		return errors.Wrap(err, "settings: get")
	}
	return errors.Wrap(s.db.Model(&row).Updates(fields).Error, "settings: update")
}

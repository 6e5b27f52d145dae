// Package catalog answers whether a tenant's products are complete enough for
// the bot to take orders on its own. Product CRUD lives elsewhere.
package catalog

import (
	"context"

	"balcao/models"

	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
)

const (
	IssueNoActiveProducts = "no_active_products"
	IssueMissingName      = "missing_name"
	IssueMissingPrice     = "missing_price"
)

type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Count   int    `json:"count"`
}

type Report struct {
	Ready          bool    `json:"ready"`
	ActiveProducts int     `json:"activeProducts"`
	Issues         []Issue `json:"issues"`
}

type Provider struct {
	db *gorm.DB
}

func NewProvider(db *gorm.DB) *Provider {
	return &Provider{db: db}
}

func (p *Provider) Get(ctx context.Context, tenantID int64) (Report, error) {
	base := func() *gorm.DB {
		return p.db.Model(&models.Product{}).Where("tenant_id = ? AND active = ?", tenantID, true)
	}

	var rep Report
	if err := base().Count(&rep.ActiveProducts).Error; err != nil {
		return Report{}, errors.Wrap(err, "catalog: count active")
	}
	rep.Issues = []Issue{}
	if rep.ActiveProducts == 0 {
		rep.Issues = append(rep.Issues, Issue{
			Code:    IssueNoActiveProducts,
			Message: "nenhum produto ativo cadastrado",
		})
		return rep, nil
	}

	var noName, noPrice int
	if err := base().Where("TRIM(name) = '' OR name IS NULL").Count(&noName).Error; err != nil {
		return Report{}, errors.Wrap(err, "catalog: count missing name")
	}
	if err := base().Where("price_cents <= 0").Count(&noPrice).Error; err != nil {
		return Report{}, errors.Wrap(err, "catalog: count missing price")
	}
	if noName > 0 {
		rep.Issues = append(rep.Issues, Issue{Code: IssueMissingName, Message: "produtos sem nome", Count: noName})
	}
	if noPrice > 0 {
		rep.Issues = append(rep.Issues, Issue{Code: IssueMissingPrice, Message: "produtos sem preço", Count: noPrice})
	}
	rep.Ready = len(rep.Issues) == 0
	return rep, nil
}

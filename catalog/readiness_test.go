package catalog

import (
	"context"
	"testing"

	"balcao/db/dbtest"
	"balcao/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	db := dbtest.Open(t)
	p := NewProvider(db)
	ctx := context.Background()

	rep, err := p.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, rep.Ready)
	require.Len(t, rep.Issues, 1)
	assert.Equal(t, IssueNoActiveProducts, rep.Issues[0].Code)

	require.NoError(t, db.Create(&models.Product{TenantID: 1, Name: "Coxinha", PriceCents: 800, Active: true}).Error)
	require.NoError(t, db.Create(&models.Product{TenantID: 1, Name: "", PriceCents: 0, Active: true}).Error)
	require.NoError(t, db.Create(&models.Product{TenantID: 1, Name: "Antigo", PriceCents: 0, Active: false}).Error)

	rep, err = p.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, rep.Ready)
	assert.Equal(t, 2, rep.ActiveProducts)
	assert.ElementsMatch(t, []Issue{
		{Code: IssueMissingName, Message: "produtos sem nome", Count: 1},
		{Code: IssueMissingPrice, Message: "produtos sem preço", Count: 1},
	}, rep.Issues)

	require.NoError(t, db.Model(&models.Product{}).Where("name = ''").Update("active", false).Error)
	rep, err = p.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, rep.Ready)
	assert.Empty(t, rep.Issues)

	// other tenants are not affected
	rep, err = p.Get(ctx, 2)
	require.NoError(t, err)
	assert.False(t, rep.Ready)
}

package conversation

import (
	"context"
	"testing"
	"time"

	"balcao/apperrors"
	"balcao/audit"
	"balcao/db/dbtest"
	"balcao/models"
	"balcao/preorder"

	"github.com/jinzhu/gorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	db        *gorm.DB
	svc       *Service
	preorders *preorder.Store
	trail     *audit.Trail
	now       *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	now := t0
	clock := func() time.Time { return now }

	m := NewMachine(readyCatalog(), MachineOptions{CatalogGate: true}, nil)
	m.now = clock
	pre := preorder.NewStore(db, preorder.Options{TTL: 24 * time.Hour, Now: clock}, nil)
	trail := audit.NewTrail(db, nil)
	svc := NewService(NewStore(db), NewSettingsStore(db), m, pre, trail, nil)
	svc.now = clock
	return &fixture{db: db, svc: svc, preorders: pre, trail: trail, now: &now}
}

func TestHandleInbound_FullIntakeCreatesDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, NewSettingsStore(f.db).Put(ctx, Settings{TenantID: 1, DeliveryFee: 700, RequireCatalogReady: true}))

	var last Result
	for _, text := range []string{"oi", "quero pedir", "delivery", "Rua X, bairro Y", "pix, na entrega"} {
		res, err := f.svc.HandleInbound(ctx, Inbound{Key: testKey, Text: text})
		require.NoError(t, err, text)
		last = res
	}

	assert.Equal(t, models.PHASE_READY, last.NextState.Phase)
	require.NotNil(t, last.Preorder)
	p := last.Preorder
	assert.Equal(t, models.PREORDER_STATUS_DRAFT, p.Status)
	assert.Equal(t, models.ACTOR_BOT, p.UpdatedBy)
	assert.Empty(t, p.Items)
	assert.Equal(t, int64(0), p.Totals.Subtotal)
	assert.Equal(t, int64(700), p.Totals.Total)
	assert.Equal(t, "Rua X, bairro Y", p.Delivery.Address)
	assert.Equal(t, models.PAYMENT_METHOD_PIX, p.Payment.Mode)
	require.NotNil(t, p.ExpiresAt)
	assert.Equal(t, t0.Add(24*time.Hour), *p.ExpiresAt)

	st, err := f.svc.State(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, models.PHASE_READY, st.Phase)
	assert.Equal(t, "Y", st.Neighborhood)
	assert.Equal(t, models.PAYMENT_TIMING_ON_DELIVERY, st.PaymentTiming)

	// ready delegates and does not create a second draft
	res, err := f.svc.HandleInbound(ctx, Inbound{Key: testKey, Text: "2 pães"})
	require.NoError(t, err)
	assert.Nil(t, res.Preorder)
	list, err := f.preorders.ListByTenant(ctx, 1, "", 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	events, err := f.trail.List(ctx, audit.Key{TenantID: 1, RemoteIdentity: testKey.RemoteIdentity}, 0)
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.Equal(t, models.PHASE_READY, events[0].ToPhase)
	assert.Equal(t, models.PHASE_COLLECTING_PAYMENT, events[0].FromPhase)
}

func TestHandleInbound_AuditFailureDoesNotFailDecision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.db.DropTable(&models.AuditEvent{}).Error)

	res, err := f.svc.HandleInbound(ctx, Inbound{Key: testKey, Text: "oi"})
	require.NoError(t, err)
	assert.True(t, res.Transitioned)
	st, err := f.svc.State(ctx, testKey)
	require.NoError(t, err)
	assert.True(t, st.HasIntroduced)
}

func TestHandleInbound_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.HandleInbound(context.Background(), Inbound{Key: Key{TenantID: 1}, Text: "oi"})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
}

func TestResetHandoff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ResetHandoff(ctx, testKey, "operador")
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))

	for _, text := range []string{"oi", "4", "quero pedir"} {
		_, err := f.svc.HandleInbound(ctx, Inbound{Key: testKey, Text: text})
		require.NoError(t, err)
	}
	st, err := f.svc.State(ctx, testKey)
	require.NoError(t, err)
	require.Equal(t, models.PHASE_HANDOFF, st.Phase)

	st, err = f.svc.ResetHandoff(ctx, testKey, "operador")
	require.NoError(t, err)
	assert.Equal(t, models.PHASE_IDLE, st.Phase)
	assert.False(t, st.HandoffActive)
	assert.True(t, st.HasIntroduced)

	res, err := f.svc.HandleInbound(ctx, Inbound{Key: testKey, Text: "quero pedir"})
	require.NoError(t, err)
	assert.Equal(t, models.PHASE_COLLECTING_ORDER_TYPE, res.NextState.Phase)
}

func TestStore_LastWriteWinsAndNormalizes(t *testing.T) {
	db := dbtest.Open(t)
	s := NewStore(db)
	ctx := context.Background()

	_, found, err := s.Get(ctx, testKey)
	require.NoError(t, err)
	assert.False(t, found)

	st := NewState(testKey, t0)
	st.Phase = models.PHASE_ASSIST
	require.NoError(t, s.Set(ctx, st))
	st.Phase = models.PHASE_COLLECTING_ADDRESS
	st.OrderType = models.ORDER_TYPE_DELIVERY
	require.NoError(t, s.Set(ctx, st))

	got, found, err := s.Get(ctx, testKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, models.PHASE_COLLECTING_ADDRESS, got.Phase)
	assert.Equal(t, models.ORDER_TYPE_DELIVERY, got.OrderType)

	var n int
	require.NoError(t, db.Model(&models.ConversationState{}).Count(&n).Error)
	assert.Equal(t, 1, n)

	// a row with an unknown phase is read back as idle
	require.NoError(t, db.Model(&models.ConversationState{}).Update("phase", "bogus").Error)
	got, _, err = s.Get(ctx, testKey)
	require.NoError(t, err)
	assert.Equal(t, models.PHASE_IDLE, got.Phase)
}

func TestSettingsStore(t *testing.T) {
	db := dbtest.Open(t)
	s := NewSettingsStore(db)
	ctx := context.Background()

	def, err := s.Get(ctx, 7)
	require.NoError(t, err)
	assert.True(t, def.RequireCatalogReady)
	assert.Equal(t, DefaultMenu(), def.Menu)

	in := Settings{
		TenantID:     7,
		BusinessName: "Doceria",
		Menu:         []MenuOption{{Key: "1", Label: "Pedir", Action: ActionOrder}},
	}
	require.NoError(t, s.Put(ctx, in))
	got, err := s.Get(ctx, 7)
	require.NoError(t, err)
	assert.False(t, got.RequireCatalogReady)
	assert.Equal(t, in.Menu, got.Menu)
	assert.Contains(t, got.Greeting, "Doceria")

	in.Menu = append(in.Menu, MenuOption{Key: "2", Action: "dance"})
	assert.True(t, apperrors.Is(s.Put(ctx, in), apperrors.CodeValidation))
}

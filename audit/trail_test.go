package audit

import (
	"context"
	"testing"
	"time"

	"balcao/db/dbtest"
	"balcao/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrail_AppendAndList(t *testing.T) {
	gdb := dbtest.Open(t)
	trail := NewTrail(gdb, nil)
	ctx := context.Background()
	key := Key{TenantID: 7, ChannelInstance: "pn-1", RemoteIdentity: "5511999990000"}

	trail.Append(ctx, Entry{Key: key, Kind: models.AUDIT_KIND_STATE_TRANSITION, FromPhase: "idle", ToPhase: "assist"})
	trail.Append(ctx, Entry{
		Key:    key,
		Kind:   models.AUDIT_KIND_DISPATCH_OUTCOME,
		Detail: map[string]any{"outbox_id": 3, "status": "sent"},
	})
	trail.Append(ctx, Entry{Key: Key{TenantID: 8, RemoteIdentity: key.RemoteIdentity}, Kind: "state_transition"})

	events, err := trail.List(ctx, key, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.AUDIT_KIND_DISPATCH_OUTCOME, events[0].Kind)
	assert.JSONEq(t, `{"outbox_id":3,"status":"sent"}`, events[0].Detail)
	assert.Equal(t, "assist", events[1].ToPhase)

	// channel-less lookups see every channel of the pair
	events, err = trail.List(ctx, Key{TenantID: 7, RemoteIdentity: key.RemoteIdentity}, 10)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestTrail_AppendSwallowsFailures(t *testing.T) {
	gdb := dbtest.Open(t)
	trail := NewTrail(gdb, nil)
	trail.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	require.NoError(t, gdb.Close())

	assert.NotPanics(t, func() {
		trail.Append(context.Background(), Entry{Key: Key{TenantID: 1, RemoteIdentity: "x"}, Kind: "state_transition"})
	})

	var nilTrail *Trail
	assert.NotPanics(t, func() {
		nilTrail.Append(context.Background(), Entry{Kind: "state_transition"})
	})
}

func TestTrail_ChannelFilterKeepsChannelLessEvents(t *testing.T) {
	gdb := dbtest.Open(t)
	trail := NewTrail(gdb, nil)
	ctx := context.Background()
	remote := "5511999990000"

	trail.Append(ctx, Entry{Key: Key{TenantID: 1, ChannelInstance: "pn-1", RemoteIdentity: remote}, Kind: models.AUDIT_KIND_STATE_TRANSITION})
	trail.Append(ctx, Entry{Key: Key{TenantID: 1, ChannelInstance: "pn-2", RemoteIdentity: remote}, Kind: models.AUDIT_KIND_STATE_TRANSITION})
	trail.Append(ctx, Entry{Key: Key{TenantID: 1, RemoteIdentity: remote}, Kind: models.AUDIT_KIND_DISPATCH_OUTCOME})

	events, err := trail.List(ctx, Key{TenantID: 1, ChannelInstance: "pn-1", RemoteIdentity: remote}, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.AUDIT_KIND_DISPATCH_OUTCOME, events[0].Kind)
	assert.Equal(t, "pn-1", events[1].ChannelInstance)
}

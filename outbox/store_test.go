package outbox

import (
	"context"
	"testing"
	"time"

	"balcao/apperrors"
	"balcao/db/dbtest"
	"balcao/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 4, 13, 0, 0, 0, time.UTC)

func newStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	now := t0
	s := NewStore(dbtest.Open(t), time.Minute)
	s.now = func() time.Time { return now }
	return s, &now
}

func strp(s string) *string { return &s }

func TestEnqueue_DedupesOnIdempotencyKey(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	item := Item{TenantID: 1, To: "5511999990000", Message: "oi", IdempotencyKey: strp("event:10")}
	id1, err := s.Enqueue(ctx, item)
	require.NoError(t, err)
	id2, err := s.Enqueue(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	// same key, other tenant: independent
	other := item
	other.TenantID = 2
	id3, err := s.Enqueue(ctx, other)
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)

	pending, err := s.List(ctx, 1, models.OUTBOX_STATUS_PENDING, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
	assert.Equal(t, models.OUTBOX_KIND_ASSISTANT, pending[0].Context.Kind)
	assert.Equal(t, models.MESSAGE_TYPE_TEXT, pending[0].MessageType)
}

func TestEnqueue_KeyHeldBySentItem(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	item := Item{TenantID: 1, To: "5511", Message: "oi", IdempotencyKey: strp("k")}

	id, err := s.Enqueue(ctx, item)
	require.NoError(t, err)
	ok, err := s.Claim(ctx, id, "tok")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.MarkResult(ctx, id, "tok", Result{Status: models.OUTBOX_STATUS_SENT}))

	again, err := s.Enqueue(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestEnqueue_Validation(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, Item{To: "1", Message: "x"})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	_, err = s.Enqueue(ctx, Item{TenantID: 1, Context: Context{Kind: "broadcast"}})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))

	_, err = s.Enqueue(ctx, Item{TenantID: 1, Context: Context{Kind: models.OUTBOX_KIND_CAMPAIGN}})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
}

func TestListDue_RespectsNotBeforeAndOrder(t *testing.T) {
	s, now := newStore(t)
	ctx := context.Background()

	later := t0.Add(time.Hour)
	idLater, err := s.Enqueue(ctx, Item{TenantID: 1, To: "a", Message: "later", NotBefore: &later})
	require.NoError(t, err)
	idA, err := s.Enqueue(ctx, Item{TenantID: 1, To: "a", Message: "first"})
	require.NoError(t, err)
	past := t0.Add(-time.Minute)
	idB, err := s.Enqueue(ctx, Item{TenantID: 2, To: "b", Message: "second", NotBefore: &past})
	require.NoError(t, err)

	due, err := s.ListDue(ctx, nil, 10)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, idA, due[0].ID)
	assert.Equal(t, idB, due[1].ID)

	tenant := int64(2)
	due, err = s.ListDue(ctx, &tenant, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	*now = t0.Add(2 * time.Hour)
	due, err = s.ListDue(ctx, nil, 10)
	require.NoError(t, err)
	assert.Len(t, due, 3)
	assert.Equal(t, idLater, due[0].ID)
}

func TestClaim_IsExclusiveUntilLeaseExpires(t *testing.T) {
	s, now := newStore(t)
	ctx := context.Background()
	id, err := s.Enqueue(ctx, Item{TenantID: 1, To: "a", Message: "m"})
	require.NoError(t, err)

	ok, err := s.Claim(ctx, id, "r1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Claim(ctx, id, "r2")
	require.NoError(t, err)
	assert.False(t, ok)

	due, err := s.ListDue(ctx, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, due, "claimed item must not be listed")

	// r1 crashed: after the lease the item is still pending and claimable
	*now = t0.Add(2 * time.Minute)
	due, err = s.ListDue(ctx, nil, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, models.OUTBOX_STATUS_PENDING, due[0].Status)

	ok, err = s.Claim(ctx, id, "r2")
	require.NoError(t, err)
	assert.True(t, ok)

	// the stale holder can no longer report
	err = s.MarkResult(ctx, id, "r1", Result{Status: models.OUTBOX_STATUS_SENT})
	assert.True(t, apperrors.Is(err, apperrors.CodeConflict))
	require.NoError(t, s.MarkResult(ctx, id, "r2", Result{Status: models.OUTBOX_STATUS_SENT}))
}

func TestMarkResult_NeverLeavesTerminalStatus(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	id, err := s.Enqueue(ctx, Item{TenantID: 1, To: "a", Message: "m", IdempotencyKey: strp("k1")})
	require.NoError(t, err)

	ok, err := s.Claim(ctx, id, "tok")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.MarkResult(ctx, id, "tok", Result{Status: models.OUTBOX_STATUS_FAILED, Error: "boom"}))

	err = s.MarkResult(ctx, id, "tok", Result{Status: models.OUTBOX_STATUS_SENT})
	assert.True(t, apperrors.Is(err, apperrors.CodeConflict))

	ok, err = s.Claim(ctx, id, "tok2")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.OUTBOX_STATUS_FAILED, got.Status)
	assert.Equal(t, "boom", got.LastError)

	err = s.MarkResult(ctx, id, "tok", Result{Status: "pending"})
	assert.True(t, apperrors.Is(err, apperrors.CodeValidation))
}

func TestRequeue(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	id, err := s.Enqueue(ctx, Item{TenantID: 1, To: "a", Message: "m", IdempotencyKey: strp("k1")})
	require.NoError(t, err)

	_, err = s.Requeue(ctx, id, nil)
	assert.True(t, apperrors.Is(err, apperrors.CodeConflict), "pending items cannot be requeued")

	ok, err := s.Claim(ctx, id, "tok")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, s.MarkResult(ctx, id, "tok", Result{Status: models.OUTBOX_STATUS_FAILED, Error: "down"}))

	retryID, err := s.Requeue(ctx, id, nil)
	require.NoError(t, err)
	assert.NotEqual(t, id, retryID)

	again, err := s.Requeue(ctx, id, nil)
	require.NoError(t, err)
	assert.Equal(t, retryID, again)

	retry, err := s.Get(ctx, retryID)
	require.NoError(t, err)
	assert.Equal(t, models.OUTBOX_STATUS_PENDING, retry.Status)
	require.NotNil(t, retry.RetryOf)
	assert.Equal(t, id, *retry.RetryOf)

	orig, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.OUTBOX_STATUS_FAILED, orig.Status)

	_, err = s.Get(ctx, 999)
	assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
}

func TestRelease(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	id, err := s.Enqueue(ctx, Item{TenantID: 1, To: "a", Message: "m"})
	require.NoError(t, err)

	ok, err := s.Claim(ctx, id, "r1")
	require.NoError(t, err)
	require.True(t, ok)

	// wrong token is a no-op
	require.NoError(t, s.Release(ctx, id, "other"))
	due, err := s.ListDue(ctx, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	require.NoError(t, s.Release(ctx, id, "r1"))
	due, err = s.ListDue(ctx, nil, 10)
	require.NoError(t, err)
	assert.Len(t, due, 1)
}

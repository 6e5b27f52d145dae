package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"balcao/audit"
	"balcao/config"
	"balcao/db/dbtest"
	"balcao/models"
	"balcao/outbox"
	"balcao/pacing"
	"balcao/tools"

	"github.com/jinzhu/gorm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	mu    sync.Mutex
	calls []string
	fail  func(to string) error
}

func (f *fakeProvider) SendText(ctx context.Context, creds tools.Credentials, to, text string) (tools.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, to)
	if f.fail != nil {
		if err := f.fail(to); err != nil {
			return tools.SendResult{}, err
		}
	}
	return tools.SendResult{
		ProviderMessageID: "wamid." + to,
		RemoteIdentity:    to,
		Timestamp:         time.Date(2026, 5, 4, 13, 0, 0, 0, time.UTC),
	}, nil
}

type harness struct {
	db       *gorm.DB
	outbox   *outbox.Store
	provider *fakeProvider
	runner   *Runner
	sched    *Scheduler
	sleeps   []time.Duration
	clock    time.Time
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	db := dbtest.Open(t)
	pol, err := pacing.New(config.Pacing{Profiles: config.DefaultProfiles()})
	require.NoError(t, err)

	h := &harness{db: db, outbox: outbox.NewStore(db, time.Minute), provider: &fakeProvider{}}
	h.runner = NewRunner(h.outbox, NewLedger(db), h.provider, pol, audit.NewTrail(db, nil), cfg, nil)
	// sleeping moves the runner's clock, sends themselves take no time
	h.clock = time.Date(2020, 1, 6, 12, 0, 0, 0, time.UTC)
	h.runner.now = func() time.Time { return h.clock }
	h.runner.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		h.clock = h.clock.Add(d)
		return nil
	}
	h.sched = NewScheduler(db, h.outbox, pol, nil)
	// schedules start in the past so every item is due right away
	h.sched.now = func() time.Time { return time.Date(2020, 1, 6, 10, 0, 0, 0, time.UTC) }
	return h
}

func (h *harness) withCredentials(t *testing.T, tenantID int64) {
	t.Helper()
	require.NoError(t, h.db.Create(&models.WhatsAppConfig{
		TenantID: tenantID, PhoneNumberID: "pn-1", AccessToken: "tok", ApiVersion: "v24.0",
	}).Error)
}

func (h *harness) enqueue(t *testing.T, it outbox.Item) int64 {
	t.Helper()
	id, err := h.outbox.Enqueue(context.Background(), it)
	require.NoError(t, err)
	return id
}

func (h *harness) status(t *testing.T, id int64) outbox.Item {
	t.Helper()
	it, err := h.outbox.Get(context.Background(), id)
	require.NoError(t, err)
	return it
}

func TestRunBatch_LiveSendNeverResends(t *testing.T) {
	h := newHarness(t, Config{})
	h.withCredentials(t, 1)
	ctx := context.Background()

	var ids []int64
	for _, to := range []string{"5511900000001", "5511900000002", "5511900000003"} {
		ids = append(ids, h.enqueue(t, outbox.Item{TenantID: 1, To: to, Message: "oi"}))
	}

	res, err := h.runner.RunBatch(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Processed)
	assert.Equal(t, 3, res.Sent)
	assert.Equal(t, "wamid.5511900000001", res.Items[0].ProviderMessageID)
	assert.Len(t, h.provider.calls, 3)

	// conversation profile: 1-3s between sends, none before the first
	require.Len(t, h.sleeps, 2)
	for _, d := range h.sleeps {
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 3*time.Second)
	}

	for _, id := range ids {
		it := h.status(t, id)
		assert.Equal(t, models.OUTBOX_STATUS_SENT, it.Status)
		assert.NotNil(t, it.SentAt)
	}
	var logs []models.MessageLog
	require.NoError(t, h.db.Order("id asc").Find(&logs).Error)
	require.Len(t, logs, 3)
	assert.Equal(t, "wamid.5511900000002", logs[1].ProviderMessageID)

	res, err = h.runner.RunBatch(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Len(t, h.provider.calls, 3)
}

func TestRunBatch_TenantAndLimit(t *testing.T) {
	h := newHarness(t, Config{BatchLimit: 2})
	h.withCredentials(t, 1)
	h.withCredentials(t, 2)
	for i := 0; i < 3; i++ {
		h.enqueue(t, outbox.Item{TenantID: 1, To: "551190000000" + string(rune('1'+i)), Message: "m"})
	}
	h.enqueue(t, outbox.Item{TenantID: 2, To: "5521900000001", Message: "m"})

	tenant := int64(2)
	res, err := h.runner.RunBatch(context.Background(), Options{TenantID: &tenant})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Sent)
	assert.Equal(t, []string{"5521900000001"}, h.provider.calls)

	res, err = h.runner.RunBatch(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
}

func TestRunBatch_DryRunSimulatesCampaign(t *testing.T) {
	h := newHarness(t, Config{DryRun: true})
	ctx := context.Background()

	sum, err := h.sched.ScheduleCampaignRun(ctx, CampaignRun{
		TenantID: 1, CampaignID: 7, Message: "Promoção!",
		Recipients: []Recipient{{ContactID: "c1", To: "5511900000001"}, {ContactID: "c2", To: "5511900000002"}},
	})
	require.NoError(t, err)

	res, err := h.runner.RunBatch(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, OutcomeSimulated, res.Items[0].Outcome)
	assert.Empty(t, h.provider.calls)
	assert.Empty(t, h.sleeps)

	items, err := NewLedger(h.db).ListRunItems(ctx, sum.RunID)
	require.NoError(t, err)
	require.Len(t, items.Campaign, 2)
	for _, ri := range items.Campaign {
		assert.Equal(t, models.RUN_ITEM_STATUS_SIMULATED, ri.Status)
		assert.Equal(t, 0, ri.Attempts)
	}
	for _, id := range sum.OutboxIDs {
		assert.Equal(t, models.OUTBOX_STATUS_SENT, h.status(t, id).Status)
	}
}

func TestRunBatch_LiveCampaignMatchesDryRunTransitions(t *testing.T) {
	h := newHarness(t, Config{})
	h.withCredentials(t, 1)
	ctx := context.Background()

	sum, err := h.sched.ScheduleGroupCampaignRun(ctx, GroupCampaignRun{
		TenantID: 1, GroupCampaignID: 3, Message: "Aviso",
		Groups: []GroupRecipient{{GroupID: "g1@g.us"}, {GroupID: "g2@g.us"}},
	})
	require.NoError(t, err)

	res, err := h.runner.RunBatch(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Sent)
	assert.Equal(t, []string{"g1@g.us", "g2@g.us"}, h.provider.calls)
	// campaign profile between the two sends
	require.Len(t, h.sleeps, 1)
	assert.GreaterOrEqual(t, h.sleeps[0], 20*time.Second)

	items, err := NewLedger(h.db).ListRunItems(ctx, sum.RunID)
	require.NoError(t, err)
	require.Len(t, items.Group, 2)
	for _, ri := range items.Group {
		assert.Equal(t, models.RUN_ITEM_STATUS_SENT, ri.Status)
		assert.Equal(t, 1, ri.Attempts)
		assert.NotNil(t, ri.SentAt)
	}
}

func TestRunBatch_MissingCredentials(t *testing.T) {
	h := newHarness(t, Config{})
	id := h.enqueue(t, outbox.Item{TenantID: 1, To: "5511900000001", Message: "oi"})

	res, err := h.runner.RunBatch(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, h.provider.calls)

	it := h.status(t, id)
	assert.Equal(t, models.OUTBOX_STATUS_FAILED, it.Status)
	assert.Contains(t, it.LastError, "credenciais")
}

func TestRunBatch_TransportErrorIsTruncatedAndCounted(t *testing.T) {
	h := newHarness(t, Config{})
	h.withCredentials(t, 1)
	h.provider.fail = func(string) error { return errors.New(strings.Repeat("é", 2000)) }
	ctx := context.Background()

	sum, err := h.sched.ScheduleCampaignRun(ctx, CampaignRun{
		TenantID: 1, CampaignID: 9, Message: "m",
		Recipients: []Recipient{{ContactID: "c1", To: "5511900000001"}},
	})
	require.NoError(t, err)

	res, err := h.runner.RunBatch(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)

	it := h.status(t, sum.OutboxIDs[0])
	assert.Equal(t, models.OUTBOX_STATUS_FAILED, it.Status)
	assert.Equal(t, 500, utf8.RuneCountInString(it.LastError))
	assert.True(t, strings.HasPrefix(it.LastError, "transport: "))

	items, err := NewLedger(h.db).ListRunItems(ctx, sum.RunID)
	require.NoError(t, err)
	require.Len(t, items.Campaign, 1)
	assert.Equal(t, models.RUN_ITEM_STATUS_FAILED, items.Campaign[0].Status)
	assert.Equal(t, 1, items.Campaign[0].Attempts)
	assert.Equal(t, it.LastError, items.Campaign[0].LastError)

	// failed items are not retried automatically
	res, err = h.runner.RunBatch(ctx, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
}

func TestRunBatch_BreakerCoolsDown(t *testing.T) {
	h := newHarness(t, Config{FailureThreshold: 2, Cooldown: time.Minute})
	h.withCredentials(t, 1)
	h.provider.fail = func(string) error { return errors.New("503") }
	for i := 0; i < 5; i++ {
		h.enqueue(t, outbox.Item{TenantID: 1, To: "5511900000001", Message: "m"})
	}

	res, err := h.runner.RunBatch(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Failed)

	cooldowns := 0
	for _, d := range h.sleeps {
		if d == time.Minute {
			cooldowns++
		}
	}
	assert.Equal(t, 2, cooldowns)
	// a cooldown already spaces the send after it, so that one gets no pacing sleep
	assert.Len(t, h.sleeps, 2+2)
}

func TestRunBatch_SkipsInvalidItems(t *testing.T) {
	h := newHarness(t, Config{})
	h.withCredentials(t, 1)
	id := h.enqueue(t, outbox.Item{TenantID: 1, To: "5511900000001"})

	res, err := h.runner.RunBatch(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, OutcomeSkipped, res.Items[0].Outcome)
	assert.Empty(t, h.provider.calls)
	assert.Equal(t, models.OUTBOX_STATUS_FAILED, h.status(t, id).Status)
}

func TestRunBatch_ItemClaimedElsewhereIsLeftAlone(t *testing.T) {
	h := newHarness(t, Config{})
	h.withCredentials(t, 1)
	id := h.enqueue(t, outbox.Item{TenantID: 1, To: "5511900000001", Message: "m"})

	// another runner lists the same candidate and claims it between our list and claim
	h.runner.outbox = racingOutbox{Store: h.outbox}
	res, err := h.runner.RunBatch(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)
	assert.Empty(t, h.provider.calls)
	assert.Equal(t, models.OUTBOX_STATUS_PENDING, h.status(t, id).Status)
}

type racingOutbox struct {
	*outbox.Store
}

func (r racingOutbox) Claim(ctx context.Context, id int64, token string) (bool, error) {
	if _, err := r.Store.Claim(ctx, id, "other-runner"); err != nil {
		return false, err
	}
	return r.Store.Claim(ctx, id, token)
}

func TestRunBatch_StopsWhenCancelledDuringPacing(t *testing.T) {
	h := newHarness(t, Config{})
	h.withCredentials(t, 1)
	first := h.enqueue(t, outbox.Item{TenantID: 1, To: "5511900000001", Message: "m"})
	second := h.enqueue(t, outbox.Item{TenantID: 1, To: "5511900000002", Message: "m"})
	h.runner.sleep = func(ctx context.Context, d time.Duration) error { return context.Canceled }

	res, err := h.runner.RunBatch(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, models.OUTBOX_STATUS_SENT, h.status(t, first).Status)

	// the second item was released and is due again
	assert.Equal(t, models.OUTBOX_STATUS_PENDING, h.status(t, second).Status)
	due, err := h.outbox.ListDue(context.Background(), nil, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, second, due[0].ID)
}

func TestRunBatch_PacingCarriesAcrossBatches(t *testing.T) {
	h := newHarness(t, Config{})
	h.withCredentials(t, 1)
	ctx := context.Background()

	h.enqueue(t, outbox.Item{TenantID: 1, To: "5511900000001", Message: "m"})
	_, err := h.runner.RunBatch(ctx, Options{})
	require.NoError(t, err)
	assert.Empty(t, h.sleeps)

	// a new batch right after still waits the conversation gap
	h.enqueue(t, outbox.Item{TenantID: 1, To: "5511900000002", Message: "m"})
	_, err = h.runner.RunBatch(ctx, Options{})
	require.NoError(t, err)
	require.Len(t, h.sleeps, 1)
	assert.GreaterOrEqual(t, h.sleeps[0], time.Second)
	assert.LessOrEqual(t, h.sleeps[0], 3*time.Second)

	// enough idle time has passed: no wait
	h.clock = h.clock.Add(10 * time.Second)
	h.enqueue(t, outbox.Item{TenantID: 1, To: "5511900000003", Message: "m"})
	_, err = h.runner.RunBatch(ctx, Options{})
	require.NoError(t, err)
	assert.Len(t, h.sleeps, 1)
	assert.Len(t, h.provider.calls, 3)
}

func TestRunBatch_LongPauseAcrossOneItemBatches(t *testing.T) {
	h := newHarness(t, Config{})
	h.withCredentials(t, 1)
	ctx := context.Background()

	var recipients []Recipient
	for i := 0; i < 11; i++ {
		recipients = append(recipients, Recipient{ContactID: fmt.Sprintf("c%d", i), To: fmt.Sprintf("55119000000%02d", i)})
	}
	_, err := h.sched.ScheduleCampaignRun(ctx, CampaignRun{TenantID: 1, CampaignID: 9, Message: "Promoção!", Recipients: recipients})
	require.NoError(t, err)

	for i := 0; i < 11; i++ {
		res, err := h.runner.RunBatch(ctx, Options{Limit: 1})
		require.NoError(t, err)
		require.Equal(t, 1, res.Sent)
	}

	// campaign profile: long pause on top of the regular gap every 10 sends
	require.Len(t, h.sleeps, 10)
	for _, d := range h.sleeps[:9] {
		assert.GreaterOrEqual(t, d, 20*time.Second)
		assert.LessOrEqual(t, d, 45*time.Second)
	}
	assert.GreaterOrEqual(t, h.sleeps[9], 140*time.Second)
}

func TestProfileFor(t *testing.T) {
	assert.Equal(t, config.ProfileConversation, ProfileFor(models.OUTBOX_KIND_ASSISTANT))
	assert.Equal(t, config.ProfileConversation, ProfileFor(models.OUTBOX_KIND_SYSTEM))
	assert.Equal(t, config.ProfileCampaign, ProfileFor(models.OUTBOX_KIND_CAMPAIGN))
	assert.Equal(t, config.ProfileCampaign, ProfileFor(models.OUTBOX_KIND_GROUP_CAMPAIGN))
}

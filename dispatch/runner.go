// Package dispatch drains the outbox: it claims due items, paces real sends,
// calls the delivery provider and reconciles each outcome into the message log,
// the campaign run ledgers and the audit trail.
package dispatch

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"balcao/apperrors"
	"balcao/audit"
	"balcao/config"
	"balcao/metrics"
	"balcao/models"
	"balcao/outbox"
	"balcao/pacing"
	"balcao/tools"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type Outbox interface {
	ListDue(ctx context.Context, tenantID *int64, limit int) ([]outbox.Item, error)
	Claim(ctx context.Context, id int64, token string) (bool, error)
	MarkResult(ctx context.Context, id int64, token string, r outbox.Result) error
	Release(ctx context.Context, id int64, token string) error
}

type Provider interface {
	SendText(ctx context.Context, creds tools.Credentials, to, text string) (tools.SendResult, error)
}

type RunLedger interface {
	Credentials(ctx context.Context, tenantID int64) (tools.Credentials, error)
	LogMessage(ctx context.Context, it outbox.Item, res tools.SendResult) error
	RecordRunItem(ctx context.Context, it outbox.Item, status, errText string, at time.Time) error
}

type Config struct {
	BatchLimit       int
	DryRun           bool
	FailureThreshold int
	Cooldown         time.Duration
	MaxErrorLength   int
}

func ConfigFrom(c config.Dispatch) Config {
	return Config{
		BatchLimit:       c.BatchLimit,
		DryRun:           c.DryRun,
		FailureThreshold: c.FailureThreshold,
		Cooldown:         time.Duration(c.CooldownSeconds) * time.Second,
		MaxErrorLength:   c.MaxErrorLength,
	}
}

// Options of one batch; zero values fall back to Config.
type Options struct {
	TenantID *int64 `json:"tenantId,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	DryRun   *bool  `json:"dryRun,omitempty"`
}

// Item outcomes.
const (
	OutcomeSent      = "sent"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeSimulated = "simulated"
)

type ItemOutcome struct {
	ID                int64  `json:"id"`
	To                string `json:"to"`
	Outcome           string `json:"outcome"`
	Error             string `json:"error,omitempty"`
	ProviderMessageID string `json:"providerMessageId,omitempty"`
}

type BatchResult struct {
	Processed int           `json:"processed"`
	Sent      int           `json:"sent"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Items     []ItemOutcome `json:"items"`
}

type Runner struct {
	outbox   Outbox
	ledger   RunLedger
	provider Provider
	pacing   *pacing.Policy
	trail    *audit.Trail
	cfg      Config
	log      logrus.FieldLogger

	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
	newToken func() string

	mu      sync.Mutex
	cadence map[string]*cadence // per pacing profile, kept across batches
}

func NewRunner(ob Outbox, ledger RunLedger, provider Provider, pol *pacing.Policy, trail *audit.Trail, cfg Config, log logrus.FieldLogger) *Runner {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 25
	}
	if cfg.MaxErrorLength <= 0 {
		cfg.MaxErrorLength = 500
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{
		outbox:   ob,
		ledger:   ledger,
		provider: provider,
		pacing:   pol,
		trail:    trail,
		cfg:      cfg,
		log:      log.WithField("component", "dispatch"),
		now:      time.Now,
		sleep:    sleepCtx,
		cadence:  map[string]*cadence{},
		newToken: uuid.NewString,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ProfileFor maps an item's context kind to its pacing profile.
func ProfileFor(kind string) string {
	switch kind {
	case models.OUTBOX_KIND_CAMPAIGN, models.OUTBOX_KIND_GROUP_CAMPAIGN:
		return config.ProfileCampaign
	}
	return config.ProfileConversation
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// cadence is what a pacing profile has sent so far.
type cadence struct {
	sends int
	last  time.Time
}

// paceDelay is how long to wait before the next live send on prof: the
// profile's next delay minus the time already gone since its last send.
// The first send a Runner ever makes on a profile goes out at once.
func (r *Runner) paceDelay(prof pacing.Profile) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.cadence[prof.Name]
	if c == nil || c.sends == 0 {
		return 0
	}
	return r.pacing.NextDelay(prof, c.sends) - r.now().Sub(c.last)
}

func (r *Runner) recordSend(prof pacing.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.cadence[prof.Name]
	if c == nil {
		c = &cadence{}
		r.cadence[prof.Name] = c
	}
	c.sends++
	c.last = r.now()
}

// RunBatch processes at most one batch of due items and returns what happened
// to each. Items another runner claimed first are left alone and not counted.
// Only a failure to list the batch is returned as an error. Pacing spans
// batches: the send count behind long pauses and the gap since the last send
// carry over from one batch to the next.
func (r *Runner) RunBatch(ctx context.Context, opts Options) (BatchResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = r.cfg.BatchLimit
	}
	dryRun := r.cfg.DryRun
	if opts.DryRun != nil {
		dryRun = *opts.DryRun
	}

	res := BatchResult{Items: []ItemOutcome{}}
	items, err := r.outbox.ListDue(ctx, opts.TenantID, limit)
	if err != nil {
		return res, err
	}

	br := &breaker{threshold: r.cfg.FailureThreshold, cooldown: r.cfg.Cooldown}

	for _, it := range items {
		if ctx.Err() != nil {
			break
		}
		token := r.newToken()
		ok, err := r.outbox.Claim(ctx, it.ID, token)
		if err != nil {
			r.log.WithError(err).WithField("outbox_id", it.ID).Warn("dispatch: claim failed")
			continue
		}
		if !ok {
			continue
		}
		log := r.log.WithFields(logrus.Fields{"outbox_id": it.ID, "tenant_id": it.TenantID, "kind": it.Context.Kind})
		res.Processed++

		if it.To == "" || it.Message == "" {
			msg := apperrors.Validation("item sem destinatário ou mensagem").Error()
			r.finish(ctx, log, it, token, outbox.Result{Status: models.OUTBOX_STATUS_FAILED, Error: msg}, models.RUN_ITEM_STATUS_FAILED)
			res.Skipped++
			res.Items = append(res.Items, ItemOutcome{ID: it.ID, To: it.To, Outcome: OutcomeSkipped, Error: msg})
			continue
		}

		if dryRun {
			r.finish(ctx, log, it, token, outbox.Result{Status: models.OUTBOX_STATUS_SENT}, models.RUN_ITEM_STATUS_SIMULATED)
			res.Sent++
			res.Items = append(res.Items, ItemOutcome{ID: it.ID, To: it.To, Outcome: OutcomeSimulated})
			continue
		}

		creds, err := r.ledger.Credentials(ctx, it.TenantID)
		if err == nil && !creds.Valid() {
			err = apperrors.Configuration("credenciais do WhatsApp não configuradas para o tenant")
		}
		if err != nil {
			msg := truncate(err.Error(), r.cfg.MaxErrorLength)
			r.finish(ctx, log, it, token, outbox.Result{Status: models.OUTBOX_STATUS_FAILED, Error: msg}, models.RUN_ITEM_STATUS_FAILED)
			res.Failed++
			res.Items = append(res.Items, ItemOutcome{ID: it.ID, To: it.To, Outcome: OutcomeFailed, Error: msg})
			continue
		}

		prof := r.pacing.Profile(ProfileFor(it.Context.Kind))
		if wait := r.paceDelay(prof); wait > 0 {
			if err := r.sleep(ctx, wait); err != nil {
				if rerr := r.outbox.Release(context.Background(), it.ID, token); rerr != nil {
					log.WithError(rerr).Warn("dispatch: release failed")
				}
				res.Processed--
				break
			}
		}
		r.recordSend(prof)

		sent, err := r.provider.SendText(ctx, creds, it.To, it.Message)
		if err != nil {
			if apperrors.CodeOf(err) == apperrors.CodeInternal {
				err = apperrors.Transport(err)
			}
			msg := truncate(err.Error(), r.cfg.MaxErrorLength)
			log.WithError(err).Warn("dispatch: send failed")
			r.finish(ctx, log, it, token, outbox.Result{Status: models.OUTBOX_STATUS_FAILED, Error: msg}, models.RUN_ITEM_STATUS_FAILED)
			res.Failed++
			res.Items = append(res.Items, ItemOutcome{ID: it.ID, To: it.To, Outcome: OutcomeFailed, Error: msg})

			if apperrors.Is(err, apperrors.CodeTransport) && br.failure() {
				metrics.RecordBreakerTrip()
				log.WithField("cooldown", br.cooldown.String()).Warn("dispatch: too many consecutive failures, pausing")
				if err := r.sleep(ctx, br.cooldown); err != nil {
					break
				}
			}
			continue
		}
		br.success()

		if err := r.ledger.LogMessage(ctx, it, sent); err != nil {
			log.WithError(err).Warn("dispatch: message log failed")
		}
		r.finish(ctx, log, it, token, outbox.Result{Status: models.OUTBOX_STATUS_SENT, At: sent.Timestamp}, models.RUN_ITEM_STATUS_SENT)
		res.Sent++
		res.Items = append(res.Items, ItemOutcome{ID: it.ID, To: it.To, Outcome: OutcomeSent, ProviderMessageID: sent.ProviderMessageID})
	}

	if res.Processed > 0 {
		r.log.WithFields(logrus.Fields{
			"processed": res.Processed,
			"sent":      res.Sent,
			"failed":    res.Failed,
			"skipped":   res.Skipped,
			"dry_run":   dryRun,
		}).Info("dispatch: batch done")
	}
	return res, nil
}

// finish records the outcome of a claimed item everywhere it is tracked.
func (r *Runner) finish(ctx context.Context, log logrus.FieldLogger, it outbox.Item, token string, result outbox.Result, runStatus string) {
	now := r.now().UTC()
	if result.At.IsZero() {
		result.At = now
	}
	if err := r.outbox.MarkResult(ctx, it.ID, token, result); err != nil {
		// the lease expired and someone else owns the item now
		log.WithError(err).Error("dispatch: mark result failed")
		return
	}
	if err := r.ledger.RecordRunItem(ctx, it, runStatus, result.Error, result.At); err != nil {
		log.WithError(err).Warn("dispatch: run item update failed")
	}

	outcome := runStatus
	if runStatus == models.RUN_ITEM_STATUS_FAILED && result.Error != "" && (it.To == "" || it.Message == "") {
		outcome = OutcomeSkipped
	}
	metrics.RecordDispatch(outcome)

	detail := map[string]any{
		"outboxId": it.ID,
		"kind":     it.Context.Kind,
		"status":   result.Status,
		"outcome":  outcome,
	}
	if result.Error != "" {
		detail["error"] = result.Error
	}
	r.trail.Append(ctx, audit.Entry{
		Key:    audit.Key{TenantID: it.TenantID, RemoteIdentity: it.To},
		Kind:   models.AUDIT_KIND_DISPATCH_OUTCOME,
		Detail: detail,
	})
}

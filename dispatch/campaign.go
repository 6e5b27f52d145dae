package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"balcao/apperrors"
	"balcao/config"
	"balcao/models"
	"balcao/outbox"
	"balcao/pacing"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, item outbox.Item) (int64, error)
}

type Recipient struct {
	ContactID string `json:"contactId"`
	To        string `json:"to"`
}

type CampaignRun struct {
	TenantID   int64       `json:"tenantId"`
	CampaignID int64       `json:"campaignId"`
	Message    string      `json:"message"`
	Recipients []Recipient `json:"recipients"`
	StartAt    *time.Time  `json:"startAt,omitempty"`
}

type GroupRecipient struct {
	GroupID string `json:"groupId"`
	To      string `json:"to,omitempty"` // defaults to GroupID
}

type GroupCampaignRun struct {
	TenantID        int64            `json:"tenantId"`
	GroupCampaignID int64            `json:"groupCampaignId"`
	Message         string           `json:"message"`
	Groups          []GroupRecipient `json:"groups"`
	StartAt         *time.Time       `json:"startAt,omitempty"`
}

type RunSummary struct {
	RunID     string      `json:"runId"`
	Queued    int         `json:"queued"`
	OutboxIDs []int64     `json:"outboxIds"`
	Schedule  []time.Time `json:"schedule"`
}

// Scheduler fans a campaign out into run items and paced outbox items.
type Scheduler struct {
	db       *gorm.DB
	outbox   Enqueuer
	pacing   *pacing.Policy
	log      logrus.FieldLogger
	now      func() time.Time
	newRunID func() string
}

func NewScheduler(db *gorm.DB, ob Enqueuer, pol *pacing.Policy, log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		db:       db,
		outbox:   ob,
		pacing:   pol,
		log:      log.WithField("component", "campaign"),
		now:      time.Now,
		newRunID: uuid.NewString,
	}
}

type fanout struct {
	recipient string // contact or group id
	to        string
}

func (s *Scheduler) schedule(startAt *time.Time, n int) []time.Time {
	start := s.now()
	if startAt != nil && startAt.After(start) {
		start = *startAt
	}
	return s.pacing.BuildSchedule(n, s.pacing.Profile(config.ProfileCampaign), start)
}

func (s *Scheduler) ScheduleCampaignRun(ctx context.Context, run CampaignRun) (RunSummary, error) {
	if run.TenantID <= 0 || run.CampaignID <= 0 {
		return RunSummary{}, apperrors.Validation("tenantId e campaignId são obrigatórios")
	}
	var targets []fanout
	seen := map[string]bool{}
	for _, r := range run.Recipients {
		id := strings.TrimSpace(r.ContactID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		targets = append(targets, fanout{recipient: id, to: strings.TrimSpace(r.To)})
	}
	if err := validateRun(run.Message, len(targets)); err != nil {
		return RunSummary{}, err
	}

	runID := s.newRunID()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, t := range targets {
			row := models.CampaignRunItem{
				TenantID:   run.TenantID,
				RunID:      runID,
				CampaignID: run.CampaignID,
				ContactID:  t.recipient,
				Status:     models.RUN_ITEM_STATUS_QUEUED,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return RunSummary{}, errors.Wrap(err, "campaign: create run items")
	}

	campaignID := run.CampaignID
	return s.enqueue(ctx, run.TenantID, runID, run.Message, targets, run.StartAt, func(t fanout, it *outbox.Item) {
		contact := t.recipient
		it.ContactID = &contact
		it.Context = outbox.Context{Kind: models.OUTBOX_KIND_CAMPAIGN, CampaignID: &campaignID}
		it.IdempotencyKey = strPtr(fmt.Sprintf("campaign:%d:%s:%s", campaignID, runID, contact))
	})
}

func (s *Scheduler) ScheduleGroupCampaignRun(ctx context.Context, run GroupCampaignRun) (RunSummary, error) {
	if run.TenantID <= 0 || run.GroupCampaignID <= 0 {
		return RunSummary{}, apperrors.Validation("tenantId e groupCampaignId são obrigatórios")
	}
	var targets []fanout
	seen := map[string]bool{}
	for _, g := range run.Groups {
		id := strings.TrimSpace(g.GroupID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		to := strings.TrimSpace(g.To)
		if to == "" {
			to = id
		}
		targets = append(targets, fanout{recipient: id, to: to})
	}
	if err := validateRun(run.Message, len(targets)); err != nil {
		return RunSummary{}, err
	}

	runID := s.newRunID()
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, t := range targets {
			row := models.GroupCampaignRunItem{
				TenantID:        run.TenantID,
				RunID:           runID,
				GroupCampaignID: run.GroupCampaignID,
				GroupID:         t.recipient,
				Status:          models.RUN_ITEM_STATUS_QUEUED,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return RunSummary{}, errors.Wrap(err, "campaign: create group run items")
	}

	gcID := run.GroupCampaignID
	return s.enqueue(ctx, run.TenantID, runID, run.Message, targets, run.StartAt, func(t fanout, it *outbox.Item) {
		group := t.recipient
		it.Context = outbox.Context{Kind: models.OUTBOX_KIND_GROUP_CAMPAIGN, GroupCampaignID: &gcID, GroupID: &group}
		it.IdempotencyKey = strPtr(fmt.Sprintf("campaign:%d:%s:%s", gcID, runID, group))
	})
}

func validateRun(message string, n int) error {
	if strings.TrimSpace(message) == "" {
		return apperrors.Validation("message é obrigatória")
	}
	if n == 0 {
		return apperrors.Validation("nenhum destinatário válido")
	}
	return nil
}

func (s *Scheduler) enqueue(ctx context.Context, tenantID int64, runID, message string, targets []fanout, startAt *time.Time, shape func(fanout, *outbox.Item)) (RunSummary, error) {
	times := s.schedule(startAt, len(targets))
	sum := RunSummary{RunID: runID, Schedule: times, OutboxIDs: make([]int64, 0, len(targets))}
	for i, t := range targets {
		nb := times[i]
		it := outbox.Item{
			TenantID:  tenantID,
			To:        t.to,
			Message:   message,
			NotBefore: &nb,
		}
		shape(t, &it)
		it.Context.RunID = &runID
		id, err := s.outbox.Enqueue(ctx, it)
		if err != nil {
			// run items already exist; the ones not enqueued stay queued
			return sum, errors.Wrapf(err, "campaign: enqueue %s", t.recipient)
		}
		sum.OutboxIDs = append(sum.OutboxIDs, id)
		sum.Queued++
	}
	s.log.WithFields(logrus.Fields{"tenant_id": tenantID, "run_id": runID, "queued": sum.Queued}).Info("campaign: run scheduled")
	return sum, nil
}

func strPtr(s string) *string { return &s }

// Package workers holds the background loops started by `balcao serve`: the
// inbound events processor, the dispatch loop and the preorder expiry sweep.
package workers

import (
	"context"
	"strings"
	"time"

	"balcao/conversation"
	"balcao/models"
	"balcao/outbox"
	"balcao/tools"

	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const replyFallback = "Desculpe, tive um problema ao gerar a resposta."

type InboundHandler interface {
	HandleInbound(ctx context.Context, in conversation.Inbound) (conversation.Result, error)
}

type Responder interface {
	Reply(ctx context.Context, rc tools.ReplyContext) (string, error)
}

type SettingsSource interface {
	Get(ctx context.Context, tenantID int64) (conversation.Settings, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, item outbox.Item) (int64, error)
}

// EventProcessor turns debounced inbound events into conversation decisions
// and outbound replies. Events of the same conversation are handled one at a
// time, in the order they were claimed.
type EventProcessor struct {
	db        *gorm.DB
	conv      InboundHandler
	responder Responder
	settings  SettingsSource
	outbox    Enqueuer
	seq       *conversation.Sequencer
	log       logrus.FieldLogger

	Debounce time.Duration
	Interval time.Duration
	Batch    int

	now func() time.Time
}

func NewEventProcessor(db *gorm.DB, conv InboundHandler, responder Responder, settings SettingsSource, ob Enqueuer, seq *conversation.Sequencer, log logrus.FieldLogger) *EventProcessor {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if seq == nil {
		seq = conversation.NewSequencer(log)
	}
	return &EventProcessor{
		db:        db,
		conv:      conv,
		responder: responder,
		settings:  settings,
		outbox:    ob,
		seq:       seq,
		log:       log.WithField("component", "events worker"),
		Debounce:  3 * time.Second,
		Interval:  time.Second,
		Batch:     50,
		now:       time.Now,
	}
}

// Receive stores an inbound text. A pending event of the same conversation
// still inside its debounce window is invalidated and its text carried over,
// so a burst of short messages is answered once.
func (p *EventProcessor) Receive(ctx context.Context, key conversation.Key, messageID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	now := p.now().UTC()
	scheduled := now.Add(p.Debounce)

	return p.db.Transaction(func(tx *gorm.DB) error {
		var last models.Event
		err := tx.
			Where("tenant_id = ? AND channel_instance = ? AND recipient = ? AND status = ?",
				key.TenantID, key.ChannelInstance, key.RemoteIdentity, models.EVENT_STATUS_PENDING).
			Where("scheduled_at IS NOT NULL AND scheduled_at > ?", now).
			Order("id desc").
			First(&last).Error

		combined := text
		switch {
		case err == nil:
			res := tx.Model(&models.Event{}).
				Where("id = ? AND status = ?", last.ID, models.EVENT_STATUS_PENDING).
				Updates(map[string]any{
					"status":         models.EVENT_STATUS_INVALIDATED,
					"invalidated_at": now,
				})
			if res.Error != nil {
				return errors.Wrap(res.Error, "events: invalidate")
			}
			// already claimed by the processor: answer this one on its own
			if res.RowsAffected == 1 && strings.TrimSpace(last.Text) != "" {
				combined = strings.TrimSpace(last.Text) + "\n" + text
			}
		case !gorm.IsRecordNotFoundError(err):
			return errors.Wrap(err, "events: lookup pending")
		}

		ev := models.Event{
			TenantID:        key.TenantID,
			ChannelInstance: key.ChannelInstance,
			Recipient:       key.RemoteIdentity,
			MessageID:       messageID,
			Text:            combined,
			Status:          models.EVENT_STATUS_PENDING,
			ScheduledAt:     &scheduled,
		}
		return errors.Wrap(tx.Create(&ev).Error, "events: create")
	})
}

// Run polls for due events until ctx ends, then waits for in-flight ones.
func (p *EventProcessor) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	defer p.seq.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.ProcessDue(ctx); err != nil {
				p.log.WithError(err).Warn("events worker: query error")
			}
		}
	}
}

// ProcessDue claims every due event (pending -> processing) and submits it to
// its conversation's lane. It returns how many events were claimed.
func (p *EventProcessor) ProcessDue(ctx context.Context) (int, error) {
	now := p.now().UTC()

	var events []models.Event
	if err := p.db.
		Where("status = ?", models.EVENT_STATUS_PENDING).
		Where("scheduled_at IS NOT NULL AND scheduled_at <= ?", now).
		Order("scheduled_at asc, id asc").
		Limit(p.Batch).
		Find(&events).Error; err != nil {
		return 0, errors.Wrap(err, "events: list due")
	}

	claimed := 0
	for _, ev := range events {
		// lock otimista: só processa se conseguir mudar status
		res := p.db.Model(&models.Event{}).
			Where("id = ? AND status = ?", ev.ID, models.EVENT_STATUS_PENDING).
			Update("status", models.EVENT_STATUS_PROCESSING)
		if res.Error != nil || res.RowsAffected == 0 {
			continue
		}
		claimed++

		ev := ev
		key := conversation.Key{TenantID: ev.TenantID, ChannelInstance: ev.ChannelInstance, RemoteIdentity: ev.Recipient}
		p.seq.Submit(key.String(), func() {
			hctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			p.handle(hctx, key, ev)
		})
	}
	return claimed, nil
}

func (p *EventProcessor) handle(ctx context.Context, key conversation.Key, ev models.Event) {
	log := p.log.WithFields(logrus.Fields{"event_id": ev.ID, "tenant_id": ev.TenantID, "remote": ev.Recipient})

	res, err := p.conv.HandleInbound(ctx, conversation.Inbound{Key: key, Text: ev.Text})
	if err != nil {
		log.WithError(err).Error("events worker: decision failed")
		p.finish(ev.ID, "", "")
		return
	}

	reply := res.ReplyText
	if res.Mode == conversation.ModeDelegate {
		reply = p.delegate(ctx, log, key, ev.Text, res.NextState)
		if reply != "" && res.CtaText != "" {
			reply += "\n\n" + res.CtaText
		}
	}
	if reply != "" {
		idem := "event:" + formatID(ev.ID)
		_, err := p.outbox.Enqueue(ctx, outbox.Item{
			TenantID:       ev.TenantID,
			To:             ev.Recipient,
			Message:        reply,
			IdempotencyKey: &idem,
			Context:        outbox.Context{Kind: models.OUTBOX_KIND_ASSISTANT},
		})
		if err != nil {
			log.WithError(err).Error("events worker: enqueue reply failed")
		}
	}
	p.finish(ev.ID, res.Mode, reply)
}

// delegate asks the generative responder for a reply. A conversation handed
// off to a human gets no automated reply at all.
func (p *EventProcessor) delegate(ctx context.Context, log logrus.FieldLogger, key conversation.Key, text string, st conversation.State) string {
	if st.HandoffActive {
		return ""
	}
	if p.responder == nil {
		return replyFallback
	}
	rc := tools.ReplyContext{
		TenantID:     key.TenantID,
		Phase:        st.Phase,
		OrderSummary: st.OrderSummary(),
		Text:         text,
	}
	if p.settings != nil {
		if s, err := p.settings.Get(ctx, key.TenantID); err == nil {
			rc.BusinessName = s.BusinessName
		}
	}
	reply, err := p.responder.Reply(ctx, rc)
	if err != nil || strings.TrimSpace(reply) == "" {
		log.WithError(err).Warn("events worker: responder failed")
		return replyFallback
	}
	return strings.TrimSpace(reply)
}

func (p *EventProcessor) finish(id int64, mode, reply string) {
	t := p.now().UTC()
	err := p.db.Model(&models.Event{}).Where("id = ?", id).Updates(map[string]any{
		"status":       models.EVENT_STATUS_DONE,
		"processed_at": &t,
		"reply_text":   reply,
		"decision":     mode,
	}).Error
	if err != nil {
		p.log.WithError(err).WithField("event_id", id).Warn("events worker: finish failed")
	}
}

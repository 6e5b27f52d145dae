// Package audit is the append-only trail of conversation state transitions and
// dispatch outcomes. Writes are best-effort: Append never returns an error and
// never blocks the operation it describes for longer than one insert.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"balcao/models"

	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Key identifies the conversation an event belongs to.
type Key struct {
	TenantID        int64
	ChannelInstance string
	RemoteIdentity  string
}

type Entry struct {
	Key
	Kind      string
	FromPhase string
	ToPhase   string
	Detail    map[string]any
}

type Trail struct {
	db  *gorm.DB
	log logrus.FieldLogger
	now func() time.Time
}

func NewTrail(db *gorm.DB, log logrus.FieldLogger) *Trail {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Trail{db: db, log: log.WithField("component", "audit"), now: time.Now}
}

// Append records e. Failures are logged and swallowed.
func (t *Trail) Append(ctx context.Context, e Entry) {
	if t == nil {
		return
	}
	if err := t.insert(ctx, e); err != nil {
		t.log.WithError(err).WithFields(logrus.Fields{
			"tenant_id": e.TenantID,
			"remote":    e.RemoteIdentity,
			"kind":      e.Kind,
		}).Warn("audit: append failed")
	}
}

func (t *Trail) insert(ctx context.Context, e Entry) error {
	if t.db == nil {
		return errors.New("audit: no database")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	detail := ""
	if len(e.Detail) > 0 {
		b, err := json.Marshal(e.Detail)
		if err != nil {
			return errors.Wrap(err, "audit: marshal detail")
		}
		detail = string(b)
	}
	row := models.AuditEvent{
		TenantID:        e.TenantID,
		ChannelInstance: e.ChannelInstance,
		RemoteIdentity:  e.RemoteIdentity,
		Kind:            e.Kind,
		FromPhase:       e.FromPhase,
		ToPhase:         e.ToPhase,
		Detail:          detail,
		CreatedAt:       t.now().UTC(),
	}
	return errors.Wrap(t.db.Create(&row).Error, "audit: insert")
}

// List returns the newest events for a conversation first. An empty
// ChannelInstance matches every channel of the tenant/remote pair; events
// recorded without a channel (dispatch outcomes) match any channel.
func (t *Trail) List(ctx context.Context, key Key, limit int) ([]models.AuditEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := t.db.Where("tenant_id = ? AND remote_identity = ?", key.TenantID, key.RemoteIdentity)
	if key.ChannelInstance != "" {
		q = q.Where("channel_instance IN (?)", []string{key.ChannelInstance, ""})
	}
	var out []models.AuditEvent
	if err := q.Order("id desc").Limit(limit).Find(&out).Error; err != nil {
		return nil, errors.Wrap(err, "audit: list")
	}
	return out, nil
}

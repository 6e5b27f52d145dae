package dispatch

import (
	"context"
	"time"

	"balcao/models"
	"balcao/outbox"
	"balcao/tools"

	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
)

// Ledger is the gorm side of dispatch: tenant credentials, the message history
// log and the per-recipient campaign run items.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// Credentials returns the tenant's WhatsApp credentials; a tenant without a
// config row gets empty credentials and no error.
func (l *Ledger) Credentials(ctx context.Context, tenantID int64) (tools.Credentials, error) {
	var wa models.WhatsAppConfig
	err := l.db.Where("tenant_id = ?", tenantID).First(&wa).Error
	if gorm.IsRecordNotFoundError(err) {
		return tools.Credentials{}, nil
	}
	if err != nil {
		return tools.Credentials{}, errors.Wrap(err, "dispatch: load credentials")
	}
	return tools.Credentials{PhoneNumberID: wa.PhoneNumberID, AccessToken: wa.AccessToken, ApiVersion: wa.ApiVersion}, nil
}

func (l *Ledger) LogMessage(ctx context.Context, it outbox.Item, res tools.SendResult) error {
	row := models.MessageLog{
		TenantID:          it.TenantID,
		OutboxID:          it.ID,
		To:                it.To,
		RemoteIdentity:    res.RemoteIdentity,
		ProviderMessageID: res.ProviderMessageID,
		Text:              it.Message,
		SentAt:            res.Timestamp.UTC(),
	}
	return errors.Wrap(l.db.Create(&row).Error, "dispatch: message log")
}

// RecordRunItem reflects an outcome on the run item the outbox item belongs
// to. 1:1 traffic has no run item and is a no-op. Attempts only count real
// outcomes (sent/failed), never simulated ones.
func (l *Ledger) RecordRunItem(ctx context.Context, it outbox.Item, status, errText string, at time.Time) error {
	if it.Context.RunID == nil {
		return nil
	}
	fields := map[string]any{"status": status}
	switch status {
	case models.RUN_ITEM_STATUS_SENT:
		fields["attempts"] = gorm.Expr("attempts + 1")
		fields["sent_at"] = at.UTC()
		fields["last_error"] = ""
	case models.RUN_ITEM_STATUS_FAILED:
		fields["attempts"] = gorm.Expr("attempts + 1")
		fields["last_error"] = errText
	case models.RUN_ITEM_STATUS_SIMULATED:
		fields["sent_at"] = at.UTC()
	}

	var q *gorm.DB
	switch it.Context.Kind {
	case models.OUTBOX_KIND_CAMPAIGN:
		if it.ContactID == nil {
			return nil
		}
		q = l.db.Model(&models.CampaignRunItem{}).
			Where("run_id = ? AND contact_id = ?", *it.Context.RunID, *it.ContactID)
	case models.OUTBOX_KIND_GROUP_CAMPAIGN:
		if it.Context.GroupID == nil {
			return nil
		}
		q = l.db.Model(&models.GroupCampaignRunItem{}).
			Where("run_id = ? AND group_id = ?", *it.Context.RunID, *it.Context.GroupID)
	default:
		return nil
	}
	return errors.Wrap(q.Updates(fields).Error, "dispatch: update run item")
}

type RunItems struct {
	Campaign []models.CampaignRunItem      `json:"campaign"`
	Group    []models.GroupCampaignRunItem `json:"group"`
}

func (l *Ledger) ListRunItems(ctx context.Context, runID string) (RunItems, error) {
	out := RunItems{Campaign: []models.CampaignRunItem{}, Group: []models.GroupCampaignRunItem{}}
	if err := l.db.Where("run_id = ?", runID).Order("id asc").Find(&out.Campaign).Error; err != nil {
		return out, errors.Wrap(err, "dispatch: list campaign run items")
	}
	if err := l.db.Where("run_id = ?", runID).Order("id asc").Find(&out.Group).Error; err != nil {
		return out, errors.Wrap(err, "dispatch: list group run items")
	}
	return out, nil
}

package outbox

import (
	"context"
	"time"

	"balcao/apperrors"
	"balcao/models"

	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
)

// Result is what the runner learned about one delivery attempt.
type Result struct {
	Status string // sent | failed
	Error  string
	At     time.Time
}

type Store struct {
	db       *gorm.DB
	claimTTL time.Duration
	now      func() time.Time
}

// NewStore returns an outbox over db. A claim older than claimTTL is
// considered abandoned (runner crashed) and the item becomes claimable again.
func NewStore(db *gorm.DB, claimTTL time.Duration) *Store {
	if claimTTL <= 0 {
		claimTTL = 10 * time.Minute
	}
	return &Store{db: db, claimTTL: claimTTL, now: time.Now}
}

func (s *Store) findLive(tenantID int64, key string) (*models.OutboxItem, error) {
	var row models.OutboxItem
	err := s.db.Where("tenant_id = ? AND idempotency_slot = ?", tenantID, key).First(&row).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Enqueue appends item as pending and returns its id. When the item carries an
// idempotency key already held by a pending or sent item of the same tenant,
// nothing is inserted and the existing id is returned.
func (s *Store) Enqueue(ctx context.Context, item Item) (int64, error) {
	if err := item.normalize(); err != nil {
		return 0, err
	}
	key := item.Key()
	if key != "" {
		existing, err := s.findLive(item.TenantID, key)
		if err != nil {
			return 0, errors.Wrap(err, "outbox: enqueue lookup")
		}
		if existing != nil {
			return existing.ID, nil
		}
	}

	row := toRow(item)
	row.CreatedAt = s.now().UTC()
	if row.NotBefore != nil {
		nb := row.NotBefore.UTC()
		row.NotBefore = &nb
	}
	if err := s.db.Create(&row).Error; err != nil {
		// lost a race on the unique (tenant_id, idempotency_slot) index
		if key != "" {
			if existing, lerr := s.findLive(item.TenantID, key); lerr == nil && existing != nil {
				return existing.ID, nil
			}
		}
		return 0, errors.Wrap(err, "outbox: enqueue")
	}
	return row.ID, nil
}

// ListDue returns pending, unclaimed items whose notBefore has passed, oldest
// first. A nil tenantID lists across tenants.
func (s *Store) ListDue(ctx context.Context, tenantID *int64, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 25
	}
	now := s.now().UTC()
	q := s.db.
		Where("status = ?", models.OUTBOX_STATUS_PENDING).
		Where("not_before IS NULL OR not_before <= ?", now).
		Where("claim_token IS NULL OR claimed_at < ?", now.Add(-s.claimTTL))
	if tenantID != nil {
		q = q.Where("tenant_id = ?", *tenantID)
	}
	var rows []models.OutboxItem
	if err := q.Order("id asc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "outbox: list due")
	}
	out := make([]Item, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromRow(r))
	}
	return out, nil
}

// Claim takes a lease on a pending item. Only one caller gets true for a given
// lease period; the item stays pending until MarkResult.
func (s *Store) Claim(ctx context.Context, id int64, token string) (bool, error) {
	now := s.now().UTC()
	res := s.db.Model(&models.OutboxItem{}).
		Where("id = ? AND status = ?", id, models.OUTBOX_STATUS_PENDING).
		Where("claim_token IS NULL OR claimed_at < ?", now.Add(-s.claimTTL)).
		Updates(map[string]any{
			"claim_token": token,
			"claimed_at":  now,
		})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "outbox: claim")
	}
	return res.RowsAffected == 1, nil
}

// MarkResult moves a claimed item from pending to sent or failed. It never
// touches an item that already left pending.
func (s *Store) MarkResult(ctx context.Context, id int64, token string, r Result) error {
	if r.Status != models.OUTBOX_STATUS_SENT && r.Status != models.OUTBOX_STATUS_FAILED {
		return apperrors.Validation("status de resultado inválido: " + r.Status)
	}
	at := r.At
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()

	fields := map[string]any{
		"status":      r.Status,
		"last_error":  r.Error,
		"claim_token": nil,
	}
	if r.Status == models.OUTBOX_STATUS_SENT {
		fields["sent_at"] = at
	} else {
		// libera a chave para um retry explícito
		fields["idempotency_slot"] = nil
	}

	res := s.db.Model(&models.OutboxItem{}).
		Where("id = ? AND status = ? AND claim_token = ?", id, models.OUTBOX_STATUS_PENDING, token).
		Updates(fields)
	if res.Error != nil {
		return errors.Wrap(res.Error, "outbox: mark result")
	}
	if res.RowsAffected == 0 {
		return apperrors.Conflict("outbox: item não está mais pendente ou o claim expirou")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (Item, error) {
	var row models.OutboxItem
	err := s.db.First(&row, id).Error
	if gorm.IsRecordNotFoundError(err) {
		return Item{}, apperrors.NotFound("outbox item não encontrado")
	}
	if err != nil {
		return Item{}, errors.Wrap(err, "outbox: get")
	}
	return fromRow(row), nil
}

// List is the operator view: newest first, optional status filter.
func (s *Store) List(ctx context.Context, tenantID int64, status string, limit int) ([]Item, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	q := s.db.Where("tenant_id = ?", tenantID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var rows []models.OutboxItem
	if err := q.Order("id desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "outbox: list")
	}
	out := make([]Item, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromRow(r))
	}
	return out, nil
}

// Requeue copies a failed item into a fresh pending one. The failed original
// stays failed; the copy keeps the idempotency key, so requeueing twice
// returns the same pending copy.
func (s *Store) Requeue(ctx context.Context, id int64, notBefore *time.Time) (int64, error) {
	orig, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if orig.Status != models.OUTBOX_STATUS_FAILED {
		return 0, apperrors.Conflict("só itens com status failed podem ser reenfileirados")
	}
	copyItem := orig
	copyItem.ID = 0
	copyItem.Status = models.OUTBOX_STATUS_PENDING
	copyItem.LastError = ""
	copyItem.SentAt = nil
	copyItem.NotBefore = notBefore
	copyItem.RetryOf = &orig.ID
	if copyItem.Key() == "" {
		key := "retry:" + formatID(orig.ID)
		copyItem.IdempotencyKey = &key
	}
	return s.Enqueue(ctx, copyItem)
}

// Release drops a claim without recording an outcome, e.g. when the runner is
// stopped between claiming and sending.
func (s *Store) Release(ctx context.Context, id int64, token string) error {
	err := s.db.Model(&models.OutboxItem{}).
		Where("id = ? AND status = ? AND claim_token = ?", id, models.OUTBOX_STATUS_PENDING, token).
		Updates(map[string]any{"claim_token": nil, "claimed_at": nil}).Error
	return errors.Wrap(err, "outbox: release")
}

package preorder

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"balcao/apperrors"
	"balcao/models"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Options struct {
	TTL          time.Duration // default expiry for drafts; 24h when zero
	HistoryLimit int           // entries kept per preorder; 50 when zero
	Now          func() time.Time
	// OnExpire is called once per preorder this store moves to expired,
	// whichever path (read, update, sweep) noticed it.
	OnExpire func(ctx context.Context, p Preorder)
}

type Store struct {
	db    *gorm.DB
	opts  Options
	log   logrus.FieldLogger
	now   func() time.Time
	newID func() string
}

func NewStore(db *gorm.DB, opts Options, log logrus.FieldLogger) *Store {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 50
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{
		db:    db,
		opts:  opts,
		log:   log.WithField("component", "preorder"),
		now:   opts.Now,
		newID: newIdentifier,
	}
}

func newIdentifier() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "PED-" + strings.ToUpper(raw[:8])
}

// Draft is the input of Create.
type Draft struct {
	TenantID  int64      `json:"tenantId"`
	ContactID string     `json:"contactId"`
	Items     []Item     `json:"items"`
	Delivery  Delivery   `json:"delivery"`
	Payment   Payment    `json:"payment"`
	Status    string     `json:"status"`    // draft (default) or awaiting_human_confirmation
	ExpiresAt *time.Time `json:"expiresAt"` // nil: now + TTL
}

// Patch replaces whole sections; nil fields are left alone.
type Patch struct {
	Items     *[]Item    `json:"items"`
	Delivery  *Delivery  `json:"delivery"`
	Payment   *Payment   `json:"payment"`
	ExpiresAt *time.Time `json:"expiresAt"`
}

func (s *Store) appendHistory(p *Preorder, actor, action, reason string) {
	p.History = append(p.History, HistoryEntry{Ts: s.now().UTC(), Actor: actor, Action: action, Reason: reason})
	if n := len(p.History) - s.opts.HistoryLimit; n > 0 {
		p.History = append([]HistoryEntry(nil), p.History[n:]...)
	}
}

func (s *Store) Create(ctx context.Context, d Draft, actor string) (Preorder, error) {
	if d.TenantID <= 0 {
		return Preorder{}, apperrors.Validation("tenantId é obrigatório")
	}
	d.ContactID = strings.TrimSpace(d.ContactID)
	if d.ContactID == "" {
		return Preorder{}, apperrors.Validation("contactId é obrigatório")
	}
	if !validActor(actor) {
		return Preorder{}, apperrors.Validation("actor inválido: " + actor)
	}
	if d.Status == "" {
		d.Status = models.PREORDER_STATUS_DRAFT
	}
	if !expirable(d.Status) {
		return Preorder{}, apperrors.Validation("status inicial inválido: " + d.Status)
	}
	if d.Items == nil {
		d.Items = []Item{}
	}
	if err := validateItems(d.Items); err != nil {
		return Preorder{}, err
	}
	if err := validateDelivery(&d.Delivery); err != nil {
		return Preorder{}, err
	}
	if err := validatePayment(&d.Payment); err != nil {
		return Preorder{}, err
	}

	now := s.now().UTC()
	expires := now.Add(s.opts.TTL)
	if d.ExpiresAt != nil {
		expires = d.ExpiresAt.UTC()
	}
	p := Preorder{
		TenantID:   d.TenantID,
		ContactID:  d.ContactID,
		Identifier: s.newID(),
		Items:      d.Items,
		Delivery:   d.Delivery,
		Payment:    d.Payment,
		Status:     d.Status,
		CreatedAt:  now,
		UpdatedAt:  now,
		UpdatedBy:  actor,
		ExpiresAt:  &expires,
	}
	p.Totals = ComputeTotals(p.Items, p.Delivery)
	s.appendHistory(&p, actor, "create", "")

	row, err := toRow(p)
	if err != nil {
		return Preorder{}, err
	}
	if err := s.db.Create(&row).Error; err != nil {
		return Preorder{}, errors.Wrap(err, "preorder: create")
	}
	p.ID = row.ID
	return p, nil
}

// GetByID returns the preorder, expiring it first when its time has passed.
func (s *Store) GetByID(ctx context.Context, id int64) (Preorder, error) {
	var row models.Preorder
	err := s.db.First(&row, id).Error
	if gorm.IsRecordNotFoundError(err) {
		return Preorder{}, apperrors.NotFound("preorder não encontrado")
	}
	if err != nil {
		return Preorder{}, errors.Wrap(err, "preorder: get")
	}
	p, err := s.normalize(row)
	if err != nil {
		return Preorder{}, err
	}
	return s.expireIfDue(ctx, p)
}

// ListByTenant lists newest first; status "" means any. Filtering on expired
// also picks open drafts that are past expiresAt but not yet rewritten.
func (s *Store) ListByTenant(ctx context.Context, tenantID int64, status string, limit int) ([]Preorder, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	q := s.db.Where("tenant_id = ?", tenantID)
	switch status {
	case "":
	case models.PREORDER_STATUS_EXPIRED:
		q = q.Where("status = ? OR (status IN (?) AND expires_at IS NOT NULL AND expires_at <= ?)",
			status, []string{models.PREORDER_STATUS_DRAFT, models.PREORDER_STATUS_AWAITING_HUMAN}, s.now().UTC())
	default:
		q = q.Where("status = ?", status)
	}
	var rows []models.Preorder
	if err := q.Order("id desc").Limit(limit).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "preorder: list")
	}
	out := make([]Preorder, 0, len(rows))
	for _, row := range rows {
		p, err := s.normalize(row)
		if err != nil {
			return nil, err
		}
		if p, err = s.expireIfDue(ctx, p); err != nil {
			return nil, err
		}
		// a row read as draft may have just expired
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, id int64, patch Patch, actor string) (Preorder, error) {
	if !validActor(actor) {
		return Preorder{}, apperrors.Validation("actor inválido: " + actor)
	}
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return Preorder{}, err
	}
	if !expirable(p.Status) {
		return Preorder{}, apperrors.Conflict("preorder com status " + p.Status + " não pode ser alterado")
	}
	if patch.Items != nil {
		items := append([]Item{}, (*patch.Items)...)
		if err := validateItems(items); err != nil {
			return Preorder{}, err
		}
		p.Items = items
	}
	if patch.Delivery != nil {
		d := *patch.Delivery
		if err := validateDelivery(&d); err != nil {
			return Preorder{}, err
		}
		p.Delivery = d
	}
	if patch.Payment != nil {
		pay := *patch.Payment
		if err := validatePayment(&pay); err != nil {
			return Preorder{}, err
		}
		p.Payment = pay
	}
	if patch.ExpiresAt != nil {
		e := patch.ExpiresAt.UTC()
		p.ExpiresAt = &e
	}
	p.Totals = ComputeTotals(p.Items, p.Delivery)
	p.UpdatedBy = actor
	p.UpdatedAt = s.now().UTC()
	s.appendHistory(&p, actor, "update", "")

	if err := s.save(p, p.Status); err != nil {
		return Preorder{}, err
	}
	return p, nil
}

var transitions = map[string][]string{
	models.PREORDER_STATUS_DRAFT:          {models.PREORDER_STATUS_AWAITING_HUMAN, models.PREORDER_STATUS_CONFIRMED, models.PREORDER_STATUS_CANCELLED},
	models.PREORDER_STATUS_AWAITING_HUMAN: {models.PREORDER_STATUS_DRAFT, models.PREORDER_STATUS_CONFIRMED, models.PREORDER_STATUS_CANCELLED},
	models.PREORDER_STATUS_CONFIRMED:      {models.PREORDER_STATUS_CANCELLED},
}

// SetStatus moves the preorder along its lifecycle. Expiry is a system-only
// transition and happens through reads or ExpireDue.
func (s *Store) SetStatus(ctx context.Context, id int64, status, actor, reason string) (Preorder, error) {
	if !validActor(actor) {
		return Preorder{}, apperrors.Validation("actor inválido: " + actor)
	}
	if status == models.PREORDER_STATUS_EXPIRED {
		return Preorder{}, apperrors.Validation("expired é definido apenas pelo sistema")
	}
	p, err := s.GetByID(ctx, id)
	if err != nil {
		return Preorder{}, err
	}
	if p.Status == status {
		return p, nil
	}
	allowed := false
	for _, next := range transitions[p.Status] {
		if next == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return Preorder{}, apperrors.Conflict("transição inválida: " + p.Status + " -> " + status)
	}
	prev := p.Status
	p.Status = status
	p.UpdatedBy = actor
	p.UpdatedAt = s.now().UTC()
	s.appendHistory(&p, actor, "status:"+status, reason)
	if err := s.save(p, prev); err != nil {
		return Preorder{}, err
	}
	return p, nil
}

// ExpireDue expires every open draft whose expiresAt has passed and returns
// them. Reads already do this lazily; the sweep makes expiry (and OnExpire)
// happen without waiting for someone to read the record.
func (s *Store) ExpireDue(ctx context.Context, limit int) ([]Preorder, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []models.Preorder
	err := s.db.
		Where("status IN (?)", []string{models.PREORDER_STATUS_DRAFT, models.PREORDER_STATUS_AWAITING_HUMAN}).
		Where("expires_at IS NOT NULL AND expires_at <= ?", s.now().UTC()).
		Order("id asc").Limit(limit).Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "preorder: list expired")
	}
	var out []Preorder
	for _, row := range rows {
		p, err := s.normalize(row)
		if err != nil {
			s.log.WithError(err).WithField("preorder_id", row.ID).Warn("preorder: skip unreadable row")
			continue
		}
		expired, err := s.expireIfDue(ctx, p)
		if err != nil {
			return out, err
		}
		if expired.Status == models.PREORDER_STATUS_EXPIRED {
			out = append(out, expired)
		}
	}
	return out, nil
}

func (s *Store) expireIfDue(ctx context.Context, p Preorder) (Preorder, error) {
	if !expirable(p.Status) || p.ExpiresAt == nil || s.now().Before(*p.ExpiresAt) {
		return p, nil
	}
	prev := p.Status
	p.Status = models.PREORDER_STATUS_EXPIRED
	p.UpdatedBy = models.ACTOR_SYSTEM
	p.UpdatedAt = s.now().UTC()
	s.appendHistory(&p, models.ACTOR_SYSTEM, "status:"+models.PREORDER_STATUS_EXPIRED, "ttl")
	err := s.save(p, prev)
	if apperrors.Is(err, apperrors.CodeConflict) {
		// someone else changed it between our read and write; their version wins
		var row models.Preorder
		if ferr := s.db.First(&row, p.ID).Error; ferr != nil {
			return Preorder{}, errors.Wrap(ferr, "preorder: reload")
		}
		return s.normalize(row)
	}
	if err != nil {
		return Preorder{}, err
	}
	s.log.WithFields(logrus.Fields{"preorder_id": p.ID, "tenant_id": p.TenantID}).Info("preorder: expired")
	if s.opts.OnExpire != nil {
		s.opts.OnExpire(ctx, p)
	}
	return p, nil
}

// save writes p guarded on the status it was read with.
func (s *Store) save(p Preorder, expectStatus string) error {
	row, err := toRow(p)
	if err != nil {
		return err
	}
	res := s.db.Model(&models.Preorder{}).
		Where("id = ? AND status = ?", p.ID, expectStatus).
		Updates(map[string]any{
			"items":            row.ItemsJSON,
			"delivery_mode":    row.DeliveryMode,
			"delivery_fee":     row.DeliveryFee,
			"delivery_address": row.DeliveryAddress,
			"payment_mode":     row.PaymentMode,
			"pix_qr":           row.PixQr,
			"subtotal":         row.Subtotal,
			"total":            row.Total,
			"status":           row.Status,
			"updated_by":       row.UpdatedBy,
			"expires_at":       row.ExpiresAt,
			"history":          row.HistoryJSON,
		})
	if res.Error != nil {
		return errors.Wrap(res.Error, "preorder: save")
	}
	if res.RowsAffected == 0 {
		return apperrors.Conflict("preorder alterado por outra operação")
	}
	return nil
}

func toRow(p Preorder) (models.Preorder, error) {
	items, err := json.Marshal(p.Items)
	if err != nil {
		return models.Preorder{}, errors.Wrap(err, "preorder: marshal items")
	}
	history, err := json.Marshal(p.History)
	if err != nil {
		return models.Preorder{}, errors.Wrap(err, "preorder: marshal history")
	}
	return models.Preorder{
		ID:              p.ID,
		TenantID:        p.TenantID,
		ContactID:       p.ContactID,
		Identifier:      p.Identifier,
		ItemsJSON:       string(items),
		DeliveryMode:    p.Delivery.Mode,
		DeliveryFee:     p.Delivery.Fee,
		DeliveryAddress: p.Delivery.Address,
		PaymentMode:     p.Payment.Mode,
		PixQr:           p.Payment.PixQr,
		Subtotal:        p.Totals.Subtotal,
		Total:           p.Totals.Total,
		Status:          p.Status,
		UpdatedBy:       p.UpdatedBy,
		ExpiresAt:       p.ExpiresAt,
		HistoryJSON:     string(history),
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}, nil
}

// normalize is the storage boundary: JSON columns are decoded and validated,
// and totals are re-derived instead of trusting the stored columns.
func (s *Store) normalize(row models.Preorder) (Preorder, error) {
	p := Preorder{
		ID:         row.ID,
		TenantID:   row.TenantID,
		ContactID:  row.ContactID,
		Identifier: row.Identifier,
		Items:      []Item{},
		Delivery:   Delivery{Mode: row.DeliveryMode, Fee: row.DeliveryFee, Address: row.DeliveryAddress},
		Payment:    Payment{Mode: row.PaymentMode, PixQr: row.PixQr},
		Status:     row.Status,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
		UpdatedBy:  row.UpdatedBy,
		ExpiresAt:  row.ExpiresAt,
		History:    []HistoryEntry{},
	}
	if strings.TrimSpace(row.ItemsJSON) != "" {
		if err := json.Unmarshal([]byte(row.ItemsJSON), &p.Items); err != nil {
			return Preorder{}, errors.Wrapf(err, "preorder %d: items", row.ID)
		}
	}
	if strings.TrimSpace(row.HistoryJSON) != "" {
		if err := json.Unmarshal([]byte(row.HistoryJSON), &p.History); err != nil {
			return Preorder{}, errors.Wrapf(err, "preorder %d: history", row.ID)
		}
	}
	if err := validateItems(p.Items); err != nil {
		return Preorder{}, errors.Wrapf(err, "preorder %d", row.ID)
	}
	if err := validateDelivery(&p.Delivery); err != nil {
		return Preorder{}, errors.Wrapf(err, "preorder %d", row.ID)
	}
	if err := validatePayment(&p.Payment); err != nil {
		return Preorder{}, errors.Wrapf(err, "preorder %d", row.ID)
	}
	switch p.Status {
	case models.PREORDER_STATUS_DRAFT, models.PREORDER_STATUS_AWAITING_HUMAN, models.PREORDER_STATUS_CONFIRMED,
		models.PREORDER_STATUS_CANCELLED, models.PREORDER_STATUS_EXPIRED:
	default:
		return Preorder{}, errors.Errorf("preorder %d: unknown status %q", row.ID, p.Status)
	}
	p.Totals = ComputeTotals(p.Items, p.Delivery)
	return p, nil
}

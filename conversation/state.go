package conversation

import (
	"context"
	"fmt"
	"time"

	"balcao/apperrors"
	"balcao/audit"
	"balcao/models"

	"github.com/jinzhu/gorm"
	"github.com/pkg/errors"
)

// Key identifies one dialogue. It is never shared across tenants.
type Key struct {
	TenantID        int64  `json:"tenantId"`
	ChannelInstance string `json:"channelInstance"`
	RemoteIdentity  string `json:"remoteIdentity"`
}

func (k Key) String() string {
	return fmt.Sprintf("%d|%s|%s", k.TenantID, k.ChannelInstance, k.RemoteIdentity)
}

func (k Key) AuditKey() audit.Key {
	return audit.Key{TenantID: k.TenantID, ChannelInstance: k.ChannelInstance, RemoteIdentity: k.RemoteIdentity}
}

func (k Key) validate() error {
	if k.TenantID <= 0 {
		return apperrors.Validation("tenantId é obrigatório")
	}
	if k.RemoteIdentity == "" {
		return apperrors.Validation("remoteIdentity é obrigatório")
	}
	return nil
}

type State struct {
	Key
	Phase           string     `json:"phase"`
	EnteredAt       time.Time  `json:"enteredAt"`
	LastUserAt      time.Time  `json:"lastUserAt"`
	LastBotAt       *time.Time `json:"lastBotAt,omitempty"`
	HasIntroduced   bool       `json:"hasIntroduced"`
	OrderType       string     `json:"orderType,omitempty"`
	AddressText     string     `json:"addressText,omitempty"`
	Neighborhood    string     `json:"neighborhood,omitempty"`
	PaymentMethod   string     `json:"paymentMethod,omitempty"`
	PaymentTiming   string     `json:"paymentTiming,omitempty"`
	AssistCtaCount  int        `json:"assistCtaCount"`
	LastAssistCtaAt *time.Time `json:"lastAssistCtaAt,omitempty"`
	HandoffActive   bool       `json:"handoffActive"`
}

// NewState is the lazily created state of a key seen for the first time.
func NewState(key Key, now time.Time) State {
	return State{Key: key, Phase: models.PHASE_IDLE, EnteredAt: now, LastUserAt: now}
}

func (s *State) clearOrder() {
	s.OrderType = ""
	s.AddressText = ""
	s.Neighborhood = ""
	s.PaymentMethod = ""
	s.PaymentTiming = ""
}

func validPhase(p string) bool {
	switch p {
	case models.PHASE_IDLE, models.PHASE_ASSIST, models.PHASE_COLLECTING_ORDER_TYPE,
		models.PHASE_COLLECTING_ADDRESS, models.PHASE_COLLECTING_PAYMENT,
		models.PHASE_READY, models.PHASE_HANDOFF:
		return true
	}
	return false
}

func collecting(p string) bool {
	return p == models.PHASE_COLLECTING_ORDER_TYPE ||
		p == models.PHASE_COLLECTING_ADDRESS ||
		p == models.PHASE_COLLECTING_PAYMENT
}

// StateStore persists one State per Key, last write wins.
type StateStore interface {
	Get(ctx context.Context, key Key) (State, bool, error)
	Set(ctx context.Context, st State) error
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) find(key Key) (models.ConversationState, bool, error) {
	var row models.ConversationState
	err := s.db.
		Where("tenant_id = ? AND channel_instance = ? AND remote_identity = ?", key.TenantID, key.ChannelInstance, key.RemoteIdentity).
		First(&row).Error
	if gorm.IsRecordNotFoundError(err) {
		return row, false, nil
	}
	if err != nil {
		return row, false, errors.Wrap(err, "conversation: get state")
	}
	return row, true, nil
}

func (s *Store) Get(ctx context.Context, key Key) (State, bool, error) {
	row, ok, err := s.find(key)
	if err != nil || !ok {
		return State{}, ok, err
	}
	return fromRow(row), true, nil
}

func (s *Store) Set(ctx context.Context, st State) error {
	if err := st.Key.validate(); err != nil {
		return err
	}
	st = normalize(st)
	row, ok, err := s.find(st.Key)
	if err != nil {
		return err
	}
	if !ok {
		row = toRow(st)
		if err := s.db.Create(&row).Error; err == nil {
			return nil
		}
		// lost the race with another writer for a new key; fall through to update
		if row, ok, err = s.find(st.Key); err != nil {
			return err
		} else if !ok {
			return errors.New("conversation: create state failed")
		}
	}
	err = s.db.Model(&models.ConversationState{}).Where("id = ?", row.ID).Updates(map[string]any{
		"phase":              st.Phase,
		"entered_at":         st.EnteredAt.UTC(),
		"last_user_at":       st.LastUserAt.UTC(),
		"last_bot_at":        utcPtr(st.LastBotAt),
		"has_introduced":     st.HasIntroduced,
		"order_type":         st.OrderType,
		"address_text":       st.AddressText,
		"neighborhood":       st.Neighborhood,
		"payment_method":     st.PaymentMethod,
		"payment_timing":     st.PaymentTiming,
		"assist_cta_count":   st.AssistCtaCount,
		"last_assist_cta_at": utcPtr(st.LastAssistCtaAt),
		"handoff_active":     st.HandoffActive,
	}).Error
	return errors.Wrap(err, "conversation: set state")
}

// normalize repairs rows that do not satisfy the state invariants.
func normalize(st State) State {
	if !validPhase(st.Phase) {
		st.Phase = models.PHASE_IDLE
	}
	if st.HandoffActive {
		st.Phase = models.PHASE_HANDOFF
	}
	if st.Phase == models.PHASE_HANDOFF {
		st.HandoffActive = true
	}
	if st.AssistCtaCount < 0 {
		st.AssistCtaCount = 0
	}
	return st
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func toRow(st State) models.ConversationState {
	return models.ConversationState{
		TenantID:        st.TenantID,
		ChannelInstance: st.ChannelInstance,
		RemoteIdentity:  st.RemoteIdentity,
		Phase:           st.Phase,
		EnteredAt:       st.EnteredAt.UTC(),
		LastUserAt:      st.LastUserAt.UTC(),
		LastBotAt:       utcPtr(st.LastBotAt),
		HasIntroduced:   st.HasIntroduced,
		OrderType:       st.OrderType,
		AddressText:     st.AddressText,
		Neighborhood:    st.Neighborhood,
		PaymentMethod:   st.PaymentMethod,
		PaymentTiming:   st.PaymentTiming,
		AssistCtaCount:  st.AssistCtaCount,
		LastAssistCtaAt: utcPtr(st.LastAssistCtaAt),
		HandoffActive:   st.HandoffActive,
	}
}

func fromRow(row models.ConversationState) State {
	return normalize(State{
		Key: Key{
			TenantID:        row.TenantID,
			ChannelInstance: row.ChannelInstance,
			RemoteIdentity:  row.RemoteIdentity,
		},
		Phase:           row.Phase,
		EnteredAt:       row.EnteredAt,
		LastUserAt:      row.LastUserAt,
		LastBotAt:       row.LastBotAt,
		HasIntroduced:   row.HasIntroduced,
		OrderType:       row.OrderType,
		AddressText:     row.AddressText,
		Neighborhood:    row.Neighborhood,
		PaymentMethod:   row.PaymentMethod,
		PaymentTiming:   row.PaymentTiming,
		AssistCtaCount:  row.AssistCtaCount,
		LastAssistCtaAt: row.LastAssistCtaAt,
		HandoffActive:   row.HandoffActive,
	})
}

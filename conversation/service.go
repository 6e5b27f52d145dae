package conversation

import (
	"context"
	"strings"
	"time"

	"balcao/apperrors"
	"balcao/audit"
	"balcao/metrics"
	"balcao/models"
	"balcao/preorder"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type SettingsSource interface {
	Get(ctx context.Context, tenantID int64) (Settings, error)
}

type PreorderCreator interface {
	Create(ctx context.Context, d preorder.Draft, actor string) (preorder.Preorder, error)
}

type Inbound struct {
	Key
	Text  string       `json:"text"`
	Media []MediaAsset `json:"media,omitempty"`
}

type Result struct {
	Decision
	Preorder *preorder.Preorder `json:"preorder,omitempty"`
}

// Service runs one inbound message through the machine and persists the
// outcome. Callers must serialise calls per Key (see Sequencer).
type Service struct {
	states    StateStore
	settings  SettingsSource
	machine   *Machine
	preorders PreorderCreator
	trail     *audit.Trail
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewService(states StateStore, settings SettingsSource, machine *Machine, preorders PreorderCreator, trail *audit.Trail, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		states:    states,
		settings:  settings,
		machine:   machine,
		preorders: preorders,
		trail:     trail,
		log:       log.WithField("component", "conversation"),
		now:       time.Now,
	}
}

func (s *Service) HandleInbound(ctx context.Context, in Inbound) (Result, error) {
	in.RemoteIdentity = strings.TrimSpace(in.RemoteIdentity)
	if err := in.Key.validate(); err != nil {
		return Result{}, err
	}

	st, found, err := s.states.Get(ctx, in.Key)
	if err != nil {
		return Result{}, err
	}
	if !found {
		st = NewState(in.Key, s.now().UTC())
	}
	settings, err := s.settings.Get(ctx, in.TenantID)
	if err != nil {
		return Result{}, errors.Wrap(err, "conversation: load settings")
	}

	d := s.machine.Decide(ctx, st, in.Text, settings, in.Media)
	if err := s.states.Set(ctx, d.NextState); err != nil {
		return Result{}, err
	}
	metrics.RecordDecision(d.Mode)

	log := s.log.WithFields(logrus.Fields{
		"tenant_id": in.TenantID,
		"remote":    in.RemoteIdentity,
		"phase":     d.NextState.Phase,
		"mode":      d.Mode,
	})
	if d.Transitioned {
		log.WithField("from", st.Phase).Debug("conversation: transition")
		s.trail.Append(ctx, audit.Entry{
			Key:       in.Key.AuditKey(),
			Kind:      models.AUDIT_KIND_STATE_TRANSITION,
			FromPhase: st.Phase,
			ToPhase:   d.NextState.Phase,
			Detail: map[string]any{
				"mode":          d.Mode,
				"handoffActive": d.NextState.HandoffActive,
				"hasIntroduced": d.NextState.HasIntroduced,
			},
		})
	}

	res := Result{Decision: d}
	if st.Phase != models.PHASE_READY && d.NextState.Phase == models.PHASE_READY && s.preorders != nil {
		p, err := s.preorders.Create(ctx, draftFrom(d.NextState, settings), models.ACTOR_BOT)
		if err != nil {
			// the conversation already moved on; an operator can create it by hand
			log.WithError(err).Warn("conversation: preorder draft not created")
		} else {
			res.Preorder = &p
			log.WithField("preorder", p.Identifier).Info("conversation: preorder draft created")
		}
	}
	return res, nil
}

func draftFrom(st State, settings Settings) preorder.Draft {
	d := preorder.Draft{
		TenantID:  st.TenantID,
		ContactID: st.RemoteIdentity,
		Items:     []preorder.Item{},
		Delivery:  preorder.Delivery{Mode: models.DELIVERY_MODE_PICKUP},
		Payment:   preorder.Payment{Mode: st.PaymentMethod},
	}
	if st.OrderType == models.ORDER_TYPE_DELIVERY {
		d.Delivery = preorder.Delivery{
			Mode:    models.DELIVERY_MODE_DELIVERY,
			Fee:     settings.DeliveryFee,
			Address: st.AddressText,
		}
	}
	return d
}

// State returns the stored state of key.
func (s *Service) State(ctx context.Context, key Key) (State, error) {
	st, found, err := s.states.Get(ctx, key)
	if err != nil {
		return State{}, err
	}
	if !found {
		return State{}, apperrors.NotFound("conversa não encontrada")
	}
	return st, nil
}

// ResetHandoff puts the conversation back to idle. It is the only way out of
// handoff.
func (s *Service) ResetHandoff(ctx context.Context, key Key, actor string) (State, error) {
	st, err := s.State(ctx, key)
	if err != nil {
		return State{}, err
	}
	from := st.Phase
	st.clearOrder()
	st.Phase = models.PHASE_IDLE
	st.HandoffActive = false
	st.EnteredAt = s.now().UTC()
	if err := s.states.Set(ctx, st); err != nil {
		return State{}, err
	}
	s.trail.Append(ctx, audit.Entry{
		Key:       key.AuditKey(),
		Kind:      models.AUDIT_KIND_STATE_TRANSITION,
		FromPhase: from,
		ToPhase:   models.PHASE_IDLE,
		Detail:    map[string]any{"actor": actor, "reason": "reset"},
	})
	return st, nil
}

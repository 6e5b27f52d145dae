// Package conversation tracks the phase of every WhatsApp dialogue and decides,
// per inbound message, whether the scripted intake answers it or the
// generative responder does.
package conversation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"balcao/catalog"
	"balcao/models"

	"github.com/sirupsen/logrus"
)

const (
	ModeDeterministic = "deterministic"
	ModeDelegate      = "delegate"
)

type Decision struct {
	Mode         string       `json:"mode"`
	ReplyText    string       `json:"replyText,omitempty"`
	CtaText      string       `json:"ctaText,omitempty"`
	Media        []MediaAsset `json:"media,omitempty"`
	NextState    State        `json:"nextState"`
	Transitioned bool         `json:"transitioned"`
}

// Readiness is the catalog lookup behind the order gate.
type Readiness interface {
	Get(ctx context.Context, tenantID int64) (catalog.Report, error)
}

type MachineOptions struct {
	CatalogGate bool
	CTAThrottle time.Duration
}

type Machine struct {
	catalog  Readiness
	gate     bool
	throttle time.Duration
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewMachine builds the decision function. With a nil Readiness the catalog
// gate is off.
func NewMachine(r Readiness, opts MachineOptions, log logrus.FieldLogger) *Machine {
	if opts.CTAThrottle <= 0 {
		opts.CTAThrottle = 5 * time.Minute
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Machine{
		catalog:  r,
		gate:     opts.CatalogGate && r != nil,
		throttle: opts.CTAThrottle,
		log:      log.WithField("component", "conversation"),
		now:      time.Now,
	}
}

// Decide computes the reply mode and next state for one inbound text. It never
// writes anything; the caller persists NextState.
func (m *Machine) Decide(ctx context.Context, st State, text string, settings Settings, media []MediaAsset) Decision {
	now := m.now().UTC()
	next := st
	next.LastUserAt = now

	if st.HandoffActive || st.Phase == models.PHASE_HANDOFF {
		return Decision{Mode: ModeDelegate, NextState: next}
	}

	if !st.HasIntroduced {
		next.HasIntroduced = true
		return m.reply(next, menuText(settings), true)
	}

	folded := fold(text)
	open := st.Phase == models.PHASE_IDLE || st.Phase == models.PHASE_ASSIST

	if open {
		if opt, ok := menuSelection(folded, settings.Menu); ok {
			switch opt.Action {
			case ActionHuman:
				next.Phase = models.PHASE_HANDOFF
				next.HandoffActive = true
				next.EnteredAt = now
				return m.reply(next, "Certo! Já avisei nossa equipe, um atendente vai continuar a conversa por aqui.", true)
			case ActionHoursLocation:
				return m.reply(next, hoursLocationText(settings), false)
			case ActionProducts:
				d := m.reply(next, settings.ProductsText, false)
				d.Media = media
				return d
			case ActionOrder:
				// the digit itself must not be read as an answer
				return m.startOrder(ctx, next, "", "", settings, now)
			}
		}
	}

	if isDecline(folded) && st.Phase != models.PHASE_IDLE {
		next.clearOrder()
		next.Phase = models.PHASE_IDLE
		next.EnteredAt = now
		return m.reply(next, "Tudo bem! Quando quiser fazer um pedido é só chamar.", true)
	}

	if open && isOrderIntent(folded) {
		return m.startOrder(ctx, next, text, folded, settings, now)
	}

	if collecting(st.Phase) {
		return m.collect(next, text, folded, false, now)
	}

	if st.Phase == models.PHASE_READY {
		return Decision{Mode: ModeDelegate, NextState: next}
	}

	d := Decision{Mode: ModeDelegate, NextState: next}
	if st.Phase != models.PHASE_ASSIST && !isDecline(folded) {
		d.NextState.Phase = models.PHASE_ASSIST
		d.NextState.EnteredAt = now
		d.Transitioned = true
	}
	if d.NextState.Phase == models.PHASE_ASSIST && m.ctaDue(st, now) {
		d.CtaText = settings.AssistCtaText
		d.NextState.AssistCtaCount++
		d.NextState.LastAssistCtaAt = &now
	}
	return d
}

func (m *Machine) ctaDue(st State, now time.Time) bool {
	return st.LastAssistCtaAt == nil || now.Sub(*st.LastAssistCtaAt) >= m.throttle
}

func (m *Machine) reply(next State, text string, transitioned bool) Decision {
	now := next.LastUserAt
	next.LastBotAt = &now
	return Decision{Mode: ModeDeterministic, ReplyText: text, NextState: next, Transitioned: transitioned}
}

func (m *Machine) startOrder(ctx context.Context, next State, text, folded string, settings Settings, now time.Time) Decision {
	if m.gate && settings.RequireCatalogReady {
		rep, err := m.catalog.Get(ctx, next.TenantID)
		if err != nil {
			// fail closed: no automated ordering without a verified catalog
			m.log.WithError(err).WithField("tenant_id", next.TenantID).Warn("conversation: catalog lookup failed")
			rep = catalog.Report{Issues: []catalog.Issue{{Code: "lookup_failed", Message: "não foi possível consultar o catálogo"}}}
		}
		if !rep.Ready {
			return m.reply(next, notReadyText(rep), false)
		}
	}
	next.clearOrder()
	next.Phase = models.PHASE_COLLECTING_ORDER_TYPE
	next.EnteredAt = now
	return m.collect(next, text, folded, true, now)
}

// collect parses the field of the current phase from text and advances to the
// first field still missing. Partial answers are kept in NextState.
func (m *Machine) collect(next State, text, folded string, transitioned bool, now time.Time) Decision {
	from := next.Phase
	switch next.Phase {
	case models.PHASE_COLLECTING_ORDER_TYPE:
		if t := parseOrderType(folded); t != "" {
			next.OrderType = t
		}
	case models.PHASE_COLLECTING_ADDRESS:
		if addr, nb, ok := parseAddress(text); ok {
			next.AddressText = addr
			next.Neighborhood = nb
		}
	case models.PHASE_COLLECTING_PAYMENT:
		method, timing := parsePayment(folded)
		if method != "" {
			next.PaymentMethod = method
		}
		if timing != "" {
			next.PaymentTiming = timing
		}
		if next.PaymentMethod == models.PAYMENT_METHOD_CASH && next.PaymentTiming == "" {
			next.PaymentTiming = models.PAYMENT_TIMING_ON_DELIVERY
		}
	}

	next.Phase = pendingPhase(next)
	if next.Phase != from {
		next.EnteredAt = now
		transitioned = true
	}
	return m.reply(next, question(next), transitioned)
}

func pendingPhase(s State) string {
	switch {
	case s.OrderType == "":
		return models.PHASE_COLLECTING_ORDER_TYPE
	case s.OrderType == models.ORDER_TYPE_DELIVERY && s.AddressText == "":
		return models.PHASE_COLLECTING_ADDRESS
	case s.PaymentMethod == "" || s.PaymentTiming == "":
		return models.PHASE_COLLECTING_PAYMENT
	}
	return models.PHASE_READY
}

func question(s State) string {
	switch s.Phase {
	case models.PHASE_COLLECTING_ORDER_TYPE:
		return "Vai ser entrega ou retirada? Responda 1 para entrega ou 2 para retirada."
	case models.PHASE_COLLECTING_ADDRESS:
		return "Qual o endereço de entrega? Se puder, informe também o bairro."
	case models.PHASE_COLLECTING_PAYMENT:
		if s.PaymentMethod == "" {
			return "Como prefere pagar: pix, cartão ou dinheiro?"
		}
		if s.OrderType == models.ORDER_TYPE_PICKUP {
			return "Você prefere pagar agora (antecipado) ou na retirada?"
		}
		return "Você prefere pagar agora (antecipado) ou na entrega?"
	}
	return summaryText(s)
}

func menuText(s Settings) string {
	var b strings.Builder
	b.WriteString(s.Greeting)
	b.WriteString("\n\nComo posso ajudar? Responda com o número:\n")
	for _, opt := range s.Menu {
		fmt.Fprintf(&b, "%s - %s\n", opt.Key, opt.Label)
	}
	return strings.TrimRight(b.String(), "\n")
}

func hoursLocationText(s Settings) string {
	parts := []string{s.HoursText}
	if strings.TrimSpace(s.LocationText) != "" {
		parts = append(parts, s.LocationText)
	}
	return strings.Join(parts, "\n")
}

func notReadyText(rep catalog.Report) string {
	var b strings.Builder
	b.WriteString("No momento não consigo registrar pedidos automaticamente porque o catálogo ainda está incompleto:")
	for _, is := range rep.Issues {
		if is.Count > 0 {
			fmt.Fprintf(&b, "\n- %s (%d)", is.Message, is.Count)
		} else {
			fmt.Fprintf(&b, "\n- %s", is.Message)
		}
	}
	b.WriteString("\nMas posso tirar suas dúvidas por aqui!")
	return b.String()
}

var (
	orderTypeLabels = map[string]string{
		models.ORDER_TYPE_DELIVERY: "Entrega",
		models.ORDER_TYPE_PICKUP:   "Retirada",
	}
	paymentLabels = map[string]string{
		models.PAYMENT_METHOD_PIX:  "Pix",
		models.PAYMENT_METHOD_CARD: "Cartão",
		models.PAYMENT_METHOD_CASH: "Dinheiro",
	}
	timingLabels = map[string]string{
		models.PAYMENT_TIMING_NOW:         "antecipado",
		models.PAYMENT_TIMING_ON_DELIVERY: "na entrega",
	}
)

func summaryText(s State) string {
	var b strings.Builder
	b.WriteString("Anotado! Resumo do pedido:\n")
	fmt.Fprintf(&b, "- Tipo: %s\n", orderTypeLabels[s.OrderType])
	if s.OrderType == models.ORDER_TYPE_DELIVERY {
		fmt.Fprintf(&b, "- Endereço: %s\n", s.AddressText)
		if s.Neighborhood != "" {
			fmt.Fprintf(&b, "- Bairro: %s\n", s.Neighborhood)
		}
	}
	timing := timingLabels[s.PaymentTiming]
	if s.OrderType == models.ORDER_TYPE_PICKUP && s.PaymentTiming == models.PAYMENT_TIMING_ON_DELIVERY {
		timing = "na retirada"
	}
	fmt.Fprintf(&b, "- Pagamento: %s (%s)\n", paymentLabels[s.PaymentMethod], timing)
	b.WriteString("Agora me conta: quais produtos você quer?")
	return b.String()
}

// OrderSummary lists the collected intake fields once the conversation is
// ready, "" before that.
func (s State) OrderSummary() string {
	if s.Phase != models.PHASE_READY {
		return ""
	}
	lines := strings.Split(summaryText(s), "\n")
	return strings.Join(lines[1:len(lines)-1], "\n")
}

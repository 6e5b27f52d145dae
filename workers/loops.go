package workers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"balcao/dispatch"
	"balcao/models"
	"balcao/outbox"
	"balcao/preorder"

	"github.com/sirupsen/logrus"
)

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

type BatchRunner interface {
	RunBatch(ctx context.Context, opts dispatch.Options) (dispatch.BatchResult, error)
}

// DispatchLoop runs one dispatch batch per interval. A batch always finishes
// before the next one starts.
type DispatchLoop struct {
	runner   BatchRunner
	interval time.Duration
	log      logrus.FieldLogger
}

func NewDispatchLoop(r BatchRunner, interval time.Duration, log logrus.FieldLogger) *DispatchLoop {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DispatchLoop{runner: r, interval: interval, log: log.WithField("component", "dispatch loop")}
}

func (l *DispatchLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := l.runner.RunBatch(ctx, dispatch.Options{}); err != nil {
				l.log.WithError(err).Warn("dispatch loop: batch failed")
			}
		}
	}
}

type Expirer interface {
	ExpireDue(ctx context.Context, limit int) ([]preorder.Preorder, error)
}

// ExpiryNotifier tells the customer their order was dropped. Its Notify is the
// preorder store's OnExpire hook, so the notice goes out whether a read, an
// update or the sweep noticed the expiry first.
type ExpiryNotifier struct {
	outbox Enqueuer
	log    logrus.FieldLogger
}

func NewExpiryNotifier(ob Enqueuer, log logrus.FieldLogger) *ExpiryNotifier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ExpiryNotifier{outbox: ob, log: log.WithField("component", "preorder expiry")}
}

func (n *ExpiryNotifier) Notify(ctx context.Context, p preorder.Preorder) {
	if p.ContactID == "" {
		return
	}
	key := "preorder-expired:" + formatID(p.ID)
	orderID := p.ID
	_, err := n.outbox.Enqueue(ctx, outbox.Item{
		TenantID:       p.TenantID,
		To:             p.ContactID,
		Message:        fmt.Sprintf("Seu pedido %s expirou por falta de confirmação. Se ainda quiser, é só mandar \"quero pedir\".", p.Identifier),
		OrderID:        &orderID,
		IdempotencyKey: &key,
		Context:        outbox.Context{Kind: models.OUTBOX_KIND_SYSTEM},
	})
	if err != nil {
		n.log.WithError(err).WithField("preorder", p.Identifier).Warn("preorder expiry: notice not enqueued")
	}
}

// PreorderSweep expires overdue drafts ahead of any read.
type PreorderSweep struct {
	store    Expirer
	interval time.Duration
	log      logrus.FieldLogger
}

func NewPreorderSweep(store Expirer, interval time.Duration, log logrus.FieldLogger) *PreorderSweep {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &PreorderSweep{store: store, interval: interval, log: log.WithField("component", "preorder sweep")}
}

func (s *PreorderSweep) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log.WithError(err).Warn("preorder sweep: failed")
			}
		}
	}
}

// Sweep expires one round of overdue preorders and returns how many it expired.
func (s *PreorderSweep) Sweep(ctx context.Context) (int, error) {
	expired, err := s.store.ExpireDue(ctx, 100)
	if len(expired) > 0 {
		s.log.WithField("expired", len(expired)).Info("preorder sweep: expired drafts")
	}
	return len(expired), err
}

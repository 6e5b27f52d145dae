package main

import (
	"time"

	"balcao/audit"
	"balcao/catalog"
	"balcao/config"
	"balcao/controllers"
	"balcao/conversation"
	"balcao/dispatch"
	"balcao/outbox"
	"balcao/pacing"
	"balcao/preorder"
	"balcao/tools"
	"balcao/workers"

	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

// app is every long-lived component, built once from the configuration.
type app struct {
	controller *controllers.Controller
	runner     *dispatch.Runner
	events     *workers.EventProcessor
	dispatch   *workers.DispatchLoop
	sweep      *workers.PreorderSweep
}

func build(cfg config.Configuration, db *gorm.DB, log logrus.FieldLogger) (*app, error) {
	pol, err := pacing.New(cfg.Pacing)
	if err != nil {
		return nil, err
	}

	trail := audit.NewTrail(db, log)
	ob := outbox.NewStore(db, time.Duration(cfg.Dispatch.ClaimTTLSeconds)*time.Second)
	ledger := dispatch.NewLedger(db)
	provider := tools.CloudAPIProvider{}
	runner := dispatch.NewRunner(ob, ledger, provider, pol, trail, dispatch.ConfigFrom(cfg.Dispatch), log)
	scheduler := dispatch.NewScheduler(db, ob, pol, log)

	preorders := preorder.NewStore(db, preorder.Options{
		TTL:          time.Duration(cfg.Preorder.DefaultTTLHours) * time.Hour,
		HistoryLimit: cfg.Preorder.HistoryLimit,
		OnExpire:     workers.NewExpiryNotifier(ob, log).Notify,
	}, log)

	cat := catalog.NewProvider(db)
	settings := conversation.NewSettingsStore(db)
	var readiness conversation.Readiness
	if cfg.Conversation.CatalogGateEnabled {
		readiness = cat
	}
	machine := conversation.NewMachine(readiness, conversation.MachineOptions{
		CatalogGate: cfg.Conversation.CatalogGateEnabled,
		CTAThrottle: time.Duration(cfg.Conversation.AssistCTAThrottleMinutes) * time.Minute,
	}, log)
	svc := conversation.NewService(conversation.NewStore(db), settings, machine, preorders, trail, log)

	seq := conversation.NewSequencer(log)
	events := workers.NewEventProcessor(db, svc, tools.NewResponder(cfg.OpenAI), settings, ob, seq, log)
	if cfg.Conversation.DebounceSeconds > 0 {
		events.Debounce = time.Duration(cfg.Conversation.DebounceSeconds) * time.Second
	}

	ctl := &controllers.Controller{
		Conversations: svc,
		Sequencer:     seq,
		Settings:      settings,
		Events:        events,
		Catalog:       cat,
		Trail:         trail,
		Outbox:        ob,
		Runner:        runner,
		Scheduler:     scheduler,
		Ledger:        ledger,
		Preorders:     preorders,
		WhatsApp:      cfg.WhatsApp,
		Log:           log,
	}

	return &app{
		controller: ctl,
		runner:     runner,
		events:     events,
		dispatch:   workers.NewDispatchLoop(runner, time.Duration(cfg.Dispatch.PollIntervalSeconds)*time.Second, log),
		sweep:      workers.NewPreorderSweep(preorders, time.Duration(cfg.Preorder.SweepIntervalSeconds)*time.Second, log),
	}, nil
}

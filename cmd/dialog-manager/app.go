// cmd/dialog-manager/app.go
package main

import (
	"context"
	"fmt"
	"time"

	"dialog-manager/internal/action"
	awsclients "dialog-manager/internal/common/aws"
	"dialog-manager/internal/common/config"
	"dialog-manager/internal/common/database"
	"dialog-manager/internal/common/logger"
	"dialog-manager/internal/common/observability"
	"dialog-manager/internal/conversation"
	"dialog-manager/internal/dialogue"
	"dialog-manager/internal/forms"
	"dialog-manager/internal/intent"
	"dialog-manager/internal/llm"
	"dialog-manager/internal/policy"
	"dialog-manager/pkg/registry"
)

const formCacheTTL = 5 * time.Minute

// app holds the wired engine and everything that must be released on exit.
type app struct {
	engine  *dialogue.Engine
	memory  *conversation.MemoryTracker
	closers []func()
	ready   []func(context.Context) error
}

func (a *app) Close() {
	if a.memory != nil {
		a.memory.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// Ready runs the readiness probes of the backing stores.
func (a *app) Ready(ctx context.Context) error {
	for _, probe := range a.ready {
		if err := probe(ctx); err != nil {
			return err
		}
	}
	return nil
}

func buildApp(ctx context.Context, cfg *config.Config, log logger.Logger, obs *observability.Observability) (*app, error) {
	a := &app{}
	fail := func(err error) (*app, error) {
		a.Close()
		return nil, err
	}

	domain, err := registry.LoadRegistry(cfg.Dialogue.RegistryPath)
	if err != nil {
		return fail(err)
	}
	tree, err := domain.Tree()
	if err != nil {
		return fail(err)
	}

	store, formList, err := buildFormStore(ctx, a, cfg, domain, log)
	if err != nil {
		return fail(err)
	}

	tracker, err := buildTracker(ctx, a, cfg, log)
	if err != nil {
		return fail(err)
	}

	var retriever intent.Retriever
	if cfg.Retrieval.Enabled {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return fail(err)
		}
		a.ready = append(a.ready, es.Ping)
		retriever = intent.NewElasticsearchRetriever(es.Client, cfg.Retrieval.Index)
	}

	client := llm.NewClient(llm.ConfigFromApp(cfg.LLM), log.With(map[string]interface{}{"component": "llm"}))

	notifier, err := buildNotifier(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	actions := action.NewRegistry()
	action.RegisterBuiltins(actions, llm.NewChitchatResponder(client), notifier, log)
	for _, f := range formList {
		if !actions.Has(f.Action) {
			actions.MustRegister(action.NewFormSummaryAction(f.Action))
		}
	}

	var telemetry dialogue.Telemetry
	if obs != nil {
		telemetry = obs
	}

	d := cfg.Dialogue
	policyOpts := policy.Options{
		MaxFollowUpTimes:       d.MaxFollowUpTimes,
		SlotConfirmThreshold:   d.SlotConfirmThreshold,
		IntentConfirmThreshold: d.IntentConfirmThreshold,
		BusinessIntents:        d.BusinessIntents,
		ChitchatIntents:        d.ChitchatIntents,
		OutOfScopeIntents:      d.OutOfScopeIntents,
	}
	chain := policy.NewDefaultChain(store, policyOpts, log)

	resolver := intent.NewResolver(tree, llm.NewIntentOracle(client), retriever, intent.Options{
		TopK:     cfg.Retrieval.TopK,
		MaxDepth: d.MaxIntentDepth,
	}, log)

	a.engine = dialogue.NewEngine(dialogue.Deps{
		Tracker:   tracker,
		Resolver:  resolver,
		Extractor: llm.NewEntityExtractor(client),
		Forms:     store,
		Chain:     chain,
		Classes:   policy.NewClasses(policyOpts),
		Actions:   actions,
		Telemetry: telemetry,
		Logger:    log,
	}, dialogue.Options{TurnTimeout: d.TurnTimeout})

	log.Info("Dialogue engine ready", map[string]interface{}{
		"intents":      len(tree.Leaves()),
		"forms":        len(formList),
		"actions":      actions.Names(),
		"formSource":   d.FormSource,
		"sessionStore": d.SessionStore,
		"retrieval":    cfg.Retrieval.Enabled,
	})
	return a, nil
}

func buildFormStore(ctx context.Context, a *app, cfg *config.Config, domain *registry.Domain, log logger.Logger) (forms.Store, []*forms.Form, error) {
	if cfg.Dialogue.FormSource != "postgres" {
		store, err := domain.Store()
		if err != nil {
			return nil, nil, err
		}
		return store, domain.Forms, nil
	}

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, func() { _ = pg.Close() })
	if err := pg.Ping(ctx); err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	a.ready = append(a.ready, pg.Ping)

	store := forms.NewPostgresStore(pg.DB, formCacheTTL, log)
	list, err := store.AllForms(ctx)
	if err != nil {
		return nil, nil, err
	}
	return store, list, nil
}

func buildTracker(ctx context.Context, a *app, cfg *config.Config, log logger.Logger) (conversation.Tracker, error) {
	d := cfg.Dialogue
	opts := conversation.Options{
		TTL:             d.SessionTTL,
		SweepInterval:   d.SweepInterval,
		LockTTL:         d.LockTTL,
		HistorySize:     d.HistorySize,
		IntentQueueSize: d.IntentQueueSize,
	}

	if d.SessionStore == "redis" {
		rc := database.NewRedis(cfg.Database.Redis)
		a.closers = append(a.closers, func() { _ = rc.Close() })
		if err := rc.Ping(ctx); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.ready = append(a.ready, rc.Ping)
		return conversation.NewRedisTracker(rc.Client, opts, log), nil
	}

	mem := conversation.NewMemoryTracker(opts, log)
	mem.Start(ctx)
	a.memory = mem
	return mem, nil
}

func buildNotifier(ctx context.Context, cfg *config.Config) (action.HandoffNotifier, error) {
	h := cfg.Handoff
	if !h.SNS.Enabled && !h.SES.Enabled {
		return nil, nil
	}

	awsCfg, err := awsclients.LoadConfig(ctx, h.Region)
	if err != nil {
		return nil, err
	}

	var notifiers action.MultiNotifier
	if h.SNS.Enabled {
		notifiers = append(notifiers, action.NewSNSNotifier(awsclients.NewSNSClient(awsCfg), h.SNS.TopicARN))
	}
	if h.SES.Enabled {
		notifiers = append(notifiers, action.NewSESNotifier(awsclients.NewSESClient(awsCfg), h.SES.FromEmail, h.SES.ToEmail))
	}
	return notifiers, nil
}

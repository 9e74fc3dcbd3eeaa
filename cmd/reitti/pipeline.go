package main

import (
	"context"
	"fmt"

	"github.com/yairfalse/reitti/audit"
	"github.com/yairfalse/reitti/config"
	"github.com/yairfalse/reitti/dispatch"
	"github.com/yairfalse/reitti/fallback"
	"github.com/yairfalse/reitti/orchestrator"
	"github.com/yairfalse/reitti/planner"
	"github.com/yairfalse/reitti/policy"
	"github.com/yairfalse/reitti/registry"
	"github.com/yairfalse/reitti/storage"
	"github.com/yairfalse/reitti/telemetry"
	"github.com/yairfalse/reitti/types"
)

// pipeline bundles everything a command needs to process events
type pipeline struct {
	cfg      *config.Config
	registry *registry.Registry
	orch     *orchestrator.Orchestrator
	trail    *audit.Trail
	store    *storage.Store
	logger   *telemetry.Logger
}

// buildPipeline constructs the full processing pipeline from config.
// Callers must Close it when done.
func buildPipeline(ctx context.Context, instruction string) (*pipeline, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := telemetry.NewLogger("reitti")

	reg, err := registry.New(cfg.Services)
	if err != nil {
		return nil, err
	}

	// Backend "rules" skips AI planning entirely
	var plnr planner.Planner
	if cfg.AI.Backend != "rules" {
		plnr, err = planner.New(cfg.AI)
		if err != nil {
			return nil, fmt.Errorf("failed to create planner: %w", err)
		}
	}

	rules := policy.Rules{MaxActions: cfg.Routing.MaxActions}
	if cfg.Routing.MinTicketSeverity != "" {
		rules.MinTicketSeverity = types.ParseSeverity(cfg.Routing.MinTicketSeverity)
	}
	pol := policy.NewEngine(rules)
	if cfg.Routing.PolicyDir != "" {
		if err := pol.LoadDir(ctx, cfg.Routing.PolicyDir); err != nil {
			return nil, err
		}
	}

	trailCfg := audit.DefaultConfig()
	if cfg.Audit.MaxFileSize > 0 {
		trailCfg.MaxFileSize = cfg.Audit.MaxFileSize
	}
	if cfg.Audit.Retention > 0 {
		trailCfg.RetentionDays = int(cfg.Audit.Retention.Hours() / 24)
	}
	trail, err := audit.OpenWithConfig(cfg.Audit.Dir, trailCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit trail: %w", err)
	}

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		_ = trail.Close()
		return nil, fmt.Errorf("failed to open result store: %w", err)
	}

	disp := dispatch.NewClient(reg, dispatch.Options{
		MaxRetries: cfg.Dispatch.MaxRetries,
		Timeout:    cfg.Dispatch.Timeout,
	}, logger)

	orch := orchestrator.New(
		plnr,
		fallback.NewDefault(),
		pol,
		disp,
		reg,
		audit.NewRecorder(trail, logger),
		store,
		orchestrator.Options{
			Instruction: instruction,
			FanoutLimit: cfg.Routing.FanoutLimit,
		},
	)

	return &pipeline{
		cfg:      cfg,
		registry: reg,
		orch:     orch,
		trail:    trail,
		store:    store,
		logger:   logger,
	}, nil
}

// Close releases trail and store handles
func (p *pipeline) Close() error {
	var err error
	if e := p.trail.Close(); e != nil {
		err = e
	}
	if e := p.store.Close(); e != nil && err == nil {
		err = e
	}
	return err
}

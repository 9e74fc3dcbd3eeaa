// Package planner adapts interchangeable AI reasoning backends behind a
// single planning interface. The orchestrator never branches on backend
// identity; backends register factories and are selected by config.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/yairfalse/reitti/config"
	"github.com/yairfalse/reitti/registry"
	"github.com/yairfalse/reitti/types"
)

// Planner turns (event, instruction) into an action plan grounded on the
// capability registry. One round trip per call, no multi-turn state.
// A Planner never falls back on its own; failures surface as AdapterError.
type Planner interface {
	Plan(ctx context.Context, event *types.CanonicalEvent, instruction string, reg *registry.Registry) (*types.ActionPlan, error)
	Name() string
}

// Factory creates a planner instance from config
type Factory func(cfg config.AIConfig) (Planner, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]Factory)
)

// Register registers a backend factory under a name
func Register(name string, factory Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// New creates the planner selected by cfg.Backend
func New(cfg config.AIConfig) (Planner, error) {
	factoriesMu.RLock()
	factory, ok := factories[cfg.Backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai backend %q (have %v)", cfg.Backend, Backends())
	}
	return factory(cfg)
}

// Backends returns registered backend names
func Backends() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}

// completer is the single operation a concrete backend implements: one
// bounded completion call returning the raw model text
type completer interface {
	complete(ctx context.Context, system, user string) (string, error)
}

// adapter wires a concrete backend into the Planner contract: build the
// prompt, run one completion, parse and validate the plan
type adapter struct {
	name    string
	backend completer
}

func (a *adapter) Name() string { return a.name }

func (a *adapter) Plan(ctx context.Context, event *types.CanonicalEvent, instruction string, reg *registry.Registry) (*types.ActionPlan, error) {
	system := systemPrompt(reg)
	user := userPrompt(event, instruction)

	raw, err := a.backend.complete(ctx, system, user)
	if err != nil {
		return nil, a.wrapBackendErr(err)
	}

	plan, err := parsePlan(raw)
	if err != nil {
		return nil, &types.AdapterError{Backend: a.name, Reason: types.AdapterUnparseable, Err: err}
	}

	if err := validatePlan(plan, reg); err != nil {
		return nil, &types.AdapterError{Backend: a.name, Reason: types.AdapterInvalidPlan, Err: err}
	}

	plan.Source = types.PlanSourceAI
	return plan, nil
}

// wrapBackendErr maps transport failures onto adapter reason codes
func (a *adapter) wrapBackendErr(err error) error {
	reason := types.AdapterUnavailable
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = types.AdapterTimeout
	case isAuthErr(err):
		reason = types.AdapterAuth
	case isQuotaErr(err):
		reason = types.AdapterQuota
	}
	return &types.AdapterError{Backend: a.name, Reason: reason, Err: err}
}

func isAuthErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "401") ||
		strings.Contains(msg, "403") ||
		strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "access denied") ||
		strings.Contains(msg, "accessdenied") ||
		strings.Contains(msg, "invalid api key") ||
		strings.Contains(msg, "credential")
}

func isQuotaErr(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "throttl")
}

// validatePlan rejects plans referencing services or operations the
// model was never shown. Rejection is total, never partial execution.
func validatePlan(plan *types.ActionPlan, reg *registry.Registry) error {
	for _, action := range plan.Actions {
		if err := action.Validate(); err != nil {
			return err
		}
		if !reg.Has(action.Service, action.Operation) {
			return fmt.Errorf("plan references unknown capability %s/%s", action.Service, action.Operation)
		}
	}
	return nil
}

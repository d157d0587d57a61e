package autorelease

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/gighire/backend/internal/apperr"
	"github.com/gighire/backend/internal/models"
	"github.com/gighire/backend/internal/repository"
)

// RuleInput is an admin's rule definition. Conditions stay raw until they
// pass the trigger's schema.
type RuleInput struct {
	Name       string          `json:"name"`
	Trigger    string          `json:"trigger"`
	Enabled    *bool           `json:"enabled"`
	Priority   int             `json:"priority"`
	Conditions json.RawMessage `json:"conditions"`
}

func (e *engine) ListRules(ctx context.Context) ([]*models.AutoReleaseRule, error) {
	rules, err := e.store.Rules().List(ctx, false)
	if err != nil {
		return nil, apperr.Internal("list rules", err)
	}
	return rules, nil
}

func (e *engine) buildRule(in RuleInput, r *models.AutoReleaseRule) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return apperr.Validation("rule name is required")
	}
	if len(in.Conditions) == 0 {
		return apperr.Validation("conditions are required")
	}
	if err := e.validator.ValidateConditions(in.Trigger, in.Conditions); err != nil {
		return err
	}
	var c models.RuleConditions
	if err := json.Unmarshal(in.Conditions, &c); err != nil {
		return apperr.Validation("conditions do not match the rule shape")
	}
	r.Name, r.Trigger, r.Priority, r.Conditions = name, in.Trigger, in.Priority, c
	if in.Enabled != nil {
		r.Enabled = *in.Enabled
	}
	return nil
}

func (e *engine) CreateRule(ctx context.Context, in RuleInput) (*models.AutoReleaseRule, error) {
	now := e.now()
	r := &models.AutoReleaseRule{ID: uuid.New(), Enabled: true, CreatedAt: now, UpdatedAt: now}
	if err := e.buildRule(in, r); err != nil {
		return nil, err
	}
	if err := e.store.Rules().Create(ctx, r); err != nil {
		return nil, apperr.Internal("create rule", err)
	}
	e.log.Info("auto-release rule created", "rule_id", r.ID, "name", r.Name, "trigger", r.Trigger, "priority", r.Priority)
	return r, nil
}

func (e *engine) UpdateRule(ctx context.Context, id uuid.UUID, in RuleInput) (*models.AutoReleaseRule, error) {
	r, err := e.getRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.buildRule(in, r); err != nil {
		return nil, err
	}
	r.UpdatedAt = e.now()
	if err := e.store.Rules().Update(ctx, r); err != nil {
		return nil, apperr.Internal("update rule", err)
	}
	return r, nil
}

func (e *engine) SetRuleEnabled(ctx context.Context, id uuid.UUID, enabled bool) (*models.AutoReleaseRule, error) {
	r, err := e.getRule(ctx, id)
	if err != nil {
		return nil, err
	}
	r.Enabled, r.UpdatedAt = enabled, e.now()
	if err := e.store.Rules().Update(ctx, r); err != nil {
		return nil, apperr.Internal("update rule", err)
	}
	return r, nil
}

// DefaultRules releases completed work after 48h and force-releases any
// hold older than 72h.
func DefaultRules() []models.AutoReleaseRule {
	maxHold := 72.0
	return []models.AutoReleaseRule{
		{
			Name:     "Release 48h after completion",
			Trigger:  models.TriggerTimeBased,
			Enabled:  true,
			Priority: 10,
			Conditions: models.RuleConditions{
				AutoReleaseAfterHours: 48,
			},
		},
		{
			Name:     "Release holds older than 72h",
			Trigger:  models.TriggerHybrid,
			Enabled:  true,
			Priority: 20,
			Conditions: models.RuleConditions{
				AutoReleaseAfterHours: 24,
				RequiredStatus:        models.BookingWorkerCompleted,
				MaxHoldDurationHours:  &maxHold,
			},
		},
	}
}

// SeedRules inserts rules only when no rule exists yet, so edits made
// through the admin API survive restarts.
func (e *engine) SeedRules(ctx context.Context, rules []models.AutoReleaseRule) (int, error) {
	n, err := e.store.Rules().Count(ctx)
	if err != nil {
		return 0, apperr.Internal("count rules", err)
	}
	if n > 0 || len(rules) == 0 {
		return 0, nil
	}
	now := e.now()
	for i := range rules {
		r := rules[i]
		if err := e.validator.ValidateRule(&r); err != nil {
			return 0, err
		}
		if r.ID == uuid.Nil {
			r.ID = uuid.New()
		}
		r.CreatedAt, r.UpdatedAt = now, now
		if err := e.store.Rules().Create(ctx, &r); err != nil {
			return i, apperr.Internal("seed rule", err)
		}
	}
	e.log.Info("seeded auto-release rules", "count", len(rules))
	return len(rules), nil
}

func (e *engine) getRule(ctx context.Context, id uuid.UUID) (*models.AutoReleaseRule, error) {
	r, err := e.store.Rules().GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.NotFound("rule not found")
	}
	if err != nil {
		return nil, apperr.Internal("load rule", err)
	}
	return r, nil
}

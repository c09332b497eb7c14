// Package budget rejects /ask requests once configured token budgets
// are exhausted, before any inference spend happens.
package budget

import (
	"context"
	"time"

	"github.com/responsa-ai/responsa/pkg/fault"
	"github.com/responsa-ai/responsa/pkg/models"
	"github.com/responsa-ai/responsa/pkg/usage"
)

// Enforcer checks token usage against budget policies.
type Enforcer struct {
	policies []models.BudgetPolicy
	tracker  usage.Tracker
}

// New creates an Enforcer with the given policies and tracker.
func New(policies []models.BudgetPolicy, t usage.Tracker) *Enforcer {
	return &Enforcer{policies: policies, tracker: t}
}

// Check returns a budget error if any applicable policy is exhausted
// for the model.
func (e *Enforcer) Check(ctx context.Context, model string) error {
	for _, p := range e.policies {
		if p.Model != "" && p.Model != model {
			continue
		}
		since := periodStart(p.Period)
		var used int64
		var err error
		if p.Model != "" {
			used, err = e.tracker.TotalByModelSince(ctx, p.Model, since)
		} else {
			used, err = e.tracker.TotalSince(ctx, since)
		}
		if err != nil {
			return fault.Wrap(fault.KindStorage, "budget.check", err)
		}
		if used >= p.MaxTokens {
			return fault.Newf(fault.KindBudget, "budget.check",
				"%s token budget exhausted: %d of %d used", p.Period, used, p.MaxTokens)
		}
	}
	return nil
}

// Status reports current usage against every policy.
func (e *Enforcer) Status(ctx context.Context) ([]models.BudgetStatus, error) {
	statuses := make([]models.BudgetStatus, 0, len(e.policies))
	for _, p := range e.policies {
		since := periodStart(p.Period)
		var used int64
		var err error
		if p.Model != "" {
			used, err = e.tracker.TotalByModelSince(ctx, p.Model, since)
		} else {
			used, err = e.tracker.TotalSince(ctx, since)
		}
		if err != nil {
			return nil, fault.Wrap(fault.KindStorage, "budget.status", err)
		}
		remaining := p.MaxTokens - used
		if remaining < 0 {
			remaining = 0
		}
		statuses = append(statuses, models.BudgetStatus{
			Policy:    p,
			Used:      used,
			Remaining: remaining,
		})
	}
	return statuses, nil
}

func periodStart(period models.BudgetPeriod) time.Time {
	now := time.Now().UTC()
	switch period {
	case models.BudgetMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default: // daily
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}

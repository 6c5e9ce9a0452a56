package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ktej255/leadflow/pkg/leadservice"
	"github.com/Ktej255/leadflow/pkg/models"
	"github.com/Ktej255/leadflow/pkg/persistence"
	"github.com/Ktej255/leadflow/pkg/trigger"
	"github.com/robfig/cron/v3"
)

const defaultPollSchedule = "@every 1m"

// Poller periodically enrolls leads into TIME_DELAY and SPECIFIC_DATE
// workflows, which fire on the clock instead of on a lead event. Each
// lead is enrolled at most once per polled workflow.
type Poller struct {
	persistence persistence.Persistence
	leads       leadservice.Service
	lister      leadservice.Lister
	evaluator   *trigger.Evaluator
	logger      *slog.Logger
	schedule    string
	cron        *cron.Cron
	now         func() time.Time
}

func NewPoller(logger *slog.Logger, p persistence.Persistence, leads leadservice.Service, lister leadservice.Lister, evaluator *trigger.Evaluator) *Poller {
	return &Poller{
		persistence: p,
		leads:       leads,
		lister:      lister,
		evaluator:   evaluator,
		logger:      logger.With("module", "trigger_poller"),
		schedule:    defaultPollSchedule,
		now:         time.Now,
	}
}

func (p *Poller) Start(ctx context.Context) error {
	if p.lister == nil {
		p.logger.InfoContext(ctx, "No lead lister configured, polled triggers disabled")

		return nil
	}

	p.logger.InfoContext(ctx, "Starting trigger poller", "schedule", p.schedule)

	p.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	_, err := p.cron.AddFunc(p.schedule, func() {
		if err := p.PollOnce(ctx); err != nil {
			p.logger.ErrorContext(ctx, "Trigger poll failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule trigger poll: %w", err)
	}

	p.cron.Start()

	return nil
}

func (p *Poller) Stop() {
	if p.cron != nil {
		p.cron.Stop()
	}
}

// PollOnce evaluates every Active polled workflow against the current
// lead population.
func (p *Poller) PollOnce(ctx context.Context) error {
	workflows, err := p.persistence.WorkflowRepository().GetByStatus(ctx, models.WorkflowStatusActive)
	if err != nil {
		return fmt.Errorf("failed to load active workflows: %w", err)
	}

	polled := make([]*models.Workflow, 0)

	for _, workflow := range workflows {
		if workflow.TriggerType.IsPolled() {
			polled = append(polled, workflow)
		}
	}

	if len(polled) == 0 {
		return nil
	}

	leadIDs, err := p.lister.ListLeadIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list leads: %w", err)
	}

	now := p.now().UTC()

	for _, leadID := range leadIDs {
		fields, err := p.leads.GetLeadFields(ctx, leadID)
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to load lead for polled triggers", "lead_id", leadID, "error", err)

			continue
		}

		for _, workflow := range polled {
			if err := p.enrollIfDue(ctx, workflow, leadID, fields, now); err != nil {
				p.logger.ErrorContext(ctx, "Failed to evaluate polled workflow",
					"workflow_id", workflow.ID,
					"lead_id", leadID,
					"error", err,
				)
			}
		}
	}

	return nil
}

func (p *Poller) enrollIfDue(ctx context.Context, workflow *models.Workflow, leadID string, fields map[string]any, now time.Time) error {
	due, err := p.triggerDue(workflow, fields, now)
	if err != nil {
		return err
	}

	if !due {
		return nil
	}

	// Polled workflows enroll each lead once, ever, regardless of
	// allow_re_entry: the clock condition stays true forever after.
	enrolled, err := p.persistence.ExecutionRepository().Exists(ctx, workflow.ID, leadID)
	if err != nil {
		return fmt.Errorf("failed to check enrollment history: %w", err)
	}

	if enrolled {
		return nil
	}

	_, err = p.evaluator.Enroll(ctx, workflow, leadID, fields)

	return err
}

func (p *Poller) triggerDue(workflow *models.Workflow, fields map[string]any, now time.Time) (bool, error) {
	switch workflow.TriggerType {
	case models.TriggerSpecificDate:
		date, err := configTime(workflow.TriggerConfig, "date")
		if err != nil {
			return false, err
		}

		return !date.After(now), nil

	case models.TriggerTimeDelay:
		minutes, ok := configNumber(workflow.TriggerConfig, "delay_minutes")
		if !ok {
			return false, fmt.Errorf("trigger_config is missing delay_minutes")
		}

		createdAt, err := fieldTime(fields, "created_at")
		if err != nil {
			return false, err
		}

		return !createdAt.Add(time.Duration(minutes) * time.Minute).After(now), nil

	default:
		return false, nil
	}
}

func configTime(config map[string]any, key string) (time.Time, error) {
	raw, ok := config[key]
	if !ok {
		return time.Time{}, fmt.Errorf("trigger_config is missing %s", key)
	}

	return parseTime(raw, key)
}

func fieldTime(fields map[string]any, key string) (time.Time, error) {
	raw, ok := fields[key]
	if !ok {
		return time.Time{}, fmt.Errorf("lead has no %s field", key)
	}

	return parseTime(raw, key)
}

func parseTime(raw any, key string) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid %s value %q: %w", key, v, err)
		}

		return parsed, nil
	default:
		return time.Time{}, fmt.Errorf("invalid %s value of type %T", key, raw)
	}
}

func configNumber(config map[string]any, key string) (float64, bool) {
	switch v := config[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// Package executor runs the per-tick state machine for workflow
// executions. A tick resumes from the persisted current step, runs as
// many zero-delay transitions as it can, and leaves the execution either
// suspended with a next wake time or in a terminal state. The caller
// holds the execution lease and persists the mutated execution.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Ktej255/leadflow/pkg/condition"
	"github.com/Ktej255/leadflow/pkg/dispatch"
	"github.com/Ktej255/leadflow/pkg/leadservice"
	"github.com/Ktej255/leadflow/pkg/models"
	"github.com/Ktej255/leadflow/pkg/persistence"
	"github.com/Ktej255/leadflow/pkg/retry"
	"github.com/Ktej255/leadflow/pkg/template"
)

// Log entry statuses recorded per step.
const (
	logStatusCompleted = "COMPLETED"
	logStatusWaiting   = "WAITING"
	logStatusRetry     = "RETRY"
	logStatusFailed    = "FAILED"
	logStatusSkipped   = "SKIPPED"
)

// maxTransitions bounds zero-delay step transitions in one tick so a
// misconfigured branch loop cannot spin forever.
const maxTransitions = 50

type Executor struct {
	persistence persistence.Persistence
	leads       leadservice.Service
	dispatcher  dispatch.Dispatcher
	policy      retry.Policy
	logger      *slog.Logger
	now         func() time.Time
}

func NewExecutor(logger *slog.Logger, p persistence.Persistence, leads leadservice.Service, dispatcher dispatch.Dispatcher) *Executor {
	return &Executor{
		persistence: p,
		leads:       leads,
		dispatcher:  dispatcher,
		policy:      retry.DefaultPolicy(),
		logger:      logger.With("module", "executor"),
		now:         time.Now,
	}
}

// Tick advances one execution as far as it can go right now. The
// execution is mutated in place; the caller persists it afterwards.
// Only infrastructure errors are returned; step failures land in the
// execution's own status and error_message.
func (e *Executor) Tick(ctx context.Context, execution *models.WorkflowExecution) error {
	if execution.Status.IsTerminal() {
		return nil
	}

	logger := e.logger.With(
		"execution_id", execution.ID,
		"workflow_id", execution.WorkflowID,
		"lead_id", execution.LeadID,
	)

	workflow, err := e.persistence.WorkflowRepository().GetByID(ctx, execution.WorkflowID)
	if err != nil {
		if errors.Is(err, persistence.ErrWorkflowNotFound) {
			execution.MarkFailed("workflow no longer exists")

			return nil
		}

		return fmt.Errorf("failed to load workflow: %w", err)
	}

	if workflow.Status != models.WorkflowStatusActive {
		if !(workflow.Status == models.WorkflowStatusPaused && workflow.ContinueOnPause) {
			logger.InfoContext(ctx, "Cancelling execution, workflow left Active", "workflow_status", workflow.Status)
			execution.MarkCancelled(fmt.Sprintf("workflow is %s", workflow.Status))

			return nil
		}
	}

	fields, err := e.leads.GetLeadFields(ctx, execution.LeadID)
	if err != nil {
		if errors.Is(err, leadservice.ErrLeadNotFound) {
			execution.MarkFailed("lead no longer exists")

			return nil
		}

		stepID := ""
		if execution.CurrentStepID != nil {
			stepID = *execution.CurrentStepID
		}

		e.handleStepError(ctx, logger, execution, stepID, retry.Transient(err))

		return nil
	}

	if workflow.ExitOnConversion && leadservice.IsConverted(fields) {
		logger.InfoContext(ctx, "Lead converted, completing execution early")
		e.complete(ctx, logger, workflow, execution, true)

		return nil
	}

	execution.Status = models.ExecutionStatusRunning

	for transitions := 0; ; transitions++ {
		if transitions >= maxTransitions {
			execution.MarkFailed(cycleMessage(execution))
			logger.ErrorContext(ctx, "Execution exceeded transition bound", "error", execution.ErrorMessage)

			return nil
		}

		if execution.CurrentStepID == nil {
			e.complete(ctx, logger, workflow, execution, false)

			return nil
		}

		step, ok := workflow.StepByID(*execution.CurrentStepID)
		if !ok {
			execution.MarkFailed(fmt.Sprintf("step %s not found in workflow", *execution.CurrentStepID))

			return nil
		}

		if !step.Active {
			execution.AppendLog(step.ID, logStatusSkipped, "step is disabled")
			e.advance(workflow, execution, step.ID)

			continue
		}

		outcome, err := e.runStep(ctx, logger, workflow, execution, step, fields)
		if err != nil {
			e.handleStepError(ctx, logger, execution, step.ID, err)

			return nil
		}

		if outcome.suspended {
			return nil
		}
	}
}

type stepOutcome struct {
	// suspended means the tick is over: the execution waits for its next
	// wake time or a resume event.
	suspended bool
}

func (e *Executor) runStep(ctx context.Context, logger *slog.Logger, workflow *models.Workflow, execution *models.WorkflowExecution, step *models.WorkflowStep, fields map[string]any) (stepOutcome, error) {
	if err := step.Validate(); err != nil {
		return stepOutcome{}, retry.Permanent(err)
	}

	switch step.Type {
	case models.StepTypeSendMessage:
		if err := e.sendMessage(ctx, logger, execution, step, fields); err != nil {
			return stepOutcome{}, err
		}

		execution.AppendLog(step.ID, logStatusCompleted, "message dispatched")
		e.advance(workflow, execution, step.ID)

		return stepOutcome{}, nil

	case models.StepTypeWait:
		return e.wait(ctx, logger, workflow, execution, step)

	case models.StepTypeCondition:
		matched, err := condition.Evaluate(step.Condition.Condition, fields)
		if err != nil {
			return stepOutcome{}, retry.Permanent(fmt.Errorf("condition on step %s: %w", step.ID, err))
		}

		target := step.Condition.FalseNextStep
		if matched {
			target = step.Condition.TrueNextStep
		}

		execution.AppendLog(step.ID, logStatusCompleted, fmt.Sprintf("condition evaluated to %t", matched))

		if target == "" {
			e.advance(workflow, execution, step.ID)
		} else {
			if _, ok := workflow.StepByID(target); !ok {
				return stepOutcome{}, retry.Permanent(fmt.Errorf("branch target %s not found in workflow", target))
			}

			execution.CurrentStepID = &target
		}

		return stepOutcome{}, nil

	case models.StepTypeUpdateField:
		if err := e.leads.ApplyFieldUpdate(ctx, execution.LeadID, step.UpdateField.Updates); err != nil {
			return stepOutcome{}, classifyLeadError(err)
		}

		// Keep the local snapshot current for later conditions this tick.
		for k, v := range step.UpdateField.Updates {
			fields[k] = v
		}

		execution.AppendLog(step.ID, logStatusCompleted, "fields updated")
		e.advance(workflow, execution, step.ID)

		return stepOutcome{}, nil

	case models.StepTypeAssign:
		if err := e.leads.AssignLead(ctx, execution.LeadID, step.Assign.UserID, step.Assign.Team); err != nil {
			return stepOutcome{}, classifyLeadError(err)
		}

		execution.AppendLog(step.ID, logStatusCompleted, "lead assigned")
		e.advance(workflow, execution, step.ID)

		return stepOutcome{}, nil

	default:
		return stepOutcome{}, retry.Permanent(fmt.Errorf("unknown step type %q", step.Type))
	}
}

// wait enters or completes a WAIT step. Entering records a WAITING log
// entry and suspends; the marker tells the next tick that the wait
// condition was already armed, so waking means it is satisfied.
func (e *Executor) wait(ctx context.Context, logger *slog.Logger, workflow *models.Workflow, execution *models.WorkflowExecution, step *models.WorkflowStep) (stepOutcome, error) {
	if e.waitEntered(execution, step.ID) {
		execution.AppendLog(step.ID, logStatusCompleted, "wait satisfied")
		e.advance(workflow, execution, step.ID)

		return stepOutcome{}, nil
	}

	now := e.now().UTC()

	switch {
	case step.Wait.DurationMinutes != nil:
		until := now.Add(time.Duration(*step.Wait.DurationMinutes) * time.Minute)
		if !until.After(now) {
			execution.AppendLog(step.ID, logStatusCompleted, "zero-length wait")
			e.advance(workflow, execution, step.ID)

			return stepOutcome{}, nil
		}

		execution.AppendLog(step.ID, logStatusWaiting, fmt.Sprintf("waiting until %s", until.Format(time.RFC3339)))
		execution.NextActionAt = &until

	case step.Wait.UntilDate != nil:
		until := step.Wait.UntilDate.UTC()
		if !until.After(now) {
			execution.AppendLog(step.ID, logStatusCompleted, "wait date already passed")
			e.advance(workflow, execution, step.ID)

			return stepOutcome{}, nil
		}

		execution.AppendLog(step.ID, logStatusWaiting, fmt.Sprintf("waiting until %s", until.Format(time.RFC3339)))
		execution.NextActionAt = &until

	case step.Wait.ForEvent != "":
		execution.AppendLog(step.ID, logStatusWaiting, fmt.Sprintf("waiting for event %s", step.Wait.ForEvent))
		execution.NextActionAt = nil

	default:
		return stepOutcome{}, retry.Permanent(fmt.Errorf("wait step %s has no wait mode configured", step.ID))
	}

	logger.DebugContext(ctx, "Execution suspended on wait step", "step_id", step.ID)

	return stepOutcome{suspended: true}, nil
}

// waitEntered reports whether this wait was already armed. Retry
// entries from transient failures while waking do not disarm it; a
// completed entry for the same step means an earlier visit in a loop.
func (e *Executor) waitEntered(execution *models.WorkflowExecution, stepID string) bool {
	for i := len(execution.Log) - 1; i >= 0; i-- {
		entry := execution.Log[i]

		if entry.Status == logStatusRetry {
			continue
		}

		return entry.StepID == stepID && entry.Status == logStatusWaiting
	}

	return false
}

func (e *Executor) sendMessage(ctx context.Context, logger *slog.Logger, execution *models.WorkflowExecution, step *models.WorkflowStep, fields map[string]any) error {
	tmpl, err := e.persistence.TemplateRepository().GetByID(ctx, step.SendMessage.TemplateID)
	if err != nil {
		if errors.Is(err, persistence.ErrTemplateNotFound) {
			return retry.Permanent(fmt.Errorf("template %s not found", step.SendMessage.TemplateID))
		}

		return retry.Transient(fmt.Errorf("failed to load template: %w", err))
	}

	rendered, err := template.Render(tmpl, fields)
	if err != nil {
		return retry.Permanent(fmt.Errorf("failed to render template: %w", err))
	}

	if len(rendered.MissingTokens) > 0 {
		logger.WarnContext(ctx, "Template rendered with missing tokens",
			"template_id", tmpl.ID,
			"missing_tokens", rendered.MissingTokens,
		)
	}

	recipient, err := recipientFor(step.SendMessage.Channel, fields)
	if err != nil {
		return retry.Permanent(err)
	}

	entry := &models.MessageLog{
		LeadID:      execution.LeadID,
		ExecutionID: execution.ID,
		TemplateID:  tmpl.ID,
		Channel:     step.SendMessage.Channel,
		Recipient:   recipient,
		Subject:     rendered.Subject,
		Body:        rendered.Body,
		Status:      models.MessageStatusPending,
	}

	receipt, err := e.dispatcher.Send(ctx, dispatch.Message{
		Channel:   step.SendMessage.Channel,
		Recipient: recipient,
		Subject:   rendered.Subject,
		Body:      rendered.Body,
		HTMLBody:  rendered.HTMLBody,
		MediaURL:  tmpl.MediaURL,
		MediaType: tmpl.MediaType,
	})
	if err != nil {
		entry.Status = models.MessageStatusFailed
		entry.ErrorMessage = err.Error()

		if saveErr := e.persistence.MessageLogRepository().Save(ctx, entry); saveErr != nil {
			logger.ErrorContext(ctx, "Failed to record failed message", "error", saveErr)
		}

		return err
	}

	sentAt := e.now().UTC()
	entry.Status = models.MessageStatusSent
	entry.SentAt = &sentAt
	entry.ProviderMessageID = receipt.ProviderMessageID

	if err := e.persistence.MessageLogRepository().Save(ctx, entry); err != nil {
		return retry.Transient(fmt.Errorf("failed to record message: %w", err))
	}

	logger.InfoContext(ctx, "Message dispatched",
		"channel", step.SendMessage.Channel,
		"template_id", tmpl.ID,
		"provider_message_id", receipt.ProviderMessageID,
	)

	return nil
}

// advance moves the execution to the next ordinal active step, or nils
// the current step if the workflow is exhausted.
func (e *Executor) advance(workflow *models.Workflow, execution *models.WorkflowExecution, afterID string) {
	next := workflow.NextStep(afterID)
	if next == nil {
		execution.CurrentStepID = nil

		return
	}

	execution.CurrentStepID = &next.ID
}

func (e *Executor) complete(ctx context.Context, logger *slog.Logger, workflow *models.Workflow, execution *models.WorkflowExecution, converted bool) {
	execution.MarkCompleted()

	if err := e.persistence.WorkflowRepository().IncrementCounter(ctx, workflow.ID, persistence.CounterCompleted); err != nil {
		logger.ErrorContext(ctx, "Failed to increment completion counter", "error", err)
	}

	if converted {
		if err := e.persistence.WorkflowRepository().IncrementCounter(ctx, workflow.ID, persistence.CounterConverted); err != nil {
			logger.ErrorContext(ctx, "Failed to increment conversion counter", "error", err)
		}
	}

	logger.InfoContext(ctx, "Execution completed", "converted", converted)
}

// handleStepError applies the retry policy: transient failures are
// rescheduled with backoff while retries remain, everything else is
// terminal.
func (e *Executor) handleStepError(ctx context.Context, logger *slog.Logger, execution *models.WorkflowExecution, stepID string, err error) {
	if retry.IsTransient(err) && !e.policy.Exhausted(execution.RetryCount) {
		execution.RetryCount++
		backoff := e.policy.Backoff(execution.RetryCount)
		nextAction := e.now().UTC().Add(backoff)
		execution.NextActionAt = &nextAction
		execution.AppendLog(stepID, logStatusRetry, err.Error())

		logger.WarnContext(ctx, "Step failed, scheduling retry",
			"step_id", stepID,
			"retry_count", execution.RetryCount,
			"backoff", backoff,
			"error", err,
		)

		return
	}

	execution.AppendLog(stepID, logStatusFailed, err.Error())
	execution.MarkFailed(err.Error())

	logger.ErrorContext(ctx, "Step failed permanently", "step_id", stepID, "error", err)
}

func classifyLeadError(err error) error {
	if errors.Is(err, leadservice.ErrLeadNotFound) {
		return retry.Permanent(err)
	}

	return retry.Transient(err)
}

// cycleMessage names the steps implicated in the loop, taken from the
// tail of the execution log.
func cycleMessage(execution *models.WorkflowExecution) string {
	seen := make(map[string]struct{})

	var steps []string

	start := len(execution.Log) - maxTransitions
	if start < 0 {
		start = 0
	}

	for _, entry := range execution.Log[start:] {
		if _, ok := seen[entry.StepID]; ok {
			continue
		}

		seen[entry.StepID] = struct{}{}
		steps = append(steps, entry.StepID)
	}

	return fmt.Sprintf("cycle detected: exceeded %d step transitions in one tick (steps: %s)", maxTransitions, strings.Join(steps, ", "))
}

func recipientFor(channel models.ChannelType, fields map[string]any) (string, error) {
	var field string

	switch channel {
	case models.ChannelEmail:
		field = "email"
	case models.ChannelSMS, models.ChannelWhatsApp:
		field = "phone"
	case models.ChannelPush:
		field = "push_token"
	default:
		return "", fmt.Errorf("unknown channel %q", channel)
	}

	recipient, _ := fields[field].(string)
	if recipient == "" {
		return "", fmt.Errorf("lead has no %s for channel %s", field, channel)
	}

	return recipient, nil
}

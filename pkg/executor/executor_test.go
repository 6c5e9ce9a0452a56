package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Ktej255/leadflow/pkg/dispatch"
	"github.com/Ktej255/leadflow/pkg/leadservice"
	"github.com/Ktej255/leadflow/pkg/models"
	"github.com/Ktej255/leadflow/pkg/persistence"
	"github.com/Ktej255/leadflow/pkg/persistence/file"
	"github.com/Ktej255/leadflow/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	sent []dispatch.Message
	err  error
}

func (d *recordingDispatcher) Send(_ context.Context, message dispatch.Message) (dispatch.Receipt, error) {
	if d.err != nil {
		return dispatch.Receipt{}, d.err
	}

	d.sent = append(d.sent, message)

	return dispatch.Receipt{ProviderMessageID: fmt.Sprintf("prov-%d", len(d.sent))}, nil
}

type fixture struct {
	executor    *Executor
	persistence persistence.Persistence
	leads       *leadservice.MemoryService
	dispatcher  *recordingDispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	leads := leadservice.NewMemoryService()
	dispatcher := &recordingDispatcher{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return &fixture{
		executor:    NewExecutor(logger, p, leads, dispatcher),
		persistence: p,
		leads:       leads,
		dispatcher:  dispatcher,
	}
}

func (f *fixture) saveWorkflow(t *testing.T, workflow *models.Workflow) {
	t.Helper()
	require.NoError(t, f.persistence.WorkflowRepository().Save(t.Context(), workflow))
}

func (f *fixture) saveTemplate(t *testing.T, tmpl *models.CommunicationTemplate) {
	t.Helper()
	require.NoError(t, f.persistence.TemplateRepository().Save(t.Context(), tmpl))
}

func newExecution(workflowID, stepID string) *models.WorkflowExecution {
	now := time.Now().UTC()

	return &models.WorkflowExecution{
		ID:            "exec-1",
		WorkflowID:    workflowID,
		LeadID:        "lead-1",
		Status:        models.ExecutionStatusPending,
		CurrentStepID: &stepID,
		NextActionAt:  &now,
		StartedAt:     now,
	}
}

func welcomeWorkflow(waitMinutes int) *models.Workflow {
	wait := waitMinutes

	return &models.Workflow{
		ID:          "wf-1",
		Name:        "Welcome Series",
		Status:      models.WorkflowStatusActive,
		TriggerType: models.TriggerLeadCreated,
		Steps: []*models.WorkflowStep{
			{
				ID:         "send-welcome",
				OrderIndex: 1,
				Name:       "Send welcome",
				Type:       models.StepTypeSendMessage,
				SendMessage: &models.SendMessageStep{
					Channel:    models.ChannelEmail,
					TemplateID: "tmpl-welcome",
				},
				Active: true,
			},
			{
				ID:         "wait-a-day",
				OrderIndex: 2,
				Name:       "Wait",
				Type:       models.StepTypeWait,
				Wait:       &models.WaitStep{DurationMinutes: &wait},
				Active:     true,
			},
			{
				ID:         "send-followup",
				OrderIndex: 3,
				Name:       "Send follow-up",
				Type:       models.StepTypeSendMessage,
				SendMessage: &models.SendMessageStep{
					Channel:    models.ChannelEmail,
					TemplateID: "tmpl-welcome",
				},
				Active: true,
			},
		},
	}
}

func welcomeTemplate() *models.CommunicationTemplate {
	return &models.CommunicationTemplate{
		ID:      "tmpl-welcome",
		Name:    "Welcome",
		Channel: models.ChannelEmail,
		Subject: "Welcome, {{name}}!",
		Body:    "Hi {{name}}, thanks for signing up.",
		Active:  true,
	}
}

func TestTick_SendThenWaitThenComplete(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	f.saveWorkflow(t, welcomeWorkflow(60))
	f.saveTemplate(t, welcomeTemplate())
	f.leads.SetLead("lead-1", map[string]any{"name": "Asha", "email": "asha@example.com"})

	execution := newExecution("wf-1", "send-welcome")

	// First tick: send the welcome message, then suspend on the wait.
	require.NoError(t, f.executor.Tick(ctx, execution))

	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)
	require.NotNil(t, execution.CurrentStepID)
	assert.Equal(t, "wait-a-day", *execution.CurrentStepID)
	require.NotNil(t, execution.NextActionAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *execution.NextActionAt, time.Minute)

	require.Len(t, f.dispatcher.sent, 1)
	assert.Equal(t, "Hi Asha, thanks for signing up.", f.dispatcher.sent[0].Body)
	assert.Equal(t, "asha@example.com", f.dispatcher.sent[0].Recipient)

	// Second tick, after the wait elapses: follow-up sends and the
	// execution completes.
	require.NoError(t, f.executor.Tick(ctx, execution))

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Nil(t, execution.CurrentStepID)
	assert.Nil(t, execution.NextActionAt)
	assert.Len(t, f.dispatcher.sent, 2)

	workflow, err := f.persistence.WorkflowRepository().GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, 1, workflow.TotalCompleted)
}

func TestTick_ZeroLengthWaitAdvancesSameTick(t *testing.T) {
	f := newFixture(t)

	f.saveWorkflow(t, welcomeWorkflow(0))
	f.saveTemplate(t, welcomeTemplate())
	f.leads.SetLead("lead-1", map[string]any{"name": "Asha", "email": "asha@example.com"})

	execution := newExecution("wf-1", "send-welcome")

	require.NoError(t, f.executor.Tick(t.Context(), execution))

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Len(t, f.dispatcher.sent, 2)
}

func TestTick_MessageLogRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	f.saveWorkflow(t, welcomeWorkflow(60))
	f.saveTemplate(t, welcomeTemplate())
	f.leads.SetLead("lead-1", map[string]any{"name": "Asha", "email": "asha@example.com"})

	execution := newExecution("wf-1", "send-welcome")
	require.NoError(t, f.executor.Tick(ctx, execution))

	entry, err := f.persistence.MessageLogRepository().GetByProviderMessageID(ctx, "prov-1")
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusSent, entry.Status)
	assert.Equal(t, "exec-1", entry.ExecutionID)
	assert.Equal(t, "Welcome, Asha!", entry.Subject)
	require.NotNil(t, entry.SentAt)
}

func TestTick_ConditionBranching(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	workflow := &models.Workflow{
		ID:          "wf-branch",
		Name:        "Branching",
		Status:      models.WorkflowStatusActive,
		TriggerType: models.TriggerStageChanged,
		Steps: []*models.WorkflowStep{
			{
				ID:         "check-stage",
				OrderIndex: 1,
				Name:       "Check stage",
				Type:       models.StepTypeCondition,
				Condition: &models.ConditionStep{
					Condition:    models.Condition{Field: "stage", Operator: "equals", Value: "INTERESTED"},
					TrueNextStep: "assign-sales",
					// False branch falls through to the next ordinal step.
				},
				Active: true,
			},
			{
				ID:         "tag-cold",
				OrderIndex: 2,
				Name:       "Tag cold",
				Type:       models.StepTypeUpdateField,
				UpdateField: &models.UpdateFieldStep{
					Updates: map[string]any{"temperature": "cold"},
				},
				Active: true,
			},
			{
				ID:         "assign-sales",
				OrderIndex: 3,
				Name:       "Assign to sales",
				Type:       models.StepTypeAssign,
				Assign:     &models.AssignStep{Team: "sales"},
				Active:     true,
			},
		},
	}
	f.saveWorkflow(t, workflow)

	// True branch: jumps straight to the assign step.
	f.leads.SetLead("lead-1", map[string]any{"stage": "INTERESTED"})
	execution := newExecution("wf-branch", "check-stage")

	require.NoError(t, f.executor.Tick(ctx, execution))
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)

	fields, err := f.leads.GetLeadFields(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "sales", fields["assigned_team"])
	assert.NotContains(t, fields, "temperature")

	// False branch: falls through to the tag step, then assign.
	f.leads.SetLead("lead-2", map[string]any{"stage": "NEW"})
	execution = newExecution("wf-branch", "check-stage")
	execution.ID = "exec-2"
	execution.LeadID = "lead-2"

	require.NoError(t, f.executor.Tick(ctx, execution))
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)

	fields, err = f.leads.GetLeadFields(ctx, "lead-2")
	require.NoError(t, err)
	assert.Equal(t, "cold", fields["temperature"])
	assert.Equal(t, "sales", fields["assigned_team"])
}

func TestTick_CycleDetection(t *testing.T) {
	f := newFixture(t)

	workflow := &models.Workflow{
		ID:          "wf-loop",
		Name:        "Loop",
		Status:      models.WorkflowStatusActive,
		TriggerType: models.TriggerManual,
		Steps: []*models.WorkflowStep{
			{
				ID:         "ping",
				OrderIndex: 1,
				Name:       "Ping",
				Type:       models.StepTypeCondition,
				Condition: &models.ConditionStep{
					Condition:    models.Condition{Field: "stage", Operator: "equals", Value: "NEW"},
					TrueNextStep: "pong",
				},
				Active: true,
			},
			{
				ID:         "pong",
				OrderIndex: 2,
				Name:       "Pong",
				Type:       models.StepTypeCondition,
				Condition: &models.ConditionStep{
					Condition:    models.Condition{Field: "stage", Operator: "equals", Value: "NEW"},
					TrueNextStep: "ping",
				},
				Active: true,
			},
		},
	}
	f.saveWorkflow(t, workflow)
	f.leads.SetLead("lead-1", map[string]any{"stage": "NEW"})

	execution := newExecution("wf-loop", "ping")

	require.NoError(t, f.executor.Tick(t.Context(), execution))

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Contains(t, execution.ErrorMessage, "cycle detected")
	assert.Contains(t, execution.ErrorMessage, "ping")
	assert.Contains(t, execution.ErrorMessage, "pong")
}

func TestTick_WorkflowPausedCancelsUnlessFlagged(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	workflow := welcomeWorkflow(60)
	workflow.Status = models.WorkflowStatusPaused
	f.saveWorkflow(t, workflow)
	f.saveTemplate(t, welcomeTemplate())
	f.leads.SetLead("lead-1", map[string]any{"name": "Asha", "email": "asha@example.com"})

	execution := newExecution("wf-1", "send-welcome")
	require.NoError(t, f.executor.Tick(ctx, execution))

	assert.Equal(t, models.ExecutionStatusCancelled, execution.Status)
	assert.Contains(t, execution.ErrorMessage, "PAUSED")
	assert.Empty(t, f.dispatcher.sent)

	// With continue_on_pause the execution keeps going.
	workflow.ContinueOnPause = true
	f.saveWorkflow(t, workflow)

	execution = newExecution("wf-1", "send-welcome")
	require.NoError(t, f.executor.Tick(ctx, execution))

	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)
	assert.Len(t, f.dispatcher.sent, 1)
}

func TestTick_ExitOnConversion(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	workflow := welcomeWorkflow(60)
	workflow.ExitOnConversion = true
	f.saveWorkflow(t, workflow)
	f.saveTemplate(t, welcomeTemplate())
	f.leads.SetLead("lead-1", map[string]any{"name": "Asha", "email": "asha@example.com", "stage": "CONVERTED"})

	execution := newExecution("wf-1", "send-welcome")
	require.NoError(t, f.executor.Tick(ctx, execution))

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
	assert.Empty(t, f.dispatcher.sent)

	loaded, err := f.persistence.WorkflowRepository().GetByID(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.TotalCompleted)
	assert.Equal(t, 1, loaded.TotalConverted)
}

func TestTick_TransientFailureRetriesWithBackoff(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	f.saveWorkflow(t, welcomeWorkflow(60))
	f.saveTemplate(t, welcomeTemplate())
	f.leads.SetLead("lead-1", map[string]any{"name": "Asha", "email": "asha@example.com"})
	f.dispatcher.err = retry.Transient(fmt.Errorf("provider timeout"))

	execution := newExecution("wf-1", "send-welcome")

	// Three transient failures schedule retries with growing backoff.
	for attempt, backoff := range []time.Duration{time.Minute, 5 * time.Minute, 30 * time.Minute} {
		require.NoError(t, f.executor.Tick(ctx, execution))

		assert.Equal(t, models.ExecutionStatusRunning, execution.Status)
		assert.Equal(t, attempt+1, execution.RetryCount)
		require.NotNil(t, execution.CurrentStepID)
		assert.Equal(t, "send-welcome", *execution.CurrentStepID)
		require.NotNil(t, execution.NextActionAt)
		assert.WithinDuration(t, time.Now().Add(backoff), *execution.NextActionAt, time.Minute)
	}

	// The fourth failure exhausts the policy.
	require.NoError(t, f.executor.Tick(ctx, execution))

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Contains(t, execution.ErrorMessage, "provider timeout")
}

func TestTick_PermanentFailureFailsImmediately(t *testing.T) {
	f := newFixture(t)

	f.saveWorkflow(t, welcomeWorkflow(60))
	f.saveTemplate(t, welcomeTemplate())
	// No email on the lead: a permanent configuration problem.
	f.leads.SetLead("lead-1", map[string]any{"name": "Asha"})

	execution := newExecution("wf-1", "send-welcome")
	require.NoError(t, f.executor.Tick(t.Context(), execution))

	assert.Equal(t, models.ExecutionStatusFailed, execution.Status)
	assert.Zero(t, execution.RetryCount)
	assert.Contains(t, execution.ErrorMessage, "no email")
}

func TestTick_EventWaitParksExecution(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	workflow := &models.Workflow{
		ID:          "wf-event",
		Name:        "Event wait",
		Status:      models.WorkflowStatusActive,
		TriggerType: models.TriggerManual,
		Steps: []*models.WorkflowStep{
			{
				ID:         "wait-for-reply",
				OrderIndex: 1,
				Name:       "Wait for reply",
				Type:       models.StepTypeWait,
				Wait:       &models.WaitStep{ForEvent: "lead.replied"},
				Active:     true,
			},
			{
				ID:         "assign-sales",
				OrderIndex: 2,
				Name:       "Assign",
				Type:       models.StepTypeAssign,
				Assign:     &models.AssignStep{Team: "sales"},
				Active:     true,
			},
		},
	}
	f.saveWorkflow(t, workflow)
	f.leads.SetLead("lead-1", map[string]any{"stage": "NEW"})

	execution := newExecution("wf-event", "wait-for-reply")
	require.NoError(t, f.executor.Tick(ctx, execution))

	// Parked: no wake time until a resume call arrives.
	assert.Equal(t, models.ExecutionStatusRunning, execution.Status)
	assert.Nil(t, execution.NextActionAt)
	require.NotNil(t, execution.CurrentStepID)
	assert.Equal(t, "wait-for-reply", *execution.CurrentStepID)

	// A resume sets the wake time; the next tick advances past the wait.
	now := time.Now().UTC()
	execution.NextActionAt = &now
	require.NoError(t, f.executor.Tick(ctx, execution))

	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)

	fields, err := f.leads.GetLeadFields(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, "sales", fields["assigned_team"])
}

func TestTick_TerminalExecutionIsNoOp(t *testing.T) {
	f := newFixture(t)

	execution := newExecution("wf-1", "send-welcome")
	execution.MarkCompleted()

	require.NoError(t, f.executor.Tick(t.Context(), execution))
	assert.Equal(t, models.ExecutionStatusCompleted, execution.Status)
}

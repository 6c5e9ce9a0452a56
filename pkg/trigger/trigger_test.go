package trigger

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Ktej255/leadflow/pkg/events"
	"github.com/Ktej255/leadflow/pkg/leadservice"
	"github.com/Ktej255/leadflow/pkg/models"
	"github.com/Ktej255/leadflow/pkg/persistence"
	"github.com/Ktej255/leadflow/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEvaluator(t *testing.T) (*Evaluator, persistence.Persistence, *leadservice.MemoryService) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	leads := leadservice.NewMemoryService()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewEvaluator(logger, p, leads, nil), p, leads
}

func activeWorkflow(id string, triggerType models.TriggerType) *models.Workflow {
	return &models.Workflow{
		ID:          id,
		Name:        "Workflow " + id,
		Status:      models.WorkflowStatusActive,
		TriggerType: triggerType,
		Steps: []*models.WorkflowStep{
			{
				ID:         "assign",
				OrderIndex: 1,
				Name:       "Assign",
				Type:       models.StepTypeAssign,
				Assign:     &models.AssignStep{Team: "sales"},
				Active:     true,
			},
		},
	}
}

func leadCreated(leadID string) *events.LeadEvent {
	return &events.LeadEvent{BaseEvent: events.NewBaseEvent(events.LeadCreatedEvent, leadID)}
}

func TestEvaluate_EnrollsMatchingWorkflows(t *testing.T) {
	evaluator, p, leads := newEvaluator(t)
	ctx := t.Context()

	matching := activeWorkflow("wf-created", models.TriggerLeadCreated)
	otherTrigger := activeWorkflow("wf-stage", models.TriggerStageChanged)
	require.NoError(t, p.WorkflowRepository().Save(ctx, matching))
	require.NoError(t, p.WorkflowRepository().Save(ctx, otherTrigger))

	leads.SetLead("lead-1", map[string]any{"source": "WEBSITE"})

	created, err := evaluator.Evaluate(ctx, leadCreated("lead-1"))
	require.NoError(t, err)
	require.Len(t, created, 1)

	execution := created[0]
	assert.Equal(t, "wf-created", execution.WorkflowID)
	assert.Equal(t, models.ExecutionStatusPending, execution.Status)
	require.NotNil(t, execution.CurrentStepID)
	assert.Equal(t, "assign", *execution.CurrentStepID)
	require.NotNil(t, execution.NextActionAt)
	assert.WithinDuration(t, time.Now(), *execution.NextActionAt, time.Minute)

	workflow, err := p.WorkflowRepository().GetByID(ctx, "wf-created")
	require.NoError(t, err)
	assert.Equal(t, 1, workflow.TotalEnrolled)
}

func TestEvaluate_AudienceFilters(t *testing.T) {
	evaluator, p, leads := newEvaluator(t)
	ctx := t.Context()

	workflow := activeWorkflow("wf-filtered", models.TriggerLeadCreated)
	workflow.AudienceFilters = map[string]any{"source": "WEBSITE", "city": []any{"Pune", "Mumbai"}}
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	leads.SetLead("lead-match", map[string]any{"source": "WEBSITE", "city": "Pune"})
	leads.SetLead("lead-miss", map[string]any{"source": "REFERRAL", "city": "Pune"})

	created, err := evaluator.Evaluate(ctx, leadCreated("lead-match"))
	require.NoError(t, err)
	assert.Len(t, created, 1)

	created, err = evaluator.Evaluate(ctx, leadCreated("lead-miss"))
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestEvaluate_ReEntryRule(t *testing.T) {
	evaluator, p, leads := newEvaluator(t)
	ctx := t.Context()

	workflow := activeWorkflow("wf-once", models.TriggerLeadUpdated)
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	leads.SetLead("lead-1", map[string]any{})

	event := &events.LeadEvent{BaseEvent: events.NewBaseEvent(events.LeadUpdatedEvent, "lead-1")}

	created, err := evaluator.Evaluate(ctx, event)
	require.NoError(t, err)
	require.Len(t, created, 1)

	firstID := created[0].ID

	// A second event while the first enrollment is live does nothing.
	created, err = evaluator.Evaluate(ctx, event)
	require.NoError(t, err)
	assert.Empty(t, created)

	// Once the first run is terminal the lead may enter again.
	first, err := p.ExecutionRepository().GetByID(ctx, firstID)
	require.NoError(t, err)
	first.MarkCompleted()
	require.NoError(t, p.ExecutionRepository().Save(ctx, first))

	created, err = evaluator.Evaluate(ctx, event)
	require.NoError(t, err)
	assert.Len(t, created, 1)

	// allow_re_entry workflows re-enroll even with a live execution.
	reentrant := activeWorkflow("wf-again", models.TriggerLeadUpdated)
	reentrant.AllowReEntry = true
	require.NoError(t, p.WorkflowRepository().Save(ctx, reentrant))

	created, err = evaluator.Evaluate(ctx, event)
	require.NoError(t, err)
	assert.Len(t, created, 1)

	created, err = evaluator.Evaluate(ctx, event)
	require.NoError(t, err)
	assert.Len(t, created, 1)
}

func TestEvaluate_MalformedFilterIsIsolated(t *testing.T) {
	evaluator, p, leads := newEvaluator(t)
	ctx := t.Context()

	broken := activeWorkflow("wf-broken", models.TriggerLeadCreated)
	broken.AudienceFilters = map[string]any{"source": map[string]any{"bad": "predicate"}}
	healthy := activeWorkflow("wf-healthy", models.TriggerLeadCreated)
	require.NoError(t, p.WorkflowRepository().Save(ctx, broken))
	require.NoError(t, p.WorkflowRepository().Save(ctx, healthy))

	leads.SetLead("lead-1", map[string]any{"source": "WEBSITE"})

	created, err := evaluator.Evaluate(ctx, leadCreated("lead-1"))
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "wf-healthy", created[0].WorkflowID)
}

package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/Ktej255/leadflow/pkg/models"
	"github.com/Ktej255/leadflow/pkg/persistence"
	"github.com/Ktej255/leadflow/pkg/persistence/postgresql"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"message_logs", "workflow_executions", "workflow_steps", "workflows", "communication_templates", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context) {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION_TESTS") != "" {
		t.Skip("integration tests disabled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	t.Cleanup(cancel)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("leadflow_test"),
			postgres.WithUsername("leadflow"),
			postgres.WithPassword("leadflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = p.Close(context.Background())
	})

	return p, ctx
}

func buildWorkflow() *models.Workflow {
	wait := 1440

	return &models.Workflow{
		ID:          uuid.New().String(),
		Name:        "Welcome Series",
		Description: "Nurture new leads",
		Status:      models.WorkflowStatusActive,
		TriggerType: models.TriggerLeadCreated,
		AudienceFilters: map[string]any{
			"source": "WEBSITE",
		},
		ExitOnConversion: true,
		Steps: []*models.WorkflowStep{
			{
				ID:         "send-welcome",
				OrderIndex: 1,
				Name:       "Send welcome",
				Type:       models.StepTypeSendMessage,
				SendMessage: &models.SendMessageStep{
					Channel:    models.ChannelEmail,
					TemplateID: uuid.New().String(),
				},
				Active: true,
			},
			{
				ID:         "wait-a-day",
				OrderIndex: 2,
				Name:       "Wait a day",
				Type:       models.StepTypeWait,
				Wait:       &models.WaitStep{DurationMinutes: &wait},
				Active:     true,
			},
			{
				ID:         "branch-on-stage",
				OrderIndex: 3,
				Name:       "Branch on stage",
				Type:       models.StepTypeCondition,
				Condition: &models.ConditionStep{
					Condition:     models.Condition{Field: "stage", Operator: "equals", Value: "INTERESTED"},
					TrueNextStep:  "send-welcome",
					FalseNextStep: "wait-a-day",
				},
				Active: true,
			},
		},
	}
}

func TestWorkflowRepository_RoundTrip(t *testing.T) {
	p, ctx := setupTestDB(t)

	workflow := buildWorkflow()
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	loaded, err := p.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)

	assert.Equal(t, workflow.Name, loaded.Name)
	assert.Equal(t, models.TriggerLeadCreated, loaded.TriggerType)
	assert.Equal(t, map[string]any{"source": "WEBSITE"}, loaded.AudienceFilters)
	require.Len(t, loaded.Steps, 3)

	require.NotNil(t, loaded.Steps[0].SendMessage)
	assert.Equal(t, models.ChannelEmail, loaded.Steps[0].SendMessage.Channel)

	require.NotNil(t, loaded.Steps[1].Wait)
	require.NotNil(t, loaded.Steps[1].Wait.DurationMinutes)
	assert.Equal(t, 1440, *loaded.Steps[1].Wait.DurationMinutes)

	require.NotNil(t, loaded.Steps[2].Condition)
	assert.Equal(t, "send-welcome", loaded.Steps[2].Condition.TrueNextStep)

	active, err := p.WorkflowRepository().GetByStatus(ctx, models.WorkflowStatusActive)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	_, err = p.WorkflowRepository().GetByID(ctx, uuid.New().String())
	assert.ErrorIs(t, err, persistence.ErrWorkflowNotFound)
}

func TestWorkflowRepository_Counters(t *testing.T) {
	p, ctx := setupTestDB(t)

	workflow := buildWorkflow()
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	require.NoError(t, p.WorkflowRepository().IncrementCounter(ctx, workflow.ID, persistence.CounterEnrolled))
	require.NoError(t, p.WorkflowRepository().IncrementCounter(ctx, workflow.ID, persistence.CounterEnrolled))

	loaded, err := p.WorkflowRepository().GetByID(ctx, workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.TotalEnrolled)
}

func TestExecutionRepository_DueAndResume(t *testing.T) {
	p, ctx := setupTestDB(t)

	workflow := buildWorkflow()
	require.NoError(t, p.WorkflowRepository().Save(ctx, workflow))

	stepID := "send-welcome"
	past := time.Now().UTC().Add(-time.Minute)

	execution := &models.WorkflowExecution{
		WorkflowID:    workflow.ID,
		LeadID:        "lead-1",
		Status:        models.ExecutionStatusPending,
		CurrentStepID: &stepID,
		NextActionAt:  &past,
	}
	execution.AppendLog("send-welcome", "COMPLETED", "welcome sent")
	require.NoError(t, p.ExecutionRepository().Save(ctx, execution))

	// Event-parked execution is never due.
	parked := &models.WorkflowExecution{
		WorkflowID:    workflow.ID,
		LeadID:        "lead-2",
		Status:        models.ExecutionStatusRunning,
		CurrentStepID: &stepID,
	}
	require.NoError(t, p.ExecutionRepository().Save(ctx, parked))

	due, err := p.ExecutionRepository().Due(ctx, time.Now().UTC(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, execution.ID, due[0].ID)
	require.Len(t, due[0].Log, 1)
	assert.Equal(t, "welcome sent", due[0].Log[0].Details)

	exists, err := p.ExecutionRepository().NonTerminalExists(ctx, workflow.ID, "lead-1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = p.ExecutionRepository().NonTerminalExists(ctx, workflow.ID, "lead-9")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestMessageLogRepository_ProviderLookup(t *testing.T) {
	p, ctx := setupTestDB(t)

	entry := &models.MessageLog{
		LeadID:            "lead-1",
		Channel:           models.ChannelWhatsApp,
		Recipient:         "+911234567890",
		Body:              "Hi Asha!",
		Status:            models.MessageStatusSent,
		ProviderMessageID: "prov-42",
	}
	require.NoError(t, p.MessageLogRepository().Save(ctx, entry))

	loaded, err := p.MessageLogRepository().GetByProviderMessageID(ctx, "prov-42")
	require.NoError(t, err)
	assert.Equal(t, entry.ID, loaded.ID)
	assert.Equal(t, models.MessageStatusSent, loaded.Status)

	// Status update through the same row.
	now := time.Now().UTC()
	loaded.Status = models.MessageStatusDelivered
	loaded.DeliveredAt = &now
	require.NoError(t, p.MessageLogRepository().Save(ctx, loaded))

	reloaded, err := p.MessageLogRepository().GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusDelivered, reloaded.Status)
	require.NotNil(t, reloaded.DeliveredAt)

	_, err = p.MessageLogRepository().GetByProviderMessageID(ctx, "missing")
	assert.ErrorIs(t, err, persistence.ErrMessageLogNotFound)
}

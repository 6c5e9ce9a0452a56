package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ktej255/leadflow/pkg/models"
	"github.com/Ktej255/leadflow/pkg/persistence"
	"github.com/google/uuid"
)

type MessageLogRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewMessageLogRepository(db *sql.DB, logger *slog.Logger) *MessageLogRepository {
	return &MessageLogRepository{db: db, logger: logger}
}

const messageLogColumns = `
	id
  , lead_id
  , workflow_execution_id
  , template_id
  , channel
  , recipient
  , subject
  , body
  , status
  , sent_at
  , delivered_at
  , opened_at
  , clicked_at
  , replied_at
  , provider_message_id
  , error_message
  , created_at
`

func (r *MessageLogRepository) GetByID(ctx context.Context, id string) (*models.MessageLog, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+messageLogColumns+` FROM message_logs WHERE id = $1`, id)

	return scanMessageLog(row)
}

func (r *MessageLogRepository) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*models.MessageLog, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+messageLogColumns+` FROM message_logs WHERE provider_message_id = $1`, providerMessageID)

	return scanMessageLog(row)
}

func (r *MessageLogRepository) Save(ctx context.Context, entry *models.MessageLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if entry.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate message log ID: %w", err)
		}

		entry.ID = id.String()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO message_logs (
			id, lead_id, workflow_execution_id, template_id, channel,
			recipient, subject, body, status, sent_at, delivered_at,
			opened_at, clicked_at, replied_at, provider_message_id,
			error_message, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			sent_at = EXCLUDED.sent_at,
			delivered_at = EXCLUDED.delivered_at,
			opened_at = EXCLUDED.opened_at,
			clicked_at = EXCLUDED.clicked_at,
			replied_at = EXCLUDED.replied_at,
			provider_message_id = EXCLUDED.provider_message_id,
			error_message = EXCLUDED.error_message
	`,
		entry.ID, nullableString(entry.LeadID), nullableUUID(entry.ExecutionID),
		nullableUUID(entry.TemplateID), string(entry.Channel), entry.Recipient,
		nullableString(entry.Subject), nullableString(entry.Body),
		string(entry.Status), entry.SentAt, entry.DeliveredAt, entry.OpenedAt,
		entry.ClickedAt, entry.RepliedAt, nullableString(entry.ProviderMessageID),
		nullableString(entry.ErrorMessage), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save message log: %w", err)
	}

	return nil
}

func scanMessageLog(row rowScanner) (*models.MessageLog, error) {
	entry := &models.MessageLog{}

	var (
		leadID            sql.NullString
		executionID       sql.NullString
		templateID        sql.NullString
		channel           string
		subject           sql.NullString
		body              sql.NullString
		status            string
		providerMessageID sql.NullString
		errorMessage      sql.NullString
	)

	err := row.Scan(
		&entry.ID, &leadID, &executionID, &templateID, &channel,
		&entry.Recipient, &subject, &body, &status, &entry.SentAt,
		&entry.DeliveredAt, &entry.OpenedAt, &entry.ClickedAt,
		&entry.RepliedAt, &providerMessageID, &errorMessage, &entry.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrMessageLogNotFound
		}

		return nil, fmt.Errorf("failed to scan message log: %w", err)
	}

	entry.LeadID = leadID.String
	entry.ExecutionID = executionID.String
	entry.TemplateID = templateID.String
	entry.Channel = models.ChannelType(channel)
	entry.Subject = subject.String
	entry.Body = body.String
	entry.Status = models.MessageStatus(status)
	entry.ProviderMessageID = providerMessageID.String
	entry.ErrorMessage = errorMessage.String

	return entry, nil
}

func nullableUUID(value string) any {
	if value == "" {
		return nil
	}

	return value
}

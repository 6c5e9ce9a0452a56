package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ktej255/leadflow/pkg/models"
	"github.com/Ktej255/leadflow/pkg/persistence"
	"github.com/google/uuid"
)

type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewTemplateRepository(db *sql.DB, logger *slog.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.CommunicationTemplate, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT
			id
		  , name
		  , channel
		  , subject
		  , body
		  , html_body
		  , available_tokens
		  , media_url
		  , media_type
		  , category
		  , is_active
		  , created_at
		  , updated_at
		FROM communication_templates
		WHERE id = $1
	`, id)

	template := &models.CommunicationTemplate{}

	var (
		channel    string
		subject    sql.NullString
		htmlBody   sql.NullString
		tokensJSON []byte
		mediaURL   sql.NullString
		mediaType  sql.NullString
		category   sql.NullString
	)

	err := row.Scan(
		&template.ID, &template.Name, &channel, &subject, &template.Body,
		&htmlBody, &tokensJSON, &mediaURL, &mediaType, &category,
		&template.Active, &template.CreatedAt, &template.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrTemplateNotFound
		}

		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	template.Channel = models.ChannelType(channel)
	template.Subject = subject.String
	template.HTMLBody = htmlBody.String
	template.MediaURL = mediaURL.String
	template.MediaType = mediaType.String
	template.Category = category.String

	if len(tokensJSON) > 0 {
		if err := json.Unmarshal(tokensJSON, &template.AvailableTokens); err != nil {
			return nil, fmt.Errorf("failed to unmarshal available tokens: %w", err)
		}
	}

	return template, nil
}

func (r *TemplateRepository) Save(ctx context.Context, template *models.CommunicationTemplate) error {
	now := time.Now().UTC()

	if template.CreatedAt.IsZero() {
		template.CreatedAt = now
	}

	template.UpdatedAt = now

	if template.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate template ID: %w", err)
		}

		template.ID = id.String()
	}

	tokensJSON, err := json.Marshal(template.AvailableTokens)
	if err != nil {
		return fmt.Errorf("failed to marshal available tokens: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO communication_templates (
			id, name, channel, subject, body, html_body, available_tokens,
			media_url, media_type, category, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			channel = EXCLUDED.channel,
			subject = EXCLUDED.subject,
			body = EXCLUDED.body,
			html_body = EXCLUDED.html_body,
			available_tokens = EXCLUDED.available_tokens,
			media_url = EXCLUDED.media_url,
			media_type = EXCLUDED.media_type,
			category = EXCLUDED.category,
			is_active = EXCLUDED.is_active,
			updated_at = EXCLUDED.updated_at
	`,
		template.ID, template.Name, string(template.Channel), template.Subject,
		template.Body, template.HTMLBody, tokensJSON, template.MediaURL,
		template.MediaType, template.Category, template.Active,
		template.CreatedAt, template.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save template: %w", err)
	}

	return nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/lovely-prompts/models"
	"github.com/upb/lovely-prompts/repositories"
	"go.uber.org/zap"
)

// CompletionResponseRepository stores completion responses
type CompletionResponseRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewCompletionResponseRepository creates a new completion response repository
func NewCompletionResponseRepository(db *DB, logger *zap.Logger) repositories.RecordRepository[*models.CompletionResponse] {
	return &CompletionResponseRepository{
		db:     db,
		logger: logger,
	}
}

const completionResponseSelect = `SELECT ` + entryColumns + `, prompt_id, ` + responseColumns + ` FROM completion_responses`

func scanCompletionResponse(row rowScanner) (*models.CompletionResponse, error) {
	r := &models.CompletionResponse{}
	dest := concat(
		entryDest(&r.EntryMeta),
		[]interface{}{&r.PromptID},
		responseDest(&r.ResponseMeta),
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return r, nil
}

// List retrieves completion responses, newest first
func (r *CompletionResponseRepository) List(ctx context.Context, skip, limit int) ([]*models.CompletionResponse, error) {
	skip, limit = normalizePage(skip, limit)
	query := completionResponseSelect + ` ORDER BY created DESC LIMIT ? OFFSET ?`
	return r.query(ctx, query, limit, skip)
}

// GetByID retrieves a completion response by ID
func (r *CompletionResponseRepository) GetByID(ctx context.Context, id string) (*models.CompletionResponse, error) {
	query := completionResponseSelect + ` WHERE id = ?`

	executor := GetExecutor(ctx, r.db)
	resp, err := scanCompletionResponse(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("completion response %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get completion response: %w", err)
	}
	return resp, nil
}

// Create inserts a completion response
func (r *CompletionResponseRepository) Create(ctx context.Context, resp *models.CompletionResponse) error {
	query := `INSERT INTO completion_responses (` + entryColumns + `, prompt_id, ` + responseColumns + `)
		VALUES (` + placeholders(16) + `)`

	args := concat(
		entryArgs(&resp.EntryMeta),
		[]interface{}{resp.PromptID},
		responseArgs(&resp.ResponseMeta),
	)

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create completion response: %w", err)
	}

	r.logger.Debug("completion response created",
		zap.String("id", resp.ID),
		zap.String("prompt_id", resp.PromptID))
	return nil
}

// Update overwrites a completion response
func (r *CompletionResponseRepository) Update(ctx context.Context, resp *models.CompletionResponse) error {
	query := `UPDATE completion_responses SET title = ?, comment = ?, synced = ?, updated = ?, prompt_id = ?, ` +
		responseAssignments + ` WHERE id = ?`

	args := concat(
		[]interface{}{resp.Title, resp.Comment, resp.Synced, resp.Updated, resp.PromptID},
		responseArgs(&resp.ResponseMeta),
		[]interface{}{resp.ID},
	)

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update completion response: %w", err)
	}
	return requireAffected(result, "completion response", resp.ID)
}

// Delete removes a completion response
func (r *CompletionResponseRepository) Delete(ctx context.Context, id string) error {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, `DELETE FROM completion_responses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete completion response: %w", err)
	}
	if err := requireAffected(result, "completion response", id); err != nil {
		return err
	}

	r.logger.Debug("completion response deleted", zap.String("id", id))
	return nil
}

// ListUnsynced retrieves completion responses that have not been replicated yet
func (r *CompletionResponseRepository) ListUnsynced(ctx context.Context, limit int) ([]*models.CompletionResponse, error) {
	_, limit = normalizePage(0, limit)
	query := completionResponseSelect + ` WHERE synced = 0 ORDER BY created LIMIT ?`
	return r.query(ctx, query, limit)
}

// MarkSynced flags completion responses as replicated unless they changed since their mark
func (r *CompletionResponseRepository) MarkSynced(ctx context.Context, marks []repositories.SyncMark) error {
	if len(marks) == 0 {
		return nil
	}
	if err := markSynced(ctx, GetExecutor(ctx, r.db), "completion_responses", marks); err != nil {
		return fmt.Errorf("failed to mark completion responses synced: %w", err)
	}
	return nil
}

func (r *CompletionResponseRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.CompletionResponse, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query completion responses: %w", err)
	}
	defer rows.Close()

	responses := []*models.CompletionResponse{}
	for rows.Next() {
		resp, err := scanCompletionResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan completion response: %w", err)
		}
		responses = append(responses, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating completion responses: %w", err)
	}
	return responses, nil
}

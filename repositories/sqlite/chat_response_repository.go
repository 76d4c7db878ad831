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

// ChatResponseRepository stores chat responses
type ChatResponseRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewChatResponseRepository creates a new chat response repository
func NewChatResponseRepository(db *DB, logger *zap.Logger) repositories.RecordRepository[*models.ChatResponse] {
	return &ChatResponseRepository{
		db:     db,
		logger: logger,
	}
}

const chatResponseSelect = `SELECT ` + entryColumns + `, prompt_id, role, ` + responseColumns + ` FROM chat_responses`

func scanChatResponse(row rowScanner) (*models.ChatResponse, error) {
	r := &models.ChatResponse{}
	dest := concat(
		entryDest(&r.EntryMeta),
		[]interface{}{&r.PromptID, &r.Role},
		responseDest(&r.ResponseMeta),
	)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	return r, nil
}

// List retrieves chat responses, newest first
func (r *ChatResponseRepository) List(ctx context.Context, skip, limit int) ([]*models.ChatResponse, error) {
	skip, limit = normalizePage(skip, limit)
	query := chatResponseSelect + ` ORDER BY created DESC LIMIT ? OFFSET ?`
	return r.query(ctx, query, limit, skip)
}

// GetByID retrieves a chat response by ID
func (r *ChatResponseRepository) GetByID(ctx context.Context, id string) (*models.ChatResponse, error) {
	query := chatResponseSelect + ` WHERE id = ?`

	executor := GetExecutor(ctx, r.db)
	resp, err := scanChatResponse(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chat response %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get chat response: %w", err)
	}
	return resp, nil
}

// Create inserts a chat response
func (r *ChatResponseRepository) Create(ctx context.Context, resp *models.ChatResponse) error {
	query := `INSERT INTO chat_responses (` + entryColumns + `, prompt_id, role, ` + responseColumns + `)
		VALUES (` + placeholders(17) + `)`

	args := concat(
		entryArgs(&resp.EntryMeta),
		[]interface{}{resp.PromptID, resp.Role},
		responseArgs(&resp.ResponseMeta),
	)

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create chat response: %w", err)
	}

	r.logger.Debug("chat response created",
		zap.String("id", resp.ID),
		zap.String("prompt_id", resp.PromptID))
	return nil
}

// Update overwrites a chat response
func (r *ChatResponseRepository) Update(ctx context.Context, resp *models.ChatResponse) error {
	query := `UPDATE chat_responses SET title = ?, comment = ?, synced = ?, updated = ?, prompt_id = ?, role = ?, ` +
		responseAssignments + ` WHERE id = ?`

	args := concat(
		[]interface{}{resp.Title, resp.Comment, resp.Synced, resp.Updated, resp.PromptID, resp.Role},
		responseArgs(&resp.ResponseMeta),
		[]interface{}{resp.ID},
	)

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update chat response: %w", err)
	}
	return requireAffected(result, "chat response", resp.ID)
}

// Delete removes a chat response
func (r *ChatResponseRepository) Delete(ctx context.Context, id string) error {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, `DELETE FROM chat_responses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete chat response: %w", err)
	}
	if err := requireAffected(result, "chat response", id); err != nil {
		return err
	}

	r.logger.Debug("chat response deleted", zap.String("id", id))
	return nil
}

// ListUnsynced retrieves chat responses that have not been replicated yet
func (r *ChatResponseRepository) ListUnsynced(ctx context.Context, limit int) ([]*models.ChatResponse, error) {
	_, limit = normalizePage(0, limit)
	query := chatResponseSelect + ` WHERE synced = 0 ORDER BY created LIMIT ?`
	return r.query(ctx, query, limit)
}

// MarkSynced flags chat responses as replicated unless they changed since their mark
func (r *ChatResponseRepository) MarkSynced(ctx context.Context, marks []repositories.SyncMark) error {
	if len(marks) == 0 {
		return nil
	}
	if err := markSynced(ctx, GetExecutor(ctx, r.db), "chat_responses", marks); err != nil {
		return fmt.Errorf("failed to mark chat responses synced: %w", err)
	}
	return nil
}

func (r *ChatResponseRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.ChatResponse, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat responses: %w", err)
	}
	defer rows.Close()

	responses := []*models.ChatResponse{}
	for rows.Next() {
		resp, err := scanChatResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat response: %w", err)
		}
		responses = append(responses, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat responses: %w", err)
	}
	return responses, nil
}

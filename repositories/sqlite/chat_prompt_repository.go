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

// ChatPromptRepository stores chat prompts
type ChatPromptRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewChatPromptRepository creates a new chat prompt repository
func NewChatPromptRepository(db *DB, logger *zap.Logger) repositories.RecordRepository[*models.ChatPrompt] {
	return &ChatPromptRepository{
		db:     db,
		logger: logger,
	}
}

const chatPromptSelect = `SELECT ` + entryColumns + `, prompt FROM chat_prompts`

func scanChatPrompt(row rowScanner) (*models.ChatPrompt, error) {
	p := &models.ChatPrompt{}
	if err := row.Scan(append(entryDest(&p.EntryMeta), &p.Prompt)...); err != nil {
		return nil, err
	}
	return p, nil
}

// List retrieves chat prompts, newest first
func (r *ChatPromptRepository) List(ctx context.Context, skip, limit int) ([]*models.ChatPrompt, error) {
	skip, limit = normalizePage(skip, limit)
	query := chatPromptSelect + ` ORDER BY created DESC LIMIT ? OFFSET ?`
	return r.query(ctx, query, limit, skip)
}

// GetByID retrieves a chat prompt by ID
func (r *ChatPromptRepository) GetByID(ctx context.Context, id string) (*models.ChatPrompt, error) {
	query := chatPromptSelect + ` WHERE id = ?`

	executor := GetExecutor(ctx, r.db)
	p, err := scanChatPrompt(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("chat prompt %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get chat prompt: %w", err)
	}
	return p, nil
}

// Create inserts a chat prompt
func (r *ChatPromptRepository) Create(ctx context.Context, p *models.ChatPrompt) error {
	query := `INSERT INTO chat_prompts (` + entryColumns + `, prompt) VALUES (?, ?, ?, ?, ?, ?, ?)`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, append(entryArgs(&p.EntryMeta), p.Prompt)...); err != nil {
		return fmt.Errorf("failed to create chat prompt: %w", err)
	}

	r.logger.Debug("chat prompt created", zap.String("id", p.ID))
	return nil
}

// Update overwrites a chat prompt
func (r *ChatPromptRepository) Update(ctx context.Context, p *models.ChatPrompt) error {
	query := `UPDATE chat_prompts SET title = ?, comment = ?, synced = ?, updated = ?, prompt = ? WHERE id = ?`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, p.Title, p.Comment, p.Synced, p.Updated, p.Prompt, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update chat prompt: %w", err)
	}
	return requireAffected(result, "chat prompt", p.ID)
}

// Delete removes a chat prompt and, by cascade, its responses
func (r *ChatPromptRepository) Delete(ctx context.Context, id string) error {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, `DELETE FROM chat_prompts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete chat prompt: %w", err)
	}
	if err := requireAffected(result, "chat prompt", id); err != nil {
		return err
	}

	r.logger.Debug("chat prompt deleted", zap.String("id", id))
	return nil
}

// ListUnsynced retrieves chat prompts that have not been replicated yet
func (r *ChatPromptRepository) ListUnsynced(ctx context.Context, limit int) ([]*models.ChatPrompt, error) {
	_, limit = normalizePage(0, limit)
	query := chatPromptSelect + ` WHERE synced = 0 ORDER BY created LIMIT ?`
	return r.query(ctx, query, limit)
}

// MarkSynced flags chat prompts as replicated unless they changed since their mark
func (r *ChatPromptRepository) MarkSynced(ctx context.Context, marks []repositories.SyncMark) error {
	if len(marks) == 0 {
		return nil
	}
	if err := markSynced(ctx, GetExecutor(ctx, r.db), "chat_prompts", marks); err != nil {
		return fmt.Errorf("failed to mark chat prompts synced: %w", err)
	}
	return nil
}

func (r *ChatPromptRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.ChatPrompt, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat prompts: %w", err)
	}
	defer rows.Close()

	prompts := []*models.ChatPrompt{}
	for rows.Next() {
		p, err := scanChatPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chat prompt: %w", err)
		}
		prompts = append(prompts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat prompts: %w", err)
	}
	return prompts, nil
}

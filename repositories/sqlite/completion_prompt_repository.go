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

// CompletionPromptRepository stores completion prompts
type CompletionPromptRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewCompletionPromptRepository creates a new completion prompt repository
func NewCompletionPromptRepository(db *DB, logger *zap.Logger) repositories.RecordRepository[*models.CompletionPrompt] {
	return &CompletionPromptRepository{
		db:     db,
		logger: logger,
	}
}

const completionPromptSelect = `SELECT ` + entryColumns + `, prompt FROM completion_prompts`

func scanCompletionPrompt(row rowScanner) (*models.CompletionPrompt, error) {
	p := &models.CompletionPrompt{}
	if err := row.Scan(append(entryDest(&p.EntryMeta), &p.Prompt)...); err != nil {
		return nil, err
	}
	return p, nil
}

// List retrieves completion prompts, newest first
func (r *CompletionPromptRepository) List(ctx context.Context, skip, limit int) ([]*models.CompletionPrompt, error) {
	skip, limit = normalizePage(skip, limit)
	query := completionPromptSelect + ` ORDER BY created DESC LIMIT ? OFFSET ?`
	return r.query(ctx, query, limit, skip)
}

// GetByID retrieves a completion prompt by ID
func (r *CompletionPromptRepository) GetByID(ctx context.Context, id string) (*models.CompletionPrompt, error) {
	query := completionPromptSelect + ` WHERE id = ?`

	executor := GetExecutor(ctx, r.db)
	p, err := scanCompletionPrompt(executor.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("completion prompt %s: %w", id, repositories.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get completion prompt: %w", err)
	}
	return p, nil
}

// Create inserts a completion prompt
func (r *CompletionPromptRepository) Create(ctx context.Context, p *models.CompletionPrompt) error {
	query := `INSERT INTO completion_prompts (` + entryColumns + `, prompt) VALUES (?, ?, ?, ?, ?, ?, ?)`

	executor := GetExecutor(ctx, r.db)
	if _, err := executor.ExecContext(ctx, query, append(entryArgs(&p.EntryMeta), p.Prompt)...); err != nil {
		return fmt.Errorf("failed to create completion prompt: %w", err)
	}

	r.logger.Debug("completion prompt created", zap.String("id", p.ID))
	return nil
}

// Update overwrites a completion prompt
func (r *CompletionPromptRepository) Update(ctx context.Context, p *models.CompletionPrompt) error {
	query := `UPDATE completion_prompts SET title = ?, comment = ?, synced = ?, updated = ?, prompt = ? WHERE id = ?`

	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, query, p.Title, p.Comment, p.Synced, p.Updated, p.Prompt, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update completion prompt: %w", err)
	}
	return requireAffected(result, "completion prompt", p.ID)
}

// Delete removes a completion prompt and, by cascade, its responses
func (r *CompletionPromptRepository) Delete(ctx context.Context, id string) error {
	executor := GetExecutor(ctx, r.db)
	result, err := executor.ExecContext(ctx, `DELETE FROM completion_prompts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete completion prompt: %w", err)
	}
	if err := requireAffected(result, "completion prompt", id); err != nil {
		return err
	}

	r.logger.Debug("completion prompt deleted", zap.String("id", id))
	return nil
}

// ListUnsynced retrieves completion prompts that have not been replicated yet
func (r *CompletionPromptRepository) ListUnsynced(ctx context.Context, limit int) ([]*models.CompletionPrompt, error) {
	_, limit = normalizePage(0, limit)
	query := completionPromptSelect + ` WHERE synced = 0 ORDER BY created LIMIT ?`
	return r.query(ctx, query, limit)
}

// MarkSynced flags completion prompts as replicated unless they changed since their mark
func (r *CompletionPromptRepository) MarkSynced(ctx context.Context, marks []repositories.SyncMark) error {
	if len(marks) == 0 {
		return nil
	}
	if err := markSynced(ctx, GetExecutor(ctx, r.db), "completion_prompts", marks); err != nil {
		return fmt.Errorf("failed to mark completion prompts synced: %w", err)
	}
	return nil
}

func (r *CompletionPromptRepository) query(ctx context.Context, query string, args ...interface{}) ([]*models.CompletionPrompt, error) {
	executor := GetExecutor(ctx, r.db)
	rows, err := executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query completion prompts: %w", err)
	}
	defer rows.Close()

	prompts := []*models.CompletionPrompt{}
	for rows.Next() {
		p, err := scanCompletionPrompt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan completion prompt: %w", err)
		}
		prompts = append(prompts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating completion prompts: %w", err)
	}
	return prompts, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/upb/lovely-prompts/models"
	"github.com/upb/lovely-prompts/repositories"
)

const (
	entryColumns    = "id, title, comment, synced, created, updated"
	responseColumns = "content, stop_reason, tok_in, tok_out, tok_max, model, temperature, provider, meta"

	// responseAssignments matches responseColumns for UPDATE statements
	responseAssignments = "content = ?, stop_reason = ?, tok_in = ?, tok_out = ?, tok_max = ?, model = ?, temperature = ?, provider = ?, meta = ?"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func entryDest(m *models.EntryMeta) []interface{} {
	return []interface{}{&m.ID, &m.Title, &m.Comment, &m.Synced, &m.Created, &m.Updated}
}

func entryArgs(m *models.EntryMeta) []interface{} {
	return []interface{}{m.ID, m.Title, m.Comment, m.Synced, m.Created, m.Updated}
}

func responseDest(m *models.ResponseMeta) []interface{} {
	return []interface{}{&m.Content, &m.StopReason, &m.TokIn, &m.TokOut, &m.TokMax, &m.Model, &m.Temperature, &m.Provider, &m.Meta}
}

func responseArgs(m *models.ResponseMeta) []interface{} {
	return []interface{}{m.Content, m.StopReason, m.TokIn, m.TokOut, m.TokMax, m.Model, m.Temperature, m.Provider, m.Meta}
}

func concat(parts ...[]interface{}) []interface{} {
	var out []interface{}
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// placeholders returns "?, ?, ?" for n arguments
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// markSynced flags each row only while it still carries the replicated version
func markSynced(ctx context.Context, executor Executor, table string, marks []repositories.SyncMark) error {
	query := "UPDATE " + table + " SET synced = 1 WHERE id = ? AND updated = ?"
	for _, m := range marks {
		if _, err := executor.ExecContext(ctx, query, m.ID, m.Updated); err != nil {
			return err
		}
	}
	return nil
}

// requireAffected maps a zero-row UPDATE or DELETE to ErrNotFound
func requireAffected(result sql.Result, table, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", table, id, repositories.ErrNotFound)
	}
	return nil
}

// normalizePage applies the default page size and clamps negatives
func normalizePage(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 100
	}
	return skip, limit
}

package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/upb/lovely-prompts/models"
	"github.com/upb/lovely-prompts/repositories"
	"go.uber.org/zap"
)

// table describes one replica table; the first column is always id
type table struct {
	name    string
	columns []string
}

var (
	entryColumns    = []string{"id", "title", "comment", "created", "updated"}
	responseColumns = []string{"content", "stop_reason", "tok_in", "tok_out", "tok_max", "model", "temperature", "provider", "meta"}

	chatPromptTable         = table{"chat_prompts", join(entryColumns, []string{"prompt"})}
	chatResponseTable       = table{"chat_responses", join(entryColumns, []string{"prompt_id", "role"}, responseColumns)}
	completionPromptTable   = table{"completion_prompts", join(entryColumns, []string{"prompt"})}
	completionResponseTable = table{"completion_responses", join(entryColumns, []string{"prompt_id"}, responseColumns)}
)

func join(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// upsertQuery builds an INSERT ... ON CONFLICT (project, id) DO UPDATE statement
func (t table) upsertQuery() string {
	cols := append([]string{"project"}, t.columns...)
	params := make([]string, len(cols))
	for i := range cols {
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	sets := make([]string, 0, len(t.columns)-1)
	for _, c := range t.columns[1:] {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (project, id) DO UPDATE SET %s",
		t.name, strings.Join(cols, ", "), strings.Join(params, ", "), strings.Join(sets, ", "))
}

func entryValues(m *models.EntryMeta) []interface{} {
	return []interface{}{m.ID, m.Title, m.Comment, m.Created, m.Updated}
}

func responseValues(m *models.ResponseMeta) []interface{} {
	return []interface{}{m.Content, m.StopReason, m.TokIn, m.TokOut, m.TokMax, m.Model, m.Temperature, m.Provider, m.Meta}
}

func chatPromptRow(p *models.ChatPrompt) []interface{} {
	return append(entryValues(&p.EntryMeta), p.Prompt)
}

func chatResponseRow(r *models.ChatResponse) []interface{} {
	row := append(entryValues(&r.EntryMeta), r.PromptID, r.Role)
	return append(row, responseValues(&r.ResponseMeta)...)
}

func completionPromptRow(p *models.CompletionPrompt) []interface{} {
	return append(entryValues(&p.EntryMeta), p.Prompt)
}

func completionResponseRow(r *models.CompletionResponse) []interface{} {
	row := append(entryValues(&r.EntryMeta), r.PromptID)
	return append(row, responseValues(&r.ResponseMeta)...)
}

// Replica writes local records into the remote database
type Replica struct {
	db     *DB
	txMgr  repositories.TransactionManager
	logger *zap.Logger
}

// NewReplica creates a replica writer over db
func NewReplica(db *DB, logger *zap.Logger) *Replica {
	return &Replica{
		db:     db,
		txMgr:  NewTransactionManager(db, logger),
		logger: logger,
	}
}

// UpsertChatPrompts copies chat prompts of project into the replica
func (r *Replica) UpsertChatPrompts(ctx context.Context, project string, recs []*models.ChatPrompt) error {
	return upsert(ctx, r, chatPromptTable, project, recs, chatPromptRow)
}

// UpsertChatResponses copies chat responses of project into the replica
func (r *Replica) UpsertChatResponses(ctx context.Context, project string, recs []*models.ChatResponse) error {
	return upsert(ctx, r, chatResponseTable, project, recs, chatResponseRow)
}

// UpsertCompletionPrompts copies completion prompts of project into the replica
func (r *Replica) UpsertCompletionPrompts(ctx context.Context, project string, recs []*models.CompletionPrompt) error {
	return upsert(ctx, r, completionPromptTable, project, recs, completionPromptRow)
}

// UpsertCompletionResponses copies completion responses of project into the replica
func (r *Replica) UpsertCompletionResponses(ctx context.Context, project string, recs []*models.CompletionResponse) error {
	return upsert(ctx, r, completionResponseTable, project, recs, completionResponseRow)
}

// HealthCheck reports whether the replica is reachable
func (r *Replica) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// upsert writes one batch in a single transaction
func upsert[R any](ctx context.Context, r *Replica, t table, project string, recs []R, row func(R) []interface{}) error {
	if len(recs) == 0 {
		return nil
	}
	query := t.upsertQuery()

	err := r.txMgr.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
		executor := GetExecutor(ctx, r.db)
		for _, rec := range recs {
			args := append([]interface{}{project}, row(rec)...)
			if _, err := executor.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to upsert into %s: %w", t.name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Debug("replica batch written",
		zap.String("table", t.name),
		zap.String("project", project),
		zap.Int("rows", len(recs)))
	return nil
}

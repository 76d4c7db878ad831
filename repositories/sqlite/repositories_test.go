package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/lovely-prompts/models"
	"github.com/upb/lovely-prompts/repositories"
	"go.uber.org/zap/zaptest"
)

func openTestDB(t *testing.T) (*DB, *Repositories) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := Open(context.Background(), path, DefaultOptions(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema(context.Background()))

	return db, NewRepositories(db, logger)
}

func TestInitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")

	require.NoError(t, InitFile(context.Background(), path, DefaultOptions().BusyTimeout, zaptest.NewLogger(t)))

	_, err := os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(path + "-wal")
	assert.True(t, os.IsNotExist(err), "initialised file must not leave a WAL behind")

	db, err := Open(context.Background(), path, DefaultOptions(), zaptest.NewLogger(t))
	require.NoError(t, err)
	defer db.Close()

	var version int
	require.NoError(t, db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, schemaVersion, version)
	require.NoError(t, db.InitSchema(context.Background()), "schema init is idempotent")
	require.NoError(t, db.HealthCheck(context.Background()))
}

func TestRepositories_ChatRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, repos := openTestDB(t)

	prompt := models.NewChatPrompt()
	prompt.Title = models.String("first")
	prompt.Prompt = models.JSON(`{"messages":[{"role":"user","text":"Hello there"}]}`)
	require.NoError(t, repos.ChatPrompts.Create(ctx, prompt))

	resp := models.NewChatResponse(prompt.ID)
	resp.Content = models.String("General Kenobi")
	resp.TokIn = models.Int(10)
	resp.Temperature = models.Float(0.7)
	resp.Role = models.String("assistant")
	require.NoError(t, repos.ChatResponses.Create(ctx, resp))

	got, err := repos.ChatResponses.GetByID(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, prompt.ID, got.PromptID)
	assert.Equal(t, "General Kenobi", *got.Content)
	assert.Equal(t, int64(10), *got.TokIn)
	assert.Equal(t, 0.7, *got.Temperature)
	assert.Equal(t, "assistant", *got.Role)
	assert.Nil(t, got.StopReason)
	assert.True(t, resp.Created.Equal(got.Created))

	got.Content = models.String("changed")
	require.NoError(t, repos.ChatResponses.Update(ctx, got))
	again, err := repos.ChatResponses.GetByID(ctx, resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "changed", *again.Content)

	t.Run("deleting a prompt cascades to its responses", func(t *testing.T) {
		require.NoError(t, repos.ChatPrompts.Delete(ctx, prompt.ID))

		_, err := repos.ChatResponses.GetByID(ctx, resp.ID)
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})
}

func TestRepositories_ResponseRequiresPrompt(t *testing.T) {
	_, repos := openTestDB(t)

	err := repos.CompletionResponses.Create(context.Background(), models.NewCompletionResponse("cop_missing"))
	assert.Error(t, err)
}

func TestRepositories_ListOrderAndSync(t *testing.T) {
	ctx := context.Background()
	_, repos := openTestDB(t)

	first := models.NewCompletionPrompt()
	first.Prompt = models.String("Once upon a time")
	second := models.NewCompletionPrompt()
	second.Created = first.Created.Add(1000)
	require.NoError(t, repos.CompletionPrompts.Create(ctx, first))
	require.NoError(t, repos.CompletionPrompts.Create(ctx, second))

	listed, err := repos.CompletionPrompts.List(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, second.ID, listed[0].ID)
	assert.Equal(t, "Once upon a time", *listed[1].Prompt)

	page, err := repos.CompletionPrompts.List(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, first.ID, page[0].ID)

	unsynced, err := repos.CompletionPrompts.ListUnsynced(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, unsynced, 2)

	require.Equal(t, first.ID, unsynced[0].ID)
	marks := []repositories.SyncMark{
		{ID: first.ID, Updated: unsynced[0].Updated},
		{ID: second.ID, Updated: unsynced[1].Updated.Add(-time.Second)},
	}
	require.NoError(t, repos.CompletionPrompts.MarkSynced(ctx, marks))
	unsynced, err = repos.CompletionPrompts.ListUnsynced(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unsynced, 1, "a mark for an older version leaves the row pending")
	assert.Equal(t, second.ID, unsynced[0].ID)
}

func TestTransactionManager_InTransaction(t *testing.T) {
	ctx := context.Background()
	db, repos := openTestDB(t)
	tm := NewTransactionManager(db, zaptest.NewLogger(t))

	t.Run("rollback on error", func(t *testing.T) {
		p := models.NewChatPrompt()
		err := tm.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
			require.NoError(t, repos.ChatPrompts.Create(ctx, p))
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)

		_, err = repos.ChatPrompts.GetByID(ctx, p.ID)
		assert.ErrorIs(t, err, repositories.ErrNotFound)
	})

	t.Run("commit on success", func(t *testing.T) {
		p := models.NewChatPrompt()
		err := tm.InTransaction(ctx, func(ctx context.Context, tx repositories.Transaction) error {
			return repos.ChatPrompts.Create(ctx, p)
		})
		require.NoError(t, err)

		_, err = repos.ChatPrompts.GetByID(ctx, p.ID)
		assert.NoError(t, err)
	})
}

// Package syncer copies locally written records into the remote replica.
// Records are picked up by their synced flag, which every local write clears.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/lovely-prompts/models"
	"github.com/upb/lovely-prompts/repositories"
	"github.com/upb/lovely-prompts/repositories/sqlite"
	"go.uber.org/zap"
)

// Replica receives batches of records per project
type Replica interface {
	UpsertChatPrompts(ctx context.Context, project string, recs []*models.ChatPrompt) error
	UpsertChatResponses(ctx context.Context, project string, recs []*models.ChatResponse) error
	UpsertCompletionPrompts(ctx context.Context, project string, recs []*models.CompletionPrompt) error
	UpsertCompletionResponses(ctx context.Context, project string, recs []*models.CompletionResponse) error
}

// Store runs a unit of work against one project's database
type Store interface {
	WithSession(ctx context.Context, project string, fn func(ctx context.Context, repos *sqlite.Repositories) error) error
}

// Lister enumerates existing projects
type Lister interface {
	List() ([]string, error)
}

// Config holds configuration for the Syncer
type Config struct {
	Interval  time.Duration
	BatchSize int
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		Interval:  time.Minute,
		BatchSize: 200,
	}
}

// Result counts records copied in one pass
type Result struct {
	Projects int
	Records  int
}

// Syncer periodically replicates every project
type Syncer struct {
	projects Lister
	store    Store
	replica  Replica
	config   Config
	logger   *zap.Logger
}

// New creates a new Syncer
func New(projects Lister, store Store, replica Replica, config Config, logger *zap.Logger) *Syncer {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	return &Syncer{
		projects: projects,
		store:    store,
		replica:  replica,
		config:   config,
		logger:   logger,
	}
}

// Run syncs once immediately and then on every interval until ctx is done.
// Failed passes are logged and retried on the next tick.
func (s *Syncer) Run(ctx context.Context) error {
	s.logger.Info("replica sync started", zap.Duration("interval", s.config.Interval))

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		if res, err := s.SyncAll(ctx); err != nil {
			s.logger.Warn("replica sync failed", zap.Error(err))
		} else if res.Records > 0 {
			s.logger.Info("replica sync completed",
				zap.Int("projects", res.Projects),
				zap.Int("records", res.Records))
		}

		select {
		case <-ctx.Done():
			s.logger.Info("replica sync stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// SyncAll replicates every project. A failing project does not stop the others.
func (s *Syncer) SyncAll(ctx context.Context) (Result, error) {
	names, err := s.projects.List()
	if err != nil {
		return Result{}, fmt.Errorf("failed to list projects: %w", err)
	}

	var res Result
	var firstErr error
	for _, project := range names {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		n, err := s.SyncProject(ctx, project)
		res.Records += n
		if err != nil {
			s.logger.Warn("project sync failed", zap.String("project", project), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		res.Projects++
	}
	return res, firstErr
}

// SyncProject replicates one project. Prompts go first so a replica never
// holds a response whose prompt is missing.
func (s *Syncer) SyncProject(ctx context.Context, project string) (int, error) {
	steps := []func() (int, error){
		func() (int, error) { return syncKind(ctx, s, project, chatPrompts, s.replica.UpsertChatPrompts) },
		func() (int, error) { return syncKind(ctx, s, project, completionPrompts, s.replica.UpsertCompletionPrompts) },
		func() (int, error) { return syncKind(ctx, s, project, chatResponses, s.replica.UpsertChatResponses) },
		func() (int, error) { return syncKind(ctx, s, project, completionResponses, s.replica.UpsertCompletionResponses) },
	}

	total := 0
	for _, step := range steps {
		n, err := step()
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func chatPrompts(r *sqlite.Repositories) repositories.RecordRepository[*models.ChatPrompt] {
	return r.ChatPrompts
}

func chatResponses(r *sqlite.Repositories) repositories.RecordRepository[*models.ChatResponse] {
	return r.ChatResponses
}

func completionPrompts(r *sqlite.Repositories) repositories.RecordRepository[*models.CompletionPrompt] {
	return r.CompletionPrompts
}

func completionResponses(r *sqlite.Repositories) repositories.RecordRepository[*models.CompletionResponse] {
	return r.CompletionResponses
}

// syncKind drains the unsynced records of one kind in batches. The local
// session is not held while the replica is written.
func syncKind[R models.Record](
	ctx context.Context,
	s *Syncer,
	project string,
	repo func(*sqlite.Repositories) repositories.RecordRepository[R],
	upsert func(context.Context, string, []R) error,
) (int, error) {
	total := 0
	for {
		var batch []R
		err := s.store.WithSession(ctx, project, func(ctx context.Context, repos *sqlite.Repositories) error {
			var err error
			batch, err = repo(repos).ListUnsynced(ctx, s.config.BatchSize)
			return err
		})
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			return total, nil
		}

		if err := upsert(ctx, project, batch); err != nil {
			return total, err
		}

		// rows edited while the replica was written keep synced = 0 and go out next pass
		marks := make([]repositories.SyncMark, len(batch))
		for i, rec := range batch {
			meta := rec.Entry()
			marks[i] = repositories.SyncMark{ID: meta.ID, Updated: meta.Updated}
		}
		err = s.store.WithSession(ctx, project, func(ctx context.Context, repos *sqlite.Repositories) error {
			return repo(repos).MarkSynced(ctx, marks)
		})
		if err != nil {
			return total, err
		}

		total += len(batch)
		if len(batch) < s.config.BatchSize {
			return total, nil
		}
	}
}

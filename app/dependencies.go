package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/upb/lovely-prompts/config"
	"github.com/upb/lovely-prompts/internal/events"
	"github.com/upb/lovely-prompts/internal/projects"
	"github.com/upb/lovely-prompts/internal/syncer"
	"github.com/upb/lovely-prompts/models"
	"github.com/upb/lovely-prompts/repositories/postgres"
	"github.com/upb/lovely-prompts/repositories/sqlite"
	"github.com/upb/lovely-prompts/services/records"
	"go.uber.org/zap"
)

// Version is reported by the status endpoint and the CLI
const Version = "0.3.0"

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config *config.Config
	Logger *zap.Logger

	// Storage
	Registry *projects.Registry
	Router   *projects.Router
	Watcher  *projects.Watcher

	// Change events
	Events *events.Bus

	// Record services
	ChatPrompts         *records.Service[*models.ChatPrompt]
	ChatResponses       *records.Service[*models.ChatResponse]
	CompletionPrompts   *records.Service[*models.CompletionPrompt]
	CompletionResponses *records.Service[*models.CompletionResponse]

	// Remote replica, nil unless sync is configured
	ReplicaDB *postgres.DB
	Replica   *postgres.Replica
	Syncer    *syncer.Syncer
}

// NewDependencies creates and wires up all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initStorage(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := deps.initEvents(cfg); err != nil {
		deps.closeStorage()
		return nil, fmt.Errorf("failed to initialize events: %w", err)
	}

	deps.initServices()

	if err := deps.initWatcher(); err != nil {
		deps.closeStorage()
		return nil, fmt.Errorf("failed to initialize watcher: %w", err)
	}

	if err := deps.initSync(ctx, cfg); err != nil {
		_ = deps.Close(ctx)
		return nil, fmt.Errorf("failed to initialize sync: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initStorage opens the project registry and makes sure the default project exists
func (d *Dependencies) initStorage(ctx context.Context, cfg *config.Config) error {
	opts := sqlite.DefaultOptions()
	opts.BusyTimeout = cfg.Storage.BusyTimeout

	d.Registry = projects.NewRegistry(cfg.Storage.ProjectsDir(), cfg.Storage.BusyTimeout, d.Logger)
	d.Router = projects.NewRouter(d.Registry, opts, d.Logger)

	loc, err := d.Registry.Ensure(ctx, cfg.Storage.DefaultProject)
	if err != nil {
		return fmt.Errorf("failed to create default project: %w", err)
	}

	d.Logger.Info("storage initialized",
		zap.String("dir", d.Registry.Dir()),
		zap.String("default_project", loc.Project))
	return nil
}

func (d *Dependencies) initEvents(cfg *config.Config) error {
	policy, err := events.ParseOverflowPolicy(cfg.Events.OverflowPolicy)
	if err != nil {
		return err
	}
	d.Events = events.NewBus(events.Config{
		BufferSize: cfg.Events.SubscriberBuffer,
		Policy:     policy,
	}, d.Logger)
	return nil
}

// initServices builds one record service per kind over the shared router and bus
func (d *Dependencies) initServices() {
	d.ChatPrompts = records.NewService(records.ChatPromptDescriptor, d.Router, d.Registry, d.Events, d.Logger)
	d.ChatResponses = records.NewService(records.ChatResponseDescriptor, d.Router, d.Registry, d.Events, d.Logger)
	d.CompletionPrompts = records.NewService(records.CompletionPromptDescriptor, d.Router, d.Registry, d.Events, d.Logger)
	d.CompletionResponses = records.NewService(records.CompletionResponseDescriptor, d.Router, d.Registry, d.Events, d.Logger)

	d.Logger.Info("record services initialized")
}

// initWatcher evicts cached handles when project files change on disk
func (d *Dependencies) initWatcher() error {
	w, err := projects.NewWatcher(d.Registry.Dir(), d.Router, d.Logger)
	if err != nil {
		return err
	}
	d.Watcher = w
	return nil
}

func (d *Dependencies) initSync(ctx context.Context, cfg *config.Config) error {
	if !cfg.SyncEnabled() {
		d.Logger.Info("replica sync disabled")
		return nil
	}

	db, err := postgres.Open(ctx, cfg.Sync.DatabaseURL, postgres.DefaultPoolOptions(), d.Logger)
	if err != nil {
		return err
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return err
	}

	d.ReplicaDB = db
	d.Replica = postgres.NewReplica(db, d.Logger)
	d.Syncer = syncer.New(d.Registry, d.Router, d.Replica, syncer.Config{
		Interval:  cfg.Sync.Interval,
		BatchSize: cfg.Sync.BatchSize,
	}, d.Logger)
	return nil
}

func (d *Dependencies) closeStorage() {
	if d.Router != nil {
		_ = d.Router.Close()
	}
}

// Close gracefully shuts down all dependencies. The event bus closes first
// so open update streams end before their projects are released.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	var errs []error

	if d.Events != nil {
		d.Events.Close()
	}

	if d.Watcher != nil {
		if err := d.Watcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close watcher: %w", err))
		}
	}

	if d.Router != nil {
		if err := d.Router.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close project databases: %w", err))
		} else {
			d.Logger.Info("project databases closed")
		}
	}

	if d.ReplicaDB != nil {
		if err := d.ReplicaDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close replica: %w", err))
		}
	}

	_ = d.Logger.Sync()

	return errors.Join(errs...)
}

package projects

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/upb/lovely-prompts/repositories"
	"github.com/upb/lovely-prompts/repositories/sqlite"
	"github.com/upb/lovely-prompts/services"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ErrRouterClosed is returned by Acquire after Close
var ErrRouterClosed = errors.New("connection router closed")

// Handle is the single open database of one project
type Handle struct {
	Project      string
	DB           *sqlite.DB
	TxManager    repositories.TransactionManager
	Repositories *sqlite.Repositories
	Opened       time.Time
}

// RouterStats describes the open handles
type RouterStats struct {
	OpenHandles int      `json:"open_handles"`
	Projects    []string `json:"projects"`
}

// Router hands out the per-project handle, opening it on first use.
type Router struct {
	registry *Registry
	opts     sqlite.Options
	logger   *zap.Logger

	mu      sync.RWMutex
	handles map[string]*Handle
	closed  bool
	group   singleflight.Group
}

// NewRouter creates a router over the projects known to registry
func NewRouter(registry *Registry, opts sqlite.Options, logger *zap.Logger) *Router {
	return &Router{
		registry: registry,
		opts:     opts,
		logger:   logger,
		handles:  make(map[string]*Handle),
	}
}

// Acquire returns the handle for project, creating the project if needed.
// Concurrent first calls for the same project open exactly one database.
func (r *Router) Acquire(ctx context.Context, project string) (*Handle, error) {
	if h, ok := r.lookup(project); ok {
		return h, nil
	}

	// The shared open outlives any one caller; each caller only stops waiting
	// when its own context ends.
	openCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(project, func() (interface{}, error) {
		if h, ok := r.lookup(project); ok {
			return h, nil
		}
		return r.open(openCtx, project)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Handle), nil
	}
}

func (r *Router) lookup(project string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[project]
	return h, ok
}

func (r *Router) open(ctx context.Context, project string) (*Handle, error) {
	r.mu.RLock()
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return nil, ErrRouterClosed
	}

	loc, err := r.registry.Ensure(ctx, project)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.Open(ctx, loc.Path, r.opts, r.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open project %q: %w", project, err)
	}
	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate project %q: %w", project, err)
	}

	h := &Handle{
		Project:      project,
		DB:           db,
		TxManager:    sqlite.NewTransactionManager(db, r.logger),
		Repositories: sqlite.NewRepositories(db, r.logger),
		Opened:       time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		db.Close()
		return nil, ErrRouterClosed
	}
	r.handles[project] = h

	r.logger.Info("project handle opened", zap.String("project", project))
	return h, nil
}

// WithSession runs fn as one unit of work against project's database.
// The transaction commits when fn succeeds and rolls back on error or panic.
func (r *Router) WithSession(ctx context.Context, project string, fn func(ctx context.Context, repos *sqlite.Repositories) error) error {
	h, err := r.Acquire(ctx, project)
	if err != nil {
		return err
	}
	return services.WithTransaction(ctx, h.TxManager, func(ctx context.Context, _ repositories.Transaction) error {
		return fn(ctx, h.Repositories)
	})
}

// Evict closes and forgets project's handle. The next Acquire reopens
// (and if necessary recreates) the project.
func (r *Router) Evict(project string) error {
	r.mu.Lock()
	h, ok := r.handles[project]
	delete(r.handles, project)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	r.logger.Info("project handle evicted", zap.String("project", project))
	return h.DB.Close()
}

// Close closes every open handle. Later Acquire calls fail.
func (r *Router) Close() error {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]*Handle)
	r.closed = true
	r.mu.Unlock()

	var errs []error
	for project, h := range handles {
		if err := h.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", project, err))
		}
	}
	return errors.Join(errs...)
}

// Stats reports the currently open handles
func (r *Router) Stats() RouterStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	projects := make([]string, 0, len(r.handles))
	for p := range r.handles {
		projects = append(projects, p)
	}
	sort.Strings(projects)
	return RouterStats{OpenHandles: len(projects), Projects: projects}
}

package projects

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Evictor drops the cached handle of a project
type Evictor interface {
	Evict(project string) error
}

// Watcher evicts cached handles when a project file is removed or renamed
// outside the server, so deleting <name>.db deletes the project.
type Watcher struct {
	dir     string
	evictor Evictor
	watcher *fsnotify.Watcher
	logger  *zap.Logger
}

// NewWatcher starts watching dir. The directory is created if missing.
func NewWatcher(dir string, evictor Evictor, logger *zap.Logger) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create project directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	return &Watcher{
		dir:     dir,
		evictor: evictor,
		watcher: fw,
		logger:  logger,
	}, nil
}

// Run processes file events until ctx is cancelled or the watcher is closed
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching project directory", zap.String("dir", w.dir))
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("project watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	name, ok := projectName(filepath.Base(event.Name))
	if !ok {
		return
	}

	if err := w.evictor.Evict(name); err != nil {
		w.logger.Warn("failed to evict removed project",
			zap.String("project", name),
			zap.Error(err))
		return
	}
	w.logger.Info("project file removed",
		zap.String("project", name),
		zap.String("op", event.Op.String()))
}

// Close stops the underlying watcher
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

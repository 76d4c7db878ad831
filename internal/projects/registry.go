// Package projects owns the per-project SQLite files: which projects exist,
// creating them on first use, and the single open handle per project.
package projects

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/upb/lovely-prompts/repositories/sqlite"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// FileExt is the suffix of every project file
const FileExt = ".db"

var nameRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ErrInvalidName is returned for project names that cannot be used as a file name
var ErrInvalidName = errors.New("invalid project name")

// ValidateName checks that name is usable as a project file name
func ValidateName(name string) error {
	if !nameRegex.MatchString(name) || strings.HasSuffix(name, FileExt) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Location is where a project's storage lives
type Location struct {
	Project string
	Path    string
}

// Registry is authoritative on which projects exist
type Registry struct {
	dir         string
	busyTimeout time.Duration
	logger      *zap.Logger
	group       singleflight.Group
}

// NewRegistry creates a registry for project files kept in dir
func NewRegistry(dir string, busyTimeout time.Duration, logger *zap.Logger) *Registry {
	return &Registry{
		dir:         dir,
		busyTimeout: busyTimeout,
		logger:      logger,
	}
}

// Dir returns the directory holding the project files
func (r *Registry) Dir() string {
	return r.dir
}

// Path returns the file a project is stored in
func (r *Registry) Path(name string) string {
	return filepath.Join(r.dir, name+FileExt)
}

// Exists reports whether storage for name is present
func (r *Registry) Exists(name string) bool {
	if ValidateName(name) != nil {
		return false
	}
	info, err := os.Stat(r.Path(name))
	return err == nil && info.Mode().IsRegular()
}

// Ensure creates the project's storage if it is absent and returns its location.
// Concurrent calls for the same name share one initialisation.
func (r *Registry) Ensure(ctx context.Context, name string) (Location, error) {
	if err := ValidateName(name); err != nil {
		return Location{}, err
	}
	loc := Location{Project: name, Path: r.Path(name)}
	if r.Exists(name) {
		return loc, nil
	}

	createCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(name, func() (interface{}, error) {
		if r.Exists(name) {
			return nil, nil
		}
		return nil, r.create(createCtx, loc)
	})

	select {
	case <-ctx.Done():
		return Location{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Location{}, res.Err
		}
		if res.Shared {
			r.logger.Debug("joined concurrent project creation", zap.String("project", name))
		}
		return loc, nil
	}
}

// create builds the schema in a temporary file and links it into place, so the
// project file either exists fully initialised or not at all.
func (r *Registry) create(ctx context.Context, loc Location) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	tmp := filepath.Join(r.dir, fmt.Sprintf(".%s.%s.tmp", loc.Project, uuid.NewString()))
	defer removeFileSet(tmp)

	if err := sqlite.InitFile(ctx, tmp, r.busyTimeout, r.logger); err != nil {
		return fmt.Errorf("failed to initialize project %q: %w", loc.Project, err)
	}

	// Link refuses to replace an existing file, so another process that won the
	// race keeps its file and this one is discarded.
	if err := os.Link(tmp, loc.Path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil
		}
		return fmt.Errorf("failed to publish project %q: %w", loc.Project, err)
	}

	r.logger.Info("project created",
		zap.String("project", loc.Project),
		zap.String("path", loc.Path))
	return nil
}

// List returns the names of all existing projects, sorted.
// The project directory is created if missing.
func (r *Registry) List() ([]string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create project directory: %w", err)
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read project directory: %w", err)
	}

	names := []string{}
	for _, e := range entries {
		if name, ok := projectName(e.Name()); ok && e.Type().IsRegular() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// projectName maps a file name in the project directory to a project name.
// Temporary files and SQLite side files are skipped.
func projectName(file string) (string, bool) {
	if strings.HasPrefix(file, ".") || !strings.HasSuffix(file, FileExt) {
		return "", false
	}
	name := strings.TrimSuffix(file, FileExt)
	if ValidateName(name) != nil {
		return "", false
	}
	return name, true
}

func removeFileSet(path string) {
	for _, p := range []string{path, path + "-journal", path + "-wal", path + "-shm"} {
		_ = os.Remove(p)
	}
}

// Package records implements list/get/create/update/delete for every stored
// record kind and publishes a change event after each committed write.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/upb/lovely-prompts/internal/events"
	"github.com/upb/lovely-prompts/internal/projects"
	"github.com/upb/lovely-prompts/models"
	"github.com/upb/lovely-prompts/repositories"
	"github.com/upb/lovely-prompts/repositories/sqlite"
	"github.com/upb/lovely-prompts/services"
	"github.com/upb/lovely-prompts/utils"
	"go.uber.org/zap"
)

// Store runs a unit of work against one project's database
type Store interface {
	WithSession(ctx context.Context, project string, fn func(ctx context.Context, repos *sqlite.Repositories) error) error
}

// Projects reports whether a project exists
type Projects interface {
	Exists(name string) bool
}

// Publisher receives change events
type Publisher interface {
	Publish(project string, event events.Event)
}

// PatchFormat selects how a PATCH body is interpreted
type PatchFormat int

const (
	// MergePatch is RFC 7396 (application/merge-patch+json, application/json)
	MergePatch PatchFormat = iota
	// JSONPatch is RFC 6902 (application/json-patch+json)
	JSONPatch
)

// Descriptor binds the generic service to one record kind
type Descriptor[R models.Record] struct {
	Kind     models.Kind
	IDPrefix string
	New      func() R
	Repo     func(*sqlite.Repositories) repositories.RecordRepository[R]
	Events   events.KindSet
	NotFound *services.DomainError

	// CheckParent verifies the owning prompt exists; nil for prompts.
	CheckParent func(ctx context.Context, repos *sqlite.Repositories, id string) error
}

// Service manages the records of one kind across all projects
type Service[R models.Record] struct {
	desc     Descriptor[R]
	store    Store
	projects Projects
	bus      Publisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a new record service
func NewService[R models.Record](desc Descriptor[R], store Store, projects Projects, bus Publisher, logger *zap.Logger) *Service[R] {
	return &Service[R]{
		desc:     desc,
		store:    store,
		projects: projects,
		bus:      bus,
		logger:   logger.With(zap.String("kind", string(desc.Kind))),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Kind returns the record kind served
func (s *Service[R]) Kind() models.Kind {
	return s.desc.Kind
}

// Events returns the event tags of the record kind
func (s *Service[R]) Events() events.KindSet {
	return s.desc.Events
}

// NewRecord returns an empty record to decode a request body into
func (s *Service[R]) NewRecord() R {
	return s.desc.New()
}

// List returns one page of records, newest first
func (s *Service[R]) List(ctx context.Context, project string, skip, limit int) ([]R, error) {
	if err := s.requireProject(project); err != nil {
		return nil, err
	}

	var out []R
	err := s.store.WithSession(ctx, project, func(ctx context.Context, repos *sqlite.Repositories) error {
		var err error
		out, err = s.desc.Repo(repos).List(ctx, skip, limit)
		return err
	})
	if err != nil {
		return nil, s.wrap(err, "")
	}
	return out, nil
}

// Get returns one record
func (s *Service[R]) Get(ctx context.Context, project, id string) (R, error) {
	var zero R
	if err := s.requireProject(project); err != nil {
		return zero, err
	}

	var out R
	err := s.store.WithSession(ctx, project, func(ctx context.Context, repos *sqlite.Repositories) error {
		var err error
		out, err = s.desc.Repo(repos).GetByID(ctx, id)
		return err
	})
	if err != nil {
		return zero, s.wrap(err, id)
	}
	return out, nil
}

// Create stores rec under a fresh id, creating the project if needed
func (s *Service[R]) Create(ctx context.Context, project string, rec R) (R, error) {
	var zero R
	if err := utils.ValidateStruct(rec); err != nil {
		return zero, validationError(err)
	}

	now := s.now()
	meta := rec.Entry()
	meta.ID = models.NewID(s.desc.IDPrefix)
	meta.Created = now
	meta.Touch(now)

	err := s.store.WithSession(ctx, project, func(ctx context.Context, repos *sqlite.Repositories) error {
		if err := s.checkParent(ctx, repos, rec.ParentID()); err != nil {
			return err
		}
		return s.desc.Repo(repos).Create(ctx, rec)
	})
	if err != nil {
		return zero, s.wrap(err, "")
	}

	s.logger.Info("record created",
		zap.String("project", project),
		zap.String("id", meta.ID))
	s.publish(project, s.desc.Events.Created, rec)
	return rec, nil
}

// Replace overwrites every writable field of record id with rec
func (s *Service[R]) Replace(ctx context.Context, project, id string, rec R) (R, error) {
	var zero R
	if err := s.requireProject(project); err != nil {
		return zero, err
	}
	if err := utils.ValidateStruct(rec); err != nil {
		return zero, validationError(err)
	}

	err := s.store.WithSession(ctx, project, func(ctx context.Context, repos *sqlite.Repositories) error {
		repo := s.desc.Repo(repos)
		existing, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		s.keepServerFields(rec, existing)
		if rec.ParentID() != existing.ParentID() {
			if err := s.checkParent(ctx, repos, rec.ParentID()); err != nil {
				return err
			}
		}
		return repo.Update(ctx, rec)
	})
	if err != nil {
		return zero, s.wrap(err, id)
	}

	s.publish(project, s.desc.Events.Updated, rec)
	return rec, nil
}

// Patch applies a merge patch or JSON patch document to record id
func (s *Service[R]) Patch(ctx context.Context, project, id string, doc []byte, format PatchFormat) (R, error) {
	var zero R
	if err := s.requireProject(project); err != nil {
		return zero, err
	}

	var out R
	err := s.store.WithSession(ctx, project, func(ctx context.Context, repos *sqlite.Repositories) error {
		repo := s.desc.Repo(repos)
		existing, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		next, err := s.applyDocument(existing, doc, format)
		if err != nil {
			return err
		}
		if err := utils.ValidateStruct(next); err != nil {
			return validationError(err)
		}
		s.keepServerFields(next, existing)
		if next.ParentID() != existing.ParentID() {
			if err := s.checkParent(ctx, repos, next.ParentID()); err != nil {
				return err
			}
		}
		if err := repo.Update(ctx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return zero, s.wrap(err, id)
	}

	s.publish(project, s.desc.Events.Updated, out)
	return out, nil
}

func (s *Service[R]) applyDocument(existing R, doc []byte, format PatchFormat) (R, error) {
	var zero R
	current, err := json.Marshal(existing)
	if err != nil {
		return zero, fmt.Errorf("failed to encode record: %w", err)
	}

	var patched []byte
	switch format {
	case JSONPatch:
		ops, err := jsonpatch.DecodePatch(doc)
		if err != nil {
			return zero, services.Derive(services.ErrInvalidPatch, err)
		}
		patched, err = ops.Apply(current)
		if err != nil {
			return zero, services.Derive(services.ErrInvalidPatch, err)
		}
	default:
		patched, err = jsonpatch.MergePatch(current, doc)
		if err != nil {
			return zero, services.Derive(services.ErrInvalidPatch, err)
		}
	}

	next := s.desc.New()
	if err := json.Unmarshal(patched, next); err != nil {
		return zero, services.Derive(services.ErrInvalidPatch, err)
	}
	return next, nil
}

// Delete removes record id
func (s *Service[R]) Delete(ctx context.Context, project, id string) error {
	if err := s.requireProject(project); err != nil {
		return err
	}

	var parent string
	err := s.store.WithSession(ctx, project, func(ctx context.Context, repos *sqlite.Repositories) error {
		repo := s.desc.Repo(repos)
		existing, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		parent = existing.ParentID()
		return repo.Delete(ctx, id)
	})
	if err != nil {
		return s.wrap(err, id)
	}

	s.logger.Info("record deleted",
		zap.String("project", project),
		zap.String("id", id))
	s.publish(project, s.desc.Events.Deleted, events.Deleted{ID: id, PromptID: parent})
	return nil
}

// Checkpoint persists rec without publishing an event
func (s *Service[R]) Checkpoint(ctx context.Context, project string, rec R) error {
	rec.Entry().Touch(s.now())
	err := s.store.WithSession(ctx, project, func(ctx context.Context, repos *sqlite.Repositories) error {
		return s.desc.Repo(repos).Update(ctx, rec)
	})
	if err != nil {
		return s.wrap(err, rec.Entry().ID)
	}
	return nil
}

// Save persists rec and publishes the update
func (s *Service[R]) Save(ctx context.Context, project string, rec R) error {
	if err := s.Checkpoint(ctx, project, rec); err != nil {
		return err
	}
	s.publish(project, s.desc.Events.Updated, rec)
	return nil
}

// PublishStreamed fans out one streamed edit of a record
func (s *Service[R]) PublishStreamed(project string, payload interface{}) {
	s.publish(project, s.desc.Events.Streamed, payload)
}

func (s *Service[R]) publish(project string, kind events.Kind, payload interface{}) {
	if kind == "" {
		return
	}
	event, err := events.New(kind, payload)
	if err != nil {
		s.logger.Error("failed to encode event", zap.String("event", string(kind)), zap.Error(err))
		return
	}
	s.bus.Publish(project, event)
}

func (s *Service[R]) requireProject(project string) error {
	if !s.projects.Exists(project) {
		return services.Derive(services.ErrProjectNotFound, nil).WithDetail("project", project)
	}
	return nil
}

func (s *Service[R]) checkParent(ctx context.Context, repos *sqlite.Repositories, id string) error {
	if s.desc.CheckParent == nil {
		return nil
	}
	return s.desc.CheckParent(ctx, repos, id)
}

// keepServerFields copies identity and bookkeeping columns from existing to rec
func (s *Service[R]) keepServerFields(rec, existing R) {
	dst, src := rec.Entry(), existing.Entry()
	dst.ID = src.ID
	dst.Created = src.Created
	dst.Touch(s.now())
}

// wrap maps storage errors onto domain errors
func (s *Service[R]) wrap(err error, id string) error {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	if errors.Is(err, projects.ErrInvalidName) {
		return services.Derive(services.ErrInvalidProjectName, err)
	}
	if errors.Is(err, repositories.ErrNotFound) {
		e := services.Derive(s.desc.NotFound, err)
		if id != "" {
			e.WithDetail("id", id)
		}
		return e
	}
	return services.WrapInternal(fmt.Sprintf("%s storage failed", s.desc.Kind), err)
}

func validationError(err error) error {
	e := services.Derive(services.ErrInvalidInput, err)
	for field, msg := range utils.GetValidationFields(err) {
		e.WithDetail(field, msg)
	}
	return e
}

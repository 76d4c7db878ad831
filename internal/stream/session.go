// Package stream drives a streaming-patch session: one inbound connection
// that incrementally edits a single response record while every edit is
// fanned out to live subscribers.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/upb/lovely-prompts/internal/patch"
	"github.com/upb/lovely-prompts/models"
	"go.uber.org/zap"
)

// Source yields raw inbound messages. Next returns io.EOF when the peer
// ends the stream normally.
type Source interface {
	Next(ctx context.Context) ([]byte, error)
}

// Target loads, persists and announces the streamed record
type Target[R models.Record] interface {
	Get(ctx context.Context, project, id string) (R, error)
	Checkpoint(ctx context.Context, project string, rec R) error
	Save(ctx context.Context, project string, rec R) error
	PublishStreamed(project string, payload interface{})
}

// ErrTransport wraps a connection failure that ended the stream early
var ErrTransport = errors.New("stream transport failed")

// Config holds configuration for sessions
type Config struct {
	// CheckpointEvery persists the projection after every N applied messages.
	// Zero persists only when the stream ends normally.
	CheckpointEvery int
}

// Session owns one streaming connection for one record
type Session[R models.Record] struct {
	project string
	record  R
	target  Target[R]
	applier *patch.Applier[R]
	config  Config
	logger  *zap.Logger
}

// Open loads the target record. A missing record fails the session before
// any message is read.
func Open[R models.Record](ctx context.Context, target Target[R], fields models.FieldTable[R], project, id string, config Config, logger *zap.Logger) (*Session[R], error) {
	rec, err := target.Get(ctx, project, id)
	if err != nil {
		return nil, err
	}

	s := &Session[R]{
		project: project,
		record:  rec,
		target:  target,
		config:  config,
		logger: logger.With(
			zap.String("project", project),
			zap.String("id", id)),
	}
	s.applier = patch.NewApplier(rec, fields, func(msg patch.Message) {
		target.PublishStreamed(project, msg)
	})
	return s, nil
}

// Record returns the in-memory projection
func (s *Session[R]) Record() R {
	return s.record
}

// Applied returns how many messages were applied
func (s *Session[R]) Applied() int {
	return s.applier.Applied()
}

// Run consumes src until it ends. On normal end the projection is saved in
// one write and the update is published. A protocol error or transport
// failure ends the session without persisting.
func (s *Session[R]) Run(ctx context.Context, src Source) error {
	defer s.applier.Close()

	meta := s.record.Entry()
	for {
		data, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return s.finish(ctx)
		}
		if err != nil {
			s.logger.Debug("stream dropped", zap.Int("applied", s.applier.Applied()), zap.Error(err))
			return fmt.Errorf("%w: %v", ErrTransport, err)
		}

		msg, err := patch.Decode(data)
		if err != nil {
			return s.reject(err)
		}
		// The session is authoritative for the record identity.
		msg.ID = meta.ID
		msg.PromptID = s.record.ParentID()

		if err := s.applier.Apply(msg); err != nil {
			return s.reject(err)
		}

		if n := s.config.CheckpointEvery; n > 0 && s.applier.Applied()%n == 0 {
			if err := s.target.Checkpoint(ctx, s.project, s.record); err != nil {
				return fmt.Errorf("failed to checkpoint streamed record: %w", err)
			}
		}
	}
}

func (s *Session[R]) reject(err error) error {
	s.logger.Info("stream rejected", zap.Int("applied", s.applier.Applied()), zap.Error(err))
	return err
}

func (s *Session[R]) finish(ctx context.Context) error {
	// A completed stream is saved even if the caller is already shutting down.
	ctx = context.WithoutCancel(ctx)
	if err := s.target.Save(ctx, s.project, s.record); err != nil {
		return fmt.Errorf("failed to save streamed record: %w", err)
	}
	s.logger.Info("stream completed", zap.Int("applied", s.applier.Applied()))
	return nil
}

package records

import (
	"context"
	"errors"

	"github.com/upb/lovely-prompts/internal/events"
	"github.com/upb/lovely-prompts/models"
	"github.com/upb/lovely-prompts/repositories"
	"github.com/upb/lovely-prompts/repositories/sqlite"
	"github.com/upb/lovely-prompts/services"
)

// ChatPromptDescriptor describes chat prompts
var ChatPromptDescriptor = Descriptor[*models.ChatPrompt]{
	Kind:     models.KindChatPrompt,
	IDPrefix: models.ChatPromptIDPrefix,
	New:      func() *models.ChatPrompt { return &models.ChatPrompt{} },
	Repo: func(r *sqlite.Repositories) repositories.RecordRepository[*models.ChatPrompt] {
		return r.ChatPrompts
	},
	Events:   events.ChatPromptKinds,
	NotFound: services.ErrChatPromptNotFound,
}

// ChatResponseDescriptor describes chat responses
var ChatResponseDescriptor = Descriptor[*models.ChatResponse]{
	Kind:     models.KindChatResponse,
	IDPrefix: models.ChatResponseIDPrefix,
	New:      func() *models.ChatResponse { return &models.ChatResponse{} },
	Repo: func(r *sqlite.Repositories) repositories.RecordRepository[*models.ChatResponse] {
		return r.ChatResponses
	},
	Events:   events.ChatResponseKinds,
	NotFound: services.ErrChatResponseNotFound,
	CheckParent: func(ctx context.Context, repos *sqlite.Repositories, id string) error {
		_, err := repos.ChatPrompts.GetByID(ctx, id)
		return parentError(err, services.ErrChatPromptNotFound, id)
	},
}

// CompletionPromptDescriptor describes completion prompts
var CompletionPromptDescriptor = Descriptor[*models.CompletionPrompt]{
	Kind:     models.KindCompletionPrompt,
	IDPrefix: models.CompletionPromptIDPrefix,
	New:      func() *models.CompletionPrompt { return &models.CompletionPrompt{} },
	Repo: func(r *sqlite.Repositories) repositories.RecordRepository[*models.CompletionPrompt] {
		return r.CompletionPrompts
	},
	Events:   events.CompletionPromptKinds,
	NotFound: services.ErrCompletionPromptNotFound,
}

// CompletionResponseDescriptor describes completion responses
var CompletionResponseDescriptor = Descriptor[*models.CompletionResponse]{
	Kind:     models.KindCompletionResponse,
	IDPrefix: models.CompletionResponseIDPrefix,
	New:      func() *models.CompletionResponse { return &models.CompletionResponse{} },
	Repo: func(r *sqlite.Repositories) repositories.RecordRepository[*models.CompletionResponse] {
		return r.CompletionResponses
	},
	Events:   events.CompletionResponseKinds,
	NotFound: services.ErrCompletionResponseNotFound,
	CheckParent: func(ctx context.Context, repos *sqlite.Repositories, id string) error {
		_, err := repos.CompletionPrompts.GetByID(ctx, id)
		return parentError(err, services.ErrCompletionPromptNotFound, id)
	},
}

func parentError(err error, sentinel *services.DomainError, id string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repositories.ErrNotFound) {
		return services.Derive(sentinel, err).WithDetail("prompt_id", id)
	}
	return err
}

package sqlite

import (
	"github.com/upb/lovely-prompts/models"
	"github.com/upb/lovely-prompts/repositories"
	"go.uber.org/zap"
)

// Repositories groups the record repositories of one project database
type Repositories struct {
	ChatPrompts         repositories.RecordRepository[*models.ChatPrompt]
	ChatResponses       repositories.RecordRepository[*models.ChatResponse]
	CompletionPrompts   repositories.RecordRepository[*models.CompletionPrompt]
	CompletionResponses repositories.RecordRepository[*models.CompletionResponse]
}

// NewRepositories creates all repository instances for db
func NewRepositories(db *DB, logger *zap.Logger) *Repositories {
	return &Repositories{
		ChatPrompts:         NewChatPromptRepository(db, logger),
		ChatResponses:       NewChatResponseRepository(db, logger),
		CompletionPrompts:   NewCompletionPromptRepository(db, logger),
		CompletionResponses: NewCompletionResponseRepository(db, logger),
	}
}

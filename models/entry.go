package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind identifies a record type stored in a project.
type Kind string

const (
	KindChatPrompt         Kind = "chat_prompt"
	KindChatResponse       Kind = "chat_response"
	KindCompletionPrompt   Kind = "completion_prompt"
	KindCompletionResponse Kind = "completion_response"
)

// ID prefixes per record kind
const (
	ChatPromptIDPrefix         = "chp"
	ChatResponseIDPrefix       = "chr"
	CompletionPromptIDPrefix   = "cop"
	CompletionResponseIDPrefix = "cor"
)

// EntryMeta holds the fields common to every stored record.
type EntryMeta struct {
	ID      string    `json:"id" db:"id"`
	Title   *string   `json:"title,omitempty" db:"title"`
	Comment *string   `json:"comment,omitempty" db:"comment"`
	Synced  bool      `json:"synced" db:"synced"`
	Created time.Time `json:"created" db:"created"`
	Updated time.Time `json:"updated" db:"updated"`
}

// Entry returns the entry header. Promoted to every record that embeds EntryMeta.
func (m *EntryMeta) Entry() *EntryMeta {
	return m
}

// Touch marks the entry as modified locally.
func (m *EntryMeta) Touch(now time.Time) {
	m.Updated = now
	m.Synced = false
}

// Record is implemented by pointers to every stored record type.
type Record interface {
	Entry() *EntryMeta
	// ParentID returns the owning prompt id, or "" for prompts.
	ParentID() string
}

// ResponseMeta holds the fields shared by chat and completion responses.
type ResponseMeta struct {
	Content     *string  `json:"content,omitempty" db:"content"`
	StopReason  *string  `json:"stop_reason,omitempty" db:"stop_reason"`
	TokIn       *int64   `json:"tok_in,omitempty" db:"tok_in"`
	TokOut      *int64   `json:"tok_out,omitempty" db:"tok_out"`
	TokMax      *int64   `json:"tok_max,omitempty" db:"tok_max"`
	Model       *string  `json:"model,omitempty" db:"model"`
	Temperature *float64 `json:"temperature,omitempty" db:"temperature"`
	Provider    *string  `json:"provider,omitempty" db:"provider"`
	Meta        JSON     `json:"meta,omitempty" db:"meta"`
}

// NewID returns a new record identifier such as "chr_4f0c...".
func NewID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func newEntryMeta(prefix string) EntryMeta {
	now := time.Now().UTC()
	return EntryMeta{
		ID:      NewID(prefix),
		Created: now,
		Updated: now,
	}
}

// String returns a pointer to s.
func String(s string) *string {
	return &s
}

// Int returns a pointer to n.
func Int(n int64) *int64 {
	return &n
}

// Float returns a pointer to f.
func Float(f float64) *float64 {
	return &f
}

// Package events fans out record changes to live subscribers of a project.
package events

import (
	"encoding/json"
	"fmt"
)

// Kind tags an event with the entity and action it describes
type Kind string

const (
	ChatPromptCreated Kind = "new_chp"
	ChatPromptUpdated Kind = "up_chp"
	ChatPromptDeleted Kind = "del_chp"

	ChatResponseCreated  Kind = "new_chr"
	ChatResponseUpdated  Kind = "up_chr"
	ChatResponseDeleted  Kind = "del_chr"
	ChatResponseStreamed Kind = "stream_chr"

	CompletionPromptCreated Kind = "new_cop"
	CompletionPromptUpdated Kind = "up_cop"
	CompletionPromptDeleted Kind = "del_cop"

	CompletionResponseCreated  Kind = "new_cor"
	CompletionResponseUpdated  Kind = "up_cor"
	CompletionResponseDeleted  Kind = "del_cor"
	CompletionResponseStreamed Kind = "stream_cor"
)

// Event is an immutable notification. Data is the serialized payload:
// a full record, a deletion stub, or a single patch message.
type Event struct {
	Kind Kind   `json:"event"`
	Data string `json:"data"`
}

// New serializes payload into an Event of the given kind
func New(kind Kind, payload interface{}) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("failed to encode %s event: %w", kind, err)
	}
	return Event{Kind: kind, Data: string(data)}, nil
}

// Deleted is the payload of a deletion event
type Deleted struct {
	ID       string `json:"id"`
	PromptID string `json:"prompt_id,omitempty"`
}

// KindSet groups the event kinds of one record kind
type KindSet struct {
	Created  Kind
	Updated  Kind
	Deleted  Kind
	Streamed Kind
}

var (
	ChatPromptKinds         = KindSet{Created: ChatPromptCreated, Updated: ChatPromptUpdated, Deleted: ChatPromptDeleted}
	ChatResponseKinds       = KindSet{Created: ChatResponseCreated, Updated: ChatResponseUpdated, Deleted: ChatResponseDeleted, Streamed: ChatResponseStreamed}
	CompletionPromptKinds   = KindSet{Created: CompletionPromptCreated, Updated: CompletionPromptUpdated, Deleted: CompletionPromptDeleted}
	CompletionResponseKinds = KindSet{Created: CompletionResponseCreated, Updated: CompletionResponseUpdated, Deleted: CompletionResponseDeleted, Streamed: CompletionResponseStreamed}
)

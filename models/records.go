package models

// ChatPrompt is a chat-style prompt; Prompt is usually a list of messages.
type ChatPrompt struct {
	EntryMeta
	Prompt JSON `json:"prompt,omitempty" db:"prompt"`
}

// ParentID implements Record
func (p *ChatPrompt) ParentID() string { return "" }

// NewChatPrompt creates a ChatPrompt with a fresh id and timestamps
func NewChatPrompt() *ChatPrompt {
	return &ChatPrompt{EntryMeta: newEntryMeta(ChatPromptIDPrefix)}
}

// ChatResponse is one model response to a ChatPrompt.
type ChatResponse struct {
	EntryMeta
	ResponseMeta
	PromptID string  `json:"prompt_id" db:"prompt_id" validate:"required"`
	Role     *string `json:"role,omitempty" db:"role"`
}

// ParentID implements Record
func (r *ChatResponse) ParentID() string { return r.PromptID }

// NewChatResponse creates a ChatResponse for the given prompt
func NewChatResponse(promptID string) *ChatResponse {
	return &ChatResponse{
		EntryMeta: newEntryMeta(ChatResponseIDPrefix),
		PromptID:  promptID,
	}
}

// CompletionPrompt is a plain-text completion prompt.
type CompletionPrompt struct {
	EntryMeta
	Prompt *string `json:"prompt,omitempty" db:"prompt"`
}

// ParentID implements Record
func (p *CompletionPrompt) ParentID() string { return "" }

// NewCompletionPrompt creates a CompletionPrompt with a fresh id and timestamps
func NewCompletionPrompt() *CompletionPrompt {
	return &CompletionPrompt{EntryMeta: newEntryMeta(CompletionPromptIDPrefix)}
}

// CompletionResponse is one model response to a CompletionPrompt.
type CompletionResponse struct {
	EntryMeta
	ResponseMeta
	PromptID string `json:"prompt_id" db:"prompt_id" validate:"required"`
}

// ParentID implements Record
func (r *CompletionResponse) ParentID() string { return r.PromptID }

// NewCompletionResponse creates a CompletionResponse for the given prompt
func NewCompletionResponse(promptID string) *CompletionResponse {
	return &CompletionResponse{
		EntryMeta: newEntryMeta(CompletionResponseIDPrefix),
		PromptID:  promptID,
	}
}

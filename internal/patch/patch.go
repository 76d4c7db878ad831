// Package patch applies streamed field-level edits to a single record.
//
// An Applier holds the in-memory projection of one record while a streaming
// session is open. Each message names a field from the record kind's closed
// field table and one of three actions. The first invalid message closes the
// applier and leaves the projection as it was before that message.
package patch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/upb/lovely-prompts/models"
	"github.com/upb/lovely-prompts/utils"
)

// Action is the kind of edit a message performs
type Action string

const (
	Replace Action = "replace"
	Append  Action = "append"
	Delete  Action = "delete"
)

// Message is one streamed edit. ID and PromptID are stamped by the server.
type Message struct {
	ID       string          `json:"id"`
	PromptID string          `json:"prompt_id"`
	Action   Action          `json:"action" validate:"required,oneof=replace append delete"`
	Key      string          `json:"key" validate:"required"`
	Value    json.RawMessage `json:"value"`
}

// ProtocolError aborts a streaming session
type ProtocolError struct {
	Key    string
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Key == "" {
		return "protocol error: " + e.Reason
	}
	return fmt.Sprintf("protocol error: key %q: %s", e.Key, e.Reason)
}

// IsProtocolError reports whether err is, or wraps, a ProtocolError
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// ErrClosed is returned by Apply once the applier has closed
var ErrClosed = errors.New("patch session closed")

// Decode parses and validates one inbound message
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, &ProtocolError{Reason: "malformed message: " + err.Error()}
	}
	if err := utils.ValidateStruct(msg); err != nil {
		reason := err.Error()
		for _, v := range utils.GetValidationFields(err) {
			reason = v
			break
		}
		return Message{}, &ProtocolError{Key: msg.Key, Reason: reason}
	}
	return msg, nil
}

// State of an Applier
type State int

const (
	Open State = iota
	Closed
)

func (s State) String() string {
	if s == Open {
		return "open"
	}
	return "closed"
}

// Applier is the streaming state machine for one record.
// It is not safe for concurrent use; a session owns exactly one.
type Applier[R any] struct {
	record  R
	fields  models.FieldTable[R]
	emit    func(Message)
	state   State
	applied int
	err     error
}

// NewApplier starts an open session over record. emit is called with every
// successfully applied message before Apply returns; it may be nil.
func NewApplier[R any](record R, fields models.FieldTable[R], emit func(Message)) *Applier[R] {
	return &Applier[R]{
		record: record,
		fields: fields,
		emit:   emit,
	}
}

// Apply validates msg against the field table and applies it.
// A rejected message closes the applier with a *ProtocolError.
func (a *Applier[R]) Apply(msg Message) error {
	if a.state == Closed {
		return ErrClosed
	}

	field, ok := a.fields.Lookup(msg.Key)
	if !ok {
		return a.fail(&ProtocolError{Key: msg.Key, Reason: "unknown field"})
	}

	next, err := evaluate(field.Type, field.Get(a.record), msg)
	if err != nil {
		return a.fail(err)
	}

	field.Set(a.record, next)
	a.applied++
	if a.emit != nil {
		a.emit(msg)
	}
	return nil
}

func (a *Applier[R]) fail(err error) error {
	a.state = Closed
	a.err = err
	return err
}

// Close ends the session normally. Closing twice is a no-op.
func (a *Applier[R]) Close() {
	a.state = Closed
}

// State returns the current state
func (a *Applier[R]) State() State {
	return a.state
}

// Err returns the error that closed the applier, if any
func (a *Applier[R]) Err() error {
	return a.err
}

// Applied returns how many messages were applied
func (a *Applier[R]) Applied() int {
	return a.applied
}

// Record returns the projection
func (a *Applier[R]) Record() R {
	return a.record
}

// Fold applies msgs to record left to right and stops at the first error
func Fold[R any](record R, fields models.FieldTable[R], msgs []Message) (R, error) {
	a := NewApplier(record, fields, nil)
	for _, msg := range msgs {
		if err := a.Apply(msg); err != nil {
			return a.Record(), err
		}
	}
	return a.Record(), nil
}

// evaluate computes the field's new value without touching the record
func evaluate(typ models.FieldType, current interface{}, msg Message) (interface{}, error) {
	switch msg.Action {
	case Replace:
		return coerce(typ, msg)
	case Append:
		if typ != models.FieldString {
			return nil, &ProtocolError{Key: msg.Key, Reason: fmt.Sprintf("append is not defined for %s fields", typ)}
		}
		var suffix string
		if err := json.Unmarshal(msg.Value, &suffix); err != nil {
			return nil, &ProtocolError{Key: msg.Key, Reason: "append value must be a string"}
		}
		prefix, _ := current.(string)
		return prefix + suffix, nil
	case Delete:
		return nil, nil
	default:
		return nil, &ProtocolError{Key: msg.Key, Reason: fmt.Sprintf("unknown action %q", msg.Action)}
	}
}

// coerce converts a replace value to the field's representation. null clears the field.
func coerce(typ models.FieldType, msg Message) (interface{}, error) {
	raw := bytes.TrimSpace(msg.Value)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	mismatch := func() error {
		return &ProtocolError{Key: msg.Key, Reason: fmt.Sprintf("value %s is not a valid %s", raw, typ)}
	}

	switch typ {
	case models.FieldString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, mismatch()
		}
		return s, nil
	case models.FieldInt:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, mismatch()
		}
		i, err := n.Int64()
		if err != nil {
			return nil, mismatch()
		}
		return i, nil
	case models.FieldFloat:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, mismatch()
		}
		f, err := n.Float64()
		if err != nil {
			return nil, mismatch()
		}
		return f, nil
	case models.FieldJSON:
		if !json.Valid(raw) {
			return nil, mismatch()
		}
		return models.JSON(append([]byte(nil), raw...)), nil
	default:
		return nil, mismatch()
	}
}

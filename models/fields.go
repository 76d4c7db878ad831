package models

import "sort"

// FieldType is the storage type of a patchable field.
type FieldType int

const (
	FieldString FieldType = iota
	FieldInt
	FieldFloat
	FieldJSON
)

func (t FieldType) String() string {
	switch t {
	case FieldString:
		return "string"
	case FieldInt:
		return "integer"
	case FieldFloat:
		return "float"
	case FieldJSON:
		return "json"
	default:
		return "unknown"
	}
}

// Field gives typed access to one patchable field of R.
// Get returns nil for an absent field, otherwise a string, int64, float64 or JSON.
// Set accepts the same representation; nil clears the field.
type Field[R any] struct {
	Type FieldType
	Get  func(R) interface{}
	Set  func(R, interface{})
}

// FieldTable is the closed set of fields a streaming session may patch.
type FieldTable[R any] map[string]Field[R]

// Lookup returns the field registered under key.
func (t FieldTable[R]) Lookup(key string) (Field[R], bool) {
	f, ok := t[key]
	return f, ok
}

// Keys returns the patchable keys in sorted order.
func (t FieldTable[R]) Keys() []string {
	keys := make([]string, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ChatResponseFields lists the patchable fields of a ChatResponse.
// Identity and bookkeeping columns (id, prompt_id, synced, created, updated) are server-owned.
var ChatResponseFields = func() FieldTable[*ChatResponse] {
	t := responseFields(
		func(r *ChatResponse) *EntryMeta { return &r.EntryMeta },
		func(r *ChatResponse) *ResponseMeta { return &r.ResponseMeta },
	)
	t["role"] = stringField(func(r *ChatResponse) **string { return &r.Role })
	return t
}()

// CompletionResponseFields lists the patchable fields of a CompletionResponse.
var CompletionResponseFields = responseFields(
	func(r *CompletionResponse) *EntryMeta { return &r.EntryMeta },
	func(r *CompletionResponse) *ResponseMeta { return &r.ResponseMeta },
)

func responseFields[R any](entry func(R) *EntryMeta, resp func(R) *ResponseMeta) FieldTable[R] {
	return FieldTable[R]{
		"title":       stringField(func(r R) **string { return &entry(r).Title }),
		"comment":     stringField(func(r R) **string { return &entry(r).Comment }),
		"content":     stringField(func(r R) **string { return &resp(r).Content }),
		"stop_reason": stringField(func(r R) **string { return &resp(r).StopReason }),
		"tok_in":      intField(func(r R) **int64 { return &resp(r).TokIn }),
		"tok_out":     intField(func(r R) **int64 { return &resp(r).TokOut }),
		"tok_max":     intField(func(r R) **int64 { return &resp(r).TokMax }),
		"model":       stringField(func(r R) **string { return &resp(r).Model }),
		"temperature": floatField(func(r R) **float64 { return &resp(r).Temperature }),
		"provider":    stringField(func(r R) **string { return &resp(r).Provider }),
		"meta":        jsonField(func(r R) *JSON { return &resp(r).Meta }),
	}
}

func stringField[R any](ptr func(R) **string) Field[R] {
	return Field[R]{
		Type: FieldString,
		Get: func(r R) interface{} {
			if p := *ptr(r); p != nil {
				return *p
			}
			return nil
		},
		Set: func(r R, v interface{}) {
			if v == nil {
				*ptr(r) = nil
				return
			}
			s := v.(string)
			*ptr(r) = &s
		},
	}
}

func intField[R any](ptr func(R) **int64) Field[R] {
	return Field[R]{
		Type: FieldInt,
		Get: func(r R) interface{} {
			if p := *ptr(r); p != nil {
				return *p
			}
			return nil
		},
		Set: func(r R, v interface{}) {
			if v == nil {
				*ptr(r) = nil
				return
			}
			n := v.(int64)
			*ptr(r) = &n
		},
	}
}

func floatField[R any](ptr func(R) **float64) Field[R] {
	return Field[R]{
		Type: FieldFloat,
		Get: func(r R) interface{} {
			if p := *ptr(r); p != nil {
				return *p
			}
			return nil
		},
		Set: func(r R, v interface{}) {
			if v == nil {
				*ptr(r) = nil
				return
			}
			f := v.(float64)
			*ptr(r) = &f
		},
	}
}

func jsonField[R any](ptr func(R) *JSON) Field[R] {
	return Field[R]{
		Type: FieldJSON,
		Get: func(r R) interface{} {
			if j := *ptr(r); len(j) > 0 {
				return j
			}
			return nil
		},
		Set: func(r R, v interface{}) {
			if v == nil {
				*ptr(r) = nil
				return
			}
			*ptr(r) = v.(JSON)
		},
	}
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/lovely-prompts/services"
	"github.com/upb/lovely-prompts/utils"
	"go.uber.org/zap"
)

func TestHandleServiceError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name            string
		err             error
		expectedStatus  int
		expectedError   string
		expectedMessage string
	}{
		{
			name:            "not found error",
			err:             services.ErrChatPromptNotFound,
			expectedStatus:  http.StatusNotFound,
			expectedError:   "not_found",
			expectedMessage: "chat prompt not found",
		},
		{
			name:            "project not found",
			err:             services.ErrProjectNotFound,
			expectedStatus:  http.StatusNotFound,
			expectedError:   "not_found",
			expectedMessage: "project not found",
		},
		{
			name:            "validation error",
			err:             services.ErrInvalidInput,
			expectedStatus:  http.StatusBadRequest,
			expectedError:   "bad_request",
			expectedMessage: "invalid input",
		},
		{
			name:            "protocol error",
			err:             services.ErrUnknownField,
			expectedStatus:  http.StatusBadRequest,
			expectedError:   "bad_request",
			expectedMessage: "unknown field",
		},
		{
			name:            "conflict error",
			err:             services.ErrDuplicateRecord,
			expectedStatus:  http.StatusConflict,
			expectedError:   "conflict",
			expectedMessage: "record already exists",
		},
		{
			name:            "unavailable error",
			err:             services.ErrShuttingDown,
			expectedStatus:  http.StatusServiceUnavailable,
			expectedError:   "unavailable",
			expectedMessage: "server is shutting down",
		},
		{
			name:            "internal error hides cause",
			err:             services.WrapInternal("sqlite exploded", errors.New("disk I/O error")),
			expectedStatus:  http.StatusInternalServerError,
			expectedError:   "internal_error",
			expectedMessage: "An internal error occurred",
		},
		{
			name:            "unknown error",
			err:             errors.New("boom"),
			expectedStatus:  http.StatusInternalServerError,
			expectedError:   "internal_error",
			expectedMessage: "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			HandleServiceError(w, tt.err, logger)

			assert.Equal(t, tt.expectedStatus, w.Code)

			var response utils.ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.expectedError, response.Error)
			assert.Equal(t, tt.expectedMessage, response.Message)
		})
	}
}

func TestHandleServiceError_Details(t *testing.T) {
	err := services.Derive(services.ErrChatResponseNotFound, nil).WithDetail("id", "chr_1")
	w := httptest.NewRecorder()

	HandleServiceError(w, err, zap.NewNop())

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t,
		`{"error":"not_found","message":"chat response not found","details":{"id":"chr_1"}}`,
		w.Body.String())
}

func TestHandleServiceError_Nil(t *testing.T) {
	w := httptest.NewRecorder()
	HandleServiceError(w, nil, zap.NewNop())

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestHandleValidationError(t *testing.T) {
	t.Run("field errors", func(t *testing.T) {
		w := httptest.NewRecorder()
		err := &utils.ValidationError{Message: "Validation failed", Fields: map[string]string{"prompt_id": "prompt_id is required"}}

		HandleValidationError(w, err, zap.NewNop())

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t,
			`{"error":"bad_request","message":"Validation failed","details":{"prompt_id":"prompt_id is required"}}`,
			w.Body.String())
	})

	t.Run("plain error", func(t *testing.T) {
		w := httptest.NewRecorder()

		HandleValidationError(w, errors.New("invalid JSON body"), zap.NewNop())

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid JSON body")
	})
}

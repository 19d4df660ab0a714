package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tlu-support/internal/models"
)

func TestWriteError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		err        error
		wantStatus int
		wantType   string
		wantMsg    string
	}{
		{fmt.Errorf("%w: conversation", models.ErrNotFound), http.StatusNotFound, "not_found_error", "not found: conversation"},
		{fmt.Errorf("%w: bad status", models.ErrValidation), http.StatusBadRequest, "validation_error", "validation error: bad status"},
		{models.ErrConflict, http.StatusConflict, "conflict_error", models.ErrConflict.Error()},
		{models.ErrForbidden, http.StatusForbidden, "forbidden_error", "forbidden"},
		{fmt.Errorf("%w: failed to send message", models.ErrPersistence), http.StatusInternalServerError, "internal_error", "persistence failure: failed to send message"},
		{errors.New("mongo: socket closed"), http.StatusInternalServerError, "internal_error", "internal server error"},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		WriteError(c, tt.err, zerolog.Nop())

		assert.Equal(t, tt.wantStatus, w.Code)
		var body HTTPErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, tt.wantType, body.Error.Type)
		assert.Equal(t, tt.wantMsg, body.Error.Message)
	}
}

func TestParseErrors(t *testing.T) {
	type input struct {
		Email string  `json:"email" validate:"required,email"`
		Phone *string `json:"phone" validate:"omitempty,max=15,phone"`
	}
	bad := "12ab"

	err := ValidateStruct(input{Phone: &bad})
	require.Error(t, err)

	msgs := ParseErrors(err)
	assert.Contains(t, msgs, "email field is required")
	assert.Contains(t, msgs, "phone must be a valid phone number")

	ok := "+84123456"
	assert.NoError(t, ValidateStruct(input{Email: "a@b.co", Phone: &ok}))
}

package utils

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tlu-support/internal/models"
)

// HTTPErrorResponse represents the standard error response format.
type HTTPErrorResponse struct {
	Error *HTTPErrorDetail `json:"error"`
}

type HTTPErrorDetail struct {
	Message string   `json:"message"`
	Type    string   `json:"type"`
	Details []string `json:"details,omitempty"`
}

type errorKind struct {
	target error
	status int
	name   string
}

var errorKinds = []errorKind{
	{models.ErrNotFound, http.StatusNotFound, "not_found_error"},
	{models.ErrValidation, http.StatusBadRequest, "validation_error"},
	{models.ErrDuplicate, http.StatusConflict, "conflict_error"},
	{models.ErrConflict, http.StatusConflict, "conflict_error"},
	{models.ErrForbidden, http.StatusForbidden, "forbidden_error"},
	{models.ErrUnauthorized, http.StatusUnauthorized, "unauthorized_error"},
	{models.ErrPersistence, http.StatusInternalServerError, "internal_error"},
}

// ErrorType returns the stable category name and HTTP status for err.
func ErrorType(err error) (string, int) {
	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return k.name, k.status
		}
	}
	return "internal_error", http.StatusInternalServerError
}

// PublicError returns the category, HTTP status and caller-safe message for err.
// Unclassified errors get a generic message so internal causes never leak.
func PublicError(err error) (string, int, string) {
	name, status := ErrorType(err)
	msg := err.Error()
	if status == http.StatusInternalServerError && !errors.Is(err, models.ErrPersistence) {
		msg = "internal server error"
	}
	return name, status, msg
}

// WriteError maps a service error onto the JSON error envelope.
func WriteError(c *gin.Context, err error, log zerolog.Logger) {
	name, status, msg := PublicError(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}

	c.AbortWithStatusJSON(status, HTTPErrorResponse{Error: &HTTPErrorDetail{Message: msg, Type: name}})
}

// WriteValidationError answers 400 with prettified validator messages.
func WriteValidationError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, HTTPErrorResponse{Error: &HTTPErrorDetail{
		Message: "invalid input",
		Type:    "validation_error",
		Details: ParseErrors(err),
	}})
}

func errorBody(msg string, kind error) HTTPErrorResponse {
	name, _ := ErrorType(kind)
	return HTTPErrorResponse{Error: &HTTPErrorDetail{Message: msg, Type: name}}
}

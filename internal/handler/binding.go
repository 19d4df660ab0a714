package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tlu-support/internal/utils"
)

// bindAndValidate decodes the body (JSON or form) and runs the shared validator.
// It answers 400 itself and reports whether the handler should continue.
func bindAndValidate(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBind(req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, utils.HTTPErrorResponse{Error: &utils.HTTPErrorDetail{
			Message: "invalid input",
			Type:    "validation_error",
		}})
		return false
	}
	if err := utils.ValidateStruct(req); err != nil {
		utils.WriteValidationError(c, err)
		return false
	}
	return true
}

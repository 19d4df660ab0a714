package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tlu-support/internal/models"
	"tlu-support/internal/services"
	"tlu-support/internal/utils"
)

type UserHandler struct {
	students *services.StudentService
	log      zerolog.Logger
}

func NewUserHandler(students *services.StudentService, log zerolog.Logger) *UserHandler {
	return &UserHandler{students: students, log: log}
}

func (h *UserHandler) GetMe(c *gin.Context) {
	profile, err := h.students.GetProfile(c.Request.Context(), utils.GetPrincipal(c).UserID)
	if err != nil {
		utils.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// UpdateMe accepts multipart form fields phone and address plus an optional avatar file.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var in services.UpdateProfileInput
	if v, ok := c.GetPostForm("phone"); ok {
		in.Phone = &v
	}
	if v, ok := c.GetPostForm("address"); ok {
		in.Address = &v
	}
	if err := utils.ValidateStruct(&in); err != nil {
		utils.WriteValidationError(c, err)
		return
	}

	if fh, err := c.FormFile("avatar"); err == nil {
		f, err := fh.Open()
		if err != nil {
			utils.WriteError(c, fmt.Errorf("%w: cannot read avatar", models.ErrValidation), h.log)
			return
		}
		defer f.Close()
		in.Avatar = &services.AvatarUpload{Filename: fh.Filename, Reader: f}
	}

	profile, err := h.students.UpdateProfile(c.Request.Context(), utils.GetPrincipal(c).UserID, in)
	if err != nil {
		utils.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, profile)
}

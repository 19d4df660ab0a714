package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tlu-support/internal/services"
	"tlu-support/internal/utils"
)

type AuthHandler struct {
	service *services.AuthService
	log     zerolog.Logger
}

func NewAuthHandler(service *services.AuthService, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{service: service, log: log}
}

type loginRequest struct {
	Email    string `json:"email" form:"email" validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required"`
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=6"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	res, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		utils.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req services.RegisterStudentInput
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.service.RegisterStudent(c.Request.Context(), req)
	if err != nil {
		utils.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *AuthHandler) CreateLecturer(c *gin.Context) {
	var req services.CreateLecturerInput
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.service.CreateLecturer(c.Request.Context(), req)
	if err != nil {
		utils.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	p := utils.GetPrincipal(c)
	if err := h.service.ChangePassword(c.Request.Context(), p.UserID, req.OldPassword, req.NewPassword); err != nil {
		utils.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}

func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.service.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		utils.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "if the account exists, a temporary password has been sent"})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.service.Logout(c.Request.Context(), utils.GetClaims(c)); err != nil {
		utils.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *AuthHandler) Validate(c *gin.Context) {
	p := utils.GetPrincipal(c)
	c.JSON(http.StatusOK, gin.H{"user_id": p.UserID, "role": p.Role})
}

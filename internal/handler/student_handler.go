package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tlu-support/internal/models"
	"tlu-support/internal/services"
	"tlu-support/internal/utils"
)

type StudentHandler struct {
	students *services.StudentService
	log      zerolog.Logger
}

func NewStudentHandler(students *services.StudentService, log zerolog.Logger) *StudentHandler {
	return &StudentHandler{students: students, log: log}
}

func (h *StudentHandler) List(c *gin.Context) {
	page, ok := intQuery(c, "page", 1)
	if !ok {
		return
	}
	size, ok := intQuery(c, "size", services.DefaultRosterSize)
	if !ok {
		return
	}

	res, err := h.students.ListStudents(c.Request.Context(), models.StudentFilter{
		Keyword: c.Query("keyword"),
		Status:  models.AcademicStatus(c.Query("status")),
		Page:    page,
		Size:    size,
	})
	if err != nil {
		utils.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *StudentHandler) Get(c *gin.Context) {
	profile, err := h.students.GetStudent(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		utils.WriteError(c, err, h.log)
		return
	}
	c.JSON(http.StatusOK, profile)
}

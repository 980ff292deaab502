package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/portal-orchestrator/dto"
	"github.com/portal-orchestrator/middleware"
	"github.com/portal-orchestrator/services"
)

// StudentController handles the student projects
type StudentController struct {
	studentService *services.StudentService
}

func NewStudentController(studentService *services.StudentService) *StudentController {
	return &StudentController{studentService: studentService}
}

// ListStudents handles GET /students
func (c *StudentController) ListStudents(ctx *gin.Context) {
	students, err := c.studentService.List(middleware.ActorFrom(ctx))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, students)
}

// GetStudent handles GET /students/:id
func (c *StudentController) GetStudent(ctx *gin.Context) {
	student, err := c.studentService.Get(middleware.ActorFrom(ctx), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, student)
}

// CreateStudent handles POST /students
func (c *StudentController) CreateStudent(ctx *gin.Context) {
	var req dto.CreateStudentRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		respondBindError(ctx, err)
		return
	}

	student, err := c.studentService.Create(middleware.ActorFrom(ctx), req)
	if err != nil {
		respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, student)
}

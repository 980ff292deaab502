package services

import (
	"errors"
	"strings"

	"github.com/portal-orchestrator/dto"
	"github.com/portal-orchestrator/models"
	"github.com/portal-orchestrator/repositories"
	"github.com/portal-orchestrator/utils"
	"gorm.io/gorm"
)

// StudentService resolves students and enforces who may act on them
type StudentService struct {
	students *repositories.StudentRepository
}

func NewStudentService(students *repositories.StudentRepository) *StudentService {
	return &StudentService{students: students}
}

// List returns the students visible to the actor
func (s *StudentService) List(actor Actor) ([]models.Student, error) {
	return s.students.List(actor.ScopeTeacherID())
}

// Get loads a student by id and checks the actor may access it
func (s *StudentService) Get(actor Actor, id string) (models.Student, error) {
	student, err := s.students.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return student, newError(ErrNotFound, "Student %s not found", id)
	}
	if err != nil {
		return student, err
	}
	return student, authorizeStudent(actor, student)
}

// GetByCode loads a student by code and checks the actor may access it
func (s *StudentService) GetByCode(actor Actor, code string) (models.Student, error) {
	student, err := s.students.FindByCode(code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return student, newError(ErrNotFound, "Student %s not found", code)
	}
	if err != nil {
		return student, err
	}
	return student, authorizeStudent(actor, student)
}

// Create registers a student. Teachers become the owner of students they create.
func (s *StudentService) Create(actor Actor, req dto.CreateStudentRequest) (models.Student, error) {
	code := strings.TrimSpace(req.StudentCode)
	projectType := strings.ToLower(strings.TrimSpace(req.ProjectType))
	if code == "" {
		return models.Student{}, newError(ErrValidation, "student_code is required")
	}
	if _, ok := utils.NamespaceForProjectType(projectType); !ok {
		return models.Student{}, newError(ErrValidation, "Invalid project_type")
	}
	if _, err := s.students.FindByCode(code); err == nil {
		return models.Student{}, newError(ErrValidation, "Student %s already exists", code)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Student{}, err
	}

	student := models.Student{
		StudentCode: code,
		Name:        strings.TrimSpace(req.Name),
		ProjectType: models.ProjectType(projectType),
		GitRepoURL:  strings.TrimSpace(req.GitRepoURL),
		TeacherID:   req.TeacherID,
	}
	if actor.Role == models.RoleTeacher {
		owner := actor.UserID
		student.TeacherID = &owner
	}
	if err := s.students.Create(&student); err != nil {
		return student, err
	}
	return student, nil
}

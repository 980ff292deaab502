package repositories

import (
	"github.com/portal-orchestrator/models"
	"gorm.io/gorm"
)

// StudentRepository handles database operations for students
type StudentRepository struct {
	db *gorm.DB
}

func NewStudentRepository(db *gorm.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

func (r *StudentRepository) FindByID(id string) (models.Student, error) {
	var student models.Student
	result := r.db.First(&student, "id = ?", id)
	return student, result.Error
}

func (r *StudentRepository) FindByCode(code string) (models.Student, error) {
	var student models.Student
	result := r.db.Where("student_code = ?", code).First(&student)
	return student, result.Error
}

// List returns students ordered by code. A teacherID limits the result to
// that teacher's students plus the unowned ones.
func (r *StudentRepository) List(teacherID string) ([]models.Student, error) {
	query := r.db.Model(&models.Student{})
	if teacherID != "" {
		query = query.Where("teacher_id = ? OR teacher_id IS NULL", teacherID)
	}
	var students []models.Student
	result := query.Order("student_code ASC").Find(&students)
	return students, result.Error
}

func (r *StudentRepository) Create(student *models.Student) error {
	return r.db.Create(student).Error
}

// UpdateDomain binds the public domain assigned at deploy time
func (r *StudentRepository) UpdateDomain(id, domain string) error {
	return r.db.Model(&models.Student{}).Where("id = ?", id).Update("domain", domain).Error
}

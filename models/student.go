package models

import (
	"time"

	"gorm.io/gorm"
)

// ProjectType distinguishes graduation (gd) from course (cd) projects
type ProjectType string

const (
	ProjectTypeGD ProjectType = "gd"
	ProjectTypeCD ProjectType = "cd"
)

// Student is the tenant that owns a hosted project
type Student struct {
	ID          string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	StudentCode string      `json:"student_code" gorm:"uniqueIndex;not null"`
	Name        string      `json:"name" gorm:"not null"`
	ProjectType ProjectType `json:"project_type" gorm:"type:varchar(10);not null"`
	GitRepoURL  string      `json:"git_repo_url" gorm:"default:null"`
	Domain      string      `json:"domain" gorm:"default:null"`
	TeacherID   *string     `json:"teacher_id" gorm:"type:varchar(36);index"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

func (s *Student) BeforeCreate(tx *gorm.DB) error {
	assignID(&s.ID)
	return nil
}

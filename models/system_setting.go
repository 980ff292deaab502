package models

import (
	"time"
)

const (
	DefaultStudentDomainPrefix = "stu-"
	DefaultStudentDomainBase   = "hydrosim.cn"
	DefaultImageRepoTemplate   = "{{registry}}/hydrosim/{{student_code}}"
)

// SystemSetting is the single row of portal wide settings
type SystemSetting struct {
	ID                       uint      `json:"id" gorm:"primaryKey"`
	StudentDomainPrefix      *string   `json:"student_domain_prefix"`
	StudentDomainBase        string    `json:"student_domain_base"`
	DefaultRegistryID        *string   `json:"default_registry_id" gorm:"type:varchar(36)"`
	DefaultImageRepoTemplate string    `json:"default_image_repo_template"`
	BuildNamespace           string    `json:"build_namespace"`
	CreatedAt                time.Time `json:"created_at"`
	UpdatedAt                time.Time `json:"updated_at"`
}

// DomainPrefix returns the configured host prefix; an explicit empty prefix is honoured
func (s *SystemSetting) DomainPrefix() string {
	if s.StudentDomainPrefix == nil {
		return DefaultStudentDomainPrefix
	}
	return *s.StudentDomainPrefix
}

package dto

// SettingsRequest updates the system settings; nil fields are untouched
type SettingsRequest struct {
	StudentDomainPrefix      *string `json:"student_domain_prefix"`
	StudentDomainBase        *string `json:"student_domain_base"`
	DefaultRegistryID        *string `json:"default_registry_id"`
	DefaultImageRepoTemplate *string `json:"default_image_repo_template"`
	BuildNamespace           *string `json:"build_namespace"`
}

// CreateStudentRequest registers a student project
type CreateStudentRequest struct {
	StudentCode string  `json:"student_code" binding:"required"`
	Name        string  `json:"name" binding:"required"`
	ProjectType string  `json:"project_type" binding:"required"`
	GitRepoURL  string  `json:"git_repo_url"`
	TeacherID   *string `json:"teacher_id"`
}

package models

import (
	"time"

	"gorm.io/gorm"
)

// TagStrategy decides how a build's image tag is derived
type TagStrategy string

const (
	TagStrategyShortSHA     TagStrategy = "short_sha"
	TagStrategyBranchLatest TagStrategy = "branch_latest"
)

// BuildConfig is the per-student pipeline configuration
type BuildConfig struct {
	ID                   string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	StudentID            string      `json:"student_id" gorm:"type:varchar(36);uniqueIndex;not null"`
	RepoURL              string      `json:"repo_url" gorm:"not null"`
	Branch               string      `json:"branch" gorm:"default:main"`
	DockerfilePath       string      `json:"dockerfile_path" gorm:"default:Dockerfile"`
	ContextPath          string      `json:"context_path" gorm:"default:."`
	RegistryID           *string     `json:"registry_id" gorm:"type:varchar(36)"`
	ImageRepo            string      `json:"image_repo" gorm:"default:null"`
	TagStrategy          TagStrategy `json:"tag_strategy" gorm:"type:varchar(20);default:short_sha"`
	AutoBuild            bool        `json:"auto_build" gorm:"default:false"`
	AutoDeploy           bool        `json:"auto_deploy" gorm:"default:false"`
	DeployKeyPublic      string      `json:"deploy_key_public" gorm:"type:text"`
	DeployKeyPrivate     string      `json:"-" gorm:"type:text"`
	DeployKeyFingerprint string      `json:"deploy_key_fingerprint"`
	DeployKeyCreatedAt   *time.Time  `json:"deploy_key_created_at"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

func (c *BuildConfig) BeforeCreate(tx *gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// HasDeployKey reports whether a keypair has been generated
func (c *BuildConfig) HasDeployKey() bool {
	return c.DeployKeyPrivate != "" && c.DeployKeyPublic != ""
}

package models

import (
	"time"

	"gorm.io/gorm"
)

// DeploymentStatus is the outcome recorded for one deploy attempt
type DeploymentStatus string

const (
	DeploymentStatusPending   DeploymentStatus = "pending"
	DeploymentStatusDeploying DeploymentStatus = "deploying"
	DeploymentStatusRunning   DeploymentStatus = "running"
	DeploymentStatusFailed    DeploymentStatus = "failed"
)

// Deployment is the audit record of a deploy attempt, not the live workload
type Deployment struct {
	ID             string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	StudentID      string           `json:"student_id" gorm:"type:varchar(36);index;not null"`
	BuildID        *string          `json:"build_id" gorm:"type:varchar(36);index"`
	ImageTag       string           `json:"image_tag"`
	Status         DeploymentStatus `json:"status" gorm:"type:varchar(20);default:pending"`
	Message        string           `json:"message" gorm:"type:text"`
	LastDeployTime *time.Time       `json:"last_deploy_time"`
	CreatedAt      time.Time        `json:"created_at" gorm:"index"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func (d *Deployment) BeforeCreate(tx *gorm.DB) error {
	assignID(&d.ID)
	return nil
}

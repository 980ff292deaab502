package models

import (
	"time"

	"gorm.io/gorm"
)

// BuildStatus is the state of a single pipeline execution
type BuildStatus string

const (
	BuildStatusPending   BuildStatus = "pending"
	BuildStatusRunning   BuildStatus = "running"
	BuildStatusSuccess   BuildStatus = "success"
	BuildStatusFailed    BuildStatus = "failed"
	BuildStatusError     BuildStatus = "error"
	BuildStatusCancelled BuildStatus = "cancelled"
)

// ActiveBuildStatuses are the non-terminal states
var ActiveBuildStatuses = []BuildStatus{BuildStatusPending, BuildStatusRunning}

func (s BuildStatus) IsTerminal() bool {
	switch s {
	case BuildStatusSuccess, BuildStatusFailed, BuildStatusError, BuildStatusCancelled:
		return true
	}
	return false
}

// Build is one run of the image pipeline
type Build struct {
	ID         string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	StudentID  string      `json:"student_id" gorm:"type:varchar(36);index;not null"`
	CommitSHA  string      `json:"commit_sha"`
	Branch     string      `json:"branch"`
	ImageTag   string      `json:"image_tag"`
	Image      string      `json:"image"`
	Status     BuildStatus `json:"status" gorm:"type:varchar(20);index;default:pending"`
	Message    string      `json:"message" gorm:"type:text"`
	JobName    string      `json:"job_name"`
	Logs       string      `json:"-" gorm:"type:text"`
	Duration   *int64      `json:"duration"`
	StartedAt  *time.Time  `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at"`
	CreatedAt  time.Time   `json:"created_at" gorm:"index"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

func (b *Build) BeforeCreate(tx *gorm.DB) error {
	assignID(&b.ID)
	return nil
}

package repositories

import (
	"time"

	"github.com/portal-orchestrator/models"
	"gorm.io/gorm"
)

// BuildFilter narrows ListBuilds
type BuildFilter struct {
	StudentID  string
	// StudentIDs restricts to a set of students when non-nil
	StudentIDs []string
	Status     models.BuildStatus
	Limit      int
}

// BuildRepository handles database operations for builds
type BuildRepository struct {
	db *gorm.DB
}

func NewBuildRepository(db *gorm.DB) *BuildRepository {
	return &BuildRepository{db: db}
}

func (r *BuildRepository) Create(build *models.Build) error {
	return r.db.Create(build).Error
}

func (r *BuildRepository) FindByID(id string) (models.Build, error) {
	var build models.Build
	result := r.db.First(&build, "id = ?", id)
	return build, result.Error
}

// List returns builds newest first
func (r *BuildRepository) List(filter BuildFilter) ([]models.Build, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := r.db.Model(&models.Build{})
	if filter.StudentID != "" {
		query = query.Where("student_id = ?", filter.StudentID)
	}
	if filter.StudentIDs != nil {
		if len(filter.StudentIDs) == 0 {
			return []models.Build{}, nil
		}
		query = query.Where("student_id IN ?", filter.StudentIDs)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	var builds []models.Build
	result := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&builds)
	return builds, result.Error
}

// FindActive returns the pending or running build of a student, if any
func (r *BuildRepository) FindActive(studentID string) (*models.Build, error) {
	var builds []models.Build
	err := r.db.Where("student_id = ? AND status IN ?", studentID, models.ActiveBuildStatuses).
		Order("created_at DESC").Limit(1).Find(&builds).Error
	if err != nil || len(builds) == 0 {
		return nil, err
	}
	return &builds[0], nil
}

// FindByStatuses lists builds in any of the given states, oldest first
func (r *BuildRepository) FindByStatuses(statuses ...models.BuildStatus) ([]models.Build, error) {
	var builds []models.Build
	result := r.db.Where("status IN ?", statuses).Order("created_at ASC").Find(&builds)
	return builds, result.Error
}

// FindLatestSuccessful returns the most recent successful build, or gorm.ErrRecordNotFound
func (r *BuildRepository) FindLatestSuccessful(studentID string) (models.Build, error) {
	var build models.Build
	result := r.db.Where("student_id = ? AND status = ?", studentID, models.BuildStatusSuccess).
		Order("created_at DESC").Order("id DESC").
		First(&build)
	return build, result.Error
}

// MarkRunning moves a pending build to running. Returns false when the build
// already left the pending state (for example it was cancelled).
func (r *BuildRepository) MarkRunning(id, jobName, message string, startedAt time.Time) (bool, error) {
	result := r.db.Model(&models.Build{}).
		Where("id = ? AND status = ?", id, models.BuildStatusPending).
		Updates(map[string]interface{}{
			"status":     models.BuildStatusRunning,
			"job_name":   jobName,
			"message":    message,
			"started_at": startedAt,
		})
	return result.RowsAffected > 0, result.Error
}

// Finish writes a terminal state if the build is still active. A build that
// already reached a terminal state is left untouched and false is returned.
func (r *BuildRepository) Finish(build *models.Build) (bool, error) {
	updates := map[string]interface{}{
		"status":      build.Status,
		"message":     build.Message,
		"finished_at": build.FinishedAt,
		"duration":    build.Duration,
	}
	if build.Logs != "" {
		updates["logs"] = build.Logs
	}
	result := r.db.Model(&models.Build{}).
		Where("id = ? AND status IN ?", build.ID, models.ActiveBuildStatuses).
		Updates(updates)
	return result.RowsAffected > 0, result.Error
}

// UpdateMessage refreshes the human readable progress line of an active build
func (r *BuildRepository) UpdateMessage(id, message string) error {
	return r.db.Model(&models.Build{}).
		Where("id = ? AND status IN ?", id, models.ActiveBuildStatuses).
		Update("message", message).Error
}

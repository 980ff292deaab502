package repositories

import (
	"github.com/portal-orchestrator/models"
	"gorm.io/gorm"
)

// DeploymentRepository handles database operations for deploy audit records
type DeploymentRepository struct {
	db *gorm.DB
}

// NewDeploymentRepository creates a new deployment repository instance
func NewDeploymentRepository(db *gorm.DB) *DeploymentRepository {
	return &DeploymentRepository{db: db}
}

// Create inserts a new deployment record
func (r *DeploymentRepository) Create(deployment *models.Deployment) error {
	return r.db.Create(deployment).Error
}

// UpdateOutcome records the result of applying a deployment
func (r *DeploymentRepository) UpdateOutcome(deployment *models.Deployment) error {
	return r.db.Model(&models.Deployment{}).
		Where("id = ?", deployment.ID).
		Updates(map[string]interface{}{
			"status":           deployment.Status,
			"message":          deployment.Message,
			"last_deploy_time": deployment.LastDeployTime,
		}).Error
}

// FindByID retrieves a deployment record by its ID
func (r *DeploymentRepository) FindByID(id string) (models.Deployment, error) {
	var deployment models.Deployment
	result := r.db.First(&deployment, "id = ?", id)
	return deployment, result.Error
}

// List returns audit records newest first. A nil studentIDs means every student.
func (r *DeploymentRepository) List(studentIDs []string, limit int) ([]models.Deployment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := r.db.Model(&models.Deployment{})
	if studentIDs != nil {
		if len(studentIDs) == 0 {
			return []models.Deployment{}, nil
		}
		query = query.Where("student_id IN ?", studentIDs)
	}
	var deployments []models.Deployment
	result := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&deployments)
	return deployments, result.Error
}

// ExistsForBuild reports whether a build has already been deployed
func (r *DeploymentRepository) ExistsForBuild(buildID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Deployment{}).Where("build_id = ?", buildID).Count(&count).Error
	return count > 0, err
}

package repositories

import (
	"time"

	"github.com/portal-orchestrator/models"
	"gorm.io/gorm"
)

// BuildConfigRepository handles database operations for build configs
type BuildConfigRepository struct {
	db *gorm.DB
}

func NewBuildConfigRepository(db *gorm.DB) *BuildConfigRepository {
	return &BuildConfigRepository{db: db}
}

// FindByStudentID returns the config of a student, or gorm.ErrRecordNotFound
func (r *BuildConfigRepository) FindByStudentID(studentID string) (models.BuildConfig, error) {
	var cfg models.BuildConfig
	result := r.db.Where("student_id = ?", studentID).First(&cfg)
	return cfg, result.Error
}

// FindAll returns every config; the webhook matches repositories against them
func (r *BuildConfigRepository) FindAll() ([]models.BuildConfig, error) {
	var configs []models.BuildConfig
	result := r.db.Find(&configs)
	return configs, result.Error
}

// Save inserts or fully updates a config
func (r *BuildConfigRepository) Save(cfg *models.BuildConfig) error {
	return r.db.Save(cfg).Error
}

// ReplaceDeployKey writes the keypair, fingerprint and timestamp in one statement
func (r *BuildConfigRepository) ReplaceDeployKey(id, public, private, fingerprint string, createdAt time.Time) error {
	return r.db.Model(&models.BuildConfig{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"deploy_key_public":      public,
			"deploy_key_private":     private,
			"deploy_key_fingerprint": fingerprint,
			"deploy_key_created_at":  createdAt,
		}).Error
}

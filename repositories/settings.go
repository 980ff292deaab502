package repositories

import (
	"errors"

	"github.com/portal-orchestrator/models"
	"gorm.io/gorm"
)

// SettingsRepository manages the single system settings row
type SettingsRepository struct {
	db             *gorm.DB
	buildNamespace string
}

func NewSettingsRepository(db *gorm.DB, buildNamespace string) *SettingsRepository {
	return &SettingsRepository{db: db, buildNamespace: buildNamespace}
}

// Get returns the settings row, creating it and backfilling blank defaults
func (r *SettingsRepository) Get() (models.SystemSetting, error) {
	var settings models.SystemSetting
	err := r.db.Order("id ASC").First(&settings).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		settings = models.SystemSetting{}
		r.applyDefaults(&settings)
		return settings, r.db.Create(&settings).Error
	}
	if err != nil {
		return settings, err
	}
	if r.applyDefaults(&settings) {
		err = r.db.Save(&settings).Error
	}
	return settings, err
}

// Save persists the settings row
func (r *SettingsRepository) Save(settings *models.SystemSetting) error {
	r.applyDefaults(settings)
	return r.db.Save(settings).Error
}

func (r *SettingsRepository) applyDefaults(settings *models.SystemSetting) bool {
	updated := false
	if settings.StudentDomainPrefix == nil {
		prefix := models.DefaultStudentDomainPrefix
		settings.StudentDomainPrefix = &prefix
		updated = true
	}
	if settings.StudentDomainBase == "" {
		settings.StudentDomainBase = models.DefaultStudentDomainBase
		updated = true
	}
	if settings.DefaultImageRepoTemplate == "" {
		settings.DefaultImageRepoTemplate = models.DefaultImageRepoTemplate
		updated = true
	}
	if settings.BuildNamespace == "" && r.buildNamespace != "" {
		settings.BuildNamespace = r.buildNamespace
		updated = true
	}
	return updated
}

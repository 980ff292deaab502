package services

import (
	"errors"
	"strings"

	"github.com/portal-orchestrator/dto"
	"github.com/portal-orchestrator/models"
	"github.com/portal-orchestrator/repositories"
	"github.com/portal-orchestrator/utils"
	"gorm.io/gorm"
)

// SettingsService reads and updates the portal wide settings
type SettingsService struct {
	settings   *repositories.SettingsRepository
	registries *repositories.RegistryRepository
}

func NewSettingsService(settings *repositories.SettingsRepository, registries *repositories.RegistryRepository) *SettingsService {
	return &SettingsService{settings: settings, registries: registries}
}

func (s *SettingsService) Get() (models.SystemSetting, error) {
	return s.settings.Get()
}

// Update applies the non-nil fields of the request
func (s *SettingsService) Update(req dto.SettingsRequest) (models.SystemSetting, error) {
	current, err := s.settings.Get()
	if err != nil {
		return current, err
	}

	if req.StudentDomainPrefix != nil {
		prefix := strings.ToLower(strings.TrimSpace(*req.StudentDomainPrefix))
		current.StudentDomainPrefix = &prefix
	}
	if req.StudentDomainBase != nil {
		base := strings.Trim(strings.TrimSpace(*req.StudentDomainBase), ".")
		if base == "" {
			return current, newError(ErrValidation, "student_domain_base cannot be empty")
		}
		current.StudentDomainBase = base
	}
	if req.DefaultRegistryID != nil {
		id := strings.TrimSpace(*req.DefaultRegistryID)
		if id == "" {
			current.DefaultRegistryID = nil
		} else {
			if _, err := s.registries.FindByID(id); errors.Is(err, gorm.ErrRecordNotFound) {
				return current, newError(ErrValidation, "Registry %s does not exist", id)
			} else if err != nil {
				return current, err
			}
			current.DefaultRegistryID = &id
		}
	}
	if req.DefaultImageRepoTemplate != nil {
		current.DefaultImageRepoTemplate = strings.TrimSpace(*req.DefaultImageRepoTemplate)
	}
	if req.BuildNamespace != nil {
		ns := strings.TrimSpace(*req.BuildNamespace)
		if ns != "" && utils.NormalizeK8sName(ns) != ns {
			return current, newError(ErrValidation, "build_namespace %q is not a valid namespace name", ns)
		}
		current.BuildNamespace = ns
	}

	if err := s.settings.Save(&current); err != nil {
		return current, err
	}
	return current, nil
}

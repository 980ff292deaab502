package services

import (
	"errors"
	"strings"

	"github.com/portal-orchestrator/dto"
	"github.com/portal-orchestrator/models"
	"github.com/portal-orchestrator/repositories"
	"gorm.io/gorm"
)

// BuildConfigService manages the per-student pipeline configuration
type BuildConfigService struct {
	configs    *repositories.BuildConfigRepository
	registries *repositories.RegistryRepository
}

func NewBuildConfigService(configs *repositories.BuildConfigRepository, registries *repositories.RegistryRepository) *BuildConfigService {
	return &BuildConfigService{configs: configs, registries: registries}
}

// defaultBuildConfig is what a student gets before anything was saved
func defaultBuildConfig(student models.Student) models.BuildConfig {
	return models.BuildConfig{
		StudentID:      student.ID,
		RepoURL:        student.GitRepoURL,
		Branch:         "main",
		DockerfilePath: "Dockerfile",
		ContextPath:    ".",
		TagStrategy:    models.TagStrategyShortSHA,
	}
}

func applyConfigDefaults(cfg *models.BuildConfig) {
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.DockerfilePath == "" {
		cfg.DockerfilePath = "Dockerfile"
	}
	if cfg.ContextPath == "" {
		cfg.ContextPath = "."
	}
	if cfg.TagStrategy == "" {
		cfg.TagStrategy = models.TagStrategyShortSHA
	}
}

// Get returns the stored config, or the unsaved defaults when there is none
func (s *BuildConfigService) Get(student models.Student) (models.BuildConfig, error) {
	cfg, err := s.configs.FindByStudentID(student.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return defaultBuildConfig(student), nil
	}
	if err != nil {
		return cfg, err
	}
	applyConfigDefaults(&cfg)
	return cfg, nil
}

// Ensure returns the stored config, creating it from the student's repository when absent
func (s *BuildConfigService) Ensure(student models.Student) (models.BuildConfig, error) {
	cfg, err := s.configs.FindByStudentID(student.ID)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return cfg, err
	}
	cfg = defaultBuildConfig(student)
	if err := s.configs.Save(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Update applies the non-nil fields of the request, creating the config if needed
func (s *BuildConfigService) Update(student models.Student, req dto.BuildConfigRequest) (models.BuildConfig, error) {
	cfg, err := s.Get(student)
	if err != nil {
		return cfg, err
	}

	if req.RepoURL != nil {
		cfg.RepoURL = strings.TrimSpace(*req.RepoURL)
	}
	if req.Branch != nil {
		cfg.Branch = strings.TrimSpace(*req.Branch)
	}
	if req.DockerfilePath != nil {
		cfg.DockerfilePath = strings.TrimSpace(*req.DockerfilePath)
	}
	if req.ContextPath != nil {
		cfg.ContextPath = strings.TrimSpace(*req.ContextPath)
	}
	if req.ImageRepo != nil {
		cfg.ImageRepo = strings.TrimSpace(*req.ImageRepo)
	}
	if req.TagStrategy != nil {
		switch *req.TagStrategy {
		case models.TagStrategyShortSHA, models.TagStrategyBranchLatest:
			cfg.TagStrategy = *req.TagStrategy
		default:
			return cfg, newError(ErrValidation, "Invalid tag_strategy %q", *req.TagStrategy)
		}
	}
	if req.RegistryID != nil {
		id := strings.TrimSpace(*req.RegistryID)
		if id == "" {
			cfg.RegistryID = nil
		} else {
			if _, err := s.registries.FindByID(id); errors.Is(err, gorm.ErrRecordNotFound) {
				return cfg, newError(ErrValidation, "Registry %s does not exist", id)
			} else if err != nil {
				return cfg, err
			}
			cfg.RegistryID = &id
		}
	}
	if req.AutoBuild != nil {
		cfg.AutoBuild = *req.AutoBuild
	}
	if req.AutoDeploy != nil {
		cfg.AutoDeploy = *req.AutoDeploy
	}
	applyConfigDefaults(&cfg)

	if err := s.configs.Save(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

package services

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strings"

	"github.com/portal-orchestrator/dto"
	"github.com/portal-orchestrator/models"
	"github.com/portal-orchestrator/repositories"
	"github.com/portal-orchestrator/utils"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RegistryService handles registry records and their v2 HTTP API
type RegistryService struct {
	registryRepo *repositories.RegistryRepository
	newAPI       func(registry models.Registry) *utils.RegistryAPI
}

// NewRegistryService creates a new registry service instance
func NewRegistryService(registryRepo *repositories.RegistryRepository) *RegistryService {
	return &RegistryService{
		registryRepo: registryRepo,
		newAPI: func(registry models.Registry) *utils.RegistryAPI {
			return utils.NewRegistryAPI(registry.URL, registry.Username, registry.Password)
		},
	}
}

// ListRegistries retrieves registries with pagination, filtering and sorting
func (s *RegistryService) ListRegistries(filter dto.RegistryFilter) (dto.RegistryListResponse, error) {
	var response dto.RegistryListResponse

	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 10
	}

	registries, total, err := s.registryRepo.FindWithPagination(
		filter.Page,
		filter.PageSize,
		filter.SortBy,
		filter.SortOrder,
		filter.Search,
		filter.OnlyActive,
	)
	if err != nil {
		return response, err
	}

	response.Registries = registries
	response.TotalCount = total
	response.Page = filter.Page
	response.PageSize = filter.PageSize
	response.TotalPages = int(math.Ceil(float64(total) / float64(filter.PageSize)))
	return response, nil
}

// GetRegistryByID retrieves a registry by its ID
func (s *RegistryService) GetRegistryByID(id string) (models.Registry, error) {
	registry, err := s.registryRepo.FindByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return registry, newError(ErrNotFound, "Registry %s not found", id)
	}
	return registry, err
}

// CreateRegistry stores a new registry; name and url are required
func (s *RegistryService) CreateRegistry(req dto.RegistryRequest) (models.Registry, error) {
	registry := models.Registry{IsActive: true}
	applyRegistryRequest(&registry, req)
	if registry.Name == "" || registry.URL == "" {
		return registry, newError(ErrValidation, "name and url are required")
	}

	created, err := s.registryRepo.Create(registry)
	if err != nil {
		return created, err
	}
	zap.S().Infof("📦 Registry %s created (%s)", created.Name, created.URL)
	return created, nil
}

// UpdateRegistry applies the non-nil fields; an empty password keeps the stored one
func (s *RegistryService) UpdateRegistry(id string, req dto.RegistryRequest) (models.Registry, error) {
	registry, err := s.GetRegistryByID(id)
	if err != nil {
		return registry, err
	}
	applyRegistryRequest(&registry, req)
	if registry.Name == "" || registry.URL == "" {
		return registry, newError(ErrValidation, "name and url cannot be empty")
	}
	if err := s.registryRepo.Update(registry); err != nil {
		return registry, err
	}
	return registry, nil
}

func applyRegistryRequest(registry *models.Registry, req dto.RegistryRequest) {
	if req.Name != nil {
		registry.Name = strings.TrimSpace(*req.Name)
	}
	if req.URL != nil {
		registry.URL = strings.TrimRight(strings.TrimSpace(*req.URL), "/")
	}
	if req.Username != nil {
		registry.Username = strings.TrimSpace(*req.Username)
	}
	if req.Password != nil && *req.Password != "" {
		registry.Password = *req.Password
	}
	if req.IsDefault != nil {
		registry.IsDefault = *req.IsDefault
	}
	if req.IsActive != nil {
		registry.IsActive = *req.IsActive
	}
}

// DeleteRegistry removes a registry record
func (s *RegistryService) DeleteRegistry(id string) error {
	deleted, err := s.registryRepo.Delete(id)
	if err != nil {
		return err
	}
	if !deleted {
		return newError(ErrNotFound, "Registry %s not found", id)
	}
	return nil
}

// TestConnection checks /v2/. Any answer of 200 or 401 means a registry is listening.
func (s *RegistryService) TestConnection(ctx context.Context, id string) (dto.ConnectionResult, error) {
	registry, err := s.GetRegistryByID(id)
	if err != nil {
		return dto.ConnectionResult{}, err
	}

	status, err := s.newAPI(registry).Ping(ctx)
	if err != nil {
		return dto.ConnectionResult{Reachable: false, Message: err.Error()}, nil
	}
	result := dto.ConnectionResult{StatusCode: status}
	switch status {
	case http.StatusOK:
		result.Reachable, result.Message = true, "Registry is reachable"
	case http.StatusUnauthorized:
		result.Reachable, result.Message = true, "Registry is reachable but rejected the credentials"
	default:
		result.Message = http.StatusText(status)
	}
	return result, nil
}

// Catalog lists the repositories of a registry
func (s *RegistryService) Catalog(ctx context.Context, id string) ([]string, error) {
	registry, err := s.GetRegistryByID(id)
	if err != nil {
		return nil, err
	}
	repos, err := s.newAPI(registry).Catalog(ctx)
	if err != nil {
		return nil, registryError(err, "catalog")
	}
	return repos, nil
}

// Tags lists the tags of a repository
func (s *RegistryService) Tags(ctx context.Context, id, repository string) ([]string, error) {
	registry, err := s.GetRegistryByID(id)
	if err != nil {
		return nil, err
	}
	tags, err := s.newAPI(registry).Tags(ctx, repository)
	if err != nil {
		return nil, registryError(err, "repository "+repository)
	}
	return tags, nil
}

// DeleteTag resolves the tag's digest and deletes the manifest.
// It reports true once the registry accepted the deletion.
func (s *RegistryService) DeleteTag(ctx context.Context, id, repository, tag string) (bool, error) {
	registry, err := s.GetRegistryByID(id)
	if err != nil {
		return false, err
	}
	api := s.newAPI(registry)

	digest, err := api.ResolveDigest(ctx, repository, tag)
	if err != nil {
		return false, registryError(err, repository+":"+tag)
	}
	if err := api.DeleteManifest(ctx, repository, digest); err != nil {
		return false, registryError(err, repository+":"+tag)
	}
	zap.S().Infof("🗑️ Deleted %s:%s (%s) from registry %s", repository, tag, digest, registry.Name)
	return true, nil
}

func registryError(err error, subject string) error {
	switch {
	case errors.Is(err, utils.ErrRegistryNotFound):
		return wrapError(ErrNotFound, err, "%s not found in registry", subject)
	case errors.Is(err, utils.ErrDeleteNotAllowed):
		return wrapError(ErrUnsupportedOperation, err, "Registry configuration does not permit deletion (405 Method Not Allowed)")
	default:
		return wrapError(ErrInfrastructure, err, "Registry request failed: %v", err)
	}
}

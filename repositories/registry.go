package repositories

import (
	"fmt"
	"strings"

	"github.com/portal-orchestrator/models"
	"gorm.io/gorm"
)

// RegistryRepository handles database operations for registries
type RegistryRepository struct {
	db *gorm.DB
}

// NewRegistryRepository creates a new registry repository instance
func NewRegistryRepository(db *gorm.DB) *RegistryRepository {
	return &RegistryRepository{db: db}
}

// FindByID retrieves a registry by its ID
func (r *RegistryRepository) FindByID(id string) (models.Registry, error) {
	var registry models.Registry
	result := r.db.First(&registry, "id = ?", id)
	return registry, result.Error
}

// FindDefault retrieves the registry flagged as default
func (r *RegistryRepository) FindDefault() (models.Registry, error) {
	var registry models.Registry
	result := r.db.Where("is_default = ?", true).First(&registry)
	return registry, result.Error
}

// FindWithPagination retrieves registries with pagination, filtering and sorting
func (r *RegistryRepository) FindWithPagination(
	page, pageSize int,
	sortBy, sortOrder string,
	search string,
	onlyActive bool) ([]models.Registry, int64, error) {

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	// whitelist, the column is interpolated into ORDER BY
	validSortColumns := map[string]bool{
		"created_at": true,
		"updated_at": true,
		"name":       true,
	}
	if !validSortColumns[sortBy] {
		sortBy = "created_at"
	}
	sortOrder = strings.ToLower(sortOrder)
	if sortOrder != "asc" && sortOrder != "desc" {
		sortOrder = "desc"
	}

	query := r.db.Model(&models.Registry{})
	if search != "" {
		searchTerm := fmt.Sprintf("%%%s%%", strings.ToLower(search))
		query = query.Where("LOWER(name) LIKE ? OR LOWER(url) LIKE ?", searchTerm, searchTerm)
	}
	if onlyActive {
		query = query.Where("is_active = ?", true)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var registries []models.Registry
	result := query.Order(fmt.Sprintf("%s %s", sortBy, sortOrder)).
		Limit(pageSize).
		Offset(offset).
		Find(&registries)

	return registries, total, result.Error
}

// Create inserts a new registry, clearing the default flag elsewhere when needed
func (r *RegistryRepository) Create(registry models.Registry) (models.Registry, error) {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if registry.IsDefault {
			if err := tx.Model(&models.Registry{}).Where("is_default = ?", true).Update("is_default", false).Error; err != nil {
				return err
			}
		}
		return tx.Create(&registry).Error
	})
	return registry, err
}

// Update saves every column of an existing registry
func (r *RegistryRepository) Update(registry models.Registry) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if registry.IsDefault {
			if err := tx.Model(&models.Registry{}).Where("id != ? AND is_default = ?", registry.ID, true).Update("is_default", false).Error; err != nil {
				return err
			}
		}
		return tx.Save(&registry).Error
	})
}

// Delete removes a registry from the database
func (r *RegistryRepository) Delete(id string) (bool, error) {
	result := r.db.Delete(&models.Registry{}, "id = ?", id)
	return result.RowsAffected > 0, result.Error
}

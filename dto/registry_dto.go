package dto

import "github.com/portal-orchestrator/models"

// RegistryFilter represents filter criteria for registries
type RegistryFilter struct {
	Search     string
	SortBy     string
	SortOrder  string
	Page       int
	PageSize   int
	OnlyActive bool
}

// RegistryRequest creates or updates a registry; nil fields are left unchanged on update
type RegistryRequest struct {
	Name      *string `json:"name"`
	URL       *string `json:"url"`
	Username  *string `json:"username"`
	Password  *string `json:"password"`
	IsDefault *bool   `json:"is_default"`
	IsActive  *bool   `json:"is_active"`
}

// RegistryListResponse represents paginated registry list response
type RegistryListResponse struct {
	Registries []models.Registry `json:"registries"`
	TotalCount int64             `json:"totalCount"`
	Page       int               `json:"page"`
	PageSize   int               `json:"pageSize"`
	TotalPages int               `json:"totalPages"`
}

// ConnectionResult is the outcome of probing a registry's /v2/ endpoint
type ConnectionResult struct {
	Reachable  bool   `json:"reachable"`
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

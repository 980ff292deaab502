package models

import (
	"time"

	"gorm.io/gorm"
)

// Registry represents a container registry configuration
type Registry struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name      string    `json:"name" gorm:"not null"`
	URL       string    `json:"url" gorm:"not null"`
	Username  string    `json:"username" gorm:"default:null"`
	Password  string    `json:"-" gorm:"default:null"` // write-only
	IsDefault bool      `json:"is_default" gorm:"default:false"`
	IsActive  bool      `json:"is_active" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *Registry) BeforeCreate(tx *gorm.DB) error {
	assignID(&r.ID)
	return nil
}

// HasCredentials reports whether pushes need an auth secret
func (r *Registry) HasCredentials() bool {
	return r.Username != "" && r.Password != ""
}

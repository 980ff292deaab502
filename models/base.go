package models

import (
	"github.com/google/uuid"
)

// assignID fills an empty string primary key before insert
func assignID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

// AllModels lists every table managed by AutoMigrate
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Registry{},
		&SystemSetting{},
		&Student{},
		&BuildConfig{},
		&Build{},
		&Deployment{},
	}
}

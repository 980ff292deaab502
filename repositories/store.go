package repositories

import "gorm.io/gorm"

// Store groups the repositories sharing one database handle
type Store struct {
	Users        *UserRepository
	Students     *StudentRepository
	BuildConfigs *BuildConfigRepository
	Builds       *BuildRepository
	Deployments  *DeploymentRepository
	Registries   *RegistryRepository
	Settings     *SettingsRepository
}

func NewStore(db *gorm.DB, buildNamespace string) *Store {
	return &Store{
		Users:        NewUserRepository(db),
		Students:     NewStudentRepository(db),
		BuildConfigs: NewBuildConfigRepository(db),
		Builds:       NewBuildRepository(db),
		Deployments:  NewDeploymentRepository(db),
		Registries:   NewRegistryRepository(db),
		Settings:     NewSettingsRepository(db, buildNamespace),
	}
}

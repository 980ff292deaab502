package repositories

import (
	"github.com/portal-orchestrator/models"
	"gorm.io/gorm"
)

// UserRepository handles database operations for operators
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) FindByEmail(email string) (models.User, error) {
	var user models.User
	result := r.db.Where("email = ?", email).First(&user)
	return user, result.Error
}

func (r *UserRepository) FindByID(id string) (models.User, error) {
	var user models.User
	result := r.db.First(&user, "id = ?", id)
	return user, result.Error
}

func (r *UserRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

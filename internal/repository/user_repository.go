package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"medichat/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(user *model.User) error {
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("create user failed: %w", err)
	}
	return nil
}

func (r *UserRepository) FindByID(id uint) (*model.User, error) {
	var user model.User
	if err := r.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by id failed: %w", err)
	}
	return &user, nil
}

// FindByLogin resolves a login identifier, which may be either the username
// or the registered email address.
func (r *UserRepository) FindByLogin(login string) (*model.User, error) {
	var user model.User
	if err := r.db.Where("username = ? OR email = ?", login, login).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by login failed: %w", err)
	}
	return &user, nil
}

// Taken reports which of the two registration identifiers are already in use,
// resolved in a single query.
func (r *UserRepository) Taken(username, email string) (usernameTaken, emailTaken bool, err error) {
	var existing []model.User
	if err := r.db.Select("username", "email").
		Where("username = ? OR email = ?", username, email).
		Find(&existing).Error; err != nil {
		return false, false, fmt.Errorf("check registration identifiers failed: %w", err)
	}
	for _, u := range existing {
		if u.Username == username {
			usernameTaken = true
		}
		if u.Email == email {
			emailTaken = true
		}
	}
	return usernameTaken, emailTaken, nil
}

// TouchLastLogin stamps a successful login. Failures here never fail the
// login itself.
func (r *UserRepository) TouchLastLogin(id uint) error {
	now := time.Now()
	if err := r.db.Model(&model.User{}).Where("id = ?", id).
		Update("last_login_at", &now).Error; err != nil {
		return fmt.Errorf("touch last login failed: %w", err)
	}
	return nil
}

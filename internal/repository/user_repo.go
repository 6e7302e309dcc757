package repository

import (
	"context"

	"stockledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository defines the interface for data access of User entities
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

type userRepository struct {
	db *gorm.DB
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// BranchPermissionRepository reads the per-branch access grants
type BranchPermissionRepository interface {
	Grant(ctx context.Context, perm *model.BranchPermission) error
	FindLevel(ctx context.Context, userID, branchID uuid.UUID) (string, error)
}

type branchPermissionRepository struct {
	db *gorm.DB
}

func (r *branchPermissionRepository) Grant(ctx context.Context, perm *model.BranchPermission) error {
	return r.db.WithContext(ctx).Save(perm).Error
}

func (r *branchPermissionRepository) FindLevel(ctx context.Context, userID, branchID uuid.UUID) (string, error) {
	var perm model.BranchPermission
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND branch_id = ?", userID, branchID).
		First(&perm).Error; err != nil {
		return "", err
	}
	return perm.Level, nil
}

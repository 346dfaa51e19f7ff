package repository

import (
	"context"

	"mailflow/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserRepository defines the interface for data access of User entities
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*model.User, error)
	GetByIDForUpdate(ctx context.Context, id uint) (*model.User, error)
	ListIDsByRoleIDs(ctx context.Context, roleIDs []int) ([]uint, error)
	FindIDByUsername(ctx context.Context, username string) (uint, error)
	UpdateRole(ctx context.Context, id uint, roleID int) error
	LogRoleChange(ctx context.Context, entry *model.UserRoleAudit) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new instance of UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByIDForUpdate(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) ListIDsByRoleIDs(ctx context.Context, roleIDs []int) ([]uint, error) {
	var ids []uint
	if len(roleIDs) == 0 {
		return ids, nil
	}
	if err := GetDB(ctx, r.db).Model(&model.User{}).
		Where("role_id IN ?", roleIDs).
		Order("id asc").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *userRepository) FindIDByUsername(ctx context.Context, username string) (uint, error) {
	var user model.User
	if err := GetDB(ctx, r.db).Select("id").Where("username = ?", username).First(&user).Error; err != nil {
		return 0, err
	}
	return user.ID, nil
}

func (r *userRepository) UpdateRole(ctx context.Context, id uint, roleID int) error {
	return GetDB(ctx, r.db).Model(&model.User{}).Where("id = ?", id).Update("role_id", roleID).Error
}

func (r *userRepository) LogRoleChange(ctx context.Context, entry *model.UserRoleAudit) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

package repository

import (
	"context"

	"mailflow/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PermissionRepository reads the role -> permission grant table.
type PermissionRepository interface {
	ListGrants(ctx context.Context) ([]model.RolePermission, error)
	EnsureDefaults(ctx context.Context, grants []model.RolePermission) error
}

type permissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) PermissionRepository {
	return &permissionRepository{db: db}
}

func (r *permissionRepository) ListGrants(ctx context.Context) ([]model.RolePermission, error) {
	var grants []model.RolePermission
	if err := GetDB(ctx, r.db).Order("role asc, permission_code asc").Find(&grants).Error; err != nil {
		return nil, err
	}
	return grants, nil
}

// EnsureDefaults inserts the given grants when the table is empty. Existing
// grants are never touched.
func (r *permissionRepository) EnsureDefaults(ctx context.Context, grants []model.RolePermission) error {
	db := GetDB(ctx, r.db)

	var count int64
	if err := db.Model(&model.RolePermission{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 || len(grants) == 0 {
		return nil
	}

	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&grants).Error
}

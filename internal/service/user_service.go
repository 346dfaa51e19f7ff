package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"mailflow/internal/model"
	"mailflow/internal/rbac"
	"mailflow/internal/repository"
	"mailflow/pkg/apperror"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DTOs for Request validation
type ChangeRoleRequest struct {
	RoleID int    `json:"role_id" binding:"required,min=1,max=10"`
	Reason string `json:"reason"`
}

// DTO for returning User
type UserResponse struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	RoleID    int    `json:"role_id"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// UserService defines the interface for business logic related to User
type UserService interface {
	ChangeRole(ctx context.Context, actor rbac.Actor, userID uint, req ChangeRoleRequest) (*UserResponse, error)
}

type userService struct {
	tx     repository.TransactionManager
	repo   repository.UserRepository
	logger *zap.Logger
}

// NewUserService returns a new instance of UserService
func NewUserService(tx repository.TransactionManager, repo repository.UserRepository, logger *zap.Logger) UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &userService{tx: tx, repo: repo, logger: logger}
}

// Helper: parse model to standard json API response
func toUserResponse(u *model.User) *UserResponse {
	return &UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		RoleID:    u.RoleID,
		Role:      rbac.RoleName(u.RoleID),
		CreatedAt: u.CreatedAt.Format("2006-01-02 15:04:05"),
		UpdatedAt: u.UpdatedAt.Format("2006-01-02 15:04:05"),
	}
}

// ChangeRole reassigns a user's role and writes the role audit row in the
// same transaction. Setting the current role again is a no-op.
func (s *userService) ChangeRole(ctx context.Context, actor rbac.Actor, userID uint, req ChangeRoleRequest) (*UserResponse, error) {
	var user *model.User
	changed := false

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		found, err := s.repo.GetByIDForUpdate(txCtx, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.NotFound("user", userID)
			}
			return fmt.Errorf("failed to load user: %w", err)
		}
		user = found
		if found.RoleID == req.RoleID {
			return nil
		}

		oldRole, newRole := found.RoleID, req.RoleID
		if err := s.repo.UpdateRole(txCtx, userID, newRole); err != nil {
			return fmt.Errorf("failed to update role: %w", err)
		}

		meta, _ := json.Marshal(map[string]interface{}{
			"old_role": rbac.RoleName(oldRole),
			"new_role": rbac.RoleName(newRole),
			"reason":   req.Reason,
			"ip":       actor.ClientIP,
		})
		if err := s.repo.LogRoleChange(txCtx, &model.UserRoleAudit{
			ActorUserID:  actor.UserID(),
			TargetUserID: userID,
			Action:       model.ActionChangeRole,
			OldRoleID:    &oldRole,
			NewRoleID:    &newRole,
			Metadata:     string(meta),
		}); err != nil {
			return fmt.Errorf("failed to write role audit: %w", err)
		}

		user.RoleID = newRole
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.logger.Info("user role changed",
			zap.Uint("target_user_id", userID),
			zap.Int("role_id", req.RoleID),
			zap.Uint("actor_id", actor.ID),
		)
	}
	return toUserResponse(user), nil
}

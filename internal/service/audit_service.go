package service

import (
	"context"
	"fmt"

	"mailflow/internal/model"
	"mailflow/internal/repository"
)

type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     *uint  `json:"user_id"`
	Username   string `json:"username"`
	Action     string `json:"action"`
	Module     string `json:"module"`
	EntityType string `json:"entity_type,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`
	Severity   string `json:"severity"`
	Success    bool   `json:"success"`
	IP         string `json:"ip"`
	Meta       string `json:"meta"`
	CreatedAt  string `json:"created_at"`
}

type AuditQuery struct {
	Action   string
	Severity string
	UserID   *uint
	Page     int
	Limit    int
}

type AuditService interface {
	RecordSecurityEvent(ctx context.Context, entry *model.AuditLog) error
	GetAuditLogs(ctx context.Context, query AuditQuery) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

// RecordSecurityEvent persists a security event. It satisfies rbac.SecurityAuditor.
func (s *auditService) RecordSecurityEvent(ctx context.Context, entry *model.AuditLog) error {
	if entry.Severity == "" {
		entry.Severity = model.SeverityInfo
	}
	if entry.Meta == "" {
		entry.Meta = "{}"
	}
	if err := s.repo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// GetAuditLogs lists audit entries newest first
func (s *auditService) GetAuditLogs(ctx context.Context, query AuditQuery) ([]AuditLogResponse, int64, error) {
	if query.Page <= 0 {
		query.Page = 1
	}
	if query.Limit <= 0 {
		query.Limit = 20
	}

	logs, total, err := s.repo.List(ctx, repository.AuditFilter{
		Action:   query.Action,
		Severity: query.Severity,
		UserID:   query.UserID,
	}, query.Page, query.Limit)
	if err != nil {
		return nil, 0, err
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		username := l.Username
		if username == "" {
			username = "System"
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     l.UserID,
			Username:   username,
			Action:     l.Action,
			Module:     l.Module,
			EntityType: l.EntityType,
			EntityID:   l.EntityID,
			Severity:   l.Severity,
			Success:    l.Success,
			IP:         l.IP,
			Meta:       l.Meta,
			CreatedAt:  l.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	return res, total, nil
}

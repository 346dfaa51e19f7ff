package rbac

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"mailflow/internal/metrics"
	"mailflow/internal/model"
	"mailflow/pkg/apperror"

	"go.uber.org/zap"
)

// AuthorizeService gates validate and archive on a mail's assigned service.
// Admin and coordination pass; any other role must operate within the
// mail's service.
func AuthorizeService(actor Actor, assignedService string) error {
	if IsWorkflowPrivileged(actor.RoleID) {
		return nil
	}

	required := NormalizeService(assignedService)
	if required == "" {
		return &apperror.ForbiddenError{RequiredService: apperror.NotApplicable}
	}

	expected, ok := ExpectedService(actor.RoleID)
	if !ok || NormalizeService(expected) != required {
		return &apperror.ForbiddenError{RequiredService: required}
	}
	return nil
}

// CanViewMail is the read scope for a single mail. It is wider than
// AuthorizeService: secretariat reads everything, and a personal
// assignment restricts the mail to its assignee.
func CanViewMail(actor Actor, mail model.IncomingMail) bool {
	if IsPrivileged(actor.RoleID) {
		return true
	}

	assignedTo := strings.TrimSpace(mail.AssignedTo)
	// legacy rows carry "admin" as a placeholder assignee
	if strings.EqualFold(assignedTo, RoleAdmin) {
		assignedTo = ""
	}
	if assignedTo != "" {
		mine := (actor.Username != "" && assignedTo == actor.Username) ||
			(actor.ID != 0 && assignedTo == strconv.FormatUint(uint64(actor.ID), 10))
		if !mine {
			return false
		}
	}

	expected, scoped := ExpectedService(actor.RoleID)
	svc := NormalizeService(mail.AssignedService)
	if svc != "" {
		return scoped && NormalizeService(expected) == svc
	}
	// unassigned mails stay hidden from service-scoped roles
	return !scoped
}

// SecurityAuditor persists security events raised by the guards.
type SecurityAuditor interface {
	RecordSecurityEvent(ctx context.Context, entry *model.AuditLog) error
}

// PermissionGuard answers permission-code checks against the load-once
// policy and audits every denial.
type PermissionGuard struct {
	policy  *Policy
	auditor SecurityAuditor
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewPermissionGuard(policy *Policy, auditor SecurityAuditor, logger *zap.Logger, m *metrics.Metrics) *PermissionGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PermissionGuard{policy: policy, auditor: auditor, logger: logger, metrics: m}
}

// Policy exposes the underlying read-only table.
func (g *PermissionGuard) Policy() *Policy {
	return g.policy
}

// Check returns nil when the actor's role holds code. On a miss it records a
// PERMISSION_DENIED audit entry before returning a ForbiddenError; a failing
// audit write is logged and does not change the outcome.
func (g *PermissionGuard) Check(ctx context.Context, actor Actor, code string) error {
	role := actor.RoleName()
	if g.policy.Allows(role, code) {
		return nil
	}

	g.metrics.ObservePermissionDenied(code)

	meta, _ := json.Marshal(map[string]string{"permission": code, "role": role})
	entry := &model.AuditLog{
		UserID:    actor.UserID(),
		Username:  actor.Username,
		Action:    model.ActionPermissionDenied,
		Module:    "rbac",
		Severity:  model.SeverityHigh,
		Success:   false,
		IP:        actor.ClientIP,
		UserAgent: actor.UserAgent,
		Meta:      string(meta),
	}
	if err := g.auditor.RecordSecurityEvent(ctx, entry); err != nil {
		g.logger.Error("failed to record permission denial",
			zap.String("permission", code),
			zap.Uint("user_id", actor.ID),
			zap.Error(err),
		)
	}

	return &apperror.ForbiddenError{Permission: code}
}

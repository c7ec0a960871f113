package audit

import (
	"context"
	"log/slog"
	"time"
)

// Logger writes the authorization audit trail: denials, grants, membership
// changes and subscription administration.
type Logger struct {
	logger *slog.Logger
}

// NewLogger creates an audit logger
func NewLogger(logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger}
}

func (al *Logger) log(ctx context.Context, businessID, userID, action, resource, resourceID, status, details string) {
	al.logger.Info("audit",
		slog.String("action", action),
		slog.String("resource", resource),
		slog.String("resource_id", resourceID),
		slog.String("business_id", businessID),
		slog.String("user_id", userID),
		slog.String("status", status),
		slog.String("details", details),
		slog.Time("timestamp", time.Now()),
	)
}

// LogDenied records a permission evaluator denial
func (al *Logger) LogDenied(ctx context.Context, businessID, userID, module, action string) {
	al.log(ctx, businessID, userID, "access_denied", module, "", "denied", action)
}

// LogGrant records a direct permission grant or revocation
func (al *Logger) LogGrant(ctx context.Context, businessID, actorID, membershipID, op string, count int) {
	al.log(ctx, businessID, actorID, op, "user_permission", membershipID, "applied", "")
}

// LogMembershipChange records invitations, status toggles and removals
func (al *Logger) LogMembershipChange(ctx context.Context, businessID, actorID, membershipID, op, status string) {
	al.log(ctx, businessID, actorID, op, "membership", membershipID, status, "")
}

// LogSubscriptionAdmin records activate/extend/deactivate operations
func (al *Logger) LogSubscriptionAdmin(ctx context.Context, businessID, actorID, op, details string) {
	al.log(ctx, businessID, actorID, op, "subscription", businessID, "applied", details)
}

// LogProvisioning records the outcome of a tenant provisioning attempt
func (al *Logger) LogProvisioning(ctx context.Context, businessID, ownerID, status string) {
	al.log(ctx, businessID, ownerID, "provision", "business", businessID, status, "")
}

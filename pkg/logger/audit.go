package logger

import (
	"context"
	"log/slog"
	"time"
)

// Audit categories.
const (
	AuditAuth    = "auth"
	AuditMFA     = "mfa"
	AuditAdmin   = "admin"
	AuditBilling = "billing"
	AuditAccount = "account"
)

// AuditEvent represents a security or billing audit record
type AuditEvent struct {
	Category      string
	EventType     string
	UserID        string
	ActorID       string // admin acting on UserID, if different
	IPAddress     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

type AuditLogger struct {
	logger *slog.Logger
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// Log writes event at info level when it succeeded and warn otherwise.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) {
	if al == nil || al.logger == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("audit_type", event.Category),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.ActorID != "" {
		attrs = append(attrs, slog.String("actor_id", event.ActorID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

func (al *AuditLogger) LogAuthAttempt(ctx context.Context, eventType, userID, ipAddress string, success bool, reason string) {
	al.Log(ctx, AuditEvent{
		Category:      AuditAuth,
		EventType:     eventType,
		UserID:        userID,
		IPAddress:     ipAddress,
		Success:       success,
		FailureReason: reason,
	})
}

func (al *AuditLogger) LogMFAEvent(ctx context.Context, eventType, userID string, success bool) {
	al.Log(ctx, AuditEvent{Category: AuditMFA, EventType: eventType, UserID: userID, Success: success})
}

func (al *AuditLogger) LogAdminAction(ctx context.Context, eventType, actorID, targetUserID string, metadata map[string]string) {
	al.Log(ctx, AuditEvent{
		Category:  AuditAdmin,
		EventType: eventType,
		UserID:    targetUserID,
		ActorID:   actorID,
		Success:   true,
		Metadata:  metadata,
	})
}

func (al *AuditLogger) LogBillingEvent(ctx context.Context, eventType, userID, paymentID string, success bool) {
	al.Log(ctx, AuditEvent{
		Category:  AuditBilling,
		EventType: eventType,
		UserID:    userID,
		Success:   success,
		Metadata:  map[string]string{"payment_id": paymentID},
	})
}

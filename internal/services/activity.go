package services

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/siteops-app/apiserver/internal/mq"
	"github.com/siteops-app/apiserver/types"
)

// ActivityStore is the persistence surface for the audit trail.
type ActivityStore interface {
	Append(ctx context.Context, entry types.ActivityLogEntry) (types.ActivityLogEntry, error)
	List(ctx context.Context, userID, offset, limit int) ([]types.ActivityLogEntry, error)
}

// ActivityLogger appends audit entries and mirrors them onto the event bus.
// Recording is strictly fire-and-forget: a failed append never fails the
// auth operation that triggered it.
type ActivityLogger struct {
	store ActivityStore
	bus   *mq.Bus
	log   *slog.Logger
}

func NewActivityLogger(store ActivityStore, bus *mq.Bus, log *slog.Logger) *ActivityLogger {
	return &ActivityLogger{store: store, bus: bus, log: log}
}

// Record appends one entry. Failures are logged and swallowed.
func (l *ActivityLogger) Record(ctx context.Context, userID int, action, details string, meta types.RequestMeta) {
	entry := types.ActivityLogEntry{
		UserID:    userID,
		Action:    action,
		Details:   details,
		IP:        meta.IP,
		UserAgent: meta.UserAgent,
	}

	saved, err := l.store.Append(ctx, entry)
	if err != nil {
		l.log.Error("append activity entry", "action", action, "user_id", userID, "error", err)
		return
	}

	if l.bus == nil {
		return
	}
	data, err := json.Marshal(saved)
	if err != nil {
		l.log.Error("marshal activity entry", "action", action, "error", err)
		return
	}
	if _, err := l.bus.Publish(ctx, mq.ChannelActivity, data, map[string]string{"action": action}); err != nil {
		l.log.Warn("publish activity entry", "action", action, "error", err)
	}
}

// List returns entries newest first. A zero userID lists across all users.
func (l *ActivityLogger) List(ctx context.Context, userID, offset, limit int) ([]types.ActivityLogEntry, error) {
	return l.store.List(ctx, userID, offset, limit)
}

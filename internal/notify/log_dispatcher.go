// Package notify delivers customer notifications.
package notify

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LogDispatcher writes each notification as a structured log line. A mail or push
// dispatcher can replace it behind the same service.Notifier interface.
type LogDispatcher struct {
	log *zap.Logger
}

func NewLogDispatcher(log *zap.Logger) *LogDispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogDispatcher{log: log.Named("notify")}
}

func (d *LogDispatcher) Notify(ctx context.Context, userID uuid.UUID, template string, data map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fields := make([]zap.Field, 0, len(data)+2)
	fields = append(fields, zap.String("user_id", userID.String()), zap.String("template", template))
	for k, v := range data {
		fields = append(fields, zap.Any(k, v))
	}
	d.log.Info("notification", fields...)
	return nil
}

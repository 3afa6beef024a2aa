package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes events to a zap logger.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, dest Destination, ev Event) error {
	fields := []zap.Field{
		zap.String("job_id", ev.JobID),
		zap.String("destination", dest.String()),
		zap.String("status", ev.Status),
	}
	switch {
	case ev.TimedOut:
		n.logger.Warn("job observation timed out", fields...)
	case ev.ErrorCode != "":
		fields = append(fields, zap.String("error_code", ev.ErrorCode), zap.String("error_message", ev.ErrorMessage))
		n.logger.Warn("job failed", fields...)
	default:
		if len(ev.Summary) > 0 {
			fields = append(fields, zap.ByteString("summary", ev.Summary))
		}
		n.logger.Info("job finished", fields...)
	}
	return nil
}

// Package notification delivers batch alerts to operators.
package notification

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel     `json:"level"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	RunID   string         `json:"run_id,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.L()
	}
	return &LogNotifier{log: log.Named("notify")}
}

func (n *LogNotifier) Send(_ context.Context, alert Alert) error {
	fields := []zap.Field{
		zap.String("level", string(alert.Level)),
		zap.String("title", alert.Title),
		zap.String("run_id", alert.RunID),
	}
	if len(alert.Fields) > 0 {
		fields = append(fields, zap.Any("fields", alert.Fields))
	}
	switch alert.Level {
	case AlertCritical:
		n.log.Error(alert.Message, fields...)
	case AlertWarning:
		n.log.Warn(alert.Message, fields...)
	default:
		n.log.Info(alert.Message, fields...)
	}
	return nil
}

// Multi sends every alert to all notifiers and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

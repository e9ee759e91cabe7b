// Package notification sends human-readable notices, such as a task being
// completed, through shoutrrr services.
package notification

import (
	"context"

	"github.com/tphakala/audio-annotator/internal/logger"
)

// Notification is a message for a push service
type Notification struct {
	Title   string
	Message string
}

// Provider delivers notifications
type Provider interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// GetLogger returns the package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("notification")
}

// Package mqtt publishes annotation changes and task saves to an MQTT broker.
package mqtt

import (
	"context"
	"time"

	"github.com/tphakala/audio-annotator/internal/logger"
)

// Client is the broker connection used by the publisher
type Client interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, payload []byte) error
	IsConnected() bool
	Disconnect()
}

// Config holds connection settings
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// Topic is the prefix every message is published under
	Topic  string
	QoS    byte
	Retain bool

	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a Config with the default timeouts
func DefaultConfig() Config {
	return Config{
		Topic:             "annotator",
		QoS:               1,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Topic == "" {
		c.Topic = d.Topic
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = d.PublishTimeout
	}
	if c.DisconnectTimeout <= 0 {
		c.DisconnectTimeout = d.DisconnectTimeout
	}
	if c.QoS > 2 {
		c.QoS = 2
	}
}

// GetLogger returns the package logger
func GetLogger() logger.Logger {
	return logger.Global().Module("mqtt")
}

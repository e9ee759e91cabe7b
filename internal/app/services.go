// Package app assembles the side services shared by the commands: the
// metrics registry, the event bus and its MQTT and notification consumers.
package app

import (
	"context"
	"time"

	"github.com/tphakala/audio-annotator/internal/conf"
	"github.com/tphakala/audio-annotator/internal/errors"
	"github.com/tphakala/audio-annotator/internal/events"
	"github.com/tphakala/audio-annotator/internal/logger"
	"github.com/tphakala/audio-annotator/internal/mqtt"
	"github.com/tphakala/audio-annotator/internal/notification"
	"github.com/tphakala/audio-annotator/internal/observability"
	"github.com/tphakala/audio-annotator/internal/observability/metrics"
)

const notificationTimeout = 15 * time.Second

// Services holds the running side services
type Services struct {
	Metrics *observability.Metrics
	Bus     *events.Bus

	mqttClient mqtt.Client
	log        logger.Logger
}

// newMQTTClient is replaced in tests
var newMQTTClient = mqtt.NewClient

// NewServices creates the metrics registry and the event bus and registers
// the consumers enabled in settings. A broker that cannot be reached is
// logged and retried by the client; it does not fail startup.
func NewServices(ctx context.Context, settings *conf.Settings) (*Services, error) {
	log := logger.Global().Module("app")

	m, err := observability.NewMetrics()
	if err != nil {
		return nil, errors.New(err).
			Component("app").
			Category(errors.CategorySystem).
			Build()
	}

	s := &Services{
		Metrics: m,
		Bus:     events.New(events.DefaultConfig()),
		log:     log,
	}

	if err := s.Bus.RegisterConsumer(MetricsConsumer(m.Annotator)); err != nil {
		return nil, err
	}

	if settings.MQTT.Enabled {
		if err := s.startMQTT(ctx, &settings.MQTT); err != nil {
			_ = s.Close(time.Second)
			return nil, err
		}
	}

	if settings.Notification.Enabled {
		provider, err := notification.NewShoutrrrProvider(settings.Notification.URLs, notificationTimeout)
		if err != nil {
			_ = s.Close(time.Second)
			return nil, err
		}
		notifier := notification.NewTaskCompletedNotifier(provider, notification.DefaultSuppressWindow)
		if err := s.Bus.RegisterConsumer(notifier); err != nil {
			_ = s.Close(time.Second)
			return nil, err
		}
		log.Info("task completion notifications enabled", logger.Int("services", len(settings.Notification.URLs)))
	}

	return s, nil
}

func (s *Services) startMQTT(ctx context.Context, settings *conf.MQTTSettings) error {
	cfg := mqtt.DefaultConfig()
	cfg.Broker = settings.Broker
	cfg.ClientID = settings.ClientID
	cfg.Username = settings.Username
	cfg.Password = settings.Password
	if settings.Topic != "" {
		cfg.Topic = settings.Topic
	}
	if settings.QoS >= 0 && settings.QoS <= 2 {
		cfg.QoS = byte(settings.QoS)
	}

	client, err := newMQTTClient(cfg, s.Metrics.MQTT)
	if err != nil {
		return err
	}
	if err := client.Connect(ctx); err != nil {
		s.log.Warn("mqtt broker not reachable, publishing will retry",
			logger.String("broker", settings.Broker),
			logger.Error(err))
	}
	s.mqttClient = client

	return s.Bus.RegisterConsumer(mqtt.NewPublisher(client, cfg.Topic, cfg.PublishTimeout))
}

// TryPublish forwards an event to the bus without blocking. It reports
// false once the bus is closed or full.
func (s *Services) TryPublish(e events.Event) bool {
	return s.Bus.TryPublish(e)
}

// Close drains the bus and disconnects from the broker
func (s *Services) Close(timeout time.Duration) error {
	err := s.Bus.Shutdown(timeout)
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	return err
}

// MetricsConsumer updates annotator metrics from bus events
func MetricsConsumer(m *metrics.AnnotatorMetrics) events.Consumer {
	return events.ConsumerFunc{
		ConsumerName: "metrics",
		Fn: func(e events.Event) error {
			switch ev := e.(type) {
			case events.AnnotationsChanged:
				m.ObserveAnnotations(ev.Records)
			case events.TaskLoaded:
				m.ObserveHydration(ev.Hydrated, ev.Skipped)
			case events.TaskSaved:
				m.ObserveSave(ev.Status, ev.Withheld)
			}
			return nil
		},
	}
}

// conf/validate.go

package conf

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	validators := []func(*Settings) error{
		validateLoggingSettings,
		validateRemoteSettings,
		validateDeletionSettings,
		validateWebServerSettings,
		validateOutputSettings,
		validateMQTTSettings,
		validateMetricsSettings,
		validateSentrySettings,
		validateNotificationSettings,
		validateSuggestSettings,
	}

	for _, validate := range validators {
		if err := validate(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateLoggingSettings(settings *Settings) error {
	switch strings.ToLower(settings.Logging.DefaultLevel) {
	case "", "trace", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging: unknown level %q", settings.Logging.DefaultLevel)
	}
}

func validateRemoteSettings(settings *Settings) error {
	var errs []string

	u, err := url.Parse(settings.Remote.BaseURL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Sprintf("invalid base URL: %v", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Sprintf("base URL must use http or https, got %q", settings.Remote.BaseURL))
	case u.Host == "":
		errs = append(errs, "base URL must include a host")
	}

	if settings.Remote.Timeout <= 0 {
		errs = append(errs, "timeout must be greater than 0")
	}
	if settings.Remote.Retries < 0 {
		errs = append(errs, "retries must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("remote: %s", strings.Join(errs, ", "))
	}
	return nil
}

func validateDeletionSettings(settings *Settings) error {
	var errs []string
	d := settings.Deletion

	if d.QueueSize < 1 {
		errs = append(errs, "queue size must be at least 1")
	}
	if d.Workers < 1 {
		errs = append(errs, "workers must be at least 1")
	}
	if d.RateLimit <= 0 {
		errs = append(errs, "rate limit must be greater than 0")
	}
	if d.Burst < 1 {
		errs = append(errs, "burst must be at least 1")
	}
	if d.DedupeTTL <= 0 {
		errs = append(errs, "dedupe TTL must be greater than 0")
	}

	if len(errs) > 0 {
		return fmt.Errorf("deletion: %s", strings.Join(errs, ", "))
	}
	return nil
}

func validateWebServerSettings(settings *Settings) error {
	if settings.WebServer.Listen == "" {
		return fmt.Errorf("webserver: listen address is required")
	}
	return nil
}

func validateOutputSettings(settings *Settings) error {
	sqlite, mysql := settings.Output.SQLite, settings.Output.MySQL

	switch {
	case sqlite.Enabled && mysql.Enabled:
		return fmt.Errorf("output: sqlite and mysql cannot both be enabled")
	case sqlite.Enabled && sqlite.Path == "":
		return fmt.Errorf("output: sqlite path is required")
	case mysql.Enabled && (mysql.Host == "" || mysql.Database == ""):
		return fmt.Errorf("output: mysql host and database are required")
	}
	return nil
}

func validateMQTTSettings(settings *Settings) error {
	if !settings.MQTT.Enabled {
		return nil
	}
	if settings.MQTT.Broker == "" {
		return fmt.Errorf("mqtt: broker URL is required when enabled")
	}
	if settings.MQTT.Topic == "" {
		return fmt.Errorf("mqtt: topic is required when enabled")
	}
	if settings.MQTT.QoS < 0 || settings.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt: QoS must be 0, 1 or 2, got %d", settings.MQTT.QoS)
	}
	return nil
}

func validateMetricsSettings(settings *Settings) error {
	if settings.Metrics.Enabled && settings.Metrics.Listen == "" {
		return fmt.Errorf("metrics: listen address is required when enabled")
	}
	return nil
}

func validateSentrySettings(settings *Settings) error {
	if !settings.Sentry.Enabled {
		return nil
	}
	if settings.Sentry.DSN == "" {
		return fmt.Errorf("sentry: DSN is required when enabled")
	}
	if settings.Sentry.SampleRate < 0 || settings.Sentry.SampleRate > 1 {
		return fmt.Errorf("sentry: sample rate must be between 0 and 1")
	}
	return nil
}

func validateNotificationSettings(settings *Settings) error {
	if settings.Notification.Enabled && len(settings.Notification.URLs) == 0 {
		return fmt.Errorf("notification: at least one URL is required when enabled")
	}
	return nil
}

func validateSuggestSettings(settings *Settings) error {
	if settings.Suggest.Threshold < 0 || settings.Suggest.Threshold > 1 {
		return fmt.Errorf("suggest: threshold must be between 0 and 1, got %g", settings.Suggest.Threshold)
	}
	if settings.Suggest.SilenceLabel == "" {
		return fmt.Errorf("suggest: silence label is required")
	}
	return nil
}

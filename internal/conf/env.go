// env.go - Environment variable configuration and validation
package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by the annotator
const EnvPrefix = "ANNOTATOR"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the explicitly validated environment variables.
// Every other key is still reachable through AutomaticEnv as ANNOTATOR_<SECTION>_<KEY>.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "ANNOTATOR_DEBUG", validateEnvBool},

		// Annotation store
		{"remote.baseurl", "ANNOTATOR_REMOTE_BASEURL", validateEnvURL},
		{"remote.retries", "ANNOTATOR_REMOTE_RETRIES", validateEnvNonNegativeInt},

		// Deletion coordinator
		{"deletion.workers", "ANNOTATOR_DELETION_WORKERS", validateEnvPositiveInt},
		{"deletion.queuesize", "ANNOTATOR_DELETION_QUEUESIZE", validateEnvPositiveInt},
		{"deletion.ratelimit", "ANNOTATOR_DELETION_RATELIMIT", validateEnvPositiveFloat},

		// Reference store
		{"webserver.listen", "ANNOTATOR_WEBSERVER_LISTEN", nil},
		{"output.sqlite.path", "ANNOTATOR_OUTPUT_SQLITE_PATH", nil},
		{"output.mysql.password", "ANNOTATOR_OUTPUT_MYSQL_PASSWORD", nil},

		// Integrations
		{"mqtt.enabled", "ANNOTATOR_MQTT_ENABLED", validateEnvBool},
		{"mqtt.broker", "ANNOTATOR_MQTT_BROKER", validateEnvURL},
		{"mqtt.password", "ANNOTATOR_MQTT_PASSWORD", nil},
		{"sentry.enabled", "ANNOTATOR_SENTRY_ENABLED", validateEnvBool},
		{"sentry.dsn", "ANNOTATOR_SENTRY_DSN", validateEnvURL},
		{"suggest.threshold", "ANNOTATOR_SUGGEST_THRESHOLD", validateEnvThreshold},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("Invalid %s value: %v", binding.EnvVar, err))
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("URL must include scheme and host")
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1, got %d", n)
	}
	return nil
}

func validateEnvNonNegativeInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be an integer")
	}
	if n < 0 {
		return fmt.Errorf("must not be negative, got %d", n)
	}
	return nil
}

func validateEnvPositiveFloat(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if f <= 0 {
		return fmt.Errorf("must be greater than 0, got %g", f)
	}
	return nil
}

func validateEnvThreshold(value string) error {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("must be a number")
	}
	if f < 0 || f > 1 {
		return fmt.Errorf("must be between 0 and 1, got %g", f)
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables() error {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	return bindEnvVars()
}

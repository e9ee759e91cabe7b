// config.go: settings struct for the annotator and the functions that load and save it.
package conf

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/audio-annotator/internal/logger"
)

//go:embed config.yaml
var configFiles embed.FS

// RemoteSettings points the workspace at the annotation store
type RemoteSettings struct {
	BaseURL   string        // annotation store root, e.g. http://localhost:8000/api
	Timeout   time.Duration // per request timeout
	UserAgent string        // sent with every request
	Retries   int           // retry attempts for reads
}

// DeletionSettings tunes the queued deletion coordinator
type DeletionSettings struct {
	QueueSize int           // pending remote deletes before new ones are dropped
	Workers   int           // concurrent remote delete workers
	RateLimit float64       // remote deletes per second
	Burst     int           // rate limiter burst
	DedupeTTL time.Duration // how long a handled annotation id is remembered
}

// WebServerSettings configures the reference store HTTP API
type WebServerSettings struct {
	Debug  bool   // true to enable request debug logging
	Listen string // address and port to listen on
	// MediaURL prefixes stored audio file names to build audio_url
	MediaURL string
}

// SQLiteSettings configures the sqlite backend
type SQLiteSettings struct {
	Enabled bool   // true to use sqlite
	Path    string // path to the database file
}

// MySQLSettings configures the mysql backend
type MySQLSettings struct {
	Enabled  bool
	Username string
	Password string
	Host     string
	Port     string
	Database string
}

// MQTTSettings configures change notifications over MQTT
type MQTTSettings struct {
	Enabled  bool   // true to publish annotation changes
	Broker   string // tcp://host:port
	Topic    string // base topic
	Username string
	Password string
	ClientID string
	QoS      int
}

// MetricsSettings configures the Prometheus endpoint
type MetricsSettings struct {
	Enabled bool   // true to expose /metrics
	Listen  string // address and port to listen on
}

// SentrySettings configures error reporting
type SentrySettings struct {
	Enabled     bool
	DSN         string
	Environment string
	SampleRate  float64
}

// NotificationSettings configures push notices sent when a task is completed
type NotificationSettings struct {
	Enabled bool
	URLs    []string // shoutrrr service URLs
}

// SuggestSettings configures conversion of model predictions into suggestions
type SuggestSettings struct {
	Threshold    float64 // predictions below this confidence become silence
	SilenceLabel string  // label assigned to low-confidence chunks
}

// Settings contains all configuration options for the annotator
type Settings struct {
	Debug bool // true to enable debug mode

	// Runtime values, not stored in config file
	Version   string `yaml:"-"`
	BuildDate string `yaml:"-"`

	Main struct {
		Name string // instance name, added to MQTT payloads and notifications
	}

	Logging logger.LoggingConfig // centralized logging configuration

	Remote    RemoteSettings
	Deletion  DeletionSettings
	WebServer WebServerSettings

	Output struct {
		SQLite SQLiteSettings
		MySQL  MySQLSettings
	}

	MQTT         MQTTSettings
	Metrics      MetricsSettings
	Sentry       SentrySettings
	Notification NotificationSettings
	Suggest      SuggestSettings
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
	once             sync.Once
)

// Load reads the configuration into a new Settings instance. An empty
// configFile searches the default paths and writes the embedded defaults
// when no config file exists yet.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper resets viper, applies defaults and environment bindings and reads the config file.
func initViper(configFile string) error {
	viper.Reset()
	viper.SetConfigType("yaml")

	setDefaultConfig()

	if err := configureEnvironmentVariables(); err != nil {
		// Bad values are reported but do not block startup, validation catches the rest
		GetLogger().Warn("environment configuration issues", logger.Error(err))
	}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	err = viper.ReadInConfig()
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return createDefaultConfig(configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded config to dir and reads it back
func createDefaultConfig(dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	defaultConfig, err := getDefaultConfig()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, defaultConfig, 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	GetLogger().Info("created default config file", logger.String("path", configPath))
	viper.SetConfigFile(configPath)
	return viper.ReadInConfig()
}

// getDefaultConfig reads the embedded config.yaml
func getDefaultConfig() ([]byte, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return nil, fmt.Errorf("error reading embedded config: %w", err)
	}
	return data, nil
}

// GetSettings returns the current settings instance
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// Setting returns the current settings instance, loading it from the default paths if necessary
func Setting() *Settings {
	once.Do(func() {
		if GetSettings() == nil {
			if _, err := Load(""); err != nil {
				GetLogger().Error("error loading settings", logger.Error(err))
			}
		}
	})
	return GetSettings()
}

// SaveYAMLConfig writes settings to configPath. It overwrites the existing
// file and does not preserve comments.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName) //nolint:errcheck // already renamed on success

	if _, err := tempFile.Write(yamlData); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	// Rename fails across devices, moveFile falls back to copy and delete
	if err := moveFile(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}

	return nil
}

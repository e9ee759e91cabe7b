// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/audio-annotator/internal/logger"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "audio-annotator")

	viper.SetDefault("logging.default_level", logger.DefaultLogLevel)
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	viper.SetDefault("logging.console.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	viper.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	viper.SetDefault("logging.file_output.level", logger.DefaultLogLevel)

	viper.SetDefault("remote.baseurl", "http://localhost:8000/api")
	viper.SetDefault("remote.timeout", 15*time.Second)
	viper.SetDefault("remote.useragent", "audio-annotator")
	viper.SetDefault("remote.retries", 2)

	viper.SetDefault("deletion.queuesize", 64)
	viper.SetDefault("deletion.workers", 2)
	viper.SetDefault("deletion.ratelimit", 5.0)
	viper.SetDefault("deletion.burst", 5)
	viper.SetDefault("deletion.dedupettl", 10*time.Minute)

	viper.SetDefault("webserver.debug", false)
	viper.SetDefault("webserver.listen", "localhost:8000")
	viper.SetDefault("webserver.mediaurl", "http://localhost:8000/media/")

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "annotations.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "annotator")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")
	viper.SetDefault("output.mysql.database", "annotator")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "annotator")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.clientid", "audio-annotator")
	viper.SetDefault("mqtt.qos", 1)

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.listen", "localhost:8090")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")
	viper.SetDefault("sentry.samplerate", 1.0)

	viper.SetDefault("notification.enabled", false)
	viper.SetDefault("notification.urls", []string{})

	viper.SetDefault("suggest.threshold", 0.5)
	viper.SetDefault("suggest.silencelabel", "silence")
}

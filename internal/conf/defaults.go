// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers default values on v.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("log.default_level", "info")
	v.SetDefault("log.timezone", "Local")
	v.SetDefault("log.console.enabled", true)
	v.SetDefault("log.console.level", "info")
	v.SetDefault("log.file_output.enabled", false)
	v.SetDefault("log.file_output.path", "logs/threshcorder.log")
	v.SetDefault("log.file_output.level", "info")

	v.SetDefault("device.backend", "malgo")
	v.SetDefault("device.name", "sysdefault")
	v.SetDefault("device.sample_rate", 44100)
	v.SetDefault("device.channels", 1)
	v.SetDefault("device.format", "s16le")
	v.SetDefault("device.period", 250*time.Millisecond)
	v.SetDefault("device.read_timeout_periods", 8)
	v.SetDefault("device.replay_file", "")
	v.SetDefault("device.replay_realtime", false)

	v.SetDefault("detector.method", "rms")
	v.SetDefault("detector.unit", "linear")
	v.SetDefault("detector.threshold", 0.05)
	v.SetDefault("detector.hysteresis", 0.01)
	v.SetDefault("detector.window", 250*time.Millisecond)
	v.SetDefault("detector.smoothing", 1.0)

	v.SetDefault("trigger.pre_roll", 1*time.Second)
	v.SetDefault("trigger.hold", 250*time.Millisecond)
	v.SetDefault("trigger.silence", 5*time.Second)

	v.SetDefault("buffer.jitter_periods", 8)
	v.SetDefault("buffer.overflow", "drop-oldest")
	v.SetDefault("buffer.handoff_size", 256)

	v.SetDefault("output.directory", "recordings")
	v.SetDefault("output.template", DefaultFileTemplate)
	v.SetDefault("output.container", "wav")
	v.SetDefault("output.overwrite", false)
	v.SetDefault("output.batch_bytes", 64*1024)
	v.SetDefault("output.flush_interval", 1*time.Second)
	v.SetDefault("output.min_free_mb", 100)
	v.SetDefault("output.retention.enabled", false)
	v.SetDefault("output.retention.max_age", 30*24*time.Hour)
	v.SetDefault("output.retention.max_usage_percent", 90.0)
	v.SetDefault("output.retention.min_episodes", 10)

	v.SetDefault("catalog.enabled", false)
	v.SetDefault("catalog.driver", "sqlite")
	v.SetDefault("catalog.sqlite.path", "threshcorder.db")
	v.SetDefault("catalog.mysql.host", "localhost")
	v.SetDefault("catalog.mysql.port", 3306)
	v.SetDefault("catalog.mysql.username", "")
	v.SetDefault("catalog.mysql.password", "")
	v.SetDefault("catalog.mysql.password_file", "")
	v.SetDefault("catalog.mysql.database", AppName)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.topic", AppName)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.password_file", "")
	v.SetDefault("mqtt.retain", false)
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.endpoint", "")
	v.SetDefault("archive.region", "us-east-1")
	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", AppName+"/")
	v.SetDefault("archive.access_key_id", "")
	v.SetDefault("archive.secret_access_key", "")
	v.SetDefault("archive.secret_access_key_file", "")

	v.SetDefault("web.enabled", false)
	v.SetDefault("web.listen", "127.0.0.1:8090")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.sentry_dsn", "")
}

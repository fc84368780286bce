// Package conf loads, validates and exposes threshcorder settings.
package conf

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/threshcorder/internal/errors"
	"github.com/tphakala/threshcorder/internal/logger"
	"github.com/tphakala/threshcorder/internal/secrets"
)

//go:embed config.yaml
var configFiles embed.FS

// Settings is the root of the configuration tree.
type Settings struct {
	Debug bool `mapstructure:"debug" yaml:"debug"`

	Logging   logger.LoggingConfig `mapstructure:"log" yaml:"log"`
	Device    DeviceSettings       `mapstructure:"device" yaml:"device"`
	Detector  DetectorSettings     `mapstructure:"detector" yaml:"detector"`
	Trigger   TriggerSettings      `mapstructure:"trigger" yaml:"trigger"`
	Buffer    BufferSettings       `mapstructure:"buffer" yaml:"buffer"`
	Output    OutputSettings       `mapstructure:"output" yaml:"output"`
	Catalog   CatalogSettings      `mapstructure:"catalog" yaml:"catalog"`
	MQTT      MQTTSettings         `mapstructure:"mqtt" yaml:"mqtt"`
	Archive   ArchiveSettings      `mapstructure:"archive" yaml:"archive"`
	Web       WebSettings          `mapstructure:"web" yaml:"web"`
	Telemetry TelemetrySettings    `mapstructure:"telemetry" yaml:"telemetry"`
}

// DeviceSettings selects and configures the capture device.
type DeviceSettings struct {
	Backend      string        `mapstructure:"backend" yaml:"backend" validate:"required"`                        // malgo, replay or portaudio
	Name         string        `mapstructure:"name" yaml:"name"`                                                  // device name, ALSA id or "sysdefault"
	SampleRate   int           `mapstructure:"sample_rate" yaml:"sample_rate" validate:"gte=8000,lte=384000"`     // Hz
	Channels     int           `mapstructure:"channels" yaml:"channels" validate:"gte=1,lte=32"`                  // interleaved channel count
	Format       string        `mapstructure:"format" yaml:"format" validate:"oneof=s16le s24le s32le"`           // sample format
	Period       time.Duration `mapstructure:"period" yaml:"period" validate:"gte=1ms,lte=2s"`                    // one device read
	ReadTimeout  int           `mapstructure:"read_timeout_periods" yaml:"read_timeout_periods" validate:"gte=2"` // periods without data before the device counts as gone
	ReplayFile   string        `mapstructure:"replay_file" yaml:"replay_file"`                                    // WAV file for the replay backend
	ReplayPacing bool          `mapstructure:"replay_realtime" yaml:"replay_realtime"`                            // pace replay at wall-clock speed
}

// DetectorSettings configures the level detector.
type DetectorSettings struct {
	Method     string        `mapstructure:"method" yaml:"method" validate:"oneof=rms peak"`
	Unit       string        `mapstructure:"unit" yaml:"unit" validate:"oneof=linear dbfs"`
	Threshold  float64       `mapstructure:"threshold" yaml:"threshold"`
	Hysteresis float64       `mapstructure:"hysteresis" yaml:"hysteresis" validate:"gte=0"`
	Window     time.Duration `mapstructure:"window" yaml:"window" validate:"gte=1ms"`
	Smoothing  float64       `mapstructure:"smoothing" yaml:"smoothing" validate:"gt=0,lte=1"`
}

// TriggerSettings configures the capture state machine.
type TriggerSettings struct {
	PreRoll time.Duration `mapstructure:"pre_roll" yaml:"pre_roll" validate:"gte=0"`
	Hold    time.Duration `mapstructure:"hold" yaml:"hold" validate:"gte=0"`
	Silence time.Duration `mapstructure:"silence" yaml:"silence" validate:"gte=0"`
}

// BufferSettings sizes the inter-stage buffers.
type BufferSettings struct {
	JitterPeriods int    `mapstructure:"jitter_periods" yaml:"jitter_periods" validate:"gte=2,lte=1024"`
	Overflow      string `mapstructure:"overflow" yaml:"overflow" validate:"oneof=drop-oldest drop-newest"`
	HandoffSize   int    `mapstructure:"handoff_size" yaml:"handoff_size" validate:"gte=8"`
}

// OutputSettings configures episode files.
type OutputSettings struct {
	Directory     string            `mapstructure:"directory" yaml:"directory" validate:"required"`
	Template      string            `mapstructure:"template" yaml:"template" validate:"required"`
	Container     string            `mapstructure:"container" yaml:"container" validate:"oneof=wav raw"`
	Overwrite     bool              `mapstructure:"overwrite" yaml:"overwrite"`
	BatchBytes    int               `mapstructure:"batch_bytes" yaml:"batch_bytes" validate:"gte=4096"`
	FlushInterval time.Duration     `mapstructure:"flush_interval" yaml:"flush_interval" validate:"gt=0"`
	MinFreeMB     uint64            `mapstructure:"min_free_mb" yaml:"min_free_mb"`
	Retention     RetentionSettings `mapstructure:"retention" yaml:"retention"`
}

// RetentionSettings controls pruning of old episode files.
type RetentionSettings struct {
	Enabled     bool          `mapstructure:"enabled" yaml:"enabled"`
	MaxAge      time.Duration `mapstructure:"max_age" yaml:"max_age" validate:"gte=0"`
	MaxUsage    float64       `mapstructure:"max_usage_percent" yaml:"max_usage_percent" validate:"gte=0,lte=100"`
	MinEpisodes int           `mapstructure:"min_episodes" yaml:"min_episodes" validate:"gte=0"`
}

// CatalogSettings configures the episode catalogue database.
type CatalogSettings struct {
	Enabled bool          `mapstructure:"enabled" yaml:"enabled"`
	Driver  string        `mapstructure:"driver" yaml:"driver" validate:"oneof=sqlite mysql"`
	SQLite  SQLiteConfig  `mapstructure:"sqlite" yaml:"sqlite"`
	MySQL   MySQLSettings `mapstructure:"mysql" yaml:"mysql"`
}

// SQLiteConfig points at the sqlite database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// MySQLSettings holds MySQL connection parameters.
type MySQLSettings struct {
	Host         string `mapstructure:"host" yaml:"host"`
	Port         int    `mapstructure:"port" yaml:"port"`
	Username     string `mapstructure:"username" yaml:"username"`
	Password     string `mapstructure:"password" yaml:"password"`
	PasswordFile string `mapstructure:"password_file" yaml:"password_file"`
	Database     string `mapstructure:"database" yaml:"database"`
}

// MQTTSettings configures episode notifications.
type MQTTSettings struct {
	Enabled      bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker       string `mapstructure:"broker" yaml:"broker"`
	Topic        string `mapstructure:"topic" yaml:"topic"`
	Username     string `mapstructure:"username" yaml:"username"`
	Password     string `mapstructure:"password" yaml:"password"`
	PasswordFile string `mapstructure:"password_file" yaml:"password_file"`
	Retain       bool   `mapstructure:"retain" yaml:"retain"`
	QoS          byte   `mapstructure:"qos" yaml:"qos" validate:"lte=2"`
}

// ArchiveSettings configures upload of finalized episodes to S3-compatible storage.
type ArchiveSettings struct {
	Enabled             bool   `mapstructure:"enabled" yaml:"enabled"`
	Endpoint            string `mapstructure:"endpoint" yaml:"endpoint"`
	Region              string `mapstructure:"region" yaml:"region"`
	Bucket              string `mapstructure:"bucket" yaml:"bucket"`
	Prefix              string `mapstructure:"prefix" yaml:"prefix"`
	AccessKeyID         string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey     string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	SecretAccessKeyFile string `mapstructure:"secret_access_key_file" yaml:"secret_access_key_file"`
}

// WebSettings configures the status HTTP server.
type WebSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// TelemetrySettings configures opt-in error reporting.
type TelemetrySettings struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	SentryDSN string `mapstructure:"sentry_dsn" yaml:"sentry_dsn"`
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads the configuration file, environment variables and bound flags.
// An explicit configFile takes precedence over the default search paths.
func Load(configFile string) (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	v := viper.GetViper()
	if err := initViper(v, configFile); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	settings, err := decode(v)
	if err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// decode unmarshals and validates settings from v.
func decode(v *viper.Viper) (*Settings, error) {
	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal_config").
			Build()
	}

	if err := resolveSecrets(settings); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// resolveSecrets replaces credentials with the content of their *_file
// setting, or expands ${VAR} references in them.
func resolveSecrets(s *Settings) error {
	fields := []struct {
		key   string
		file  string
		value *string
	}{
		{"catalog.mysql.password", s.Catalog.MySQL.PasswordFile, &s.Catalog.MySQL.Password},
		{"mqtt.password", s.MQTT.PasswordFile, &s.MQTT.Password},
		{"archive.access_key_id", "", &s.Archive.AccessKeyID},
		{"archive.secret_access_key", s.Archive.SecretAccessKeyFile, &s.Archive.SecretAccessKey},
		{"telemetry.sentry_dsn", "", &s.Telemetry.SentryDSN},
	}
	for _, f := range fields {
		resolved, err := secrets.Resolve(f.file, *f.value)
		if err != nil {
			return errors.New(err).
				Category(errors.CategoryConfiguration).
				Context("setting", f.key).
				Build()
		}
		*f.value = resolved
	}
	return nil
}

// initViper sets defaults, binds the environment and reads the config file.
func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)

	if err := bindEnvVars(v); err != nil {
		return err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
		return nil
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	v.AddConfigPath(".")
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return createDefaultConfig(v, configPaths[0])
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// createDefaultConfig writes the embedded default config into dir and reads it back.
func createDefaultConfig(v *viper.Viper, dir string) error {
	configPath := filepath.Join(dir, "config.yaml")

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(getDefaultConfig()), 0o644); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}

	logger.Global().Module("conf").Info("created default config file", logger.String("path", configPath))
	return v.ReadInConfig()
}

// getDefaultConfig returns the embedded config.yaml.
func getDefaultConfig() string {
	data, err := configFiles.ReadFile("config.yaml")
	if err != nil {
		// The file is embedded at build time.
		panic(fmt.Sprintf("embedded config.yaml missing: %v", err))
	}
	return string(data)
}

// Setting returns the most recently loaded settings, or nil before Load.
func Setting() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// GetDefaultConfigPaths returns the directories searched for config.yaml.
// When one of them already holds a config file, only that directory is returned.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategorySystem).
			Context("operation", "get_home_directory").
			Build()
	}

	configPaths := []string{
		filepath.Join(homeDir, ".config", AppName),
		filepath.Join("/etc", AppName),
	}

	for _, path := range configPaths {
		if _, err := os.Stat(filepath.Join(path, "config.yaml")); err == nil {
			return []string{path}, nil
		}
	}

	return configPaths, nil
}

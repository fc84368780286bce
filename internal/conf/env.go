// env.go - Environment variable overrides for threshcorder settings
package conf

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the supported environment overrides
func getEnvBindings() []envBinding {
	return []envBinding{
		{"device.backend", EnvPrefix + "_DEVICE_BACKEND", nil},
		{"device.name", EnvPrefix + "_DEVICE_NAME", nil},
		{"device.sample_rate", EnvPrefix + "_DEVICE_SAMPLE_RATE", validateEnvPositiveInt},
		{"device.channels", EnvPrefix + "_DEVICE_CHANNELS", validateEnvPositiveInt},

		{"detector.threshold", EnvPrefix + "_DETECTOR_THRESHOLD", validateEnvFloat},
		{"detector.hysteresis", EnvPrefix + "_DETECTOR_HYSTERESIS", validateEnvFloat},

		{"output.directory", EnvPrefix + "_OUTPUT_DIRECTORY", nil},

		{"catalog.mysql.password", EnvPrefix + "_CATALOG_MYSQL_PASSWORD", nil},
		{"mqtt.password", EnvPrefix + "_MQTT_PASSWORD", nil},
		{"archive.access_key_id", EnvPrefix + "_ARCHIVE_ACCESS_KEY_ID", nil},
		{"archive.secret_access_key", EnvPrefix + "_ARCHIVE_SECRET_ACCESS_KEY", nil},
		{"telemetry.sentry_dsn", EnvPrefix + "_SENTRY_DSN", nil},
		{"debug", EnvPrefix + "_DEBUG", validateEnvBool},
	}
}

// bindEnvVars binds environment variables to config keys and validates set values
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if envValue := os.Getenv(binding.EnvVar); envValue != "" {
			if err := binding.Validate(envValue); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s value %q: %v", binding.EnvVar, envValue, err))
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

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

func validateEnvFloat(value string) error {
	if _, err := strconv.ParseFloat(value, 64); err != nil {
		return fmt.Errorf("must be a number")
	}
	return nil
}

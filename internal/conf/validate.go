// conf/validate.go

package conf

import (
	"fmt"
	"reflect"
	"strings"
	"text/template"

	"github.com/go-playground/validator/v10"

	"github.com/tphakala/threshcorder/internal/errors"
)

// dBFS floor used when the detector metric is expressed in decibels.
const MinDBFS = -120.0

// validate is the shared validator instance for settings validation.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report config keys rather than Go field names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation errors: %s", strings.Join(ve.Errors, "; "))
}

// ValidateSettings validates struct tags and cross-field constraints
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validate.Struct(settings); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				ve.Errors = append(ve.Errors, formatValidationMessage(fe))
			}
		} else {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	for _, check := range []func(*Settings) error{
		validateDeviceSettings,
		validateDetectorSettings,
		validateOutputSettings,
		validateCatalogSettings,
		validateIntegrationSettings,
	} {
		if err := check(settings); err != nil {
			ve.Errors = append(ve.Errors, err.Error())
		}
	}

	if len(ve.Errors) > 0 {
		return errors.New(ve).
			Category(errors.CategoryValidation).
			Context("operation", "validate_settings").
			Context("error_count", len(ve.Errors)).
			Build()
	}

	return nil
}

// formatValidationMessage renders a validator error with its config key path
func formatValidationMessage(fe validator.FieldError) string {
	// Namespace is "Settings.device.sample_rate"; drop the root type.
	key := fe.Namespace()
	if _, rest, ok := strings.Cut(key, "."); ok {
		key = rest
	}

	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", key)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", key, fe.Param())
	case "gte", "gt", "lte", "lt":
		return fmt.Sprintf("%s must be %s %s", key, fe.Tag(), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", key, fe.Tag())
	}
}

func validateDeviceSettings(s *Settings) error {
	switch s.Device.Backend {
	case "malgo", "portaudio":
	case "replay":
		if s.Device.ReplayFile == "" {
			return fmt.Errorf("device.replay_file is required for the replay backend (--replay-file)")
		}
	default:
		return fmt.Errorf("device.backend %q is not supported", s.Device.Backend)
	}
	return nil
}

func validateDetectorSettings(s *Settings) error {
	d := s.Detector
	switch d.Unit {
	case "linear":
		if d.Threshold <= 0 || d.Threshold > 1 {
			return fmt.Errorf("detector.threshold must be within (0, 1] for linear unit, got %g", d.Threshold)
		}
		if d.Threshold-d.Hysteresis < 0 {
			return fmt.Errorf("detector.hysteresis %g exceeds threshold %g", d.Hysteresis, d.Threshold)
		}
	case "dbfs":
		if d.Threshold < MinDBFS || d.Threshold > 0 {
			return fmt.Errorf("detector.threshold must be within [%g, 0] dBFS, got %g", MinDBFS, d.Threshold)
		}
	}
	return nil
}

func validateOutputSettings(s *Settings) error {
	if _, err := template.New("episode").Parse(s.Output.Template); err != nil {
		return fmt.Errorf("output.template is invalid: %w", err)
	}
	if s.Output.Retention.Enabled && s.Output.Retention.MaxAge == 0 && s.Output.Retention.MaxUsage == 0 {
		return fmt.Errorf("output.retention needs max_age or max_usage_percent when enabled")
	}
	return nil
}

func validateCatalogSettings(s *Settings) error {
	if !s.Catalog.Enabled {
		return nil
	}
	switch s.Catalog.Driver {
	case "sqlite":
		if s.Catalog.SQLite.Path == "" {
			return fmt.Errorf("catalog.sqlite.path is required")
		}
	case "mysql":
		m := s.Catalog.MySQL
		if m.Host == "" || m.Database == "" || m.Username == "" {
			return fmt.Errorf("catalog.mysql requires host, database and username")
		}
	}
	return nil
}

func validateIntegrationSettings(s *Settings) error {
	var errs []error
	if s.MQTT.Enabled && (s.MQTT.Broker == "" || s.MQTT.Topic == "") {
		errs = append(errs, fmt.Errorf("mqtt.broker and mqtt.topic are required when mqtt is enabled"))
	}
	if s.Archive.Enabled && s.Archive.Bucket == "" {
		errs = append(errs, fmt.Errorf("archive.bucket is required when archive is enabled"))
	}
	if s.Web.Enabled && s.Web.Listen == "" {
		errs = append(errs, fmt.Errorf("web.listen is required when web is enabled"))
	}
	if s.Telemetry.Enabled && s.Telemetry.SentryDSN == "" {
		errs = append(errs, fmt.Errorf("telemetry.sentry_dsn is required when telemetry is enabled"))
	}
	return errors.Join(errs...)
}

// conf/consts.go hard coded constants
package conf

const (
	AppName = "threshcorder"

	// EnvPrefix prefixes environment variable overrides, e.g. THRESHCORDER_DEVICE_NAME.
	EnvPrefix = "THRESHCORDER"

	// DefaultFileTemplate names episodes by local start time plus episode id.
	DefaultFileTemplate = `{{.Start.Format "2006-01-02_15-04-05"}}_{{printf "%06d" .ID}}.{{.Ext}}`
)

// Package export writes recording episodes to disk. A Writer consumes the
// episode lifecycle events of the trigger machine on its own goroutine and
// reports one Result per episode.
package export

import (
	"strings"
	"time"

	"github.com/tphakala/threshcorder/internal/errors"
)

const componentExport = "export"

// DefaultTemplate names files by local start time and episode ID.
const DefaultTemplate = `{{.Start.Format "2006-01-02_15-04-05"}}_{{printf "%06d" .ID}}.{{.Ext}}`

// Config configures episode output.
type Config struct {
	// Directory receives the episode files. It is created if missing.
	Directory string
	// Template is a text/template rendering the file name relative to
	// Directory. See NameData for the available fields.
	Template string
	// Container selects the file format: "wav" or "raw".
	Container string
	// Overwrite allows replacing existing files.
	Overwrite bool
	// BatchBytes is the amount of PCM staged before a write and fsync.
	BatchBytes int
	// FlushInterval bounds how long staged PCM may wait.
	FlushInterval time.Duration
	// MinFreeBytes skips an episode when the output volume has less
	// space left. Zero disables the check.
	MinFreeBytes uint64
	// ResultBuffer is the capacity of the results channel.
	ResultBuffer int
}

// DefaultConfig returns the default output settings.
func DefaultConfig() Config {
	return Config{
		Directory:     "recordings",
		Template:      DefaultTemplate,
		Container:     ContainerWAV,
		BatchBytes:    64 * 1024,
		FlushInterval: time.Second,
		ResultBuffer:  16,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Directory) == "":
		return errors.Newf("output directory is empty").
			Component(componentExport).
			Category(errors.CategoryValidation).
			Build()
	case strings.TrimSpace(c.Template) == "":
		return errors.Newf("output file name template is empty").
			Component(componentExport).
			Category(errors.CategoryValidation).
			Build()
	case c.BatchBytes <= 0:
		return errors.Newf("invalid write batch size: %d bytes", c.BatchBytes).
			Component(componentExport).
			Category(errors.CategoryValidation).
			Build()
	case c.FlushInterval <= 0:
		return errors.Newf("invalid flush interval: %v", c.FlushInterval).
			Component(componentExport).
			Category(errors.CategoryValidation).
			Context("flush_interval", c.FlushInterval.String()).
			Build()
	}
	if _, err := NewContainer(c.Container); err != nil {
		return err
	}
	return nil
}

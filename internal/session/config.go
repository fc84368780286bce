// Package session runs one capture session: the capture driver, the level
// detector and trigger machine on a processing goroutine, and the episode
// writer behind a bounded handoff queue.
package session

import (
	"fmt"
	"time"

	"github.com/tphakala/threshcorder/internal/audiocore"
	"github.com/tphakala/threshcorder/internal/audiocore/capture"
	"github.com/tphakala/threshcorder/internal/audiocore/export"
	"github.com/tphakala/threshcorder/internal/audiocore/level"
	"github.com/tphakala/threshcorder/internal/audiocore/ringbuffer"
	"github.com/tphakala/threshcorder/internal/audiocore/trigger"
	"github.com/tphakala/threshcorder/internal/conf"
	"github.com/tphakala/threshcorder/internal/errors"
)

const componentSession = "session"

// controlReserve is the handoff headroom kept for start and end events.
const controlReserve = 4

// Config is the immutable configuration of a session. Changing any of it
// requires a new session.
type Config struct {
	Backend  string
	Realtime bool // pace file-backed backends
	Device   capture.DeviceConfig

	JitterPeriods int
	Overflow      ringbuffer.Policy
	HandoffSize   int

	Detector level.Config
	Trigger  trigger.Config
	Output   export.Config
}

// Validate checks every stage's configuration.
func (c Config) Validate() error {
	if err := c.Device.Validate(); err != nil {
		return err
	}
	if err := c.Detector.Validate(); err != nil {
		return err
	}
	if err := c.Trigger.Validate(); err != nil {
		return err
	}
	if err := c.Output.Validate(); err != nil {
		return err
	}
	if c.HandoffSize < 1 {
		return errors.Newf("handoff queue size must be positive, got %d", c.HandoffSize).
			Component(componentSession).
			Category(errors.CategoryValidation).
			Build()
	}
	if c.Detector.Window < c.Device.Period() {
		return errors.Newf("analysis window %s is shorter than the device period %s",
			c.Detector.Window, c.Device.Period()).
			Component(componentSession).
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// FromSettings builds a session configuration from loaded settings.
func FromSettings(s *conf.Settings) (Config, error) {
	sample, err := audiocore.ParseSampleFormat(s.Device.Format)
	if err != nil {
		return Config{}, err
	}
	format := audiocore.Format{
		SampleRate: s.Device.SampleRate,
		Channels:   s.Device.Channels,
		Sample:     sample,
	}

	method, err := level.ParseMethod(s.Detector.Method)
	if err != nil {
		return Config{}, err
	}
	unit, err := level.ParseUnit(s.Detector.Unit)
	if err != nil {
		return Config{}, err
	}
	policy, err := ringbuffer.ParsePolicy(s.Buffer.Overflow)
	if err != nil {
		return Config{}, errors.New(err).
			Component(componentSession).
			Category(errors.CategoryConfiguration).
			Build()
	}

	name := s.Device.Name
	if s.Device.Backend == "replay" {
		name = s.Device.ReplayFile
	}

	periodFrames := format.FramesFor(s.Device.Period)
	if periodFrames < 1 {
		return Config{}, errors.New(fmt.Errorf("%w: period %s holds no sample frames at %d Hz",
			audiocore.ErrFormatUnsupported, s.Device.Period, format.SampleRate)).
			Component(componentSession).
			Category(errors.CategoryConfiguration).
			Build()
	}

	cfg := Config{
		Backend:  s.Device.Backend,
		Realtime: s.Device.ReplayPacing,
		Device: capture.DeviceConfig{
			Name:         name,
			Format:       format,
			PeriodFrames: periodFrames,
		},
		JitterPeriods: s.Buffer.JitterPeriods,
		Overflow:      policy,
		HandoffSize:   s.Buffer.HandoffSize,
		Detector: level.Config{
			Method:     method,
			Unit:       unit,
			Threshold:  s.Detector.Threshold,
			Hysteresis: s.Detector.Hysteresis,
			Window:     s.Detector.Window,
			Smoothing:  s.Detector.Smoothing,
		},
		Trigger: trigger.Config{
			PreRoll: s.Trigger.PreRoll,
			Hold:    s.Trigger.Hold,
			Silence: s.Trigger.Silence,
			FirstID: 1,
		},
		Output: export.Config{
			Directory:     s.Output.Directory,
			Template:      s.Output.Template,
			Container:     s.Output.Container,
			Overwrite:     s.Output.Overwrite,
			BatchBytes:    s.Output.BatchBytes,
			FlushInterval: s.Output.FlushInterval,
			MinFreeBytes:  s.Output.MinFreeMB * 1024 * 1024,
		},
	}
	cfg.Device.ReadTimeout = cfg.Device.Period() * time.Duration(s.Device.ReadTimeout)

	return cfg, cfg.Validate()
}

// Package capture owns the capture device for the lifetime of a session and
// runs the real-time read loop that feeds the frame ring.
package capture

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tphakala/threshcorder/internal/audiocore"
	"github.com/tphakala/threshcorder/internal/errors"
	"github.com/tphakala/threshcorder/internal/logger"
)

const componentCapture = "capture"

// DefaultReadTimeoutPeriods bounds a device read when DeviceConfig leaves
// ReadTimeout unset.
const DefaultReadTimeoutPeriods = 8

// DeviceConfig is what a session asks of its capture device.
type DeviceConfig struct {
	// Name selects the device. Its meaning is backend specific: a device
	// name or ALSA id for soundcards, a file path for replay.
	Name         string
	Format       audiocore.Format
	PeriodFrames int
	// ReadTimeout is how long ReadPeriod may wait for data before the
	// device counts as disconnected.
	ReadTimeout time.Duration
}

// Period returns the duration of one device read.
func (c DeviceConfig) Period() time.Duration {
	return c.Format.DurationOf(c.PeriodFrames)
}

// PeriodBytes returns the size of one period of interleaved PCM.
func (c DeviceConfig) PeriodBytes() int {
	return c.PeriodFrames * c.Format.FrameBytes()
}

// EffectiveReadTimeout returns ReadTimeout or its default.
func (c DeviceConfig) EffectiveReadTimeout() time.Duration {
	if c.ReadTimeout > 0 {
		return c.ReadTimeout
	}
	return DefaultReadTimeoutPeriods * c.Period()
}

// Validate checks the request before a device is opened.
func (c DeviceConfig) Validate() error {
	if err := c.Format.Validate(); err != nil {
		return err
	}
	if c.PeriodFrames <= 0 {
		return errors.Newf("period must hold at least one sample frame, got %d", c.PeriodFrames).
			Component(componentCapture).
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// DeviceInfo describes one capture device.
type DeviceInfo struct {
	Index   int
	Name    string
	ID      string
	Default bool
}

// Device is an open capture device.
//
// ReadPeriod is only called from the capture goroutine. Close may be called
// from another goroutine once the capture loop has exited.
type Device interface {
	// ReadPeriod blocks until buf holds exactly one period of PCM in the
	// device format. It returns an error wrapping ErrDeviceDisconnected
	// when no data arrives within the read timeout, or ErrEndOfStream for
	// finite sources.
	ReadPeriod(buf []byte) error
	// Format returns the format the device actually delivers.
	Format() audiocore.Format
	// Info identifies the opened device.
	Info() DeviceInfo
	// Overruns returns how many periods the device itself lost.
	Overruns() uint64
	Close() error
}

// Backend opens devices of one audio API.
type Backend interface {
	Name() string
	// Open opens the device selected by cfg. Errors wrap
	// ErrDeviceUnavailable or ErrFormatUnsupported.
	Open(ctx context.Context, cfg DeviceConfig) (Device, error)
	// Devices lists the capture devices the backend can open.
	Devices(ctx context.Context) ([]DeviceInfo, error)
}

// Options configures a backend at construction.
type Options struct {
	// Realtime paces file-backed backends at wall-clock speed.
	Realtime bool
	Logger   logger.Logger
}

// Factory constructs a backend.
type Factory func(opts Options) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a backend available under name. Backends register
// themselves from init.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("capture: backend %q registered twice", name))
	}
	registry[name] = f
}

// NewBackend constructs the backend registered under name.
func NewBackend(name string, opts Options) (Backend, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, errors.New(fmt.Errorf("%w: unknown capture backend %q (available: %v)",
			audiocore.ErrDeviceUnavailable, name, Backends())).
			Component(componentCapture).
			Category(errors.CategoryConfiguration).
			Build()
	}

	if opts.Logger == nil {
		opts.Logger = logger.Global().Module(componentCapture).Module(name)
	}
	return f(opts)
}

// Backends lists registered backend names in sorted order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

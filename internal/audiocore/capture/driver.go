package capture

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tphakala/threshcorder/internal/audiocore"
	"github.com/tphakala/threshcorder/internal/audiocore/ringbuffer"
	"github.com/tphakala/threshcorder/internal/errors"
	"github.com/tphakala/threshcorder/internal/logger"
)

// Driver runs the capture loop of one session. It exclusively owns the
// device from Start until Stop returns.
type Driver struct {
	dev    Device
	ring   *ringbuffer.Ring
	cfg    DeviceConfig
	period time.Duration
	log    logger.Logger

	stop      chan struct{}
	done      chan struct{}
	ready     chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
	closeErr  error

	errMu sync.Mutex
	err   error

	produced atomic.Uint64
	overruns atomic.Uint64
}

// Start opens the device selected by cfg and starts the capture loop.
//
// The returned error wraps audiocore.ErrDeviceUnavailable when the device
// cannot be opened and audiocore.ErrFormatUnsupported when it rejects or
// alters the requested format.
func Start(ctx context.Context, backend Backend, cfg DeviceConfig, ring *ringbuffer.Ring) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dev, err := backend.Open(ctx, cfg)
	if err != nil {
		if errors.Is(err, audiocore.ErrDeviceUnavailable) || errors.Is(err, audiocore.ErrFormatUnsupported) {
			return nil, err
		}
		return nil, errors.New(fmt.Errorf("%w: %w", audiocore.ErrDeviceUnavailable, err)).
			Component(componentCapture).
			Category(errors.CategoryAudioSource).
			Context("backend", backend.Name()).
			Context("device", cfg.Name).
			Build()
	}

	if got := dev.Format(); got != cfg.Format {
		_ = dev.Close()
		return nil, errors.New(fmt.Errorf("%w: requested %s, device delivers %s",
			audiocore.ErrFormatUnsupported, cfg.Format, got)).
			Component(componentCapture).
			Category(errors.CategoryAudioSource).
			Context("backend", backend.Name()).
			Context("device", cfg.Name).
			Build()
	}

	d := &Driver{
		dev:    dev,
		ring:   ring,
		cfg:    cfg,
		period: cfg.Period(),
		log: logger.Global().Module(componentCapture).With(
			logger.String("backend", backend.Name()),
			logger.String("device", dev.Info().Name),
		),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		ready: make(chan struct{}, 1),
	}

	d.log.Info("capture started",
		logger.String("format", cfg.Format.String()),
		logger.Int("period_frames", cfg.PeriodFrames),
		logger.Duration("period", d.period),
		logger.Int("ring_capacity", ring.Cap()))

	go d.run()
	return d, nil
}

func (d *Driver) run() {
	// The loop blocks in device reads; keep it off the scheduler's shared
	// threads.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(d.done)

	frame := audiocore.Frame{
		FrameCount: d.cfg.PeriodFrames,
		Data:       make([]byte, d.cfg.PeriodBytes()),
	}

	var seq uint64
	for {
		select {
		case <-d.stop:
			return
		default:
		}

		if err := d.dev.ReadPeriod(frame.Data); err != nil {
			select {
			case <-d.stop:
				// Read interrupted by shutdown.
				return
			default:
			}
			d.setErr(err)
			return
		}

		frame.Seq = seq
		frame.Timestamp = time.Now().Add(-d.period)
		seq++

		if !d.ring.Push(&frame) {
			d.overruns.Add(1)
		}
		d.produced.Add(1)

		select {
		case d.ready <- struct{}{}:
		default:
		}
	}
}

func (d *Driver) setErr(err error) {
	if !errors.Is(err, audiocore.ErrDeviceDisconnected) && !errors.Is(err, audiocore.ErrEndOfStream) {
		err = errors.New(fmt.Errorf("%w: %w", audiocore.ErrDeviceDisconnected, err)).
			Component(componentCapture).
			Category(errors.CategoryAudioSource).
			Build()
	}

	d.errMu.Lock()
	d.err = err
	d.errMu.Unlock()
}

// Stop signals the loop to exit after its current read, waits for it and
// releases the device. No frame is pushed after Stop returns. Stop is
// idempotent.
func (d *Driver) Stop() error {
	d.stopOnce.Do(func() { close(d.stop) })
	<-d.done

	d.closeOnce.Do(func() {
		d.closeErr = d.dev.Close()
		d.log.Info("capture stopped",
			logger.Uint64("frames", d.produced.Load()),
			logger.Uint64("overruns", d.overruns.Load()),
			logger.Uint64("device_overruns", d.dev.Overruns()))
	})
	return d.closeErr
}

// Done is closed when the capture loop has exited, by Stop or by a device
// error.
func (d *Driver) Done() <-chan struct{} {
	return d.done
}

// Ready receives a token after frames were pushed. Tokens coalesce; drain
// the ring fully after each one.
func (d *Driver) Ready() <-chan struct{} {
	return d.ready
}

// Err returns the error that ended the loop, or nil.
func (d *Driver) Err() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.err
}

// Format returns the capture format.
func (d *Driver) Format() audiocore.Format {
	return d.cfg.Format
}

// Period returns the duration of one device read.
func (d *Driver) Period() time.Duration {
	return d.period
}

// Device returns information about the opened device.
func (d *Driver) Device() DeviceInfo {
	return d.dev.Info()
}

// Produced returns the number of periods read from the device.
func (d *Driver) Produced() uint64 {
	return d.produced.Load()
}

// Overruns returns the number of pushes that found the ring full.
func (d *Driver) Overruns() uint64 {
	return d.overruns.Load()
}

// DeviceOverruns returns periods lost inside the device backend.
func (d *Driver) DeviceOverruns() uint64 {
	return d.dev.Overruns()
}

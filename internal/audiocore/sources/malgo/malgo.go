// Package malgo captures from soundcards through miniaudio (ALSA on Linux,
// WASAPI on Windows, Core Audio on macOS).
package malgo

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/threshcorder/internal/audiocore"
	"github.com/tphakala/threshcorder/internal/audiocore/capture"
	"github.com/tphakala/threshcorder/internal/errors"
	"github.com/tphakala/threshcorder/internal/logger"
)

// BackendName registers this backend with the capture package.
const BackendName = "malgo"

const componentMalgo = "sources"

// periodSlots is the number of period buffers between callback and reader.
const periodSlots = 8

func init() {
	capture.Register(BackendName, New)
}

// Backend opens miniaudio capture devices.
type Backend struct {
	log logger.Logger
}

// New returns the miniaudio backend.
func New(opts capture.Options) (capture.Backend, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Global().Module("capture").Module(BackendName)
	}
	return &Backend{log: log}, nil
}

// Name implements capture.Backend.
func (b *Backend) Name() string {
	return BackendName
}

func (b *Backend) initContext() (*malgo.AllocatedContext, error) {
	platform, err := backendForPlatform()
	if err != nil {
		return nil, err
	}

	mctx, err := malgo.InitContext([]malgo.Backend{platform}, malgo.ContextConfig{}, func(message string) {
		b.log.Debug("miniaudio", logger.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return nil, errors.New(fmt.Errorf("%w: %w", audiocore.ErrDeviceUnavailable, err)).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Context("operation", "init_context").
			Build()
	}
	return mctx, nil
}

func freeContext(mctx *malgo.AllocatedContext) {
	_ = mctx.Uninit()
	mctx.Free()
}

// Devices implements capture.Backend.
func (b *Backend) Devices(_ context.Context) ([]capture.DeviceInfo, error) {
	mctx, err := b.initContext()
	if err != nil {
		return nil, err
	}
	defer freeContext(mctx)

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}

	return describeDevices(infos), nil
}

// Open implements capture.Backend.
func (b *Backend) Open(_ context.Context, cfg capture.DeviceConfig) (capture.Device, error) {
	sampleFormat, ok := toMalgoFormat(cfg.Format.Sample)
	if !ok {
		return nil, errors.New(fmt.Errorf("%w: %s", audiocore.ErrFormatUnsupported, cfg.Format.Sample)).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Build()
	}

	mctx, err := b.initContext()
	if err != nil {
		return nil, err
	}

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		freeContext(mctx)
		return nil, errors.New(fmt.Errorf("%w: %w", audiocore.ErrDeviceUnavailable, err)).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}

	selected, err := selectDevice(describeDevices(infos), cfg.Name)
	if err != nil {
		freeContext(mctx)
		return nil, err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = sampleFormat
	deviceConfig.Capture.Channels = uint32(cfg.Format.Channels)
	deviceConfig.Capture.DeviceID = infos[selected.Index].ID.Pointer()
	deviceConfig.SampleRate = uint32(cfg.Format.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(cfg.PeriodFrames)
	deviceConfig.Alsa.NoMMap = 1

	d := &device{
		mctx: mctx,
		info: selected,
		rb:   newReblocker(cfg.PeriodBytes(), periodSlots, cfg.EffectiveReadTimeout()),
		log:  b.log.With(logger.String("device", selected.Name)),
	}

	dev, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: d.onData,
		Stop: d.onStop,
	})
	if err != nil {
		freeContext(mctx)
		return nil, errors.New(fmt.Errorf("%w: %w", audiocore.ErrDeviceUnavailable, err)).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Context("operation", "init_device").
			Context("device_id", selected.ID).
			Build()
	}
	d.dev = dev

	d.format = audiocore.Format{
		SampleRate: int(dev.SampleRate()),
		Channels:   int(dev.CaptureChannels()),
		Sample:     fromMalgoFormat(dev.CaptureFormat()),
	}
	if d.format != cfg.Format {
		dev.Uninit()
		freeContext(mctx)
		return nil, errors.New(fmt.Errorf("%w: requested %s, device negotiated %s",
			audiocore.ErrFormatUnsupported, cfg.Format, d.format)).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Context("device_id", selected.ID).
			Build()
	}

	if err := dev.Start(); err != nil {
		dev.Uninit()
		freeContext(mctx)
		return nil, errors.New(fmt.Errorf("%w: %w", audiocore.ErrDeviceUnavailable, err)).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Context("operation", "start_device").
			Context("device_id", selected.ID).
			Build()
	}

	d.log.Info("device opened",
		logger.String("id", selected.ID),
		logger.String("format", d.format.String()),
		logger.Int("period_frames", cfg.PeriodFrames))

	return d, nil
}

// device is one open miniaudio capture device.
type device struct {
	mctx   *malgo.AllocatedContext
	dev    *malgo.Device
	info   capture.DeviceInfo
	format audiocore.Format
	rb     *reblocker
	log    logger.Logger

	closeOnce sync.Once
}

func (d *device) onData(_, input []byte, _ uint32) {
	d.rb.write(input)
}

// onStop runs when miniaudio stops the device, on Close or on failure.
func (d *device) onStop() {
	d.rb.stop()
}

// ReadPeriod implements capture.Device.
func (d *device) ReadPeriod(buf []byte) error {
	if err := d.rb.read(buf); err != nil {
		return errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryAudioSource).
			Context("device_id", d.info.ID).
			Build()
	}
	return nil
}

// Format implements capture.Device.
func (d *device) Format() audiocore.Format {
	return d.format
}

// Info implements capture.Device.
func (d *device) Info() capture.DeviceInfo {
	return d.info
}

// Overruns implements capture.Device.
func (d *device) Overruns() uint64 {
	return d.rb.overruns.Load()
}

// Close implements capture.Device.
func (d *device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		err = d.dev.Stop()
		d.dev.Uninit()
		d.rb.stop()
		freeContext(d.mctx)
		d.log.Info("device closed", logger.Uint64("device_overruns", d.rb.overruns.Load()))
	})
	return err
}

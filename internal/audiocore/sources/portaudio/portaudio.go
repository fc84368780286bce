//go:build portaudio

// Package portaudio captures through PortAudio's blocking read API. It is
// only built with the portaudio build tag since it needs libportaudio.
package portaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"

	"github.com/tphakala/threshcorder/internal/audiocore"
	"github.com/tphakala/threshcorder/internal/audiocore/capture"
	"github.com/tphakala/threshcorder/internal/errors"
	"github.com/tphakala/threshcorder/internal/logger"
)

// BackendName registers this backend with the capture package.
const BackendName = "portaudio"

const componentPortAudio = "sources"

func init() {
	capture.Register(BackendName, New)
}

// Backend opens PortAudio input streams.
type Backend struct {
	log logger.Logger
}

// New returns the PortAudio backend.
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

func initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return errors.New(fmt.Errorf("%w: %w", audiocore.ErrDeviceUnavailable, err)).
			Component(componentPortAudio).
			Category(errors.CategoryAudioSource).
			Context("operation", "initialize").
			Build()
	}
	return nil
}

// Devices implements capture.Backend.
func (b *Backend) Devices(context.Context) ([]capture.DeviceInfo, error) {
	if err := initialize(); err != nil {
		return nil, err
	}
	defer func() { _ = portaudio.Terminate() }()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, errors.New(err).
			Component(componentPortAudio).
			Category(errors.CategoryAudioSource).
			Context("operation", "enumerate_devices").
			Build()
	}
	defaultDevice, _ := portaudio.DefaultInputDevice()

	result := make([]capture.DeviceInfo, 0, len(devices))
	for i, d := range devices {
		if d.MaxInputChannels == 0 {
			continue
		}
		result = append(result, capture.DeviceInfo{
			Index:   i,
			Name:    d.Name,
			ID:      d.HostApi.Name + ":" + d.Name,
			Default: d == defaultDevice,
		})
	}
	return result, nil
}

func findDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" || name == "default" {
		return portaudio.DefaultInputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.MaxInputChannels > 0 && d.Name == name {
			return d, nil
		}
	}
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.Contains(d.Name, name) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no input device matches %q", name)
}

// Open implements capture.Backend.
func (b *Backend) Open(_ context.Context, cfg capture.DeviceConfig) (capture.Device, error) {
	if err := initialize(); err != nil {
		return nil, err
	}

	fail := func(sentinel, err error, op string) (capture.Device, error) {
		_ = portaudio.Terminate()
		return nil, errors.New(fmt.Errorf("%w: %w", sentinel, err)).
			Component(componentPortAudio).
			Category(errors.CategoryAudioSource).
			Context("operation", op).
			Context("device", cfg.Name).
			Build()
	}

	info, err := findDevice(cfg.Name)
	if err != nil {
		return fail(audiocore.ErrDeviceUnavailable, err, "find_device")
	}

	d := &device{
		format: cfg.Format,
		info:   capture.DeviceInfo{Name: info.Name, ID: info.HostApi.Name + ":" + info.Name},
	}

	samples := cfg.PeriodFrames * cfg.Format.Channels
	var buffer any
	switch cfg.Format.Sample {
	case audiocore.FormatS16LE:
		d.s16 = make([]int16, samples)
		buffer = d.s16
	case audiocore.FormatS32LE:
		d.s32 = make([]int32, samples)
		buffer = d.s32
	default:
		return fail(audiocore.ErrFormatUnsupported, fmt.Errorf("sample format %s", cfg.Format.Sample), "open_stream")
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: cfg.Format.Channels,
			Latency:  info.DefaultLowInputLatency,
		},
		SampleRate:      float64(cfg.Format.SampleRate),
		FramesPerBuffer: cfg.PeriodFrames,
	}, buffer)
	if err != nil {
		if errors.Is(err, portaudio.InvalidSampleRate) || errors.Is(err, portaudio.InvalidChannelCount) ||
			errors.Is(err, portaudio.SampleFormatNotSupported) {
			return fail(audiocore.ErrFormatUnsupported, err, "open_stream")
		}
		return fail(audiocore.ErrDeviceUnavailable, err, "open_stream")
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return fail(audiocore.ErrDeviceUnavailable, err, "start_stream")
	}
	d.stream = stream

	b.log.Info("device opened",
		logger.String("device", info.Name),
		logger.String("host_api", info.HostApi.Name),
		logger.String("format", cfg.Format.String()))

	return d, nil
}

type device struct {
	stream *portaudio.Stream
	format audiocore.Format
	info   capture.DeviceInfo
	s16    []int16
	s32    []int32

	overruns  atomic.Uint64
	closeOnce sync.Once
	closeErr  error
}

// ReadPeriod implements capture.Device. An input overflow reported by
// PortAudio is counted and the period is still delivered.
func (d *device) ReadPeriod(buf []byte) error {
	if err := d.stream.Read(); err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return errors.New(fmt.Errorf("%w: %w", audiocore.ErrDeviceDisconnected, err)).
				Component(componentPortAudio).
				Category(errors.CategoryAudioSource).
				Context("device", d.info.Name).
				Build()
		}
		d.overruns.Add(1)
	}

	switch {
	case d.s16 != nil:
		for i, v := range d.s16 {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
		}
	case d.s32 != nil:
		for i, v := range d.s32 {
			binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
		}
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
	return d.overruns.Load()
}

// Close implements capture.Device.
func (d *device) Close() error {
	d.closeOnce.Do(func() {
		_ = d.stream.Stop()
		d.closeErr = d.stream.Close()
		_ = portaudio.Terminate()
	})
	return d.closeErr
}

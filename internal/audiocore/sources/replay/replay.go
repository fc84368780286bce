// Package replay plays a WAV file through the capture pipeline as if it
// were a soundcard.
package replay

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/threshcorder/internal/audiocore"
	"github.com/tphakala/threshcorder/internal/audiocore/capture"
	"github.com/tphakala/threshcorder/internal/errors"
	"github.com/tphakala/threshcorder/internal/logger"
)

// BackendName registers this backend with the capture package.
const BackendName = "replay"

const componentReplay = "sources"

func init() {
	capture.Register(BackendName, New)
}

// Backend opens WAV files. DeviceConfig.Name is the file path.
type Backend struct {
	realtime bool
	log      logger.Logger
}

// New returns the replay backend. With opts.Realtime set, periods are
// delivered at the pace the file would have been recorded.
func New(opts capture.Options) (capture.Backend, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Global().Module("capture").Module(BackendName)
	}
	return &Backend{realtime: opts.Realtime, log: log}, nil
}

// Name implements capture.Backend.
func (b *Backend) Name() string {
	return BackendName
}

// Devices implements capture.Backend. Files are not enumerable.
func (b *Backend) Devices(context.Context) ([]capture.DeviceInfo, error) {
	return nil, nil
}

// Open implements capture.Backend.
func (b *Backend) Open(_ context.Context, cfg capture.DeviceConfig) (capture.Device, error) {
	file, err := os.Open(cfg.Name)
	if err != nil {
		return nil, errors.New(fmt.Errorf("%w: %w", audiocore.ErrDeviceUnavailable, err)).
			Component(componentReplay).
			Category(errors.CategoryFileIO).
			Context("file", cfg.Name).
			Build()
	}

	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		_ = file.Close()
		return nil, errors.New(fmt.Errorf("%w: %s is not a valid WAV file", audiocore.ErrFormatUnsupported, cfg.Name)).
			Component(componentReplay).
			Category(errors.CategoryAudioSource).
			Build()
	}

	format := audiocore.Format{
		SampleRate: int(decoder.SampleRate),
		Channels:   int(decoder.NumChans),
		Sample:     sampleFormatFor(int(decoder.BitDepth)),
	}
	if decoder.WavAudioFormat != 1 || format.Validate() != nil {
		_ = file.Close()
		return nil, errors.New(fmt.Errorf("%w: %s holds %d-bit audio format %d",
			audiocore.ErrFormatUnsupported, cfg.Name, decoder.BitDepth, decoder.WavAudioFormat)).
			Component(componentReplay).
			Category(errors.CategoryAudioSource).
			Build()
	}

	d := &device{
		file:    file,
		decoder: decoder,
		format:  format,
		info: capture.DeviceInfo{
			Name: filepath.Base(cfg.Name),
			ID:   cfg.Name,
		},
		buf: &audio.IntBuffer{
			Data:   make([]int, cfg.PeriodFrames*format.Channels),
			Format: &audio.Format{SampleRate: format.SampleRate, NumChannels: format.Channels},
		},
		pace:   b.realtime,
		period: format.DurationOf(cfg.PeriodFrames),
	}

	b.log.Info("replay opened",
		logger.String("file", cfg.Name),
		logger.String("format", format.String()),
		logger.Bool("realtime", b.realtime))

	return d, nil
}

type device struct {
	file    *os.File
	decoder *wav.Decoder
	format  audiocore.Format
	info    capture.DeviceInfo
	buf     *audio.IntBuffer

	pace    bool
	period  time.Duration
	started time.Time
	periods int64
	eof     bool

	closeOnce sync.Once
	closeErr  error
}

// ReadPeriod implements capture.Device. The final partial period is padded
// with silence.
func (d *device) ReadPeriod(buf []byte) error {
	if d.eof {
		return audiocore.ErrEndOfStream
	}

	n, err := d.decoder.PCMBuffer(d.buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return errors.New(fmt.Errorf("%w: %w", audiocore.ErrDeviceDisconnected, err)).
			Component(componentReplay).
			Category(errors.CategoryFileIO).
			Context("file", d.info.ID).
			Build()
	}
	if n == 0 {
		d.eof = true
		return audiocore.ErrEndOfStream
	}
	if n < len(d.buf.Data) {
		d.eof = true
	}

	for i, v := range d.buf.Data[:n] {
		d.format.PutSampleInt(buf, i, v)
	}
	clear(buf[n*d.format.Sample.BytesPerSample():])

	if d.pace {
		d.wait()
	}
	return nil
}

// wait sleeps until the current period would have been captured live.
func (d *device) wait() {
	if d.started.IsZero() {
		d.started = time.Now()
	}
	d.periods++
	due := d.started.Add(time.Duration(d.periods) * d.period)
	if delay := time.Until(due); delay > 0 {
		time.Sleep(delay)
	}
}

// Format implements capture.Device.
func (d *device) Format() audiocore.Format {
	return d.format
}

// Info implements capture.Device.
func (d *device) Info() capture.DeviceInfo {
	return d.info
}

// Overruns implements capture.Device. A file never loses data.
func (d *device) Overruns() uint64 {
	return 0
}

// Close implements capture.Device.
func (d *device) Close() error {
	d.closeOnce.Do(func() {
		d.closeErr = d.file.Close()
	})
	return d.closeErr
}

func sampleFormatFor(bitDepth int) audiocore.SampleFormat {
	switch bitDepth {
	case 16:
		return audiocore.FormatS16LE
	case 24:
		return audiocore.FormatS24LE
	case 32:
		return audiocore.FormatS32LE
	default:
		return audiocore.FormatUnknown
	}
}

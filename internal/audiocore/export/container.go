package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/tphakala/threshcorder/internal/audiocore"
	"github.com/tphakala/threshcorder/internal/errors"
)

// Container names.
const (
	ContainerWAV = "wav"
	ContainerRaw = "raw"
)

// Container is an episode file format.
type Container interface {
	Name() string
	// Ext is the file name extension without the dot.
	Ext() string
	// NewSink starts a file on w. w is positioned at its start.
	NewSink(w io.WriteSeeker, format audiocore.Format) (Sink, error)
}

// Sink encodes the PCM of one episode into its file.
type Sink interface {
	// Write appends interleaved PCM in the capture format.
	Write(pcm []byte) error
	// Finalize completes the file, for example by patching header sizes.
	// It does not close the underlying file.
	Finalize() error
}

// NewContainer returns the container registered under name.
func NewContainer(name string) (Container, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ContainerWAV:
		return wavContainer{}, nil
	case ContainerRaw, "pcm":
		return rawContainer{}, nil
	default:
		return nil, errors.New(fmt.Errorf("%w: container %q", audiocore.ErrFormatUnsupported, name)).
			Component(componentExport).
			Category(errors.CategoryValidation).
			Build()
	}
}

// wavContainer writes integer PCM RIFF/WAVE files.
type wavContainer struct{}

func (wavContainer) Name() string { return ContainerWAV }
func (wavContainer) Ext() string  { return "wav" }

func (wavContainer) NewSink(w io.WriteSeeker, format audiocore.Format) (Sink, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	return &wavSink{
		enc:    wav.NewEncoder(w, format.SampleRate, format.Sample.BitDepth(), format.Channels, 1),
		format: format,
		buf: &audio.IntBuffer{
			Format:         &audio.Format{SampleRate: format.SampleRate, NumChannels: format.Channels},
			SourceBitDepth: format.Sample.BitDepth(),
		},
	}, nil
}

type wavSink struct {
	enc    *wav.Encoder
	format audiocore.Format
	buf    *audio.IntBuffer
}

func (s *wavSink) Write(pcm []byte) error {
	n := len(pcm) / s.format.Sample.BytesPerSample()
	if cap(s.buf.Data) < n {
		s.buf.Data = make([]int, n)
	}
	s.buf.Data = s.buf.Data[:n]
	for i := range n {
		s.buf.Data[i] = s.format.SampleInt(pcm, i)
	}
	return s.enc.Write(s.buf)
}

func (s *wavSink) Finalize() error {
	return s.enc.Close()
}

// rawContainer writes headerless PCM exactly as captured.
type rawContainer struct{}

func (rawContainer) Name() string { return ContainerRaw }
func (rawContainer) Ext() string  { return "pcm" }

func (rawContainer) NewSink(w io.WriteSeeker, _ audiocore.Format) (Sink, error) {
	return rawSink{w: w}, nil
}

type rawSink struct {
	w io.Writer
}

func (s rawSink) Write(pcm []byte) error {
	_, err := s.w.Write(pcm)
	return err
}

func (rawSink) Finalize() error { return nil }

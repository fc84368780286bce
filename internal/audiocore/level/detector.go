// Package level turns a stream of PCM frames into windowed level samples and
// a hysteresis-guarded above/below decision.
package level

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tphakala/threshcorder/internal/audiocore"
	"github.com/tphakala/threshcorder/internal/errors"
)

const componentLevel = "level"

// MinDBFS is the floor of the dBFS scale; digital silence reads as MinDBFS.
const MinDBFS = -120.0

// Method selects how a window is reduced to a single level.
type Method int

const (
	// MethodRMS is the root mean square of all samples in the window.
	MethodRMS Method = iota
	// MethodPeak is the largest absolute sample in the window.
	MethodPeak
)

func (m Method) String() string {
	switch m {
	case MethodRMS:
		return "rms"
	case MethodPeak:
		return "peak"
	default:
		return fmt.Sprintf("method(%d)", int(m))
	}
}

// ParseMethod parses "rms" or "peak".
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rms":
		return MethodRMS, nil
	case "peak":
		return MethodPeak, nil
	}
	return MethodRMS, errors.Newf("unknown detection method %q", s).
		Component(componentLevel).
		Category(errors.CategoryValidation).
		Build()
}

// Unit is the scale thresholds and sample values are expressed in.
type Unit int

const (
	// UnitLinear is amplitude relative to full scale, 0 to 1.
	UnitLinear Unit = iota
	// UnitDBFS is decibels relative to full scale, MinDBFS to 0.
	UnitDBFS
)

func (u Unit) String() string {
	if u == UnitDBFS {
		return "dbfs"
	}
	return "linear"
}

// ParseUnit parses "linear" or "dbfs".
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "linear":
		return UnitLinear, nil
	case "dbfs":
		return UnitDBFS, nil
	}
	return UnitLinear, errors.Newf("unknown level unit %q", s).
		Component(componentLevel).
		Category(errors.CategoryValidation).
		Build()
}

// Config is the detector part of a session's threshold configuration.
type Config struct {
	Method     Method
	Unit       Unit
	Threshold  float64       // in Unit
	Hysteresis float64       // margin either side of Threshold, in Unit
	Window     time.Duration // analysis window
	Smoothing  float64       // EMA factor in (0, 1]; 1 disables smoothing
}

// DefaultConfig returns a 250ms RMS detector with a linear threshold of 0.05.
func DefaultConfig() Config {
	return Config{
		Method:     MethodRMS,
		Unit:       UnitLinear,
		Threshold:  0.05,
		Hysteresis: 0.01,
		Window:     250 * time.Millisecond,
		Smoothing:  1,
	}
}

// Validate checks the configuration against the unit's range.
func (c Config) Validate() error {
	var msg string
	switch {
	case c.Window <= 0:
		msg = fmt.Sprintf("analysis window must be positive, got %s", c.Window)
	case c.Smoothing <= 0 || c.Smoothing > 1:
		msg = fmt.Sprintf("smoothing must be in (0, 1], got %g", c.Smoothing)
	case c.Hysteresis < 0:
		msg = fmt.Sprintf("hysteresis must not be negative, got %g", c.Hysteresis)
	case c.Unit == UnitLinear && (c.Threshold <= 0 || c.Threshold > 1):
		msg = fmt.Sprintf("linear threshold must be in (0, 1], got %g", c.Threshold)
	case c.Unit == UnitDBFS && (c.Threshold < MinDBFS || c.Threshold > 0):
		msg = fmt.Sprintf("dBFS threshold must be in [%g, 0], got %g", MinDBFS, c.Threshold)
	case c.Method != MethodRMS && c.Method != MethodPeak:
		msg = fmt.Sprintf("unknown detection method %s", c.Method)
	default:
		return nil
	}
	return errors.Newf("invalid detector config: %s", msg).
		Component(componentLevel).
		Category(errors.CategoryValidation).
		Build()
}

// Sample is the level of one analysis window.
type Sample struct {
	Value    float64 // smoothed level in the configured unit
	Raw      float64 // unsmoothed level in the configured unit
	FirstSeq uint64  // sequence number of the first frame contributing to the window
	LastSeq  uint64  // sequence number of the last frame contributing to the window
	Above    bool    // decision after this window
	Changed  bool    // decision flipped in this window
}

// Detector computes window levels and the thresholded decision.
//
// A Detector is not safe for concurrent use; the processing goroutine owns it.
type Detector struct {
	cfg          Config
	format       audiocore.Format
	windowFrames int
	rise, fall   float64

	// current window
	sumSquares float64
	peak       float64
	filled     int
	firstSeq   uint64
	open       bool

	smoothed float64 // linear scale
	primed   bool
	above    bool

	nextSeq uint64
	started bool
	gaps    uint64

	out []Sample
}

// NewDetector returns a detector for frames in format.
func NewDetector(cfg Config, format audiocore.Format) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	windowFrames := format.FramesFor(cfg.Window)
	if windowFrames < 1 {
		return nil, errors.Newf("analysis window %s is shorter than one sample at %d Hz", cfg.Window, format.SampleRate).
			Component(componentLevel).
			Category(errors.CategoryValidation).
			Build()
	}

	return &Detector{
		cfg:          cfg,
		format:       format,
		windowFrames: windowFrames,
		rise:         cfg.Threshold + cfg.Hysteresis,
		fall:         cfg.Threshold - cfg.Hysteresis,
		out:          make([]Sample, 0, 4),
	}, nil
}

// WindowFrames returns the analysis window length in sample frames.
func (d *Detector) WindowFrames() int {
	return d.windowFrames
}

// Process feeds one frame and returns the samples of every window it
// completed. The returned slice is reused by the next call.
func (d *Detector) Process(f *audiocore.Frame) []Sample {
	d.out = d.out[:0]

	if d.started && f.Seq > d.nextSeq {
		d.gaps += f.Seq - d.nextSeq
	}
	d.started = true
	d.nextSeq = f.Seq + 1

	channels := d.format.Channels
	for frame := range f.FrameCount {
		if !d.open {
			d.open = true
			d.firstSeq = f.Seq
		}

		base := frame * channels
		for ch := range channels {
			v := d.format.SampleAt(f.Data, base+ch)
			d.sumSquares += v * v
			if a := math.Abs(v); a > d.peak {
				d.peak = a
			}
		}

		d.filled++
		if d.filled == d.windowFrames {
			d.out = append(d.out, d.closeWindow(f.Seq))
		}
	}

	return d.out
}

func (d *Detector) closeWindow(lastSeq uint64) Sample {
	var linear float64
	switch d.cfg.Method {
	case MethodPeak:
		linear = d.peak
	default:
		linear = math.Sqrt(d.sumSquares / float64(d.filled*d.format.Channels))
	}

	if d.primed {
		a := d.cfg.Smoothing
		d.smoothed = a*linear + (1-a)*d.smoothed
	} else {
		d.smoothed = linear
		d.primed = true
	}

	s := Sample{
		Value:    d.toUnit(d.smoothed),
		Raw:      d.toUnit(linear),
		FirstSeq: d.firstSeq,
		LastSeq:  lastSeq,
	}

	prev := d.above
	switch {
	case !d.above && s.Value > d.rise:
		d.above = true
	case d.above && s.Value < d.fall:
		d.above = false
	}
	s.Above = d.above
	s.Changed = prev != d.above

	d.sumSquares = 0
	d.peak = 0
	d.filled = 0
	d.open = false

	return s
}

func (d *Detector) toUnit(linear float64) float64 {
	if d.cfg.Unit == UnitDBFS {
		return DBFS(linear)
	}
	return linear
}

// Above reports the current decision.
func (d *Detector) Above() bool {
	return d.above
}

// Gaps returns the number of frames missing from the input sequence.
func (d *Detector) Gaps() uint64 {
	return d.gaps
}

// DBFS converts a linear full-scale level to dBFS, floored at MinDBFS.
func DBFS(linear float64) float64 {
	if linear <= 0 {
		return MinDBFS
	}
	return max(MinDBFS, 20*math.Log10(linear))
}

package session

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/threshcorder/internal/audiocore"
	"github.com/tphakala/threshcorder/internal/audiocore/capture"
	"github.com/tphakala/threshcorder/internal/audiocore/export"
	"github.com/tphakala/threshcorder/internal/audiocore/level"
	"github.com/tphakala/threshcorder/internal/audiocore/ringbuffer"
	"github.com/tphakala/threshcorder/internal/audiocore/trigger"
	"github.com/tphakala/threshcorder/internal/errors"
	"github.com/tphakala/threshcorder/internal/logger"
)

// Process exit codes.
const (
	ExitClean  = 0
	ExitFatal  = 1
	ExitForced = 2 // an open episode was force-closed at shutdown
)

// Option customizes a Session.
type Option func(*Session)

// WithBackend uses b instead of the backend registered under Config.Backend.
func WithBackend(b capture.Backend) Option {
	return func(s *Session) { s.backend = b }
}

// WithSinks adds episode sinks.
func WithSinks(sinks ...Sink) Option {
	return func(s *Session) { s.sinks = append(s.sinks, sinks...) }
}

// WithLogger sets the session logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithWriterOptions passes options to the episode writer.
func WithWriterOptions(opts ...export.Option) Option {
	return func(s *Session) { s.writerOpts = append(s.writerOpts, opts...) }
}

// Session is one capture session. Start it once, Stop it once; Stop may be
// called from any goroutine.
type Session struct {
	id         string
	cfg        Config
	log        logger.Logger
	backend    capture.Backend
	sinks      []Sink
	writerOpts []export.Option

	ring      *ringbuffer.Ring
	detector  *level.Detector
	machine   *trigger.Machine
	handoff   *handoff
	driver    *capture.Driver
	writer    *export.Writer
	processor *processor
	dispatchQ chan export.Result

	ctx      context.Context
	cancel   context.CancelFunc
	group    *errgroup.Group
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	started  time.Time

	stats counters

	mu     sync.Mutex
	recent []export.Result
}

// New validates cfg and prepares the pipeline stages. Nothing is opened
// until Start.
func New(cfg Config, opts ...Option) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Session{
		id:   uuid.NewString(),
		cfg:  cfg,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Global().Module(componentSession)
	}
	s.log = s.log.With(logger.String("session_id", s.id))

	if s.backend == nil {
		b, err := capture.NewBackend(cfg.Backend, capture.Options{Realtime: cfg.Realtime})
		if err != nil {
			return nil, err
		}
		s.backend = b
	}

	var err error
	capacity := ringbuffer.CapacityFor(cfg.Device.Period(), cfg.JitterPeriods)
	if s.ring, err = ringbuffer.New(capacity, cfg.Device.PeriodBytes(), cfg.Overflow); err != nil {
		return nil, err
	}
	if s.detector, err = level.NewDetector(cfg.Detector, cfg.Device.Format); err != nil {
		return nil, err
	}
	if s.machine, err = trigger.NewMachine(cfg.Trigger, cfg.Device.Format); err != nil {
		return nil, err
	}
	s.handoff = newHandoff(cfg.HandoffSize, controlReserve)
	s.dispatchQ = make(chan export.Result, dispatchQueue)

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Start creates the output directory, opens the capture device and starts
// the pipeline. Errors wrap audiocore.ErrDeviceUnavailable or
// audiocore.ErrFormatUnsupported when the device cannot be used; they are
// fatal for the session.
func (s *Session) Start(ctx context.Context) error {
	if s.driver != nil {
		return errors.Newf("session already started").
			Component(componentSession).
			Category(errors.CategoryState).
			Build()
	}

	opts := append([]export.Option{export.WithLogger(s.log.Module("export"))}, s.writerOpts...)
	writer, err := export.NewWriter(s.cfg.Output, s.cfg.Device.Format, nil, opts...)
	if err != nil {
		return err
	}

	driver, err := capture.Start(ctx, s.backend, s.cfg.Device, s.ring)
	if err != nil {
		return err
	}

	s.writer = writer
	s.driver = driver
	s.processor = newProcessor(s.ring, driver, s.detector, s.machine, s.handoff, &s.stats,
		s.log.Module("processor"))
	s.ctx, s.cancel = context.WithCancel(logger.WithSessionID(context.WithoutCancel(ctx), s.id))
	s.started = time.Now()

	s.group = new(errgroup.Group)
	s.group.Go(func() error { return s.processor.run(s.stop) })
	s.group.Go(func() error {
		s.writer.Run(s.handoff.events())
		return nil
	})
	s.group.Go(s.collect)
	s.group.Go(s.dispatch)

	go func() {
		_ = s.group.Wait()
		s.cancel()
		close(s.done)
	}()

	s.log.Info("session started",
		logger.String("backend", s.backend.Name()),
		logger.String("device", driver.Device().Name),
		logger.String("format", s.cfg.Device.Format.String()),
		logger.Int("ring_capacity", s.ring.Cap()),
		logger.String("overflow", s.ring.Policy().String()),
		logger.Int("window_frames", s.detector.WindowFrames()),
		logger.Int("handoff_size", s.cfg.HandoffSize),
		logger.String("output", s.cfg.Output.Directory))

	return nil
}

// Stop shuts the session down cooperatively: capture stops first, frames
// still buffered run through detector and machine, an open episode is
// force-closed, and the writer finalizes before Stop returns. It returns
// the same error as Err.
func (s *Session) Stop() error {
	if s.driver == nil {
		return nil
	}

	s.stopOnce.Do(func() {
		if err := s.driver.Stop(); err != nil {
			s.log.Warn("closing capture device failed", logger.Error(err))
		}
		close(s.stop)
	})
	<-s.done

	stats := s.Stats()
	s.log.Info("session stopped",
		logger.Uint64("frames", stats.FramesProcessed),
		logger.Uint64("episodes", stats.EpisodesClosed),
		logger.Uint64("forced", stats.EpisodesForced),
		logger.Uint64("capture_overruns", stats.CaptureOverruns),
		logger.Uint64("handoff_drops", stats.HandoffDrops))
	if err := stats.DataLoss(); err != nil {
		s.log.Warn("session lost audio", logger.Error(err))
	}

	return s.Err()
}

// Done is closed once the pipeline has fully drained, after Stop or after
// the capture device ended on its own.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the device error that ended capture, or nil. The end of a
// replayed file is not an error.
func (s *Session) Err() error {
	if s.driver == nil {
		return nil
	}
	err := s.driver.Err()
	if errors.Is(err, audiocore.ErrEndOfStream) {
		return nil
	}
	return err
}

// ExitCode maps the session outcome to a process exit code.
func (s *Session) ExitCode() int {
	switch {
	case s.Err() != nil:
		return ExitFatal
	case s.stats.forced.Load() > 0:
		return ExitForced
	default:
		return ExitClean
	}
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	stats := s.stats.snapshot()
	stats.HandoffDrops = s.handoff.Dropped()
	stats.ControlDrops = s.handoff.ControlDropped()
	if s.driver != nil {
		stats.FramesCaptured = s.driver.Produced()
		stats.CaptureOverruns = s.driver.Overruns()
		stats.DeviceOverruns = s.driver.DeviceOverruns()
	}
	return stats
}

// Status is a point-in-time view of a running session.
type Status struct {
	SessionID   string    `json:"session_id"`
	Started     time.Time `json:"started"`
	Backend     string    `json:"backend"`
	Device      string    `json:"device"`
	Format      string    `json:"format"`
	State       string    `json:"state"`
	Level       float64   `json:"level"`
	Above       bool      `json:"above"`
	OpenEpisode uint64    `json:"open_episode,omitempty"`
	Stats       Stats     `json:"stats"`
}

// Status returns the current session status.
func (s *Session) Status() Status {
	st := Status{
		SessionID: s.id,
		Backend:   s.backend.Name(),
		Format:    s.cfg.Device.Format.String(),
		State:     trigger.StateIdle.String(),
		Stats:     s.Stats(),
	}
	if s.driver != nil {
		st.Started = s.started
		st.Device = s.driver.Device().Name
		st.State = trigger.State(s.processor.state.Load()).String()
		st.Level = s.processor.currentLevel()
		st.Above = s.processor.above.Load()
		st.OpenEpisode = s.processor.episode.Load()
	}
	return st
}

// Episodes returns the most recent finished episodes, newest first.
func (s *Session) Episodes() []export.Result {
	s.mu.Lock()
	out := slices.Clone(s.recent)
	s.mu.Unlock()
	slices.Reverse(out)
	return out
}

// Config returns the session configuration.
func (s *Session) Config() Config {
	return s.cfg
}

func isFinalizeError(err error) bool {
	return errors.Is(err, audiocore.ErrFinalize)
}

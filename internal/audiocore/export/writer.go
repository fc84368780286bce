package export

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/threshcorder/internal/audiocore"
	"github.com/tphakala/threshcorder/internal/audiocore/trigger"
	"github.com/tphakala/threshcorder/internal/errors"
	"github.com/tphakala/threshcorder/internal/logger"
)

// ErrInsufficientSpace is reported for episodes skipped because the output
// volume is below the configured free space.
var ErrInsufficientSpace = errors.NewStd("insufficient free space for episode")

// Result describes one finished episode.
type Result struct {
	// Episode is the final snapshot, EndSeq and Forced included.
	Episode trigger.Episode
	Path    string
	Bytes   int64 // PCM bytes handed to the container
	// Frames and Duration count audio actually written. They are lower
	// than Episode.Frames when episode data was lost before the writer.
	Frames   int
	Duration time.Duration
	// Degraded is set when writing or finalizing failed after the file
	// was created; the data written before the failure stays on disk.
	Degraded bool
	// Err is the first failure of the episode, or nil.
	Err error
}

// Option customizes a Writer.
type Option func(*Writer)

// WithLogger sets the writer logger.
func WithLogger(l logger.Logger) Option {
	return func(w *Writer) { w.log = l }
}

// WithFreeSpace replaces the free space lookup used by MinFreeBytes.
func WithFreeSpace(fn func(dir string) (uint64, error)) Option {
	return func(w *Writer) { w.freeSpace = fn }
}

// WithClock replaces the time source of the flush interval.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// Writer turns episode events into files. It is driven from a single
// goroutine, normally by Run.
type Writer struct {
	cfg       Config
	format    audiocore.Format
	container Container
	namer     *Namer
	log       logger.Logger
	freeSpace func(dir string) (uint64, error)
	now       func() time.Time

	stage   *ringbuffer.RingBuffer
	scratch []byte
	cur     *episodeFile
	results chan Result
}

type episodeFile struct {
	ep        trigger.Episode
	path      string
	file      *os.File
	sink      Sink
	bytes     int64
	lastFlush time.Time
	degraded  bool
	err       error
}

// NewWriter creates the output directory and prepares a writer for format.
// A nil container selects cfg.Container.
func NewWriter(cfg Config, format audiocore.Format, container Container, opts ...Option) (*Writer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	if container == nil {
		var err error
		if container, err = NewContainer(cfg.Container); err != nil {
			return nil, err
		}
	}

	namer, err := NewNamer(cfg.Directory, cfg.Template, container.Ext())
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return nil, errors.New(err).
			Component(componentExport).
			Category(errors.CategoryFileIO).
			Context("directory", cfg.Directory).
			Build()
	}

	if cfg.ResultBuffer <= 0 {
		cfg.ResultBuffer = DefaultConfig().ResultBuffer
	}

	w := &Writer{
		cfg:       cfg,
		format:    format,
		container: container,
		namer:     namer,
		log:       logger.Global().Module(componentExport),
		freeSpace: diskFree,
		now:       time.Now,
		stage:     ringbuffer.New(cfg.BatchBytes),
		scratch:   make([]byte, cfg.BatchBytes),
		results:   make(chan Result, cfg.ResultBuffer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func diskFree(dir string) (uint64, error) {
	usage, err := disk.Usage(dir)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// Results delivers one Result per started episode. It is closed when Run
// returns.
func (w *Writer) Results() <-chan Result {
	return w.results
}

// Run handles events until the channel is closed, flushing staged data at
// the flush interval. An episode still open when events closes is finalized
// as forced.
func (w *Writer) Run(events <-chan trigger.Event) {
	defer close(w.results)

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				w.closeOpen()
				return
			}
			w.Handle(ev)
		case <-ticker.C:
			w.Tick()
		}
	}
}

// Handle dispatches one event.
func (w *Writer) Handle(ev trigger.Event) {
	switch ev.Kind {
	case trigger.EventStart:
		w.OnEpisodeStart(ev.Episode, ev.Frames)
	case trigger.EventData:
		w.OnEpisodeData(ev.Episode, ev.Frames)
	case trigger.EventEnd:
		w.OnEpisodeEnd(ev.Episode)
	}
}

// OnEpisodeStart opens the episode file and stages its initial frames.
func (w *Writer) OnEpisodeStart(ep trigger.Episode, frames []audiocore.Frame) {
	if w.cur != nil {
		w.log.Warn("episode started while another is open",
			logger.Uint64("open_episode", w.cur.ep.ID),
			logger.Uint64("episode", ep.ID))
		w.closeOpen()
	}

	w.cur = w.open(ep)
	w.append(frames)
}

// OnEpisodeData stages frames of the open episode.
func (w *Writer) OnEpisodeData(ep trigger.Episode, frames []audiocore.Frame) {
	if w.cur == nil || w.cur.ep.ID != ep.ID {
		w.log.Debug("data for episode that is not open", logger.Uint64("episode", ep.ID))
		return
	}
	w.cur.ep = ep
	w.append(frames)
}

// OnEpisodeEnd flushes, finalizes and closes the episode file and reports
// its Result.
func (w *Writer) OnEpisodeEnd(ep trigger.Episode) {
	if w.cur == nil || w.cur.ep.ID != ep.ID {
		w.log.Warn("end of episode that is not open", logger.Uint64("episode", ep.ID))
		return
	}
	w.finish(ep)
}

// Tick flushes staged data once the flush interval has passed.
func (w *Writer) Tick() {
	if w.cur == nil || w.stage.Length() == 0 {
		return
	}
	if w.now().Sub(w.cur.lastFlush) >= w.cfg.FlushInterval {
		w.flush()
	}
}

func (w *Writer) closeOpen() {
	if w.cur == nil {
		return
	}
	ep := w.cur.ep
	ep.State = trigger.StateClosed
	ep.Forced = true
	w.finish(ep)
}

func (w *Writer) open(ep trigger.Episode) *episodeFile {
	ef := &episodeFile{ep: ep, lastFlush: w.now()}

	path, err := w.namer.Path(ep, w.format)
	if err != nil {
		ef.err = err
		return ef
	}
	ef.path = path

	if w.cfg.MinFreeBytes > 0 {
		free, err := w.freeSpace(w.cfg.Directory)
		switch {
		case err != nil:
			w.log.Warn("free space check failed", logger.Error(err))
		case free < w.cfg.MinFreeBytes:
			ef.err = errors.New(fmt.Errorf("%w: %d bytes free, %d required",
				ErrInsufficientSpace, free, w.cfg.MinFreeBytes)).
				Component(componentExport).
				Category(errors.CategoryDiskUsage).
				Context("directory", w.cfg.Directory).
				Build()
			return ef
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		ef.err = w.fileError(err, path, "create_directory")
		return ef
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if w.cfg.Overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			err = fmt.Errorf("file %s exists and overwriting is disallowed", path)
		}
		ef.err = w.fileError(err, path, "create_file")
		return ef
	}

	sink, err := w.container.NewSink(file, w.format)
	if err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		ef.err = w.fileError(err, path, "create_sink")
		return ef
	}

	ef.file = file
	ef.sink = sink

	w.log.Info("episode opened",
		logger.Uint64("episode", ep.ID),
		logger.String("path", path),
		logger.Time("start", ep.Start))

	return ef
}

func (w *Writer) append(frames []audiocore.Frame) {
	if w.cur.file == nil {
		return
	}

	for i := range frames {
		w.stageData(frames[i].Data)
	}

	if w.stage.Length() >= w.cfg.BatchBytes || w.now().Sub(w.cur.lastFlush) >= w.cfg.FlushInterval {
		w.flush()
	}
}

func (w *Writer) stageData(p []byte) {
	if len(p) > w.stage.Free() {
		w.flush()
	}
	if len(p) > w.stage.Capacity() {
		// Larger than a whole batch.
		w.write(p)
		w.sync()
		return
	}
	if _, err := w.stage.Write(p); err != nil {
		w.fail(w.fileError(err, w.cur.path, "stage"))
	}
}

// flush writes the staged batch and syncs the file.
func (w *Writer) flush() {
	w.cur.lastFlush = w.now()

	n := w.stage.Length()
	if n == 0 {
		return
	}
	if cap(w.scratch) < n {
		w.scratch = make([]byte, n)
	}
	batch := w.scratch[:n]
	if _, err := w.stage.Read(batch); err != nil {
		w.stage.Reset()
		w.fail(w.fileError(err, w.cur.path, "stage"))
		return
	}

	w.write(batch)
	w.sync()
}

func (w *Writer) write(p []byte) {
	ef := w.cur
	if ef.err != nil {
		return
	}
	if err := ef.sink.Write(p); err != nil {
		w.fail(w.fileError(err, ef.path, "write"))
		return
	}
	ef.bytes += int64(len(p))
}

func (w *Writer) sync() {
	ef := w.cur
	if ef.err != nil {
		return
	}
	if err := ef.file.Sync(); err != nil {
		w.fail(w.fileError(err, ef.path, "sync"))
	}
}

// fail records the first error of the open episode. Later data is dropped.
func (w *Writer) fail(err error) {
	if w.cur.err != nil {
		return
	}
	w.cur.err = err
	w.cur.degraded = true
	w.log.Error("episode write failed", logger.Uint64("episode", w.cur.ep.ID), logger.Error(err))
}

func (w *Writer) finish(ep trigger.Episode) {
	ef := w.cur
	ef.ep = ep

	if ef.file != nil {
		w.flush()
		w.stage.Reset()

		var finalizeErr error
		if err := ef.sink.Finalize(); err != nil {
			finalizeErr = err
		} else if err := ef.file.Sync(); err != nil {
			finalizeErr = err
		}
		if err := ef.file.Close(); err != nil && finalizeErr == nil {
			finalizeErr = err
		}

		if finalizeErr != nil {
			ef.degraded = true
			ferr := errors.New(fmt.Errorf("%w: %w", audiocore.ErrFinalize, finalizeErr)).
				Component(componentExport).
				Category(errors.CategoryEpisode).
				Context("path", ef.path).
				Context("episode_id", ep.ID).
				Build()
			ef.err = errors.Join(ef.err, ferr)
		}
	}
	w.cur = nil

	frameBytes := int64(w.format.FrameBytes())
	res := Result{
		Episode:  ep,
		Path:     ef.path,
		Bytes:    ef.bytes,
		Frames:   int(ef.bytes / frameBytes),
		Degraded: ef.degraded,
		Err:      ef.err,
	}
	res.Duration = w.format.DurationOf(res.Frames)

	switch {
	case res.Err != nil && ef.file == nil:
		w.log.Error("episode not recorded",
			logger.Uint64("episode", ep.ID),
			logger.Error(res.Err))
	case res.Err != nil:
		w.log.Warn("episode closed degraded",
			logger.Uint64("episode", ep.ID),
			logger.String("path", res.Path),
			logger.Int64("bytes", res.Bytes),
			logger.Error(res.Err))
	default:
		w.log.Info("episode closed",
			logger.Uint64("episode", ep.ID),
			logger.String("path", res.Path),
			logger.Duration("duration", res.Duration),
			logger.Bool("forced", ep.Forced))
	}

	w.results <- res
}

func (w *Writer) fileError(err error, path, op string) error {
	return errors.New(err).
		Component(componentExport).
		Category(errors.CategoryFileIO).
		Context("operation", op).
		Context("path", path).
		Build()
}

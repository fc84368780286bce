package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/threshcorder/internal/audiocore/export"
	"github.com/tphakala/threshcorder/internal/session"
)

// StatusSource is implemented by *session.Session.
type StatusSource interface {
	Status() session.Status
}

// SessionMetrics exports the counters of the running capture session and
// observes finished episodes. Counters are read from the session at scrape
// time so the capture path never touches Prometheus.
type SessionMetrics struct {
	source StatusSource

	frames         *prometheus.Desc
	overruns       *prometheus.Desc
	handoffDrops   *prometheus.Desc
	sequenceGaps   *prometheus.Desc
	episodes       *prometheus.Desc
	finalizeErrors *prometheus.Desc
	writerErrors   *prometheus.Desc
	sinkErrors     *prometheus.Desc
	level          *prometheus.Desc
	above          *prometheus.Desc
	state          *prometheus.Desc

	EpisodeDuration prometheus.Histogram
	EpisodeBytes    prometheus.Histogram
	EpisodesWritten *prometheus.CounterVec
}

// NewSessionMetrics creates the session collector and registers it.
func NewSessionMetrics(registry *prometheus.Registry, source StatusSource) (*SessionMetrics, error) {
	m := &SessionMetrics{source: source}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register session metrics: %w", err)
	}
	return m, nil
}

func (m *SessionMetrics) initMetrics() {
	labels := []string{"session_id"}

	m.frames = prometheus.NewDesc("threshcorder_frames_processed_total",
		"Total number of capture periods run through the detector", labels, nil)
	m.overruns = prometheus.NewDesc("threshcorder_capture_overruns_total",
		"Capture periods lost before processing", append(labels, "where"), nil)
	m.handoffDrops = prometheus.NewDesc("threshcorder_handoff_drops_total",
		"Episode data events dropped because the writer queue was full", labels, nil)
	m.sequenceGaps = prometheus.NewDesc("threshcorder_sequence_gaps_total",
		"Discontinuities in the frame sequence seen by the detector", labels, nil)
	m.episodes = prometheus.NewDesc("threshcorder_episodes_total",
		"Episodes by lifecycle outcome", append(labels, "outcome"), nil)
	m.finalizeErrors = prometheus.NewDesc("threshcorder_finalize_errors_total",
		"Episode files that could not be finalized", labels, nil)
	m.writerErrors = prometheus.NewDesc("threshcorder_writer_errors_total",
		"Episodes with a write error", labels, nil)
	m.sinkErrors = prometheus.NewDesc("threshcorder_sink_errors_total",
		"Failed episode sink calls", labels, nil)
	m.level = prometheus.NewDesc("threshcorder_input_level",
		"Level of the last analysis window in the configured unit", labels, nil)
	m.above = prometheus.NewDesc("threshcorder_input_above_threshold",
		"1 while the detector is above threshold", labels, nil)
	m.state = prometheus.NewDesc("threshcorder_trigger_state",
		"Current trigger state (1 for the active state)", append(labels, "state"), nil)

	m.EpisodeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "threshcorder_episode_duration_seconds",
		Help:    "Audio length of written episodes",
		Buckets: prometheus.ExponentialBuckets(BucketStart100ms, BucketFactor2, BucketCount14),
	})
	m.EpisodeBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "threshcorder_episode_size_bytes",
		Help:    "Size of written episode files",
		Buckets: prometheus.ExponentialBuckets(BucketStart1KB, BucketFactor2, BucketCount20),
	})
	m.EpisodesWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "threshcorder_episodes_written_total",
		Help: "Written episodes by result",
	}, []string{"result"})
}

var triggerStates = []string{"idle", "pending", "active", "trailing"}

// Describe implements the prometheus.Collector interface.
func (m *SessionMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.frames
	ch <- m.overruns
	ch <- m.handoffDrops
	ch <- m.sequenceGaps
	ch <- m.episodes
	ch <- m.finalizeErrors
	ch <- m.writerErrors
	ch <- m.sinkErrors
	ch <- m.level
	ch <- m.above
	ch <- m.state
	m.EpisodeDuration.Describe(ch)
	m.EpisodeBytes.Describe(ch)
	m.EpisodesWritten.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *SessionMetrics) Collect(ch chan<- prometheus.Metric) {
	st := m.source.Status()
	id := st.SessionID
	s := st.Stats

	counter := func(desc *prometheus.Desc, v uint64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v),
			append([]string{id}, labels...)...)
	}

	counter(m.frames, s.FramesProcessed)
	counter(m.overruns, s.CaptureOverruns, "ring")
	counter(m.overruns, s.DeviceOverruns, "device")
	counter(m.handoffDrops, s.HandoffDrops)
	counter(m.sequenceGaps, s.SequenceGaps)
	counter(m.episodes, s.EpisodesOpened, "opened")
	counter(m.episodes, s.EpisodesClosed, "closed")
	counter(m.episodes, s.EpisodesDiscarded, "discarded")
	counter(m.episodes, s.EpisodesForced, "forced")
	counter(m.finalizeErrors, s.FinalizeErrors)
	counter(m.writerErrors, s.WriterErrors)
	counter(m.sinkErrors, s.SinkErrors)

	ch <- prometheus.MustNewConstMetric(m.level, prometheus.GaugeValue, st.Level, id)
	ch <- prometheus.MustNewConstMetric(m.above, prometheus.GaugeValue, boolToFloat(st.Above), id)
	for _, name := range triggerStates {
		ch <- prometheus.MustNewConstMetric(m.state, prometheus.GaugeValue,
			boolToFloat(name == st.State), id, name)
	}

	m.EpisodeDuration.Collect(ch)
	m.EpisodeBytes.Collect(ch)
	m.EpisodesWritten.Collect(ch)
}

// Name implements session.Sink.
func (m *SessionMetrics) Name() string { return "metrics" }

// HandleEpisode implements session.Sink by observing the episode's length
// and size.
func (m *SessionMetrics) HandleEpisode(_ context.Context, _ string, res export.Result) error {
	result := "ok"
	if res.Degraded {
		result = "degraded"
	}
	m.EpisodesWritten.WithLabelValues(result).Inc()
	m.EpisodeDuration.Observe(res.Duration.Seconds())
	m.EpisodeBytes.Observe(float64(res.Bytes))
	return nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

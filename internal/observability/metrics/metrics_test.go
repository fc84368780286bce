package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/threshcorder/internal/audiocore/export"
	"github.com/tphakala/threshcorder/internal/session"
)

type fixedStatus session.Status

func (f fixedStatus) Status() session.Status { return session.Status(f) }

func TestSessionMetrics_Collect(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewSessionMetrics(registry, fixedStatus{
		SessionID: "s1",
		State:     "active",
		Level:     0.25,
		Above:     true,
		Stats: session.Stats{
			FramesProcessed:   120,
			CaptureOverruns:   3,
			DeviceOverruns:    1,
			EpisodesOpened:    2,
			EpisodesDiscarded: 4,
		},
	})
	require.NoError(t, err)

	expected := `
# HELP threshcorder_capture_overruns_total Capture periods lost before processing
# TYPE threshcorder_capture_overruns_total counter
threshcorder_capture_overruns_total{session_id="s1",where="device"} 1
threshcorder_capture_overruns_total{session_id="s1",where="ring"} 3
# HELP threshcorder_frames_processed_total Total number of capture periods run through the detector
# TYPE threshcorder_frames_processed_total counter
threshcorder_frames_processed_total{session_id="s1"} 120
# HELP threshcorder_input_level Level of the last analysis window in the configured unit
# TYPE threshcorder_input_level gauge
threshcorder_input_level{session_id="s1"} 0.25
# HELP threshcorder_trigger_state Current trigger state (1 for the active state)
# TYPE threshcorder_trigger_state gauge
threshcorder_trigger_state{session_id="s1",state="active"} 1
threshcorder_trigger_state{session_id="s1",state="idle"} 0
threshcorder_trigger_state{session_id="s1",state="pending"} 0
threshcorder_trigger_state{session_id="s1",state="trailing"} 0
`
	require.NoError(t, testutil.CollectAndCompare(m, strings.NewReader(expected),
		"threshcorder_capture_overruns_total",
		"threshcorder_frames_processed_total",
		"threshcorder_input_level",
		"threshcorder_trigger_state"))
}

func TestSessionMetrics_HandleEpisode(t *testing.T) {
	t.Parallel()

	m, err := NewSessionMetrics(prometheus.NewRegistry(), fixedStatus{SessionID: "s1"})
	require.NoError(t, err)

	require.NoError(t, m.HandleEpisode(context.Background(), "s1", export.Result{
		Duration: 2 * time.Second,
		Bytes:    4096,
	}))
	require.NoError(t, m.HandleEpisode(context.Background(), "s1", export.Result{
		Duration: time.Second,
		Degraded: true,
	}))

	assert.InDelta(t, 1, testutil.ToFloat64(m.EpisodesWritten.WithLabelValues("ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.EpisodesWritten.WithLabelValues("degraded")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.EpisodeDuration))
}

func TestSinkMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewSinkMetrics(registry)
	require.NoError(t, err)

	var r Recorder = m
	r.RecordOperation(OpMQTTPublish, StatusSuccess)
	r.RecordOperation(OpMQTTPublish, StatusSuccess)
	r.RecordOperation(OpArchiveUpload, StatusError)
	r.RecordError(OpArchiveUpload, "network")
	r.RecordDuration(OpArchiveUpload, 0.3)

	assert.InDelta(t, 2, testutil.ToFloat64(m.Operations.WithLabelValues(OpMQTTPublish, StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Errors.WithLabelValues(OpArchiveUpload, "network")), 0)

	_, err = NewSinkMetrics(registry)
	assert.Error(t, err, "duplicate registration")
}

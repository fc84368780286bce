package mqtt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tphakala/threshcorder/internal/audiocore/export"
	"github.com/tphakala/threshcorder/internal/observability/metrics"
)

// Sink publishes an EpisodeMessage for every written episode.
type Sink struct {
	client  Client
	topic   string
	metrics metrics.Recorder
}

// NewSink returns a session sink publishing through client. rec may be nil.
func NewSink(client Client, cfg Config, rec metrics.Recorder) *Sink {
	if rec == nil {
		rec = metrics.NopRecorder{}
	}
	return &Sink{client: client, topic: cfg.Topic + "/episodes", metrics: rec}
}

// Name implements session.Sink.
func (s *Sink) Name() string { return componentMQTT }

// HandleEpisode implements session.Sink. A disconnected client is asked to
// reconnect once before publishing.
func (s *Sink) HandleEpisode(ctx context.Context, sessionID string, res export.Result) error {
	payload, err := json.Marshal(NewEpisodeMessage(sessionID, res))
	if err != nil {
		return err
	}

	start := time.Now()
	if !s.client.IsConnected() {
		if err := s.client.Connect(ctx); err != nil {
			s.fail("connection")
			return err
		}
	}
	err = s.client.Publish(ctx, s.topic, payload)
	s.metrics.RecordDuration(metrics.OpMQTTPublish, time.Since(start).Seconds())
	if err != nil {
		s.fail("publish")
		return err
	}

	s.metrics.RecordOperation(metrics.OpMQTTPublish, metrics.StatusSuccess)
	return nil
}

func (s *Sink) fail(errorType string) {
	s.metrics.RecordOperation(metrics.OpMQTTPublish, metrics.StatusError)
	s.metrics.RecordError(metrics.OpMQTTPublish, errorType)
}

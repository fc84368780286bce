package diskmanager

import (
	"context"
	"time"

	"github.com/tphakala/threshcorder/internal/audiocore/export"
	"github.com/tphakala/threshcorder/internal/observability/metrics"
)

// Sink runs a retention pass after every written episode.
type Sink struct {
	pruner  *Pruner
	metrics metrics.Recorder
}

// NewSink wraps p. rec may be nil.
func NewSink(p *Pruner, rec metrics.Recorder) *Sink {
	if rec == nil {
		rec = metrics.NopRecorder{}
	}
	return &Sink{pruner: p, metrics: rec}
}

// Name implements session.Sink.
func (s *Sink) Name() string { return componentDisk }

// HandleEpisode implements session.Sink. The episode's own file is never
// pruned.
func (s *Sink) HandleEpisode(ctx context.Context, _ string, res export.Result) error {
	start := time.Now()
	r, err := s.pruner.Prune(ctx, res.Path)
	s.metrics.RecordDuration(metrics.OpRetentionPrune, time.Since(start).Seconds())

	switch {
	case err != nil:
		s.metrics.RecordOperation(metrics.OpRetentionPrune, metrics.StatusError)
		s.metrics.RecordError(metrics.OpRetentionPrune, "filesystem")
		return err
	case r.Deleted == 0:
		s.metrics.RecordOperation(metrics.OpRetentionPrune, metrics.StatusSkipped)
	default:
		s.metrics.RecordOperation(metrics.OpRetentionPrune, metrics.StatusSuccess)
	}
	return nil
}

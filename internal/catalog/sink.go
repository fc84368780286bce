package catalog

import (
	"context"
	"time"

	"github.com/tphakala/threshcorder/internal/audiocore"
	"github.com/tphakala/threshcorder/internal/audiocore/export"
	"github.com/tphakala/threshcorder/internal/logger"
	"github.com/tphakala/threshcorder/internal/observability/metrics"
)

// Sink records finished episodes in the catalogue.
type Sink struct {
	store   *Store
	format  audiocore.Format
	metrics metrics.Recorder
}

// NewSink returns a session sink writing to store. rec may be nil.
func NewSink(store *Store, format audiocore.Format, rec metrics.Recorder) *Sink {
	if rec == nil {
		rec = metrics.NopRecorder{}
	}
	return &Sink{store: store, format: format, metrics: rec}
}

// Name implements session.Sink.
func (s *Sink) Name() string { return componentCatalog }

// HandleEpisode implements session.Sink.
func (s *Sink) HandleEpisode(ctx context.Context, sessionID string, res export.Result) error {
	start := time.Now()
	ep := FromResult(sessionID, res, s.format.Sample.String(), s.format.SampleRate, s.format.Channels)

	err := s.store.Save(ctx, &ep)
	s.metrics.RecordDuration(metrics.OpCatalogInsert, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordOperation(metrics.OpCatalogInsert, metrics.StatusError)
		s.metrics.RecordError(metrics.OpCatalogInsert, "database")
		return err
	}
	s.metrics.RecordOperation(metrics.OpCatalogInsert, metrics.StatusSuccess)

	s.store.log.Debug("episode catalogued",
		logger.Uint64("episode", res.Episode.ID),
		logger.String("path", res.Path))
	return nil
}

package session

import (
	"context"
	"time"

	"github.com/tphakala/threshcorder/internal/audiocore/export"
	"github.com/tphakala/threshcorder/internal/logger"
)

// sinkTimeout bounds one sink call.
const sinkTimeout = 2 * time.Minute

// dispatchQueue is the number of finished episodes waiting for the sinks.
const dispatchQueue = 64

// Sink receives finished episodes after their files are closed. Sinks run
// on their own goroutine, one episode at a time; a failing sink is logged
// and never affects capture or writing.
type Sink interface {
	Name() string
	HandleEpisode(ctx context.Context, sessionID string, res export.Result) error
}

// collect consumes writer results, updates counters and the recent episode
// list and queues recorded episodes for the sinks.
func (s *Session) collect() error {
	defer close(s.dispatchQ)

	for res := range s.writer.Results() {
		switch {
		case res.Err == nil:
			s.stats.written.Add(1)
		case res.Degraded:
			s.stats.written.Add(1)
			s.stats.writerErrors.Add(1)
		default:
			s.stats.writerErrors.Add(1)
		}
		if res.Err != nil && isFinalizeError(res.Err) {
			s.stats.finalizeErrors.Add(1)
		}

		s.remember(res)

		if len(s.sinks) == 0 || (res.Err != nil && !res.Degraded) {
			continue
		}
		select {
		case s.dispatchQ <- res:
		default:
			s.log.Warn("episode sink queue full, skipping sinks for episode",
				logger.Uint64("episode", res.Episode.ID),
				logger.String("path", res.Path))
		}
	}
	return nil
}

// dispatch hands queued episodes to every sink in order.
func (s *Session) dispatch() error {
	for res := range s.dispatchQ {
		for _, sink := range s.sinks {
			ctx, cancel := context.WithTimeout(s.ctx, sinkTimeout)
			err := sink.HandleEpisode(ctx, s.id, res)
			cancel()
			if err != nil {
				s.stats.sinkErrors.Add(1)
				s.log.Warn("episode sink failed",
					logger.String("sink", sink.Name()),
					logger.Uint64("episode", res.Episode.ID),
					logger.Error(err))
			}
		}
	}
	return nil
}

const recentEpisodes = 100

func (s *Session) remember(res export.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.recent) == recentEpisodes {
		copy(s.recent, s.recent[1:])
		s.recent = s.recent[:recentEpisodes-1]
	}
	s.recent = append(s.recent, res)
}

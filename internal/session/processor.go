package session

import (
	"math"
	"sync/atomic"

	"github.com/tphakala/threshcorder/internal/audiocore"
	"github.com/tphakala/threshcorder/internal/audiocore/capture"
	"github.com/tphakala/threshcorder/internal/audiocore/level"
	"github.com/tphakala/threshcorder/internal/audiocore/ringbuffer"
	"github.com/tphakala/threshcorder/internal/audiocore/trigger"
	"github.com/tphakala/threshcorder/internal/logger"
)

// processor is the processing domain: it drains the ring through the level
// detector and the trigger machine and feeds episode events to the handoff.
type processor struct {
	ring     *ringbuffer.Ring
	driver   *capture.Driver
	detector *level.Detector
	machine  *trigger.Machine
	handoff  *handoff
	stats    *counters
	log      logger.Logger

	frame audiocore.Frame

	// Read by Status from other goroutines.
	level   atomic.Uint64 // math.Float64bits of the last window level
	above   atomic.Bool
	state   atomic.Int32
	episode atomic.Uint64 // ID of the open episode, 0 when idle

	episodeDrops uint64 // handoff drops in the open episode
}

func newProcessor(ring *ringbuffer.Ring, driver *capture.Driver, det *level.Detector,
	m *trigger.Machine, h *handoff, stats *counters, log logger.Logger) *processor {
	return &processor{
		ring:     ring,
		driver:   driver,
		detector: det,
		machine:  m,
		handoff:  h,
		stats:    stats,
		log:      log,
	}
}

// run processes frames until the capture loop ends or stop is closed. Frames
// still in the ring are processed and an open episode is force-closed before
// the handoff is closed.
func (p *processor) run(stop <-chan struct{}) error {
	defer p.handoff.close()

	for {
		select {
		case <-p.driver.Ready():
			p.drain()
		case <-p.driver.Done():
			p.finish()
			return nil
		case <-stop:
			p.finish()
			return nil
		}
	}
}

func (p *processor) drain() {
	for p.ring.PopInto(&p.frame) {
		p.process(&p.frame)
	}
	p.stats.gaps.Store(p.detector.Gaps())
}

func (p *processor) process(f *audiocore.Frame) {
	if samples := p.detector.Process(f); len(samples) > 0 {
		last := samples[len(samples)-1]
		p.level.Store(math.Float64bits(last.Value))
		if last.Changed {
			p.log.Debug("level crossed threshold",
				logger.Bool("above", last.Above),
				logger.Float64("level", last.Value),
				logger.Uint64("seq", last.LastSeq))
		}
	}

	above := p.detector.Above()
	p.above.Store(above)
	p.dispatch(p.machine.Step(f, above))
	p.stats.frames.Add(1)
}

func (p *processor) finish() {
	p.drain()
	p.dispatch(p.machine.Flush())
}

func (p *processor) dispatch(events []trigger.Event) {
	for i := range events {
		ev := &events[i]

		switch ev.Kind {
		case trigger.EventStart:
			p.stats.opened.Add(1)
			p.episodeDrops = 0
			p.log.Info("episode started",
				logger.Uint64("episode", ev.Episode.ID),
				logger.Uint64("trigger_seq", ev.Episode.TriggerSeq),
				logger.Int("pre_roll_frames", ev.Episode.PreRoll))
		case trigger.EventEnd:
			p.stats.closed.Add(1)
			if ev.Episode.Forced {
				p.stats.forced.Add(1)
			}
			if p.episodeDrops > 0 {
				p.log.Warn("episode lost data in handoff queue",
					logger.Uint64("episode", ev.Episode.ID),
					logger.Error(handoffLoss(p.episodeDrops)))
			}
		case trigger.EventDiscard:
			p.stats.discarded.Add(1)
			p.log.Debug("episode discarded before hold elapsed", logger.Uint64("episode", ev.Episode.ID))
		}

		if !p.handoff.send(*ev) {
			p.episodeDrops++
			if ev.Kind.IsControl() {
				p.log.Error("writer stalled, episode event dropped",
					logger.Uint64("episode", ev.Episode.ID),
					logger.String("event", ev.Kind.String()),
					logger.Duration("waited", p.handoff.wait))
			}
		}
	}
	p.state.Store(int32(p.machine.State()))
	if ep, ok := p.machine.Current(); ok && ep.State != trigger.StatePending {
		p.episode.Store(ep.ID)
	} else {
		p.episode.Store(0)
	}
}

func (p *processor) currentLevel() float64 {
	return math.Float64frombits(p.level.Load())
}

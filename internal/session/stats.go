package session

import (
	"fmt"
	"sync/atomic"

	"github.com/tphakala/threshcorder/internal/audiocore"
	"github.com/tphakala/threshcorder/internal/errors"
)

// Stats are the diagnostic counters of a session. All are monotonic.
type Stats struct {
	FramesCaptured    uint64 `json:"frames_captured"`
	FramesProcessed   uint64 `json:"frames_processed"`
	CaptureOverruns   uint64 `json:"capture_overruns"` // frames dropped at the ring
	DeviceOverruns    uint64 `json:"device_overruns"`  // periods lost inside the backend
	HandoffDrops      uint64 `json:"handoff_drops"`    // episode events dropped before the writer
	ControlDrops      uint64 `json:"control_drops"`    // start/end events among HandoffDrops
	SequenceGaps      uint64 `json:"sequence_gaps"`
	EpisodesOpened    uint64 `json:"episodes_opened"`
	EpisodesClosed    uint64 `json:"episodes_closed"`
	EpisodesDiscarded uint64 `json:"episodes_discarded"`
	EpisodesForced    uint64 `json:"episodes_forced"`
	EpisodesWritten   uint64 `json:"episodes_written"`
	FinalizeErrors    uint64 `json:"finalize_errors"`
	WriterErrors      uint64 `json:"writer_errors"`
	SinkErrors        uint64 `json:"sink_errors"`
}

type counters struct {
	frames         atomic.Uint64
	gaps           atomic.Uint64
	opened         atomic.Uint64
	closed         atomic.Uint64
	discarded      atomic.Uint64
	forced         atomic.Uint64
	written        atomic.Uint64
	finalizeErrors atomic.Uint64
	writerErrors   atomic.Uint64
	sinkErrors     atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		FramesProcessed:   c.frames.Load(),
		SequenceGaps:      c.gaps.Load(),
		EpisodesOpened:    c.opened.Load(),
		EpisodesClosed:    c.closed.Load(),
		EpisodesDiscarded: c.discarded.Load(),
		EpisodesForced:    c.forced.Load(),
		EpisodesWritten:   c.written.Load(),
		FinalizeErrors:    c.finalizeErrors.Load(),
		WriterErrors:      c.writerErrors.Load(),
		SinkErrors:        c.sinkErrors.Load(),
	}
}

// DataLoss returns an error describing audio lost to overruns or handoff
// drops, or nil when nothing was lost. It matches audiocore.ErrCaptureOverrun
// and audiocore.ErrHandoffDrop with errors.Is.
func (st Stats) DataLoss() error {
	var errs []error
	if n := st.CaptureOverruns + st.DeviceOverruns; n > 0 {
		errs = append(errs, fmt.Errorf("%w: %d periods lost before processing", audiocore.ErrCaptureOverrun, n))
	}
	if st.HandoffDrops > 0 {
		errs = append(errs, handoffLoss(st.HandoffDrops))
	}
	return errors.Join(errs...)
}

func handoffLoss(n uint64) error {
	return fmt.Errorf("%w: %d events not written", audiocore.ErrHandoffDrop, n)
}

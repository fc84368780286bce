// Package trigger decides where recording episodes begin and end.
//
// The Machine is a pure function of the frames and above/below decisions fed
// to it: it performs no I/O, never fails and measures time in sample frames,
// so identical input always yields identical episodes.
package trigger

import (
	"fmt"
	"time"

	"github.com/tphakala/threshcorder/internal/audiocore"
)

// State is the capture state of the machine and of an episode.
type State int

const (
	StateIdle State = iota
	// StatePending: threshold crossed, waiting for the hold duration.
	StatePending
	// StateActive: confirmed recording.
	StateActive
	// StateTrailing: below threshold inside the silence window.
	StateTrailing
	// StateClosed: episode ended; the machine returns to StateIdle.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateTrailing:
		return "trailing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Episode is a snapshot of one recording. The machine owns the live copy;
// events carry values.
type Episode struct {
	ID         uint64
	State      State
	StartSeq   uint64    // first frame, pre-roll included
	EndSeq     uint64    // last frame so far; final once State is StateClosed
	Start      time.Time // timestamp of the first sample
	TriggerSeq uint64    // frame that crossed the threshold
	TriggerAt  time.Time
	Frames     int  // sample frames in the episode
	PreRoll    int  // sample frames of the episode that precede the trigger frame
	Forced     bool // closed by Flush rather than by silence
}

// Duration returns the audio length of the episode in format.
func (e *Episode) Duration(format audiocore.Format) time.Duration {
	return format.DurationOf(e.Frames)
}

// EventKind identifies an episode lifecycle event.
type EventKind int

const (
	// EventStart: the episode was confirmed. Frames holds the pre-roll and
	// every frame seen while pending.
	EventStart EventKind = iota + 1
	// EventData: one more frame of an active or trailing episode.
	EventData
	// EventEnd: the episode is closed. Frames is empty.
	EventEnd
	// EventDiscard: a pending episode fell below threshold before the hold
	// elapsed. Nothing was emitted for it and no file must exist.
	EventDiscard
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventData:
		return "data"
	case EventEnd:
		return "end"
	case EventDiscard:
		return "discard"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// IsControl reports whether the event changes episode lifecycle.
func (k EventKind) IsControl() bool {
	return k == EventStart || k == EventEnd
}

// Event is emitted by the Machine. Frames are owned by the receiver.
type Event struct {
	Kind    EventKind
	Episode Episode
	Frames  []audiocore.Frame
}

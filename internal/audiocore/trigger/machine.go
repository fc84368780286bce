package trigger

import (
	"time"

	"github.com/tphakala/threshcorder/internal/audiocore"
	"github.com/tphakala/threshcorder/internal/errors"
)

// Config holds the episode timing policy of a session.
type Config struct {
	PreRoll time.Duration // lookback copied into a new episode
	Hold    time.Duration // time above threshold before an episode is confirmed
	Silence time.Duration // time below threshold before an episode is closed
	FirstID uint64        // ID of the first episode; 0 means 1
}

// DefaultConfig returns 1s pre-roll, 250ms hold and a 5s silence window.
func DefaultConfig() Config {
	return Config{
		PreRoll: time.Second,
		Hold:    250 * time.Millisecond,
		Silence: 5 * time.Second,
		FirstID: 1,
	}
}

// Validate rejects negative durations.
func (c Config) Validate() error {
	if c.PreRoll < 0 || c.Hold < 0 || c.Silence < 0 {
		return errors.Newf("trigger durations must not be negative (pre-roll %s, hold %s, silence %s)",
			c.PreRoll, c.Hold, c.Silence).
			Component("trigger").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// Machine is the capture state machine. It is not safe for concurrent use.
type Machine struct {
	format        audiocore.Format
	holdFrames    int
	silenceFrames int

	preRoll *PreRoll
	state   State
	ep      Episode
	pending []audiocore.Frame
	held    int
	silent  int
	nextID  uint64

	events []Event
}

// NewMachine returns an idle machine for frames in format.
func NewMachine(cfg Config, format audiocore.Format) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	nextID := cfg.FirstID
	if nextID == 0 {
		nextID = 1
	}

	return &Machine{
		format:        format,
		holdFrames:    format.FramesFor(cfg.Hold),
		silenceFrames: format.FramesFor(cfg.Silence),
		preRoll:       NewPreRoll(format, cfg.PreRoll),
		nextID:        nextID,
		events:        make([]Event, 0, 2),
	}, nil
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Current returns a snapshot of the open episode, if any.
func (m *Machine) Current() (Episode, bool) {
	if m.state == StateIdle {
		return Episode{}, false
	}
	return m.ep, true
}

// Step advances the machine by one frame and the detector decision taken
// after that frame. The returned slice is reused by the next call; the
// frames inside the events are copies owned by the caller.
func (m *Machine) Step(f *audiocore.Frame, above bool) []Event {
	m.events = m.events[:0]

	switch m.state {
	case StateIdle:
		if above {
			m.open(f)
			if m.held >= m.holdFrames {
				m.confirm()
			}
		}

	case StatePending:
		if !above {
			m.discard()
			break
		}
		m.pending = append(m.pending, f.Clone())
		m.extend(f)
		m.held += f.FrameCount
		if m.held >= m.holdFrames {
			m.confirm()
		}

	case StateActive:
		m.extend(f)
		m.emitData(f)
		if !above {
			m.state = StateTrailing
			m.ep.State = StateTrailing
			m.silent = f.FrameCount
			if m.silent >= m.silenceFrames {
				m.close(false)
			}
		}

	case StateTrailing:
		m.extend(f)
		m.emitData(f)
		if above {
			m.state = StateActive
			m.ep.State = StateActive
			m.silent = 0
			break
		}
		m.silent += f.FrameCount
		if m.silent >= m.silenceFrames {
			m.close(false)
		}
	}

	m.preRoll.Push(f)
	return m.events
}

// Flush force-closes any open episode. A pending episode is confirmed first
// so that its audio is kept. The pre-roll is emptied: frames seen before a
// flush never lead into a later episode.
func (m *Machine) Flush() []Event {
	m.events = m.events[:0]
	defer m.preRoll.Reset()

	switch m.state {
	case StatePending:
		m.confirm()
		m.close(true)
	case StateActive, StateTrailing:
		m.close(true)
	}

	return m.events
}

func (m *Machine) open(f *audiocore.Frame) {
	preRoll := m.preRoll.Available()
	m.pending = append(m.preRoll.Snapshot(), f.Clone())

	first := &m.pending[0]
	m.ep = Episode{
		ID:         m.nextID,
		State:      StatePending,
		StartSeq:   first.Seq,
		EndSeq:     f.Seq,
		Start:      first.Timestamp,
		TriggerSeq: f.Seq,
		TriggerAt:  f.Timestamp,
		Frames:     preRoll + f.FrameCount,
		PreRoll:    preRoll,
	}
	m.nextID++
	m.state = StatePending
	m.held = f.FrameCount
}

func (m *Machine) extend(f *audiocore.Frame) {
	m.ep.EndSeq = f.Seq
	m.ep.Frames += f.FrameCount
}

func (m *Machine) confirm() {
	m.state = StateActive
	m.ep.State = StateActive
	m.events = append(m.events, Event{Kind: EventStart, Episode: m.ep, Frames: m.pending})
	m.pending = nil
	m.held = 0
}

func (m *Machine) emitData(f *audiocore.Frame) {
	m.events = append(m.events, Event{
		Kind:    EventData,
		Episode: m.ep,
		Frames:  []audiocore.Frame{f.Clone()},
	})
}

func (m *Machine) discard() {
	m.ep.State = StateClosed
	m.events = append(m.events, Event{Kind: EventDiscard, Episode: m.ep})
	m.reset()
}

func (m *Machine) close(forced bool) {
	m.ep.State = StateClosed
	m.ep.Forced = forced
	m.events = append(m.events, Event{Kind: EventEnd, Episode: m.ep})
	m.reset()
}

func (m *Machine) reset() {
	m.state = StateIdle
	m.ep = Episode{}
	m.pending = nil
	m.held = 0
	m.silent = 0
}

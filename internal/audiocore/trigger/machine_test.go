package trigger

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/threshcorder/internal/audiocore"
)

// 1 kHz mono with 10-sample frames: one frame is 10ms.
var testFormat = audiocore.Format{SampleRate: 1000, Channels: 1, Sample: audiocore.FormatS16LE}

const framePeriod = 10

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testFrame(seq uint64) *audiocore.Frame {
	data := make([]byte, framePeriod*testFormat.FrameBytes())
	for i := range data {
		data[i] = byte(seq)
	}
	return &audiocore.Frame{
		Seq:        seq,
		Timestamp:  epoch.Add(time.Duration(seq) * framePeriod * time.Millisecond),
		FrameCount: framePeriod,
		Data:       data,
	}
}

// harness feeds frames with increasing sequence numbers and records events.
type harness struct {
	t      *testing.T
	m      *Machine
	seq    uint64
	events []Event
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	m, err := NewMachine(cfg, testFormat)
	require.NoError(t, err)
	return &harness{t: t, m: m}
}

func (h *harness) feed(n int, above bool) {
	for range n {
		h.events = append(h.events, h.m.Step(testFrame(h.seq), above)...)
		h.seq++
	}
}

func (h *harness) flush() {
	h.events = append(h.events, h.m.Flush()...)
}

func (h *harness) kinds() []EventKind {
	out := make([]EventKind, 0, len(h.events))
	for _, e := range h.events {
		if e.Kind == EventData {
			continue
		}
		out = append(out, e.Kind)
	}
	return out
}

func (h *harness) count(kind EventKind) int {
	n := 0
	for _, e := range h.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (h *harness) first(kind EventKind) Event {
	for _, e := range h.events {
		if e.Kind == kind {
			return e
		}
	}
	h.t.Fatalf("no %s event", kind)
	return Event{}
}

func sampleFrames(frames []audiocore.Frame) int {
	n := 0
	for i := range frames {
		n += frames[i].FrameCount
	}
	return n
}

func baseConfig() Config {
	return Config{
		PreRoll: 50 * time.Millisecond,
		Hold:    200 * time.Millisecond,
		Silence: 500 * time.Millisecond,
	}
}

func TestMachine_SpikeShorterThanHoldIsDiscarded(t *testing.T) {
	h := newHarness(t, baseConfig())

	h.feed(20, false)
	h.feed(5, true) // 50ms
	h.feed(100, false)

	assert.Equal(t, []EventKind{EventDiscard}, h.kinds())
	assert.Zero(t, h.count(EventStart))
	assert.Zero(t, h.count(EventData))
	assert.Equal(t, StateIdle, h.m.State())

	d := h.first(EventDiscard)
	assert.Equal(t, StateClosed, d.Episode.State)
	assert.Empty(t, d.Frames)
}

func TestMachine_ConfirmedAfterHold(t *testing.T) {
	h := newHarness(t, baseConfig())

	h.feed(20, false)
	h.feed(19, true)
	assert.Zero(t, h.count(EventStart), "hold not yet reached")
	assert.Equal(t, StatePending, h.m.State())

	h.feed(1, true)
	require.Equal(t, 1, h.count(EventStart))
	assert.Equal(t, StateActive, h.m.State())

	start := h.first(EventStart)
	assert.Equal(t, uint64(1), start.Episode.ID)
	assert.Equal(t, StateActive, start.Episode.State)
	assert.Equal(t, uint64(20), start.Episode.TriggerSeq)
	assert.Equal(t, 50, start.Episode.PreRoll)
	// Pre-roll plus the 20 frames held while pending.
	assert.Equal(t, 50+200, sampleFrames(start.Frames))
	assert.Equal(t, start.Episode.Frames, sampleFrames(start.Frames))
	assert.Equal(t, uint64(15), start.Episode.StartSeq)
	assert.Equal(t, uint64(39), start.Episode.EndSeq)
}

func TestMachine_PreRollExactWhenTrimmed(t *testing.T) {
	cfg := baseConfig()
	cfg.PreRoll = 55 * time.Millisecond
	cfg.Hold = 0
	h := newHarness(t, cfg)

	h.feed(30, false)
	h.feed(1, true)

	start := h.first(EventStart)
	require.Len(t, start.Frames, 7) // half a frame, five frames, trigger frame
	assert.Equal(t, 55, start.Episode.PreRoll)
	assert.Equal(t, 55, sampleFrames(start.Frames[:6]))

	first := start.Frames[0]
	assert.Equal(t, uint64(24), first.Seq)
	assert.Equal(t, 5, first.FrameCount)
	assert.Len(t, first.Data, 5*testFormat.FrameBytes())
	assert.Equal(t, epoch.Add(245*time.Millisecond), first.Timestamp)
	assert.Equal(t, first.Timestamp, start.Episode.Start)

	for i, f := range start.Frames[1:] {
		assert.Equal(t, uint64(25+i), f.Seq)
	}
}

func TestMachine_PreRollShortfallStartsAtSessionStart(t *testing.T) {
	cfg := baseConfig()
	cfg.Hold = 0
	h := newHarness(t, cfg)

	h.feed(2, false)
	h.feed(1, true)

	start := h.first(EventStart)
	assert.Equal(t, uint64(0), start.Episode.StartSeq)
	assert.Equal(t, 20, start.Episode.PreRoll)
	assert.Equal(t, epoch, start.Episode.Start)
}

func TestMachine_ZeroPreRoll(t *testing.T) {
	cfg := baseConfig()
	cfg.PreRoll = 0
	cfg.Hold = 0
	h := newHarness(t, cfg)

	h.feed(10, false)
	h.feed(1, true)

	start := h.first(EventStart)
	require.Len(t, start.Frames, 1)
	assert.Equal(t, uint64(10), start.Frames[0].Seq)
	assert.Zero(t, start.Episode.PreRoll)
}

// Above 1s, below 100ms, above 1s with a 500ms silence window yields one
// episode covering both bursts and the dip.
func TestMachine_DipShorterThanSilenceKeepsOneEpisode(t *testing.T) {
	h := newHarness(t, baseConfig())

	h.feed(10, false)
	h.feed(100, true)
	h.feed(10, false)
	h.feed(100, true)
	assert.Equal(t, StateActive, h.m.State())

	h.feed(50, false)

	assert.Equal(t, []EventKind{EventStart, EventEnd}, h.kinds())

	end := h.first(EventEnd)
	assert.False(t, end.Episode.Forced)
	assert.Equal(t, StateClosed, end.Episode.State)
	// pre-roll + 1s + 100ms + 1s + 500ms trailing silence
	assert.Equal(t, 50+1000+100+1000+500, end.Episode.Frames)
	assert.Equal(t, 2650*time.Millisecond, end.Episode.Duration(testFormat))

	start := h.first(EventStart)
	dataFrames := 0
	for _, e := range h.events {
		if e.Kind == EventData {
			dataFrames += sampleFrames(e.Frames)
		}
	}
	assert.Equal(t, end.Episode.Frames, sampleFrames(start.Frames)+dataFrames)
}

func TestMachine_SilenceWindowClosesEpisode(t *testing.T) {
	h := newHarness(t, baseConfig())

	h.feed(30, true)
	h.feed(49, false)
	assert.Equal(t, StateTrailing, h.m.State())
	assert.Zero(t, h.count(EventEnd))

	h.feed(1, false)
	assert.Equal(t, 1, h.count(EventEnd))
	assert.Equal(t, StateIdle, h.m.State())

	_, open := h.m.Current()
	assert.False(t, open)
}

func TestMachine_RetriggerInsideTrailingResetsSilence(t *testing.T) {
	h := newHarness(t, baseConfig())

	h.feed(30, true)
	h.feed(40, false)
	h.feed(1, true)
	h.feed(40, false)
	assert.Equal(t, StateTrailing, h.m.State(), "silence counter restarted after the re-trigger")
	assert.Zero(t, h.count(EventEnd))

	h.feed(10, false)
	assert.Equal(t, 1, h.count(EventEnd))
	assert.Equal(t, 1, h.count(EventStart))
}

func TestMachine_ZeroSilenceClosesOnFirstBelowFrame(t *testing.T) {
	cfg := baseConfig()
	cfg.Silence = 0
	cfg.Hold = 0
	h := newHarness(t, cfg)

	h.feed(3, true)
	h.feed(1, false)

	assert.Equal(t, []EventKind{EventStart, EventEnd}, h.kinds())
	assert.Equal(t, uint64(3), h.first(EventEnd).Episode.EndSeq)
}

func TestMachine_SecondEpisodeGetsNextID(t *testing.T) {
	cfg := baseConfig()
	cfg.FirstID = 41
	h := newHarness(t, cfg)

	h.feed(30, true)
	h.feed(60, false)
	h.feed(3, true)
	h.feed(10, false) // discarded: IDs still advance
	h.feed(30, true)
	h.feed(60, false)

	assert.Equal(t, []EventKind{EventStart, EventEnd, EventDiscard, EventStart, EventEnd}, h.kinds())

	var ids []uint64
	for _, e := range h.events {
		if e.Kind == EventStart {
			ids = append(ids, e.Episode.ID)
		}
	}
	assert.Equal(t, []uint64{41, 43}, ids)
}

func TestMachine_Flush(t *testing.T) {
	t.Run("idle", func(t *testing.T) {
		h := newHarness(t, baseConfig())
		h.feed(5, false)
		assert.Empty(t, h.m.Flush())
	})

	t.Run("pending_is_promoted_then_closed", func(t *testing.T) {
		h := newHarness(t, baseConfig())
		h.feed(10, false)
		h.feed(3, true)
		require.Equal(t, StatePending, h.m.State())

		h.flush()
		assert.Equal(t, []EventKind{EventStart, EventEnd}, h.kinds())

		start := h.first(EventStart)
		assert.Equal(t, 50+30, sampleFrames(start.Frames))
		end := h.first(EventEnd)
		assert.True(t, end.Episode.Forced)
		assert.Equal(t, start.Episode.ID, end.Episode.ID)
		assert.Equal(t, StateIdle, h.m.State())
	})

	t.Run("active", func(t *testing.T) {
		h := newHarness(t, baseConfig())
		h.feed(40, true)
		h.flush()
		assert.Equal(t, []EventKind{EventStart, EventEnd}, h.kinds())
		assert.True(t, h.first(EventEnd).Episode.Forced)
		assert.Equal(t, uint64(39), h.first(EventEnd).Episode.EndSeq)
	})

	t.Run("trailing", func(t *testing.T) {
		h := newHarness(t, baseConfig())
		h.feed(40, true)
		h.feed(5, false)
		h.flush()
		assert.True(t, h.first(EventEnd).Episode.Forced)
		assert.Empty(t, h.m.Flush(), "second flush is a no-op")
	})

	t.Run("pre_roll_cleared", func(t *testing.T) {
		h := newHarness(t, baseConfig())
		h.feed(10, false)
		h.flush()

		h.feed(20, true)
		start := h.first(EventStart)
		assert.Zero(t, start.Episode.PreRoll)
		assert.Equal(t, uint64(10), start.Episode.StartSeq)
	})
}

func TestMachine_EventFramesAreCopies(t *testing.T) {
	cfg := baseConfig()
	cfg.Hold = 0
	m, err := NewMachine(cfg, testFormat)
	require.NoError(t, err)

	f := testFrame(1)
	events := m.Step(f, true)
	require.Len(t, events, 1)
	startFrames := events[0].Frames

	f.Data[0] = 0xEE
	f2 := testFrame(2)
	events = m.Step(f2, true)
	require.Len(t, events, 1)
	dataFrame := events[0].Frames[0]
	f2.Data[0] = 0xEE

	assert.Equal(t, byte(1), startFrames[0].Data[0])
	assert.Equal(t, byte(2), dataFrame.Data[0])
}

// Random decisions must never produce overlapping or unbalanced episodes.
func TestMachine_RandomInputKeepsEpisodesDisjoint(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	h := newHarness(t, baseConfig())

	above := false
	for range 20000 {
		if rng.IntN(20) == 0 {
			above = !above
		}
		h.feed(1, above)
	}
	h.flush()

	var (
		open    bool
		current uint64
		lastID  uint64
	)
	for _, e := range h.events {
		switch e.Kind {
		case EventStart:
			require.False(t, open, "start while episode %d open", current)
			require.Greater(t, e.Episode.ID, lastID)
			open, current, lastID = true, e.Episode.ID, e.Episode.ID
		case EventData:
			require.True(t, open)
			require.Equal(t, current, e.Episode.ID)
		case EventEnd:
			require.True(t, open)
			require.Equal(t, current, e.Episode.ID)
			open = false
		case EventDiscard:
			require.False(t, open)
			require.Greater(t, e.Episode.ID, lastID)
			lastID = e.Episode.ID
		}
	}
	assert.False(t, open)
	assert.Equal(t, h.count(EventStart), h.count(EventEnd))
}

func TestNewMachine_RejectsNegativeDurations(t *testing.T) {
	cfg := baseConfig()
	cfg.Silence = -time.Second
	_, err := NewMachine(cfg, testFormat)
	require.Error(t, err)
}

func TestStateAndEventStrings(t *testing.T) {
	assert.Equal(t, "trailing", StateTrailing.String())
	assert.Equal(t, "discard", EventDiscard.String())
	assert.True(t, EventStart.IsControl())
	assert.True(t, EventEnd.IsControl())
	assert.False(t, EventData.IsControl())
}

package trigger

import (
	"time"

	"github.com/tphakala/threshcorder/internal/audiocore"
)

const initialPreRollSlots = 8

// PreRoll keeps the most recent frames covering at least the configured
// lookback. Frame storage is recycled as frames age out.
type PreRoll struct {
	format audiocore.Format
	want   int // sample frames

	slots []audiocore.Frame
	head  int
	n     int
	total int
}

// NewPreRoll returns a buffer holding d worth of audio in format.
func NewPreRoll(format audiocore.Format, d time.Duration) *PreRoll {
	return &PreRoll{
		format: format,
		want:   format.FramesFor(d),
		slots:  make([]audiocore.Frame, initialPreRollSlots),
	}
}

// Push appends a copy of f and drops frames no longer needed.
func (p *PreRoll) Push(f *audiocore.Frame) {
	if p.want == 0 {
		return
	}

	if p.n == len(p.slots) {
		p.grow()
	}
	p.slots[(p.head+p.n)%len(p.slots)].CopyFrom(f)
	p.n++
	p.total += f.FrameCount

	for p.n > 1 {
		oldest := p.slots[p.head].FrameCount
		if p.total-oldest < p.want {
			break
		}
		p.total -= oldest
		p.head = (p.head + 1) % len(p.slots)
		p.n--
	}
}

func (p *PreRoll) grow() {
	next := make([]audiocore.Frame, len(p.slots)*2)
	for i := range p.n {
		next[i] = p.slots[(p.head+i)%len(p.slots)]
	}
	p.slots = next
	p.head = 0
}

// Available returns how many sample frames Snapshot would return.
func (p *PreRoll) Available() int {
	return min(p.total, p.want)
}

// Snapshot returns copies of the buffered frames trimmed to exactly the
// configured lookback, or everything buffered when less is available.
func (p *PreRoll) Snapshot() []audiocore.Frame {
	if p.n == 0 {
		return nil
	}

	out := make([]audiocore.Frame, 0, p.n+1)
	excess := p.total - p.want

	for i := range p.n {
		f := &p.slots[(p.head+i)%len(p.slots)]
		if i == 0 && excess > 0 {
			trimmed := f.Slice(p.format, excess, f.FrameCount)
			out = append(out, trimmed.Clone())
			continue
		}
		out = append(out, f.Clone())
	}

	return out
}

// Reset empties the buffer.
func (p *PreRoll) Reset() {
	p.head = 0
	p.n = 0
	p.total = 0
}

package mixer

import (
	"container/heap"
	"sync"
	"time"

	"github.com/makanmate/makanmate/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Output = (*Timeline)(nil)
	_ audio.Voice  = (*voice)(nil)
)

// defaultQueueCap is the initial capacity hint for the pending-voice queue.
const defaultQueueCap = 16

// Option configures a [Timeline] during construction.
type Option func(*Timeline)

// WithGain scales every rendered sample by g. The mixed output is clamped to
// [-1, 1] after scaling.
func WithGain(g float32) Option {
	return func(t *Timeline) {
		t.gain = g
	}
}

// WithQueueCapacity sets the initial capacity hint for the pending-voice
// queue. This does not impose a hard limit.
func WithQueueCapacity(n int) Option {
	return func(t *Timeline) {
		if n > 0 {
			t.pending = make(voiceHeap, 0, n)
		}
	}
}

// Timeline is a mono software mixer implementing [audio.Output]. Buffers are
// scheduled at absolute clock times and summed into the output as the device
// pulls frames through [Timeline.Render]. Buffers at other sample rates are
// resampled and multi-channel buffers are down-mixed on schedule.
//
// All exported methods are safe for concurrent use.
type Timeline struct {
	rate int
	gain float32

	mu      sync.Mutex
	pos     int64 // frames rendered so far; the clock
	pending voiceHeap
	active  []*voice
	seq     uint64
	closed  bool
}

// New returns a Timeline rendering mono audio at sampleRate.
func New(sampleRate int, opts ...Option) *Timeline {
	t := &Timeline{
		rate:    sampleRate,
		gain:    1,
		pending: make(voiceHeap, 0, defaultQueueCap),
	}
	for _, o := range opts {
		o(t)
	}
	heap.Init(&t.pending)
	return t
}

// SampleRate returns the render rate in Hz.
func (t *Timeline) SampleRate() int { return t.rate }

// Now implements [audio.Clock]. It reports how much audio has been rendered.
func (t *Timeline) Now() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return audio.FramesToDuration(t.pos, t.rate)
}

// Schedule implements [audio.Output]. A start time earlier than the current
// clock is clamped to now. An empty buffer yields a voice that is already
// done.
func (t *Timeline) Schedule(buf audio.Buffer, at time.Duration) (audio.Voice, error) {
	samples := toMono(buf)
	if buf.SampleRate > 0 && buf.SampleRate != t.rate {
		samples = resample(samples, buf.SampleRate, t.rate)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, audio.ErrDeviceClosed
	}

	t.seq++
	v := &voice{
		tl:      t,
		samples: samples,
		start:   max(audio.DurationToFrames(at, t.rate), t.pos),
		seq:     t.seq,
		done:    make(chan struct{}),
	}
	if len(samples) == 0 {
		v.finishLocked()
		return v, nil
	}
	heap.Push(&t.pending, v)
	return v, nil
}

// Render mixes the next len(out) frames into out and advances the clock.
// Voices that play to their end during this window are marked done.
func (t *Timeline) Render(out []float32) {
	clear(out)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}

	n := int64(len(out))
	end := t.pos + n
	for t.pending.Len() > 0 && t.pending[0].start < end {
		v := heap.Pop(&t.pending).(*voice)
		if !v.stopped {
			t.active = append(t.active, v)
		}
	}

	kept := t.active[:0]
	for _, v := range t.active {
		if v.stopped {
			continue
		}
		from := max(v.start, t.pos)
		for f := from; f < end; f++ {
			idx := f - v.start
			if idx >= int64(len(v.samples)) {
				break
			}
			out[f-t.pos] += v.samples[idx]
		}
		if v.start+int64(len(v.samples)) <= end {
			v.finishLocked()
			continue
		}
		kept = append(kept, v)
	}
	clear(t.active[len(kept):])
	t.active = kept

	for i, s := range out {
		out[i] = max(-1, min(1, s*t.gain))
	}
	t.pos = end
}

// Pending reports the number of voices that are scheduled or playing.
func (t *Timeline) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := len(t.active)
	for _, v := range t.pending {
		if !v.stopped {
			n++
		}
	}
	return n
}

// Close implements [audio.Output]. It stops every voice; later Schedule calls
// fail with [audio.ErrDeviceClosed]. Close is idempotent.
func (t *Timeline) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	for _, v := range t.active {
		v.finishLocked()
	}
	for _, v := range t.pending {
		v.finishLocked()
	}
	t.active = nil
	t.pending = nil
	return nil
}

// voice is a single scheduled buffer on a Timeline.
type voice struct {
	tl      *Timeline
	samples []float32
	start   int64
	seq     uint64

	// Guarded by tl.mu.
	stopped bool
	done    chan struct{}
}

// Stop implements [audio.Voice].
func (v *voice) Stop() {
	v.tl.mu.Lock()
	defer v.tl.mu.Unlock()
	v.finishLocked()
}

// Done implements [audio.Voice].
func (v *voice) Done() <-chan struct{} { return v.done }

// finishLocked marks v finished. Must be called with tl.mu held.
func (v *voice) finishLocked() {
	if v.stopped {
		return
	}
	v.stopped = true
	close(v.done)
}

// toMono returns buf's samples averaged across channels.
func toMono(buf audio.Buffer) []float32 {
	if buf.Channels <= 1 {
		return buf.Samples
	}
	frames := len(buf.Samples) / buf.Channels
	out := make([]float32, frames)
	for i := range frames {
		var sum float32
		for ch := range buf.Channels {
			sum += buf.Samples[i*buf.Channels+ch]
		}
		out[i] = sum / float32(buf.Channels)
	}
	return out
}

// resample converts mono float samples from src to dst Hz by linear
// interpolation.
func resample(in []float32, src, dst int) []float32 {
	if len(in) == 0 || src == dst {
		return in
	}
	n := int(int64(len(in)) * int64(dst) / int64(src))
	out := make([]float32, n)
	ratio := float64(src) / float64(dst)
	for i := range n {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		next := min(idx+1, len(in)-1)
		out[i] = in[idx]*(1-frac) + in[next]*frac
	}
	return out
}

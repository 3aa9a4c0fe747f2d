// Package mock provides in-memory implementations of [audio.Devices],
// [audio.CaptureStream], [audio.Output] and [audio.Voice] for unit tests.
//
// All mocks are safe for concurrent use. They record every call so that tests
// can assert on counts and arguments, and expose fields that control return
// values.
//
// Typical usage:
//
//	capture := mock.NewCapture(4)
//	output := mock.NewOutput()
//	devices := &mock.Devices{Capture: capture, Output: output}
//	capture.Push(audio.CaptureFrame{Samples: make([]float32, 4096), SampleRate: 16000, Channels: 1})
//	output.SetNow(250 * time.Millisecond)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/makanmate/makanmate/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Devices       = (*Devices)(nil)
	_ audio.CaptureStream = (*Capture)(nil)
	_ audio.Output        = (*Output)(nil)
	_ audio.Voice         = (*Voice)(nil)
)

// ─── Capture ──────────────────────────────────────────────────────────────────

// Capture is a mock [audio.CaptureStream] fed by [Capture.Push].
type Capture struct {
	frames chan audio.CaptureFrame

	mu sync.Mutex

	// CloseCount records how many times Close was called.
	CloseCount int

	closed bool
}

// NewCapture returns a Capture whose frame channel has capacity buffer.
func NewCapture(buffer int) *Capture {
	return &Capture{frames: make(chan audio.CaptureFrame, buffer)}
}

// Push queues f if the buffer has room and reports whether it was accepted.
// Push after Close reports false.
func (c *Capture) Push(f audio.CaptureFrame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.frames <- f:
		return true
	default:
		return false
	}
}

// Frames implements [audio.CaptureStream].
func (c *Capture) Frames() <-chan audio.CaptureFrame { return c.frames }

// Close implements [audio.CaptureStream]. The frame channel is closed on the
// first call.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CloseCount++
	if !c.closed {
		c.closed = true
		close(c.frames)
	}
	return nil
}

// Closes returns how many times Close was called.
func (c *Capture) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CloseCount
}

// ─── Output ───────────────────────────────────────────────────────────────────

// ScheduleCall records a single [Output.Schedule] invocation.
type ScheduleCall struct {
	Buffer audio.Buffer
	At     time.Duration
	Voice  *Voice
}

// Output is a mock [audio.Output] with a manually driven clock. Scheduled
// voices never finish on their own; call [Voice.Finish] to simulate the end
// of playback.
type Output struct {
	mu  sync.Mutex
	now time.Duration

	// ScheduleErr, when set, is returned by Schedule.
	ScheduleErr error

	// ScheduleCalls records all Schedule invocations.
	ScheduleCalls []ScheduleCall

	// CloseCount records how many times Close was called.
	CloseCount int

	// Scheduled receives every voice as it is scheduled, if non-nil. Sends
	// never block; voices are dropped from the channel when it is full.
	Scheduled chan *Voice
}

// NewOutput returns an Output at clock time zero.
func NewOutput() *Output {
	return &Output{Scheduled: make(chan *Voice, 64)}
}

// SetNow moves the clock to d.
func (o *Output) SetNow(d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now = d
}

// Now implements [audio.Clock].
func (o *Output) Now() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

// Schedule implements [audio.Output].
func (o *Output) Schedule(buf audio.Buffer, at time.Duration) (audio.Voice, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ScheduleErr != nil {
		return nil, o.ScheduleErr
	}
	v := &Voice{At: at, Buffer: buf, done: make(chan struct{})}
	o.ScheduleCalls = append(o.ScheduleCalls, ScheduleCall{Buffer: buf, At: at, Voice: v})
	if o.Scheduled != nil {
		select {
		case o.Scheduled <- v:
		default:
		}
	}
	return v, nil
}

// Calls returns a copy of the recorded Schedule calls.
func (o *Output) Calls() []ScheduleCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]ScheduleCall, len(o.ScheduleCalls))
	copy(out, o.ScheduleCalls)
	return out
}

// Close implements [audio.Output].
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.CloseCount++
	return nil
}

// Closes returns how many times Close was called.
func (o *Output) Closes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.CloseCount
}

// ─── Voice ────────────────────────────────────────────────────────────────────

// Voice is a mock [audio.Voice].
type Voice struct {
	// At is the start time passed to Schedule.
	At time.Duration

	// Buffer is the buffer passed to Schedule.
	Buffer audio.Buffer

	mu        sync.Mutex
	stopCount int
	done      chan struct{}
	finished  bool
}

// Stop implements [audio.Voice].
func (v *Voice) Stop() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stopCount++
	v.finishLocked()
}

// Finish simulates the voice playing to its end.
func (v *Voice) Finish() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.finishLocked()
}

// Done implements [audio.Voice].
func (v *Voice) Done() <-chan struct{} { return v.done }

// Stops returns how many times Stop was called.
func (v *Voice) Stops() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopCount
}

func (v *Voice) finishLocked() {
	if !v.finished {
		v.finished = true
		close(v.done)
	}
}

// ─── Devices ──────────────────────────────────────────────────────────────────

// Devices is a mock [audio.Devices] returning preset streams.
type Devices struct {
	mu sync.Mutex

	// Capture is returned by OpenCapture.
	Capture audio.CaptureStream

	// Output is returned by OpenOutput.
	Output audio.Output

	// CaptureErr, when set, is returned by OpenCapture.
	CaptureErr error

	// OutputErr, when set, is returned by OpenOutput.
	OutputErr error

	// CaptureFormats and OutputFormats record the formats requested.
	CaptureFormats []audio.Format
	OutputFormats  []audio.Format

	// CaptureBlock, if non-nil, makes OpenCapture wait until it is closed or
	// ctx is done.
	CaptureBlock chan struct{}
}

// OpenCapture implements [audio.Devices].
func (d *Devices) OpenCapture(ctx context.Context, f audio.Format) (audio.CaptureStream, error) {
	d.mu.Lock()
	d.CaptureFormats = append(d.CaptureFormats, f)
	block := d.CaptureBlock
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.CaptureErr != nil {
		return nil, d.CaptureErr
	}
	return d.Capture, nil
}

// OpenOutput implements [audio.Devices].
func (d *Devices) OpenOutput(f audio.Format) (audio.Output, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.OutputFormats = append(d.OutputFormats, f)
	if d.OutputErr != nil {
		return nil, d.OutputErr
	}
	return d.Output, nil
}

// Opens returns how many times OpenCapture and OpenOutput were called.
func (d *Devices) Opens() (capture, output int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.CaptureFormats), len(d.OutputFormats)
}

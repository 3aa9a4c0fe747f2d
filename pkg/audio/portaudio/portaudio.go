// Package portaudio implements [audio.Devices] on top of the PortAudio
// blocking stream API. Capture runs a read loop per stream; playback renders a
// [mixer.Timeline] into the device one buffer at a time, so the timeline's
// clock tracks the samples handed to the hardware.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"

	"github.com/makanmate/makanmate/pkg/audio"
	"github.com/makanmate/makanmate/pkg/audio/mixer"
)

// Compile-time interface assertions.
var (
	_ audio.Devices       = (*Devices)(nil)
	_ audio.CaptureStream = (*captureStream)(nil)
	_ audio.Output        = (*output)(nil)
)

const (
	// DefaultCaptureFrames is the capture buffer size in frames.
	DefaultCaptureFrames = 4096

	// DefaultOutputFrames is the playback buffer size in frames (40ms at 24kHz).
	DefaultOutputFrames = 960

	// captureQueue holds at most one frame for the consumer. A newer frame
	// replaces it, so capture never builds a backlog.
	captureQueue = 1
)

// Option configures [Devices].
type Option func(*Devices)

// WithCaptureFrames sets the number of frames per capture buffer.
func WithCaptureFrames(n int) Option {
	return func(d *Devices) {
		if n > 0 {
			d.captureFrames = n
		}
	}
}

// WithOutputFrames sets the number of frames per playback buffer.
func WithOutputFrames(n int) Option {
	return func(d *Devices) {
		if n > 0 {
			d.outputFrames = n
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Devices) {
		d.log = l
	}
}

// Devices opens the system default input and output devices.
type Devices struct {
	captureFrames int
	outputFrames  int
	log           *slog.Logger
}

// New returns PortAudio-backed devices.
func New(opts ...Option) *Devices {
	d := &Devices{
		captureFrames: DefaultCaptureFrames,
		outputFrames:  DefaultOutputFrames,
		log:           slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	d.log = d.log.With("component", "portaudio")
	return d
}

// OpenCapture implements [audio.Devices]. PortAudio reference-counts
// initialisation, so each stream holds its own reference.
func (d *Devices) OpenCapture(ctx context.Context, f audio.Format) (audio.CaptureStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Channels <= 0 {
		f.Channels = 1
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w: %w", audio.ErrPermissionDenied, err)
	}

	buf := make([]float32, d.captureFrames*f.Channels)
	stream, err := pa.OpenDefaultStream(f.Channels, 0, float64(f.SampleRate), d.captureFrames, buf)
	if err != nil {
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: open capture %s: %w: %w", f, audio.ErrPermissionDenied, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: start capture: %w: %w", audio.ErrPermissionDenied, err)
	}

	c := &captureStream{
		stream: stream,
		format: f,
		buf:    buf,
		frames: make(chan audio.CaptureFrame, captureQueue),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		log:    d.log,
	}
	go c.readLoop()
	d.log.Debug("capture opened", "format", f.String(), "frames_per_buffer", d.captureFrames)
	return c, nil
}

// OpenOutput implements [audio.Devices].
func (d *Devices) OpenOutput(f audio.Format) (audio.Output, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}

	buf := make([]float32, d.outputFrames)
	stream, err := pa.OpenDefaultStream(0, 1, float64(f.SampleRate), d.outputFrames, buf)
	if err != nil {
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: open output %s: %w", f, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		return nil, fmt.Errorf("portaudio: start output: %w", err)
	}

	o := &output{
		Timeline: mixer.New(f.SampleRate),
		stream:   stream,
		buf:      buf,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		log:      d.log,
	}
	go o.writeLoop()
	d.log.Debug("output opened", "format", f.String(), "frames_per_buffer", d.outputFrames)
	return o, nil
}

// ─── Capture ──────────────────────────────────────────────────────────────────

type captureStream struct {
	stream *pa.Stream
	format audio.Format
	buf    []float32
	frames chan audio.CaptureFrame
	log    *slog.Logger

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (c *captureStream) Frames() <-chan audio.CaptureFrame { return c.frames }

// readLoop reads buffers until stopped. A frame the consumer has not taken
// by the next read is replaced rather than stalling the device.
func (c *captureStream) readLoop() {
	defer close(c.done)
	defer close(c.frames)

	var read, dropped int64
	start := time.Now()
	for {
		select {
		case <-c.stop:
			c.log.Debug("capture stopped", "frames", read, "dropped", dropped)
			return
		default:
		}

		if err := c.stream.Read(); err != nil {
			if errors.Is(err, pa.InputOverflowed) {
				continue
			}
			select {
			case <-c.stop:
			default:
				c.log.Warn("capture read failed", "err", err)
			}
			return
		}

		frame := audio.CaptureFrame{
			Samples:    append([]float32(nil), c.buf...),
			SampleRate: c.format.SampleRate,
			Channels:   c.format.Channels,
			Timestamp:  time.Since(start),
		}
		read++
		if offerLatest(c.frames, frame) {
			dropped++
		}
	}
}

// offerLatest queues f on ch, discarding the frame still waiting there. ch
// must have a single sender. It reports whether a stale frame was discarded.
func offerLatest(ch chan audio.CaptureFrame, f audio.CaptureFrame) bool {
	select {
	case ch <- f:
		return false
	default:
	}
	stale := false
	select {
	case <-ch:
		stale = true
	default:
	}
	ch <- f
	return stale
}

func (c *captureStream) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		stopErr := c.stream.Stop()
		<-c.done
		c.closeErr = errors.Join(stopErr, c.stream.Close(), pa.Terminate())
	})
	return c.closeErr
}

// ─── Output ───────────────────────────────────────────────────────────────────

type output struct {
	*mixer.Timeline

	stream *pa.Stream
	buf    []float32
	log    *slog.Logger

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// writeLoop renders the timeline into the device buffer. Write blocks until
// the device has room, which paces rendering to real time.
func (o *output) writeLoop() {
	defer close(o.done)
	for {
		select {
		case <-o.stop:
			return
		default:
		}
		o.Render(o.buf)
		if err := o.stream.Write(); err != nil {
			if errors.Is(err, pa.OutputUnderflowed) {
				continue
			}
			select {
			case <-o.stop:
			default:
				o.log.Warn("playback write failed", "err", err)
			}
			return
		}
	}
}

// Close stops all voices, then the device.
func (o *output) Close() error {
	o.closeOnce.Do(func() {
		_ = o.Timeline.Close()
		close(o.stop)
		stopErr := o.stream.Stop()
		<-o.done
		o.closeErr = errors.Join(stopErr, o.stream.Close(), pa.Terminate())
	})
	return o.closeErr
}

// Package audio defines the audio device abstractions and the codec helpers
// used by MakanMate.
//
// The device abstractions are:
//
//   - [Devices] opens a microphone [CaptureStream] and a speaker [Output].
//   - [Output] schedules decoded [Buffer] values at absolute times on its
//     monotonic [Clock] and hands back a [Voice] per scheduled buffer.
//
// The codec helpers convert captured float32 samples to 16-bit PCM wire
// packets and inbound PCM back to playable buffers. They are pure functions
// with no device dependencies.
//
// This package lives under pkg/ because external code (other device backends)
// is expected to implement [Devices].
package audio

import (
	"context"
	"errors"
	"time"
)

// ErrPermissionDenied is returned when the capture device cannot be opened,
// typically because microphone access was refused or no device exists.
var ErrPermissionDenied = errors.New("audio: capture permission denied")

// ErrDeviceClosed is returned when scheduling on an [Output] that has been
// closed.
var ErrDeviceClosed = errors.New("audio: device closed")

// Clock is a monotonic playback clock. Now reports the time elapsed on the
// output device since it was opened.
type Clock interface {
	Now() time.Duration
}

// Voice is one scheduled playback buffer.
type Voice interface {
	// Stop silences the voice immediately. Stopping a voice that already
	// finished is a no-op. Done is closed once Stop returns.
	Stop()

	// Done is closed when the voice finishes playing or is stopped.
	Done() <-chan struct{}
}

// Output is a playback context. Implementations must be safe for concurrent
// use.
type Output interface {
	Clock

	// Schedule queues buf to start playing at the absolute clock time at. A
	// time in the past starts playback immediately.
	Schedule(buf Buffer, at time.Duration) (Voice, error)

	// Close stops all voices and releases the device. Subsequent calls are
	// no-ops.
	Close() error
}

// CaptureStream is an open microphone.
type CaptureStream interface {
	// Frames delivers captured frames. The channel is closed when the stream
	// is closed or the device fails.
	Frames() <-chan CaptureFrame

	// Close stops capture and releases the device. Subsequent calls are
	// no-ops.
	Close() error
}

// Devices opens audio hardware.
type Devices interface {
	// OpenCapture starts capturing at f. The returned stream stays open until
	// closed, independent of ctx, which only bounds the open itself. Failures
	// to acquire the microphone wrap [ErrPermissionDenied].
	OpenCapture(ctx context.Context, f Format) (CaptureStream, error)

	// OpenOutput opens the default speaker at f.
	OpenOutput(f Format) (Output, error)
}

// Record reads frames from c until d of audio has been collected, the stream
// ends, or ctx is cancelled, and returns the concatenated samples.
func Record(ctx context.Context, c CaptureStream, d time.Duration) ([]float32, error) {
	var out []float32
	var got time.Duration
	for got < d {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case f, ok := <-c.Frames():
			if !ok {
				return out, nil
			}
			out = append(out, f.Samples...)
			if f.SampleRate > 0 && f.Channels > 0 {
				got += FramesToDuration(int64(len(f.Samples)/f.Channels), f.SampleRate)
			}
		}
	}
	return out, nil
}

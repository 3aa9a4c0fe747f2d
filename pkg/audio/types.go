package audio

import (
	"fmt"
	"time"
)

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}

// String returns a human-readable form such as "16000Hz mono".
func (f Format) String() string {
	return formatString(f.SampleRate, f.Channels)
}

// CaptureFrame is a fixed-size slice of microphone samples as delivered by a
// [CaptureStream]. Samples are interleaved float32 values nominally in
// [-1, 1]. A frame is immutable once captured and is consumed exactly once by
// the encoder.
type CaptureFrame struct {
	// Samples holds the interleaved float32 samples.
	Samples []float32

	// SampleRate in Hz (16000 for the live session input).
	SampleRate int

	// Channels is 1 for mono capture.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// AudioFrame is a frame of 16-bit little-endian PCM. It is the intermediate
// representation between capture and the wire encoders.
type AudioFrame struct {
	// PCM audio data.
	Data []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Packet is an encoded audio payload sized for a single network send.
// Ownership transfers to the transport on send; it is not retained after
// transmission.
type Packet struct {
	// MIMEType tags the payload, e.g. "audio/pcm;rate=16000" or "audio/wav".
	MIMEType string

	// Data is the base64-encoded payload.
	Data string
}

// Buffer is decoded audio ready for playback.
type Buffer struct {
	// Samples holds interleaved float32 samples in [-1, 1].
	Samples []float32

	// SampleRate in Hz (24000 for Gemini Live output).
	SampleRate int

	// Channels is 1 unless the packet declared otherwise.
	Channels int
}

// Frames returns the number of sample frames (samples per channel).
func (b Buffer) Frames() int {
	if b.Channels <= 0 {
		return len(b.Samples)
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback length of the buffer.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return FramesToDuration(int64(b.Frames()), b.SampleRate)
}

// FramesToDuration converts a frame count at rate into a duration, rounding
// down to the nanosecond.
func FramesToDuration(frames int64, rate int) time.Duration {
	return time.Duration(frames * int64(time.Second) / int64(rate))
}

// DurationToFrames converts d into a frame count at rate, rounding to the
// nearest frame. DurationToFrames(FramesToDuration(n, rate), rate) == n.
func DurationToFrames(d time.Duration, rate int) int64 {
	return (int64(d)*int64(rate) + int64(time.Second)/2) / int64(time.Second)
}

// DurationToFramesCeil converts d into a frame count at rate, rounding up.
// The frame it names never starts before d.
func DurationToFramesCeil(d time.Duration, rate int) int64 {
	return (int64(d)*int64(rate) + int64(time.Second) - 1) / int64(time.Second)
}

// pcmMIMEType returns the MIME tag for raw 16-bit PCM at rate.
func pcmMIMEType(rate int) string {
	return fmt.Sprintf("audio/pcm;rate=%d", rate)
}

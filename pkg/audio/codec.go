package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrDecode is matched (via errors.Is) by every [DecodeError].
var ErrDecode = errors.New("audio: decode error")

// DecodeError reports a malformed inbound audio packet. Callers drop the
// packet and keep going; a DecodeError is never fatal to a session.
type DecodeError struct {
	// Reason is a short description of what was wrong with the input.
	Reason string

	// Err is the underlying error, if any.
	Err error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("audio: decode: %s: %v", e.Reason, e.Err)
	}
	return "audio: decode: " + e.Reason
}

// Is reports whether target is [ErrDecode].
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// Unwrap returns the underlying error.
func (e *DecodeError) Unwrap() error { return e.Err }

// BlobToBase64 encodes b with standard base64. Base64ToBytes(BlobToBase64(b))
// returns b exactly.
func BlobToBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Base64ToBytes decodes a standard base64 string.
func Base64ToBytes(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// FloatToPCM16 converts float32 samples to 16-bit little-endian PCM. Samples
// are clamped to [-1, 1] first, so out-of-range input saturates instead of
// wrapping.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(floatToInt16(s)))
	}
	return out
}

// PCM16ToFloat converts 16-bit little-endian PCM to float32 samples in
// [-1, 1]. A trailing odd byte is ignored.
func PCM16ToFloat(pcm []byte) []float32 {
	n := len(pcm) / 2
	out := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		out[i] = int16ToFloat(s)
	}
	return out
}

func floatToInt16(s float32) int16 {
	if s != s { // NaN
		return 0
	}
	s = max(-1, min(1, s))
	if s < 0 {
		return int16(math.Round(float64(s) * 32768))
	}
	return int16(math.Round(float64(s) * 32767))
}

func int16ToFloat(s int16) float32 {
	if s < 0 {
		return float32(s) / 32768
	}
	return float32(s) / 32767
}

// EncodeForUpload converts a captured frame into a wire packet: clamped
// 16-bit little-endian PCM, base64-encoded, tagged with the frame's sample
// rate. It is pure and deterministic.
func EncodeForUpload(frame CaptureFrame) Packet {
	return Packet{
		MIMEType: pcmMIMEType(frame.SampleRate),
		Data:     BlobToBase64(FloatToPCM16(frame.Samples)),
	}
}

// DecodeForPlayback inflates raw 16-bit little-endian PCM into a playable
// [Buffer] at sampleRate. A channels value <= 0 means mono. Empty input or a
// byte count that does not divide into whole frames yields a [DecodeError].
func DecodeForPlayback(data []byte, sampleRate, channels int) (Buffer, error) {
	if channels <= 0 {
		channels = 1
	}
	if sampleRate <= 0 {
		return Buffer{}, &DecodeError{Reason: fmt.Sprintf("invalid sample rate %d", sampleRate)}
	}
	if len(data) == 0 {
		return Buffer{}, &DecodeError{Reason: "empty payload"}
	}
	frameBytes := 2 * channels
	if len(data)%frameBytes != 0 {
		return Buffer{}, &DecodeError{Reason: fmt.Sprintf("%d bytes is not a whole number of %d-byte frames", len(data), frameBytes)}
	}
	return Buffer{
		Samples:    PCM16ToFloat(data),
		SampleRate: sampleRate,
		Channels:   channels,
	}, nil
}

// DecodePacket base64-decodes p and inflates it via [DecodeForPlayback]. The
// sample rate and channel count declared in the MIME tag ("rate=", "channels=")
// override the supplied defaults.
func DecodePacket(p Packet, defaultRate int) (Buffer, error) {
	raw, err := Base64ToBytes(p.Data)
	if err != nil {
		return Buffer{}, &DecodeError{Reason: "invalid base64", Err: err}
	}
	rate, channels := parsePCMParams(p.MIMEType, defaultRate)
	return DecodeForPlayback(raw, rate, channels)
}

// parsePCMParams extracts rate and channels parameters from a MIME tag such as
// "audio/pcm;rate=24000".
func parsePCMParams(mime string, defaultRate int) (rate, channels int) {
	rate, channels = defaultRate, 1
	for _, param := range strings.Split(mime, ";")[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil || n <= 0 {
			continue
		}
		switch strings.ToLower(k) {
		case "rate":
			rate = n
		case "channels":
			channels = n
		}
	}
	return rate, channels
}

// Encoder turns capture frames into wire packets at a fixed target format,
// resampling and down-mixing when the capture device runs at a different
// format. Create one per stream; not designed for shared use across
// goroutines.
type Encoder struct {
	conv FormatConverter
}

// NewEncoder returns an Encoder producing packets at target.
func NewEncoder(target Format) *Encoder {
	return &Encoder{conv: FormatConverter{Target: target}}
}

// Encode converts frame to the target format and encodes it with
// [EncodeForUpload]. Frames that end up empty after conversion report
// ok == false.
func (e *Encoder) Encode(frame CaptureFrame) (p Packet, ok bool) {
	target := e.conv.Target
	if frame.SampleRate != target.SampleRate || frame.Channels != target.Channels {
		converted := e.conv.Convert(AudioFrame{
			Data:       FloatToPCM16(frame.Samples),
			SampleRate: frame.SampleRate,
			Channels:   frame.Channels,
			Timestamp:  frame.Timestamp,
		})
		// int16 -> float32 -> int16 is exact, so this re-encode is lossless.
		frame = CaptureFrame{
			Samples:    PCM16ToFloat(converted.Data),
			SampleRate: converted.SampleRate,
			Channels:   converted.Channels,
			Timestamp:  converted.Timestamp,
		}
	}
	if len(frame.Samples) == 0 {
		return Packet{}, false
	}
	return EncodeForUpload(frame), true
}

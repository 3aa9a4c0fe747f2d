package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// WAVMIMEType tags a WAV container payload.
const WAVMIMEType = "audio/wav"

const wavHeaderSize = 44

// EncodeWAV wraps 16-bit little-endian PCM in a canonical 44-byte RIFF/WAVE
// header.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}
	const bitsPerSample = 16
	blockAlign := channels * bitsPerSample / 8
	byteRate := sampleRate * blockAlign

	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + len(pcm))
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

// DecodeWAV parses a 16-bit PCM WAV container, returning the raw sample data
// and its format. Chunks other than "fmt " and "data" are skipped.
func DecodeWAV(b []byte) (pcm []byte, f Format, err error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return nil, Format{}, &DecodeError{Reason: "not a RIFF/WAVE container"}
	}
	var haveFmt bool
	rest := b[12:]
	for len(rest) >= 8 {
		id := string(rest[0:4])
		size := int(binary.LittleEndian.Uint32(rest[4:8]))
		body := rest[8:]
		if size > len(body) {
			return nil, Format{}, &DecodeError{Reason: fmt.Sprintf("chunk %q truncated", id)}
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, Format{}, &DecodeError{Reason: "fmt chunk too short"}
			}
			if tag := binary.LittleEndian.Uint16(body[0:2]); tag != 1 {
				return nil, Format{}, &DecodeError{Reason: fmt.Sprintf("unsupported format tag %d", tag)}
			}
			if bits := binary.LittleEndian.Uint16(body[14:16]); bits != 16 {
				return nil, Format{}, &DecodeError{Reason: fmt.Sprintf("unsupported bit depth %d", bits)}
			}
			f.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			f.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, Format{}, &DecodeError{Reason: "data chunk before fmt chunk"}
			}
			return body[:size], f, nil
		}
		// Chunks are padded to an even size.
		next := 8 + size + size%2
		if next > len(rest) {
			break
		}
		rest = rest[next:]
	}
	return nil, Format{}, &DecodeError{Reason: "missing data chunk", Err: errors.New("unexpected end of container")}
}

// EncodeWAVPacket packs float32 samples as a base64 WAV [Packet].
func EncodeWAVPacket(samples []float32, sampleRate, channels int) Packet {
	return Packet{
		MIMEType: WAVMIMEType,
		Data:     BlobToBase64(EncodeWAV(FloatToPCM16(samples), sampleRate, channels)),
	}
}

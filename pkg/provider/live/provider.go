// Package live defines the Provider interface for duplex voice backends.
//
// A live provider wraps a real-time voice model that accepts a continuous
// stream of microphone audio and answers with synthesised speech, text and
// transcriptions over a single long-lived connection. Gemini Live
// (BidiGenerateContent) is the reference backend.
//
// The central abstraction is [Conn]: outbound audio is handed over with a
// non-blocking [Conn.SendAudio], and everything the service sends back arrives
// as a single ordered stream of [Event] values, so a consumer never has to
// reconcile several channels.
//
// All implementations must be safe for concurrent use.
package live

import (
	"context"
	"errors"

	"github.com/makanmate/makanmate/pkg/audio"
)

var (
	// ErrBusy is returned by [Conn.SendAudio] when a previous packet is still
	// being written. The caller drops the packet; live audio is never queued.
	ErrBusy = errors.New("live: writer busy")

	// ErrClosed is returned when sending on a connection that is closed.
	ErrClosed = errors.New("live: connection closed")

	// ErrTransport wraps every abnormal connection failure reported by
	// [Conn.Err] or returned from [Provider.Connect].
	ErrTransport = errors.New("live: transport failure")
)

// EventKind classifies an inbound [Event].
type EventKind int

const (
	// EventAudio carries a chunk of synthesised speech in Event.Audio.
	EventAudio EventKind = iota

	// EventText carries a text part of the model's turn.
	EventText

	// EventInputTranscript carries recognised user speech.
	EventInputTranscript

	// EventOutputTranscript carries the text of the model's spoken reply.
	EventOutputTranscript

	// EventTurnComplete marks the end of a model turn.
	EventTurnComplete

	// EventInterrupted reports that the user barged in and the model stopped
	// generating. Audio already scheduled for playback should be discarded.
	EventInterrupted
)

// String returns the human-readable name of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventAudio:
		return "audio"
	case EventText:
		return "text"
	case EventInputTranscript:
		return "input_transcript"
	case EventOutputTranscript:
		return "output_transcript"
	case EventTurnComplete:
		return "turn_complete"
	case EventInterrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Event is one inbound message from the service. Events on a [Conn] are
// delivered in the order the service sent them.
type Event struct {
	Kind EventKind

	// Audio is set for EventAudio. The payload is still base64-encoded PCM.
	Audio *audio.Packet

	// Text is set for the text and transcript kinds.
	Text string
}

// SessionConfig is the configuration for a new live connection.
type SessionConfig struct {
	// Instructions is the system prompt.
	Instructions string

	// Voice names a prebuilt voice, e.g. "Kore". Empty uses the service
	// default.
	Voice string

	// InputTranscription requests transcripts of the user's speech.
	InputTranscription bool

	// OutputTranscription requests transcripts of the model's speech.
	OutputTranscription bool
}

// Capabilities describes static properties of a live provider.
type Capabilities struct {
	// InputFormat is the audio format the service expects from the microphone.
	InputFormat audio.Format

	// OutputFormat is the format of the synthesised speech.
	OutputFormat audio.Format

	// Voices lists the prebuilt voice names.
	Voices []string
}

// Conn is an open live connection.
//
// Callers must call Close when the connection is no longer needed.
type Conn interface {
	// SendAudio hands p to the writer without blocking. It returns [ErrBusy]
	// if the writer is still sending an earlier packet and [ErrClosed] once
	// the connection is closed.
	SendAudio(p audio.Packet) error

	// Events returns the inbound event stream. The channel is closed when the
	// connection ends for any reason; check Err afterwards.
	Events() <-chan Event

	// Err reports why the connection ended. It is nil while the connection is
	// open and after a normal close by either side; otherwise it wraps
	// [ErrTransport].
	Err() error

	// Close terminates the connection. Calling Close more than once is safe.
	Close() error
}

// Provider is the abstraction over any live backend.
type Provider interface {
	// Connect dials the service, sends the session setup and waits for the
	// service to acknowledge it. ctx bounds only the handshake; the returned
	// Conn lives until closed.
	Connect(ctx context.Context, cfg SessionConfig) (Conn, error)

	// Capabilities returns static metadata about the provider.
	Capabilities() Capabilities
}

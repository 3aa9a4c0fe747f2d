// Package live runs a continuous voice conversation with a live model
// service. A [Session] owns a microphone capture stream, a speaker output and
// a duplex [live.Conn]; one goroutine per session forwards captured frames,
// schedules model audio for gapless playback and handles barge-in.
//
// A Session is single-use: after it reaches [StateClosed] or [StateError] a
// new one must be created to talk again.
package live

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of a [Session].
type State int

const (
	// StateIdle is the initial state. Only Connect is valid.
	StateIdle State = iota

	// StateConnecting means devices are being opened and the transport is
	// performing its setup handshake.
	StateConnecting

	// StateOpen means audio is flowing in both directions.
	StateOpen

	// StateClosing means resources are being released.
	StateClosing

	// StateClosed is terminal after a local disconnect or a normal remote
	// close.
	StateClosed

	// StateError is terminal after a failed connect or a transport failure.
	StateError
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is the coarse connection status reported to an [Observer].
type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// Role identifies who spoke a [Transcript].
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Transcript is a piece of text produced during a live session: the model's
// text parts, or the service's transcription of either side's speech.
type Transcript struct {
	Role Role
	Text string

	// Final is true for complete text parts and false for incremental
	// transcription fragments.
	Final bool
}

// Observer receives session notifications. Callbacks run on the session's
// goroutines and must not block for long; they must not call Disconnect
// synchronously.
type Observer interface {
	OnStatus(Status)
	OnText(Transcript)
}

// ObserverFuncs adapts plain functions to [Observer]. Nil fields are skipped.
type ObserverFuncs struct {
	Status func(Status)
	Text   func(Transcript)
}

// OnStatus implements [Observer].
func (f ObserverFuncs) OnStatus(s Status) {
	if f.Status != nil {
		f.Status(s)
	}
}

// OnText implements [Observer].
func (f ObserverFuncs) OnText(t Transcript) {
	if f.Text != nil {
		f.Text(t)
	}
}

var _ Observer = ObserverFuncs{}

// Sentinel errors.
var (
	// ErrInvalidState is returned when an operation is not valid in the
	// session's current state.
	ErrInvalidState = errors.New("live: invalid state")

	// ErrConnect matches every [ConnectError].
	ErrConnect = errors.New("live: connect failed")

	// ErrCaptureEnded is reported via [Session.Err] when the microphone
	// stream ends while the session is open.
	ErrCaptureEnded = errors.New("live: capture stream ended")
)

// ConnectError describes why Connect failed. Stage names the step that
// failed: "capture", "output" or "transport". The underlying error stays
// reachable, so a denied microphone also matches audio.ErrPermissionDenied.
type ConnectError struct {
	Stage string
	Err   error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("live: connect: %s: %v", e.Stage, e.Err)
}

// Is reports whether target is [ErrConnect].
func (e *ConnectError) Is(target error) bool { return target == ErrConnect }

// Unwrap returns the underlying error.
func (e *ConnectError) Unwrap() error { return e.Err }

// Package types defines the data shared across MakanMate packages.
//
// These types are the common currency between the providers, the chat and
// live sessions, and the presentation layer. Each package keeps its own
// domain types; only cross-cutting structures live here to avoid import
// cycles.
package types

import (
	"time"

	"github.com/makanmate/makanmate/pkg/audio"
)

// Role identifies the author of a [Message].
type Role string

const (
	// RoleUser is the person asking for food recommendations.
	RoleUser Role = "user"

	// RoleModel is the assistant.
	RoleModel Role = "model"
)

// Message is a single entry in a conversation history. Messages are never
// mutated after they are appended to a history.
type Message struct {
	// ID uniquely identifies the message within its conversation.
	ID string

	// Role is the author.
	Role Role

	// Text is the message body. For audio messages it is a placeholder.
	Text string

	// IsAudio marks a message whose content is the attached recording.
	IsAudio bool

	// Audio is the recording sent with an audio message. Nil for text.
	Audio *audio.Packet

	// CreatedAt is when the message was appended.
	CreatedAt time.Time
}

// PlaceKind is the source of a [PlaceReference].
type PlaceKind string

const (
	PlaceMaps PlaceKind = "maps"
	PlaceWeb  PlaceKind = "web"
)

// PlaceReference is a place or page an answer was grounded on.
type PlaceReference struct {
	Kind  PlaceKind
	Title string
	URI   string

	// ReviewSnippets holds review excerpts for Maps places, most relevant
	// first. Empty for web references.
	ReviewSnippets []string
}

// Snippet returns the first review excerpt, or "".
func (p PlaceReference) Snippet() string {
	if len(p.ReviewSnippets) == 0 {
		return ""
	}
	return p.ReviewSnippets[0]
}

// Coordinates is a WGS84 position used to bias place searches.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Valid reports whether c lies within WGS84 bounds.
func (c Coordinates) Valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// ModelCapabilities describes what a conversational model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one
	// completion.
	MaxOutputTokens int

	// SupportsAudio indicates the model accepts recorded audio as input.
	SupportsAudio bool

	// SupportsVision indicates the model can process image inputs.
	SupportsVision bool
}

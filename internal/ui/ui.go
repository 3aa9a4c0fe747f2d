// Package ui renders MakanMate output for a terminal: markdown answers,
// place cards, chat messages, live transcripts and connection status.
//
// Every method returns a string; writing it is up to the caller.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/makanmate/makanmate/internal/live"
	"github.com/makanmate/makanmate/pkg/types"
)

const (
	defaultWidth = 80

	colorOrange = "208"
	colorStone  = "245"
	colorRed    = "9"
	colorGreen  = "10"
	colorSky    = "14"
)

// NoPlacesText is shown when an answer came back without Maps places.
const NoPlacesText = "No specific map locations returned."

// Option configures a [Renderer].
type Option func(*Renderer)

// WithWidth sets the wrap width. Values below 20 are ignored.
func WithWidth(w int) Option {
	return func(r *Renderer) {
		if w >= 20 {
			r.width = w
		}
	}
}

// WithPlain disables colour and terminal styling, e.g. when output is piped.
func WithPlain() Option {
	return func(r *Renderer) { r.plain = true }
}

// Renderer formats output. It is safe for concurrent use once built.
type Renderer struct {
	width int
	plain bool
	md    *glamour.TermRenderer

	title   lipgloss.Style
	snippet lipgloss.Style
	link    lipgloss.Style
	card    lipgloss.Style
	muted   lipgloss.Style
	user    lipgloss.Style
	model   lipgloss.Style
	good    lipgloss.Style
	bad     lipgloss.Style
}

// New builds a Renderer.
func New(opts ...Option) (*Renderer, error) {
	r := &Renderer{width: defaultWidth}
	for _, o := range opts {
		o(r)
	}

	style := glamour.WithAutoStyle()
	if r.plain {
		style = glamour.WithStandardStyle("notty")
	}
	md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(r.width))
	if err != nil {
		return nil, fmt.Errorf("ui: markdown renderer: %w", err)
	}
	r.md = md

	r.title = lipgloss.NewStyle().Bold(true)
	r.snippet = lipgloss.NewStyle().Italic(true)
	r.link = lipgloss.NewStyle()
	r.card = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Width(r.width - 2)
	r.muted = lipgloss.NewStyle()
	r.user = lipgloss.NewStyle().Bold(true)
	r.model = lipgloss.NewStyle().Bold(true)
	r.good = lipgloss.NewStyle()
	r.bad = lipgloss.NewStyle()

	if !r.plain {
		r.title = r.title.Foreground(lipgloss.Color(colorOrange))
		r.snippet = r.snippet.Foreground(lipgloss.Color(colorStone))
		r.link = r.link.Foreground(lipgloss.Color(colorSky)).Underline(true)
		r.card = r.card.BorderForeground(lipgloss.Color(colorOrange))
		r.muted = r.muted.Foreground(lipgloss.Color(colorStone))
		r.user = r.user.Foreground(lipgloss.Color(colorSky))
		r.model = r.model.Foreground(lipgloss.Color(colorOrange))
		r.good = r.good.Foreground(lipgloss.Color(colorGreen))
		r.bad = r.bad.Foreground(lipgloss.Color(colorRed))
	}
	return r, nil
}

// Markdown renders a model answer. If rendering fails the raw text is
// returned.
func (r *Renderer) Markdown(text string) string {
	out, err := r.md.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}

// PlaceCard renders one Maps place: its title, the first review snippet in
// quotes, and the link. Web references render as "".
func (r *Renderer) PlaceCard(p types.PlaceReference) string {
	if p.Kind != types.PlaceMaps {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(r.title.Render(p.Title))
	if s := p.Snippet(); s != "" {
		sb.WriteString("\n")
		sb.WriteString(r.snippet.Render(fmt.Sprintf("%q", s)))
	}
	sb.WriteString("\n")
	sb.WriteString(r.muted.Render("View on Google Maps: "))
	sb.WriteString(r.link.Render(p.URI))
	return r.card.Render(sb.String())
}

// Places renders a card per Maps place, or [NoPlacesText] when there are
// none.
func (r *Renderer) Places(places []types.PlaceReference) string {
	var cards []string
	for _, p := range places {
		if c := r.PlaceCard(p); c != "" {
			cards = append(cards, c)
		}
	}
	if len(cards) == 0 {
		return r.muted.Render(NoPlacesText) + "\n"
	}
	return strings.Join(cards, "\n") + "\n"
}

// Message renders one chat history entry.
func (r *Renderer) Message(m types.Message, assistant string) string {
	if m.Role == types.RoleUser {
		text := m.Text
		if m.IsAudio {
			text = "🎤 " + text
		}
		return r.user.Render("You: ") + text + "\n"
	}
	return r.model.Render(assistant+":") + "\n" + r.Markdown(m.Text)
}

// Transcript renders a live transcript fragment as a labelled line.
func (r *Renderer) Transcript(t live.Transcript, assistant string) string {
	if t.Role == live.RoleUser {
		return r.user.Render("You: ") + t.Text
	}
	return r.model.Render(assistant+": ") + t.Text
}

// Status renders a live connection status.
func (r *Renderer) Status(s live.Status) string {
	switch s {
	case live.StatusConnected:
		return r.good.Render("● Live") + r.muted.Render(" (Ctrl+C to end)")
	case live.StatusError:
		return r.bad.Render("● Connection error")
	default:
		return r.muted.Render("○ Disconnected")
	}
}

// Error renders a user-visible error line.
func (r *Renderer) Error(msg string) string {
	return r.bad.Render(msg) + "\n"
}

// Muted renders secondary text such as progress hints.
func (r *Renderer) Muted(msg string) string {
	return r.muted.Render(msg)
}

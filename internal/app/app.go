// Package app wires the MakanMate modes into one application.
//
// The App owns the providers and devices shared by the three modes: Find
// runs a one-shot place search, NewChat opens a conversational session, and
// the embedded [LiveManager] runs at most one live voice session at a time.
//
// For testing, inject mock providers through [Providers] and mock audio
// hardware with [WithDevices]. When an option is not provided, New falls
// back to defaults derived from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/makanmate/makanmate/internal/chat"
	"github.com/makanmate/makanmate/internal/config"
	"github.com/makanmate/makanmate/internal/geo"
	"github.com/makanmate/makanmate/internal/health"
	"github.com/makanmate/makanmate/internal/live"
	"github.com/makanmate/makanmate/internal/observe"
	"github.com/makanmate/makanmate/pkg/audio"
	providerlive "github.com/makanmate/makanmate/pkg/provider/live"
	"github.com/makanmate/makanmate/pkg/provider/llm"
	"github.com/makanmate/makanmate/pkg/provider/search"
)

// Prompts substituted when a search request lacks text.
const (
	// AudioOnlyPrompt accompanies a voice-only search.
	AudioOnlyPrompt = "Find restaurants based on this request."

	// EmptyPrompt is used when neither text nor audio was given.
	EmptyPrompt = "Recommend good food nearby."
)

// ErrNotConfigured is returned when a mode's provider is missing.
var ErrNotConfigured = errors.New("app: provider not configured")

// Providers holds one interface value per mode. Nil means the mode is not
// available. Populated by main.go via the config registry.
type Providers struct {
	Live   providerlive.Provider
	Search search.Provider
	Chat   llm.Provider

	// ChatName labels chat metrics (e.g. "gemini", "openai").
	ChatName string
}

// App owns the shared dependencies of every mode.
type App struct {
	cfg       *config.Config
	providers *Providers
	devices   audio.Devices
	locator   geo.Locator
	log       *slog.Logger
	metrics   *observe.Metrics

	live *LiveManager
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithDevices sets the audio hardware used for recording and live mode.
func WithDevices(d audio.Devices) Option {
	return func(a *App) { a.devices = d }
}

// WithLocator overrides the position source. The default is the configured
// location, or none.
func WithLocator(l geo.Locator) Option {
	return func(a *App) { a.locator = l }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithMetrics sets the metric instruments. The default is
// observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg and providers.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	a.log = a.log.With("component", "app")
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if a.locator == nil {
		loc, err := locatorFromConfig(cfg.Location)
		if err != nil {
			return nil, fmt.Errorf("app: init location: %w", err)
		}
		a.locator = loc
	}

	a.live = newLiveManager(a)
	return a, nil
}

func locatorFromConfig(c *config.LocationConfig) (geo.Locator, error) {
	if c == nil {
		return geo.None(), nil
	}
	return geo.NewStatic(c.Latitude, c.Longitude)
}

// ─── Find ────────────────────────────────────────────────────────────────────

// FindRequest is a one-shot search. Either field may be empty.
type FindRequest struct {
	Prompt string
	Audio  *audio.Packet
}

// Find runs a one-shot place search. A missing prompt is replaced by
// [AudioOnlyPrompt] or [EmptyPrompt]. The user's position is attached when
// the locator has one.
func (a *App) Find(ctx context.Context, req FindRequest) (*search.Result, error) {
	if a.providers.Search == nil {
		return nil, fmt.Errorf("%w: search", ErrNotConfigured)
	}

	ctx, span := observe.StartSpan(ctx, "app.find")
	defer span.End()

	prompt := req.Prompt
	if prompt == "" {
		if req.Audio != nil {
			prompt = AudioOnlyPrompt
		} else {
			prompt = EmptyPrompt
		}
	}
	sreq := search.Request{
		Prompt:   prompt,
		Audio:    req.Audio,
		Location: geo.Resolve(ctx, a.locator),
	}

	start := time.Now()
	res, err := a.providers.Search.Query(ctx, sreq)
	a.metrics.RecordCall(ctx, a.metrics.QueryDuration, a.cfg.Providers.Search.Name, "search", time.Since(start).Seconds(), err)
	if err != nil {
		observe.SpanError(span, err)
		observe.LoggerFrom(ctx, a.log).Warn("find failed", "err", err)
		return nil, err
	}
	observe.LoggerFrom(ctx, a.log).Info("find complete",
		"audio", req.Audio != nil,
		"located", sreq.Location != nil,
		"places", len(res.Places),
	)
	return res, nil
}

// ─── Chat ────────────────────────────────────────────────────────────────────

// NewChat opens a conversation seeded with the configured greeting, or
// [chat.DefaultGreeting] when none is set.
func (a *App) NewChat() (*chat.Session, error) {
	if a.providers.Chat == nil {
		return nil, fmt.Errorf("%w: chat", ErrNotConfigured)
	}
	name := a.providers.ChatName
	if name == "" {
		name = a.cfg.Providers.Chat.Name
	}
	opts := []chat.Option{
		chat.WithSystemPrompt(a.cfg.Assistant.SystemInstruction),
		chat.WithProviderName(name),
		chat.WithLogger(a.log),
		chat.WithMetrics(a.metrics),
	}
	if g := a.cfg.Assistant.Greeting; g != "" {
		opts = append(opts, chat.WithGreeting(g))
	}
	return chat.New(a.providers.Chat, opts...), nil
}

// ─── Recording ───────────────────────────────────────────────────────────────

// recordFormat is the capture format for push-to-talk clips.
var recordFormat = audio.Format{SampleRate: 16000, Channels: 1}

// Record captures one push-to-talk clip of the configured length and returns
// it as a WAV packet ready for upload. Cancelling ctx ends the clip early; the
// audio captured so far is kept.
func (a *App) Record(ctx context.Context) (audio.Packet, error) {
	if a.devices == nil {
		return audio.Packet{}, fmt.Errorf("%w: audio devices", ErrNotConfigured)
	}
	capture, err := a.devices.OpenCapture(ctx, recordFormat)
	if err != nil {
		return audio.Packet{}, fmt.Errorf("app: open microphone: %w", err)
	}
	defer capture.Close()

	samples, err := audio.Record(ctx, capture, a.cfg.Audio.RecordDuration())
	if err != nil && !errors.Is(err, context.Canceled) {
		return audio.Packet{}, fmt.Errorf("app: record: %w", err)
	}
	if len(samples) == 0 {
		return audio.Packet{}, errors.New("app: record: no audio captured")
	}
	a.log.Debug("recorded clip", "samples", len(samples))
	return audio.EncodeWAVPacket(samples, recordFormat.SampleRate, recordFormat.Channels), nil
}

// ─── Live ────────────────────────────────────────────────────────────────────

// Live returns the live session manager.
func (a *App) Live() *LiveManager { return a.live }

// liveConfig is the setup sent to the live service.
func (a *App) liveConfig() providerlive.SessionConfig {
	return providerlive.SessionConfig{
		Instructions:        a.cfg.Assistant.SystemInstruction,
		Voice:               a.cfg.Assistant.Voice,
		InputTranscription:  true,
		OutputTranscription: true,
	}
}

func (a *App) liveOptions(o live.Observer) []live.Option {
	opts := []live.Option{
		live.WithObserver(o),
		live.WithSessionConfig(a.liveConfig()),
		live.WithLogger(a.log),
		live.WithMetrics(a.metrics),
	}
	if r := a.cfg.Audio.InputRate; r > 0 {
		opts = append(opts, live.WithInputFormat(audio.Format{SampleRate: r, Channels: 1}))
	}
	if r := a.cfg.Audio.OutputRate; r > 0 {
		opts = append(opts, live.WithOutputFormat(audio.Format{SampleRate: r, Channels: 1}))
	}
	return opts
}

// ─── Health ──────────────────────────────────────────────────────────────────

// Checkers returns the readiness checks for the metrics listener: one API key
// check per configured Gemini provider plus the live session state.
func (a *App) Checkers() []health.Checker {
	var checks []health.Checker
	seen := map[string]bool{}
	entries := []struct {
		kind  string
		entry config.ProviderEntry
	}{
		{"live", a.cfg.Providers.Live},
		{"search", a.cfg.Providers.Search},
		{"chat", a.cfg.Providers.Chat},
	}
	for _, e := range entries {
		if e.entry.Name != "gemini" || seen[e.entry.APIKey] {
			continue
		}
		seen[e.entry.APIKey] = true
		name := "gemini-key"
		if e.entry.APIKey != "" {
			name = "gemini-key-" + e.kind
		}
		checks = append(checks, health.APIKey(name, e.entry.Key))
	}
	checks = append(checks, health.Checker{Name: "live", Check: a.live.check})
	return checks
}

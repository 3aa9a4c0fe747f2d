// Package gemini implements the live.Provider interface for Google's Gemini
// Live API.
//
// It establishes a bidirectional WebSocket connection to the Gemini Live
// endpoint and exchanges JSON messages according to the BidiGenerateContent
// protocol. Microphone audio is sent as base64 PCM realtime input; inbound
// server content is flattened into an ordered stream of live.Event values.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/makanmate/makanmate/pkg/audio"
	"github.com/makanmate/makanmate/pkg/provider/live"
)

// Compile-time assertions that Provider and conn satisfy the live interfaces.
var _ live.Provider = (*Provider)(nil)
var _ live.Conn = (*conn)(nil)

const (
	// DefaultModel is the native-audio Live model.
	DefaultModel   = "gemini-2.5-flash-native-audio-preview-09-2025"
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

	// InputRate and OutputRate are the PCM rates the Live API speaks.
	InputRate  = 16000
	OutputRate = 24000

	keepaliveInterval = 20 * time.Second
	keepaliveTimeout  = 5 * time.Second

	// Model turns carry whole audio chunks; the library default of 32 KiB is
	// too small for them.
	readLimit = 16 << 20

	eventBuffer = 64
)

// ── Options ────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the Gemini model used for sessions.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the base WebSocket URL. Primarily used in tests to
// point at a local mock server.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.log = l }
}

// ── Provider ───────────────────────────────────────────────────────────────────

// Provider implements live.Provider for Google's Gemini Live API.
type Provider struct {
	apiKey  string
	model   string
	baseURL string
	log     *slog.Logger
}

// New creates a new Gemini Live Provider with the given API key and options.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:  apiKey,
		model:   DefaultModel,
		baseURL: defaultBaseURL,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Capabilities returns static metadata about the Gemini Live provider.
func (p *Provider) Capabilities() live.Capabilities {
	return live.Capabilities{
		InputFormat:  audio.Format{SampleRate: InputRate, Channels: 1},
		OutputFormat: audio.Format{SampleRate: OutputRate, Channels: 1},
		Voices:       []string{"Aoede", "Charon", "Fenrir", "Kore", "Puck"},
	}
}

// Connect dials Gemini Live, sends the setup message and waits for
// setupComplete. Failures wrap live.ErrTransport.
func (p *Provider) Connect(ctx context.Context, cfg live.SessionConfig) (live.Conn, error) {
	wsURL := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		p.baseURL, url.QueryEscape(p.apiKey),
	)

	ws, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Content-Type": []string{"application/json"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w: %w", live.ErrTransport, err)
	}
	ws.SetReadLimit(readLimit)

	if err := handshake(ctx, ws, p.model, cfg); err != nil {
		ws.Close(websocket.StatusInternalError, "setup failed")
		return nil, err
	}

	connCtx, connCancel := context.WithCancel(context.Background())
	c := &conn{
		ws:       ws,
		outbound: make(chan audio.Packet),
		events:   make(chan live.Event, eventBuffer),
		ctx:      connCtx,
		cancel:   connCancel,
		log:      p.log.With("component", "gemini-live", "model", p.model),
	}

	go c.receiveLoop()
	go c.writeLoop()
	go c.keepaliveLoop()

	c.log.Debug("live session established")
	return c, nil
}

// handshake sends the setup message and reads until the server acknowledges
// it or reports an error.
func handshake(ctx context.Context, ws *websocket.Conn, model string, cfg live.SessionConfig) error {
	data, err := json.Marshal(buildSetup(model, cfg))
	if err != nil {
		return fmt.Errorf("gemini: marshal setup: %w", err)
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("gemini: setup: %w: %w", live.ErrTransport, err)
	}

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return fmt.Errorf("gemini: await setupComplete: %w: %w", live.ErrTransport, err)
		}
		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Error != nil {
			return fmt.Errorf("gemini: setup rejected: %w: %w", live.ErrTransport, msg.Error)
		}
		if msg.SetupComplete != nil {
			return nil
		}
	}
}

func buildSetup(model string, cfg live.SessionConfig) setupMessage {
	msg := setupMessage{
		Setup: setupConfig{
			Model: "models/" + model,
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"audio"},
			},
		},
	}
	if cfg.Instructions != "" {
		msg.Setup.SystemInstruction = &content{Parts: []part{{Text: cfg.Instructions}}}
	}
	if cfg.Voice != "" {
		msg.Setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{
				PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.InputTranscription {
		msg.Setup.InputAudioTranscription = &struct{}{}
	}
	if cfg.OutputTranscription {
		msg.Setup.OutputAudioTranscription = &struct{}{}
	}
	return msg
}

// ── Protocol message types (outgoing) ─────────────────────────────────────────

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model                    string           `json:"model"`
	GenerationConfig         generationConfig `json:"generationConfig"`
	SystemInstruction        *content         `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}        `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []inlineData `json:"mediaChunks"`
}

// ── Protocol message types (incoming) ─────────────────────────────────────────

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	Error         *serverError     `json:"error,omitempty"`
}

// serverError is an error payload sent by the service.
type serverError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

func (e *serverError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	if e.Status != "" {
		return fmt.Sprintf("gemini: %s (%d %s)", msg, e.Code, e.Status)
	}
	return fmt.Sprintf("gemini: %s (%d)", msg, e.Code)
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

// ── conn ───────────────────────────────────────────────────────────────────────

type conn struct {
	ws       *websocket.Conn
	outbound chan audio.Packet // unbuffered: a send succeeds only if the writer is idle
	events   chan live.Event
	log      *slog.Logger

	mu     sync.Mutex
	errVal error
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// writeJSON marshals v and writes it as a text WebSocket message.
func (c *conn) writeJSON(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gemini: marshal: %w", err)
	}
	return c.ws.Write(ctx, websocket.MessageText, data)
}

// fail records err as the terminal error and tears the connection down. It is
// a no-op after a local Close.
func (c *conn) fail(err error) {
	c.mu.Lock()
	if c.closed || c.ctx.Err() != nil {
		c.mu.Unlock()
		return
	}
	if c.errVal == nil {
		c.errVal = fmt.Errorf("%w: %w", live.ErrTransport, err)
	}
	c.mu.Unlock()

	c.log.Warn("live connection failed", "err", err)
	c.cancel()
	c.ws.Close(websocket.StatusInternalError, "connection failed")
}

// writeLoop is the only writer of audio frames.
func (c *conn) writeLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case p := <-c.outbound:
			msg := realtimeInputMessage{
				RealtimeInput: realtimeInput{
					MediaChunks: []inlineData{{MIMEType: p.MIMEType, Data: p.Data}},
				},
			}
			if err := c.writeJSON(c.ctx, msg); err != nil {
				c.fail(fmt.Errorf("write audio: %w", err))
				return
			}
		}
	}
}

// receiveLoop reads messages from the WebSocket and emits events. It owns the
// events channel and closes it when it exits.
func (c *conn) receiveLoop() {
	defer close(c.events)
	defer c.cancel()

	for {
		_, data, err := c.ws.Read(c.ctx)
		if err != nil {
			switch {
			case c.ctx.Err() != nil:
				// Closed locally or failure already recorded.
			case websocket.CloseStatus(err) == websocket.StatusNormalClosure:
				c.log.Debug("live connection closed by server")
			default:
				c.fail(fmt.Errorf("read: %w", err))
			}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Debug("skipping malformed frame", "err", err)
			continue
		}
		if msg.Error != nil {
			c.fail(msg.Error)
			return
		}
		if msg.ServerContent != nil && !c.dispatch(msg.ServerContent) {
			return
		}
	}
}

// dispatch flattens sc into events. It reports false if the connection was
// closed while emitting.
func (c *conn) dispatch(sc *serverContent) bool {
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData != nil && strings.HasPrefix(p.InlineData.MIMEType, "audio/") && p.InlineData.Data != "" {
				pkt := audio.Packet{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data}
				if !c.emit(live.Event{Kind: live.EventAudio, Audio: &pkt}) {
					return false
				}
			}
			if p.Text != "" && !c.emit(live.Event{Kind: live.EventText, Text: p.Text}) {
				return false
			}
		}
	}
	if t := sc.InputTranscription; t != nil && t.Text != "" {
		if !c.emit(live.Event{Kind: live.EventInputTranscript, Text: t.Text}) {
			return false
		}
	}
	if t := sc.OutputTranscription; t != nil && t.Text != "" {
		if !c.emit(live.Event{Kind: live.EventOutputTranscript, Text: t.Text}) {
			return false
		}
	}
	if sc.Interrupted && !c.emit(live.Event{Kind: live.EventInterrupted}) {
		return false
	}
	if sc.TurnComplete && !c.emit(live.Event{Kind: live.EventTurnComplete}) {
		return false
	}
	return true
}

func (c *conn) emit(ev live.Event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.ctx.Done():
		return false
	}
}

// keepaliveLoop pings the server. A failed ping means the transport stalled.
func (c *conn) keepaliveLoop() {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(c.ctx, keepaliveTimeout)
			err := c.ws.Ping(pingCtx)
			cancel()
			if err != nil {
				c.fail(fmt.Errorf("keepalive: %w", err))
				return
			}
		}
	}
}

// ── live.Conn methods ──────────────────────────────────────────────────────────

// SendAudio hands p to the writer goroutine without blocking.
func (c *conn) SendAudio(p audio.Packet) error {
	if c.ctx.Err() != nil {
		return live.ErrClosed
	}
	select {
	case c.outbound <- p:
		return nil
	default:
		return live.ErrBusy
	}
}

// Events returns the ordered inbound event stream.
func (c *conn) Events() <-chan live.Event { return c.events }

// Err returns the error that ended the connection, or nil.
func (c *conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errVal
}

// Close terminates the connection. Idempotent.
func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	if err := c.ws.Close(websocket.StatusNormalClosure, "session closed"); err != nil {
		c.log.Debug("close handshake incomplete", "err", err)
	}
	return nil
}

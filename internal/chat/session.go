// Package chat implements the conversational session: an append-only
// history of user and model messages, advanced one turn at a time through an
// llm.Provider.
//
// The opening greeting is local. It is the first entry of [Session.History]
// but is never sent to the backend.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/makanmate/makanmate/internal/observe"
	"github.com/makanmate/makanmate/pkg/audio"
	"github.com/makanmate/makanmate/pkg/provider/llm"
	"github.com/makanmate/makanmate/pkg/types"
)

const (
	// DefaultGreeting opens every conversation.
	DefaultGreeting = "Hi! I'm MakanMate. I can help you find the best food in Malaysia. What are you craving today?"

	// EmptyReply replaces a blank model answer.
	EmptyReply = "I didn't catch that, could you try again?"

	// FallbackReply is what a caller shows the user after a [SendError].
	FallbackReply = "Sorry, I'm having trouble connecting right now."

	// AudioPlaceholder is the text of a user audio message.
	AudioPlaceholder = "Audio Message"
)

var (
	// ErrEmptyInput is returned by [Session.Send] for input with neither
	// text nor audio.
	ErrEmptyInput = errors.New("chat: empty input")

	// ErrSendFailed is matched by every [*SendError].
	ErrSendFailed = errors.New("chat: send failed")
)

// SendError reports a failed turn. The history is unchanged.
type SendError struct {
	Err error
}

func (e *SendError) Error() string { return fmt.Sprintf("chat: send failed: %v", e.Err) }

// Is reports whether target is [ErrSendFailed].
func (e *SendError) Is(target error) bool { return target == ErrSendFailed }

// Unwrap returns the provider error.
func (e *SendError) Unwrap() error { return e.Err }

// Input is one user turn. At least one field must be set; Audio wins when
// both are.
type Input struct {
	Text  string
	Audio *audio.Packet
}

// ── Options ────────────────────────────────────────────────────────────────────

// Option configures a [Session].
type Option func(*Session)

// WithSystemPrompt sets the instruction sent with every turn.
func WithSystemPrompt(s string) Option {
	return func(c *Session) { c.systemPrompt = s }
}

// WithGreeting replaces [DefaultGreeting]. An empty greeting starts the
// history empty.
func WithGreeting(s string) Option {
	return func(c *Session) { c.greeting = s }
}

// WithProviderName sets the provider label used in metrics and logs.
func WithProviderName(name string) Option {
	return func(c *Session) { c.providerName = name }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Session) { c.log = l }
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Session) { c.metrics = m }
}

// WithClock overrides the message timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Session) { c.now = now }
}

// ── Session ────────────────────────────────────────────────────────────────────

// Session is one ongoing conversation. All methods are safe for concurrent
// use; concurrent sends are serialised.
type Session struct {
	provider     llm.Provider
	systemPrompt string
	greeting     string
	providerName string
	log          *slog.Logger
	metrics      *observe.Metrics
	now          func() time.Time

	// sendMu serialises turns. mu guards history.
	sendMu  sync.Mutex
	mu      sync.Mutex
	history []types.Message
	greetID string
}

// New creates a Session whose history holds only the greeting.
func New(provider llm.Provider, opts ...Option) *Session {
	s := &Session{
		provider:     provider,
		greeting:     DefaultGreeting,
		providerName: "chat",
		log:          slog.Default(),
		metrics:      observe.DefaultMetrics(),
		now:          time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.With("component", "chat", "provider", s.providerName)
	if s.greeting != "" {
		g := s.message(types.RoleModel, s.greeting)
		s.greetID = g.ID
		s.history = append(s.history, g)
	}
	return s
}

// History returns a copy of the conversation so far.
func (s *Session) History() []types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Message, len(s.history))
	copy(out, s.history)
	return out
}

// Send appends in as a user turn, asks the provider for a reply and appends
// it. The reply text is returned. On failure nothing is appended and the
// error is a [*SendError].
func (s *Session) Send(ctx context.Context, in Input) (string, error) {
	user, err := s.userMessage(in)
	if err != nil {
		return "", err
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	ctx, span := observe.StartSpan(ctx, "chat.send")
	defer span.End()

	msgs := s.window(append(s.History(), user))
	start := time.Now()
	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Messages:     msgs,
		SystemPrompt: s.systemPrompt,
	})
	s.metrics.RecordCall(ctx, s.metrics.ChatDuration, s.providerName, "chat", time.Since(start).Seconds(), err)
	if err != nil {
		observe.SpanError(span, err)
		observe.LoggerFrom(ctx, s.log).Warn("chat turn failed", "err", err, "audio", user.IsAudio)
		return "", &SendError{Err: err}
	}

	reply := ""
	if resp != nil {
		reply = resp.Content
	}
	if strings.TrimSpace(reply) == "" {
		reply = EmptyReply
	}

	s.mu.Lock()
	s.history = append(s.history, user, s.message(types.RoleModel, reply))
	s.mu.Unlock()

	s.log.Debug("chat turn complete", "messages", len(msgs), "audio", user.IsAudio)
	return reply, nil
}

func (s *Session) userMessage(in Input) (types.Message, error) {
	switch {
	case in.Audio != nil:
		m := s.message(types.RoleUser, AudioPlaceholder)
		m.IsAudio = true
		m.Audio = in.Audio
		return m, nil
	case strings.TrimSpace(in.Text) != "":
		return s.message(types.RoleUser, in.Text), nil
	default:
		return types.Message{}, ErrEmptyInput
	}
}

func (s *Session) message(role types.Role, text string) types.Message {
	return types.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Text:      text,
		CreatedAt: s.now(),
	}
}

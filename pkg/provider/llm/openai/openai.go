// Package openai provides a chat provider backed by the OpenAI chat
// completions API or any server speaking the same protocol.
//
// Recorded voice turns are forwarded as input_audio content parts to models
// that accept them (the gpt-4o audio family). Every other model is text-only
// and rejects audio turns with llm.ErrAudioUnsupported.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/makanmate/makanmate/pkg/audio"
	"github.com/makanmate/makanmate/pkg/provider/llm"
	"github.com/makanmate/makanmate/pkg/types"
)

var _ llm.Provider = (*Provider)(nil)

// ErrNoChoices is returned when the API answers without any choice.
var ErrNoChoices = errors.New("openai: response has no choices")

// Provider implements llm.Provider on the chat completions endpoint.
type Provider struct {
	client oai.Client
	model  string
	caps   types.ModelCapabilities
}

type settings struct {
	baseURL      string
	organization string
	timeout      time.Duration
}

// Option configures a Provider.
type Option func(*settings)

// WithBaseURL points the provider at another OpenAI-compatible server.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.baseURL = url }
}

// WithOrganization sends the OpenAI organization ID with every request.
func WithOrganization(org string) Option {
	return func(s *settings) { s.organization = org }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// New returns a Provider for model. Retries are disabled: a failed turn is
// reported to the user, or handed to a fallback provider, immediately.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}
	if model == "" {
		return nil, errors.New("openai: model is required")
	}
	var s settings
	for _, o := range opts {
		o(&s)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if s.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(s.baseURL))
	}
	if s.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(s.organization))
	}
	if s.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: s.timeout}))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  model,
		caps:   modelCapabilities(model),
	}, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if !p.caps.SupportsAudio && llm.HasAudio(req.Messages) {
		return nil, fmt.Errorf("openai: %s: %w", p.model, llm.ErrAudioUnsupported)
	}
	params, err := p.params(req)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}
	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() types.ModelCapabilities { return p.caps }

// modelCapabilities looks up limits by model name prefix. Unknown models get
// a 128k window.
func modelCapabilities(model string) types.ModelCapabilities {
	caps := types.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096}
	name := strings.ToLower(model)
	switch {
	case strings.Contains(name, "audio"):
		caps.MaxOutputTokens = 16_384
		caps.SupportsAudio = true
	case strings.HasPrefix(name, "gpt-4o"), strings.HasPrefix(name, "gpt-4.1"):
		caps.MaxOutputTokens = 16_384
		caps.SupportsVision = true
	case strings.HasPrefix(name, "gpt-4-turbo"):
		caps.SupportsVision = true
	case strings.HasPrefix(name, "gpt-4"):
		caps.ContextWindow = 8_192
	case strings.HasPrefix(name, "gpt-3.5-turbo"):
		caps.ContextWindow = 16_385
	case strings.HasPrefix(name, "o3"), strings.HasPrefix(name, "o4"):
		caps.ContextWindow = 200_000
		caps.MaxOutputTokens = 100_000
		caps.SupportsVision = true
	}
	return caps
}

func (p *Provider) params(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(req.SystemPrompt))
	}
	for i, m := range req.Messages {
		msg, err := convertMessage(m)
		if err != nil {
			return oai.ChatCompletionNewParams{}, fmt.Errorf("openai: message %d: %w", i, err)
		}
		msgs = append(msgs, msg)
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: msgs,
	}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	return params, nil
}

// convertMessage maps a conversation message to its OpenAI form. Model turns
// become assistant messages; a user audio turn becomes an input_audio part.
func convertMessage(m types.Message) (oai.ChatCompletionMessageParamUnion, error) {
	switch m.Role {
	case types.RoleModel:
		return oai.AssistantMessage(m.Text), nil
	case types.RoleUser:
		if m.Audio == nil {
			return oai.UserMessage(m.Text), nil
		}
		format, err := audioFormat(m.Audio.MIMEType)
		if err != nil {
			return oai.ChatCompletionMessageParamUnion{}, err
		}
		return oai.UserMessage([]oai.ChatCompletionContentPartUnionParam{
			oai.InputAudioContentPart(oai.ChatCompletionContentPartInputAudioInputAudioParam{
				Data:   m.Audio.Data,
				Format: format,
			}),
		}), nil
	default:
		return oai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unknown role %q", m.Role)
	}
}

// audioFormat maps a packet MIME type to the input_audio format name. Raw
// PCM is not accepted by the API; recordings are uploaded as WAV.
func audioFormat(mime string) (string, error) {
	base, _, _ := strings.Cut(mime, ";")
	switch strings.TrimSpace(strings.ToLower(base)) {
	case audio.WAVMIMEType, "audio/x-wav", "audio/wave":
		return "wav", nil
	case "audio/mpeg", "audio/mp3":
		return "mp3", nil
	default:
		return "", fmt.Errorf("audio type %q: %w", mime, llm.ErrAudioUnsupported)
	}
}

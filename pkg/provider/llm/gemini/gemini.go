// Package gemini implements the llm.Provider interface on Gemini
// generateContent through the genai SDK.
//
// Unlike the text-only backends it accepts audio messages: each one is sent
// as an inline data part, so a recorded voice note can be answered in the
// same conversation.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/makanmate/makanmate/pkg/audio"
	"github.com/makanmate/makanmate/pkg/provider/llm"
	"github.com/makanmate/makanmate/pkg/types"
)

var _ llm.Provider = (*Provider)(nil)

// DefaultModel is the conversational model.
const DefaultModel = "gemini-3-pro-preview"

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL overrides the API root. Primarily used in tests.
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = url }
}

// WithHTTPClient sets the HTTP client used by the SDK.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements llm.Provider for Gemini.
type Provider struct {
	client     *genai.Client
	model      string
	baseURL    string
	httpClient *http.Client
}

// New creates a Provider. apiKey must not be empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	p := &Provider{model: DefaultModel}
	for _, o := range opts {
		o(p)
	}
	if p.model == "" {
		return nil, fmt.Errorf("gemini: model must not be empty")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  p.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: p.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	p.client = client
	return p, nil
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	contents, config, err := buildRequest(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}
	if len(resp.Candidates) == 0 && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, fmt.Errorf("gemini: prompt blocked: %s", resp.PromptFeedback.BlockReason)
	}
	return &llm.CompletionResponse{Content: replyText(resp)}, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() types.ModelCapabilities {
	caps := types.ModelCapabilities{
		ContextWindow:   1_048_576,
		MaxOutputTokens: 65_536,
		SupportsAudio:   true,
		SupportsVision:  true,
	}
	if strings.HasPrefix(strings.ToLower(p.model), "gemini-1.5") {
		caps.MaxOutputTokens = 8_192
	}
	return caps
}

func buildRequest(req llm.CompletionRequest) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	if len(req.Messages) == 0 {
		return nil, nil, fmt.Errorf("no messages")
	}
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		c, err := convertMessage(m)
		if err != nil {
			return nil, nil, err
		}
		contents = append(contents, c)
	}

	config := &genai.GenerateContentConfig{MaxOutputTokens: int32(req.MaxTokens)}
	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if req.Temperature != 0 {
		t := float32(req.Temperature)
		config.Temperature = &t
	}
	return contents, config, nil
}

// convertMessage maps a message to a Gemini content turn.
func convertMessage(m types.Message) (*genai.Content, error) {
	var role string
	switch m.Role {
	case types.RoleUser:
		role = genai.RoleUser
	case types.RoleModel:
		role = genai.RoleModel
	default:
		return nil, fmt.Errorf("unknown message role %q", m.Role)
	}
	c := &genai.Content{Role: role}
	if m.Audio != nil {
		data, err := audio.Base64ToBytes(m.Audio.Data)
		if err != nil {
			return nil, fmt.Errorf("message %q audio: %w", m.ID, err)
		}
		c.Parts = append(c.Parts, &genai.Part{InlineData: &genai.Blob{MIMEType: m.Audio.MIMEType, Data: data}})
	}
	// The text of an audio message is a display placeholder.
	if m.Text != "" && !m.IsAudio {
		c.Parts = append(c.Parts, &genai.Part{Text: m.Text})
	}
	if len(c.Parts) == 0 {
		return nil, fmt.Errorf("message %q has no content", m.ID)
	}
	return c, nil
}

// replyText joins the text parts of the first candidate, skipping thoughts.
func replyText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// Package gemini implements the search.Provider interface with a Gemini
// generateContent call grounded on Google Maps, issued through the genai SDK.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/makanmate/makanmate/pkg/audio"
	"github.com/makanmate/makanmate/pkg/provider/search"
	"github.com/makanmate/makanmate/pkg/types"
)

var _ search.Provider = (*Provider)(nil)

// DefaultModel is the one-shot query model.
const DefaultModel = "gemini-2.5-flash"

const providerName = "gemini"

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

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.log = l }
}

// Provider implements search.Provider.
type Provider struct {
	client     *genai.Client
	model      string
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

// New creates a Provider. apiKey must not be empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: apiKey must not be empty")
	}
	p := &Provider{model: DefaultModel, log: slog.Default()}
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
	p.log = p.log.With("component", "gemini-search", "model", p.model)
	return p, nil
}

// Query implements search.Provider.
func (p *Provider) Query(ctx context.Context, req search.Request) (*search.Result, error) {
	contents, config, err := buildRequest(req)
	if err != nil {
		return nil, &search.QueryError{Provider: providerName, Err: err}
	}
	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return nil, &search.QueryError{Provider: providerName, Err: err}
	}

	res := &search.Result{Text: answerText(resp)}
	if len(resp.Candidates) > 0 && resp.Candidates[0].GroundingMetadata != nil {
		res.Places = places(resp.Candidates[0].GroundingMetadata.GroundingChunks)
	}
	if res.Text == "" {
		res.Text = search.NoResultsText
	}
	p.log.DebugContext(ctx, "query answered",
		"places", len(res.Places),
		"audio", req.Audio != nil,
		"located", req.Location != nil,
	)
	return res, nil
}

func buildRequest(req search.Request) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	var parts []*genai.Part
	if req.Audio != nil {
		data, err := audio.Base64ToBytes(req.Audio.Data)
		if err != nil {
			return nil, nil, fmt.Errorf("audio payload: %w", err)
		}
		parts = append(parts,
			&genai.Part{InlineData: &genai.Blob{MIMEType: req.Audio.MIMEType, Data: data}},
			&genai.Part{Text: search.AudioHint + req.Prompt},
		)
	} else {
		parts = append(parts, &genai.Part{Text: req.Prompt})
	}

	config := &genai.GenerateContentConfig{
		Tools: []*genai.Tool{{GoogleMaps: &genai.GoogleMaps{}}},
	}
	if loc := req.Location; loc != nil {
		config.ToolConfig = &genai.ToolConfig{
			RetrievalConfig: &genai.RetrievalConfig{
				LatLng: &genai.LatLng{Latitude: &loc.Latitude, Longitude: &loc.Longitude},
			},
		}
	}
	return []*genai.Content{{Role: genai.RoleUser, Parts: parts}}, config, nil
}

// answerText joins the text parts of the first candidate, skipping thoughts.
func answerText(resp *genai.GenerateContentResponse) string {
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

// places converts grounding chunks into place references. Chunks with
// neither a Maps nor a web source are skipped.
func places(chunks []*genai.GroundingChunk) []types.PlaceReference {
	var out []types.PlaceReference
	for _, c := range chunks {
		switch {
		case c == nil:
		case c.Maps != nil:
			ref := types.PlaceReference{Kind: types.PlaceMaps, Title: c.Maps.Title, URI: c.Maps.URI}
			if src := c.Maps.PlaceAnswerSources; src != nil {
				for _, s := range src.ReviewSnippets {
					if s != nil && s.Review != "" {
						ref.ReviewSnippets = append(ref.ReviewSnippets, s.Review)
					}
				}
			}
			out = append(out, ref)
		case c.Web != nil:
			out = append(out, types.PlaceReference{Kind: types.PlaceWeb, Title: c.Web.Title, URI: c.Web.URI})
		}
	}
	return out
}

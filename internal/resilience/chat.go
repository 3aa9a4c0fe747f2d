package resilience

import (
	"context"
	"fmt"

	"github.com/makanmate/makanmate/pkg/provider/llm"
	"github.com/makanmate/makanmate/pkg/types"
)

var _ llm.Provider = (*Chat)(nil)

// Chat is an llm.Provider that fails over between chat backends.
//
// Requests carrying audio skip members that cannot take audio, so a text-only
// fallback never sees a voice turn.
type Chat struct {
	group *Group[llm.Provider]
}

// NewChat returns a failover chat provider with primary as the first member.
func NewChat(name string, primary llm.Provider, cfg GroupConfig) *Chat {
	return &Chat{group: NewGroup(name, primary, cfg)}
}

// Add appends a fallback backend. It must not be called once the provider is
// in use.
func (c *Chat) Add(name string, p llm.Provider) { c.group.Add(name, p) }

// States returns each member's breaker state.
func (c *Chat) States() map[string]State { return c.group.States() }

// Complete sends req to the first healthy member able to serve it.
func (c *Chat) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	hasAudio := llm.HasAudio(req.Messages)
	resp, _, err := Do(ctx, c.group, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		if hasAudio && !p.Capabilities().SupportsAudio {
			return nil, fmt.Errorf("%w: %w", ErrSkipped, llm.ErrAudioUnsupported)
		}
		return p.Complete(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("resilience: chat: %w", err)
	}
	return resp, nil
}

// Capabilities merges the members' capabilities. Limits take the smallest
// non-zero value so history trimming suits every member; feature flags are set
// when any member has them.
func (c *Chat) Capabilities() types.ModelCapabilities {
	var out types.ModelCapabilities
	c.group.Each(func(_ string, p llm.Provider) {
		caps := p.Capabilities()
		out.ContextWindow = minNonZero(out.ContextWindow, caps.ContextWindow)
		out.MaxOutputTokens = minNonZero(out.MaxOutputTokens, caps.MaxOutputTokens)
		out.SupportsAudio = out.SupportsAudio || caps.SupportsAudio
		out.SupportsVision = out.SupportsVision || caps.SupportsVision
	})
	return out
}

func minNonZero(a, b int) int {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	default:
		return min(a, b)
	}
}

package chat

import "github.com/makanmate/makanmate/pkg/types"

const (
	// charsPerToken is the heuristic ratio used for token estimation.
	charsPerToken = 4

	// audioTokens is the flat estimate for one recorded message. Gemini bills
	// 32 tokens per second; recordings are a few seconds long.
	audioTokens = 256

	// windowRatio is the share of the context window the history may use.
	// The rest is left for the system prompt and the reply.
	windowRatio = 0.75
)

func estimateTokens(m types.Message) int {
	if m.IsAudio {
		return audioTokens
	}
	return len(m.Text)/charsPerToken + 1
}

// window returns the messages to send for a turn: msgs without the local
// greeting, trimmed from the oldest end to fit the provider's context
// window. The newest message is always kept.
func (s *Session) window(msgs []types.Message) []types.Message {
	if len(msgs) > 0 && s.greetID != "" && msgs[0].ID == s.greetID {
		msgs = msgs[1:]
	}

	limit := int(float64(s.provider.Capabilities().ContextWindow) * windowRatio)
	if limit <= 0 {
		return msgs
	}

	total := 0
	start := len(msgs)
	for start > 0 {
		t := estimateTokens(msgs[start-1])
		if total+t > limit && start < len(msgs) {
			break
		}
		total += t
		start--
	}
	// A model turn cannot open the request.
	for start < len(msgs)-1 && msgs[start].Role == types.RoleModel {
		start++
	}
	if start > 0 {
		s.log.Debug("history trimmed to context window", "dropped", start, "kept", len(msgs)-start)
	}
	return msgs[start:]
}

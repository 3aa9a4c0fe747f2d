package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/makanmate/makanmate/internal/app"
	"github.com/makanmate/makanmate/internal/config"
	"github.com/makanmate/makanmate/internal/resilience"
	providerlive "github.com/makanmate/makanmate/pkg/provider/live"
	geminilive "github.com/makanmate/makanmate/pkg/provider/live/gemini"
	"github.com/makanmate/makanmate/pkg/provider/llm"
	"github.com/makanmate/makanmate/pkg/provider/llm/anyllm"
	geminichat "github.com/makanmate/makanmate/pkg/provider/llm/gemini"
	oachat "github.com/makanmate/makanmate/pkg/provider/llm/openai"
	"github.com/makanmate/makanmate/pkg/provider/search"
	geminisearch "github.com/makanmate/makanmate/pkg/provider/search/gemini"
)

// builtinProviders maps provider kinds to the implementations that ship with
// MakanMate. Used for startup logging.
var builtinProviders = map[string][]string{
	"live":   {"gemini"},
	"search": {"gemini"},
	"chat":   {"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry, logger *slog.Logger) {
	// ── Live ──────────────────────────────────────────────────────────────────

	reg.RegisterLive("gemini", func(entry config.ProviderEntry) (providerlive.Provider, error) {
		key := entry.Key()
		if key == "" {
			return nil, errors.New("gemini live: API key is required")
		}
		opts := []geminilive.Option{geminilive.WithLogger(logger)}
		if entry.Model != "" {
			opts = append(opts, geminilive.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, geminilive.WithBaseURL(entry.BaseURL))
		}
		return geminilive.New(key, opts...), nil
	})

	// ── Search ────────────────────────────────────────────────────────────────

	reg.RegisterSearch("gemini", func(entry config.ProviderEntry) (search.Provider, error) {
		opts := []geminisearch.Option{geminisearch.WithLogger(logger)}
		if entry.Model != "" {
			opts = append(opts, geminisearch.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, geminisearch.WithBaseURL(entry.BaseURL))
		}
		return geminisearch.New(entry.Key(), opts...)
	})

	// ── Chat ──────────────────────────────────────────────────────────────────

	reg.RegisterChat("gemini", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []geminichat.Option
		if entry.Model != "" {
			opts = append(opts, geminichat.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, geminichat.WithBaseURL(entry.BaseURL))
		}
		return geminichat.New(entry.Key(), opts...)
	})

	reg.RegisterChat("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oachat.Option
		if entry.BaseURL != "" {
			opts = append(opts, oachat.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oachat.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oachat.WithTimeout(d))
		}
		// The gemini env fallback does not apply to OpenAI keys.
		return oachat.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining backends share the any-llm pattern: optional APIKey +
	// optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterChat(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterChat("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	for kind, names := range builtinProviders {
		for _, name := range names {
			logger.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the providers selected by need and returns them
// in an [app.Providers] struct for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry, need kinds, logger *slog.Logger) (*app.Providers, error) {
	ps := &app.Providers{}

	if need.live {
		p, err := reg.CreateLive(cfg.Providers.Live)
		if err != nil {
			return nil, fmt.Errorf("create live provider %q: %w", cfg.Providers.Live.Name, err)
		}
		ps.Live = p
		slog.Debug("provider created", "kind", "live", "name", cfg.Providers.Live.Name)
	}

	if need.search {
		p, err := reg.CreateSearch(cfg.Providers.Search)
		if err != nil {
			return nil, fmt.Errorf("create search provider %q: %w", cfg.Providers.Search.Name, err)
		}
		ps.Search = p
		slog.Debug("provider created", "kind", "search", "name", cfg.Providers.Search.Name)
	}

	if need.chat {
		p, err := reg.CreateChat(cfg.Providers.Chat)
		if err != nil {
			return nil, fmt.Errorf("create chat provider %q: %w", cfg.Providers.Chat.Name, err)
		}
		ps.Chat = p
		ps.ChatName = cfg.Providers.Chat.Name
		slog.Debug("provider created", "kind", "chat", "name", cfg.Providers.Chat.Name)

		if len(cfg.Providers.ChatFallbacks) > 0 {
			failover, err := buildChatFailover(cfg, reg, p, logger)
			if err != nil {
				return nil, err
			}
			ps.Chat = failover
		}
	}

	return ps, nil
}

// buildChatFailover chains primary with the configured chat fallbacks. Each
// member is labelled "<index>:<name>" so two entries of the same backend stay
// distinguishable in logs.
func buildChatFailover(cfg *config.Config, reg *config.Registry, primary llm.Provider, logger *slog.Logger) (*resilience.Chat, error) {
	fo := cfg.Providers.Failover
	chat := resilience.NewChat("0:"+cfg.Providers.Chat.Name, primary, resilience.GroupConfig{
		Breaker: resilience.BreakerConfig{
			MaxFailures:  fo.MaxFailures,
			ResetTimeout: fo.ResetTimeout,
		},
		Logger: logger,
	})
	for i, entry := range cfg.Providers.ChatFallbacks {
		p, err := reg.CreateChat(entry)
		if err != nil {
			return nil, fmt.Errorf("create chat fallback %d %q: %w", i+1, entry.Name, err)
		}
		chat.Add(fmt.Sprintf("%d:%s", i+1, entry.Name), p)
		slog.Debug("provider created", "kind", "chat-fallback", "name", entry.Name)
	}
	return chat, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}

// optDuration parses a duration option such as "30s". Integers are read as
// seconds. Invalid values yield zero.
func optDuration(opts map[string]any, key string) time.Duration {
	switch v := opts[key].(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0
		}
		return d
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return 0
}

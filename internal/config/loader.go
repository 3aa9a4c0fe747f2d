package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/makanmate/makanmate/pkg/types"
)

// ValidProviderNames are the provider names registered by the makanmate
// command, per kind. [Validate] warns about any other name.
var ValidProviderNames = map[string][]string{
	"live":   {"gemini"},
	"search": {"gemini"},
	"chat":   {"gemini", "openai", "anthropic", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load opens path and hands it to [LoadFromReader]. A missing file matches
// os.ErrNotExist.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults and
// validates the result. An empty document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid field at once, joined. Unknown provider
// names and missing Gemini keys only log warnings.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Providers
	validateProviderName("live", cfg.Providers.Live.Name)
	validateProviderName("search", cfg.Providers.Search.Name)
	validateProviderName("chat", cfg.Providers.Chat.Name)
	for i, fb := range cfg.Providers.ChatFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.chat_fallbacks[%d].name is required", i))
			continue
		}
		validateProviderName("chat", fb.Name)
	}
	if cfg.Providers.Failover.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("providers.failover.max_failures %d must not be negative", cfg.Providers.Failover.MaxFailures))
	}
	if cfg.Providers.Failover.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("providers.failover.reset_timeout %v must not be negative", cfg.Providers.Failover.ResetTimeout))
	}

	// Audio
	if cfg.Audio.InputRate < 0 {
		errs = append(errs, fmt.Errorf("audio.input_rate %d must not be negative", cfg.Audio.InputRate))
	}
	if cfg.Audio.OutputRate < 0 {
		errs = append(errs, fmt.Errorf("audio.output_rate %d must not be negative", cfg.Audio.OutputRate))
	}
	if cfg.Audio.FrameSize < 0 {
		errs = append(errs, fmt.Errorf("audio.frame_size %d must not be negative", cfg.Audio.FrameSize))
	}
	if cfg.Audio.RecordSeconds < 0 || cfg.Audio.RecordSeconds > 60 {
		errs = append(errs, fmt.Errorf("audio.record_seconds %.1f is out of range [0, 60]", cfg.Audio.RecordSeconds))
	}

	// Location
	if loc := cfg.Location; loc != nil {
		c := types.Coordinates{Latitude: loc.Latitude, Longitude: loc.Longitude}
		if !c.Valid() {
			errs = append(errs, fmt.Errorf("location %v,%v is out of range", loc.Latitude, loc.Longitude))
		}
	}

	// Key availability
	for kind, e := range map[string]ProviderEntry{
		"live": cfg.Providers.Live, "search": cfg.Providers.Search, "chat": cfg.Providers.Chat,
	} {
		if e.Name == "gemini" && e.Key() == "" {
			slog.Warn("no API key configured; set api_key or GEMINI_API_KEY", "kind", kind)
		}
	}

	return errors.Join(errs...)
}

// validateProviderName warns about a provider name the built-in registry
// does not know. Custom registries may still resolve it.
func validateProviderName(kind, name string) {
	known := ValidProviderNames[kind]
	if name == "" || known == nil || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name", "kind", kind, "name", name, "known", known)
}

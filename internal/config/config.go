// Package config provides the configuration schema, loader, and provider registry
// for MakanMate.
package config

import (
	"os"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

const (
	// DefaultAssistantName labels model output.
	DefaultAssistantName = "MakanMate"

	// DefaultSystemInstruction is the persona used for chat and live mode.
	DefaultSystemInstruction = "You are MakanMate, a helpful, enthusiastic, and knowledgeable Malaysian food guide. " +
		"You help people decide what to eat. You know about local Malaysian dishes like Nasi Lemak, Laksa, " +
		"Roti Canai, Satay, etc. Keep responses concise and conversational."

	// DefaultVoice is the prebuilt live voice.
	DefaultVoice = "Kore"

	// DefaultFrameSize is the capture buffer length in samples.
	DefaultFrameSize = 4096

	// DefaultRecordDuration is the push-to-talk length for one-shot and chat
	// voice input.
	DefaultRecordDuration = 5 * time.Second
)

// APIKeyEnvVars are consulted in order when a provider entry has no api_key.
var APIKeyEnvVars = []string{"GEMINI_API_KEY", "API_KEY"}

// Config is the root configuration structure for MakanMate.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Assistant AssistantConfig `yaml:"assistant"`
	Audio     AudioConfig     `yaml:"audio"`
	Location  *LocationConfig `yaml:"location"`
}

// ServerConfig holds the metrics/health listener and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for /metrics, /healthz and /readyz
	// (e.g., ":9090"). Empty disables the listener.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig selects the backend for each mode. Each field names a
// provider registered in the [Registry].
type ProvidersConfig struct {
	Live   ProviderEntry `yaml:"live"`
	Search ProviderEntry `yaml:"search"`
	Chat   ProviderEntry `yaml:"chat"`

	// ChatFallbacks are tried in order when the chat provider fails.
	ChatFallbacks []ProviderEntry `yaml:"chat_fallbacks"`

	// Failover tunes the circuit breakers guarding chat providers. Only used
	// when ChatFallbacks is non-empty.
	Failover FailoverConfig `yaml:"failover"`
}

// FailoverConfig tunes per-provider circuit breakers. Zero values use the
// resilience package defaults.
type FailoverConfig struct {
	// MaxFailures is the run of consecutive failures that takes a provider
	// out of rotation.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long a failing provider stays out of rotation
	// (e.g., "30s").
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "gemini", "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any. When
	// empty, [ProviderEntry.Key] falls back to [APIKeyEnvVars].
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider. Empty uses the
	// provider default.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// Key returns the configured API key, or the first non-empty variable from
// [APIKeyEnvVars].
func (e ProviderEntry) Key() string {
	if e.APIKey != "" {
		return e.APIKey
	}
	for _, name := range APIKeyEnvVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// AssistantConfig holds the persona shared by all modes.
type AssistantConfig struct {
	// Name labels the assistant's output.
	Name string `yaml:"name"`

	// SystemInstruction is sent with every chat turn and live session.
	SystemInstruction string `yaml:"system_instruction"`

	// Greeting opens a chat conversation.
	Greeting string `yaml:"greeting"`

	// Voice is the prebuilt live voice name.
	Voice string `yaml:"voice"`
}

// AudioConfig tunes the local audio devices.
type AudioConfig struct {
	// InputRate overrides the capture rate sent to the live service. Zero
	// uses the provider's rate.
	InputRate int `yaml:"input_rate"`

	// OutputRate overrides the playback rate. Zero uses the provider's rate.
	OutputRate int `yaml:"output_rate"`

	// FrameSize is the capture buffer length in samples.
	FrameSize int `yaml:"frame_size"`

	// RecordSeconds is the push-to-talk length for voice queries.
	RecordSeconds float64 `yaml:"record_seconds"`
}

// RecordDuration returns RecordSeconds as a duration.
func (a AudioConfig) RecordDuration() time.Duration {
	return time.Duration(a.RecordSeconds * float64(time.Second))
}

// LocationConfig is a fixed position used to bias place searches.
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// ApplyDefaults fills unset fields with their defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Providers.Live.Name == "" {
		cfg.Providers.Live.Name = "gemini"
	}
	if cfg.Providers.Search.Name == "" {
		cfg.Providers.Search.Name = "gemini"
	}
	if cfg.Providers.Chat.Name == "" {
		cfg.Providers.Chat.Name = "gemini"
	}
	if cfg.Assistant.Name == "" {
		cfg.Assistant.Name = DefaultAssistantName
	}
	if cfg.Assistant.SystemInstruction == "" {
		cfg.Assistant.SystemInstruction = DefaultSystemInstruction
	}
	if cfg.Assistant.Voice == "" {
		cfg.Assistant.Voice = DefaultVoice
	}
	if cfg.Audio.FrameSize == 0 {
		cfg.Audio.FrameSize = DefaultFrameSize
	}
	if cfg.Audio.RecordSeconds == 0 {
		cfg.Audio.RecordSeconds = DefaultRecordDuration.Seconds()
	}
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

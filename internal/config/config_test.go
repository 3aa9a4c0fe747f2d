package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/makanmate/makanmate/internal/config"
	"github.com/makanmate/makanmate/pkg/provider/live"
	livemock "github.com/makanmate/makanmate/pkg/provider/live/mock"
	"github.com/makanmate/makanmate/pkg/provider/llm"
	llmmock "github.com/makanmate/makanmate/pkg/provider/llm/mock"
	"github.com/makanmate/makanmate/pkg/provider/search"
	searchmock "github.com/makanmate/makanmate/pkg/provider/search/mock"
)

const validYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
providers:
  live:
    name: gemini
    api_key: live-key
  search:
    name: gemini
    model: gemini-2.5-flash
  chat:
    name: openai
    api_key: sk-test
    model: gpt-4o-mini
    options:
      temperature: 0.4
assistant:
  name: Mak
  greeting: "Apa khabar?"
  voice: Puck
audio:
  frame_size: 2048
  record_seconds: 3
location:
  latitude: 3.1390
  longitude: 101.6869
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want %q", cfg.Server.ListenAddr, ":9090")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("LogLevel = %q, want %q", cfg.Server.LogLevel, config.LogDebug)
	}
	if cfg.Providers.Chat.Name != "openai" || cfg.Providers.Chat.Model != "gpt-4o-mini" {
		t.Errorf("Chat = %+v", cfg.Providers.Chat)
	}
	if got, ok := cfg.Providers.Chat.Options["temperature"].(float64); !ok || got != 0.4 {
		t.Errorf("Chat.Options[temperature] = %v", cfg.Providers.Chat.Options["temperature"])
	}
	if cfg.Assistant.Name != "Mak" || cfg.Assistant.Voice != "Puck" {
		t.Errorf("Assistant = %+v", cfg.Assistant)
	}
	if cfg.Assistant.SystemInstruction != config.DefaultSystemInstruction {
		t.Error("SystemInstruction should default when omitted")
	}
	if cfg.Audio.FrameSize != 2048 {
		t.Errorf("FrameSize = %d, want 2048", cfg.Audio.FrameSize)
	}
	if got := cfg.Audio.RecordDuration(); got != 3*time.Second {
		t.Errorf("RecordDuration = %v, want 3s", got)
	}
	if cfg.Location == nil || cfg.Location.Latitude != 3.1390 {
		t.Errorf("Location = %+v", cfg.Location)
	}
}

func TestLoadFromReader_EmptyIsValid(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("empty config should be valid, got: %v", err)
	}
	want := config.Default()
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("LogLevel = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Providers.Live.Name != "gemini" || cfg.Providers.Search.Name != "gemini" || cfg.Providers.Chat.Name != "gemini" {
		t.Errorf("Providers = %+v", cfg.Providers)
	}
	if cfg.Assistant != want.Assistant {
		t.Errorf("Assistant = %+v, want %+v", cfg.Assistant, want.Assistant)
	}
	if cfg.Audio.FrameSize != config.DefaultFrameSize {
		t.Errorf("FrameSize = %d", cfg.Audio.FrameSize)
	}
	if cfg.Location != nil {
		t.Errorf("Location = %+v, want nil", cfg.Location)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("assistant:\n  persona: grumpy\n"))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
	if !strings.Contains(err.Error(), "persona") {
		t.Errorf("error should mention the field, got: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"log level", "server:\n  log_level: verbose\n", "log_level"},
		{"input rate", "audio:\n  input_rate: -1\n", "input_rate"},
		{"output rate", "audio:\n  output_rate: -8000\n", "output_rate"},
		{"frame size", "audio:\n  frame_size: -1\n", "frame_size"},
		{"record seconds", "audio:\n  record_seconds: 90\n", "record_seconds"},
		{"latitude", "location:\n  latitude: 91\n  longitude: 0\n", "location"},
		{"longitude", "location:\n  latitude: 0\n  longitude: -181\n", "location"},
		{"fallback name", "providers:\n  chat_fallbacks:\n    - model: gpt-4o-mini\n", "chat_fallbacks[0].name"},
		{"failover failures", "providers:\n  failover:\n    max_failures: -1\n", "max_failures"},
		{"failover timeout", "providers:\n  failover:\n    reset_timeout: -5s\n", "reset_timeout"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error should mention %q, got: %v", tc.want, err)
			}
		})
	}
}

func TestLoadFromReader_ChatFallbacks(t *testing.T) {
	t.Parallel()

	const doc = `
providers:
  chat_fallbacks:
    - name: openai
      api_key: sk-test
      model: gpt-4o-mini
    - name: ollama
      base_url: http://localhost:11434
      model: llama3.2
  failover:
    max_failures: 2
    reset_timeout: 45s
`
	cfg, err := config.LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fbs := cfg.Providers.ChatFallbacks
	if len(fbs) != 2 || fbs[0].Name != "openai" || fbs[1].BaseURL != "http://localhost:11434" {
		t.Errorf("ChatFallbacks = %+v", fbs)
	}
	if got := cfg.Providers.Failover; got.MaxFailures != 2 || got.ResetTimeout != 45*time.Second {
		t.Errorf("Failover = %+v, want 2 failures and 45s", got)
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("server:\n  log_level: loud\naudio:\n  frame_size: -2\n"))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"log_level", "frame_size"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

func TestValidate_UnknownProviderNameIsWarning(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("providers:\n  chat:\n    name: my-private-llm\n    api_key: k\n"))
	if err != nil {
		t.Fatalf("unknown provider names should only warn, got: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "makanmate.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Assistant.Greeting != "Apa khabar?" {
		t.Errorf("Greeting = %q", cfg.Assistant.Greeting)
	}

	_, err = config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v, want os.ErrNotExist", err)
	}
}

func TestProviderEntry_Key(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "")

	if got := (config.ProviderEntry{}).Key(); got != "" {
		t.Errorf("Key() with no sources = %q, want empty", got)
	}

	t.Setenv("API_KEY", "fallback")
	if got := (config.ProviderEntry{}).Key(); got != "fallback" {
		t.Errorf("Key() = %q, want API_KEY value", got)
	}

	t.Setenv("GEMINI_API_KEY", "gemini")
	if got := (config.ProviderEntry{}).Key(); got != "gemini" {
		t.Errorf("Key() = %q, want GEMINI_API_KEY to win", got)
	}

	if got := (config.ProviderEntry{APIKey: "explicit"}).Key(); got != "explicit" {
		t.Errorf("Key() = %q, want explicit api_key", got)
	}
}

// ── Registry ──────────────────────────────────────────────────────────────────

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	entry := config.ProviderEntry{Name: "nonexistent"}

	if _, err := reg.CreateLive(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLive err = %v", err)
	}
	if _, err := reg.CreateSearch(entry); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSearch err = %v", err)
	}
	_, err := reg.CreateChat(entry)
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateChat err = %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), `chat/"nonexistent"`) {
		t.Errorf("error should name the kind and provider, got: %v", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	var gotEntry config.ProviderEntry
	reg.RegisterLive("fake", func(e config.ProviderEntry) (live.Provider, error) {
		gotEntry = e
		return &livemock.Provider{}, nil
	})
	reg.RegisterSearch("fake", func(config.ProviderEntry) (search.Provider, error) {
		return &searchmock.Provider{}, nil
	})
	reg.RegisterChat("fake", func(config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})

	entry := config.ProviderEntry{Name: "fake", Model: "m1"}
	if p, err := reg.CreateLive(entry); err != nil || p == nil {
		t.Errorf("CreateLive = %v, %v", p, err)
	}
	if gotEntry.Model != "m1" {
		t.Errorf("factory received %+v", gotEntry)
	}
	if p, err := reg.CreateSearch(entry); err != nil || p == nil {
		t.Errorf("CreateSearch = %v, %v", p, err)
	}
	if p, err := reg.CreateChat(entry); err != nil || p == nil {
		t.Errorf("CreateChat = %v, %v", p, err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	boom := errors.New("boom")
	reg.RegisterChat("broken", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, boom
	})
	if _, err := reg.CreateChat(config.ProviderEntry{Name: "broken"}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

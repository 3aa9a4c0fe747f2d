package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/makanmate/makanmate/pkg/audio"
	"github.com/makanmate/makanmate/pkg/provider/llm"
	"github.com/makanmate/makanmate/pkg/types"
)

// TestConvertMessage_Roles checks that conversation roles map to OpenAI roles.
func TestConvertMessage_Roles(t *testing.T) {
	user, err := convertMessage(types.Message{Role: types.RoleUser, Text: "Where to eat laksa?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.OfUser == nil {
		t.Fatal("expected OfUser to be set")
	}

	model, err := convertMessage(types.Message{Role: types.RoleModel, Text: "Try Penang."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model.OfAssistant == nil {
		t.Fatal("expected OfAssistant to be set")
	}
}

// TestConvertMessage_UnknownRole checks that unknown roles return an error.
func TestConvertMessage_UnknownRole(t *testing.T) {
	_, err := convertMessage(types.Message{Role: "narrator", Text: "test"})
	if err == nil {
		t.Fatal("expected error for unknown role, got nil")
	}
}

func TestConvertMessage_Audio(t *testing.T) {
	msg, err := convertMessage(types.Message{
		Role:    types.RoleUser,
		Text:    "Audio Message",
		IsAudio: true,
		Audio:   &audio.Packet{MIMEType: "audio/wav", Data: "UklGRg=="},
	})
	if err != nil {
		t.Fatalf("convertMessage: %v", err)
	}
	if msg.OfUser == nil {
		t.Fatal("expected OfUser to be set")
	}
	parts := msg.OfUser.Content.OfArrayOfContentParts
	if len(parts) != 1 || parts[0].OfInputAudio == nil {
		t.Fatalf("content parts = %+v, want one input_audio part", parts)
	}
	if got := parts[0].OfInputAudio.InputAudio; got.Format != "wav" || got.Data != "UklGRg==" {
		t.Errorf("input_audio = %+v", got)
	}
}

func TestAudioFormat(t *testing.T) {
	tests := []struct {
		mime    string
		want    string
		wantErr bool
	}{
		{"audio/wav", "wav", false},
		{"audio/x-wav", "wav", false},
		{"audio/mpeg", "mp3", false},
		{"audio/pcm;rate=16000", "", true},
	}
	for _, tc := range tests {
		got, err := audioFormat(tc.mime)
		if tc.wantErr {
			if !errors.Is(err, llm.ErrAudioUnsupported) {
				t.Errorf("%s: err = %v, want ErrAudioUnsupported", tc.mime, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("%s: audioFormat = %q, %v; want %q", tc.mime, got, err, tc.want)
		}
	}
}

// TestModelCapabilities checks the capability table.
func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model      string
		wantWindow int
		wantVision bool
		wantAudio  bool
	}{
		{"gpt-4o-mini", 128_000, true, false},
		{"gpt-4o", 128_000, true, false},
		{"gpt-4o-audio-preview", 128_000, false, true},
		{"gpt-4", 8_192, false, false},
		{"gpt-3.5-turbo", 16_385, false, false},
		{"o3", 200_000, true, false},
		{"my-custom-model", 128_000, false, false},
	}
	for _, tc := range tests {
		caps := modelCapabilities(tc.model)
		if caps.ContextWindow != tc.wantWindow {
			t.Errorf("%s: context window = %d, want %d", tc.model, caps.ContextWindow, tc.wantWindow)
		}
		if caps.SupportsVision != tc.wantVision {
			t.Errorf("%s: SupportsVision = %v, want %v", tc.model, caps.SupportsVision, tc.wantVision)
		}
		if caps.SupportsAudio != tc.wantAudio {
			t.Errorf("%s: SupportsAudio = %v, want %v", tc.model, caps.SupportsAudio, tc.wantAudio)
		}
		if caps.MaxOutputTokens <= 0 {
			t.Errorf("%s: MaxOutputTokens = %d, want > 0", tc.model, caps.MaxOutputTokens)
		}
	}
}

// TestNew_Validation ensures the constructor rejects missing arguments.
func TestNew_Validation(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("sk-test", ""); err == nil {
		t.Error("expected error for empty model")
	}
	if _, err := New("sk-test", "gpt-4o",
		WithBaseURL("https://custom.example.com"),
		WithOrganization("org-123"),
	); err != nil {
		t.Fatalf("unexpected error with valid options: %v", err)
	}
}

// TestComplete_RejectsAudio ensures audio messages never reach the API.
func TestComplete_RejectsAudio(t *testing.T) {
	p, err := New("sk-test", "gpt-4o", WithBaseURL("http://127.0.0.1:1/"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []types.Message{{
			Role:    types.RoleUser,
			Text:    "Audio Message",
			IsAudio: true,
			Audio:   &audio.Packet{MIMEType: "audio/wav", Data: "UklGRg=="},
		}},
	})
	if !errors.Is(err, llm.ErrAudioUnsupported) {
		t.Fatalf("err = %v, want ErrAudioUnsupported", err)
	}
}

// TestComplete_RoundTrip drives Complete against a fake chat completions
// endpoint.
func TestComplete_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("path = %q", r.URL.Path)
		}
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content any    `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body.Model != "gpt-4o-mini" {
			t.Errorf("model = %q", body.Model)
		}
		roles := make([]string, len(body.Messages))
		for i, m := range body.Messages {
			roles[i] = m.Role
		}
		if got := strings.Join(roles, ","); got != "system,assistant,user" {
			t.Errorf("roles = %s, want system,assistant,user", got)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": "Try Nasi Kandar Pelita."}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 6, "total_tokens": 18}
		}`))
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		SystemPrompt: "You are MakanMate.",
		Messages: []types.Message{
			{Role: types.RoleModel, Text: "What are you craving?"},
			{Role: types.RoleUser, Text: "Nasi kandar"},
		},
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Try Nasi Kandar Pelita." {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.Usage.TotalTokens != 18 {
		t.Errorf("TotalTokens = %d, want 18", resp.Usage.TotalTokens)
	}
}

// TestComplete_AudioModel sends a voice turn to an audio-capable model.
func TestComplete_AudioModel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Role    string            `json:"role"`
				Content []json.RawMessage `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if len(body.Messages) != 1 || len(body.Messages[0].Content) != 1 {
			t.Errorf("messages = %+v, want one user message with one part", body.Messages)
		} else if part := string(body.Messages[0].Content[0]); !strings.Contains(part, `"input_audio"`) {
			t.Errorf("content part = %s, want input_audio", part)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c","object":"chat.completion","created":1,"model":"gpt-4o-audio-preview",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Satay Kajang!"}}],
			"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`))
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-audio-preview", WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []types.Message{{
			Role:    types.RoleUser,
			IsAudio: true,
			Audio:   &audio.Packet{MIMEType: "audio/wav", Data: "UklGRg=="},
		}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "Satay Kajang!" {
		t.Errorf("Content = %q", resp.Content)
	}
}

func TestComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c","object":"chat.completion","created":1,"model":"gpt-4o-mini","choices":[]}`))
	}))
	defer srv.Close()

	p, err := New("sk-test", "gpt-4o-mini", WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []types.Message{{Role: types.RoleUser, Text: "Hungry"}},
	})
	if !errors.Is(err, ErrNoChoices) {
		t.Errorf("err = %v, want ErrNoChoices", err)
	}
}

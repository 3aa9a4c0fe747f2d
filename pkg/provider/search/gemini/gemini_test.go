package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/makanmate/makanmate/pkg/audio"
	"github.com/makanmate/makanmate/pkg/provider/search"
	"github.com/makanmate/makanmate/pkg/types"
)

const groundedReply = `{
  "candidates": [{
    "content": {"role": "model", "parts": [{"text": "**Nasi Lemak Tanglin** is a classic."}]},
    "groundingMetadata": {"groundingChunks": [
      {"maps": {"uri": "https://maps.google.com/?cid=1", "title": "Nasi Lemak Tanglin",
        "placeAnswerSources": {"reviewSnippets": [{"review": "Sambal is perfect"}, {"review": "Long queue"}]}}},
      {"web": {"uri": "https://example.com/best-nasi-lemak", "title": "Best nasi lemak in KL"}},
      {}
    ]}
  }]
}`

// fakeServer returns a server replying with status and reply. Decoded
// request bodies are delivered on the returned channel.
func fakeServer(t *testing.T, status int, reply string) (*httptest.Server, <-chan map[string]any) {
	t.Helper()
	bodies := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/"+DefaultModel+":generateContent") {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}
		if r.URL.Query().Has("key") {
			t.Error("api key sent in the query string")
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		select {
		case bodies <- body:
		default:
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, bodies
}

func newProvider(t *testing.T, srv *httptest.Server) *Provider {
	t.Helper()
	p, err := New("test-key", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func marshal(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestQuery_TextOnly(t *testing.T) {
	t.Parallel()

	srv, bodies := fakeServer(t, http.StatusOK, groundedReply)
	res, err := newProvider(t, srv).Query(context.Background(), search.Request{Prompt: "nasi lemak near KLCC"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	body := <-bodies
	if got := marshal(t, body["contents"]); got != `[{"parts":[{"text":"nasi lemak near KLCC"}],"role":"user"}]` {
		t.Errorf("contents = %s", got)
	}
	if got := marshal(t, body["tools"]); got != `[{"googleMaps":{}}]` {
		t.Errorf("tools = %s", got)
	}
	if _, ok := body["toolConfig"]; ok {
		t.Error("toolConfig sent without a location")
	}

	if res.Text != "**Nasi Lemak Tanglin** is a classic." {
		t.Errorf("Text = %q", res.Text)
	}
	if len(res.Places) != 2 {
		t.Fatalf("places = %d, want 2 (empty chunk skipped)", len(res.Places))
	}
	maps := res.Places[0]
	if maps.Kind != types.PlaceMaps || maps.Title != "Nasi Lemak Tanglin" || maps.URI != "https://maps.google.com/?cid=1" {
		t.Errorf("maps place = %+v", maps)
	}
	if maps.Snippet() != "Sambal is perfect" || len(maps.ReviewSnippets) != 2 {
		t.Errorf("snippets = %v", maps.ReviewSnippets)
	}
	if web := res.Places[1]; web.Kind != types.PlaceWeb || web.Title != "Best nasi lemak in KL" || len(web.ReviewSnippets) != 0 {
		t.Errorf("web place = %+v", web)
	}
}

func TestQuery_AudioAndLocation(t *testing.T) {
	t.Parallel()

	srv, bodies := fakeServer(t, http.StatusOK, groundedReply)
	_, err := newProvider(t, srv).Query(context.Background(), search.Request{
		Prompt:   "cheap",
		Audio:    &audio.Packet{MIMEType: audio.WAVMIMEType, Data: "UklGRg=="},
		Location: &types.Coordinates{Latitude: 3.139, Longitude: 101.6869},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	// Decoded maps marshal with sorted keys.
	body := <-bodies
	want := `[{"parts":[{"inlineData":{"data":"UklGRg==","mimeType":"audio/wav"}},{"text":"` + search.AudioHint + `cheap"}],"role":"user"}]`
	if got := marshal(t, body["contents"]); got != want {
		t.Errorf("contents = %s\nwant %s", got, want)
	}
	if got := marshal(t, body["toolConfig"]); got != `{"retrievalConfig":{"latLng":{"latitude":3.139,"longitude":101.6869}}}` {
		t.Errorf("toolConfig = %s", got)
	}
}

func TestQuery_EmptyAnswerFallback(t *testing.T) {
	t.Parallel()

	srv, _ := fakeServer(t, http.StatusOK, `{"candidates":[{"content":{"parts":[]}}]}`)
	res, err := newProvider(t, srv).Query(context.Background(), search.Request{Prompt: "durian"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Text != search.NoResultsText {
		t.Errorf("Text = %q, want fallback", res.Text)
	}
	if len(res.Places) != 0 {
		t.Errorf("places = %v, want none", res.Places)
	}
}

func TestQuery_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		reply  string
	}{
		{"server error", http.StatusInternalServerError, `{"error":{"code":500,"message":"boom"}}`},
		{"forbidden", http.StatusForbidden, `{"error":{"code":403,"message":"API key not valid"}}`},
		{"bad json", http.StatusOK, `{"candidates":`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv, _ := fakeServer(t, tc.status, tc.reply)
			res, err := newProvider(t, srv).Query(context.Background(), search.Request{Prompt: "laksa"})
			if res != nil {
				t.Errorf("result = %+v, want nil", res)
			}
			if !errors.Is(err, search.ErrQueryFailed) {
				t.Fatalf("err = %v, want ErrQueryFailed", err)
			}
			var qe *search.QueryError
			if !errors.As(err, &qe) || qe.Provider != "gemini" {
				t.Errorf("QueryError = %+v", qe)
			}
		})
	}
}

func TestQuery_TransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p, err := New("secret-key", WithBaseURL(url))
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Query(context.Background(), search.Request{Prompt: "laksa"})
	if !errors.Is(err, search.ErrQueryFailed) {
		t.Fatalf("err = %v, want ErrQueryFailed", err)
	}
	if strings.Contains(err.Error(), "secret-key") {
		t.Errorf("error leaks API key: %v", err)
	}
}

func TestQuery_BadAudioPayload(t *testing.T) {
	t.Parallel()

	srv, _ := fakeServer(t, http.StatusOK, groundedReply)
	_, err := newProvider(t, srv).Query(context.Background(), search.Request{
		Prompt: "cheap",
		Audio:  &audio.Packet{MIMEType: audio.WAVMIMEType, Data: "%%%"},
	})
	if !errors.Is(err, search.ErrQueryFailed) {
		t.Fatalf("err = %v, want ErrQueryFailed", err)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
	if _, err := New("k", WithModel("")); err == nil {
		t.Error("expected error for empty model")
	}
}

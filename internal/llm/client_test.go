package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"golang.org/x/time/rate"

	"github.com/cognicore/revlens/pkg/revlens/report"
)

type roundTrip func(*http.Request) *http.Response

func (rt roundTrip) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt(req), nil
}

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestGenerate(t *testing.T) {
	client := &Client{
		BaseURL: "http://ollama.test:11434/",
		HTTPClient: &http.Client{
			Transport: roundTrip(func(req *http.Request) *http.Response {
				if req.URL.String() != "http://ollama.test:11434/api/generate" {
					t.Fatalf("unexpected URL %s", req.URL)
				}
				var body generateRequest
				if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
					t.Fatalf("decode request: %v", err)
				}
				if body.Model != DefaultModel || body.Prompt != "hello" || body.Stream {
					t.Fatalf("unexpected request %+v", body)
				}
				return respond(200, `{"response":"hi there","done":true}`)
			}),
		},
	}

	out, err := client.Generate(context.Background(), "hello", false)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "hi there" {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestGenerateStream(t *testing.T) {
	client := &Client{
		Model: "mistral",
		HTTPClient: &http.Client{
			Transport: roundTrip(func(req *http.Request) *http.Response {
				body, _ := io.ReadAll(req.Body)
				if !strings.Contains(string(body), `"stream":true`) || !strings.Contains(string(body), `"model":"mistral"`) {
					t.Fatalf("unexpected payload %s", body)
				}
				return respond(200, "{\"response\":\"Hel\"}\n\n{\"response\":\"lo\"}\n{\"response\":\"\",\"done\":true}\n")
			}),
		},
	}

	out, err := client.Generate(context.Background(), "p", true)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out != "Hello" {
		t.Fatalf("stream not concatenated: %q", out)
	}
}

func TestGenerateErrors(t *testing.T) {
	tests := []struct {
		name string
		resp *http.Response
	}{
		{"status", respond(500, "boom")},
		{"payload error", respond(200, `{"error":"model not found"}`)},
		{"bad json", respond(200, `{`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &Client{HTTPClient: &http.Client{
				Transport: roundTrip(func(*http.Request) *http.Response { return tt.resp }),
			}}
			if _, err := client.Generate(context.Background(), "p", false); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

type failingTransport struct{}

func (failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, errors.New("connection refused")
}

func TestAvailable(t *testing.T) {
	up := &Client{HTTPClient: &http.Client{
		Transport: roundTrip(func(req *http.Request) *http.Response {
			if req.Method != http.MethodGet || req.URL.Path != "/api/tags" {
				t.Fatalf("unexpected availability request %s %s", req.Method, req.URL)
			}
			return respond(200, `{"models":[]}`)
		}),
	}}
	if !up.Available(context.Background()) {
		t.Error("expected server to be available")
	}

	down := &Client{HTTPClient: &http.Client{Transport: failingTransport{}}}
	if down.Available(context.Background()) {
		t.Error("expected unreachable server to be unavailable")
	}

	broken := &Client{HTTPClient: &http.Client{
		Transport: roundTrip(func(*http.Request) *http.Response { return respond(503, "") }),
	}}
	if broken.Available(context.Background()) {
		t.Error("non-200 model listing should be unavailable")
	}
}

func TestModels(t *testing.T) {
	client := &Client{HTTPClient: &http.Client{
		Transport: roundTrip(func(*http.Request) *http.Response {
			return respond(200, `{"models":[{"name":"llama3.2:latest"},{"name":"mistral"}]}`)
		}),
	}}

	models, err := client.Models(context.Background())
	if err != nil {
		t.Fatalf("Models: %v", err)
	}
	if len(models) != 2 || models[0] != "llama3.2:latest" || models[1] != "mistral" {
		t.Fatalf("unexpected models %v", models)
	}
}

func TestChat(t *testing.T) {
	client := &Client{HTTPClient: &http.Client{
		Transport: roundTrip(func(req *http.Request) *http.Response {
			if req.URL.Path != "/api/chat" {
				t.Fatalf("unexpected path %s", req.URL.Path)
			}
			var body chatRequest
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(body.Messages) != 2 || body.Stream {
				t.Fatalf("unexpected chat request %+v", body)
			}
			return respond(200, `{"message":{"role":"assistant","content":"Sure."}}`)
		}),
	}}

	out, err := client.Chat(context.Background(), []Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "help"},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if out != "Sure." {
		t.Fatalf("unexpected reply %q", out)
	}

	if _, err := client.Chat(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty conversation")
	}
}

func TestNarratePrompt(t *testing.T) {
	var prompt string
	client := &Client{HTTPClient: &http.Client{
		Transport: roundTrip(func(req *http.Request) *http.Response {
			var body generateRequest
			json.NewDecoder(req.Body).Decode(&body)
			prompt = body.Prompt
			return respond(200, `{"response":"analysis"}`)
		}),
	}}

	var n report.Narrator = client
	reviews := make([]string, 12)
	for i := range reviews {
		reviews[i] = "body"
	}
	out, err := n.Narrate(context.Background(), report.NarrativeRequest{
		ProductName: "Backpack",
		Reviews:     reviews,
		Context:     "Product: Backpack, Avg Rating: 4.5/5, Total Reviews: 12",
	})
	if err != nil {
		t.Fatalf("Narrate: %v", err)
	}
	if out != "analysis" {
		t.Fatalf("unexpected narrative %q", out)
	}
	if !strings.Contains(prompt, "reviews for Backpack") || !strings.Contains(prompt, "Context: Product: Backpack") {
		t.Errorf("prompt missing product or context:\n%s", prompt)
	}
	if got := strings.Count(prompt, "- body"); got != report.MaxNarrativeReviews {
		t.Errorf("prompt lists %d reviews, want %d", got, report.MaxNarrativeReviews)
	}
}

func TestAsk(t *testing.T) {
	var prompt string
	client := &Client{HTTPClient: &http.Client{
		Transport: roundTrip(func(req *http.Request) *http.Response {
			var body generateRequest
			json.NewDecoder(req.Body).Decode(&body)
			prompt = body.Prompt
			return respond(200, `{"response":"Yes, it is waterproof."}`)
		}),
	}}

	out, err := client.Ask(context.Background(), "Jacket", "Is it waterproof?", []string{"kept me dry"})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if out != "Yes, it is waterproof." {
		t.Fatalf("unexpected answer %q", out)
	}
	if !strings.Contains(prompt, "answer this question: Is it waterproof?") || !strings.Contains(prompt, "- kept me dry") {
		t.Errorf("unexpected prompt:\n%s", prompt)
	}

	if _, err := client.Ask(context.Background(), "Jacket", "  ", nil); err == nil {
		t.Fatal("expected error for blank question")
	}
}

func TestLimiterHonorsContext(t *testing.T) {
	client := &Client{
		Limiter: rate.NewLimiter(rate.Every(1e12), 1),
		HTTPClient: &http.Client{
			Transport: roundTrip(func(*http.Request) *http.Response { return respond(200, `{"response":"ok"}`) }),
		},
	}

	if _, err := client.Generate(context.Background(), "first", false); err != nil {
		t.Fatalf("first call should use the burst: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.Generate(ctx, "second", false); err == nil {
		t.Fatal("expected throttled call with cancelled context to fail")
	}
}

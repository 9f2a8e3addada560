package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/cognicore/revlens/pkg/revlens/report"
)

const (
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.2"
	DefaultTimeout = 60 * time.Second

	availableTimeout = 2 * time.Second
)

// Client talks to an Ollama server. The zero value targets DefaultBaseURL
// with DefaultModel.
type Client struct {
	BaseURL string
	Model   string

	HTTPClient *http.Client
	// Limiter, when set, throttles generation calls.
	Limiter *rate.Limiter
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatResponse struct {
	Message Message `json:"message"`
	Error   string  `json:"error"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// Available reports whether the server answers the model listing endpoint
// within a short timeout.
func (c *Client) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, availableTimeout)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode == http.StatusOK
}

// Models lists the model names installed on the server.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/tags", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var payload tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("llm: decode model list: %w", err)
	}
	names := make([]string, 0, len(payload.Models))
	for _, m := range payload.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Generate completes prompt. With stream set the server answers with one
// JSON object per line and the fragments are concatenated.
func (c *Client) Generate(ctx context.Context, prompt string, stream bool) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/generate", generateRequest{
		Model:  c.model(),
		Prompt: prompt,
		Stream: stream,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return "", err
	}

	if !stream {
		var payload generateResponse
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return "", fmt.Errorf("llm: decode response: %w", err)
		}
		if payload.Error != "" {
			return "", fmt.Errorf("llm error: %s", payload.Error)
		}
		return payload.Response, nil
	}
	return readStream(resp.Body)
}

// Chat sends a conversation and returns the assistant's reply.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("llm: at least one message required")
	}
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/chat", chatRequest{
		Model:    c.model(),
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return "", err
	}

	var payload chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("llm: decode chat response: %w", err)
	}
	if payload.Error != "" {
		return "", fmt.Errorf("llm error: %s", payload.Error)
	}
	return payload.Message.Content, nil
}

// Narrate asks the model for a review analysis. It satisfies report.Narrator.
func (c *Client) Narrate(ctx context.Context, req report.NarrativeRequest) (string, error) {
	return c.Generate(ctx, narrativePrompt(req), false)
}

// Ask answers a shopper's question from the given review bodies.
func (c *Client) Ask(ctx context.Context, product, question string, reviews []string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", errors.New("llm: question required")
	}
	return c.Generate(ctx, questionPrompt(product, question, reviews), false)
}

func narrativePrompt(req report.NarrativeRequest) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Analyze the following reviews for %s and provide:\n", req.ProductName)
	buf.WriteString("1. Overall sentiment summary\n")
	buf.WriteString("2. Top 3 positive aspects mentioned\n")
	buf.WriteString("3. Top 3 negative aspects mentioned\n")
	buf.WriteString("4. Final recommendation\n\nReviews:\n")
	writeBullets(&buf, req.Reviews)
	if req.Context != "" {
		fmt.Fprintf(&buf, "\nContext: %s\n", req.Context)
	}
	buf.WriteString("\nProvide a concise, professional analysis.")
	return buf.String()
}

func questionPrompt(product, question string, reviews []string) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "Based on the following reviews for %s, answer this question: %s\n\nReviews:\n", product, question)
	writeBullets(&buf, reviews)
	buf.WriteString("\nProvide a helpful, concise answer based on the reviews.")
	return buf.String()
}

func writeBullets(buf *bytes.Buffer, reviews []string) {
	if len(reviews) > report.MaxNarrativeReviews {
		reviews = reviews[:report.MaxNarrativeReviews]
	}
	for _, r := range reviews {
		fmt.Fprintf(buf, "- %s\n", r)
	}
}

func readStream(body io.Reader) (string, error) {
	var out strings.Builder
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk generateResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return out.String(), fmt.Errorf("llm: decode stream chunk: %w", err)
		}
		if chunk.Error != "" {
			return out.String(), fmt.Errorf("llm error: %s", chunk.Error)
		}
		out.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return out.String(), fmt.Errorf("llm: read stream: %w", err)
	}
	return out.String(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		r = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL()+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("llm: request timeout, server may be overloaded: %w", err)
		}
		return nil, fmt.Errorf("llm: cannot reach server: %w", err)
	}
	return resp, nil
}

func (c *Client) wait(ctx context.Context) error {
	if c.Limiter == nil {
		return nil
	}
	if err := c.Limiter.Wait(ctx); err != nil {
		return fmt.Errorf("llm: rate limit: %w", err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("llm: API returned status %d", resp.StatusCode)
}

func (c *Client) baseURL() string {
	if c.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(c.BaseURL, "/")
}

func (c *Client) model() string {
	if c.Model == "" {
		return DefaultModel
	}
	return c.Model
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: DefaultTimeout}
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/example/collab-chat-relay/domain/chat"
)

// Groq API defaults.
const (
	DefaultGroqURL   = "https://api.groq.com/openai/v1"
	DefaultGroqModel = "llama-3.3-70b-versatile"

	// MaxResponseSize caps the completion response body.
	MaxResponseSize = 1 << 20

	defaultHTTPTimeout = 60 * time.Second
	defaultMaxTokens   = 512
)

// DefaultSystemPrompt frames the conversation for the model.
const DefaultSystemPrompt = "You are ChatBot, a friendly assistant taking part in a group chat. " +
	"Each user message is prefixed with the author's name. " +
	"Answer the latest message that mentions @chatbot briefly, in plain text."

// Generation errors.
var (
	ErrNotConfigured    = errors.New("generation API key not configured")
	ErrEmptyReply       = errors.New("generator returned an empty reply")
	ErrResponseTooLarge = fmt.Errorf("response exceeds %d bytes", MaxResponseSize)
)

// Generator produces the bot's reply for a conversation, oldest message first.
type Generator interface {
	GenerateReply(ctx context.Context, conversation []chat.Message) (string, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, conversation []chat.Message) (string, error)

// GenerateReply calls f.
func (f GeneratorFunc) GenerateReply(ctx context.Context, conversation []chat.Message) (string, error) {
	return f(ctx, conversation)
}

// StaticGenerator always replies with the same text. Useful without credentials.
type StaticGenerator struct {
	Reply string
}

// GenerateReply returns g.Reply.
func (g StaticGenerator) GenerateReply(ctx context.Context, _ []chat.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if g.Reply == "" {
		return "", ErrEmptyReply
	}
	return g.Reply, nil
}

// APIError is a non-2xx answer from the completions endpoint.
type APIError struct {
	Status  int
	Code    string
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("generation API error [%s] (HTTP %d): %s", e.Code, e.Status, e.Message)
	}
	return fmt.Sprintf("generation API error (HTTP %d): %s", e.Status, e.Message)
}

// BuildMessages converts chat history into completion messages: the system
// prompt, then bot messages as assistant turns and everything else as
// "name: text" user turns.
func BuildMessages(systemPrompt string, conversation []chat.Message) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(conversation)+1)
	if systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	for _, m := range conversation {
		if m.IsAI {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: m.Text,
			})
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: m.Username + ": " + m.Text,
		})
	}
	return messages
}

// GroqClient calls an OpenAI-compatible chat-completions endpoint, Groq by default.
type GroqClient struct {
	apiKey       string
	baseURL      string
	model        string
	systemPrompt string
	temperature  float32
	maxTokens    int
	httpClient   *http.Client
}

// NewGroqClient creates a client. With an empty key every call fails with
// ErrNotConfigured and makes no request.
func NewGroqClient(apiKey string) *GroqClient {
	return &GroqClient{
		apiKey:       strings.TrimSpace(apiKey),
		baseURL:      DefaultGroqURL,
		model:        DefaultGroqModel,
		systemPrompt: DefaultSystemPrompt,
		temperature:  0.7,
		maxTokens:    defaultMaxTokens,
		httpClient:   &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// WithBaseURL sets the API base URL.
func (c *GroqClient) WithBaseURL(url string) *GroqClient {
	if url != "" {
		c.baseURL = strings.TrimSuffix(url, "/")
	}
	return c
}

// WithModel sets the model name.
func (c *GroqClient) WithModel(model string) *GroqClient {
	if model != "" {
		c.model = model
	}
	return c
}

// WithSystemPrompt replaces the system prompt.
func (c *GroqClient) WithSystemPrompt(prompt string) *GroqClient {
	c.systemPrompt = prompt
	return c
}

// WithHTTPClient replaces the HTTP client.
func (c *GroqClient) WithHTTPClient(client *http.Client) *GroqClient {
	if client != nil {
		c.httpClient = client
	}
	return c
}

// IsConfigured reports whether an API key is set.
func (c *GroqClient) IsConfigured() bool {
	return c.apiKey != ""
}

// Model returns the configured model name.
func (c *GroqClient) Model() string {
	return c.model
}

// openAIClient builds the SDK client. Response bodies are capped at
// MaxResponseSize.
func (c *GroqClient) openAIClient() *openai.Client {
	httpClient := *c.httpClient
	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient.Transport = limitedTransport{base: base, limit: MaxResponseSize}

	cfg := openai.DefaultConfig(c.apiKey)
	cfg.BaseURL = c.baseURL
	cfg.HTTPClient = &httpClient
	return openai.NewClientWithConfig(cfg)
}

// GenerateReply sends the conversation and returns the first choice's text.
func (c *GroqClient) GenerateReply(ctx context.Context, conversation []chat.Message) (string, error) {
	if !c.IsConfigured() {
		return "", ErrNotConfigured
	}

	resp, err := c.openAIClient().CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    BuildMessages(c.systemPrompt, conversation),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", translateError(err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyReply
	}
	return resp.Choices[0].Message.Content, nil
}

// translateError maps SDK errors onto APIError so callers need not import the SDK.
func translateError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		out := &APIError{Status: apiErr.HTTPStatusCode, Message: apiErr.Message}
		if apiErr.Code != nil {
			out.Code = fmt.Sprint(apiErr.Code)
		}
		return out
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &APIError{Status: reqErr.HTTPStatusCode, Message: http.StatusText(reqErr.HTTPStatusCode)}
	}

	return fmt.Errorf("chat completion failed: %w", err)
}

// limitedTransport fails any response body read past limit bytes.
type limitedTransport struct {
	base  http.RoundTripper
	limit int64
}

func (t limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	resp.Body = &limitedBody{ReadCloser: resp.Body, remaining: t.limit}
	return resp, nil
}

type limitedBody struct {
	io.ReadCloser
	remaining int64
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		// At the limit: only a clean EOF is acceptable.
		var one [1]byte
		n, err := b.ReadCloser.Read(one[:])
		if n > 0 {
			return 0, ErrResponseTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.ReadCloser.Read(p)
	b.remaining -= int64(n)
	return n, err
}

package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/time/rate"

	"github.com/spherical/deck-evaluator/internal/domain"
	"github.com/spherical/deck-evaluator/internal/observability"
)

const (
	openRouterURL = "https://openrouter.ai/api/v1/chat/completions"
	defaultModel  = "meta-llama/llama-3.1-70b-instruct"
	appReferer    = "https://github.com/spherical/deck-evaluator"
	appTitle      = "Pitch Deck Evaluator"
)

// Config configures a Client.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string

	// Limiter is shared between clients that hit the same account.
	// When nil, one is built from RequestsPerSecond and Burst.
	Limiter           *rate.Limiter
	RequestsPerSecond float64
	Burst             int

	Retry      *RetryConfig
	HTTPClient *http.Client
}

// Client sends structured-output requests to an OpenRouter compatible
// chat completions endpoint. One Client serves one model, so the vision
// and text capabilities are two Clients.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      *RetryConfig
	logger     *observability.Logger
}

// Message represents a chat message
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart represents a part of message content (text or image)
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in the message
type ImageURL struct {
	URL string `json:"url"`
}

// Request represents the API request structure
type Request struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Stream         bool            `json:"stream"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ResponseFormat asks the provider for a JSON object reply.
type ResponseFormat struct {
	Type string `json:"type"`
}

// Response represents the API response structure
type Response struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
}

// Choice represents a single completion choice
type Choice struct {
	Delta        Delta  `json:"delta"`
	Message      Delta  `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// Delta represents a message delta in streaming response
type Delta struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// NewClient creates a new LLM client
func NewClient(cfg Config, logger *observability.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = openRouterURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Retry == nil {
		cfg.Retry = DefaultRetryConfig()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Limiter == nil {
		cfg.Limiter = NewLimiter(cfg.RequestsPerSecond, cfg.Burst)
	}
	if logger == nil {
		logger = observability.Nop()
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		httpClient: cfg.HTTPClient,
		limiter:    cfg.Limiter,
		retry:      cfg.Retry,
		logger:     logger.With().Str("component", "llm").Str("model", cfg.Model).Logger(),
	}
}

// NewLimiter builds a request limiter. A non-positive rate disables limiting.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Model returns the model this client targets.
func (c *Client) Model() string {
	return c.model
}

// AnalyzeImages sends the instruction with every image attached and decodes
// the JSON reply into out.
func (c *Client) AnalyzeImages(ctx context.Context, instruction string, imagePaths []string, out any) error {
	parts := []ContentPart{{Type: "text", Text: instruction}}
	for _, path := range imagePaths {
		url, err := imageDataURL(path)
		if err != nil {
			return domain.AnalysisError(fmt.Sprintf("Failed to attach %s", filepath.Base(path)), err)
		}
		parts = append(parts, ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: url}})
	}

	return c.analyze(ctx, parts, out)
}

// AnalyzeText sends a text-only instruction and decodes the JSON reply into out.
func (c *Client) AnalyzeText(ctx context.Context, instruction string, out any) error {
	return c.analyze(ctx, []ContentPart{{Type: "text", Text: instruction}}, out)
}

func (c *Client) analyze(ctx context.Context, parts []ContentPart, out any) error {
	content, err := c.complete(ctx, parts)
	if err != nil {
		return domain.AnalysisError("Model request failed", err)
	}

	if err := decodeStructured(content, out); err != nil {
		c.logger.Warn().Err(err).Int("content_length", len(content)).Msg("Unusable model reply")
		return domain.AnalysisError("Model reply is not valid JSON", err)
	}
	return nil
}

// complete sends one chat request and returns the concatenated reply text.
func (c *Client) complete(ctx context.Context, parts []ContentPart) (string, error) {
	req := &Request{
		Model:          c.model,
		Messages:       []Message{{Role: "user", Content: parts}},
		Stream:         true,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", domain.APIError("Failed to marshal request", err)
	}

	resp, err := c.retryWithBackoff(ctx, func() (*http.Response, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("HTTP-Referer", appReferer)
		httpReq.Header.Set("X-Title", appTitle)

		return c.httpClient.Do(httpReq)
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", domain.APIError(fmt.Sprintf("API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes))), nil)
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		return parseCompletion(resp.Body)
	}

	content, err := NewStreamParser(resp.Body).Collect()
	if err != nil {
		return "", domain.APIError("Failed to parse stream", err)
	}
	return content, nil
}

// parseCompletion handles providers that ignore stream=true.
func parseCompletion(body io.Reader) (string, error) {
	var apiResp Response
	if err := json.NewDecoder(body).Decode(&apiResp); err != nil {
		return "", domain.APIError("Failed to parse API response", err)
	}
	if len(apiResp.Choices) == 0 {
		return "", domain.APIError("No choices in API response", nil)
	}

	content := apiResp.Choices[0].Message.Content
	if content == "" {
		content = apiResp.Choices[0].Delta.Content
	}
	return content, nil
}

// decodeStructured pulls the outermost JSON object out of a model reply,
// tolerating code fences and surrounding prose.
func decodeStructured(content string, out any) error {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("no JSON object found in reply")
	}

	if err := json.Unmarshal([]byte(content[start:end+1]), out); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}
	return nil
}

// imageDataURL inlines an image file as a base64 data URL
func imageDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	mime := "image/jpeg"
	if strings.EqualFold(filepath.Ext(path), ".png") {
		mime = "image/png"
	}

	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

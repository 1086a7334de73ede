package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/caselens/timeline-back/internal/domain"
)

const extractionPrompt = `Extract timeline events from this legal document text.
Return ONLY a JSON array. Each event must have:
- "date": ISO date string (YYYY-MM-DD), use "unknown" if not found
- "description": brief description of the event
- "involved_parties": list of party names (strings)
- "significance": why this event matters (can be empty string)

Example: [{"date":"2023-06-15","description":"Contract signed","involved_parties":["Acme Corp","Beta Inc"],"significance":"Effective date"}]
Return [] if no events found.

Document text:
`

// Chunks are already bounded by the chunker, but the prompt input is capped
// defensively to stay inside typical model context limits.
const maxPromptChunkChars = 32000

type OpenRouterExtractorConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
	SiteURL    string
	AppName    string
}

// OpenRouterExtractor calls an OpenRouter-compatible chat completions API to
// extract events from one chunk. It performs exactly one attempt per call;
// retry policy belongs to the coordinator.
type OpenRouterExtractor struct {
	apiKey     string
	baseURL    string
	model      string
	timeout    time.Duration
	httpClient *http.Client
	siteURL    string
	appName    string
}

func NewOpenRouterExtractor(config OpenRouterExtractorConfig) *OpenRouterExtractor {
	if strings.TrimSpace(config.BaseURL) == "" {
		config.BaseURL = "https://openrouter.ai/api/v1"
	}
	if strings.TrimSpace(config.Model) == "" {
		config.Model = "meta-llama/llama-3.1-8b-instruct"
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{}
	}
	if strings.TrimSpace(config.AppName) == "" {
		config.AppName = "Document Timeline"
	}

	return &OpenRouterExtractor{
		apiKey:     strings.TrimSpace(config.APIKey),
		baseURL:    strings.TrimSuffix(config.BaseURL, "/"),
		model:      config.Model,
		timeout:    config.Timeout,
		httpClient: config.HTTPClient,
		siteURL:    strings.TrimSpace(config.SiteURL),
		appName:    strings.TrimSpace(config.AppName),
	}
}

func (c *OpenRouterExtractor) Available() bool {
	return c.apiKey != ""
}

func (c *OpenRouterExtractor) Model() string {
	return c.model
}

func (c *OpenRouterExtractor) Extract(ctx context.Context, chunk domain.Chunk) ([]domain.Event, error) {
	if !c.Available() {
		return nil, Permanent("openrouter API key is not configured")
	}

	input := chunk.Text
	if len(input) > maxPromptChunkChars {
		input = input[:maxPromptChunkChars]
	}

	payload := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "user", "content": extractionPrompt + input},
		},
		"temperature": 0.2,
		"max_tokens":  2048,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, Permanent("marshal extraction payload: %v", err)
	}

	content, err := c.callChatCompletionsAPI(ctx, encoded)
	if err != nil {
		return nil, err
	}
	return parseEvents(content)
}

func (c *OpenRouterExtractor) callChatCompletionsAPI(ctx context.Context, payload []byte) (string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpRequest, err := http.NewRequestWithContext(
		timeoutCtx,
		http.MethodPost,
		c.baseURL+"/chat/completions",
		bytes.NewReader(payload),
	)
	if err != nil {
		return "", Permanent("create extraction request: %v", err)
	}
	httpRequest.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("Accept", "application/json")
	if c.siteURL != "" {
		httpRequest.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.appName != "" {
		httpRequest.Header.Set("X-Title", c.appName)
	}

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		// Network faults and timeouts are transient.
		return "", fmt.Errorf("call extractor API: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read extractor response: %w", err)
	}

	if response.StatusCode != http.StatusOK {
		if isRetryableStatus(response.StatusCode) {
			return "", errorBody(response.StatusCode, body)
		}
		return "", Permanent("%v", errorBody(response.StatusCode, body))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode extractor response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("extractor response has no choices")
	}
	return decoded.Choices[0].Message.Content, nil
}

func isRetryableStatus(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests || statusCode == http.StatusRequestTimeout {
		return true
	}
	return statusCode >= 500
}

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sleuth/internal/logging"
	"sleuth/internal/ratelimit"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiConfig configures the Gemini completion client.
type GeminiConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	Timeout         time.Duration
	MaxOutputTokens int
}

// DefaultGeminiConfig returns sensible defaults for the given key.
func DefaultGeminiConfig(apiKey string) GeminiConfig {
	return GeminiConfig{
		APIKey:          apiKey,
		BaseURL:         defaultBaseURL,
		Model:           "gemini-2.5-flash",
		Timeout:         60 * time.Second,
		MaxOutputTokens: 8192,
	}
}

// GeminiClient implements Client against the Gemini REST API. All requests
// pass through the shared limiter before touching the network.
type GeminiClient struct {
	apiKey          string
	baseURL         string
	model           string
	maxOutputTokens int
	httpClient      *http.Client
	limiter         *ratelimit.LLMLimiter
}

// NewGeminiClient creates a client. limiter may be nil, in which case
// requests go out unthrottled (tests only).
func NewGeminiClient(config GeminiConfig, limiter *ratelimit.LLMLimiter) *GeminiClient {
	model := strings.TrimSpace(config.Model)
	if model == "" {
		model = "gemini-2.5-flash"
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	maxOut := config.MaxOutputTokens
	if maxOut <= 0 {
		maxOut = 8192
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GeminiClient{
		apiKey:          config.APIKey,
		baseURL:         baseURL,
		model:           model,
		maxOutputTokens: maxOut,
		httpClient:      &http.Client{Timeout: timeout},
		limiter:         limiter,
	}
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      float64 `json:"temperature"`
	MaxOutputTokens  int     `json:"maxOutputTokens"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a prompt and returns the completion.
func (c *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message. Rate-limit
// responses back off with jitter; the retry budget lives in the limiter.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("gemini: API key not configured")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	start := time.Now()
	logging.LLMDebug("[gemini] model=%s system_len=%d user_len=%d", c.model, len(systemPrompt), len(userPrompt))

	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Role: "user", Parts: []geminiPart{{Text: userPrompt}}},
		},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     0.2,
			MaxOutputTokens: c.maxOutputTokens,
		},
	}
	if strings.TrimSpace(systemPrompt) != "" {
		reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: systemPrompt}}}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("gemini: marshal request: %w", err)
	}

	estimated := estimateTokens(systemPrompt+userPrompt) + c.maxOutputTokens
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	var lastErr error
	for attempt := 0; attempt < ratelimit.MaxAttempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Acquire(ctx, estimated); err != nil {
				return "", fmt.Errorf("gemini: limiter: %w", err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return "", fmt.Errorf("gemini: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("gemini: request: %w", err)
			if err := c.backoff(ctx, attempt, 0, 0); err != nil {
				return "", fmt.Errorf("%w (last: %v)", err, lastErr)
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("gemini: read response: %w", readErr)
			if err := c.backoff(ctx, attempt, 0, 0); err != nil {
				return "", fmt.Errorf("%w (last: %v)", err, lastErr)
			}
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
			lastErr = fmt.Errorf("gemini: status %d: %s", resp.StatusCode, truncate(string(body), 200))
			logging.LLMWarn("[gemini] retryable status %d, attempt %d", resp.StatusCode, attempt)
			if err := c.backoff(ctx, attempt, resp.StatusCode, retryAfter); err != nil {
				return "", fmt.Errorf("%w (last: %v)", err, lastErr)
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return "", fmt.Errorf("gemini: status %d: %s", resp.StatusCode, truncate(string(body), 500))
		}

		var parsed geminiResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", fmt.Errorf("gemini: parse response: %w", err)
		}
		if parsed.Error != nil {
			return "", fmt.Errorf("gemini: API error %d: %s", parsed.Error.Code, parsed.Error.Message)
		}
		if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
			return "", fmt.Errorf("gemini: no completion returned")
		}

		var out strings.Builder
		for _, part := range parsed.Candidates[0].Content.Parts {
			out.WriteString(part.Text)
		}
		response := strings.TrimSpace(out.String())
		logging.LLM("[gemini] completed in %v response_len=%d", time.Since(start), len(response))
		return response, nil
	}

	return "", fmt.Errorf("gemini: retries exhausted: %w", lastErr)
}

// backoff routes transient failures through the shared limiter's retry
// budget. Without a limiter it sleeps the same schedule directly.
func (c *GeminiClient) backoff(ctx context.Context, attempt, statusCode int, retryAfter time.Duration) error {
	if c.limiter != nil {
		return c.limiter.OnFailure(ctx, attempt, statusCode, retryAfter)
	}
	if attempt >= ratelimit.MaxAttempts-1 {
		return ratelimit.ErrRetriesExhausted
	}
	timer := time.NewTimer(ratelimit.BackoffDelay(attempt, time.Second, 60*time.Second, retryAfter))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

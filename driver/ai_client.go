// ABOUTME: HTTP client for the commentary generation API
// ABOUTME: Classifies upstream failures into the pipeline's error taxonomy
package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"news-enricher/domain"
)

const commentaryPromptTemplate = `You are a senior news analyst. Write a three-section analysis of the article below.

Sections, in order, each 2-3 sentences:
Key Points: the essential facts a busy reader needs.
Impact Analysis: who is affected and how.
Future Outlook: what is likely to happen next.

Write in plain prose under each section heading. No preamble, no markdown.

Title: %s
Section: %s

Article:
---
%s
---`

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int64 `json:"total_tokens"`
	} `json:"usage"`
}

// Commentary is the AI call result: the generated text plus the token usage
// the key pool charges against the credential.
type Commentary struct {
	Text       string
	TokensUsed int64
}

// AIClient calls the commentary generation API. The credential is supplied
// per call because the key pool owns credential selection.
type AIClient struct {
	baseURL string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

// NewAIClient builds the commentary client.
func NewAIClient(baseURL, model string, timeout time.Duration, logger *slog.Logger) *AIClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// GenerateCommentary produces the three-section analysis for an article.
func (c *AIClient) GenerateCommentary(ctx context.Context, secret string, article *domain.Article) (*Commentary, error) {
	prompt := fmt.Sprintf(commentaryPromptTemplate, article.Title, article.Section, article.Abstract)

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: 0.5,
		MaxTokens:   600,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode commentary request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build commentary request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+secret)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrUpstreamTransient, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.ErrorContext(ctx, "failed to close response body", "error", cerr)
		}
	}()

	if err := classifyStatus(resp.StatusCode); err != nil {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		c.logger.WarnContext(ctx, "commentary API returned error status",
			"status", resp.StatusCode,
			"body", string(raw))
		return nil, err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %s", domain.ErrUpstreamTransient, err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse commentary response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("commentary response contained no choices")
	}

	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return nil, fmt.Errorf("commentary response was empty")
	}

	c.logger.InfoContext(ctx, "commentary generated",
		"article_id", article.ID,
		"length", len(text),
		"tokens", parsed.Usage.TotalTokens)

	return &Commentary{Text: text, TokensUsed: parsed.Usage.TotalTokens}, nil
}

// classifyStatus maps HTTP status codes onto the error taxonomy the key
// pool and queue act on.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusTooManyRequests:
		return domain.ErrRateLimit
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return domain.ErrAuth
	case code >= 500:
		return fmt.Errorf("%w: status %d", domain.ErrUpstreamTransient, code)
	default:
		return fmt.Errorf("unexpected upstream status %d", code)
	}
}

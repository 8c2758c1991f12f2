package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/crispai/crisp/internal/session"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"
	defaultTimeout = 60 * time.Second
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
)

// OpenRouter implements Gateway against the OpenRouter chat-completions API.
type OpenRouter struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	referer    string
	title      string
}

// NewOpenRouter creates a gateway client with the given API key and model.
func NewOpenRouter(apiKey, model string) *OpenRouter {
	return &OpenRouter{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		referer: "https://github.com/crispai/crisp",
		title:   "crisp",
	}
}

// NewOpenRouterWithBaseURL creates a client pointing at a custom base URL
// (for testing).
func NewOpenRouterWithBaseURL(apiKey, model, baseURL string) *OpenRouter {
	c := NewOpenRouter(apiKey, model)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerateQuestion asks the model for the next interview question at the
// given difficulty. The request carries the candidate profile and prior
// prompts only, never the grading history.
func (c *OpenRouter) GenerateQuestion(ctx context.Context, difficulty session.Difficulty, candidate CandidateProfile, previous []AskedQuestion) (QuestionResult, error) {
	raw, err := c.chat(ctx, questionSystemPrompt, buildQuestionPrompt(difficulty, candidate, previous), 600, 0.6)
	if err != nil {
		return QuestionResult{}, fmt.Errorf("generating question: %w", err)
	}

	var payload struct {
		Question       string `json:"question"`
		AnswerGuidance string `json:"answer_guidance"`
	}
	if err := extractJSONBlock(raw, &payload); err != nil {
		return QuestionResult{}, err
	}
	if payload.Question == "" {
		return QuestionResult{}, fmt.Errorf("%w: missing question field", ErrMalformedResponse)
	}
	return QuestionResult{Question: payload.Question, Guidance: payload.AnswerGuidance}, nil
}

// EvaluateAnswer grades a candidate answer. Out-of-range scores are clamped
// to [0,100].
func (c *OpenRouter) EvaluateAnswer(ctx context.Context, question EvaluationQuestion, answer string) (EvaluationResult, error) {
	raw, err := c.chat(ctx, evaluationSystemPrompt, buildEvaluationPrompt(question, answer), 500, 0.4)
	if err != nil {
		return EvaluationResult{}, fmt.Errorf("evaluating answer: %w", err)
	}

	var payload struct {
		Score    *float64 `json:"score"`
		Feedback string   `json:"feedback"`
	}
	if err := extractJSONBlock(raw, &payload); err != nil {
		return EvaluationResult{}, err
	}
	if payload.Score == nil {
		return EvaluationResult{}, fmt.Errorf("%w: missing score field", ErrMalformedResponse)
	}
	score := int(math.Round(*payload.Score))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return EvaluationResult{Score: score, Feedback: payload.Feedback}, nil
}

// Summarize produces the final interview write-up from all six rounds,
// with whatever evaluations exist.
func (c *OpenRouter) Summarize(ctx context.Context, candidate CandidateProfile, questions []SummaryQuestion) (SummaryResult, error) {
	raw, err := c.chat(ctx, summarySystemPrompt, buildSummaryPrompt(candidate, questions), 400, 0.4)
	if err != nil {
		return SummaryResult{}, fmt.Errorf("summarizing interview: %w", err)
	}

	var payload struct {
		Summary string `json:"summary"`
	}
	if err := extractJSONBlock(raw, &payload); err != nil {
		return SummaryResult{}, err
	}
	if payload.Summary == "" {
		return SummaryResult{}, fmt.Errorf("%w: missing summary field", ErrMalformedResponse)
	}
	return SummaryResult{Summary: payload.Summary, GeneratedAt: time.Now().UTC()}, nil
}

// chat sends a non-streaming chat completion and returns the first choice's
// content. HTTP 429 is retried with exponential backoff.
func (c *OpenRouter) chat(ctx context.Context, system, user string, maxTokens int, temperature float64) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := range maxRetries {
		content, err := c.doChat(ctx, body)
		if err == nil {
			return content, nil
		}

		if !isRateLimit(err) {
			return "", err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(initialBackoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return "", fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func isRateLimit(err error) bool {
	_, ok := err.(*rateLimitError)
	return ok
}

func (c *OpenRouter) doChat(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("HTTP-Referer", c.referer)
	req.Header.Set("X-Title", c.title)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &rateLimitError{status: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: response has no content", ErrMalformedResponse)
	}
	return parsed.Choices[0].Message.Content, nil
}

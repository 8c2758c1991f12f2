package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/crispai/crisp/internal/session"
)

func chatCompletion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	})
	return string(b)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenRouter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenRouterWithBaseURL("test-key", "test-model", srv.URL)
}

func TestGenerateQuestion(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Write([]byte(chatCompletion(`Here you go:
{"question":"Explain React reconciliation.","answer_guidance":"Mention the virtual DOM diffing."}`)))
	})

	result, err := client.GenerateQuestion(context.Background(), session.DifficultyMedium,
		CandidateProfile{Name: "Ada", Role: "Full-stack"},
		[]AskedQuestion{{Prompt: "What is JSX?", Difficulty: session.DifficultyEasy}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Question != "Explain React reconciliation." {
		t.Errorf("question = %q", result.Question)
	}
	if result.Guidance != "Mention the virtual DOM diffing." {
		t.Errorf("guidance = %q", result.Guidance)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("model = %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Fatalf("messages = %+v", gotReq.Messages)
	}
	if !strings.Contains(gotReq.Messages[1].Content, "What is JSX?") {
		t.Error("prior question missing from prompt")
	}
	if strings.Contains(gotReq.Messages[1].Content, "score") {
		t.Error("generator prompt must not carry grading history")
	}
}

func TestGenerateQuestionMalformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no json", "Sure! Let me think about that."},
		{"invalid json", "{question: broken"},
		{"missing question field", `{"answer_guidance":"something"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(chatCompletion(tt.content)))
			})
			_, err := client.GenerateQuestion(context.Background(), session.DifficultyEasy, CandidateProfile{}, nil)
			if !errors.Is(err, ErrMalformedResponse) {
				t.Errorf("error = %v, want ErrMalformedResponse", err)
			}
		})
	}
}

func TestEvaluateAnswerClampsScore(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{`{"score":85,"feedback":"good"}`, 85},
		{`{"score":150,"feedback":"over"}`, 100},
		{`{"score":-20,"feedback":"under"}`, 0},
		{`{"score":72.6,"feedback":"rounded"}`, 73},
	}
	for _, tt := range tests {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(chatCompletion(tt.raw)))
		})
		result, err := client.EvaluateAnswer(context.Background(),
			EvaluationQuestion{Prompt: "Q", Difficulty: session.DifficultyEasy}, "answer")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.raw, err)
		}
		if result.Score != tt.want {
			t.Errorf("%s: score = %d, want %d", tt.raw, result.Score, tt.want)
		}
	}
}

func TestEvaluateAnswerMissingScoreFailsClosed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatCompletion(`{"feedback":"no score here"}`)))
	})
	_, err := client.EvaluateAnswer(context.Background(),
		EvaluationQuestion{Prompt: "Q", Difficulty: session.DifficultyEasy}, "answer")
	if !errors.Is(err, ErrMalformedResponse) {
		t.Errorf("error = %v, want ErrMalformedResponse", err)
	}
}

func TestSummarize(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatCompletion(`{"summary":"Strong on React, weaker on Node internals. Hire.","overall_score":78}`)))
	})
	eval := &session.Evaluation{Score: 78, Reasoning: "solid"}
	result, err := client.Summarize(context.Background(), CandidateProfile{Name: "Ada"},
		[]SummaryQuestion{{Prompt: "Q1", Difficulty: session.DifficultyEasy, Answer: "A1", Evaluation: eval}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(result.Summary, "Strong on React") {
		t.Errorf("summary = %q", result.Summary)
	}
	if result.GeneratedAt.IsZero() {
		t.Error("GeneratedAt not set")
	}
}

func TestRateLimitRetry(t *testing.T) {
	attempts := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(chatCompletion(`{"question":"Q","answer_guidance":"G"}`)))
	})

	_, err := client.GenerateQuestion(context.Background(), session.DifficultyEasy, CandidateProfile{}, nil)
	if err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestNonRetryableErrorFailsFast(t *testing.T) {
	attempts := 0
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"boom"}`))
	})

	_, err := client.GenerateQuestion(context.Background(), session.DifficultyEasy, CandidateProfile{}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (no retry on 500)", attempts)
	}
}

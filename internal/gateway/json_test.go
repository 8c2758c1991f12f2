package gateway

import (
	"errors"
	"testing"
)

func TestExtractJSONBlock(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"bare object", `{"question":"Q"}`, "Q", false},
		{"prose wrapped", "Sure, here it is:\n{\"question\":\"Q\"}\nHope that helps!", "Q", false},
		{"code fenced", "```json\n{\"question\":\"Q\"}\n```", "Q", false},
		{"nested braces", `{"question":"use {braces} here"}`, "use {braces} here", false},
		{"no object", "I cannot answer that.", "", true},
		{"broken json", "{question: Q}", "", true},
		{"only closing brace", "}", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var payload struct {
				Question string `json:"question"`
			}
			err := extractJSONBlock(tt.raw, &payload)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedResponse) {
					t.Errorf("error = %v, want ErrMalformedResponse", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if payload.Question != tt.want {
				t.Errorf("question = %q, want %q", payload.Question, tt.want)
			}
		})
	}
}

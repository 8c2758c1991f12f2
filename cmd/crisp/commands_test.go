package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/crispai/crisp/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestSessionsListRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /sessions": `[{"id":"sess-0001","status":"in_progress","candidate":{"name":"Ada Lovelace","score":null},"questions":[{},{}]}]`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/sessions")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var sessions []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := decodeJSON(resp, &sessions); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].Status != "in_progress" {
		t.Errorf("status = %q, want in_progress", sessions[0].Status)
	}
	if ts.requests[0].Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", ts.requests[0].Auth)
	}
}

func TestSessionsNewRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /sessions": `{"id":"sess-0002","status":"not_started"}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/sessions", map[string]string{
		"name": "Grace Hopper",
		"role": "Backend Engineer",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := decodeJSON(resp, &created); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if created.ID != "sess-0002" {
		t.Errorf("id = %q, want sess-0002", created.ID)
	}

	var sentBody map[string]string
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &sentBody); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if sentBody["name"] != "Grace Hopper" {
		t.Errorf("body.name = %q, want Grace Hopper", sentBody["name"])
	}
}

func TestTranscriptDeleteRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /sessions/sess-1/transcript": `{}`,
	})

	client := ts.client()
	resp, err := client.delete(ctx, "/sessions/sess-1/transcript")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if ts.requests[0].Method != "DELETE" {
		t.Errorf("method = %q, want DELETE", ts.requests[0].Method)
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"auth_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/sessions")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
}

func TestConfigShowAll(t *testing.T) {
	cfg := config.Config{}
	cfg.Server.Port = 4000
	cfg.Gateway.Model = "openai/gpt-4o-mini"

	keys := config.ShowAll(cfg)
	if len(keys) == 0 {
		t.Fatal("expected non-empty keys from ShowAll")
	}

	found := false
	for _, k := range keys {
		if k.Key == "server.port" && k.Value == "4000" {
			found = true
		}
		if k.Key == "gateway.openrouter_api_key" {
			t.Error("ShowAll must not expose secret keys")
		}
	}
	if !found {
		t.Error("expected to find server.port=4000 in ShowAll output")
	}
}

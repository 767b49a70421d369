package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/avetisov/parley/internal/catalog"
	"github.com/avetisov/parley/internal/config"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
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
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestChatRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/conversations": `{"conversation_id":"c-123","message":{"content":"Paris"},"total_tokens":15}`,
	})

	client := ts.client()

	req := map[string]any{
		"text":     "what is the capital of France?",
		"model_id": "anthropic:claude-sonnet-4-5",
	}
	resp, err := client.post(ctx, "/v1/conversations", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		ConversationID string `json:"conversation_id"`
		Message        struct {
			Content string `json:"content"`
		} `json:"message"`
		TotalTokens int `json:"total_tokens"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if result.ConversationID != "c-123" {
		t.Errorf("conversation_id = %q, want c-123", result.ConversationID)
	}
	if result.Message.Content != "Paris" {
		t.Errorf("content = %q, want Paris", result.Message.Content)
	}
	if result.TotalTokens != 15 {
		t.Errorf("total_tokens = %d, want 15", result.TotalTokens)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["text"] != "what is the capital of France?" {
		t.Errorf("body.text = %v", body["text"])
	}
	if body["model_id"] != "anthropic:claude-sonnet-4-5" {
		t.Errorf("body.model_id = %v", body["model_id"])
	}
}

func TestChatCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"chat"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing message argument")
	}
	if !strings.Contains(err.Error(), "arg") {
		t.Errorf("error = %q, want it to mention arguments", err.Error())
	}
}

func TestModelsEndpoint(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /v1/models": `{"models":["anthropic:claude-sonnet-4-5","openai:gpt-5"],"default":"anthropic:claude-sonnet-4-5"}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/v1/models")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Models  []string `json:"models"`
		Default string   `json:"default"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(result.Models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(result.Models))
	}
	if result.Default != "anthropic:claude-sonnet-4-5" {
		t.Errorf("default = %q", result.Default)
	}
}

func TestShowConversation(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /v1/conversations/c-123": `{"conversation_id":"c-123","status":"active","message_count":4,"total_tokens":120}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/v1/conversations/c-123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result struct {
		Status       string `json:"status"`
		MessageCount int    `json:"message_count"`
	}
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if result.Status != "active" {
		t.Errorf("status = %q, want active", result.Status)
	}
	if result.MessageCount != 4 {
		t.Errorf("message_count = %d, want 4", result.MessageCount)
	}
}

func TestServerNotReachable(t *testing.T) {
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

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(400)
		w.Write([]byte(`{"error":{"message":"text is required","type":"invalid_request_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		httpClient: ts.Client(),
	}

	resp, err := client.post(ctx, "/v1/conversations", map[string]any{})
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	err = decodeJSON(resp, &struct{}{})
	if err == nil {
		t.Fatal("expected error for 400 response")
	}
	if !strings.Contains(err.Error(), "400") {
		t.Errorf("error = %q, want it to contain '400'", err.Error())
	}
	if !strings.Contains(err.Error(), "text is required") {
		t.Errorf("error = %q, want it to carry the server message", err.Error())
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

func TestBuildRegistry_Defaults(t *testing.T) {
	cat, err := catalog.LoadFile("")
	if err != nil {
		t.Fatalf("loading catalog: %v", err)
	}

	var cfg config.Config
	cfg.Models.Default = "anthropic:claude-sonnet-4-5"

	reg, err := buildRegistry(cfg, cat)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Empty allow-list admits the whole catalog.
	if got, want := len(reg.Available()), len(cat.SpecsForVendors(nil)); got != want {
		t.Errorf("available = %d, want %d", got, want)
	}
	if reg.Default().String() != "anthropic:claude-sonnet-4-5" {
		t.Errorf("default = %q", reg.Default().String())
	}
}

func TestBuildRegistry_AllowList(t *testing.T) {
	cat, err := catalog.LoadFile("")
	if err != nil {
		t.Fatalf("loading catalog: %v", err)
	}

	var cfg config.Config
	cfg.Models.Default = "openai:gpt-5"
	cfg.Models.Available = "openai:gpt-5, openai:gpt-5-mini"

	reg, err := buildRegistry(cfg, cat)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := reg.ResolveIdentifier("anthropic:claude-sonnet-4-5"); err == nil {
		t.Error("expected model outside allow-list to be rejected")
	}
	if _, err := reg.ResolveIdentifier("openai:gpt-5-mini"); err != nil {
		t.Errorf("expected allow-listed model to resolve: %v", err)
	}
}

func TestBuildRegistry_UnsetDefault(t *testing.T) {
	cat, err := catalog.LoadFile("")
	if err != nil {
		t.Fatalf("loading catalog: %v", err)
	}

	var cfg config.Config

	reg, err := buildRegistry(cfg, cat)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Unset default falls back to the catalog's pick: the first
	// standard-tier variant of the first vendor.
	want, err := cat.DefaultSpec(nil)
	if err != nil {
		t.Fatalf("DefaultSpec: %v", err)
	}
	if reg.Default() != want {
		t.Errorf("default = %s, want %s", reg.Default(), want)
	}
	if reg.Default().String() != "anthropic:claude-sonnet-4-5" {
		t.Errorf("default = %q, want the embedded catalog's standard tier", reg.Default().String())
	}
}

func TestBuildRegistry_BadDefault(t *testing.T) {
	cat, err := catalog.LoadFile("")
	if err != nil {
		t.Fatalf("loading catalog: %v", err)
	}

	var cfg config.Config
	cfg.Models.Default = "nonsense"

	if _, err := buildRegistry(cfg, cat); err == nil {
		t.Fatal("expected error for malformed default model")
	}
}

func TestBuildToolRegistry(t *testing.T) {
	var cfg config.Config

	reg := buildToolRegistry(cfg)
	names := reg.Names()
	if len(names) != 1 || names[0] != "calculator" {
		t.Errorf("names = %v, want [calculator]", names)
	}

	cfg.Search.APIKey = "tvly-key"
	reg = buildToolRegistry(cfg)
	names = reg.Names()
	if len(names) != 2 {
		t.Fatalf("names = %v, want calculator and web_search", names)
	}
	if names[1] != "web_search" {
		t.Errorf("names = %v, want web_search registered second", names)
	}
}

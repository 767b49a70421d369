package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/avetisov/parley/internal/catalog"
	"github.com/avetisov/parley/internal/conversation"
	"github.com/avetisov/parley/internal/executor"
	"github.com/avetisov/parley/internal/pool"
	"github.com/avetisov/parley/internal/storage"
	"github.com/avetisov/parley/internal/tools"
)

// newTestDeps wires handlers against an in-memory store and a stub upstream
// that answers every completion with answer.
func newTestDeps(t *testing.T, answer string) MCPDeps {
	t.Helper()

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]any{"role": "assistant", "content": answer},
				"finish_reason": "stop",
			}},
			"usage": map[string]int{"prompt_tokens": 8, "completion_tokens": 4, "total_tokens": 12},
		})
	}))
	t.Cleanup(upstream.Close)

	c, err := catalog.LoadFile("")
	if err != nil {
		t.Fatalf("loading catalog: %v", err)
	}
	registry, err := catalog.NewRegistry(c,
		catalog.ModelSpec{Vendor: "anthropic", VariantID: "claude-sonnet-4-5"},
		[]catalog.ModelSpec{{Vendor: "openai", VariantID: "gpt-5"}})
	if err != nil {
		t.Fatalf("creating registry: %v", err)
	}

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	toolReg := tools.NewRegistry(tools.Calculator())
	client := executor.NewClientWithBaseURL("test-key", upstream.URL)
	return MCPDeps{
		Deps: Deps{
			Registry: registry,
			Pool:     pool.New(registry, toolReg, client),
			Store:    store,
		},
		Tools:   toolReg,
		KVStore: store,
	}
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	handler := NewHandler(newTestDeps(t, "ok").Deps)
	rec := doJSON(t, handler, http.MethodGet, "/health", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestListModels(t *testing.T) {
	handler := NewHandler(newTestDeps(t, "ok").Deps)
	rec := doJSON(t, handler, http.MethodGet, "/v1/models", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Models  []string `json:"models"`
		Default string   `json:"default"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Default != "anthropic:claude-sonnet-4-5" {
		t.Errorf("default = %q", resp.Default)
	}
	if len(resp.Models) != 2 || resp.Models[0] != resp.Default {
		t.Errorf("models = %v, want default first", resp.Models)
	}
}

func TestSendMessageCreatesConversation(t *testing.T) {
	handler := NewHandler(newTestDeps(t, "Hello there.").Deps)

	rec := doJSON(t, handler, http.MethodPost, "/v1/conversations", map[string]any{"text": "Hi"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp sendMessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.ConversationID == "" {
		t.Error("missing conversation_id")
	}
	if resp.Message.Content != "Hello there." {
		t.Errorf("content = %q", resp.Message.Content)
	}
	if resp.TotalTokens != 12 {
		t.Errorf("total_tokens = %d, want 12", resp.TotalTokens)
	}

	// The conversation is persisted and retrievable.
	get := doJSON(t, handler, http.MethodGet, "/v1/conversations/"+resp.ConversationID, nil)
	if get.Code != http.StatusOK {
		t.Fatalf("GET status = %d", get.Code)
	}
	var info conversationResponse
	if err := json.Unmarshal(get.Body.Bytes(), &info); err != nil {
		t.Fatalf("decoding GET response: %v", err)
	}
	if info.MessageCount != 2 {
		t.Errorf("message_count = %d, want 2", info.MessageCount)
	}
	if info.Status != "active" {
		t.Errorf("status = %q, want active", info.Status)
	}
}

func TestSendMessageContinuesConversation(t *testing.T) {
	handler := NewHandler(newTestDeps(t, "answer").Deps)

	first := doJSON(t, handler, http.MethodPost, "/v1/conversations", map[string]any{"text": "one"})
	var resp sendMessageResponse
	if err := json.Unmarshal(first.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	second := doJSON(t, handler, http.MethodPost, "/v1/conversations", map[string]any{
		"text":            "two",
		"conversation_id": resp.ConversationID,
	})
	if second.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", second.Code, second.Body.String())
	}

	get := doJSON(t, handler, http.MethodGet, "/v1/conversations/"+resp.ConversationID, nil)
	var info conversationResponse
	if err := json.Unmarshal(get.Body.Bytes(), &info); err != nil {
		t.Fatalf("decoding GET response: %v", err)
	}
	if info.MessageCount != 4 {
		t.Errorf("message_count = %d, want 4", info.MessageCount)
	}
}

func TestSendMessageIdempotentCreateWithID(t *testing.T) {
	handler := NewHandler(newTestDeps(t, "answer").Deps)
	id := conversation.NewConversationID().String()

	rec := doJSON(t, handler, http.MethodPost, "/v1/conversations", map[string]any{
		"text":            "hi",
		"conversation_id": id,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp sendMessageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.ConversationID != id {
		t.Errorf("conversation_id = %q, want the supplied %q", resp.ConversationID, id)
	}
}

func TestSendMessageValidation(t *testing.T) {
	handler := NewHandler(newTestDeps(t, "x").Deps)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"empty text", map[string]any{"text": ""}},
		{"missing text", map[string]any{}},
		{"bad conversation id", map[string]any{"text": "hi", "conversation_id": "nope"}},
		{"unknown model", map[string]any{"text": "hi", "model_id": "acme:frontier-1"}},
		{"model outside allow-list", map[string]any{"text": "hi", "model_id": "anthropic:claude-opus-4-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, handler, http.MethodPost, "/v1/conversations", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body: %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSendMessageUpstreamFailure(t *testing.T) {
	deps := newTestDeps(t, "unused")

	// Point the pool at a dead upstream.
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	t.Cleanup(dead.Close)
	deps.Pool = pool.New(deps.Registry, deps.Tools, executor.NewClientWithBaseURL("k", dead.URL))

	handler := NewHandler(deps.Deps)
	rec := doJSON(t, handler, http.MethodPost, "/v1/conversations", map[string]any{"text": "hi"})
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502 (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestGetConversationNotFound(t *testing.T) {
	handler := NewHandler(newTestDeps(t, "x").Deps)

	rec := doJSON(t, handler, http.MethodGet, "/v1/conversations/"+conversation.NewConversationID().String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	bad := doJSON(t, handler, http.MethodGet, "/v1/conversations/not-a-uuid", nil)
	if bad.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", bad.Code)
	}
}

func TestErrorBodyShape(t *testing.T) {
	handler := NewHandler(newTestDeps(t, "x").Deps)
	rec := doJSON(t, handler, http.MethodPost, "/v1/conversations", map[string]any{"text": ""})

	var resp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if resp.Error.Type != "invalid_request_error" {
		t.Errorf("error type = %q", resp.Error.Type)
	}
	if resp.Error.Message == "" {
		t.Error("error message empty")
	}
}

func TestSendMessageConcurrentConversations(t *testing.T) {
	handler := NewHandler(newTestDeps(t, "ok").Deps)

	done := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func(i int) {
			body := fmt.Sprintf(`{"text": "hello %d"}`, i)
			req := httptest.NewRequest(http.MethodPost, "/v1/conversations", strings.NewReader(body))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				done <- fmt.Errorf("status %d: %s", rec.Code, rec.Body.String())
				return
			}
			done <- nil
		}(i)
	}
	for i := 0; i < 4; i++ {
		if err := <-done; err != nil {
			t.Error(err)
		}
	}
}

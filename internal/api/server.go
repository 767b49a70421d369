// Package api exposes the conversation service over HTTP.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/avetisov/parley/internal/catalog"
	"github.com/avetisov/parley/internal/conversation"
	"github.com/avetisov/parley/internal/executor"
	"github.com/avetisov/parley/internal/pool"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps bundles the collaborators the HTTP handlers run against.
type Deps struct {
	Registry   *catalog.Registry
	Pool       *pool.Pool
	Store      conversation.Store
	Router     *conversation.ModelClassifier
	ToolRouter *conversation.ToolClassifier
}

func (d Deps) options() conversation.Options {
	return conversation.Options{
		Registry:   d.Registry,
		Pool:       d.Pool,
		Router:     d.Router,
		ToolRouter: d.ToolRouter,
	}
}

// NewHandler returns an http.Handler implementing the conversation REST API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/v1/models", handleModels(deps))
	r.Post("/v1/conversations", handleSendMessage(deps))
	r.Get("/v1/conversations/{id}", handleGetConversation(deps))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleModels(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"models":  deps.Registry.IDs(),
			"default": deps.Registry.Default().String(),
		})
	}
}

// sendMessageRequest is the POST /v1/conversations body. AutoRoute defaults
// to true when omitted.
type sendMessageRequest struct {
	Text           string   `json:"text"`
	ConversationID string   `json:"conversation_id,omitempty"`
	ModelID        string   `json:"model_id,omitempty"`
	AutoRoute      *bool    `json:"auto_route,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	MaxTokens      int      `json:"max_tokens,omitempty"`
}

type sendMessageResponse struct {
	ConversationID string          `json:"conversation_id"`
	Message        messageResponse `json:"message"`
	TotalTokens    int             `json:"total_tokens"`
}

type messageResponse struct {
	Content string `json:"content"`
}

func handleSendMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Text == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required and must not be empty")
			return
		}

		// Load existing or start new; a client-supplied ID that has no
		// record creates the conversation under that ID (idempotent).
		var conv conversation.Conversation
		if req.ConversationID != "" {
			id, err := conversation.ParseConversationID(req.ConversationID)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
			loaded, err := conversation.Load(r.Context(), deps.Store, id, deps.options())
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "loading conversation: %v", err)
				return
			}
			if loaded != nil {
				conv = *loaded
			} else {
				conv = conversation.StartWithID(id, deps.options())
			}
		} else {
			conv = conversation.Start(deps.options())
		}

		var spec *catalog.ModelSpec
		if req.ModelID != "" {
			parsed, err := deps.Registry.ResolveIdentifier(req.ModelID)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid model: %v", err)
				return
			}
			spec = &parsed
		}

		autoRoute := true
		if req.AutoRoute != nil {
			autoRoute = *req.AutoRoute
		}

		settings := settingsFromRequest(req)
		updated, err := conv.SendMessage(r.Context(), req.Text, spec, settings, autoRoute)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "upstream error: %v", err)
			return
		}

		if err := updated.Save(r.Context(), deps.Store); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving conversation: %v", err)
			return
		}

		slog.Info("conversation turn completed",
			"conversation_id", updated.History.ID,
			"messages", len(updated.History.Messages),
			"total_tokens", updated.History.UsedTokens(),
		)

		// The final message is the assistant's answer.
		answer := ""
		if n := len(updated.History.Messages); n > 0 {
			answer = updated.History.Messages[n-1].Content.PlainText()
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(sendMessageResponse{
			ConversationID: updated.History.ID.String(),
			Message:        messageResponse{Content: answer},
			TotalTokens:    updated.History.UsedTokens(),
		})
	}
}

type conversationResponse struct {
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
	MessageCount   int    `json:"message_count"`
	TotalTokens    int    `json:"total_tokens"`
}

func handleGetConversation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := conversation.ParseConversationID(chi.URLParam(r, "id"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		conv, err := conversation.Load(r.Context(), deps.Store, id, deps.options())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading conversation: %v", err)
			return
		}
		if conv == nil {
			httpError(w, http.StatusNotFound, "not_found_error", "conversation not found")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(conversationResponse{
			ConversationID: conv.History.ID.String(),
			Status:         string(conv.History.Status),
			MessageCount:   len(conv.History.Messages),
			TotalTokens:    conv.History.UsedTokens(),
		})
	}
}

func settingsFromRequest(req sendMessageRequest) *executor.Settings {
	if req.Temperature == nil && req.MaxTokens == 0 {
		return nil
	}
	return &executor.Settings{Temperature: req.Temperature, MaxTokens: req.MaxTokens}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

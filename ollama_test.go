package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func useMockOllama(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	server := httptest.NewServer(handler)
	oldURL := OllamaAPIURL
	OllamaAPIURL = server.URL
	t.Cleanup(func() {
		OllamaAPIURL = oldURL
		server.Close()
	})
	return server
}

// TestQueryOllamaModel tests the local Ollama client
func TestQueryOllamaModel(t *testing.T) {
	t.Run("successful query", func(t *testing.T) {
		useMockOllama(t, func(w http.ResponseWriter, r *http.Request) {
			var request OllamaRequest
			if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
				t.Errorf("Failed to decode request: %v", err)
			}
			if request.Stream {
				t.Error("Stream should be disabled")
			}
			if request.Model != "llama3.2" {
				t.Errorf("Model = %q, want llama3.2", request.Model)
			}

			response := OllamaAPIResponse{PromptEvalCount: 42, EvalCount: 17}
			response.Message.Content = "Local answer"
			json.NewEncoder(w).Encode(response)
		})

		messages := []ChatMessage{{Role: "user", Content: "Test"}}
		response, err := QueryOllamaModel(context.Background(), "llama3.2", messages, 10*time.Second)

		if err != nil {
			t.Fatalf("QueryOllamaModel failed: %v", err)
		}
		if response.Content != "Local answer" {
			t.Errorf("Content = %q", response.Content)
		}
		if response.TokensIn != 42 || response.TokensOut != 17 {
			t.Errorf("usage = %d/%d, want 42/17", response.TokensIn, response.TokensOut)
		}
	})

	t.Run("missing model maps to not_found", func(t *testing.T) {
		useMockOllama(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": "model not found"}`))
		})

		_, err := QueryOllamaModel(context.Background(), "missing", nil, 10*time.Second)
		if err == nil {
			t.Fatal("Expected error, got nil")
		}
		if kind := AsInvokeError(err).Kind; kind != ErrKindNotFound {
			t.Errorf("kind = %q, want not_found", kind)
		}
	})

	t.Run("blank completion maps to empty", func(t *testing.T) {
		useMockOllama(t, func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(OllamaAPIResponse{})
		})

		_, err := QueryOllamaModel(context.Background(), "llama3.2", nil, 10*time.Second)
		if err == nil {
			t.Fatal("Expected error, got nil")
		}
		if kind := AsInvokeError(err).Kind; kind != ErrKindEmpty {
			t.Errorf("kind = %q, want empty", kind)
		}
	})

	t.Run("unreachable host maps to connection", func(t *testing.T) {
		server := useMockOllama(t, func(w http.ResponseWriter, r *http.Request) {})
		server.Close()

		_, err := QueryOllamaModel(context.Background(), "llama3.2", nil, 10*time.Second)
		if err == nil {
			t.Fatal("Expected error, got nil")
		}
		if kind := AsInvokeError(err).Kind; kind != ErrKindConnection {
			t.Errorf("kind = %q, want connection", kind)
		}
	})
}

// TestQueryCouncilModel tests router dispatch
func TestQueryCouncilModel(t *testing.T) {
	oldRouterType := RouterType
	defer func() { RouterType = oldRouterType }()

	t.Run("ollama router dispatches to ollama", func(t *testing.T) {
		RouterType = RouterOllama
		useMockOllama(t, func(w http.ResponseWriter, r *http.Request) {
			response := OllamaAPIResponse{}
			response.Message.Content = "via ollama"
			json.NewEncoder(w).Encode(response)
		})

		response, err := QueryCouncilModel(context.Background(), "llama3.2", nil, 10*time.Second)
		if err != nil {
			t.Fatalf("QueryCouncilModel failed: %v", err)
		}
		if response.Content != "via ollama" {
			t.Errorf("Content = %q, want 'via ollama'", response.Content)
		}
	})

	t.Run("openrouter router dispatches to openrouter", func(t *testing.T) {
		mockServer := MockOpenRouterServer(t, CreateMockOpenRouterHandler(t, "via openrouter"))
		defer mockServer.Close()
		useMockRouter(t, mockServer)

		response, err := QueryCouncilModel(context.Background(), "test/model", nil, 10*time.Second)
		if err != nil {
			t.Fatalf("QueryCouncilModel failed: %v", err)
		}
		if response.Content != "via openrouter" {
			t.Errorf("Content = %q, want 'via openrouter'", response.Content)
		}
	})
}

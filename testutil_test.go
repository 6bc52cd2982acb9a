package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestHelper provides utilities for tests
type TestHelper struct {
	t       *testing.T
	tempDir string
}

// NewTestHelper creates a new test helper
func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{t: t}
}

// CreateTempDir creates a temporary directory for testing
func (h *TestHelper) CreateTempDir() string {
	tempDir, err := os.MkdirTemp("", "llm-council-test-*")
	if err != nil {
		h.t.Fatalf("Failed to create temp dir: %v", err)
	}
	h.tempDir = tempDir
	return tempDir
}

// Cleanup removes the temporary directory
func (h *TestHelper) Cleanup() {
	if h.tempDir != "" {
		os.RemoveAll(h.tempDir)
	}
}

// WriteFile writes data to a file in the temp directory
func (h *TestHelper) WriteFile(filename string, data []byte) string {
	if h.tempDir == "" {
		h.CreateTempDir()
	}

	path := filepath.Join(h.tempDir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		h.t.Fatalf("Failed to write file: %v", err)
	}

	return path
}

// AssertEqual checks if two values are equal
func (h *TestHelper) AssertEqual(got, want interface{}, message string) {
	if got != want {
		h.t.Errorf("%s: got %v, want %v", message, got, want)
	}
}

// AssertNoError checks if an error is nil
func (h *TestHelper) AssertNoError(err error, message string) {
	if err != nil {
		h.t.Errorf("%s: unexpected error: %v", message, err)
	}
}

// AssertError checks if an error is not nil
func (h *TestHelper) AssertError(err error, message string) {
	if err == nil {
		h.t.Errorf("%s: expected error, got nil", message)
	}
}

// MockOpenRouterServer creates a mock HTTP server for OpenRouter API
func MockOpenRouterServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	return httptest.NewServer(handler)
}

// CreateMockOpenRouterHandler creates a handler that returns successful responses
func CreateMockOpenRouterHandler(t *testing.T, response string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Verify headers
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected Content-Type application/json, got %s", r.Header.Get("Content-Type"))
		}

		if r.Header.Get("Authorization") == "" {
			t.Errorf("Missing Authorization header")
		}

		// Return mock response
		apiResponse := OpenRouterAPIResponse{
			Choices: []OpenRouterChoice{
				{Message: OpenRouterChoiceMessage{Content: response}},
			},
			Usage: OpenRouterUsage{PromptTokens: 12, CompletionTokens: 34},
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(apiResponse)
	}
}

// CreateMockOpenRouterErrorHandler creates a handler that returns errors
func CreateMockOpenRouterErrorHandler(statusCode int, errorMsg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusCode)
		w.Write([]byte(errorMsg))
	}
}

// CreateMockCouncilHandler returns a per-model response based on the request
// payload, so a single mock server can stand in for the whole council.
func CreateMockCouncilHandler(t *testing.T, responses map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request OpenRouterRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("Failed to decode request: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		content, ok := responses[request.Model]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": "model not found"}`))
			return
		}

		apiResponse := OpenRouterAPIResponse{
			Choices: []OpenRouterChoice{
				{Message: OpenRouterChoiceMessage{Content: content}},
			},
			Usage: OpenRouterUsage{PromptTokens: 10, CompletionTokens: 20},
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(apiResponse)
	}
}

// useTempStorage points conversation and run storage at temp directories for
// the duration of a test.
func useTempStorage(t *testing.T) {
	oldDataDir := DataDir
	oldRunsDir := RunsDir
	DataDir = filepath.Join(t.TempDir(), "conversations")
	RunsDir = filepath.Join(t.TempDir(), "runs")
	t.Cleanup(func() {
		DataDir = oldDataDir
		RunsDir = oldRunsDir
	})
}

// useMockRouter points the OpenRouter client at a mock server for the
// duration of a test.
func useMockRouter(t *testing.T, server *httptest.Server) {
	oldAPIURL := OpenRouterAPIURL
	oldAPIKey := OpenRouterAPIKey
	oldRouterType := RouterType
	OpenRouterAPIURL = server.URL
	OpenRouterAPIKey = "test-key"
	RouterType = RouterOpenRouter
	t.Cleanup(func() {
		OpenRouterAPIURL = oldAPIURL
		OpenRouterAPIKey = oldAPIKey
		RouterType = oldRouterType
	})
}

// useCouncil overrides the council roster for the duration of a test.
func useCouncil(t *testing.T, members []string, chairman string) {
	oldMembers := CouncilMembers
	oldChairman := ChairmanModel
	CouncilMembers = members
	ChairmanModel = chairman
	t.Cleanup(func() {
		CouncilMembers = oldMembers
		ChairmanModel = oldChairman
	})
}

// SampleStage1Results creates settled Stage 1 results for testing, including
// one failed member.
func SampleStage1Results() []Stage1Result {
	return []Stage1Result{
		{Model: "test/model1", Response: "Go is a programming language.", LatencyMS: 120, TokensIn: 10, TokensOut: 8},
		{Model: "test/model2", Response: "Go is developed by Google.", LatencyMS: 95, TokensIn: 10, TokensOut: 7},
		{Model: "test/model3", ErrorKind: ErrKindTimeout, ErrorMessage: "request to test/model3 failed"},
		{Model: "test/model4", Response: "Go compiles to native code.", LatencyMS: 210, TokensIn: 10, TokensOut: 9},
	}
}

// SampleConversation creates a sample conversation for testing
func SampleConversation(id string) *Conversation {
	return &Conversation{
		ID:        id,
		CreatedAt: testTime(),
		Title:     "Test Conversation",
		Messages: []Message{
			{
				Role:    "user",
				Content: "What is Go?",
			},
			{
				Role: "assistant",
				Stage1: []Stage1Result{
					{Model: "test/model1", Response: "Go is a programming language."},
					{Model: "test/model2", Response: "Go is developed by Google."},
				},
				Stage2: []Stage2Result{
					{
						Model:         "test/model1",
						Ranking:       "FINAL RANKING:\n1. Response B\n2. Response A",
						ParsedRanking: []string{"Response B", "Response A"},
					},
				},
				Stage3: &Stage3Result{
					Model:    "test/chairman",
					Response: "Go is a programming language developed by Google.",
				},
			},
		},
	}
}

// testTime returns a fixed time for testing
func testTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

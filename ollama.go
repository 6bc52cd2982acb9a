package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaRequest represents a request to the Ollama chat API
type OllamaRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// OllamaAPIResponse represents the Ollama chat API response structure
type OllamaAPIResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	PromptEvalCount int `json:"prompt_eval_count"`
	EvalCount       int `json:"eval_count"`
}

func ollamaChatURL() string {
	if OllamaAPIURL != "" {
		return OllamaAPIURL
	}
	return fmt.Sprintf("http://%s/api/chat", OllamaHost)
}

// QueryOllamaModel queries a single model via a local Ollama instance. It
// honors the same contract as QueryModel: failures come back as *InvokeError
// with a kind from the closed taxonomy.
func QueryOllamaModel(ctx context.Context, model string, messages []ChatMessage, timeout time.Duration) (*ModelResponse, error) {
	client := &http.Client{
		Timeout: timeout,
	}

	payload := OllamaRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, invokeFailure(ErrKindUnknown, "failed to marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", ollamaChatURL(), bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, invokeFailure(ErrKindUnknown, "failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, invokeFailure(classifyTransportError(err),
			"cannot reach Ollama at %s: %v", OllamaHost, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, invokeFailure(classifyStatusCode(resp.StatusCode),
			"Ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, invokeFailure(classifyTransportError(err), "failed to read response body: %v", err)
	}

	var apiResponse OllamaAPIResponse
	if err := json.Unmarshal(bodyBytes, &apiResponse); err != nil {
		return nil, invokeFailure(ErrKindUnknown, "failed to parse response: %v", err)
	}

	if strings.TrimSpace(apiResponse.Message.Content) == "" {
		return nil, invokeFailure(ErrKindEmpty, "blank completion from %s", model)
	}

	return &ModelResponse{
		Content:   apiResponse.Message.Content,
		TokensIn:  apiResponse.PromptEvalCount,
		TokensOut: apiResponse.EvalCount,
		Latency:   time.Since(start),
	}, nil
}

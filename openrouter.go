package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// InvokeError is the only error type the invocation client returns. Kind is
// always one of the closed ErrorKind set.
type InvokeError struct {
	Kind    ErrorKind
	Message string
}

func (e *InvokeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func invokeFailure(kind ErrorKind, format string, args ...interface{}) *InvokeError {
	return &InvokeError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsInvokeError extracts the taxonomy record from an invocation error.
// Anything that somehow escaped classification is mapped to unknown.
func AsInvokeError(err error) *InvokeError {
	var ie *InvokeError
	if errors.As(err, &ie) {
		return ie
	}
	return &InvokeError{Kind: ErrKindUnknown, Message: err.Error()}
}

// ModelResponse is a successful model invocation: the completion text plus
// latency and token usage for accounting.
type ModelResponse struct {
	Content   string
	TokensIn  int
	TokensOut int
	Latency   time.Duration
}

// OpenRouterRequest represents a request to OpenRouter API
type OpenRouterRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
}

// OpenRouterChoiceMessage is the message object inside one completion choice
type OpenRouterChoiceMessage struct {
	Content string `json:"content"`
}

// OpenRouterChoice is a single completion choice
type OpenRouterChoice struct {
	Message OpenRouterChoiceMessage `json:"message"`
}

// OpenRouterUsage is the token accounting block of an API response
type OpenRouterUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// OpenRouterAPIResponse represents the full API response structure
type OpenRouterAPIResponse struct {
	Choices []OpenRouterChoice `json:"choices"`
	Usage   OpenRouterUsage    `json:"usage"`
}

// QueryModel queries a single model via OpenRouter API with the given timeout.
// Returns the model's response, or an *InvokeError classifying the failure.
// A single invocation never retries; retry policy belongs to the caller.
func QueryModel(ctx context.Context, model string, messages []ChatMessage, timeout time.Duration) (*ModelResponse, error) {
	client := &http.Client{
		Timeout: timeout,
	}

	payload := OpenRouterRequest{
		Model:    model,
		Messages: messages,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, invokeFailure(ErrKindUnknown, "failed to marshal request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", OpenRouterAPIURL, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, invokeFailure(ErrKindUnknown, "failed to create request: %v", err)
	}

	req.Header.Set("Authorization", "Bearer "+OpenRouterAPIKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, invokeFailure(classifyTransportError(err), "request to %s failed: %v", model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, invokeFailure(classifyStatusCode(resp.StatusCode),
			"API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, invokeFailure(classifyTransportError(err), "failed to read response body: %v", err)
	}

	var apiResponse OpenRouterAPIResponse
	if err := json.Unmarshal(bodyBytes, &apiResponse); err != nil {
		return nil, invokeFailure(ErrKindUnknown, "failed to parse response: %v", err)
	}

	if len(apiResponse.Choices) == 0 {
		return nil, invokeFailure(ErrKindEmpty, "no choices in response from %s", model)
	}

	content := apiResponse.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return nil, invokeFailure(ErrKindEmpty, "blank completion from %s", model)
	}

	return &ModelResponse{
		Content:   content,
		TokensIn:  apiResponse.Usage.PromptTokens,
		TokensOut: apiResponse.Usage.CompletionTokens,
		Latency:   time.Since(start),
	}, nil
}

// classifyStatusCode maps provider HTTP status codes into the error taxonomy.
func classifyStatusCode(code int) ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrKindRateLimit
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrKindAuth
	case code == http.StatusNotFound:
		return ErrKindNotFound
	default:
		return ErrKindUnknown
	}
}

// classifyTransportError maps client-side transport failures into the error
// taxonomy: deadline expiry is a timeout, everything else a connection error.
func classifyTransportError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrKindTimeout
	}
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return ErrKindTimeout
	}
	return ErrKindConnection
}

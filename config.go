package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Configuration constants
var (
	// OpenRouterAPIKey is the API key for OpenRouter
	OpenRouterAPIKey string

	// CouncilMembers is the ordered list of member models queried in
	// Stage 1 and Stage 2. Order is fixed per run and determines
	// anonymization label assignment.
	CouncilMembers = []string{
		"openai/gpt-5.1",
		"google/gemini-3-pro-preview",
		"anthropic/claude-sonnet-4.5",
		"x-ai/grok-4",
	}

	// ChairmanModel is the model used for Stage 3 synthesis
	ChairmanModel = "google/gemini-3-pro-preview"

	// TitleModel is the fast model used for conversation title generation
	TitleModel = "google/gemini-2.5-flash"

	// RouterType selects the backend router: "openrouter" or "ollama".
	// The selected router is authoritative, there is no fallback.
	RouterType = RouterOpenRouter

	// OpenRouterAPIURL is the endpoint for OpenRouter API
	OpenRouterAPIURL = "https://openrouter.ai/api/v1/chat/completions"

	// OllamaHost is the host:port of a local Ollama instance
	OllamaHost = "localhost:11434"

	// OllamaAPIURL overrides the derived Ollama chat endpoint when set
	OllamaAPIURL = ""

	// DataDir is the directory for conversation storage
	DataDir = "data/conversations"

	// RunsDir is the directory where terminal run states are persisted
	RunsDir = "data/runs"

	// Timeout constants
	ModelQueryTimeout = 120 * time.Second
	TitleGenTimeout   = 30 * time.Second
	FetchTimeout      = 30 * time.Second

	// ContextWindowSize is the number of prior conversation turns included
	// as context in the Stage 1 prompt
	ContextWindowSize = 20

	// ToonEnabled toggles the compression codec for stage payloads.
	// When disabled every payload uses the baseline JSON serialization
	// and reports zero savings.
	ToonEnabled = true

	// CORS allowed origins (configurable via environment)
	// In development (empty/default), allows any localhost port
	// In production, set CORS_ALLOWED_ORIGINS environment variable
	CORSAllowedOrigins = []string{}

	// MaxRequestBodySize is the maximum allowed request body size (1MB)
	MaxRequestBodySize int64 = 1 << 20

	// FetchCacheTTL is the time-to-live for fetched page content
	FetchCacheTTL = 5 * time.Minute

	// CouncilConfigPath is the optional YAML config file location
	CouncilConfigPath = "council.yaml"
)

// councilFile mirrors the council.yaml layout.
type councilFile struct {
	Council struct {
		Members  []string `yaml:"members"`
		Chairman string   `yaml:"chairman"`
		Title    string   `yaml:"title_model"`
	} `yaml:"council"`
	Router   string `yaml:"router"`
	Timeouts struct {
		QuerySeconds int `yaml:"query_seconds"`
		TitleSeconds int `yaml:"title_seconds"`
	} `yaml:"timeouts"`
	ContextWindow *int `yaml:"context_window"`
	Toon          struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"toon"`
}

// LoadCouncilFile applies settings from a YAML file to the package-level
// configuration. A missing file is not an error; a malformed one is.
func LoadCouncilFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read council config: %w", err)
	}

	var cf councilFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return fmt.Errorf("failed to parse council config: %w", err)
	}

	if len(cf.Council.Members) > 0 {
		CouncilMembers = cf.Council.Members
	}
	if cf.Council.Chairman != "" {
		ChairmanModel = cf.Council.Chairman
	}
	if cf.Council.Title != "" {
		TitleModel = cf.Council.Title
	}
	if cf.Router != "" {
		rt, err := NormalizeRouterType(cf.Router)
		if err != nil {
			return err
		}
		RouterType = rt
	}
	if cf.Timeouts.QuerySeconds > 0 {
		ModelQueryTimeout = time.Duration(cf.Timeouts.QuerySeconds) * time.Second
	}
	if cf.Timeouts.TitleSeconds > 0 {
		TitleGenTimeout = time.Duration(cf.Timeouts.TitleSeconds) * time.Second
	}
	if cf.ContextWindow != nil && *cf.ContextWindow >= 0 {
		ContextWindowSize = *cf.ContextWindow
	}
	if cf.Toon.Enabled != nil {
		ToonEnabled = *cf.Toon.Enabled
	}

	return ValidateCouncilConfig()
}

// ValidateCouncilConfig checks the invariants the engine relies on: at least
// one member, a chairman, and no more members than available labels.
func ValidateCouncilConfig() error {
	if len(CouncilMembers) == 0 {
		return fmt.Errorf("council requires at least one member model")
	}
	if len(CouncilMembers) > maxCouncilMembers {
		return fmt.Errorf("council supports at most %d members, got %d", maxCouncilMembers, len(CouncilMembers))
	}
	if ChairmanModel == "" {
		return fmt.Errorf("chairman model is required")
	}
	return nil
}

// LoadConfig loads configuration from environment variables and the optional
// council.yaml file
func LoadConfig() {
	// Load .env file - try multiple locations
	envLocations := []string{
		".env",    // Current directory
		"../.env", // Parent directory
	}

	// Try to find and load .env file
	envLoaded := false
	for _, envPath := range envLocations {
		absPath, err := filepath.Abs(envPath)
		if err != nil {
			continue
		}

		if _, err := os.Stat(absPath); err == nil {
			if err := godotenv.Load(absPath); err == nil {
				log.Printf("Loaded .env from: %s", absPath)
				envLoaded = true
				break
			}
		}
	}

	if !envLoaded {
		log.Printf("Warning: .env file not found in any expected location")
	}

	if err := LoadCouncilFile(CouncilConfigPath); err != nil {
		log.Fatalf("Invalid council config: %v", err)
	}

	// Environment overrides the file for deployment-specific values
	if rt := os.Getenv("ROUTER_TYPE"); rt != "" {
		normalized, err := NormalizeRouterType(rt)
		if err != nil {
			log.Fatalf("Invalid ROUTER_TYPE: %v", err)
		}
		RouterType = normalized
	}

	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		OllamaHost = host
	}

	// The OpenRouter key is only required when OpenRouter is the router
	OpenRouterAPIKey = os.Getenv("OPENROUTER_API_KEY")
	if OpenRouterAPIKey == "" && RouterType == RouterOpenRouter {
		log.Fatal("OPENROUTER_API_KEY environment variable is required")
	}

	// Load CORS origins from environment if provided
	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		CORSAllowedOrigins = []string{}
		for _, origin := range filepath.SplitList(corsOrigins) {
			if origin != "" {
				CORSAllowedOrigins = append(CORSAllowedOrigins, origin)
			}
		}
	}

	log.Println("Configuration loaded successfully")
}

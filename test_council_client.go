//go:build ignore
// +build ignore

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Simple test program to verify the model invocation clients work
// Run with: go run test_council_client.go config.go models.go openrouter.go ollama.go router.go
func main() {
	fmt.Println("=== Council Client Test ===")
	fmt.Println()

	// Load .env from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	if rt := os.Getenv("ROUTER_TYPE"); rt != "" {
		normalized, err := NormalizeRouterType(rt)
		if err != nil {
			log.Fatalf("Invalid ROUTER_TYPE: %v", err)
		}
		RouterType = normalized
	}

	OpenRouterAPIKey = os.Getenv("OPENROUTER_API_KEY")
	if OpenRouterAPIKey == "" && RouterType == RouterOpenRouter {
		log.Fatal("OPENROUTER_API_KEY environment variable is required")
	}

	messages := []ChatMessage{
		{Role: "user", Content: "Say hello in exactly 5 words."},
	}

	ctx := context.Background()

	// Test 1: Single model query via the configured router
	fmt.Printf("Test 1: Querying single model (%s) via %s...\n", TitleModel, RouterType)
	start := time.Now()
	response, err := QueryCouncilModel(ctx, TitleModel, messages, 30*time.Second)
	if err != nil {
		invokeErr := AsInvokeError(err)
		log.Fatalf("Query failed (%s): %s", invokeErr.Kind, invokeErr.Message)
	}
	fmt.Printf("  OK in %v: %q (tokens %d in / %d out)\n\n",
		time.Since(start).Round(time.Millisecond), response.Content, response.TokensIn, response.TokensOut)

	// Test 2: Parallel council fan-out
	fmt.Printf("Test 2: Querying %d council members in parallel...\n", len(CouncilMembers))
	start = time.Now()
	results := QueryMembersParallel(ctx, CouncilMembers, messages, 60*time.Second)
	for _, result := range results {
		if result.Err != nil {
			fmt.Printf("  %s: FAILED (%s) %s\n", result.Model, result.Err.Kind, result.Err.Message)
			continue
		}
		fmt.Printf("  %s: %q\n", result.Model, result.Response.Content)
	}
	fmt.Printf("All members settled in %v\n", time.Since(start).Round(time.Millisecond))
}

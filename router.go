package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Supported router types. The configured router is authoritative for every
// invocation in a deployment; there is no per-call fallback.
const (
	RouterOpenRouter = "openrouter"
	RouterOllama     = "ollama"
)

// NormalizeRouterType validates and canonicalizes a router type string.
func NormalizeRouterType(routerType string) (string, error) {
	rt := strings.ToLower(strings.TrimSpace(routerType))
	switch rt {
	case RouterOpenRouter, RouterOllama:
		return rt, nil
	default:
		return "", fmt.Errorf("invalid router type: %q", routerType)
	}
}

// QueryCouncilModel dispatches a single invocation to the configured router.
func QueryCouncilModel(ctx context.Context, model string, messages []ChatMessage, timeout time.Duration) (*ModelResponse, error) {
	if RouterType == RouterOllama {
		return QueryOllamaModel(ctx, model, messages, timeout)
	}
	return QueryModel(ctx, model, messages, timeout)
}

// memberOutcome is how one member invocation settled. Index is the member's
// position in the fixed council order.
type memberOutcome struct {
	Index    int
	Model    string
	Response *ModelResponse
	Err      *InvokeError
}

// queryMembersStream fans one prompt out to all members in parallel and
// delivers outcomes as each call settles. The channel is closed once every
// member has settled; a member timing out never delays or cancels siblings.
func queryMembersStream(ctx context.Context, models []string, messages []ChatMessage, timeout time.Duration) <-chan memberOutcome {
	out := make(chan memberOutcome, len(models))

	var g errgroup.Group
	for i, model := range models {
		i, model := i, model
		g.Go(func() error {
			response, err := QueryCouncilModel(ctx, model, messages, timeout)
			outcome := memberOutcome{Index: i, Model: model}
			if err != nil {
				outcome.Err = AsInvokeError(err)
			} else {
				outcome.Response = response
			}
			out <- outcome
			return nil
		})
	}

	go func() {
		g.Wait()
		close(out)
	}()

	return out
}

// QueryMembersParallel queries all members and returns their settled results
// in council order, blocking until every invocation has settled.
func QueryMembersParallel(ctx context.Context, models []string, messages []ChatMessage, timeout time.Duration) []memberOutcome {
	results := make([]memberOutcome, len(models))
	for outcome := range queryMembersStream(ctx, models, messages, timeout) {
		results[outcome.Index] = outcome
	}
	return results
}

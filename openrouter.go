package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// QueryModel queries a single model via OpenRouter API with the given timeout.
// A non-empty systemPrompt is prepended as a system-role message.
// Returns the model's response or an error if the request fails; errors are
// values, never panics, so callers decide how to degrade.
func QueryModel(ctx context.Context, model string, messages []OpenRouterMessage, systemPrompt string, timeout time.Duration) (*OpenRouterResponse, error) {
	// Create HTTP client with timeout
	client := &http.Client{
		Timeout: timeout,
	}

	// Prepend system prompt if provided
	allMessages := messages
	if systemPrompt != "" {
		allMessages = append([]OpenRouterMessage{{Role: "system", Content: systemPrompt}}, messages...)
	}

	// Build request payload
	payload := OpenRouterRequest{
		Model:    model,
		Messages: allMessages,
	}

	// Marshal payload to JSON
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// Create HTTP request
	req, err := http.NewRequestWithContext(ctx, "POST", OpenRouterAPIURL, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set headers
	req.Header.Set("Authorization", "Bearer "+OpenRouterAPIKey)
	req.Header.Set("Content-Type", "application/json")

	// Make the request
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	// Check status code
	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	// Read response body
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// Parse response
	var apiResponse OpenRouterAPIResponse
	if err := json.Unmarshal(bodyBytes, &apiResponse); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// Extract message from response
	if len(apiResponse.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	message := apiResponse.Choices[0].Message
	return &OpenRouterResponse{
		Content:          message.Content,
		ReasoningDetails: message.ReasoningDetails,
	}, nil
}

// QueryModelsParallel queries multiple participants in parallel using goroutines.
// Each participant's own system prompt is used as-is; failed participants
// return nil in the results map while successful ones return their responses.
// The barrier never fails as a whole on individual timeouts.
func QueryModelsParallel(ctx context.Context, participants []ParticipantConfig, messages []OpenRouterMessage) (map[string]*OpenRouterResponse, error) {
	// Create errgroup for parallel execution
	g, ctx := errgroup.WithContext(ctx)

	// Results map and mutex for thread-safe writes
	results := make(map[string]*OpenRouterResponse)
	var mu sync.Mutex

	// Launch goroutine for each participant
	for _, participant := range participants {
		participant := participant // Capture loop variable
		g.Go(func() error {
			// Query the model with the per-invocation timeout
			response, err := QueryModel(ctx, participant.Model, messages, participant.SystemPrompt, ModelQueryTimeout)

			// Graceful degradation: log error but don't fail entire request
			if err != nil {
				log.Printf("Error querying model %s: %v", participant.Model, err)
				mu.Lock()
				results[participant.Model] = nil
				mu.Unlock()
				return nil // Don't propagate error, continue with other models
			}

			// Store successful response
			mu.Lock()
			results[participant.Model] = response
			mu.Unlock()
			return nil
		})
	}

	// Wait for all goroutines to complete
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// EmbedText embeds a single text via the embeddings API.
// Used only by the embedding consensus strategy; callers treat any error as
// "consensus not detected" rather than propagating it.
func EmbedText(ctx context.Context, text string) ([]float64, error) {
	client := &http.Client{
		Timeout: EmbedTimeout,
	}

	payload := EmbeddingRequest{
		Model: EmbeddingModel,
		Input: text,
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", EmbeddingAPIURL, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+OpenRouterAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embeddings API returned status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding response: %w", err)
	}

	var apiResponse EmbeddingAPIResponse
	if err := json.Unmarshal(bodyBytes, &apiResponse); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}

	if len(apiResponse.Data) == 0 {
		return nil, fmt.Errorf("no embedding in response")
	}

	return apiResponse.Data[0].Embedding, nil
}

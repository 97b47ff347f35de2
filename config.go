package main

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Configuration constants
var (
	// OpenRouterAPIKey is the API key for OpenRouter
	OpenRouterAPIKey string

	// CouncilModels is the default list of models to query in parallel
	CouncilModels = []string{
		"openai/gpt-5.1",
		"google/gemini-3-pro-preview",
		"anthropic/claude-sonnet-4.5",
		"x-ai/grok-4",
	}

	// ChairmanModel is the model used for final synthesis
	ChairmanModel = "google/gemini-3-pro-preview"

	// TitleModel is the fast model used for conversation title generation
	TitleModel = "google/gemini-2.5-flash"

	// JudgeModel is the lightweight model used by the LLM-judge consensus strategy
	JudgeModel = "google/gemini-2.5-flash"

	// OpenRouterAPIURL is the endpoint for OpenRouter API
	OpenRouterAPIURL = "https://openrouter.ai/api/v1/chat/completions"

	// EmbeddingAPIURL is the endpoint for the embeddings API
	EmbeddingAPIURL = "https://openrouter.ai/api/v1/embeddings"

	// EmbeddingModel is the model used for consensus embedding similarity
	EmbeddingModel = "openai/text-embedding-3-small"

	// DataDir is the directory for conversation storage
	DataDir = "data/conversations"

	// DiscussionsDir is the directory for discussion storage
	DiscussionsDir = "data/discussions"

	// Timeout constants
	ModelQueryTimeout = 120 * time.Second
	TitleGenTimeout   = 30 * time.Second
	JudgeTimeout      = 30 * time.Second
	EmbedTimeout      = 15 * time.Second

	// Discussion defaults
	DefaultMaxRounds          = 5
	DefaultConsensusThreshold = 0.7
	DefaultConsensusMode      = "heuristic"

	// HistoryWindow bounds how many recent messages are fed into each turn's
	// prompt to keep context size under control
	HistoryWindow = 20

	// ConsensusMinMessages is the minimum transcript length before consensus
	// evaluation starts
	ConsensusMinMessages = 6

	// ConsensusWindow is how many recent messages each consensus strategy inspects
	ConsensusWindow = 6

	// CORS allowed origins (configurable via environment)
	// In development (empty/default), allows any localhost port
	// In production, set CORS_ALLOWED_ORIGINS environment variable
	CORSAllowedOrigins = []string{}

	// MaxRequestBodySize is the maximum allowed request body size (1MB)
	MaxRequestBodySize int64 = 1 << 20

	// EmbeddingCacheTTL is the time-to-live for cached embedding vectors
	EmbeddingCacheTTL = 10 * time.Minute
)

// LoadConfig loads configuration from environment variables
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

	// Get OpenRouter API key
	OpenRouterAPIKey = os.Getenv("OPENROUTER_API_KEY")
	if OpenRouterAPIKey == "" {
		log.Fatal("OPENROUTER_API_KEY environment variable is required")
	}

	// Optional model overrides
	if chairman := os.Getenv("CHAIRMAN_MODEL"); chairman != "" {
		ChairmanModel = chairman
	}
	if judge := os.Getenv("JUDGE_MODEL"); judge != "" {
		JudgeModel = judge
	}
	if embedModel := os.Getenv("EMBEDDING_MODEL"); embedModel != "" {
		EmbeddingModel = embedModel
	}

	// Consensus combination policy: "heuristic" (default) or "vote"
	if mode := os.Getenv("CONSENSUS_MODE"); mode != "" {
		if mode == "heuristic" || mode == "vote" {
			DefaultConsensusMode = mode
		} else {
			log.Printf("Warning: unknown CONSENSUS_MODE %q, keeping %q", mode, DefaultConsensusMode)
		}
	}

	if rounds := os.Getenv("DISCUSSION_MAX_ROUNDS"); rounds != "" {
		if n, err := strconv.Atoi(rounds); err == nil && n > 0 {
			DefaultMaxRounds = n
		}
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

// DefaultParticipants builds the default council participant list from the
// configured models. No system prompts; those come from callers.
func DefaultParticipants() []ParticipantConfig {
	participants := make([]ParticipantConfig, 0, len(CouncilModels))
	for _, model := range CouncilModels {
		participants = append(participants, ParticipantConfig{Model: model})
	}
	return participants
}

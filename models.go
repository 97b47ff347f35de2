package main

import "time"

// Message represents a single message in a conversation
type Message struct {
	Role    string           `json:"role"`
	Content string           `json:"content,omitempty"`
	Stage1  []Stage1Response `json:"stage1,omitempty"`
	Stage2  []Stage2Ranking  `json:"stage2,omitempty"`
	Stage3  *Stage3Response  `json:"stage3,omitempty"`
}

// Conversation represents a full conversation with all messages
type Conversation struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
}

// ConversationMetadata represents conversation list metadata
type ConversationMetadata struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
}

// ParticipantConfig identifies one council member: a model plus an optional
// caller-supplied system prompt. Immutable for the duration of one pipeline run.
type ParticipantConfig struct {
	Model        string `json:"model"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// Stage1Response represents a single model's response in Stage 1
type Stage1Response struct {
	Model    string `json:"model"`
	Response string `json:"response"`
}

// Stage2Ranking represents a model's ranking of other responses
type Stage2Ranking struct {
	Model         string   `json:"model"`
	Ranking       string   `json:"ranking"`
	ParsedRanking []string `json:"parsed_ranking"`
}

// Stage3Response represents the chairman's final synthesis
type Stage3Response struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	IsError  bool   `json:"is_error,omitempty"`
}

// AggregateRanking represents the aggregate ranking across all models
type AggregateRanking struct {
	Model         string  `json:"model"`
	AverageRank   float64 `json:"average_rank"`
	RankingsCount int     `json:"rankings_count"`
}

// Metadata contains additional information about the council process
type Metadata struct {
	LabelToModel      map[string]string  `json:"label_to_model"`
	AggregateRankings []AggregateRanking `json:"aggregate_rankings"`
}

// ModelProvider identifies the backend a role's model is served by.
// Resolved once at discussion creation, never re-resolved per turn.
type ModelProvider string

const (
	ProviderOpenRouter ModelProvider = "openrouter"
)

// ModelBinding binds an agent role to a concrete model on a provider.
type ModelBinding struct {
	Provider ModelProvider `json:"provider"`
	Model    string        `json:"model"`
}

// AgentRole is one scheduling slot in a discussion: a named persona bound to
// exactly one model. Roles are never reassigned mid-discussion.
type AgentRole struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Persona string       `json:"persona"`
	Binding ModelBinding `json:"binding"`
}

// DiscussionConfig is fixed for the lifetime of one discussion.
type DiscussionConfig struct {
	Topic              string      `json:"topic"`
	Context            string      `json:"context,omitempty"`
	Roles              []AgentRole `json:"roles"`
	MaxRounds          int         `json:"max_rounds"`
	ConsensusThreshold float64     `json:"consensus_threshold"`
	ConsensusMode      string      `json:"consensus_mode,omitempty"`
}

// DiscussionStatus is the lifecycle state of a discussion.
type DiscussionStatus string

const (
	StatusRunning    DiscussionStatus = "running"
	StatusCompleted  DiscussionStatus = "completed"
	StatusTerminated DiscussionStatus = "terminated"
)

// Completion reasons for a discussion that ran to its natural end.
const (
	ReasonMaxRounds = "max_rounds"
	ReasonConsensus = "consensus"
)

// DiscussionMessage is one speaker's finalized turn. Immutable once appended.
type DiscussionMessage struct {
	ID             string    `json:"id"`
	RoleID         string    `json:"role_id"`
	SpeakerName    string    `json:"speaker_name"`
	Model          string    `json:"model"`
	Content        string    `json:"content"`
	Round          int       `json:"round"`
	IsIntervention bool      `json:"is_intervention"`
	Timestamp      time.Time `json:"timestamp"`
}

// InterventionType classifies a user intervention.
type InterventionType string

const (
	InterventionRedirect   InterventionType = "redirect"
	InterventionCorrection InterventionType = "correction"
	InterventionDeepDive   InterventionType = "deep_dive"
	InterventionTerminate  InterventionType = "terminate"
)

// UserIntervention is an append-only audit record of a mid-discussion user
// message, correlated with the message index at the time it was inserted.
type UserIntervention struct {
	ID             string           `json:"id"`
	Type           InterventionType `json:"type"`
	Content        string           `json:"content"`
	AtMessageIndex int              `json:"at_message_index"`
	Timestamp      time.Time        `json:"timestamp"`
}

// DiscussionState is the single mutable aggregate owned by one Discussion.
type DiscussionState struct {
	ID                  string              `json:"id"`
	Config              DiscussionConfig    `json:"config"`
	CurrentRound        int                 `json:"current_round"`
	CurrentSpeakerIndex int                 `json:"current_speaker_index"`
	Messages            []DiscussionMessage `json:"messages"`
	Status              DiscussionStatus    `json:"status"`
	CompletionReason    string              `json:"completion_reason,omitempty"`
	ConsensusDetected   bool                `json:"consensus_detected"`
	Interventions       []UserIntervention  `json:"interventions"`
	CreatedAt           time.Time           `json:"created_at"`
	CompletedAt         *time.Time          `json:"completed_at,omitempty"`
}

// DiscussionMetadata represents discussion list metadata
type DiscussionMetadata struct {
	ID           string           `json:"id"`
	Topic        string           `json:"topic"`
	Status       DiscussionStatus `json:"status"`
	RoleCount    int              `json:"role_count"`
	MessageCount int              `json:"message_count"`
	CreatedAt    time.Time        `json:"created_at"`
}

// ConsensusResult is the outcome of one consensus evaluation. Transient:
// recomputed every round, never persisted on its own.
type ConsensusResult struct {
	Detected   bool     `json:"detected"`
	Confidence float64  `json:"confidence"`
	Method     string   `json:"method"`
	BasedOn    []string `json:"based_on_message_ids,omitempty"`
	Reason     string   `json:"reason,omitempty"`
}

// DiscussionEvent is one element of the event stream produced by Start.
type DiscussionEvent struct {
	Type      string             `json:"type"`
	Round     int                `json:"round,omitempty"`
	SpeakerID string             `json:"speaker_id,omitempty"`
	Message   *DiscussionMessage `json:"message,omitempty"`
	Consensus *ConsensusResult   `json:"consensus,omitempty"`
	Reason    string             `json:"reason,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// Discussion event types.
const (
	EventDiscussionStart      = "discussion_start"
	EventRoundStart           = "round_start"
	EventMessage              = "message"
	EventRoundComplete        = "round_complete"
	EventDiscussionComplete   = "discussion_complete"
	EventDiscussionTerminated = "discussion_terminated"
	EventError                = "error"
)

// OpenRouterMessage represents a message for OpenRouter API
type OpenRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// OpenRouterRequest represents a request to OpenRouter API
type OpenRouterRequest struct {
	Model    string              `json:"model"`
	Messages []OpenRouterMessage `json:"messages"`
}

// OpenRouterResponse represents a response from OpenRouter API
type OpenRouterResponse struct {
	Content          string      `json:"content"`
	ReasoningDetails interface{} `json:"reasoning_details,omitempty"`
}

// OpenRouterAPIResponse represents the full API response structure
type OpenRouterAPIResponse struct {
	Choices []struct {
		Message struct {
			Content          string      `json:"content"`
			ReasoningDetails interface{} `json:"reasoning_details,omitempty"`
		} `json:"message"`
	} `json:"choices"`
}

// EmbeddingRequest represents a request to the embeddings API
type EmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// EmbeddingAPIResponse represents the embeddings API response structure
type EmbeddingAPIResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// SendMessageRequest represents a request to send a message
type SendMessageRequest struct {
	Content      string              `json:"content"`
	Participants []ParticipantConfig `json:"participants,omitempty"`
	Chairman     string              `json:"chairman,omitempty"`
}

// SendMessageResponse represents the response after sending a message
type SendMessageResponse struct {
	Stage1   []Stage1Response `json:"stage1"`
	Stage2   []Stage2Ranking  `json:"stage2"`
	Stage3   Stage3Response   `json:"stage3"`
	Metadata Metadata         `json:"metadata"`
}

// CreateDiscussionRequest represents a request to create a new discussion
type CreateDiscussionRequest struct {
	Topic              string      `json:"topic" binding:"required"`
	Roles              []AgentRole `json:"roles" binding:"required"`
	MaxRounds          int         `json:"max_rounds,omitempty"`
	ConsensusThreshold float64     `json:"consensus_threshold,omitempty"`
	ConsensusMode      string      `json:"consensus_mode,omitempty"`
	ContextURL         string      `json:"context_url,omitempty"`
}

// InterventionRequest represents a request to steer a running discussion
type InterventionRequest struct {
	Type    InterventionType `json:"type" binding:"required"`
	Content string           `json:"content"`
}

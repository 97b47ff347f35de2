package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func main() {
	// Load configuration
	LoadConfig()

	// Registry of live discussions, injected into the handlers
	registry := NewDiscussionRegistry()

	router := setupRouter(registry)

	// Start server
	log.Println("Starting LLM Roundtable backend on port 8001...")
	if err := router.Run(":8001"); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// setupRouter builds the gin router with all middleware and routes.
// Split out of main so handler tests can drive it directly.
func setupRouter(registry *DiscussionRegistry) *gin.Engine {
	router := gin.Default()

	// Request size limit middleware
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestBodySize)
		c.Next()
	})

	// CORS middleware with dynamic origin validation
	router.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			// In production, use environment-configured origins
			if len(CORSAllowedOrigins) > 0 && CORSAllowedOrigins[0] != "" {
				for _, allowedOrigin := range CORSAllowedOrigins {
					if origin == allowedOrigin {
						return true
					}
				}
				return false
			}
			// In development, allow any localhost/127.0.0.1 origin
			return len(origin) > 0 && (len(origin) >= 16 && origin[:16] == "http://localhost" ||
				len(origin) >= 14 && origin[:14] == "http://127.0.0")
		},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
	}))

	// Routes
	router.GET("/", healthCheck)
	router.GET("/api/conversations", listConversationsHandler)
	router.POST("/api/conversations", createConversationHandler)
	router.GET("/api/conversations/:id", getConversationHandler)
	router.POST("/api/conversations/:id/message", sendMessageHandler)
	router.POST("/api/conversations/:id/message/stream", sendMessageStreamHandler)
	router.POST("/api/discussions", createDiscussionHandler(registry))
	router.GET("/api/discussions", listDiscussionsHandler)
	router.GET("/api/discussions/:id", getDiscussionHandler(registry))
	router.POST("/api/discussions/:id/start", startDiscussionHandler(registry))
	router.POST("/api/discussions/:id/intervene", interveneDiscussionHandler(registry))
	router.POST("/api/discussions/:id/terminate", terminateDiscussionHandler(registry))
	router.POST("/api/fetch-url", fetchURLHandler)

	return router
}

// healthCheck returns a simple health check response.
// GET / - Returns service status information.
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "LLM Roundtable API",
	})
}

// listConversationsHandler lists all conversations with metadata only.
// GET /api/conversations - Returns array of conversation metadata sorted by date.
func listConversationsHandler(c *gin.Context) {
	conversations, err := ListConversations()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to list conversations: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, conversations)
}

// createConversationHandler creates a new conversation.
// POST /api/conversations - Generates a new UUID and creates an empty conversation.
func createConversationHandler(c *gin.Context) {
	// Generate new UUID
	conversationID := uuid.New().String()

	// Create conversation
	conversation, err := CreateConversation(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to create conversation: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// getConversationHandler gets a specific conversation by ID.
// GET /api/conversations/:id - Returns full conversation including all messages.
func getConversationHandler(c *gin.Context) {
	conversationID := c.Param("id")

	conversation, err := GetConversation(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to get conversation: %v", err),
		})
		return
	}

	if conversation == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Conversation not found",
		})
		return
	}

	c.JSON(http.StatusOK, conversation)
}

// resolveParticipants applies process defaults when the caller didn't supply
// a council roster.
func resolveParticipants(request SendMessageRequest) []ParticipantConfig {
	if len(request.Participants) > 0 {
		return request.Participants
	}
	return DefaultParticipants()
}

// sendMessageHandler sends a message and runs the 3-stage council process.
// POST /api/conversations/:id/message - Runs full council and returns all stages at once.
// Use sendMessageStreamHandler for SSE streaming version.
func sendMessageHandler(c *gin.Context) {
	conversationID := c.Param("id")

	// Parse request
	var request SendMessageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	// Check if conversation exists
	conversation, err := GetConversation(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to get conversation: %v", err),
		})
		return
	}
	if conversation == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Conversation not found",
		})
		return
	}

	// Check if this is the first message
	isFirstMessage := len(conversation.Messages) == 0

	// Add user message
	if err := AddUserMessage(conversationID, request.Content); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to add user message: %v", err),
		})
		return
	}

	// Generate title if first message (run in background)
	if isFirstMessage {
		go func() {
			ctx := context.Background()
			title, err := GenerateConversationTitle(ctx, request.Content)
			if err != nil {
				log.Printf("Failed to generate title: %v", err)
				// Use default title on error
				UpdateConversationTitle(conversationID, "New Conversation")
			} else {
				UpdateConversationTitle(conversationID, title)
			}
		}()
	}

	// Run the 3-stage council process
	ctx := context.Background()
	stage1, stage2, stage3, metadata, err := RunFullCouncil(ctx, request.Content, resolveParticipants(request), request.Chairman)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Council process failed: %v", err),
		})
		return
	}

	// Add assistant message
	if err := AddAssistantMessage(conversationID, stage1, stage2, stage3); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to add assistant message: %v", err),
		})
		return
	}

	// Return response
	c.JSON(http.StatusOK, SendMessageResponse{
		Stage1:   stage1,
		Stage2:   stage2,
		Stage3:   stage3,
		Metadata: metadata,
	})
}

// sendMessageStreamHandler sends a message and streams the 3-stage council process via SSE.
// POST /api/conversations/:id/message/stream - Streams progress events as each stage completes.
// Events: stage1_start, stage1_complete, stage2_start, stage2_complete, stage3_start, stage3_complete, complete.
// An error event terminates the stream for this run.
func sendMessageStreamHandler(c *gin.Context) {
	conversationID := c.Param("id")

	// Parse request
	var request SendMessageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	// Check if conversation exists
	conversation, err := GetConversation(conversationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to get conversation: %v", err),
		})
		return
	}
	if conversation == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Conversation not found",
		})
		return
	}

	participants := resolveParticipants(request)
	if len(participants) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "No council participants configured",
		})
		return
	}

	// Set SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// Check if this is the first message
	isFirstMessage := len(conversation.Messages) == 0

	// Add user message
	if err := AddUserMessage(conversationID, request.Content); err != nil {
		sendSSEError(c, fmt.Sprintf("Failed to add user message: %v", err))
		return
	}

	ctx := c.Request.Context()

	// Start title generation in background if first message
	var titleChan chan string
	if isFirstMessage {
		titleChan = make(chan string, 1)
		go func() {
			title, err := GenerateConversationTitle(context.Background(), request.Content)
			if err != nil {
				log.Printf("Failed to generate title: %v", err)
				UpdateConversationTitle(conversationID, "New Conversation")
			} else {
				UpdateConversationTitle(conversationID, title)
				titleChan <- title
			}
			close(titleChan)
		}()
	}

	// Stage 1
	sendSSEEvent(c, gin.H{"type": "stage1_start"})
	stage1, err := Stage1CollectResponses(ctx, request.Content, participants)
	if err != nil {
		sendSSEError(c, fmt.Sprintf("Stage 1 failed: %v", err))
		return
	}
	if len(stage1) == 0 {
		sendSSEError(c, "All council models failed to respond")
		return
	}
	sendSSEEvent(c, gin.H{"type": "stage1_complete", "data": stage1})

	// Stage 2
	sendSSEEvent(c, gin.H{"type": "stage2_start"})
	stage2, labelToModel, err := Stage2CollectRankings(ctx, request.Content, stage1, participants)
	if err != nil {
		sendSSEError(c, fmt.Sprintf("Stage 2 failed: %v", err))
		return
	}
	aggregateRankings := CalculateAggregateRankings(stage2, labelToModel)
	sendSSEEvent(c, gin.H{
		"type": "stage2_complete",
		"data": stage2,
		"metadata": gin.H{
			"label_to_model":     labelToModel,
			"aggregate_rankings": aggregateRankings,
		},
	})

	// Stage 3
	sendSSEEvent(c, gin.H{"type": "stage3_start"})
	stage3 := Stage3SynthesizeFinal(ctx, request.Content, stage1, stage2, request.Chairman)
	sendSSEEvent(c, gin.H{"type": "stage3_complete", "data": stage3})

	// Wait for title if it was being generated
	if titleChan != nil {
		if title := <-titleChan; title != "" {
			sendSSEEvent(c, gin.H{"type": "title_complete", "data": gin.H{"title": title}})
		}
	}

	// Save complete assistant message
	if err := AddAssistantMessage(conversationID, stage1, stage2, stage3); err != nil {
		sendSSEError(c, fmt.Sprintf("Failed to save message: %v", err))
		return
	}

	// Send completion event
	sendSSEEvent(c, gin.H{"type": "complete"})
}

// createDiscussionHandler creates a new roundtable discussion.
// POST /api/discussions - Validates roles, resolves model bindings once, and
// registers the orchestrator. An optional context_url is fetched and used as
// background context for the topic.
func createDiscussionHandler(registry *DiscussionRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request CreateDiscussionRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Invalid request: %v", err),
			})
			return
		}

		config := DiscussionConfig{
			Topic:              request.Topic,
			Roles:              request.Roles,
			MaxRounds:          request.MaxRounds,
			ConsensusThreshold: request.ConsensusThreshold,
			ConsensusMode:      request.ConsensusMode,
		}

		// Seed the topic with fetched background context when requested.
		// A failed fetch degrades to no context rather than blocking creation.
		if request.ContextURL != "" {
			content, err := FetchURLContent(c.Request.Context(), request.ContextURL)
			if err != nil {
				log.Printf("Failed to fetch context URL %s: %v", request.ContextURL, err)
			} else {
				config.Context = content
			}
		}

		discussionID := uuid.New().String()
		discussion, err := registry.Create(discussionID, config)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Failed to create discussion: %v", err),
			})
			return
		}

		state := discussion.Snapshot()
		if err := SaveDiscussion(&state); err != nil {
			log.Printf("Failed to persist discussion %s: %v", discussionID, err)
		}

		c.JSON(http.StatusOK, state)
	}
}

// listDiscussionsHandler lists all persisted discussions with metadata only.
// GET /api/discussions
func listDiscussionsHandler(c *gin.Context) {
	discussions, err := ListDiscussions()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to list discussions: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, discussions)
}

// getDiscussionHandler returns the current state of a discussion, live when
// registered, from disk otherwise.
// GET /api/discussions/:id
func getDiscussionHandler(registry *DiscussionRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		discussionID := c.Param("id")

		if discussion := registry.Get(discussionID); discussion != nil {
			c.JSON(http.StatusOK, discussion.Snapshot())
			return
		}

		state, err := GetDiscussion(discussionID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": fmt.Sprintf("Failed to get discussion: %v", err),
			})
			return
		}
		if state == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Discussion not found",
			})
			return
		}

		c.JSON(http.StatusOK, state)
	}
}

// startDiscussionHandler drives a discussion to completion, relaying its event
// sequence over SSE and persisting the transcript as it grows. The registry
// entry is removed once a terminal event is relayed.
// POST /api/discussions/:id/start
func startDiscussionHandler(registry *DiscussionRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		discussionID := c.Param("id")

		discussion := registry.Get(discussionID)
		if discussion == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Discussion not found or already finished",
			})
			return
		}

		// Client disconnect cancels this context, which aborts the in-flight
		// model call for the active speaker.
		events, err := discussion.Start(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{
				"error": fmt.Sprintf("Cannot start discussion: %v", err),
			})
			return
		}

		// Set SSE headers
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")

		for event := range events {
			sendSSEEvent(c, event)

			switch event.Type {
			case EventMessage, EventRoundComplete:
				state := discussion.Snapshot()
				if err := SaveDiscussion(&state); err != nil {
					log.Printf("Failed to persist discussion %s: %v", discussionID, err)
				}
			case EventDiscussionComplete, EventDiscussionTerminated:
				state := discussion.Snapshot()
				if err := SaveDiscussion(&state); err != nil {
					log.Printf("Failed to persist discussion %s: %v", discussionID, err)
				}
				registry.Remove(discussionID)
			}
		}
	}
}

// interveneDiscussionHandler injects a user intervention into a running
// discussion.
// POST /api/discussions/:id/intervene - Body: {"type": "...", "content": "..."}
func interveneDiscussionHandler(registry *DiscussionRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		discussionID := c.Param("id")

		var request InterventionRequest
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Invalid request: %v", err),
			})
			return
		}

		discussion := registry.Get(discussionID)
		if discussion == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Discussion not found or already finished",
			})
			return
		}

		intervention, err := discussion.Intervene(request.Type, request.Content)
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{
				"error": fmt.Sprintf("Intervention rejected: %v", err),
			})
			return
		}

		c.JSON(http.StatusOK, intervention)
	}
}

// terminateDiscussionHandler terminates a discussion immediately. Idempotent.
// POST /api/discussions/:id/terminate
func terminateDiscussionHandler(registry *DiscussionRegistry) gin.HandlerFunc {
	return func(c *gin.Context) {
		discussionID := c.Param("id")

		discussion := registry.Get(discussionID)
		if discussion == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Discussion not found or already finished",
			})
			return
		}

		discussion.Terminate()

		state := discussion.Snapshot()
		if err := SaveDiscussion(&state); err != nil {
			log.Printf("Failed to persist discussion %s: %v", discussionID, err)
		}
		registry.Remove(discussionID)

		c.JSON(http.StatusOK, state)
	}
}

// sendSSEEvent sends a Server-Sent Event.
// Marshals data to JSON and writes as SSE format with "data: " prefix.
func sendSSEEvent(c *gin.Context, data interface{}) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("Failed to marshal SSE event: %v", err)
		return
	}
	c.Writer.WriteString(fmt.Sprintf("data: %s\n\n", string(jsonData)))
	c.Writer.Flush()
}

// sendSSEError sends an error event via SSE.
// Convenience wrapper for sending error-type SSE events.
func sendSSEError(c *gin.Context, message string) {
	sendSSEEvent(c, gin.H{"type": "error", "message": message})
}

// fetchURLHandler fetches and extracts content from a given URL
// POST /api/fetch-url - Body: {"url": "https://..."}
func fetchURLHandler(c *gin.Context) {
	// Parse request
	var request struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	// Fetch content
	content, err := FetchURLContent(c.Request.Context(), request.URL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to fetch URL content: %v", err),
		})
		return
	}

	// Return content
	c.JSON(http.StatusOK, gin.H{
		"content": content,
	})
}

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
	"github.com/gorilla/websocket"
)

// Global cache for extracted page content
var pageCache *ContentCache

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isAllowedOrigin(origin)
	},
}

func isAllowedOrigin(origin string) bool {
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
}

func main() {
	// Load configuration
	LoadConfig()

	// Initialize page content cache
	pageCache = NewContentCache(FetchCacheTTL)

	// Create Gin router
	router := gin.Default()

	// Request size limit middleware
	router.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxRequestBodySize)
		c.Next()
	})

	// CORS middleware with dynamic origin validation
	router.Use(cors.New(cors.Config{
		AllowOriginFunc:  isAllowedOrigin,
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
	router.GET("/api/conversations/:id/ws", councilWebSocketHandler)
	router.GET("/api/runs/:id", getRunHandler)
	router.POST("/api/fetch-url", fetchURLHandler)

	// Start server
	log.Println("Starting LLM Council backend on port 8001...")
	if err := router.Run(":8001"); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// healthCheck returns a simple health check response.
// GET / - Returns service status information.
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "LLM Council API",
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

// getRunHandler gets a council run's state by ID: a live snapshot while the
// run is in flight, the persisted terminal state afterwards.
// GET /api/runs/:id
func getRunHandler(c *gin.Context) {
	runID := c.Param("id")

	if state, ok := runRegistry.Snapshot(runID); ok {
		c.JSON(http.StatusOK, state)
		return
	}

	run, err := GetRun(runID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to get run: %v", err),
		})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Run not found",
		})
		return
	}

	c.JSON(http.StatusOK, run)
}

// conversationHistory converts stored messages into the chat turns fed to
// the Stage 1 prompt: user text plus the chairman's answer per council turn.
func conversationHistory(conversation *Conversation) []ChatMessage {
	var history []ChatMessage
	for _, message := range conversation.Messages {
		switch {
		case message.Role == "user":
			history = append(history, ChatMessage{Role: "user", Content: message.Content})
		case message.Stage3 != nil:
			history = append(history, ChatMessage{Role: "assistant", Content: message.Stage3.Response})
		}
	}
	return history
}

// buildCouncilQuery assembles the immutable run input from the request and
// the conversation so far. A content URL, if supplied, is fetched and its
// extracted text attached.
func buildCouncilQuery(ctx context.Context, conversation *Conversation, request SendMessageRequest) (Query, error) {
	query := Query{
		Text:    request.Content,
		History: conversationHistory(conversation),
	}

	if request.ContentURL != "" {
		content, err := FetchURLContent(ctx, request.ContentURL)
		if err != nil {
			return Query{}, fmt.Errorf("failed to fetch content URL: %w", err)
		}
		query.ExtractedText = content
	}

	return query, nil
}

// startTitleGeneration generates a conversation title in the background for
// a first message and reports it on the returned channel.
func startTitleGeneration(conversationID, content string) chan string {
	titleChan := make(chan string, 1)
	go func() {
		ctx := context.Background()
		title, err := GenerateConversationTitle(ctx, content)
		if err != nil {
			log.Printf("Failed to generate title: %v", err)
			UpdateConversationTitle(conversationID, "New Conversation")
		} else {
			UpdateConversationTitle(conversationID, title)
			titleChan <- title
		}
		close(titleChan)
	}()
	return titleChan
}

// sendMessageHandler sends a message and runs the 3-stage council process.
// POST /api/conversations/:id/message - Runs the full council and returns all stages at once.
// Use sendMessageStreamHandler for the SSE streaming version.
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

	query, err := buildCouncilQuery(c.Request.Context(), conversation, request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
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
		startTitleGeneration(conversationID, request.Content)
	}

	// Run the 3-stage council process
	final := RunCouncil(query)
	if final.Phase == PhaseAborted {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  "Council process failed",
			"reason": final.AbortReason,
			"run_id": final.ID,
		})
		return
	}

	// Add assistant message
	if err := AddAssistantMessage(conversationID, final); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("Failed to add assistant message: %v", err),
		})
		return
	}

	// Return response
	tokenStats := final.TokenStats
	c.JSON(http.StatusOK, SendMessageResponse{
		RunID:  final.ID,
		Stage1: final.Stage1,
		Stage2: final.Stage2,
		Stage3: *final.Stage3,
		Metadata: Metadata{
			LabelToModel:      final.LabelToModel,
			AggregateRankings: final.Aggregate,
			TokenStats:        &tokenStats,
		},
	})
}

// sendMessageStreamHandler sends a message and streams the 3-stage council process via SSE.
// POST /api/conversations/:id/message/stream - Streams coordinator progress events as they
// happen: stage starts, per-member settlements, stage completions, and exactly one terminal
// event (stage3_complete or run_aborted). The run outlives a disconnected consumer; its
// terminal state is persisted either way.
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

	query, err := buildCouncilQuery(c.Request.Context(), conversation, request)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
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

	// Start title generation in background if first message
	var titleChan chan string
	if isFirstMessage {
		titleChan = startTitleGeneration(conversationID, request.Content)
	}

	// Forward coordinator events to the client as they arrive
	handle := StartRun(query)
	for event := range handle.Events {
		sendSSEEvent(c, event)
	}

	// Wait for title if it was being generated
	if titleChan != nil {
		if title := <-titleChan; title != "" {
			sendSSEEvent(c, ProgressEvent{Type: EventTitleComplete, Title: title})
		}
	}

	final := handle.Final()
	if final.Phase == PhaseAborted {
		return
	}

	// Save complete assistant message
	if err := AddAssistantMessage(conversationID, final); err != nil {
		sendSSEError(c, fmt.Sprintf("Failed to save message: %v", err))
		return
	}

	// Send completion event
	sendSSEEvent(c, gin.H{"type": "complete"})
}

// councilWebSocketHandler runs a council over a WebSocket connection.
// GET /api/conversations/:id/ws - The client sends one message request after
// connecting; coordinator progress events are forwarded as JSON frames.
func councilWebSocketHandler(c *gin.Context) {
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

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	var request SendMessageRequest
	if err := conn.ReadJSON(&request); err != nil {
		conn.WriteJSON(gin.H{"type": "error", "message": fmt.Sprintf("Invalid request: %v", err)})
		return
	}

	query, err := buildCouncilQuery(c.Request.Context(), conversation, request)
	if err != nil {
		conn.WriteJSON(gin.H{"type": "error", "message": err.Error()})
		return
	}

	isFirstMessage := len(conversation.Messages) == 0

	if err := AddUserMessage(conversationID, request.Content); err != nil {
		conn.WriteJSON(gin.H{"type": "error", "message": fmt.Sprintf("Failed to add user message: %v", err)})
		return
	}

	var titleChan chan string
	if isFirstMessage {
		titleChan = startTitleGeneration(conversationID, request.Content)
	}

	handle := StartRun(query)
	for event := range handle.Events {
		// Write failures mean the client went away; the run keeps going
		// and persists its terminal state regardless.
		if err := conn.WriteJSON(event); err != nil {
			log.Printf("WebSocket write failed for run %s: %v", handle.ID, err)
		}
	}

	if titleChan != nil {
		if title := <-titleChan; title != "" {
			conn.WriteJSON(ProgressEvent{Type: EventTitleComplete, Title: title})
		}
	}

	final := handle.Final()
	if final.Phase == PhaseAborted {
		return
	}

	if err := AddAssistantMessage(conversationID, final); err != nil {
		conn.WriteJSON(gin.H{"type": "error", "message": fmt.Sprintf("Failed to save message: %v", err)})
		return
	}

	conn.WriteJSON(gin.H{"type": "complete"})
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
	ctx := c.Request.Context()
	content, err := FetchURLContent(ctx, request.URL)
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

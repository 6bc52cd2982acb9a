package main

import "time"

// ErrorKind classifies why a single model invocation failed. The set is
// closed: the invocation client maps every transport or provider failure
// into one of these kinds, callers never see raw transport errors.
type ErrorKind string

const (
	ErrKindRateLimit  ErrorKind = "rate_limit"
	ErrKindNotFound   ErrorKind = "not_found"
	ErrKindAuth       ErrorKind = "auth"
	ErrKindTimeout    ErrorKind = "timeout"
	ErrKindConnection ErrorKind = "connection"
	ErrKindEmpty      ErrorKind = "empty"
	ErrKindUnknown    ErrorKind = "unknown"
)

// ChatMessage is a single chat-completion message sent to a model backend.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Query is the immutable input of a council run: the user's text, a bounded
// window of prior conversation turns, and optional extracted page/file text.
type Query struct {
	Text          string        `json:"text"`
	History       []ChatMessage `json:"history,omitempty"`
	ExtractedText string        `json:"extracted_text,omitempty"`
}

// Stage1Result records how one member's Stage 1 invocation settled.
// Exactly one of Response or ErrorKind is populated; entries are write-once.
type Stage1Result struct {
	Model        string    `json:"model"`
	Response     string    `json:"response,omitempty"`
	LatencyMS    int64     `json:"latency_ms,omitempty"`
	TokensIn     int       `json:"tokens_in,omitempty"`
	TokensOut    int       `json:"tokens_out,omitempty"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// OK reports whether the invocation succeeded.
func (r Stage1Result) OK() bool { return r.ErrorKind == "" }

// Stage2Result records one member's peer-ranking round: the raw ranking text
// and the ordered labels parsed out of it, or an error record using the same
// taxonomy as Stage 1.
type Stage2Result struct {
	Model         string    `json:"model"`
	Ranking       string    `json:"ranking,omitempty"`
	ParsedRanking []string  `json:"parsed_ranking,omitempty"`
	LatencyMS     int64     `json:"latency_ms,omitempty"`
	TokensIn      int       `json:"tokens_in,omitempty"`
	TokensOut     int       `json:"tokens_out,omitempty"`
	ErrorKind     ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage  string    `json:"error_message,omitempty"`
}

// OK reports whether the invocation succeeded.
func (r Stage2Result) OK() bool { return r.ErrorKind == "" }

// Stage3Result is the chairman's synthesized final answer.
type Stage3Result struct {
	Model     string `json:"model"`
	Response  string `json:"response"`
	LatencyMS int64  `json:"latency_ms,omitempty"`
	TokensIn  int    `json:"tokens_in,omitempty"`
	TokensOut int    `json:"tokens_out,omitempty"`
}

// AggregateRanking is the cross-member consensus score for one anonymized
// response: the mean 1-based position over every ranking that contains the
// label and the number of rankings contributing.
type AggregateRanking struct {
	Label         string  `json:"label"`
	Model         string  `json:"model"`
	AverageRank   float64 `json:"average_rank"`
	RankingsCount int     `json:"rankings_count"`
}

// TokenStats reports the compression codec's token accounting for one
// payload: the baseline serialization size, the compact size, and the
// percentage saved (floored at zero for reporting).
type TokenStats struct {
	BaselineTokens   int     `json:"baseline_tokens"`
	CompressedTokens int     `json:"compressed_tokens"`
	SavedPercent     float64 `json:"saved_percent"`
}

// RunTokenStats combines the per-stage compression savings of one run.
type RunTokenStats struct {
	History          TokenStats `json:"history"`
	RankingPayload   TokenStats `json:"ranking_payload"`
	SynthesisPayload TokenStats `json:"synthesis_payload"`
	Total            TokenStats `json:"total"`
}

// Metadata carries the de-anonymization map, the aggregate ranking and the
// token accounting alongside stage results.
type Metadata struct {
	LabelToModel      map[string]string  `json:"label_to_model"`
	AggregateRankings []AggregateRanking `json:"aggregate_rankings"`
	TokenStats        *RunTokenStats     `json:"token_stats,omitempty"`
}

// RunPhase is the lifecycle state of a council run.
type RunPhase string

const (
	PhaseCreated        RunPhase = "created"
	PhaseStage1InFlight RunPhase = "stage1_in_flight"
	PhaseStage1Done     RunPhase = "stage1_done"
	PhaseStage2InFlight RunPhase = "stage2_in_flight"
	PhaseStage2Done     RunPhase = "stage2_done"
	PhaseStage3InFlight RunPhase = "stage3_in_flight"
	PhaseComplete       RunPhase = "complete"
	PhaseAborted        RunPhase = "aborted"
)

// Run-level abort reasons. These are the only two failures that surface as a
// failed run; everything else degrades per member.
const (
	AbortStage1AllFailed = "stage1_all_failed"
	AbortStage3Failed    = "stage3_failed"
)

// RunState is the aggregate root of one council run. It is owned exclusively
// by the run's coordinator; everyone else sees deep-copied snapshots.
type RunState struct {
	ID           string             `json:"id"`
	Phase        RunPhase           `json:"phase"`
	Query        Query              `json:"query"`
	Members      []string           `json:"members"`
	Chairman     string             `json:"chairman"`
	Stage1       []Stage1Result     `json:"stage1,omitempty"`
	Labels       []string           `json:"labels,omitempty"`
	LabelToModel map[string]string  `json:"label_to_model,omitempty"`
	Stage2       []Stage2Result     `json:"stage2,omitempty"`
	Aggregate    []AggregateRanking `json:"aggregate,omitempty"`
	Stage3       *Stage3Result      `json:"stage3,omitempty"`
	TokenStats   RunTokenStats      `json:"token_stats"`
	AbortReason  string             `json:"abort_reason,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
	CompletedAt  time.Time          `json:"completed_at,omitempty"`
}

// EventType identifies a coordinator progress event.
type EventType string

const (
	EventStage1Started    EventType = "stage1_started"
	EventStage1MemberDone EventType = "stage1_member_done"
	EventStage1Complete   EventType = "stage1_complete"
	EventStage2Started    EventType = "stage2_started"
	EventStage2MemberDone EventType = "stage2_member_done"
	EventStage2Complete   EventType = "stage2_complete"
	EventStage3Started    EventType = "stage3_started"
	EventStage3Complete   EventType = "stage3_complete"
	EventRunAborted       EventType = "run_aborted"
	EventTitleComplete    EventType = "title_complete"
)

// ProgressEvent is one immutable progress record emitted by the coordinator.
// Events arrive in stage order; member-done events may interleave within a
// stage but always precede that stage's complete event.
type ProgressEvent struct {
	Type         EventType      `json:"type"`
	RunID        string         `json:"run_id,omitempty"`
	Model        string         `json:"model,omitempty"`
	Stage1Result *Stage1Result  `json:"stage1_result,omitempty"`
	Stage2Result *Stage2Result  `json:"stage2_result,omitempty"`
	Stage1       []Stage1Result `json:"stage1,omitempty"`
	Stage2       []Stage2Result `json:"stage2,omitempty"`
	Stage3       *Stage3Result  `json:"stage3,omitempty"`
	Metadata     *Metadata      `json:"metadata,omitempty"`
	Reason       string         `json:"reason,omitempty"`
	Title        string         `json:"title,omitempty"`
}

// Message represents a single message in a conversation
type Message struct {
	Role     string         `json:"role"`
	Content  string         `json:"content,omitempty"`
	RunID    string         `json:"run_id,omitempty"`
	Stage1   []Stage1Result `json:"stage1,omitempty"`
	Stage2   []Stage2Result `json:"stage2,omitempty"`
	Stage3   *Stage3Result  `json:"stage3,omitempty"`
	Metadata *Metadata      `json:"metadata,omitempty"`
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

// SendMessageRequest represents a request to send a message
type SendMessageRequest struct {
	Content    string `json:"content"`
	ContentURL string `json:"content_url,omitempty"`
}

// SendMessageResponse represents the response after sending a message
type SendMessageResponse struct {
	RunID    string         `json:"run_id"`
	Stage1   []Stage1Result `json:"stage1"`
	Stage2   []Stage2Result `json:"stage2"`
	Stage3   Stage3Result   `json:"stage3"`
	Metadata Metadata       `json:"metadata"`
}

package model

import (
	"context"
	"encoding/json"
	"time"
)

// Role represents a chat message role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Difficulty represents an item difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Option is a single answer choice of an assessment item.
type Option struct {
	ID   string `json:"id" validate:"required,oneof=A B C D"`
	Text string `json:"text" validate:"required"`
}

// Feedback is shown to the learner after answering an item.
type Feedback struct {
	Correct     string `json:"correct" validate:"required"`
	Incorrect   string `json:"incorrect" validate:"required"`
	Explanation string `json:"explanation" validate:"required"`
}

// Item is a single multiple-choice assessment item. Items are read-only:
// they come from the embedded catalog or are synthesized by the LLM, and
// are never mutated after creation.
type Item struct {
	ID         string     `json:"id" validate:"required"`
	Topic      string     `json:"topic" validate:"required"`
	Difficulty Difficulty `json:"difficulty" validate:"required,oneof=easy medium hard"`
	SkillPath  []string   `json:"skill_path,omitempty"`
	Stem       string     `json:"stem" validate:"required,min=5"`
	Code       string     `json:"code,omitempty"`
	Options    []Option   `json:"options" validate:"required,len=4,dive"`
	Correct    string     `json:"correct" validate:"required,oneof=A B C D"`
	Feedback   Feedback   `json:"feedback"`
	Tags       []string   `json:"tags,omitempty"`
}

// ArtifactType classifies an artifact's content.
type ArtifactType string

const (
	ArtifactCode     ArtifactType = "code"
	ArtifactHTML     ArtifactType = "html"
	ArtifactReact    ArtifactType = "react"
	ArtifactSVG      ArtifactType = "svg"
	ArtifactMermaid  ArtifactType = "mermaid"
	ArtifactMarkdown ArtifactType = "markdown"
)

// Artifact is a titled, typed content payload extracted from an assistant
// turn. Artifacts are ephemeral: they live only as long as the owning message.
type Artifact struct {
	ID       string       `json:"id" validate:"required"`
	Type     ArtifactType `json:"type" validate:"required,oneof=code html react svg mermaid markdown"`
	Title    string       `json:"title" validate:"required"`
	Language string       `json:"language,omitempty" validate:"omitempty,oneof=javascript typescript jsx tsx html css json python sql bash markdown yaml xml svg"`
	Content  string       `json:"content"`
}

// ResearchLink is an inline reference embedded in assistant prose.
type ResearchLink struct {
	Term    string `json:"term" validate:"required"`
	Display string `json:"display"`
	URL     string `json:"url,omitempty"`
}

// ChatMessage is one turn of the client-visible conversation.
type ChatMessage struct {
	Role    Role   `json:"role" validate:"required,oneof=user assistant"`
	Content string `json:"content" validate:"required"`
}

// ResponseRecord logs a single answer event. Records are append-only and
// immutable; IsCorrect is derived, never client-supplied.
type ResponseRecord struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	ItemID    string    `json:"item_id"`
	Selected  string    `json:"selected"`
	Correct   string    `json:"correct"`
	IsCorrect bool      `json:"is_correct"`
	LatencyMS int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

// NewResponseRecord derives a record from an answer event. The IsCorrect
// invariant (selected == correct) holds by construction.
func NewResponseRecord(sessionID, itemID, selected, correct string, latencyMS int64) ResponseRecord {
	return ResponseRecord{
		SessionID: sessionID,
		ItemID:    itemID,
		Selected:  selected,
		Correct:   correct,
		IsCorrect: selected == correct,
		LatencyMS: latencyMS,
	}
}

// GeneratedItem logs an LLM-synthesized item for later review.
type GeneratedItem struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	ItemID    string          `json:"item_id"`
	Data      json.RawMessage `json:"item_data"`
	CreatedAt time.Time       `json:"created_at"`
}

// SkillProgress tracks per-skill answer counts in a learner profile.
type SkillProgress struct {
	QuestionsAnswered int    `json:"questionsAnswered"`
	CorrectAnswers    int    `json:"correctAnswers"`
	LastAttempt       string `json:"lastAttempt,omitempty"`
}

// LearnerProfile stores discovered context about the learner.
type LearnerProfile struct {
	ID              string                   `json:"id"`
	Name            string                   `json:"name,omitempty"`
	Goals           []string                 `json:"goals,omitempty"`
	Interests       []string                 `json:"interests,omitempty"`
	ExperienceLevel string                   `json:"experienceLevel,omitempty"`
	Aspirations     string                   `json:"aspirations,omitempty"`
	SkillProgress   map[string]SkillProgress `json:"skillProgress,omitempty"`
}

// StoredMessage is a persisted conversation message.
type StoredMessage struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	MCQItemID string `json:"mcqItemId,omitempty"`
}

// Conversation is a persisted conversation thread.
type Conversation struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Timestamp string          `json:"timestamp"`
	Messages  []StoredMessage `json:"messages"`
}

// SessionContext is the single JSON document persisted per session. The
// server treats it as mostly opaque; only learnerProfile feeds analytics.
type SessionContext struct {
	Version               int            `json:"version"`
	SessionID             string         `json:"sessionId"`
	LearnerProfile        LearnerProfile `json:"learnerProfile"`
	Conversations         []Conversation `json:"conversations"`
	CurrentConversationID string         `json:"currentConversationId,omitempty"`
	LearningModeEnabled   bool           `json:"learningModeEnabled"`
	UpdatedAt             string         `json:"updatedAt"`
}

// ResponseStats summarizes logged answer events.
type ResponseStats struct {
	TotalResponses   int     `json:"total_responses"`
	CorrectResponses int     `json:"correct_responses"`
	AccuracyPercent  float64 `json:"accuracy_percent"`
	GeneratedItems   int     `json:"generated_items_count"`
}

// ChatConfig holds runtime chat parameters set via CLI flags.
type ChatConfig struct {
	MaxToolRounds int    // defensive cap on tool round-trips per turn
	PromptVariant string // system prompt variant (full, plain)
}

type sessionCtxKey struct{}

// ContextWithSessionID stores the chat session ID in the request context.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, id)
}

// SessionIDFromContext retrieves the session ID from context (empty if unset).
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionCtxKey{}).(string)
	return id
}

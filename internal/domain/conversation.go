// Package domain contains core domain types for the reflection service.
package domain

import (
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser marks a message written by the person reflecting.
	RoleUser Role = "user"
	// RoleAssistant marks a message produced by the AI guide.
	RoleAssistant Role = "assistant"
)

const (
	// MaxProgress is the upper bound of a conversation's progress percentage.
	MaxProgress = 100
	// DefaultProgressStep is applied when the responder does not report progress.
	DefaultProgressStep = 20
)

// Message is a single entry of a conversation log.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation holds the reflection state for one session.
type Conversation struct {
	ID                 int64     `json:"id"`
	SessionID          string    `json:"sessionId"`
	Messages           []Message `json:"messages"`
	CurrentStep        int       `json:"currentStep"`
	ProgressPercentage int       `json:"progressPercentage"`
	SelectedVerseID    *int64    `json:"selectedVerseId"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// NewConversation returns an empty conversation for sessionID.
func NewConversation(sessionID string, now time.Time) *Conversation {
	return &Conversation{
		SessionID: sessionID,
		Messages:  []Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// HasVerse reports whether a verse has been resolved for the conversation.
func (c *Conversation) HasVerse() bool {
	return c.SelectedVerseID != nil
}

// Clone returns a deep copy so callers can mutate it without touching stored state.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Messages = append([]Message(nil), c.Messages...)
	if cp.Messages == nil {
		cp.Messages = []Message{}
	}
	if c.SelectedVerseID != nil {
		id := *c.SelectedVerseID
		cp.SelectedVerseID = &id
	}
	return &cp
}

// Apply merges a patch into the conversation. Nil fields are left unchanged;
// Messages replaces the whole log.
func (c *Conversation) Apply(p ConversationPatch, now time.Time) {
	if p.Messages != nil {
		c.Messages = append([]Message(nil), (*p.Messages)...)
	}
	if p.CurrentStep != nil {
		c.CurrentStep = max(*p.CurrentStep, 0)
	}
	if p.ProgressPercentage != nil {
		c.ProgressPercentage = ClampProgress(*p.ProgressPercentage)
	}
	if p.SelectedVerseID != nil {
		id := *p.SelectedVerseID
		c.SelectedVerseID = &id
	}
	c.UpdatedAt = now
}

// ConversationPatch lists the fields an update may change.
type ConversationPatch struct {
	Messages           *[]Message
	CurrentStep        *int
	ProgressPercentage *int
	SelectedVerseID    *int64
}

// ClampProgress bounds a progress value to [0, MaxProgress].
func ClampProgress(p int) int {
	return min(max(p, 0), MaxProgress)
}

// NextProgress returns the progress after a turn. A reported value wins
// (clamped); otherwise the current value advances by DefaultProgressStep.
func NextProgress(current int, reported *int) int {
	if reported != nil {
		return ClampProgress(*reported)
	}
	return ClampProgress(current + DefaultProgressStep)
}

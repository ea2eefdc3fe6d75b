// Package reflection orchestrates guided reflection turns.
package reflection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/gita-reflect/internal/agent"
	"github.com/ashureev/gita-reflect/internal/domain"
	"github.com/ashureev/gita-reflect/internal/identity"
	"github.com/ashureev/gita-reflect/internal/shared"
	"github.com/ashureev/gita-reflect/internal/store"
)

// TurnResult is the outcome of a successful turn.
type TurnResult struct {
	Conversation *domain.Conversation
	Reply        *agent.Reply
	Verse        *domain.Verse // verse surfaced by this turn, if any
}

// Options configures a Service.
type Options struct {
	// VerseOverwrite lets a later turn replace an already selected verse.
	VerseOverwrite bool
	Transcripts    agent.ConversationLogger
	Metrics        *Metrics
	Clock          func() time.Time
}

// Service runs the conversation state machine.
type Service struct {
	conversations  store.ConversationStore
	verses         store.VerseRepository
	responder      agent.Responder
	transcripts    agent.ConversationLogger
	metrics        *Metrics
	locks          *sessionLocks
	verseOverwrite bool
	now            func() time.Time
}

// NewService creates an orchestrator over the given stores and responder.
func NewService(conversations store.ConversationStore, verses store.VerseRepository, responder agent.Responder, opts Options) *Service {
	s := &Service{
		conversations:  conversations,
		verses:         verses,
		responder:      responder,
		transcripts:    opts.Transcripts,
		metrics:        opts.Metrics,
		locks:          newSessionLocks(),
		verseOverwrite: opts.VerseOverwrite,
		now:            opts.Clock,
	}
	if s.transcripts == nil {
		s.transcripts, _ = agent.NewConversationLogger(agent.ConversationLogConfig{}, nil)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Start returns the conversation for sessionID, creating it if needed. An
// empty id is replaced by a generated one.
func (s *Service) Start(ctx context.Context, sessionID string) (*domain.Conversation, error) {
	id, err := identity.NormalizeSessionID(sessionID)
	if err != nil {
		return nil, err
	}
	conv, err := s.conversations.CreateConversation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("start conversation: %w", err)
	}
	return conv, nil
}

// Get returns the conversation for sessionID.
func (s *Service) Get(ctx context.Context, sessionID string) (*domain.Conversation, error) {
	if !identity.IsValidSessionID(sessionID) {
		return nil, shared.NotFound("conversation %q", sessionID)
	}
	return s.conversations.GetConversation(ctx, sessionID)
}

// SubmitMessage runs one turn: the user message and the assistant reply are
// appended, progress advances and a verse may be resolved. State is written
// once, after the responder and verse search have succeeded.
func (s *Service) SubmitMessage(ctx context.Context, sessionID, text string) (*TurnResult, error) {
	res, err := s.submit(ctx, sessionID, text)
	s.metrics.turn(outcome(err))
	return res, err
}

func (s *Service) submit(ctx context.Context, sessionID, text string) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, shared.InvalidInput("message cannot be empty")
	}

	unlock, err := s.locks.lock(ctx, sessionID)
	if err != nil {
		return nil, shared.ProcessingFailed(fmt.Errorf("waiting for session lock: %w", err))
	}
	defer unlock()

	conv, err := s.conversations.GetConversation(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	logger := slog.With("session_id", sessionID, "step", conv.CurrentStep)

	messages := append(conv.Messages, domain.Message{
		Role:      domain.RoleUser,
		Content:   text,
		Timestamp: s.now(),
	})
	s.transcripts.Log(agent.ConversationLogEvent{
		SessionID:  sessionID,
		Direction:  "inbound",
		EventType:  "user_message",
		ContentRaw: text,
	})

	start := time.Now()
	reply, err := s.responder.Respond(ctx, messages)
	s.metrics.observeResponder(time.Since(start).Seconds())
	if err != nil {
		logger.Error("responder failed", "responder", s.responder.Name(), "error", err)
		return nil, shared.ProcessingFailed(err)
	}

	messages = append(messages, domain.Message{
		Role:      domain.RoleAssistant,
		Content:   reply.Message,
		Timestamp: s.now(),
	})
	step := conv.CurrentStep + 1
	progress := domain.NextProgress(conv.ProgressPercentage, reply.Progress)
	patch := domain.ConversationPatch{
		Messages:           &messages,
		CurrentStep:        &step,
		ProgressPercentage: &progress,
	}

	var verse *domain.Verse
	if reply.ShouldShowVerse && reply.VerseQuery != "" {
		found, err := s.verses.SearchVerses(ctx, reply.VerseQuery)
		if err != nil {
			logger.Error("verse search failed", "query", reply.VerseQuery, "error", err)
			return nil, shared.StorageUnavailable(err)
		}
		if len(found) > 0 {
			verse = &found[0]
			if !conv.HasVerse() || s.verseOverwrite {
				patch.SelectedVerseID = &verse.ID
			}
		} else {
			logger.Info("no verse matched query", "query", reply.VerseQuery)
		}
	}

	updated, err := s.conversations.UpdateConversation(ctx, sessionID, patch)
	if err != nil {
		logger.Error("failed to persist turn", "error", err)
		return nil, err
	}

	meta := map[string]any{"step": updated.CurrentStep, "progress": updated.ProgressPercentage}
	if verse != nil {
		meta["verse_id"] = verse.ID
		s.metrics.verseResolved()
	}
	s.transcripts.Log(agent.ConversationLogEvent{
		SessionID:  sessionID,
		Direction:  "outbound",
		EventType:  "assistant_message",
		ContentRaw: reply.Message,
		Meta:       meta,
	})

	return &TurnResult{Conversation: updated, Reply: reply, Verse: verse}, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, shared.ErrInvalidInput):
		return OutcomeInvalidInput
	case errors.Is(err, shared.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, shared.ErrStorageUnavailable):
		return OutcomeStorageError
	default:
		return OutcomeResponderError
	}
}

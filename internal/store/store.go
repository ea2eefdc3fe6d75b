// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/gita-reflect/internal/domain"
	"github.com/ashureev/gita-reflect/internal/shared"
)

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// ConversationStore persists per-session conversation state.
type ConversationStore interface {
	// CreateConversation creates the conversation for sessionID, or returns
	// the existing one if the session already has a conversation.
	CreateConversation(ctx context.Context, sessionID string) (*domain.Conversation, error)

	// GetConversation returns the conversation for sessionID or a NotFound error.
	GetConversation(ctx context.Context, sessionID string) (*domain.Conversation, error)

	// UpdateConversation merges patch into the stored conversation and returns
	// the result. It never creates a conversation.
	UpdateConversation(ctx context.Context, sessionID string, patch domain.ConversationPatch) (*domain.Conversation, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the backing store.
	Close() error
}

// VerseRepository is the read-only source of chapters and verses.
type VerseRepository interface {
	// GetVerse returns a verse by id or a NotFound error.
	GetVerse(ctx context.Context, id int64) (*domain.Verse, error)

	// GetChapter returns a chapter by id or a NotFound error.
	GetChapter(ctx context.Context, id int64) (*domain.Chapter, error)

	// ListChapters returns all chapters ordered by chapter number.
	ListChapters(ctx context.Context) ([]domain.Chapter, error)

	// ListVersesByChapter returns the verses of a chapter ordered by verse number.
	ListVersesByChapter(ctx context.Context, chapterID int64) ([]domain.Verse, error)

	// SearchVerses matches query case-insensitively against translation,
	// transliteration and purport. Results are ordered by id; a blank query
	// matches nothing.
	SearchVerses(ctx context.Context, query string) ([]domain.Verse, error)
}

// Options selects and configures the storage backend.
type Options struct {
	Driver        string
	DBPath        string
	AllowFallback bool
}

// InitResult is the outcome of opening storage. Fallback is set when the
// durable driver failed and the in-memory store took over.
type InitResult struct {
	Conversations  ConversationStore
	Verses         VerseRepository
	Driver         string
	Fallback       bool
	FallbackReason error
}

// Close releases the selected backend.
func (r *InitResult) Close() error {
	if r == nil || r.Conversations == nil {
		return nil
	}
	return r.Conversations.Close()
}

// Open initializes storage for opts. The fallback decision is made once here
// and logged; it is never taken silently.
func Open(ctx context.Context, opts Options) (*InitResult, error) {
	switch opts.Driver {
	case DriverMemory:
		mem, err := NewMemory()
		if err != nil {
			return nil, err
		}
		return &InitResult{Conversations: mem, Verses: mem, Driver: DriverMemory}, nil
	case DriverSQLite, "":
	default:
		return nil, shared.InvalidInput("unknown storage driver %q", opts.Driver)
	}

	db, err := NewSQLite(ctx, opts.DBPath)
	if err == nil {
		return &InitResult{Conversations: db, Verses: db, Driver: DriverSQLite}, nil
	}
	if !opts.AllowFallback {
		return nil, shared.StorageUnavailable(fmt.Errorf("open sqlite store: %w", err))
	}

	slog.Warn("Durable store unavailable, falling back to in-memory storage",
		"db_path", opts.DBPath,
		"error", err)

	mem, memErr := NewMemory()
	if memErr != nil {
		return nil, errors.Join(err, memErr)
	}
	return &InitResult{
		Conversations:  mem,
		Verses:         mem,
		Driver:         DriverMemory,
		Fallback:       true,
		FallbackReason: err,
	}, nil
}

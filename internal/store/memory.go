package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/gita-reflect/internal/domain"
	"github.com/ashureev/gita-reflect/internal/shared"
)

// MemoryStore keeps conversations and the seeded verse dataset in process
// memory. State lives for the lifetime of the process.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*domain.Conversation
	nextConvID    int64

	chapters []domain.Chapter // ordered by chapter number
	verses   []domain.Verse   // ordered by id
}

// NewMemory creates an in-memory store loaded with the seed dataset.
func NewMemory() (*MemoryStore, error) {
	seed, err := loadSeed()
	if err != nil {
		return nil, err
	}

	s := &MemoryStore{conversations: make(map[string]*domain.Conversation)}

	chapterIDs := make(map[int]int64, len(seed.Chapters))
	for i, c := range seed.Chapters {
		id := int64(i + 1)
		chapterIDs[c.Number] = id
		s.chapters = append(s.chapters, domain.Chapter{
			ID:            id,
			ChapterNumber: c.Number,
			Title:         c.Title,
			Description:   c.Description,
		})
	}
	for i, v := range seed.Verses {
		s.verses = append(s.verses, domain.Verse{
			ID:              int64(i + 1),
			ChapterID:       chapterIDs[v.Chapter],
			VerseNumber:     v.Verse,
			Sanskrit:        v.Sanskrit,
			Transliteration: v.Transliteration,
			Translation:     v.Translation,
			Purport:         v.Purport,
			WordMeanings:    slices.Clone(v.WordMeanings),
		})
	}
	return s, nil
}

// CreateConversation creates or returns the conversation for sessionID.
func (s *MemoryStore) CreateConversation(_ context.Context, sessionID string) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.conversations[sessionID]; ok {
		return existing.Clone(), nil
	}

	s.nextConvID++
	conv := domain.NewConversation(sessionID, time.Now().UTC())
	conv.ID = s.nextConvID
	s.conversations[sessionID] = conv
	return conv.Clone(), nil
}

// GetConversation returns the conversation for sessionID.
func (s *MemoryStore) GetConversation(_ context.Context, sessionID string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[sessionID]
	if !ok {
		return nil, shared.NotFound("conversation %q", sessionID)
	}
	return conv.Clone(), nil
}

// UpdateConversation merges patch into the stored conversation.
func (s *MemoryStore) UpdateConversation(_ context.Context, sessionID string, patch domain.ConversationPatch) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[sessionID]
	if !ok {
		return nil, shared.NotFound("conversation %q", sessionID)
	}
	if patch.SelectedVerseID != nil && s.verseIndex(*patch.SelectedVerseID) < 0 {
		return nil, shared.InvalidInput("verse %d does not exist", *patch.SelectedVerseID)
	}
	conv.Apply(patch, time.Now().UTC())
	return conv.Clone(), nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// GetVerse returns a verse by id.
func (s *MemoryStore) GetVerse(_ context.Context, id int64) (*domain.Verse, error) {
	i := s.verseIndex(id)
	if i < 0 {
		return nil, shared.NotFound("verse %d", id)
	}
	v := cloneVerse(s.verses[i])
	return &v, nil
}

// GetChapter returns a chapter by id.
func (s *MemoryStore) GetChapter(_ context.Context, id int64) (*domain.Chapter, error) {
	for _, c := range s.chapters {
		if c.ID == id {
			cp := c
			return &cp, nil
		}
	}
	return nil, shared.NotFound("chapter %d", id)
}

// ListChapters returns all chapters ordered by chapter number.
func (s *MemoryStore) ListChapters(context.Context) ([]domain.Chapter, error) {
	return slices.Clone(s.chapters), nil
}

// ListVersesByChapter returns the verses of a chapter ordered by verse number.
func (s *MemoryStore) ListVersesByChapter(ctx context.Context, chapterID int64) ([]domain.Verse, error) {
	if _, err := s.GetChapter(ctx, chapterID); err != nil {
		return nil, err
	}
	out := []domain.Verse{}
	for _, v := range s.verses {
		if v.ChapterID == chapterID {
			out = append(out, cloneVerse(v))
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Verse) int {
		if a.VerseNumber != b.VerseNumber {
			return a.VerseNumber - b.VerseNumber
		}
		return int(a.ID - b.ID)
	})
	return out, nil
}

// SearchVerses matches query against translation, transliteration and purport.
func (s *MemoryStore) SearchVerses(_ context.Context, query string) ([]domain.Verse, error) {
	term := normalizeQuery(query)
	out := []domain.Verse{}
	if term == "" {
		return out, nil
	}
	for _, v := range s.verses {
		if strings.Contains(foldText(v.Translation), term) ||
			strings.Contains(foldText(v.Transliteration), term) ||
			strings.Contains(foldText(v.Purport), term) {
			out = append(out, cloneVerse(v))
		}
	}
	return out, nil
}

func (s *MemoryStore) verseIndex(id int64) int {
	return slices.IndexFunc(s.verses, func(v domain.Verse) bool { return v.ID == id })
}

func normalizeQuery(q string) string {
	return foldText(strings.TrimSpace(q))
}

// foldText is the case folding shared by both stores' verse search.
func foldText(s string) string {
	return strings.ToLower(s)
}

func cloneVerse(v domain.Verse) domain.Verse {
	v.WordMeanings = slices.Clone(v.WordMeanings)
	return v
}

package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/gita-reflect/internal/domain"
	"github.com/ashureev/gita-reflect/internal/shared"
	"modernc.org/sqlite"
)

func init() {
	// SQLite's lower() folds ASCII only; search must match the memory store.
	sqlite.MustRegisterDeterministicScalarFunction("fold_text", 1, foldTextSQL)
}

func foldTextSQL(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return "", nil
	case string:
		return foldText(v), nil
	case []byte:
		return foldText(string(v)), nil
	default:
		return nil, fmt.Errorf("fold_text: unsupported argument %T", v)
	}
}

// SQLiteStore implements ConversationStore and VerseRepository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at dbPath, applies the
// schema and seeds reference data on first use.
func NewSQLite(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New("database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrent readers; immediate transactions so read-modify-write
	// updates take the write lock up front.
	dsn := "file:" + dbPath +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	if err := store.seedIfEmpty(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("seed reference data: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS chapters (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chapter_number INTEGER NOT NULL UNIQUE,
		title TEXT NOT NULL,
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS verses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chapter_id INTEGER NOT NULL REFERENCES chapters(id),
		verse_number INTEGER NOT NULL,
		sanskrit TEXT NOT NULL,
		transliteration TEXT NOT NULL,
		translation TEXT NOT NULL,
		purport TEXT,
		word_meanings_json TEXT,
		UNIQUE(chapter_id, verse_number)
	);
	CREATE INDEX IF NOT EXISTS idx_verses_chapter ON verses(chapter_id, verse_number);

	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL UNIQUE,
		messages_json TEXT NOT NULL DEFAULT '[]',
		current_step INTEGER NOT NULL DEFAULT 0,
		progress_percentage INTEGER NOT NULL DEFAULT 0,
		selected_verse_id INTEGER REFERENCES verses(id),
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// seedIfEmpty loads the embedded dataset when the chapters table is empty.
func (s *SQLiteStore) seedIfEmpty(ctx context.Context) error {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chapters`).Scan(&count); err != nil {
		return fmt.Errorf("count chapters: %w", err)
	}
	if count > 0 {
		slog.Debug("Reference data present, skipping seed", "chapters", count)
		return nil
	}

	seed, err := loadSeed()
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	chapterIDs := make(map[int]int64, len(seed.Chapters))
	for _, c := range seed.Chapters {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO chapters (chapter_number, title, description) VALUES (?, ?, ?)`,
			c.Number, c.Title, nullString(c.Description))
		if err != nil {
			return fmt.Errorf("insert chapter %d: %w", c.Number, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("chapter %d id: %w", c.Number, err)
		}
		chapterIDs[c.Number] = id
	}

	for _, v := range seed.Verses {
		meanings, err := json.Marshal(v.WordMeanings)
		if err != nil {
			return fmt.Errorf("encode word meanings %d.%d: %w", v.Chapter, v.Verse, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO verses (chapter_id, verse_number, sanskrit, transliteration, translation, purport, word_meanings_json)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			chapterIDs[v.Chapter], v.Verse, v.Sanskrit, v.Transliteration, v.Translation,
			nullString(v.Purport), string(meanings),
		); err != nil {
			return fmt.Errorf("insert verse %d.%d: %w", v.Chapter, v.Verse, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	slog.Info("Seeded reference data", "chapters", len(seed.Chapters), "verses", len(seed.Verses))
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

const conversationColumns = `id, session_id, messages_json, current_step, progress_percentage,
	selected_verse_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*domain.Conversation, error) {
	var conv domain.Conversation
	var messagesJSON string
	var selected sql.NullInt64
	var createdAt, updatedAt int64

	if err := row.Scan(
		&conv.ID, &conv.SessionID, &messagesJSON, &conv.CurrentStep, &conv.ProgressPercentage,
		&selected, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(messagesJSON), &conv.Messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	if conv.Messages == nil {
		conv.Messages = []domain.Message{}
	}
	if selected.Valid {
		id := selected.Int64
		conv.SelectedVerseID = &id
	}
	conv.CreatedAt = time.Unix(createdAt, 0).UTC()
	conv.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &conv, nil
}

// CreateConversation creates the conversation for sessionID or returns the existing one.
func (s *SQLiteStore) CreateConversation(ctx context.Context, sessionID string) (*domain.Conversation, error) {
	return withRetry(ctx, "create conversation", func() (*domain.Conversation, error) {
		now := time.Now().Unix()
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO conversations (session_id, messages_json, current_step, progress_percentage, created_at, updated_at)
			VALUES (?, '[]', 0, 0, ?, ?)
			ON CONFLICT(session_id) DO NOTHING`,
			sessionID, now, now,
		); err != nil {
			return nil, fmt.Errorf("insert conversation: %w", err)
		}
		return s.getConversation(ctx, s.db, sessionID)
	})
}

// GetConversation returns the conversation for sessionID.
func (s *SQLiteStore) GetConversation(ctx context.Context, sessionID string) (*domain.Conversation, error) {
	conv, err := s.getConversation(ctx, s.db, sessionID)
	if err != nil {
		return nil, shared.StorageUnavailable(err)
	}
	return conv, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) getConversation(ctx context.Context, q queryer, sessionID string) (*domain.Conversation, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE session_id = ?`, sessionID)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NotFound("conversation %q", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation row: %w", err)
	}
	return conv, nil
}

// UpdateConversation merges patch into the stored conversation inside a
// single immediate transaction.
func (s *SQLiteStore) UpdateConversation(ctx context.Context, sessionID string, patch domain.ConversationPatch) (*domain.Conversation, error) {
	return withRetry(ctx, "update conversation", func() (*domain.Conversation, error) {
		return s.updateConversationOnce(ctx, sessionID, patch)
	})
}

func (s *SQLiteStore) updateConversationOnce(ctx context.Context, sessionID string, patch domain.ConversationPatch) (*domain.Conversation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	conv, err := s.getConversation(ctx, tx, sessionID)
	if err != nil {
		return nil, err
	}
	conv.Apply(patch, time.Now().UTC())

	messagesJSON, err := json.Marshal(conv.Messages)
	if err != nil {
		return nil, fmt.Errorf("encode messages: %w", err)
	}
	var selected any
	if conv.SelectedVerseID != nil {
		selected = *conv.SelectedVerseID
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE conversations
		SET messages_json = ?, current_step = ?, progress_percentage = ?, selected_verse_id = ?, updated_at = ?
		WHERE session_id = ?`,
		string(messagesJSON), conv.CurrentStep, conv.ProgressPercentage, selected,
		conv.UpdatedAt.Unix(), sessionID,
	)
	if shared.IsSQLiteConstraintError(err) {
		return nil, shared.InvalidInput("verse %d does not exist", *conv.SelectedVerseID)
	}
	if err != nil {
		return nil, fmt.Errorf("update conversation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	return conv, nil
}

const verseColumns = `id, chapter_id, verse_number, sanskrit, transliteration, translation,
	purport, word_meanings_json`

func scanVerse(row rowScanner) (*domain.Verse, error) {
	var v domain.Verse
	var purport, meanings sql.NullString
	if err := row.Scan(
		&v.ID, &v.ChapterID, &v.VerseNumber, &v.Sanskrit, &v.Transliteration, &v.Translation,
		&purport, &meanings,
	); err != nil {
		return nil, err
	}
	v.Purport = purport.String
	if meanings.Valid && meanings.String != "" {
		if err := json.Unmarshal([]byte(meanings.String), &v.WordMeanings); err != nil {
			return nil, fmt.Errorf("decode word meanings for verse %d: %w", v.ID, err)
		}
	}
	return &v, nil
}

// GetVerse returns a verse by id.
func (s *SQLiteStore) GetVerse(ctx context.Context, id int64) (*domain.Verse, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+verseColumns+` FROM verses WHERE id = ?`, id)
	v, err := scanVerse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NotFound("verse %d", id)
	}
	if err != nil {
		return nil, shared.StorageUnavailable(fmt.Errorf("scan verse row: %w", err))
	}
	return v, nil
}

// GetChapter returns a chapter by id.
func (s *SQLiteStore) GetChapter(ctx context.Context, id int64) (*domain.Chapter, error) {
	var c domain.Chapter
	var desc sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, chapter_number, title, description FROM chapters WHERE id = ?`, id,
	).Scan(&c.ID, &c.ChapterNumber, &c.Title, &desc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.NotFound("chapter %d", id)
	}
	if err != nil {
		return nil, shared.StorageUnavailable(fmt.Errorf("scan chapter row: %w", err))
	}
	c.Description = desc.String
	return &c, nil
}

// ListChapters returns all chapters ordered by chapter number.
func (s *SQLiteStore) ListChapters(ctx context.Context) ([]domain.Chapter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chapter_number, title, description FROM chapters ORDER BY chapter_number`)
	if err != nil {
		return nil, shared.StorageUnavailable(fmt.Errorf("query chapters: %w", err))
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close chapter rows", "error", closeErr)
		}
	}()

	chapters := []domain.Chapter{}
	for rows.Next() {
		var c domain.Chapter
		var desc sql.NullString
		if err := rows.Scan(&c.ID, &c.ChapterNumber, &c.Title, &desc); err != nil {
			return nil, shared.StorageUnavailable(fmt.Errorf("scan chapter row: %w", err))
		}
		c.Description = desc.String
		chapters = append(chapters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StorageUnavailable(fmt.Errorf("iterate chapters: %w", err))
	}
	return chapters, nil
}

// ListVersesByChapter returns the verses of a chapter ordered by verse number.
func (s *SQLiteStore) ListVersesByChapter(ctx context.Context, chapterID int64) ([]domain.Verse, error) {
	if _, err := s.GetChapter(ctx, chapterID); err != nil {
		return nil, err
	}
	return s.queryVerses(ctx,
		`SELECT `+verseColumns+` FROM verses WHERE chapter_id = ? ORDER BY verse_number, id`, chapterID)
}

// SearchVerses matches query against translation, transliteration and purport.
// instr is used instead of LIKE so '%' and '_' in the query match literally.
func (s *SQLiteStore) SearchVerses(ctx context.Context, query string) ([]domain.Verse, error) {
	term := normalizeQuery(query)
	if term == "" {
		return []domain.Verse{}, nil
	}
	return s.queryVerses(ctx, `
		SELECT `+verseColumns+` FROM verses
		WHERE instr(fold_text(translation), ?1) > 0
		   OR instr(fold_text(transliteration), ?1) > 0
		   OR instr(fold_text(purport), ?1) > 0
		ORDER BY id`, term)
}

func (s *SQLiteStore) queryVerses(ctx context.Context, query string, args ...any) ([]domain.Verse, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, shared.StorageUnavailable(fmt.Errorf("query verses: %w", err))
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close verse rows", "error", closeErr)
		}
	}()

	verses := []domain.Verse{}
	for rows.Next() {
		v, err := scanVerse(rows)
		if err != nil {
			return nil, shared.StorageUnavailable(fmt.Errorf("scan verse row: %w", err))
		}
		verses = append(verses, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.StorageUnavailable(fmt.Errorf("iterate verses: %w", err))
	}
	return verses, nil
}

func nullString(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/VINKAS7/ragchat/internal/model"
	"github.com/VINKAS7/ragchat/internal/util"
)

// =============================================================================
// TYPES
// =============================================================================

// ConversationMeta contains metadata for listing conversations.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	Collection   string    `json:"collection"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview"` // First user message, one line
}

// DefaultMaxConversations bounds the archive size.
const DefaultMaxConversations = 500

// =============================================================================
// ARCHIVE
// =============================================================================

// Archive is a SQLite-backed conversation archive. It is safe for
// concurrent use.
type Archive struct {
	db *sql.DB

	// MaxConversations limits stored conversations (0 = unlimited). The
	// least recently updated are removed first.
	MaxConversations int
}

// Open opens or creates the archive at path.
func Open(ctx context.Context, path string) (*Archive, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create archive directory: %w", err)
		}
	}

	// Per-connection pragmas go in the DSN so a recycled connection keeps them.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	// SQLite supports one writer; a single connection also keeps
	// :memory: databases alive across calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	a := &Archive{db: db, MaxConversations: DefaultMaxConversations}
	if err := a.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return a, nil
}

func (a *Archive) initSchema(ctx context.Context) error {
	var version int
	if err := a.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return err
	}
	if version > schemaVersion {
		return fmt.Errorf("archive schema version %d is newer than supported %d", version, schemaVersion)
	}
	if _, err := a.db.ExecContext(ctx, schema); err != nil {
		return err
	}
	_, err := a.db.ExecContext(ctx, "PRAGMA user_version = "+strconv.Itoa(schemaVersion))
	return err
}

// Close closes the database.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// =============================================================================
// SAVE OPERATIONS
// =============================================================================

// Save stores conv, replacing any earlier copy with the same ID. Empty
// conversations are not archived.
func (a *Archive) Save(ctx context.Context, conv *model.Conversation) error {
	if conv == nil || conv.ID == "" {
		return ErrInvalidConversation
	}
	if conv.IsEmpty() {
		return nil
	}

	now := time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = now
	}
	if conv.Title == "" {
		for _, msg := range conv.Messages {
			if msg.IsUser() {
				conv.Title = model.TitleFrom(msg.Text)
				break
			}
		}
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, title, model, collection, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			model = excluded.model,
			collection = excluded.collection,
			updated_at = excluded.updated_at`,
		conv.ID, conv.Title, conv.Model, conv.Collection,
		conv.CreatedAt.UnixNano(), conv.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", conv.ID); err != nil {
		return fmt.Errorf("failed to replace messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO messages (conversation_id, seq, role, text) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, msg := range conv.Messages {
		if _, err := stmt.ExecContext(ctx, conv.ID, i, string(msg.Role), msg.Text); err != nil {
			return fmt.Errorf("failed to save message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	if a.MaxConversations > 0 {
		return a.enforceLimit(ctx)
	}
	return nil
}

// enforceLimit removes the oldest conversations beyond MaxConversations.
func (a *Archive) enforceLimit(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, `
		DELETE FROM conversations WHERE id IN (
			SELECT id FROM conversations
			ORDER BY updated_at DESC
			LIMIT -1 OFFSET ?
		)`, a.MaxConversations)
	if err != nil {
		return fmt.Errorf("failed to enforce archive limit: %w", err)
	}
	return nil
}

// =============================================================================
// LOAD OPERATIONS
// =============================================================================

// Load retrieves a conversation by ID.
func (a *Archive) Load(ctx context.Context, id string) (*model.Conversation, error) {
	conv := &model.Conversation{ID: id}
	var created, updated int64

	err := a.db.QueryRowContext(ctx,
		"SELECT title, model, collection, created_at, updated_at FROM conversations WHERE id = ?", id).
		Scan(&conv.Title, &conv.Model, &conv.Collection, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	conv.CreatedAt = time.Unix(0, created)
	conv.UpdatedAt = time.Unix(0, updated)

	rows, err := a.db.QueryContext(ctx,
		"SELECT role, text FROM messages WHERE conversation_id = ? ORDER BY seq", id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	defer rows.Close()

	conv.Messages = make([]model.Message, 0)
	for rows.Next() {
		var role, text string
		if err := rows.Scan(&role, &text); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
		}
		conv.Messages = append(conv.Messages, model.Message{Role: model.Role(role), Text: text})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return conv, nil
}

// LoadByIndex loads a conversation by its position in List (0 = most recent).
func (a *Archive) LoadByIndex(ctx context.Context, index int) (*model.Conversation, error) {
	metas, err := a.List(ctx, index+1)
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(metas) {
		return nil, ErrConversationNotFound
	}
	return a.Load(ctx, metas[index].ID)
}

// =============================================================================
// LIST OPERATIONS
// =============================================================================

const metaQuery = `
	SELECT c.id, c.title, c.model, c.collection, c.created_at, c.updated_at,
		(SELECT COUNT(*) FROM messages m WHERE m.conversation_id = c.id),
		COALESCE((SELECT m.text FROM messages m
			WHERE m.conversation_id = c.id AND m.role = 'user'
			ORDER BY m.seq LIMIT 1), '')
	FROM conversations c`

// List returns archived conversations, most recent first. limit <= 0 means
// no limit.
func (a *Archive) List(ctx context.Context, limit int) ([]ConversationMeta, error) {
	if limit <= 0 {
		limit = -1
	}
	return a.queryMetas(ctx, metaQuery+" ORDER BY c.updated_at DESC LIMIT ?", limit)
}

// Search finds conversations whose title or any message contains query,
// case-insensitively. An empty query lists everything.
func (a *Archive) Search(ctx context.Context, query string) ([]ConversationMeta, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return a.List(ctx, 0)
	}
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	return a.queryMetas(ctx, metaQuery+`
		WHERE lower(c.title) LIKE ? ESCAPE '\'
			OR EXISTS (SELECT 1 FROM messages m
				WHERE m.conversation_id = c.id AND lower(m.text) LIKE ? ESCAPE '\')
		ORDER BY c.updated_at DESC`, pattern, pattern)
}

// Count returns the number of archived conversations.
func (a *Archive) Count(ctx context.Context) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations").Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return n, nil
}

func (a *Archive) queryMetas(ctx context.Context, query string, args ...any) ([]ConversationMeta, error) {
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	defer rows.Close()

	metas := make([]ConversationMeta, 0)
	for rows.Next() {
		var m ConversationMeta
		var created, updated int64
		if err := rows.Scan(&m.ID, &m.Title, &m.Model, &m.Collection, &created, &updated, &m.MessageCount, &m.Preview); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
		}
		m.CreatedAt = time.Unix(0, created)
		m.UpdatedAt = time.Unix(0, updated)
		m.Preview = util.TruncateRunes(util.OneLine(m.Preview), 80)
		metas = append(metas, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return metas, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// =============================================================================
// DELETE OPERATIONS
// =============================================================================

// Delete removes a conversation by ID.
func (a *Archive) Delete(ctx context.Context, id string) error {
	res, err := a.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// Clear removes all archived conversations.
func (a *Archive) Clear(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, "DELETE FROM conversations"); err != nil {
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}
	return nil
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrConversationNotFound is returned when a conversation doesn't exist.
	ErrConversationNotFound = &ConversationError{Message: "conversation not found"}

	// ErrInvalidConversation is returned when saving a conversation without an ID.
	ErrInvalidConversation = &ConversationError{Message: "conversation has no id"}

	// ErrDatabase wraps driver failures.
	ErrDatabase = errors.New("archive database error")
)

// ConversationError represents a conversation-related error.
// It can be compared using errors.Is.
type ConversationError struct {
	Message string
}

// Error implements the error interface.
func (e *ConversationError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing conversation errors.
func (e *ConversationError) Is(target error) bool {
	t, ok := target.(*ConversationError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// LIST FORMATTING
// =============================================================================

// FormatList formats conversations as a fixed-width table.
func FormatList(metas []ConversationMeta) string {
	if len(metas) == 0 {
		return "No archived conversations."
	}

	var sb strings.Builder
	sb.WriteString(util.PadRight("ID", 36) + "  " + util.PadRight("Updated", 16) + "  " +
		util.PadRight("Msgs", 4) + "  Title\n")

	for _, m := range metas {
		sb.WriteString(util.PadRight(m.ID, 36) + "  " +
			util.PadRight(m.UpdatedAt.Format("2006-01-02 15:04"), 16) + "  " +
			util.PadRight(strconv.Itoa(m.MessageCount), 4) + "  " +
			util.TruncateWidth(m.Title, 40) + "\n")
	}
	return sb.String()
}

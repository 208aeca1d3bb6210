// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/rigchat/internal/api"
	"github.com/jeranaias/rigchat/internal/model"
)

// Errors returned by Store.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Context defaults for new chats when the request leaves them unset.
const (
	DefaultWindowSize = 10
	MaxListLimit      = 1000
)

// Store is a SQLite-backed chat and model store. It is safe for concurrent
// use; SQLite serializes writers.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time. A single connection also
	// keeps an in-memory database alive for the life of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return err
	}
	_, err := s.db.Exec(InitMetadata)
	return err
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) stamp() int64 {
	return s.now().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// =============================================================================
// CHATS
// =============================================================================

const chatColumns = `id, url, title, config_id, enable_context, context_window_size,
	enable_context_summary, context_summary, context_settings, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanChat(row scanner) (api.ChatRecord, error) {
	var (
		r        api.ChatRecord
		summary  sql.NullString
		settings string
		created  int64
		updated  int64
	)
	err := row.Scan(&r.ID, &r.URL, &r.Title, &r.ConfigID, &r.EnableContext, &r.ContextWindowSize,
		&r.EnableContextSummary, &summary, &settings, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return api.ChatRecord{}, ErrNotFound
		}
		return api.ChatRecord{}, err
	}
	if summary.Valid {
		r.ContextSummary = &summary.String
	}
	if settings != "" {
		if err := json.Unmarshal([]byte(settings), &r.ContextSettings); err != nil {
			return api.ChatRecord{}, fmt.Errorf("chat %d: bad context settings: %w", r.ID, err)
		}
	}
	r.CreatedAt = fromMillis(created)
	r.UpdatedAt = fromMillis(updated)
	return r, nil
}

// CreateChat stores a new chat with a fresh URL slug.
func (s *Store) CreateChat(ctx context.Context, c api.ChatCreate) (api.ChatRecord, error) {
	if strings.TrimSpace(c.Title) == "" {
		return api.ChatRecord{}, fmt.Errorf("%w: empty title", ErrInvalidInput)
	}

	cs := c.ContextSettings.Clone()
	enableContext := true
	if cs.EnableContext != nil {
		enableContext = *cs.EnableContext
	}
	window := DefaultWindowSize
	if cs.WindowSize != nil {
		window = *cs.WindowSize
	}
	enableSummary := true
	if cs.EnableSummary != nil {
		enableSummary = *cs.EnableSummary
	}
	settings, err := json.Marshal(cs)
	if err != nil {
		return api.ChatRecord{}, err
	}

	now := s.stamp()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (url, title, config_id, enable_context, context_window_size,
			enable_context_summary, context_settings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), c.Title, c.ConfigID, enableContext, window, enableSummary, string(settings), now, now)
	if err != nil {
		return api.ChatRecord{}, fmt.Errorf("create chat: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return api.ChatRecord{}, err
	}
	return s.GetChat(ctx, id)
}

// GetChat loads a chat by id.
func (s *Store) GetChat(ctx context.Context, id int64) (api.ChatRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = ?`, id)
	return scanChat(row)
}

// GetChatByURL loads a chat by its URL slug.
func (s *Store) GetChatByURL(ctx context.Context, url string) (api.ChatRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats WHERE url = ?`, url)
	return scanChat(row)
}

// ListChats returns one page of chats, most recently updated first.
// configID 0 lists chats for every model.
func (s *Store) ListChats(ctx context.Context, skip, limit int, configID int64) (api.ChatList, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 || limit > MaxListLimit {
		limit = MaxListLimit
	}

	where, args := "", []any{}
	if configID != 0 {
		where, args = " WHERE config_id = ?", append(args, configID)
	}

	list := api.ChatList{Chats: []api.ChatRecord{}, Skip: skip, Limit: limit}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats`+where, args...).Scan(&list.Total); err != nil {
		return api.ChatList{}, fmt.Errorf("count chats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chatColumns+` FROM chats`+where+` ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, limit, skip)...)
	if err != nil {
		return api.ChatList{}, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanChat(rows)
		if err != nil {
			return api.ChatList{}, err
		}
		list.Chats = append(list.Chats, r)
	}
	return list, rows.Err()
}

// UpdateChat applies u to the chat and bumps updated_at.
func (s *Store) UpdateChat(ctx context.Context, id int64, u api.ChatUpdate) (api.ChatRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return api.ChatRecord{}, err
	}
	defer tx.Rollback()

	r, err := scanChat(tx.QueryRowContext(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = ?`, id))
	if err != nil {
		return api.ChatRecord{}, err
	}

	if u.Title != nil {
		if strings.TrimSpace(*u.Title) == "" {
			return api.ChatRecord{}, fmt.Errorf("%w: empty title", ErrInvalidInput)
		}
		r.Title = *u.Title
	}
	if u.EnableContext != nil {
		r.EnableContext = *u.EnableContext
	}
	if u.ContextWindowSize != nil {
		r.ContextWindowSize = *u.ContextWindowSize
	}
	if u.EnableContextSummary != nil {
		r.EnableContextSummary = *u.EnableContextSummary
	}
	if u.ContextSummary != nil {
		r.ContextSummary = u.ContextSummary
	}
	if u.ContextSettings != nil {
		r.ContextSettings = mergeSettings(r.ContextSettings, *u.ContextSettings)
	}

	settings, err := json.Marshal(r.ContextSettings)
	if err != nil {
		return api.ChatRecord{}, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE chats SET title = ?, enable_context = ?, context_window_size = ?,
			enable_context_summary = ?, context_summary = ?, context_settings = ?, updated_at = ?
		WHERE id = ?`,
		r.Title, r.EnableContext, r.ContextWindowSize, r.EnableContextSummary,
		nullString(r.ContextSummary), string(settings), s.stamp(), id)
	if err != nil {
		return api.ChatRecord{}, fmt.Errorf("update chat: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return api.ChatRecord{}, err
	}
	return s.GetChat(ctx, id)
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

// mergeSettings overlays the set fields of top onto base.
func mergeSettings(base, top model.ContextSettings) model.ContextSettings {
	out := base.Clone()
	t := top.Clone()
	if t.EnableContext != nil {
		out.EnableContext = t.EnableContext
	}
	if t.WindowSize != nil {
		out.WindowSize = t.WindowSize
	}
	if t.EnableSummary != nil {
		out.EnableSummary = t.EnableSummary
	}
	if t.SmartSelection != nil {
		out.SmartSelection = t.SmartSelection
	}
	if t.KeywordFiltering != nil {
		out.KeywordFiltering = t.KeywordFiltering
	}
	if t.MaxSummaryLength != nil {
		out.MaxSummaryLength = t.MaxSummaryLength
	}
	return out
}

// DeleteChat removes a chat and its messages.
func (s *Store) DeleteChat(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete chat: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// =============================================================================
// MESSAGES
// =============================================================================

// AddMessage appends a message to a chat and bumps the chat's updated_at.
func (s *Store) AddMessage(ctx context.Context, chatID int64, m api.MessageCreate) (api.MessageRecord, error) {
	if !m.Role.Valid() {
		return api.MessageRecord{}, fmt.Errorf("%w: role %q", ErrInvalidInput, m.Role)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return api.MessageRecord{}, err
	}
	defer tx.Rollback()

	now := s.stamp()
	res, err := tx.ExecContext(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, now, chatID)
	if err != nil {
		return api.MessageRecord{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return api.MessageRecord{}, ErrNotFound
	}

	res, err = tx.ExecContext(ctx,
		`INSERT INTO messages (chat_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		chatID, string(m.Role), m.Content, now)
	if err != nil {
		return api.MessageRecord{}, fmt.Errorf("add message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return api.MessageRecord{}, err
	}
	if err := tx.Commit(); err != nil {
		return api.MessageRecord{}, err
	}

	return api.MessageRecord{
		ID:        id,
		ChatID:    chatID,
		Role:      m.Role,
		Content:   m.Content,
		CreatedAt: fromMillis(now),
	}, nil
}

// Messages returns a chat's messages in insertion order.
func (s *Store) Messages(ctx context.Context, chatID int64) ([]api.MessageRecord, error) {
	if _, err := s.GetChat(ctx, chatID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, role, content, created_at FROM messages WHERE chat_id = ? ORDER BY id`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := []api.MessageRecord{}
	for rows.Next() {
		var (
			m       api.MessageRecord
			role    string
			created int64
		)
		if err := rows.Scan(&m.ID, &m.ChatID, &role, &m.Content, &created); err != nil {
			return nil, err
		}
		m.Role = model.Role(role)
		m.CreatedAt = fromMillis(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

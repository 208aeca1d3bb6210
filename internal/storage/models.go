// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jeranaias/rigchat/internal/api"
)

// =============================================================================
// MODEL REGISTRY
// =============================================================================

const modelColumns = `id, name, base_url, api_key, model_name, description, is_active,
	enable_streaming, enable_context, temperature, max_tokens, top_p,
	frequency_penalty, presence_penalty, created_at, updated_at`

func scanModel(row scanner) (api.ModelRecord, error) {
	var (
		m         api.ModelRecord
		maxTokens sql.NullInt64
		created   int64
		updated   sql.NullInt64
	)
	err := row.Scan(&m.ID, &m.Name, &m.BaseURL, &m.APIKey, &m.ModelName, &m.Description, &m.IsActive,
		&m.EnableStreaming, &m.EnableContext, &m.Temperature, &maxTokens, &m.TopP,
		&m.FrequencyPenalty, &m.PresencePenalty, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return api.ModelRecord{}, ErrNotFound
		}
		return api.ModelRecord{}, err
	}
	if maxTokens.Valid {
		n := int(maxTokens.Int64)
		m.MaxTokens = &n
	}
	m.CreatedAt = fromMillis(created)
	if updated.Valid {
		t := fromMillis(updated.Int64)
		m.UpdatedAt = &t
	}
	return m, nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

// CreateModel registers a model. ID and timestamps in m are ignored.
func (s *Store) CreateModel(ctx context.Context, m api.ModelRecord) (api.ModelRecord, error) {
	if strings.TrimSpace(m.Name) == "" || strings.TrimSpace(m.ModelName) == "" {
		return api.ModelRecord{}, fmt.Errorf("%w: name and model_name are required", ErrInvalidInput)
	}
	if err := validateModel(m); err != nil {
		return api.ModelRecord{}, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO models (name, base_url, api_key, model_name, description, is_active,
			enable_streaming, enable_context, temperature, max_tokens, top_p,
			frequency_penalty, presence_penalty, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Name, strings.TrimRight(m.BaseURL, "/"), m.APIKey, m.ModelName, m.Description, m.IsActive,
		m.EnableStreaming, m.EnableContext, m.Temperature, nullInt(m.MaxTokens), m.TopP,
		m.FrequencyPenalty, m.PresencePenalty, s.stamp())
	if err != nil {
		return api.ModelRecord{}, fmt.Errorf("create model: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return api.ModelRecord{}, err
	}
	return s.GetModel(ctx, id)
}

// GetModel loads a model by id.
func (s *Store) GetModel(ctx context.Context, id int64) (api.ModelRecord, error) {
	return scanModel(s.db.QueryRowContext(ctx, `SELECT `+modelColumns+` FROM models WHERE id = ?`, id))
}

// ListModels returns every model in id order, or only the active ones.
func (s *Store) ListModels(ctx context.Context, activeOnly bool) (api.ModelList, error) {
	query := `SELECT ` + modelColumns + ` FROM models`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY id`)
	if err != nil {
		return api.ModelList{}, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	list := api.ModelList{Models: []api.ModelRecord{}}
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return api.ModelList{}, err
		}
		list.Models = append(list.Models, m)
		if m.IsActive {
			list.ActiveCount++
		}
	}
	list.Total = len(list.Models)
	return list, rows.Err()
}

// UpdateModelSettings applies u to a model.
func (s *Store) UpdateModelSettings(ctx context.Context, id int64, u api.ModelSettingsUpdate) (api.ModelRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return api.ModelRecord{}, err
	}
	defer tx.Rollback()

	m, err := scanModel(tx.QueryRowContext(ctx, `SELECT `+modelColumns+` FROM models WHERE id = ?`, id))
	if err != nil {
		return api.ModelRecord{}, err
	}
	u.Apply(&m)
	if err := validateModel(m); err != nil {
		return api.ModelRecord{}, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE models SET is_active = ?, enable_streaming = ?, enable_context = ?, temperature = ?,
			max_tokens = ?, top_p = ?, frequency_penalty = ?, presence_penalty = ?, updated_at = ?
		WHERE id = ?`,
		m.IsActive, m.EnableStreaming, m.EnableContext, m.Temperature,
		nullInt(m.MaxTokens), m.TopP, m.FrequencyPenalty, m.PresencePenalty, s.stamp(), id)
	if err != nil {
		return api.ModelRecord{}, fmt.Errorf("update model: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return api.ModelRecord{}, err
	}
	return s.GetModel(ctx, id)
}

// DeleteModel removes a model. Chats that reference it are kept.
func (s *Store) DeleteModel(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM models WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete model: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// validateModel enforces the sampling ranges the backend accepts.
func validateModel(m api.ModelRecord) error {
	switch {
	case m.Temperature < 0 || m.Temperature > 2:
		return fmt.Errorf("%w: temperature must be within [0, 2]", ErrInvalidInput)
	case m.TopP < 0 || m.TopP > 1:
		return fmt.Errorf("%w: top_p must be within [0, 1]", ErrInvalidInput)
	case m.FrequencyPenalty < -2 || m.FrequencyPenalty > 2:
		return fmt.Errorf("%w: frequency_penalty must be within [-2, 2]", ErrInvalidInput)
	case m.PresencePenalty < -2 || m.PresencePenalty > 2:
		return fmt.Errorf("%w: presence_penalty must be within [-2, 2]", ErrInvalidInput)
	case m.MaxTokens != nil && *m.MaxTokens < 1:
		return fmt.Errorf("%w: max_tokens must be positive", ErrInvalidInput)
	}
	return nil
}

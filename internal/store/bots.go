package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Bot is a bot configuration document keyed by its Discord id.
type Bot struct {
	ID        string          `json:"id"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// GetBot returns the bot document for id, or ErrNotFound.
func (s *Store) GetBot(ctx context.Context, id string) (*Bot, error) {
	var (
		bot     Bot
		data    string
		updated string
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT id, data, updated_at FROM bots WHERE id = ?`, id).Scan(&bot.ID, &data, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable("query bot", err)
	}

	bot.Data = json.RawMessage(data)
	if bot.UpdatedAt, err = time.Parse(time.RFC3339, updated); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at timestamp: %w", err)
	}

	return &bot, nil
}

// PutBot replaces the bot document for id. data must be a JSON object.
func (s *Store) PutBot(ctx context.Context, id string, data json.RawMessage) error {
	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil || doc == nil {
		return errors.New("bot document must be a JSON object")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bots (id, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		id, string(data), s.timestamp(),
	)
	if err != nil {
		return unavailable("store bot", err)
	}
	return nil
}

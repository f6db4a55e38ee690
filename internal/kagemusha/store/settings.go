package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// SetAutoImitate records whether the auto-imitation trigger is enabled for a
// chat. The row is created on first toggle.
func (s *Store) SetAutoImitate(chatID string, enabled bool) error {
	value := 0
	if enabled {
		value = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO chat_settings (chat_id, auto_imitate_enabled) VALUES (?, ?)
		ON CONFLICT(chat_id) DO UPDATE SET auto_imitate_enabled = excluded.auto_imitate_enabled`,
		chatID, value,
	)
	if err != nil {
		return fmt.Errorf("set auto imitate: %w", err)
	}
	return nil
}

// AutoImitateEnabled reports whether auto-imitation is on for a chat.
// Chats with no settings row default to disabled.
func (s *Store) AutoImitateEnabled(chatID string) (bool, error) {
	var enabled int
	err := s.db.QueryRow(
		"SELECT auto_imitate_enabled FROM chat_settings WHERE chat_id = ?",
		chatID,
	).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get auto imitate: %w", err)
	}
	return enabled != 0, nil
}

package store

import (
	"fmt"
	"strings"
)

// Message is one retained message in a user's window. Records are created on
// ingestion, never mutated, and destroyed only by eviction or purge.
type Message struct {
	ID         int64
	ChatID     string
	UserID     int64
	Text       string
	TokenCount int
	Timestamp  int64
}

// ChatMessage is a message joined with its speaker's display name, used for
// ambient dialogue context.
type ChatMessage struct {
	Speaker string
	Text    string
}

// CountTokens returns the number of whitespace-separated tokens in text.
// This is the unit MinTokensToStore is measured in.
func CountTokens(text string) int {
	return len(strings.Fields(text))
}

// IngestMessage appends a message to the user's window for the given chat.
// Messages below the token threshold are discarded before reaching the
// window: the call returns false and changes no state. After a stored insert
// the window is trimmed from the front (oldest rows first) until it fits
// MaxMessagesPerUser again; the trim is computed against the post-insert
// count inside the same transaction.
func (s *Store) IngestMessage(chatID string, userID int64, text string, timestamp int64) (bool, error) {
	tokens := CountTokens(text)
	if tokens < s.limits.MinTokensToStore {
		return false, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin ingest: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO messages (chat_id, user_id, text, token_count, timestamp) VALUES (?, ?, ?, ?, ?)",
		chatID, userID, text, tokens, timestamp,
	); err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}

	var count int
	if err := tx.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE chat_id = ? AND user_id = ?",
		chatID, userID,
	).Scan(&count); err != nil {
		return false, fmt.Errorf("count window: %w", err)
	}

	if overflow := count - s.limits.MaxMessagesPerUser; overflow > 0 {
		if _, err := tx.Exec(`
			DELETE FROM messages
			WHERE id IN (
				SELECT id FROM messages
				WHERE chat_id = ? AND user_id = ?
				ORDER BY timestamp ASC, id ASC
				LIMIT ?
			)`,
			chatID, userID, overflow,
		); err != nil {
			return false, fmt.Errorf("trim window: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit ingest: %w", err)
	}
	return true, nil
}

// Window returns the user's full message window for a chat, oldest first.
func (s *Store) Window(chatID string, userID int64) ([]Message, error) {
	rows, err := s.db.Query(`
		SELECT id, chat_id, user_id, text, token_count, timestamp
		FROM messages
		WHERE chat_id = ? AND user_id = ?
		ORDER BY timestamp ASC, id ASC`,
		chatID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query window: %w", err)
	}
	defer rows.Close()

	var window []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.UserID, &m.Text, &m.TokenCount, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		window = append(window, m)
	}
	return window, rows.Err()
}

// CountMessages returns the current window length for a (chat, user) pair.
// Unknown users report zero, not an error.
func (s *Store) CountMessages(chatID string, userID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE chat_id = ? AND user_id = ?",
		chatID, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// RecentMessages returns the user's most recent messages in a chat, in
// chronological order (oldest of the returned slice first).
func (s *Store) RecentMessages(chatID string, userID int64, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(`
		SELECT text FROM messages
		WHERE chat_id = ? AND user_id = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`,
		chatID, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan message text: %w", err)
		}
		texts = append(texts, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(texts)-1; i < j; i, j = i+1, j-1 {
		texts[i], texts[j] = texts[j], texts[i]
	}
	return texts, nil
}

// RecentChatMessages returns the last messages in a chat across all users,
// with speaker names, in chronological order.
func (s *Store) RecentChatMessages(chatID string, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(`
		SELECT COALESCE(u.username, ''), COALESCE(u.display_name, ''), m.text
		FROM messages m
		JOIN users u ON u.id = m.user_id
		WHERE m.chat_id = ?
		ORDER BY m.timestamp DESC, m.id DESC
		LIMIT ?`,
		chatID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []ChatMessage
	for rows.Next() {
		var username, displayName, text string
		if err := rows.Scan(&username, &displayName, &text); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		msgs = append(msgs, ChatMessage{Speaker: speakerName(username, displayName), Text: text})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// PurgeUser deletes every message the user has in any chat, along with their
// peer links and user row. It returns the number of messages removed and is
// idempotent: purging an unknown user deletes nothing and returns 0.
func (s *Store) PurgeUser(userID int64) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin purge: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM messages WHERE user_id = ?", userID)
	if err != nil {
		return 0, fmt.Errorf("purge messages: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge rows affected: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM peer_links WHERE user_a = ? OR user_b = ?", userID, userID); err != nil {
		return 0, fmt.Errorf("purge peer links: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM users WHERE id = ?", userID); err != nil {
		return 0, fmt.Errorf("purge user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit purge: %w", err)
	}
	return deleted, nil
}

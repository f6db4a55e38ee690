package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// PeerLink tracks the interaction history between two users in one chat.
// Links are undirected: UserA is always the smaller internal ID.
type PeerLink struct {
	ID                string
	ChatID            string
	UserA             int64
	UserB             int64
	InteractionCount  int
	LastAnalyzedAt    int64
	LastAnalyzedCount int
	Summary           string
}

// canonicalPair orders a pair of user IDs so that undirected links share one row.
func canonicalPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

// RecordInteraction increments the interaction count for a pair, creating the
// link lazily on first co-occurrence. Self-pairs are ignored.
func (s *Store) RecordInteraction(chatID string, userA, userB int64) error {
	if userA == userB {
		return nil
	}
	a, b := canonicalPair(userA, userB)
	_, err := s.db.Exec(`
		INSERT INTO peer_links (id, chat_id, user_a, user_b, interaction_count)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(chat_id, user_a, user_b)
		DO UPDATE SET interaction_count = interaction_count + 1`,
		uuid.NewString(), chatID, a, b,
	)
	if err != nil {
		return fmt.Errorf("record interaction: %w", err)
	}
	return nil
}

// GetPeerLink returns the link for a pair in a chat, or (nil, nil) when the
// two users have never co-occurred.
func (s *Store) GetPeerLink(chatID string, userA, userB int64) (*PeerLink, error) {
	a, b := canonicalPair(userA, userB)
	row := s.db.QueryRow(`
		SELECT id, chat_id, user_a, user_b, interaction_count, last_analyzed_at, last_analyzed_count, relationship_summary
		FROM peer_links
		WHERE chat_id = ? AND user_a = ? AND user_b = ?`,
		chatID, a, b,
	)
	link, err := scanPeerLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get peer link: %w", err)
	}
	return link, nil
}

// DueLinks returns every link that is due for reanalysis at the given time:
// either the pending interaction count reached the step, or the last analysis
// is older than the interval and new interactions have arrived since.
func (s *Store) DueLinks(now int64, intervalSeconds int64, step int) ([]PeerLink, error) {
	rows, err := s.db.Query(`
		SELECT id, chat_id, user_a, user_b, interaction_count, last_analyzed_at, last_analyzed_count, relationship_summary
		FROM peer_links
		WHERE interaction_count - last_analyzed_count >= ?
		   OR (last_analyzed_at > 0
		       AND ? - last_analyzed_at >= ?
		       AND interaction_count > last_analyzed_count)`,
		step, now, intervalSeconds,
	)
	if err != nil {
		return nil, fmt.Errorf("query due links: %w", err)
	}
	defer rows.Close()

	var links []PeerLink
	for rows.Next() {
		link, err := scanPeerLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan peer link: %w", err)
		}
		links = append(links, *link)
	}
	return links, rows.Err()
}

// ApplyReanalysis stores a fresh relationship summary and marks the link as
// analyzed at the given time, resetting the pending interaction counter.
func (s *Store) ApplyReanalysis(linkID, summary string, analyzedAt int64) error {
	res, err := s.db.Exec(`
		UPDATE peer_links
		SET relationship_summary = ?, last_analyzed_at = ?, last_analyzed_count = interaction_count
		WHERE id = ?`,
		summary, analyzedAt, linkID,
	)
	if err != nil {
		return fmt.Errorf("apply reanalysis: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reanalysis rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("apply reanalysis: link %s not found", linkID)
	}
	return nil
}

// PairMessages returns the most recent messages either member of the pair
// wrote in the chat, with speaker names, in chronological order. Used as raw
// material for relationship analysis.
func (s *Store) PairMessages(chatID string, userA, userB int64, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(`
		SELECT COALESCE(u.username, ''), COALESCE(u.display_name, ''), m.text
		FROM messages m
		JOIN users u ON u.id = m.user_id
		WHERE m.chat_id = ? AND m.user_id IN (?, ?)
		ORDER BY m.timestamp DESC, m.id DESC
		LIMIT ?`,
		chatID, userA, userB, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pair messages: %w", err)
	}
	defer rows.Close()

	var msgs []ChatMessage
	for rows.Next() {
		var username, displayName, text string
		if err := rows.Scan(&username, &displayName, &text); err != nil {
			return nil, fmt.Errorf("scan pair message: %w", err)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPeerLink(row rowScanner) (*PeerLink, error) {
	var l PeerLink
	err := row.Scan(&l.ID, &l.ChatID, &l.UserA, &l.UserB,
		&l.InteractionCount, &l.LastAnalyzedAt, &l.LastAnalyzedCount, &l.Summary)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

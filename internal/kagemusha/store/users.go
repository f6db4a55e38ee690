package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// User is a chat participant known to the bot.
type User struct {
	ID          int64
	MatrixID    string
	Username    string
	DisplayName string
}

// ProfileCount pairs a user with their current window length in one chat.
type ProfileCount struct {
	UserID       int64
	Username     string
	DisplayName  string
	MessageCount int
}

// Name returns the best human-readable name for the user.
func (u *User) Name() string {
	return speakerName(u.Username, u.DisplayName)
}

func speakerName(username, displayName string) string {
	if displayName != "" {
		return displayName
	}
	if username != "" {
		if strings.HasPrefix(username, "@") {
			return username
		}
		return "@" + username
	}
	return "unknown user"
}

// UpsertUser creates the user on first sight or refreshes username and
// display name when they changed, returning the internal user ID.
func (s *Store) UpsertUser(matrixID, username, displayName string) (int64, error) {
	var id int64
	err := s.db.QueryRow(`
		INSERT INTO users (matrix_id, username, display_name)
		VALUES (?, ?, ?)
		ON CONFLICT(matrix_id) DO UPDATE SET
			username = CASE WHEN excluded.username != '' THEN excluded.username ELSE users.username END,
			display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE users.display_name END
		RETURNING id`,
		matrixID, username, displayName,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert user: %w", err)
	}
	return id, nil
}

// GetUserByUsername looks a user up by their username (with or without a
// leading "@"). Returns ErrUserNotFound when no such user is known.
func (s *Store) GetUserByUsername(username string) (*User, error) {
	username = strings.TrimPrefix(username, "@")
	return s.scanUser(s.db.QueryRow(
		"SELECT id, matrix_id, username, display_name FROM users WHERE username = ?",
		username,
	))
}

// GetUserByMatrixID looks a user up by their Matrix user ID.
// Returns ErrUserNotFound when no such user is known.
func (s *Store) GetUserByMatrixID(matrixID string) (*User, error) {
	return s.scanUser(s.db.QueryRow(
		"SELECT id, matrix_id, username, display_name FROM users WHERE matrix_id = ?",
		matrixID,
	))
}

// GetUserByID looks a user up by internal ID.
// Returns ErrUserNotFound when no such user is known.
func (s *Store) GetUserByID(id int64) (*User, error) {
	return s.scanUser(s.db.QueryRow(
		"SELECT id, matrix_id, username, display_name FROM users WHERE id = ?",
		id,
	))
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var u User
	var username, displayName sql.NullString
	err := row.Scan(&u.ID, &u.MatrixID, &username, &displayName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.Username = username.String
	u.DisplayName = displayName.String
	return &u, nil
}

// ProfileCounts returns every user with at least one retained message in the
// chat, ordered by message count descending.
func (s *Store) ProfileCounts(chatID string) ([]ProfileCount, error) {
	rows, err := s.db.Query(`
		SELECT u.id, COALESCE(u.username, ''), COALESCE(u.display_name, ''), COUNT(m.id) AS message_count
		FROM users u
		JOIN messages m ON m.user_id = u.id
		WHERE m.chat_id = ?
		GROUP BY u.id
		ORDER BY message_count DESC`,
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("query profile counts: %w", err)
	}
	defer rows.Close()

	var counts []ProfileCount
	for rows.Next() {
		var pc ProfileCount
		if err := rows.Scan(&pc.UserID, &pc.Username, &pc.DisplayName, &pc.MessageCount); err != nil {
			return nil, fmt.Errorf("scan profile count: %w", err)
		}
		counts = append(counts, pc)
	}
	return counts, rows.Err()
}

// TopParticipants returns the chat's most active users by window length,
// skipping the given user IDs. Used to pick auxiliary peer profiles for
// dialogue prompts.
func (s *Store) TopParticipants(chatID string, exclude []int64, limit int) ([]ProfileCount, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT u.id, COALESCE(u.username, ''), COALESCE(u.display_name, ''), COUNT(m.id) AS message_count
		FROM users u
		JOIN messages m ON m.user_id = u.id
		WHERE m.chat_id = ?`
	args := []any{chatID}
	if len(exclude) > 0 {
		query += " AND u.id NOT IN (?" + strings.Repeat(",?", len(exclude)-1) + ")"
		for _, id := range exclude {
			args = append(args, id)
		}
	}
	query += " GROUP BY u.id ORDER BY message_count DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query top participants: %w", err)
	}
	defer rows.Close()

	var participants []ProfileCount
	for rows.Next() {
		var pc ProfileCount
		if err := rows.Scan(&pc.UserID, &pc.Username, &pc.DisplayName, &pc.MessageCount); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		participants = append(participants, pc)
	}
	return participants, rows.Err()
}

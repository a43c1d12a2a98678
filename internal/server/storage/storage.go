package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/peopledesk/peopledesk/internal/server/models"
)

type Store struct {
	db *sql.DB
}

func New(connStr string) (*Store, error) {
	if connStr == "" {
		connStr = "postgres://localhost/peopledesk?sslmode=disable"
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() {
	s.db.Close()
}

// EnsureSchema creates the tables the dev server needs.
func (s *Store) EnsureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'employee',
			avatar TEXT NOT NULL DEFAULT '',
			online BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS messages (
			id SERIAL PRIMARY KEY,
			sender_id INTEGER NOT NULL REFERENCES users(id),
			receiver_id INTEGER NOT NULL REFERENCES users(id),
			content TEXT NOT NULL,
			read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS notifications (
			id SERIAL PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id),
			category TEXT NOT NULL,
			read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

// User methods

func (s *Store) CreateUser(name, email, passwordHash, role string) (int, error) {
	var userID int
	err := s.db.QueryRow(
		"INSERT INTO users (name, email, password_hash, role) VALUES ($1, $2, $3, $4) RETURNING id",
		name, email, passwordHash, role,
	).Scan(&userID)
	return userID, err
}

func (s *Store) GetUserByEmail(email string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(
		"SELECT id, name, email, password_hash, role, avatar, online FROM users WHERE email = $1",
		email,
	).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Avatar, &u.Online)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) GetUserByID(id int) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(
		"SELECT id, name, email, role, avatar, online FROM users WHERE id = $1",
		id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.Avatar, &u.Online)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) SetOnline(userID int, online bool) error {
	_, err := s.db.Exec("UPDATE users SET online = $1 WHERE id = $2", online, userID)
	return err
}

// Message methods

func (s *Store) SaveMessage(senderID, receiverID int, content string) (*models.Message, error) {
	var msg models.Message
	err := s.db.QueryRow(`
		INSERT INTO messages (sender_id, receiver_id, content)
		VALUES ($1, $2, $3)
		RETURNING id, sender_id, receiver_id, content, created_at
	`, senderID, receiverID, content).Scan(&msg.ID, &msg.SenderID, &msg.ReceiverID, &msg.Content, &msg.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetConversation returns the history between two users, oldest
// first.
func (s *Store) GetConversation(userID, otherID, limit int) ([]models.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, sender_id, receiver_id, content, created_at
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2)
		   OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, otherID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.CreatedAt); err != nil {
			continue
		}
		msgs = append(msgs, m)
	}

	// Reverse to get oldest first
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// GetSidebar returns one summary per counterpart the user has
// exchanged messages with, most recent conversation first.
func (s *Store) GetSidebar(userID int) ([]models.ConversationSummary, error) {
	rows, err := s.db.Query(`
		SELECT
			u.id,
			u.name,
			u.avatar,
			u.role,
			u.online,
			last.content,
			last.created_at,
			(SELECT COUNT(*) FROM messages m
			 WHERE m.sender_id = u.id AND m.receiver_id = $1 AND NOT m.read) AS unread_count
		FROM (
			SELECT
				CASE WHEN sender_id = $1 THEN receiver_id ELSE sender_id END AS other_id,
				MAX(created_at) AS last_at
			FROM messages
			WHERE sender_id = $1 OR receiver_id = $1
			GROUP BY other_id
		) conv
		JOIN users u ON u.id = conv.other_id
		JOIN LATERAL (
			SELECT content, created_at FROM messages m
			WHERE (m.sender_id = $1 AND m.receiver_id = u.id)
			   OR (m.sender_id = u.id AND m.receiver_id = $1)
			ORDER BY m.created_at DESC
			LIMIT 1
		) last ON TRUE
		ORDER BY conv.last_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []models.ConversationSummary
	for rows.Next() {
		var c models.ConversationSummary
		if err := rows.Scan(&c.OtherUserID, &c.OtherUserName, &c.OtherUserAvatar, &c.Role,
			&c.Online, &c.LastMessage, &c.LastMessageTime, &c.UnreadCount); err != nil {
			continue
		}
		convs = append(convs, c)
	}
	return convs, nil
}

// MarkConversationRead marks everything the counterpart sent as read
// and returns how many rows changed.
func (s *Store) MarkConversationRead(userID, otherID int) (int, error) {
	res, err := s.db.Exec(`
		UPDATE messages SET read = TRUE
		WHERE sender_id = $1 AND receiver_id = $2 AND NOT read
	`, otherID, userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Notification methods

func (s *Store) NotificationCounts(userID int) (map[string]int, error) {
	rows, err := s.db.Query(`
		SELECT category, COUNT(*) FROM notifications
		WHERE user_id = $1 AND NOT read
		GROUP BY category
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			continue
		}
		counts[category] = n
	}
	return counts, nil
}

func (s *Store) MarkAllNotificationsRead(userID int) error {
	_, err := s.db.Exec("UPDATE notifications SET read = TRUE WHERE user_id = $1", userID)
	return err
}

func (s *Store) AddNotification(userID int, category string) error {
	_, err := s.db.Exec(
		"INSERT INTO notifications (user_id, category) VALUES ($1, $2)",
		userID, category,
	)
	return err
}

package db

import (
	"chatrelay/models"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

var ErrNoRows = errors.New("no rows found")

type DB struct {
	conn *sql.DB
}

func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password TEXT NOT NULL,
			connection_id TEXT,
			token TEXT,
			is_online INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sender_id INTEGER NOT NULL,
			recipient_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			FOREIGN KEY(sender_id) REFERENCES users(id),
			FOREIGN KEY(recipient_id) REFERENCES users(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id, recipient_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_recipient ON messages(recipient_id, sender_id)`,
	}

	for _, query := range queries {
		if _, err := db.conn.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

// User methods

func (db *DB) CreateUser(username, password string) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = db.conn.Exec(
		"INSERT INTO users (username, password) VALUES (?, ?)",
		username, string(hashed),
	)
	return err
}

func (db *DB) UserExists(username string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// AuthenticateUser compares the supplied password against the stored bcrypt
// hash. A missing user and a wrong password both report !ok without error,
// so callers cannot distinguish the two.
func (db *DB) AuthenticateUser(username, password string) (*models.User, bool, error) {
	user, err := db.GetUserByUsername(username)
	if err == ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, false, nil
	}
	return user, true, nil
}

func (db *DB) GetUserByUsername(username string) (*models.User, error) {
	return db.getUser("SELECT id, username, password, COALESCE(connection_id, ''), COALESCE(token, ''), is_online FROM users WHERE username = ?", username)
}

func (db *DB) GetUserByID(id int64) (*models.User, error) {
	return db.getUser("SELECT id, username, password, COALESCE(connection_id, ''), COALESCE(token, ''), is_online FROM users WHERE id = ?", id)
}

func (db *DB) getUser(query string, arg interface{}) (*models.User, error) {
	var u models.User
	var online int
	err := db.conn.QueryRow(query, arg).Scan(&u.ID, &u.Username, &u.Password, &u.ConnectionID, &u.Token, &online)
	if err == sql.ErrNoRows {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, err
	}
	u.IsOnline = online != 0
	return &u, nil
}

// SetConnected records the connection handle and session token for a user
// and flips the online flag, all in one statement so admission never leaves
// a partially updated row.
func (db *DB) SetConnected(userID int64, connectionID, token string) error {
	_, err := db.conn.Exec(
		"UPDATE users SET connection_id = ?, token = ?, is_online = 1 WHERE id = ?",
		connectionID, token, userID,
	)
	return err
}

// SetOffline clears the connection handle and session token along with the
// online flag.
func (db *DB) SetOffline(userID int64) error {
	_, err := db.conn.Exec(
		"UPDATE users SET connection_id = NULL, token = NULL, is_online = 0 WHERE id = ?",
		userID,
	)
	return err
}

// Roster returns every user ordered by id. Password hashes are not loaded.
func (db *DB) Roster() ([]models.User, error) {
	rows, err := db.conn.Query("SELECT id, username, COALESCE(connection_id, ''), is_online FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		var online int
		if err := rows.Scan(&u.ID, &u.Username, &u.ConnectionID, &online); err != nil {
			return nil, err
		}
		u.IsOnline = online != 0
		users = append(users, u)
	}

	return users, rows.Err()
}

// SyncOnline forces the is_online column to agree with the given set of
// live user ids. Returns the number of corrected rows.
func (db *DB) SyncOnline(liveIDs []int64) (int64, error) {
	var corrected int64

	if len(liveIDs) == 0 {
		res, err := db.conn.Exec("UPDATE users SET is_online = 0, connection_id = NULL WHERE is_online = 1")
		if err != nil {
			return 0, err
		}
		n, _ := res.RowsAffected()
		return n, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(liveIDs)), ",")
	args := make([]interface{}, len(liveIDs))
	for i, id := range liveIDs {
		args[i] = id
	}

	res, err := db.conn.Exec(
		"UPDATE users SET is_online = 0, connection_id = NULL WHERE is_online = 1 AND id NOT IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	corrected += n

	res, err = db.conn.Exec(
		"UPDATE users SET is_online = 1 WHERE is_online = 0 AND id IN ("+placeholders+")",
		args...,
	)
	if err != nil {
		return corrected, err
	}
	n, _ = res.RowsAffected()
	corrected += n

	return corrected, nil
}

// Message methods

func (db *DB) SaveMessage(senderID, recipientID int64, content string, timestamp time.Time) (int64, error) {
	res, err := db.conn.Exec(
		"INSERT INTO messages (sender_id, recipient_id, content, timestamp) VALUES (?, ?, ?, ?)",
		senderID, recipientID, content, timestamp.Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetMessages returns the conversation between two users in insertion
// order, both directions.
func (db *DB) GetMessages(userID, otherUserID int64) ([]models.Message, error) {
	query := `
		SELECT id, sender_id, recipient_id, content, timestamp
		FROM messages
		WHERE (sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)
		ORDER BY id ASC
	`

	rows, err := db.conn.Query(query, userID, otherUserID, otherUserID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		var timestampStr string
		if err := rows.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Content, &timestampStr); err != nil {
			return nil, err
		}

		timestamp, err := time.Parse(time.RFC3339, timestampStr)
		if err != nil {
			return nil, err
		}
		m.Timestamp = timestamp

		messages = append(messages, m)
	}

	return messages, rows.Err()
}

// MessageCount reports the total number of stored messages.
func (db *DB) MessageCount() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM messages").Scan(&count)
	return count, err
}

package models

import "time"

type User struct {
	ID           int64
	Username     string
	Password     string // bcrypt hash
	ConnectionID string // live connection handle, empty when offline
	Token        string
	IsOnline     bool
}

type Message struct {
	ID          int64
	SenderID    int64
	RecipientID int64
	Content     string
	Timestamp   time.Time
}

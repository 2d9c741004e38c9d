package models

import "time"

// Message represents a chat message
type Message struct {
	ID        string    `json:"id" db:"id"`
	ChatID    string    `json:"chatId" db:"chat_id"`
	SenderID  string    `json:"senderId" db:"sender_id"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// MessageWithSender includes sender information
type MessageWithSender struct {
	ID        string       `json:"id"`
	ChatID    string       `json:"chatId"`
	Sender    UserResponse `json:"sender"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"createdAt"`
}

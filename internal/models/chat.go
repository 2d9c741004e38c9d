package models

import "time"

// Chat is a direct (two member) or group conversation.
type Chat struct {
	ID           string    `json:"id" db:"id"`
	ChatName     string    `json:"chatName" db:"chat_name"`
	IsGroupChat  bool      `json:"isGroupChat" db:"is_group_chat"`
	GroupAdminID *string   `json:"groupAdminId,omitempty" db:"group_admin_id"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// ChatWithMembers includes members, the group admin and the latest message
type ChatWithMembers struct {
	ID            string             `json:"id"`
	ChatName      string             `json:"chatName"`
	IsGroupChat   bool               `json:"isGroupChat"`
	Users         []UserResponse     `json:"users"`
	GroupAdmin    *UserResponse      `json:"groupAdmin,omitempty"`
	LatestMessage *MessageWithSender `json:"latestMessage,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
	UpdatedAt     time.Time          `json:"updatedAt"`
}

// DirectKey identifies the unordered pair of a direct chat.
func DirectKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}

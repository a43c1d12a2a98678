package models

import "time"

type User struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	Avatar       string    `json:"avatar,omitempty"`
	Online       bool      `json:"online"`
	CreatedAt    time.Time `json:"created_at"`
}

// Message uses the client-facing field names on the wire.
type Message struct {
	ID         int       `json:"id"`
	SenderID   int       `json:"senderId"`
	ReceiverID int       `json:"receiverId"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"timestamp"`
}

// ConversationSummary is one row of the chat sidebar: the counterpart
// plus the latest message and the viewer's unread count.
type ConversationSummary struct {
	OtherUserID     int       `json:"otherUserId"`
	OtherUserName   string    `json:"otherUserName"`
	OtherUserAvatar string    `json:"otherUserAvatar,omitempty"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	UnreadCount     int       `json:"unreadCount"`
	Online          bool      `json:"online"`
	Role            string    `json:"role,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  *User  `json:"user"`
}

// Inbound realtime frame. Heartbeats carry only Type; chat sends
// carry receiver and content.
type WSInbound struct {
	Type       string `json:"type,omitempty"`
	ReceiverID int    `json:"receiverId,omitempty"`
	Content    string `json:"content,omitempty"`
}

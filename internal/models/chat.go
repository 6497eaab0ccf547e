package models

import (
	"bytes"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	MessageStatusSent      = "sent"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"

	DefaultMessageType = "text"
	MaxMessageLength   = 10000
	MaxMessageTypeLen  = 50
)

type UserBasic struct {
	UserID          uuid.UUID `json:"userId"`
	FirstName       string    `json:"firstName"`
	LastName        string    `json:"lastName"`
	ProfileImageURL *string   `json:"profileImageUrl,omitempty"`
}

func (u UserBasic) DisplayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type Message struct {
	ID          uuid.UUID  `json:"messageId"`
	SenderID    uuid.UUID  `json:"senderId"`
	ReceiverID  uuid.UUID  `json:"receiverId"`
	Content     string     `json:"content"`
	MessageType string     `json:"messageType"`
	Status      string     `json:"status"`
	IsEdited    bool       `json:"isEdited"`
	EditedAt    *time.Time `json:"editedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	Sender      *UserBasic `json:"sender,omitempty"`
	Receiver    *UserBasic `json:"receiver,omitempty"`
}

// Involves reports whether userID is the sender or the receiver.
func (m *Message) Involves(userID uuid.UUID) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// Conversation stores its pair in canonical order: User1ID <= User2ID.
type Conversation struct {
	ID            uuid.UUID  `json:"conversationId"`
	User1ID       uuid.UUID  `json:"user1Id"`
	User2ID       uuid.UUID  `json:"user2Id"`
	LastMessageAt time.Time  `json:"lastMessageAt"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     *time.Time `json:"updatedAt,omitempty"`
}

func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// OtherParticipant returns the side of the pair that is not userID.
func (c *Conversation) OtherParticipant(userID uuid.UUID) uuid.UUID {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

type ConversationSummary struct {
	ConversationID  uuid.UUID  `json:"conversationId"`
	UserID          uuid.UUID  `json:"userId"`
	OtherUserID     uuid.UUID  `json:"otherUserId"`
	OtherUserName   string     `json:"otherUserName"`
	OtherUserAvatar *string    `json:"otherUserAvatar,omitempty"`
	LastMessage     *string    `json:"lastMessage,omitempty"`
	LastMessageAt   time.Time  `json:"lastMessageAt"`
	UnreadCount     int        `json:"unreadCount"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       *time.Time `json:"updatedAt,omitempty"`
}

// CanonicalPair orders two user ids so the smaller one comes first.
func CanonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return a, b
	}
	return b, a
}

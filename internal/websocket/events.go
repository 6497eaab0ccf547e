package chatws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/subleasehub/sublease-backend/internal/models"
)

// Inbound event names.
const (
	EventAuth              = "auth"
	EventSendMessage       = "send_message"
	EventTypingStart       = "typing_start"
	EventTypingStop        = "typing_stop"
	EventMarkMessageRead   = "mark_message_read"
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
)

// Outbound event names.
const (
	EventMessageSent         = "message_sent"
	EventNewMessage          = "new_message"
	EventUserTyping          = "user_typing"
	EventMessageRead         = "message_read"
	EventOnlineStatusChanged = "online_status_changed"
	EventOnlineUsers         = "online_users"
	EventError               = "error"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrInvalidPayload = errors.New("invalid payload")
)

// Frame is the envelope of every text frame in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type outboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Inbound is the closed set of client events. Each variant carries its typed payload.
type Inbound interface {
	eventName() string
}

type AuthRequest struct {
	Token string `json:"token"`
}

type SendMessage struct {
	ReceiverID uuid.UUID `json:"receiverId"`
	Content    string    `json:"content"`
	Type       string    `json:"type,omitempty"`
}

type TypingChange struct {
	ConversationUserID uuid.UUID `json:"conversationUserId"`
	IsTyping           bool      `json:"-"`
}

type MarkRead struct {
	MessageID uuid.UUID `json:"messageId"`
}

type RoomChange struct {
	ConversationID string `json:"conversationId"`
	Join           bool   `json:"-"`
}

func (AuthRequest) eventName() string { return EventAuth }
func (SendMessage) eventName() string { return EventSendMessage }
func (MarkRead) eventName() string    { return EventMarkMessageRead }

func (t TypingChange) eventName() string {
	if t.IsTyping {
		return EventTypingStart
	}
	return EventTypingStop
}

func (r RoomChange) eventName() string {
	if r.Join {
		return EventJoinConversation
	}
	return EventLeaveConversation
}

type TypingPayload struct {
	UserID             uuid.UUID `json:"userId"`
	ConversationUserID uuid.UUID `json:"conversationUserId"`
	IsTyping           bool      `json:"isTyping"`
}

type ReadPayload struct {
	MessageID uuid.UUID `json:"messageId"`
	ReadBy    uuid.UUID `json:"readBy"`
}

type OnlineStatus struct {
	UserID   uuid.UUID `json:"userId"`
	IsOnline bool      `json:"isOnline"`
}

type OnlineUsersPayload struct {
	Users []OnlineStatus `json:"users"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// DecodeInbound parses a raw frame into one Inbound variant. Payload problems
// wrap ErrInvalidPayload; unrecognised event names wrap ErrUnknownEvent.
func DecodeInbound(raw []byte) (Inbound, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("%w: malformed frame", ErrInvalidPayload)
	}

	switch frame.Event {
	case EventAuth:
		var payload AuthRequest
		if err := decodeData(frame, &payload); err != nil {
			return nil, err
		}
		if payload.Token == "" {
			return nil, invalidField(frame.Event, "token", "is required")
		}
		return payload, nil
	case EventSendMessage:
		var payload SendMessage
		if err := decodeData(frame, &payload); err != nil {
			return nil, err
		}
		if payload.ReceiverID == uuid.Nil {
			return nil, invalidField(frame.Event, "receiverId", "is required")
		}
		return payload, nil
	case EventTypingStart, EventTypingStop:
		var payload TypingChange
		if err := decodeData(frame, &payload); err != nil {
			return nil, err
		}
		if payload.ConversationUserID == uuid.Nil {
			return nil, invalidField(frame.Event, "conversationUserId", "is required")
		}
		payload.IsTyping = frame.Event == EventTypingStart
		return payload, nil
	case EventMarkMessageRead:
		var payload MarkRead
		if err := decodeData(frame, &payload); err != nil {
			return nil, err
		}
		if payload.MessageID == uuid.Nil {
			return nil, invalidField(frame.Event, "messageId", "is required")
		}
		return payload, nil
	case EventJoinConversation, EventLeaveConversation:
		var payload RoomChange
		if err := decodeData(frame, &payload); err != nil {
			return nil, err
		}
		if payload.ConversationID == "" {
			return nil, invalidField(frame.Event, "conversationId", "is required")
		}
		payload.Join = frame.Event == EventJoinConversation
		return payload, nil
	case "":
		return nil, fmt.Errorf("%w: missing event name", ErrInvalidPayload)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, frame.Event)
	}
}

func decodeData(frame Frame, dest any) error {
	if len(frame.Data) == 0 {
		return fmt.Errorf("%w: %s requires data", ErrInvalidPayload, frame.Event)
	}
	if err := json.Unmarshal(frame.Data, dest); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, frame.Event, err)
	}
	return nil
}

func invalidField(event, field, message string) error {
	return fmt.Errorf("%w: %s: %w", ErrInvalidPayload, event, &models.ValidationError{Field: field, Message: message})
}

func encodeFrame(event string, data any) ([]byte, error) {
	return json.Marshal(outboundFrame{Event: event, Data: data})
}

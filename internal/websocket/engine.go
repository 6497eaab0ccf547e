package chatws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	nanoid "github.com/jaevor/go-nanoid"
	"github.com/subleasehub/sublease-backend/internal/models"
	"github.com/subleasehub/sublease-backend/internal/services"
	"golang.org/x/time/rate"
)

var (
	ErrUnauthenticated      = errors.New("not authenticated")
	ErrAlreadyAuthenticated = errors.New("session already authenticated")
)

const (
	defaultSendBuffer = 32
	sessionIDLength   = 21
	rateLimitMessage  = "Rate limit exceeded, please slow down"
)

type ChatService interface {
	SendMessage(ctx context.Context, senderID uuid.UUID, input services.SendMessageInput) (*models.Message, error)
	MarkMessageRead(ctx context.Context, messageID uuid.UUID, readerID uuid.UUID) (*models.Message, bool, error)
}

type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (uuid.UUID, error)
}

type Options struct {
	TypingTTL     time.Duration
	SendBuffer    int
	RatePerSecond float64
	RateBurst     int
	Logger        *slog.Logger
}

// Engine owns presence, typing and room state for one process and routes
// events between sessions.
type Engine struct {
	service  ChatService
	verifier TokenVerifier
	opts     Options
	logger   *slog.Logger
	newID    func() string

	// lifecycle serialises connect/disconnect so presence changes and their
	// broadcasts are observed in the same order by every session.
	lifecycle sync.Mutex
	presence  *Presence
	typing    *TypingState
	rooms     *Rooms
}

func NewEngine(service ChatService, verifier TokenVerifier, opts Options) (*Engine, error) {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	newID, err := nanoid.Standard(sessionIDLength)
	if err != nil {
		return nil, fmt.Errorf("session id generator: %w", err)
	}

	return &Engine{
		service:  service,
		verifier: verifier,
		opts:     opts,
		logger:   opts.Logger,
		newID:    newID,
		presence: NewPresence(),
		typing:   NewTypingState(opts.TypingTTL),
		rooms:    NewRooms(),
	}, nil
}

// NewClient wraps a connection in an Unauthenticated session.
func (e *Engine) NewClient(conn *websocket.Conn) *Client {
	var limiter *rate.Limiter
	if e.opts.RatePerSecond > 0 {
		burst := e.opts.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(e.opts.RatePerSecond), burst)
	}
	return newClient(e.newID(), conn, e.opts.SendBuffer, limiter)
}

// Connect authenticates the session and registers it. On error nothing is
// registered and the caller should Reject the client.
func (e *Engine) Connect(ctx context.Context, client *Client, token string) error {
	if token == "" {
		return ErrUnauthenticated
	}

	userID, err := e.verifier.VerifyToken(ctx, token)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	if !client.authenticate(userID) {
		return ErrAlreadyAuthenticated
	}

	if first := e.presence.Register(userID, client); first {
		e.broadcast(e.presence.Others(userID), EventOnlineStatusChanged, OnlineStatus{UserID: userID, IsOnline: true})
	}
	e.sendTo(client, EventOnlineUsers, e.onlineUsersPayload())

	e.logger.Info("session connected",
		slog.String("user_id", userID.String()),
		slog.String("session", client.ID()),
	)
	return nil
}

// Disconnect is safe to call more than once; only the first call has effect.
func (e *Engine) Disconnect(client *Client) {
	e.closeClient(client, websocket.CloseNormalClosure, "")
}

// Reject closes a session that never authenticated.
func (e *Engine) Reject(client *Client, reason string) {
	e.closeClient(client, websocket.ClosePolicyViolation, reason)
}

// Shutdown closes every live session with a going-away frame.
func (e *Engine) Shutdown(ctx context.Context) error {
	for _, client := range e.presence.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.closeClient(client, websocket.CloseGoingAway, "server shutting down")
	}
	return nil
}

func (e *Engine) closeClient(client *Client, code int, reason string) {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	userID, wasAuthenticated, closed := client.markClosed(code, reason)
	if !closed || !wasAuthenticated {
		return
	}

	e.rooms.RemoveClient(client)
	last := e.presence.Deregister(userID, client)

	e.logger.Info("session disconnected",
		slog.String("user_id", userID.String()),
		slog.String("session", client.ID()),
		slog.Bool("last_session", last),
	)
	if !last {
		return
	}

	for _, counterpartID := range e.typing.ClearUser(userID) {
		e.emitTyping(userID, counterpartID, false)
	}
	e.broadcast(e.presence.Others(userID), EventOnlineStatusChanged, OnlineStatus{UserID: userID, IsOnline: false})
}

// HandleFrame processes one inbound frame to completion. Failures are reported
// to the originating session only and never close it.
func (e *Engine) HandleFrame(ctx context.Context, client *Client, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panic",
				slog.String("session", client.ID()),
				slog.Any("panic", r),
			)
			e.sendError(client, "Internal server error")
		}
	}()

	userID, ok := client.UserID()
	if !ok {
		e.sendError(client, "Not authenticated")
		return
	}

	event, err := DecodeInbound(raw)
	if err != nil {
		if errors.Is(err, ErrUnknownEvent) {
			e.sendError(client, err.Error())
			return
		}
		e.sendError(client, "Invalid message data: "+validationText(err))
		return
	}

	switch ev := event.(type) {
	case AuthRequest:
		e.sendError(client, ErrAlreadyAuthenticated.Error())
	case SendMessage:
		e.handleSendMessage(ctx, client, userID, ev)
	case TypingChange:
		e.handleTyping(userID, ev)
	case MarkRead:
		e.handleMarkRead(ctx, client, userID, ev)
	case RoomChange:
		if ev.Join {
			e.rooms.Join(ev.ConversationID, client)
		} else {
			e.rooms.Leave(ev.ConversationID, client)
		}
	default:
		e.sendError(client, fmt.Sprintf("%s: %s", ErrUnknownEvent, event.eventName()))
	}
}

func (e *Engine) handleSendMessage(ctx context.Context, client *Client, senderID uuid.UUID, ev SendMessage) {
	if !client.allowSend() {
		e.sendError(client, rateLimitMessage)
		return
	}

	message, err := e.service.SendMessage(ctx, senderID, services.SendMessageInput{
		ReceiverID:  ev.ReceiverID,
		Content:     ev.Content,
		MessageType: ev.Type,
	})
	if err != nil {
		var validationErr *models.ValidationError
		if errors.As(err, &validationErr) {
			e.sendError(client, "Invalid message data: "+validationErr.Error())
			return
		}
		e.logger.Error("send message failed",
			slog.String("user_id", senderID.String()),
			slog.String("session", client.ID()),
			slog.Any("error", err),
		)
		e.sendError(client, "Failed to send message")
		return
	}

	e.sendTo(client, EventMessageSent, message)
	e.broadcast(e.presence.Sessions(message.ReceiverID), EventNewMessage, message)
}

func (e *Engine) handleTyping(userID uuid.UUID, ev TypingChange) {
	counterpartID := ev.ConversationUserID
	if ev.IsTyping {
		e.typing.Start(userID, counterpartID, func() {
			e.emitTyping(userID, counterpartID, false)
		})
	} else {
		e.typing.Stop(userID, counterpartID)
	}
	e.emitTyping(userID, counterpartID, ev.IsTyping)
}

func (e *Engine) handleMarkRead(ctx context.Context, client *Client, readerID uuid.UUID, ev MarkRead) {
	message, created, err := e.service.MarkMessageRead(ctx, ev.MessageID, readerID)
	if err != nil {
		e.logger.Error("mark read failed",
			slog.String("user_id", readerID.String()),
			slog.String("message_id", ev.MessageID.String()),
			slog.Any("error", err),
		)
		e.sendError(client, "Failed to mark message as read")
		return
	}
	if !created || message == nil {
		return
	}
	e.NotifyRead(message, readerID)
}

// DeliverMessage fans a message persisted outside a socket out to both
// participants' live sessions.
func (e *Engine) DeliverMessage(message *models.Message) {
	if message == nil {
		return
	}
	e.broadcast(e.presence.Sessions(message.SenderID), EventMessageSent, message)
	e.broadcast(e.presence.Sessions(message.ReceiverID), EventNewMessage, message)
}

// NotifyRead tells the sender's sessions that readerID has read message.
func (e *Engine) NotifyRead(message *models.Message, readerID uuid.UUID) {
	e.broadcast(e.presence.Sessions(message.SenderID), EventMessageRead, ReadPayload{
		MessageID: message.ID,
		ReadBy:    readerID,
	})
}

func (e *Engine) OnlineUsers() []uuid.UUID {
	return e.presence.OnlineUsers()
}

func (e *Engine) IsOnline(userID uuid.UUID) bool {
	return e.presence.IsOnline(userID)
}

func (e *Engine) emitTyping(userID, counterpartID uuid.UUID, isTyping bool) {
	e.broadcast(e.presence.Sessions(counterpartID), EventUserTyping, TypingPayload{
		UserID:             userID,
		ConversationUserID: counterpartID,
		IsTyping:           isTyping,
	})
}

func (e *Engine) onlineUsersPayload() OnlineUsersPayload {
	users := e.presence.OnlineUsers()
	payload := OnlineUsersPayload{Users: make([]OnlineStatus, 0, len(users))}
	for _, userID := range users {
		payload.Users = append(payload.Users, OnlineStatus{UserID: userID, IsOnline: true})
	}
	return payload
}

func (e *Engine) sendError(client *Client, message string) {
	e.sendTo(client, EventError, ErrorPayload{Message: message})
}

func (e *Engine) sendTo(client *Client, event string, data any) {
	e.broadcast([]*Client{client}, event, data)
}

func (e *Engine) broadcast(clients []*Client, event string, data any) {
	if len(clients) == 0 {
		return
	}

	payload, err := encodeFrame(event, data)
	if err != nil {
		e.logger.Error("encode frame failed", slog.String("event", event), slog.Any("error", err))
		return
	}

	for _, client := range clients {
		if !client.enqueue(payload) {
			e.logger.Warn("dropped outbound frame",
				slog.String("event", event),
				slog.String("session", client.ID()),
			)
		}
	}
}

// validationText prefers the field-level message when the decode error carries one.
func validationText(err error) string {
	var validationErr *models.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Error()
	}
	return err.Error()
}

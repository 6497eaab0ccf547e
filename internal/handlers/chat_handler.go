package handlers

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/subleasehub/sublease-backend/internal/middleware"
	"github.com/subleasehub/sublease-backend/internal/models"
	"github.com/subleasehub/sublease-backend/internal/repository"
	"github.com/subleasehub/sublease-backend/internal/services"
)

type chatApplicationService interface {
	SendMessage(ctx context.Context, senderID uuid.UUID, input services.SendMessageInput) (*models.Message, error)
	GetMessage(ctx context.Context, viewerID uuid.UUID, messageID uuid.UUID) (*models.Message, error)
	UpdateMessage(ctx context.Context, requesterID uuid.UUID, messageID uuid.UUID, content string) (*models.Message, error)
	DeleteMessage(ctx context.Context, requesterID uuid.UUID, messageID uuid.UUID) (bool, error)
	ListConversationSummaries(ctx context.Context, userID uuid.UUID) ([]models.ConversationSummary, error)
	Summarize(ctx context.Context, viewerID uuid.UUID, otherUserID uuid.UUID) (*models.ConversationSummary, error)
	GetOrCreateConversation(ctx context.Context, userID uuid.UUID, otherUserID uuid.UUID) (*models.Conversation, error)
	ListConversationMessages(ctx context.Context, viewerID uuid.UUID, conversationID uuid.UUID, skip int, limit int) ([]models.Message, error)
	MarkMessageRead(ctx context.Context, messageID uuid.UUID, readerID uuid.UUID) (*models.Message, bool, error)
	CountUnread(ctx context.Context, viewerID uuid.UUID, fromUserID uuid.UUID) (int, error)
}

// realtimeNotifier pushes REST-originated changes to live sessions.
type realtimeNotifier interface {
	DeliverMessage(message *models.Message)
	NotifyRead(message *models.Message, readerID uuid.UUID)
	OnlineUsers() []uuid.UUID
	IsOnline(userID uuid.UUID) bool
}

type ChatHandler struct {
	service  chatApplicationService
	realtime realtimeNotifier
}

type sendMessageRequest struct {
	ReceiverID  uuid.UUID `json:"receiverId"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType"`
}

type updateMessageRequest struct {
	Content string `json:"content"`
}

type markReadRequest struct {
	MessageID uuid.UUID `json:"messageId"`
}

func NewChatHandler(service chatApplicationService, realtime realtimeNotifier) *ChatHandler {
	return &ChatHandler{
		service:  service,
		realtime: realtime,
	}
}

func (h *ChatHandler) SendMessage(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	message, err := h.service.SendMessage(c.UserContext(), userID, services.SendMessageInput{
		ReceiverID:  req.ReceiverID,
		Content:     req.Content,
		MessageType: req.MessageType,
	})
	if err != nil {
		return mapChatError(c, err)
	}

	if h.realtime != nil {
		h.realtime.DeliverMessage(message)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": message})
}

func (h *ChatHandler) GetMessage(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	messageID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	message, err := h.service.GetMessage(c.UserContext(), userID, messageID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"message": message})
}

func (h *ChatHandler) UpdateMessage(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	messageID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	var req updateMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	message, err := h.service.UpdateMessage(c.UserContext(), userID, messageID, req.Content)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"message": message})
}

func (h *ChatHandler) DeleteMessage(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	messageID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	deleted, err := h.service.DeleteMessage(c.UserContext(), userID, messageID)
	if err != nil {
		return mapChatError(c, err)
	}
	if !deleted {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Message not found"})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	conversations, err := h.service.ListConversationSummaries(c.UserContext(), userID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"conversations": conversations})
}

func (h *ChatHandler) GetConversation(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	otherUserID, err := uuid.Parse(c.Params("userId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	summary, err := h.service.Summarize(c.UserContext(), userID, otherUserID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"conversation": summary})
}

func (h *ChatHandler) CreateConversation(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	otherUserID, err := uuid.Parse(c.Params("userId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	conversation, err := h.service.GetOrCreateConversation(c.UserContext(), userID, otherUserID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"conversation": conversation})
}

func (h *ChatHandler) GetMessages(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	conversationID, err := uuid.Parse(c.Params("conversationId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid conversation id"})
	}

	skip, err := parseNonNegativeInt(c.Query("skip"), 0)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid skip"})
	}
	limit, err := parseNonNegativeInt(c.Query("limit"), repository.DefaultMessageLimit)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid limit"})
	}
	limit = repository.ClampMessageLimit(limit)

	messages, err := h.service.ListConversationMessages(c.UserContext(), userID, conversationID, skip, limit)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{
		"messages":   messages,
		"pagination": buildPaginationMeta(skip, limit, len(messages)),
	})
}

func (h *ChatHandler) MarkRead(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req markReadRequest
	if err := c.BodyParser(&req); err != nil || req.MessageID == uuid.Nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	message, created, err := h.service.MarkMessageRead(c.UserContext(), req.MessageID, userID)
	if err != nil {
		return mapChatError(c, err)
	}

	if created && message != nil && h.realtime != nil {
		h.realtime.NotifyRead(message, userID)
	}

	return c.JSON(fiber.Map{
		"messageId": req.MessageID,
		"newlyRead": created,
	})
}

func (h *ChatHandler) UnreadCount(c *fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	fromUserID, err := uuid.Parse(c.Params("userId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	count, err := h.service.CountUnread(c.UserContext(), userID, fromUserID)
	if err != nil {
		return mapChatError(c, err)
	}

	return c.JSON(fiber.Map{"unreadCount": count})
}

func (h *ChatHandler) OnlineUsers(c *fiber.Ctx) error {
	users := make([]uuid.UUID, 0)
	if h.realtime != nil {
		users = append(users, h.realtime.OnlineUsers()...)
	}
	return c.JSON(fiber.Map{"users": users})
}

func (h *ChatHandler) UserOnlineStatus(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("userId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid user id"})
	}

	online := h.realtime != nil && h.realtime.IsOnline(userID)
	return c.JSON(fiber.Map{"userId": userID, "isOnline": online})
}

func parseNonNegativeInt(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, errors.New("must be a non-negative integer")
	}
	return value, nil
}

func mapChatError(c *fiber.Ctx, err error) error {
	var validationErr *models.ValidationError

	switch {
	case errors.As(err, &validationErr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationErr.Error()})
	case errors.Is(err, services.ErrSelfConversation):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Cannot create conversation with yourself"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	case errors.Is(err, services.ErrNotFound), errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Message not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process chat request"})
	}
}

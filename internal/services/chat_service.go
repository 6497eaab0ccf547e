package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/subleasehub/sublease-backend/internal/models"
	"github.com/subleasehub/sublease-backend/internal/repository"
)

type txStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

type ChatService struct {
	db               txStarter
	conversationRepo *repository.ConversationRepository
	messageRepo      *repository.MessageRepository
	users            userLookup
}

type SendMessageInput struct {
	ReceiverID  uuid.UUID
	Content     string
	MessageType string
}

func NewChatService(
	db txStarter,
	conversationRepo *repository.ConversationRepository,
	messageRepo *repository.MessageRepository,
	users userLookup,
) *ChatService {
	return &ChatService{
		db:               db,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		users:            users,
	}
}

// SendMessage persists the message and bumps the pair's conversation in one
// transaction. Sender == receiver is allowed.
func (s *ChatService) SendMessage(
	ctx context.Context,
	senderID uuid.UUID,
	input SendMessageInput,
) (*models.Message, error) {
	if input.ReceiverID == uuid.Nil {
		return nil, &models.ValidationError{Field: "receiverId", Message: "is required"}
	}
	if err := models.ValidateMessageContent(input.Content); err != nil {
		return nil, err
	}
	messageType, err := models.NormalizeMessageType(input.MessageType)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txMessageRepo := repository.NewMessageRepository(tx)
	txConversationRepo := repository.NewConversationRepository(tx)

	message, err := txMessageRepo.Create(ctx, senderID, input.ReceiverID, input.Content, messageType)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	if _, err := txConversationRepo.Touch(ctx, senderID, input.ReceiverID); err != nil {
		return nil, fmt.Errorf("touch conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.attachParticipants(ctx, message)
	return message, nil
}

func (s *ChatService) GetMessage(ctx context.Context, viewerID uuid.UUID, messageID uuid.UUID) (*models.Message, error) {
	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, notFound(err)
	}
	if !message.Involves(viewerID) {
		return nil, ErrForbidden
	}
	return message, nil
}

func (s *ChatService) UpdateMessage(
	ctx context.Context,
	requesterID uuid.UUID,
	messageID uuid.UUID,
	content string,
) (*models.Message, error) {
	if err := models.ValidateMessageContent(content); err != nil {
		return nil, err
	}

	message, err := s.messageRepo.UpdateContent(ctx, messageID, content, requesterID)
	if err != nil {
		return nil, notFound(err)
	}

	s.attachParticipants(ctx, message)
	return message, nil
}

func (s *ChatService) DeleteMessage(ctx context.Context, requesterID uuid.UUID, messageID uuid.UUID) (bool, error) {
	return s.messageRepo.Delete(ctx, messageID, requesterID)
}

// ListConversationMessages rejects unknown conversations and non-participants alike.
func (s *ChatService) ListConversationMessages(
	ctx context.Context,
	viewerID uuid.UUID,
	conversationID uuid.UUID,
	skip int,
	limit int,
) ([]models.Message, error) {
	if skip < 0 {
		return nil, fmt.Errorf("%w: skip must be non-negative", ErrInvalidInput)
	}
	conversation, err := s.conversationRepo.GetByID(ctx, conversationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	if !conversation.HasParticipant(viewerID) {
		return nil, ErrForbidden
	}

	return s.messageRepo.ListBetween(ctx, viewerID, conversation.OtherParticipant(viewerID), skip, limit)
}

func (s *ChatService) GetOrCreateConversation(
	ctx context.Context,
	userID uuid.UUID,
	otherUserID uuid.UUID,
) (*models.Conversation, error) {
	if userID == otherUserID {
		return nil, ErrSelfConversation
	}
	if _, err := s.users.GetUserByID(ctx, otherUserID); err != nil {
		return nil, err
	}

	return s.conversationRepo.CreateOrGet(ctx, userID, otherUserID)
}

// Summarize resolves (creating if needed) the conversation with otherUserID as seen by viewerID.
func (s *ChatService) Summarize(
	ctx context.Context,
	viewerID uuid.UUID,
	otherUserID uuid.UUID,
) (*models.ConversationSummary, error) {
	if viewerID == otherUserID {
		return nil, ErrSelfConversation
	}

	other, err := s.users.GetUserByID(ctx, otherUserID)
	if err != nil {
		return nil, err
	}

	conversation, err := s.conversationRepo.CreateOrGet(ctx, viewerID, otherUserID)
	if err != nil {
		return nil, err
	}

	summary := &models.ConversationSummary{
		ConversationID:  conversation.ID,
		UserID:          viewerID,
		OtherUserID:     otherUserID,
		OtherUserName:   other.DisplayName(),
		OtherUserAvatar: other.ProfileImageURL,
		LastMessageAt:   conversation.LastMessageAt,
		CreatedAt:       conversation.CreatedAt,
		UpdatedAt:       conversation.UpdatedAt,
	}

	last, err := s.messageRepo.LastBetween(ctx, viewerID, otherUserID)
	switch {
	case err == nil:
		summary.LastMessage = &last.Content
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, err
	}

	unread, err := s.messageRepo.CountUnread(ctx, viewerID, otherUserID)
	if err != nil {
		return nil, err
	}
	summary.UnreadCount = unread

	return summary, nil
}

func (s *ChatService) ListConversationSummaries(ctx context.Context, userID uuid.UUID) ([]models.ConversationSummary, error) {
	return s.conversationRepo.ListSummariesForParticipant(ctx, userID)
}

// MarkMessageRead records a receipt. The returned message is non-nil only when
// the receipt was newly created and the message still exists.
func (s *ChatService) MarkMessageRead(
	ctx context.Context,
	messageID uuid.UUID,
	readerID uuid.UUID,
) (*models.Message, bool, error) {
	if messageID == uuid.Nil {
		return nil, false, fmt.Errorf("%w: messageId is required", ErrInvalidInput)
	}
	created, err := s.messageRepo.InsertReadReceipt(ctx, messageID, readerID)
	if err != nil {
		return nil, false, err
	}
	if !created {
		return nil, false, nil
	}

	message, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, true, nil
		}
		return nil, true, err
	}
	return message, true, nil
}

func (s *ChatService) CountUnread(ctx context.Context, viewerID uuid.UUID, fromUserID uuid.UUID) (int, error) {
	return s.messageRepo.CountUnread(ctx, viewerID, fromUserID)
}

// attachParticipants fills sender/receiver from the directory; lookups that fail
// leave the fields empty rather than failing an already committed write.
func (s *ChatService) attachParticipants(ctx context.Context, message *models.Message) {
	if s.users == nil || message == nil {
		return
	}
	lookupCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if sender, err := s.users.GetUserByID(lookupCtx, message.SenderID); err == nil {
		message.Sender = sender
	}
	if receiver, err := s.users.GetUserByID(lookupCtx, message.ReceiverID); err == nil {
		message.Receiver = receiver
	}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

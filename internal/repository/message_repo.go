package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/subleasehub/sublease-backend/internal/models"
)

const (
	DefaultMessageLimit = 50
	MaxMessageLimit     = 100
)

const messageSelect = `
	SELECT
		m.message_id,
		m.sender_id,
		m.receiver_id,
		m.content,
		m.message_type,
		m.status,
		m.is_edited,
		m.edited_at,
		m.created_at,
		m.updated_at,
		s.user_id,
		s.first_name,
		s.last_name,
		s.profile_image_url,
		r.user_id,
		r.first_name,
		r.last_name,
		r.profile_image_url
	FROM messages m
	JOIN users s ON s.user_id = m.sender_id
	JOIN users r ON r.user_id = m.receiver_id
`

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

// ClampMessageLimit bounds a page size to [1, MaxMessageLimit], defaulting non-positive values.
func ClampMessageLimit(limit int) int {
	if limit <= 0 {
		return DefaultMessageLimit
	}
	if limit > MaxMessageLimit {
		return MaxMessageLimit
	}
	return limit
}

func (r *MessageRepository) Create(
	ctx context.Context,
	senderID uuid.UUID,
	receiverID uuid.UUID,
	content string,
	messageType string,
) (*models.Message, error) {
	if err := models.ValidateMessageContent(content); err != nil {
		return nil, err
	}
	messageType, err := models.NormalizeMessageType(messageType)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO messages (sender_id, receiver_id, content, message_type, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING message_id, sender_id, receiver_id, content, message_type, status,
			is_edited, edited_at, created_at, updated_at
	`

	var message models.Message
	err = r.db.QueryRow(ctx, query, senderID, receiverID, content, messageType, models.MessageStatusSent).Scan(
		&message.ID,
		&message.SenderID,
		&message.ReceiverID,
		&message.Content,
		&message.MessageType,
		&message.Status,
		&message.IsEdited,
		&message.EditedAt,
		&message.CreatedAt,
		&message.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &message, nil
}

func (r *MessageRepository) GetByID(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	row := r.db.QueryRow(ctx, messageSelect+` WHERE m.message_id = $1`, messageID)
	return scanMessage(row)
}

// ListBetween returns messages exchanged in either direction, newest first.
func (r *MessageRepository) ListBetween(
	ctx context.Context,
	userA uuid.UUID,
	userB uuid.UUID,
	offset int,
	limit int,
) ([]models.Message, error) {
	if offset < 0 {
		offset = 0
	}
	limit = ClampMessageLimit(limit)

	query := messageSelect + `
		WHERE (m.sender_id = $1 AND m.receiver_id = $2)
		   OR (m.sender_id = $2 AND m.receiver_id = $1)
		ORDER BY m.created_at DESC, m.message_id DESC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.db.Query(ctx, query, userA, userB, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}

// LastBetween returns pgx.ErrNoRows when the pair has not exchanged any message.
func (r *MessageRepository) LastBetween(ctx context.Context, userA uuid.UUID, userB uuid.UUID) (*models.Message, error) {
	query := messageSelect + `
		WHERE (m.sender_id = $1 AND m.receiver_id = $2)
		   OR (m.sender_id = $2 AND m.receiver_id = $1)
		ORDER BY m.created_at DESC, m.message_id DESC
		LIMIT 1
	`
	return scanMessage(r.db.QueryRow(ctx, query, userA, userB))
}

// UpdateContent only touches rows sent by requesterID; anything else yields pgx.ErrNoRows.
func (r *MessageRepository) UpdateContent(
	ctx context.Context,
	messageID uuid.UUID,
	content string,
	requesterID uuid.UUID,
) (*models.Message, error) {
	if err := models.ValidateMessageContent(content); err != nil {
		return nil, err
	}

	query := `
		UPDATE messages
		SET content = $2, is_edited = TRUE, edited_at = NOW(), updated_at = NOW()
		WHERE message_id = $1 AND sender_id = $3
		RETURNING message_id, sender_id, receiver_id, content, message_type, status,
			is_edited, edited_at, created_at, updated_at
	`

	var message models.Message
	err := r.db.QueryRow(ctx, query, messageID, content, requesterID).Scan(
		&message.ID,
		&message.SenderID,
		&message.ReceiverID,
		&message.Content,
		&message.MessageType,
		&message.Status,
		&message.IsEdited,
		&message.EditedAt,
		&message.CreatedAt,
		&message.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &message, nil
}

// Delete reports false both for unknown ids and for messages the requester did not send.
func (r *MessageRepository) Delete(ctx context.Context, messageID uuid.UUID, requesterID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM messages
		WHERE message_id = $1 AND sender_id = $2
	`, messageID, requesterID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// InsertReadReceipt returns false without error when the receipt already exists,
// the message is unknown, or the reader is not its recipient.
func (r *MessageRepository) InsertReadReceipt(ctx context.Context, messageID uuid.UUID, userID uuid.UUID) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO message_reads (message_id, user_id, read_at)
		SELECT m.message_id, $2, NOW()
		FROM messages m
		WHERE m.message_id = $1
		  AND m.receiver_id = $2
		  AND m.sender_id <> $2
		ON CONFLICT (message_id, user_id) DO NOTHING
	`, messageID, userID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CountUnread counts messages from fromUserID to viewerID that viewerID has no receipt for.
func (r *MessageRepository) CountUnread(ctx context.Context, viewerID uuid.UUID, fromUserID uuid.UUID) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM messages m
		LEFT JOIN message_reads mr
		  ON mr.message_id = m.message_id AND mr.user_id = $1
		WHERE m.sender_id = $2
		  AND m.receiver_id = $1
		  AND mr.read_id IS NULL
	`, viewerID, fromUserID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var message models.Message
	var sender, receiver models.UserBasic
	if err := row.Scan(
		&message.ID,
		&message.SenderID,
		&message.ReceiverID,
		&message.Content,
		&message.MessageType,
		&message.Status,
		&message.IsEdited,
		&message.EditedAt,
		&message.CreatedAt,
		&message.UpdatedAt,
		&sender.UserID,
		&sender.FirstName,
		&sender.LastName,
		&sender.ProfileImageURL,
		&receiver.UserID,
		&receiver.FirstName,
		&receiver.LastName,
		&receiver.ProfileImageURL,
	); err != nil {
		return nil, err
	}
	message.Sender = &sender
	message.Receiver = &receiver
	return &message, nil
}

package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/subleasehub/sublease-backend/internal/models"
)

type ConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// CreateOrGet resolves the single conversation for the unordered pair, creating
// it with last_message_at = NOW() when absent.
func (r *ConversationRepository) CreateOrGet(
	ctx context.Context,
	userA uuid.UUID,
	userB uuid.UUID,
) (*models.Conversation, error) {
	user1, user2 := models.CanonicalPair(userA, userB)
	query := `
		INSERT INTO conversations (user1_id, user2_id, last_message_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user1_id, user2_id)
		DO UPDATE SET updated_at = conversations.updated_at
		RETURNING conversation_id, user1_id, user2_id, last_message_at, created_at, updated_at
	`

	return scanConversation(r.db.QueryRow(ctx, query, user1, user2))
}

// Touch bumps last_message_at for the pair, creating the conversation if needed.
func (r *ConversationRepository) Touch(
	ctx context.Context,
	userA uuid.UUID,
	userB uuid.UUID,
) (*models.Conversation, error) {
	user1, user2 := models.CanonicalPair(userA, userB)
	query := `
		INSERT INTO conversations (user1_id, user2_id, last_message_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user1_id, user2_id)
		DO UPDATE SET last_message_at = NOW(), updated_at = NOW()
		RETURNING conversation_id, user1_id, user2_id, last_message_at, created_at, updated_at
	`

	return scanConversation(r.db.QueryRow(ctx, query, user1, user2))
}

func (r *ConversationRepository) GetByID(ctx context.Context, conversationID uuid.UUID) (*models.Conversation, error) {
	query := `
		SELECT conversation_id, user1_id, user2_id, last_message_at, created_at, updated_at
		FROM conversations
		WHERE conversation_id = $1
	`

	return scanConversation(r.db.QueryRow(ctx, query, conversationID))
}

func (r *ConversationRepository) GetByPair(ctx context.Context, userA uuid.UUID, userB uuid.UUID) (*models.Conversation, error) {
	user1, user2 := models.CanonicalPair(userA, userB)
	query := `
		SELECT conversation_id, user1_id, user2_id, last_message_at, created_at, updated_at
		FROM conversations
		WHERE user1_id = $1 AND user2_id = $2
	`

	return scanConversation(r.db.QueryRow(ctx, query, user1, user2))
}

// ListSummariesForParticipant builds every summary in one round trip. Self
// conversations are skipped.
func (r *ConversationRepository) ListSummariesForParticipant(
	ctx context.Context,
	participantID uuid.UUID,
) ([]models.ConversationSummary, error) {
	query := `
		SELECT
			c.conversation_id,
			c.last_message_at,
			c.created_at,
			c.updated_at,
			u.user_id,
			u.first_name,
			u.last_name,
			u.profile_image_url,
			lm.content,
			COALESCE(uc.unread_count, 0)
		FROM conversations c
		JOIN users u
		  ON u.user_id = CASE WHEN c.user1_id = $1 THEN c.user2_id ELSE c.user1_id END
		LEFT JOIN LATERAL (
			SELECT m.content
			FROM messages m
			WHERE (m.sender_id = c.user1_id AND m.receiver_id = c.user2_id)
			   OR (m.sender_id = c.user2_id AND m.receiver_id = c.user1_id)
			ORDER BY m.created_at DESC, m.message_id DESC
			LIMIT 1
		) lm ON TRUE
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS unread_count
			FROM messages m
			LEFT JOIN message_reads mr
			  ON mr.message_id = m.message_id AND mr.user_id = $1
			WHERE m.sender_id = u.user_id
			  AND m.receiver_id = $1
			  AND mr.read_id IS NULL
		) uc ON TRUE
		WHERE (c.user1_id = $1 OR c.user2_id = $1)
		  AND c.user1_id <> c.user2_id
		ORDER BY c.last_message_at DESC, c.conversation_id DESC
	`

	rows, err := r.db.Query(ctx, query, participantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]models.ConversationSummary, 0)
	for rows.Next() {
		var summary models.ConversationSummary
		var other models.UserBasic

		if err := rows.Scan(
			&summary.ConversationID,
			&summary.LastMessageAt,
			&summary.CreatedAt,
			&summary.UpdatedAt,
			&other.UserID,
			&other.FirstName,
			&other.LastName,
			&other.ProfileImageURL,
			&summary.LastMessage,
			&summary.UnreadCount,
		); err != nil {
			return nil, err
		}

		summary.UserID = participantID
		summary.OtherUserID = other.UserID
		summary.OtherUserName = other.DisplayName()
		summary.OtherUserAvatar = other.ProfileImageURL
		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var conversation models.Conversation
	if err := row.Scan(
		&conversation.ID,
		&conversation.User1ID,
		&conversation.User2ID,
		&conversation.LastMessageAt,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &conversation, nil
}

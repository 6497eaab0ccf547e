package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/subleasehub/sublease-backend/internal/models"
)

type UserRepository struct {
	db DBTX
}

func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID returns pgx.ErrNoRows for unknown or inactive users.
func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.UserBasic, error) {
	query := `
		SELECT user_id, first_name, last_name, profile_image_url
		FROM users
		WHERE user_id = $1 AND is_active = TRUE
	`
	var user models.UserBasic
	err := r.db.QueryRow(ctx, query, id).
		Scan(&user.UserID, &user.FirstName, &user.LastName, &user.ProfileImageURL)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

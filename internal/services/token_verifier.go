package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/subleasehub/sublease-backend/internal/models"
	"github.com/subleasehub/sublease-backend/pkg/utils"
)

type userLookup interface {
	GetUserByID(ctx context.Context, userID uuid.UUID) (*models.UserBasic, error)
}

// TokenVerifier checks a bearer JWT and confirms its subject is a known, active user.
type TokenVerifier struct {
	secret string
	users  userLookup
}

func NewTokenVerifier(secret string, users userLookup) *TokenVerifier {
	return &TokenVerifier{secret: secret, users: users}
}

func (v *TokenVerifier) VerifyToken(ctx context.Context, token string) (uuid.UUID, error) {
	if token == "" {
		return uuid.Nil, ErrUnauthenticated
	}

	claims, err := utils.ValidateToken(token, v.secret)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	userID, err := uuid.Parse(claims.SubjectID())
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: malformed subject", ErrUnauthenticated)
	}

	if v.users != nil {
		if _, err := v.users.GetUserByID(ctx, userID); err != nil {
			return uuid.Nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
	}

	return userID, nil
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/subleasehub/sublease-backend/internal/models"
	"golang.org/x/sync/singleflight"
)

const userCachePrefix = "users:basic:"

type userReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.UserBasic, error)
}

// UserDirectory resolves the user fields the chat core needs. With a Redis
// client it reads through a cache; a nil client disables caching.
type UserDirectory struct {
	users userReader
	cache *redis.Client
	ttl   time.Duration
	group singleflight.Group // collapses concurrent misses for the same user
}

func NewUserDirectory(users userReader, cache *redis.Client, ttl time.Duration) *UserDirectory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &UserDirectory{users: users, cache: cache, ttl: ttl}
}

func (d *UserDirectory) GetUserByID(ctx context.Context, userID uuid.UUID) (*models.UserBasic, error) {
	key := userCachePrefix + userID.String()

	if d.cache != nil {
		data, err := d.cache.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			var user models.UserBasic
			if err := json.Unmarshal(data, &user); err == nil {
				return &user, nil
			}
		case !errors.Is(err, redis.Nil):
			log.Printf("user cache get %s: %v", userID, err)
		}
	}

	// The shared lookup outlives any single caller's cancellation.
	lookupCtx := context.WithoutCancel(ctx)
	val, err, _ := d.group.Do(key, func() (any, error) {
		return d.users.GetByID(lookupCtx, userID)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	shared, ok := val.(*models.UserBasic)
	if !ok || shared == nil {
		return nil, ErrUserNotFound
	}
	user := *shared

	if d.cache != nil {
		if data, err := json.Marshal(&user); err == nil {
			if err := d.cache.Set(ctx, key, data, d.ttl).Err(); err != nil {
				log.Printf("user cache set %s: %v", userID, err)
			}
		}
	}

	return &user, nil
}

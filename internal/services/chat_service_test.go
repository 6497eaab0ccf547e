package services

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/subleasehub/sublease-backend/internal/models"
	"github.com/subleasehub/sublease-backend/pkg/utils"
)

type stubUserReader struct {
	users map[uuid.UUID]*models.UserBasic
	calls int
	err   error
}

func (s *stubUserReader) GetByID(_ context.Context, id uuid.UUID) (*models.UserBasic, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	user, ok := s.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return user, nil
}

func TestSendMessageValidatesBeforeTouchingStore(t *testing.T) {
	service := NewChatService(nil, nil, nil, nil)
	senderID := uuid.New()

	tests := []struct {
		name  string
		input SendMessageInput
		field string
	}{
		{name: "missing receiver", input: SendMessageInput{Content: "Hi"}, field: "receiverId"},
		{name: "empty content", input: SendMessageInput{ReceiverID: uuid.New()}, field: "content"},
		{name: "oversized content", input: SendMessageInput{ReceiverID: uuid.New(), Content: strings.Repeat("a", models.MaxMessageLength+1)}, field: "content"},
		{name: "oversized type", input: SendMessageInput{ReceiverID: uuid.New(), Content: "Hi", MessageType: strings.Repeat("t", models.MaxMessageTypeLen+1)}, field: "messageType"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.SendMessage(context.Background(), senderID, tt.input)

			var validationErr *models.ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if validationErr.Field != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, validationErr.Field)
			}
		})
	}
}

func TestUpdateMessageValidatesContent(t *testing.T) {
	service := NewChatService(nil, nil, nil, nil)

	_, err := service.UpdateMessage(context.Background(), uuid.New(), uuid.New(), "")
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestInvalidInputIsRejectedBeforeTouchingStore(t *testing.T) {
	service := NewChatService(nil, nil, nil, nil)

	if _, err := service.ListConversationMessages(context.Background(), uuid.New(), uuid.New(), -1, 10); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative skip, got %v", err)
	}
	if _, _, err := service.MarkMessageRead(context.Background(), uuid.Nil, uuid.New()); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for nil message id, got %v", err)
	}
}

func TestConversationWithSelfIsRejected(t *testing.T) {
	service := NewChatService(nil, nil, nil, nil)
	userID := uuid.New()

	if _, err := service.GetOrCreateConversation(context.Background(), userID, userID); !errors.Is(err, ErrSelfConversation) {
		t.Fatalf("expected ErrSelfConversation, got %v", err)
	}
	if _, err := service.Summarize(context.Background(), userID, userID); !errors.Is(err, ErrSelfConversation) {
		t.Fatalf("expected ErrSelfConversation, got %v", err)
	}
}

func TestConversationWithUnknownUser(t *testing.T) {
	directory := NewUserDirectory(&stubUserReader{}, nil, time.Minute)
	service := NewChatService(nil, nil, nil, directory)

	_, err := service.GetOrCreateConversation(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserDirectoryWithoutCache(t *testing.T) {
	known := &models.UserBasic{UserID: uuid.New(), FirstName: "Dana", LastName: "Reyes"}
	reader := &stubUserReader{users: map[uuid.UUID]*models.UserBasic{known.UserID: known}}
	directory := NewUserDirectory(reader, nil, 0)

	user, err := directory.GetUserByID(context.Background(), known.UserID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if user.DisplayName() != "Dana Reyes" {
		t.Fatalf("unexpected user: %+v", user)
	}

	if _, err := directory.GetUserByID(context.Background(), uuid.New()); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	reader.err = errors.New("connection reset")
	if _, err := directory.GetUserByID(context.Background(), known.UserID); err == nil || errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected store error to pass through, got %v", err)
	}
}

type blockingUserReader struct {
	user    *models.UserBasic
	release chan struct{}
	calls   atomic.Int32
}

func (r *blockingUserReader) GetByID(ctx context.Context, _ uuid.UUID) (*models.UserBasic, error) {
	r.calls.Add(1)
	select {
	case <-r.release:
		return r.user, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestUserDirectoryCollapsesConcurrentMisses(t *testing.T) {
	known := &models.UserBasic{UserID: uuid.New(), FirstName: "Dana"}
	reader := &blockingUserReader{user: known, release: make(chan struct{})}
	directory := NewUserDirectory(reader, nil, 0)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = directory.GetUserByID(context.Background(), known.UserID)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(reader.release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
	}
	if got := reader.calls.Load(); got != 1 {
		t.Fatalf("expected one store lookup, got %d", got)
	}
}

func TestUserDirectorySharedLookupIgnoresFirstCallerCancellation(t *testing.T) {
	known := &models.UserBasic{UserID: uuid.New(), FirstName: "Dana"}
	reader := &blockingUserReader{user: known, release: make(chan struct{})}
	directory := NewUserDirectory(reader, nil, 0)

	firstCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	var firstErr, secondErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, firstErr = directory.GetUserByID(firstCtx, known.UserID)
	}()
	time.Sleep(20 * time.Millisecond)
	go func() {
		defer wg.Done()
		_, secondErr = directory.GetUserByID(context.Background(), known.UserID)
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	time.Sleep(20 * time.Millisecond)
	close(reader.release)
	wg.Wait()

	if secondErr != nil {
		t.Fatalf("concurrent caller inherited cancellation: %v", secondErr)
	}
	if firstErr != nil {
		t.Fatalf("first caller: %v", firstErr)
	}
	if got := reader.calls.Load(); got != 1 {
		t.Fatalf("expected one store lookup, got %d", got)
	}
}

func TestUserDirectoryReadsThroughRedis(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("skipping redis test: REDIS_URL is not set")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}
	client := redis.NewClient(opts)
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	known := &models.UserBasic{UserID: uuid.New(), FirstName: "Dana", LastName: "Reyes"}
	reader := &stubUserReader{users: map[uuid.UUID]*models.UserBasic{known.UserID: known}}
	directory := NewUserDirectory(reader, client, time.Minute)
	cacheKey := userCachePrefix + known.UserID.String()
	t.Cleanup(func() { _ = client.Del(ctx, cacheKey).Err() })

	for i := 0; i < 3; i++ {
		user, err := directory.GetUserByID(ctx, known.UserID)
		if err != nil {
			t.Fatalf("GetUserByID: %v", err)
		}
		if user.UserID != known.UserID {
			t.Fatalf("unexpected user: %+v", user)
		}
	}
	if reader.calls != 1 {
		t.Fatalf("expected one store lookup, got %d", reader.calls)
	}

	if err := client.Del(ctx, cacheKey).Err(); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, err := directory.GetUserByID(ctx, known.UserID); err != nil {
		t.Fatalf("GetUserByID after eviction: %v", err)
	}
	if reader.calls != 2 {
		t.Fatalf("expected a store lookup after eviction, got %d", reader.calls)
	}
}

func TestTokenVerifier(t *testing.T) {
	secret := "test-secret"
	known := &models.UserBasic{UserID: uuid.New(), FirstName: "Dana"}
	directory := NewUserDirectory(&stubUserReader{users: map[uuid.UUID]*models.UserBasic{known.UserID: known}}, nil, time.Minute)
	verifier := NewTokenVerifier(secret, directory)

	valid, err := utils.GenerateToken(known.UserID.String(), secret)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	unknownUser, _ := utils.GenerateToken(uuid.NewString(), secret)
	badSubject, _ := utils.GenerateToken("not-a-uuid", secret)
	expired, _ := utils.GenerateTokenWithTTL(known.UserID.String(), secret, -time.Minute)
	wrongSecret, _ := utils.GenerateToken(known.UserID.String(), "other-secret")

	userID, err := verifier.VerifyToken(context.Background(), valid)
	if err != nil {
		t.Fatalf("VerifyToken: %v", err)
	}
	if userID != known.UserID {
		t.Fatalf("expected %s, got %s", known.UserID, userID)
	}

	for name, token := range map[string]string{
		"empty":        "",
		"unknown user": unknownUser,
		"bad subject":  badSubject,
		"expired":      expired,
		"wrong secret": wrongSecret,
		"garbage":      "abc.def.ghi",
	} {
		if _, err := verifier.VerifyToken(context.Background(), token); !errors.Is(err, ErrUnauthenticated) {
			t.Errorf("%s: expected ErrUnauthenticated, got %v", name, err)
		}
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/subleasehub/sublease-backend/internal/models"
	"github.com/subleasehub/sublease-backend/internal/repository"
)

var (
	testDBOnce sync.Once
	testDBPool *pgxpool.Pool
	testDBErr  error
)

func TestChatServiceFirstMessageCreatesConversation(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationChatService(pool)

	alice := createTestUser(t, ctx, pool, "Alice", "Nguyen")
	bob := createTestUser(t, ctx, pool, "Bob", "Okafor")
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, alice, bob) })

	message, err := service.SendMessage(ctx, alice, SendMessageInput{ReceiverID: bob, Content: "Hi"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if message.Status != models.MessageStatusSent || message.MessageType != models.DefaultMessageType {
		t.Fatalf("unexpected message defaults: %+v", message)
	}
	if message.Sender == nil || message.Sender.FirstName != "Alice" {
		t.Fatalf("expected sender to be attached, got %+v", message.Sender)
	}

	conversation, err := repository.NewConversationRepository(pool).GetByPair(ctx, bob, alice)
	if err != nil {
		t.Fatalf("GetByPair: %v", err)
	}
	if time.Since(conversation.LastMessageAt) > time.Minute {
		t.Fatalf("expected last_message_at close to now, got %s", conversation.LastMessageAt)
	}

	aliceSummaries, err := service.ListConversationSummaries(ctx, alice)
	if err != nil {
		t.Fatalf("ListConversationSummaries(alice): %v", err)
	}
	if len(aliceSummaries) != 1 {
		t.Fatalf("expected one conversation for alice, got %d", len(aliceSummaries))
	}
	if aliceSummaries[0].OtherUserID != bob || aliceSummaries[0].UnreadCount != 0 {
		t.Fatalf("unexpected alice summary: %+v", aliceSummaries[0])
	}
	if aliceSummaries[0].LastMessage == nil || *aliceSummaries[0].LastMessage != "Hi" {
		t.Fatalf("expected last message Hi, got %v", aliceSummaries[0].LastMessage)
	}

	bobSummaries, err := service.ListConversationSummaries(ctx, bob)
	if err != nil {
		t.Fatalf("ListConversationSummaries(bob): %v", err)
	}
	if len(bobSummaries) != 1 || bobSummaries[0].UnreadCount != 1 || bobSummaries[0].OtherUserName != "Alice Nguyen" {
		t.Fatalf("unexpected bob summaries: %+v", bobSummaries)
	}
	if bobSummaries[0].ConversationID != aliceSummaries[0].ConversationID {
		t.Fatalf("both sides must see the same conversation")
	}

	readMessage, created, err := service.MarkMessageRead(ctx, message.ID, bob)
	if err != nil {
		t.Fatalf("MarkMessageRead: %v", err)
	}
	if !created || readMessage == nil || readMessage.SenderID != alice {
		t.Fatalf("expected a new receipt for alice's message, got created=%v message=%+v", created, readMessage)
	}

	_, created, err = service.MarkMessageRead(ctx, message.ID, bob)
	if err != nil {
		t.Fatalf("MarkMessageRead again: %v", err)
	}
	if created {
		t.Fatalf("second receipt must not be created")
	}

	unread, err := service.CountUnread(ctx, bob, alice)
	if err != nil {
		t.Fatalf("CountUnread: %v", err)
	}
	if unread != 0 {
		t.Fatalf("expected 0 unread after reading, got %d", unread)
	}
}

func TestChatServiceUnreadCountTracksReceipts(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationChatService(pool)

	alice := createTestUser(t, ctx, pool, "Alice", "Nguyen")
	bob := createTestUser(t, ctx, pool, "Bob", "Okafor")
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, alice, bob) })

	var sent []*models.Message
	for i := 0; i < 3; i++ {
		message, err := service.SendMessage(ctx, alice, SendMessageInput{ReceiverID: bob, Content: fmt.Sprintf("listing %d", i)})
		if err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
		sent = append(sent, message)
	}
	if _, err := service.SendMessage(ctx, bob, SendMessageInput{ReceiverID: alice, Content: "thanks"}); err != nil {
		t.Fatalf("SendMessage reply: %v", err)
	}

	assertUnread := func(viewer, from uuid.UUID, want int) {
		t.Helper()
		got, err := service.CountUnread(ctx, viewer, from)
		if err != nil {
			t.Fatalf("CountUnread: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d unread, got %d", want, got)
		}
	}

	assertUnread(bob, alice, 3)
	assertUnread(alice, bob, 1)

	if _, created, err := service.MarkMessageRead(ctx, sent[0].ID, alice); err != nil || created {
		t.Fatalf("sender must not be able to mark their own message read: created=%v err=%v", created, err)
	}

	for _, message := range sent {
		if _, _, err := service.MarkMessageRead(ctx, message.ID, bob); err != nil {
			t.Fatalf("MarkMessageRead: %v", err)
		}
	}
	assertUnread(bob, alice, 0)
	assertUnread(alice, bob, 1)

	messages, err := service.ListConversationMessages(ctx, bob, mustConversationID(t, ctx, pool, alice, bob), 0, 2)
	if err != nil {
		t.Fatalf("ListConversationMessages: %v", err)
	}
	if len(messages) != 2 || messages[0].Content != "thanks" {
		t.Fatalf("expected newest-first page of 2, got %+v", messages)
	}
}

func TestChatServiceEditRequiresSender(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationChatService(pool)

	alice := createTestUser(t, ctx, pool, "Alice", "Nguyen")
	bob := createTestUser(t, ctx, pool, "Bob", "Okafor")
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, alice, bob) })

	message, err := service.SendMessage(ctx, alice, SendMessageInput{ReceiverID: bob, Content: "Rent is 900"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if _, err := service.UpdateMessage(ctx, bob, message.ID, "Rent is 100"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for non-sender edit, got %v", err)
	}
	unchanged, err := service.GetMessage(ctx, bob, message.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if unchanged.Content != "Rent is 900" || unchanged.IsEdited {
		t.Fatalf("message changed by non-sender: %+v", unchanged)
	}

	edited, err := service.UpdateMessage(ctx, alice, message.ID, "Rent is 950")
	if err != nil {
		t.Fatalf("UpdateMessage: %v", err)
	}
	if !edited.IsEdited || edited.EditedAt == nil || edited.Content != "Rent is 950" {
		t.Fatalf("unexpected edit result: %+v", edited)
	}

	carol := createTestUser(t, ctx, pool, "Carol", "Diaz")
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, carol) })
	if _, err := service.GetMessage(ctx, carol, message.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for outsider, got %v", err)
	}
}

func TestChatServiceDeleteRequiresSender(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationChatService(pool)

	alice := createTestUser(t, ctx, pool, "Alice", "Nguyen")
	bob := createTestUser(t, ctx, pool, "Bob", "Okafor")
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, alice, bob) })

	message, err := service.SendMessage(ctx, alice, SendMessageInput{ReceiverID: bob, Content: "typo"})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if deleted, err := service.DeleteMessage(ctx, bob, message.ID); err != nil || deleted {
		t.Fatalf("receiver must not delete: deleted=%v err=%v", deleted, err)
	}
	if deleted, err := service.DeleteMessage(ctx, alice, message.ID); err != nil || !deleted {
		t.Fatalf("sender delete failed: deleted=%v err=%v", deleted, err)
	}
	if deleted, err := service.DeleteMessage(ctx, alice, message.ID); err != nil || deleted {
		t.Fatalf("second delete must report false: deleted=%v err=%v", deleted, err)
	}
	if _, err := service.GetMessage(ctx, alice, message.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestChatServiceConversationPairIsUnordered(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationChatService(pool)

	alice := createTestUser(t, ctx, pool, "Alice", "Nguyen")
	bob := createTestUser(t, ctx, pool, "Bob", "Okafor")
	carol := createTestUser(t, ctx, pool, "Carol", "Diaz")
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, alice, bob, carol) })

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, b := alice, bob
			if i%2 == 1 {
				a, b = bob, alice
			}
			conversation, err := service.GetOrCreateConversation(ctx, a, b)
			errs[i] = err
			if err == nil {
				ids[i] = conversation.ID
			}
		}(i)
	}
	wg.Wait()

	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("GetOrCreateConversation: %v", errs[i])
		}
		if ids[i] != ids[0] {
			t.Fatalf("expected a single conversation, got %s and %s", ids[0], ids[i])
		}
	}

	if _, err := service.GetOrCreateConversation(ctx, alice, alice); !errors.Is(err, ErrSelfConversation) {
		t.Fatalf("expected ErrSelfConversation, got %v", err)
	}

	if _, err := service.ListConversationMessages(ctx, carol, ids[0], 0, 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for outsider, got %v", err)
	}
	if _, err := service.ListConversationMessages(ctx, alice, uuid.New(), 0, 10); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for unknown conversation, got %v", err)
	}

	summary, err := service.Summarize(ctx, bob, alice)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if summary.ConversationID != ids[0] || summary.LastMessage != nil || summary.UnreadCount != 0 {
		t.Fatalf("unexpected empty-conversation summary: %+v", summary)
	}
}

func integrationTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	testDBOnce.Do(func() {
		_ = godotenv.Load(".env")
		_ = godotenv.Load(filepath.Join("..", "..", ".env"))

		dbURL := os.Getenv("DB_URL")
		if dbURL == "" {
			testDBErr = fmt.Errorf("DB_URL is not set")
			return
		}

		cfg, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			testDBErr = err
			return
		}

		testDBPool, testDBErr = pgxpool.NewWithConfig(context.Background(), cfg)
		if testDBErr != nil {
			return
		}
		testDBErr = testDBPool.Ping(context.Background())
	})

	if testDBErr != nil {
		t.Skipf("skipping integration test: %v", testDBErr)
	}
	return testDBPool
}

func newIntegrationChatService(pool *pgxpool.Pool) *ChatService {
	users := NewUserDirectory(repository.NewUserRepository(pool), nil, time.Minute)
	return NewChatService(
		pool,
		repository.NewConversationRepository(pool),
		repository.NewMessageRepository(pool),
		users,
	)
}

func createTestUser(t *testing.T, ctx context.Context, pool *pgxpool.Pool, firstName, lastName string) uuid.UUID {
	t.Helper()

	var userID uuid.UUID
	email := fmt.Sprintf("chat-test-%s@example.com", uuid.NewString())
	err := pool.QueryRow(ctx, `
		INSERT INTO users (email, first_name, last_name)
		VALUES ($1, $2, $3)
		RETURNING user_id
	`, email, firstName, lastName).Scan(&userID)
	if err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return userID
}

func mustConversationID(t *testing.T, ctx context.Context, pool *pgxpool.Pool, a, b uuid.UUID) uuid.UUID {
	t.Helper()

	conversation, err := repository.NewConversationRepository(pool).GetByPair(ctx, a, b)
	if err != nil {
		t.Fatalf("GetByPair: %v", err)
	}
	return conversation.ID
}

func cleanupTestUsers(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userIDs ...uuid.UUID) {
	t.Helper()

	statements := []string{
		`DELETE FROM messages WHERE sender_id = ANY($1) OR receiver_id = ANY($1)`,
		`DELETE FROM conversations WHERE user1_id = ANY($1) OR user2_id = ANY($1)`,
		`DELETE FROM users WHERE user_id = ANY($1)`,
	}
	for _, statement := range statements {
		if _, err := pool.Exec(ctx, statement, userIDs); err != nil {
			t.Errorf("cleanup: %v", err)
		}
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-chatbot-api/internal/cache"
	"github.com/tbourn/go-chatbot-api/internal/chatbot"
	"github.com/tbourn/go-chatbot-api/internal/domain"
	"github.com/tbourn/go-chatbot-api/internal/repo"
)

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("service_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := db.AutoMigrate(&domain.User{}, &domain.Message{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newServiceUser(t *testing.T, db *gorm.DB, name string) *domain.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), db, name, "hash")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

// echoGen is the deterministic generator used throughout the service tests.
func echoGen() chatbot.Generator {
	return chatbot.GeneratorFunc(func(_ context.Context, content string) (string, error) {
		return "echo: " + content, nil
	})
}

func failingGen(err error) chatbot.Generator {
	return chatbot.GeneratorFunc(func(context.Context, string) (string, error) {
		return "", err
	})
}

func TestCreateMessage_PairsUserMessageWithReply(t *testing.T) {
	db := newServiceDB(t)
	u := newServiceUser(t, db, "alice")
	svc := NewChatService(db, echoGen(), nil)

	ex, err := svc.CreateMessage(context.Background(), u.ID, "  hello  ")
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if ex.Message.Content != "hello" || !ex.Message.IsFromUser {
		t.Fatalf("unexpected user message: %+v", ex.Message)
	}
	if ex.Reply.Content != "echo: hello" || ex.Reply.IsFromUser {
		t.Fatalf("unexpected reply: %+v", ex.Reply)
	}
	if ex.Reply.ReplyTo == nil || *ex.Reply.ReplyTo != ex.Message.ID {
		t.Fatalf("reply not linked to message: %+v", ex.Reply)
	}

	total, _ := repo.CountMessages(context.Background(), db, u.ID)
	if total != 2 {
		t.Fatalf("expected 2 persisted rows, got %d", total)
	}
}

func TestCreateMessage_GeneratorFailureRollsBackUserMessage(t *testing.T) {
	db := newServiceDB(t)
	u := newServiceUser(t, db, "alice")
	svc := NewChatService(db, failingGen(errors.New("upstream down")), nil)

	_, err := svc.CreateMessage(context.Background(), u.ID, "hello")
	if !errors.Is(err, ErrChatbotService) {
		t.Fatalf("expected ErrChatbotService, got %v", err)
	}

	total, _ := repo.CountMessages(context.Background(), db, u.ID)
	if total != 0 {
		t.Fatalf("user message must not survive a failed exchange, %d rows remain", total)
	}
}

func TestCreateMessage_GeneratorFailureIsNotRetried(t *testing.T) {
	db := newServiceDB(t)
	u := newServiceUser(t, db, "alice")

	calls := 0
	gen := chatbot.GeneratorFunc(func(context.Context, string) (string, error) {
		calls++
		return "", errors.New("dial tcp 10.0.0.1:443: connect: connection refused")
	})
	svc := NewChatService(db, gen, nil)

	_, err := svc.CreateMessage(context.Background(), u.ID, "hello")
	if !errors.Is(err, ErrChatbotService) {
		t.Fatalf("expected ErrChatbotService, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("generator called %d times, want exactly 1", calls)
	}

	total, _ := repo.CountMessages(context.Background(), db, u.ID)
	if total != 0 {
		t.Fatalf("%d rows remain after a failed exchange", total)
	}
}

func TestCreateMessage_ContentValidation(t *testing.T) {
	db := newServiceDB(t)
	u := newServiceUser(t, db, "alice")
	svc := NewChatService(db, echoGen(), nil)
	svc.MaxContentRunes = 10

	if _, err := svc.CreateMessage(context.Background(), u.ID, "   "); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	if _, err := svc.CreateMessage(context.Background(), u.ID, strings.Repeat("x", 11)); !errors.Is(err, ErrTooLong) {
		t.Fatalf("expected ErrTooLong, got %v", err)
	}
}

func TestCreateMessage_InvalidatesCachedReads(t *testing.T) {
	db := newServiceDB(t)
	u := newServiceUser(t, db, "alice")
	mem := cache.NewMemory()
	svc := NewChatService(db, echoGen(), mem)

	ctx := context.Background()
	_ = mem.Set(ctx, cache.Key(cache.PrefixStats, u.ID, "summary"), "stale", 0)
	_ = mem.Set(ctx, cache.Key(cache.PrefixStats, 999, "summary"), "other", 0)

	if _, err := svc.CreateMessage(ctx, u.ID, "hello"); err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	if _, err := mem.Get(ctx, cache.Key(cache.PrefixStats, u.ID, "summary")); !errors.Is(err, cache.ErrMiss) {
		t.Fatal("own stats entry should be invalidated")
	}
	if _, err := mem.Get(ctx, cache.Key(cache.PrefixStats, 999, "summary")); err != nil {
		t.Fatalf("other user's entry must survive: %v", err)
	}
}

func TestEditMessage_UpdatesReplyInPlace(t *testing.T) {
	db := newServiceDB(t)
	u := newServiceUser(t, db, "alice")
	svc := NewChatService(db, echoGen(), nil)

	ex, err := svc.CreateMessage(context.Background(), u.ID, "first")
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	originalReplyID := ex.Reply.ID

	edited, err := svc.EditMessage(context.Background(), u.ID, ex.Message.ID, "second")
	if err != nil {
		t.Fatalf("EditMessage: %v", err)
	}
	if edited.Message.Content != "second" {
		t.Fatalf("message content not updated: %+v", edited.Message)
	}
	if edited.Reply.ID != originalReplyID {
		t.Fatalf("reply id changed on edit: %d -> %d", originalReplyID, edited.Reply.ID)
	}
	if edited.Reply.Content != "echo: second" {
		t.Fatalf("reply content not regenerated: %+v", edited.Reply)
	}

	total, _ := repo.CountMessages(context.Background(), db, u.ID)
	if total != 2 {
		t.Fatalf("edit must not grow the table, got %d rows", total)
	}
}

func TestEditMessage_BumpsUpdatedAt(t *testing.T) {
	db := newServiceDB(t)
	u := newServiceUser(t, db, "alice")
	svc := NewChatService(db, echoGen(), nil)

	ex, err := svc.CreateMessage(context.Background(), u.ID, "original")
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	edited, err := svc.EditMessage(context.Background(), u.ID, ex.Message.ID, "revised")
	if err != nil {
		t.Fatalf("EditMessage: %v", err)
	}

	if !edited.Message.UpdatedAt.After(ex.Message.UpdatedAt) {
		t.Fatalf("message updated_at not bumped: %v -> %v", ex.Message.UpdatedAt, edited.Message.UpdatedAt)
	}
	if !edited.Reply.UpdatedAt.After(ex.Reply.UpdatedAt) {
		t.Fatalf("reply updated_at not bumped: %v -> %v", ex.Reply.UpdatedAt, edited.Reply.UpdatedAt)
	}

	stored, _ := repo.GetMessage(context.Background(), db, ex.Message.ID, u.ID)
	if stored.UpdatedAt.Sub(edited.Message.UpdatedAt).Abs() > time.Second {
		t.Fatalf("response stamp %v drifts from stored %v", edited.Message.UpdatedAt, stored.UpdatedAt)
	}
}

func TestEditMessage_GeneratorFailureIsNotRetried(t *testing.T) {
	db := newServiceDB(t)
	u := newServiceUser(t, db, "alice")

	okSvc := NewChatService(db, echoGen(), nil)
	ex, err := okSvc.CreateMessage(context.Background(), u.ID, "original")
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	calls := 0
	gen := chatbot.GeneratorFunc(func(context.Context, string) (string, error) {
		calls++
		return "", errors.New("read tcp: connection reset by peer")
	})
	badSvc := NewChatService(db, gen, nil)

	if _, err := badSvc.EditMessage(context.Background(), u.ID, ex.Message.ID, "changed"); !errors.Is(err, ErrChatbotService) {
		t.Fatalf("expected ErrChatbotService, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("generator called %d times, want exactly 1", calls)
	}
}

func TestEditMessage_CreatesReplyWhenNoneExists(t *testing.T) {
	db := newServiceDB(t)
	u := newServiceUser(t, db, "alice")
	svc := NewChatService(db, echoGen(), nil)

	// A lone user message with no attached reply.
	orphan, err := repo.CreateMessage(context.Background(), db, u.ID, "lonely", true, nil)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	ex, err := svc.EditMessage(context.Background(), u.ID, orphan.ID, "edited")
	if err != nil {
		t.Fatalf("EditMessage: %v", err)
	}
	if ex.Reply == nil || ex.Reply.ReplyTo == nil || *ex.Reply.ReplyTo != orphan.ID {
		t.Fatalf("expected a fresh reply, got %+v", ex.Reply)
	}
}

func TestEditMessage_GeneratorFailureLeavesContentUntouched(t *testing.T) {
	db := newServiceDB(t)
	u := newServiceUser(t, db, "alice")

	okSvc := NewChatService(db, echoGen(), nil)
	ex, err := okSvc.CreateMessage(context.Background(), u.ID, "original")
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}

	badSvc := NewChatService(db, failingGen(errors.New("upstream down")), nil)
	if _, err := badSvc.EditMessage(context.Background(), u.ID, ex.Message.ID, "changed"); !errors.Is(err, ErrChatbotService) {
		t.Fatalf("expected ErrChatbotService, got %v", err)
	}

	got, _ := repo.GetMessage(context.Background(), db, ex.Message.ID, u.ID)
	if got.Content != "original" {
		t.Fatalf("rolled-back edit leaked: %+v", got)
	}
}

func TestEditMessage_ScopedToOwner(t *testing.T) {
	db := newServiceDB(t)
	alice := newServiceUser(t, db, "alice")
	bob := newServiceUser(t, db, "bob")
	svc := NewChatService(db, echoGen(), nil)

	ex, _ := svc.CreateMessage(context.Background(), alice.ID, "mine")

	if _, err := svc.EditMessage(context.Background(), bob.ID, ex.Message.ID, "stolen"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("foreign edit should read as not found, got %v", err)
	}
	if _, err := svc.EditMessage(context.Background(), alice.ID, 9999, "x"); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("missing id should be not found, got %v", err)
	}
}

func TestDeleteMessage_RemovesExchange(t *testing.T) {
	db := newServiceDB(t)
	u := newServiceUser(t, db, "alice")
	svc := NewChatService(db, echoGen(), nil)

	ex, _ := svc.CreateMessage(context.Background(), u.ID, "bye")

	deleted, err := svc.DeleteMessage(context.Background(), u.ID, ex.Message.ID)
	if err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	if deleted.ID != ex.Message.ID || deleted.Content != "bye" {
		t.Fatalf("unexpected detached record: %+v", deleted)
	}

	total, _ := repo.CountMessages(context.Background(), db, u.ID)
	if total != 0 {
		t.Fatalf("reply should be gone with its parent, %d rows remain", total)
	}
}

func TestDeleteMessage_NotFound(t *testing.T) {
	db := newServiceDB(t)
	u := newServiceUser(t, db, "alice")
	svc := NewChatService(db, echoGen(), nil)

	if _, err := svc.DeleteMessage(context.Background(), u.ID, 12345); !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

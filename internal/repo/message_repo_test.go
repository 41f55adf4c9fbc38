package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-chatbot-api/internal/domain"
)

func newMessageRepoDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), fmt.Sprintf("message_repo_test_%d.db", time.Now().UnixNano()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	// Ensure the file handle is released before TempDir cleanup (Windows needs this).
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

func seedUser(t *testing.T, db *gorm.DB, name string) *domain.User {
	t.Helper()
	u, err := CreateUser(context.Background(), db, name, "x")
	if err != nil {
		t.Fatalf("seed user %q: %v", name, err)
	}
	return u
}

func TestCreateMessage_AssignsIDAndFields(t *testing.T) {
	db := newMessageRepoDB(t)
	u := seedUser(t, db, "alice")

	m, err := CreateMessage(context.Background(), db, u.ID, "hello", true, nil)
	if err != nil {
		t.Fatalf("CreateMessage: %v", err)
	}
	if m.ID == 0 || m.UserID != u.ID || !m.IsFromUser || m.ReplyTo != nil {
		t.Fatalf("unexpected message fields: %+v", m)
	}

	reply, err := CreateMessage(context.Background(), db, u.ID, "hi back", false, &m.ID)
	if err != nil {
		t.Fatalf("CreateMessage reply: %v", err)
	}
	if reply.ReplyTo == nil || *reply.ReplyTo != m.ID || reply.IsFromUser {
		t.Fatalf("unexpected reply fields: %+v", reply)
	}
}

func TestCreateMessage_SecondReplyViolatesUniqueIndex(t *testing.T) {
	db := newMessageRepoDB(t)
	u := seedUser(t, db, "alice")

	m, _ := CreateMessage(context.Background(), db, u.ID, "hello", true, nil)
	if _, err := CreateMessage(context.Background(), db, u.ID, "r1", false, &m.ID); err != nil {
		t.Fatalf("first reply: %v", err)
	}
	if _, err := CreateMessage(context.Background(), db, u.ID, "r2", false, &m.ID); err == nil {
		t.Fatal("expected uniqueness violation for second reply, got nil")
	}
}

func TestGetMessage_OwnershipScoping(t *testing.T) {
	db := newMessageRepoDB(t)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	m, _ := CreateMessage(context.Background(), db, alice.ID, "secret", true, nil)

	if got, err := GetMessage(context.Background(), db, m.ID, alice.ID); err != nil || got.Content != "secret" {
		t.Fatalf("owner lookup failed: got=%+v err=%v", got, err)
	}
	if _, err := GetMessage(context.Background(), db, m.ID, bob.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign lookup should read as missing, got %v", err)
	}
	if _, err := GetMessage(context.Background(), db, 9999, alice.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing id should be ErrNotFound, got %v", err)
	}
}

func TestGetReply_FindsAttachedReply(t *testing.T) {
	db := newMessageRepoDB(t)
	u := seedUser(t, db, "alice")

	m, _ := CreateMessage(context.Background(), db, u.ID, "q", true, nil)
	want, _ := CreateMessage(context.Background(), db, u.ID, "a", false, &m.ID)

	got, err := GetReply(context.Background(), db, m.ID)
	if err != nil {
		t.Fatalf("GetReply: %v", err)
	}
	if got.ID != want.ID || got.Content != "a" {
		t.Fatalf("wrong reply: %+v", got)
	}

	if _, err := GetReply(context.Background(), db, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("no reply should be ErrNotFound, got %v", err)
	}
}

func TestUpdateMessageContent_InPlace(t *testing.T) {
	db := newMessageRepoDB(t)
	u := seedUser(t, db, "alice")

	m, _ := CreateMessage(context.Background(), db, u.ID, "before", true, nil)
	stamp, err := UpdateMessageContent(context.Background(), db, m.ID, "after")
	if err != nil {
		t.Fatalf("UpdateMessageContent: %v", err)
	}
	if stamp.IsZero() || stamp.Before(m.CreatedAt) {
		t.Fatalf("bad update stamp %v for row created at %v", stamp, m.CreatedAt)
	}

	got, _ := GetMessage(context.Background(), db, m.ID, u.ID)
	if got.Content != "after" {
		t.Fatalf("content not updated: %+v", got)
	}
	if got.ID != m.ID {
		t.Fatalf("id changed on update: %d -> %d", m.ID, got.ID)
	}
	if got.UpdatedAt.Sub(stamp).Abs() > time.Second {
		t.Fatalf("stored updated_at %v != returned stamp %v", got.UpdatedAt, stamp)
	}

	if _, err := UpdateMessageContent(context.Background(), db, 9999, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update of missing row should be ErrNotFound, got %v", err)
	}
}

func TestDeleteRepliesThenMessage(t *testing.T) {
	db := newMessageRepoDB(t)
	u := seedUser(t, db, "alice")

	m, _ := CreateMessage(context.Background(), db, u.ID, "q", true, nil)
	_, _ = CreateMessage(context.Background(), db, u.ID, "a", false, &m.ID)

	n, err := DeleteReplies(context.Background(), db, m.ID)
	if err != nil || n != 1 {
		t.Fatalf("DeleteReplies: n=%d err=%v", n, err)
	}
	if err := DeleteMessage(context.Background(), db, m.ID); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}

	total, _ := CountMessages(context.Background(), db, u.ID)
	if total != 0 {
		t.Fatalf("expected empty table, got %d rows", total)
	}
}

func TestListMessagesPage_NewestFirstWithOffset(t *testing.T) {
	db := newMessageRepoDB(t)
	u := seedUser(t, db, "alice")

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		m := &domain.Message{
			Content:    fmt.Sprintf("m%d", i),
			IsFromUser: true,
			UserID:     u.ID,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	page, err := ListMessagesPage(context.Background(), db, u.ID, 1, 2)
	if err != nil {
		t.Fatalf("ListMessagesPage: %v", err)
	}
	if len(page) != 2 || page[0].Content != "m3" || page[1].Content != "m2" {
		t.Fatalf("unexpected page: %+v", page)
	}

	total, err := CountMessages(context.Background(), db, u.ID)
	if err != nil || total != 5 {
		t.Fatalf("CountMessages: total=%d err=%v", total, err)
	}
}

func TestSearchMessages_CaseInsensitiveAndScoped(t *testing.T) {
	db := newMessageRepoDB(t)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	_, _ = CreateMessage(context.Background(), db, alice.ID, "Hello World", true, nil)
	_, _ = CreateMessage(context.Background(), db, alice.ID, "goodbye", true, nil)
	_, _ = CreateMessage(context.Background(), db, bob.ID, "hello from bob", true, nil)

	got, err := SearchMessages(context.Background(), db, alice.ID, "hello", 10)
	if err != nil {
		t.Fatalf("SearchMessages: %v", err)
	}
	if len(got) != 1 || got[0].Content != "Hello World" {
		t.Fatalf("unexpected results: %+v", got)
	}
}

func TestSearchMessages_WildcardsMatchLiterally(t *testing.T) {
	db := newMessageRepoDB(t)
	u := seedUser(t, db, "alice")

	_, _ = CreateMessage(context.Background(), db, u.ID, "100% sure", true, nil)
	_, _ = CreateMessage(context.Background(), db, u.ID, "100 percent", true, nil)

	got, err := SearchMessages(context.Background(), db, u.ID, "100%", 10)
	if err != nil {
		t.Fatalf("SearchMessages: %v", err)
	}
	if len(got) != 1 || got[0].Content != "100% sure" {
		t.Fatalf("%% should match literally, got: %+v", got)
	}
}

func TestListUserMessages_FiltersRole(t *testing.T) {
	db := newMessageRepoDB(t)
	u := seedUser(t, db, "alice")

	m, _ := CreateMessage(context.Background(), db, u.ID, "q", true, nil)
	_, _ = CreateMessage(context.Background(), db, u.ID, "a", false, &m.ID)

	got, err := ListUserMessages(context.Background(), db, u.ID, 10)
	if err != nil {
		t.Fatalf("ListUserMessages: %v", err)
	}
	if len(got) != 1 || !got[0].IsFromUser {
		t.Fatalf("expected only the user message, got %+v", got)
	}
}

func TestListRepliesFor_BatchLookup(t *testing.T) {
	db := newMessageRepoDB(t)
	u := seedUser(t, db, "alice")

	m1, _ := CreateMessage(context.Background(), db, u.ID, "q1", true, nil)
	m2, _ := CreateMessage(context.Background(), db, u.ID, "q2", true, nil)
	_, _ = CreateMessage(context.Background(), db, u.ID, "a1", false, &m1.ID)
	_, _ = CreateMessage(context.Background(), db, u.ID, "a2", false, &m2.ID)

	got, err := ListRepliesFor(context.Background(), db, []uint{m1.ID, m2.ID})
	if err != nil || len(got) != 2 {
		t.Fatalf("ListRepliesFor: got=%d err=%v", len(got), err)
	}

	empty, err := ListRepliesFor(context.Background(), db, nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty parent list should return no rows: got=%v err=%v", empty, err)
	}
}

func TestListMessageWindow_AscendingAndScoped(t *testing.T) {
	db := newMessageRepoDB(t)
	alice := seedUser(t, db, "alice")
	bob := seedUser(t, db, "bob")

	var ids []uint
	for i := 0; i < 5; i++ {
		m, _ := CreateMessage(context.Background(), db, alice.ID, fmt.Sprintf("a%d", i), true, nil)
		ids = append(ids, m.ID)
	}
	_, _ = CreateMessage(context.Background(), db, bob.ID, "b", true, nil)

	got, err := ListMessageWindow(context.Background(), db, alice.ID, ids[1], ids[3])
	if err != nil {
		t.Fatalf("ListMessageWindow: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 rows in window, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].ID <= got[i-1].ID {
			t.Fatalf("window not ascending: %+v", got)
		}
	}
}

func TestEscapeLike(t *testing.T) {
	cases := map[string]string{
		"plain":  "plain",
		"100%":   `100\%`,
		"a_b":    `a\_b`,
		`back\s`: `back\\s`,
	}
	for in, want := range cases {
		if got := escapeLike(in); got != want {
			t.Fatalf("escapeLike(%q) = %q, want %q", in, got, want)
		}
	}
}

package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-chatbot-api/internal/auth"
	"github.com/tbourn/go-chatbot-api/internal/cache"
	"github.com/tbourn/go-chatbot-api/internal/repo"
)

func TestRegister_HashesPassword(t *testing.T) {
	db := newServiceDB(t)
	svc := NewUserService(db, nil, "secret", time.Minute)

	u, err := svc.Register(context.Background(), "  alice  ", "pw")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Username != "alice" {
		t.Fatalf("username not trimmed: %q", u.Username)
	}
	if u.PasswordHash == "pw" || u.PasswordHash == "" {
		t.Fatal("password must be stored hashed")
	}
	if !auth.VerifyPassword(u.PasswordHash, "pw") {
		t.Fatal("stored hash should verify the original password")
	}
}

func TestRegister_InvalidInputs(t *testing.T) {
	db := newServiceDB(t)
	svc := NewUserService(db, nil, "secret", time.Minute)

	cases := map[string][2]string{
		"blank username": {"   ", "pw"},
		"blank password": {"alice", ""},
		"too long":       {strings.Repeat("x", 51), "pw"},
	}
	for name, c := range cases {
		if _, err := svc.Register(context.Background(), c[0], c[1]); !errors.Is(err, ErrInvalidUsername) {
			t.Fatalf("%s: expected ErrInvalidUsername, got %v", name, err)
		}
	}
}

func TestRegister_DuplicateUsername(t *testing.T) {
	db := newServiceDB(t)
	svc := NewUserService(db, nil, "secret", time.Minute)

	if _, err := svc.Register(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := svc.Register(context.Background(), "alice", "pw2"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestRegister_LookupAnswersDuplicatesBeforeHashing(t *testing.T) {
	db := newServiceDB(t)
	mem := cache.NewMemory()
	svc := NewUserService(db, mem, "secret", time.Minute)
	q := NewQueryService(db, mem)
	svc.Lookup = q.GetUserByUsername

	if _, err := svc.Register(context.Background(), "alice", "pw"); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := svc.Register(context.Background(), "alice", "pw2"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	// The failed attempt warms the username cache, so the next one is
	// answered without touching the store.
	if _, err := mem.Get(context.Background(), cache.UsernameKey("alice")); err != nil {
		t.Fatalf("username cache should be warm after a duplicate attempt: %v", err)
	}
	if _, err := svc.Register(context.Background(), "alice", "pw3"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("cached duplicate: expected ErrUserExists, got %v", err)
	}
}

func TestLogin_IssuesParsableToken(t *testing.T) {
	db := newServiceDB(t)
	svc := NewUserService(db, nil, "secret", time.Minute)

	u, _ := svc.Register(context.Background(), "alice", "pw")

	tok, err := svc.Login(context.Background(), "alice", "pw")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if tok.TokenType != "bearer" || tok.AccessToken == "" {
		t.Fatalf("unexpected token payload: %+v", tok)
	}

	claims, err := auth.ParseAccessToken(tok.AccessToken, "secret")
	if err != nil || claims.UserID != u.ID {
		t.Fatalf("token should parse to the account id: claims=%+v err=%v", claims, err)
	}
}

func TestLogin_BadCredentialsIndistinguishable(t *testing.T) {
	db := newServiceDB(t)
	svc := NewUserService(db, nil, "secret", time.Minute)

	_, _ = svc.Register(context.Background(), "alice", "pw")

	if _, err := svc.Login(context.Background(), "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "nobody", "pw"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: expected ErrInvalidCredentials, got %v", err)
	}
}

func TestDelete_RemovesAccountAndCacheEntries(t *testing.T) {
	db := newServiceDB(t)
	mem := cache.NewMemory()
	svc := NewUserService(db, mem, "secret", time.Minute)
	chat := NewChatService(db, echoGen(), mem)

	u, _ := svc.Register(context.Background(), "alice", "pw")
	_, _ = chat.CreateMessage(context.Background(), u.ID, "hello")

	ctx := context.Background()
	_ = mem.Set(ctx, cache.UsernameKey("alice"), "cached", 0)
	_ = mem.Set(ctx, cache.Key(cache.PrefixStats, u.ID, "summary"), "cached", 0)

	if err := svc.Delete(ctx, u.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := repo.GetUserByID(ctx, db, u.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("user should be gone, got %v", err)
	}
	total, _ := repo.CountMessages(ctx, db, u.ID)
	if total != 0 {
		t.Fatalf("messages should be gone, %d remain", total)
	}
	if _, err := mem.Get(ctx, cache.UsernameKey("alice")); !errors.Is(err, cache.ErrMiss) {
		t.Fatal("username cache entry should be dropped")
	}
	if _, err := mem.Get(ctx, cache.Key(cache.PrefixStats, u.ID, "summary")); !errors.Is(err, cache.ErrMiss) {
		t.Fatal("stats cache entry should be dropped")
	}
}

func TestDelete_MissingUser(t *testing.T) {
	db := newServiceDB(t)
	svc := NewUserService(db, nil, "secret", time.Minute)

	if err := svc.Delete(context.Background(), 9999); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

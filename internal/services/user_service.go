// Package services – UserService
//
// This file implements UserService: registration, credential verification
// with token issuance, and account deletion. Password hashes never leave
// this layer; the domain model strips them from JSON and Login reads the
// store directly instead of the cache.
package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-chatbot-api/internal/auth"
	"github.com/tbourn/go-chatbot-api/internal/cache"
	"github.com/tbourn/go-chatbot-api/internal/domain"
	"github.com/tbourn/go-chatbot-api/internal/repo"
)

// usernameMaxRunes bounds stored usernames; the column is varchar(50).
const usernameMaxRunes = 50

// Token is the login response payload.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// UserService owns account lifecycle and authentication.
type UserService struct {
	DB    *gorm.DB
	Cache cache.Cache

	JWTSecret      string
	AccessTokenTTL time.Duration

	// Lookup resolves a username for the pre-registration availability
	// check, typically QueryService.GetUserByUsername so repeated attempts
	// on a taken name are answered from cache before any bcrypt work.
	// Optional; the unique index remains the backstop either way.
	Lookup func(ctx context.Context, username string) (*domain.User, error)
}

// NewUserService constructs a UserService issuing tokens valid for ttl.
func NewUserService(db *gorm.DB, c cache.Cache, secret string, ttl time.Duration) *UserService {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &UserService{DB: db, Cache: c, JWTSecret: secret, AccessTokenTTL: ttl}
}

// Register creates a new account. The username must be non-empty, at most 50
// runes, and not yet taken; uniqueness is enforced by the store so two
// concurrent registrations cannot both win.
func (s *UserService) Register(ctx context.Context, username, password string) (*domain.User, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Register")
	defer span.End()

	username = strings.TrimSpace(username)
	if username == "" || password == "" || utf8.RuneCountInString(username) > usernameMaxRunes {
		return nil, ErrInvalidUsername
	}

	if s.Lookup != nil {
		if _, err := s.Lookup(ctx, username); err == nil {
			return nil, ErrUserExists
		}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	u, err := repo.CreateUser(ctx, s.DB, username, hash)
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, err
	}
	return u, nil
}

// Login verifies credentials and returns a signed bearer token. Unknown
// usernames and wrong passwords produce the same error.
func (s *UserService) Login(ctx context.Context, username, password string) (*Token, error) {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Login")
	defer span.End()

	u, err := repo.GetUserByUsername(ctx, s.DB, username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.VerifyPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	tok, err := auth.GenerateAccessToken(u.ID, s.JWTSecret, s.AccessTokenTTL)
	if err != nil {
		return nil, err
	}
	return &Token{AccessToken: tok, TokenType: "bearer"}, nil
}

// Delete removes an account and everything it owns, then drops every cache
// entry for the user, the username lookup included.
func (s *UserService) Delete(ctx context.Context, userID uint) error {
	tr := otel.Tracer("services/UserService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(attribute.Int64("user.id", int64(userID))),
	)
	defer span.End()

	u, err := repo.GetUserByID(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	err = repo.WithRetry(ctx, func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return repo.DeleteUser(ctx, tx, userID)
		})
	})
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if s.Cache != nil {
		_, _ = s.Cache.Del(ctx, cache.UsernameKey(u.Username))
	}
	cache.Invalidate(ctx, s.Cache, cache.UserPatterns(userID)...)
	return nil
}

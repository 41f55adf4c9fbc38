// Package services – ChatService
//
// This file implements ChatService, the component that owns the message
// exchange lifecycle: sending a user message and pairing it with a generated
// reply, editing a message and reconciling its reply, and deleting an
// exchange. Each mutation runs inside a single transaction so a user message
// never becomes visible without the generator having succeeded.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// user and message identifiers.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-chatbot-api/internal/cache"
	"github.com/tbourn/go-chatbot-api/internal/chatbot"
	"github.com/tbourn/go-chatbot-api/internal/domain"
	"github.com/tbourn/go-chatbot-api/internal/repo"
)

// Exchange is a user message together with its generated reply.
type Exchange struct {
	Message *domain.Message `json:"message"`
	Reply   *domain.Message `json:"reply"`
}

// ChatService coordinates message persistence and reply generation.
type ChatService struct {
	DB        *gorm.DB
	Generator chatbot.Generator
	Cache     cache.Cache

	// MaxContentRunes caps accepted message content by rune length.
	// Zero disables the check.
	MaxContentRunes int
}

// NewChatService constructs a ChatService with the default content cap.
func NewChatService(db *gorm.DB, gen chatbot.Generator, c cache.Cache) *ChatService {
	return &ChatService{
		DB:              db,
		Generator:       gen,
		Cache:           c,
		MaxContentRunes: 4000,
	}
}

// CreateMessage persists a user message and its generated reply atomically.
// The user message is inserted first so the reply can reference its id; a
// generator failure rolls both back and surfaces ErrChatbotService. The whole
// transaction is retried on transient store failures.
func (s *ChatService) CreateMessage(ctx context.Context, userID uint, content string) (*Exchange, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "CreateMessage",
		trace.WithAttributes(attribute.Int64("user.id", int64(userID))),
	)
	defer span.End()

	content, err := s.normalize(content)
	if err != nil {
		return nil, err
	}

	var out Exchange
	err = repo.WithRetry(ctx, func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			userMsg, err := repo.CreateMessage(ctx, tx, userID, content, true, nil)
			if err != nil {
				return err
			}

			replyContent, err := s.Generator.GenerateReply(ctx, content)
			if err != nil {
				// Permanent: a generator failure must not re-run the
				// transaction, however transient its message reads. Each
				// retry would be another paid upstream call.
				return repo.Permanent(fmt.Errorf("%w: %v", ErrChatbotService, err))
			}

			reply, err := repo.CreateMessage(ctx, tx, userID, replyContent, false, &userMsg.ID)
			if err != nil {
				return err
			}

			out = Exchange{Message: userMsg, Reply: reply}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, userID)
	return &out, nil
}

// EditMessage overwrites the content of an existing user message and
// reconciles its reply: the generator runs on the new content and the
// existing reply is updated in place (same id), or a fresh reply is created
// when none exists. A generator failure rolls everything back, the message
// included.
func (s *ChatService) EditMessage(ctx context.Context, userID, messageID uint, newContent string) (*Exchange, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "EditMessage",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(userID)),
			attribute.Int64("message.id", int64(messageID)),
		),
	)
	defer span.End()

	newContent, err := s.normalize(newContent)
	if err != nil {
		return nil, err
	}

	var out Exchange
	err = repo.WithRetry(ctx, func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			msg, err := repo.GetMessage(ctx, tx, messageID, userID)
			if err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return ErrMessageNotFound
				}
				return err
			}

			stamp, err := repo.UpdateMessageContent(ctx, tx, msg.ID, newContent)
			if err != nil {
				return err
			}
			msg.Content = newContent
			msg.UpdatedAt = stamp

			replyContent, err := s.Generator.GenerateReply(ctx, newContent)
			if err != nil {
				return repo.Permanent(fmt.Errorf("%w: %v", ErrChatbotService, err))
			}

			reply, err := repo.GetReply(ctx, tx, msg.ID)
			switch {
			case err == nil:
				stamp, err := repo.UpdateMessageContent(ctx, tx, reply.ID, replyContent)
				if err != nil {
					return err
				}
				reply.Content = replyContent
				reply.UpdatedAt = stamp
			case errors.Is(err, repo.ErrNotFound):
				reply, err = repo.CreateMessage(ctx, tx, userID, replyContent, false, &msg.ID)
				if err != nil {
					return err
				}
			default:
				return err
			}

			out = Exchange{Message: msg, Reply: reply}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, userID)
	return &out, nil
}

// DeleteMessage removes a message and any reply pointing at it, returning
// the detached record. Replies go first; the FK points from reply to parent.
func (s *ChatService) DeleteMessage(ctx context.Context, userID, messageID uint) (*domain.Message, error) {
	tr := otel.Tracer("services/ChatService")
	ctx, span := tr.Start(ctx, "DeleteMessage",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(userID)),
			attribute.Int64("message.id", int64(messageID)),
		),
	)
	defer span.End()

	var deleted *domain.Message
	err := repo.WithRetry(ctx, func() error {
		return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			msg, err := repo.GetMessage(ctx, tx, messageID, userID)
			if err != nil {
				if errors.Is(err, repo.ErrNotFound) {
					return ErrMessageNotFound
				}
				return err
			}
			if _, err := repo.DeleteReplies(ctx, tx, msg.ID); err != nil {
				return err
			}
			if err := repo.DeleteMessage(ctx, tx, msg.ID); err != nil {
				return err
			}
			deleted = msg
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, userID)
	return deleted, nil
}

// normalize trims and validates message content.
func (s *ChatService) normalize(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	if s.MaxContentRunes > 0 && utf8.RuneCountInString(content) > s.MaxContentRunes {
		return "", ErrTooLong
	}
	return content, nil
}

// invalidate drops the user's cached reads. Runs only after a successful
// commit; a rolled-back transaction changed nothing worth invalidating.
func (s *ChatService) invalidate(ctx context.Context, userID uint) {
	cache.Invalidate(ctx, s.Cache, cache.UserPatterns(userID)...)
}

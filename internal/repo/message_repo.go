// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model: inserts, ownership-scoped lookups, reply reconciliation queries,
// pagination, search, and the id-window context query.
//
// Ownership scoping: every lookup that takes a userID treats a message owned
// by someone else exactly like a missing one (ErrNotFound). Callers never see
// the difference between the two cases.
package repo

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-chatbot-api/internal/domain"
)

// CreateMessage inserts a new message row. The returned message carries the
// assigned id immediately, even inside an open transaction, which is what
// lets the reply's reply_to reference its parent before commit.
func CreateMessage(ctx context.Context, db *gorm.DB, userID uint, content string, isFromUser bool, replyTo *uint) (*domain.Message, error) {
	m := &domain.Message{
		Content:    content,
		IsFromUser: isFromUser,
		ReplyTo:    replyTo,
		UserID:     userID,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage fetches a message by id scoped to its owner, or ErrNotFound.
func GetMessage(ctx context.Context, db *gorm.DB, id, userID uint) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetReply returns the reply whose reply_to points at messageID, or
// ErrNotFound. The unique index on reply_to guarantees there is at most one;
// the deterministic ordering is belt and braces.
func GetReply(ctx context.Context, db *gorm.DB, messageID uint) (*domain.Message, error) {
	var m domain.Message
	err := db.WithContext(ctx).
		Where("reply_to = ?", messageID).
		Order("id ASC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateMessageContent overwrites a message's content in place and bumps
// updated_at, returning the stamp it wrote so callers can keep in-memory
// copies in sync. Returns ErrNotFound when no row matched.
func UpdateMessageContent(ctx context.Context, db *gorm.DB, id uint, content string) (time.Time, error) {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"content":    content,
			"updated_at": now,
		})
	if res.Error != nil {
		return time.Time{}, res.Error
	}
	if res.RowsAffected == 0 {
		return time.Time{}, ErrNotFound
	}
	return now, nil
}

// DeleteReplies removes all messages replying to messageID and reports how
// many rows went away. Must run before deleting the parent (the FK points
// from reply to parent).
func DeleteReplies(ctx context.Context, db *gorm.DB, messageID uint) (int64, error) {
	res := db.WithContext(ctx).
		Where("reply_to = ?", messageID).
		Delete(&domain.Message{})
	return res.RowsAffected, res.Error
}

// DeleteMessage removes a single message row by id.
func DeleteMessage(ctx context.Context, db *gorm.DB, id uint) error {
	return db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&domain.Message{}).Error
}

// CountMessages returns the total number of messages (both roles) owned by
// userID.
func CountMessages(ctx context.Context, db *gorm.DB, userID uint) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListMessagesPage returns a page of the user's messages ordered most recent
// first (created_at DESC, id DESC as a stable tie-break).
func ListMessagesPage(ctx context.Context, db *gorm.DB, userID uint, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// SearchMessages performs a case-insensitive substring match over content,
// scoped to userID, newest first, capped at limit. The term is expected to
// be already case-folded by the caller; LOWER() on the column keeps the
// comparison symmetric on both SQLite and Postgres.
func SearchMessages(ctx context.Context, db *gorm.DB, userID uint, term string, limit int) ([]domain.Message, error) {
	pattern := "%" + escapeLike(term) + "%"
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("user_id = ? AND LOWER(content) LIKE ? ESCAPE '\\'", userID, pattern).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListUserMessages returns the user's own (human-authored) messages, newest
// first, capped at limit. Used to seed the recent-conversations pairing.
func ListUserMessages(ctx context.Context, db *gorm.DB, userID uint, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("user_id = ? AND is_from_user = ?", userID, true).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListRepliesFor fetches the replies for a batch of parent ids in one query.
func ListRepliesFor(ctx context.Context, db *gorm.DB, parentIDs []uint) ([]domain.Message, error) {
	if len(parentIDs) == 0 {
		return []domain.Message{}, nil
	}
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("reply_to IN ?", parentIDs).
		Find(&out).Error
	return out, err
}

// ListMessageWindow returns the user's messages with ids in [lo, hi],
// ascending by id. This is the sequential-proxy context query: ids
// approximate conversational order within one user's timeline.
func ListMessageWindow(ctx context.Context, db *gorm.DB, userID uint, lo, hi uint) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("user_id = ? AND id BETWEEN ? AND ?", userID, lo, hi).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

// escapeLike neutralizes LIKE wildcards in a user-supplied search term so
// "%"/"_" match literally.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

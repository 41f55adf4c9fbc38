// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a user is not found, functions return gorm.ErrRecordNotFound
//     (exported here as ErrNotFound).
//   - CreateUser returns ErrDuplicate when the username is already taken.
//   - Other DB errors propagate unchanged.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-chatbot-api/internal/domain"
)

// CreateUser inserts a new user row with the given username and password
// hash. Returns ErrDuplicate if the username is already registered.
func CreateUser(ctx context.Context, db *gorm.DB, username, passwordHash string) (*domain.User, error) {
	u := &domain.User{
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		return nil, asDuplicate(err)
	}
	return u, nil
}

// GetUserByID fetches a user by primary key, or ErrNotFound.
func GetUserByID(ctx context.Context, db *gorm.DB, id uint) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByUsername fetches a user by exact (case-sensitive) username,
// or ErrNotFound.
func GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// DeleteUser removes a user and all messages they own. Replies carry a
// self-referential FK to their parent, so they are deleted first, then the
// remaining user messages, then the user row. Intended to run inside a
// transaction.
func DeleteUser(ctx context.Context, db *gorm.DB, id uint) error {
	q := db.WithContext(ctx)
	if err := q.Where("user_id = ? AND reply_to IS NOT NULL", id).Delete(&domain.Message{}).Error; err != nil {
		return err
	}
	if err := q.Where("user_id = ?", id).Delete(&domain.Message{}).Error; err != nil {
		return err
	}
	res := q.Where("id = ?", id).Delete(&domain.User{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Package domain defines the persistence models for users and messages.
// These types are mapped with GORM and form the core data layer of the
// chatbot application.
package domain

import "time"

// User represents an account that owns messages. Usernames are unique and
// case-sensitive; the password is stored only as a bcrypt hash.
//
// Fields:
//   - ID: auto-increment primary key.
//   - Username: unique login name, immutable after creation.
//   - PasswordHash: opaque credential hash, never serialized.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type User struct {
	ID           uint      `json:"id"         gorm:"primaryKey"`
	Username     string    `json:"username"   gorm:"type:varchar(50);not null;uniqueIndex:ux_users_username"`
	PasswordHash string    `json:"-"          gorm:"type:varchar(255);not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// Messages are cascade-deleted when the user is removed. Replies must
	// go before their parents, which repo.DeleteUser takes care of.
	Messages []Message `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Message represents a single utterance. A message is either authored by the
// human (IsFromUser true, ReplyTo nil) or generated by the chatbot
// (IsFromUser false, ReplyTo pointing at exactly one user message).
//
// The unique index on ReplyTo is what guarantees the one-reply-per-message
// rule at the schema level: two replies can never accumulate for the same
// parent, no matter what the application layer does. NULLs are exempt from
// the uniqueness check in both SQLite and Postgres, so user messages are
// unaffected.
//
// IDs are auto-increment integers on purpose: the context-window query uses
// id ranges as a cheap sequential proxy for conversational order within a
// user's timeline.
type Message struct {
	ID         uint      `json:"id"           gorm:"primaryKey"`
	Content    string    `json:"content"      gorm:"type:text;not null"`
	IsFromUser bool      `json:"is_from_user" gorm:"not null;index:idx_messages_user_from,priority:2"`
	ReplyTo    *uint     `json:"reply_to"     gorm:"uniqueIndex:ux_messages_reply_to"`
	UserID     uint      `json:"user_id"      gorm:"not null;index:idx_messages_user_created,priority:1;index:idx_messages_user_from,priority:1"`
	CreatedAt  time.Time `json:"created_at"   gorm:"not null;index:idx_messages_user_created,priority:2"`
	UpdatedAt  time.Time `json:"updated_at"   gorm:"not null"`

	// User is the owning account. Replies inherit the owner of the message
	// they reply to.
	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`

	// Parent is the user message this one replies to, nil for user-authored
	// messages. The FK points from reply to parent, so replies are deleted
	// before their parent.
	Parent *Message `json:"-" gorm:"foreignKey:ReplyTo;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

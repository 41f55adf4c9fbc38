package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestTableNames(t *testing.T) {
	if (User{}).TableName() != "users" {
		t.Fatalf("User table = %q", (User{}).TableName())
	}
	if (Message{}).TableName() != "messages" {
		t.Fatalf("Message table = %q", (Message{}).TableName())
	}
	if (Idempotency{}).TableName() != "idempotency_keys" {
		t.Fatalf("Idempotency table = %q", (Idempotency{}).TableName())
	}
}

func TestUser_JSONNeverLeaksPasswordHash(t *testing.T) {
	u := User{
		ID:           1,
		Username:     "alice",
		PasswordHash: "bcrypt-secret",
		CreatedAt:    time.Now().UTC(),
	}
	raw, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), "bcrypt-secret") || strings.Contains(string(raw), "password") {
		t.Fatalf("hash leaked into JSON: %s", raw)
	}
}

func TestMessage_JSONShape(t *testing.T) {
	parent := uint(7)
	m := Message{
		ID:         9,
		Content:    "hi",
		IsFromUser: false,
		ReplyTo:    &parent,
		UserID:     1,
	}
	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, field := range []string{"id", "content", "is_from_user", "reply_to", "user_id", "created_at"} {
		if _, ok := decoded[field]; !ok {
			t.Fatalf("missing field %q in %s", field, raw)
		}
	}
	if decoded["reply_to"].(float64) != 7 {
		t.Fatalf("reply_to = %v", decoded["reply_to"])
	}
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the aggregate/statistics queries behind
// the user stats and activity-summary endpoints. Counts are computed with
// SQL aggregation, never by loading rows into memory.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-chatbot-api/internal/domain"
)

// UserStats holds aggregate counters for one user's message history.
type UserStats struct {
	TotalMessages int64      `json:"total_messages"`
	UserMessages  int64      `json:"user_messages"`
	BotMessages   int64      `json:"bot_messages"`
	Conversations int64      `json:"conversations"`
	LastMessageAt *time.Time `json:"last_message_at"`
}

// DailyCount is one calendar-day bucket of the activity summary.
type DailyCount struct {
	Date         string `json:"date"`
	MessageCount int64  `json:"message_count"`
}

// GetUserStats computes total/user/bot message counts in a single
// aggregation query. The latest timestamp is fetched with an ordered
// single-row select (avoids MAX() -> TEXT in SQLite).
func GetUserStats(ctx context.Context, db *gorm.DB, userID uint) (*UserStats, error) {
	var row struct {
		Total int64
		Users int64
		Bots  int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Select(
			"COUNT(*) AS total, "+
				"COALESCE(SUM(CASE WHEN is_from_user THEN 1 ELSE 0 END), 0) AS users, "+
				"COALESCE(SUM(CASE WHEN is_from_user THEN 0 ELSE 1 END), 0) AS bots").
		Where("user_id = ?", userID).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}

	stats := &UserStats{
		TotalMessages: row.Total,
		UserMessages:  row.Users,
		BotMessages:   row.Bots,
		Conversations: row.Users,
	}
	if row.Total > 0 {
		var last struct {
			CreatedAt time.Time
		}
		err = db.WithContext(ctx).
			Model(&domain.Message{}).
			Select("created_at").
			Where("user_id = ?", userID).
			Order("created_at DESC").
			Limit(1).
			Scan(&last).Error
		if err != nil {
			return nil, err
		}
		stats.LastMessageAt = &last.CreatedAt
	}
	return stats, nil
}

// GetDailyActivity returns per-UTC-day message counts for userID within
// [start, end], ordered by day. date() exists on both SQLite and Postgres.
func GetDailyActivity(ctx context.Context, db *gorm.DB, userID uint, start, end time.Time) ([]DailyCount, error) {
	var rows []struct {
		Day   string
		Count int64
	}
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Select("date(created_at) AS day, COUNT(*) AS count").
		Where("user_id = ? AND created_at >= ? AND created_at <= ?", userID, start, end).
		Group("date(created_at)").
		Order("day ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]DailyCount, 0, len(rows))
	for _, r := range rows {
		out = append(out, DailyCount{Date: r.Day, MessageCount: r.Count})
	}
	return out, nil
}

// GetPeriodStats computes role-split message counts for userID within
// [start, end] with one aggregation query.
func GetPeriodStats(ctx context.Context, db *gorm.DB, userID uint, start, end time.Time) (total, user, bot int64, err error) {
	var row struct {
		Total int64
		Users int64
		Bots  int64
	}
	err = db.WithContext(ctx).
		Model(&domain.Message{}).
		Select(
			"COUNT(*) AS total, "+
				"COALESCE(SUM(CASE WHEN is_from_user THEN 1 ELSE 0 END), 0) AS users, "+
				"COALESCE(SUM(CASE WHEN is_from_user THEN 0 ELSE 1 END), 0) AS bots").
		Where("user_id = ? AND created_at >= ? AND created_at <= ?", userID, start, end).
		Scan(&row).Error
	return row.Total, row.Users, row.Bots, err
}

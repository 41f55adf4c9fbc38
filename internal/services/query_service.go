// Package services – QueryService
//
// This file implements QueryService, the read side of the API: paginated
// history, substring search, recent conversation pairs, the id-window context
// view, and aggregate statistics. Expensive reads go through the cache with
// per-user keys; a missing or failing cache silently degrades to direct
// store reads.
package services

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"

	"github.com/tbourn/go-chatbot-api/internal/cache"
	"github.com/tbourn/go-chatbot-api/internal/domain"
	"github.com/tbourn/go-chatbot-api/internal/repo"
)

// Conversation pairs a user message with its reply for list views.
type Conversation struct {
	ID          uint      `json:"id"`
	UserMessage string    `json:"user_message"`
	BotReply    *string   `json:"bot_reply"`
	CreatedAt   time.Time `json:"created_at"`
	HasReply    bool      `json:"has_reply"`
}

// MessageContext is a message together with its id-window neighborhood.
type MessageContext struct {
	TargetMessage *domain.Message  `json:"target_message"`
	Context       []domain.Message `json:"context"`
}

// ActivitySummary aggregates a user's messaging over a trailing day window.
type ActivitySummary struct {
	PeriodDays            int               `json:"period_days"`
	StartDate             time.Time         `json:"start_date"`
	EndDate               time.Time         `json:"end_date"`
	TotalMessages         int64             `json:"total_messages"`
	UserMessages          int64             `json:"user_messages"`
	BotMessages           int64             `json:"bot_messages"`
	DailyActivity         []repo.DailyCount `json:"daily_activity"`
	AverageMessagesPerDay float64           `json:"average_messages_per_day"`
}

// QueryService serves the read-only endpoints over messages and users.
type QueryService struct {
	DB    *gorm.DB
	Cache cache.Cache

	// DefaultLimit applies when a caller passes limit <= 0; MaxLimit clamps
	// whatever the caller asks for.
	DefaultLimit int
	MaxLimit     int

	// CacheTTL covers user lookups; StatsTTL covers aggregates.
	CacheTTL time.Duration
	StatsTTL time.Duration
}

// NewQueryService constructs a QueryService with the standard pagination
// bounds and cache TTLs.
func NewQueryService(db *gorm.DB, c cache.Cache) *QueryService {
	return &QueryService{
		DB:           db,
		Cache:        c,
		DefaultLimit: 10,
		MaxLimit:     100,
		CacheTTL:     5 * time.Minute,
		StatsTTL:     3 * time.Minute,
	}
}

// GetMessagesPaginated returns one page of the user's history, newest first,
// and the unfiltered total for pagination math.
func (s *QueryService) GetMessagesPaginated(ctx context.Context, userID uint, skip, limit int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/QueryService")
	ctx, span := tr.Start(ctx, "GetMessagesPaginated",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(userID)),
			attribute.Int("skip", skip),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	skip, limit = s.clamp(skip, limit)

	total, err := repo.CountMessages(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}
	items, err := repo.ListMessagesPage(ctx, s.DB, userID, skip, limit)
	return items, total, err
}

// SearchMessages finds the user's messages containing term, case-insensitive,
// newest first. The term is Unicode case-folded before the pattern is built.
func (s *QueryService) SearchMessages(ctx context.Context, userID uint, term string, limit int) ([]domain.Message, error) {
	tr := otel.Tracer("services/QueryService")
	ctx, span := tr.Start(ctx, "SearchMessages",
		trace.WithAttributes(attribute.Int64("user.id", int64(userID))),
	)
	defer span.End()

	_, limit = s.clamp(0, limit)
	folded := cases.Fold().String(term)
	return repo.SearchMessages(ctx, s.DB, userID, folded, limit)
}

// GetRecentConversations pairs the newest user-authored messages with their
// replies. Messages whose reply is missing are reported with HasReply=false
// rather than skipped.
func (s *QueryService) GetRecentConversations(ctx context.Context, userID uint, limit int) ([]Conversation, error) {
	tr := otel.Tracer("services/QueryService")
	ctx, span := tr.Start(ctx, "GetRecentConversations",
		trace.WithAttributes(attribute.Int64("user.id", int64(userID))),
	)
	defer span.End()

	_, limit = s.clamp(0, limit)

	userMsgs, err := repo.ListUserMessages(ctx, s.DB, userID, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]uint, 0, len(userMsgs))
	for _, m := range userMsgs {
		ids = append(ids, m.ID)
	}
	replies, err := repo.ListRepliesFor(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}
	byParent := make(map[uint]*domain.Message, len(replies))
	for i := range replies {
		if replies[i].ReplyTo != nil {
			byParent[*replies[i].ReplyTo] = &replies[i]
		}
	}

	out := make([]Conversation, 0, len(userMsgs))
	for _, m := range userMsgs {
		conv := Conversation{
			ID:          m.ID,
			UserMessage: m.Content,
			CreatedAt:   m.CreatedAt,
		}
		if r, ok := byParent[m.ID]; ok {
			conv.BotReply = &r.Content
			conv.HasReply = true
		}
		out = append(out, conv)
	}
	return out, nil
}

// GetMessageWithContext returns a message plus its neighbors with ids in
// [id-contextSize, id+contextSize], ascending. The target lookup is scoped
// to the requesting user, so foreign ids read as not found.
func (s *QueryService) GetMessageWithContext(ctx context.Context, userID, messageID uint, contextSize int) (*MessageContext, error) {
	tr := otel.Tracer("services/QueryService")
	ctx, span := tr.Start(ctx, "GetMessageWithContext",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(userID)),
			attribute.Int64("message.id", int64(messageID)),
		),
	)
	defer span.End()

	if contextSize < 0 {
		contextSize = 0
	}

	target, err := repo.GetMessage(ctx, s.DB, messageID, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}

	lo := uint(1)
	if target.ID > uint(contextSize) {
		lo = target.ID - uint(contextSize)
	}
	hi := target.ID + uint(contextSize)

	window, err := repo.ListMessageWindow(ctx, s.DB, userID, lo, hi)
	if err != nil {
		return nil, err
	}
	return &MessageContext{TargetMessage: target, Context: window}, nil
}

// GetUserStats returns the user's aggregate counters, cache-aside with the
// stats TTL.
func (s *QueryService) GetUserStats(ctx context.Context, userID uint) (*repo.UserStats, error) {
	tr := otel.Tracer("services/QueryService")
	ctx, span := tr.Start(ctx, "GetUserStats",
		trace.WithAttributes(attribute.Int64("user.id", int64(userID))),
	)
	defer span.End()

	key := cache.Key(cache.PrefixStats, userID, "summary")
	var cached repo.UserStats
	if cache.GetJSON(ctx, s.Cache, key, &cached) {
		return &cached, nil
	}

	stats, err := repo.GetUserStats(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	cache.SetJSON(ctx, s.Cache, key, stats, s.StatsTTL)
	return stats, nil
}

// GetUserActivitySummary aggregates the trailing days window: daily counts,
// role totals, and the average messages per day over the whole window.
func (s *QueryService) GetUserActivitySummary(ctx context.Context, userID uint, days int) (*ActivitySummary, error) {
	tr := otel.Tracer("services/QueryService")
	ctx, span := tr.Start(ctx, "GetUserActivitySummary",
		trace.WithAttributes(
			attribute.Int64("user.id", int64(userID)),
			attribute.Int("days", days),
		),
	)
	defer span.End()

	if days <= 0 {
		days = 30
	}

	key := cache.Key(cache.PrefixStats, userID, "activity", strconv.Itoa(days))
	var hit ActivitySummary
	if cache.GetJSON(ctx, s.Cache, key, &hit) {
		return &hit, nil
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -days)

	daily, err := repo.GetDailyActivity(ctx, s.DB, userID, start, end)
	if err != nil {
		return nil, err
	}
	total, user, bot, err := repo.GetPeriodStats(ctx, s.DB, userID, start, end)
	if err != nil {
		return nil, err
	}

	out := &ActivitySummary{
		PeriodDays:            days,
		StartDate:             start,
		EndDate:               end,
		TotalMessages:         total,
		UserMessages:          user,
		BotMessages:           bot,
		DailyActivity:         daily,
		AverageMessagesPerDay: math.Round(float64(total)/float64(days)*100) / 100,
	}
	cache.SetJSON(ctx, s.Cache, key, out, s.StatsTTL)
	return out, nil
}

// GetUserByID resolves a user by id, cache-aside.
func (s *QueryService) GetUserByID(ctx context.Context, userID uint) (*domain.User, error) {
	key := cache.Key(cache.PrefixUser, userID, "by_id")
	var hit domain.User
	if cache.GetJSON(ctx, s.Cache, key, &hit) && hit.ID != 0 {
		return &hit, nil
	}

	u, err := repo.GetUserByID(ctx, s.DB, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	cache.SetJSON(ctx, s.Cache, key, u, s.CacheTTL)
	return u, nil
}

// GetUserByUsername resolves a user by exact username, cache-aside. The
// cached value carries no password hash (it is stripped on serialization),
// so credential checks must read the store directly.
func (s *QueryService) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	key := cache.UsernameKey(username)
	var hit domain.User
	if cache.GetJSON(ctx, s.Cache, key, &hit) && hit.ID != 0 {
		return &hit, nil
	}

	u, err := repo.GetUserByUsername(ctx, s.DB, username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	cache.SetJSON(ctx, s.Cache, key, u, s.CacheTTL)
	return u, nil
}

// clamp floors skip at zero, defaults a missing limit, and caps limit at the
// configured maximum.
func (s *QueryService) clamp(skip, limit int) (int, int) {
	if skip < 0 {
		skip = 0
	}
	def := s.DefaultLimit
	if def <= 0 {
		def = 10
	}
	max := s.MaxLimit
	if max <= 0 {
		max = 100
	}
	if limit <= 0 {
		limit = def
	}
	if limit > max {
		limit = max
	}
	return skip, limit
}

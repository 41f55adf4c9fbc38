// Message HTTP handlers.
//
// This file exposes REST endpoints for the message exchange:
//   - POST   /messages               (send a user message, get the reply)
//   - PUT    /messages/{id}          (edit a message, reconcile its reply)
//   - DELETE /messages/{id}          (delete a message and its reply)
//   - GET    /messages               (paginated history)
//   - GET    /messages/search        (substring search)
//   - GET    /messages/conversations (recent user/reply pairs)
//   - GET    /messages/{id}/context  (message with id-window neighborhood)
//
// Handlers are transport-thin:
//   - validate & normalize inputs (including newline and length constraints)
//   - delegate to application services (ChatService, QueryService)
//   - implement idempotency semantics on POST
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// exchange exists for (user, key), the handler returns the recorded pair and
// sets `Idempotency-Replayed: true`.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tbourn/go-chatbot-api/internal/auth"
	"github.com/tbourn/go-chatbot-api/internal/domain"
	"github.com/tbourn/go-chatbot-api/internal/http/middleware"
	"github.com/tbourn/go-chatbot-api/internal/repo"
	"github.com/tbourn/go-chatbot-api/internal/services"
	"github.com/tbourn/go-chatbot-api/internal/utils"
)

//
// Service contracts (context-aware)
//

// ChatService defines the message exchange operations consumed by HTTP
// handlers. Implementations must be safe for concurrent use and honor the
// provided context.
type ChatService interface {
	// CreateMessage persists a user message and its generated reply atomically.
	CreateMessage(ctx context.Context, userID uint, content string) (*services.Exchange, error)
	// EditMessage overwrites a message and reconciles its reply.
	EditMessage(ctx context.Context, userID, messageID uint, newContent string) (*services.Exchange, error)
	// DeleteMessage removes a message and its reply, returning the detached record.
	DeleteMessage(ctx context.Context, userID, messageID uint) (*domain.Message, error)
}

// QueryService defines the read-side operations consumed by HTTP handlers.
type QueryService interface {
	GetMessagesPaginated(ctx context.Context, userID uint, skip, limit int) ([]domain.Message, int64, error)
	SearchMessages(ctx context.Context, userID uint, term string, limit int) ([]domain.Message, error)
	GetRecentConversations(ctx context.Context, userID uint, limit int) ([]services.Conversation, error)
	GetMessageWithContext(ctx context.Context, userID, messageID uint, contextSize int) (*services.MessageContext, error)
	GetUserStats(ctx context.Context, userID uint) (*repo.UserStats, error)
	GetUserActivitySummary(ctx context.Context, userID uint, days int) (*services.ActivitySummary, error)
	GetUserByID(ctx context.Context, userID uint) (*domain.User, error)
}

// UserService defines account lifecycle operations consumed by HTTP handlers.
type UserService interface {
	Register(ctx context.Context, username, password string) (*domain.User, error)
	Login(ctx context.Context, username, password string) (*services.Token, error)
	Delete(ctx context.Context, userID uint) error
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for users and messages. It depends on
// abstract service interfaces to keep transport concerns separate from
// business logic.
type Handlers struct {
	chatSvc  ChatService
	querySvc QueryService
	userSvc  UserService

	// IdempotencyTTL bounds how long a recorded POST result replays.
	IdempotencyTTL time.Duration
}

// New constructs a Handlers instance bound to the given services.
func New(chatSvc ChatService, querySvc QueryService, userSvc UserService) *Handlers {
	return &Handlers{
		chatSvc:        chatSvc,
		querySvc:       querySvc,
		userSvc:        userSvc,
		IdempotencyTTL: 24 * time.Hour,
	}
}

//
// DTOs
//

// MessageRequest is the JSON payload for sending or editing a message.
type MessageRequest struct {
	// Content is the user message. It must be non-empty.
	Content string `json:"content" binding:"required,min=1" example:"hello there"`
}

// ExchangeResponse is the JSON envelope pairing a user message with its reply.
type ExchangeResponse struct {
	Message *domain.Message `json:"message"`
	Reply   *domain.Message `json:"reply"`
}

// MessageListResponse contains a page of messages and pagination metadata.
type MessageListResponse struct {
	Messages []domain.Message `json:"messages"`
	Total    int64            `json:"total"`
	Skip     int              `json:"skip"`
	Limit    int              `json:"limit"`
}

// ConversationListResponse wraps recent conversation pairs.
type ConversationListResponse struct {
	Conversations []services.Conversation `json:"conversations"`
	Total         int                     `json:"total"`
}

//
// Helpers
//

// nlCollapseRE collapses runs of 3+ newlines to two, preserving paragraphs.
var nlCollapseRE = regexp.MustCompile(`\n{3,}`)

// sanitizeContent normalizes user text for consistent downstream behavior:
//   - converts CRLF/CR to LF,
//   - collapses runs of 3+ LFs to exactly two (paragraph separation),
//   - trims surrounding whitespace.
func sanitizeContent(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// messageIDParam parses the :id path segment. Non-numeric ids read as a
// missing resource, indistinguishable from an id that never existed.
func messageIDParam(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
		return 0, false
	}
	return uint(id), true
}

// discoverMaxContentRunes inspects the concrete ChatService for a configured
// content-length limit. If unavailable, it returns a conservative fallback.
func discoverMaxContentRunes(svc ChatService) int {
	const fallback = 4000
	if cs, ok := svc.(*services.ChatService); ok && cs.MaxContentRunes > 0 {
		return cs.MaxContentRunes
	}
	return fallback
}

//
// Handlers
//

// PostMessage godoc
// @ID          postMessage
// @Summary     Send a message and get a chatbot reply
// @Description Persists the user message together with the generated reply.
// @Description Supports idempotency via the Idempotency-Key header (same key → same result).
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries (UUID recommended)"
// @Param       body             body    handlers.MessageRequest  true  "User message payload"
//
// @Success     200  {object}  handlers.ExchangeResponse     "Message and reply"
// @Failure     422  {object}  handlers.ErrorResponse        "Empty content"
// @Failure     503  {object}  handlers.ErrorResponse        "Chatbot unavailable"
// @Router      /messages [post]
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()
	uid := auth.UserID(c)

	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidation, "content required")
		return
	}

	// Sanitize + early size cap to fail fast at the edge.
	content := sanitizeContent(req.Content)
	if content == "" {
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidation, "content required")
		return
	}
	maxRunes := discoverMaxContentRunes(h.chatSvc)
	if maxRunes > 0 && utf8.RuneCountInString(content) > maxRunes {
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidation, fmt.Sprintf("content too long: max %d runes", maxRunes))
		return
	}

	// Idempotency (replay path): serve a recorded exchange when the
	// validator flagged a replay, or when no validator stashed the key and
	// the raw header has to be checked here.
	idemKey, fromValidator := middleware.GetIdempotencyKey(c)
	if idemKey == "" {
		idemKey = strings.TrimSpace(c.GetHeader(middleware.HeaderIdempotencyKey))
	}
	svc, hasStore := h.chatSvc.(*services.ChatService)
	hasStore = hasStore && svc.DB != nil
	if idemKey != "" && hasStore && (!fromValidator || middleware.IsReplay(c)) {
		if resp, served := tryReplay(ctx, svc.DB, uid, idemKey); served {
			c.Header("Idempotency-Replayed", "true")
			ok(c, http.StatusOK, *resp)
			return
		}
	}

	ex, err := h.chatSvc.CreateMessage(ctx, uid, content)
	if err != nil {
		failServiceError(c, err)
		return
	}

	// Idempotency (store path): best effort.
	if idemKey != "" && hasStore {
		_, _ = repo.CreateIdempotency(ctx, svc.DB, uid, idemKey, ex.Message.ID, http.StatusOK, h.IdempotencyTTL)
	}

	ok(c, http.StatusOK, ExchangeResponse{Message: ex.Message, Reply: ex.Reply})
}

// EditMessage godoc
// @ID          editMessage
// @Summary     Edit a message and regenerate its reply
// @Description Overwrites the message content, regenerates the reply, and updates the stored reply in place.
// @Tags        Messages
// @Accept      json
// @Produce     json
// @Security    BearerAuth
//
// @Param       id    path  int                       true  "Message ID"
// @Param       body  body  handlers.MessageRequest   true  "New content"
//
// @Success     200  {object}  handlers.ExchangeResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Message not found"
// @Failure     503  {object}  handlers.ErrorResponse  "Chatbot unavailable"
// @Router      /messages/{id} [put]
func (h *Handlers) EditMessage(c *gin.Context) {
	id, okID := messageIDParam(c)
	if !okID {
		return
	}

	var req MessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidation, "content required")
		return
	}
	content := sanitizeContent(req.Content)
	if content == "" {
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidation, "content required")
		return
	}

	ex, err := h.chatSvc.EditMessage(c.Request.Context(), auth.UserID(c), id, content)
	if err != nil {
		failServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, ExchangeResponse{Message: ex.Message, Reply: ex.Reply})
}

// DeleteMessage godoc
// @ID          deleteMessage
// @Summary     Delete a message
// @Description Removes the message and any reply attached to it, returning the deleted record.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
//
// @Param       id  path  int  true  "Message ID"
//
// @Success     200  {object}  domain.Message
// @Failure     404  {object}  handlers.ErrorResponse  "Message not found"
// @Router      /messages/{id} [delete]
func (h *Handlers) DeleteMessage(c *gin.Context) {
	id, okID := messageIDParam(c)
	if !okID {
		return
	}

	m, err := h.chatSvc.DeleteMessage(c.Request.Context(), auth.UserID(c), id)
	if err != nil {
		failServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, m)
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List messages (paginated)
// @Description Returns a page of the current user's messages, newest first, with the total count.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
//
// @Param       skip   query  int  false "Messages to skip"    minimum(0) default(0)
// @Param       limit  query  int  false "Messages to return"  minimum(1) maximum(100) default(10)
//
// @Success     200  {object} handlers.MessageListResponse
// @Router      /messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	uid := auth.UserID(c)
	skip := utils.AtoiDefault(c.Query("skip"), 0)
	limit := utils.AtoiDefault(c.Query("limit"), 0)

	items, total, err := h.querySvc.GetMessagesPaginated(c.Request.Context(), uid, skip, limit)
	if err != nil {
		failServiceError(c, err)
		return
	}
	if skip < 0 {
		skip = 0
	}
	ok(c, http.StatusOK, MessageListResponse{
		Messages: items,
		Total:    total,
		Skip:     skip,
		Limit:    effectiveLimit(limit, len(items)),
	})
}

// SearchMessages godoc
// @ID          searchMessages
// @Summary     Search messages
// @Description Case-insensitive substring search over the current user's messages, newest first.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
//
// @Param       q      query  string  true  "Search term"
// @Param       limit  query  int     false "Maximum results"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.MessageListResponse
// @Failure     422  {object} handlers.ErrorResponse "Missing search term"
// @Router      /messages/search [get]
func (h *Handlers) SearchMessages(c *gin.Context) {
	term := strings.TrimSpace(c.Query("q"))
	if term == "" {
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidation, "search term required")
		return
	}
	limit := utils.AtoiDefault(c.Query("limit"), 20)

	items, err := h.querySvc.SearchMessages(c.Request.Context(), auth.UserID(c), term, limit)
	if err != nil {
		failServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, MessageListResponse{
		Messages: items,
		Total:    int64(len(items)),
		Skip:     0,
		Limit:    effectiveLimit(limit, len(items)),
	})
}

// GetConversations godoc
// @ID          getConversations
// @Summary     Recent conversations
// @Description Returns the newest user messages paired with their replies.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
//
// @Param       limit  query  int  false "Maximum conversations"  minimum(1) maximum(100) default(10)
//
// @Success     200  {object} handlers.ConversationListResponse
// @Router      /messages/conversations [get]
func (h *Handlers) GetConversations(c *gin.Context) {
	limit := utils.AtoiDefault(c.Query("limit"), 10)

	convs, err := h.querySvc.GetRecentConversations(c.Request.Context(), auth.UserID(c), limit)
	if err != nil {
		failServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, ConversationListResponse{Conversations: convs, Total: len(convs)})
}

// GetMessageContext godoc
// @ID          getMessageContext
// @Summary     Message with surrounding context
// @Description Returns a message plus its neighbors within an id window, ascending by id.
// @Tags        Messages
// @Produce     json
// @Security    BearerAuth
//
// @Param       id            path   int  true  "Message ID"
// @Param       context_size  query  int  false "Neighbors on each side"  minimum(0) maximum(10) default(2)
//
// @Success     200  {object}  services.MessageContext
// @Failure     404  {object}  handlers.ErrorResponse  "Message not found"
// @Router      /messages/{id}/context [get]
func (h *Handlers) GetMessageContext(c *gin.Context) {
	id, okID := messageIDParam(c)
	if !okID {
		return
	}
	size := utils.ClampInt(utils.AtoiDefault(c.Query("context_size"), 2), 0, 10)

	mc, err := h.querySvc.GetMessageWithContext(c.Request.Context(), auth.UserID(c), id, size)
	if err != nil {
		failServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, mc)
}

// tryReplay resolves the recorded exchange for (user, key). It reports false
// when no usable record exists or any lookup fails, in which case the caller
// processes the request as a fresh exchange. A missing reply row is served as
// recorded (the exchange really has no reply); a failed reply lookup is not,
// so a store hiccup never masquerades as a reply-less exchange.
func tryReplay(ctx context.Context, db *gorm.DB, uid uint, key string) (*ExchangeResponse, bool) {
	rec, err := repo.GetIdempotency(ctx, db, uid, key, time.Now().UTC())
	if err != nil || rec == nil {
		return nil, false
	}
	prev, err := repo.GetMessage(ctx, db, rec.MessageID, uid)
	if err != nil {
		return nil, false
	}
	reply, err := repo.GetReply(ctx, db, prev.ID)
	switch {
	case err == nil:
	case errors.Is(err, repo.ErrNotFound):
		reply = nil
	default:
		return nil, false
	}
	return &ExchangeResponse{Message: prev, Reply: reply}, true
}

// effectiveLimit reports the limit the response actually used: the caller's
// when valid, otherwise at least the number of rows returned.
func effectiveLimit(requested, got int) int {
	if requested > 0 {
		return requested
	}
	if got > 0 {
		return got
	}
	return 10
}

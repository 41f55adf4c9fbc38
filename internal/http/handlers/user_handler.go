// User HTTP handlers.
//
// This file exposes REST endpoints for accounts and tokens:
//   - POST   /users             (register)
//   - POST   /token             (login, returns bearer token)
//   - GET    /users/me          (current account)
//   - DELETE /users/me          (delete account and all messages)
//   - GET    /users/me/stats    (aggregate counters)
//   - GET    /users/me/activity (trailing-window activity summary)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-chatbot-api/internal/auth"
	"github.com/tbourn/go-chatbot-api/internal/utils"
)

//
// DTOs
//

// CredentialsRequest is the JSON payload for registration and login.
type CredentialsRequest struct {
	Username string `json:"username" binding:"required,min=1,max=50" example:"alice"`
	Password string `json:"password" binding:"required,min=1" example:"s3cret"`
}

//
// Handlers
//

// Register godoc
// @ID          registerUser
// @Summary     Register a new user
// @Description Creates an account. Usernames are unique and case-sensitive.
// @Tags        Users
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CredentialsRequest  true  "Credentials"
//
// @Success     200  {object}  domain.User
// @Failure     400  {object}  handlers.ErrorResponse  "Username taken or invalid"
// @Router      /users [post]
func (h *Handlers) Register(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "username and password required")
		return
	}

	u, err := h.userSvc.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		failServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// Login godoc
// @ID          login
// @Summary     Obtain an access token
// @Description Verifies credentials and returns a signed bearer token.
// @Tags        Users
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CredentialsRequest  true  "Credentials"
//
// @Success     200  {object}  services.Token
// @Failure     401  {object}  handlers.ErrorResponse  "Incorrect username or password"
// @Router      /token [post]
func (h *Handlers) Login(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "incorrect username or password")
		return
	}

	tok, err := h.userSvc.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		failServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, tok)
}

// Me godoc
// @ID          currentUser
// @Summary     Current account
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object}  domain.User
// @Failure     401  {object}  handlers.ErrorResponse
// @Router      /users/me [get]
func (h *Handlers) Me(c *gin.Context) {
	u, err := h.querySvc.GetUserByID(c.Request.Context(), auth.UserID(c))
	if err != nil {
		failServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, u)
}

// DeleteMe godoc
// @ID          deleteUser
// @Summary     Delete the current account
// @Description Removes the account and every message it owns.
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object}  map[string]string
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /users/me [delete]
func (h *Handlers) DeleteMe(c *gin.Context) {
	if err := h.userSvc.Delete(c.Request.Context(), auth.UserID(c)); err != nil {
		failServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"status": "deleted"})
}

// Stats godoc
// @ID          userStats
// @Summary     Aggregate message statistics
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
//
// @Success     200  {object}  repo.UserStats
// @Router      /users/me/stats [get]
func (h *Handlers) Stats(c *gin.Context) {
	stats, err := h.querySvc.GetUserStats(c.Request.Context(), auth.UserID(c))
	if err != nil {
		failServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, stats)
}

// Activity godoc
// @ID          userActivity
// @Summary     Activity summary over a trailing day window
// @Tags        Users
// @Produce     json
// @Security    BearerAuth
//
// @Param       days  query  int  false  "Window size in days"  minimum(1) maximum(365) default(30)
//
// @Success     200  {object}  services.ActivitySummary
// @Router      /users/me/activity [get]
func (h *Handlers) Activity(c *gin.Context) {
	days := utils.AtoiDefault(c.Query("days"), 30)
	if days < 1 {
		days = 30
	}
	if days > 365 {
		days = 365
	}

	summary, err := h.querySvc.GetUserActivitySummary(c.Request.Context(), auth.UserID(c), days)
	if err != nil {
		failServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, summary)
}

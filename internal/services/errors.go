// Package services defines the business logic for users, message exchange,
// and history queries. This file centralizes common service-level error
// values so that they can be consistently returned by service methods and
// checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler layer.
package services

import "errors"

var (
	// ErrEmptyContent is returned when a message create or edit carries
	// blank content.
	ErrEmptyContent = errors.New("message content is empty")

	// ErrTooLong is returned when message content exceeds the configured
	// maximum length.
	ErrTooLong = errors.New("message content too long")

	// ErrMessageNotFound indicates that the requested message does not exist
	// or is not accessible to the current user. The two cases are reported
	// identically so ownership cannot be probed.
	ErrMessageNotFound = errors.New("message not found")

	// ErrUserNotFound indicates that the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserExists is returned when registering a username that is already
	// taken.
	ErrUserExists = errors.New("username already registered")

	// ErrInvalidUsername is returned when a registration carries a blank or
	// over-long username, or a blank password.
	ErrInvalidUsername = errors.New("invalid username or password")

	// ErrInvalidCredentials is returned on login with a wrong username or
	// password; both cases are reported identically.
	ErrInvalidCredentials = errors.New("incorrect username or password")

	// ErrChatbotService indicates the reply generator failed; the exchange
	// that needed it was rolled back.
	ErrChatbotService = errors.New("failed to generate reply")
)

// Package services implements the business logic for conversational turns,
// sessions, security screening, trigger matching, action dispatch, and
// feedback. This file centralizes the service-level error values so that
// they can be consistently returned by service methods and checked by
// callers.
//
// Only three errors terminate a turn: ErrCustomerNotFound, ErrConfigMissing,
// and ErrAIService. Everything else that can go wrong mid-turn (screening,
// trigger matching, action dispatch, post-reply analysis) is logged and
// swallowed so a guest never loses a reply to a side-effect failure.
// Translation into HTTP status codes is performed at the handler layer.
package services

import "errors"

// Turn-terminating errors.
var (
	// ErrCustomerNotFound indicates the tenant slug does not resolve to an
	// active customer.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrConfigMissing indicates the customer exists but has no AI
	// configuration, so no reply can be generated.
	ErrConfigMissing = errors.New("ai configuration missing")

	// ErrAIService indicates the language-model call for the reply itself
	// failed. Screening and analysis calls never surface this.
	ErrAIService = errors.New("ai service unavailable")
)

// Request validation and lookup errors.
var (
	// ErrEmptyPrompt is returned when a turn request contains an empty
	// message.
	ErrEmptyPrompt = errors.New("message is empty")

	// ErrTooLong is returned when a message exceeds the configured rune
	// limit.
	ErrTooLong = errors.New("message too long")

	// ErrSessionNotFound indicates the session does not exist or belongs to
	// another customer.
	ErrSessionNotFound = errors.New("session not found")

	// ErrMessageNotFound indicates the requested message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotificationNotFound indicates the notification does not exist or
	// belongs to another customer.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrInvalidFeedback is returned when a feedback value is outside the
	// allowed set (currently -1 or 1).
	ErrInvalidFeedback = errors.New("feedback value must be -1 or 1")

	// ErrForbiddenFeedback is returned when feedback targets a message that
	// is not an assistant reply.
	ErrForbiddenFeedback = errors.New("cannot leave feedback on this message")

	// ErrDuplicateFeedback is returned when a guest has already rated the
	// message.
	ErrDuplicateFeedback = errors.New("feedback already exists")
)

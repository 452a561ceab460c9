// Feedback HTTP handlers.
//
// This file exposes the REST endpoint for submitting feedback on assistant
// replies:
//   - POST /messages/{id}/feedback  (create feedback)
//
// Handlers in this file are transport-thin: they validate input, delegate
// to application services, and translate service errors into HTTP results.
// Feedback values are constrained to {-1, +1} to represent negative and
// positive reactions respectively.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mnordin/go-concierge-backend/internal/services"
)

// LeaveFeedbackRequest is the JSON payload for creating feedback on a reply.
//
// Value must be one of:
//   - +1 : positive feedback
//   - -1 : negative feedback
//
// GuestID is any stable client identifier; the chat widget sends the
// session id. Uniqueness is enforced per (message, guest).
type LeaveFeedbackRequest struct {
	// Value is the feedback signal: +1 (positive) or -1 (negative).
	Value int `json:"value" binding:"required,oneof=-1 1" example:"1"`
	// GuestID identifies the rating guest.
	GuestID string `json:"guest_id" binding:"required" example:"123e4567-e89b-12d3-a456-426614174000"`
}

// LeaveFeedback godoc
// @ID          leaveFeedback
// @Summary     Leave feedback on a reply
// @Description Records positive (+1) or negative (-1) feedback for an assistant reply.
// @Tags        Feedback
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Message ID (UUID)"  format(uuid)
// @Param       body  body  handlers.LeaveFeedbackRequest true "Feedback payload"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Invalid payload"
// @Failure     403  {object} handlers.ErrorResponse "Not allowed to leave feedback"
// @Failure     404  {object} handlers.ErrorResponse "Message not found"
// @Failure     409  {object} handlers.ErrorResponse "Feedback already exists"
// @Failure     500  {object} handlers.ErrorResponse "Internal server error"
// @Router      /messages/{id}/feedback [post]
func (h *Handlers) LeaveFeedback(c *gin.Context) {
	var req LeaveFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "value must be -1 or 1 and guest_id is required")
		return
	}

	messageID := c.Param("id")
	guestID := strings.TrimSpace(req.GuestID)

	if err := h.fbSvc.Leave(c.Request.Context(), guestID, messageID, req.Value); err != nil {
		switch err {
		case services.ErrMessageNotFound:
			fail(c, http.StatusNotFound, ErrCodeNotFound, "message not found")
		case services.ErrInvalidFeedback:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "value must be -1 or 1")
		case services.ErrForbiddenFeedback:
			fail(c, http.StatusForbidden, ErrCodeForbidden, "cannot leave feedback on this message")
		case services.ErrDuplicateFeedback:
			fail(c, http.StatusConflict, ErrCodeConflict, "feedback already exists")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		}
		return
	}

	noContent(c)
}

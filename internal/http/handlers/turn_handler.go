// Chat turn HTTP handler.
//
// This file exposes the public conversational endpoint:
//   - POST /chat  (process one guest message and return the reply)
//
// Handlers are transport-thin: they validate input, call application
// services, and translate results into HTTP responses.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mnordin/go-concierge-backend/internal/http/middleware"
	"github.com/mnordin/go-concierge-backend/internal/repo"
	"github.com/mnordin/go-concierge-backend/internal/services"
)

//
// Service contracts (context-aware)
//

// TurnService processes one conversational turn end to end.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type TurnService interface {
	ProcessTurn(ctx context.Context, req *services.TurnRequest) (*services.TurnResult, error)
}

// FeedbackService defines operations to capture guest feedback on replies.
type FeedbackService interface {
	// Leave submits a feedback value (-1 or 1) for messageID by guestID.
	Leave(ctx context.Context, guestID, messageID string, value int) error
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints for turns, the staff inbox, and
// feedback. It depends on concrete services for operations that need the
// database handle (ETag statistics, idempotent replays) and on interfaces
// elsewhere.
type Handlers struct {
	turnSvc  TurnService
	inboxSvc *services.InboxService
	fbSvc    FeedbackService
	idemTTL  time.Duration
}

// New constructs a Handlers instance bound to the given services. idemTTL
// bounds how long a completed turn can be replayed via Idempotency-Key.
func New(turnSvc TurnService, inboxSvc *services.InboxService, fbSvc FeedbackService, idemTTL time.Duration) *Handlers {
	return &Handlers{turnSvc: turnSvc, inboxSvc: inboxSvc, fbSvc: fbSvc, idemTTL: idemTTL}
}

//
// DTOs
//

// TurnRequest is the JSON payload for processing one guest message.
type TurnRequest struct {
	// Customer is the tenant slug or id.
	Customer string `json:"customer" binding:"required" example:"bella-vista"`
	// Message is the guest's utterance.
	Message string `json:"message" binding:"required" example:"Jag vill boka bord ikväll"`
	// SessionID continues an existing conversation when set.
	SessionID string `json:"session_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// PersonaKey selects a named persona override.
	PersonaKey string `json:"persona_key,omitempty" example:"sommelier"`
	// TestMode marks the turn as a staff test.
	TestMode bool `json:"test_mode,omitempty"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

//
// Handlers
//

// ProcessTurn godoc
// @ID          processTurn
// @Summary     Process a chat turn
// @Description Runs one guest message through screening, session continuity, and reply generation, returning the assistant reply or a handoff/deflection outcome.
// @Tags        Chat
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.TurnRequest  true  "Turn payload"
//
// @Success     200  {object}  services.TurnResult
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown customer"
// @Failure     500  {object}  handlers.ErrorResponse  "Missing configuration"
// @Failure     502  {object}  handlers.ErrorResponse  "AI service failure"
// @Router      /chat [post]
func (h *Handlers) ProcessTurn(c *gin.Context) {
	var req TurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	// Idempotent replay: when a key identifies a previously completed turn
	// for this customer and session, serve the stored reply instead of
	// re-running the pipeline and its side effects.
	idemKey, hasKey := middleware.GetIdempotencyKey(c)
	if hasKey {
		if replay := h.replayTurn(c, &req, idemKey); replay != nil {
			ok(c, http.StatusOK, replay)
			return
		}
	}

	result, err := h.turnSvc.ProcessTurn(c.Request.Context(), &services.TurnRequest{
		TenantRef:  strings.TrimSpace(req.Customer),
		Message:    req.Message,
		SessionID:  strings.TrimSpace(req.SessionID),
		PersonaKey: strings.TrimSpace(req.PersonaKey),
		TestMode:   req.TestMode,
	})
	if err != nil {
		middleware.ObserveTurn("error", "")
		switch {
		case errors.Is(err, services.ErrEmptyPrompt), errors.Is(err, services.ErrTooLong):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		case errors.Is(err, services.ErrCustomerNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "customer not found")
		case errors.Is(err, services.ErrConfigMissing):
			fail(c, http.StatusInternalServerError, ErrCodeConfigMissing, "assistant is not configured for this customer")
		case errors.Is(err, services.ErrAIService):
			fail(c, http.StatusBadGateway, ErrCodeAIUnavailable, "assistant is temporarily unavailable")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not process message")
		}
		return
	}
	middleware.ObserveTurn(turnOutcome(result), result.CustomerClass)

	if hasKey && result.MessageID != "" {
		if _, err := repo.CreateIdempotency(c.Request.Context(), h.inboxSvc.DB,
			result.CustomerID, result.SessionID, idemKey, result.MessageID,
			http.StatusOK, h.idemTTL); err != nil && !errors.Is(err, repo.ErrDuplicate) {
			middleware.LoggerFrom(c).Warn().Err(err).Msg("idempotency record store failed")
		}
	}

	ok(c, http.StatusOK, result)
}

// turnOutcome maps a result to its metrics label.
func turnOutcome(r *services.TurnResult) string {
	switch {
	case r.Blocked:
		return "blocked"
	case r.HandedOff:
		return "handed_off"
	default:
		return "normal"
	}
}

// replayTurn returns the stored result for a replayed turn, or nil when no
// valid record exists. Lookups are best effort; any failure falls through
// to normal processing.
func (h *Handlers) replayTurn(c *gin.Context, req *TurnRequest, key string) *services.TurnResult {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return nil
	}
	ctx := c.Request.Context()
	customer, err := repo.GetCustomerBySlug(ctx, h.inboxSvc.DB, strings.TrimSpace(req.Customer))
	if err != nil {
		return nil
	}
	rec, err := repo.GetIdempotency(ctx, h.inboxSvc.DB, customer.ID, sessionID, key, time.Now().UTC())
	if err != nil || rec.MessageID == "" {
		return nil
	}
	msg, err := repo.GetMessage(h.inboxSvc.DB, rec.MessageID)
	if err != nil {
		return nil
	}
	return &services.TurnResult{
		Reply:        msg.Content,
		MessageID:    msg.ID,
		SessionID:    sessionID,
		CustomerID:   customer.ID,
		CustomerSlug: customer.Slug,
		CustomerName: customer.Name,
	}
}

// Staff inbox HTTP handlers.
//
// This file exposes the dashboard endpoints for a tenant's conversations:
//   - GET  /customers/{slug}/sessions                     (list, paginated, ETag support)
//   - GET  /customers/{slug}/sessions/{id}/messages       (transcript, paginated, ETag support)
//   - POST /customers/{slug}/sessions/{id}/reply          (human reply, takes over the session)
//   - PUT  /customers/{slug}/sessions/{id}/handoff        (set or clear needs_human)
//   - GET  /customers/{slug}/notifications                (list, paginated)
//   - PUT  /customers/{slug}/notifications/{id}/read      (mark read)
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mnordin/go-concierge-backend/internal/domain"
	"github.com/mnordin/go-concierge-backend/internal/repo"
	"github.com/mnordin/go-concierge-backend/internal/services"
	"github.com/mnordin/go-concierge-backend/internal/utils"
)

//
// DTOs
//

// StaffReplyRequest is the JSON payload for a human reply.
type StaffReplyRequest struct {
	// Message is the staff member's reply text (1-4000 chars).
	Message string `json:"message" binding:"required,min=1,max=4000" example:"We have a table free at 19:00, does that work?"`
}

// HandoffRequest is the JSON payload for toggling human handling.
type HandoffRequest struct {
	// NeedsHuman hands the session to staff when true, back to the AI when false.
	NeedsHuman *bool `json:"needs_human" binding:"required"`
}

// ListSessionsResponse wraps a page of sessions and pagination information.
type ListSessionsResponse struct {
	Sessions   []domain.Session `json:"sessions"`
	Pagination Pagination       `json:"pagination"`
}

// ListMessagesResponse wraps a page of messages and pagination information.
type ListMessagesResponse struct {
	Messages   []domain.Message `json:"messages"`
	Pagination Pagination       `json:"pagination"`
}

// ListNotificationsResponse wraps a page of notifications and pagination
// information.
type ListNotificationsResponse struct {
	Notifications []domain.Notification `json:"notifications"`
	Pagination    Pagination            `json:"pagination"`
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// resolveCustomer looks the tenant up by the slug path parameter and
// aborts with 404 when it does not resolve. Returns nil after aborting.
func (h *Handlers) resolveCustomer(c *gin.Context) *domain.Customer {
	slug := strings.TrimSpace(c.Param("slug"))
	customer, err := repo.GetCustomerBySlug(c.Request.Context(), h.inboxSvc.DB, slug)
	if err != nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "customer not found")
		return nil
	}
	return customer
}

func paginationFor(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Handlers
//

// ListSessions godoc
// @ID          listSessions
// @Summary     List a customer's sessions (paginated)
// @Description Returns a page of the customer's sessions, most recently active first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Inbox
// @Produce     json
//
// @Param       slug           path    string  true  "Customer slug"  example(bella-vista)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListSessionsResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     404  {object} handlers.ErrorResponse "Unknown customer"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /customers/{slug}/sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	ctx := c.Request.Context()
	customer := h.resolveCustomer(c)
	if customer == nil {
		return
	}
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	count, maxTS, err := repo.SessionsStats(ctx, h.inboxSvc.DB, customer.ID)
	if err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"sessions:%s:%d:%d"`, customer.ID, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.inboxSvc.ListSessionsPage(ctx, customer.ID, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListSessionsResponse{
		Sessions:   items,
		Pagination: paginationFor(page, pageSize, total),
	})
}

// ListSessionMessages godoc
// @ID          listSessionMessages
// @Summary     List a session's transcript (paginated)
// @Description Returns a page of the session's messages in chronological order. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Inbox
// @Produce     json
//
// @Param       slug           path    string  true  "Customer slug"  example(bella-vista)
// @Param       id             path    string  true  "Session ID"
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"
// @Param       page           query   int     false "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListMessagesResponse
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     404  {object} handlers.ErrorResponse "Unknown customer or session"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /customers/{slug}/sessions/{id}/messages [get]
func (h *Handlers) ListSessionMessages(c *gin.Context) {
	ctx := c.Request.Context()
	customer := h.resolveCustomer(c)
	if customer == nil {
		return
	}
	sessionID := c.Param("id")
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	count, maxTS, err := repo.MessagesStats(ctx, h.inboxSvc.DB, sessionID)
	if err == nil {
		var ts int64
		if maxTS != nil {
			ts = maxTS.Unix()
		}
		etag := fmt.Sprintf(`W/"messages:%s:%d:%d"`, sessionID, count, ts)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, total, err := h.inboxSvc.ListMessagesPage(ctx, customer.ID, sessionID, page, pageSize)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{
		Messages:   items,
		Pagination: paginationFor(page, pageSize, total),
	})
}

// StaffReply godoc
// @ID          staffReply
// @Summary     Reply to a guest as a human
// @Description Appends a staff-authored reply to the session and flags it as human-handled, so subsequent guest messages bypass the AI.
// @Tags        Inbox
// @Accept      json
// @Produce     json
//
// @Param       slug  path  string  true  "Customer slug"  example(bella-vista)
// @Param       id    path  string  true  "Session ID"
// @Param       body  body  handlers.StaffReplyRequest  true  "Reply payload"
//
// @Success     201  {object}  domain.Message
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Unknown customer or session"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /customers/{slug}/sessions/{id}/reply [post]
func (h *Handlers) StaffReply(c *gin.Context) {
	customer := h.resolveCustomer(c)
	if customer == nil {
		return
	}
	var req StaffReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	msg, err := h.inboxSvc.Reply(c.Request.Context(), customer.ID, c.Param("id"), req.Message)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
		case errors.Is(err, services.ErrEmptyPrompt):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		default:
			fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not store reply")
		}
		return
	}
	ok(c, http.StatusCreated, msg)
}

// SetHandoff godoc
// @ID          setHandoff
// @Summary     Hand a session to staff or back to the AI
// @Description Sets or clears the session's needs_human flag.
// @Tags        Inbox
// @Accept      json
// @Produce     json
//
// @Param       slug  path  string  true  "Customer slug"  example(bella-vista)
// @Param       id    path  string  true  "Session ID"
// @Param       body  body  handlers.HandoffRequest  true  "Handoff payload"
//
// @Success     200  {object}  domain.Session
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse "Unknown customer or session"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /customers/{slug}/sessions/{id}/handoff [put]
func (h *Handlers) SetHandoff(c *gin.Context) {
	customer := h.resolveCustomer(c)
	if customer == nil {
		return
	}
	var req HandoffRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.NeedsHuman == nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	session, err := h.inboxSvc.SetHandoff(c.Request.Context(), customer.ID, c.Param("id"), *req.NeedsHuman)
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "session not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not update session")
		return
	}
	ok(c, http.StatusOK, session)
}

// ListNotifications godoc
// @ID          listNotifications
// @Summary     List a customer's notifications (paginated)
// @Description Returns a page of the customer's notifications, newest first. Pass unread_only=true to restrict to unread entries.
// @Tags        Inbox
// @Produce     json
//
// @Param       slug         path   string  true  "Customer slug"  example(bella-vista)
// @Param       unread_only  query  bool    false "Only unread notifications" default(false)
// @Param       page         query  int     false "Page number"     minimum(1) default(1)
// @Param       page_size    query  int     false "Items per page"  minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListNotificationsResponse
// @Failure     404  {object} handlers.ErrorResponse "Unknown customer"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /customers/{slug}/notifications [get]
func (h *Handlers) ListNotifications(c *gin.Context) {
	customer := h.resolveCustomer(c)
	if customer == nil {
		return
	}
	page, pageSize := clampPagination(c)
	unreadOnly := utils.ParseBoolDefault(c.Query("unread_only"), false)

	items, total, err := h.inboxSvc.ListNotificationsPage(c.Request.Context(), customer.ID, unreadOnly, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListNotificationsResponse{
		Notifications: items,
		Pagination:    paginationFor(page, pageSize, total),
	})
}

// MarkNotificationRead godoc
// @ID          markNotificationRead
// @Summary     Mark a notification as read
// @Description Marks the customer's notification as read. Idempotent.
// @Tags        Inbox
// @Produce     json
//
// @Param       slug  path  string  true  "Customer slug"  example(bella-vista)
// @Param       id    path  string  true  "Notification ID"
//
// @Success     204  {string}  string "No Content"
// @Failure     404  {object}  handlers.ErrorResponse "Unknown customer or notification"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /customers/{slug}/notifications/{id}/read [put]
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	customer := h.resolveCustomer(c)
	if customer == nil {
		return
	}
	err := h.inboxSvc.MarkNotificationRead(c.Request.Context(), customer.ID, c.Param("id"))
	if err != nil {
		if errors.Is(err, services.ErrNotificationNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "notification not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not update notification")
		return
	}
	noContent(c)
}

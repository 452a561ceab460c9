package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"gorm.io/gorm"

	"github.com/mnordin/go-concierge-backend/internal/domain"
	"github.com/mnordin/go-concierge-backend/internal/repo"
)

// newInboxRouter mounts the inbox endpoints the same way router.go does.
func newInboxRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newHandlersDB(t)
	h := New(&stubTurnSvc{}, newInbox(db), &stubFeedbackSvc{}, time.Hour)

	r := gin.New()
	r.GET("/customers/:slug/sessions", h.ListSessions)
	r.GET("/customers/:slug/sessions/:id/messages", h.ListSessionMessages)
	r.POST("/customers/:slug/sessions/:id/reply", h.StaffReply)
	r.PUT("/customers/:slug/sessions/:id/handoff", h.SetHandoff)
	r.GET("/customers/:slug/notifications", h.ListNotifications)
	r.PUT("/customers/:slug/notifications/:id/read", h.MarkNotificationRead)
	return r, db
}

func Test_clampPagination(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?page=-5&page_size=9999", nil)
	p, ps := clampPagination(c)
	if p != 1 || ps != 100 {
		t.Fatalf("clamp bounds got p=%d ps=%d", p, ps)
	}

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/?page=&page_size=0", nil)
	p, ps = clampPagination(c)
	if p != 1 || ps != 1 {
		t.Fatalf("clamp defaults got p=%d ps=%d", p, ps)
	}

	c, _ = gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	p, ps = clampPagination(c)
	if p != 1 || ps != 20 {
		t.Fatalf("no params got p=%d ps=%d", p, ps)
	}
}

func TestListSessions_UnknownCustomer(t *testing.T) {
	r, _ := newInboxRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/customers/nope/sessions", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown customer -> %d", w.Code)
	}
}

func TestListSessions_ETag304_and_SuccessPage(t *testing.T) {
	r, db := newInboxRouter(t)
	seedHandlerCustomer(t, db, "c-1", "trattoria")

	ctx := context.Background()
	if _, err := repo.CreateSession(ctx, db, "c-1", nil); err != nil {
		t.Fatalf("seed s1: %v", err)
	}
	if _, err := repo.CreateSession(ctx, db, "c-1", nil); err != nil {
		t.Fatalf("seed s2: %v", err)
	}

	// Compute expected ETag
	count, maxTS, err := repo.SessionsStats(ctx, db, "c-1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.Unix()
	}
	etag := fmt.Sprintf(`W/"sessions:%s:%d:%d"`, "c-1", count, ts)

	// 304 path
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/customers/trattoria/sessions", nil)
	req.Header.Set("If-None-Match", etag)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotModified {
		t.Fatalf("etag 304 -> %d", w.Code)
	}

	// 200 success with pagination
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/customers/trattoria/sessions?page=1&page_size=1", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list 200 -> %d body=%s", w.Code, w.Body.String())
	}
	var out ListSessionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(out.Sessions) != 1 {
		t.Fatalf("expected 1 session on page 1, got %d", len(out.Sessions))
	}
	if out.Pagination.Total != 2 || out.Pagination.TotalPages != 2 || !out.Pagination.HasNext {
		t.Fatalf("pagination mismatch: %#v", out.Pagination)
	}
}

func TestListSessionMessages_ChronologicalAndScoped(t *testing.T) {
	r, db := newInboxRouter(t)
	seedHandlerCustomer(t, db, "c-1", "trattoria")
	seedHandlerCustomer(t, db, "c-2", "hemtrygg")

	ctx := context.Background()
	sess, err := repo.CreateSession(ctx, db, "c-1", nil)
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	if _, err := repo.AppendMessage(db, sess.ID, domain.RoleUser, "Hej!", domain.SenderGuest); err != nil {
		t.Fatalf("seed m1: %v", err)
	}
	if _, err := repo.AppendMessage(db, sess.ID, domain.RoleAssistant, "Hej, hur kan jag hjälpa?", domain.SenderAI); err != nil {
		t.Fatalf("seed m2: %v", err)
	}

	// Transcript in order
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/customers/trattoria/sessions/"+sess.ID+"/messages", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list -> %d body=%s", w.Code, w.Body.String())
	}
	if w.Header().Get("ETag") == "" {
		t.Fatal("expected ETag header")
	}
	var out ListMessagesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(out.Messages) != 2 || out.Messages[0].Content != "Hej!" {
		t.Fatalf("unexpected transcript: %+v", out.Messages)
	}

	// Session belonging to another tenant -> 404
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/customers/hemtrygg/sessions/"+sess.ID+"/messages", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("foreign session -> %d", w.Code)
	}
}

func TestStaffReply(t *testing.T) {
	r, db := newInboxRouter(t)
	seedHandlerCustomer(t, db, "c-1", "trattoria")

	sess, err := repo.CreateSession(context.Background(), db, "c-1", nil)
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}

	// Bad JSON -> 400
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/customers/trattoria/sessions/"+sess.ID+"/reply",
		bytes.NewBufferString("{bad"))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad json -> %d", w.Code)
	}

	// Unknown session -> 404
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/customers/trattoria/sessions/nope/reply",
		bytes.NewBufferString(`{"message":"Vi har bord kl 19."}`))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown session -> %d", w.Code)
	}

	// Success -> 201, message stored as human, session handed off
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/customers/trattoria/sessions/"+sess.ID+"/reply",
		bytes.NewBufferString(`{"message":"Vi har bord kl 19."}`))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("reply -> %d body=%s", w.Code, w.Body.String())
	}
	var msg domain.Message
	if err := json.Unmarshal(w.Body.Bytes(), &msg); err != nil {
		t.Fatalf("json: %v", err)
	}
	if msg.Role != domain.RoleAssistant || msg.SenderType != domain.SenderHuman {
		t.Fatalf("unexpected message: %+v", msg)
	}

	got, err := repo.GetSession(context.Background(), db, sess.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if !got.NeedsHuman {
		t.Fatal("reply should flag the session as human handled")
	}
}

func TestSetHandoff(t *testing.T) {
	r, db := newInboxRouter(t)
	seedHandlerCustomer(t, db, "c-1", "trattoria")

	sess, err := repo.CreateSession(context.Background(), db, "c-1", nil)
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}

	// Missing needs_human -> 400
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/customers/trattoria/sessions/"+sess.ID+"/handoff",
		bytes.NewBufferString(`{}`))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing flag -> %d", w.Code)
	}

	// Set -> 200 with updated session
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/customers/trattoria/sessions/"+sess.ID+"/handoff",
		bytes.NewBufferString(`{"needs_human":true}`))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("set -> %d body=%s", w.Code, w.Body.String())
	}
	var out domain.Session
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !out.NeedsHuman {
		t.Fatalf("needs_human not set: %+v", out)
	}

	// Clear again
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/customers/trattoria/sessions/"+sess.ID+"/handoff",
		bytes.NewBufferString(`{"needs_human":false}`))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("clear -> %d", w.Code)
	}

	// Unknown session -> 404
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/customers/trattoria/sessions/nope/handoff",
		bytes.NewBufferString(`{"needs_human":true}`))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown session -> %d", w.Code)
	}
}

func TestNotifications_ListAndMarkRead(t *testing.T) {
	r, db := newInboxRouter(t)
	seedHandlerCustomer(t, db, "c-1", "trattoria")

	ctx := context.Background()
	sess, err := repo.CreateSession(ctx, db, "c-1", nil)
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	n1, err := repo.CreateNotification(ctx, db, sess.ID, "c-1", "complaint", "Guest unhappy with wait time")
	if err != nil {
		t.Fatalf("seed n1: %v", err)
	}
	n2, err := repo.CreateNotification(ctx, db, sess.ID, "c-1", "reservation", "Table for four on Friday")
	if err != nil {
		t.Fatalf("seed n2: %v", err)
	}

	// Mark one read -> 204
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/customers/trattoria/notifications/"+n2.ID+"/read", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("mark read -> %d body=%s", w.Code, w.Body.String())
	}

	// unread_only returns just the complaint
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/customers/trattoria/notifications?unread_only=true", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list unread -> %d body=%s", w.Code, w.Body.String())
	}
	var out ListNotificationsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(out.Notifications) != 1 || out.Notifications[0].ID != n1.ID {
		t.Fatalf("unexpected unread set: %+v", out.Notifications)
	}
	if out.Pagination.Total != 1 {
		t.Fatalf("unread total = %d", out.Pagination.Total)
	}

	// Full list still has both
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/customers/trattoria/notifications", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list all -> %d", w.Code)
	}
	out = ListNotificationsResponse{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(out.Notifications) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(out.Notifications))
	}

	// Unknown notification -> 404
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPut, "/customers/trattoria/notifications/nope/read", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown notification -> %d", w.Code)
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mnordin/go-concierge-backend/internal/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:services_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(
		&domain.Customer{},
		&domain.Session{},
		&domain.Message{},
		&domain.Notification{},
		&domain.Feedback{},
	); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// seedAssistantMessage creates a customer, a session, and one assistant
// reply, returning the message id.
func seedAssistantMessage(t *testing.T, db *gorm.DB) string {
	t.Helper()
	customer := &domain.Customer{ID: "cust-1", Slug: "trattoria", Name: "Trattoria", Class: domain.ClassRestaurant, Active: true}
	if err := db.Create(customer).Error; err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	session := &domain.Session{ID: "sess-1", CustomerID: customer.ID}
	if err := db.Create(session).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	msg := &domain.Message{ID: "m1", SessionID: session.ID, Role: domain.RoleAssistant, Content: "Välkommen!", SenderType: domain.SenderAI}
	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("seed message: %v", err)
	}
	return msg.ID
}

func TestFeedback_Leave_InvalidValue(t *testing.T) {
	svc := &FeedbackService{DB: newTestDB(t)}

	err := svc.Leave(context.Background(), "g1", "m1", 0) // not -1 or 1
	if !errors.Is(err, ErrInvalidFeedback) {
		t.Fatalf("expected ErrInvalidFeedback, got %v", err)
	}
}

func TestFeedback_Leave_BlankGuest(t *testing.T) {
	svc := &FeedbackService{DB: newTestDB(t)}

	err := svc.Leave(context.Background(), "   ", "m1", 1)
	if !errors.Is(err, ErrForbiddenFeedback) {
		t.Fatalf("expected ErrForbiddenFeedback, got %v", err)
	}
}

func TestFeedback_Leave_MessageNotFound(t *testing.T) {
	svc := &FeedbackService{DB: newTestDB(t)}

	err := svc.Leave(context.Background(), "g1", "missing", 1)
	if !errors.Is(err, ErrMessageNotFound) {
		t.Fatalf("expected ErrMessageNotFound, got %v", err)
	}
}

func TestFeedback_Leave_GuestMessageRejected(t *testing.T) {
	db := newTestDB(t)
	seedAssistantMessage(t, db)

	msg := &domain.Message{ID: "m2", SessionID: "sess-1", Role: domain.RoleUser, Content: "hej", SenderType: domain.SenderGuest}
	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("seed msg: %v", err)
	}

	svc := &FeedbackService{DB: db}
	err := svc.Leave(context.Background(), "g1", msg.ID, 1)
	if !errors.Is(err, ErrForbiddenFeedback) {
		t.Fatalf("expected ErrForbiddenFeedback, got %v", err)
	}
}

func TestFeedback_Leave_Success(t *testing.T) {
	db := newTestDB(t)
	msgID := seedAssistantMessage(t, db)

	svc := &FeedbackService{DB: db}
	if err := svc.Leave(context.Background(), "g1", msgID, -1); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	var fb domain.Feedback
	if err := db.Where("message_id = ? AND guest_id = ?", msgID, "g1").First(&fb).Error; err != nil {
		t.Fatalf("feedback not persisted: %v", err)
	}
	if fb.Value != -1 {
		t.Fatalf("value = %d", fb.Value)
	}
}

func TestFeedback_Leave_Duplicate(t *testing.T) {
	db := newTestDB(t)
	msgID := seedAssistantMessage(t, db)

	svc := &FeedbackService{DB: db}
	if err := svc.Leave(context.Background(), "g1", msgID, 1); err != nil {
		t.Fatalf("first feedback: %v", err)
	}

	err := svc.Leave(context.Background(), "g1", msgID, -1)
	if !errors.Is(err, ErrDuplicateFeedback) {
		t.Fatalf("expected ErrDuplicateFeedback, got %v", err)
	}

	// A different guest on the same message is still allowed.
	if err := svc.Leave(context.Background(), "g2", msgID, 1); err != nil {
		t.Fatalf("second guest: %v", err)
	}
}

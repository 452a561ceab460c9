package repo

import (
	"context"
	"errors"
	"testing"

	"gorm.io/gorm"

	"github.com/mnordin/go-concierge-backend/internal/domain"
)

func newNotificationDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := newRepoDB(t, &domain.Customer{}, &domain.Session{}, &domain.Notification{})
	seedTenant(t, db, "cust-1", "trattoria", true)
	if err := db.Create(&domain.Session{ID: "s1", CustomerID: "cust-1"}).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return db
}

func TestCreateNotification_RoundTrip(t *testing.T) {
	db := newNotificationDB(t)

	exists, err := NotificationExists(context.Background(), db, "s1", "reservation")
	if err != nil || exists {
		t.Fatalf("fresh session: exists=%v err=%v", exists, err)
	}

	n, err := CreateNotification(context.Background(), db, "s1", "cust-1", "reservation", "Reservation 2026-09-04 kl 19:00, 4 pers")
	if err != nil {
		t.Fatalf("CreateNotification: %v", err)
	}
	if n == nil || n.ID == "" || n.ReadAt != nil {
		t.Fatalf("unexpected notification: %+v", n)
	}

	exists, err = NotificationExists(context.Background(), db, "s1", "reservation")
	if err != nil || !exists {
		t.Fatalf("after create: exists=%v err=%v", exists, err)
	}
}

func TestCreateNotification_RaceLosesQuietly(t *testing.T) {
	db := newNotificationDB(t)

	if _, err := CreateNotification(context.Background(), db, "s1", "cust-1", "reservation", "first"); err != nil {
		t.Fatalf("first create: %v", err)
	}

	// Same (session, type): the unique index fires and the loser gets
	// (nil, nil), not an error.
	n, err := CreateNotification(context.Background(), db, "s1", "cust-1", "reservation", "second")
	if err != nil || n != nil {
		t.Fatalf("race loser: n=%v err=%v", n, err)
	}

	// A different type on the same session is still fine.
	if n, err := CreateNotification(context.Background(), db, "s1", "cust-1", "complaint", "other"); err != nil || n == nil {
		t.Fatalf("different type: n=%v err=%v", n, err)
	}
}

func TestListAndCountNotifications(t *testing.T) {
	db := newNotificationDB(t)

	first, err := CreateNotification(context.Background(), db, "s1", "cust-1", "reservation", "res")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := CreateNotification(context.Background(), db, "s1", "cust-1", "complaint", "compl"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := MarkNotificationRead(context.Background(), db, first.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}

	all, err := ListNotificationsPage(context.Background(), db, "cust-1", false, 0, 10)
	if err != nil || len(all) != 2 {
		t.Fatalf("all: len=%d err=%v", len(all), err)
	}

	unread, err := ListNotificationsPage(context.Background(), db, "cust-1", true, 0, 10)
	if err != nil || len(unread) != 1 || unread[0].Type != "complaint" {
		t.Fatalf("unread: %+v err=%v", unread, err)
	}

	total, err := CountNotifications(context.Background(), db, "cust-1", false)
	if err != nil || total != 2 {
		t.Fatalf("count all = %d, %v", total, err)
	}
	totalUnread, err := CountNotifications(context.Background(), db, "cust-1", true)
	if err != nil || totalUnread != 1 {
		t.Fatalf("count unread = %d, %v", totalUnread, err)
	}
}

func TestMarkNotificationRead_NotFound(t *testing.T) {
	db := newNotificationDB(t)
	if err := MarkNotificationRead(context.Background(), db, "missing"); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

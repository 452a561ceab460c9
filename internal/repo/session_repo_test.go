package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/mnordin/go-concierge-backend/internal/domain"
)

func newSessionDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := newRepoDB(t, &domain.Customer{}, &domain.Session{})
	seedTenant(t, db, "cust-1", "trattoria", true)
	return db
}

func TestCreateAndGetSession(t *testing.T) {
	db := newSessionDB(t)

	created, err := CreateSession(context.Background(), db, "cust-1", domain.JSONMap{"origin": "chat_api"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("session id must be generated")
	}

	got, err := GetSession(context.Background(), db, created.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.CustomerID != "cust-1" || got.Metadata.String("origin") != "chat_api" {
		t.Fatalf("unexpected session: %+v", got)
	}

	if _, err := GetSession(context.Background(), db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing session: got %v", err)
	}
}

func TestUpdateSession(t *testing.T) {
	db := newSessionDB(t)
	s, err := CreateSession(context.Background(), db, "cust-1", nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	fields := map[string]any{"needs_human": true, "risk_level": 5, "suspicious": true, "security_reason": "probing"}
	if err := UpdateSession(context.Background(), db, s.ID, fields); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	got, err := GetSession(context.Background(), db, s.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if !got.NeedsHuman || got.RiskLevel != 5 || !got.Suspicious || got.SecurityReason != "probing" {
		t.Fatalf("update not applied: %+v", got)
	}

	if err := UpdateSession(context.Background(), db, "missing", fields); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("missing session update: got %v", err)
	}
}

func TestMergeSessionMetadata(t *testing.T) {
	db := newSessionDB(t)
	s, err := CreateSession(context.Background(), db, "cust-1", domain.JSONMap{"origin": "chat_api", "guest_name": "Anna"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	partial := domain.JSONMap{
		"guest_email": "anna@example.com",
		"guest_name":  "", // empty strings never overwrite
	}
	if err := MergeSessionMetadata(context.Background(), db, s.ID, partial); err != nil {
		t.Fatalf("MergeSessionMetadata: %v", err)
	}

	got, err := GetSession(context.Background(), db, s.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Metadata.String("guest_email") != "anna@example.com" {
		t.Fatalf("new key not merged: %v", got.Metadata)
	}
	if got.Metadata.String("guest_name") != "Anna" {
		t.Fatalf("empty value must not overwrite: %v", got.Metadata)
	}
	if got.Metadata.String("origin") != "chat_api" {
		t.Fatalf("unrelated keys must survive: %v", got.Metadata)
	}
}

func TestListSessionsPage_MostRecentFirst(t *testing.T) {
	db := newSessionDB(t)

	old := &domain.Session{ID: "s-old", CustomerID: "cust-1", UpdatedAt: time.Now().UTC().Add(-time.Hour)}
	fresh := &domain.Session{ID: "s-new", CustomerID: "cust-1", UpdatedAt: time.Now().UTC()}
	for _, s := range []*domain.Session{old, fresh} {
		if err := db.Create(s).Error; err != nil {
			t.Fatalf("seed session: %v", err)
		}
	}

	got, err := ListSessionsPage(context.Background(), db, "cust-1", 0, 10)
	if err != nil {
		t.Fatalf("ListSessionsPage: %v", err)
	}
	if len(got) != 2 || got[0].ID != "s-new" {
		t.Fatalf("expected most recently active first: %+v", got)
	}

	page2, err := ListSessionsPage(context.Background(), db, "cust-1", 1, 1)
	if err != nil {
		t.Fatalf("ListSessionsPage page 2: %v", err)
	}
	if len(page2) != 1 || page2[0].ID != "s-old" {
		t.Fatalf("unexpected second page: %+v", page2)
	}

	total, err := CountSessions(context.Background(), db, "cust-1")
	if err != nil || total != 2 {
		t.Fatalf("CountSessions = %d, %v", total, err)
	}
}

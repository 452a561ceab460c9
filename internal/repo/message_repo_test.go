package repo

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/mnordin/go-concierge-backend/internal/domain"
)

func newMessageDB(t *testing.T) *gorm.DB {
	t.Helper()
	db := newRepoDB(t, &domain.Customer{}, &domain.Session{}, &domain.Message{})
	seedTenant(t, db, "cust-1", "trattoria", true)
	if err := db.Create(&domain.Session{ID: "s1", CustomerID: "cust-1"}).Error; err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return db
}

func seedTranscript(t *testing.T, db *gorm.DB) {
	t.Helper()
	for _, m := range []struct{ role, content, sender string }{
		{domain.RoleUser, "Hej!", domain.SenderGuest},
		{domain.RoleAssistant, "Hej, välkommen!", domain.SenderAI},
		{domain.RoleUser, "Har ni bord ikväll?", domain.SenderGuest},
	} {
		if _, err := AppendMessage(db, "s1", m.role, m.content, m.sender); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func TestAppendMessage(t *testing.T) {
	db := newMessageDB(t)

	m, err := AppendMessage(db, "s1", domain.RoleUser, "Hej!", domain.SenderGuest)
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if m.ID == "" || m.Role != domain.RoleUser || m.SenderType != domain.SenderGuest {
		t.Fatalf("unexpected message: %+v", m)
	}

	got, err := GetMessage(db, m.ID)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	if got.Content != "Hej!" {
		t.Fatalf("content = %q", got.Content)
	}
}

func TestListRecentMessages_NewestFirst(t *testing.T) {
	db := newMessageDB(t)
	seedTranscript(t, db)

	got, err := ListRecentMessages(db, "s1", 2)
	if err != nil {
		t.Fatalf("ListRecentMessages: %v", err)
	}
	if len(got) != 2 || got[0].Content != "Har ni bord ikväll?" {
		t.Fatalf("expected newest first: %+v", got)
	}
}

func TestListHistoryTail_KeepsNewestWindow(t *testing.T) {
	db := newMessageDB(t)
	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 15; i++ {
		m := &domain.Message{
			ID:         fmt.Sprintf("m-%02d", i),
			SessionID:  "s1",
			Role:       domain.RoleUser,
			SenderType: domain.SenderGuest,
			Content:    fmt.Sprintf("msg-%02d", i),
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := db.Create(m).Error; err != nil {
			t.Fatalf("seed message: %v", err)
		}
	}

	got, err := ListHistoryTail(db, "s1", 10)
	if err != nil {
		t.Fatalf("ListHistoryTail: %v", err)
	}
	if len(got) != 10 {
		t.Fatalf("window = %d messages", len(got))
	}
	// The window must be the newest ten, oldest first.
	if got[0].Content != "msg-05" || got[9].Content != "msg-14" {
		t.Fatalf("expected msg-05..msg-14, got %q..%q", got[0].Content, got[9].Content)
	}

	all, err := ListHistoryTail(db, "s1", 0)
	if err != nil || len(all) != 15 || all[0].Content != "msg-00" {
		t.Fatalf("unlimited tail must be the full chronological transcript: %d, %v", len(all), err)
	}
}

func TestListMessagesPage(t *testing.T) {
	db := newMessageDB(t)
	seedTranscript(t, db)

	page, err := ListMessagesPage(db, "s1", 1, 1)
	if err != nil {
		t.Fatalf("ListMessagesPage: %v", err)
	}
	if len(page) != 1 || page[0].Content != "Hej, välkommen!" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestCountMessages(t *testing.T) {
	db := newMessageDB(t)
	seedTranscript(t, db)

	total, err := CountMessages(db, "s1")
	if err != nil || total != 3 {
		t.Fatalf("CountMessages = %d, %v", total, err)
	}

	// Missing table must surface as an error, not a silent zero.
	bare := newRepoDB(t)
	if _, err := CountMessages(bare, "s1"); err == nil {
		t.Fatalf("expected error without schema")
	}
}

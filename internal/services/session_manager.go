// Package services – SessionManager
//
// This file implements session continuity for the turn pipeline: resolving
// or lazily creating the conversation session, seeding its metadata, and
// deciding whether a human has taken the conversation over. Takeover is the
// OR of two independent signals so a staff member answering from the
// dashboard suppresses the model even before the needs_human flag lands.
package services

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/mnordin/go-concierge-backend/internal/domain"
)

// takeoverWindow is how many trailing messages are inspected for a human
// sender when deciding takeover.
const takeoverWindow = 3

// metadataOrigin tags sessions created through the public chat endpoint.
const metadataOrigin = "chat_api"

// SessionStore is the persistence contract required by SessionManager.
type SessionStore interface {
	GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.Session, error)
	CreateSession(ctx context.Context, db *gorm.DB, customerID string, metadata domain.JSONMap) (*domain.Session, error)
	UpdateSession(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error
	MergeSessionMetadata(ctx context.Context, db *gorm.DB, id string, partial domain.JSONMap) error
}

// MessageStore is the history contract required by SessionManager.
type MessageStore interface {
	AppendMessage(db *gorm.DB, sessionID, role, content, senderType string) (*domain.Message, error)
	ListRecentMessages(db *gorm.DB, sessionID string, limit int) ([]domain.Message, error)
	CountMessages(db *gorm.DB, sessionID string) (int64, error)
	ListHistoryTail(db *gorm.DB, sessionID string, limit int) ([]domain.Message, error)
}

// SessionManager resolves and mutates conversation sessions.
type SessionManager struct {
	DB       *gorm.DB
	Sessions SessionStore
	Messages MessageStore
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(db *gorm.DB, sessions SessionStore, messages MessageStore) *SessionManager {
	return &SessionManager{DB: db, Sessions: sessions, Messages: messages}
}

// Resolve returns the session identified by providedID, or creates a fresh
// one when the id is empty or stale. New sessions are seeded with an origin
// tag, the test-mode flag, and the active persona selection when one is in
// effect.
func (m *SessionManager) Resolve(ctx context.Context, providedID string, customer *domain.Customer, testMode bool, companion *domain.Companion) (*domain.Session, error) {
	if providedID != "" {
		session, err := m.Sessions.GetSession(ctx, m.DB, providedID)
		if err == nil && session.CustomerID == customer.ID {
			return session, nil
		}
		// Stale or foreign id: fall through and start a new session.
		log.Debug().
			Str("session_id", providedID).
			Str("customer_id", customer.ID).
			Msg("session: provided id did not resolve, creating new session")
	}

	metadata := domain.JSONMap{
		"origin":    metadataOrigin,
		"test_mode": testMode,
	}
	if companion != nil {
		metadata["companion_key"] = companion.Key
		metadata["companion_name"] = companion.DisplayName
	}
	return m.Sessions.CreateSession(ctx, m.DB, customer.ID, metadata)
}

// HumanTookOver reports whether a human controls the session: either the
// persisted needs_human flag is set, or any of the last messages was sent
// by a human. A history read failure degrades to the flag alone.
func (m *SessionManager) HumanTookOver(ctx context.Context, session *domain.Session) bool {
	if session.NeedsHuman {
		return true
	}
	recent, err := m.Messages.ListRecentMessages(m.DB, session.ID, takeoverWindow)
	if err != nil {
		log.Warn().Err(err).
			Str("session_id", session.ID).
			Msg("session: takeover history read failed")
		return false
	}
	for _, msg := range recent {
		if msg.SenderType == domain.SenderHuman {
			return true
		}
	}
	return false
}

// GuestName returns the best known display name for the session's guest,
// falling back to a generic placeholder.
func (m *SessionManager) GuestName(session *domain.Session) string {
	if name := session.Metadata.String("guest_name"); name != "" {
		return cases.Title(language.Und, cases.NoLower).String(name)
	}
	return "Guest"
}

// RecordGuestMessage appends the inbound guest message to history. Every
// branch of a turn records the guest message, even blocked or handed-off
// ones.
func (m *SessionManager) RecordGuestMessage(ctx context.Context, sessionID, content string) (*domain.Message, error) {
	return m.Messages.AppendMessage(m.DB.WithContext(ctx), sessionID, domain.RoleUser, content, domain.SenderGuest)
}

// RecordAssistantReply appends a model-generated reply to history.
func (m *SessionManager) RecordAssistantReply(ctx context.Context, sessionID, content string) (*domain.Message, error) {
	return m.Messages.AppendMessage(m.DB.WithContext(ctx), sessionID, domain.RoleAssistant, content, domain.SenderAI)
}

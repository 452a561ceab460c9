// Package services – InboxService
//
// This file implements the staff-facing inbox: listing a tenant's sessions
// and their transcripts, replying as a human (which takes the session over
// from the AI), toggling the handoff flag, and working through the
// notification list. All operations are scoped to the owning customer so
// one tenant can never read another tenant's conversations.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/mnordin/go-concierge-backend/internal/domain"
	"github.com/mnordin/go-concierge-backend/internal/repo"
)

// InboxService provides the dashboard operations over sessions, messages,
// and notifications.
type InboxService struct {
	DB       *gorm.DB
	Sessions SessionStore
	Messages MessageStore
}

// ListSessionsPage returns one page of a customer's sessions, most recently
// active first, plus the total count for pagination.
func (s *InboxService) ListSessionsPage(ctx context.Context, customerID string, page, pageSize int) ([]domain.Session, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	total, err := repo.CountSessions(ctx, s.DB, customerID)
	if err != nil {
		return nil, 0, err
	}
	items, err := repo.ListSessionsPage(ctx, s.DB, customerID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListMessagesPage returns one page of a session's transcript in
// chronological order, verifying the session belongs to the customer.
func (s *InboxService) ListMessagesPage(ctx context.Context, customerID, sessionID string, page, pageSize int) ([]domain.Message, int64, error) {
	if _, err := s.ownedSession(ctx, customerID, sessionID); err != nil {
		return nil, 0, err
	}
	page, pageSize = normalizePage(page, pageSize)
	total, err := repo.CountMessages(s.DB.WithContext(ctx), sessionID)
	if err != nil {
		return nil, 0, err
	}
	items, err := repo.ListMessagesPage(s.DB.WithContext(ctx), sessionID, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Reply appends a staff-authored assistant message and flags the session as
// human-handled, so subsequent guest turns bypass the model.
func (s *InboxService) Reply(ctx context.Context, customerID, sessionID, content string) (*domain.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, ErrEmptyPrompt
	}
	if _, err := s.ownedSession(ctx, customerID, sessionID); err != nil {
		return nil, err
	}

	var msg *domain.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := s.Messages.AppendMessage(tx, sessionID, domain.RoleAssistant, content, domain.SenderHuman)
		if err != nil {
			return err
		}
		msg = m
		return s.Sessions.UpdateSession(ctx, tx, sessionID, map[string]any{"needs_human": true})
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// SetHandoff sets or clears the session's needs_human flag. Clearing it
// hands the conversation back to the AI; a human message in the recent
// history will still suppress replies until it scrolls out of the takeover
// window.
func (s *InboxService) SetHandoff(ctx context.Context, customerID, sessionID string, needsHuman bool) (*domain.Session, error) {
	session, err := s.ownedSession(ctx, customerID, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.Sessions.UpdateSession(ctx, s.DB, sessionID, map[string]any{"needs_human": needsHuman}); err != nil {
		return nil, err
	}
	session.NeedsHuman = needsHuman
	return session, nil
}

// ListNotificationsPage returns one page of a customer's notifications,
// newest first, optionally restricted to unread ones.
func (s *InboxService) ListNotificationsPage(ctx context.Context, customerID string, unreadOnly bool, page, pageSize int) ([]domain.Notification, int64, error) {
	page, pageSize = normalizePage(page, pageSize)
	total, err := repo.CountNotifications(ctx, s.DB, customerID, unreadOnly)
	if err != nil {
		return nil, 0, err
	}
	items, err := repo.ListNotificationsPage(ctx, s.DB, customerID, unreadOnly, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// MarkNotificationRead marks a customer's notification as read. Marking an
// already-read notification is a no-op.
func (s *InboxService) MarkNotificationRead(ctx context.Context, customerID, id string) error {
	var n domain.Notification
	err := s.DB.WithContext(ctx).
		Where("id = ? AND customer_id = ?", id, customerID).
		First(&n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotificationNotFound
		}
		return err
	}
	if n.ReadAt != nil {
		return nil
	}
	return repo.MarkNotificationRead(ctx, s.DB, id)
}

// ownedSession fetches a session and verifies customer ownership.
func (s *InboxService) ownedSession(ctx context.Context, customerID, sessionID string) (*domain.Session, error) {
	session, err := s.Sessions.GetSession(ctx, s.DB, sessionID)
	if err != nil || session.CustomerID != customerID {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

// Package services – FeedbackService
//
// This file implements the FeedbackService, which governs how guests rate
// assistant replies (-1 or +1). It enforces business rules (message
// existence, session scoping, assistant-only restriction, uniqueness) and
// persists feedback atomically. Service-level errors (ErrInvalidFeedback,
// ErrMessageNotFound, ErrForbiddenFeedback, ErrDuplicateFeedback) are
// returned for predictable cases so handlers can map them to HTTP results
// consistently.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mnordin/go-concierge-backend/internal/domain"
	"github.com/mnordin/go-concierge-backend/internal/repo"
)

// FeedbackService implements the use-cases around reply feedback. The
// guest identity is whatever stable identifier the client supplies (the
// session id in the widget today); uniqueness is per (message, guest).
type FeedbackService struct {
	// DB is the database handle used for all feedback operations.
	DB *gorm.DB
}

// Leave records a feedback value for messageID on behalf of guestID.
//
// Semantics and validation:
//   - value must be exactly -1 or 1; otherwise ErrInvalidFeedback.
//   - messageID must exist; otherwise ErrMessageNotFound.
//   - Feedback is allowed only on assistant replies; guest messages are
//     rejected with ErrForbiddenFeedback.
//   - A guest may leave at most one feedback per message; a second attempt
//     yields ErrDuplicateFeedback.
//
// The existence check and the insert run inside one transaction.
func (s *FeedbackService) Leave(ctx context.Context, guestID, messageID string, value int) error {
	if value != -1 && value != 1 {
		return ErrInvalidFeedback
	}
	if strings.TrimSpace(guestID) == "" {
		return ErrForbiddenFeedback
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg, err := repo.GetMessage(tx, messageID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, repo.ErrNotFound) {
				return ErrMessageNotFound
			}
			return err
		}

		if msg.Role != domain.RoleAssistant {
			return ErrForbiddenFeedback
		}

		fb := &domain.Feedback{
			ID:        uuid.NewString(),
			MessageID: messageID,
			GuestID:   guestID,
			Value:     value,
			CreatedAt: time.Now().UTC(),
		}
		if err := tx.Create(fb).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicate(err) {
				return ErrDuplicateFeedback
			}
			return err
		}
		return nil
	})
}

// isDuplicate detects unique-constraint violations on drivers that do not
// map them to gorm.ErrDuplicatedKey.
func isDuplicate(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Notification model (the staff inbox).
//
// The (session_id, type) pair is unique: the dispatcher performs an
// existence check before creating, and the DB constraint backstops races
// between concurrent turns for the same session.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mnordin/go-concierge-backend/internal/domain"
)

// NotificationExists reports whether a notification of the given type has
// already been created for the session.
func NotificationExists(ctx context.Context, db *gorm.DB, sessionID, notificationType string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("session_id = ? AND type = ?", sessionID, notificationType).
		Count(&count).Error
	return count > 0, err
}

// CreateNotification inserts a staff notification. A unique-constraint
// violation (a concurrent turn won the race) is reported as (nil, nil):
// the notification exists, which is what the caller wanted.
func CreateNotification(ctx context.Context, db *gorm.DB, sessionID, customerID, notificationType, summary string) (*domain.Notification, error) {
	n := &domain.Notification{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		CustomerID: customerID,
		Type:       notificationType,
		Summary:    summary,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(n).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, nil
		}
		return nil, err
	}
	return n, nil
}

// ListNotificationsPage returns a page of a customer's notifications,
// newest first. When unreadOnly is set, read entries are filtered out.
func ListNotificationsPage(ctx context.Context, db *gorm.DB, customerID string, unreadOnly bool, offset, limit int) ([]domain.Notification, error) {
	q := db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC")
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	var out []domain.Notification
	err := q.Offset(offset).Limit(limit).Find(&out).Error
	return out, err
}

// CountNotifications returns the number of notifications for a customer.
func CountNotifications(ctx context.Context, db *gorm.DB, customerID string, unreadOnly bool) (int64, error) {
	q := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("customer_id = ?", customerID)
	if unreadOnly {
		q = q.Where("read_at IS NULL")
	}
	var total int64
	err := q.Count(&total).Error
	return total, err
}

// MarkNotificationRead stamps read_at on a notification. Returns ErrNotFound
// when the notification does not exist.
func MarkNotificationRead(ctx context.Context, db *gorm.DB, id string) error {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.Notification{}).
		Where("id = ?", id).
		Update("read_at", &now)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// isUniqueViolation detects unique-constraint violations across drivers
// that may not map to gorm.ErrDuplicatedKey.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

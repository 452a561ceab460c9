// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Session
// model.
//
// Sessions are the only mutable state the turn pipeline owns. The store is
// authoritative: callers re-read rather than cache across turns.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mnordin/go-concierge-backend/internal/domain"
)

// CreateSession inserts a new session for a customer with seed metadata.
func CreateSession(ctx context.Context, db *gorm.DB, customerID string, metadata domain.JSONMap) (*domain.Session, error) {
	s := &domain.Session{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(s).Error; err != nil {
		return nil, err
	}
	return s, nil
}

// GetSession fetches a session by ID, or ErrNotFound.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.Session, error) {
	var s domain.Session
	if err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSession applies a partial column update to a session. Fields maps
// column names to new values. Returns ErrNotFound when no row was touched.
func UpdateSession(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("id = ?", id).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MergeSessionMetadata merges partial metadata into a session's metadata
// column, read-modify-write. Existing keys are overwritten only by non-empty
// incoming values.
func MergeSessionMetadata(ctx context.Context, db *gorm.DB, id string, partial domain.JSONMap) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s domain.Session
		if err := tx.Where("id = ?", id).First(&s).Error; err != nil {
			return err
		}
		merged := s.Metadata
		if merged == nil {
			merged = domain.JSONMap{}
		}
		for k, v := range partial {
			if sv, ok := v.(string); ok && sv == "" {
				continue
			}
			merged[k] = v
		}
		// A struct update keeps the JSON serializer in play; a raw column
		// value would hand the driver a Go map it cannot bind.
		return tx.Model(&s).Select("metadata").
			Updates(domain.Session{Metadata: merged}).Error
	})
}

// ListSessionsPage returns a page of a customer's sessions ordered by most
// recent activity first.
func ListSessionsPage(ctx context.Context, db *gorm.DB, customerID string, offset, limit int) ([]domain.Session, error) {
	var out []domain.Session
	err := db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("updated_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountSessions returns the total number of sessions for a customer.
func CountSessions(ctx context.Context, db *gorm.DB, customerID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Session{}).
		Where("customer_id = ?", customerID).
		Count(&total).Error
	return total, err
}

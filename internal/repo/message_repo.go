// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model. Messages are append-only.
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mnordin/go-concierge-backend/internal/domain"
)

// AppendMessage inserts a new message row for a session.
func AppendMessage(db *gorm.DB, sessionID, role, content, senderType string) (*domain.Message, error) {
	m := &domain.Message{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Role:       role,
		SenderType: senderType,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
	}
	return m, db.Create(m).Error
}

// ListRecentMessages returns the most recent messages for a session in
// reverse-chronological order (newest first). Used by human-takeover
// detection, which inspects the tail of the history.
func ListRecentMessages(db *gorm.DB, sessionID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.Where("session_id = ?", sessionID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// ListHistoryTail returns the last limit messages of a session in
// chronological order. The bounded model input must keep the newest
// exchanges, so the query walks backwards and the slice is reversed.
func ListHistoryTail(db *gorm.DB, sessionID string, limit int) ([]domain.Message, error) {
	out, err := ListRecentMessages(db, sessionID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error.
func CountMessages(db *gorm.DB, sessionID string) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM messages WHERE session_id = ?", sessionID).Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListMessagesPage(db *gorm.DB, sessionID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetMessage fetches a message by ID.
func GetMessage(db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

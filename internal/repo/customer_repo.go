// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Customer
// (tenant) aggregate and its configuration records.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a record is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/mnordin/go-concierge-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// GetCustomer fetches a customer by primary key. Returns ErrNotFound when
// the record does not exist or is inactive.
func GetCustomer(ctx context.Context, db *gorm.DB, id string) (*domain.Customer, error) {
	var c domain.Customer
	err := db.WithContext(ctx).
		Where("id = ? AND active = ?", id, true).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCustomerBySlug fetches a customer by its URL slug. Returns ErrNotFound
// when the record does not exist or is inactive.
func GetCustomerBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Customer, error) {
	var c domain.Customer
	err := db.WithContext(ctx).
		Where("slug = ? AND active = ?", slug, true).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetAIConfig returns the tenant AI configuration, or ErrNotFound when the
// tenant has none.
func GetAIConfig(ctx context.Context, db *gorm.DB, customerID string) (*domain.AIConfig, error) {
	var cfg domain.AIConfig
	err := db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		First(&cfg).Error
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetAnalysisConfig returns the tenant analysis configuration. A missing row
// is not an error: analysis is simply disabled for the tenant, so (nil, nil)
// is returned.
func GetAnalysisConfig(ctx context.Context, db *gorm.DB, customerID string) (*domain.AnalysisConfig, error) {
	var cfg domain.AnalysisConfig
	err := db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		First(&cfg).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &cfg, nil
}

// GetCompanion fetches a persona override by tenant and key, or ErrNotFound.
func GetCompanion(ctx context.Context, db *gorm.DB, customerID, key string) (*domain.Companion, error) {
	var comp domain.Companion
	err := db.WithContext(ctx).
		Where("customer_id = ? AND key = ?", customerID, key).
		First(&comp).Error
	if err != nil {
		return nil, err
	}
	return &comp, nil
}

// ListActiveActions returns the tenant's active configured actions in their
// configured order. An empty slice means no actions are configured.
func ListActiveActions(ctx context.Context, db *gorm.DB, customerID string) ([]domain.Action, error) {
	var out []domain.Action
	err := db.WithContext(ctx).
		Where("customer_id = ? AND active = ?", customerID, true).
		Order("position ASC, created_at ASC").
		Find(&out).Error
	return out, err
}

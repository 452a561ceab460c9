// Package seed imports tenant fixtures from a YAML file into the database.
// It exists for bootstrap and staging environments where customers, their
// AI configuration, companions, and actions are maintained as a checked-in
// file rather than through an admin UI. Import is merge-by-slug: existing
// customers are updated in place, new ones are created.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/mnordin/go-concierge-backend/internal/domain"
)

// File is the top-level YAML fixture structure.
type File struct {
	Customers []CustomerFixture `yaml:"customers"`
}

// CustomerFixture is one tenant with its full configuration.
type CustomerFixture struct {
	Slug   string `yaml:"slug"`
	Name   string `yaml:"name"`
	Class  string `yaml:"class"`
	Active *bool  `yaml:"active,omitempty"`

	AIConfig *AIConfigFixture   `yaml:"ai_config,omitempty"`
	Analysis *AnalysisFixture   `yaml:"analysis,omitempty"`
	Personas []CompanionFixture `yaml:"personas,omitempty"`
	Actions  []ActionFixture    `yaml:"actions,omitempty"`
}

// AIConfigFixture mirrors domain.AIConfig.
type AIConfigFixture struct {
	AIName        string  `yaml:"ai_name"`
	AIRole        string  `yaml:"ai_role,omitempty"`
	Greeting      string  `yaml:"greeting,omitempty"`
	SystemPrompt  string  `yaml:"system_prompt,omitempty"`
	KnowledgeBase string  `yaml:"knowledge_base,omitempty"`
	Temperature   float64 `yaml:"temperature,omitempty"`
	MaxTokens     int     `yaml:"max_tokens,omitempty"`
}

// AnalysisFixture mirrors domain.AnalysisConfig.
type AnalysisFixture struct {
	Enabled         *bool    `yaml:"enabled,omitempty"`
	MinUserMessages int      `yaml:"min_user_messages,omitempty"`
	Keywords        []string `yaml:"keywords,omitempty"`
}

// CompanionFixture mirrors domain.Companion. Numeric overrides stay
// pointers so absence is distinguishable from zero.
type CompanionFixture struct {
	Key           string   `yaml:"key"`
	DisplayName   string   `yaml:"display_name"`
	AIName        string   `yaml:"ai_name,omitempty"`
	AIRole        string   `yaml:"ai_role,omitempty"`
	Greeting      string   `yaml:"greeting,omitempty"`
	SystemPrompt  string   `yaml:"system_prompt,omitempty"`
	KnowledgeBase string   `yaml:"knowledge_base,omitempty"`
	Temperature   *float64 `yaml:"temperature,omitempty"`
	MaxTokens     *int     `yaml:"max_tokens,omitempty"`
}

// ActionFixture mirrors domain.Action.
type ActionFixture struct {
	TriggerType  string         `yaml:"trigger_type"`
	TriggerValue string         `yaml:"trigger_value"`
	ActionType   string         `yaml:"action_type"`
	Config       map[string]any `yaml:"config,omitempty"`
	Active       *bool          `yaml:"active,omitempty"`
	Position     int            `yaml:"position,omitempty"`
}

// Parse decodes fixture YAML bytes.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing seed YAML: %w", err)
	}
	return &f, nil
}

// LoadFile reads and parses a fixture file from disk. A missing file is not
// an error: (nil, nil) is returned so callers can treat seeding as optional.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading seed file %s: %w", path, err)
	}
	return Parse(data)
}

// Apply upserts every fixture customer and its configuration. Each customer
// imports in its own transaction so one broken fixture does not roll back
// the rest.
func Apply(ctx context.Context, db *gorm.DB, f *File) error {
	if f == nil {
		return nil
	}
	for i := range f.Customers {
		cf := &f.Customers[i]
		if err := applyCustomer(ctx, db, cf); err != nil {
			return fmt.Errorf("seeding customer %q: %w", cf.Slug, err)
		}
		log.Info().Str("slug", cf.Slug).Msg("seed: customer imported")
	}
	return nil
}

func applyCustomer(ctx context.Context, db *gorm.DB, cf *CustomerFixture) error {
	if cf.Slug == "" || cf.Name == "" {
		return fmt.Errorf("slug and name are required")
	}
	switch cf.Class {
	case domain.ClassRestaurant, domain.ClassEldercare:
	default:
		return fmt.Errorf("unknown class %q", cf.Class)
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var customer domain.Customer
		err := tx.Where("slug = ?", cf.Slug).First(&customer).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			customer = domain.Customer{
				ID:     uuid.NewString(),
				Slug:   cf.Slug,
				Name:   cf.Name,
				Class:  cf.Class,
				Active: boolOr(cf.Active, true),
			}
			if err := tx.Create(&customer).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			customer.Name = cf.Name
			customer.Class = cf.Class
			customer.Active = boolOr(cf.Active, true)
			if err := tx.Save(&customer).Error; err != nil {
				return err
			}
		}

		if cf.AIConfig != nil {
			if err := upsertAIConfig(tx, customer.ID, cf.AIConfig); err != nil {
				return err
			}
		}
		if cf.Analysis != nil {
			if err := upsertAnalysis(tx, customer.ID, cf.Analysis); err != nil {
				return err
			}
		}
		for i := range cf.Personas {
			if err := upsertCompanion(tx, customer.ID, &cf.Personas[i]); err != nil {
				return err
			}
		}
		// Actions are replaced wholesale: fixtures are the source of truth
		// for configured triggers.
		if len(cf.Actions) > 0 {
			if err := tx.Where("customer_id = ?", customer.ID).
				Delete(&domain.Action{}).Error; err != nil {
				return err
			}
			for i, af := range cf.Actions {
				position := af.Position
				if position == 0 {
					position = i
				}
				action := domain.Action{
					ID:           uuid.NewString(),
					CustomerID:   customer.ID,
					TriggerType:  af.TriggerType,
					TriggerValue: af.TriggerValue,
					ActionType:   af.ActionType,
					Config:       af.Config,
					Active:       boolOr(af.Active, true),
					Position:     position,
				}
				if err := tx.Create(&action).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func upsertAIConfig(tx *gorm.DB, customerID string, f *AIConfigFixture) error {
	var cfg domain.AIConfig
	err := tx.Where("customer_id = ?", customerID).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cfg = domain.AIConfig{ID: uuid.NewString(), CustomerID: customerID}
	} else if err != nil {
		return err
	}
	cfg.AIName = f.AIName
	cfg.AIRole = f.AIRole
	cfg.Greeting = f.Greeting
	cfg.SystemPrompt = f.SystemPrompt
	cfg.KnowledgeBase = f.KnowledgeBase
	if f.Temperature > 0 {
		cfg.Temperature = f.Temperature
	}
	if f.MaxTokens > 0 {
		cfg.MaxTokens = f.MaxTokens
	}
	return tx.Save(&cfg).Error
}

func upsertAnalysis(tx *gorm.DB, customerID string, f *AnalysisFixture) error {
	var cfg domain.AnalysisConfig
	err := tx.Where("customer_id = ?", customerID).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cfg = domain.AnalysisConfig{ID: uuid.NewString(), CustomerID: customerID}
	} else if err != nil {
		return err
	}
	cfg.Enabled = boolOr(f.Enabled, true)
	if f.MinUserMessages > 0 {
		cfg.MinUserMessages = f.MinUserMessages
	}
	cfg.Keywords = f.Keywords
	return tx.Save(&cfg).Error
}

func upsertCompanion(tx *gorm.DB, customerID string, f *CompanionFixture) error {
	if f.Key == "" || f.DisplayName == "" {
		return fmt.Errorf("persona key and display_name are required")
	}
	var comp domain.Companion
	err := tx.Where("customer_id = ? AND key = ?", customerID, f.Key).First(&comp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		comp = domain.Companion{ID: uuid.NewString(), CustomerID: customerID, Key: f.Key}
	} else if err != nil {
		return err
	}
	comp.DisplayName = f.DisplayName
	comp.AIName = f.AIName
	comp.AIRole = f.AIRole
	comp.Greeting = f.Greeting
	comp.SystemPrompt = f.SystemPrompt
	comp.KnowledgeBase = f.KnowledgeBase
	comp.Temperature = f.Temperature
	comp.MaxTokens = f.MaxTokens
	return tx.Save(&comp).Error
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// Package domain defines the persistence models for tenants, sessions,
// messages, configured actions, and notifications. These types are mapped
// with GORM and form the core data layer of the concierge backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Tenant classes. The class selects the safety-scoring context and the
// deflection wording used when a message is blocked.
const (
	ClassRestaurant = "restaurant"
	ClassEldercare  = "eldercare"
)

// Message roles and sender types. Role describes who the message is
// attributed to in the conversation; SenderType records the actual origin
// and is what human-takeover detection reads (a staff member answering
// through the dashboard produces role "assistant" with sender type "human").
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	SenderGuest = "guest"
	SenderAI    = "ai"
	SenderHuman = "human"
)

// Trigger types for configured actions.
const (
	TriggerKeyword  = "keyword"
	TriggerRegex    = "regex"
	TriggerAnalysis = "analysis"
)

// Action types for configured actions.
const (
	ActionCreateNotification = "create_notification"
	ActionEmailStaff         = "email_staff"
	ActionEmailGuest         = "email_guest"
	ActionHandoff            = "handoff"
)

// JSONMap is a free-form key/value column stored as JSON text. Used for
// session metadata and per-action configuration.
type JSONMap map[string]any

// Customer is a tenant account: a restaurant or an eldercare operator.
// It owns one AI configuration, one analysis configuration, zero or more
// companions and zero or more configured actions. A customer row is
// immutable for the duration of a turn.
type Customer struct {
	ID        string         `json:"id"    gorm:"type:char(36);primaryKey"`
	Slug      string         `json:"slug"  gorm:"type:varchar(64);not null;uniqueIndex"`
	Name      string         `json:"name"  gorm:"type:varchar(255);not null"`
	Class     string         `json:"class" gorm:"type:varchar(16);not null;check:class IN ('restaurant','eldercare')"`
	Active    bool           `json:"active" gorm:"not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

// TableName returns the database table name for Customer.
func (Customer) TableName() string { return "customers" }

// AIConfig holds the tenant-level persona and model parameters used to build
// the completion request for a turn. Exactly one row per customer.
type AIConfig struct {
	ID            string    `json:"id"          gorm:"type:char(36);primaryKey"`
	CustomerID    string    `json:"customer_id" gorm:"type:char(36);not null;uniqueIndex"`
	AIName        string    `json:"ai_name"     gorm:"type:varchar(64);not null"`
	AIRole        string    `json:"ai_role"     gorm:"type:varchar(255)"`
	Greeting      string    `json:"greeting"    gorm:"type:text"`
	SystemPrompt  string    `json:"system_prompt" gorm:"type:text"`
	KnowledgeBase string    `json:"knowledge_base" gorm:"type:text"`
	Temperature   float64   `json:"temperature" gorm:"not null;default:0.7"`
	MaxTokens     int       `json:"max_tokens"  gorm:"not null;default:500"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Customer Customer `json:"-" gorm:"foreignKey:CustomerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for AIConfig.
func (AIConfig) TableName() string { return "ai_configs" }

// Companion is a named persona override selectable per conversation.
// Override is field-level: a companion value wins only when present,
// otherwise the tenant AIConfig default applies. Pointer fields distinguish
// "not set" from a zero value for the numeric parameters.
type Companion struct {
	ID            string    `json:"id"           gorm:"type:char(36);primaryKey"`
	CustomerID    string    `json:"customer_id"  gorm:"type:char(36);not null;index;uniqueIndex:ux_companion_key"`
	Key           string    `json:"key"          gorm:"type:varchar(64);not null;uniqueIndex:ux_companion_key"`
	DisplayName   string    `json:"display_name" gorm:"type:varchar(255);not null"`
	AIName        string    `json:"ai_name"      gorm:"type:varchar(64)"`
	AIRole        string    `json:"ai_role"      gorm:"type:varchar(255)"`
	Greeting      string    `json:"greeting"     gorm:"type:text"`
	SystemPrompt  string    `json:"system_prompt" gorm:"type:text"`
	KnowledgeBase string    `json:"knowledge_base" gorm:"type:text"`
	Temperature   *float64  `json:"temperature,omitempty"`
	MaxTokens     *int      `json:"max_tokens,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Customer Customer `json:"-" gorm:"foreignKey:CustomerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Companion.
func (Companion) TableName() string { return "companions" }

// AnalysisConfig gates the post-reply analysis pass. Analysis runs only when
// enabled and once the conversation reaches MinUserMessages user turns; if
// Keywords is non-empty, at least one keyword must also appear in the
// conversation. Keywords is a JSON array of strings.
type AnalysisConfig struct {
	ID              string    `json:"id"          gorm:"type:char(36);primaryKey"`
	CustomerID      string    `json:"customer_id" gorm:"type:char(36);not null;uniqueIndex"`
	Enabled         bool      `json:"enabled"     gorm:"not null"`
	MinUserMessages int       `json:"min_user_messages" gorm:"not null;default:2"`
	Keywords        []string  `json:"keywords" gorm:"serializer:json"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	Customer Customer `json:"-" gorm:"foreignKey:CustomerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for AnalysisConfig.
func (AnalysisConfig) TableName() string { return "analysis_configs" }

// Action binds a trigger (keyword substring, regex, or named analysis
// signal) to a side effect. Actions are configured out-of-band and are
// read-only to the turn pipeline. Position preserves configured order.
type Action struct {
	ID           string         `json:"id"            gorm:"type:char(36);primaryKey"`
	CustomerID   string         `json:"customer_id"   gorm:"type:char(36);not null;index"`
	TriggerType  string         `json:"trigger_type"  gorm:"type:varchar(16);not null;check:trigger_type IN ('keyword','regex','analysis')"`
	TriggerValue string         `json:"trigger_value" gorm:"type:varchar(255);not null"`
	ActionType   string         `json:"action_type"   gorm:"type:varchar(32);not null"`
	Config       JSONMap        `json:"config"        gorm:"serializer:json"`
	Active       bool           `json:"active"        gorm:"not null"`
	Position     int            `json:"position"      gorm:"not null;default:0"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`

	Customer Customer `json:"-" gorm:"foreignKey:CustomerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Action.
func (Action) TableName() string { return "actions" }

// Session is one guest conversation with a tenant. Sessions are created
// lazily on the first turn, mutated by every turn, and never deleted by the
// turn pipeline. Metadata carries the origin tag, test-mode flag, companion
// selection, and guest identity fields once the analysis pass extracts them.
type Session struct {
	ID             string    `json:"id"          gorm:"type:char(36);primaryKey"`
	CustomerID     string    `json:"customer_id" gorm:"type:char(36);not null;index:idx_customer_sessions"`
	Metadata       JSONMap   `json:"metadata"    gorm:"serializer:json"`
	NeedsHuman     bool      `json:"needs_human" gorm:"not null;default:false"`
	Suspicious     bool      `json:"suspicious"  gorm:"not null;default:false"`
	RiskLevel      int       `json:"risk_level"  gorm:"not null;default:0"`
	SecurityReason string    `json:"security_reason,omitempty" gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`

	Customer Customer `json:"-" gorm:"foreignKey:CustomerID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// Message is a single utterance within a session. Append-only: even blocked
// or handed-off turns record the inbound guest message for audit.
type Message struct {
	ID         string         `json:"id"          gorm:"type:char(36);primaryKey"`
	SessionID  string         `json:"session_id"  gorm:"type:char(36);not null;index:idx_session_msgs,priority:1"`
	Role       string         `json:"role"        gorm:"type:varchar(16);not null;check:role IN ('user','assistant')"`
	SenderType string         `json:"sender_type" gorm:"type:varchar(16);not null;check:sender_type IN ('guest','ai','human')"`
	Content    string         `json:"content"     gorm:"type:text;not null"`
	CreatedAt  time.Time      `json:"created_at"  gorm:"index:idx_session_msgs,priority:2"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `json:"-" gorm:"index"`

	Session Session `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Notification is a staff-inbox entry produced by the action dispatcher.
// At most one notification of a given type exists per session (existence
// check before create).
type Notification struct {
	ID         string     `json:"id"          gorm:"type:char(36);primaryKey"`
	SessionID  string     `json:"session_id"  gorm:"type:char(36);not null;index;uniqueIndex:ux_session_notification_type"`
	CustomerID string     `json:"customer_id" gorm:"type:char(36);not null;index"`
	Type       string     `json:"type"        gorm:"type:varchar(32);not null;uniqueIndex:ux_session_notification_type"`
	Summary    string     `json:"summary"     gorm:"type:text;not null"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	Session Session `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }

// Feedback represents a guest-provided rating on a specific assistant
// message. A guest can leave one feedback entry per message.
type Feedback struct {
	ID        string         `json:"id"         gorm:"type:char(36);primaryKey"`
	MessageID string         `json:"message_id" gorm:"type:char(36);not null;index;uniqueIndex:ux_feedback_message_guest"`
	GuestID   string         `json:"guest_id"   gorm:"type:varchar(64);not null;index;uniqueIndex:ux_feedback_message_guest"`
	Value     int            `json:"value"      gorm:"not null;check:value IN (-1,1)"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Message Message `json:"-" gorm:"foreignKey:MessageID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Feedback.
func (Feedback) TableName() string { return "feedback" }

// String returns the metadata value for key when it is a non-empty string.
func (m JSONMap) String(key string) string {
	if m == nil {
		return ""
	}
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

// Bool returns the metadata value for key as a bool, false when absent.
func (m JSONMap) Bool(key string) bool {
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}

// Package services – TurnService
//
// This file implements the turn orchestrator: the single entry point that
// sequences one inbound guest message through tenant resolution, persona
// override, security screening, session continuity, takeover detection,
// reply generation, and post-reply analysis. The flow is strictly ordered
// with no backward transitions; three branches terminate early (unknown
// tenant, blocked message, human takeover) and everything else runs to a
// normal reply.
//
// Observability: ProcessTurn is OpenTelemetry-instrumented; spans carry
// the tenant slug, session id, and outcome flags.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mnordin/go-concierge-backend/internal/domain"
	"github.com/mnordin/go-concierge-backend/internal/llm"
	"github.com/mnordin/go-concierge-backend/internal/notify"
	"github.com/mnordin/go-concierge-backend/internal/repo"
)

// Fixed deflection lines returned instead of a model reply when a message
// is blocked. One per tenant class, persona-appropriate and deliberately
// uninformative about why the message was refused.
const (
	deflectionRestaurant = "I'm here to help with questions about the restaurant — bookings, menu and opening hours. How can I help you?"
	deflectionEldercare  = "Let's keep our chat about how I can support you today. Is there something I can help you with?"
)

// TenantStore is the tenant and configuration lookup contract required by
// TurnService.
type TenantStore interface {
	GetCustomer(ctx context.Context, db *gorm.DB, id string) (*domain.Customer, error)
	GetCustomerBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Customer, error)
	GetAIConfig(ctx context.Context, db *gorm.DB, customerID string) (*domain.AIConfig, error)
	GetAnalysisConfig(ctx context.Context, db *gorm.DB, customerID string) (*domain.AnalysisConfig, error)
	GetCompanion(ctx context.Context, db *gorm.DB, customerID, key string) (*domain.Companion, error)
	ListActiveActions(ctx context.Context, db *gorm.DB, customerID string) ([]domain.Action, error)
}

// TurnRequest is one inbound guest message with its routing context.
type TurnRequest struct {
	// TenantRef is the tenant slug or id.
	TenantRef string
	// Message is the guest's utterance.
	Message string
	// SessionID continues an existing conversation when non-empty.
	SessionID string
	// PersonaKey selects a companion override when non-empty.
	PersonaKey string
	// TestMode marks the turn as a staff test; alerts are tagged with it.
	TestMode bool
}

// TurnResult is the outcome of one processed turn. Exactly one of the
// Blocked / HandedOff flags is set on the early-exit branches; both are
// false on a normal reply.
type TurnResult struct {
	Reply            string   `json:"reply"`
	MessageID        string   `json:"message_id,omitempty"`
	SessionID        string   `json:"session_id"`
	CustomerID       string   `json:"customer_id"`
	CustomerSlug     string   `json:"customer_slug"`
	CustomerName     string   `json:"customer_name"`
	CustomerClass    string   `json:"-"`
	PersonaName      string   `json:"persona_name"`
	TriggeredActions []string `json:"triggered_actions"`
	Blocked          bool     `json:"blocked"`
	HandedOff        bool     `json:"handed_off"`
	Suspicious       bool     `json:"suspicious"`
	RiskLevel        int      `json:"risk_level"`
}

// turnConfig is the effective AI configuration for one turn after the
// persona override has been applied. Override is field-level: a companion
// value wins only when present.
type turnConfig struct {
	AIName        string
	AIRole        string
	Greeting      string
	SystemPrompt  string
	KnowledgeBase string
	Temperature   float64
	MaxTokens     int
	PersonaName   string
}

// TurnService coordinates one conversational turn end to end.
type TurnService struct {
	DB       *gorm.DB
	Tenants  TenantStore
	Sessions *SessionManager
	Screener *Screener
	Matcher  Matcher
	Analysis *AnalysisRunner
	Provider llm.Provider
	Push     Push
	Mailer   Mailer

	// ChatModel is the completion model for guest replies.
	ChatModel string
	// HistoryWindow bounds how many prior messages enter the model input.
	HistoryWindow int
	// MaxPromptRunes caps inbound message length; 0 disables the check.
	MaxPromptRunes int
}

// ProcessTurn runs the full turn state machine for one guest message.
// It returns ErrCustomerNotFound, ErrConfigMissing, or ErrAIService on the
// terminal failure paths; the blocked and handed-off branches are not
// errors and come back as a TurnResult with the matching flag set.
func (s *TurnService) ProcessTurn(ctx context.Context, req *TurnRequest) (*TurnResult, error) {
	tr := otel.Tracer("services/TurnService")
	ctx, span := tr.Start(ctx, "ProcessTurn",
		trace.WithAttributes(
			attribute.String("tenant.ref", req.TenantRef),
			attribute.Bool("turn.test_mode", req.TestMode),
		),
	)
	defer span.End()

	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyPrompt
	}
	if s.MaxPromptRunes > 0 && utf8.RuneCountInString(message) > s.MaxPromptRunes {
		return nil, ErrTooLong
	}

	customer, err := s.resolveCustomer(ctx, req.TenantRef)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("customer.id", customer.ID))

	cfg, analysisCfg, actions, companion, err := s.loadConfiguration(ctx, customer, req.PersonaKey)
	if err != nil {
		return nil, err
	}

	verdict := s.Screener.Screen(ctx, customer, req.SessionID, message)

	session, err := s.Sessions.Resolve(ctx, req.SessionID, customer, req.TestMode, companion)
	if err != nil {
		log.Error().Err(err).Str("customer_id", customer.ID).Msg("turn: session resolve failed")
		return nil, err
	}
	span.SetAttributes(attribute.String("session.id", session.ID))

	result := &TurnResult{
		SessionID:     session.ID,
		CustomerID:    customer.ID,
		CustomerSlug:  customer.Slug,
		CustomerName:  customer.Name,
		CustomerClass: customer.Class,
		PersonaName:   cfg.PersonaName,
		RiskLevel:     verdict.Level,
	}

	if verdict.Blocked {
		s.handleBlocked(ctx, customer, session, message, verdict, req.TestMode, result)
		span.SetAttributes(attribute.Bool("turn.blocked", true))
		return result, nil
	}

	if s.Sessions.HumanTookOver(ctx, session) {
		s.handleTakeover(ctx, customer, session, message, verdict, result)
		span.SetAttributes(attribute.Bool("turn.handed_off", true))
		return result, nil
	}

	history, err := s.Sessions.Messages.ListHistoryTail(s.DB, session.ID, s.HistoryWindow)
	if err != nil {
		log.Warn().Err(err).Str("session_id", session.ID).Msg("turn: history read failed, continuing without it")
		history = nil
	}

	if _, err := s.Sessions.RecordGuestMessage(ctx, session.ID, message); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("turn: guest message persist failed")
		return nil, err
	}
	s.persistRisk(ctx, session, verdict)
	result.Suspicious = verdict.Suspicious

	matched := s.Matcher.Match(message, actions)
	for _, a := range matched {
		result.TriggeredActions = append(result.TriggeredActions, a.ActionType)
	}

	reply, err := s.generateReply(ctx, cfg, history, matched, message)
	if err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("turn: completion failed")
		return nil, ErrAIService
	}
	result.Reply = reply

	if msg, err := s.Sessions.RecordAssistantReply(ctx, session.ID, reply); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("turn: reply persist failed")
	} else {
		result.MessageID = msg.ID
	}

	s.runAnalysis(ctx, customer, session, analysisCfg, actions, cfg.PersonaName, history, message, reply)

	return result, nil
}

// resolveCustomer looks the tenant up by slug first, then by id.
func (s *TurnService) resolveCustomer(ctx context.Context, ref string) (*domain.Customer, error) {
	if c, err := s.Tenants.GetCustomerBySlug(ctx, s.DB, ref); err == nil {
		return c, nil
	}
	c, err := s.Tenants.GetCustomer(ctx, s.DB, ref)
	if err != nil {
		return nil, ErrCustomerNotFound
	}
	return c, nil
}

// loadConfiguration fetches the AI config, analysis config, actions, and
// optional companion concurrently. Only a missing AI config is fatal; a
// missing companion logs a warning and the base config applies.
func (s *TurnService) loadConfiguration(ctx context.Context, customer *domain.Customer, personaKey string) (*turnConfig, *domain.AnalysisConfig, []domain.Action, *domain.Companion, error) {
	var (
		aiCfg       *domain.AIConfig
		analysisCfg *domain.AnalysisConfig
		actions     []domain.Action
		companion   *domain.Companion
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		aiCfg, err = s.Tenants.GetAIConfig(gctx, s.DB, customer.ID)
		if err != nil {
			return ErrConfigMissing
		}
		return nil
	})
	g.Go(func() error {
		var err error
		analysisCfg, err = s.Tenants.GetAnalysisConfig(gctx, s.DB, customer.ID)
		if err != nil {
			log.Warn().Err(err).Str("customer_id", customer.ID).Msg("turn: analysis config load failed")
			analysisCfg = nil
		}
		return nil
	})
	g.Go(func() error {
		var err error
		actions, err = s.Tenants.ListActiveActions(gctx, s.DB, customer.ID)
		if err != nil {
			log.Warn().Err(err).Str("customer_id", customer.ID).Msg("turn: actions load failed")
			actions = nil
		}
		return nil
	})
	if personaKey != "" {
		g.Go(func() error {
			var err error
			companion, err = s.Tenants.GetCompanion(gctx, s.DB, customer.ID, personaKey)
			if err != nil {
				if !errors.Is(err, repo.ErrNotFound) {
					log.Warn().Err(err).Str("customer_id", customer.ID).Msg("turn: companion load failed")
				} else {
					log.Warn().
						Str("customer_id", customer.ID).
						Str("persona_key", personaKey).
						Msg("turn: unknown persona key, using base config")
				}
				companion = nil
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, nil, err
	}

	return mergePersona(aiCfg, companion), analysisCfg, actions, companion, nil
}

// mergePersona applies the field-level companion override on top of the
// tenant defaults.
func mergePersona(base *domain.AIConfig, companion *domain.Companion) *turnConfig {
	cfg := &turnConfig{
		AIName:        base.AIName,
		AIRole:        base.AIRole,
		Greeting:      base.Greeting,
		SystemPrompt:  base.SystemPrompt,
		KnowledgeBase: base.KnowledgeBase,
		Temperature:   base.Temperature,
		MaxTokens:     base.MaxTokens,
		PersonaName:   base.AIName,
	}
	if companion == nil {
		return cfg
	}
	cfg.PersonaName = companion.DisplayName
	if companion.AIName != "" {
		cfg.AIName = companion.AIName
	}
	if companion.AIRole != "" {
		cfg.AIRole = companion.AIRole
	}
	if companion.Greeting != "" {
		cfg.Greeting = companion.Greeting
	}
	if companion.SystemPrompt != "" {
		cfg.SystemPrompt = companion.SystemPrompt
	}
	if companion.KnowledgeBase != "" {
		cfg.KnowledgeBase = companion.KnowledgeBase
	}
	if companion.Temperature != nil {
		cfg.Temperature = *companion.Temperature
	}
	if companion.MaxTokens != nil {
		cfg.MaxTokens = *companion.MaxTokens
	}
	return cfg
}

// handleBlocked finalizes a turn whose message hit the block band. The raw
// guest message is still recorded for audit, the session is flagged, the
// operator is alerted, and the guest receives the fixed deflection line for
// the tenant class. The alert is sent here rather than during screening so
// it always carries the resolved session id, including on a first turn.
func (s *TurnService) handleBlocked(ctx context.Context, customer *domain.Customer, session *domain.Session, message string, verdict Verdict, testMode bool, result *TurnResult) {
	if _, err := s.Sessions.RecordGuestMessage(ctx, session.ID, message); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("turn: blocked message persist failed")
	}
	s.persistRisk(ctx, session, verdict)

	if s.Mailer != nil {
		s.Mailer.SendOperatorAlert(notify.OperatorAlert{
			To:           s.Screener.Policy.OperatorEmail,
			CustomerName: customer.Name,
			SessionID:    session.ID,
			Reason:       verdict.Reason,
			RiskLevel:    verdict.Level,
			RawPrompt:    message,
			TestMode:     testMode,
		})
	}

	reply := deflectionRestaurant
	if customer.Class == domain.ClassEldercare {
		reply = deflectionEldercare
	}
	if _, err := s.Sessions.RecordAssistantReply(ctx, session.ID, reply); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("turn: deflection persist failed")
	}

	result.Reply = reply
	result.Blocked = true
	result.Suspicious = true
}

// handleTakeover finalizes a turn on a session a human controls. The guest
// message is recorded and staff are pushed a new-message notice; no model
// reply is generated.
func (s *TurnService) handleTakeover(ctx context.Context, customer *domain.Customer, session *domain.Session, message string, verdict Verdict, result *TurnResult) {
	if _, err := s.Sessions.RecordGuestMessage(ctx, session.ID, message); err != nil {
		log.Error().Err(err).Str("session_id", session.ID).Msg("turn: takeover message persist failed")
	}
	s.persistRisk(ctx, session, verdict)

	if s.Push != nil {
		guest := s.Sessions.GuestName(session)
		s.Push.Send(notify.PushEvent{
			Kind:         notify.PushNewGuestMessage,
			CustomerID:   customer.ID,
			CustomerName: customer.Name,
			SessionID:    session.ID,
			Title:        "New message from " + guest,
			Body:         message,
		})
	}

	result.HandedOff = true
	result.Suspicious = verdict.Suspicious
}

// persistRisk records the verdict on the session. Risk level is written on
// every turn for downstream analytics; the suspicious flag and reason only
// when the warn band was reached.
func (s *TurnService) persistRisk(ctx context.Context, session *domain.Session, verdict Verdict) {
	fields := map[string]any{"risk_level": verdict.Level}
	if verdict.Suspicious {
		fields["suspicious"] = true
		fields["security_reason"] = verdict.Reason
	}
	if err := s.Sessions.Sessions.UpdateSession(ctx, s.DB, session.ID, fields); err != nil {
		log.Warn().Err(err).Str("session_id", session.ID).Msg("turn: risk persist failed")
		return
	}
	session.RiskLevel = verdict.Level
	if verdict.Suspicious {
		session.Suspicious = true
		session.SecurityReason = verdict.Reason
	}
}

// generateReply builds the model input and invokes the completion service.
func (s *TurnService) generateReply(ctx context.Context, cfg *turnConfig, history []domain.Message, matched []domain.Action, message string) (string, error) {
	messages := []llm.Message{{Role: "system", Content: buildSystemPrompt(cfg, matched)}}
	if len(history) == 0 && cfg.Greeting != "" {
		messages = append(messages, llm.Message{Role: domain.RoleAssistant, Content: cfg.Greeting})
	}
	start := 0
	if s.HistoryWindow > 0 && len(history) > s.HistoryWindow {
		start = len(history) - s.HistoryWindow
	}
	for _, m := range history[start:] {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: domain.RoleUser, Content: message})

	resp, err := s.Provider.Complete(ctx, &llm.Request{
		Model:       s.ChatModel,
		Messages:    messages,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}

// buildSystemPrompt assembles the system instructions from the effective
// persona plus hints about the actions the message triggered.
func buildSystemPrompt(cfg *turnConfig, matched []domain.Action) string {
	var b strings.Builder
	b.WriteString("You are ")
	b.WriteString(cfg.AIName)
	if cfg.AIRole != "" {
		b.WriteString(", ")
		b.WriteString(cfg.AIRole)
	}
	b.WriteString(".")
	if cfg.SystemPrompt != "" {
		b.WriteString("\n\n")
		b.WriteString(cfg.SystemPrompt)
	}
	if cfg.KnowledgeBase != "" {
		b.WriteString("\n\nUse the following information when answering:\n")
		b.WriteString(cfg.KnowledgeBase)
	}
	if len(matched) > 0 {
		b.WriteString("\n\nThe guest's message relates to: ")
		for i, a := range matched {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(a.TriggerValue)
		}
		b.WriteString(". Acknowledge this naturally in your reply.")
	}
	return b.String()
}

// runAnalysis executes the gated post-reply analysis stage. Awaited in
// full before the turn returns so any resulting notifications are enqueued
// before the HTTP response goes out.
func (s *TurnService) runAnalysis(ctx context.Context, customer *domain.Customer, session *domain.Session, analysisCfg *domain.AnalysisConfig, actions []domain.Action, personaName string, history []domain.Message, message, reply string) {
	if s.Analysis == nil {
		return
	}

	conversation := make([]llm.Message, 0, len(history)+2)
	userCount := 0
	for _, m := range history {
		conversation = append(conversation, llm.Message{Role: m.Role, Content: m.Content})
		if m.Role == domain.RoleUser {
			userCount++
		}
	}
	conversation = append(conversation,
		llm.Message{Role: domain.RoleUser, Content: message},
		llm.Message{Role: domain.RoleAssistant, Content: reply},
	)
	userCount++

	run, candidates := s.Analysis.ShouldAnalyze(analysisCfg, conversation, userCount, actions)
	if !run {
		return
	}

	dc := &DispatchContext{
		Customer:    customer,
		Session:     session,
		PersonaName: personaName,
	}
	s.Analysis.Run(ctx, dc, conversation, candidates, actions)
}

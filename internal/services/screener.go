// Package services – Screener
//
// This file implements the security screener that scores every inbound guest
// message before it reaches the language model. The score is produced by a
// dedicated safety call and mapped onto a three-band policy: allow, warn
// (reply continues but the session is flagged), and block (the guest receives
// a fixed deflection line instead of a reply and the operator is alerted by
// the turn pipeline once the session is resolved).
//
// The screener fails open: if the scoring call errors, the message is
// treated as risk 0 and the turn proceeds. A guest must never be locked out
// of the service by a scoring outage.
package services

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/mnordin/go-concierge-backend/internal/config"
	"github.com/mnordin/go-concierge-backend/internal/domain"
	"github.com/mnordin/go-concierge-backend/internal/llm"
)

// Verdict is the screening outcome for one inbound message.
type Verdict struct {
	// Level is the clamped risk score, 0 through 10.
	Level int
	// Reason is the scorer's short explanation, empty for benign input.
	Reason string
	// Suspicious is true when the score reached the warn band or above.
	Suspicious bool
	// Blocked is true when the score reached the block band. The caller
	// must not forward the message to the language model.
	Blocked bool
}

// PromptScorer is the scoring contract required by Screener.
type PromptScorer interface {
	// ScorePrompt rates a single guest message in the context of a tenant
	// class and returns a risk score with a short reason.
	ScorePrompt(ctx context.Context, message, tenantClass string) (llm.RiskScore, error)
}

// Screener applies the risk policy to inbound guest messages. It only
// scores; side effects of a verdict belong to the turn pipeline.
type Screener struct {
	// Scorer produces the raw risk score.
	Scorer PromptScorer
	// Policy holds the warn and block thresholds and the operator address.
	Policy config.RiskPolicy
}

// NewScreener constructs a Screener.
func NewScreener(scorer PromptScorer, policy config.RiskPolicy) *Screener {
	return &Screener{Scorer: scorer, Policy: policy}
}

// Screen scores one guest message and maps it to a verdict. customer and
// sessionID identify the tenant context in logs; sessionID is empty on a
// first turn.
func (s *Screener) Screen(ctx context.Context, customer *domain.Customer, sessionID, message string) Verdict {
	score, err := s.Scorer.ScorePrompt(ctx, message, customer.Class)
	if err != nil {
		log.Warn().Err(err).
			Str("customer_id", customer.ID).
			Str("session_id", sessionID).
			Msg("screener: scoring failed, allowing message")
		return Verdict{}
	}

	v := Verdict{Level: score.Level, Reason: score.Reason}
	if score.Level < s.Policy.WarnLevel {
		return v
	}

	v.Suspicious = true
	v.Blocked = score.Level >= s.Policy.BlockLevel

	log.Warn().
		Str("customer_id", customer.ID).
		Str("session_id", sessionID).
		Int("risk_level", v.Level).
		Bool("blocked", v.Blocked).
		Msg("screener: risky message")

	return v
}

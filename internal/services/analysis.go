// Package services – AnalysisRunner
//
// This file implements the post-reply analysis stage. After a reply has
// been produced, the full conversation can be run through a structured
// extraction pass that pulls out guest identity and reservation facts and
// reports which configured analysis signals fired. The stage is gated by
// per-tenant configuration so model cost is only paid when a conversation
// is worth analyzing, and every failure inside it is logged and swallowed:
// the guest already has their reply.
package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/mnordin/go-concierge-backend/internal/domain"
	"github.com/mnordin/go-concierge-backend/internal/llm"
)

// ConversationAnalyzer is the extraction contract required by
// AnalysisRunner.
type ConversationAnalyzer interface {
	// Analyze runs structured extraction over a conversation and reports
	// which of the candidate signals fired.
	Analyze(ctx context.Context, conversation []llm.Message, personaName string, candidates []string) (*llm.AnalysisResult, error)
}

// AnalysisRunner gates and executes the post-reply analysis stage.
type AnalysisRunner struct {
	DB         *gorm.DB
	Analyzer   ConversationAnalyzer
	Sessions   SessionStore
	Matcher    Matcher
	Dispatcher *Dispatcher
}

// ShouldAnalyze decides whether the analysis pass runs for this turn.
// conversation is the full history including the latest reply; userCount is
// the number of guest messages in it. Returns the candidate signal names
// when analysis should run.
func (r *AnalysisRunner) ShouldAnalyze(cfg *domain.AnalysisConfig, conversation []llm.Message, userCount int, actions []domain.Action) (bool, []string) {
	if cfg == nil || !cfg.Enabled {
		return false, nil
	}
	if userCount < cfg.MinUserMessages {
		return false, nil
	}
	if len(cfg.Keywords) > 0 && !containsAnyKeyword(conversation, cfg.Keywords) {
		return false, nil
	}
	// Without analysis-typed actions there is nothing a result could fire.
	candidates := r.Matcher.AnalysisCandidates(actions)
	if len(candidates) == 0 {
		return false, nil
	}
	return true, candidates
}

// Run executes the analysis pass: one extraction call, a metadata merge for
// any guest identity fields, then sequential dispatch of the actions bound
// to each fired signal. Sequential on purpose; the notification idempotence
// check is not safe under in-turn fan-out. Run never returns an error.
func (r *AnalysisRunner) Run(ctx context.Context, dc *DispatchContext, conversation []llm.Message, candidates []string, actions []domain.Action) {
	res, err := r.Analyzer.Analyze(ctx, conversation, dc.PersonaName, candidates)
	if err != nil {
		log.Warn().Err(err).
			Str("session_id", dc.Session.ID).
			Msg("analysis: extraction failed, skipping stage")
		return
	}
	if res == nil {
		return
	}
	dc.Analysis = res

	r.mergeGuestIdentity(ctx, dc.Session, res)

	for _, fired := range res.FiredTriggers {
		matched := r.Matcher.MatchAnalysisTriggers(fired, actions)
		if len(matched) == 0 {
			continue
		}
		log.Info().
			Str("session_id", dc.Session.ID).
			Str("trigger", fired).
			Int("actions", len(matched)).
			Msg("analysis: trigger fired")
		dc.Trigger = fired
		for i := range matched {
			r.Dispatcher.Dispatch(ctx, &matched[i], dc)
		}
	}
}

func (r *AnalysisRunner) mergeGuestIdentity(ctx context.Context, session *domain.Session, res *llm.AnalysisResult) {
	partial := domain.JSONMap{}
	if res.GuestName != "" {
		partial["guest_name"] = res.GuestName
	}
	if res.GuestEmail != "" {
		partial["guest_email"] = res.GuestEmail
	}
	if res.GuestPhone != "" {
		partial["guest_phone"] = res.GuestPhone
	}
	if len(partial) == 0 {
		return
	}
	if err := r.Sessions.MergeSessionMetadata(ctx, r.DB, session.ID, partial); err != nil {
		log.Warn().Err(err).
			Str("session_id", session.ID).
			Msg("analysis: metadata merge failed")
		return
	}
	if session.Metadata == nil {
		session.Metadata = domain.JSONMap{}
	}
	for k, v := range partial {
		session.Metadata[k] = v
	}
}

func containsAnyKeyword(conversation []llm.Message, keywords []string) bool {
	var b strings.Builder
	for _, m := range conversation {
		b.WriteString(strings.ToLower(m.Content))
		b.WriteByte('\n')
	}
	text := b.String()
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

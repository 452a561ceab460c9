// Package services – Matcher
//
// This file implements the trigger matcher: pure, stateless evaluation of a
// guest message against a tenant's configured actions. Keyword triggers use
// case-insensitive substring containment; regex triggers compile the pattern
// case-insensitively, and a malformed pattern is logged and treated as a
// non-match so a bad configuration row can never abort a turn. Analysis
// triggers have a separate entry point driven by the named signals the
// post-reply analysis pass reports.
package services

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mnordin/go-concierge-backend/internal/domain"
)

// Matcher evaluates configured actions against messages and analysis
// signals. The zero value is ready to use.
type Matcher struct{}

// Match returns the keyword and regex actions that fire for message, in
// their configured order. Actions with trigger type "analysis" are skipped;
// those are evaluated after the reply via MatchAnalysisTriggers.
func (Matcher) Match(message string, actions []domain.Action) []domain.Action {
	lower := strings.ToLower(message)

	var matched []domain.Action
	for _, a := range actions {
		switch a.TriggerType {
		case domain.TriggerKeyword:
			if a.TriggerValue != "" && strings.Contains(lower, strings.ToLower(a.TriggerValue)) {
				matched = append(matched, a)
			}
		case domain.TriggerRegex:
			re, err := regexp.Compile("(?i)" + a.TriggerValue)
			if err != nil {
				log.Warn().Err(err).
					Str("action_id", a.ID).
					Str("pattern", a.TriggerValue).
					Msg("matcher: malformed regex trigger")
				continue
			}
			if re.MatchString(message) {
				matched = append(matched, a)
			}
		}
	}
	return matched
}

// MatchAnalysisTriggers returns the analysis actions whose trigger value
// equals fired, preserving configured order. fired is one named signal
// reported by the analysis pass, for example "reservation_complete".
func (Matcher) MatchAnalysisTriggers(fired string, actions []domain.Action) []domain.Action {
	var matched []domain.Action
	for _, a := range actions {
		if a.TriggerType == domain.TriggerAnalysis && a.TriggerValue == fired {
			matched = append(matched, a)
		}
	}
	return matched
}

// AnalysisCandidates returns the distinct trigger values of the analysis
// actions, in configured order. These are the signal names the analysis
// pass is asked to look for.
func (Matcher) AnalysisCandidates(actions []domain.Action) []string {
	seen := make(map[string]bool, len(actions))
	var out []string
	for _, a := range actions {
		if a.TriggerType != domain.TriggerAnalysis || seen[a.TriggerValue] {
			continue
		}
		seen[a.TriggerValue] = true
		out = append(out, a.TriggerValue)
	}
	return out
}

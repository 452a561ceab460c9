package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// AnalysisResult carries the structured facts extracted from a conversation
// by the post-reply analysis pass: guest identity, reservation details,
// complaint context, and the named triggers the model considers fired.
type AnalysisResult struct {
	GuestName  string `json:"guest_name,omitempty"`
	GuestEmail string `json:"guest_email,omitempty"`
	GuestPhone string `json:"guest_phone,omitempty"`

	ReservationDate string `json:"reservation_date,omitempty"`
	ReservationTime string `json:"reservation_time,omitempty"`
	PartySize       int    `json:"party_size,omitempty"`
	SpecialRequests string `json:"special_requests,omitempty"`

	Reason string `json:"reason,omitempty"`

	FiredTriggers []string `json:"fired_triggers,omitempty"`
}

// Fired reports whether the named trigger is in the fired set.
func (r *AnalysisResult) Fired(name string) bool {
	for _, t := range r.FiredTriggers {
		if t == name {
			return true
		}
	}
	return false
}

// ConversationAnalyzer runs a single JSON-mode model call over the full
// conversation and decides which of the candidate triggers fired.
type ConversationAnalyzer struct {
	Provider Provider
	Model    string
}

const analysisPrompt = `You analyze a finished exchange between a guest and "%s",
a customer-facing assistant. Extract facts and decide which of these trigger
signals apply: %s.
Respond with JSON only, using exactly these keys (omit what is unknown):
{"guest_name": str, "guest_email": str, "guest_phone": str,
 "reservation_date": str, "reservation_time": str, "party_size": int,
 "special_requests": str, "reason": str, "fired_triggers": [str]}.
Only list a trigger in fired_triggers when the conversation clearly supports it.`

// Analyze extracts structured facts from the conversation. candidates names
// the triggers the model may fire; anything outside that set is discarded.
// A nil result with nil error never occurs: failures are errors.
func (a *ConversationAnalyzer) Analyze(ctx context.Context, conversation []Message, personaName string, candidates []string) (*AnalysisResult, error) {
	var b strings.Builder
	for _, m := range conversation {
		b.WriteString(m.Role)
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}

	resp, err := a.Provider.Complete(ctx, &Request{
		Model: a.Model,
		Messages: []Message{
			{Role: "system", Content: fmt.Sprintf(analysisPrompt, personaName, strings.Join(candidates, ", "))},
			{Role: "user", Content: b.String()},
		},
		Temperature: 0,
		MaxTokens:   400,
		JSONOnly:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("conversation analysis: %w", err)
	}

	var result AnalysisResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Content)), &result); err != nil {
		return nil, fmt.Errorf("conversation analysis: decoding result: %w", err)
	}

	// Keep only triggers that were actually offered as candidates.
	allowed := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		allowed[c] = struct{}{}
	}
	kept := result.FiredTriggers[:0]
	for _, t := range result.FiredTriggers {
		if _, ok := allowed[t]; ok {
			kept = append(kept, t)
		}
	}
	result.FiredTriggers = kept

	return &result, nil
}

package services

import (
	"testing"

	"github.com/mnordin/go-concierge-backend/internal/domain"
)

func action(id, triggerType, triggerValue, actionType string) domain.Action {
	return domain.Action{
		ID:           id,
		TriggerType:  triggerType,
		TriggerValue: triggerValue,
		ActionType:   actionType,
	}
}

func TestMatcher_Match_KeywordCaseInsensitive(t *testing.T) {
	actions := []domain.Action{
		action("a1", domain.TriggerKeyword, "Boka Bord", domain.ActionCreateNotification),
		action("a2", domain.TriggerKeyword, "allergi", domain.ActionEmailStaff),
	}

	m := Matcher{}
	got := m.Match("Hej! Kan jag BOKA BORD för fyra ikväll?", actions)
	if len(got) != 1 || got[0].ID != "a1" {
		t.Fatalf("expected a1 only, got %v", got)
	}

	if got := m.Match("helt vanligt meddelande", actions); got != nil {
		t.Fatalf("expected no matches, got %v", got)
	}
}

func TestMatcher_Match_Regex(t *testing.T) {
	actions := []domain.Action{
		action("r1", domain.TriggerRegex, `\b(klaga|klagomål)\b`, domain.ActionCreateNotification),
	}

	m := Matcher{}
	if got := m.Match("Jag vill KLAGA på maten", actions); len(got) != 1 {
		t.Fatalf("expected case-insensitive regex match, got %v", got)
	}
	if got := m.Match("klagomålsfritt besök", actions); got != nil {
		t.Fatalf("word boundary should prevent a match, got %v", got)
	}
}

func TestMatcher_Match_MalformedRegexSkipped(t *testing.T) {
	actions := []domain.Action{
		action("bad", domain.TriggerRegex, `([unclosed`, domain.ActionCreateNotification),
		action("ok", domain.TriggerKeyword, "boka", domain.ActionCreateNotification),
	}

	got := Matcher{}.Match("jag vill boka", actions)
	if len(got) != 1 || got[0].ID != "ok" {
		t.Fatalf("malformed regex must not abort matching: %v", got)
	}
}

func TestMatcher_Match_SkipsAnalysisTriggers(t *testing.T) {
	actions := []domain.Action{
		action("an", domain.TriggerAnalysis, "reservation_complete", domain.ActionCreateNotification),
	}
	if got := (Matcher{}).Match("reservation_complete", actions); got != nil {
		t.Fatalf("analysis triggers must not match on message text: %v", got)
	}
}

func TestMatcher_Match_PreservesConfiguredOrder(t *testing.T) {
	actions := []domain.Action{
		action("first", domain.TriggerKeyword, "boka", domain.ActionCreateNotification),
		action("second", domain.TriggerRegex, "boka", domain.ActionEmailStaff),
		action("third", domain.TriggerKeyword, "bord", domain.ActionHandoff),
	}
	got := Matcher{}.Match("boka bord", actions)
	if len(got) != 3 || got[0].ID != "first" || got[1].ID != "second" || got[2].ID != "third" {
		t.Fatalf("expected configured order, got %v", got)
	}
}

func TestMatcher_MatchAnalysisTriggers(t *testing.T) {
	actions := []domain.Action{
		action("a1", domain.TriggerAnalysis, "reservation_complete", domain.ActionCreateNotification),
		action("a2", domain.TriggerAnalysis, "is_complaint", domain.ActionCreateNotification),
		action("a3", domain.TriggerAnalysis, "reservation_complete", domain.ActionEmailGuest),
		action("kw", domain.TriggerKeyword, "reservation_complete", domain.ActionHandoff),
	}

	got := Matcher{}.MatchAnalysisTriggers("reservation_complete", actions)
	if len(got) != 2 || got[0].ID != "a1" || got[1].ID != "a3" {
		t.Fatalf("expected a1 and a3, got %v", got)
	}
	if got := (Matcher{}).MatchAnalysisTriggers("unknown", actions); got != nil {
		t.Fatalf("expected no matches for unknown signal, got %v", got)
	}
}

func TestMatcher_AnalysisCandidates_DistinctInOrder(t *testing.T) {
	actions := []domain.Action{
		action("a1", domain.TriggerAnalysis, "reservation_complete", domain.ActionCreateNotification),
		action("a2", domain.TriggerAnalysis, "is_complaint", domain.ActionCreateNotification),
		action("a3", domain.TriggerAnalysis, "reservation_complete", domain.ActionEmailGuest),
		action("kw", domain.TriggerKeyword, "boka", domain.ActionHandoff),
	}

	got := Matcher{}.AnalysisCandidates(actions)
	if len(got) != 2 || got[0] != "reservation_complete" || got[1] != "is_complaint" {
		t.Fatalf("expected distinct candidates in order, got %v", got)
	}
}

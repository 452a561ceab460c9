// Package services – Dispatcher
//
// This file implements the action dispatcher, the side-effect executor of
// the turn pipeline. Dispatch never returns an error: every internal
// failure is logged and degraded to a no-op so one broken action cannot
// block its siblings or the turn's response. Notification creation is
// idempotent per (session, type); the database unique index backs up the
// existence check against concurrent turns.
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/mnordin/go-concierge-backend/internal/domain"
	"github.com/mnordin/go-concierge-backend/internal/llm"
	"github.com/mnordin/go-concierge-backend/internal/notify"
)

// Notification types computed from the originating trigger value.
const (
	notificationReservation = "reservation"
	notificationComplaint   = "complaint"
	notificationHandoff     = "handoff"
	notificationGeneric     = "generic"
)

// Named analysis signals with dedicated notification and push handling.
const (
	TriggerReservationComplete = "reservation_complete"
	TriggerIsComplaint         = "is_complaint"
	TriggerNeedsHuman          = "needs_human_response"
)

// NotificationStore is the persistence contract required by Dispatcher.
type NotificationStore interface {
	// NotificationExists reports whether a notification of the given type
	// already exists for the session.
	NotificationExists(ctx context.Context, db *gorm.DB, sessionID, notificationType string) (bool, error)

	// CreateNotification inserts a notification, returning (nil, nil) when
	// a concurrent turn already created one of the same type.
	CreateNotification(ctx context.Context, db *gorm.DB, sessionID, customerID, notificationType, summary string) (*domain.Notification, error)
}

// SessionFlagger is the session mutation contract required by Dispatcher.
type SessionFlagger interface {
	// UpdateSession applies a partial field update to a session.
	UpdateSession(ctx context.Context, db *gorm.DB, id string, fields map[string]any) error
}

// DispatchContext carries everything an action execution may need.
type DispatchContext struct {
	Customer *domain.Customer
	Session  *domain.Session
	// Trigger is the value that fired this action, an analysis signal name.
	Trigger string
	// PersonaName is the display name active for this turn.
	PersonaName string
	// Analysis holds the structured facts extracted by the analysis pass.
	// Nil when the action fired without an analysis result.
	Analysis *llm.AnalysisResult
}

// Dispatcher executes configured actions. All collaborators are optional
// except DB, Notifications, and Sessions; nil notifiers simply skip their
// sends.
type Dispatcher struct {
	DB            *gorm.DB
	Notifications NotificationStore
	Sessions      SessionFlagger
	Push          Push
	Mailer        Mailer
}

// Dispatch executes one action. It never returns an error; failures are
// logged with the action id and swallowed.
func (d *Dispatcher) Dispatch(ctx context.Context, action *domain.Action, dc *DispatchContext) {
	switch action.ActionType {
	case domain.ActionCreateNotification:
		d.createNotification(ctx, action, dc)
	case domain.ActionEmailStaff:
		d.sendEmail(action, dc, false)
	case domain.ActionEmailGuest:
		d.sendEmail(action, dc, true)
	case domain.ActionHandoff:
		d.handoff(ctx, action, dc)
	default:
		log.Warn().
			Str("action_id", action.ID).
			Str("action_type", action.ActionType).
			Msg("dispatcher: unknown action type")
	}
}

func (d *Dispatcher) createNotification(ctx context.Context, action *domain.Action, dc *DispatchContext) {
	notificationType := notificationTypeFor(dc.Trigger)

	exists, err := d.Notifications.NotificationExists(ctx, d.DB, dc.Session.ID, notificationType)
	if err != nil {
		log.Error().Err(err).
			Str("action_id", action.ID).
			Str("session_id", dc.Session.ID).
			Msg("dispatcher: notification existence check failed")
		return
	}
	if exists {
		log.Debug().
			Str("session_id", dc.Session.ID).
			Str("type", notificationType).
			Msg("dispatcher: notification already exists, skipping")
		return
	}

	summary := summarize(notificationType, dc.Analysis)
	created, err := d.Notifications.CreateNotification(ctx, d.DB, dc.Session.ID, dc.Customer.ID, notificationType, summary)
	if err != nil {
		log.Error().Err(err).
			Str("action_id", action.ID).
			Str("session_id", dc.Session.ID).
			Msg("dispatcher: notification create failed")
		return
	}
	if created == nil {
		// Lost the race to a concurrent turn; the notification exists.
		return
	}

	d.flagNeedsHuman(ctx, dc)
	d.sendTriggerPush(dc)
}

func (d *Dispatcher) handoff(ctx context.Context, action *domain.Action, dc *DispatchContext) {
	d.flagNeedsHuman(ctx, dc)
	d.sendTriggerPush(dc)
	log.Info().
		Str("action_id", action.ID).
		Str("session_id", dc.Session.ID).
		Msg("dispatcher: session handed off")
}

func (d *Dispatcher) sendEmail(action *domain.Action, dc *DispatchContext, toGuest bool) {
	if d.Mailer == nil {
		return
	}
	template := action.Config.String("template")
	facts := analysisFacts(dc.Analysis)

	if toGuest {
		to := ""
		if dc.Analysis != nil {
			to = dc.Analysis.GuestEmail
		}
		if to == "" {
			to = dc.Session.Metadata.String("guest_email")
		}
		if to == "" {
			log.Warn().
				Str("action_id", action.ID).
				Str("session_id", dc.Session.ID).
				Msg("dispatcher: guest email requested but no address known")
			return
		}
		d.Mailer.SendGuestEmail(notify.GuestEmail{
			CustomerID:   dc.Customer.ID,
			CustomerName: dc.Customer.Name,
			SessionID:    dc.Session.ID,
			To:           to,
			Template:     template,
			PersonaName:  dc.PersonaName,
			Facts:        facts,
		})
		return
	}
	d.Mailer.SendStaffEmail(notify.StaffEmail{
		CustomerID:   dc.Customer.ID,
		CustomerName: dc.Customer.Name,
		SessionID:    dc.Session.ID,
		Template:     template,
		PersonaName:  dc.PersonaName,
		Facts:        facts,
	})
}

func (d *Dispatcher) flagNeedsHuman(ctx context.Context, dc *DispatchContext) {
	if err := d.Sessions.UpdateSession(ctx, d.DB, dc.Session.ID, map[string]any{"needs_human": true}); err != nil {
		log.Error().Err(err).
			Str("session_id", dc.Session.ID).
			Msg("dispatcher: failed to flag session for human")
		return
	}
	dc.Session.NeedsHuman = true
}

// sendTriggerPush dispatches a push notification keyed by the originating
// trigger value. Unrecognized trigger values send nothing.
func (d *Dispatcher) sendTriggerPush(dc *DispatchContext) {
	if d.Push == nil {
		return
	}
	var kind notify.PushKind
	var title string
	switch dc.Trigger {
	case TriggerReservationComplete:
		kind, title = notify.PushReservation, "New reservation"
	case TriggerIsComplaint:
		kind, title = notify.PushComplaint, "New complaint"
	case TriggerNeedsHuman:
		kind, title = notify.PushNeedsHuman, "Guest needs a human"
	default:
		return
	}
	d.Push.Send(notify.PushEvent{
		Kind:         kind,
		CustomerID:   dc.Customer.ID,
		CustomerName: dc.Customer.Name,
		SessionID:    dc.Session.ID,
		Title:        title,
		Body:         summarize(notificationTypeFor(dc.Trigger), dc.Analysis),
	})
}

func notificationTypeFor(trigger string) string {
	switch trigger {
	case TriggerReservationComplete:
		return notificationReservation
	case TriggerIsComplaint:
		return notificationComplaint
	case TriggerNeedsHuman:
		return notificationHandoff
	default:
		return notificationGeneric
	}
}

// summarize builds the staff-facing summary line for a notification type.
func summarize(notificationType string, res *llm.AnalysisResult) string {
	switch notificationType {
	case notificationReservation:
		if res == nil {
			return "New reservation request"
		}
		s := fmt.Sprintf("Reservation %s kl %s, %d pers", res.ReservationDate, res.ReservationTime, res.PartySize)
		if strings.TrimSpace(res.SpecialRequests) != "" {
			s += " – " + res.SpecialRequests
		}
		return s
	case notificationComplaint:
		if res != nil && strings.TrimSpace(res.Reason) != "" {
			return res.Reason
		}
		return "A guest raised a complaint"
	case notificationHandoff:
		if res != nil && strings.TrimSpace(res.Reason) != "" {
			return res.Reason
		}
		return "A guest needs a human response"
	default:
		if res != nil && strings.TrimSpace(res.Reason) != "" {
			return res.Reason
		}
		return "New activity in a conversation"
	}
}

func analysisFacts(res *llm.AnalysisResult) map[string]any {
	if res == nil {
		return nil
	}
	facts := map[string]any{}
	put := func(k, v string) {
		if strings.TrimSpace(v) != "" {
			facts[k] = v
		}
	}
	put("guest_name", res.GuestName)
	put("guest_email", res.GuestEmail)
	put("guest_phone", res.GuestPhone)
	put("reservation_date", res.ReservationDate)
	put("reservation_time", res.ReservationTime)
	put("special_requests", res.SpecialRequests)
	put("reason", res.Reason)
	if res.PartySize > 0 {
		facts["party_size"] = res.PartySize
	}
	return facts
}

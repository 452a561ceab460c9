// Package services – notifier contracts
//
// Consumer-side interfaces over the notify package, so services can be
// tested with in-memory fakes that record what would have been sent.
package services

import "github.com/mnordin/go-concierge-backend/internal/notify"

// Push delivers dashboard push events to staff. Fire and forget.
type Push interface {
	Send(ev notify.PushEvent)
}

// Mailer delivers staff emails, guest emails, and operator security alerts.
// All methods are fire and forget; delivery failures never reach the caller.
type Mailer interface {
	SendStaffEmail(mail notify.StaffEmail)
	SendGuestEmail(mail notify.GuestEmail)
	SendOperatorAlert(alert notify.OperatorAlert)
}

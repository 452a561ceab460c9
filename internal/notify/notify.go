// Package notify delivers push notifications and transactional email to
// external channels. Everything here is best-effort relative to a chat turn:
// deliveries run through a bounded queue, failures are logged and dropped,
// and nothing in this package ever propagates an error back into the turn
// pipeline.
package notify

// PushKind selects the push channel a notification goes out on.
type PushKind string

const (
	PushReservation     PushKind = "reservation"
	PushComplaint       PushKind = "complaint"
	PushNeedsHuman      PushKind = "needs_human"
	PushNewGuestMessage PushKind = "new_guest_message"
)

// PushEvent is one push notification to staff devices.
type PushEvent struct {
	Kind         PushKind `json:"kind"`
	CustomerID   string   `json:"customer_id"`
	CustomerName string   `json:"customer_name"`
	SessionID    string   `json:"session_id"`
	Title        string   `json:"title"`
	Body         string   `json:"body"`
}

// StaffEmail is a templated mail to the tenant's staff address.
type StaffEmail struct {
	CustomerID   string         `json:"customer_id"`
	CustomerName string         `json:"customer_name"`
	SessionID    string         `json:"session_id"`
	Template     string         `json:"template"`
	PersonaName  string         `json:"persona_name,omitempty"`
	Facts        map[string]any `json:"facts,omitempty"`
}

// GuestEmail is a templated mail to the guest, available once analysis has
// extracted an address.
type GuestEmail struct {
	CustomerID   string         `json:"customer_id"`
	CustomerName string         `json:"customer_name"`
	SessionID    string         `json:"session_id"`
	To           string         `json:"to"`
	Template     string         `json:"template"`
	PersonaName  string         `json:"persona_name,omitempty"`
	Facts        map[string]any `json:"facts,omitempty"`
}

// OperatorAlert is the security alert mailed to the fixed operator address
// when a message is blocked.
type OperatorAlert struct {
	To           string `json:"to"`
	CustomerName string `json:"customer_name"`
	SessionID    string `json:"session_id"`
	Reason       string `json:"reason"`
	RiskLevel    int    `json:"risk_level"`
	RawPrompt    string `json:"raw_prompt"`
	TestMode     bool   `json:"test_mode"`
}

// Push sends push notifications to staff devices.
type Push interface {
	Send(ev PushEvent)
}

// Mailer sends transactional email.
type Mailer interface {
	SendStaffEmail(mail StaffEmail)
	SendGuestEmail(mail GuestEmail)
	SendOperatorAlert(alert OperatorAlert)
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mnordin/go-concierge-backend/internal/retry"
)

// WebhookSender delivers push events and mail through JSON webhook POSTs to
// an internal gateway (which owns device tokens and mail templates). Both
// the Push and Mailer interfaces are implemented on top of it.
//
// An empty endpoint URL turns the corresponding channel into a logged no-op,
// which is how local development runs.
type WebhookSender struct {
	PushURL  string
	EmailURL string

	Queue  *Queue
	Client *http.Client

	// Retry bounds transient-failure retries per delivery.
	Retry retry.Config
}

// NewWebhookSender wires a sender over the given queue.
func NewWebhookSender(pushURL, emailURL string, q *Queue) *WebhookSender {
	return &WebhookSender{
		PushURL:  pushURL,
		EmailURL: emailURL,
		Queue:    q,
		Client:   &http.Client{Timeout: 10 * time.Second},
		Retry: retry.Config{
			MaxAttempts:  3,
			InitialDelay: 250 * time.Millisecond,
			MaxDelay:     2 * time.Second,
		},
	}
}

// Send enqueues one push event.
func (w *WebhookSender) Send(ev PushEvent) {
	if w.PushURL == "" {
		log.Debug().Str("kind", string(ev.Kind)).Str("session_id", ev.SessionID).
			Msg("notify: push channel not configured, skipping")
		return
	}
	w.Queue.Enqueue("push:"+string(ev.Kind), func(ctx context.Context) error {
		return w.post(ctx, w.PushURL, map[string]any{"type": "push", "event": ev})
	})
}

// SendStaffEmail enqueues a staff mail.
func (w *WebhookSender) SendStaffEmail(mail StaffEmail) {
	w.enqueueMail("email:staff", map[string]any{"type": "staff_email", "mail": mail})
}

// SendGuestEmail enqueues a guest mail.
func (w *WebhookSender) SendGuestEmail(mail GuestEmail) {
	w.enqueueMail("email:guest", map[string]any{"type": "guest_email", "mail": mail})
}

// SendOperatorAlert enqueues the security alert mail.
func (w *WebhookSender) SendOperatorAlert(alert OperatorAlert) {
	w.enqueueMail("email:operator_alert", map[string]any{"type": "operator_alert", "mail": alert})
}

func (w *WebhookSender) enqueueMail(name string, payload map[string]any) {
	if w.EmailURL == "" {
		log.Debug().Str("task", name).Msg("notify: email channel not configured, skipping")
		return
	}
	w.Queue.Enqueue(name, func(ctx context.Context) error {
		return w.post(ctx, w.EmailURL, payload)
	})
}

// post delivers one JSON payload with bounded retries.
func (w *WebhookSender) post(ctx context.Context, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding webhook payload: %w", err)
	}

	return retry.Do(ctx, w.Retry, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.Client.Do(req)
		if err != nil {
			return err
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()

		if resp.StatusCode >= 300 {
			return fmt.Errorf("webhook %s: unexpected status %d", url, resp.StatusCode)
		}
		return nil
	})
}

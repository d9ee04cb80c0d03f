package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// EmailSender delivers workflow emails. Implementations live outside the
// core; the engine only bounds them with a timeout.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Notifier delivers in-app notifications.
type Notifier interface {
	Notify(ctx context.Context, target, message string) error
}

// WebhookCaller posts a JSON payload to an external endpoint.
type WebhookCaller interface {
	Call(ctx context.Context, url string, payload map[string]any) error
}

// Collaborators bundles the external action executors. Nil entries fall back
// to log-backed implementations.
type Collaborators struct {
	Email    EmailSender
	Notify   Notifier
	Webhooks WebhookCaller
}

func (c Collaborators) withDefaults() Collaborators {
	if c.Email == nil {
		c.Email = LogEmailSender{}
	}
	if c.Notify == nil {
		c.Notify = LogNotifier{}
	}
	if c.Webhooks == nil {
		c.Webhooks = NewHTTPWebhookCaller(nil)
	}
	return c
}

// LogEmailSender writes outbound email to the process log.
type LogEmailSender struct{}

// Send implements EmailSender.
func (LogEmailSender) Send(_ context.Context, to, subject, _ string) error {
	log.Printf("[EMAIL] to=%s subject=%q", to, subject)
	return nil
}

// LogNotifier writes notifications to the process log.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(_ context.Context, target, message string) error {
	log.Printf("[NOTIFY] target=%s message=%q", target, message)
	return nil
}

// HTTPWebhookCaller posts JSON payloads with the caller's context deadline.
type HTTPWebhookCaller struct {
	client *http.Client
}

// NewHTTPWebhookCaller creates a webhook caller; a nil client uses a default
// with a conservative transport timeout.
func NewHTTPWebhookCaller(client *http.Client) *HTTPWebhookCaller {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPWebhookCaller{client: client}
}

// Call implements WebhookCaller.
func (c *HTTPWebhookCaller) Call(ctx context.Context, url string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("call webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

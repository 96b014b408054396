package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"
)

// EventType tags the admin alerts we emit on state changes.
type EventType string

const (
	EventClaim       EventType = "CLAIM"
	EventEdit        EventType = "EDIT"
	EventDelete      EventType = "DELETE"
	EventPhotoUpdate EventType = "PHOTO_UPDATE"
	EventManageLink  EventType = "MANAGE_LINK"
)

// Event is the webhook payload. These are advisory alerts, not the system of
// record: no retry, no ordering guarantee.
type Event struct {
	Type      EventType      `json:"type"`
	ID        string         `json:"id,omitempty"`
	Name      string         `json:"name,omitempty"`
	Email     string         `json:"email,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Changes   map[string]any `json:"changes,omitempty"`
	ManageURL string         `json:"manage_url,omitempty"`
	DeleteURL string         `json:"delete_url,omitempty"`
}

// Notifier delivers state-change events to the admin workflow endpoint.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, event Event) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, Event) error {
	return nil
}

func normalizeNotifier(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

// WebhookNotifier posts events as JSON to a single configured endpoint.
type WebhookNotifier struct {
	endpoint   string
	credential string
	client     *http.Client
	logger     Logger
}

type WebhookNotifierOption func(*WebhookNotifier)

func WithNotifierClient(client *http.Client) WebhookNotifierOption {
	return func(n *WebhookNotifier) {
		if client != nil {
			n.client = client
		}
	}
}

func WithNotifierLogger(logger Logger) WebhookNotifierOption {
	return func(n *WebhookNotifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithNotifierCredential attaches a bearer credential to every delivery so the
// downstream hook can reject unauthenticated posts.
func WithNotifierCredential(credential string) WebhookNotifierOption {
	return func(n *WebhookNotifier) {
		n.credential = credential
	}
}

func NewWebhookNotifier(endpoint string, opts ...WebhookNotifierOption) *WebhookNotifier {
	n := &WebhookNotifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   defLogger{},
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Notify performs one synchronous best-effort delivery. A missing endpoint is
// a warning and a no-op, matching the behavior callers rely on in dev.
func (n *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	if n.endpoint == "" {
		n.logger.Warn("webhook endpoint not configured, dropping %s event", event.Type)
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return NewUpstreamError(err, "failed to encode webhook payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return NewUpstreamError(err, "failed to build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")
	if n.credential != "" {
		req.Header.Set("Authorization", "Bearer "+n.credential)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return NewUpstreamTimeoutError(err, "webhook delivery timed out")
		}
		return NewUpstreamError(err, "webhook delivery failed")
	}
	defer resp.Body.Close()

	// Drain so the connection can be reused.
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode >= 400 {
		return NewUpstreamError(nil, "webhook responded "+resp.Status)
	}

	return nil
}

// Dispatch delivers an event detached from the caller's request path. The
// user-visible operation must succeed or fail independently of the alert, so
// any delivery error is logged and swallowed here.
func Dispatch(n Notifier, logger Logger, event Event) {
	if logger == nil {
		logger = defLogger{}
	}
	notifier := normalizeNotifier(n)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := notifier.Notify(ctx, event); err != nil {
			logger.Error("failed to deliver %s notification: %v", event.Type, err)
		}
	}()
}

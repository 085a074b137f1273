// Package webhook sends fire-and-forget step notifications to an external
// endpoint. Delivery is best effort: the response is never trusted and
// failures are expected, logged at debug, and swallowed.
package webhook

import (
	"context"
	"time"

	"resty.dev/v3"

	"github.com/veritahealth/onboard/internal/logging"
)

// Notifier posts onboarding progress notifications to a fixed URL.
type Notifier struct {
	client *resty.Client
	url    string
	log    *logging.Logger
}

type notification struct {
	Email string `json:"email"`
	Step  int    `json:"step"`
}

// NewNotifier creates a Notifier. An empty URL disables notification.
func NewNotifier(url string, timeout time.Duration, log *logging.Logger) *Notifier {
	return &Notifier{
		client: resty.New().SetTimeout(timeout),
		url:    url,
		log:    log.WithComponent("webhook"),
	}
}

// NotifyStep posts {email, step}. It never returns an error; the caller
// must not depend on delivery.
func (n *Notifier) NotifyStep(ctx context.Context, email string, step int) {
	if n.url == "" {
		return
	}

	res, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(notification{Email: email, Step: step}).
		Post(n.url)
	if err != nil {
		n.log.Debug("webhook notification failed", "step", step, "error", err)
		return
	}
	n.log.Debug("webhook notification sent", "step", step, "status", res.StatusCode())
}

// Close releases the underlying HTTP client.
func (n *Notifier) Close() error {
	return n.client.Close()
}

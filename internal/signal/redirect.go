package signal

import (
	"net/url"
)

// BookingParam is the one-shot query parameter the external booking system
// appends when returning the user. Value "success" means the booking
// completed through the normal flow; "manual" means the user confirmed
// manually on the external site.
const BookingParam = "booking"

// RedirectConsumer reads the booking query parameter exactly once. The
// returned stripped URL must replace the current one (replace-state) so a
// refresh or back-navigation cannot re-trigger the signal.
type RedirectConsumer struct {
	targetStep int
}

// NewRedirectConsumer creates a consumer emitting signals for targetStep,
// the step reached once booking completes.
func NewRedirectConsumer(targetStep int) *RedirectConsumer {
	return &RedirectConsumer{targetStep: targetStep}
}

// Consume inspects rawURL for the booking parameter. It returns the
// normalized signal (nil when the parameter is absent or unrecognized) and
// the URL with the parameter stripped. Consuming the stripped URL again
// yields no signal, making the path idempotent against refresh.
func (c *RedirectConsumer) Consume(rawURL string) (*CompletionSignal, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, rawURL, err
	}

	query := parsed.Query()
	value := query.Get(BookingParam)
	if value == "" {
		return nil, rawURL, nil
	}

	// Strip the parameter regardless of its value; an unrecognized value
	// must not survive to re-trigger on the next load either.
	query.Del(BookingParam)
	parsed.RawQuery = query.Encode()
	stripped := parsed.String()

	var source Source
	switch value {
	case "success":
		source = SourceRedirect
	case "manual":
		source = SourceManual
	default:
		return nil, stripped, nil
	}

	sig := New(source, c.targetStep, map[string]string{BookingParam: value})
	return sig, stripped, nil
}

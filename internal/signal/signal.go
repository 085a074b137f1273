// Package signal normalizes the heterogeneous "step completed" channels
// (webhook effects observed by polling, the one-shot redirect query
// parameter, manual user confirmation, generic polling) into one
// ephemeral CompletionSignal type. The package only observes and forwards;
// it holds no authority over step state and performs no mutation. All
// deduplication happens downstream in the advancement coordinator.
package signal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Source identifies the channel a completion signal arrived on.
type Source string

const (
	// SourceWebhook marks a transition inferred by polling while the
	// third-party webhook was expected to land server-side.
	SourceWebhook Source = "webhook"
	// SourceRedirect marks the one-shot booking query parameter.
	SourceRedirect Source = "redirect"
	// SourcePoll marks a transition observed by generic progress polling.
	SourcePoll Source = "poll"
	// SourceManual marks an explicit user confirmation.
	SourceManual Source = "manual"
	// SourceFrame marks a submission reported by the embedded form frame.
	SourceFrame Source = "frame"
)

// CompletionSignal is an ephemeral notification that a step's completion
// condition was observed. It is consumed immediately by the coordinator
// and never persisted.
type CompletionSignal struct {
	ID         uuid.UUID
	Source     Source
	TargetStep int
	ReceivedAt time.Time
	Payload    map[string]string
}

// New creates a CompletionSignal for the given source and target step.
func New(source Source, targetStep int, payload map[string]string) *CompletionSignal {
	return &CompletionSignal{
		ID:         uuid.New(),
		Source:     source,
		TargetStep: targetStep,
		ReceivedAt: time.Now(),
		Payload:    payload,
	}
}

// NewManual creates the signal for an explicit "yes, I booked" confirmation.
func NewManual(targetStep int) *CompletionSignal {
	return New(SourceManual, targetStep, nil)
}

// Sink consumes normalized signals. The advancement coordinator is the
// only production sink.
type Sink func(ctx context.Context, sig *CompletionSignal) error

// Package event defines event types for decoupling the onboarding engine
// from whatever surface renders it. These events enable the UI, logging,
// and diagnostics to observe the engine without direct dependencies.
package event

import "time"

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "step.advanced", "session.warning")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers, usable with Bus.Subscribe.
const (
	TypeStepAdvanced       = "step.advanced"
	TypeStepRolledBack     = "step.rolled_back"
	TypeSignalDropped      = "signal.dropped"
	TypeValidationRejected = "validation.rejected"
	TypeSessionWarning     = "session.warning"
	TypeSessionRefreshed   = "session.refreshed"
	TypeSessionEnded       = "session.ended"
	TypeDraftSaved         = "draft.saved"
	TypeStorageDegraded    = "storage.degraded"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Step Events
// -----------------------------------------------------------------------------

// StepAdvancedEvent is emitted after the server confirms a step advancement.
type StepAdvancedEvent struct {
	baseEvent
	FromStep int    // Step before the advancement
	ToStep   int    // Step after the advancement
	Source   string // Signal source that triggered it: webhook, redirect, poll, manual, frame
}

// NewStepAdvancedEvent creates a StepAdvancedEvent.
func NewStepAdvancedEvent(fromStep, toStep int, source string) StepAdvancedEvent {
	return StepAdvancedEvent{
		baseEvent: newBaseEvent(TypeStepAdvanced),
		FromStep:  fromStep,
		ToStep:    toStep,
		Source:    source,
	}
}

// StepRolledBackEvent is emitted after an explicit user-triggered rollback.
type StepRolledBackEvent struct {
	baseEvent
	FromStep int
	ToStep   int
}

// NewStepRolledBackEvent creates a StepRolledBackEvent.
func NewStepRolledBackEvent(fromStep, toStep int) StepRolledBackEvent {
	return StepRolledBackEvent{
		baseEvent: newBaseEvent(TypeStepRolledBack),
		FromStep:  fromStep,
		ToStep:    toStep,
	}
}

// SignalDroppedEvent is emitted when a completion signal is discarded
// because an advancement was already in flight or already satisfied.
type SignalDroppedEvent struct {
	baseEvent
	Source     string // Signal source
	TargetStep int
	Reason     string // "in_flight" or "already_satisfied"
}

// NewSignalDroppedEvent creates a SignalDroppedEvent.
func NewSignalDroppedEvent(source string, targetStep int, reason string) SignalDroppedEvent {
	return SignalDroppedEvent{
		baseEvent:  newBaseEvent(TypeSignalDropped),
		Source:     source,
		TargetStep: targetStep,
		Reason:     reason,
	}
}

// ValidationRejectedEvent is emitted when the validation gate blocks an
// advancement. Violations identify exactly which fields are missing.
type ValidationRejectedEvent struct {
	baseEvent
	Step     int
	FieldIDs []string
}

// NewValidationRejectedEvent creates a ValidationRejectedEvent.
func NewValidationRejectedEvent(step int, fieldIDs []string) ValidationRejectedEvent {
	return ValidationRejectedEvent{
		baseEvent: newBaseEvent(TypeValidationRejected),
		Step:      step,
		FieldIDs:  fieldIDs,
	}
}

// -----------------------------------------------------------------------------
// Session Events
// -----------------------------------------------------------------------------

// SessionWarningEvent is emitted when the token expiry warning is raised
// and on every countdown tick while it is active.
type SessionWarningEvent struct {
	baseEvent
	RemainingSeconds int
}

// NewSessionWarningEvent creates a SessionWarningEvent.
func NewSessionWarningEvent(remainingSeconds int) SessionWarningEvent {
	return SessionWarningEvent{
		baseEvent:        newBaseEvent(TypeSessionWarning),
		RemainingSeconds: remainingSeconds,
	}
}

// SessionRefreshedEvent is emitted after a successful token refresh.
type SessionRefreshedEvent struct {
	baseEvent
	ExpiresAt time.Time
}

// NewSessionRefreshedEvent creates a SessionRefreshedEvent.
func NewSessionRefreshedEvent(expiresAt time.Time) SessionRefreshedEvent {
	return SessionRefreshedEvent{
		baseEvent: newBaseEvent(TypeSessionRefreshed),
		ExpiresAt: expiresAt,
	}
}

// SessionEndedEvent is emitted exactly once when the session terminates.
type SessionEndedEvent struct {
	baseEvent
	Reason string // "expired", "refresh_failed", "user_logout"
}

// NewSessionEndedEvent creates a SessionEndedEvent.
func NewSessionEndedEvent(reason string) SessionEndedEvent {
	return SessionEndedEvent{
		baseEvent: newBaseEvent(TypeSessionEnded),
		Reason:    reason,
	}
}

// -----------------------------------------------------------------------------
// Draft Events
// -----------------------------------------------------------------------------

// DraftSavedEvent is emitted after the autosave pipeline persists a draft.
// Durable is false when the write landed on a fallback tier only.
type DraftSavedEvent struct {
	baseEvent
	Tier    string
	Durable bool
	SavedAt time.Time
}

// NewDraftSavedEvent creates a DraftSavedEvent.
func NewDraftSavedEvent(tier string, durable bool, savedAt time.Time) DraftSavedEvent {
	return DraftSavedEvent{
		baseEvent: newBaseEvent(TypeDraftSaved),
		Tier:      tier,
		Durable:   durable,
		SavedAt:   savedAt,
	}
}

// StorageDegradedEvent is emitted when a persistence tier fails and the
// write falls through to a lower tier.
type StorageDegradedEvent struct {
	baseEvent
	FailedTier   string
	FallbackTier string
}

// NewStorageDegradedEvent creates a StorageDegradedEvent.
func NewStorageDegradedEvent(failedTier, fallbackTier string) StorageDegradedEvent {
	return StorageDegradedEvent{
		baseEvent:    newBaseEvent(TypeStorageDegraded),
		FailedTier:   failedTier,
		FallbackTier: fallbackTier,
	}
}

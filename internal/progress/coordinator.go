package progress

import (
	"context"
	"strings"
	"sync"

	"github.com/veritahealth/onboard/internal/api"
	"github.com/veritahealth/onboard/internal/config"
	apperrors "github.com/veritahealth/onboard/internal/errors"
	"github.com/veritahealth/onboard/internal/logging"
	"github.com/veritahealth/onboard/internal/signal"
)

// FinalStep is the terminal step of the onboarding sequence. Reaching it
// hands off to the external completion view.
const FinalStep = 4

// Outcome classifies what the coordinator did with a signal.
type Outcome int

const (
	// OutcomeFailed means the mutating call failed; state is unchanged and
	// a future signal (e.g. the next poll tick) may retry.
	OutcomeFailed Outcome = iota
	// OutcomeAdvanced means the server confirmed a step transition.
	OutcomeAdvanced
	// OutcomeAlreadySatisfied means the authoritative step already covers
	// the signal's target; the cache was refreshed, nothing was mutated.
	OutcomeAlreadySatisfied
	// OutcomeRejected means the validation gate blocked the advance.
	OutcomeRejected
	// OutcomeDropped means another advancement was in flight and the
	// signal was discarded.
	OutcomeDropped
)

// String returns the human-readable name for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeFailed:
		return "failed"
	case OutcomeAdvanced:
		return "advanced"
	case OutcomeAlreadySatisfied:
		return "already_satisfied"
	case OutcomeRejected:
		return "rejected"
	case OutcomeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Gate evaluates the validation rules for a step against the current
// draft, returning an ordered list of violations. A nil Gate or empty
// result lets the advance proceed.
type Gate func(step int) []apperrors.FieldViolation

// Callbacks holds callbacks for coordinator events.
type Callbacks struct {
	// OnAdvanced is called after the server confirms a step transition.
	OnAdvanced func(fromStep, toStep int, source signal.Source)

	// OnAlreadySatisfied is called when a signal's target was already
	// reached server-side; the signal resolved without mutation.
	OnAlreadySatisfied func(step int, source signal.Source)

	// OnRejected is called when the validation gate blocks an advance.
	OnRejected func(step int, violations []apperrors.FieldViolation)

	// OnDropped is called when a signal is discarded because an
	// advancement was already in flight.
	OnDropped func(sig *signal.CompletionSignal)

	// OnRolledBack is called after an explicit user-triggered rollback.
	OnRolledBack func(fromStep, toStep int)
}

// Coordinator is the idempotent state machine that consumes normalized
// completion signals and commits at most one step transition per logical
// event. The authoritative server state is the tie-breaker for duplicate
// or racing signals; the in-flight flag serializes concurrent attempts.
type Coordinator struct {
	client    *api.Client
	store     *StateStore
	gate      Gate
	policy    config.ProgressConfig
	log       *logging.Logger
	callbacks Callbacks

	mu       sync.Mutex
	inFlight bool
}

// NewCoordinator creates a coordinator. gate may be nil when no step
// requires local validation.
func NewCoordinator(client *api.Client, store *StateStore, gate Gate, policy config.ProgressConfig, log *logging.Logger, callbacks Callbacks) *Coordinator {
	return &Coordinator{
		client:    client,
		store:     store,
		gate:      gate,
		policy:    policy,
		log:       log.WithComponent("coordinator"),
		callbacks: callbacks,
	}
}

// Store returns the underlying state store for read access.
func (c *Coordinator) Store() *StateStore {
	return c.store
}

// Sink adapts the coordinator for signal sources.
func (c *Coordinator) Sink() signal.Sink {
	return func(ctx context.Context, sig *signal.CompletionSignal) error {
		_, err := c.Handle(ctx, sig)
		return err
	}
}

// Handle consumes one completion signal.
//
// The sequence is: refuse targets outside the onboarding sequence,
// acquire the in-flight flag (or drop the signal), refresh the
// authoritative state, short-circuit when the target is already
// satisfied, check the current step's required tasks and validation gate,
// then issue the single mutating advance call. A failed mutation leaves
// all state unchanged so a later signal can retry without user
// intervention.
func (c *Coordinator) Handle(ctx context.Context, sig *signal.CompletionSignal) (Outcome, error) {
	if sig.TargetStep < 1 || sig.TargetStep > FinalStep {
		return OutcomeFailed, apperrors.ErrStepOutOfRange
	}

	if !c.acquire() {
		c.log.Debug("signal dropped, advancement in flight",
			"source", sig.Source, "target_step", sig.TargetStep)
		if c.callbacks.OnDropped != nil {
			c.callbacks.OnDropped(sig)
		}
		return OutcomeDropped, nil
	}
	defer c.release()

	snap, err := c.store.Refresh(ctx)
	if err != nil {
		return OutcomeFailed, err
	}

	// Idempotent short-circuit: the tie-breaker against duplicate and
	// racing signals from different sources. The refresh above already
	// updated the cache, so resolving here is a pure no-op.
	if snap.CurrentStep >= sig.TargetStep {
		c.log.Debug("signal already satisfied",
			"source", sig.Source, "target_step", sig.TargetStep,
			"authoritative_step", snap.CurrentStep)
		if c.callbacks.OnAlreadySatisfied != nil {
			c.callbacks.OnAlreadySatisfied(snap.CurrentStep, sig.Source)
		}
		return OutcomeAlreadySatisfied, nil
	}

	if c.policy.RequiresValidation(snap.CurrentStep) {
		violations := c.missingTasks(snap)
		if c.gate != nil {
			violations = append(violations, c.gate(snap.CurrentStep)...)
		}
		if len(violations) > 0 {
			c.log.Info("advance blocked by validation",
				"step", snap.CurrentStep, "violations", len(violations))
			if c.callbacks.OnRejected != nil {
				c.callbacks.OnRejected(snap.CurrentStep, violations)
			}
			return OutcomeRejected, apperrors.NewValidationError(snap.CurrentStep, violations)
		}
	}

	updated, err := c.client.AdvanceStep(ctx)
	if err != nil {
		c.log.Warn("advance call failed, state unchanged", "error", err)
		return OutcomeFailed, err
	}

	after := c.store.apply(updated)
	c.log.Info("step advanced",
		"from", snap.CurrentStep, "to", after.CurrentStep, "source", sig.Source)
	if c.callbacks.OnAdvanced != nil {
		c.callbacks.OnAdvanced(snap.CurrentStep, after.CurrentStep, sig.Source)
	}
	return OutcomeAdvanced, nil
}

// GoBack performs the explicit user-triggered rollback. It is the only
// path on which current_step may decrease and is never invoked by signal
// sources. Whether the re-entered step's completed tasks are also cleared
// is policy; the server itself clears tasks only on forward advance.
func (c *Coordinator) GoBack(ctx context.Context) (Snapshot, error) {
	if !c.acquire() {
		return Snapshot{}, apperrors.ErrAdvanceInFlight
	}
	defer c.release()

	before := c.store.Get()

	updated, err := c.client.GoBackStep(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	after := c.store.apply(updated)
	if c.policy.ClearTasksOnRollback {
		c.store.clearTasks()
		after.TasksCompleted = nil
	}

	c.log.Info("step rolled back", "from", before.CurrentStep, "to", after.CurrentStep)
	if c.callbacks.OnRolledBack != nil {
		c.callbacks.OnRolledBack(before.CurrentStep, after.CurrentStep)
	}
	return after, nil
}

// CompleteTask marks a task done within the current step and updates the
// cache from the server's response.
func (c *Coordinator) CompleteTask(ctx context.Context, taskID string) (Snapshot, error) {
	updated, err := c.client.CompleteTask(ctx, taskID)
	if err != nil {
		return Snapshot{}, err
	}
	return c.store.apply(updated), nil
}

// SaveBookingRecord persists the external booking system's correlation id
// and mirrors it into the cache.
func (c *Coordinator) SaveBookingRecord(ctx context.Context, clientRecordID string) error {
	if err := c.client.SavePBClient(ctx, clientRecordID); err != nil {
		return err
	}
	c.store.mu.Lock()
	c.store.snap.PBClientRecordID = clientRecordID
	c.store.mu.Unlock()
	return nil
}

// missingTasks lists the current step's required tasks, per policy, that
// the authoritative snapshot does not report as completed.
func (c *Coordinator) missingTasks(snap Snapshot) []apperrors.FieldViolation {
	var violations []apperrors.FieldViolation
	for _, taskID := range c.policy.TasksRequiredFor(snap.CurrentStep) {
		if !snap.TaskDone(taskID) {
			violations = append(violations, apperrors.FieldViolation{
				FieldID: taskID,
				Label:   strings.ReplaceAll(taskID, "_", " "),
			})
		}
	}
	return violations
}

// acquire takes the in-flight flag. Returns false when an advancement is
// already being processed.
func (c *Coordinator) acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight {
		return false
	}
	c.inFlight = true
	return true
}

// release clears the in-flight flag on every exit path.
func (c *Coordinator) release() {
	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()
}

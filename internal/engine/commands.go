package engine

import (
	"context"

	"github.com/veritahealth/onboard/internal/draft"
	apperrors "github.com/veritahealth/onboard/internal/errors"
	"github.com/veritahealth/onboard/internal/progress"
	"github.com/veritahealth/onboard/internal/signal"
)

// Commands is the explicit handle the external UI drives navigation with.
// Each command is an ordinary bound function; there is no name-based
// dispatch.
type Commands struct {
	// GoNext attempts to advance past the current step via a manual
	// confirmation signal. The validation gate applies.
	GoNext func(ctx context.Context) (progress.Outcome, error)

	// GoPrevious performs the explicit rollback to the previous step.
	GoPrevious func(ctx context.Context) (progress.Snapshot, error)

	// Submit finalizes the intake form: validates the whole draft, flushes
	// any pending autosave, submits to the server, and advances the step.
	Submit func(ctx context.Context) (progress.Outcome, error)
}

// Commands returns the navigation handle bound to this engine.
func (e *Engine) Commands() Commands {
	return Commands{
		GoNext:     e.goNext,
		GoPrevious: e.coordinator.GoBack,
		Submit:     e.submit,
	}
}

func (e *Engine) goNext(ctx context.Context) (progress.Outcome, error) {
	snap := e.coordinator.Store().Get()
	return e.coordinator.Handle(ctx, signal.NewManual(snap.CurrentStep+1))
}

// submit finalizes the intake form. The full draft is validated up front
// so a rejected submission makes no network call; the local draft is
// superseded, not deleted, once the server accepts.
func (e *Engine) submit(ctx context.Context) (progress.Outcome, error) {
	e.mu.Lock()
	p := e.persister
	e.mu.Unlock()
	if p == nil {
		return progress.OutcomeFailed, apperrors.ErrNoSession
	}

	state := p.State()
	if state.Submitted {
		return progress.OutcomeAlreadySatisfied, nil
	}
	if violations := draft.Validate(state); len(violations) > 0 {
		return progress.OutcomeRejected, apperrors.NewValidationError(state.Part, violations)
	}

	if err := p.Flush(ctx); err != nil {
		e.log.Warn("pre-submit flush failed", "error", err)
	}

	data, err := state.Marshal()
	if err != nil {
		return progress.OutcomeFailed, err
	}
	if err := e.client.SubmitIntakeForm(ctx, data); err != nil {
		return progress.OutcomeFailed, err
	}
	p.MarkSubmitted()

	snap := e.coordinator.Store().Get()
	return e.coordinator.Handle(ctx, signal.NewManual(snap.CurrentStep+1))
}

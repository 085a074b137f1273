package draft

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/veritahealth/onboard/internal/errors"
	"github.com/veritahealth/onboard/internal/event"
	"github.com/veritahealth/onboard/internal/logging"
	"github.com/veritahealth/onboard/internal/persist"
)

// CaptureFunc serializes the signature canvas for the named part into an
// image. It is called only when the canvas has strokes not yet captured;
// otherwise the last captured image is reused.
type CaptureFunc func(part string) ([]byte, error)

// Callbacks holds callbacks for autosave outcomes.
type Callbacks struct {
	// OnSaved is called after a save lands in some tier.
	OnSaved func(result persist.SaveResult, savedAt time.Time)

	// OnError is called when every tier rejected the write.
	OnError func(err error)
}

// Persister owns the draft and its debounced persistence. Every mutation
// re-arms a single cancellable delayed save; a burst of edits produces one
// write once the draft has been quiet for the debounce window.
type Persister struct {
	store     *persist.Tiered
	bus       *event.Bus
	capture   CaptureFunc
	debounce  time.Duration
	log       *logging.Logger
	callbacks Callbacks

	mu     sync.Mutex
	state  *FormState
	timer  *time.Timer
	closed bool

	now func() time.Time
}

// NewPersister creates a Persister over the tiered store. capture may be
// nil when no signature canvas exists in this deployment.
func NewPersister(store *persist.Tiered, bus *event.Bus, capture CaptureFunc, debounce time.Duration, log *logging.Logger, callbacks Callbacks) *Persister {
	return &Persister{
		store:     store,
		bus:       bus,
		capture:   capture,
		debounce:  debounce,
		log:       log.WithComponent("autosave"),
		callbacks: callbacks,
		state:     NewFormState(),
		now:       time.Now,
	}
}

// Load restores the draft from the highest tier that holds one. A missing
// draft is not an error; the persister keeps its empty default state.
func (p *Persister) Load(ctx context.Context) error {
	data, err := p.store.Load(ctx, Key)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil
		}
		return err
	}

	state, err := Unmarshal(data)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
	p.log.Info("draft restored", "part", state.Part, "fields", len(state.Fields))
	return nil
}

// State returns a deep copy of the current draft.
func (p *Persister) State() *FormState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone()
}

// Mutate applies fn to the draft and re-arms the debounce timer. The save
// fires only after the draft has been quiet for the full window. A form
// the server already holds as submitted refuses the edit and returns
// ErrDraftSubmitted.
func (p *Persister) Mutate(fn func(*FormState)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	if p.state.Submitted {
		return apperrors.ErrDraftSubmitted
	}

	fn(p.state)

	if p.state.Submitted {
		return nil
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.debounce, func() {
		if err := p.save(context.Background()); err != nil {
			p.log.Warn("autosave failed", "error", err)
			if p.callbacks.OnError != nil {
				p.callbacks.OnError(err)
			}
		}
	})
	return nil
}

// Flush forces any pending save to run now. A no-op when nothing is
// pending.
func (p *Persister) Flush(ctx context.Context) error {
	p.mu.Lock()
	pending := p.timer != nil && p.timer.Stop()
	p.timer = nil
	p.mu.Unlock()

	if !pending {
		return nil
	}
	return p.save(ctx)
}

// MarkSubmitted records that the server holds the finalized form. Any
// pending save is cancelled and no further writes occur; the local draft
// is superseded, not deleted.
func (p *Persister) MarkSubmitted() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Submitted = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// Close cancels any pending save. The draft stays loaded for readers.
func (p *Persister) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// save serializes the draft and writes it through the tiers. Signature
// slots with uncaptured strokes are captured first; slots without new
// strokes keep their last image.
func (p *Persister) save(ctx context.Context) error {
	p.mu.Lock()
	if p.state.Submitted {
		p.mu.Unlock()
		return nil
	}
	if p.capture != nil {
		for part, sig := range p.state.Signatures {
			if sig == nil || !sig.PendingStrokes {
				continue
			}
			img, err := p.capture(part)
			if err != nil {
				p.log.Warn("signature capture failed", "part", part, "error", err)
				continue
			}
			sig.Image = img
			sig.PendingStrokes = false
		}
	}
	snapshot := p.state.Clone()
	p.mu.Unlock()

	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	result, err := p.store.Save(ctx, Key, data)
	if err != nil {
		return err
	}

	savedAt := p.now()
	p.mu.Lock()
	if result.Durable {
		p.state.LastSavedAt = savedAt
	}
	p.mu.Unlock()

	p.log.Debug("draft saved", "tier", result.Tier, "durable", result.Durable)
	if p.bus != nil {
		p.bus.Publish(event.NewDraftSavedEvent(result.Tier, result.Durable, savedAt))
	}
	if p.callbacks.OnSaved != nil {
		p.callbacks.OnSaved(result, savedAt)
	}
	return nil
}

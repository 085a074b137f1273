// Package engine wires the onboarding components together and owns their
// lifecycles. The external UI drives it through Commands and the inbound
// frame/redirect entry points, and observes it through the event bus.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/veritahealth/onboard/internal/api"
	"github.com/veritahealth/onboard/internal/config"
	"github.com/veritahealth/onboard/internal/draft"
	apperrors "github.com/veritahealth/onboard/internal/errors"
	"github.com/veritahealth/onboard/internal/event"
	"github.com/veritahealth/onboard/internal/logging"
	"github.com/veritahealth/onboard/internal/persist"
	"github.com/veritahealth/onboard/internal/progress"
	"github.com/veritahealth/onboard/internal/session"
	"github.com/veritahealth/onboard/internal/signal"
	"github.com/veritahealth/onboard/internal/webhook"
)

// refresherFunc adapts a closure to the session.TokenRefresher interface,
// breaking the construction cycle between the session manager (which needs
// the API client to refresh) and the API client (which needs the session
// manager for tokens).
type refresherFunc func(ctx context.Context, refreshToken string) (*api.TokenPair, error)

func (f refresherFunc) Refresh(ctx context.Context, refreshToken string) (*api.TokenPair, error) {
	return f(ctx, refreshToken)
}

// Engine constructs and runs the onboarding subsystems: session lifecycle,
// advancement coordination, signal ingestion, and draft autosave.
type Engine struct {
	cfg     *config.Config
	log     *logging.Logger
	bus     *event.Bus
	capture draft.CaptureFunc

	client      *api.Client
	session     *session.Manager
	coordinator *progress.Coordinator
	persister   *draft.Persister
	notifier    *webhook.Notifier
	redirect    *signal.RedirectConsumer
	frames      *signal.FrameDecoder

	mu         sync.Mutex
	user       *api.User
	runCtx     context.Context
	runCancel  context.CancelFunc
	pollCancel context.CancelFunc
	closed     bool

	wg sync.WaitGroup
}

// New builds an engine from configuration. capture may be nil when no
// signature canvas is attached; Run performs the startup I/O.
func New(cfg *config.Config, log *logging.Logger, capture draft.CaptureFunc) *Engine {
	e := &Engine{
		cfg:      cfg,
		log:      log.WithComponent("engine"),
		bus:      event.NewBus(),
		capture:  capture,
		redirect: signal.NewRedirectConsumer(2),
		frames:   signal.NewFrameDecoder(cfg.Frame.AllowedOrigins),
	}

	refresher := refresherFunc(func(ctx context.Context, refreshToken string) (*api.TokenPair, error) {
		return e.client.Refresh(ctx, refreshToken)
	})
	e.session = session.NewManager(cfg.Session, refresher, log, session.Callbacks{
		OnWarning: func(remaining time.Duration) {
			e.bus.Publish(event.NewSessionWarningEvent(int(remaining.Seconds())))
		},
		OnCountdownTick: func(secondsRemaining int) {
			e.bus.Publish(event.NewSessionWarningEvent(secondsRemaining))
		},
		OnRefreshed: func(expiresAt time.Time) {
			e.bus.Publish(event.NewSessionRefreshedEvent(expiresAt))
		},
		OnLogout: func(reason string) {
			e.bus.Publish(event.NewSessionEndedEvent(reason))
			e.stopPolling()
		},
	})

	e.client = api.NewClient(cfg.API.BaseURL, cfg.API.Timeout(), e.session.Provider(), log)

	store := progress.NewStateStore(e.client)
	gate := draft.Gate(func() *draft.FormState {
		e.mu.Lock()
		p := e.persister
		e.mu.Unlock()
		if p == nil {
			return nil
		}
		return p.State()
	})
	e.coordinator = progress.NewCoordinator(e.client, store, gate, cfg.Progress, log, progress.Callbacks{
		OnAdvanced:   e.onAdvanced,
		OnRolledBack: e.onRolledBack,
		OnRejected: func(step int, violations []apperrors.FieldViolation) {
			ids := make([]string, len(violations))
			for i, v := range violations {
				ids[i] = v.FieldID
			}
			e.bus.Publish(event.NewValidationRejectedEvent(step, ids))
		},
		OnDropped: func(sig *signal.CompletionSignal) {
			e.bus.Publish(event.NewSignalDroppedEvent(string(sig.Source), sig.TargetStep, "in_flight"))
		},
	})

	e.notifier = webhook.NewNotifier(cfg.Webhook.URL, cfg.API.Timeout(), log)
	return e
}

// Bus exposes the event bus for external observers.
func (e *Engine) Bus() *event.Bus { return e.bus }

// Session exposes the session lifecycle manager.
func (e *Engine) Session() *session.Manager { return e.session }

// Progress returns the current cached progress snapshot.
func (e *Engine) Progress() progress.Snapshot { return e.coordinator.Store().Get() }

// Draft returns a copy of the current draft state.
func (e *Engine) Draft() *draft.FormState {
	e.mu.Lock()
	p := e.persister
	e.mu.Unlock()
	if p == nil {
		return draft.NewFormState()
	}
	return p.State()
}

// MutateDraft applies a draft edit and arms the autosave debounce.
// Returns ErrDraftSubmitted when the server already holds the finalized
// form; the edit is not applied.
func (e *Engine) MutateDraft(fn func(*draft.FormState)) error {
	e.mu.Lock()
	p := e.persister
	e.mu.Unlock()
	if p == nil {
		return nil
	}
	return p.Mutate(fn)
}

// Login installs a token pair and begins the session.
func (e *Engine) Login(accessToken, refreshToken string) error {
	return e.session.SetTokens(accessToken, refreshToken)
}

// Run performs startup I/O and starts the timer-driven subsystems: probes
// the persistence tiers, restores the draft, fetches the authoritative
// user and progress, starts the session monitor, and begins polling for
// the current step's completion. It returns once startup is complete;
// Close tears everything down.
func (e *Engine) Run(ctx context.Context) error {
	if !e.session.Active() {
		return apperrors.ErrNoSession
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	e.runCtx = runCtx
	e.runCancel = cancel
	e.mu.Unlock()

	tiered, err := e.buildTiers(ctx)
	if err != nil {
		return err
	}
	persister := draft.NewPersister(tiered, e.bus, e.capture, e.cfg.Autosave.Debounce(),
		e.log, draft.Callbacks{})
	if err := persister.Load(ctx); err != nil {
		e.log.Warn("draft restore failed, starting empty", "error", err)
	}
	e.mu.Lock()
	e.persister = persister
	e.mu.Unlock()

	user, err := e.client.Me(ctx)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.user = user
	e.mu.Unlock()
	e.log = e.log.WithUser(user.Email)

	snap, err := e.coordinator.Store().Refresh(ctx)
	if err != nil {
		return err
	}

	// A form the server already holds as submitted must never be
	// overwritten by local draft data.
	if status, err := e.client.IntakeForm(ctx); err == nil && status.Submitted {
		persister.MarkSubmitted()
	}

	e.session.Start(runCtx)
	e.startPolling(runCtx, snap.CurrentStep)

	e.log.Info("engine started", "current_step", snap.CurrentStep)
	return nil
}

// buildTiers assembles the persistence port: remote first, then the
// durable local file tier, then session memory. A failed file tier is
// skipped rather than fatal.
func (e *Engine) buildTiers(ctx context.Context) (*persist.Tiered, error) {
	tiers := []persist.Port{persist.NewRemoteStore(e.client)}
	if fileStore, err := persist.NewFileStore(e.cfg.Persist.DraftDir()); err == nil {
		tiers = append(tiers, fileStore)
	} else {
		e.log.Warn("local draft dir unavailable", "error", err)
	}
	tiers = append(tiers, persist.NewMemoryStore())
	return persist.NewTiered(ctx, e.log, e.bus, tiers...)
}

// ConsumeRedirect inspects a landing URL for the one-shot booking
// parameter. The returned URL has the parameter stripped and must replace
// the current one so refresh and back-navigation cannot re-trigger the
// signal.
func (e *Engine) ConsumeRedirect(ctx context.Context, rawURL string) (string, error) {
	sig, stripped, err := e.redirect.Consume(rawURL)
	if err != nil || sig == nil {
		return stripped, err
	}
	if _, err := e.coordinator.Handle(ctx, sig); err != nil {
		return stripped, err
	}
	return stripped, nil
}

// ConfirmManual records the user's manual confirmation that the target
// step's external action is done.
func (e *Engine) ConfirmManual(ctx context.Context, targetStep int) (progress.Outcome, error) {
	return e.coordinator.Handle(ctx, signal.NewManual(targetStep))
}

// HandleFrameMessage processes one inbound message from the embedded form
// frame. Field captures mutate the draft (arming autosave); a submitted
// notice marks the draft superseded and emits a completion signal for the
// current step.
func (e *Engine) HandleFrameMessage(ctx context.Context, origin string, raw []byte) (*signal.FrameMessage, error) {
	msg, err := e.frames.Decode(origin, raw)
	if err != nil {
		return nil, err
	}

	switch msg.Kind {
	case signal.KindField:
		if err := e.MutateDraft(func(f *draft.FormState) { f.SetField(msg.Field, msg.Value) }); err != nil {
			e.log.Debug("frame field capture refused", "field", msg.Field, "error", err)
		}
	case signal.KindBulkFields:
		if err := e.MutateDraft(func(f *draft.FormState) { f.SetFields(msg.Fields) }); err != nil {
			e.log.Debug("frame bulk capture refused", "error", err)
		}
	case signal.KindSubmitted:
		e.mu.Lock()
		p := e.persister
		e.mu.Unlock()
		if p != nil {
			p.MarkSubmitted()
		}
		snap := e.coordinator.Store().Get()
		if _, err := e.coordinator.Handle(ctx, signal.New(signal.SourceFrame, snap.CurrentStep+1, nil)); err != nil {
			e.log.Warn("frame submission signal not applied", "error", err)
		}
	}
	return msg, nil
}

// onAdvanced reacts to a confirmed step transition: publishes the event,
// notifies the external webhook, and re-targets the poller at the new step.
func (e *Engine) onAdvanced(fromStep, toStep int, source signal.Source) {
	e.bus.Publish(event.NewStepAdvancedEvent(fromStep, toStep, string(source)))

	// The notification goroutine joins the engine's wait group so Close
	// drains it before the notifier's transport is released.
	e.mu.Lock()
	if e.user != nil && !e.closed {
		email := e.user.Email
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.notifier.NotifyStep(context.Background(), email, toStep)
		}()
	}
	e.mu.Unlock()

	if toStep < progress.FinalStep {
		e.restartPolling(toStep)
	} else {
		e.stopPolling()
	}
}

func (e *Engine) onRolledBack(fromStep, toStep int) {
	e.bus.Publish(event.NewStepRolledBackEvent(fromStep, toStep))
	e.restartPolling(toStep)
}

// startPolling begins the bounded poller for the given step. Step 1 polls
// for the relayed booking webhook's observed effect; later steps use the
// generic poll source.
func (e *Engine) startPolling(ctx context.Context, step int) {
	if step >= progress.FinalStep {
		return
	}

	source := signal.SourcePoll
	if step == 1 {
		source = signal.SourceWebhook
	}

	fetch := func(ctx context.Context) (int, error) {
		wire, err := e.client.Progress(ctx)
		if err != nil {
			return 0, err
		}
		return wire.CurrentStep, nil
	}

	pollCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	if e.pollCancel != nil {
		e.pollCancel()
	}
	e.pollCancel = cancel
	e.mu.Unlock()

	poller := signal.NewPoller(source, step, e.cfg.Poll.Interval(), e.cfg.Poll.MaxAttempts,
		fetch, e.coordinator.Sink(), e.log)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		poller.Run(pollCtx)
	}()
}

// restartPolling re-targets the poller after a step change. The previous
// poller is cancelled; its in-flight signal, if any, resolves as a no-op
// through the coordinator's idempotence check.
func (e *Engine) restartPolling(step int) {
	e.mu.Lock()
	ctx := e.runCtx
	closed := e.closed
	e.mu.Unlock()
	if ctx == nil || closed {
		return
	}
	e.startPolling(ctx, step)
}

func (e *Engine) stopPolling() {
	e.mu.Lock()
	if e.pollCancel != nil {
		e.pollCancel()
		e.pollCancel = nil
	}
	e.mu.Unlock()
}

// Close tears down every timer-driven subsystem. All pending pollers,
// countdowns, and debounced saves are cancelled on every exit path.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	runCancel := e.runCancel
	persister := e.persister
	e.mu.Unlock()

	e.stopPolling()
	if runCancel != nil {
		runCancel()
	}
	e.session.Close()
	if persister != nil {
		persister.Close()
	}
	e.wg.Wait()

	_ = e.notifier.Close()
	return e.client.Close()
}

package progress

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veritahealth/onboard/internal/api"
	"github.com/veritahealth/onboard/internal/config"
	apperrors "github.com/veritahealth/onboard/internal/errors"
	"github.com/veritahealth/onboard/internal/logging"
	"github.com/veritahealth/onboard/internal/signal"
)

// fakeProgressAPI simulates the server side of the progress endpoints and
// counts mutating calls so tests can assert at-most-once semantics.
type fakeProgressAPI struct {
	mu              sync.Mutex
	step            int
	tasks           []string
	recordID        string
	advanceCalls    int
	goBackCalls     int
	failNextAdvance bool

	srv *httptest.Server
}

func newFakeProgressAPI(t *testing.T, step int) *fakeProgressAPI {
	t.Helper()
	f := &fakeProgressAPI{step: step}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /user/progress", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.write(w)
	})
	mux.HandleFunc("POST /user/advance-step", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.advanceCalls++
		if f.failNextAdvance {
			f.failNextAdvance = false
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		if f.step < FinalStep {
			f.step++
		}
		f.tasks = nil
		f.write(w)
	})
	mux.HandleFunc("POST /user/go-back-step", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.goBackCalls++
		if f.step > 1 {
			f.step--
		}
		f.write(w)
	})
	mux.HandleFunc("POST /user/complete-task", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			TaskID string `json:"task_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.tasks = append(f.tasks, body.TaskID)
		f.write(w)
	})
	mux.HandleFunc("POST /user/save-pb-client", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			ClientRecordID string `json:"client_record_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.recordID = body.ClientRecordID
		f.write(w)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

// write renders the current progress. Caller holds f.mu.
func (f *fakeProgressAPI) write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(api.UserProgress{
		CurrentStep:      f.step,
		TasksCompleted:   f.tasks,
		PBClientRecordID: f.recordID,
		UpdatedAt:        time.Now(),
	})
}

func (f *fakeProgressAPI) advanceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.advanceCalls
}

func violationIDs(violations []apperrors.FieldViolation) []string {
	ids := make([]string, len(violations))
	for i, v := range violations {
		ids[i] = v.FieldID
	}
	return ids
}

func newTestCoordinator(t *testing.T, f *fakeProgressAPI, gate Gate, policy config.ProgressConfig, callbacks Callbacks) *Coordinator {
	t.Helper()
	client := api.NewClient(f.srv.URL, 5*time.Second, func() string { return "tok" }, logging.NopLogger())
	t.Cleanup(func() { _ = client.Close() })
	store := NewStateStore(client)
	return NewCoordinator(client, store, gate, policy, logging.NopLogger(), callbacks)
}

func TestCoordinator_AdvancesOnce(t *testing.T) {
	f := newFakeProgressAPI(t, 1)
	coord := newTestCoordinator(t, f, nil, config.Default().Progress, Callbacks{})

	outcome, err := coord.Handle(context.Background(), signal.New(signal.SourceRedirect, 2, nil))
	require.NoError(t, err)
	require.Equal(t, OutcomeAdvanced, outcome)
	require.Equal(t, 2, coord.Store().Get().CurrentStep)
	require.Equal(t, 1, f.advanceCount())
}

func TestCoordinator_NoDoubleAdvance(t *testing.T) {
	// Any interleaving of webhook-poll, redirect, and manual signals for
	// the same step must produce exactly one mutating call.
	f := newFakeProgressAPI(t, 1)
	coord := newTestCoordinator(t, f, nil, config.Default().Progress, Callbacks{})
	ctx := context.Background()

	signals := []*signal.CompletionSignal{
		signal.New(signal.SourceWebhook, 2, nil),
		signal.New(signal.SourceRedirect, 2, nil),
		signal.NewManual(2),
	}

	var advanced, satisfied int
	for _, sig := range signals {
		outcome, err := coord.Handle(ctx, sig)
		require.NoError(t, err)
		switch outcome {
		case OutcomeAdvanced:
			advanced++
		case OutcomeAlreadySatisfied:
			satisfied++
		default:
			t.Fatalf("unexpected outcome %v", outcome)
		}
	}

	require.Equal(t, 1, advanced, "current_step increases exactly once")
	require.Equal(t, 2, satisfied)
	require.Equal(t, 1, f.advanceCount(), "advance issued at most once")
	require.Equal(t, 2, coord.Store().Get().CurrentStep)
}

func TestCoordinator_IdempotentShortCircuit(t *testing.T) {
	// Authoritative step already covers the target: pure no-op beyond the
	// cache refresh.
	f := newFakeProgressAPI(t, 3)
	coord := newTestCoordinator(t, f, nil, config.Default().Progress, Callbacks{})

	outcome, err := coord.Handle(context.Background(), signal.New(signal.SourcePoll, 2, nil))
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadySatisfied, outcome)
	require.Equal(t, 0, f.advanceCount())
	require.Equal(t, 3, coord.Store().Get().CurrentStep, "cache picks up authoritative state")
}

func TestCoordinator_ConcurrentSignals(t *testing.T) {
	// A poll tick and a manual confirmation land on the same logical
	// instant: the in-flight flag serializes them and at most one
	// advance-step call is observed.
	f := newFakeProgressAPI(t, 1)
	coord := newTestCoordinator(t, f, nil, config.Default().Progress, Callbacks{})
	ctx := context.Background()

	var wg sync.WaitGroup
	outcomes := make([]Outcome, 2)
	sigs := []*signal.CompletionSignal{
		signal.New(signal.SourcePoll, 2, nil),
		signal.NewManual(2),
	}
	for i := range sigs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcome, err := coord.Handle(ctx, sigs[i])
			require.NoError(t, err)
			outcomes[i] = outcome
		}(i)
	}
	wg.Wait()

	require.LessOrEqual(t, f.advanceCount(), 1, "at most one mutating call")
	require.Equal(t, 1, f.advanceCount())
	require.Equal(t, 2, coord.Store().Get().CurrentStep)

	var advanced int
	for _, o := range outcomes {
		switch o {
		case OutcomeAdvanced:
			advanced++
		case OutcomeDropped, OutcomeAlreadySatisfied:
		default:
			t.Fatalf("unexpected outcome %v", o)
		}
	}
	require.Equal(t, 1, advanced)
}

func TestCoordinator_ValidationBlocksAdvance(t *testing.T) {
	f := newFakeProgressAPI(t, 2)

	var rejectedWith []apperrors.FieldViolation
	gate := func(step int) []apperrors.FieldViolation {
		return []apperrors.FieldViolation{{FieldID: "medications", Label: "Current medications"}}
	}
	coord := newTestCoordinator(t, f, gate, config.Default().Progress, Callbacks{
		OnRejected: func(step int, violations []apperrors.FieldViolation) {
			rejectedWith = violations
		},
	})

	outcome, err := coord.Handle(context.Background(), signal.New(signal.SourcePoll, 3, nil))
	require.Equal(t, OutcomeRejected, outcome)
	require.Error(t, err)
	require.True(t, apperrors.IsValidation(err))
	require.Equal(t, 0, f.advanceCount(), "validation failure makes no network mutation")
	require.Len(t, rejectedWith, 1)
	require.Equal(t, "medications", rejectedWith[0].FieldID)
}

func TestCoordinator_Step1SkipsValidation(t *testing.T) {
	// The booking step advances on any signal; its completion condition
	// lives in the external booking system, not the local draft.
	f := newFakeProgressAPI(t, 1)
	gate := func(step int) []apperrors.FieldViolation {
		return []apperrors.FieldViolation{{FieldID: "anything", Label: "Anything"}}
	}
	coord := newTestCoordinator(t, f, gate, config.Default().Progress, Callbacks{})

	outcome, err := coord.Handle(context.Background(), signal.New(signal.SourceWebhook, 2, nil))
	require.NoError(t, err)
	require.Equal(t, OutcomeAdvanced, outcome)
}

func TestCoordinator_Step3RequiresActivationTasks(t *testing.T) {
	// The activation step advances only once its required tasks are
	// reported complete by the server.
	f := newFakeProgressAPI(t, 3)
	var rejectedWith []apperrors.FieldViolation
	coord := newTestCoordinator(t, f, nil, config.Default().Progress, Callbacks{
		OnRejected: func(step int, violations []apperrors.FieldViolation) {
			rejectedWith = violations
		},
	})
	ctx := context.Background()

	outcome, err := coord.Handle(ctx, signal.NewManual(4))
	require.Equal(t, OutcomeRejected, outcome)
	require.True(t, apperrors.IsValidation(err))
	require.Equal(t, 0, f.advanceCount(), "incomplete tasks make no network mutation")
	require.Equal(t, []string{"sign_agreement", "setup_payment"}, violationIDs(rejectedWith))

	_, err = coord.CompleteTask(ctx, "sign_agreement")
	require.NoError(t, err)
	_, err = coord.CompleteTask(ctx, "setup_payment")
	require.NoError(t, err)

	outcome, err = coord.Handle(ctx, signal.NewManual(4))
	require.NoError(t, err)
	require.Equal(t, OutcomeAdvanced, outcome)
	require.Equal(t, 4, coord.Store().Get().CurrentStep)
}

func TestCoordinator_GateReceivesCurrentStep(t *testing.T) {
	f := newFakeProgressAPI(t, 2)
	var gateSteps []int
	gate := func(step int) []apperrors.FieldViolation {
		gateSteps = append(gateSteps, step)
		return nil
	}
	coord := newTestCoordinator(t, f, gate, config.Default().Progress, Callbacks{})

	_, err := coord.Handle(context.Background(), signal.New(signal.SourcePoll, 3, nil))
	require.NoError(t, err)
	require.Equal(t, []int{2}, gateSteps, "gate evaluates the authoritative current step")
}

func TestCoordinator_TargetStepOutOfRange(t *testing.T) {
	f := newFakeProgressAPI(t, 4)
	coord := newTestCoordinator(t, f, nil, config.Default().Progress, Callbacks{})
	ctx := context.Background()

	for _, target := range []int{0, FinalStep + 1} {
		outcome, err := coord.Handle(ctx, signal.NewManual(target))
		require.Equal(t, OutcomeFailed, outcome)
		require.ErrorIs(t, err, apperrors.ErrStepOutOfRange)
	}
	require.Equal(t, 0, f.advanceCount())
}

func TestCoordinator_FailedAdvanceIsRetryable(t *testing.T) {
	f := newFakeProgressAPI(t, 1)
	f.failNextAdvance = true
	coord := newTestCoordinator(t, f, nil, config.Default().Progress, Callbacks{})
	ctx := context.Background()

	outcome, err := coord.Handle(ctx, signal.New(signal.SourcePoll, 2, nil))
	require.Equal(t, OutcomeFailed, outcome)
	require.Error(t, err)
	require.True(t, apperrors.IsRetryable(err))
	require.Equal(t, 1, coord.Store().Get().CurrentStep, "state unchanged on failure")

	// The next signal retries without user intervention.
	outcome, err = coord.Handle(ctx, signal.New(signal.SourcePoll, 2, nil))
	require.NoError(t, err)
	require.Equal(t, OutcomeAdvanced, outcome)
	require.Equal(t, 2, coord.Store().Get().CurrentStep)
}

func TestCoordinator_MonotonicExceptRollback(t *testing.T) {
	f := newFakeProgressAPI(t, 2)
	var rolledBack bool
	coord := newTestCoordinator(t, f, nil, config.Default().Progress, Callbacks{
		OnRolledBack: func(from, to int) { rolledBack = true },
	})
	ctx := context.Background()

	// Signals can never move the step backwards.
	outcome, err := coord.Handle(ctx, signal.New(signal.SourcePoll, 1, nil))
	require.NoError(t, err)
	require.Equal(t, OutcomeAlreadySatisfied, outcome)
	require.Equal(t, 2, coord.Store().Get().CurrentStep)

	// Only the explicit rollback path decreases it.
	snap, err := coord.GoBack(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, snap.CurrentStep)
	require.True(t, rolledBack)
	require.Equal(t, 1, f.goBackCalls)
}

func TestCoordinator_GoBackPreservesTasksByDefault(t *testing.T) {
	f := newFakeProgressAPI(t, 2)
	f.tasks = []string{"book_consultation"}
	coord := newTestCoordinator(t, f, nil, config.Default().Progress, Callbacks{})

	snap, err := coord.GoBack(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"book_consultation"}, snap.TasksCompleted)
}

func TestCoordinator_GoBackClearTasksPolicy(t *testing.T) {
	f := newFakeProgressAPI(t, 2)
	f.tasks = []string{"book_consultation"}

	policy := config.Default().Progress
	policy.ClearTasksOnRollback = true
	coord := newTestCoordinator(t, f, nil, policy, Callbacks{})

	snap, err := coord.GoBack(context.Background())
	require.NoError(t, err)
	require.Empty(t, snap.TasksCompleted)
	require.Empty(t, coord.Store().Get().TasksCompleted)
}

func TestCoordinator_CompleteTask(t *testing.T) {
	f := newFakeProgressAPI(t, 1)
	coord := newTestCoordinator(t, f, nil, config.Default().Progress, Callbacks{})

	snap, err := coord.CompleteTask(context.Background(), "book_consultation")
	require.NoError(t, err)
	require.True(t, snap.TaskDone("book_consultation"))
}

func TestCoordinator_SaveBookingRecord(t *testing.T) {
	f := newFakeProgressAPI(t, 1)
	coord := newTestCoordinator(t, f, nil, config.Default().Progress, Callbacks{})

	require.NoError(t, coord.SaveBookingRecord(context.Background(), "pb-123"))
	require.Equal(t, "pb-123", coord.Store().Get().PBClientRecordID)
	require.Equal(t, "pb-123", f.recordID)
}

func TestStateStore_RefreshFailureKeepsCache(t *testing.T) {
	f := newFakeProgressAPI(t, 2)
	client := api.NewClient(f.srv.URL, 5*time.Second, func() string { return "tok" }, logging.NopLogger())
	defer func() { _ = client.Close() }()

	store := NewStateStore(client)
	_, err := store.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, store.Get().CurrentStep)

	f.srv.Close() // server gone: refresh fails, cache survives
	_, err = store.Refresh(context.Background())
	require.Error(t, err)
	require.Equal(t, 2, store.Get().CurrentStep)
}

package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"

	"github.com/veritahealth/onboard/internal/config"
	"github.com/veritahealth/onboard/internal/draft"
	apperrors "github.com/veritahealth/onboard/internal/errors"
	"github.com/veritahealth/onboard/internal/event"
	"github.com/veritahealth/onboard/internal/logging"
	"github.com/veritahealth/onboard/internal/progress"
	"github.com/veritahealth/onboard/internal/signal"
)

// fakeBackend implements every endpoint the engine touches during a run.
type fakeBackend struct {
	mu           sync.Mutex
	step         int
	tasks        []string
	submitted    bool
	drafts       map[string]json.RawMessage
	advanceCalls int
	intakeSaves  int
	webhookHits  int

	srv *httptest.Server
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	f := &fakeBackend{step: 1, drafts: make(map[string]json.RawMessage)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /user/me", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"id": "u1", "email": "pat@example.com"})
	})
	mux.HandleFunc("GET /user/progress", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.writeProgress(w)
	})
	mux.HandleFunc("POST /user/advance-step", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.advanceCalls++
		if f.step < progress.FinalStep {
			f.step++
		}
		f.tasks = nil
		f.writeProgress(w)
	})
	mux.HandleFunc("POST /user/go-back-step", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.step > 1 {
			f.step--
		}
		f.writeProgress(w)
	})
	mux.HandleFunc("GET /user/intake-form", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, map[string]any{"submitted": f.submitted})
	})
	mux.HandleFunc("POST /user/intake-form/save", func(w http.ResponseWriter, r *http.Request) {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&envelope))
		f.mu.Lock()
		defer f.mu.Unlock()
		f.intakeSaves++
		f.drafts["intake-form"] = envelope.Data
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /user/intake-form/submit", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.submitted = true
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /form-draft/{type}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		data, ok := f.drafts[r.PathValue("type")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]json.RawMessage{"data": data})
	})
	mux.HandleFunc("POST /form-draft/{type}", func(w http.ResponseWriter, r *http.Request) {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&envelope))
		f.mu.Lock()
		defer f.mu.Unlock()
		f.drafts[r.PathValue("type")] = envelope.Data
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /notify", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.webhookHits++
		w.WriteHeader(http.StatusNoContent)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeBackend) advanceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.advanceCalls
}

// writeProgress renders the current progress. Caller holds f.mu.
func (f *fakeBackend) writeProgress(w http.ResponseWriter) {
	writeJSON(w, map[string]any{
		"current_step":    f.step,
		"tasks_completed": f.tasks,
		"updated_at":      time.Now(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func accessToken(t *testing.T, ttl time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func newRunningEngine(t *testing.T, f *fakeBackend) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.API.BaseURL = f.srv.URL
	cfg.Webhook.URL = f.srv.URL + "/notify"
	cfg.Persist.Dir = t.TempDir()
	cfg.Poll.IntervalSeconds = 1
	cfg.Frame.AllowedOrigins = []string{"forms.example.com"}

	e := New(cfg, logging.NopLogger(), nil)
	t.Cleanup(func() { _ = e.Close() })

	require.NoError(t, e.Login(accessToken(t, time.Hour), "refresh-token"))
	require.NoError(t, e.Run(context.Background()))
	return e
}

func TestEngine_RunLoadsAuthoritativeState(t *testing.T) {
	f := newFakeBackend(t)
	f.step = 2

	e := newRunningEngine(t, f)
	require.Equal(t, 2, e.Progress().CurrentStep)
}

func TestEngine_RunRequiresSession(t *testing.T) {
	f := newFakeBackend(t)
	cfg := config.Default()
	cfg.API.BaseURL = f.srv.URL
	cfg.Persist.Dir = t.TempDir()

	e := New(cfg, logging.NopLogger(), nil)
	defer func() { _ = e.Close() }()

	require.ErrorIs(t, e.Run(context.Background()), apperrors.ErrNoSession)
}

func TestEngine_ConsumeRedirectOnce(t *testing.T) {
	f := newFakeBackend(t)
	e := newRunningEngine(t, f)
	ctx := context.Background()

	stripped, err := e.ConsumeRedirect(ctx, "https://app.example.com/onboarding?booking=success&tab=1")
	require.NoError(t, err)
	require.NotContains(t, stripped, "booking=")
	require.Equal(t, 2, e.Progress().CurrentStep)

	// Re-consuming the stripped URL, as a refresh would, yields nothing.
	again, err := e.ConsumeRedirect(ctx, stripped)
	require.NoError(t, err)
	require.Equal(t, stripped, again)
	require.Equal(t, 1, f.advanceCount())
}

func TestEngine_ManualConfirmIdempotentWithRedirect(t *testing.T) {
	f := newFakeBackend(t)
	e := newRunningEngine(t, f)
	ctx := context.Background()

	_, err := e.ConsumeRedirect(ctx, "https://app.example.com/?booking=success")
	require.NoError(t, err)

	outcome, err := e.ConfirmManual(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, progress.OutcomeAlreadySatisfied, outcome)
	require.Equal(t, 1, f.advanceCount())
}

func TestEngine_AdvancePublishesEventAndNotifies(t *testing.T) {
	f := newFakeBackend(t)
	e := newRunningEngine(t, f)

	advanced := make(chan event.Event, 4)
	e.Bus().Subscribe(event.TypeStepAdvanced, func(ev event.Event) {
		advanced <- ev
	})

	outcome, err := e.Commands().GoNext(context.Background())
	require.NoError(t, err)
	require.Equal(t, progress.OutcomeAdvanced, outcome)

	select {
	case ev := <-advanced:
		step, ok := ev.(event.StepAdvancedEvent)
		require.True(t, ok)
		require.Equal(t, 1, step.FromStep)
		require.Equal(t, 2, step.ToStep)
	default:
		t.Fatal("no step.advanced event published")
	}

	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.webhookHits == 1
	}, time.Second, 10*time.Millisecond, "fire-and-forget step notification")
}

func TestEngine_FrameFieldCaptureMutatesDraft(t *testing.T) {
	f := newFakeBackend(t)
	e := newRunningEngine(t, f)

	msg, err := e.HandleFrameMessage(context.Background(), "https://forms.example.com",
		[]byte(`{"field":"phone","value":"555-0100"}`))
	require.NoError(t, err)
	require.Equal(t, signal.KindField, msg.Kind)
	require.Equal(t, "555-0100", e.Draft().StringField("phone"))
}

func TestEngine_FrameOriginDenied(t *testing.T) {
	f := newFakeBackend(t)
	e := newRunningEngine(t, f)

	_, err := e.HandleFrameMessage(context.Background(), "https://evil.example.net",
		[]byte(`{"field":"phone","value":"x"}`))
	require.ErrorIs(t, err, signal.ErrOriginDenied)
}

func TestEngine_SubmitValidatesBeforeNetwork(t *testing.T) {
	f := newFakeBackend(t)
	f.step = 2
	e := newRunningEngine(t, f)

	outcome, err := e.Commands().Submit(context.Background())
	require.Equal(t, progress.OutcomeRejected, outcome)
	require.True(t, apperrors.IsValidation(err))

	f.mu.Lock()
	submitted := f.submitted
	f.mu.Unlock()
	require.False(t, submitted)
}

func TestEngine_SubmitCompleteDraftAdvances(t *testing.T) {
	f := newFakeBackend(t)
	f.step = 2
	e := newRunningEngine(t, f)

	require.NoError(t, e.MutateDraft(func(fs *draft.FormState) {
		fs.SetField(draft.FieldFullName, "Pat Example")
		fs.SetField(draft.FieldDateOfBirth, "1990-04-01")
		fs.SetField(draft.FieldPhone, "555-0100")
		fs.SetField(draft.FieldAddress, "1 Main St")
		fs.Signature(draft.SignaturePersonal).Image = []byte{0x89}
	}))

	outcome, err := e.Commands().Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, progress.OutcomeAdvanced, outcome)
	require.Equal(t, 3, e.Progress().CurrentStep)
	require.True(t, e.Draft().Submitted)

	// Another submit is a no-op; the server copy is never overwritten.
	outcome, err = e.Commands().Submit(context.Background())
	require.NoError(t, err)
	require.Equal(t, progress.OutcomeAlreadySatisfied, outcome)
}

func TestEngine_SubmittedFormBlocksAutosaveAtStartup(t *testing.T) {
	f := newFakeBackend(t)
	f.submitted = true

	e := newRunningEngine(t, f)
	require.True(t, e.Draft().Submitted)
}

func TestEngine_FrameSubmittedAdvancesWithFrameSource(t *testing.T) {
	f := newFakeBackend(t)
	f.step = 2
	e := newRunningEngine(t, f)

	advanced := make(chan event.Event, 1)
	e.Bus().Subscribe(event.TypeStepAdvanced, func(ev event.Event) {
		advanced <- ev
	})

	msg, err := e.HandleFrameMessage(context.Background(), "https://forms.example.com",
		[]byte(`{"type":"form_submitted"}`))
	require.NoError(t, err)
	require.Equal(t, signal.KindSubmitted, msg.Kind)
	require.True(t, e.Draft().Submitted)
	require.Equal(t, 3, e.Progress().CurrentStep)

	select {
	case ev := <-advanced:
		step, ok := ev.(event.StepAdvancedEvent)
		require.True(t, ok)
		require.Equal(t, string(signal.SourceFrame), step.Source)
	default:
		t.Fatal("no step.advanced event published")
	}
}

func TestEngine_AutosaveUsesIntakeSaveEndpoint(t *testing.T) {
	f := newFakeBackend(t)
	cfg := config.Default()
	cfg.API.BaseURL = f.srv.URL
	cfg.Persist.Dir = t.TempDir()
	cfg.Autosave.DebounceMs = 25

	e := New(cfg, logging.NopLogger(), nil)
	t.Cleanup(func() { _ = e.Close() })
	require.NoError(t, e.Login(accessToken(t, time.Hour), "refresh-token"))
	require.NoError(t, e.Run(context.Background()))

	require.NoError(t, e.MutateDraft(func(fs *draft.FormState) {
		fs.SetField(draft.FieldFullName, "Pat Example")
	}))

	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.intakeSaves >= 1
	}, time.Second, 10*time.Millisecond, "draft save lands on the dedicated intake endpoint")
}

func TestEngine_CloseDrainsStepNotification(t *testing.T) {
	f := newFakeBackend(t)
	e := newRunningEngine(t, f)

	outcome, err := e.Commands().GoNext(context.Background())
	require.NoError(t, err)
	require.Equal(t, progress.OutcomeAdvanced, outcome)

	// Close waits for the in-flight notification before releasing the
	// notifier's transport.
	require.NoError(t, e.Close())

	f.mu.Lock()
	hits := f.webhookHits
	f.mu.Unlock()
	require.Equal(t, 1, hits)
}

func TestEngine_GoPreviousRollsBack(t *testing.T) {
	f := newFakeBackend(t)
	f.step = 3
	e := newRunningEngine(t, f)

	snap, err := e.Commands().GoPrevious(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, snap.CurrentStep)
}

func TestEngine_CloseIsIdempotent(t *testing.T) {
	f := newFakeBackend(t)
	e := newRunningEngine(t, f)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
}

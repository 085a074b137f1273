package persist

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
	apperrors "github.com/veritahealth/onboard/internal/errors"
	"github.com/veritahealth/onboard/internal/logging"
)

// fakeDraftAPI records which endpoint each draft write arrived on.
type fakeDraftAPI struct {
	mu          sync.Mutex
	intakeSaves int
	genericKeys []string
	drafts      map[string]json.RawMessage

	srv *httptest.Server
}

func newFakeDraftAPI(t *testing.T) *fakeDraftAPI {
	t.Helper()
	f := &fakeDraftAPI{drafts: make(map[string]json.RawMessage)}

	decode := func(r *http.Request) json.RawMessage {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&envelope))
		return envelope.Data
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /user/intake-form/save", func(w http.ResponseWriter, r *http.Request) {
		data := decode(r)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.intakeSaves++
		f.drafts["intake-form"] = data
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("POST /form-draft/{type}", func(w http.ResponseWriter, r *http.Request) {
		data := decode(r)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.genericKeys = append(f.genericKeys, r.PathValue("type"))
		f.drafts[r.PathValue("type")] = data
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
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]json.RawMessage{"data": data})
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func newRemoteStore(t *testing.T, f *fakeDraftAPI) *RemoteStore {
	t.Helper()
	client := api.NewClient(f.srv.URL, 5*time.Second, func() string { return "tok" }, logging.NopLogger())
	t.Cleanup(func() { _ = client.Close() })
	return NewRemoteStore(client)
}

func TestRemoteStore_IntakeDraftUsesDedicatedSave(t *testing.T) {
	f := newFakeDraftAPI(t)
	rs := newRemoteStore(t, f)
	ctx := context.Background()

	require.NoError(t, rs.Save(ctx, "intake-form", []byte(`{"part":1}`)))

	f.mu.Lock()
	intakeSaves, genericKeys := f.intakeSaves, f.genericKeys
	f.mu.Unlock()
	require.Equal(t, 1, intakeSaves)
	require.Empty(t, genericKeys, "intake draft never rides the generic endpoint")

	data, err := rs.Load(ctx, "intake-form")
	require.NoError(t, err)
	require.JSONEq(t, `{"part":1}`, string(data))
}

func TestRemoteStore_OtherKeysUseGenericEndpoint(t *testing.T) {
	f := newFakeDraftAPI(t)
	rs := newRemoteStore(t, f)
	ctx := context.Background()

	require.NoError(t, rs.Save(ctx, "feedback", []byte(`{"rating":5}`)))

	f.mu.Lock()
	intakeSaves, genericKeys := f.intakeSaves, f.genericKeys
	f.mu.Unlock()
	require.Equal(t, 0, intakeSaves)
	require.Equal(t, []string{"feedback"}, genericKeys)
}

func TestRemoteStore_LoadMissingDraft(t *testing.T) {
	f := newFakeDraftAPI(t)
	rs := newRemoteStore(t, f)

	_, err := rs.Load(context.Background(), "feedback")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

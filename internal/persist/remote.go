package persist

import (
	"context"
	"encoding/json"

	"github.com/veritahealth/onboard/internal/api"
	apperrors "github.com/veritahealth/onboard/internal/errors"
)

// intakeDraftKey is the draft the server exposes a dedicated save
// endpoint for. Other keys ride the generic form-draft pair.
const intakeDraftKey = "intake-form"

// RemoteStore is the durable remote tier. The intake draft saves through
// its dedicated endpoint; everything else uses the generic
// /form-draft/{type} pair, with keys mapping to draft types server-side.
type RemoteStore struct {
	client *api.Client
}

// NewRemoteStore creates a RemoteStore over the given API client.
func NewRemoteStore(client *api.Client) *RemoteStore {
	return &RemoteStore{client: client}
}

// Name identifies the tier.
func (rs *RemoteStore) Name() string { return "remote" }

// Available probes the API with a lightweight authenticated request.
func (rs *RemoteStore) Available(ctx context.Context) bool {
	_, err := rs.client.Me(ctx)
	return err == nil
}

// Save persists data server-side under the draft type derived from key.
func (rs *RemoteStore) Save(ctx context.Context, key string, data []byte) error {
	var err error
	if key == intakeDraftKey {
		err = rs.client.SaveIntakeForm(ctx, json.RawMessage(data))
	} else {
		err = rs.client.SaveFormDraft(ctx, key, json.RawMessage(data))
	}
	if err != nil {
		return apperrors.NewStorageError("remote", "save", err)
	}
	return nil
}

// Load retrieves the server-side draft for key.
func (rs *RemoteStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := rs.client.FormDraft(ctx, key)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewStorageError("remote", "load", err)
	}
	return data, nil
}

// Delete supersedes the server-side draft by writing an empty object.
// The API exposes no delete endpoint; drafts are superseded, not removed.
func (rs *RemoteStore) Delete(ctx context.Context, key string) error {
	if err := rs.client.SaveFormDraft(ctx, key, json.RawMessage(`{}`)); err != nil {
		return apperrors.NewStorageError("remote", "delete", err)
	}
	return nil
}

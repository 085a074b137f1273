// Package api provides the REST client for the onboarding progress, auth,
// and intake-form endpoints. All requests carry bearer-token auth supplied
// by a TokenProvider so the session lifecycle manager remains the single
// owner of token state.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"resty.dev/v3"

	apperrors "github.com/veritahealth/onboard/internal/errors"
	"github.com/veritahealth/onboard/internal/logging"
)

// TokenProvider returns the current access token. It is called per request;
// a refresh replaces the token without reconstructing the client.
type TokenProvider func() string

// Client talks to the onboarding API. It is safe for concurrent use.
type Client struct {
	http   *resty.Client
	tokens TokenProvider
	log    *logging.Logger
}

// NewClient creates a Client for the given base URL. tokens may return the
// empty string before login; requests then go out unauthenticated and the
// server's 401 maps to ErrAuthExpired.
func NewClient(baseURL string, timeout time.Duration, tokens TokenProvider, log *logging.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   httpClient,
		tokens: tokens,
		log:    log.WithComponent("api"),
	}
}

// Close releases the underlying transport resources.
func (c *Client) Close() error {
	return c.http.Close()
}

func (c *Client) request(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if tok := c.tokens(); tok != "" {
		req.SetAuthToken(tok)
	}
	return req
}

// wrap converts a resty outcome into the error taxonomy: transport failures
// and 5xx are retryable APIErrors, 401 unwraps to ErrAuthExpired.
func wrap(op string, res *resty.Response, err error) error {
	if err != nil {
		return apperrors.NewAPIError(op, 0, err)
	}
	if res.StatusCode() == http.StatusUnauthorized {
		return apperrors.NewAPIError(op, http.StatusUnauthorized, apperrors.ErrAuthExpired)
	}
	if res.IsError() {
		return apperrors.NewAPIError(op, res.StatusCode(), apperrors.New(res.String()))
	}
	return nil
}

// Me fetches the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	res, err := c.request(ctx).SetResult(&user).Get("/user/me")
	if err := wrap("me", res, err); err != nil {
		return nil, err
	}
	return &user, nil
}

// Progress fetches the authoritative onboarding progress snapshot.
func (c *Client) Progress(ctx context.Context) (*UserProgress, error) {
	var progress UserProgress
	res, err := c.request(ctx).SetResult(&progress).Get("/user/progress")
	if err := wrap("progress", res, err); err != nil {
		return nil, err
	}
	return &progress, nil
}

// CompleteTask marks a task done within the current step and returns the
// refreshed progress snapshot.
func (c *Client) CompleteTask(ctx context.Context, taskID string) (*UserProgress, error) {
	var progress UserProgress
	res, err := c.request(ctx).
		SetBody(completeTaskRequest{TaskID: taskID}).
		SetResult(&progress).
		Post("/user/complete-task")
	if err := wrap("complete-task", res, err); err != nil {
		return nil, err
	}
	return &progress, nil
}

// AdvanceStep asks the server to increment current_step and clear the
// completed-task set. The endpoint is idempotent: advancing an already
// advanced step returns success without a second mutation.
func (c *Client) AdvanceStep(ctx context.Context) (*UserProgress, error) {
	var progress UserProgress
	res, err := c.request(ctx).
		SetBody(struct{}{}).
		SetResult(&progress).
		Post("/user/advance-step")
	if err := wrap("advance-step", res, err); err != nil {
		return nil, err
	}
	c.log.Debug("advance-step accepted", "current_step", progress.CurrentStep)
	return &progress, nil
}

// GoBackStep asks the server to decrement current_step. Only ever invoked
// from the explicit user-triggered rollback path.
func (c *Client) GoBackStep(ctx context.Context) (*UserProgress, error) {
	var progress UserProgress
	res, err := c.request(ctx).
		SetBody(struct{}{}).
		SetResult(&progress).
		Post("/user/go-back-step")
	if err := wrap("go-back-step", res, err); err != nil {
		return nil, err
	}
	return &progress, nil
}

// SavePBClient persists the external booking system's correlation id.
func (c *Client) SavePBClient(ctx context.Context, clientRecordID string) error {
	res, err := c.request(ctx).
		SetBody(savePBClientRequest{ClientRecordID: clientRecordID}).
		Post("/user/save-pb-client")
	return wrap("save-pb-client", res, err)
}

// Refresh exchanges the refresh token for a new token pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var pair TokenPair
	// Refresh must not ride on the possibly-expired access token.
	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("refresh_token", refreshToken).
		SetResult(&pair).
		Post("/auth/refresh")
	if err := wrap("refresh", res, err); err != nil {
		return nil, err
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return nil, apperrors.NewAPIError("refresh", res.StatusCode(), apperrors.ErrRefreshFailed)
	}
	return &pair, nil
}

// IntakeForm fetches the server's view of the intake form, including the
// submitted flag the autosave pipeline checks before writing.
func (c *Client) IntakeForm(ctx context.Context) (*IntakeFormStatus, error) {
	var status IntakeFormStatus
	res, err := c.request(ctx).SetResult(&status).Get("/user/intake-form")
	if err := wrap("intake-form", res, err); err != nil {
		return nil, err
	}
	return &status, nil
}

// SaveIntakeForm persists an in-progress draft server-side.
func (c *Client) SaveIntakeForm(ctx context.Context, draft json.RawMessage) error {
	res, err := c.request(ctx).
		SetBody(formDraftEnvelope{Data: draft}).
		Post("/user/intake-form/save")
	return wrap("intake-form-save", res, err)
}

// SubmitIntakeForm finalizes the intake form. After a successful submit the
// server reports submitted=true and drafts are superseded.
func (c *Client) SubmitIntakeForm(ctx context.Context, form json.RawMessage) error {
	res, err := c.request(ctx).
		SetBody(formDraftEnvelope{Data: form}).
		Post("/user/intake-form/submit")
	return wrap("intake-form-submit", res, err)
}

// FormDraft fetches a generic draft by type for the embed-capture variant.
// Returns ErrNotFound when no draft of that type exists.
func (c *Client) FormDraft(ctx context.Context, draftType string) (json.RawMessage, error) {
	var envelope formDraftEnvelope
	res, err := c.request(ctx).SetResult(&envelope).Get("/form-draft/" + draftType)
	if err == nil && res.StatusCode() == http.StatusNotFound {
		return nil, apperrors.ErrNotFound
	}
	if err := wrap("form-draft", res, err); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}

// SaveFormDraft persists a generic draft by type.
func (c *Client) SaveFormDraft(ctx context.Context, draftType string, data json.RawMessage) error {
	res, err := c.request(ctx).
		SetBody(formDraftEnvelope{Data: data}).
		Post("/form-draft/" + draftType)
	return wrap("form-draft-save", res, err)
}

package api

import (
	"encoding/json"
	"time"
)

// User is the authenticated user's profile as returned by GET /user/me.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// UserProgress is the server-owned onboarding progress snapshot.
// current_step is monotonic except through the explicit go-back mutation.
type UserProgress struct {
	CurrentStep      int       `json:"current_step"`
	TasksCompleted   []string  `json:"tasks_completed"`
	PBClientRecordID string    `json:"pb_client_record_id,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TokenPair is the wire shape returned by POST /auth/refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// IntakeFormStatus is the server view of the intake form, returned by
// GET /user/intake-form. Draft is nil when no draft has been saved yet.
type IntakeFormStatus struct {
	Submitted bool            `json:"submitted"`
	Draft     json.RawMessage `json:"draft,omitempty"`
	UpdatedAt time.Time       `json:"updated_at,omitempty"`
}

// formDraftEnvelope wraps generic draft payloads for the /form-draft/{type}
// endpoints used by the embed-capture variant.
type formDraftEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// completeTaskRequest is the body for POST /user/complete-task.
type completeTaskRequest struct {
	TaskID string `json:"task_id"`
}

// savePBClientRequest is the body for POST /user/save-pb-client.
type savePBClientRequest struct {
	ClientRecordID string `json:"client_record_id"`
}

// Package draft holds the in-progress intake form state, the per-step
// validation gate, and the debounced autosave pipeline that writes the
// draft through the tiered persistence port.
package draft

import (
	"encoding/json"
	"time"
)

// Key is the persistence key under which the intake draft is stored.
const Key = "intake-form"

// Parts is the number of parts in the intake form.
const Parts = 3

// Signature is the captured signature for one form part. Image holds the
// last serialized canvas capture; PendingStrokes marks strokes drawn since
// that capture.
type Signature struct {
	Image          []byte `json:"image,omitempty"`
	PendingStrokes bool   `json:"-"`
}

// Signed reports whether the signature carries any content at all.
func (s *Signature) Signed() bool {
	return s != nil && (len(s.Image) > 0 || s.PendingStrokes)
}

// FormState is the in-progress intake form. It is created on the first
// field edit and mutated on every change; on final submission it is
// superseded server-side, never deleted locally.
type FormState struct {
	Part        int                   `json:"part"`
	Fields      map[string]any        `json:"fields"`
	Signatures  map[string]*Signature `json:"signatures,omitempty"`
	LastSavedAt time.Time             `json:"last_saved_at,omitzero"`
	Submitted   bool                  `json:"submitted"`
}

// NewFormState returns an empty draft positioned at part 1.
func NewFormState() *FormState {
	return &FormState{
		Part:       1,
		Fields:     make(map[string]any),
		Signatures: make(map[string]*Signature),
	}
}

// SetField records one field value.
func (f *FormState) SetField(id string, value any) {
	if f.Fields == nil {
		f.Fields = make(map[string]any)
	}
	f.Fields[id] = value
}

// SetFields records a bulk field capture, e.g. from an embedded frame.
func (f *FormState) SetFields(fields map[string]any) {
	for id, value := range fields {
		f.SetField(id, value)
	}
}

// Field returns the value for id, or nil when unset.
func (f *FormState) Field(id string) any {
	return f.Fields[id]
}

// StringField returns the field as a string, empty when unset or not a
// string.
func (f *FormState) StringField(id string) string {
	s, _ := f.Fields[id].(string)
	return s
}

// BoolField returns the field as a bool, false when unset or not a bool.
func (f *FormState) BoolField(id string) bool {
	b, _ := f.Fields[id].(bool)
	return b
}

// ListField returns the field as a slice, nil when unset or not a slice.
func (f *FormState) ListField(id string) []any {
	l, _ := f.Fields[id].([]any)
	return l
}

// Signature returns the signature slot for the given part name, creating
// it on first access.
func (f *FormState) Signature(part string) *Signature {
	if f.Signatures == nil {
		f.Signatures = make(map[string]*Signature)
	}
	sig, ok := f.Signatures[part]
	if !ok {
		sig = &Signature{}
		f.Signatures[part] = sig
	}
	return sig
}

// Marshal serializes the draft for persistence.
func (f *FormState) Marshal() ([]byte, error) {
	return json.Marshal(f)
}

// Unmarshal restores a draft from persisted bytes.
func Unmarshal(data []byte) (*FormState, error) {
	var f FormState
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.Fields == nil {
		f.Fields = make(map[string]any)
	}
	if f.Signatures == nil {
		f.Signatures = make(map[string]*Signature)
	}
	return &f, nil
}

// Clone returns a deep copy safe to serialize off the mutation path.
func (f *FormState) Clone() *FormState {
	out := &FormState{
		Part:        f.Part,
		Fields:      make(map[string]any, len(f.Fields)),
		Signatures:  make(map[string]*Signature, len(f.Signatures)),
		LastSavedAt: f.LastSavedAt,
		Submitted:   f.Submitted,
	}
	for id, value := range f.Fields {
		out.Fields[id] = value
	}
	for part, sig := range f.Signatures {
		if sig == nil {
			out.Signatures[part] = nil
			continue
		}
		img := make([]byte, len(sig.Image))
		copy(img, sig.Image)
		out.Signatures[part] = &Signature{Image: img, PendingStrokes: sig.PendingStrokes}
	}
	return out
}

package signal

import (
	"encoding/json"
	"strings"

	apperrors "github.com/veritahealth/onboard/internal/errors"
)

// ErrOriginDenied is returned when an inbound frame message's origin does
// not match any allow-listed domain.
var ErrOriginDenied = apperrors.New("frame origin not allowed")

// MessageKind classifies an inbound embedded-frame message.
type MessageKind int

const (
	// KindUnknown is an unrecognized message shape; callers ignore it.
	KindUnknown MessageKind = iota
	// KindHeight is a layout sizing hint; not part of the core flow.
	KindHeight
	// KindBulkFields carries a full form-data object.
	KindBulkFields
	// KindField carries a single field update.
	KindField
	// KindSubmitted reports the embedded form was submitted; the local
	// draft for it is cleared in response.
	KindSubmitted
)

// FrameMessage is the decoded form of an inbound embedded-frame message.
type FrameMessage struct {
	Kind   MessageKind
	Height int            // KindHeight
	Fields map[string]any // KindBulkFields
	Field  string         // KindField
	Value  any            // KindField
}

// FrameDecoder validates and decodes messages posted by an embedded
// third-party frame. The origin must contain one of the allow-listed
// domain substrings; everything else is rejected before parsing.
type FrameDecoder struct {
	allowedOrigins []string
}

// NewFrameDecoder creates a decoder for the given origin allow-list.
// An empty allow-list rejects every message.
func NewFrameDecoder(allowedOrigins []string) *FrameDecoder {
	return &FrameDecoder{allowedOrigins: allowedOrigins}
}

// Decode checks the origin and classifies the raw JSON message.
// Unrecognized but well-formed messages decode to KindUnknown, not an
// error: third-party frames post chatter the engine must tolerate.
func (d *FrameDecoder) Decode(origin string, raw []byte) (*FrameMessage, error) {
	if !d.originAllowed(origin) {
		return nil, ErrOriginDenied
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}

	if msg := decodeSubmitted(body); msg != nil {
		return msg, nil
	}
	if msg := decodeHeight(body); msg != nil {
		return msg, nil
	}
	if msg := decodeBulkFields(body); msg != nil {
		return msg, nil
	}
	if msg := decodeField(body); msg != nil {
		return msg, nil
	}
	return &FrameMessage{Kind: KindUnknown}, nil
}

func (d *FrameDecoder) originAllowed(origin string) bool {
	for _, allowed := range d.allowedOrigins {
		if allowed != "" && strings.Contains(origin, allowed) {
			return true
		}
	}
	return false
}

func decodeSubmitted(body map[string]json.RawMessage) *FrameMessage {
	var value string
	if raw, ok := body["type"]; ok && json.Unmarshal(raw, &value) == nil && value == "form_submitted" {
		return &FrameMessage{Kind: KindSubmitted}
	}
	if raw, ok := body["event"]; ok && json.Unmarshal(raw, &value) == nil && value == "submit" {
		return &FrameMessage{Kind: KindSubmitted}
	}
	return nil
}

func decodeHeight(body map[string]json.RawMessage) *FrameMessage {
	for _, key := range []string{"height", "frameHeight"} {
		raw, ok := body[key]
		if !ok {
			continue
		}
		var height float64
		if json.Unmarshal(raw, &height) == nil {
			return &FrameMessage{Kind: KindHeight, Height: int(height)}
		}
	}
	return nil
}

func decodeBulkFields(body map[string]json.RawMessage) *FrameMessage {
	for _, key := range []string{"formData", "form_data", "data"} {
		raw, ok := body[key]
		if !ok {
			continue
		}
		var fields map[string]any
		if json.Unmarshal(raw, &fields) == nil && fields != nil {
			return &FrameMessage{Kind: KindBulkFields, Fields: fields}
		}
	}
	return nil
}

func decodeField(body map[string]json.RawMessage) *FrameMessage {
	rawValue, ok := body["value"]
	if !ok {
		return nil
	}

	for _, key := range []string{"field", "fieldName", "name"} {
		raw, ok := body[key]
		if !ok {
			continue
		}
		var field string
		if json.Unmarshal(raw, &field) != nil || field == "" {
			continue
		}
		var value any
		_ = json.Unmarshal(rawValue, &value)
		return &FrameMessage{Kind: KindField, Field: field, Value: value}
	}
	return nil
}

package draft

import (
	apperrors "github.com/veritahealth/onboard/internal/errors"
	"github.com/veritahealth/onboard/internal/progress"
)

// Field IDs used by the validation rules. The embedded form posts fields
// under these names.
const (
	FieldFullName      = "full_name"
	FieldDateOfBirth   = "date_of_birth"
	FieldPhone         = "phone"
	FieldAddress       = "address"
	FieldConditions    = "conditions"
	FieldMedications   = "medications"
	FieldNoMedications = "no_medications"
	FieldAllergies     = "allergies"
	FieldConsent       = "consent"
)

// Signature slot names, one per form part that requires signing.
const (
	SignaturePersonal = "personal"
	SignatureMedical  = "medical"
	SignatureConsent  = "consent"
)

type requiredField struct {
	id    string
	label string
}

// requiredByPart lists the plain required-field rules in display order.
// Part-specific rules (medications, signatures) are evaluated separately.
var requiredByPart = map[int][]requiredField{
	1: {
		{FieldFullName, "Full name"},
		{FieldDateOfBirth, "Date of birth"},
		{FieldPhone, "Phone number"},
		{FieldAddress, "Address"},
	},
	2: {
		{FieldConditions, "Existing conditions"},
		{FieldAllergies, "Allergies"},
	},
	3: {
		{FieldConsent, "Consent to treatment"},
	},
}

// signatureByPart names the signature slot each part must carry.
var signatureByPart = map[int]requiredField{
	1: {SignaturePersonal, "Personal details signature"},
	2: {SignatureMedical, "Medical history signature"},
	3: {SignatureConsent, "Consent signature"},
}

// ValidatePart evaluates the rules for one form part against the draft,
// returning violations in display order. Pure function, no I/O.
func ValidatePart(f *FormState, part int) []apperrors.FieldViolation {
	var violations []apperrors.FieldViolation

	for _, req := range requiredByPart[part] {
		if fieldEmpty(f.Field(req.id)) {
			violations = append(violations, apperrors.FieldViolation{
				FieldID: req.id, Label: req.label,
			})
		}
	}

	// At least one named medication entry, or the explicit no-medications
	// flag. An empty list with the flag unset is a violation.
	if part == 2 {
		if len(f.ListField(FieldMedications)) == 0 && !f.BoolField(FieldNoMedications) {
			violations = append(violations, apperrors.FieldViolation{
				FieldID: FieldMedications, Label: "Current medications",
			})
		}
	}

	if req, ok := signatureByPart[part]; ok {
		if !f.Signatures[req.id].Signed() {
			violations = append(violations, apperrors.FieldViolation{
				FieldID: req.id, Label: req.label,
			})
		}
	}

	return violations
}

// Validate evaluates every part up to and including the draft's current
// part. Used when the intake step as a whole gates an advancement.
func Validate(f *FormState) []apperrors.FieldViolation {
	var violations []apperrors.FieldViolation
	for part := 1; part <= f.Part && part <= Parts; part++ {
		violations = append(violations, ValidatePart(f, part)...)
	}
	return violations
}

// IntakeStep is the onboarding step whose advancement the draft rules
// gate. Other steps carry no draft requirements; their policies live in
// the coordinator's task configuration.
const IntakeStep = 2

// Gate adapts the draft rules to the coordinator's gate contract. Only
// the intake step is evaluated against the draft; a nil draft (nothing
// edited yet) fails all required-field rules for part 1, and a submitted
// form passes outright since the server already validated it.
func Gate(source func() *FormState) progress.Gate {
	return func(step int) []apperrors.FieldViolation {
		if step != IntakeStep {
			return nil
		}
		f := source()
		if f == nil {
			f = NewFormState()
		}
		if f.Submitted {
			return nil
		}
		return Validate(f)
	}
}

func fieldEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case bool:
		return !val
	case []any:
		return len(val) == 0
	default:
		return false
	}
}

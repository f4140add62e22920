package ingest

// FieldState is the outcome of checking an optional submitted field.
type FieldState int

const (
	// FieldAbsent means the client did not send the field.
	FieldAbsent FieldState = iota
	// FieldValid means the field was sent and passed validation.
	FieldValid
	// FieldInvalid means the field was sent but failed validation.
	FieldInvalid
)

func (s FieldState) String() string {
	switch s {
	case FieldAbsent:
		return "absent"
	case FieldValid:
		return "valid"
	case FieldInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

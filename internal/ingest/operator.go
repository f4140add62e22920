package ingest

import (
	"fmt"
	"regexp"
)

// DefaultOperatorPattern matches an "MCC-MNC" operator code.
const DefaultOperatorPattern = `\d{3}-\d+`

// OperatorCodeValidator accepts or rejects telecom operator identifiers.
type OperatorCodeValidator struct {
	pattern *regexp.Regexp
}

// NewOperatorCodeValidator compiles pattern, which must match the whole code.
func NewOperatorCodeValidator(pattern string) (*OperatorCodeValidator, error) {
	re, err := regexp.Compile(`^(?:` + pattern + `)$`)
	if err != nil {
		return nil, fmt.Errorf("failed to compile operator pattern: %w", err)
	}
	return &OperatorCodeValidator{pattern: re}, nil
}

// Check returns the code and FieldValid when code is a well-formed operator
// identifier.
func (v *OperatorCodeValidator) Check(code *string) (string, FieldState) {
	if code == nil {
		return "", FieldAbsent
	}
	if !v.pattern.MatchString(*code) {
		return "", FieldInvalid
	}
	return *code, FieldValid
}

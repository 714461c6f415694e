package telemetry

import (
	"errors"
	"fmt"
	"strings"
)

// Reason classifies why a payload was dropped.
// Reasons are comparable errors, so callers can use errors.Is.
type Reason string

const (
	ErrMalformed      Reason = "malformed_payload"
	ErrSchemaMismatch Reason = "schema_mismatch"
	ErrMissingField   Reason = "missing_field"
	ErrTimestampParse Reason = "timestamp_parse"
	ErrValueType      Reason = "value_type"
	ErrNonFiniteValue Reason = "non_finite_value"
)

// Reasons lists every rejection reason, in a fixed order.
var Reasons = []Reason{
	ErrMalformed,
	ErrSchemaMismatch,
	ErrMissingField,
	ErrTimestampParse,
	ErrValueType,
	ErrNonFiniteValue,
}

func (r Reason) Error() string {
	return strings.ReplaceAll(string(r), "_", " ")
}

// RejectError reports a dropped payload.
type RejectError struct {
	Reason Reason
	Field  string // offending field path, empty for whole-payload problems
	Err    error  // underlying parse error, if any
}

func reject(reason Reason, field string, err error) *RejectError {
	return &RejectError{Reason: reason, Field: field, Err: err}
}

func (e *RejectError) Error() string {
	msg := e.Reason.Error()
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Field)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *RejectError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

// ReasonOf returns the rejection reason carried by err, or "" if err is not a
// *RejectError.
func ReasonOf(err error) Reason {
	for _, r := range Reasons {
		if errors.Is(err, r) {
			return r
		}
	}
	return ""
}

package schema

import "fmt"

// Status is the outcome of checking a document against a shape.
type Status string

const (
	StatusValid         Status = "valid"
	StatusInvalid       Status = "invalid"
	StatusInternalError Status = "internal_error"
)

// Result tells bad input apart from a broken schema.
type Result struct {
	Status  Status
	Schema  string
	Version Version
	Errors  []FieldError
	Cause   error
	Value   any
}

func Valid(def *Definition, value any) Result {
	return Result{Status: StatusValid, Schema: def.Name, Version: def.Version, Value: value}
}

func Invalid(def *Definition, errs ...FieldError) Result {
	return Result{Status: StatusInvalid, Schema: def.Name, Version: def.Version, Errors: errs}
}

func InternalError(def *Definition, cause error) Result {
	return Result{Status: StatusInternalError, Schema: def.Name, Version: def.Version, Cause: cause}
}

func (r Result) OK() bool { return r.Status == StatusValid }

// Err returns nil for a valid result, a *ShapeError (matching
// ErrValidationFailed) for an invalid one, and the cause otherwise.
func (r Result) Err() error {
	switch r.Status {
	case StatusValid:
		return nil
	case StatusInvalid:
		return &ShapeError{Type: fmt.Sprintf("%s@%s", r.Schema, r.Version), Fields: r.Errors}
	default:
		return r.Cause
	}
}

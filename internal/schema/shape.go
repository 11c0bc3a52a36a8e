package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/asaskevich/govalidator"
)

// Type is the structural validator for one schema version. Construct builds a
// typed value from a raw document. A *ShapeError means the document does not
// fit; any other error means the type itself is broken.
type Type interface {
	Name() string
	Construct(doc Document) (any, error)
}

// FieldError describes one mismatch between a document and a shape.
type FieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ShapeError is returned by Type.Construct when the input is at fault.
type ShapeError struct {
	Type   string
	Fields []FieldError
}

func (e *ShapeError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Field == "" {
			parts = append(parts, f.Message)
			continue
		}
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("document does not match %s: %s", e.Type, strings.Join(parts, "; "))
}

func (e *ShapeError) Is(target error) bool {
	return target == ErrValidationFailed
}

// Checker can be implemented by shape structs for rules struct tags cannot
// express. Returned errors are treated as shape mismatches.
type Checker interface {
	Check() error
}

// StructType validates documents by decoding them into T and running the
// govalidator tags on T, then T's Check method when it has one.
type StructType[T any] struct {
	name   string
	broken error
}

// NewStructType builds a Type over struct T. Non-struct T yields a type whose
// every Construct call fails with an internal error.
func NewStructType[T any](name string) *StructType[T] {
	t := &StructType[T]{name: name}
	var zero T
	if rt := reflect.TypeOf(zero); rt == nil || rt.Kind() != reflect.Struct {
		t.broken = fmt.Errorf("schema type %s: %T is not a struct", name, zero)
	}
	return t
}

func (t *StructType[T]) Name() string { return t.name }

func (t *StructType[T]) Construct(doc Document) (any, error) {
	if t.broken != nil {
		return nil, t.broken
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, &ShapeError{Type: t.name, Fields: []FieldError{{Message: err.Error()}}}
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, &ShapeError{Type: t.name, Fields: []FieldError{decodeFieldError(err)}}
	}
	if _, err := govalidator.ValidateStruct(v); err != nil {
		byField := govalidator.ErrorsByField(err)
		if len(byField) == 0 {
			return nil, fmt.Errorf("schema type %s: %w", t.name, err)
		}
		return nil, &ShapeError{Type: t.name, Fields: sortedFieldErrors(byField)}
	}
	if c, ok := any(&v).(Checker); ok {
		if err := c.Check(); err != nil {
			return nil, &ShapeError{Type: t.name, Fields: []FieldError{{Message: err.Error()}}}
		}
	}
	return v, nil
}

func decodeFieldError(err error) FieldError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return FieldError{
			Field:   typeErr.Field,
			Message: fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value),
		}
	}
	return FieldError{Message: err.Error()}
}

func sortedFieldErrors(byField map[string]string) []FieldError {
	out := make([]FieldError, 0, len(byField))
	for field, msg := range byField {
		out = append(out, FieldError{Field: field, Message: msg})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

package handler

import (
	"strings"

	"trialstore/internal/schema"
	dErrors "trialstore/pkg/domain-errors"
)

func parseContext(field, raw string, required bool) (schema.Context, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if required {
			return "", dErrors.New(dErrors.CodeValidation, field+" is required")
		}
		return "", nil
	}
	c, err := schema.ParseContext(raw)
	if err != nil {
		return "", dErrors.New(dErrors.CodeValidation, field+" must be one of legacy, enhanced, future, custom, current")
	}
	return c, nil
}

// SetContextRequest is the body of PUT /collections/{collection}/context.
type SetContextRequest struct {
	Context string `json:"context"`

	parsed schema.Context
}

func (r *SetContextRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	c, err := parseContext("context", r.Context, true)
	if err != nil {
		return err
	}
	r.parsed = c
	return nil
}

// ValidateRequest is the body of POST /collections/{collection}/validate. An
// empty context means the active one.
type ValidateRequest struct {
	Document schema.Document `json:"document"`
	Context  string          `json:"context,omitempty"`

	parsed schema.Context
}

func (r *ValidateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Document == nil {
		return dErrors.New(dErrors.CodeValidation, "document is required")
	}
	c, err := parseContext("context", r.Context, false)
	if err != nil {
		return err
	}
	r.parsed = c
	return nil
}

// MigrateDocumentRequest is the body of POST
// /collections/{collection}/migrate-document.
type MigrateDocumentRequest struct {
	Document    schema.Document `json:"document"`
	FromContext string          `json:"from_context"`
	ToContext   string          `json:"to_context"`

	from schema.Context
	to   schema.Context
}

func (r *MigrateDocumentRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if r.Document == nil {
		return dErrors.New(dErrors.CodeValidation, "document is required")
	}
	var err error
	if r.from, err = parseContext("from_context", r.FromContext, true); err != nil {
		return err
	}
	if r.to, err = parseContext("to_context", r.ToContext, true); err != nil {
		return err
	}
	return nil
}

// MigrateCollectionRequest is the body of POST
// /collections/{collection}/migrations.
type MigrateCollectionRequest struct {
	FromContext string `json:"from_context"`
	ToContext   string `json:"to_context"`
	Async       bool   `json:"async"`

	from schema.Context
	to   schema.Context
}

func (r *MigrateCollectionRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	var err error
	if r.from, err = parseContext("from_context", r.FromContext, true); err != nil {
		return err
	}
	if r.to, err = parseContext("to_context", r.ToContext, true); err != nil {
		return err
	}
	return nil
}

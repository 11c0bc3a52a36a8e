package handler

import (
	"time"

	"trialstore/internal/schema"
)

// ValidateResponse is the HTTP response for POST .../validate.
type ValidateResponse struct {
	Valid   bool                `json:"valid"`
	Schema  string              `json:"schema"`
	Version string              `json:"version"`
	Errors  []schema.FieldError `json:"errors,omitempty"`
}

func FromResult(res schema.Result) *ValidateResponse {
	return &ValidateResponse{
		Valid:   res.OK(),
		Schema:  res.Schema,
		Version: res.Version.String(),
		Errors:  res.Errors,
	}
}

// MigrateDocumentResponse is the HTTP response for POST .../migrate-document.
type MigrateDocumentResponse struct {
	Document    schema.Document `json:"document"`
	FromContext schema.Context  `json:"from_context"`
	ToContext   schema.Context  `json:"to_context"`
}

// DocumentResponse wraps a stored document.
type DocumentResponse struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Document   schema.Document `json:"document"`
	ReadAt     time.Time       `json:"read_at"`
}

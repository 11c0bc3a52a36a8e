package handler

import (
	"sort"
	"time"

	"trialstore/internal/schema"
)

type SchemaSummary struct {
	Name     string   `json:"name"`
	Versions []string `json:"versions"`
}

// ListResponse is the HTTP response for GET /schemas.
type ListResponse struct {
	ActiveContext schema.Context  `json:"active_context"`
	Fingerprint   string          `json:"fingerprint"`
	Schemas       []SchemaSummary `json:"schemas"`
}

type RuleSetResponse struct {
	Name   string   `json:"name,omitempty"`
	From   string   `json:"from"`
	To     string   `json:"to"`
	Fields []string `json:"fields"`
	Multi  int      `json:"multi_field_rules,omitempty"`
}

type DefinitionResponse struct {
	Version   string            `json:"version"`
	Context   schema.Context    `json:"context"`
	ValidFrom time.Time         `json:"valid_from"`
	ValidTo   *time.Time        `json:"valid_to,omitempty"`
	Rules     []RuleSetResponse `json:"rules,omitempty"`
}

// SchemaResponse is the HTTP response for GET /schemas/{name}.
type SchemaResponse struct {
	Name        string               `json:"name"`
	Definitions []DefinitionResponse `json:"definitions"`
}

func FromDefinitions(name string, defs []*schema.Definition) *SchemaResponse {
	resp := &SchemaResponse{Name: name, Definitions: make([]DefinitionResponse, 0, len(defs))}
	for _, d := range defs {
		out := DefinitionResponse{
			Version:   d.Version.String(),
			Context:   d.Context,
			ValidFrom: d.ValidFrom,
			ValidTo:   d.ValidTo,
		}
		for _, rs := range d.Rules {
			fields := make([]string, 0, len(rs.Fields))
			for f := range rs.Fields {
				fields = append(fields, f)
			}
			sort.Strings(fields)
			out.Rules = append(out.Rules, RuleSetResponse{
				Name:   rs.Name,
				From:   rs.From.String(),
				To:     rs.To.String(),
				Fields: fields,
				Multi:  len(rs.Multi),
			})
		}
		resp.Definitions = append(resp.Definitions, out)
	}
	return resp
}
